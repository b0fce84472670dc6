package solvers

import (
	"bytes"
	"fmt"
	"image"
	"math"

	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/webp"
)

// SolveSlide locates the horizontal gap position for the sliding
// piece. Both images are reduced to edge maps first so the match
// survives the noise and recoloring the provider applies to the
// background, then the piece edges are correlated across the
// background.
func SolveSlide(slice, background []byte) (Solution, error) {
	piece, err := decodeGray(slice)
	if err != nil {
		return Solution{}, fmt.Errorf("decode slice image: %w", err)
	}
	bg, err := decodeGray(background)
	if err != nil {
		return Solution{}, fmt.Errorf("decode background image: %w", err)
	}

	if piece.w >= bg.w || piece.h > bg.h {
		return Solution{}, fmt.Errorf("slice %dx%d does not fit background %dx%d", piece.w, piece.h, bg.w, bg.h)
	}

	pieceEdges := cannyEdges(piece)
	bgEdges := cannyEdges(bg)

	// The piece carries transparent padding; matching happens on the
	// full template but the reported offset is the opaque content's
	// left edge.
	margin := opaqueLeftMargin(slice, piece.w)

	bestX, confidence := matchTemplate(bgEdges, pieceEdges)

	if confidence < SlideConfidenceThreshold {
		return Solution{}, fmt.Errorf("no alignment above threshold (peak correlation %.3f)", confidence)
	}

	return Solution{
		Kind:       KindSlide,
		Confidence: confidence,
		Left:       float64(bestX + margin),
	}, nil
}

type grayGrid struct {
	w, h int
	pix  []float64
}

func (g grayGrid) at(x, y int) float64 { return g.pix[y*g.w+x] }

func decodeGray(data []byte) (grayGrid, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return grayGrid{}, err
	}
	b := img.Bounds()
	g := grayGrid{w: b.Dx(), h: b.Dy(), pix: make([]float64, b.Dx()*b.Dy())}
	for y := 0; y < g.h; y++ {
		for x := 0; x < g.w; x++ {
			r, gr, bl, _ := img.At(b.Min.X+x, b.Min.Y+y).RGBA()
			g.pix[y*g.w+x] = 0.299*float64(r>>8) + 0.587*float64(gr>>8) + 0.114*float64(bl>>8)
		}
	}
	return g, nil
}

// opaqueLeftMargin finds the first column of the piece image with any
// meaningfully opaque pixel. Zero when the image has no alpha.
func opaqueLeftMargin(data []byte, width int) int {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return 0
	}
	b := img.Bounds()
	for x := 0; x < width; x++ {
		for y := b.Min.Y; y < b.Max.Y; y++ {
			if _, _, _, a := img.At(b.Min.X+x, y).RGBA(); a > 0x2000 {
				return x
			}
		}
	}
	return 0
}

// cannyEdges is a compact Canny pipeline: gaussian blur, sobel
// gradients, non-maximum suppression, double threshold with
// hysteresis. Output pixels are 0 or 1.
func cannyEdges(g grayGrid) grayGrid {
	const lowThreshold = 100.0
	const highThreshold = 200.0

	blurred := gaussianBlur(g)
	gx, gy := sobel(blurred)

	mag := make([]float64, g.w*g.h)
	dir := make([]float64, g.w*g.h)
	for i := range mag {
		mag[i] = math.Hypot(gx[i], gy[i])
		dir[i] = math.Atan2(gy[i], gx[i])
	}

	suppressed := nonMaxSuppress(mag, dir, g.w, g.h)
	return hysteresis(suppressed, g.w, g.h, lowThreshold, highThreshold)
}

func gaussianBlur(g grayGrid) grayGrid {
	kernel := [3][3]float64{
		{1.0 / 16, 2.0 / 16, 1.0 / 16},
		{2.0 / 16, 4.0 / 16, 2.0 / 16},
		{1.0 / 16, 2.0 / 16, 1.0 / 16},
	}
	out := grayGrid{w: g.w, h: g.h, pix: make([]float64, g.w*g.h)}
	for y := 1; y < g.h-1; y++ {
		for x := 1; x < g.w-1; x++ {
			sum := 0.0
			for ky := 0; ky < 3; ky++ {
				for kx := 0; kx < 3; kx++ {
					sum += g.at(x+kx-1, y+ky-1) * kernel[ky][kx]
				}
			}
			out.pix[y*g.w+x] = sum
		}
	}
	return out
}

func sobel(g grayGrid) ([]float64, []float64) {
	sx := [3][3]float64{{-1, 0, 1}, {-2, 0, 2}, {-1, 0, 1}}
	sy := [3][3]float64{{-1, -2, -1}, {0, 0, 0}, {1, 2, 1}}
	gx := make([]float64, g.w*g.h)
	gy := make([]float64, g.w*g.h)
	for y := 1; y < g.h-1; y++ {
		for x := 1; x < g.w-1; x++ {
			var sumX, sumY float64
			for ky := 0; ky < 3; ky++ {
				for kx := 0; kx < 3; kx++ {
					v := g.at(x+kx-1, y+ky-1)
					sumX += v * sx[ky][kx]
					sumY += v * sy[ky][kx]
				}
			}
			gx[y*g.w+x] = sumX
			gy[y*g.w+x] = sumY
		}
	}
	return gx, gy
}

func nonMaxSuppress(mag, dir []float64, w, h int) []float64 {
	out := make([]float64, w*h)
	for y := 1; y < h-1; y++ {
		for x := 1; x < w-1; x++ {
			i := y*w + x
			angle := dir[i] * 180 / math.Pi
			if angle < 0 {
				angle += 180
			}
			var n1, n2 float64
			switch {
			case angle < 22.5 || angle >= 157.5:
				n1, n2 = mag[i+1], mag[i-1]
			case angle < 67.5:
				n1, n2 = mag[(y-1)*w+x+1], mag[(y+1)*w+x-1]
			case angle < 112.5:
				n1, n2 = mag[(y+1)*w+x], mag[(y-1)*w+x]
			default:
				n1, n2 = mag[(y-1)*w+x-1], mag[(y+1)*w+x+1]
			}
			if mag[i] >= n1 && mag[i] >= n2 {
				out[i] = mag[i]
			}
		}
	}
	return out
}

func hysteresis(mag []float64, w, h int, low, high float64) grayGrid {
	out := grayGrid{w: w, h: h, pix: make([]float64, w*h)}
	strong := make([]bool, w*h)
	for i, v := range mag {
		if v >= high {
			strong[i] = true
			out.pix[i] = 1
		}
	}
	for y := 1; y < h-1; y++ {
		for x := 1; x < w-1; x++ {
			i := y*w + x
			if mag[i] < low || out.pix[i] == 1 {
				continue
			}
			if strong[i-1] || strong[i+1] ||
				strong[i-w-1] || strong[i-w] || strong[i-w+1] ||
				strong[i+w-1] || strong[i+w] || strong[i+w+1] {
				out.pix[i] = 1
			}
		}
	}
	return out
}

// matchTemplate slides the piece edge map over the background edge
// map and returns the x of the peak normalized cross correlation
// together with the peak value.
func matchTemplate(bg, piece grayGrid) (int, float64) {
	var templEnergy float64
	for _, v := range piece.pix {
		templEnergy += v * v
	}
	if templEnergy == 0 {
		return 0, 0
	}

	bestX, bestScore := 0, 0.0
	for oy := 0; oy <= bg.h-piece.h; oy++ {
		for ox := 0; ox <= bg.w-piece.w; ox++ {
			var cross, imgEnergy float64
			for y := 0; y < piece.h; y++ {
				rowBg := (oy+y)*bg.w + ox
				rowT := y * piece.w
				for x := 0; x < piece.w; x++ {
					bv := bg.pix[rowBg+x]
					tv := piece.pix[rowT+x]
					cross += bv * tv
					imgEnergy += bv * bv
				}
			}
			if imgEnergy == 0 {
				continue
			}
			score := cross / math.Sqrt(templEnergy*imgEnergy)
			if score > bestScore {
				bestScore = score
				bestX = ox
			}
		}
	}
	return bestX, bestScore
}
