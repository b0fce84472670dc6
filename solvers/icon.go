package solvers

import (
	"bytes"
	"fmt"
	"image"
	"math"
	"strings"

	xdraw "golang.org/x/image/draw"
)

// The provider reuses a fixed set of question icons; the filename hash
// identifies the arrow direction being asked for.
var iconDirections = map[string]string{
	"8da090c135ff029f3b5e19f4c44f73c8.png": "u",
	"cb0eaa639b2117a69a81af3d8c1496a1.png": "d",
	"315ce8665e781dabcd1eb09d3e604803.png": "l",
	"38bd9dda695098c7dfad74c921923a7d.png": "lu",
	"502e51dbabf411beba2dcd55fd38ebbd.png": "ld",
	"2b2387f566f6a03ed594d4d7cfda471f.png": "r",
	"78dc29045d587ad054c7353732df53c5.png": "ru",
	"23ef93e6b0e0df0e15b66667c99a5fb4.png": "rd",
}

// The click coordinates the provider expects are scaled down from
// image pixels by these factors.
const (
	iconScaleX = 33.0 / 100.0
	iconScaleY = 49.0 / 100.0
)

const classifyHeight = 64

type boundingBox struct {
	x1, y1, x2, y2 int
}

func (b boundingBox) width() int  { return b.x2 - b.x1 }
func (b boundingBox) height() int { return b.y2 - b.y1 }

func (b boundingBox) center() (float64, float64) {
	return float64(b.x1) + float64(b.width())/2, float64(b.y1) + float64(b.height())/2
}

// SolveIcon locates the icons in the challenge image and orders click
// positions to answer the question sequence. Icons are segmented by
// Otsu thresholding plus connected components, then each region's
// arrow direction is estimated from its tip geometry.
func SolveIcon(imgBytes []byte, questions []string) (Solution, error) {
	if len(questions) == 0 {
		return Solution{}, fmt.Errorf("no icon questions in challenge")
	}

	img, _, err := image.Decode(bytes.NewReader(imgBytes))
	if err != nil {
		return Solution{}, fmt.Errorf("decode icon image: %w", err)
	}

	required := make([]string, len(questions))
	for i, q := range questions {
		required[i] = questionDirection(q)
	}

	boxes := detectIconRegions(imageToGray(img))
	if len(boxes) == 0 {
		return Solution{}, fmt.Errorf("no icon regions detected")
	}

	type detected struct {
		box boundingBox
		dir string
	}
	found := make([]detected, 0, len(boxes))
	for _, box := range boxes {
		found = append(found, detected{box: box, dir: classifyArrow(img, box)})
	}

	positions := make([][2]float64, len(questions))
	used := make([]bool, len(found))
	matched := 0

	for qi, dir := range required {
		for fi, d := range found {
			if !used[fi] && dir != "" && d.dir == dir {
				cx, cy := d.box.center()
				positions[qi] = [2]float64{cx * iconScaleX, cy * iconScaleY}
				used[fi] = true
				matched++
				break
			}
		}
	}

	// Unmatched questions take the leftover regions in detection
	// order. Better a plausible wrong click than a hole in the answer.
	for qi := range positions {
		if positions[qi] != (([2]float64{})) {
			continue
		}
		for fi, d := range found {
			if !used[fi] {
				cx, cy := d.box.center()
				positions[qi] = [2]float64{cx * iconScaleX, cy * iconScaleY}
				used[fi] = true
				break
			}
		}
	}

	confidence := float64(matched) / float64(len(questions))
	if confidence < IconConfidenceThreshold {
		return Solution{}, fmt.Errorf("only %d of %d icons matched their questions", matched, len(questions))
	}

	return Solution{
		Kind:       KindIcon,
		Confidence: confidence,
		Positions:  positions,
	}, nil
}

func questionDirection(url string) string {
	parts := strings.Split(url, "/")
	return iconDirections[parts[len(parts)-1]]
}

func imageToGray(img image.Image) grayGrid {
	b := img.Bounds()
	g := grayGrid{w: b.Dx(), h: b.Dy(), pix: make([]float64, b.Dx()*b.Dy())}
	for y := 0; y < g.h; y++ {
		for x := 0; x < g.w; x++ {
			r, gr, bl, _ := img.At(b.Min.X+x, b.Min.Y+y).RGBA()
			g.pix[y*g.w+x] = 0.299*float64(r>>8) + 0.587*float64(gr>>8) + 0.114*float64(bl>>8)
		}
	}
	return g
}

// detectIconRegions binarizes the image and returns bounding boxes of
// foreground components sized plausibly for an icon.
func detectIconRegions(g grayGrid) []boundingBox {
	threshold := otsuThreshold(g)
	binary := make([]bool, g.w*g.h)
	for i, v := range g.pix {
		binary[i] = v < threshold
	}

	boxes := connectedComponents(binary, g.w, g.h)

	minArea := g.w * g.h / 400
	maxArea := g.w * g.h / 4
	minDim := 20
	maxDim := g.w
	if g.h < g.w {
		maxDim = g.h
	}
	maxDim /= 2

	keep := boxes[:0]
	for _, b := range boxes {
		w, h := b.width(), b.height()
		area := w * h
		if area < minArea || area > maxArea || w < minDim || w > maxDim || h < minDim || h > maxDim {
			continue
		}
		ratio := float64(w) / float64(h)
		if ratio < 0.3 || ratio > 1.0/0.3 {
			continue
		}
		keep = append(keep, b)
	}
	return keep
}

func otsuThreshold(g grayGrid) float64 {
	var hist [256]int
	for _, v := range g.pix {
		i := int(v)
		if i > 255 {
			i = 255
		}
		hist[i]++
	}
	total := len(g.pix)

	var sum float64
	for i, c := range hist {
		sum += float64(i) * float64(c)
	}

	var sumB, wB float64
	best, threshold := 0.0, 0.0
	for i, c := range hist {
		wB += float64(c)
		if wB == 0 {
			continue
		}
		wF := float64(total) - wB
		if wF == 0 {
			break
		}
		sumB += float64(i) * float64(c)
		mB := sumB / wB
		mF := (sum - sumB) / wF
		between := wB * wF * (mB - mF) * (mB - mF)
		if between > best {
			best = between
			threshold = float64(i)
		}
	}
	return threshold
}

func connectedComponents(binary []bool, w, h int) []boundingBox {
	labels := make([]int, w*h)
	next := 1
	// Union by flood fill with an explicit stack; recursion depth on a
	// 350px challenge image is not worth risking.
	var stack [][2]int
	boxes := map[int]*boundingBox{}

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			i := y*w + x
			if !binary[i] || labels[i] != 0 {
				continue
			}
			label := next
			next++
			box := &boundingBox{x1: x, y1: y, x2: x + 1, y2: y + 1}
			boxes[label] = box

			stack = append(stack[:0], [2]int{x, y})
			labels[i] = label
			for len(stack) > 0 {
				p := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				px, py := p[0], p[1]
				if px < box.x1 {
					box.x1 = px
				}
				if py < box.y1 {
					box.y1 = py
				}
				if px+1 > box.x2 {
					box.x2 = px + 1
				}
				if py+1 > box.y2 {
					box.y2 = py + 1
				}
				for _, d := range [4][2]int{{1, 0}, {-1, 0}, {0, 1}, {0, -1}} {
					nx, ny := px+d[0], py+d[1]
					if nx < 0 || ny < 0 || nx >= w || ny >= h {
						continue
					}
					ni := ny*w + nx
					if binary[ni] && labels[ni] == 0 {
						labels[ni] = label
						stack = append(stack, [2]int{nx, ny})
					}
				}
			}
		}
	}

	out := make([]boundingBox, 0, len(boxes))
	for _, b := range boxes {
		out = append(out, *b)
	}
	return out
}

// classifyArrow estimates which of the eight directions the icon in
// the box points to. The crop is normalized to a fixed height, then
// the tip is taken as the foreground pixel farthest from the mask
// centroid and its bearing quantized to a compass octant.
func classifyArrow(img image.Image, box boundingBox) string {
	b := img.Bounds()
	crop := image.Rect(b.Min.X+box.x1, b.Min.Y+box.y1, b.Min.X+box.x2, b.Min.Y+box.y2)

	scale := float64(classifyHeight) / float64(box.height())
	outW := int(float64(box.width())*scale + 0.5)
	if outW < 1 {
		outW = 1
	}
	scaled := image.NewGray(image.Rect(0, 0, outW, classifyHeight))
	xdraw.CatmullRom.Scale(scaled, scaled.Bounds(), img, crop, xdraw.Over, nil)

	threshold := otsuThreshold(grayGrid{w: outW, h: classifyHeight, pix: grayPix(scaled)})

	var sumX, sumY, count float64
	for y := 0; y < classifyHeight; y++ {
		for x := 0; x < outW; x++ {
			if float64(scaled.GrayAt(x, y).Y) < threshold {
				sumX += float64(x)
				sumY += float64(y)
				count++
			}
		}
	}
	if count == 0 {
		return ""
	}
	cx, cy := sumX/count, sumY/count

	var tipX, tipY, tipDist float64
	for y := 0; y < classifyHeight; y++ {
		for x := 0; x < outW; x++ {
			if float64(scaled.GrayAt(x, y).Y) >= threshold {
				continue
			}
			dx, dy := float64(x)-cx, float64(y)-cy
			if d := dx*dx + dy*dy; d > tipDist {
				tipDist = d
				tipX, tipY = dx, dy
			}
		}
	}

	angle := math.Atan2(-tipY, tipX) * 180 / math.Pi
	if angle < 0 {
		angle += 360
	}

	octants := []string{"r", "ru", "u", "lu", "l", "ld", "d", "rd"}
	return octants[int((angle+22.5)/45)%8]
}

func grayPix(img *image.Gray) []float64 {
	b := img.Bounds()
	out := make([]float64, b.Dx()*b.Dy())
	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			out[y*b.Dx()+x] = float64(img.GrayAt(x, y).Y)
		}
	}
	return out
}
