package solvers

import (
	"bytes"
	"testing"

	"github.com/fogleman/gg"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// drawPuzzlePair renders a background with a dark notch at gapX and a
// matching piece image whose notch sits at pieceInset.
func drawPuzzlePair(t *testing.T, gapX, pieceInset int) (piece, background []byte) {
	t.Helper()

	bg := gg.NewContext(200, 100)
	bg.SetRGB(1, 1, 1)
	bg.Clear()
	bg.SetRGB(0.1, 0.1, 0.1)
	bg.DrawRectangle(float64(gapX), 25, 40, 40)
	bg.Fill()

	var bgBuf bytes.Buffer
	require.NoError(t, bg.EncodePNG(&bgBuf))

	pc := gg.NewContext(40+2*pieceInset, 40+2*pieceInset)
	pc.SetRGB(1, 1, 1)
	pc.Clear()
	pc.SetRGB(0.1, 0.1, 0.1)
	pc.DrawRectangle(float64(pieceInset), float64(pieceInset), 40, 40)
	pc.Fill()

	var pieceBuf bytes.Buffer
	require.NoError(t, pc.EncodePNG(&pieceBuf))

	return pieceBuf.Bytes(), bgBuf.Bytes()
}

func TestSolveSlideFindsGap(t *testing.T) {
	piece, background := drawPuzzlePair(t, 42, 5)

	sol, err := SolveSlide(piece, background)
	require.NoError(t, err)

	assert.Equal(t, KindSlide, sol.Kind)
	assert.GreaterOrEqual(t, sol.Confidence, SlideConfidenceThreshold)
	// Template origin lands at gapX minus the piece inset.
	assert.InDelta(t, 37.0, sol.Left, 2.0)
}

func TestSolveSlideBlankImagesRejected(t *testing.T) {
	blank := gg.NewContext(60, 60)
	blank.SetRGB(1, 1, 1)
	blank.Clear()
	var blankBuf bytes.Buffer
	require.NoError(t, blank.EncodePNG(&blankBuf))

	bg := gg.NewContext(200, 100)
	bg.SetRGB(1, 1, 1)
	bg.Clear()
	var bgBuf bytes.Buffer
	require.NoError(t, bg.EncodePNG(&bgBuf))

	_, err := SolveSlide(blankBuf.Bytes(), bgBuf.Bytes())
	assert.Error(t, err)
}

func TestSolveSlideRejectsOversizedPiece(t *testing.T) {
	piece, background := drawPuzzlePair(t, 42, 5)

	// Swapped arguments: the "piece" is wider than the "background".
	_, err := SolveSlide(background, piece)
	assert.Error(t, err)
}

func TestSolveSlideRejectsGarbage(t *testing.T) {
	_, err := SolveSlide([]byte("not an image"), []byte("also not an image"))
	assert.Error(t, err)
}

func TestOpaqueLeftMargin(t *testing.T) {
	dc := gg.NewContext(30, 20)
	// Leave the first 7 columns transparent.
	dc.SetRGB(0.2, 0.2, 0.2)
	dc.DrawRectangle(7, 0, 23, 20)
	dc.Fill()

	var buf bytes.Buffer
	require.NoError(t, dc.EncodePNG(&buf))

	assert.Equal(t, 7, opaqueLeftMargin(buf.Bytes(), 30))
}
