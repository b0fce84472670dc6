package solvers

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRiskType(t *testing.T) {
	cases := map[string]RiskType{
		"slide":     RiskSlide,
		"gobang":    RiskGobang,
		"icon":      RiskIcon,
		"ai":        RiskAI,
		"invisible": RiskAI,
		" Slide ":   RiskSlide,
	}
	for in, want := range cases {
		got, err := ParseRiskType(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got)
	}
}

func TestParseRiskTypeRejectsUnknown(t *testing.T) {
	for _, in := range []string{"", "click", "slide2", "recaptcha"} {
		_, err := ParseRiskType(in)
		assert.Error(t, err, in)
	}
}

func TestSolveDispatchesGobang(t *testing.T) {
	sol, err := Solve(Input{
		RiskType: RiskGobang,
		Board: [][]int{
			{2, 2, 0, 2, 2},
			{0, 0, 0, 0, 0},
			{0, 0, 2, 0, 0},
			{0, 0, 0, 0, 0},
			{0, 0, 0, 0, 0},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, KindGobang, sol.Kind)
}

func TestSolveAIWithoutHints(t *testing.T) {
	sol, err := SolveAI(Input{RiskType: RiskAI})
	require.NoError(t, err)
	assert.Equal(t, KindAI, sol.Kind)
	assert.Equal(t, 1.0, sol.Confidence)
}

func TestSolveAIUnknownFallback(t *testing.T) {
	_, err := SolveAI(Input{RiskType: RiskAI, AIHints: map[string]string{"mode": "audio"}})
	assert.Error(t, err)
}

func TestSolveAISlideFallback(t *testing.T) {
	piece, background := drawPuzzlePair(t, 42, 5)

	sol, err := SolveAI(Input{
		RiskType: RiskAI,
		AIHints:  map[string]string{"mode": "slide"},
		Slice:    piece, Background: background,
	})
	require.NoError(t, err)
	// The fallback keeps its visual kind so the left offset ends up
	// in the submitted response.
	assert.Equal(t, KindSlide, sol.Kind)
	assert.GreaterOrEqual(t, sol.Confidence, AIConfidenceThreshold)
	assert.InDelta(t, 37.0, sol.Left, 2.0)
}
