// Package solvers holds the per-risk-type puzzle strategies. Every
// strategy is a pure function from challenge material to a raw
// solution with a confidence score; nothing here touches the network.
package solvers

import (
	"fmt"
	"strings"
)

// RiskType is the challenge modality. The set is closed; the provider
// ships exactly these four.
type RiskType string

const (
	RiskSlide  RiskType = "slide"
	RiskGobang RiskType = "gobang"
	RiskIcon   RiskType = "icon"
	RiskAI     RiskType = "ai"
)

// ParseRiskType validates the wire form of a risk type. "invisible"
// is accepted as an alias for ai, matching provider terminology.
func ParseRiskType(s string) (RiskType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "slide":
		return RiskSlide, nil
	case "gobang":
		return RiskGobang, nil
	case "icon":
		return RiskIcon, nil
	case "ai", "invisible":
		return RiskAI, nil
	default:
		return "", fmt.Errorf("invalid risk_type %q, valid values: slide, gobang, icon, ai", s)
	}
}

func (r RiskType) String() string { return string(r) }

// Confidence gates. A solution below the active threshold is not
// submitted; the orchestrator re-acquires a fresh challenge instead.
const (
	SlideConfidenceThreshold = 0.25
	IconConfidenceThreshold  = 0.30
	AIConfidenceThreshold    = 0.40
)

// Input is the puzzle material extracted from one challenge session.
// Only the fields for the active risk type are set.
type Input struct {
	RiskType RiskType

	// Slide
	Slice      []byte
	Background []byte

	// Gobang
	Board [][]int

	// Icon
	IconImage []byte
	Questions []string

	// AI adaptive hints issued by the provider.
	AIHints map[string]string
}

// Kind tags the variant carried by a Solution.
type Kind int

const (
	KindSlide Kind = iota
	KindGobang
	KindIcon
	KindAI
)

// Solution is the raw, unencoded answer for one challenge. Exactly
// one variant's fields are meaningful, selected by Kind.
type Solution struct {
	Kind       Kind
	Confidence float64

	// KindSlide: left edge of the gap in background pixels.
	Left float64

	// KindGobang: [remove_row, remove_col], [fill_row, fill_col].
	Moves [2][2]int

	// KindIcon: click coordinates in answer order.
	Positions [][2]float64
}

// Solve dispatches to the strategy for the input's risk type.
func Solve(in Input) (Solution, error) {
	switch in.RiskType {
	case RiskSlide:
		return SolveSlide(in.Slice, in.Background)
	case RiskGobang:
		return SolveGobang(in.Board)
	case RiskIcon:
		return SolveIcon(in.IconImage, in.Questions)
	case RiskAI:
		return SolveAI(in)
	default:
		return Solution{}, fmt.Errorf("no strategy for risk type %q", in.RiskType)
	}
}
