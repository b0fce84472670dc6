package solvers

import "fmt"

// SolveAI handles the "ai"/"invisible" risk type. The provider either
// sends no puzzle at all, or falls back to one of the visual puzzles
// and marks the choice in the hint map. Hint-free challenges pass on
// the behavioral signature alone. A fallback solution keeps its
// visual kind so the answer is actually encoded into the submission;
// only the threshold tightens.
func SolveAI(in Input) (Solution, error) {
	mode := in.AIHints["mode"]
	switch mode {
	case "", "none":
		return Solution{Kind: KindAI, Confidence: 1.0}, nil
	case "slide":
		sol, err := SolveSlide(in.Slice, in.Background)
		if err != nil {
			return Solution{}, err
		}
		if sol.Confidence < AIConfidenceThreshold {
			return Solution{}, fmt.Errorf("slide fallback confidence %.3f below %.2f", sol.Confidence, AIConfidenceThreshold)
		}
		return sol, nil
	case "icon":
		sol, err := SolveIcon(in.IconImage, in.Questions)
		if err != nil {
			return Solution{}, err
		}
		if sol.Confidence < AIConfidenceThreshold {
			return Solution{}, fmt.Errorf("icon fallback confidence %.3f below %.2f", sol.Confidence, AIConfidenceThreshold)
		}
		return sol, nil
	default:
		return Solution{}, fmt.Errorf("unknown ai fallback mode %q", mode)
	}
}
