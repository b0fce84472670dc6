package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"geekedapi/solvers"
	utils "geekedapi/utils"
	"sync"
	"time"
)

// Retry and timeout policy for one solve call. The call always
// returns: attempts are capped, each attempt runs under its own
// deadline, and the whole orchestration runs under an overall budget.
const (
	MaxAttempts       = 3
	MaxContinueRounds = 10
	AttemptTimeout    = 15 * time.Second
	OverallBudget     = 45 * time.Second
)

// SolveState tracks where one orchestration run currently is. States
// only move forward within an attempt; a retry starts a fresh attempt
// back at StateAcquiring.
type SolveState int

const (
	StateIdle SolveState = iota
	StateAcquiring
	StateSolving
	StateEncoding
	StateSubmitting
	StateValidating
	StateSucceeded
	StateFailed
)

func (s SolveState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAcquiring:
		return "acquiring"
	case StateSolving:
		return "solving"
	case StateEncoding:
		return "encoding"
	case StateSubmitting:
		return "submitting"
	case StateValidating:
		return "validating"
	case StateSucceeded:
		return "succeeded"
	case StateFailed:
		return "failed"
	}
	return "unknown"
}

// SolveOptions carries the optional knobs of one solve call. The zero
// value means direct connection, system entropy and live constants.
type SolveOptions struct {
	Strategy utils.ProxyStrategy
	UserInfo string

	// Entropy pins all randomness for reproducible output.
	Entropy *utils.Entropy

	// Constants overrides the deobfuscated script constants.
	Constants *Constants

	// DetectLocale resolves the proxy exit locale for the payload.
	DetectLocale bool
}

var (
	deobOnce sync.Once
	deob     *Deobfuscator
	deobErr  error
)

func sharedDeobfuscator() (*Deobfuscator, error) {
	deobOnce.Do(func() {
		deob, deobErr = NewDeobfuscator()
	})
	return deob, deobErr
}

// SolveChallenge runs the full lifecycle for one captcha_id and
// returns the provider's seccode. Every failure comes back as a
// classified *Error; nothing panics across this boundary.
func SolveChallenge(ctx context.Context, captchaID string, riskType solvers.RiskType, opts SolveOptions) (*SecCode, error) {
	if captchaID == "" {
		return nil, NewError(KindInvalidInput, "captcha_id is required")
	}

	ctx, cancel := context.WithTimeout(ctx, OverallBudget)
	defer cancel()

	constants := opts.Constants
	if constants == nil {
		d, err := sharedDeobfuscator()
		if err != nil {
			return nil, err
		}
		constants, err = d.GetConstants(ctx)
		if err != nil {
			return nil, err
		}
	}

	var lastErr error
	for attempt := 1; attempt <= MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, WrapError(KindTimeout, "overall budget exceeded", err)
		}

		seccode, err := runAttempt(ctx, captchaID, riskType, constants, opts)
		if err == nil {
			return seccode, nil
		}
		lastErr = err

		// Input and encoder defects never improve on retry. A timed
		// out attempt still retries while overall budget remains.
		switch KindOf(err) {
		case KindInvalidInput, KindEncodingError:
			return nil, err
		}
	}

	switch KindOf(lastErr) {
	case KindPuzzleUnsolvable, KindValidationFailed:
		return nil, lastErr
	default:
		return nil, WrapError(KindOf(lastErr), fmt.Sprintf("all %d attempts failed", MaxAttempts), lastErr)
	}
}

// runAttempt drives one pass of the state machine against a fresh
// challenge session.
func runAttempt(ctx context.Context, captchaID string, riskType solvers.RiskType, constants *Constants, opts SolveOptions) (*SecCode, error) {
	ctx, cancel := context.WithTimeout(ctx, AttemptTimeout)
	defer cancel()

	state := StateAcquiring

	task, err := NewGeetestTask(captchaID, riskType, opts.Strategy, opts.UserInfo, constants, opts.Entropy)
	if err != nil {
		return nil, err
	}
	if opts.DetectLocale {
		task.Exit = task.DetectExitProfile(ctx)
	}

	started := time.Now()
	data, err := task.LoadCaptcha(ctx)
	if err != nil {
		return nil, attemptError(ctx, state, err)
	}

	state = StateSolving
	task.Status = state.String()
	solution, err := task.solvePuzzle(ctx, data)
	if err != nil {
		return nil, attemptError(ctx, state, err)
	}

	state = StateEncoding
	task.Status = state.String()
	w, err := task.GenerateW(ctx, data, solution)
	if err != nil {
		return nil, attemptError(ctx, state, err)
	}

	state = StateSubmitting
	task.Status = state.String()

	lotNumber := data.LotNumber
	payload := data.Payload
	processToken := data.ProcessToken

	for round := 0; round < MaxContinueRounds; round++ {
		verify, err := task.SubmitCaptcha(ctx, lotNumber, payload, processToken, w)
		if err != nil {
			return nil, attemptError(ctx, state, err)
		}

		state = StateValidating
		if verify.SecCode != nil {
			state = StateSucceeded
			task.Status = state.String()
			task.ProcessTime = time.Since(started).Seconds()
			sec := *verify.SecCode
			sec.CaptchaID = captchaID
			return &sec, nil
		}

		if verify.Result == "continue" {
			if verify.Payload != "" {
				payload = verify.Payload
			}
			if verify.ProcessToken != "" {
				processToken = verify.ProcessToken
			}
			if verify.LotNumber != "" {
				lotNumber = verify.LotNumber
			}
			// A continue round wants a fresh signature, no solution.
			w, err = task.GenerateW(ctx, data, nil)
			if err != nil {
				return nil, attemptError(ctx, StateEncoding, err)
			}
			state = StateSubmitting
			continue
		}

		msg := verify.Result
		if msg == "" {
			msg = "provider rejected the solution"
		}
		task.ErrorReason = msg
		return nil, NewError(KindValidationFailed, msg)
	}

	return nil, NewError(KindValidationFailed, fmt.Sprintf("still unresolved after %d continue rounds", MaxContinueRounds))
}

// attemptError reclassifies a step failure, preferring Timeout when
// the attempt deadline is what actually killed the step.
func attemptError(ctx context.Context, state SolveState, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) && KindOf(err) != KindTimeout {
		return WrapError(KindTimeout, fmt.Sprintf("deadline exceeded while %s", state), err)
	}
	return err
}

// solvePuzzle gathers the puzzle material for this risk type and runs
// the matching strategy. Image downloads fan out; the solvers
// themselves are pure CPU work.
func (task *GeetestTask) solvePuzzle(ctx context.Context, data *LoadResponse) (*solvers.Solution, error) {
	in := solvers.Input{RiskType: task.RiskType}

	switch task.RiskType {
	case solvers.RiskSlide:
		if data.Slice == "" || data.Bg == "" {
			return nil, NewError(KindProviderRejected, "load response missing slide image paths")
		}
		var wg sync.WaitGroup
		var sliceErr, bgErr error
		wg.Add(2)
		go func() {
			defer wg.Done()
			in.Slice, sliceErr = task.DownloadImage(ctx, data.Slice)
		}()
		go func() {
			defer wg.Done()
			in.Background, bgErr = task.DownloadImage(ctx, data.Bg)
		}()
		wg.Wait()
		if sliceErr != nil {
			return nil, sliceErr
		}
		if bgErr != nil {
			return nil, bgErr
		}

	case solvers.RiskGobang:
		if len(data.Ques) == 0 {
			return nil, NewError(KindProviderRejected, "load response missing gobang board")
		}
		if err := json.Unmarshal(data.Ques, &in.Board); err != nil {
			return nil, WrapError(KindProviderRejected, "malformed gobang board", err)
		}

	case solvers.RiskIcon:
		if data.Imgs == "" || len(data.Ques) == 0 {
			return nil, NewError(KindProviderRejected, "load response missing icon material")
		}
		if err := json.Unmarshal(data.Ques, &in.Questions); err != nil {
			return nil, WrapError(KindProviderRejected, "malformed icon question list", err)
		}
		img, err := task.DownloadImage(ctx, data.Imgs)
		if err != nil {
			return nil, err
		}
		in.IconImage = img

	case solvers.RiskAI:
		// The adaptive flow occasionally falls back to a visual
		// puzzle; the load response shape tells us which.
		in.AIHints = map[string]string{}
		switch {
		case data.Slice != "" && data.Bg != "":
			in.AIHints["mode"] = "slide"
			var wg sync.WaitGroup
			var sliceErr, bgErr error
			wg.Add(2)
			go func() {
				defer wg.Done()
				in.Slice, sliceErr = task.DownloadImage(ctx, data.Slice)
			}()
			go func() {
				defer wg.Done()
				in.Background, bgErr = task.DownloadImage(ctx, data.Bg)
			}()
			wg.Wait()
			if sliceErr != nil {
				return nil, sliceErr
			}
			if bgErr != nil {
				return nil, bgErr
			}
		case data.Imgs != "" && len(data.Ques) > 0:
			in.AIHints["mode"] = "icon"
			if err := json.Unmarshal(data.Ques, &in.Questions); err != nil {
				return nil, WrapError(KindProviderRejected, "malformed icon question list", err)
			}
			img, err := task.DownloadImage(ctx, data.Imgs)
			if err != nil {
				return nil, err
			}
			in.IconImage = img
		}

	default:
		return nil, NewError(KindInvalidInput, fmt.Sprintf("unrecognized risk type %q", task.RiskType))
	}

	sol, err := solvers.Solve(in)
	if err != nil {
		return nil, WrapError(KindPuzzleUnsolvable, "solver failed", err)
	}

	// The widget never lands on a pixel-exact integer.
	if sol.Kind == solvers.KindSlide {
		sol.Left += task.Entropy.Float64() * 0.5
	}
	return &sol, nil
}
