// Package boundary is the external call surface of the solver. It is
// deliberately thin: validate the request, run one orchestration, and
// hand back an owned Result the caller releases exactly once.
package boundary

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"

	"geekedapi/core"
	"geekedapi/solvers"
	"geekedapi/utils"
)

// Version identifies this solver build to embedding frameworks.
const Version = "1.2.0"

// Request describes one challenge to solve. A request is read-only
// once passed to Solve.
type Request struct {
	CaptchaID string `json:"captcha_id"`
	RiskType  string `json:"risk_type"`
	Proxy     string `json:"proxy,omitempty"`
	UserInfo  string `json:"user_info,omitempty"`
}

// Result is the outcome of one solve call. Exactly one of the two
// record shapes is populated: the five success fields with ErrorCode
// zero, or ErrorCode non-zero with ErrorMessage and empty success
// fields.
//
// The caller owns the Result and must call Release exactly once when
// done with it. Releasing twice, or releasing a Result not obtained
// from Solve, is a caller defect and panics.
type Result struct {
	ErrorCode    int    `json:"error_code"`
	ErrorMessage string `json:"error_message,omitempty"`

	CaptchaID     string `json:"captcha_id,omitempty"`
	LotNumber     string `json:"lot_number,omitempty"`
	PassToken     string `json:"pass_token,omitempty"`
	GenTime       string `json:"gen_time,omitempty"`
	CaptchaOutput string `json:"captcha_output,omitempty"`

	released atomic.Bool
}

var resultPool = sync.Pool{
	New: func() interface{} { return new(Result) },
}

func newResult() *Result {
	r := resultPool.Get().(*Result)
	*r = Result{}
	return r
}

// Release returns the Result's storage to the solver. The Result must
// not be touched afterwards.
func (r *Result) Release() {
	if r.released.Swap(true) {
		panic("boundary: Result released twice")
	}
	resultPool.Put(r)
}

// Succeeded reports whether the result carries a seccode.
func (r *Result) Succeeded() bool { return r.ErrorCode == 0 }

// Solve runs one blocking challenge lifecycle. It never panics and
// never returns a partially populated Result; every internal failure
// is folded into a (code, message) pair.
func Solve(ctx context.Context, req Request) *Result {
	result := newResult()

	riskType, err := solvers.ParseRiskType(req.RiskType)
	if err != nil {
		return fail(result, core.NewError(core.KindInvalidInput, err.Error()))
	}
	if req.CaptchaID == "" {
		return fail(result, core.NewError(core.KindInvalidInput, "captcha_id is required"))
	}

	strategy := utils.Direct
	if req.Proxy != "" {
		strategy, err = utils.ParseProxy(req.Proxy)
		if err != nil {
			return fail(result, core.WrapError(core.KindInvalidInput, "invalid proxy", err))
		}
	}

	seccode, err := core.SolveChallenge(ctx, req.CaptchaID, riskType, core.SolveOptions{
		Strategy:     strategy,
		UserInfo:     req.UserInfo,
		DetectLocale: core.LocaleDetectionAvailable(),
	})
	if err != nil {
		return fail(result, err)
	}

	result.CaptchaID = seccode.CaptchaID
	result.LotNumber = seccode.LotNumber
	result.PassToken = seccode.PassToken
	result.GenTime = seccode.GenTime
	result.CaptchaOutput = seccode.CaptchaOutput
	return result
}

func fail(result *Result, err error) *Result {
	result.ErrorCode = core.KindOf(err).Code()
	result.ErrorMessage = core.MessageOf(err)
	return result
}

// SolveJSON is the string-in, string-out variant of Solve for callers
// that prefer a JSON envelope over the typed Result. The returned
// string is plain Go memory with no release obligation.
func SolveJSON(ctx context.Context, reqJSON string) string {
	var req Request
	if err := json.Unmarshal([]byte(reqJSON), &req); err != nil {
		msg := "malformed request json: " + err.Error()
		return marshalEnvelope(map[string]interface{}{
			"success":       false,
			"error":         msg,
			"error_code":    core.KindInvalidInput.Code(),
			"error_message": msg,
		})
	}

	result := Solve(ctx, req)
	defer result.Release()

	if !result.Succeeded() {
		return marshalEnvelope(map[string]interface{}{
			"success":       false,
			"error":         result.ErrorMessage,
			"error_code":    result.ErrorCode,
			"error_message": result.ErrorMessage,
		})
	}

	return marshalEnvelope(map[string]interface{}{
		"success":        true,
		"captcha_id":     result.CaptchaID,
		"lot_number":     result.LotNumber,
		"pass_token":     result.PassToken,
		"gen_time":       result.GenTime,
		"captcha_output": result.CaptchaOutput,
	})
}

func marshalEnvelope(v map[string]interface{}) string {
	out, err := json.Marshal(v)
	if err != nil {
		return `{"success":false,"error_code":7,"error_message":"envelope marshal failed"}`
	}
	return string(out)
}
