package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"geekedapi/solvers"
	utils "geekedapi/utils"
	"io"
	"log"
	"net/url"
	"strings"
	"time"

	fhttp "github.com/bogdanfinn/fhttp"
	tls_client "github.com/bogdanfinn/tls-client"
	"github.com/google/uuid"
)

var (
	ApiBase    = "https://gcaptcha4.geevisit.com"
	StaticBase = "https://static.geetest.com"

	ClientTimeoutSeconds = 15
)

func init() {
	log.SetFlags(0)
}

// GeetestTask carries the state of one challenge session, from the
// initial /load handshake to the final /verify submission. One task
// serves exactly one captcha_id and is never shared between solves.
type GeetestTask struct {
	// Manage
	Status string
	ID     string

	// Challenge identity
	CaptchaID string
	RiskType  solvers.RiskType
	Challenge string
	UserInfo  string

	// Dynamic Data
	Client    tls_client.HttpClient
	Constants *Constants
	Entropy   *utils.Entropy
	Exit      ExitProfile

	// API
	ProcessTime float64
	ErrorReason string
}

// NewGeetestTask builds a task with its own TLS client. A fresh
// challenge UUID is minted per task so the provider treats every solve
// as an independent browser session.
func NewGeetestTask(captchaID string, riskType solvers.RiskType, strategy utils.ProxyStrategy, userInfo string, constants *Constants, entropy *utils.Entropy) (*GeetestTask, error) {
	if captchaID == "" {
		return nil, NewError(KindInvalidInput, "captcha_id is required")
	}
	if entropy == nil {
		entropy = utils.SystemEntropy()
	}

	client, err := utils.NewChallengeClient(strategy, ClientTimeoutSeconds)
	if err != nil {
		return nil, WrapError(KindNetworkError, "failed to build tls client", err)
	}

	return &GeetestTask{
		Status:    "created",
		ID:        uuid.New().String(),
		CaptchaID: captchaID,
		RiskType:  riskType,
		Challenge: uuid.New().String(),
		UserInfo:  userInfo,
		Client:    client,
		Constants: constants,
		Entropy:   entropy,
		Exit:      defaultExitProfile,
	}, nil
}

// randomCallback mints the JSONP callback name the widget would use:
// geetest_ followed by a millisecond timestamp plus a random offset.
func (task *GeetestTask) randomCallback() string {
	ts := time.Now().UnixMilli()
	return fmt.Sprintf("geetest_%d", ts+int64(task.Entropy.Intn(10000)))
}

// parseJSONP strips the callback wrapper and unwraps the standard
// {"status": ..., "data": ...} envelope.
func parseJSONP(body, callback string) (json.RawMessage, error) {
	trimmed := strings.TrimSpace(body)
	prefix := callback + "("
	start := strings.Index(trimmed, prefix)
	if start < 0 || !strings.HasSuffix(trimmed, ")") {
		snippet := trimmed
		if len(snippet) > 200 {
			snippet = snippet[:200]
		}
		return nil, NewError(KindProviderRejected, fmt.Sprintf("invalid jsonp response: %s", snippet))
	}
	jsonStr := trimmed[start+len(prefix) : len(trimmed)-1]

	var wrapper geetestResponse
	if err := json.Unmarshal([]byte(jsonStr), &wrapper); err != nil {
		return nil, WrapError(KindProviderRejected, "malformed jsonp body", err)
	}
	if wrapper.Status != "success" {
		return nil, NewError(KindProviderRejected, fmt.Sprintf("provider returned status %q", wrapper.Status))
	}
	return wrapper.Data, nil
}

func (task *GeetestTask) doGet(ctx context.Context, reqURL string, referer string) ([]byte, error) {
	req, err := fhttp.NewRequestWithContext(ctx, "GET", reqURL, nil)
	if err != nil {
		return nil, WrapError(KindNetworkError, "failed to create request", err)
	}

	headers := map[string]string{
		"Accept":             "*/*",
		"Accept-Encoding":    "gzip, deflate, br, zstd",
		"Accept-Language":    "en-US,en;q=0.9",
		"Referer":            referer,
		"Sec-Fetch-Dest":     "script",
		"Sec-Fetch-Mode":     "no-cors",
		"Sec-Fetch-Site":     "cross-site",
		"User-Agent":         "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36",
		"sec-ch-ua":          `"Google Chrome";v="131", "Chromium";v="131", "Not_A Brand";v="24"`,
		"sec-ch-ua-mobile":   "?0",
		"sec-ch-ua-platform": `"Windows"`,
	}
	for key, value := range headers {
		req.Header.Set(key, value)
	}
	req.Header[fhttp.HeaderOrderKey] = []string{
		"accept", "accept-encoding", "accept-language", "referer",
		"sec-ch-ua", "sec-ch-ua-mobile", "sec-ch-ua-platform",
		"sec-fetch-dest", "sec-fetch-mode", "sec-fetch-site", "user-agent",
	}

	resp, err := task.Client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, WrapError(KindTimeout, "request deadline exceeded", err)
		}
		return nil, WrapError(KindNetworkError, "proxy error", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != fhttp.StatusOK {
		return nil, NewError(KindNetworkError, fmt.Sprintf("request returned status code %d", resp.StatusCode))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, WrapError(KindNetworkError, "failed to read response body", err)
	}
	return body, nil
}

// LoadCaptcha performs the /load handshake and returns the challenge
// material for this task's risk type.
func (task *GeetestTask) LoadCaptcha(ctx context.Context) (*LoadResponse, error) {
	callback := task.randomCallback()

	queryParams := url.Values{
		"captcha_id":  {task.CaptchaID},
		"challenge":   {task.Challenge},
		"client_type": {"web"},
		"risk_type":   {task.RiskType.String()},
		"lang":        {"eng"},
		"callback":    {callback},
	}
	if task.UserInfo != "" {
		queryParams.Set("user_info", task.UserInfo)
	}

	body, err := task.doGet(ctx, ApiBase+"/load?"+queryParams.Encode(), "https://www.geetest.com/")
	if err != nil {
		return nil, err
	}

	data, err := parseJSONP(string(body), callback)
	if err != nil {
		return nil, err
	}

	var load LoadResponse
	if err := json.Unmarshal(data, &load); err != nil {
		return nil, WrapError(KindProviderRejected, "malformed load data", err)
	}
	if load.LotNumber == "" {
		return nil, NewError(KindProviderRejected, "load response missing lot_number, captcha_id likely invalid")
	}

	task.Status = "loaded"
	return &load, nil
}

// SubmitCaptcha posts the computed solution to /verify. The caller
// inspects the returned VerifyResponse for seccode or "continue".
func (task *GeetestTask) SubmitCaptcha(ctx context.Context, lotNumber, payload, processToken, w string) (*VerifyResponse, error) {
	callback := task.randomCallback()

	queryParams := url.Values{
		"callback":         {callback},
		"captcha_id":       {task.CaptchaID},
		"client_type":      {"web"},
		"lot_number":       {lotNumber},
		"risk_type":        {task.RiskType.String()},
		"payload":          {payload},
		"process_token":    {processToken},
		"payload_protocol": {"1"},
		"pt":               {"1"},
		"w":                {w},
	}

	body, err := task.doGet(ctx, ApiBase+"/verify?"+queryParams.Encode(), "https://www.geetest.com/")
	if err != nil {
		return nil, err
	}

	data, err := parseJSONP(string(body), callback)
	if err != nil {
		return nil, err
	}

	var verify VerifyResponse
	if err := json.Unmarshal(data, &verify); err != nil {
		return nil, WrapError(KindProviderRejected, "malformed verify data", err)
	}
	return &verify, nil
}

// DownloadImage fetches puzzle material from the static CDN. The path
// comes verbatim from the load response.
func (task *GeetestTask) DownloadImage(ctx context.Context, path string) ([]byte, error) {
	return task.doGet(ctx, StaticBase+"/"+strings.TrimPrefix(path, "/"), "https://www.geetest.com/")
}
