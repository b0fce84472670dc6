package core

import (
	"encoding/json"
	"fmt"
)

// SecCode is the provider issued proof that one challenge instance was
// solved. All five fields are populated on success.
type SecCode struct {
	CaptchaID     string `json:"captcha_id"`
	LotNumber     string `json:"lot_number"`
	PassToken     string `json:"pass_token"`
	GenTime       string `json:"gen_time"`
	CaptchaOutput string `json:"captcha_output"`
}

// geetestResponse is the wrapper inside every JSONP body.
type geetestResponse struct {
	Status string          `json:"status"`
	Data   json.RawMessage `json:"data"`
}

// LoadResponse is the session state issued by /load. The optional
// fields depend on the risk type of the challenge.
type LoadResponse struct {
	LotNumber    string    `json:"lot_number"`
	Payload      string    `json:"payload"`
	ProcessToken string    `json:"process_token"`
	Pt           string    `json:"pt"`
	PowDetail    PowDetail `json:"pow_detail"`

	// Slide
	Slice string `json:"slice,omitempty"`
	Bg    string `json:"bg,omitempty"`

	// Gobang board or icon question list
	Ques json.RawMessage `json:"ques,omitempty"`

	// Icon
	Imgs string `json:"imgs,omitempty"`
}

// PowDetail describes the proof-of-work the server expects attached to
// the verify payload.
type PowDetail struct {
	HashFunc string `json:"hashfunc"`
	Version  string `json:"version"`
	Bits     int    `json:"bits"`
	Datetime string `json:"datetime"`
}

// VerifyResponse is the /verify answer. Either SecCode is set, or
// Result carries "continue" with refreshed tokens, or the solve was
// judged wrong.
type VerifyResponse struct {
	SecCode      *SecCode   `json:"seccode"`
	Result       string     `json:"result"`
	Score        FlexString `json:"score"`
	Payload      string     `json:"payload"`
	ProcessToken string     `json:"process_token"`
	LotNumber    string     `json:"lot_number"`
}

// FlexString accepts a JSON string or number. The provider is not
// consistent about which it sends for score-like fields.
type FlexString string

func (f *FlexString) UnmarshalJSON(data []byte) error {
	if len(data) == 0 || string(data) == "null" {
		*f = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = FlexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("flex string: %w", err)
	}
	*f = FlexString(n.String())
	return nil
}

// Constants are the deobfuscated values pulled out of the provider's
// gcaptcha4.js, required to shape the w payload.
type Constants struct {
	Version  string            `json:"version"`
	Mapping  string            `json:"mapping"`
	Abo      map[string]string `json:"abo"`
	DeviceID string            `json:"device_id"`
}
