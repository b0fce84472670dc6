package core

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"geekedapi/solvers"
	utils "geekedapi/utils"
	"net/url"
	"regexp"
	"strconv"
	"strings"
)

var (
	mappingPairPattern  = regexp.MustCompile(`"([^"]+)":"([^"]+)"`)
	mappingMixedPattern = regexp.MustCompile(`"([^"]+)":'([^']+)'`)
	slicePattern        = regexp.MustCompile(`\[(\d+):(\d+)\]`)
)

// userresponse for slide is the left offset rescaled to the widget's
// coordinate space. The divisor comes from the provider script.
const slideResponseScale = 1.0059466666666665

// LotParser builds the lot-number-derived nested dictionary that the
// provider's obfuscated script mixes into the w payload. The mapping
// string looks like
// {"(n[13:15]+n[3:5])+.+(n[1:3]+n[26:28])+.+(n[20:27])":"n[13:18]"}
// where every n[a:b] is an inclusive slice of the lot number.
type LotParser struct {
	keyGroups   [][][2]int
	valueGroups [][][2]int
}

func NewLotParser(mapping string) (*LotParser, error) {
	caps := mappingPairPattern.FindStringSubmatch(mapping)
	if caps == nil {
		// The script sometimes mixes quote styles around the value.
		caps = mappingMixedPattern.FindStringSubmatch(mapping)
	}
	if caps == nil {
		return nil, NewError(KindEncodingError, fmt.Sprintf("invalid mapping format: %s", mapping))
	}

	return &LotParser{
		keyGroups:   parseSlicePattern(caps[1]),
		valueGroups: parseSlicePattern(caps[2]),
	}, nil
}

// parseSlicePattern splits "(n[13:15]+n[3:5])+.+(n[20:27])" into
// groups separated by "+.+", each group holding concatenated slices.
func parseSlicePattern(pattern string) [][][2]int {
	var result [][][2]int
	for _, part := range strings.Split(pattern, "+.+") {
		var group [][2]int
		for _, m := range slicePattern.FindAllStringSubmatch(part, -1) {
			start, _ := strconv.Atoi(m[1])
			end, _ := strconv.Atoi(m[2])
			group = append(group, [2]int{start, end})
		}
		if len(group) > 0 {
			result = append(result, group)
		}
	}
	return result
}

func buildString(groups [][][2]int, lotNumber string) string {
	out := ""
	for gi, group := range groups {
		if gi > 0 {
			out += "."
		}
		for _, slice := range group {
			start, end := slice[0], slice[1]+1
			if start > len(lotNumber) {
				continue
			}
			if end > len(lotNumber) {
				end = len(lotNumber)
			}
			out += lotNumber[start:end]
		}
	}
	return out
}

// GetDict builds the nested dictionary. Key groups become nesting
// levels; the innermost key maps to the value string.
func (p *LotParser) GetDict(lotNumber string) map[string]interface{} {
	keyStr := buildString(p.keyGroups, lotNumber)
	valueStr := buildString(p.valueGroups, lotNumber)

	result := map[string]interface{}{}
	if keyStr == "" {
		return result
	}

	parts := strings.Split(keyStr, ".")
	current := result
	for i, part := range parts {
		if i == len(parts)-1 {
			current[part] = valueStr
			break
		}
		next, ok := current[part].(map[string]interface{})
		if !ok {
			next = map[string]interface{}{}
			current[part] = next
		}
		current = next
	}
	return result
}

// GenerateW assembles and encrypts the w parameter for one verify
// submission. A nil solution is valid for "continue" rounds and for
// the ai risk type, which carries no user response.
func (task *GeetestTask) GenerateW(ctx context.Context, data *LoadResponse, sol *solvers.Solution) (string, error) {
	lotParser, err := NewLotParser(task.Constants.Mapping)
	if err != nil {
		return "", err
	}

	pow, err := utils.GeneratePow(
		ctx,
		data.LotNumber, task.CaptchaID,
		data.PowDetail.HashFunc, data.PowDetail.Version,
		data.PowDetail.Bits, data.PowDetail.Datetime,
		task.Entropy,
	)
	if err != nil {
		return "", WrapError(KindEncodingError, "pow generation failed", err)
	}

	lang := task.Exit.Lang
	if lang == "" {
		lang = defaultExitProfile.Lang
	}

	payload := map[string]interface{}{
		"geetest":         "captcha",
		"lang":            lang,
		"timezone_offset": task.Exit.TimezoneOffset,
		"ep":              "123",
		"biht":            "1426265548",
		"device_id":       task.Constants.DeviceID,
		"lot_number":      data.LotNumber,
		"pow_msg":         pow.PowMsg,
		"pow_sign":        pow.PowSign,
		"em": map[string]interface{}{
			"cp": 0, "ek": "11", "nt": 0, "ph": 0, "sc": 0, "si": 0, "wd": 1,
		},
		"gee_guard": map[string]interface{}{
			"roe": map[string]interface{}{
				"auh": "3", "aup": "3", "cdc": "3", "egp": "3",
				"res": "3", "rew": "3", "sep": "3", "snh": "3",
			},
		},
	}

	for k, v := range task.Constants.Abo {
		payload[k] = v
	}
	for k, v := range lotParser.GetDict(data.LotNumber) {
		payload[k] = v
	}

	if sol != nil {
		switch sol.Kind {
		case solvers.KindSlide:
			_, passtime := utils.DragTrack(int(sol.Left), task.Entropy)
			payload["passtime"] = passtime
			payload["setLeft"] = sol.Left
			payload["userresponse"] = sol.Left/slideResponseScale + 2.0
		case solvers.KindGobang:
			payload["userresponse"] = [][]int{
				{sol.Moves[0][0], sol.Moves[0][1]},
				{sol.Moves[1][0], sol.Moves[1][1]},
			}
		case solvers.KindIcon:
			payload["passtime"] = utils.ClickPasstime(len(sol.Positions), task.Entropy)
			responses := make([][]float64, len(sol.Positions))
			for i, p := range sol.Positions {
				responses[i] = []float64{p[0], p[1]}
			}
			payload["userresponse"] = responses
		case solvers.KindAI:
			// No user response fields for the invisible flow.
		}
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return "", WrapError(KindEncodingError, "payload marshal failed", err)
	}

	return EncryptW(string(raw), data.Pt, task.Entropy)
}

// EncryptW applies the encryption scheme selected by the load
// response's pt field. "1" is AES-128-CBC under a random session key,
// with that key RSA-wrapped and appended in hex.
func EncryptW(rawInput, pt string, entropy *utils.Entropy) (string, error) {
	if pt == "" || pt == "0" {
		return url.QueryEscape(rawInput), nil
	}

	switch pt {
	case "1":
		randomUID := entropy.RandUID()
		encKey, err := utils.EncryptRSA(randomUID, entropy)
		if err != nil {
			return "", WrapError(KindEncodingError, "rsa key wrap failed", err)
		}
		encInput, err := utils.EncryptAESCBC(rawInput, randomUID)
		if err != nil {
			return "", WrapError(KindEncodingError, "aes encryption failed", err)
		}
		return hex.EncodeToString(encInput) + encKey, nil
	case "2":
		return "", NewError(KindEncodingError, "encryption type 2 (SM2) is not implemented")
	default:
		return "", NewError(KindEncodingError, fmt.Sprintf("unknown encryption type: %s", pt))
	}
}
