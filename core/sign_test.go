package core

import (
	"context"
	"encoding/json"
	"net/url"
	"strings"
	"testing"

	"geekedapi/solvers"
	utils "geekedapi/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testMapping = `{"(n[13:15]+n[3:5])+.+(n[1:3]+n[26:28])+.+(n[20:27])":"n[13:18]"}`
const testLotNumber = "f4744c44df4541b3be48c5c270ced20b"

func testConstants() *Constants {
	return &Constants{
		Version:  "v1.9.9-test",
		Mapping:  testMapping,
		Abo:      map[string]string{"TYSC": "opMx"},
		DeviceID: "dev-1234",
	}
}

func newTestTask(t *testing.T, seed int64) *GeetestTask {
	t.Helper()
	task, err := NewGeetestTask("captcha-abc", solvers.RiskSlide, utils.Direct, "", testConstants(), utils.NewEntropy(seed))
	require.NoError(t, err)
	return task
}

func TestLotParserMixedQuotes(t *testing.T) {
	_, err := NewLotParser(`{"(n[1:3])":'n[4:6]'}`)
	assert.NoError(t, err)
}

func TestLotParserRejectsGarbage(t *testing.T) {
	_, err := NewLotParser("no pairs here")
	assert.Error(t, err)
}

func TestLotParserGetDict(t *testing.T) {
	parser, err := NewLotParser(testMapping)
	require.NoError(t, err)

	dict := parser.GetDict(testLotNumber)

	// Key groups nest left to right; the innermost key carries the
	// value slice.
	level1, ok := dict["1b344c"].(map[string]interface{})
	require.True(t, ok, "got %#v", dict)
	level2, ok := level1["474ced"].(map[string]interface{})
	require.True(t, ok, "got %#v", level1)
	assert.Equal(t, "1b3be4", level2["c5c270ce"])
}

func TestLotParserShortLotNumber(t *testing.T) {
	parser, err := NewLotParser(testMapping)
	require.NoError(t, err)

	// Slices past the end clamp instead of panicking.
	dict := parser.GetDict("f4744c")
	assert.NotNil(t, dict)
}

func TestEncryptWPlaintext(t *testing.T) {
	for _, pt := range []string{"", "0"} {
		w, err := EncryptW(`{"a":1}`, pt, utils.NewEntropy(1))
		require.NoError(t, err)

		decoded, err := url.QueryUnescape(w)
		require.NoError(t, err)
		assert.Equal(t, `{"a":1}`, decoded)
	}
}

func TestEncryptWVersion1Deterministic(t *testing.T) {
	a, err := EncryptW(`{"a":1}`, "1", utils.NewEntropy(3))
	require.NoError(t, err)
	b, err := EncryptW(`{"a":1}`, "1", utils.NewEntropy(3))
	require.NoError(t, err)

	assert.Equal(t, a, b)
	// AES block output plus the 256 hex chars of the wrapped key.
	assert.Greater(t, len(a), 256)
	for _, c := range a {
		assert.Contains(t, "0123456789abcdef", string(c))
	}
}

func TestEncryptWUnsupportedVersions(t *testing.T) {
	_, err := EncryptW("x", "2", utils.NewEntropy(1))
	assert.Error(t, err)

	_, err = EncryptW("x", "9", utils.NewEntropy(1))
	assert.Error(t, err)
}

func TestGenerateWSlidePayload(t *testing.T) {
	task := newTestTask(t, 21)

	data := &LoadResponse{
		LotNumber: testLotNumber,
		Pt:        "0",
		PowDetail: PowDetail{HashFunc: "md5", Version: "1", Bits: 0, Datetime: "2026-02-02T11:00:00"},
	}
	sol := &solvers.Solution{Kind: solvers.KindSlide, Confidence: 0.9, Left: 37.5}

	w, err := task.GenerateW(context.Background(), data, sol)
	require.NoError(t, err)

	decoded, err := url.QueryUnescape(w)
	require.NoError(t, err)

	var payload map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(decoded), &payload))

	assert.Equal(t, "captcha", payload["geetest"])
	assert.Equal(t, testLotNumber, payload["lot_number"])
	assert.Equal(t, "dev-1234", payload["device_id"])
	assert.Equal(t, float64(-480), payload["timezone_offset"])
	assert.Equal(t, "1426265548", payload["biht"])
	assert.Equal(t, "opMx", payload["TYSC"])
	assert.Contains(t, payload, "1b344c")

	assert.True(t, strings.HasPrefix(payload["pow_msg"].(string), "1|0|md5|2026-02-02T11:00:00|captcha-abc|"+testLotNumber+"||"))
	assert.Len(t, payload["pow_sign"], 32)

	em := payload["em"].(map[string]interface{})
	assert.Equal(t, "11", em["ek"])
	assert.Equal(t, float64(1), em["wd"])

	roe := payload["gee_guard"].(map[string]interface{})["roe"].(map[string]interface{})
	assert.Equal(t, "3", roe["auh"])

	assert.Equal(t, 37.5, payload["setLeft"])
	assert.InDelta(t, 37.5/slideResponseScale+2.0, payload["userresponse"].(float64), 1e-9)
	passtime := payload["passtime"].(float64)
	assert.GreaterOrEqual(t, passtime, 600.0)
	assert.Less(t, passtime, 1200.0)
}

func TestGenerateWGobangPayload(t *testing.T) {
	task := newTestTask(t, 22)
	task.RiskType = solvers.RiskGobang

	data := &LoadResponse{
		LotNumber: testLotNumber,
		Pt:        "0",
		PowDetail: PowDetail{HashFunc: "sha256", Version: "1", Bits: 0, Datetime: "now"},
	}
	sol := &solvers.Solution{Kind: solvers.KindGobang, Confidence: 1.0, Moves: [2][2]int{{4, 1}, {2, 2}}}

	w, err := task.GenerateW(context.Background(), data, sol)
	require.NoError(t, err)

	decoded, err := url.QueryUnescape(w)
	require.NoError(t, err)
	var payload map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(decoded), &payload))

	assert.Equal(t, []interface{}{
		[]interface{}{float64(4), float64(1)},
		[]interface{}{float64(2), float64(2)},
	}, payload["userresponse"])
	assert.NotContains(t, payload, "setLeft")
}

func TestGenerateWContinueRoundOmitsResponse(t *testing.T) {
	task := newTestTask(t, 23)

	data := &LoadResponse{
		LotNumber: testLotNumber,
		Pt:        "0",
		PowDetail: PowDetail{HashFunc: "md5", Version: "1", Bits: 0, Datetime: "now"},
	}

	w, err := task.GenerateW(context.Background(), data, nil)
	require.NoError(t, err)

	decoded, err := url.QueryUnescape(w)
	require.NoError(t, err)
	var payload map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(decoded), &payload))

	assert.NotContains(t, payload, "userresponse")
	assert.NotContains(t, payload, "passtime")
}

func TestGenerateWDeterministicUnderSeed(t *testing.T) {
	data := &LoadResponse{
		LotNumber: testLotNumber,
		Pt:        "1",
		PowDetail: PowDetail{HashFunc: "md5", Version: "1", Bits: 0, Datetime: "now"},
	}
	sol := &solvers.Solution{Kind: solvers.KindSlide, Confidence: 0.9, Left: 41}

	a, err := newTestTask(t, 99).GenerateW(context.Background(), data, sol)
	require.NoError(t, err)
	b, err := newTestTask(t, 99).GenerateW(context.Background(), data, sol)
	require.NoError(t, err)

	assert.Equal(t, a, b)
}
