package routes

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func doJSON(t *testing.T, handler echo.HandlerFunc, body string) (int, map[string]interface{}) {
	t.Helper()

	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()

	require.NoError(t, handler(e.NewContext(req, rec)))

	var payload map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	return rec.Code, payload
}

func TestCreateTaskRejectsMissingCaptchaID(t *testing.T) {
	code, payload := doJSON(t, CreateTaskRoute, `{"risk_type":"slide"}`)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, false, payload["success"])
}

func TestCreateTaskRejectsUnknownRiskType(t *testing.T) {
	code, payload := doJSON(t, CreateTaskRoute, `{"captcha_id":"abc","risk_type":"click"}`)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, false, payload["success"])
	assert.Contains(t, payload["error"], "risk_type")
}

func TestCreateTaskRejectsWrongContentType(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader("captcha_id=abc"))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationForm)
	rec := httptest.NewRecorder()

	require.NoError(t, CreateTaskRoute(e.NewContext(req, rec)))
	assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code)
}

func TestGetTaskUnknownID(t *testing.T) {
	code, payload := doJSON(t, GetTaskRoute, `{"task_id":"does-not-exist"}`)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, false, payload["success"])
}

func TestGetTaskProcessing(t *testing.T) {
	task := &serviceTask{ID: "t1", Status: "processing"}
	taskPool.Store(task.ID, task)
	t.Cleanup(func() { taskPool.Delete(task.ID) })

	code, payload := doJSON(t, GetTaskRoute, `{"task_id":"t1"}`)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, false, payload["success"])
	assert.Equal(t, "processing", payload["status"])
}

func TestGetTaskErrorDeliveredOnce(t *testing.T) {
	task := &serviceTask{ID: "t2", Status: "error", ErrorReason: "bad proxy"}
	taskPool.Store(task.ID, task)

	code, payload := doJSON(t, GetTaskRoute, `{"task_id":"t2"}`)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "bad proxy", payload["error"])

	// Delivered results leave the pool.
	code, _ = doJSON(t, GetTaskRoute, `{"task_id":"t2"}`)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestGetRiskTypes(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/getRiskTypes", nil)
	rec := httptest.NewRecorder()

	require.NoError(t, GetRiskTypes(e.NewContext(req, rec)))

	var payload map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	assert.Equal(t, true, payload["success"])
	assert.Len(t, payload["risk_types"], 4)
}
