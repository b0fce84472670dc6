package routes

import (
	"context"
	"fmt"
	"log"
	"math"
	"net/http"
	"strings"
	"sync"
	"time"

	"geekedapi/boundary"
	"geekedapi/core"
	"geekedapi/solvers"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

type Request struct {
	TaskID    string `json:"task_id"`
	CaptchaID string `json:"captcha_id"`
	RiskType  string `json:"risk_type"`
	Proxy     string `json:"proxy"`
	UserInfo  string `json:"user_info"`
}

// serviceTask is the pool entry for one async solve.
type serviceTask struct {
	ID          string
	CaptchaID   string
	RiskType    string
	Status      string
	Result      *boundary.Result
	ErrorReason string
	ProcessTime float64
}

var taskPool sync.Map

const (
	Service = "geetest4"

	// Colors
	Reset        = "\033[0m"
	Purple       = "\033[35m"
	DarkGray     = "\033[90m"
	Neutral      = "\033[37m" // Light gray
	LabelColor   = "\033[97m" // White
	SuccessColor = "\033[32m" // Green
	ErrorColor   = "\033[31m" // Red
)

func GetRiskTypes(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"success":    true,
		"risk_types": []string{"slide", "gobang", "icon", "ai"},
		"version":    boundary.Version,
	})
}

// Main Solver
func CreateTaskRoute(c echo.Context) error {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("Recovered from panic: %v", r)
		}
	}()

	contentType := c.Request().Header.Get("Content-Type")
	if !strings.HasPrefix(contentType, "application/json") {
		return c.JSON(http.StatusUnsupportedMediaType, map[string]interface{}{
			"success": false,
			"error":   "Unsupported Content-Type",
			"details": fmt.Sprintf("Expected 'Content-Type: application/json' but got '%s'", contentType),
		})
	}

	var req Request
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]interface{}{"success": false, "error": "invalid request"})
	}

	if req.CaptchaID == "" {
		return c.JSON(http.StatusBadRequest, map[string]interface{}{"success": false, "error": "captcha_id wasn't provided"})
	}
	if _, err := solvers.ParseRiskType(req.RiskType); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]interface{}{"success": false, "error": err.Error()})
	}

	task := &serviceTask{
		ID:        uuid.New().String(),
		CaptchaID: req.CaptchaID,
		RiskType:  req.RiskType,
		Status:    "processing",
	}
	taskPool.Store(task.ID, task)

	// Solve Goroutine
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), core.OverallBudget)
		defer cancel()

		start := time.Now()
		result := boundary.Solve(ctx, boundary.Request{
			CaptchaID: req.CaptchaID,
			RiskType:  req.RiskType,
			Proxy:     req.Proxy,
			UserInfo:  req.UserInfo,
		})
		duration := time.Since(start)

		task.ProcessTime = duration.Seconds()
		success := result.Succeeded()
		if success {
			task.Status = "completed"
			task.Result = result
		} else {
			task.Status = "error"
			task.ErrorReason = result.ErrorMessage
			result.Release()
		}

		logTaskCompletion(task, success, duration)
	}()

	return c.JSON(http.StatusOK, map[string]interface{}{"success": true, "task_id": task.ID})
}

func GetTaskRoute(c echo.Context) error {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("Recovered from panic: %v", r)
		}
	}()

	var req Request
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]interface{}{"success": false, "error": "invalid request"})
	}

	val, exists := taskPool.Load(req.TaskID)
	if !exists {
		return c.JSON(http.StatusBadRequest, map[string]interface{}{"success": false, "error": "invalid task_id"})
	}
	task := val.(*serviceTask)

	switch task.Status {
	case "completed":
		taskPool.Delete(req.TaskID)
		result := task.Result
		response := map[string]interface{}{
			"success": true,
			"status":  task.Status,
			"time":    math.Round(task.ProcessTime*100) / 100,
			"seccode": map[string]string{
				"captcha_id":     result.CaptchaID,
				"lot_number":     result.LotNumber,
				"pass_token":     result.PassToken,
				"gen_time":       result.GenTime,
				"captcha_output": result.CaptchaOutput,
			},
		}
		result.Release()
		return c.JSON(http.StatusOK, response)

	case "error":
		taskPool.Delete(req.TaskID)
		return c.JSON(http.StatusOK, map[string]interface{}{
			"success": false,
			"status":  task.Status,
			"error":   task.ErrorReason,
		})

	case "processing":
		return c.JSON(http.StatusOK, map[string]interface{}{
			"success": false,
			"status":  task.Status,
		})

	default:
		return c.JSON(http.StatusInternalServerError, map[string]interface{}{
			"success": false,
			"error":   "unknown task status",
		})
	}
}

// Utilities
func logTaskCompletion(task *serviceTask, success bool, duration time.Duration) {
	statusColor := SuccessColor
	statusText := "solved"
	if !success {
		statusColor = ErrorColor
		statusText = "failed"
	}

	serviceName := fmt.Sprintf("%s%s%s", Purple, Service, Reset)
	typeLabel := fmt.Sprintf("%sType:%s", LabelColor, Reset)
	typeValue := fmt.Sprintf("%s%s%s", Neutral, task.RiskType, Reset)
	idLabel := fmt.Sprintf("%sCaptcha:%s", LabelColor, Reset)
	idValue := fmt.Sprintf("%s%s%s", Neutral, task.CaptchaID, Reset)
	timeLabel := fmt.Sprintf("%sTime:%s", LabelColor, Reset)
	timeValue := fmt.Sprintf("%s%.2fs%s", Neutral, duration.Seconds(), Reset)
	statusValue := fmt.Sprintf("%s%s%s", statusColor, statusText, Reset)
	separator := fmt.Sprintf("%s|%s", DarkGray, Reset)

	message := strings.Join([]string{
		serviceName,
		separator,
		typeLabel, typeValue,
		separator,
		idLabel, idValue,
		separator,
		timeLabel, timeValue,
		separator,
		statusValue,
	}, " ")

	log.Println(message)
}
