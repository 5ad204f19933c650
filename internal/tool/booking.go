package tool

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"clinic-agent-go/pkg/llm"
)

// bookingTool 通过排班 HTTP API 创建预约。
type bookingTool struct {
	endpoint   string
	httpClient *http.Client
}

// NewBookingTool 创建预约工具。
func NewBookingTool(baseURL string) Tool {
	return &bookingTool{
		endpoint: baseURL + "/api/v1/calendar/book",
		httpClient: &http.Client{
			Timeout: toolRequestTimeout,
		},
	}
}

func (t *bookingTool) Name() string {
	return "book_appointment"
}

func (t *bookingTool) Description() llm.Tool {
	return llm.Tool{
		Type: "function",
		Function: llm.ToolFunction{
			Name:        "book_appointment",
			Description: "Book an appointment with the clinic. Use this when the user wants to confirm a booking with all required information provided.",
			Parameters: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"patient_name": map[string]interface{}{
						"type":        "string",
						"description": "Patient's full name",
					},
					"email": map[string]interface{}{
						"type":        "string",
						"description": "Patient's email address",
					},
					"phone": map[string]interface{}{
						"type":        "string",
						"description": "Patient's phone number",
					},
					"date": map[string]interface{}{
						"type":        "string",
						"description": "Appointment date in YYYY-MM-DD format",
					},
					"time": map[string]interface{}{
						"type":        "string",
						"description": "Appointment time in HH:MM format (24-hour)",
					},
					"appointment_type": map[string]interface{}{
						"type":        "string",
						"enum":        []string{"Consultation", "Follow-up", "Check-up", "Vaccination"},
						"description": "Type of appointment",
					},
					"doctor": map[string]interface{}{
						"type":        "string",
						"description": "Doctor name",
					},
					"notes": map[string]interface{}{
						"type":        "string",
						"description": "Optional notes or special requirements",
					},
				},
				"required": []string{
					"patient_name", "email", "phone", "date",
					"time", "appointment_type", "doctor",
				},
			},
		},
	}
}

// Execute 提交预约请求。参数串原样转发，由服务端做全部校验。
func (t *bookingTool) Execute(ctx context.Context, arguments string) map[string]interface{} {
	if !json.Valid([]byte(arguments)) {
		return map[string]interface{}{
			"success": false,
			"error":   "Error booking appointment: invalid arguments",
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint, bytes.NewBufferString(arguments))
	if err != nil {
		return map[string]interface{}{
			"success": false,
			"error":   fmt.Sprintf("Error booking appointment: %v", err),
		}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return map[string]interface{}{
			"success": false,
			"error":   fmt.Sprintf("Error booking appointment: %v", err),
		}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return map[string]interface{}{
			"success": false,
			"error":   fmt.Sprintf("Error booking appointment: %v", err),
		}
	}

	if resp.StatusCode != http.StatusOK {
		return map[string]interface{}{
			"success": false,
			"error":   fmt.Sprintf("Failed to book appointment: %d", resp.StatusCode),
			"details": string(body),
		}
	}

	var payload map[string]interface{}
	if err := json.Unmarshal(body, &payload); err != nil {
		return map[string]interface{}{
			"success": false,
			"error":   fmt.Sprintf("Error booking appointment: %v", err),
		}
	}
	return payload
}
