package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"clinic-agent-go/pkg/llm"
)

const toolRequestTimeout = 15 * time.Second

// AvailabilityTool 通过排班 HTTP API 查询可用时段。
type availabilityTool struct {
	endpoint   string
	httpClient *http.Client
}

// NewAvailabilityTool 创建可用时段查询工具。
func NewAvailabilityTool(baseURL string) Tool {
	return &availabilityTool{
		endpoint: baseURL + "/api/v1/calendar/availability",
		httpClient: &http.Client{
			Timeout: toolRequestTimeout,
		},
	}
}

func (t *availabilityTool) Name() string {
	return "check_availability"
}

func (t *availabilityTool) Description() llm.Tool {
	return llm.Tool{
		Type: "function",
		Function: llm.ToolFunction{
			Name:        "check_availability",
			Description: "Check available appointment slots for a specific date and appointment type. Use this when the user wants to know available times for booking.",
			Parameters: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"date": map[string]interface{}{
						"type":        "string",
						"description": "Date in YYYY-MM-DD format (e.g., 2024-12-15)",
					},
					"appointment_type": map[string]interface{}{
						"type":        "string",
						"enum":        []string{"Consultation", "Follow-up", "Check-up", "Vaccination"},
						"description": "Type of appointment",
					},
					"doctor": map[string]interface{}{
						"type":        "string",
						"description": "Specific doctor name (optional)",
					},
				},
				"required": []string{"date", "appointment_type"},
			},
		},
	}
}

// Execute 查询可用时段。所有失败路径都折叠为带 error 键的负载。
func (t *availabilityTool) Execute(ctx context.Context, arguments string) map[string]interface{} {
	var args struct {
		Date            string `json:"date"`
		AppointmentType string `json:"appointment_type"`
		Doctor          string `json:"doctor"`
	}
	if err := json.Unmarshal([]byte(arguments), &args); err != nil {
		return map[string]interface{}{
			"error": fmt.Sprintf("Error checking availability: invalid arguments: %v", err),
		}
	}

	params := url.Values{}
	params.Set("date", args.Date)
	params.Set("appointment_type", args.AppointmentType)
	if args.Doctor != "" {
		params.Set("doctor", args.Doctor)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return map[string]interface{}{
			"error": fmt.Sprintf("Error checking availability: %v", err),
		}
	}

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return map[string]interface{}{
			"error": fmt.Sprintf("Error checking availability: %v", err),
		}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return map[string]interface{}{
			"error": fmt.Sprintf("Error checking availability: %v", err),
		}
	}

	if resp.StatusCode != http.StatusOK {
		return map[string]interface{}{
			"error":   fmt.Sprintf("Failed to check availability: %d", resp.StatusCode),
			"details": string(body),
		}
	}

	var payload map[string]interface{}
	if err := json.Unmarshal(body, &payload); err != nil {
		return map[string]interface{}{
			"error": fmt.Sprintf("Error checking availability: %v", err),
		}
	}
	return payload
}
