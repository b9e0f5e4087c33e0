package parser

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	v1 "github.com/checkline-lab/checkline/internal/api/v1"
)

func exceptionPayload(className, message string) map[string]any {
	return map[string]any{
		"OccurredOn": "2024-05-01T12:58:00Z",
		"Details": map[string]any{
			"Error": map[string]any{
				"ClassName": className,
				"Message":   message,
			},
		},
	}
}

func TestParseExceptionPayload_Basics(t *testing.T) {
	evt := ParseExceptionPayload(exceptionPayload("ActiveRecord::RecordNotFound", "Couldn't find Check"), "crash-001.json")

	require.Equal(t, v1.SourceRaygun, evt.Source)
	require.Equal(t, v1.CategoryException, evt.Category)
	require.Equal(t, "exception.raised", evt.Type)
	require.Equal(t, "ActiveRecord::RecordNotFound: Couldn't find Check", evt.Title)
	require.Equal(t, v1.SeverityError, evt.Severity)
	require.Equal(t, "crash-001.json", evt.Metadata["source_file"])
	require.Equal(t, "2024-05-01T12:58:00Z", evt.Timestamp.Format(time.RFC3339))
}

func TestParseExceptionPayload_CamelCaseInterop(t *testing.T) {
	evt := ParseExceptionPayload(map[string]any{
		"occurredOn": "2024-05-01T12:58:00Z",
		"details": map[string]any{
			"error": map[string]any{
				"className": "TypeError",
				"message":   "nil is not a hash",
			},
			"machineName": "web-3",
		},
	}, "crash-002.json")

	require.Equal(t, "TypeError: nil is not a hash", evt.Title)
	require.Equal(t, "web-3", evt.Metadata["machine"])
	require.Contains(t, evt.Description, "Machine: web-3")
}

func TestParseExceptionPayload_DetailsFallbackToPayloadRoot(t *testing.T) {
	evt := ParseExceptionPayload(map[string]any{
		"OccurredOn": "2024-05-01T12:58:00Z",
		"Error":      map[string]any{"ClassName": "RuntimeError"},
	}, "crash-003.json")
	require.Equal(t, "RuntimeError", evt.Title)
}

func TestParseExceptionPayload_MissingClassNameDefaults(t *testing.T) {
	evt := ParseExceptionPayload(map[string]any{"OccurredOn": "2024-05-01T12:58:00Z"}, "crash-004.json")
	require.Equal(t, "UnknownError", evt.Title)
}

func TestClassifyException(t *testing.T) {
	tests := []struct {
		name      string
		className string
		status    int
		hasStatus bool
		want      v1.Severity
	}{
		{"fatal marker wins", "NoMemoryError", 404, true, v1.SeverityCritical},
		{"embedded marker", "Worker::FatalTimeout", 0, false, v1.SeverityCritical},
		{"5xx is error", "RuntimeError", 500, true, v1.SeverityError},
		{"4xx is warning", "RuntimeError", 422, true, v1.SeverityWarning},
		{"no status defaults to error", "RuntimeError", 0, false, v1.SeverityError},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, classifyException(tc.className, tc.status, tc.hasStatus))
		})
	}
}

func TestParseExceptionPayload_LongMessageTruncatedInTitle(t *testing.T) {
	long := strings.Repeat("m", 200)
	evt := ParseExceptionPayload(exceptionPayload("RuntimeError", long), "crash-005.json")
	require.True(t, strings.HasSuffix(evt.Title, "…"))
	require.Less(t, len([]rune(evt.Title)), 100)
	// The description keeps the full message.
	require.Contains(t, evt.Description, long)
}

func TestParseExceptionPayload_StackTruncation(t *testing.T) {
	frames := make([]any, 8)
	for i := range frames {
		frames[i] = map[string]any{
			"ClassName":  "ChecksController",
			"MethodName": fmt.Sprintf("step_%d", i),
			"FileName":   "app/controllers/checks_controller.rb",
			"LineNumber": float64(10 + i),
		}
	}
	payload := exceptionPayload("RuntimeError", "boom")
	details := payload["Details"].(map[string]any)
	details["Error"].(map[string]any)["StackTrace"] = frames

	evt := ParseExceptionPayload(payload, "crash-006.json")
	require.Contains(t, evt.Description, "  at ChecksController.step_0 (app/controllers/checks_controller.rb:10)")
	require.Contains(t, evt.Description, "  at ChecksController.step_4 (app/controllers/checks_controller.rb:14)")
	require.NotContains(t, evt.Description, "step_5")
	require.Contains(t, evt.Description, "  ... 3 more frames")
}

func TestParseExceptionPayload_RequestAndResponseSections(t *testing.T) {
	payload := exceptionPayload("RuntimeError", "boom")
	details := payload["Details"].(map[string]any)
	details["Request"] = map[string]any{
		"HttpMethod": "POST",
		"Url":        "https://api.example.com/v1/checks/42/payments",
		"IPAddress":  "10.0.0.9",
	}
	details["Response"] = map[string]any{"StatusCode": float64(500)}
	details["Tags"] = []any{"production", "payments"}
	details["User"] = map[string]any{"Identifier": "ops@example.com"}
	details["Version"] = "3.2.1"

	evt := ParseExceptionPayload(payload, "crash-007.json")
	require.Contains(t, evt.Description, "Request: POST https://api.example.com/v1/checks/42/payments")
	require.Contains(t, evt.Description, "Response Status: 500")
	require.Contains(t, evt.Description, "Tags: production, payments")
	require.Equal(t, "POST", evt.Metadata["request_method"])
	require.Equal(t, "10.0.0.9", evt.Metadata["request_ip"])
	require.Equal(t, 500, evt.Metadata["response_status"])
	require.Equal(t, "ops@example.com", evt.Metadata["user"])
	require.Equal(t, "3.2.1", evt.Metadata["app_version"])
}

func TestParseExceptionPayload_InnerError(t *testing.T) {
	payload := exceptionPayload("Checkout::CaptureFailed", "capture failed")
	details := payload["Details"].(map[string]any)
	details["Error"].(map[string]any)["InnerError"] = map[string]any{
		"ClassName": "Net::ReadTimeout",
		"Message":   "gateway timed out",
	}

	evt := ParseExceptionPayload(payload, "crash-008.json")
	require.Contains(t, evt.Description, "Caused by: Net::ReadTimeout: gateway timed out")
}

func TestParseExceptionPayload_CustomDataSerialized(t *testing.T) {
	payload := exceptionPayload("RuntimeError", "boom")
	details := payload["Details"].(map[string]any)
	details["UserCustomData"] = map[string]any{
		"check_id": "check-42",
		"attempt":  float64(3),
		"gateway":  map[string]any{"name": "stripe"},
	}

	evt := ParseExceptionPayload(payload, "crash-009.json")
	require.Equal(t, "check-42", evt.Metadata["check_id"])
	require.Equal(t, float64(3), evt.Metadata["attempt"])
	require.Equal(t, `{"name":"stripe"}`, evt.Metadata["gateway"])
}

func TestParseExceptionPayload_BadTimestampFallsBackToNow(t *testing.T) {
	before := time.Now().UTC()
	evt := ParseExceptionPayload(map[string]any{
		"OccurredOn": "not a time",
		"Details": map[string]any{
			"Error": map[string]any{"ClassName": "RuntimeError"},
		},
	}, "crash-010.json")
	after := time.Now().UTC()

	require.False(t, evt.Timestamp.Before(before))
	require.False(t, evt.Timestamp.After(after))
}
