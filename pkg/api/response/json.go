// Package response writes the JSON bodies of the inspection API.
package response

import (
	"encoding/json"
	"net/http"
)

// JSON writes data as the response body. Memory content is private to the
// project, so no response may be cached by intermediaries.
func JSON(w http.ResponseWriter, statusCode int, data any) {
	h := w.Header()
	h.Set("Content-Type", "application/json")
	h.Set("Cache-Control", "no-store")
	h.Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(statusCode)

	if data == nil {
		return
	}
	// the status is already sent, an encode failure cannot be reported
	_ = json.NewEncoder(w).Encode(data)
}

// Error writes the error envelope without details.
func Error(w http.ResponseWriter, statusCode int, code, message string, requestID string) {
	ErrorWithDetails(w, statusCode, code, message, nil, requestID)
}

func ErrorWithDetails(w http.ResponseWriter, statusCode int, code, message string, details map[string]any, requestID string) {
	JSON(w, statusCode, ErrorResponse{Error: ErrorDetail{
		Code:      code,
		Message:   message,
		Details:   details,
		RequestID: requestID,
	}})
}
