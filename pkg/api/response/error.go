package response

import (
	"context"
	"errors"
	"net/http"

	"github.com/goclaw/memkeeper/pkg/memory"
)

// ErrorResponse is the standard error response format.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains error information.
type ErrorDetail struct {
	Code      string         `json:"code"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	RequestID string         `json:"request_id"`
}

// Common error codes
const (
	ErrCodeBadRequest         = "BAD_REQUEST"
	ErrCodeNotFound           = "NOT_FOUND"
	ErrCodeMethodNotAllowed   = "METHOD_NOT_ALLOWED"
	ErrCodeInternalServer     = "INTERNAL_SERVER_ERROR"
	ErrCodeStorage            = "STORAGE_ERROR"
	ErrCodeServiceUnavailable = "SERVICE_UNAVAILABLE"
	ErrCodeGatewayTimeout     = "GATEWAY_TIMEOUT"
)

// ErrInvalidInput marks a malformed query parameter.
var ErrInvalidInput = errors.New("invalid input")

// HTTPStatusFromError maps memory and request errors to HTTP status codes.
func HTTPStatusFromError(err error) int {
	switch {
	case errors.Is(err, memory.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrInvalidInput),
		errors.Is(err, memory.ErrInvalidCategory),
		errors.Is(err, memory.ErrInvalidTier),
		errors.Is(err, memory.ErrInvalidCap):
		return http.StatusBadRequest
	case memory.IsRemoteUnavailable(err):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// ErrorCode returns the error code reported for err.
func ErrorCode(err error) string {
	if memory.IsStorageError(err) {
		return ErrCodeStorage
	}
	return ErrorCodeFromStatus(HTTPStatusFromError(err))
}

// ErrorCodeFromStatus returns an error code for the given HTTP status.
func ErrorCodeFromStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return ErrCodeBadRequest
	case http.StatusNotFound:
		return ErrCodeNotFound
	case http.StatusMethodNotAllowed:
		return ErrCodeMethodNotAllowed
	case http.StatusServiceUnavailable:
		return ErrCodeServiceUnavailable
	case http.StatusGatewayTimeout:
		return ErrCodeGatewayTimeout
	default:
		return ErrCodeInternalServer
	}
}

// remoteRetryAfter is the Retry-After hint, in seconds, sent while the
// remote tier is unavailable.
const remoteRetryAfter = "30"

// HandleError writes the response matching err. Client errors carry the
// error text. Server errors carry a generic message plus the failing
// operation, so file system paths and backend errors stay in the log.
func HandleError(w http.ResponseWriter, err error, requestID string) {
	status := HTTPStatusFromError(err)
	if status < http.StatusInternalServerError {
		Error(w, status, ErrorCode(err), err.Error(), requestID)
		return
	}

	var (
		storageErr *memory.StorageError
		remoteErr  *memory.RemoteUnavailableError
		details    map[string]any
		message    = http.StatusText(status)
	)
	switch {
	case errors.As(err, &remoteErr):
		w.Header().Set("Retry-After", remoteRetryAfter)
		message = "remote memory is unavailable"
		details = map[string]any{"op": remoteErr.Op, "attempts": remoteErr.Attempts}
	case errors.As(err, &storageErr):
		message = "local memory store failed"
		details = map[string]any{"op": storageErr.Op}
	}
	ErrorWithDetails(w, status, ErrorCode(err), message, details, requestID)
}
