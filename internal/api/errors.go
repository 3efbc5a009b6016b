package api

import (
	"encoding/json"
	"net/http"
)

// Error is the failure envelope: {success:false, error:{code, message}}.
// Count is set on sync failures to report orders stored before the failure.
type Error struct {
	StatusCode int    `json:"-"`
	Code       string `json:"code"`
	Message    string `json:"message"`
	Count      *int   `json:"-"`
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) WithCount(n int) *Error {
	e.Count = &n
	return e
}

func (e *Error) ToJSON() []byte {
	body := map[string]interface{}{
		"success": false,
		"error": map[string]interface{}{
			"code":    e.Code,
			"message": e.Message,
		},
	}
	if e.Count != nil {
		body["count"] = *e.Count
	}

	data, _ := json.Marshal(body)
	return data
}

func BadRequest(message string) *Error {
	return &Error{StatusCode: http.StatusBadRequest, Code: "BAD_REQUEST", Message: message}
}

func Unauthorized(message string) *Error {
	if message == "" {
		message = "Authentication required"
	}
	return &Error{StatusCode: http.StatusUnauthorized, Code: "UNAUTHORIZED", Message: message}
}

func NotFound(message string) *Error {
	if message == "" {
		message = "Resource not found"
	}
	return &Error{StatusCode: http.StatusNotFound, Code: "NOT_FOUND", Message: message}
}

func Conflict(message string) *Error {
	return &Error{StatusCode: http.StatusConflict, Code: "SYNC_IN_PROGRESS", Message: message}
}

func BadGateway(code, message string) *Error {
	return &Error{StatusCode: http.StatusBadGateway, Code: code, Message: message}
}

func GatewayTimeout(message string) *Error {
	return &Error{StatusCode: http.StatusGatewayTimeout, Code: "TIMEOUT", Message: message}
}

func InternalError(message string) *Error {
	if message == "" {
		message = "An unexpected error occurred"
	}
	return &Error{StatusCode: http.StatusInternalServerError, Code: "INTERNAL_ERROR", Message: message}
}

func ServiceUnavailable(message string) *Error {
	if message == "" {
		message = "Service temporarily unavailable"
	}
	return &Error{StatusCode: http.StatusServiceUnavailable, Code: "SERVICE_UNAVAILABLE", Message: message}
}
