// Package response writes the JSON envelope every API answer uses.
package response

import (
	"encoding/json"
	"net/http"
)

// Codes carried in the envelope next to the HTTP status.
const (
	CodeOK               = "OK"
	CodeCreated          = "CREATED"
	CodeValidation       = "VALIDATION_ERROR"
	CodeUnauthorized     = "UNAUTHORIZED"
	CodeForbidden        = "FORBIDDEN"
	CodeNotFound         = "NOT_FOUND"
	CodeRateLimited      = "RATE_LIMITED"
	CodeQuotaExceeded    = "QUOTA_EXCEEDED"
	CodeProcessingFailed = "PROCESSING_FAILED"
	CodeError            = "ERROR"
)

type Envelope struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Code    string `json:"code"`
	Data    any    `json:"data"`
	Error   *Error `json:"error"`
}

type Error struct {
	Fields map[string]string `json:"fields"`
	Detail any               `json:"detail"`
}

// OK writes a success envelope. A nil data becomes {}.
func OK(w http.ResponseWriter, status int, code, message string, data any) error {
	if data == nil {
		data = struct{}{}
	}
	return write(w, status, Envelope{Success: true, Message: message, Code: code, Data: data})
}

// Fail writes an error envelope. detail may be any JSON-encodable value.
func Fail(w http.ResponseWriter, status int, code, message string, fields map[string]string, detail any) error {
	if fields == nil {
		fields = map[string]string{}
	}
	return write(w, status, Envelope{
		Message: message,
		Code:    code,
		Error:   &Error{Fields: fields, Detail: detail},
	})
}

func write(w http.ResponseWriter, status int, env Envelope) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(env)
}
