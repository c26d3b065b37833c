package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Failure taxonomy shared by every upstream. Callers match with errors.Is.
var (
	// ErrTransport covers connection, DNS, timeout and body-read failures.
	ErrTransport = errors.New("transport error")
	// ErrParse is returned when a 200 response body is not valid JSON for the expected shape.
	ErrParse = errors.New("parse error")
	// ErrAPI covers non-200 responses and payloads missing required fields.
	ErrAPI = errors.New("api error")

	ErrInvalidAPIKey = errors.New("invalid API key")
)

// APIError is a non-200 response. It unwraps to ErrAPI.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API Error: %s. Status Code: %d", e.Message, e.StatusCode)
}

func (e *APIError) Unwrap() error {
	return ErrAPI
}

// Retryable reports whether the status suggests a transient upstream condition.
func (e *APIError) Retryable() bool {
	return e.StatusCode == 429 || e.StatusCode >= 500
}

// IsUpstreamFailure reports whether err says something about upstream health. A 4xx
// other than 429 is a rejected request (unknown city, bad key) and a canceled call was
// abandoned by the caller; neither counts against the upstream.
func IsUpstreamFailure(err error) bool {
	return err != nil && !errors.Is(err, context.Canceled) && !isRejectedRequest(err)
}

func isRejectedRequest(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.StatusCode >= 400 && apiErr.StatusCode < 500 && apiErr.StatusCode != http.StatusTooManyRequests
}

// newAPIError extracts a human-readable message from an error body. OpenWeather and
// ip-api use "message"; ipapi.co uses "reason".
func newAPIError(statusCode int, body []byte) *APIError {
	var payload struct {
		Message string `json:"message"`
		Reason  string `json:"reason"`
	}
	msg := ""
	if err := json.Unmarshal(body, &payload); err == nil {
		msg = strings.TrimSpace(payload.Message)
		if msg == "" {
			msg = strings.TrimSpace(payload.Reason)
		}
	}
	if msg == "" {
		msg = "Unknown error"
	}
	return &APIError{StatusCode: statusCode, Message: msg}
}
