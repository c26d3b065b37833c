package client

import (
	"context"
	"errors"
	"net"
	"strings"

	"github.com/kjstillabower/local-briefing/internal/circuitbreaker"
)

// ErrorCategory is a stable label for metrics and logs.
type ErrorCategory string

const (
	ErrorCategoryTransport   ErrorCategory = "transport"
	ErrorCategoryTimeout     ErrorCategory = "timeout"
	ErrorCategoryParse       ErrorCategory = "parse"
	ErrorCategoryAPI         ErrorCategory = "api"
	ErrorCategoryCircuitOpen ErrorCategory = "circuit_open"
	ErrorCategoryCanceled    ErrorCategory = "canceled"
	ErrorCategoryUnknown     ErrorCategory = "unknown"
)

// CategorizeError maps an upstream error to an ErrorCategory. Returns "" for nil.
func CategorizeError(err error) ErrorCategory {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, circuitbreaker.ErrOpen):
		return ErrorCategoryCircuitOpen
	case errors.Is(err, context.Canceled):
		return ErrorCategoryCanceled
	case isTimeout(err):
		return ErrorCategoryTimeout
	case errors.Is(err, ErrTransport):
		return ErrorCategoryTransport
	case errors.Is(err, ErrParse):
		return ErrorCategoryParse
	case errors.Is(err, ErrAPI):
		return ErrorCategoryAPI
	case strings.Contains(strings.ToLower(err.Error()), "timeout"):
		return ErrorCategoryTimeout
	}
	return ErrorCategoryUnknown
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return false
}
