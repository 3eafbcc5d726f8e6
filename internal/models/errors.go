package models

import (
	"context"
	"errors"
)

// Failure kinds produced by the ingest and export tasks. Producers wrap these with %w.
var (
	ErrTransport         = errors.New("transport error")
	ErrMalformedResponse = errors.New("malformed response")
	ErrPersistence       = errors.New("persistence error")
	ErrExport            = errors.New("export error")
)

// ErrorCategory is a stable label for error classification in logs and metrics.
type ErrorCategory string

const (
	ErrorCategoryTimeout           ErrorCategory = "timeout"
	ErrorCategoryTransport         ErrorCategory = "transport"
	ErrorCategoryMalformedResponse ErrorCategory = "malformed_response"
	ErrorCategoryPersistence       ErrorCategory = "persistence"
	ErrorCategoryExport            ErrorCategory = "export"
	ErrorCategoryUnknown           ErrorCategory = "unknown"
)

// CategorizeError maps an error to a stable ErrorCategory.
// Timeouts are reported separately from other transport failures.
func CategorizeError(err error) ErrorCategory {
	if err == nil {
		return ""
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrorCategoryTimeout
	}
	switch {
	case errors.Is(err, ErrTransport):
		return ErrorCategoryTransport
	case errors.Is(err, ErrMalformedResponse):
		return ErrorCategoryMalformedResponse
	case errors.Is(err, ErrPersistence):
		return ErrorCategoryPersistence
	case errors.Is(err, ErrExport):
		return ErrorCategoryExport
	}
	return ErrorCategoryUnknown
}
