package report

import "fmt"

// ValidationError rejects a request before any upstream work happens.
// Code is a stable machine-readable identifier for API clients.
type ValidationError struct {
	Code    string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func NewValidationError(code, message string) *ValidationError {
	return &ValidationError{Code: code, Message: message}
}

// UpstreamError wraps a failure of the primary data fetch. Enrichment
// failures never produce one; they degrade the record instead.
type UpstreamError struct {
	Service string
	Err     error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("%s service: %v", e.Service, e.Err)
}

func (e *UpstreamError) Unwrap() error { return e.Err }
