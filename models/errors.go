package models

import (
	"errors"
	"fmt"
	"strings"
)

// Error codes used in API responses and internal error handling.
const (
	ErrCodeNetworkFailure   = "NETWORK_FAILURE"
	ErrCodeBlocked          = "BLOCKED"
	ErrCodeTimeout          = "TIMEOUT"
	ErrCodeRenderFailure    = "RENDER_FAILURE"
	ErrCodeSelectorNotFound = "SELECTOR_NOT_FOUND"
	ErrCodeInvalidInput     = "INVALID_INPUT"
	ErrCodeRateLimited      = "RATE_LIMITED"
	ErrCodeUnauthorized     = "UNAUTHORIZED"
	ErrCodeInternal         = "INTERNAL_ERROR"
)

// FetchKind classifies how acquisition failed.
type FetchKind string

const (
	FetchNetworkFailure FetchKind = ErrCodeNetworkFailure
	FetchBlocked        FetchKind = ErrCodeBlocked
	FetchTimeout        FetchKind = ErrCodeTimeout
	FetchRenderFailure  FetchKind = ErrCodeRenderFailure
)

// FetchError is raised when acquisition could not yield any content.
type FetchError struct {
	Kind    FetchKind
	Message string
	Err     error // wrapped original error
}

func (e *FetchError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// NewFetchError creates a new FetchError.
func NewFetchError(kind FetchKind, message string, err error) *FetchError {
	return &FetchError{Kind: kind, Message: message, Err: err}
}

// ExtractionError is raised by a stage that could not read its inputs.
// The orchestrator treats it as a decline.
type ExtractionError struct {
	Code      string
	Selectors []string
	Err       error
}

func (e *ExtractionError) Error() string {
	msg := fmt.Sprintf("%s: none of [%s] matched", e.Code, strings.Join(e.Selectors, ", "))
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ExtractionError) Unwrap() error {
	return e.Err
}

// NewSelectorNotFound creates an ExtractionError for a failed selector wait.
func NewSelectorNotFound(selectors []string, err error) *ExtractionError {
	return &ExtractionError{Code: ErrCodeSelectorNotFound, Selectors: selectors, Err: err}
}

// InputError reports a malformed caller request.
type InputError struct {
	Message string
}

func (e *InputError) Error() string {
	return ErrCodeInvalidInput + ": " + e.Message
}

// ErrorCode returns the API code for err, defaulting to ErrCodeInternal.
func ErrorCode(err error) string {
	var fe *FetchError
	var ie *InputError
	var ee *ExtractionError
	switch {
	case errors.As(err, &ie):
		return ErrCodeInvalidInput
	case errors.As(err, &fe):
		return string(fe.Kind)
	case errors.As(err, &ee):
		return ee.Code
	}
	return ErrCodeInternal
}
