package models

import (
	"context"
	"errors"
	"fmt"
)

// Error codes used in API responses and internal error handling.
const (
	ErrCodeInvalidInput = "INVALID_INPUT"
	ErrCodeBusy         = "SERVICE_BUSY"
	ErrCodeNotFound     = "NOT_FOUND"
	ErrCodeUpstream     = "UPSTREAM_ERROR"
	ErrCodeChallenge    = "CHALLENGE_NOT_RESOLVED"
	ErrCodeCancelled    = "CANCELLED"
	ErrCodeUnauthorized = "UNAUTHORIZED"
	ErrCodeRateLimited  = "RATE_LIMITED"
	ErrCodeInternal     = "INTERNAL_ERROR"
)

// ErrorDetail is the structured error in API responses.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ScrapeError is the internal error type carrying an error code.
// It implements the error interface and supports error wrapping via Unwrap.
type ScrapeError struct {
	Code    string
	Message string
	Err     error // wrapped original error
}

func (e *ScrapeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *ScrapeError) Unwrap() error {
	return e.Err
}

// NewScrapeError creates a new ScrapeError.
func NewScrapeError(code, message string, err error) *ScrapeError {
	return &ScrapeError{Code: code, Message: message, Err: err}
}

// ToDetail converts an internal error to an API-facing ErrorDetail.
func (e *ScrapeError) ToDetail() *ErrorDetail {
	return &ErrorDetail{Code: e.Code, Message: e.Message}
}

// Invalid returns an INVALID_INPUT error.
func Invalid(message string) *ScrapeError {
	return NewScrapeError(ErrCodeInvalidInput, message, nil)
}

// Busy returns a SERVICE_BUSY error.
func Busy(message string) *ScrapeError {
	return NewScrapeError(ErrCodeBusy, message, nil)
}

// NotFound returns a NOT_FOUND error.
func NotFound(message string) *ScrapeError {
	return NewScrapeError(ErrCodeNotFound, message, nil)
}

// Upstream wraps a transient network or parse failure.
func Upstream(message string, err error) *ScrapeError {
	return NewScrapeError(ErrCodeUpstream, message, err)
}

// Cancelled wraps a context cancellation or deadline error.
func Cancelled(err error) *ScrapeError {
	return NewScrapeError(ErrCodeCancelled, "request cancelled", err)
}

// Classify converts an arbitrary error into a ScrapeError. Context
// cancellation and deadline errors become CANCELLED; existing ScrapeErrors
// pass through; everything else is UPSTREAM_ERROR.
func Classify(err error) *ScrapeError {
	var se *ScrapeError
	if errors.As(err, &se) {
		return se
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return Cancelled(err)
	}
	return Upstream("upstream request failed", err)
}

// CodeOf returns the ScrapeError code for err, or ErrCodeInternal when err
// carries no code.
func CodeOf(err error) string {
	var se *ScrapeError
	if errors.As(err, &se) {
		return se.Code
	}
	return ErrCodeInternal
}
