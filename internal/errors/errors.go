// Package errors provides custom error types for domain-specific errors.
package errors

import (
	"errors"
	"fmt"
)

// Standard sentinel errors
var (
	ErrUpstream         = errors.New("upstream market data failure")
	ErrInsufficientData = errors.New("insufficient data")
	ErrConfigInvalid    = errors.New("invalid configuration")
	ErrInputValidation  = errors.New("input validation failed")
	ErrArtifactNotFound = errors.New("artifact not found")
	ErrUnknownPolicy    = errors.New("unknown strategy policy")
	ErrScannerRunning   = errors.New("scanner is running")
)

// UpstreamError represents a failed call to the market data source.
type UpstreamError struct {
	Op      string
	InstID  string
	Status  int
	Code    string
	Message string
	Err     error
}

func (e *UpstreamError) Error() string {
	msg := fmt.Sprintf("upstream error [%s]", e.Op)
	if e.InstID != "" {
		msg += " " + e.InstID
	}
	if e.Status != 0 {
		msg += fmt.Sprintf(" http %d", e.Status)
	}
	if e.Code != "" {
		msg += fmt.Sprintf(" code %s", e.Code)
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += fmt.Sprintf(": %v", e.Err)
	}
	return msg
}

func (e *UpstreamError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrUpstream, e.Err}
	}
	return []error{ErrUpstream}
}

// NewUpstreamError creates a new UpstreamError.
func NewUpstreamError(op, instID string, status int, code, message string, err error) *UpstreamError {
	return &UpstreamError{
		Op:      op,
		InstID:  instID,
		Status:  status,
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// ValidationError represents a validation error.
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error: %s (%v): %s", e.Field, e.Value, e.Message)
}

func (e *ValidationError) Unwrap() error {
	return ErrInputValidation
}

// NewValidationError creates a new ValidationError.
func NewValidationError(field string, value interface{}, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Value:   value,
		Message: message,
	}
}

// DataError represents a data-related error for one instrument and bar.
type DataError struct {
	InstID  string
	Bar     string
	Message string
	Err     error
}

func (e *DataError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("data error [%s %s]: %s: %v", e.InstID, e.Bar, e.Message, e.Err)
	}
	return fmt.Sprintf("data error [%s %s]: %s", e.InstID, e.Bar, e.Message)
}

func (e *DataError) Unwrap() error {
	return e.Err
}

// NewDataError creates a new DataError.
func NewDataError(instID, bar, message string, err error) *DataError {
	return &DataError{
		InstID:  instID,
		Bar:     bar,
		Message: message,
		Err:     err,
	}
}

// Wrap wraps an error with additional context.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with formatted context.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
