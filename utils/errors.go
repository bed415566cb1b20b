package utils

import (
	"errors"
	"fmt"
)

// ErrorKind classifies failures surfaced by the cart core.
type ErrorKind int

const (
	KindNotFound ErrorKind = iota
	KindBusinessRule
	KindInvalidInput
	KindTransient
)

func (k ErrorKind) String() string {
	switch k {
	case KindNotFound:
		return "NOT_FOUND"
	case KindBusinessRule:
		return "BUSINESS_RULE_VIOLATION"
	case KindInvalidInput:
		return "INVALID_INPUT"
	case KindTransient:
		return "TRANSIENT_FAILURE"
	default:
		return "UNKNOWN"
	}
}

// AppError is the typed error returned by every cart operation.
type AppError struct {
	Kind    ErrorKind
	Message string
	Details []string
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func NewNotFound(format string, args ...interface{}) *AppError {
	return &AppError{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

func NewBusinessRule(format string, args ...interface{}) *AppError {
	return &AppError{Kind: KindBusinessRule, Message: fmt.Sprintf(format, args...)}
}

// NewBusinessRuleWithDetails carries diagnostics back to the caller, e.g. a
// rejected sync's invariant report.
func NewBusinessRuleWithDetails(message string, details []string) *AppError {
	return &AppError{Kind: KindBusinessRule, Message: message, Details: details}
}

func NewInvalidInput(message string, details ...string) *AppError {
	return &AppError{Kind: KindInvalidInput, Message: message, Details: details}
}

func NewTransient(err error, format string, args ...interface{}) *AppError {
	return &AppError{Kind: KindTransient, Message: fmt.Sprintf(format, args...), Err: err}
}

// KindOf reports the kind of err. Errors that are not AppErrors are treated
// as transient.
func KindOf(err error) ErrorKind {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindTransient
}

// IsKind reports whether err is an AppError of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var appErr *AppError
	return errors.As(err, &appErr) && appErr.Kind == kind
}

// AsTransient wraps a collaborator failure unless it is already typed.
func AsTransient(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		return err
	}
	return NewTransient(err, format, args...)
}
