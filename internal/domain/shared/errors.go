package shared

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a domain error so callers can decide how to surface it.
type ErrorKind string

const (
	// KindValidation is bad input shape. Nothing was mutated.
	KindValidation ErrorKind = "validation"
	// KindState is an operation that is illegal in the aggregate's current state.
	KindState ErrorKind = "state"
	// KindConsistency is data drift between the ledger and the order.
	KindConsistency ErrorKind = "consistency"
	// KindExternal is a failing downstream dependency (gateway, inventory).
	KindExternal ErrorKind = "external"
	// KindNotFound is a missing aggregate.
	KindNotFound ErrorKind = "not_found"
	// KindConflict is a concurrent modification or uniqueness clash.
	KindConflict ErrorKind = "conflict"
)

// DomainError represents a domain-level error
type DomainError struct {
	Code    string    `json:"code"`
	Message string    `json:"message"`
	Kind    ErrorKind `json:"kind"`
}

// Error implements the error interface
func (e *DomainError) Error() string {
	return e.Message
}

// Is matches domain errors by code, so a formatted error still matches its sentinel.
func (e *DomainError) Is(target error) bool {
	var t *DomainError
	if !errors.As(target, &t) {
		return false
	}
	return e.Code == t.Code
}

// NewDomainError creates a new domain error. Kind defaults to state.
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Kind:    KindState,
	}
}

// NewValidationError creates a validation error
func NewValidationError(code, format string, args ...any) *DomainError {
	return &DomainError{Code: code, Message: fmt.Sprintf(format, args...), Kind: KindValidation}
}

// NewStateError creates a state error
func NewStateError(code, format string, args ...any) *DomainError {
	return &DomainError{Code: code, Message: fmt.Sprintf(format, args...), Kind: KindState}
}

// NewConsistencyError creates a consistency error
func NewConsistencyError(code, format string, args ...any) *DomainError {
	return &DomainError{Code: code, Message: fmt.Sprintf(format, args...), Kind: KindConsistency}
}

// NewExternalError creates an external-dependency error
func NewExternalError(code, format string, args ...any) *DomainError {
	return &DomainError{Code: code, Message: fmt.Sprintf(format, args...), Kind: KindExternal}
}

// KindOf returns the kind of err, or "" if err is not a DomainError.
func KindOf(err error) ErrorKind {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Kind
	}
	return ""
}

// Common domain errors
var (
	ErrNotFound            = &DomainError{Code: "NOT_FOUND", Message: "Resource not found", Kind: KindNotFound}
	ErrAlreadyExists       = &DomainError{Code: "ALREADY_EXISTS", Message: "Resource already exists", Kind: KindConflict}
	ErrInvalidInput        = &DomainError{Code: "INVALID_INPUT", Message: "Invalid input provided", Kind: KindValidation}
	ErrConcurrencyConflict = &DomainError{Code: "CONCURRENCY_CONFLICT", Message: "Resource was modified by another process", Kind: KindConflict}
	ErrUnauthorized        = &DomainError{Code: "UNAUTHORIZED", Message: "Not authorized to perform this action", Kind: KindValidation}
	ErrForbidden           = &DomainError{Code: "FORBIDDEN", Message: "Access to this resource is forbidden", Kind: KindValidation}
	ErrInvalidState        = &DomainError{Code: "INVALID_STATE", Message: "Operation not allowed in current state", Kind: KindState}
)
