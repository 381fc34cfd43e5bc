package dto

import (
	"errors"
	"net/http"

	"github.com/invitely/backend/internal/domain/shared"
)

// Error codes owned by the HTTP layer. Domain errors keep their own code.
const (
	ErrCodeInternal            = "INTERNAL_ERROR"
	ErrCodeValidation          = "VALIDATION_ERROR"
	ErrCodeBadRequest          = "BAD_REQUEST"
	ErrCodeUnauthorized        = "ERR_UNAUTHORIZED"
	ErrCodeForbidden           = "ERR_FORBIDDEN"
	ErrCodeNotFound            = "NOT_FOUND"
	ErrCodeGatewayUnavailable  = "GATEWAY_UNAVAILABLE"
	ErrCodeInvalidSignature    = "INVALID_SIGNATURE"
	ErrCodeConcurrencyConflict = "CONCURRENCY_CONFLICT"
)

var kindStatus = map[shared.ErrorKind]int{
	shared.KindValidation:  http.StatusBadRequest,
	shared.KindNotFound:    http.StatusNotFound,
	shared.KindState:       http.StatusUnprocessableEntity,
	shared.KindConflict:    http.StatusConflict,
	shared.KindExternal:    http.StatusBadGateway,
	shared.KindConsistency: http.StatusInternalServerError,
}

// StatusForKind returns the HTTP status of a domain error kind
func StatusForKind(kind shared.ErrorKind) int {
	if status, ok := kindStatus[kind]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// FromError maps err to a status and the error info shown to the client.
// Anything that is not a DomainError is reported as an opaque 500.
func FromError(err error) (int, ErrorInfo) {
	var de *shared.DomainError
	if errors.As(err, &de) {
		// Consistency errors describe internal drift; keep the code, hide the detail.
		if de.Kind == shared.KindConsistency {
			return StatusForKind(de.Kind), ErrorInfo{Code: de.Code, Message: "Order and payment ledger are out of sync"}
		}
		return StatusForKind(de.Kind), ErrorInfo{Code: de.Code, Message: de.Message}
	}
	return http.StatusInternalServerError, ErrorInfo{Code: ErrCodeInternal, Message: "An unexpected error occurred"}
}
