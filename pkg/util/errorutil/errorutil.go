package errorutil

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/jackc/pgx/v5"
)

// Error codes shared by services and the HTTP layer.
const (
	CodeValidation          = "VALIDATION_FAILED"
	CodeNotFound            = "NOT_FOUND"
	CodeUnauthorized        = "UNAUTHORIZED"
	CodeForbidden           = "FORBIDDEN"
	CodeConflict            = "CONFLICT"
	CodeInvalidTransition   = "INVALID_TRANSITION"
	CodeDeadlineComputation = "DEADLINE_COMPUTATION"
	CodeDispatchFailure     = "DISPATCH_FAILURE"
	CodeAlreadyAcknowledged = "ALREADY_ACKNOWLEDGED"
	CodeAckExpired          = "ACK_EXPIRED"
	CodeInternal            = "INTERNAL_ERROR"
)

// DomainError standardizes application errors.
type DomainError struct {
	Code       string
	Message    string
	HTTPStatus int
	Details    map[string]any
	Err        error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewDomainError constructs a DomainError.
func NewDomainError(code, message string, status int, details map[string]any) *DomainError {
	return &DomainError{Code: code, Message: message, HTTPStatus: status, Details: details}
}

func NewValidationError(message string, details map[string]any) error {
	return NewDomainError(CodeValidation, message, http.StatusBadRequest, details)
}

func NewNotFound(resource string, details map[string]any) error {
	if details == nil {
		details = map[string]any{}
	}
	return &DomainError{
		Code:       CodeNotFound,
		Message:    fmt.Sprintf("%s not found", resource),
		HTTPStatus: http.StatusNotFound,
		Details:    details,
	}
}

func NewUnauthorized(message string) error {
	return NewDomainError(CodeUnauthorized, message, http.StatusUnauthorized, nil)
}

func NewForbidden(message string) error {
	return NewDomainError(CodeForbidden, message, http.StatusForbidden, nil)
}

func NewConflict(message string, details map[string]any) error {
	return NewDomainError(CodeConflict, message, http.StatusConflict, details)
}

// NewInvalidTransition reports a status change the lifecycle does not allow.
func NewInvalidTransition(from, to string) error {
	return NewDomainError(CodeInvalidTransition,
		fmt.Sprintf("invalid transition %s -> %s", from, to),
		http.StatusConflict,
		map[string]any{"from": from, "to": to})
}

// NewDeadlineComputationError flags a ticket whose deadlines cannot be stamped.
func NewDeadlineComputationError(reason string, err error) error {
	return &DomainError{
		Code:       CodeDeadlineComputation,
		Message:    "deadline computation failed: " + reason,
		HTTPStatus: http.StatusUnprocessableEntity,
		Err:        err,
	}
}

// NewDispatchFailure wraps a transport error after retries are exhausted.
func NewDispatchFailure(alertID string, attempts int, err error) error {
	return &DomainError{
		Code:       CodeDispatchFailure,
		Message:    "alert dispatch failed",
		HTTPStatus: http.StatusBadGateway,
		Details:    map[string]any{"alert_id": alertID, "attempts": attempts},
		Err:        err,
	}
}

func NewAlreadyAcknowledged(alertID string) error {
	return NewDomainError(CodeAlreadyAcknowledged, "alert already acknowledged", http.StatusConflict,
		map[string]any{"alert_id": alertID})
}

func NewAckExpired(alertID string) error {
	return NewDomainError(CodeAckExpired, "acknowledgement window closed", http.StatusGone,
		map[string]any{"alert_id": alertID})
}

func NewInternalError(err error) error {
	return &DomainError{
		Code:       CodeInternal,
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// HasCode reports whether err is a DomainError carrying code.
func HasCode(err error, code string) bool {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Code == code
	}
	return false
}

// ToDomainError converts generic errors to DomainError.
func ToDomainError(err error) *DomainError {
	if err == nil {
		return nil
	}
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr
	}
	if errors.Is(err, pgx.ErrNoRows) {
		if de, ok := NewNotFound("resource", nil).(*DomainError); ok {
			return de
		}
	}
	if de, ok := NewInternalError(err).(*DomainError); ok {
		return de
	}
	return &DomainError{
		Code:       CodeInternal,
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

func MapError(err error) error {
	return ToDomainError(err)
}
