package errorutil

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/jackc/pgx/v5"
)

// Error codes returned to callers. Each maps to exactly one HTTP status.
const (
	CodeNotFound                 = "NOT_FOUND"
	CodeInvalidTransition        = "INVALID_TRANSITION"
	CodeAlreadyReserved          = "ALREADY_RESERVED"
	CodeAlreadyIssued            = "ALREADY_ISSUED"
	CodePreconditionFailed       = "PRECONDITION_FAILED"
	CodeValidationFailed         = "VALIDATION_FAILED"
	CodeExternalReadFailure      = "EXTERNAL_READ_FAILURE"
	CodeReconciliationInProgress = "RECONCILIATION_IN_PROGRESS"
	CodeUnauthorized             = "UNAUTHORIZED"
	CodeInternalError            = "INTERNAL_ERROR"
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
	return NewDomainError(CodeValidationFailed, message, http.StatusBadRequest, details)
}

func NewNotFound(resource string, details map[string]any) error {
	if details == nil {
		details = map[string]any{}
	}
	return NewDomainError(CodeNotFound, fmt.Sprintf("%s not found", resource), http.StatusNotFound, details)
}

// NewInvalidTransition reports a state machine guard failure. No entity
// is changed when this is returned.
func NewInvalidTransition(from, attempted string, details map[string]any) error {
	if details == nil {
		details = map[string]any{}
	}
	details["current_status"] = from
	details["attempted"] = attempted
	return NewDomainError(CodeInvalidTransition,
		fmt.Sprintf("operation %s not allowed from status %s", attempted, from),
		http.StatusConflict, details)
}

// NewAlreadyReserved reports a lost spare-part allocation race.
func NewAlreadyReserved(partID string) error {
	return NewDomainError(CodeAlreadyReserved, "spare part is not available for reservation",
		http.StatusConflict, map[string]any{"spare_part_id": partID})
}

// NewAlreadyIssued reports a lost loaner allocation race.
func NewAlreadyIssued(loanerID string) error {
	return NewDomainError(CodeAlreadyIssued, "loaner unit is not available",
		http.StatusConflict, map[string]any{"loaner_unit_id": loanerID})
}

func NewPreconditionFailed(message string, details map[string]any) error {
	return NewDomainError(CodePreconditionFailed, message, http.StatusConflict, details)
}

// NewExternalReadFailure wraps a failed or malformed live read-out.
func NewExternalReadFailure(address string, err error) error {
	return &DomainError{
		Code:       CodeExternalReadFailure,
		Message:    "live component read-out failed",
		HTTPStatus: http.StatusBadGateway,
		Details:    map[string]any{"address": address},
		Err:        err,
	}
}

// NewReconciliationInProgress rejects a concurrent reconciliation for
// the same unit.
func NewReconciliationInProgress(unitID string) error {
	return NewDomainError(CodeReconciliationInProgress,
		"a reconciliation is already running for this unit",
		http.StatusConflict, map[string]any{"unit_id": unitID})
}

func NewUnauthorized(message string) error {
	return NewDomainError(CodeUnauthorized, message, http.StatusUnauthorized, nil)
}

func NewInternalError(err error) error {
	return &DomainError{
		Code:       CodeInternalError,
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
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
	return &DomainError{
		Code:       CodeInternalError,
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// MapError normalizes an error into the domain taxonomy.
func MapError(err error) error {
	return ToDomainError(err)
}

// IsCode reports whether err carries the given domain error code.
func IsCode(err error, code string) bool {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Code == code
	}
	return false
}
