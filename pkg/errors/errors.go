package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Error represents a typed domain error with HTTP awareness. Business-rule
// breaches additionally carry the aggregate and invariant they violated so
// callers can handle them exhaustively without type inspection.
type Error struct {
	Code      string                 `json:"code"`
	Message   string                 `json:"message"`
	Status    int                    `json:"status"`
	Aggregate string                 `json:"aggregate,omitempty"`
	Invariant string                 `json:"invariant,omitempty"`
	Field     string                 `json:"field,omitempty"`
	Details   map[string]interface{} `json:"details,omitempty"`
	Err       error                  `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the wrapped error.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is matches errors by code so sentinel comparisons survive Clone/WithDetails copies.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return e != nil && t != nil && e.Code == t.Code
}

// New creates a new Error instance.
func New(code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message}
}

// Wrap attaches context to an existing error.
func Wrap(err error, code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message, Err: err}
}

// Violation builds an invariant-violation error scoped to an aggregate.
func Violation(code, aggregate, invariant, message string) *Error {
	return &Error{Code: code, Status: http.StatusConflict, Message: message, Aggregate: aggregate, Invariant: invariant}
}

// FieldInvalid builds a validation error for a single malformed input field.
func FieldInvalid(field, message string) *Error {
	return &Error{Code: ErrValidation.Code, Status: ErrValidation.Status, Message: message, Field: field}
}

// NotFoundEntity builds a NOT_FOUND error naming the entity and identifier.
func NotFoundEntity(entity, id string) *Error {
	return &Error{
		Code:    ErrNotFound.Code,
		Status:  ErrNotFound.Status,
		Message: fmt.Sprintf("%s not found", entity),
		Details: map[string]interface{}{"entity": entity, "id": id},
	}
}

// Predefined errors for common scenarios.
var (
	ErrInvalidCredentials = New("INVALID_CREDENTIALS", http.StatusUnauthorized, "invalid email or password")
	ErrInvalidToken       = New("INVALID_TOKEN", http.StatusUnauthorized, "invalid or expired token")
	ErrInactiveAccount    = New("ACCOUNT_INACTIVE", http.StatusForbidden, "account is inactive")
	ErrNotFound           = New("NOT_FOUND", http.StatusNotFound, "resource not found")
	ErrForbidden          = New("FORBIDDEN", http.StatusForbidden, "forbidden")
	ErrUnauthorized       = New("UNAUTHORIZED", http.StatusUnauthorized, "unauthorized")
	ErrConflict           = New("CONFLICT", http.StatusConflict, "conflict")
	ErrPreconditionFailed = New("PRECONDITION_FAILED", http.StatusPreconditionFailed, "precondition failed")
	ErrValidation         = New("VALIDATION_ERROR", http.StatusBadRequest, "validation failed")
	ErrInternal           = New("INTERNAL_ERROR", http.StatusInternalServerError, "internal server error")
	ErrCacheMiss          = New("CACHE_MISS", http.StatusNotFound, "cache miss")
)

// Enrollment and academic-record invariant violations.
var (
	ErrSectionFull         = New("SECTION_FULL", http.StatusConflict, "section is full")
	ErrCapacityExceeded    = New("CAPACITY_EXCEEDED", http.StatusConflict, "section capacity exceeded")
	ErrDuplicateEnrollment = New("DUPLICATE_ENROLLMENT", http.StatusConflict, "student already enrolled in course for term")
	ErrPrerequisiteMissing = New("PREREQUISITE_MISSING", http.StatusConflict, "prerequisite courses not completed")
	ErrScheduleConflict    = New("SCHEDULE_CONFLICT", http.StatusConflict, "schedule conflict detected")
	ErrDeadlinePassed      = New("DEADLINE_PASSED", http.StatusConflict, "enrollment deadline has passed")
	ErrEnrollmentClosed    = New("ENROLLMENT_CLOSED", http.StatusConflict, "section is not open for enrollment")
	ErrWeightOverflow      = New("WEIGHT_OVERFLOW", http.StatusConflict, "assessment weights exceed 100")
	ErrWeightIncomplete    = New("WEIGHT_INCOMPLETE", http.StatusConflict, "assessment weights do not sum to 100")
	ErrGradeMissing        = New("GRADE_MISSING", http.StatusConflict, "assessment grades missing")
	ErrGradesPosted        = New("GRADES_POSTED", http.StatusConflict, "final grades already posted")
	ErrGradesNotEditable   = New("GRADES_NOT_EDITABLE", http.StatusConflict, "grades are locked for this section")
	ErrIllegalTransition   = New("ILLEGAL_TRANSITION", http.StatusConflict, "status transition not allowed")
	ErrNotEligible         = New("NOT_ELIGIBLE", http.StatusConflict, "student is not eligible for graduation")
	ErrAlreadyGraduated    = New("ALREADY_GRADUATED", http.StatusConflict, "graduation record already exists")
)

// FromError normalises any error into an *Error.
func FromError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Wrap(err, ErrInternal.Code, ErrInternal.Status, ErrInternal.Message)
}

// Clone returns a copy of the error allowing for message overrides.
func Clone(err *Error, message string) *Error {
	if err == nil {
		return nil
	}
	clone := *err
	if message != "" {
		clone.Message = message
	}
	return &clone
}

// WithDetails returns a copy of the error carrying structured context
// (missing course codes, conflicting slots, capacity numbers).
func WithDetails(err *Error, details map[string]interface{}) *Error {
	if err == nil {
		return nil
	}
	clone := *err
	clone.Details = details
	return &clone
}
