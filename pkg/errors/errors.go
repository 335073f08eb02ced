// Package errors defines the domain error taxonomy and the RFC 7807
// problem-details responses the HTTP layer emits for it.
package errors

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// Standard error functions
var (
	Is     = errors.Is
	As     = errors.As
	Unwrap = errors.Unwrap
)

// Domain sentinels. Services return these (usually wrapped with
// context via fmt.Errorf and %w); callers branch with errors.Is.
var (
	// ErrRecordNotFound means a referenced asset or order does not exist
	ErrRecordNotFound = errors.New("record not found")
	// ErrInsufficientFunds means the usable balance cannot cover the
	// requested withdrawal or reservation
	ErrInsufficientFunds = errors.New("insufficient funds")
	// ErrIllegalOrderState means the order is not in the state the
	// operation requires (e.g. canceling a non-pending order)
	ErrIllegalOrderState = errors.New("illegal order state")
	// ErrInvalidAmount means a non-positive amount, size or price
	ErrInvalidAmount = errors.New("amount must be positive")
	// ErrValidation means malformed input that is not an amount problem
	ErrValidation = errors.New("validation failed")
	// ErrAlreadyExists means the asset row being provisioned exists
	ErrAlreadyExists = errors.New("record already exists")
	// ErrInvariantViolation means the ledger books no longer satisfy
	// 0 <= usable <= size. Not a user error: the enclosing transaction
	// must abort and the failure surfaces as an internal error.
	ErrInvariantViolation = errors.New("ledger invariant violation")
)

// Problem type URIs
const (
	TypeValidationError   = "https://brokerhub.dev/problems/validation-error"
	TypeNotFound          = "https://brokerhub.dev/problems/not-found"
	TypeInsufficientFunds = "https://brokerhub.dev/problems/insufficient-funds"
	TypeIllegalOrderState = "https://brokerhub.dev/problems/illegal-order-state"
	TypeConflict          = "https://brokerhub.dev/problems/conflict"
	TypeUnauthorized      = "https://brokerhub.dev/problems/unauthorized"
	TypeInternalError     = "https://brokerhub.dev/problems/internal-error"
)

// ProblemDetails is an RFC 7807 response body
type ProblemDetails struct {
	// Type is a URI reference that identifies the problem type
	Type string `json:"type"`
	// Title is a short, human-readable summary of the problem type
	Title string `json:"title"`
	// Status is the HTTP status code
	Status int `json:"status"`
	// Detail is a human-readable explanation specific to this occurrence
	Detail string `json:"detail,omitempty"`
	// Instance is a URI reference that identifies this occurrence
	Instance string `json:"instance,omitempty"`
	// Timestamp records when the problem occurred
	Timestamp time.Time `json:"timestamp"`
	// Errors carries field-level validation messages
	Errors map[string]string `json:"errors,omitempty"`
}

// Error implements the error interface
func (p *ProblemDetails) Error() string {
	return p.Title + ": " + p.Detail
}

// WithFieldErrors returns a copy of the problem with field errors attached
func (p *ProblemDetails) WithFieldErrors(fields map[string]string) *ProblemDetails {
	problem := *p
	problem.Errors = fields
	return &problem
}

// NewProblemDetails creates a problem with the given type and status
func NewProblemDetails(problemType, title string, status int, detail, instance string) *ProblemDetails {
	return &ProblemDetails{
		Type:      problemType,
		Title:     title,
		Status:    status,
		Detail:    detail,
		Instance:  instance,
		Timestamp: time.Now().UTC(),
	}
}

// NewValidationError creates a 400 problem for malformed input
func NewValidationError(detail, instance string) *ProblemDetails {
	return NewProblemDetails(TypeValidationError, "Validation Error", http.StatusBadRequest, detail, instance)
}

// NewNotFoundError creates a 404 problem for a missing record
func NewNotFoundError(detail, instance string) *ProblemDetails {
	return NewProblemDetails(TypeNotFound, "Not Found", http.StatusNotFound, detail, instance)
}

// NewInsufficientFundsError creates a 400 problem for a rejected reserve/withdraw
func NewInsufficientFundsError(detail, instance string) *ProblemDetails {
	return NewProblemDetails(TypeInsufficientFunds, "Insufficient Funds", http.StatusBadRequest, detail, instance)
}

// NewIllegalOrderStateError creates a 400 problem for a terminal-state violation
func NewIllegalOrderStateError(detail, instance string) *ProblemDetails {
	return NewProblemDetails(TypeIllegalOrderState, "Illegal Order State", http.StatusBadRequest, detail, instance)
}

// NewConflictError creates a 409 problem for a duplicate record
func NewConflictError(detail, instance string) *ProblemDetails {
	return NewProblemDetails(TypeConflict, "Conflict", http.StatusConflict, detail, instance)
}

// NewUnauthorizedError creates a 401 problem
func NewUnauthorizedError(detail, instance string) *ProblemDetails {
	return NewProblemDetails(TypeUnauthorized, "Unauthorized", http.StatusUnauthorized, detail, instance)
}

// NewInternalError creates a 500 problem. Detail is intentionally
// generic so storage-layer failures never leak to clients.
func NewInternalError(instance string) *ProblemDetails {
	return NewProblemDetails(TypeInternalError, "Internal Server Error", http.StatusInternalServerError, "an unexpected error occurred", instance)
}

// Respond maps a service error to its problem response and writes it.
// Unrecognized errors surface as generic internal problems.
func Respond(c *gin.Context, err error) {
	instance := c.Request.URL.Path

	var problem *ProblemDetails
	switch {
	case errors.As(err, &problem):
		// already a problem, e.g. built by a validation path
	case errors.Is(err, ErrRecordNotFound):
		problem = NewNotFoundError(err.Error(), instance)
	case errors.Is(err, ErrInsufficientFunds):
		problem = NewInsufficientFundsError(err.Error(), instance)
	case errors.Is(err, ErrIllegalOrderState):
		problem = NewIllegalOrderStateError(err.Error(), instance)
	case errors.Is(err, ErrInvalidAmount), errors.Is(err, ErrValidation):
		problem = NewValidationError(err.Error(), instance)
	case errors.Is(err, ErrAlreadyExists):
		problem = NewConflictError(err.Error(), instance)
	default:
		// includes ErrInvariantViolation: fatal, never user-visible detail
		problem = NewInternalError(instance)
	}

	c.Header("Content-Type", "application/problem+json")
	c.AbortWithStatusJSON(problem.Status, problem)
}
