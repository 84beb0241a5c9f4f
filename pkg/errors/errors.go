package errors

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotFound indicates a resource was not found
	ErrNotFound = errors.New("resource not found")

	// ErrInvalidInput indicates invalid input parameters
	ErrInvalidInput = errors.New("invalid input")

	// ErrInternal indicates an internal error
	ErrInternal = errors.New("internal error")

	// ErrUnavailable indicates a dependency is unavailable
	ErrUnavailable = errors.New("service unavailable")
)

// Coordination errors

var (
	// ErrInsufficientAgents indicates fewer decisions than the coordinator requires
	ErrInsufficientAgents = errors.New("insufficient agent decisions")

	// ErrInvalidDecision indicates an agent decision outside its value domain
	ErrInvalidDecision = errors.New("invalid agent decision")

	// ErrUnknownMethod indicates an unsupported coordination or allocation method
	ErrUnknownMethod = errors.New("unknown method")

	// ErrUnknownAgent indicates an agent id that has no tracked state
	ErrUnknownAgent = errors.New("unknown agent")
)

// Numerical errors

var (
	// ErrInsufficientHistory indicates too few bars to compute a statistic
	ErrInsufficientHistory = errors.New("insufficient price history")

	// ErrNoCovariance indicates the risk model does not cover the requested symbols
	ErrNoCovariance = errors.New("covariance unavailable")

	// ErrInfeasibleBounds indicates box bounds that cannot satisfy the budget constraint
	ErrInfeasibleBounds = errors.New("infeasible weight bounds")

	// ErrNotConverged indicates the optimizer hit its iteration limit
	ErrNotConverged = errors.New("optimizer did not converge")

	// ErrDegenerate indicates a zero or non-finite portfolio quantity
	ErrDegenerate = errors.New("degenerate portfolio")
)

// Messaging errors

var (
	// ErrMalformedMessage indicates a message that could not be decoded
	ErrMalformedMessage = errors.New("malformed message")
)

// ValidationError represents a validation error with field-specific details
type ValidationError struct {
	Field   string
	Message string
	Value   interface{}
}

// Error implements the error interface
func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error: field '%s': %s (value: %v)", e.Field, e.Message, e.Value)
}

// Unwrap lets callers match validation failures against ErrInvalidInput
func (e *ValidationError) Unwrap() error {
	return ErrInvalidInput
}

// NewValidationError creates a new validation error
func NewValidationError(field, message string, value interface{}) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
		Value:   value,
	}
}

// MultiError wraps multiple errors
type MultiError struct {
	Errors []error
}

// Error lists every collected error, so a failed cycle reports all symbols
// that broke rather than the first one
func (m *MultiError) Error() string {
	switch len(m.Errors) {
	case 0:
		return "no errors"
	case 1:
		return m.Errors[0].Error()
	}
	msgs := make([]string, len(m.Errors))
	for i, err := range m.Errors {
		msgs[i] = err.Error()
	}
	return fmt.Sprintf("%d errors: %s", len(m.Errors), strings.Join(msgs, "; "))
}

// Add adds an error to the list
func (m *MultiError) Add(err error) {
	if err != nil {
		m.Errors = append(m.Errors, err)
	}
}

// HasErrors returns true if there are any errors
func (m *MultiError) HasErrors() bool {
	return len(m.Errors) > 0
}

// ToError returns the MultiError as an error, or nil if no errors
func (m *MultiError) ToError() error {
	if !m.HasErrors() {
		return nil
	}
	return m
}

// Unwrap exposes the collected errors to errors.Is / errors.As
func (m *MultiError) Unwrap() []error {
	return m.Errors
}

// Is checks if err is or wraps target
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target type
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// Wrap wraps an error with context
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with formatted context
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

func New(message string) error {
	return errors.New(message)
}

// Unavailable marks err as a dependency outage. Both ErrUnavailable and err
// stay matchable with Is.
func Unavailable(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", fmt.Sprintf(format, args...), ErrUnavailable, err)
}

// FromPanic converts a recovered panic value into an error
func FromPanic(r interface{}) error {
	if err, ok := r.(error); ok {
		return Wrap(err, "recovered panic")
	}
	return Wrapf(ErrInternal, "recovered panic: %v", r)
}
