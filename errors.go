package policykit

import (
	"errors"
	"fmt"
)

// Sentinel errors for PolicyKit operations.
var (
	// ErrEntityNotFound is returned when an entity key is not registered.
	ErrEntityNotFound = errors.New("policykit: entity not found")

	// ErrConfiguration is returned when descriptor, role, grant or policy
	// data is malformed. Fatal at first boot; a later reload that hits it
	// fails without replacing the active epoch.
	ErrConfiguration = errors.New("policykit: invalid configuration")

	// ErrValidation is returned by ValidationResult.Err when a payload has
	// one or more field-level failures.
	ErrValidation = errors.New("policykit: validation failed")

	// ErrInvalidOperation is returned when an operation is not part of the
	// known operation set, or does not carry a payload where one is expected.
	ErrInvalidOperation = errors.New("policykit: invalid operation")

	// ErrPermissionDenied is the generic denial surfaced at the HTTP
	// boundary. It never carries the internal reason; that goes to audit.
	ErrPermissionDenied = errors.New("policykit: permission denied")

	// ErrNoEntityContext is returned when the request context has no entity
	// attached. Evaluation without an attached entity always denies.
	ErrNoEntityContext = errors.New("policykit: no entity in context")

	// ErrNoUserID is returned when a user ID is not found in context.
	ErrNoUserID = errors.New("policykit: no user ID in context")

	// ErrRoleSourceUnavailable is returned when the persisted role source
	// cannot be read at boot or reload.
	ErrRoleSourceUnavailable = errors.New("policykit: role source unavailable")

	// ErrDatabaseError is returned when a database operation fails.
	ErrDatabaseError = errors.New("policykit: database error")
)

// Error wraps a sentinel error with additional context.
type Error struct {
	Err       error  // Underlying sentinel error
	Message   string // Additional context
	Entity    string // Entity key involved (if applicable)
	Field     string // Field name involved (if applicable)
	Role      string // Role involved (if applicable)
	Resource  string // RLS resource involved (if applicable)
	Operation string // Operation involved (if applicable)
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Err.Error(), e.Message)
	}
	return e.Err.Error()
}

// Unwrap returns the underlying error for errors.Is/As.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is checks if the error matches a target error.
func (e *Error) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewError creates a new Error with context.
func NewError(err error, message string) *Error {
	return &Error{
		Err:     err,
		Message: message,
	}
}

// WithEntity adds the entity key to the error.
func (e *Error) WithEntity(entityKey string) *Error {
	e.Entity = entityKey
	return e
}

// WithField adds the field name to the error.
func (e *Error) WithField(field string) *Error {
	e.Field = field
	return e
}

// WithRole adds role information to the error.
func (e *Error) WithRole(role string) *Error {
	e.Role = role
	return e
}

// WithResource adds the RLS resource to the error.
func (e *Error) WithResource(resource string) *Error {
	e.Resource = resource
	return e
}

// WithOperation adds the operation to the error.
func (e *Error) WithOperation(op Operation) *Error {
	e.Operation = string(op)
	return e
}

// IsNotFound checks if an error is an entity lookup failure.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrEntityNotFound)
}

// IsConfiguration checks if an error is a configuration error.
func IsConfiguration(err error) bool {
	return errors.Is(err, ErrConfiguration)
}

// IsValidation checks if an error carries field-level validation failures.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation)
}

// IsPermissionDenied checks if an error is the generic denial.
func IsPermissionDenied(err error) bool {
	return errors.Is(err, ErrPermissionDenied)
}

// IsRoleSourceUnavailable checks if an error is a role source read failure.
func IsRoleSourceUnavailable(err error) bool {
	return errors.Is(err, ErrRoleSourceUnavailable)
}
