// Package services implements step topology, flow definitions, the form review
// state machine and the audit queries on top of the persistence gateway.
package services

import (
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/dukex/reviewflow/pkg/persistence"
	"github.com/moogar0880/problems"
)

// Error kinds returned by every service operation.
var (
	ErrNotFound             = errors.New("not found")
	ErrDuplicateName        = errors.New("duplicate name")
	ErrValidation           = errors.New("validation failed")
	ErrUnauthorizedReviewer = errors.New("unauthorized reviewer")
	ErrStepNotEmpty         = errors.New("step not empty")
	ErrConcurrency          = errors.New("concurrent modification")
	ErrEmptyFlow            = errors.New("empty flow")
	ErrNotRestorable        = errors.New("not restorable")
)

// Stable error codes.
const (
	CodeNotFound             = "NOT_FOUND"
	CodeDuplicateName        = "DUPLICATE_NAME"
	CodeValidation           = "VALIDATION_FAILED"
	CodeUnauthorizedReviewer = "UNAUTHORIZED_REVIEWER"
	CodeStepNotEmpty         = "STEP_NOT_EMPTY"
	CodeConcurrency          = "CONCURRENT_MODIFICATION"
	CodeEmptyFlow            = "EMPTY_FLOW"
	CodeNotRestorable        = "NOT_RESTORABLE"
	CodeInternal             = "INTERNAL"
)

type errorKind struct {
	err     error
	code    string
	status  int
	message string
}

var errorKinds = []errorKind{
	{ErrNotFound, CodeNotFound, http.StatusNotFound, "The requested item does not exist."},
	{ErrDuplicateName, CodeDuplicateName, http.StatusConflict, "An item with this name already exists."},
	{ErrValidation, CodeValidation, http.StatusBadRequest, "The request is invalid."},
	{ErrUnauthorizedReviewer, CodeUnauthorizedReviewer, http.StatusForbidden, "You are not allowed to act on this item."},
	{ErrStepNotEmpty, CodeStepNotEmpty, http.StatusConflict, "The step still has reviewers assigned. Move them first."},
	{ErrConcurrency, CodeConcurrency, http.StatusConflict, "The item was changed by someone else. Reload and try again."},
	{ErrEmptyFlow, CodeEmptyFlow, http.StatusUnprocessableEntity, "The flow has no steps."},
	{ErrNotRestorable, CodeNotRestorable, http.StatusConflict, "Deleted items of this kind cannot be restored."},
}

const internalMessage = "Something went wrong."

// ServiceError wraps service-level errors with additional context.
type ServiceError struct {
	Op      string            // Operation name
	Code    string            // Stable error code
	Message string            // Human-readable message
	Fields  map[string]string // Offending input fields, for validation errors
	Err     error             // Underlying error
}

func (e *ServiceError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}

	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

func (e *ServiceError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

func codeOf(kind error) string {
	for _, k := range errorKinds {
		if k.err == kind {
			return k.code
		}
	}

	return CodeInternal
}

// newError builds a ServiceError of the given kind.
func newError(op string, kind error, message string) *ServiceError {
	return &ServiceError{Op: op, Code: codeOf(kind), Message: message, Err: kind}
}

// NewValidationError creates a validation error listing the offending fields.
func NewValidationError(op, message string, fields map[string]string) *ServiceError {
	if message == "" && len(fields) > 0 {
		keys := make([]string, 0, len(fields))
		for key := range fields {
			keys = append(keys, key)
		}

		sort.Strings(keys)

		parts := make([]string, 0, len(keys))
		for _, key := range keys {
			parts = append(parts, key+": "+fields[key])
		}

		message = strings.Join(parts, "; ")
	}

	return &ServiceError{Op: op, Code: CodeValidation, Message: message, Fields: fields, Err: ErrValidation}
}

func notFound(op, entity, id string) *ServiceError {
	return newError(op, ErrNotFound, fmt.Sprintf("%s %s not found", entity, id))
}

// wrapError passes ServiceErrors through and maps persistence conflicts to
// their service kinds. Anything else is an infrastructure failure.
func wrapError(op string, err error) error {
	if err == nil {
		return nil
	}

	var serviceErr *ServiceError
	if errors.As(err, &serviceErr) {
		return err
	}

	switch {
	case persistence.IsStaleWrite(err):
		return &ServiceError{Op: op, Code: CodeConcurrency, Message: "stale state", Err: fmt.Errorf("%w: %w", ErrConcurrency, err)}
	case persistence.IsDuplicateKey(err):
		return &ServiceError{Op: op, Code: CodeDuplicateName, Message: "name already in use", Err: fmt.Errorf("%w: %w", ErrDuplicateName, err)}
	default:
		return fmt.Errorf("%s: %w", op, err)
	}
}

// Kind returns the stable code of err, CodeInternal for unknown errors and ""
// for nil.
func Kind(err error) string {
	if err == nil {
		return ""
	}

	for _, k := range errorKinds {
		if errors.Is(err, k.err) {
			return k.code
		}
	}

	return CodeInternal
}

// StableMessage returns the user-facing message for code.
func StableMessage(code string) string {
	for _, k := range errorKinds {
		if k.code == code {
			return k.message
		}
	}

	return internalMessage
}

// HTTPStatus returns the status code a presentation layer should use for err.
func HTTPStatus(err error) int {
	for _, k := range errorKinds {
		if errors.Is(err, k.err) {
			return k.status
		}
	}

	return http.StatusInternalServerError
}

// Problem renders err as an RFC 7807 problem document. Internal errors never
// leak their text.
func Problem(err error) *problems.Problem {
	code := Kind(err)

	problem := problems.NewStatusProblem(HTTPStatus(err)).
		WithType(strings.ToLower(code))

	var serviceErr *ServiceError
	if code != CodeInternal && errors.As(err, &serviceErr) && serviceErr.Message != "" {
		return problem.WithDetail(serviceErr.Message)
	}

	return problem.WithDetail(StableMessage(code))
}

func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsValidationError checks if an error is a validation error that should return HTTP 400.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrValidation)
}

// IsConflictError checks if an error is a state conflict that should return HTTP 409.
func IsConflictError(err error) bool {
	return errors.Is(err, ErrDuplicateName) ||
		errors.Is(err, ErrStepNotEmpty) ||
		errors.Is(err, ErrConcurrency) ||
		errors.Is(err, ErrNotRestorable)
}

func IsUnauthorized(err error) bool {
	return errors.Is(err, ErrUnauthorizedReviewer)
}
