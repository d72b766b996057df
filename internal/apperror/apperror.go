// Package apperror defines the error taxonomy shared by the onboarding
// orchestrator, the provisioners and the HTTP layer.
package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error for callers and for HTTP status mapping.
type Kind string

const (
	KindValidation          Kind = "VALIDATION_ERROR"
	KindInvalidTransition   Kind = "INVALID_TRANSITION"
	KindSessionExpired      Kind = "SESSION_EXPIRED"
	KindNotFound            Kind = "NOT_FOUND"
	KindConflict            Kind = "CONFLICT"
	KindPartialProvisioning Kind = "PARTIAL_PROVISIONING_FAILURE"
	KindUnauthenticated     Kind = "UNAUTHENTICATED"
	KindPermissionDenied    Kind = "PERMISSION_DENIED"
	KindMethodNotAllowed    Kind = "METHOD_NOT_ALLOWED"
	KindInternal            Kind = "INTERNAL"
)

// Error is a classified error. Details carries structured data that is safe
// to return to clients, such as the ids of entities already created.
type Error struct {
	Kind    Kind
	Message string
	Field   string
	Details map[string]any
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches another *Error with the same Kind, so errors.Is(err, &Error{Kind: KindConflict}) works.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Message == "" && t.Field == ""
}

// HTTPStatus returns the status code clients see for this error.
func (e *Error) HTTPStatus() int {
	return StatusFor(e.Kind)
}

// StatusFor maps an error kind to an HTTP status code.
func StatusFor(kind Kind) int {
	switch kind {
	case KindValidation:
		return http.StatusBadRequest
	case KindInvalidTransition, KindConflict:
		return http.StatusConflict
	case KindSessionExpired:
		return http.StatusGone
	case KindNotFound:
		return http.StatusNotFound
	case KindUnauthenticated:
		return http.StatusUnauthorized
	case KindPermissionDenied:
		return http.StatusForbidden
	case KindMethodNotAllowed:
		return http.StatusMethodNotAllowed
	default:
		return http.StatusInternalServerError
	}
}

// Validation reports a missing or malformed field.
func Validation(field, format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Field: field, Message: fmt.Sprintf(format, args...)}
}

// MissingField reports a required field that was not supplied.
func MissingField(field string) *Error {
	return &Error{Kind: KindValidation, Field: field, Message: field + " is required"}
}

// InvalidTransition reports a step submitted out of order or on a closed session.
func InvalidTransition(format string, args ...any) *Error {
	return &Error{Kind: KindInvalidTransition, Message: fmt.Sprintf(format, args...)}
}

// SessionExpired reports a session used after its expiry.
func SessionExpired(format string, args ...any) *Error {
	return &Error{Kind: KindSessionExpired, Message: fmt.Sprintf(format, args...)}
}

// NotFound reports an unknown entity.
func NotFound(format string, args ...any) *Error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

// Conflict reports a uniqueness violation or a lost conditional write.
func Conflict(field, format string, args ...any) *Error {
	return &Error{Kind: KindConflict, Field: field, Message: fmt.Sprintf(format, args...)}
}

// MethodNotAllowed reports a request method a route does not accept.
func MethodNotAllowed(method, path string) *Error {
	return &Error{Kind: KindMethodNotAllowed, Message: fmt.Sprintf("method %s not allowed on %s", method, path)}
}

// Unauthenticated reports a missing or invalid credential.
func Unauthenticated(format string, args ...any) *Error {
	return &Error{Kind: KindUnauthenticated, Message: fmt.Sprintf(format, args...)}
}

// PermissionDenied reports an authenticated caller lacking a permission.
func PermissionDenied(format string, args ...any) *Error {
	return &Error{Kind: KindPermissionDenied, Message: fmt.Sprintf(format, args...)}
}

// Internal wraps an unexpected failure. The cause is logged, never returned to clients.
func Internal(err error, format string, args ...any) *Error {
	return &Error{Kind: KindInternal, Message: fmt.Sprintf(format, args...), Err: err}
}

// PartialProvisioning reports a completion that stopped after some entities
// were created. completed lists the provisioning steps that succeeded and
// created maps entity names to their ids.
func PartialProvisioning(cause error, failedStep string, completed []string, created map[string]string) *Error {
	details := map[string]any{
		"failedStep":      failedStep,
		"completedSteps":  completed,
		"createdEntities": created,
	}
	var ae *Error
	if errors.As(cause, &ae) {
		details["cause"] = map[string]any{
			"kind":    ae.Kind,
			"message": ae.Message,
			"field":   ae.Field,
		}
	}
	return &Error{
		Kind:    KindPartialProvisioning,
		Message: fmt.Sprintf("onboarding stopped at %s after creating %v", failedStep, completed),
		Details: details,
		Err:     cause,
	}
}

// KindOf returns the Kind of err, or KindInternal if err is not classified.
func KindOf(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return KindInternal
}

// IsKind returns true if err is classified as kind.
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// As extracts the *Error from err, wrapping unclassified errors as internal.
func As(err error) *Error {
	var ae *Error
	if errors.As(err, &ae) {
		return ae
	}
	return Internal(err, "internal error")
}
