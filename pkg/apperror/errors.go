// Package apperror holds the error taxonomy shared by the back-office core:
// local validation and permission failures, and remote network / not-found
// failures reported by the catalog API.
package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrPermission is matched by every PermissionError.
	ErrPermission = errors.New("permission denied")
	// ErrNotFound is matched by every NotFoundError.
	ErrNotFound = errors.New("not found")
)

// ValidationError is a field-scoped, pre-network rejection of a draft value.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// PermissionError rejects a staff-only mutation before any request is made.
type PermissionError struct {
	Action string
}

func (e *PermissionError) Error() string {
	if e.Action == "" {
		return "permission denied: staff access required"
	}
	return fmt.Sprintf("permission denied: staff access required to %s", e.Action)
}

func (e *PermissionError) Is(target error) bool {
	return target == ErrPermission
}

// NetworkError is a failed request or a non-2xx response. Message carries the
// server's message when it sent one.
type NetworkError struct {
	Method  string
	Path    string
	Status  int
	Message string
	Err     error
}

func (e *NetworkError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = GenericMessage(e.Status)
	}
	if e.Status == 0 {
		return fmt.Sprintf("%s %s: %s", e.Method, e.Path, msg)
	}
	return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.Path, e.Status, msg)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// NotFoundError reports a 404 on a record load.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Kind, e.ID)
}

func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// GenericMessage is the text shown when the server did not explain a failure.
func GenericMessage(status int) string {
	switch {
	case status == 0:
		return "request failed, please check your connection"
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return "you are not allowed to perform this action"
	case status >= 500:
		return "server error, please try again later"
	default:
		return "request failed"
	}
}

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}
