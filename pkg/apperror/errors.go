package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors for store-level facts. Repositories and services wrap these
// so handlers can map them with errors.Is.
var (
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("conflict")
)

// NotApplicable is reported as the required service when a mail has none.
const NotApplicable = "N/A"

// ForbiddenError is returned when an authorization guard denies an action.
// RequiredService is set by the service-scoped guard, Permission by the
// permission-code guard.
type ForbiddenError struct {
	RequiredService string
	Permission      string
}

func (e *ForbiddenError) Error() string {
	if e.Permission != "" {
		return fmt.Sprintf("access denied: missing permission '%s'", e.Permission)
	}
	return fmt.Sprintf("access denied: action reserved to service '%s' or admin", e.RequiredService)
}

// InvalidStateError reports an operation attempted on a mail whose current
// status does not allow it.
type InvalidStateError struct {
	Operation string
	Actual    string
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("cannot %s mail in status '%s'", e.Operation, e.Actual)
}

// IllegalTransitionError means code tried to move along an edge the
// lifecycle does not define. It always points at a bug upstream.
type IllegalTransitionError struct {
	From string
	To   string
}

func (e *IllegalTransitionError) Error() string {
	return fmt.Sprintf("illegal transition from '%s' to '%s'", e.From, e.To)
}

// NotFound wraps ErrNotFound with the entity that was missing.
func NotFound(entity string, id any) error {
	return fmt.Errorf("%s %v: %w", entity, id, ErrNotFound)
}

// HTTPStatus maps an error from the workflow core to a response code.
func HTTPStatus(err error) int {
	var forbidden *ForbiddenError
	var invalid *InvalidStateError
	var illegal *IllegalTransitionError

	switch {
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.As(err, &forbidden):
		return http.StatusForbidden
	case errors.As(err, &invalid), errors.Is(err, ErrConflict):
		return http.StatusConflict
	case errors.As(err, &illegal):
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}
