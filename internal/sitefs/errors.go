package sitefs

import (
	"errors"
	"fmt"
	"net/http"
)

// Error kinds. ErrSiteNotFound and ErrMissingParameter are bad requests.
var (
	ErrBadRequest       = errors.New("bad request")
	ErrNotFound         = errors.New("not found")
	ErrInternal         = errors.New("internal error")
	ErrSiteNotFound     = fmt.Errorf("%w: unknown site", ErrBadRequest)
	ErrMissingParameter = fmt.Errorf("%w: missing parameter", ErrBadRequest)
)

// Error is returned by every gateway operation. Error() is the reason meant
// for the caller; the cause stays reachable through errors.Is/As for logs.
type Error struct {
	kind   error
	reason string
	cause  error
}

func (e *Error) Error() string { return e.reason }

// Kind returns one of the package's Err* sentinels.
func (e *Error) Kind() error { return e.kind }

func (e *Error) Unwrap() []error {
	if e.cause == nil {
		return []error{e.kind}
	}
	return []error{e.kind, e.cause}
}

func badRequest(reason string) error { return &Error{kind: ErrBadRequest, reason: reason} }

func badRequestCause(reason string, cause error) error {
	return &Error{kind: ErrBadRequest, reason: reason, cause: cause}
}

func notFound(what string) error {
	return &Error{kind: ErrNotFound, reason: "Not found: " + what}
}

func internal(reason string, cause error) error {
	return &Error{kind: ErrInternal, reason: reason, cause: cause}
}

func siteNotFound(site string) error {
	return &Error{kind: ErrSiteNotFound, reason: "Unknown site " + site}
}

func missingParameter(param string) error {
	return &Error{kind: ErrMissingParameter, reason: "Missing parameters: " + param}
}

// Reason returns the caller-facing message for err. Errors that did not come
// from this package are opaque.
func Reason(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.reason
	}
	return "internal server error"
}

// Outcome is a short, fixed label for err, used for metrics and spans.
func Outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrBadRequest):
		return "bad_request"
	default:
		return "internal"
	}
}

// StatusCode maps err onto an HTTP status: 400 for bad requests (including
// unknown sites and missing parameters), 404 for missing targets, 500
// otherwise.
func StatusCode(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrBadRequest):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
