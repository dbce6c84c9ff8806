package api

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrNoSession is returned by authenticated calls when the TokenSource has no token.
var ErrNoSession = errors.New("not logged in")

// APIError represents a non-2xx response from the backend.
// Callers should prefer the predicate functions (IsNotFound, IsUnauthorized, etc.)
// to inspect errors rather than asserting on this type directly.
type APIError struct {
	operation  string
	statusCode int
	detail     string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: HTTP %d: %s", e.operation, e.statusCode, e.detail)
}

func newAPIError(operation string, statusCode int, detail string) *APIError {
	return &APIError{
		operation:  operation,
		statusCode: statusCode,
		detail:     detail,
	}
}

// StatusCode returns the HTTP status code from the response.
func (e *APIError) StatusCode() int { return e.statusCode }

// Detail returns the backend's human-readable "detail" message.
func (e *APIError) Detail() string { return e.detail }

// Operation returns a short description of the API call that failed.
func (e *APIError) Operation() string { return e.operation }

// IsNotFound reports whether err is an API error with HTTP 404 status.
func IsNotFound(err error) bool { return HasStatusCode(err, http.StatusNotFound) }

// IsUnauthorized reports whether err is an API error with HTTP 401 status.
func IsUnauthorized(err error) bool { return HasStatusCode(err, http.StatusUnauthorized) }

// IsForbidden reports whether err is an API error with HTTP 403 status.
func IsForbidden(err error) bool { return HasStatusCode(err, http.StatusForbidden) }

// IsValidation reports whether the backend rejected the request body (400 or 422).
func IsValidation(err error) bool {
	return HasStatusCode(err, http.StatusBadRequest) || HasStatusCode(err, http.StatusUnprocessableEntity)
}

// HasStatusCode reports whether err is an API error whose HTTP status code matches.
func HasStatusCode(err error, code int) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.statusCode == code
}

// Detail returns the message a user should see for err: the backend detail for
// API errors, the plain error text otherwise.
func Detail(err error) string {
	if err == nil {
		return ""
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.detail != "" {
		return apiErr.detail
	}
	return err.Error()
}
