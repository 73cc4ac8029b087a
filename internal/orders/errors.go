package orders

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrTransport means the orders API could not be reached.
	ErrTransport = errors.New("orders api unreachable")
	// ErrDecode means the orders API answered with a body that could not be decoded.
	ErrDecode = errors.New("malformed orders api response")
	// ErrEmptySelection is returned by bulk calls given no order ids.
	ErrEmptySelection = errors.New("no orders selected")
)

// StatusError is a non-2xx answer from the orders API.
type StatusError struct {
	Method     string
	Path       string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("orders api returned status %d for %s %s", e.StatusCode, e.Method, e.Path)
}

// IsClientError reports whether err is a 4xx answer, which says nothing about
// the health of the orders API.
func IsClientError(err error) bool {
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode >= http.StatusBadRequest && statusErr.StatusCode < http.StatusInternalServerError
	}
	return false
}

// IsNotFound reports whether err is a 404 answer.
func IsNotFound(err error) bool {
	var statusErr *StatusError
	return errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusNotFound
}

// CountsAgainstBreaker decides whether err says the orders API is unhealthy.
// Client errors and caller cancellations do not.
func CountsAgainstBreaker(err error) bool {
	if IsClientError(err) || errors.Is(err, ErrEmptySelection) {
		return false
	}
	return !errors.Is(err, context.Canceled)
}
