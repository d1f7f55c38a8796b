package api

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrValidation is a 400 from the server.
	ErrValidation = errors.New("validation failed")
	// ErrAuthentication is a 401 or 403: missing, wrong or expired credentials.
	ErrAuthentication = errors.New("authentication failed")
	ErrNotFound       = errors.New("not found")
	// ErrNotReady is a 503 while the server's database is still opening.
	ErrNotReady = errors.New("server not ready")
	// ErrNetwork is a transport failure; no response was received.
	ErrNetwork = errors.New("network error")
	// ErrSyncFailed wraps any failure of a sync request.
	ErrSyncFailed = errors.New("sync failed")
	// ErrUnauthenticated means no credential is held; nothing was sent.
	ErrUnauthenticated = errors.New("not logged in")
)

// Error is a non-2xx response. Message is the server's error text when it sent one.
type Error struct {
	Status  int
	Message string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("request failed with status %d", e.Status)
	}
	return fmt.Sprintf("%s (status %d)", e.Message, e.Status)
}

// Unwrap maps the status onto the matching sentinel so callers can use errors.Is.
func (e *Error) Unwrap() error {
	switch e.Status {
	case http.StatusBadRequest:
		return ErrValidation
	case http.StatusUnauthorized, http.StatusForbidden:
		return ErrAuthentication
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusServiceUnavailable:
		return ErrNotReady
	default:
		return nil
	}
}
