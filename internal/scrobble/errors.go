package scrobble

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"syscall"
)

// Backend error taxonomy. Backends wrap these so callers can use errors.Is.
var (
	ErrNotAuthenticated = errors.New("not authenticated")
	ErrInvalidToken     = errors.New("invalid or expired credentials")
	ErrRateLimited      = errors.New("rate limited")
	ErrTimeout          = errors.New("request timed out")
	ErrTransient        = errors.New("temporary network failure")

	// ErrNotFound means a lookup found nothing. It is a valid empty result,
	// not a failure of the service.
	ErrNotFound = errors.New("not found")
)

// APIError is a failure reported by the remote service itself.
type APIError struct {
	Code    int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("API error %d", e.Code)
	}
	return fmt.Sprintf("API error %d: %s", e.Code, e.Message)
}

// StatusError maps an unsuccessful HTTP status onto the taxonomy.
func StatusError(status int, body string) error {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return ErrInvalidToken
	case status == http.StatusTooManyRequests:
		return ErrRateLimited
	case status == http.StatusNotFound:
		return ErrNotFound
	case status == http.StatusBadGateway || status == http.StatusServiceUnavailable || status == http.StatusGatewayTimeout:
		return fmt.Errorf("%w: status %d", ErrTransient, status)
	default:
		return &APIError{Code: status, Message: strings.TrimSpace(body)}
	}
}

// Classify maps a transport error onto the taxonomy. Errors that already
// belong to it, and errors it does not recognize, are returned unchanged.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	if IsKnown(err) {
		return err
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", ErrTimeout, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %w", ErrTimeout, err)
	}

	var recordErr tls.RecordHeaderError
	var alertErr tls.AlertError
	switch {
	case errors.As(err, &recordErr), errors.As(err, &alertErr):
		return fmt.Errorf("%w: secure connection failed: %w", ErrTransient, err)
	case errors.Is(err, syscall.ECONNRESET),
		errors.Is(err, syscall.ECONNREFUSED),
		errors.Is(err, io.ErrUnexpectedEOF),
		errors.Is(err, io.EOF):
		return fmt.Errorf("%w: %w", ErrTransient, err)
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return fmt.Errorf("%w: %w", ErrTransient, err)
	}
	return err
}

// IsKnown reports whether err already carries a taxonomy error.
func IsKnown(err error) bool {
	var apiErr *APIError
	return errors.Is(err, ErrNotAuthenticated) ||
		errors.Is(err, ErrInvalidToken) ||
		errors.Is(err, ErrRateLimited) ||
		errors.Is(err, ErrTimeout) ||
		errors.Is(err, ErrTransient) ||
		errors.Is(err, ErrNotFound) ||
		errors.As(err, &apiErr)
}

// IsTransient reports whether a retry might succeed.
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransient)
}
