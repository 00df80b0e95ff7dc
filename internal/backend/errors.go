package backend

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/sony/gobreaker/v2"
)

type Cause int

const (
	CauseGeneric Cause = iota
	CauseRateLimited
	CauseServerBusy
	CauseTimeout
	CauseAuth
	CauseNetwork
)

func (c Cause) String() string {
	switch c {
	case CauseRateLimited:
		return "rate_limited"
	case CauseServerBusy:
		return "server_busy"
	case CauseTimeout:
		return "timeout"
	case CauseAuth:
		return "auth"
	case CauseNetwork:
		return "network"
	default:
		return "generic"
	}
}

var (
	ErrAuthExpired = errors.New("session token expired")
	ErrNotFound    = errors.New("resource not found")
)

// APIError is a non-2xx answer from the backend.
type APIError struct {
	StatusCode int
	Message    string
	Path       string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s: backend returned %d", e.Path, e.StatusCode)
	}
	return fmt.Sprintf("%s: backend returned %d: %s", e.Path, e.StatusCode, e.Message)
}

func (e *APIError) serverFailure() bool {
	return e.StatusCode >= http.StatusInternalServerError
}

func Classify(err error) Cause {
	if err == nil {
		return CauseGeneric
	}

	if errors.Is(err, ErrAuthExpired) {
		return CauseAuth
	}

	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return CauseServerBusy
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case http.StatusTooManyRequests:
			return CauseRateLimited
		case http.StatusUnauthorized, http.StatusForbidden:
			return CauseAuth
		case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
			return CauseServerBusy
		}
		return CauseGeneric
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return CauseTimeout
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return CauseTimeout
		}
		return CauseNetwork
	}

	return CauseGeneric
}

// IsRetryable reports whether a failed idempotent call may be reissued.
func IsRetryable(err error) bool {
	if errors.Is(err, gobreaker.ErrOpenState) {
		return false
	}
	switch Classify(err) {
	case CauseServerBusy, CauseTimeout, CauseNetwork:
		return true
	}
	return false
}

func UserMessage(err error) string {
	switch Classify(err) {
	case CauseRateLimited:
		return "Too many requests right now. Please wait a moment and try again."
	case CauseServerBusy:
		return "Our server is busy or waking up. Please retry in a little while."
	case CauseTimeout:
		return "The request timed out. The service may be starting up, please retry later."
	case CauseAuth:
		return "Your session has expired. Please sign in again and retry."
	case CauseNetwork:
		return "Could not reach the store. Check your connection and try again."
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message
	}
	return "Something went wrong while placing your order. Please try again."
}
