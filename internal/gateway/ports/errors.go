package ports

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

type ErrorKind string

const (
	KindTimeout      ErrorKind = "timeout"
	KindRateLimited  ErrorKind = "rate_limited"
	KindUnavailable  ErrorKind = "unavailable"
	KindMalformed    ErrorKind = "malformed_response"
	KindInvalidInput ErrorKind = "invalid_input"
)

// BackendError is the uniform failure signal every port adapter returns.
type BackendError struct {
	Kind       ErrorKind
	Backend    string
	Operation  string
	StatusCode int
	Cause      error
}

func (e *BackendError) Error() string {
	if e == nil {
		return "backend error"
	}
	msg := fmt.Sprintf("%s %s failed (kind=%s", e.Backend, e.Operation, e.Kind)
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" status=%d", e.StatusCode)
	}
	msg += ")"
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *BackendError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

func NewBackendError(backend, op string, kind ErrorKind, status int, cause error) *BackendError {
	return &BackendError{Kind: kind, Backend: backend, Operation: op, StatusCode: status, Cause: cause}
}

// KindOf reports the BackendError kind of err, or "" when err is not a backend error.
func KindOf(err error) ErrorKind {
	var be *BackendError
	if errors.As(err, &be) {
		return be.Kind
	}
	return ""
}

func IsRateLimited(err error) bool { return KindOf(err) == KindRateLimited }

func IsBackendError(err error) bool {
	var be *BackendError
	return errors.As(err, &be)
}

// Classify maps a transport error or HTTP status into a BackendError. A nil err with a
// 2xx status returns nil.
func Classify(backend, op string, status int, err error) error {
	if err == nil && status >= 200 && status < 300 {
		return nil
	}
	if IsBackendError(err) {
		return err
	}
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return NewBackendError(backend, op, KindTimeout, status, err)
		}
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return NewBackendError(backend, op, KindTimeout, status, err)
		}
		if status == 0 {
			return NewBackendError(backend, op, KindUnavailable, status, err)
		}
	}
	switch {
	case status == http.StatusTooManyRequests:
		return NewBackendError(backend, op, KindRateLimited, status, err)
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		return NewBackendError(backend, op, KindTimeout, status, err)
	case status >= 500:
		return NewBackendError(backend, op, KindUnavailable, status, err)
	default:
		return NewBackendError(backend, op, KindMalformed, status, err)
	}
}
