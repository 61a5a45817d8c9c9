package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// Kind separates failures that are safe to retry from those that are not.
type Kind string

const (
	// KindTransient covers rate limits, upstream faults and timeouts.
	KindTransient Kind = "transient"
	// KindFatal covers malformed requests and unusable responses.
	KindFatal Kind = "fatal"
)

// Error is returned by every Gateway implementation.
type Error struct {
	Kind       Kind
	Provider   string
	StatusCode int
	Message    string
	Err        error
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s %s error (status %d): %s", e.Provider, e.Kind, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s %s error: %s", e.Provider, e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// IsRetryable reports whether a retry may succeed.
func (e *Error) IsRetryable() bool { return e.Kind == KindTransient }

// NewTransient wraps err as a retryable failure.
func NewTransient(provider string, err error) *Error {
	return &Error{Kind: KindTransient, Provider: provider, Message: errMessage(err), Err: err}
}

// NewFatal wraps err as a non-retryable failure.
func NewFatal(provider string, err error) *Error {
	return &Error{Kind: KindFatal, Provider: provider, Message: errMessage(err), Err: err}
}

// IsTransient reports whether err carries a transient gateway failure.
func IsTransient(err error) bool {
	var gwErr *Error
	return errors.As(err, &gwErr) && gwErr.IsRetryable()
}

// IsFatal reports whether err carries a fatal gateway failure.
func IsFatal(err error) bool {
	var gwErr *Error
	return errors.As(err, &gwErr) && !gwErr.IsRetryable()
}

// classify maps a provider error onto a gateway Error. Status codes decide when
// known; otherwise transport-level failures are treated as transient.
func classify(provider string, status int, err error) *Error {
	var gwErr *Error
	if errors.As(err, &gwErr) {
		return gwErr
	}

	switch {
	case errors.Is(err, context.Canceled):
		return &Error{Kind: KindFatal, Provider: provider, Message: errMessage(err), Err: err}
	case errors.Is(err, context.DeadlineExceeded):
		return &Error{Kind: KindTransient, Provider: provider, Message: errMessage(err), Err: err}
	}

	kind := KindTransient
	if status != 0 && kindForStatus(status) == KindFatal {
		kind = KindFatal
	}
	return &Error{Kind: kind, Provider: provider, StatusCode: status, Message: errMessage(err), Err: err}
}

func kindForStatus(status int) Kind {
	switch {
	case status == http.StatusTooManyRequests,
		status == http.StatusRequestTimeout,
		status == http.StatusConflict,
		status >= http.StatusInternalServerError:
		return KindTransient
	default:
		return KindFatal
	}
}

func errMessage(err error) string {
	if err == nil {
		return "unknown error"
	}
	return err.Error()
}
