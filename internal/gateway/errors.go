package gateway

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// Kind is the machine-readable failure class reported to callers.
type Kind string

const (
	KindMissingCredential   Kind = "missing_credential"
	KindInvalidRequest      Kind = "invalid_request"
	KindUpstreamUnavailable Kind = "upstream_unavailable"
	KindMalformedOutput     Kind = "malformed_output"
)

// Error is a model call failure. Transient errors may succeed on retry;
// everything else is fatal and must not be retried.
type Error struct {
	Kind       Kind
	Transient  bool
	Provider   string
	StatusCode int
	Err        error
}

func (e *Error) Error() string {
	class := "fatal"
	if e.Transient {
		class = "transient"
	}
	msg := fmt.Sprintf("%s %s error", e.Provider, class)
	if e.StatusCode > 0 {
		msg += fmt.Sprintf(" (status %d)", e.StatusCode)
	}
	msg += " [" + string(e.Kind) + "]"
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Transient builds a retryable error.
func Transient(provider string, kind Kind, status int, err error) *Error {
	return &Error{Kind: kind, Transient: true, Provider: provider, StatusCode: status, Err: err}
}

// Fatal builds a non-retryable error.
func Fatal(provider string, kind Kind, status int, err error) *Error {
	return &Error{Kind: kind, Provider: provider, StatusCode: status, Err: err}
}

// IsTransient reports whether err is a retryable gateway error.
func IsTransient(err error) bool {
	var ge *Error
	return errors.As(err, &ge) && ge.Transient
}

// KindOf returns the kind of the gateway error in err's chain, or "".
func KindOf(err error) Kind {
	var ge *Error
	if errors.As(err, &ge) {
		return ge.Kind
	}
	return ""
}

// AsFatal converts err into a fatal gateway error, keeping its kind.
// Errors that are not gateway errors become upstream_unavailable.
func AsFatal(err error) error {
	if err == nil {
		return nil
	}
	var ge *Error
	if errors.As(err, &ge) {
		if !ge.Transient {
			return err
		}
		out := *ge
		out.Transient = false
		return &out
	}
	return Fatal("personagen", KindUpstreamUnavailable, 0, err)
}

// Classify maps an HTTP status (0 when unknown) and error to a gateway
// error: 401/403 are credential failures, 408/409/425/429 and 5xx are
// transient, other 4xx are invalid requests. Network failures are transient;
// cancellation is fatal.
func Classify(provider string, status int, err error) *Error {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return Fatal(provider, KindUpstreamUnavailable, status, err)
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		return Fatal(provider, KindMissingCredential, status, err)
	case status == http.StatusRequestTimeout, status == http.StatusConflict,
		status == http.StatusTooEarly, status == http.StatusTooManyRequests,
		status >= http.StatusInternalServerError:
		return Transient(provider, KindUpstreamUnavailable, status, err)
	case status >= http.StatusBadRequest:
		return Fatal(provider, KindInvalidRequest, status, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return Transient(provider, KindUpstreamUnavailable, 0, err)
	}
	return Transient(provider, KindUpstreamUnavailable, status, err)
}

// emptyOutput is returned when a backend answers with no text.
func emptyOutput(provider string) *Error {
	return Transient(provider, KindMalformedOutput, 0, errors.New("response contained no text"))
}

func missingKey(provider, env string) *Error {
	return Fatal(provider, KindMissingCredential, 0, fmt.Errorf("%s is not set", env))
}
