package retry

import (
	"context"
	"errors"
	"io"
	"net"
	"strings"
	"syscall"

	"github.com/shpitdev/contact-enricher/internal/resilience/circuit"
)

// Kind is the failure category of an error, used by retry conditions.
type Kind int

const (
	KindUnknown Kind = iota
	KindTimeout
	KindConnection
	KindRateLimited
	// KindUnavailable covers 502, 503 and 504.
	KindUnavailable
	// KindServerError covers any other 5xx.
	KindServerError
	KindClient
	KindMalformed
	KindBlocked
	KindCircuitOpen
	KindCanceled
	// KindTransient is an explicitly retryable error with no finer category.
	KindTransient
)

func (k Kind) String() string {
	switch k {
	case KindTimeout:
		return "timeout"
	case KindConnection:
		return "connection"
	case KindRateLimited:
		return "rate_limited"
	case KindUnavailable:
		return "unavailable"
	case KindServerError:
		return "server_error"
	case KindClient:
		return "client_error"
	case KindMalformed:
		return "malformed"
	case KindBlocked:
		return "blocked"
	case KindCircuitOpen:
		return "circuit_open"
	case KindCanceled:
		return "canceled"
	case KindTransient:
		return "transient"
	default:
		return "unknown"
	}
}

// StatusCoder is implemented by errors that carry an HTTP status code.
type StatusCoder interface {
	HTTPStatus() int
}

// TransientError marks an error as retryable.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string {
	if e == nil || e.Err == nil {
		return "transient error"
	}
	return e.Err.Error()
}

func (e *TransientError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// PermanentError marks an error as never retryable, whatever its message says.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string {
	if e == nil || e.Err == nil {
		return "permanent error"
	}
	return e.Err.Error()
}

func (e *PermanentError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Permanent wraps err so no condition retries it.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

// KindOf classifies err. Typed information (status codes, net errors, sentinels) wins over
// message matching; anything left unmatched is KindUnknown.
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	if errors.Is(err, circuit.ErrOpen) {
		return KindCircuitOpen
	}
	if errors.Is(err, context.Canceled) {
		return KindCanceled
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}

	var sc StatusCoder
	if errors.As(err, &sc) {
		if k := kindOfStatus(sc.HTTPStatus()); k != KindUnknown {
			return k
		}
	}

	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return KindTimeout
	}
	if errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.EPIPE) || errors.Is(err, io.ErrUnexpectedEOF) {
		return KindConnection
	}

	if k := kindOfMessage(err.Error()); k != KindUnknown {
		return k
	}

	var te *TransientError
	if errors.As(err, &te) {
		return KindTransient
	}
	return KindUnknown
}

func kindOfStatus(code int) Kind {
	switch {
	case code == 429:
		return KindRateLimited
	case code == 408:
		return KindTimeout
	case code == 502 || code == 503 || code == 504:
		return KindUnavailable
	case code >= 500 && code <= 599:
		return KindServerError
	case code == 999:
		// LinkedIn's anti-bot response.
		return KindBlocked
	case code == 400 || code == 401 || code == 403 || code == 404 || code == 422:
		return KindClient
	case code >= 400 && code <= 499:
		return KindClient
	}
	return KindUnknown
}

var (
	fatalMarkers = []struct {
		needle string
		kind   Kind
	}{
		{"blocked", KindBlocked},
		{"captcha", KindBlocked},
		{"malformed", KindMalformed},
		{"invalid input", KindMalformed},
		{"400", KindClient},
		{"401", KindClient},
		{"403", KindClient},
		{"404", KindClient},
		{"422", KindClient},
	}
	retryableMarkers = []struct {
		needle string
		kind   Kind
	}{
		{"timeout", KindTimeout},
		{"timed out", KindTimeout},
		{"connection reset", KindConnection},
		{"econnreset", KindConnection},
		{"connection refused", KindConnection},
		{"broken pipe", KindConnection},
		{"429", KindRateLimited},
		{"too many requests", KindRateLimited},
		{"rate limit", KindRateLimited},
		{"quota", KindRateLimited},
		{"502", KindUnavailable},
		{"503", KindUnavailable},
		{"504", KindUnavailable},
		{"bad gateway", KindUnavailable},
		{"service unavailable", KindUnavailable},
		{"gateway timeout", KindUnavailable},
	}
)

func kindOfMessage(msg string) Kind {
	s := strings.ToLower(msg)
	for _, m := range fatalMarkers {
		if strings.Contains(s, m.needle) {
			return m.kind
		}
	}
	for _, m := range retryableMarkers {
		if strings.Contains(s, m.needle) {
			return m.kind
		}
	}
	return KindUnknown
}

// Condition decides whether a failed attempt should be retried.
type Condition func(err error) bool

// RetryOn builds a condition that retries exactly the given kinds. Permanent errors are
// never retried.
func RetryOn(kinds ...Kind) Condition {
	set := make(map[Kind]struct{}, len(kinds))
	for _, k := range kinds {
		set[k] = struct{}{}
	}
	return func(err error) bool {
		if err == nil {
			return false
		}
		var pe *PermanentError
		if errors.As(err, &pe) {
			return false
		}
		_, ok := set[KindOf(err)]
		return ok
	}
}

// DefaultCondition retries timeouts, connection resets, 429 and 502/503/504. Everything
// else, including unmatched errors, fails fast.
var DefaultCondition = RetryOn(KindTimeout, KindConnection, KindRateLimited, KindUnavailable, KindTransient)

// Never is a condition that retries nothing.
func Never(error) bool { return false }
