package retry_test

import (
	"context"
	"errors"
	"fmt"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/shpitdev/contact-enricher/internal/resilience/circuit"
	"github.com/shpitdev/contact-enricher/internal/resilience/retry"
)

type statusErr int

func (e statusErr) Error() string   { return fmt.Sprintf("request failed (code %d)", int(e)) }
func (e statusErr) HTTPStatus() int { return int(e) }

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o deadline" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want retry.Kind
	}{
		{"deadline", context.DeadlineExceeded, retry.KindTimeout},
		{"canceled", context.Canceled, retry.KindCanceled},
		{"circuit_open", fmt.Errorf("wrapped: %w", circuit.ErrOpen), retry.KindCircuitOpen},
		{"net_timeout", timeoutErr{}, retry.KindTimeout},
		{"econnreset", fmt.Errorf("read: %w", syscall.ECONNRESET), retry.KindConnection},
		{"status_429", statusErr(429), retry.KindRateLimited},
		{"status_503", statusErr(503), retry.KindUnavailable},
		{"status_500", statusErr(500), retry.KindServerError},
		{"status_404", statusErr(404), retry.KindClient},
		{"status_999", statusErr(999), retry.KindBlocked},
		{"msg_timeout", errors.New("request timeout"), retry.KindTimeout},
		{"msg_reset", errors.New("connection reset by peer"), retry.KindConnection},
		{"msg_rate", errors.New("429 Too Many Requests"), retry.KindRateLimited},
		{"msg_gateway", errors.New("502 Bad Gateway"), retry.KindUnavailable},
		{"msg_forbidden", errors.New("403 Forbidden"), retry.KindClient},
		{"msg_unprocessable", errors.New("status 422"), retry.KindClient},
		{"msg_malformed", errors.New("malformed input"), retry.KindMalformed},
		{"msg_blocked", errors.New("request blocked by authwall"), retry.KindBlocked},
		{"transient", &retry.TransientError{Err: errors.New("flaky")}, retry.KindTransient},
		{"unknown", errors.New("something odd"), retry.KindUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, retry.KindOf(tt.err))
		})
	}
}

func TestDefaultCondition(t *testing.T) {
	retryable := []error{
		errors.New("timeout"),
		errors.New("connection reset"),
		statusErr(429), statusErr(502), statusErr(503), statusErr(504),
	}
	fatal := []error{
		statusErr(400), statusErr(401), statusErr(403), statusErr(404), statusErr(422),
		errors.New("malformed input"),
		errors.New("unexpected"),
		circuit.ErrOpen,
		retry.Permanent(errors.New("timeout")),
	}
	for _, err := range retryable {
		assert.True(t, retry.DefaultCondition(err), "%v should retry", err)
	}
	for _, err := range fatal {
		assert.False(t, retry.DefaultCondition(err), "%v should not retry", err)
	}
}

func TestPresets(t *testing.T) {
	web := retry.WebsiteFetch()
	assert.Equal(t, 3, web.MaxAttempts)
	assert.False(t, web.Retryable(statusErr(403)))
	assert.False(t, web.Retryable(statusErr(404)))
	assert.True(t, web.Retryable(statusErr(503)))

	email := retry.EmailVerification()
	assert.Equal(t, 2, email.MaxAttempts)
	assert.True(t, email.Retryable(errors.New("timeout")))
	assert.True(t, email.Retryable(statusErr(429)))
	assert.False(t, email.Retryable(statusErr(503)))

	li := retry.LinkedInSearch()
	assert.Equal(t, 2, li.MaxAttempts)
	assert.True(t, li.Retryable(statusErr(429)))
	assert.False(t, li.Retryable(statusErr(999)))
	assert.False(t, li.Retryable(errors.New("blocked")))
	assert.False(t, li.Retryable(errors.New("timeout")))

	api := retry.GenericAPI()
	assert.Equal(t, 4, api.MaxAttempts)
	assert.True(t, api.Retryable(statusErr(500)))
	assert.True(t, api.Retryable(errors.New("timeout")))
	assert.False(t, api.Retryable(statusErr(401)))

	db := retry.Database()
	assert.Equal(t, 3, db.MaxAttempts)
	assert.True(t, db.Retryable(errors.New("connection refused")))
	assert.False(t, db.Retryable(errors.New("timeout")))
}
