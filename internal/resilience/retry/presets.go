package retry

import (
	"time"

	"github.com/shpitdev/contact-enricher/internal/resilience/backoff"
)

// Presets differ only in attempts, base delay and which failures they retry.

// WebsiteFetch retries flaky business sites. 403 and 404 mean the site answered and are
// never retried.
func WebsiteFetch() Policy {
	return Policy{
		Name:        "website_fetch",
		MaxAttempts: 3,
		Backoff:     jittered(2 * time.Second),
		Retryable:   RetryOn(KindTimeout, KindConnection, KindRateLimited, KindUnavailable, KindTransient),
	}
}

// EmailVerification retries only timeouts and rate limiting.
func EmailVerification() Policy {
	return Policy{
		Name:        "email_verification",
		MaxAttempts: 2,
		Backoff:     jittered(1 * time.Second),
		Retryable:   RetryOn(KindTimeout, KindRateLimited),
	}
}

// LinkedInSearch retries only rate limiting. A blocked response is final.
func LinkedInSearch() Policy {
	return Policy{
		Name:        "linkedin_search",
		MaxAttempts: 2,
		Backoff:     jittered(5 * time.Second),
		Retryable:   RetryOn(KindRateLimited),
	}
}

// GenericAPI is used for third-party JSON APIs (verification providers, AI).
func GenericAPI() Policy {
	return Policy{
		Name:        "generic_api",
		MaxAttempts: 4,
		Backoff:     jittered(1 * time.Second),
		Retryable:   RetryOn(KindTimeout, KindRateLimited, KindUnavailable, KindServerError, KindTransient),
	}
}

// Database retries only connection failures.
func Database() Policy {
	return Policy{
		Name:        "database",
		MaxAttempts: 3,
		Backoff:     jittered(500 * time.Millisecond),
		Retryable:   RetryOn(KindConnection),
	}
}

func jittered(base time.Duration) backoff.Policy {
	return backoff.Policy{Base: base, Max: backoff.DefaultMax, Factor: backoff.DefaultFactor, Jitter: true}
}
