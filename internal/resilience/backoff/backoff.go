// Package backoff computes retry delays.
package backoff

import (
	"math"
	"math/rand/v2"
	"time"
)

const (
	DefaultBase   = 1000 * time.Millisecond
	DefaultMax    = 30 * time.Second
	DefaultFactor = 2.0

	// jitterFrac bounds the additive jitter to 10% of the computed delay.
	jitterFrac = 0.1
)

// Policy describes exponential backoff. The zero value is usable and resolves to
// 1s base, 30s max, factor 2, no jitter.
type Policy struct {
	Base   time.Duration
	Max    time.Duration
	Factor float64
	Jitter bool

	// Rand returns a value in [0, 1). Nil uses math/rand/v2. Tests pass a fixed source.
	Rand func() float64
}

// Default returns the standard policy (1s base, 30s max, factor 2, jitter on).
func Default() Policy {
	return Policy{Base: DefaultBase, Max: DefaultMax, Factor: DefaultFactor, Jitter: true}
}

func (p Policy) withDefaults() Policy {
	if p.Base <= 0 {
		p.Base = DefaultBase
	}
	if p.Max <= 0 {
		p.Max = DefaultMax
	}
	if p.Max < p.Base {
		p.Max = p.Base
	}
	if p.Factor < 1 {
		p.Factor = DefaultFactor
	}
	return p
}

// Delay returns the sleep before retrying after the given attempt. Attempts start at 1.
//
// delay = min(base * factor^(attempt-1), max), plus uniform(0, 0.1*delay) when jitter is
// enabled. The jittered value is clamped to max.
func (p Policy) Delay(attempt int) time.Duration {
	p = p.withDefaults()
	if attempt < 1 {
		attempt = 1
	}

	d := float64(p.Base) * math.Pow(p.Factor, float64(attempt-1))
	if math.IsInf(d, 0) || d > float64(p.Max) {
		d = float64(p.Max)
	}

	if p.Jitter {
		r := p.Rand
		if r == nil {
			r = rand.Float64
		}
		d += r() * jitterFrac * d
		if d > float64(p.Max) {
			d = float64(p.Max)
		}
	}
	return time.Duration(d)
}

// Fixed returns a jitter source that always yields v. Useful for deterministic tests.
func Fixed(v float64) func() float64 {
	return func() float64 { return v }
}
