package circuit

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
)

// Dependency names, one breaker each per process.
const (
	DepSearch            = "search"
	DepAI                = "ai"
	DepEmailVerification = "email_verification"
	DepWebsiteScraping   = "website_scraping"
	DepLinkedIn          = "linkedin"
)

// Settings tunes one dependency's breaker.
type Settings struct {
	Threshold    int           `yaml:"threshold"`
	RecoveryTime time.Duration `yaml:"recovery_time"`
}

// DefaultSettings returns the per-dependency tuning. LinkedIn is the most conservative
// because of aggressive anti-bot blocking; website scraping is the most lenient because
// individual site failures are common and cheap.
func DefaultSettings() map[string]Settings {
	return map[string]Settings{
		DepSearch:            {Threshold: 5, RecoveryTime: 5 * time.Minute},
		DepAI:                {Threshold: 3, RecoveryTime: time.Minute},
		DepEmailVerification: {Threshold: 5, RecoveryTime: 5 * time.Minute},
		DepWebsiteScraping:   {Threshold: 8, RecoveryTime: 2 * time.Minute},
		DepLinkedIn:          {Threshold: 2, RecoveryTime: 30 * time.Minute},
	}
}

// Registry owns the process-wide breakers. Build it once at startup and pass it to each
// adapter.
type Registry struct {
	mu       sync.RWMutex
	breakers map[string]*Breaker
	settings map[string]Settings
	opts     []Option
}

// NewRegistry creates breakers for every dependency in DefaultSettings, with overrides
// applied. opts are applied to every breaker (clock, logger, hooks).
func NewRegistry(overrides map[string]Settings, opts ...Option) *Registry {
	settings := DefaultSettings()
	for name, s := range overrides {
		base, ok := settings[name]
		if !ok {
			base = Settings{Threshold: 5, RecoveryTime: time.Minute}
		}
		if s.Threshold > 0 {
			base.Threshold = s.Threshold
		}
		if s.RecoveryTime > 0 {
			base.RecoveryTime = s.RecoveryTime
		}
		settings[name] = base
	}

	r := &Registry{
		breakers: make(map[string]*Breaker, len(settings)),
		settings: settings,
		opts:     opts,
	}
	for name := range settings {
		r.breakers[name] = r.build(name)
	}
	return r
}

func (r *Registry) build(name string) *Breaker {
	s := r.settings[name]
	opts := []Option{WithFailureThreshold(s.Threshold), WithRecoveryTime(s.RecoveryTime)}
	if name == DepWebsiteScraping {
		opts = append(opts, WithFailurePredicate(siteDidNotAnswer))
	}
	opts = append(opts, r.opts...)
	return New(name, opts...)
}

// Get returns the breaker for name, creating one with default tuning for unknown names.
func (r *Registry) Get(name string) *Breaker {
	r.mu.RLock()
	b, ok := r.breakers[name]
	r.mu.RUnlock()
	if ok {
		return b
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok := r.breakers[name]; ok {
		return b
	}
	if _, ok := r.settings[name]; !ok {
		r.settings[name] = Settings{Threshold: 5, RecoveryTime: time.Minute}
	}
	b = r.build(name)
	r.breakers[name] = b
	return b
}

// Snapshot returns every breaker's state sorted by name.
func (r *Registry) Snapshot() []Snapshot {
	r.mu.RLock()
	out := make([]Snapshot, 0, len(r.breakers))
	for _, b := range r.breakers {
		out = append(out, b.Snapshot())
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Reset closes the named breaker.
func (r *Registry) Reset(name string) error {
	r.mu.RLock()
	b, ok := r.breakers[name]
	r.mu.RUnlock()
	if !ok {
		return fmt.Errorf("unknown breaker %q", name)
	}
	b.Reset()
	return nil
}

type statusCoder interface {
	HTTPStatus() int
}

// siteDidNotAnswer treats 403/404/410 as answers from a healthy site.
func siteDidNotAnswer(err error) bool {
	var sc statusCoder
	if errors.As(err, &sc) {
		switch sc.HTTPStatus() {
		case 403, 404, 410:
			return false
		}
	}
	return true
}
