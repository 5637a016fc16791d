// Package app wires configuration into a ready enrichment core and runs batch jobs.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/shpitdev/contact-enricher/internal/cache"
	"github.com/shpitdev/contact-enricher/internal/config"
	"github.com/shpitdev/contact-enricher/internal/enrich"
	"github.com/shpitdev/contact-enricher/internal/enrich/aggregate"
	"github.com/shpitdev/contact-enricher/internal/enrich/email"
	"github.com/shpitdev/contact-enricher/internal/enrich/gemini"
	"github.com/shpitdev/contact-enricher/internal/enrich/linkedin"
	"github.com/shpitdev/contact-enricher/internal/enrich/owner"
	"github.com/shpitdev/contact-enricher/internal/enrich/website"
	"github.com/shpitdev/contact-enricher/internal/fetch"
	"github.com/shpitdev/contact-enricher/internal/metrics"
	"github.com/shpitdev/contact-enricher/internal/resilience/circuit"
	"github.com/shpitdev/contact-enricher/internal/resilience/retry"
)

// Deps overrides process-level collaborators, mostly for tests. The zero value uses the
// real network, DNS and clock.
type Deps struct {
	Logger    *slog.Logger
	Transport http.RoundTripper
	Resolver  email.MXResolver
	Sleeper   func(ctx context.Context, d time.Duration) error
	// Registry receives the metrics; nil creates a fresh registry with Go/process collectors.
	Registry *prometheus.Registry
}

// App is the assembled enrichment core.
type App struct {
	Enricher *aggregate.Enricher
	Breakers *circuit.Registry
	Metrics  *metrics.Metrics
	Registry *prometheus.Registry

	closers []func() error
}

// Build assembles every adapter from cfg.
func Build(ctx context.Context, cfg config.Config, deps Deps) (*App, error) {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	reg := deps.Registry
	if reg == nil {
		reg = prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	}
	m := metrics.New(reg)

	execOpts := []retry.Option{retry.WithLogger(logger), retry.WithObserver(m.ObserveAttempt)}
	if deps.Sleeper != nil {
		execOpts = append(execOpts, retry.WithSleeper(deps.Sleeper))
	}
	exec := retry.NewExecutor(execOpts...)

	breakers := circuit.NewRegistry(cfg.Breakers,
		circuit.WithLogger(logger),
		circuit.WithStateChange(m.BreakerTransition),
		circuit.WithRejectHook(m.BreakerRejected),
	)
	m.SeedBreakers(breakers.Snapshot())

	client, err := fetch.NewClient(fetch.Options{
		Timeout:    cfg.HTTP.Timeout,
		UserAgents: cfg.HTTP.UserAgents,
		CAPath:     cfg.HTTP.CAPath,
		Transport:  deps.Transport,
	})
	if err != nil {
		return nil, fmt.Errorf("http client: %w", err)
	}

	a := &App{Breakers: breakers, Metrics: m, Registry: reg}

	var store cache.Store = cache.NewMemory()
	if cfg.Cache.Redis.URL != "" {
		rc, err := cache.NewRedis(ctx, cfg.Cache.Redis, exec)
		if err != nil {
			return nil, fmt.Errorf("redis cache: %w", err)
		}
		a.closers = append(a.closers, rc.Close)
		store = rc
	}

	var extractor owner.Extractor = owner.Regex{}
	if cfg.AI.Enabled() {
		gem, err := gemini.New(ctx, gemini.Config{APIKey: cfg.AI.APIKey, Model: cfg.AI.Model, BaseURL: cfg.AI.BaseURL})
		if err != nil {
			return nil, fmt.Errorf("gemini: %w", err)
		}
		extractor = owner.NewFallback(gem, owner.Regex{}, breakers.Get(circuit.DepAI), exec, logger)
	}

	verifierOpts := []email.VerifierOption{
		email.WithCheckers(email.Checkers(client,
			email.HunterConfig{APIKey: cfg.Email.HunterAPIKey, BaseURL: cfg.Email.HunterURL},
			email.ZeroBounceConfig{APIKey: cfg.Email.ZeroBounceAPIKey, BaseURL: cfg.Email.ZeroBounceURL},
		)...),
		email.WithCache(store, cfg.Cache.TTL),
		email.WithVerifierLogger(logger),
	}
	if deps.Resolver != nil {
		verifierOpts = append(verifierOpts, email.WithResolver(deps.Resolver))
	}

	sources := []enrich.Source{
		website.New(client, breakers, exec, extractor, website.WithLogger(logger)),
		email.NewAdapter(email.NewVerifier(breakers, exec, verifierOpts...), logger),
		linkedin.New(client.WithBlockDetection(), breakers, exec, cfg.Search, logger),
	}
	a.Enricher = aggregate.New(sources,
		aggregate.WithTimeout(cfg.Batch.RequestTimeout),
		aggregate.WithLogger(logger),
		aggregate.WithObserver(m.ObserveEnrichment),
	)

	logger.Info("enricher ready",
		"ai_extractor", cfg.AI.Enabled(),
		"verifiers", verifierNames(cfg),
		"redis_cache", cfg.Cache.Redis.URL != "",
		"request_timeout", cfg.Batch.RequestTimeout,
	)
	return a, nil
}

// Close releases external connections.
func (a *App) Close() error {
	var first error
	for _, c := range a.closers {
		if err := c(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func verifierNames(cfg config.Config) []string {
	names := []string{}
	if cfg.Email.HunterAPIKey != "" {
		names = append(names, enrich.VerifiedByHunter)
	}
	if cfg.Email.ZeroBounceAPIKey != "" {
		names = append(names, enrich.VerifiedByZeroBounce)
	}
	return append(names, enrich.VerifiedByMX)
}
