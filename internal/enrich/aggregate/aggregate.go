// Package aggregate fans a request out to every source and merges what comes back.
package aggregate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/shpitdev/contact-enricher/internal/enrich"
	"github.com/shpitdev/contact-enricher/internal/enrich/batch"
	"github.com/shpitdev/contact-enricher/internal/worker"
)

// DefaultWeights are the per-source shares of the merged confidence.
var DefaultWeights = map[string]float64{
	enrich.SourceWebsite:  0.40,
	enrich.SourceEmail:    0.35,
	enrich.SourceLinkedIn: 0.25,
}

// Enricher is the single entry point of the enrichment core.
type Enricher struct {
	sources  []enrich.Source
	weights  map[string]float64
	timeout  time.Duration
	grace    time.Duration
	logger   *slog.Logger
	observer func(enrich.Result, time.Duration)
}

type Option func(*Enricher)

// DefaultGrace is how long Enrich waits past its deadline for sources to hand back
// partial results.
const DefaultGrace = 100 * time.Millisecond

// WithTimeout bounds each Enrich call. Sources still running at the deadline are reported
// as degraded.
func WithTimeout(d time.Duration) Option {
	return func(e *Enricher) { e.timeout = d }
}

// WithGrace overrides DefaultGrace.
func WithGrace(d time.Duration) Option {
	return func(e *Enricher) {
		if d > 0 {
			e.grace = d
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(e *Enricher) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithWeights overrides DefaultWeights.
func WithWeights(w map[string]float64) Option {
	return func(e *Enricher) {
		if len(w) > 0 {
			e.weights = w
		}
	}
}

// WithObserver registers a hook called after every Enrich.
func WithObserver(fn func(res enrich.Result, elapsed time.Duration)) Option {
	return func(e *Enricher) { e.observer = fn }
}

func New(sources []enrich.Source, opts ...Option) *Enricher {
	e := &Enricher{
		sources: sources,
		weights: DefaultWeights,
		grace:   DefaultGrace,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.With("component", "aggregate")
	return e
}

type outcome struct {
	idx int
	res enrich.SourceResult
}

// Enrich runs every source concurrently and merges their results. It only fails for a
// request that names neither a business nor a website.
func (e *Enricher) Enrich(ctx context.Context, req enrich.Request) (enrich.Result, error) {
	req = req.Normalize()
	if err := req.Validate(); err != nil {
		return enrich.Result{Request: req}, err
	}
	start := time.Now()

	runCtx, cancel := ctx, context.CancelFunc(func() {})
	if e.timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, e.timeout)
	}
	defer cancel()

	// Buffered so sources finishing after the deadline never block.
	ch := make(chan outcome, len(e.sources))
	for i, src := range e.sources {
		go func() {
			ch <- outcome{idx: i, res: src.Lookup(runCtx, req)}
		}()
	}

	results := make([]enrich.SourceResult, len(e.sources))
	got := make([]bool, len(e.sources))
	deadline := runCtx.Done()
	var grace <-chan time.Time
collect:
	for pending := len(e.sources); pending > 0; {
		select {
		case o := <-ch:
			results[o.idx] = o.res
			got[o.idx] = true
			pending--
		case <-deadline:
			// Sources return their partial results once ctx is done; wait briefly for them.
			deadline = nil
			grace = time.After(e.grace)
		case <-grace:
			break collect
		}
	}
	for i, src := range e.sources {
		if !got[i] {
			results[i] = enrich.Failed(src.Name(), "abandoned: "+runCtx.Err().Error())
		}
	}

	out := e.merge(req, results)
	elapsed := time.Since(start)
	e.logger.Info("enrichment finished",
		"business", req.BusinessName,
		"confidence", out.Confidence,
		"sources_used", out.SourcesUsed,
		"sources_failed", out.SourcesFailed,
		"emails", len(out.Emails),
		"profiles", len(out.Profiles),
		"elapsed", elapsed,
	)
	if e.observer != nil {
		e.observer(out, elapsed)
	}
	return out, nil
}

// BatchOptions configures EnrichMany.
type BatchOptions struct {
	Workers      int
	RateLimitRPS float64
}

// EnrichMany enriches every request and reports the per-item breakdown. It never aborts
// on item failure.
func (e *Enricher) EnrichMany(ctx context.Context, reqs []enrich.Request, opts BatchOptions) batch.Summary {
	collector := batch.NewCollector(len(reqs))
	seen := make([]bool, len(reqs))
	_, err := worker.ProcessAllWithCallback(ctx, reqs, e.Enrich,
		func(r worker.Result[enrich.Request, enrich.Result]) error {
			seen[r.Index] = true
			collector.Record(r.Index, r.Input, r.Output, r.Err)
			return nil
		},
		worker.Options{
			Workers:       opts.Workers,
			RateLimitRPS:  opts.RateLimitRPS,
			FailurePolicy: worker.FailurePolicyPartialOutput,
		},
	)
	if err != nil {
		e.logger.Warn("batch interrupted", "error", err)
	}
	// Items the pool dropped on cancellation still get a row in the breakdown.
	for i, req := range reqs {
		if seen[i] {
			continue
		}
		cause := err
		if cause == nil {
			cause = ctx.Err()
		}
		if cause == nil {
			cause = errors.New("item not processed")
		}
		collector.Record(i, req, enrich.Result{Request: req.Normalize()}, fmt.Errorf("not processed: %w", cause))
	}
	return collector.Summary()
}

func (e *Enricher) merge(req enrich.Request, results []enrich.SourceResult) enrich.Result {
	out := enrich.Result{
		Request:       req,
		Emails:        mergeEmails(results),
		Phones:        mergePhones(results),
		Profiles:      mergeProfiles(results),
		SocialLinks:   mergeLinks(results),
		SourcesUsed:   []string{},
		SourcesFailed: []string{},
		Sources:       results,
	}
	for _, r := range results {
		if r.Company != nil && out.Company == nil {
			c := *r.Company
			out.Company = &c
		}
		if r.Contributed() {
			out.SourcesUsed = append(out.SourcesUsed, r.Source)
		} else {
			out.SourcesFailed = append(out.SourcesFailed, r.Source)
		}
	}
	out.OwnerName, out.OwnerTitle = resolveOwner(out.Profiles, results)
	out.Confidence = e.confidence(results)
	return out
}

func (e *Enricher) confidence(results []enrich.SourceResult) int {
	var total float64
	for _, r := range results {
		total += e.weights[r.Source] * float64(enrich.Clamp(r.Confidence))
	}
	return enrich.Clamp(int(math.Round(total)))
}

// resolveOwner applies the owner precedence: a LinkedIn decision maker, then the website
// guess, then the email source's hint.
func resolveOwner(profiles []enrich.Profile, results []enrich.SourceResult) (name, title string) {
	var best *enrich.Profile
	for i := range profiles {
		p := &profiles[i]
		if !p.DecisionMaker {
			continue
		}
		if best == nil || (p.Verified && !best.Verified) {
			best = p
		}
	}
	if best != nil {
		return best.Name, best.Title
	}
	for _, src := range []string{enrich.SourceWebsite, enrich.SourceEmail} {
		for _, r := range results {
			if r.Source == src && r.OwnerNameGuess != "" {
				return r.OwnerNameGuess, r.OwnerTitle
			}
		}
	}
	return "", ""
}
