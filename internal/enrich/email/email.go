// Package email generates likely addresses for a business and verifies them.
package email

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/shpitdev/contact-enricher/internal/enrich"
	"github.com/shpitdev/contact-enricher/internal/fetch"
	"github.com/shpitdev/contact-enricher/internal/util"
)

// Checkers builds the configured API checkers in cascade order, skipping those without a
// key.
func Checkers(getter fetch.Getter, hunter HunterConfig, zeroBounce ZeroBounceConfig) []Checker {
	var out []Checker
	if h := NewHunter(getter, hunter); h != nil {
		out = append(out, h)
	}
	if z := NewZeroBounce(getter, zeroBounce); z != nil {
		out = append(out, z)
	}
	return out
}

// Adapter is the email source.
type Adapter struct {
	verifier    *Verifier
	concurrency int
	logger      *slog.Logger
}

func NewAdapter(verifier *Verifier, logger *slog.Logger) *Adapter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Adapter{verifier: verifier, concurrency: 4, logger: logger.With("component", "email")}
}

func (a *Adapter) Name() string { return enrich.SourceEmail }

func (a *Adapter) Lookup(ctx context.Context, req enrich.Request) enrich.SourceResult {
	req = req.Normalize()
	domain := DomainFor(req.WebsiteURL, req.BusinessName)
	if domain == "" {
		return enrich.Failed(enrich.SourceEmail, "no domain to generate addresses for")
	}
	candidates := Generate(req.OwnerNameHint, domain)

	var (
		mu       sync.Mutex
		problems = map[string]bool{}
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.concurrency)
	for i := range candidates {
		g.Go(func() error {
			verdict, errs := a.verifier.Verify(gctx, candidates[i].Address)
			candidates[i].Verified = verdict.Definitive && verdict.Valid
			if candidates[i].Verified {
				candidates[i].VerificationMethod = verdict.Method
			}
			if len(errs) > 0 {
				mu.Lock()
				for _, err := range errs {
					problems[util.RedactErr(err)] = true
				}
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	sort.SliceStable(candidates, func(i, j int) bool { return candidates[i].Score() > candidates[j].Score() })

	out := enrich.SourceResult{
		Source:     enrich.SourceEmail,
		Emails:     candidates,
		Confidence: confidence(candidates),
		Degraded:   len(problems) > 0,
	}
	if first, last := SplitName(req.OwnerNameHint); first != "" && last != "" {
		out.OwnerNameGuess = strings.Join(strings.Fields(req.OwnerNameHint), " ")
	}
	for p := range problems {
		out.Errors = append(out.Errors, p)
	}
	sort.Strings(out.Errors)

	a.logger.Debug("email candidates verified",
		"domain", domain,
		"candidates", len(candidates),
		"verified", countVerified(candidates),
		"errors", len(out.Errors),
	)
	return out
}

// confidence is the best pattern confidence among verified candidates.
func confidence(cs []enrich.EmailCandidate) int {
	best := 0
	for _, c := range cs {
		if c.Verified && c.PatternConfidence > best {
			best = c.PatternConfidence
		}
	}
	return enrich.Clamp(best)
}

func countVerified(cs []enrich.EmailCandidate) int {
	n := 0
	for _, c := range cs {
		if c.Verified {
			n++
		}
	}
	return n
}
