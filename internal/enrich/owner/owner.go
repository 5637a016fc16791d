// Package owner guesses a business owner's name and title from website text.
package owner

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/shpitdev/contact-enricher/internal/resilience/circuit"
	"github.com/shpitdev/contact-enricher/internal/resilience/retry"
	"github.com/shpitdev/contact-enricher/internal/util"
)

// Extraction methods.
const (
	MethodRegex = "regex"
	MethodAI    = "ai"
)

// Input is the material an extractor works from.
type Input struct {
	BusinessName string
	Text         string
}

// Guess is an extracted owner. An empty Name means nothing was found.
type Guess struct {
	Name   string
	Title  string
	Method string
}

func (g Guess) Found() bool { return strings.TrimSpace(g.Name) != "" }

// Extractor is the owner-extraction strategy.
type Extractor interface {
	Extract(ctx context.Context, in Input) (Guess, error)
}

// ExtractorFunc adapts a function to Extractor.
type ExtractorFunc func(ctx context.Context, in Input) (Guess, error)

func (f ExtractorFunc) Extract(ctx context.Context, in Input) (Guess, error) { return f(ctx, in) }

// Fallback tries an AI-backed primary extractor under the AI breaker and the generic API
// retry preset, and falls back to the secondary when the primary errors or finds nothing.
type Fallback struct {
	primary   Extractor
	secondary Extractor
	breaker   *circuit.Breaker
	exec      *retry.Executor
	logger    *slog.Logger
	maxText   int
}

// NewFallback builds the chain. breaker may be nil in tests.
func NewFallback(primary, secondary Extractor, breaker *circuit.Breaker, exec *retry.Executor, logger *slog.Logger) *Fallback {
	if logger == nil {
		logger = slog.Default()
	}
	if exec == nil {
		exec = retry.NewExecutor(retry.WithLogger(logger))
	}
	return &Fallback{
		primary:   primary,
		secondary: secondary,
		breaker:   breaker,
		exec:      exec,
		logger:    logger.With("component", "owner"),
		maxText:   12000,
	}
}

func (f *Fallback) Extract(ctx context.Context, in Input) (Guess, error) {
	if f.primary != nil {
		aiIn := in
		aiIn.Text = truncate(aiIn.Text, f.maxText)
		g, err := retry.Execute(ctx, f.exec, retry.GenericAPI(), "owner.ai_extract", retry.Idempotent(func(ctx context.Context) (Guess, error) {
			if f.breaker == nil {
				return f.primary.Extract(ctx, aiIn)
			}
			return circuit.Execute(ctx, f.breaker, func(ctx context.Context) (Guess, error) {
				return f.primary.Extract(ctx, aiIn)
			})
		}))
		switch {
		case err == nil && g.Found():
			if g.Method == "" {
				g.Method = MethodAI
			}
			return g, nil
		case err != nil:
			f.logger.Info("ai owner extraction unavailable, using fallback", "error", util.RedactErr(err))
		}
	}
	if f.secondary == nil {
		return Guess{}, errors.New("no owner extractor configured")
	}
	return f.secondary.Extract(ctx, in)
}

// truncate cuts s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
