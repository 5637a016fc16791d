// Package website scrapes a business's own site for contact details.
package website

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/shpitdev/contact-enricher/internal/enrich"
	"github.com/shpitdev/contact-enricher/internal/enrich/owner"
	"github.com/shpitdev/contact-enricher/internal/fetch"
	"github.com/shpitdev/contact-enricher/internal/resilience/circuit"
	"github.com/shpitdev/contact-enricher/internal/resilience/retry"
	"github.com/shpitdev/contact-enricher/internal/util"
)

// DefaultPages are fetched relative to the site root; "" is the home page.
var DefaultPages = []string{"", "/contact", "/about", "/team"}

// Adapter is the website source.
type Adapter struct {
	getter  fetch.Getter
	breaker *circuit.Breaker
	exec    *retry.Executor
	owner   owner.Extractor
	pages   []string
	logger  *slog.Logger
}

type Option func(*Adapter)

// WithPages overrides the sub-pages fetched per site.
func WithPages(pages ...string) Option {
	return func(a *Adapter) { a.pages = append([]string(nil), pages...) }
}

func WithLogger(l *slog.Logger) Option {
	return func(a *Adapter) {
		if l != nil {
			a.logger = l
		}
	}
}

// New builds the adapter. extractor defaults to the regex-only owner extractor.
func New(getter fetch.Getter, breakers *circuit.Registry, exec *retry.Executor, extractor owner.Extractor, opts ...Option) *Adapter {
	if extractor == nil {
		extractor = owner.Regex{}
	}
	if exec == nil {
		exec = retry.NewExecutor()
	}
	a := &Adapter{
		getter:  getter,
		breaker: breakers.Get(circuit.DepWebsiteScraping),
		exec:    exec,
		owner:   extractor,
		pages:   DefaultPages,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	a.logger = a.logger.With("component", "website")
	return a
}

func (a *Adapter) Name() string { return enrich.SourceWebsite }

type pageResult struct {
	path string
	doc  fetch.Document
	err  error
}

func (a *Adapter) Lookup(ctx context.Context, req enrich.Request) enrich.SourceResult {
	req = req.Normalize()
	if req.WebsiteURL == "" {
		return enrich.Failed(enrich.SourceWebsite, "no website url")
	}
	base, err := SiteRoot(req.WebsiteURL)
	if err != nil {
		return enrich.Failed(enrich.SourceWebsite, err.Error())
	}

	results := make([]pageResult, len(a.pages))
	g, gctx := errgroup.WithContext(ctx)
	for i, path := range a.pages {
		g.Go(func() error {
			doc, err := a.fetchPage(gctx, base+path)
			results[i] = pageResult{path: path, doc: doc, err: err}
			// Sub-page failures are tolerated; never cancel the siblings.
			return nil
		})
	}
	_ = g.Wait()

	var (
		docs     []fetch.Document
		failures []string
	)
	for _, r := range results {
		if r.err != nil {
			failures = append(failures, fmt.Sprintf("GET %s: %s", pageLabel(r.path), util.RedactErr(r.err)))
			continue
		}
		docs = append(docs, r.doc)
	}
	if len(docs) == 0 {
		a.logger.Info("website unreachable", "url", base, "failed_pages", len(failures))
		return enrich.SourceResult{Source: enrich.SourceWebsite, Degraded: true, Errors: failures}
	}

	ex := extract(docs)
	out := enrich.SourceResult{
		Source:      enrich.SourceWebsite,
		Emails:      ex.emailCandidates(),
		Phones:      ex.phones,
		SocialLinks: ex.socialLinks(),
		Degraded:    len(failures) > 0,
		Errors:      failures,
	}

	guess, err := a.owner.Extract(ctx, owner.Input{BusinessName: req.BusinessName, Text: ex.text})
	if err != nil {
		a.logger.Info("owner extraction failed", "url", base, "error", util.RedactErr(err))
	}
	if guess.Found() {
		out.OwnerNameGuess = guess.Name
		out.OwnerTitle = guess.Title
	}

	out.Confidence = score(out, ex, len(failures))
	a.logger.Debug("website scraped",
		"url", base,
		"pages_ok", len(docs),
		"pages_failed", len(failures),
		"emails", len(out.Emails),
		"phones", len(out.Phones),
		"confidence", out.Confidence,
	)
	return out
}

func (a *Adapter) fetchPage(ctx context.Context, pageURL string) (fetch.Document, error) {
	page, err := retry.Execute(ctx, a.exec, retry.WebsiteFetch(), "website.fetch", retry.Idempotent(func(ctx context.Context) (fetch.Page, error) {
		return circuit.Execute(ctx, a.breaker, func(ctx context.Context) (fetch.Page, error) {
			return a.getter.Get(ctx, "website.fetch", pageURL)
		})
	}))
	if err != nil {
		return fetch.Document{}, err
	}
	return fetch.ParseHTML(page.Body), nil
}

// score applies the website confidence formula.
func score(r enrich.SourceResult, ex extraction, failedPages int) int {
	s := 0
	if len(r.Emails) > 0 {
		s += 30
	}
	if len(r.Phones) > 0 {
		s += 25
	}
	if r.OwnerNameGuess != "" {
		s += 25
	}
	if len(ex.linkedin) > 0 {
		s += 10
	}
	if len(ex.facebook) > 0 {
		s += 5
	}
	if r.OwnerTitle != "" {
		s += 5
	}
	s -= 10 * failedPages
	return enrich.Clamp(s)
}

// SiteRoot turns a user-entered website into "scheme://host" with https as the default.
func SiteRoot(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("empty website url")
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("invalid website url: %w", err)
	}
	if u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return "", fmt.Errorf("invalid website url %q", raw)
	}
	return u.Scheme + "://" + u.Host, nil
}

func pageLabel(path string) string {
	if path == "" {
		return "/"
	}
	return path
}
