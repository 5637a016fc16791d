// Package linkedin finds decision makers and the company page for a business on LinkedIn,
// mostly through search engines.
package linkedin

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/shpitdev/contact-enricher/internal/enrich"
	"github.com/shpitdev/contact-enricher/internal/fetch"
	"github.com/shpitdev/contact-enricher/internal/resilience/circuit"
	"github.com/shpitdev/contact-enricher/internal/resilience/retry"
	"github.com/shpitdev/contact-enricher/internal/util"
)

// Tier names, in the order they are tried.
const (
	TierGoogle = "google"
	TierDirect = "linkedin_direct"
	TierBing   = "bing"
)

// Config points the tiers at their endpoints. Empty fields use the public sites.
type Config struct {
	GoogleURL   string `yaml:"google_url"`
	BingURL     string `yaml:"bing_url"`
	LinkedInURL string `yaml:"linkedin_url"`
	// RatePerSecond limits requests per engine; <= 0 means unlimited.
	RatePerSecond float64 `yaml:"rate_per_second"`
}

func (c Config) withDefaults() Config {
	if strings.TrimSpace(c.GoogleURL) == "" {
		c.GoogleURL = "https://www.google.com"
	}
	if strings.TrimSpace(c.BingURL) == "" {
		c.BingURL = "https://www.bing.com"
	}
	if strings.TrimSpace(c.LinkedInURL) == "" {
		c.LinkedInURL = "https://www.linkedin.com"
	}
	c.GoogleURL = strings.TrimRight(c.GoogleURL, "/")
	c.BingURL = strings.TrimRight(c.BingURL, "/")
	c.LinkedInURL = strings.TrimRight(c.LinkedInURL, "/")
	return c
}

type tier struct {
	name    string
	breaker *circuit.Breaker
	limiter *rate.Limiter
	url     func(query string) string
	query   func(req enrich.Request) string
}

// Adapter is the LinkedIn source.
type Adapter struct {
	getter fetch.Getter
	exec   *retry.Executor
	tiers  []tier
	logger *slog.Logger
}

// New builds the adapter. getter should detect anti-bot walls; see fetch.Client.WithBlockDetection.
func New(getter fetch.Getter, breakers *circuit.Registry, exec *retry.Executor, cfg Config, logger *slog.Logger) *Adapter {
	cfg = cfg.withDefaults()
	if exec == nil {
		exec = retry.NewExecutor()
	}
	if logger == nil {
		logger = slog.Default()
	}
	limit := rate.Inf
	if cfg.RatePerSecond > 0 {
		limit = rate.Limit(cfg.RatePerSecond)
	}
	search, direct := breakers.Get(circuit.DepSearch), breakers.Get(circuit.DepLinkedIn)
	return &Adapter{
		getter: getter,
		exec:   exec,
		logger: logger.With("component", "linkedin"),
		tiers: []tier{
			{
				name:    TierGoogle,
				breaker: search,
				limiter: rate.NewLimiter(limit, 1),
				url: func(q string) string {
					return cfg.GoogleURL + "/search?" + url.Values{"q": {q}, "num": {"10"}, "hl": {"en"}}.Encode()
				},
				query: PeopleQuery,
			},
			{
				name:    TierDirect,
				breaker: direct,
				limiter: rate.NewLimiter(limit, 1),
				url: func(q string) string {
					return cfg.LinkedInURL + "/search/results/people/?" + url.Values{"keywords": {q}}.Encode()
				},
				query: func(req enrich.Request) string {
					return strings.TrimSpace(req.BusinessName + " owner")
				},
			},
			{
				name:    TierBing,
				breaker: search,
				limiter: rate.NewLimiter(limit, 1),
				url: func(q string) string {
					return cfg.BingURL + "/search?" + url.Values{"q": {q}, "count": {"20"}}.Encode()
				},
				query: PeopleQuery,
			},
		},
	}
}

func (a *Adapter) Name() string { return enrich.SourceLinkedIn }

// PeopleQuery is the search-engine query for decision makers at the business.
func PeopleQuery(req enrich.Request) string {
	q := fmt.Sprintf(`site:linkedin.com/in/ "%s" (CEO OR Owner OR Founder OR President OR Director OR Manager)`, req.BusinessName)
	if req.Location != "" {
		q += " " + req.Location
	}
	return q
}

// CompanyQuery is the search-engine query for the business's company page.
func CompanyQuery(req enrich.Request) string {
	return fmt.Sprintf(`site:linkedin.com/company/ "%s"`, req.BusinessName)
}

func (a *Adapter) Lookup(ctx context.Context, req enrich.Request) enrich.SourceResult {
	req = req.Normalize()
	if req.BusinessName == "" {
		return enrich.Failed(enrich.SourceLinkedIn, "no business name to search for")
	}

	var (
		profiles   []enrich.Profile
		peopleErrs []string
		company    *enrich.Company
		companyErr error
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		profiles, peopleErrs = a.findPeople(gctx, req)
		return nil
	})
	g.Go(func() error {
		company, companyErr = a.findCompany(gctx, req)
		return nil
	})
	_ = g.Wait()

	out := enrich.SourceResult{
		Source:   enrich.SourceLinkedIn,
		Profiles: profiles,
		Company:  company,
		Errors:   peopleErrs,
	}
	if companyErr != nil {
		out.Errors = append(out.Errors, "company: "+util.RedactErr(companyErr))
	}
	// Errors from tiers that were followed by a successful one are history, not degradation.
	out.Degraded = len(profiles) == 0 && len(out.Errors) > 0
	out.Confidence = score(profiles, company)

	a.logger.Debug("linkedin lookup finished",
		"business", req.BusinessName,
		"profiles", len(profiles),
		"company_found", company != nil,
		"errors", len(out.Errors),
	)
	return out
}

// findPeople tries each tier in order and returns the first non-empty set of profiles.
func (a *Adapter) findPeople(ctx context.Context, req enrich.Request) ([]enrich.Profile, []string) {
	var errs []string
	for _, t := range a.tiers {
		body, err := a.search(ctx, t, t.query(req))
		if err != nil {
			errs = append(errs, t.name+": "+util.RedactErr(err))
			if ctx.Err() != nil {
				break
			}
			continue
		}
		if profiles := profilesFrom(body, req.BusinessName); len(profiles) > 0 {
			return profiles, errs
		}
	}
	return nil, errs
}

// findCompany asks the search-engine tiers for the company page, once.
func (a *Adapter) findCompany(ctx context.Context, req enrich.Request) (*enrich.Company, error) {
	var errs []error
	for _, t := range a.tiers {
		if t.name == TierDirect {
			continue
		}
		body, err := a.search(ctx, t, CompanyQuery(req))
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", t.name, err))
			if ctx.Err() != nil {
				break
			}
			continue
		}
		if c := parseCompany(body); c != nil {
			return c, nil
		}
		// The engine answered; a missing company page is not an error.
		return nil, nil
	}
	return nil, errors.Join(errs...)
}

func (a *Adapter) search(ctx context.Context, t tier, query string) ([]byte, error) {
	return retry.Execute(ctx, a.exec, retry.LinkedInSearch(), "linkedin."+t.name, retry.Idempotent(func(ctx context.Context) ([]byte, error) {
		if err := t.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		return circuit.Execute(ctx, t.breaker, func(ctx context.Context) ([]byte, error) {
			page, err := a.getter.Get(ctx, "linkedin."+t.name, t.url(query))
			if err != nil {
				return nil, err
			}
			return page.Body, nil
		})
	}))
}

func profilesFrom(body []byte, business string) []enrich.Profile {
	var out []enrich.Profile
	for _, h := range linkedInHits(body, "in") {
		name, title, company, ok := parseResultTitle(h.text)
		if !ok {
			continue
		}
		p := enrich.Profile{
			Name:           name,
			Title:          title,
			Company:        company,
			ProfileURL:     h.url,
			Verified:       companyMatches(company, business),
			DecisionMaker:  IsDecisionMaker(title),
			ContactMethods: []string{"linkedin"},
		}
		if p.Complete() {
			out = append(out, p)
		}
	}
	return out
}

// score applies the LinkedIn confidence formula.
func score(profiles []enrich.Profile, company *enrich.Company) int {
	s := 20 * len(profiles)
	if company != nil {
		s += 20
	}
	for _, p := range profiles {
		if p.Verified {
			s += 10
		}
		if p.DecisionMaker {
			s += 15
		}
	}
	return enrich.Clamp(s)
}
