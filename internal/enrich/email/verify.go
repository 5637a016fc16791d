package email

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/shpitdev/contact-enricher/internal/cache"
	"github.com/shpitdev/contact-enricher/internal/enrich"
	"github.com/shpitdev/contact-enricher/internal/fetch"
	"github.com/shpitdev/contact-enricher/internal/resilience/circuit"
	"github.com/shpitdev/contact-enricher/internal/resilience/retry"
	"github.com/shpitdev/contact-enricher/internal/util"
)

var syntaxRe = regexp.MustCompile(`^[a-z0-9._%+\-]+@[a-z0-9](?:[a-z0-9\-]*[a-z0-9])?(?:\.[a-z0-9](?:[a-z0-9\-]*[a-z0-9])?)*\.[a-z]{2,}$`)

// ValidSyntax reports whether addr is a plausible address.
func ValidSyntax(addr string) bool {
	addr = enrich.NormalizeEmail(addr)
	if len(addr) > 254 || strings.Contains(addr, "..") {
		return false
	}
	return syntaxRe.MatchString(addr)
}

// Verdict is the outcome of one cascade step. A step that is not Definitive passes the
// address on to the next one.
type Verdict struct {
	Definitive bool   `msgpack:"definitive"`
	Valid      bool   `msgpack:"valid"`
	Method     string `msgpack:"method"`
}

// Checker is an optional third-party verification API.
type Checker interface {
	Name() string
	Check(ctx context.Context, addr string) (Verdict, error)
}

// MXResolver is satisfied by *net.Resolver.
type MXResolver interface {
	LookupMX(ctx context.Context, name string) ([]*net.MX, error)
}

// Verifier runs the verification cascade: syntax, each configured API checker in order,
// then DNS MX.
type Verifier struct {
	checkers []Checker
	resolver MXResolver
	store    cache.Store
	ttl      time.Duration
	breaker  *circuit.Breaker
	exec     *retry.Executor
	logger   *slog.Logger
}

type VerifierOption func(*Verifier)

// WithCheckers appends API checkers in priority order.
func WithCheckers(cs ...Checker) VerifierOption {
	return func(v *Verifier) {
		for _, c := range cs {
			if c != nil {
				v.checkers = append(v.checkers, c)
			}
		}
	}
}

func WithResolver(r MXResolver) VerifierOption {
	return func(v *Verifier) {
		if r != nil {
			v.resolver = r
		}
	}
}

// WithCache stores verdicts and MX lookups; ttl <= 0 uses cache.DefaultTTL.
func WithCache(s cache.Store, ttl time.Duration) VerifierOption {
	return func(v *Verifier) {
		if s != nil {
			v.store = s
		}
		if ttl > 0 {
			v.ttl = ttl
		}
	}
}

func WithVerifierLogger(l *slog.Logger) VerifierOption {
	return func(v *Verifier) {
		if l != nil {
			v.logger = l
		}
	}
}

func NewVerifier(breakers *circuit.Registry, exec *retry.Executor, opts ...VerifierOption) *Verifier {
	if exec == nil {
		exec = retry.NewExecutor()
	}
	v := &Verifier{
		resolver: net.DefaultResolver,
		store:    cache.NewMemory(),
		ttl:      cache.DefaultTTL,
		breaker:  breakers.Get(circuit.DepEmailVerification),
		exec:     exec,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(v)
	}
	v.logger = v.logger.With("component", "email_verify")
	return v
}

// Verify returns the first definitive verdict for addr. errs lists the steps that failed
// along the way; a failed step never stops the cascade.
func (v *Verifier) Verify(ctx context.Context, addr string) (verdict Verdict, errs []error) {
	addr = enrich.NormalizeEmail(addr)
	if !ValidSyntax(addr) {
		return Verdict{Definitive: true, Valid: false, Method: enrich.VerifiedBySyntax}, nil
	}

	key := "verify:" + addr
	var cached Verdict
	if ok, err := v.store.Get(ctx, key, &cached); err != nil {
		v.logger.Debug("verdict cache read failed", "error", util.RedactErr(err))
	} else if ok {
		return cached, nil
	}

	verdict, errs = v.cascade(ctx, addr)
	if verdict.Definitive {
		if err := v.store.Set(ctx, key, verdict, v.ttl); err != nil {
			v.logger.Debug("verdict cache write failed", "error", util.RedactErr(err))
		}
	}
	return verdict, errs
}

func (v *Verifier) cascade(ctx context.Context, addr string) (Verdict, []error) {
	var errs []error
	for _, c := range v.checkers {
		verdict, err := retry.Execute(ctx, v.exec, retry.GenericAPI(), "email.verify."+c.Name(), retry.Idempotent(func(ctx context.Context) (Verdict, error) {
			return circuit.Execute(ctx, v.breaker, func(ctx context.Context) (Verdict, error) {
				return c.Check(ctx, addr)
			})
		}))
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", c.Name(), err))
			continue
		}
		if verdict.Definitive {
			return verdict, errs
		}
	}

	domain := addr[strings.LastIndexByte(addr, '@')+1:]
	verdict, err := v.mx(ctx, domain)
	if err != nil {
		errs = append(errs, fmt.Errorf("mx: %w", err))
	}
	return verdict, errs
}

// mx answers definitively whenever DNS answered, including "no such domain".
func (v *Verifier) mx(ctx context.Context, domain string) (Verdict, error) {
	key := "mx:" + domain
	var cached Verdict
	if ok, err := v.store.Get(ctx, key, &cached); err == nil && ok {
		return cached, nil
	}

	records, err := retry.Execute(ctx, v.exec, retry.EmailVerification(), "email.verify.mx", retry.Idempotent(func(ctx context.Context) ([]*net.MX, error) {
		records, err := v.resolver.LookupMX(ctx, domain)
		var dnsErr *net.DNSError
		if errors.As(err, &dnsErr) && dnsErr.IsNotFound {
			return nil, nil
		}
		return records, err
	}))
	if err != nil {
		return Verdict{}, err
	}
	verdict := Verdict{Definitive: true, Valid: len(records) > 0, Method: enrich.VerifiedByMX}
	if err := v.store.Set(ctx, key, verdict, v.ttl); err != nil {
		v.logger.Debug("mx cache write failed", "error", util.RedactErr(err))
	}
	return verdict, nil
}

// HunterConfig configures the first verification API.
type HunterConfig struct {
	APIKey  string
	BaseURL string
}

// Hunter checks deliverability through Hunter's email-verifier endpoint.
type Hunter struct {
	getter  fetch.Getter
	apiKey  string
	baseURL string
}

// NewHunter returns nil when no API key is configured.
func NewHunter(getter fetch.Getter, cfg HunterConfig) *Hunter {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil
	}
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		base = "https://api.hunter.io"
	}
	return &Hunter{getter: getter, apiKey: strings.TrimSpace(cfg.APIKey), baseURL: base}
}

func (h *Hunter) Name() string { return enrich.VerifiedByHunter }

type hunterResponse struct {
	Data struct {
		Result string `json:"result"`
		Status string `json:"status"`
		Score  int    `json:"score"`
	} `json:"data"`
}

func (h *Hunter) Check(ctx context.Context, addr string) (Verdict, error) {
	q := url.Values{"email": {addr}, "api_key": {h.apiKey}}
	page, err := h.getter.Get(ctx, "hunter.verify", h.baseURL+"/v2/email-verifier?"+q.Encode())
	if err != nil {
		return Verdict{}, err
	}
	var resp hunterResponse
	if err := json.Unmarshal(page.Body, &resp); err != nil {
		return Verdict{}, retry.Permanent(fmt.Errorf("hunter: malformed response: %w", err))
	}
	return hunterVerdict(resp.Data.Result, resp.Data.Score), nil
}

func hunterVerdict(result string, score int) Verdict {
	v := Verdict{Method: enrich.VerifiedByHunter}
	switch strings.ToLower(strings.TrimSpace(result)) {
	case "deliverable":
		v.Definitive, v.Valid = true, true
	case "undeliverable":
		v.Definitive = true
	case "risky":
		v.Definitive, v.Valid = true, score >= 70
	default:
		// unknown and accept_all only count when Hunter is confident anyway.
		if score >= 70 {
			v.Definitive, v.Valid = true, true
		}
	}
	return v
}

// ZeroBounceConfig configures the second verification API.
type ZeroBounceConfig struct {
	APIKey  string
	BaseURL string
}

// ZeroBounce checks deliverability through ZeroBounce's validate endpoint.
type ZeroBounce struct {
	getter  fetch.Getter
	apiKey  string
	baseURL string
}

// NewZeroBounce returns nil when no API key is configured.
func NewZeroBounce(getter fetch.Getter, cfg ZeroBounceConfig) *ZeroBounce {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil
	}
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		base = "https://api.zerobounce.net"
	}
	return &ZeroBounce{getter: getter, apiKey: strings.TrimSpace(cfg.APIKey), baseURL: base}
}

func (z *ZeroBounce) Name() string { return enrich.VerifiedByZeroBounce }

type zeroBounceResponse struct {
	Status string `json:"status"`
}

func (z *ZeroBounce) Check(ctx context.Context, addr string) (Verdict, error) {
	q := url.Values{"api_key": {z.apiKey}, "email": {addr}, "ip_address": {""}}
	page, err := z.getter.Get(ctx, "zerobounce.validate", z.baseURL+"/v2/validate?"+q.Encode())
	if err != nil {
		return Verdict{}, err
	}
	var resp zeroBounceResponse
	if err := json.Unmarshal(page.Body, &resp); err != nil {
		return Verdict{}, retry.Permanent(fmt.Errorf("zerobounce: malformed response: %w", err))
	}
	return zeroBounceVerdict(resp.Status), nil
}

func zeroBounceVerdict(status string) Verdict {
	v := Verdict{Method: enrich.VerifiedByZeroBounce}
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "valid", "catch-all":
		v.Definitive, v.Valid = true, true
	case "invalid", "spamtrap", "abuse", "do_not_mail":
		v.Definitive = true
	}
	return v
}
