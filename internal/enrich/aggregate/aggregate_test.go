package aggregate_test

import (
	"context"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shpitdev/contact-enricher/internal/enrich"
	"github.com/shpitdev/contact-enricher/internal/enrich/aggregate"
	"github.com/shpitdev/contact-enricher/internal/enrich/email"
	"github.com/shpitdev/contact-enricher/internal/enrich/linkedin"
	"github.com/shpitdev/contact-enricher/internal/enrich/website"
	"github.com/shpitdev/contact-enricher/internal/fetch"
	"github.com/shpitdev/contact-enricher/internal/resilience/circuit"
	"github.com/shpitdev/contact-enricher/internal/resilience/retry"
)

type fakeSource struct {
	name  string
	res   enrich.SourceResult
	calls atomic.Int32
	block chan struct{}
}

func (f *fakeSource) Name() string { return f.name }

func (f *fakeSource) Lookup(context.Context, enrich.Request) enrich.SourceResult {
	f.calls.Add(1)
	if f.block != nil {
		<-f.block
	}
	r := f.res
	r.Source = f.name
	return r
}

func TestEnrich_DedupsEmailsAcrossSources(t *testing.T) {
	web := &fakeSource{name: enrich.SourceWebsite, res: enrich.SourceResult{
		Emails: []enrich.EmailCandidate{{Address: "John@Acme.com", PatternUsed: enrich.PatternScraped, PatternConfidence: 70}},
	}}
	mail := &fakeSource{name: enrich.SourceEmail, res: enrich.SourceResult{
		Emails: []enrich.EmailCandidate{
			{Address: "john@acme.com", PatternUsed: email.PatternFirst, PatternConfidence: 80, Verified: true, VerificationMethod: enrich.VerifiedByMX},
			{Address: "info@acme.com", PatternUsed: email.PatternInfo, PatternConfidence: 45},
		},
	}}
	e := aggregate.New([]enrich.Source{web, mail})

	res, err := e.Enrich(context.Background(), enrich.Request{BusinessName: "Acme"})
	require.NoError(t, err)
	require.Len(t, res.Emails, 2)
	john := res.Emails[0]
	assert.Equal(t, "john@acme.com", john.Address)
	assert.True(t, john.Verified)
	assert.Equal(t, enrich.VerifiedByMX, john.VerificationMethod)
	assert.Equal(t, 80, john.PatternConfidence)
	assert.Equal(t, "info@acme.com", res.Emails[1].Address)
}

func TestEnrich_DedupsPhonesAndProfiles(t *testing.T) {
	web := &fakeSource{name: enrich.SourceWebsite, res: enrich.SourceResult{
		Phones: []string{"(512) 555-0100", "512.555.0100", "+1 512 555 0199"},
	}}
	li := &fakeSource{name: enrich.SourceLinkedIn, res: enrich.SourceResult{
		Profiles: []enrich.Profile{
			{Name: "Jane Doe", Title: "Owner", ProfileURL: "https://www.linkedin.com/in/jane-doe/"},
			{Name: "Jane Doe", Title: "Owner", ProfileURL: "https://linkedin.com/in/Jane-Doe?trk=1", Verified: true, DecisionMaker: true},
			{Name: "No Title", ProfileURL: "https://linkedin.com/in/no-title"},
			{Title: "CEO", ProfileURL: "https://linkedin.com/in/no-name"},
		},
	}}
	res, err := aggregate.New([]enrich.Source{web, li}).Enrich(context.Background(), enrich.Request{BusinessName: "Acme"})
	require.NoError(t, err)

	assert.Equal(t, []string{"(512) 555-0100", "(512) 555-0199"}, res.Phones)
	require.Len(t, res.Profiles, 1)
	assert.True(t, res.Profiles[0].Verified)
	assert.True(t, res.Profiles[0].DecisionMaker)
}

func TestEnrich_OwnerPrecedence(t *testing.T) {
	web := &fakeSource{name: enrich.SourceWebsite, res: enrich.SourceResult{OwnerNameGuess: "Web Guess", OwnerTitle: "Owner"}}
	mail := &fakeSource{name: enrich.SourceEmail, res: enrich.SourceResult{OwnerNameGuess: "Hint Name"}}
	li := &fakeSource{name: enrich.SourceLinkedIn, res: enrich.SourceResult{Profiles: []enrich.Profile{
		{Name: "Tech Person", Title: "Technician", ProfileURL: "linkedin.com/in/tech"},
		{Name: "Boss Person", Title: "President", ProfileURL: "linkedin.com/in/boss", DecisionMaker: true},
	}}}
	ctx := context.Background()
	req := enrich.Request{BusinessName: "Acme"}

	res, _ := aggregate.New([]enrich.Source{web, mail, li}).Enrich(ctx, req)
	assert.Equal(t, "Boss Person", res.OwnerName)
	assert.Equal(t, "President", res.OwnerTitle)

	res, _ = aggregate.New([]enrich.Source{web, mail}).Enrich(ctx, req)
	assert.Equal(t, "Web Guess", res.OwnerName)
	assert.Equal(t, "Owner", res.OwnerTitle)

	res, _ = aggregate.New([]enrich.Source{mail}).Enrich(ctx, req)
	assert.Equal(t, "Hint Name", res.OwnerName)
	assert.Empty(t, res.OwnerTitle)
}

func TestEnrich_WeightedConfidence(t *testing.T) {
	web := &fakeSource{name: enrich.SourceWebsite, res: enrich.SourceResult{Confidence: 100, Phones: []string{"5125550100"}}}
	mail := &fakeSource{name: enrich.SourceEmail, res: enrich.SourceResult{Confidence: 50, Emails: []enrich.EmailCandidate{{Address: "info@acme.com"}}}}
	li := &fakeSource{name: enrich.SourceLinkedIn, res: enrich.Failed(enrich.SourceLinkedIn, "blocked")}

	res, err := aggregate.New([]enrich.Source{web, mail, li}).Enrich(context.Background(), enrich.Request{BusinessName: "Acme"})
	require.NoError(t, err)
	// 0.4*100 + 0.35*50 + 0.25*0 = 57.5
	assert.Equal(t, 58, res.Confidence)
	assert.Equal(t, []string{enrich.SourceWebsite, enrich.SourceEmail}, res.SourcesUsed)
	assert.Equal(t, []string{enrich.SourceLinkedIn}, res.SourcesFailed)

	full := &fakeSource{name: enrich.SourceLinkedIn, res: enrich.SourceResult{Confidence: 100}}
	web.res.Confidence, mail.res.Confidence = 100, 100
	res, _ = aggregate.New([]enrich.Source{web, mail, full}).Enrich(context.Background(), enrich.Request{BusinessName: "Acme"})
	assert.Equal(t, 100, res.Confidence)
}

func TestEnrich_InvalidRequest(t *testing.T) {
	src := &fakeSource{name: enrich.SourceWebsite}
	_, err := aggregate.New([]enrich.Source{src}).Enrich(context.Background(), enrich.Request{Location: "Austin"})
	require.ErrorIs(t, err, enrich.ErrInvalidRequest)
	assert.Equal(t, int32(0), src.calls.Load())
}

func TestEnrich_AllSourcesFailingIsNotAnError(t *testing.T) {
	srcs := []enrich.Source{
		&fakeSource{name: enrich.SourceWebsite, res: enrich.Failed(enrich.SourceWebsite, "down")},
		&fakeSource{name: enrich.SourceEmail, res: enrich.Failed(enrich.SourceEmail, "down")},
		&fakeSource{name: enrich.SourceLinkedIn, res: enrich.Failed(enrich.SourceLinkedIn, "down")},
	}
	res, err := aggregate.New(srcs).Enrich(context.Background(), enrich.Request{BusinessName: "Acme"})
	require.NoError(t, err)
	assert.Empty(t, res.SourcesUsed)
	assert.Len(t, res.SourcesFailed, 3)
	assert.Equal(t, 0, res.Confidence)
	assert.NotNil(t, res.Emails)
}

func TestEnrich_DeadlineAbandonsSlowSources(t *testing.T) {
	slow := &fakeSource{name: enrich.SourceLinkedIn, block: make(chan struct{})}
	t.Cleanup(func() { close(slow.block) })
	fast := &fakeSource{name: enrich.SourceWebsite, res: enrich.SourceResult{Phones: []string{"5125550100"}, Confidence: 25}}

	e := aggregate.New([]enrich.Source{fast, slow}, aggregate.WithTimeout(20*time.Millisecond))
	res, err := e.Enrich(context.Background(), enrich.Request{BusinessName: "Acme"})
	require.NoError(t, err)
	assert.Equal(t, []string{enrich.SourceWebsite}, res.SourcesUsed)
	assert.Equal(t, []string{enrich.SourceLinkedIn}, res.SourcesFailed)
	require.Len(t, res.Sources, 2)
	assert.True(t, res.Sources[1].Degraded)
	assert.Contains(t, res.Sources[1].Errors[0], context.DeadlineExceeded.Error())
}

func TestEnrich_ObserverSeesResult(t *testing.T) {
	var got []enrich.Result
	e := aggregate.New(
		[]enrich.Source{&fakeSource{name: enrich.SourceWebsite}},
		aggregate.WithObserver(func(r enrich.Result, _ time.Duration) { got = append(got, r) }),
	)
	_, _ = e.Enrich(context.Background(), enrich.Request{BusinessName: "Acme"})
	require.Len(t, got, 1)
	assert.Equal(t, "Acme", got[0].Request.BusinessName)
}

func TestEnrichMany_ReportsPerItem(t *testing.T) {
	web := &fakeSource{name: enrich.SourceWebsite, res: enrich.SourceResult{Phones: []string{"5125550100"}}}
	e := aggregate.New([]enrich.Source{web})

	summary := e.EnrichMany(context.Background(), []enrich.Request{
		{BusinessName: "Acme"},
		{},
		{WebsiteURL: "globex.com"},
	}, aggregate.BatchOptions{Workers: 2})

	assert.Equal(t, 3, summary.Total)
	assert.Equal(t, 2, summary.Succeeded)
	require.Len(t, summary.Failures, 1)
	assert.Equal(t, 1, summary.Failures[0].Index)
	assert.Contains(t, summary.Failures[0].Error, enrich.ErrInvalidRequest.Error())
	assert.Equal(t, "globex.com", summary.Results[2].Request.WebsiteURL)
	assert.Error(t, summary.Err(0.9))
	assert.NoError(t, summary.Err(0))
}

type waitSource struct{ name string }

func (w waitSource) Name() string { return w.name }

func (w waitSource) Lookup(ctx context.Context, _ enrich.Request) enrich.SourceResult {
	<-ctx.Done()
	return enrich.Failed(w.name, ctx.Err().Error())
}

func TestEnrichMany_CancelledBatchAccountsForEveryItem(t *testing.T) {
	e := aggregate.New([]enrich.Source{waitSource{name: enrich.SourceWebsite}})
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	reqs := []enrich.Request{
		{BusinessName: "A"}, {BusinessName: "B"}, {BusinessName: "C"}, {BusinessName: "D"}, {BusinessName: "E"},
	}
	summary := e.EnrichMany(ctx, reqs, aggregate.BatchOptions{Workers: 1})

	assert.Equal(t, 5, summary.Total)
	assert.Equal(t, 0, summary.Succeeded)
	assert.Equal(t, 5, summary.Failed)
	require.Len(t, summary.Failures, 5)
	for i, f := range summary.Failures {
		assert.Equal(t, i, f.Index)
		assert.Equal(t, reqs[i].BusinessName, f.Request.BusinessName)
	}
	assert.Contains(t, summary.Failures[4].Error, context.DeadlineExceeded.Error())
	assert.Equal(t, "E", summary.Results[4].Request.BusinessName)
}

// End-to-end through the real adapters with faked network edges.

type siteGetter struct {
	mu    sync.Mutex
	pages map[string]string
	slow  map[string]bool
	hang  map[string]bool
}

func (g *siteGetter) Get(ctx context.Context, _ string, rawURL string) (fetch.Page, error) {
	g.mu.Lock()
	body, ok := g.pages[rawURL]
	slow := g.slow[rawURL]
	hang := g.hang[rawURL]
	g.mu.Unlock()
	if hang {
		<-ctx.Done()
		return fetch.Page{}, ctx.Err()
	}
	if slow {
		return fetch.Page{}, &net.OpError{Op: "read", Err: timeoutError{}}
	}
	if !ok {
		return fetch.Page{StatusCode: 503}, &fetch.HTTPError{Op: "get", URL: rawURL, StatusCode: 503, Status: "503 Service Unavailable"}
	}
	return fetch.Page{URL: rawURL, StatusCode: 200, Body: []byte(body)}, nil
}

type timeoutError struct{}

func (timeoutError) Error() string   { return "i/o timeout" }
func (timeoutError) Timeout() bool   { return true }
func (timeoutError) Temporary() bool { return true }

type mxResolver map[string]bool

func (r mxResolver) LookupMX(_ context.Context, name string) ([]*net.MX, error) {
	if r[name] {
		return []*net.MX{{Host: "mx." + name, Pref: 10}}, nil
	}
	return nil, &net.DNSError{Err: "no such host", Name: name, IsNotFound: true}
}

func newCore(getter *siteGetter, mx mxResolver) *aggregate.Enricher {
	breakers := circuit.NewRegistry(nil)
	exec := retry.NewExecutor(retry.WithSleeper(retry.NoWait()))
	return aggregate.New([]enrich.Source{
		website.New(getter, breakers, exec, nil),
		email.NewAdapter(email.NewVerifier(breakers, exec, email.WithResolver(mx)), nil),
		linkedin.New(getter, breakers, exec, linkedin.Config{}, nil),
	})
}

func acmeSite() *siteGetter {
	return &siteGetter{
		pages: map[string]string{
			"https://acme-hvac.com":         `<h1>Acme HVAC</h1><p>Call (512) 555-0100</p>`,
			"https://acme-hvac.com/contact": `<a href="mailto:service@acme-hvac.com">Email</a>`,
			"https://acme-hvac.com/about":   `<p>Owner: Jane Doe</p>`,
		},
		slow: map[string]bool{"https://acme-hvac.com/team": true},
	}
}

func TestEnrich_EndToEndPartialWebsite(t *testing.T) {
	core := newCore(acmeSite(), mxResolver{"acme-hvac.com": true})
	res, err := core.Enrich(context.Background(), enrich.Request{BusinessName: "Acme HVAC", WebsiteURL: "acme-hvac.com"})
	require.NoError(t, err)

	var web enrich.SourceResult
	for _, s := range res.Sources {
		if s.Source == enrich.SourceWebsite {
			web = s
		}
	}
	assert.True(t, web.Degraded, "website lost /team")
	require.Len(t, web.Errors, 1)
	assert.True(t, strings.HasPrefix(web.Errors[0], "GET /team:"))

	assert.Contains(t, res.SourcesUsed, enrich.SourceWebsite)
	assert.NotContains(t, res.SourcesFailed, enrich.SourceWebsite)
	assert.Contains(t, res.SourcesFailed, enrich.SourceLinkedIn)

	var info *enrich.EmailCandidate
	for i := range res.Emails {
		if res.Emails[i].Address == "info@acme-hvac.com" {
			info = &res.Emails[i]
		}
	}
	require.NotNil(t, info)
	assert.True(t, info.Verified)
	assert.Equal(t, enrich.VerifiedByMX, info.VerificationMethod)

	assert.Equal(t, "Jane Doe", res.OwnerName)
	assert.Equal(t, []string{"(512) 555-0100"}, res.Phones)
	assert.GreaterOrEqual(t, res.Confidence, 0)
	assert.LessOrEqual(t, res.Confidence, 100)
}

func TestEnrich_IdempotentForIdenticalInput(t *testing.T) {
	core := newCore(acmeSite(), mxResolver{"acme-hvac.com": true})
	req := enrich.Request{BusinessName: "Acme HVAC", WebsiteURL: "acme-hvac.com"}

	first, err := core.Enrich(context.Background(), req)
	require.NoError(t, err)
	second, err := core.Enrich(context.Background(), req)
	require.NoError(t, err)

	addrs := func(r enrich.Result) []string {
		var out []string
		for _, e := range r.Emails {
			out = append(out, e.Address)
		}
		return out
	}
	assert.Equal(t, addrs(first), addrs(second))
	assert.Equal(t, first.Phones, second.Phones)
	assert.Equal(t, first.Profiles, second.Profiles)
}

func TestEnrich_DeadlineKeepsPagesFetchedInTime(t *testing.T) {
	site := acmeSite()
	site.slow = nil
	site.hang = map[string]bool{"https://acme-hvac.com/team": true}
	breakers := circuit.NewRegistry(nil)
	exec := retry.NewExecutor(retry.WithSleeper(retry.NoWait()))
	core := aggregate.New(
		[]enrich.Source{website.New(site, breakers, exec, nil)},
		aggregate.WithTimeout(50*time.Millisecond),
	)

	for i := 0; i < 20; i++ {
		res, err := core.Enrich(context.Background(), enrich.Request{BusinessName: "Acme HVAC", WebsiteURL: "acme-hvac.com"})
		require.NoError(t, err)
		require.Len(t, res.Sources, 1)
		web := res.Sources[0]
		assert.True(t, web.Degraded)
		require.Len(t, web.Errors, 1, "run %d", i)
		assert.True(t, strings.HasPrefix(web.Errors[0], "GET /team:"), "run %d: %v", i, web.Errors)
		assert.Equal(t, []string{enrich.SourceWebsite}, res.SourcesUsed, "run %d", i)
		assert.Equal(t, []string{"(512) 555-0100"}, res.Phones, "run %d", i)
		assert.Equal(t, "Jane Doe", res.OwnerName, "run %d", i)
	}
}
