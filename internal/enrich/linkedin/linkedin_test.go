package linkedin_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shpitdev/contact-enricher/internal/enrich"
	"github.com/shpitdev/contact-enricher/internal/enrich/linkedin"
	"github.com/shpitdev/contact-enricher/internal/fetch"
	"github.com/shpitdev/contact-enricher/internal/resilience/circuit"
	"github.com/shpitdev/contact-enricher/internal/resilience/retry"
)

const peoplePage = `<html><body>
<a href="/url?q=https://www.linkedin.com/in/jane-doe/&sa=U"><h3>Jane Doe - Owner - Acme HVAC | LinkedIn</h3></a>
<a href="https://uk.linkedin.com/in/jane-doe?trk=x">Jane Doe - Owner - Acme HVAC | LinkedIn</a>
<a href="https://www.linkedin.com/in/bob-roe">Bob Roe - Technician at Acme HVAC | LinkedIn</a>
<a href="https://www.linkedin.com/in/no-title">LinkedIn</a>
<a href="https://example.com/about">About</a>
</body></html>`

const companyPage = `<html><body>
<a href="https://www.linkedin.com/company/acme-hvac/">Acme HVAC | LinkedIn</a>
<p>Acme HVAC. Industry: Construction. 11-50 employees on LinkedIn.</p>
</body></html>`

type engine struct {
	mu       sync.Mutex
	calls    map[string]int
	handlers map[string]func(w http.ResponseWriter, r *http.Request, call int)
}

func (e *engine) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	tierName := strings.Split(strings.TrimPrefix(r.URL.Path, "/"), "/")[0]
	key := tierName
	if strings.Contains(r.URL.Query().Get("q"), "/company/") {
		key += ":company"
	}
	e.mu.Lock()
	if e.calls == nil {
		e.calls = map[string]int{}
	}
	e.calls[key]++
	call := e.calls[key]
	h := e.handlers[key]
	e.mu.Unlock()
	if h == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	h(w, r, call)
}

func (e *engine) count(key string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls[key]
}

func body(s string) func(http.ResponseWriter, *http.Request, int) {
	return func(w http.ResponseWriter, _ *http.Request, _ int) { _, _ = w.Write([]byte(s)) }
}

func status(code int) func(http.ResponseWriter, *http.Request, int) {
	return func(w http.ResponseWriter, _ *http.Request, _ int) { w.WriteHeader(code) }
}

func newAdapter(t *testing.T, e *engine, breakers *circuit.Registry) *linkedin.Adapter {
	t.Helper()
	srv := httptest.NewServer(e)
	t.Cleanup(srv.Close)
	client, err := fetch.NewClient(fetch.Options{})
	require.NoError(t, err)
	if breakers == nil {
		breakers = circuit.NewRegistry(nil)
	}
	return linkedin.New(
		client.WithBlockDetection(),
		breakers,
		retry.NewExecutor(retry.WithSleeper(retry.NoWait())),
		linkedin.Config{GoogleURL: srv.URL + "/google", BingURL: srv.URL + "/bing", LinkedInURL: srv.URL + "/li"},
		nil,
	)
}

var acme = enrich.Request{BusinessName: "Acme HVAC", Location: "Austin, TX"}

func TestLookup_GoogleTier(t *testing.T) {
	e := &engine{handlers: map[string]func(http.ResponseWriter, *http.Request, int){
		"google":         body(peoplePage),
		"google:company": body(companyPage),
	}}
	res := newAdapter(t, e, nil).Lookup(context.Background(), acme)

	assert.False(t, res.Degraded)
	assert.Empty(t, res.Errors)
	require.Len(t, res.Profiles, 2)

	jane := res.Profiles[0]
	assert.Equal(t, "Jane Doe", jane.Name)
	assert.Equal(t, "Owner", jane.Title)
	assert.Equal(t, "Acme HVAC", jane.Company)
	assert.Equal(t, "https://www.linkedin.com/in/jane-doe", jane.ProfileURL)
	assert.True(t, jane.Verified)
	assert.True(t, jane.DecisionMaker)

	bob := res.Profiles[1]
	assert.Equal(t, "Technician", bob.Title)
	assert.True(t, bob.Verified)
	assert.False(t, bob.DecisionMaker)

	require.NotNil(t, res.Company)
	assert.Equal(t, "Acme HVAC", res.Company.Name)
	assert.Equal(t, "https://www.linkedin.com/company/acme-hvac", res.Company.URL)
	assert.Equal(t, "11-50", res.Company.Size)
	assert.Equal(t, "Construction", res.Company.Industry)

	// 2 profiles 40 + company 20 + 2 verified 20 + 1 decision maker 15
	assert.Equal(t, 95, res.Confidence)
	assert.Equal(t, 0, e.count("bing"))
	assert.Equal(t, 0, e.count("li"))
}

func TestLookup_FallsThroughBlockedTiers(t *testing.T) {
	e := &engine{handlers: map[string]func(http.ResponseWriter, *http.Request, int){
		"google":         status(999),
		"google:company": status(999),
		"li":             body(`<html><body>Join LinkedIn. <a href="/authwall">Sign in</a> authwall</body></html>`),
		"bing":           body(peoplePage),
		"bing:company":   body(companyPage),
	}}
	res := newAdapter(t, e, nil).Lookup(context.Background(), acme)

	require.Len(t, res.Profiles, 2)
	assert.False(t, res.Degraded)
	require.Len(t, res.Errors, 2)
	assert.True(t, strings.HasPrefix(res.Errors[0], linkedin.TierGoogle+":"))
	assert.True(t, strings.HasPrefix(res.Errors[1], linkedin.TierDirect+":"))
	assert.NotNil(t, res.Company)
	assert.Equal(t, 1, e.count("google"), "blocked responses are not retried")
	assert.Equal(t, 1, e.count("li"))
}

func TestLookup_RateLimitIsRetriedOnce(t *testing.T) {
	e := &engine{handlers: map[string]func(http.ResponseWriter, *http.Request, int){
		"google": func(w http.ResponseWriter, _ *http.Request, call int) {
			if call == 1 {
				w.WriteHeader(http.StatusTooManyRequests)
				return
			}
			_, _ = w.Write([]byte(peoplePage))
		},
		"google:company": body(`<html><body>No results</body></html>`),
	}}
	res := newAdapter(t, e, nil).Lookup(context.Background(), acme)

	assert.Len(t, res.Profiles, 2)
	assert.Nil(t, res.Company)
	assert.Equal(t, 2, e.count("google"))
	assert.Empty(t, res.Errors)
}

func TestLookup_AllTiersFail(t *testing.T) {
	e := &engine{}
	res := newAdapter(t, e, nil).Lookup(context.Background(), acme)

	assert.True(t, res.Degraded)
	assert.False(t, res.Contributed())
	assert.Len(t, res.Errors, 4, "three tiers plus the company lookup")
	assert.Equal(t, 0, res.Confidence)
	assert.Equal(t, 1, e.count("google"), "503 is not retried by the search preset")
}

func TestLookup_OpenLinkedInBreakerSkipsDirectTier(t *testing.T) {
	breakers := circuit.NewRegistry(nil)
	li := breakers.Get(circuit.DepLinkedIn)
	for i := 0; i < 2; i++ {
		_ = li.Do(context.Background(), func(context.Context) error { return fetch.ErrBlocked })
	}
	require.Equal(t, circuit.StateOpen, li.State())

	e := &engine{handlers: map[string]func(http.ResponseWriter, *http.Request, int){
		"bing": body(peoplePage),
	}}
	res := newAdapter(t, e, breakers).Lookup(context.Background(), acme)
	assert.Len(t, res.Profiles, 2)
	assert.Equal(t, 0, e.count("li"))
	assert.Contains(t, strings.Join(res.Errors, "\n"), circuit.ErrOpen.Error())
}

func TestLookup_NoBusinessName(t *testing.T) {
	res := newAdapter(t, &engine{}, nil).Lookup(context.Background(), enrich.Request{WebsiteURL: "acme.com"})
	assert.True(t, res.Degraded)
	assert.False(t, res.Contributed())
}

func TestPeopleQuery(t *testing.T) {
	assert.Equal(t,
		`site:linkedin.com/in/ "Acme HVAC" (CEO OR Owner OR Founder OR President OR Director OR Manager) Austin, TX`,
		linkedin.PeopleQuery(acme))
}

func TestIsDecisionMaker(t *testing.T) {
	for _, title := range []string{"CEO", "Business Owner", "co-founder", "Operations Manager", "VP Sales", "Managing Director"} {
		assert.True(t, linkedin.IsDecisionMaker(title), title)
	}
	for _, title := range []string{"Technician", "Sales Associate", ""} {
		assert.False(t, linkedin.IsDecisionMaker(title), title)
	}
}
