// Package mocksources is an in-process fake of every external source the enricher talks to:
// business websites, Google and Bing result pages, LinkedIn, and the Hunter and ZeroBounce
// verification APIs.
package mocksources

import (
	"encoding/json"
	"fmt"
	"html"
	"net"
	"net/http"
	"strings"
	"sync"
)

// Path prefixes of the fake API surface, to be used as base URLs in the enricher's config.
const (
	PrefixGoogle     = "/google"
	PrefixBing       = "/bing"
	PrefixLinkedIn   = "/linkedin"
	PrefixHunter     = "/hunter"
	PrefixZeroBounce = "/zerobounce"
)

// Call records a request made to the mock service.
type Call struct {
	Host   string
	Method string
	Path   string
	Query  string
}

// Server implements the fake sources. Websites are selected by the request's Host.
type Server struct {
	mu         sync.Mutex
	calls      []Call
	businesses []Business
	byDomain   map[string]*Business

	apiKey string
	// blockLinkedIn makes the direct LinkedIn tier answer with an authwall.
	blockLinkedIn bool
}

// New constructs a mock server over the given businesses.
func New(businesses ...Business) *Server {
	s := &Server{
		businesses:    businesses,
		byDomain:      make(map[string]*Business, len(businesses)),
		blockLinkedIn: true,
	}
	for i := range s.businesses {
		b := &s.businesses[i]
		s.byDomain[strings.ToLower(b.Domain)] = b
		s.byDomain["www."+strings.ToLower(b.Domain)] = b
	}
	return s
}

// RequireAPIKey enforces the api_key query parameter on the verification APIs.
// If key is empty, it is not enforced.
func (s *Server) RequireAPIKey(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.apiKey = strings.TrimSpace(key)
}

// BlockLinkedIn toggles the authwall on the direct LinkedIn tier (on by default).
func (s *Server) BlockLinkedIn(block bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blockLinkedIn = block
}

// Handler returns an http.Handler that serves websites by Host and the APIs by path.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(PrefixGoogle+"/search", s.handleSearch)
	mux.HandleFunc(PrefixBing+"/search", s.handleSearch)
	mux.HandleFunc(PrefixLinkedIn+"/search/results/people/", s.handleLinkedIn)
	mux.HandleFunc(PrefixHunter+"/v2/email-verifier", s.handleHunter)
	mux.HandleFunc(PrefixZeroBounce+"/v2/validate", s.handleZeroBounce)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.recordCall(r)
		if b := s.business(hostOnly(r.Host)); b != nil {
			serveSite(w, r, b)
			return
		}
		mux.ServeHTTP(w, r)
	})
}

// SiteHandler serves one business's website at the root, for running each site on its
// own listener.
func (s *Server) SiteHandler(domain string) (http.Handler, error) {
	b := s.business(strings.ToLower(domain))
	if b == nil {
		return nil, fmt.Errorf("unknown business domain %q", domain)
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.recordCall(r)
		serveSite(w, r, b)
	}), nil
}

// Businesses returns the configured fixtures.
func (s *Server) Businesses() []Business {
	return append([]Business(nil), s.businesses...)
}

// Calls returns a snapshot of calls made to the server.
func (s *Server) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Call, len(s.calls))
	copy(out, s.calls)
	return out
}

func (s *Server) recordCall(r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, Call{Host: hostOnly(r.Host), Method: r.Method, Path: r.URL.Path, Query: r.URL.RawQuery})
}

func (s *Server) business(host string) *Business {
	return s.byDomain[strings.ToLower(host)]
}

// businessInQuery finds the business whose quoted name appears in a search query.
func (s *Server) businessInQuery(q string) *Business {
	q = strings.ToLower(q)
	for i := range s.businesses {
		b := &s.businesses[i]
		if strings.Contains(q, strings.ToLower(b.Name)) {
			return b
		}
	}
	return nil
}

func serveSite(w http.ResponseWriter, r *http.Request, b *Business) {
	path := r.URL.Path
	if path == "" {
		path = "/"
	}
	if code, ok := b.FailPages[path]; ok {
		http.Error(w, http.StatusText(code), code)
		return
	}
	page, ok := b.Pages[path]
	if !ok {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte(page))
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	q := r.URL.Query().Get("q")
	b := s.businessInQuery(q)

	var sb strings.Builder
	sb.WriteString("<html><body><div id=\"search\">\n")
	switch {
	case b == nil:
	case strings.Contains(q, "/company/"):
		if b.Company != nil {
			fmt.Fprintf(&sb, "<a href=\"https://www.linkedin.com/company/%s/\"><h3>%s | LinkedIn</h3></a>\n",
				b.Company.Slug, html.EscapeString(b.Name))
			fmt.Fprintf(&sb, "<p>%s. Industry: %s. %s employees on LinkedIn.</p>\n",
				html.EscapeString(b.Name), html.EscapeString(b.Company.Industry), html.EscapeString(b.Company.Size))
		}
	default:
		for _, p := range b.People {
			fmt.Fprintf(&sb, "<a href=\"/url?q=https://www.linkedin.com/in/%s/&amp;sa=U\"><h3>%s - %s - %s | LinkedIn</h3></a>\n",
				p.Slug, html.EscapeString(p.Name), html.EscapeString(p.Title), html.EscapeString(b.Name))
		}
	}
	sb.WriteString("</div></body></html>")
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte(sb.String()))
}

func (s *Server) handleLinkedIn(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	blocked := s.blockLinkedIn
	s.mu.Unlock()
	if blocked {
		w.WriteHeader(999)
		_, _ = w.Write([]byte("<html><body>Join LinkedIn to see more. authwall</body></html>"))
		return
	}
	b := s.businessInQuery(r.URL.Query().Get("keywords"))
	var sb strings.Builder
	sb.WriteString("<html><body>\n")
	if b != nil {
		for _, p := range b.People {
			fmt.Fprintf(&sb, "<a href=\"https://www.linkedin.com/in/%s\">%s - %s at %s</a>\n",
				p.Slug, html.EscapeString(p.Name), html.EscapeString(p.Title), html.EscapeString(b.Name))
		}
	}
	sb.WriteString("</body></html>")
	_, _ = w.Write([]byte(sb.String()))
}

// mailbox reports whether addr is deliverable and whether its domain is known at all.
func (s *Server) mailbox(addr string) (deliverable, known bool) {
	addr = strings.ToLower(strings.TrimSpace(addr))
	at := strings.LastIndex(addr, "@")
	if at < 0 {
		return false, false
	}
	b := s.business(addr[at+1:])
	if b == nil {
		return false, false
	}
	for _, m := range b.Mailboxes {
		if strings.EqualFold(m, addr) {
			return true, true
		}
	}
	return false, true
}

func (s *Server) authorizeKey(w http.ResponseWriter, r *http.Request) bool {
	s.mu.Lock()
	expected := s.apiKey
	s.mu.Unlock()
	if expected == "" || r.URL.Query().Get("api_key") == expected {
		return true
	}
	writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid api key"})
	return false
}

func (s *Server) handleHunter(w http.ResponseWriter, r *http.Request) {
	if !s.authorizeKey(w, r) {
		return
	}
	deliverable, known := s.mailbox(r.URL.Query().Get("email"))
	result, score := "unknown", 0
	switch {
	case deliverable:
		result, score = "deliverable", 96
	case known:
		result, score = "undeliverable", 12
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"data": map[string]any{"result": result, "status": result, "score": score},
	})
}

func (s *Server) handleZeroBounce(w http.ResponseWriter, r *http.Request) {
	if !s.authorizeKey(w, r) {
		return
	}
	deliverable, known := s.mailbox(r.URL.Query().Get("email"))
	status := "unknown"
	switch {
	case deliverable:
		status = "valid"
	case known:
		status = "invalid"
	}
	writeJSON(w, http.StatusOK, map[string]string{"address": r.URL.Query().Get("email"), "status": status})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func hostOnly(hostport string) string {
	if h, _, err := net.SplitHostPort(hostport); err == nil {
		return h
	}
	return hostport
}
