// Package fetch is the GET primitive used by every source adapter.
package fetch

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

// ErrBlocked means the remote side served an anti-bot wall instead of content.
var ErrBlocked = errors.New("request blocked by anti-bot protection")

// maxBodyBytes caps how much of a page is read.
const maxBodyBytes = 2 << 20

// Page is a fetched document.
type Page struct {
	URL        string
	StatusCode int
	Body       []byte
}

// Getter is the fetch primitive adapters depend on.
type Getter interface {
	Get(ctx context.Context, op, rawURL string) (Page, error)
}

type Options struct {
	Timeout    time.Duration
	UserAgents []string
	// CAPath is an optional PEM bundle to trust for TLS.
	CAPath string
	// Transport overrides the HTTP transport (tests).
	Transport http.RoundTripper
}

// Client is an HTTP Getter with User-Agent rotation and block detection.
type Client struct {
	http         *http.Client
	ua           *UserAgents
	detectBlocks bool
}

func NewClient(opts Options) (*Client, error) {
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}
	rt := opts.Transport
	if rt == nil {
		tr, err := newTransport(opts.CAPath)
		if err != nil {
			return nil, err
		}
		rt = tr
	}
	return &Client{
		http: &http.Client{Transport: rt, Timeout: opts.Timeout},
		ua:   NewUserAgents(opts.UserAgents),
	}, nil
}

func newTransport(caPath string) (*http.Transport, error) {
	tr := http.DefaultTransport.(*http.Transport).Clone()
	if strings.TrimSpace(caPath) != "" {
		b, err := os.ReadFile(strings.TrimSpace(caPath))
		if err != nil {
			return nil, fmt.Errorf("read CA bundle: %w", err)
		}
		pool := x509.NewCertPool()
		if ok := pool.AppendCertsFromPEM(b); !ok {
			return nil, fmt.Errorf("parse CA bundle PEM: no certs found")
		}
		tr.TLSClientConfig = &tls.Config{RootCAs: pool, MinVersion: tls.VersionTLS12}
	}
	return tr, nil
}

// WithBlockDetection returns a client sharing c's connection pool that also treats
// captcha and authwall interstitials as blocked. Use it for search engines and LinkedIn,
// not for business sites, whose contact forms often embed captchas.
func (c *Client) WithBlockDetection() *Client {
	return &Client{http: c.http, ua: c.ua, detectBlocks: true}
}

// Get fetches rawURL. Non-2xx responses become *HTTPError; anti-bot walls become an error
// wrapping ErrBlocked.
func (c *Client) Get(ctx context.Context, op, rawURL string) (Page, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return Page{}, fmt.Errorf("%s: malformed url: %w", op, err)
	}
	req.Header.Set("User-Agent", c.ua.Next())
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/json;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	resp, err := c.http.Do(req)
	if err != nil {
		return Page{}, err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	b, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return Page{}, err
	}
	page := Page{URL: resp.Request.URL.String(), StatusCode: resp.StatusCode, Body: b}

	if resp.StatusCode == 999 || (c.detectBlocks && looksBlocked(resp, b)) {
		return page, fmt.Errorf("%s: %w (status %d)", op, ErrBlocked, resp.StatusCode)
	}
	if resp.StatusCode/100 != 2 {
		return page, newHTTPError(op, rawURL, resp, b)
	}
	return page, nil
}

var blockMarkers = []string{
	"authwall",
	"unusual traffic",
	"captcha",
	"are you a robot",
}

func looksBlocked(resp *http.Response, body []byte) bool {
	if resp.Request != nil && strings.Contains(resp.Request.URL.Path, "/authwall") {
		return true
	}
	// Only small interstitials; real pages may mention captcha in passing.
	if len(body) > 64<<10 {
		return false
	}
	s := strings.ToLower(string(body))
	for _, m := range blockMarkers {
		if strings.Contains(s, m) {
			return true
		}
	}
	return false
}
