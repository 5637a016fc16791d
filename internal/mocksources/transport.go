package mocksources

import (
	"net/http"
	"net/url"
)

// Transport sends every request to baseURL while keeping the original Host, so that one
// mock server can stand in for many websites.
func Transport(baseURL string, next http.RoundTripper) (http.RoundTripper, error) {
	target, err := url.Parse(baseURL)
	if err != nil {
		return nil, err
	}
	if next == nil {
		next = http.DefaultTransport
	}
	return &rewriteTransport{target: target, next: next}, nil
}

type rewriteTransport struct {
	target *url.URL
	next   http.RoundTripper
}

func (t *rewriteTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	out := r.Clone(r.Context())
	if out.Host == "" {
		out.Host = r.URL.Host
	}
	out.URL.Scheme = t.target.Scheme
	out.URL.Host = t.target.Host
	return t.next.RoundTrip(out)
}
