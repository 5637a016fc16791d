package fetch

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/shpitdev/contact-enricher/internal/util"
)

// HTTPError is a sanitized summary of a non-2xx response.
//
// Important: do not include raw response bodies here (can leak PII/tokens).
type HTTPError struct {
	Op         string
	URL        string
	StatusCode int
	Status     string

	// Snippet is a redacted, truncated hint of the body.
	Snippet string
}

func (e *HTTPError) Error() string {
	if e == nil {
		return "http error"
	}
	parts := []string{
		fmt.Sprintf("http error: op=%s status=%s", strings.TrimSpace(e.Op), strings.TrimSpace(e.Status)),
	}
	if strings.TrimSpace(e.URL) != "" {
		parts = append(parts, "url="+util.RedactSecrets(e.URL))
	}
	if strings.TrimSpace(e.Snippet) != "" {
		parts = append(parts, "body="+strings.TrimSpace(e.Snippet))
	}
	return strings.Join(parts, " ")
}

// HTTPStatus exposes the status code to error classifiers.
func (e *HTTPError) HTTPStatus() int {
	if e == nil {
		return 0
	}
	return e.StatusCode
}

func newHTTPError(op, rawURL string, resp *http.Response, body []byte) *HTTPError {
	h := &HTTPError{Op: op, URL: rawURL}
	if resp != nil {
		h.StatusCode = resp.StatusCode
		h.Status = resp.Status
		if h.Status == "" {
			h.Status = fmt.Sprintf("%d", resp.StatusCode)
		}
	}
	h.Snippet = redactAndTruncate(body)
	return h
}

func redactAndTruncate(body []byte) string {
	if len(body) == 0 {
		return ""
	}
	// Keep this small: response bodies can contain sensitive data.
	const max = 256
	b := body
	if len(b) > max {
		b = b[:max]
	}
	s := util.RedactSecrets(string(b))
	s = strings.ReplaceAll(s, "\n", " ")
	s = strings.ReplaceAll(s, "\r", " ")
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	if len(body) > max {
		return s + "..."
	}
	return s
}
