package website

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/shpitdev/contact-enricher/internal/enrich"
	"github.com/shpitdev/contact-enricher/internal/fetch"
)

// scrapedConfidence is the pattern confidence of an address published on the site itself.
const scrapedConfidence = 70

var (
	emailRe = regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`)
	phoneRe = regexp.MustCompile(`(?:\+?1[\s.\-]?)?\(?\d{3}\)?[\s.\-]?\d{3}[\s.\-]?\d{4}`)
)

// Asset names and tracker domains that match the email pattern.
var junkEmailSuffixes = []string{".png", ".jpg", ".jpeg", ".gif", ".svg", ".webp", "@example.com", "@sentry.io", "@wixpress.com"}

type extraction struct {
	emails   []string
	phones   []string
	linkedin []string
	facebook []string
	text     string
}

func extract(docs []fetch.Document) extraction {
	var (
		ex     extraction
		seen   = map[string]bool{}
		texts  []string
		addEml = func(raw string) {
			e := enrich.NormalizeEmail(raw)
			if e == "" || junkEmail(e) || seen["e:"+e] {
				return
			}
			seen["e:"+e] = true
			ex.emails = append(ex.emails, e)
		}
		addPhone = func(raw string) {
			p := enrich.FormatPhone(raw)
			if p == "" || seen["p:"+p] {
				return
			}
			seen["p:"+p] = true
			ex.phones = append(ex.phones, p)
		}
	)

	for _, doc := range docs {
		texts = append(texts, doc.Text)
		for _, m := range emailRe.FindAllString(doc.Text, -1) {
			addEml(m)
		}
		for _, loc := range phoneRe.FindAllStringIndex(doc.Text, -1) {
			if boundedByDigits(doc.Text, loc[0], loc[1]) {
				continue
			}
			addPhone(doc.Text[loc[0]:loc[1]])
		}
		for _, l := range doc.Links {
			href := strings.TrimSpace(l.Href)
			lower := strings.ToLower(href)
			switch {
			case strings.HasPrefix(lower, "mailto:"):
				addr := href[len("mailto:"):]
				if i := strings.IndexByte(addr, '?'); i >= 0 {
					addr = addr[:i]
				}
				if emailRe.MatchString(addr) {
					addEml(addr)
				}
			case strings.HasPrefix(lower, "tel:"):
				addPhone(href[len("tel:"):])
			case isHost(href, "linkedin.com"):
				if n := enrich.NormalizeProfileURL(href); strings.Contains(n, "/") && !seen["l:"+n] {
					seen["l:"+n] = true
					ex.linkedin = append(ex.linkedin, n)
				}
			case isHost(href, "facebook.com"):
				if n := normalizeLink(href); n != "" && !seen["f:"+n] {
					seen["f:"+n] = true
					ex.facebook = append(ex.facebook, n)
				}
			}
		}
	}
	ex.text = strings.Join(texts, "\n")
	return ex
}

func (ex extraction) emailCandidates() []enrich.EmailCandidate {
	out := make([]enrich.EmailCandidate, 0, len(ex.emails))
	for _, e := range ex.emails {
		out = append(out, enrich.EmailCandidate{
			Address:           e,
			PatternUsed:       enrich.PatternScraped,
			PatternConfidence: scrapedConfidence,
		})
	}
	return out
}

func (ex extraction) socialLinks() []string {
	out := make([]string, 0, len(ex.linkedin)+len(ex.facebook))
	for _, l := range ex.linkedin {
		out = append(out, "https://"+l)
	}
	return append(out, ex.facebook...)
}

func junkEmail(e string) bool {
	for _, s := range junkEmailSuffixes {
		if strings.HasSuffix(e, s) {
			return true
		}
	}
	return false
}

// boundedByDigits rejects phone matches cut out of a longer number.
func boundedByDigits(s string, start, end int) bool {
	isDigit := func(b byte) bool { return b >= '0' && b <= '9' }
	return (start > 0 && isDigit(s[start-1])) || (end < len(s) && isDigit(s[end]))
}

func isHost(raw, domain string) bool {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" {
		return false
	}
	h := strings.ToLower(u.Hostname())
	return h == domain || strings.HasSuffix(h, "."+domain)
}

func normalizeLink(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" {
		return ""
	}
	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	path := strings.TrimRight(u.Path, "/")
	if path == "" {
		return ""
	}
	return "https://" + host + path
}
