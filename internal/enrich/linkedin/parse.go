package linkedin

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/shpitdev/contact-enricher/internal/enrich"
	"github.com/shpitdev/contact-enricher/internal/fetch"
)

// decisionMakerKeywords are matched as case-insensitive substrings of a title.
var decisionMakerKeywords = []string{
	"ceo", "chief executive", "president", "owner", "founder", "director",
	"manager", "vp", "vice president", "principal", "partner", "proprietor",
	"business owner",
}

// IsDecisionMaker reports whether title names an owner, executive or manager.
func IsDecisionMaker(title string) bool {
	t := strings.ToLower(title)
	for _, k := range decisionMakerKeywords {
		if strings.Contains(t, k) {
			return true
		}
	}
	return false
}

type hit struct {
	url  string
	text string
}

// linkedInHits returns anchors that point at LinkedIn pages under kind ("in" or
// "company"), unwrapping search-engine redirect links.
func linkedInHits(body []byte, kind string) []hit {
	doc := fetch.ParseHTML(body)
	var out []hit
	seen := map[string]bool{}
	for _, l := range doc.Links {
		target := unwrapRedirect(l.Href)
		u, err := url.Parse(target)
		if err != nil || u.Host == "" {
			continue
		}
		host := strings.ToLower(u.Hostname())
		if host != "linkedin.com" && !strings.HasSuffix(host, ".linkedin.com") {
			continue
		}
		if !strings.HasPrefix(strings.ToLower(u.Path), "/"+kind+"/") {
			continue
		}
		key := enrich.NormalizeProfileURL(target)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, hit{url: "https://www." + key, text: l.Text})
	}
	return out
}

// unwrapRedirect resolves "/url?q=<target>" style result links.
func unwrapRedirect(href string) string {
	href = strings.TrimSpace(href)
	u, err := url.Parse(href)
	if err != nil {
		return href
	}
	if u.Path == "/url" || u.Path == "/link" {
		for _, k := range []string{"q", "url", "u"} {
			if v := u.Query().Get(k); strings.HasPrefix(v, "http") {
				return v
			}
		}
	}
	return href
}

var (
	linkedInSuffixRe = regexp.MustCompile(`(?i)\s*[|\-–—]\s*linkedin\b`)
	separatorRe      = regexp.MustCompile(`\s+[\-–—|·]\s+`)
	nameRe           = regexp.MustCompile(`^[\p{L}][\p{L}'.\-]*(?:\s+[\p{L}][\p{L}'.\-]*){1,3}$`)
)

// stripLinkedInSuffix drops " | LinkedIn" and anything a result snippet appends after it.
func stripLinkedInSuffix(text string) string {
	text = strings.TrimSpace(text)
	if loc := linkedInSuffixRe.FindStringIndex(text); loc != nil {
		text = text[:loc[0]]
	}
	return strings.TrimSpace(text)
}

// parseResultTitle splits "Name - Title at Company | LinkedIn" and its common variants.
func parseResultTitle(text string) (name, title, company string, ok bool) {
	text = stripLinkedInSuffix(text)
	parts := separatorRe.Split(text, -1)
	if len(parts) < 2 {
		return "", "", "", false
	}
	name = strings.TrimSpace(parts[0])
	if !nameRe.MatchString(name) {
		return "", "", "", false
	}
	title = strings.TrimSpace(parts[1])
	if len(parts) >= 3 {
		company = strings.TrimSpace(parts[2])
	}
	if i := strings.LastIndex(strings.ToLower(title), " at "); i > 0 {
		if company == "" {
			company = strings.TrimSpace(title[i+4:])
		}
		title = strings.TrimSpace(title[:i])
	}
	if title == "" {
		return "", "", "", false
	}
	return name, title, strings.TrimSuffix(company, "..."), true
}

// companyMatches reports whether a profile's company names the business.
func companyMatches(company, business string) bool {
	c, b := squash(company), squash(business)
	if c == "" || b == "" {
		return false
	}
	if c == b {
		return true
	}
	// A fragment shorter than this ("co", "inc") would match almost anything.
	const minFragment = 4
	return (len(b) >= minFragment && strings.Contains(c, b)) ||
		(len(c) >= minFragment && strings.Contains(b, c))
}

func squash(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}

var (
	employeesRe = regexp.MustCompile(`(?i)(\d[\d,]*(?:\s*-\s*\d[\d,]*)?\+?)\s+employees`)
	industryRe  = regexp.MustCompile(`(?i)industry:?\s+([A-Za-z][A-Za-z ,&/\-]{2,60}?)(?:\s*[.·|;]|\s+\d|$)`)
)

// parseCompany picks the first company page hit and whatever size/industry the snippet
// text carries.
func parseCompany(body []byte) *enrich.Company {
	hits := linkedInHits(body, "company")
	if len(hits) == 0 {
		return nil
	}
	h := hits[0]
	name := stripLinkedInSuffix(h.text)
	if parts := separatorRe.Split(name, 2); len(parts) > 0 {
		name = strings.TrimSpace(parts[0])
	}
	c := &enrich.Company{Name: name, URL: h.url}
	text := fetch.ParseHTML(body).Text
	if m := employeesRe.FindStringSubmatch(text); m != nil {
		c.Size = strings.ReplaceAll(m[1], " ", "")
	}
	if m := industryRe.FindStringSubmatch(text); m != nil {
		c.Industry = strings.TrimSpace(m[1])
	}
	return c
}
