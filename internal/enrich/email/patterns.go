package email

import (
	"net/url"
	"sort"
	"strings"
	"unicode"

	"golang.org/x/net/publicsuffix"

	"github.com/shpitdev/contact-enricher/internal/enrich"
)

// Pattern names.
const (
	PatternFirstDotLast  = "first.last"
	PatternFirst         = "first"
	PatternFirstLast     = "firstlast"
	PatternFirstUnderLst = "first_last"
	PatternFLast         = "flast"
	PatternFirstL        = "firstl"
	PatternOwner         = "owner"
	PatternInfo          = "info"
	PatternContact       = "contact"
	PatternAdmin         = "admin"
)

type personal struct {
	name       string
	confidence int
	local      func(first, last string) string
}

var personalPatterns = []personal{
	{PatternFirstDotLast, 90, func(f, l string) string { return f + "." + l }},
	{PatternFirst, 80, func(f, _ string) string { return f }},
	{PatternFirstLast, 75, func(f, l string) string { return f + l }},
	{PatternFirstUnderLst, 70, func(f, l string) string { return f + "_" + l }},
	{PatternFLast, 60, func(f, l string) string { return f[:1] + l }},
	{PatternFirstL, 55, func(f, l string) string { return f + l[:1] }},
}

var genericPatterns = []struct {
	name       string
	confidence int
}{
	{PatternOwner, 50},
	{PatternInfo, 45},
	{PatternContact, 40},
	{PatternAdmin, 30},
}

// Generate returns ranked candidate addresses for domain. Personal patterns are only
// produced when ownerName has both a first and a last name.
func Generate(ownerName, domain string) []enrich.EmailCandidate {
	domain = strings.ToLower(strings.TrimSpace(domain))
	if domain == "" {
		return nil
	}
	var out []enrich.EmailCandidate
	seen := map[string]bool{}
	add := func(local, pattern string, confidence int) {
		addr := local + "@" + domain
		if local == "" || seen[addr] {
			return
		}
		seen[addr] = true
		out = append(out, enrich.EmailCandidate{Address: addr, PatternUsed: pattern, PatternConfidence: confidence})
	}

	if first, last := SplitName(ownerName); first != "" && last != "" {
		for _, p := range personalPatterns {
			add(p.local(first, last), p.name, p.confidence)
		}
	}
	for _, p := range genericPatterns {
		add(p.name, p.name, p.confidence)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].PatternConfidence > out[j].PatternConfidence })
	return out
}

var honorifics = map[string]bool{"mr": true, "mrs": true, "ms": true, "dr": true, "miss": true}
var suffixes = map[string]bool{"jr": true, "sr": true, "ii": true, "iii": true, "iv": true, "phd": true, "md": true}

// SplitName returns the lowercase ASCII-letter first and last name of a full name.
func SplitName(full string) (first, last string) {
	var parts []string
	for _, w := range strings.Fields(full) {
		w = letters(w)
		if w == "" || honorifics[w] || suffixes[w] {
			continue
		}
		parts = append(parts, w)
	}
	if len(parts) < 2 {
		if len(parts) == 1 {
			return parts[0], ""
		}
		return "", ""
	}
	return parts[0], parts[len(parts)-1]
}

func letters(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		if r < unicode.MaxASCII && unicode.IsLetter(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// DomainFor picks the mail domain: the registrable domain of the website, else a slug of
// the business name under .com.
func DomainFor(websiteURL, businessName string) string {
	if d := registrableDomain(websiteURL); d != "" {
		return d
	}
	slug := slugify(businessName)
	if slug == "" {
		return ""
	}
	return slug + ".com"
}

func registrableDomain(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	host := strings.TrimSuffix(strings.ToLower(u.Hostname()), ".")
	if host == "" || !strings.Contains(host, ".") {
		return ""
	}
	d, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		return ""
	}
	return d
}

func slugify(name string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		switch {
		case r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)):
			b.WriteRune(r)
			dash = false
		case b.Len() > 0 && !dash:
			b.WriteByte('-')
			dash = true
		}
	}
	return strings.Trim(b.String(), "-")
}
