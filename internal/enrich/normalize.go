package enrich

import (
	"net/url"
	"strings"
)

// NormalizeEmail is the dedup key for addresses.
func NormalizeEmail(addr string) string {
	return strings.ToLower(strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(addr), "mailto:")))
}

// PhoneDigits returns the 10-digit NANP form of a phone number, dropping a leading
// country code 1. It returns "" when the input is not a 10-digit number.
func PhoneDigits(raw string) string {
	var b strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	d := b.String()
	if len(d) == 11 && d[0] == '1' {
		d = d[1:]
	}
	if len(d) != 10 {
		return ""
	}
	return d
}

// FormatPhone renders a phone number as (XXX) XXX-XXXX, or "" if it is not a valid
// 10-digit number.
func FormatPhone(raw string) string {
	d := PhoneDigits(raw)
	if d == "" {
		return ""
	}
	return "(" + d[0:3] + ") " + d[3:6] + "-" + d[6:]
}

// NormalizeProfileURL is the dedup key for profile URLs: scheme, "www.", query, fragment
// and trailing slashes are ignored, and the result is lowercased.
func NormalizeProfileURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return strings.ToLower(strings.TrimRight(raw, "/"))
	}
	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	// Country subdomains (uk.linkedin.com) point at the same profile.
	if strings.HasSuffix(host, ".linkedin.com") {
		host = "linkedin.com"
	}
	p := strings.TrimRight(u.EscapedPath(), "/")
	return host + strings.ToLower(p)
}
