package owner

import (
	"context"
	"regexp"
	"strings"
)

const (
	nameRe     = `([A-Z][a-z]+(?:\s+[A-Z]\.)?\s+(?:Mc|Mac|O')?[A-Z][a-zA-Z'\-]+)`
	titleWords = `owner|co-owner|founder|co-founder|president|ceo|chief executive officer|principal|proprietor|general manager|managing partner|operator`
)

var (
	// "Owner: Jane Doe", "Founder - Jane Doe"
	titleThenName = regexp.MustCompile(`(?i:\b(` + titleWords + `)\b)\s*[:\-–—]\s*` + nameRe)
	// "Jane Doe, Owner", "Jane Doe - Founder & CEO", "Jane Doe (Owner)"
	nameThenTitle = regexp.MustCompile(nameRe + `\s*(?:,|-|–|—|\||\()\s*(?:the\s+|our\s+)?(?i:\b(` + titleWords + `)\b)`)
	// "founded by Jane Doe", "owned and operated by Jane Doe"
	byName = regexp.MustCompile(`(?i:\b(founded|owned(?:\s+and\s+operated)?|started|established)\s+(?:in\s+\d{4}\s+)?by)\s+` + nameRe)
)

// Words that look like capitalized names in headings but are not people.
var notNames = map[string]bool{
	"our": true, "the": true, "about": true, "contact": true, "team": true, "us": true,
	"home": true, "services": true, "meet": true, "call": true, "today": true, "free": true,
	"estimate": true, "company": true, "family": true, "business": true, "owned": true,
	"operated": true, "local": true, "best": true, "quality": true, "customer": true,
	"service": true, "read": true, "more": true, "learn": true, "welcome": true,
}

var byVerbTitle = map[string]string{
	"founded":     "Founder",
	"started":     "Founder",
	"established": "Founder",
}

// Regex is the manual extractor: pattern matching on "Owner: Name" style phrasing.
type Regex struct{}

func (Regex) Extract(_ context.Context, in Input) (Guess, error) {
	return ExtractRegex(in.Text), nil
}

// ExtractRegex returns the first plausible owner mention in text.
func ExtractRegex(text string) Guess {
	for _, line := range strings.Split(text, "\n") {
		if m := titleThenName.FindStringSubmatch(line); m != nil && plausibleName(m[2]) {
			return Guess{Name: cleanName(m[2]), Title: canonicalTitle(m[1]), Method: MethodRegex}
		}
		if m := nameThenTitle.FindStringSubmatch(line); m != nil && plausibleName(m[1]) {
			return Guess{Name: cleanName(m[1]), Title: canonicalTitle(m[2]), Method: MethodRegex}
		}
		if m := byName.FindStringSubmatch(line); m != nil && plausibleName(m[2]) {
			verb := strings.ToLower(strings.Fields(m[1])[0])
			title := byVerbTitle[verb]
			if title == "" {
				title = "Owner"
			}
			return Guess{Name: cleanName(m[2]), Title: title, Method: MethodRegex}
		}
	}
	return Guess{}
}

func plausibleName(name string) bool {
	for _, w := range strings.Fields(name) {
		if notNames[strings.ToLower(strings.Trim(w, ".,"))] {
			return false
		}
	}
	return len(strings.Fields(name)) >= 2
}

func cleanName(name string) string {
	return strings.Join(strings.Fields(name), " ")
}

func canonicalTitle(raw string) string {
	t := strings.ToLower(strings.Join(strings.Fields(raw), " "))
	switch t {
	case "ceo":
		return "CEO"
	case "chief executive officer":
		return "CEO"
	}
	words := strings.Fields(t)
	for i, w := range words {
		parts := strings.Split(w, "-")
		for j, p := range parts {
			if p != "" {
				parts[j] = strings.ToUpper(p[:1]) + p[1:]
			}
		}
		words[i] = strings.Join(parts, "-")
	}
	return strings.Join(words, " ")
}
