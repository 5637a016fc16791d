// Package enrich holds the contact-enrichment data model shared by the source adapters
// and the aggregator.
package enrich

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Source names.
const (
	SourceWebsite  = "website"
	SourceEmail    = "email"
	SourceLinkedIn = "linkedin"
)

// ErrInvalidRequest is returned when a request names neither a business nor a website.
var ErrInvalidRequest = errors.New("invalid enrichment request")

// Request is the immutable input of one enrichment.
type Request struct {
	BusinessName  string `json:"business_name"`
	WebsiteURL    string `json:"website_url,omitempty"`
	OwnerNameHint string `json:"owner_name_hint,omitempty"`
	BusinessType  string `json:"business_type,omitempty"`
	Location      string `json:"location,omitempty"`
}

// Normalize trims every field.
func (r Request) Normalize() Request {
	return Request{
		BusinessName:  strings.TrimSpace(r.BusinessName),
		WebsiteURL:    strings.TrimSpace(r.WebsiteURL),
		OwnerNameHint: strings.TrimSpace(r.OwnerNameHint),
		BusinessType:  strings.TrimSpace(r.BusinessType),
		Location:      strings.TrimSpace(r.Location),
	}
}

// Validate rejects requests no source can work with.
func (r Request) Validate() error {
	r = r.Normalize()
	if r.BusinessName == "" && r.WebsiteURL == "" {
		return fmt.Errorf("%w: business name or website is required", ErrInvalidRequest)
	}
	return nil
}

// Verification methods recorded on EmailCandidate.
const (
	VerifiedBySyntax     = "syntax"
	VerifiedByHunter     = "hunter"
	VerifiedByZeroBounce = "zerobounce"
	VerifiedByMX         = "mx"
)

// PatternScraped marks an address found on the business website rather than generated.
const PatternScraped = "scraped"

// EmailCandidate is one candidate address. Verified and VerificationMethod are set once by
// the verification step.
type EmailCandidate struct {
	Address            string `json:"address"`
	PatternUsed        string `json:"pattern_used"`
	PatternConfidence  int    `json:"pattern_confidence"`
	Verified           bool   `json:"verified"`
	VerificationMethod string `json:"verification_method,omitempty"`
}

// Score is the ranking key: verified candidates outrank unverified ones.
func (c EmailCandidate) Score() int {
	s := c.PatternConfidence
	if c.Verified {
		s += 100
	}
	return s
}

// Profile is a LinkedIn-style person record.
type Profile struct {
	Name           string   `json:"name"`
	Title          string   `json:"title"`
	Company        string   `json:"company,omitempty"`
	ProfileURL     string   `json:"profile_url"`
	Verified       bool     `json:"verified"`
	DecisionMaker  bool     `json:"decision_maker"`
	Email          string   `json:"email,omitempty"`
	Phone          string   `json:"phone,omitempty"`
	Website        string   `json:"website,omitempty"`
	ContactMethods []string `json:"contact_methods,omitempty"`
}

// Complete reports whether the profile carries both a name and a title.
func (p Profile) Complete() bool {
	return strings.TrimSpace(p.Name) != "" && strings.TrimSpace(p.Title) != ""
}

// Company is a company page lookup result.
type Company struct {
	Name     string `json:"name"`
	URL      string `json:"url,omitempty"`
	Industry string `json:"industry,omitempty"`
	Size     string `json:"size,omitempty"`
}

// SourceResult is what one adapter produced. It is never mutated after being returned.
type SourceResult struct {
	Source         string           `json:"source"`
	Emails         []EmailCandidate `json:"emails,omitempty"`
	Phones         []string         `json:"phones,omitempty"`
	Profiles       []Profile        `json:"profiles,omitempty"`
	OwnerNameGuess string           `json:"owner_name_guess,omitempty"`
	OwnerTitle     string           `json:"owner_title,omitempty"`
	SocialLinks    []string         `json:"social_links,omitempty"`
	Company        *Company         `json:"company,omitempty"`
	Confidence     int              `json:"confidence"`
	Degraded       bool             `json:"degraded"`
	Errors         []string         `json:"errors,omitempty"`
}

// Contributed reports whether the source produced any candidate at all.
func (r SourceResult) Contributed() bool {
	return len(r.Emails) > 0 || len(r.Phones) > 0 || len(r.Profiles) > 0 ||
		strings.TrimSpace(r.OwnerNameGuess) != "" || r.Company != nil || len(r.SocialLinks) > 0
}

// Failed builds the result of a source that produced nothing.
func Failed(source string, reasons ...string) SourceResult {
	return SourceResult{Source: source, Degraded: true, Errors: reasons}
}

// Result is the merged, read-only output of one enrichment.
type Result struct {
	Request       Request          `json:"request"`
	OwnerName     string           `json:"owner_name,omitempty"`
	OwnerTitle    string           `json:"owner_title,omitempty"`
	Emails        []EmailCandidate `json:"emails"`
	Phones        []string         `json:"phones"`
	Profiles      []Profile        `json:"profiles"`
	Company       *Company         `json:"company,omitempty"`
	SocialLinks   []string         `json:"social_links,omitempty"`
	Confidence    int              `json:"confidence"`
	SourcesUsed   []string         `json:"sources_used"`
	SourcesFailed []string         `json:"sources_failed"`
	Sources       []SourceResult   `json:"sources,omitempty"`
}

// Source is one adapter. Lookup never fails: problems are reported through Degraded and
// Errors on the returned result.
type Source interface {
	Name() string
	Lookup(ctx context.Context, req Request) SourceResult
}

// Clamp bounds a confidence score to [0, 100].
func Clamp(score int) int {
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}
