// Package pipeline is the CSV contract of batch runs: business rows in, contact rows out.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/shpitdev/contact-enricher/internal/enrich"
	"github.com/shpitdev/contact-enricher/internal/enrich/aggregate"
	"github.com/shpitdev/contact-enricher/internal/enrich/batch"
	"github.com/shpitdev/contact-enricher/internal/util"
)

// Row is the stable output schema contract.
type Row struct {
	BusinessName    string
	Website         string
	OwnerName       string
	OwnerTitle      string
	Email           string
	EmailVerified   string
	Emails          string
	Phones          string
	LinkedInURL     string
	CompanyIndustry string
	CompanySize     string
	SocialLinks     string
	Confidence      string
	SourcesUsed     string
	SourcesFailed   string
	Status          string
	Error           string
}

type Options struct {
	Workers      int
	RateLimitRPS float64

	// FailFast rejects the whole input when any row is invalid, before anything is fetched.
	FailFast bool

	MinSuccessRate float64
}

// Batcher is the part of the aggregator a batch run needs.
type Batcher interface {
	EnrichMany(ctx context.Context, reqs []enrich.Request, opts aggregate.BatchOptions) batch.Summary
}

// Header returns the stable CSV header for Row.
func Header() []string {
	return []string{
		"business_name",
		"website",
		"owner_name",
		"owner_title",
		"email",
		"email_verified",
		"emails",
		"phones",
		"linkedin_url",
		"company_industry",
		"company_size",
		"social_links",
		"confidence",
		"sources_used",
		"sources_failed",
		"status",
		"error",
	}
}

func (r Row) values() []string {
	return []string{
		r.BusinessName,
		r.Website,
		r.OwnerName,
		r.OwnerTitle,
		r.Email,
		r.EmailVerified,
		r.Emails,
		r.Phones,
		r.LinkedInURL,
		r.CompanyIndustry,
		r.CompanySize,
		r.SocialLinks,
		r.Confidence,
		r.SourcesUsed,
		r.SourcesFailed,
		r.Status,
		r.Error,
	}
}

// EnrichRequests runs the batch and returns one row per request, index-aligned with reqs.
//
// Item failures are recorded per-row. The returned error is non-nil only for fail-fast
// input rejection or when the success rate falls below opts.MinSuccessRate; rows and
// summary are still returned in the latter case.
func EnrichRequests(ctx context.Context, reqs []enrich.Request, b Batcher, opts Options) ([]Row, batch.Summary, error) {
	if opts.FailFast {
		for i, req := range reqs {
			if err := req.Validate(); err != nil {
				return nil, batch.Summary{}, fmt.Errorf("row %d: %w", i+1, err)
			}
		}
	}

	summary := b.EnrichMany(ctx, reqs, aggregate.BatchOptions{
		Workers:      opts.Workers,
		RateLimitRPS: opts.RateLimitRPS,
	})
	return Rows(reqs, summary), summary, summary.Err(opts.MinSuccessRate)
}

// Rows converts a batch summary to output rows.
func Rows(reqs []enrich.Request, summary batch.Summary) []Row {
	failed := make(map[int]string, len(summary.Failures))
	for _, f := range summary.Failures {
		failed[f.Index] = f.Error
	}

	rows := make([]Row, 0, len(reqs))
	for i, req := range reqs {
		var res enrich.Result
		if i < len(summary.Results) {
			res = summary.Results[i]
		}
		row := FromResult(req.Normalize(), res)
		if msg, ok := failed[i]; ok {
			row.Status = "error"
			row.Error = util.RedactSecrets(msg)
		}
		rows = append(rows, row)
	}
	return rows
}

// FromResult maps one merged result to a row with status "ok".
func FromResult(req enrich.Request, res enrich.Result) Row {
	row := Row{
		BusinessName:  req.BusinessName,
		Website:       req.WebsiteURL,
		OwnerName:     res.OwnerName,
		OwnerTitle:    res.OwnerTitle,
		Phones:        jsonArrayOrEmpty(res.Phones),
		SocialLinks:   jsonArrayOrEmpty(res.SocialLinks),
		Confidence:    strconv.Itoa(res.Confidence),
		SourcesUsed:   jsonArrayOrEmpty(res.SourcesUsed),
		SourcesFailed: jsonArrayOrEmpty(res.SourcesFailed),
		Status:        "ok",
	}
	if len(res.Emails) > 0 {
		row.Email = res.Emails[0].Address
		row.EmailVerified = strconv.FormatBool(res.Emails[0].Verified)
		addrs := make([]string, 0, len(res.Emails))
		for _, c := range res.Emails {
			addrs = append(addrs, c.Address)
		}
		row.Emails = jsonArrayOrEmpty(addrs)
	}
	row.LinkedInURL = bestProfileURL(res.Profiles)
	if res.Company != nil {
		row.CompanyIndustry = res.Company.Industry
		row.CompanySize = res.Company.Size
	}
	return row
}

func bestProfileURL(profiles []enrich.Profile) string {
	for _, p := range profiles {
		if p.DecisionMaker {
			return p.ProfileURL
		}
	}
	if len(profiles) > 0 {
		return profiles[0].ProfileURL
	}
	return ""
}

func jsonArrayOrEmpty(vals []string) string {
	if len(vals) == 0 {
		return ""
	}
	b, err := json.Marshal(vals)
	if err != nil {
		// Should not happen for []string, but keep output stable.
		return ""
	}
	return string(b)
}
