package aggregate

import (
	"sort"
	"strings"

	"github.com/shpitdev/contact-enricher/internal/enrich"
)

// mergeEmails dedups by normalized address, keeping the strongest evidence for each, and
// ranks by score.
func mergeEmails(results []enrich.SourceResult) []enrich.EmailCandidate {
	out := []enrich.EmailCandidate{}
	index := map[string]int{}
	for _, r := range results {
		for _, c := range r.Emails {
			key := enrich.NormalizeEmail(c.Address)
			if key == "" {
				continue
			}
			c.Address = key
			i, ok := index[key]
			if !ok {
				index[key] = len(out)
				out = append(out, c)
				continue
			}
			cur := &out[i]
			if c.PatternConfidence > cur.PatternConfidence {
				cur.PatternConfidence = c.PatternConfidence
				cur.PatternUsed = c.PatternUsed
			}
			if c.Verified && !cur.Verified {
				cur.Verified = true
				cur.VerificationMethod = c.VerificationMethod
			}
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score() > out[j].Score() })
	return out
}

func mergePhones(results []enrich.SourceResult) []string {
	out := []string{}
	seen := map[string]bool{}
	for _, r := range results {
		for _, p := range r.Phones {
			d := enrich.PhoneDigits(p)
			if d == "" || seen[d] {
				continue
			}
			seen[d] = true
			out = append(out, enrich.FormatPhone(d))
		}
	}
	return out
}

// mergeProfiles drops incomplete profiles and dedups by normalized profile URL.
func mergeProfiles(results []enrich.SourceResult) []enrich.Profile {
	out := []enrich.Profile{}
	index := map[string]int{}
	for _, r := range results {
		for _, p := range r.Profiles {
			if !p.Complete() {
				continue
			}
			key := enrich.NormalizeProfileURL(p.ProfileURL)
			if key == "" {
				key = "name:" + strings.ToLower(p.Name) + "|" + strings.ToLower(p.Company)
			}
			i, ok := index[key]
			if !ok {
				index[key] = len(out)
				p.ContactMethods = append([]string(nil), p.ContactMethods...)
				out = append(out, p)
				continue
			}
			cur := &out[i]
			cur.Verified = cur.Verified || p.Verified
			cur.DecisionMaker = cur.DecisionMaker || p.DecisionMaker
			fill(&cur.Company, p.Company)
			fill(&cur.Email, p.Email)
			fill(&cur.Phone, p.Phone)
			fill(&cur.Website, p.Website)
			for _, m := range p.ContactMethods {
				if !contains(cur.ContactMethods, m) {
					cur.ContactMethods = append(cur.ContactMethods, m)
				}
			}
		}
	}
	return out
}

func mergeLinks(results []enrich.SourceResult) []string {
	var out []string
	seen := map[string]bool{}
	for _, r := range results {
		for _, l := range r.SocialLinks {
			key := enrich.NormalizeProfileURL(l)
			if key == "" || seen[key] {
				continue
			}
			seen[key] = true
			out = append(out, l)
		}
	}
	return out
}

func fill(dst *string, v string) {
	if *dst == "" {
		*dst = v
	}
}

func contains(xs []string, v string) bool {
	for _, x := range xs {
		if x == v {
			return true
		}
	}
	return false
}
