package mocksources

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Person is a LinkedIn profile the fake search engines know about.
type Person struct {
	Name  string `yaml:"name"`
	Title string `yaml:"title"`
	Slug  string `yaml:"slug"`
}

// Company is the fake LinkedIn company page of a business.
type Company struct {
	Slug     string `yaml:"slug"`
	Industry string `yaml:"industry"`
	Size     string `yaml:"size"`
}

// Business is one fake business: its website, its people and its mailboxes.
type Business struct {
	Name   string `yaml:"name"`
	Domain string `yaml:"domain"`
	// Pages maps a site path ("/", "/contact", ...) to HTML.
	Pages map[string]string `yaml:"pages"`
	// FailPages maps a site path to the status code it answers with.
	FailPages map[string]int `yaml:"fail_pages"`
	People    []Person       `yaml:"people"`
	Company   *Company       `yaml:"company"`
	// Mailboxes are the deliverable addresses; other addresses at Domain bounce.
	Mailboxes []string `yaml:"mailboxes"`
}

// LoadFixtures reads a YAML list of businesses.
func LoadFixtures(path string) ([]Business, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fixtures: %w", err)
	}
	var out struct {
		Businesses []Business `yaml:"businesses"`
	}
	if err := yaml.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("parse fixtures: %w", err)
	}
	for i, b := range out.Businesses {
		if strings.TrimSpace(b.Name) == "" || strings.TrimSpace(b.Domain) == "" {
			return nil, fmt.Errorf("fixture %d: name and domain are required", i)
		}
	}
	return out.Businesses, nil
}

// DefaultBusinesses is the demo data set: a healthy HVAC business whose /team page is
// down, and a plumbing business with no website content worth scraping.
func DefaultBusinesses() []Business {
	return []Business{
		{
			Name:   "Acme HVAC",
			Domain: "acmehvac.test",
			Pages: map[string]string{
				"/": `<html><head><title>Acme HVAC</title></head><body>
<h1>Acme HVAC - Heating and Cooling in Austin</h1>
<p>Call us at (512) 555-0100 or email info@acmehvac.test.</p>
<a href="https://www.facebook.com/acmehvac">Facebook</a>
</body></html>`,
				"/contact": `<html><body><p>Phone: 512-555-0100</p>
<a href="mailto:service@acmehvac.test">service@acmehvac.test</a></body></html>`,
				"/about": `<html><body><p>Founded by John Smith in 1998, Acme HVAC has served Austin for 25 years.</p>
<a href="https://www.linkedin.com/company/acme-hvac">LinkedIn</a></body></html>`,
			},
			FailPages: map[string]int{"/team": 503},
			People: []Person{
				{Name: "John Smith", Title: "Owner", Slug: "john-smith-acme"},
				{Name: "Maria Lopez", Title: "Office Manager", Slug: "maria-lopez-hvac"},
				{Name: "Tim Reed", Title: "HVAC Technician", Slug: "tim-reed-tech"},
			},
			Company:   &Company{Slug: "acme-hvac", Industry: "Construction", Size: "11-50"},
			Mailboxes: []string{"john@acmehvac.test", "info@acmehvac.test", "service@acmehvac.test"},
		},
		{
			Name:      "Bolt Plumbing",
			Domain:    "boltplumbing.test",
			Pages:     map[string]string{},
			FailPages: map[string]int{"/": 404, "/contact": 404, "/about": 404, "/team": 404},
			Mailboxes: []string{"info@boltplumbing.test"},
		},
	}
}
