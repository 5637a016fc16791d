// Package gemini is the AI-backed owner extractor.
package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strings"

	"google.golang.org/genai"

	"github.com/shpitdev/contact-enricher/internal/enrich/owner"
	"github.com/shpitdev/contact-enricher/internal/resilience/retry"
)

type Config struct {
	APIKey string
	Model  string

	// BaseURL overrides the Gemini API base URL. Useful for proxies/testing.
	BaseURL string
}

// Extractor asks Gemini for the owner named in a page's text.
type Extractor struct {
	client *genai.Client
	model  string
}

func New(ctx context.Context, cfg Config) (*Extractor, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY is required")
	}
	if strings.TrimSpace(cfg.Model) == "" {
		return nil, fmt.Errorf("GEMINI_MODEL is required")
	}

	cc := &genai.ClientConfig{
		APIKey:  strings.TrimSpace(cfg.APIKey),
		Backend: genai.BackendGeminiAPI,
	}
	if strings.TrimSpace(cfg.BaseURL) != "" {
		cc.HTTPOptions.BaseURL = strings.TrimSpace(cfg.BaseURL)
	}

	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, err
	}
	return &Extractor{client: client, model: strings.TrimSpace(cfg.Model)}, nil
}

type responseSchema struct {
	OwnerName  string `json:"owner_name"`
	OwnerTitle string `json:"owner_title"`
	Confidence string `json:"confidence"`
}

var outputSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"owner_name":  {Type: genai.TypeString},
		"owner_title": {Type: genai.TypeString},
		"confidence":  {Type: genai.TypeString},
	},
	Required: []string{"owner_name", "owner_title", "confidence"},
}

func (e *Extractor) Extract(ctx context.Context, in owner.Input) (owner.Guess, error) {
	if strings.TrimSpace(in.Text) == "" {
		return owner.Guess{}, nil
	}
	resp, err := e.client.Models.GenerateContent(
		ctx,
		e.model,
		genai.Text(buildPrompt(in)),
		&genai.GenerateContentConfig{
			CandidateCount:   1,
			ResponseMIMEType: "application/json",
			ResponseSchema:   outputSchema,
		},
	)
	if err != nil {
		return owner.Guess{}, classifyErr(err)
	}
	return parseGuess(resp.Text())
}

func parseGuess(text string) (owner.Guess, error) {
	var parsed responseSchema
	if err := json.Unmarshal([]byte(text), &parsed); err != nil {
		return owner.Guess{}, fmt.Errorf("gemini: parse structured json: %w", err)
	}
	// A low-confidence answer is treated as nothing found so the regex fallback runs.
	if strings.EqualFold(strings.TrimSpace(parsed.Confidence), "low") {
		return owner.Guess{}, nil
	}
	name := strings.TrimSpace(parsed.OwnerName)
	if len(strings.Fields(name)) < 2 {
		return owner.Guess{}, nil
	}
	return owner.Guess{
		Name:   strings.Join(strings.Fields(name), " "),
		Title:  strings.TrimSpace(parsed.OwnerTitle),
		Method: owner.MethodAI,
	}, nil
}

func buildPrompt(in owner.Input) string {
	return strings.TrimSpace(`
You extract the owner of a small business from the text of its website.

Return ONLY a single JSON object with these keys:
- owner_name (string; full name of the owner, founder or top executive)
- owner_title (string; their title as written on the site)
- confidence (string; one of: low, medium, high)

Rules:
- Only use names that appear in the text. Do not guess.
- If no owner is named, set owner_name and owner_title to empty strings and confidence to low.
- Do not include extra keys.

Business: ` + strings.TrimSpace(in.BusinessName) + `

Website text:
` + in.Text + `
`)
}

func classifyErr(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		if apiErr.Code == 429 || apiErr.Code/100 == 5 {
			return &retry.TransientError{Err: err}
		}
		return retry.Permanent(err)
	}
	var ne net.Error
	if errors.As(err, &ne) && (ne.Timeout() || ne.Temporary()) {
		return &retry.TransientError{Err: err}
	}
	return err
}
