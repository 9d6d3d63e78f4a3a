package discovery

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/palantir/business-contact-pipeline/internal/leads"
	"github.com/palantir/business-contact-pipeline/pkg/pipeline/core"
	"github.com/palantir/business-contact-pipeline/pkg/pipeline/httperr"
)

const DefaultFirecrawlBaseURL = "https://api.firecrawl.dev"

type FirecrawlConfig struct {
	APIKey  string
	BaseURL string
	Timeout time.Duration
}

// FirecrawlSearch discovers businesses through the Firecrawl web search API.
type FirecrawlSearch struct {
	http    *resty.Client
	enabled bool
}

func NewFirecrawlSearch(cfg FirecrawlConfig) *FirecrawlSearch {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		base = DefaultFirecrawlBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	key := strings.TrimSpace(cfg.APIKey)
	client := resty.New().
		SetBaseURL(base).
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")
	if key != "" {
		client.SetAuthToken(key)
	}
	return &FirecrawlSearch{http: client, enabled: key != ""}
}

func (f *FirecrawlSearch) Name() string { return "firecrawl" }

type searchRequest struct {
	Query         string        `json:"query"`
	Limit         int           `json:"limit"`
	ScrapeOptions scrapeOptions `json:"scrapeOptions"`
}

type scrapeOptions struct {
	OnlyMainContent bool `json:"onlyMainContent"`
}

type searchResponse struct {
	Success bool        `json:"success"`
	Data    []searchHit `json:"data"`
	Error   string      `json:"error,omitempty"`
}

type searchHit struct {
	URL         string `json:"url"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Content     string `json:"content"`
	Markdown    string `json:"markdown"`
	Metadata    struct {
		Title string `json:"title"`
	} `json:"metadata"`
}

func (h searchHit) title() string {
	if t := strings.TrimSpace(h.Metadata.Title); t != "" {
		return t
	}
	if t := strings.TrimSpace(h.Title); t != "" {
		return t
	}
	return h.URL
}

func (h searchHit) body() string {
	for _, s := range []string{h.Content, h.Markdown, h.Description} {
		if strings.TrimSpace(s) != "" {
			return s
		}
	}
	return ""
}

func (f *FirecrawlSearch) Run(ctx context.Context, q Query) ([]leads.Candidate, error) {
	if !f.enabled {
		return nil, core.Unavailable("firecrawl: no api key configured")
	}
	query := fmt.Sprintf("%s %s France", strings.TrimSpace(q.Sector), strings.TrimSpace(q.Area))

	var out searchResponse
	resp, err := f.http.R().
		SetContext(ctx).
		SetBody(searchRequest{Query: query, Limit: MaxCandidates, ScrapeOptions: scrapeOptions{OnlyMainContent: true}}).
		SetResult(&out).
		Post("/v1/search")
	if err != nil {
		return nil, core.Unavailable("firecrawl: request failed: %v", err)
	}
	if resp.IsError() {
		return nil, core.Unavailable("firecrawl: %v", httperr.New("firecrawl search", resp.StatusCode(), resp.Status(), resp.Body()))
	}
	if !out.Success || out.Data == nil {
		return nil, core.Unavailable("firecrawl: search unsuccessful: %s", out.Error)
	}
	return candidatesFromHits(out.Data), nil
}

func candidatesFromHits(hits []searchHit) []leads.Candidate {
	out := make([]leads.Candidate, 0, len(hits))
	for _, h := range hits {
		name := cleanName(h.title())
		website := strings.TrimSpace(h.URL)
		body := h.body()
		if w := websiteFromContent(body); w != "" {
			website = w
		}
		if name == "" || website == "" {
			continue
		}
		out = append(out, leads.Candidate{
			Name:    name,
			Website: website,
			Address: addressFromContent(body),
			Phone:   phoneFromContent(body),
		})
		if len(out) == MaxCandidates {
			break
		}
	}
	return out
}
