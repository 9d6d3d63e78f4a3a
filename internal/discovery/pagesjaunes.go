package discovery

import (
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/palantir/business-contact-pipeline/internal/leads"
	"github.com/palantir/business-contact-pipeline/pkg/pipeline/core"
)

const (
	DefaultDirectoryBaseURL = "https://www.pagesjaunes.fr"

	// BrowserUserAgent is sent to sites that reject non-browser clients.
	BrowserUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
)

type DirectoryConfig struct {
	BaseURL string
	Timeout time.Duration
}

// PagesJaunes discovers businesses by scraping the PagesJaunes search page.
type PagesJaunes struct {
	baseURL string
	timeout time.Duration
}

func NewPagesJaunes(cfg DirectoryConfig) *PagesJaunes {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		base = DefaultDirectoryBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &PagesJaunes{baseURL: base, timeout: timeout}
}

func (p *PagesJaunes) Name() string { return "pagesjaunes" }

// SearchURL returns the directory search page for q.
func (p *PagesJaunes) SearchURL(q Query) string {
	v := url.Values{}
	v.Set("quoiqui", strings.TrimSpace(q.Sector))
	v.Set("ou", strings.TrimSpace(q.Area))
	v.Set("proximite", "0")
	return p.baseURL + "/annuaire/chercherlespros?" + v.Encode()
}

type listing struct {
	primary   []leads.Candidate
	secondary []leads.Candidate
}

func (p *PagesJaunes) Run(ctx context.Context, q Query) ([]leads.Candidate, error) {
	c := colly.NewCollector(
		colly.UserAgent(BrowserUserAgent),
		colly.StdlibContext(ctx),
	)
	c.SetRequestTimeout(p.timeout)
	c.OnRequest(func(r *colly.Request) {
		r.Headers.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8")
		r.Headers.Set("Accept-Language", "fr-FR,fr;q=0.9,en-US;q=0.8,en;q=0.7")
	})

	var found listing
	c.OnHTML("html", func(doc *colly.HTMLElement) {
		doc.ForEach(".bi-bloc", func(i int, el *colly.HTMLElement) {
			if i >= MaxCandidates {
				return
			}
			if cand, ok := primaryBlock(el); ok {
				found.primary = append(found.primary, cand)
			}
		})
		doc.ForEach("article, .item-entreprise, .entreprise", func(i int, el *colly.HTMLElement) {
			if i >= MaxCandidates {
				return
			}
			if cand, ok := secondaryBlock(el); ok {
				found.secondary = append(found.secondary, cand)
			}
		})
	})

	if err := c.Visit(p.SearchURL(q)); err != nil {
		return nil, core.Unavailable("pagesjaunes: %v", err)
	}
	if len(found.primary) > 0 {
		return found.primary, nil
	}
	if found.secondary == nil {
		return []leads.Candidate{}, nil
	}
	return found.secondary, nil
}

func primaryBlock(el *colly.HTMLElement) (leads.Candidate, bool) {
	name := firstText(el, ".bi-denomination", ".bi-nom", "h3")
	if name == "" {
		return leads.Candidate{}, false
	}
	website := firstAttr(el, "href",
		".bi-website a[href]",
		`a[data-pj-label="Site internet"][href]`,
		".teaser-footer a[href]",
	)
	return leads.Candidate{
		Name:    name,
		Website: unwrapRedirect(website),
		Address: firstText(el, ".bi-address", ".adresse"),
		Phone:   firstText(el, ".bi-phone", ".coord-numero"),
	}, true
}

func secondaryBlock(el *colly.HTMLElement) (leads.Candidate, bool) {
	name := collapseSpace(el.DOM.Find("h2, h3, .denom").First().Text())
	if name == "" {
		return leads.Candidate{}, false
	}
	return leads.Candidate{
		Name:    name,
		Address: collapseSpace(el.DOM.Find(".adresse, .address").First().Text()),
		Phone:   collapseSpace(el.DOM.Find(".tel, .phone").First().Text()),
	}, true
}

func firstText(el *colly.HTMLElement, selectors ...string) string {
	for _, sel := range selectors {
		if t := collapseSpace(el.ChildText(sel)); t != "" {
			return t
		}
	}
	return ""
}

func firstAttr(el *colly.HTMLElement, attr string, selectors ...string) string {
	for _, sel := range selectors {
		if v := strings.TrimSpace(el.ChildAttr(sel, attr)); v != "" {
			return v
		}
	}
	return ""
}

// unwrapRedirect returns the target of a directory redirect link
// (".../redirect?url=<encoded>"), or href unchanged.
func unwrapRedirect(href string) string {
	if href == "" || !strings.Contains(href, "pagesjaunes.fr") {
		return href
	}
	u, err := url.Parse(href)
	if err != nil {
		return href
	}
	if target := u.Query().Get("url"); target != "" {
		return target
	}
	return href
}
