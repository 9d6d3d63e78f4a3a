package contact

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

const (
	// UserAgent is a desktop browser string; many small business sites reject bare clients.
	UserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

	// FullPageTimeout bounds fetches whose content feeds AI extraction.
	FullPageTimeout = 8 * time.Second
	// HarvestTimeout bounds fetches used only for the email harvest.
	HarvestTimeout = 5 * time.Second
)

// Page is a fetched website.
type Page struct {
	URL    string
	Status int
	HTML   string
}

// Fetcher downloads business websites.
type Fetcher struct {
	http *resty.Client
}

func NewFetcher() *Fetcher {
	client := resty.New().
		SetHeader("User-Agent", UserAgent).
		SetHeader("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8").
		SetHeader("Accept-Language", "fr-FR,fr;q=0.9,en;q=0.8").
		SetRedirectPolicy(resty.FlexibleRedirectPolicy(10))
	return &Fetcher{http: client}
}

// Fetch GETs rawURL within timeout. Non-2xx answers are errors.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string, timeout time.Duration) (Page, error) {
	target := NormalizeURL(rawURL)
	if target == "" {
		return Page{}, fmt.Errorf("fetch: empty url")
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	resp, err := f.http.R().SetContext(ctx).Get(target)
	if err != nil {
		return Page{URL: target}, fmt.Errorf("fetch %s: %w", target, err)
	}
	if resp.StatusCode()/100 != 2 {
		return Page{URL: target, Status: resp.StatusCode()}, fmt.Errorf("fetch %s: status %d", target, resp.StatusCode())
	}
	return Page{URL: target, Status: resp.StatusCode(), HTML: resp.String()}, nil
}

// NormalizeURL trims website and adds an https scheme when none is present.
func NormalizeURL(website string) string {
	w := strings.TrimSpace(website)
	if w == "" {
		return ""
	}
	lower := strings.ToLower(w)
	if !strings.HasPrefix(lower, "http://") && !strings.HasPrefix(lower, "https://") {
		w = "https://" + w
	}
	return w
}

// Hostname returns the host of the normalized website, or "" when it cannot be parsed.
func Hostname(website string) string {
	u, err := url.Parse(NormalizeURL(website))
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}
