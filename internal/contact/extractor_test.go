package contact

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/palantir/business-contact-pipeline/internal/ai"
	"github.com/palantir/business-contact-pipeline/internal/leads"
)

type fakeFetcher struct {
	html    string
	err     error
	calls   int
	timeout time.Duration
	panics  bool
}

func (f *fakeFetcher) Fetch(_ context.Context, rawURL string, timeout time.Duration) (Page, error) {
	f.calls++
	f.timeout = timeout
	if f.panics {
		panic("fetch exploded")
	}
	if f.err != nil {
		return Page{URL: NormalizeURL(rawURL)}, f.err
	}
	return Page{URL: NormalizeURL(rawURL), Status: http.StatusOK, HTML: f.html}, nil
}

var dupont = leads.Candidate{
	Name:    "Plomberie Dupont",
	Website: "plomberie-dupont.fr",
	Phone:   "0142424242",
	Address: "12 rue de la Paix",
}

func emails(rs []leads.ContactResult) []string {
	out := make([]string, 0, len(rs))
	for _, r := range rs {
		out = append(out, r.Email)
	}
	return out
}

func TestExtract_NoWebsite(t *testing.T) {
	f := &fakeFetcher{}
	got := New(f, nil, nil).Extract(context.Background(), leads.Candidate{Name: "x"}, "plombier", "75")
	assert.Empty(t, got)
	assert.Zero(t, f.calls)
}

func TestExtract_HarvestWithoutAI(t *testing.T) {
	f := &fakeFetcher{html: `<p>contact@plomberie-dupont.fr</p><p>noreply@plomberie-dupont.fr</p>`}
	got := New(f, nil, nil).Extract(context.Background(), dupont, "plombier", "Paris")

	assert.Equal(t, HarvestTimeout, f.timeout)
	require.Len(t, got, 1)
	r := got[0]
	assert.Equal(t, "contact@plomberie-dupont.fr", r.Email)
	assert.Equal(t, "Plomberie Dupont", r.BusinessName)
	assert.Equal(t, "plomberie-dupont.fr", r.Website)
	assert.Equal(t, "plomberie-dupont.fr", r.EmailSource)
	assert.Equal(t, "Paris", r.City)
	assert.Equal(t, "0142424242", r.Phone)
	assert.Equal(t, leads.OriginRegex, r.Origin)
}

func TestExtract_FetchFailureYieldsPlaceholders(t *testing.T) {
	f := &fakeFetcher{err: errors.New("dial tcp: no such host")}
	got := New(f, nil, nil).Extract(context.Background(), dupont, "plombier", "75")

	assert.Equal(t, []string{"contact@plomberie-dupont.fr", "info@plomberie-dupont.fr"}, emails(got))
	for _, r := range got {
		assert.Equal(t, dupont.Website, r.EmailSource)
		assert.Equal(t, leads.OriginPlaceholder, r.Origin)
	}
}

func TestExtract_EmptyPageYieldsPlaceholders(t *testing.T) {
	f := &fakeFetcher{html: "<html><body>Appelez-nous</body></html>"}
	got := New(f, nil, nil).Extract(context.Background(), dupont, "plombier", "75")
	assert.Equal(t, []string{"contact@plomberie-dupont.fr", "info@plomberie-dupont.fr"}, emails(got))
}

func TestExtract_AIResult(t *testing.T) {
	f := &fakeFetcher{html: `<html><body><h1>Plomberie Dupont</h1><p>regex@plomberie-dupont.fr</p></body></html>`}
	var req ai.Request
	c := ai.CompleterFunc(func(_ context.Context, r ai.Request) (string, error) {
		req = r
		return "```json\n" + `{
			"businessName": "Plomberie Dupont SARL",
			"email": ["Devis@Plomberie-Dupont.fr", "noreply@plomberie-dupont.fr", "devis@plomberie-dupont.fr"],
			"phone": ["+33142424242"],
			"address": "",
			"website": "https://plomberie-dupont.fr",
			"isRelevant": true,
			"relevanceScore": 92,
			"extractedInfo": "Plombier chauffagiste"
		}` + "\n```", nil
	})

	got := New(f, c, nil).Extract(context.Background(), dupont, "plombier", "Paris")

	assert.Equal(t, FullPageTimeout, f.timeout)
	assert.Equal(t, 500, req.MaxTokens)
	assert.Contains(t, req.Prompt, "https://plomberie-dupont.fr")
	assert.Contains(t, req.Prompt, "Plomberie Dupont")
	assert.NotContains(t, req.Prompt, "<h1>")

	require.Len(t, got, 1)
	r := got[0]
	assert.Equal(t, "devis@plomberie-dupont.fr", r.Email)
	assert.Equal(t, "Plomberie Dupont SARL", r.BusinessName)
	assert.Equal(t, "+33142424242", r.Phone)
	assert.Equal(t, "12 rue de la Paix", r.Address)
	assert.Equal(t, dupont.Website, r.EmailSource)
	assert.Equal(t, leads.OriginAI, r.Origin)
}

func TestExtract_AIFallsThroughToHarvest(t *testing.T) {
	html := `<p>contact@plomberie-dupont.fr</p>`
	tests := []struct {
		name   string
		answer string
		err    error
	}{
		{name: "not_relevant", answer: `{"businessName":"x","email":["a@b.fr"],"isRelevant":false,"relevanceScore":10}`},
		{name: "no_email", answer: `{"businessName":"x","email":[],"isRelevant":true}`},
		{name: "only_role_email", answer: `{"email":["noreply@b.fr"],"isRelevant":true}`},
		{name: "garbage", answer: "désolé"},
		{name: "truncated", answer: `{"businessName":"x","email":["a@b.fr"],"isRelevant":true`},
		{name: "missing_verdict", answer: `{"businessName":"x","email":["a@b.fr"]}`},
		{name: "call_error", err: errors.New("429 too many requests")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := ai.CompleterFunc(func(context.Context, ai.Request) (string, error) { return tt.answer, tt.err })
			got := New(&fakeFetcher{html: html}, c, nil).Extract(context.Background(), dupont, "plombier", "75")
			require.Len(t, got, 1)
			assert.Equal(t, "contact@plomberie-dupont.fr", got[0].Email)
			assert.Equal(t, leads.OriginRegex, got[0].Origin)
		})
	}
}

func TestExtract_AISkippedWhenFetchFails(t *testing.T) {
	called := false
	c := ai.CompleterFunc(func(context.Context, ai.Request) (string, error) {
		called = true
		return "", nil
	})
	got := New(&fakeFetcher{err: errors.New("timeout")}, c, nil).Extract(context.Background(), dupont, "plombier", "75")
	assert.False(t, called)
	assert.Len(t, got, 2)
}

func TestExtract_RecoversPanics(t *testing.T) {
	got := New(&fakeFetcher{panics: true}, nil, nil).Extract(context.Background(), dupont, "plombier", "75")
	assert.Empty(t, got)
}

func TestFetcher(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, UserAgent, r.Header.Get("User-Agent"))
		switch r.URL.Path {
		case "/ok":
			w.Header().Set("Content-Type", "text/html")
			_, _ = w.Write([]byte("<p>contact@site.fr</p>"))
		case "/slow":
			time.Sleep(200 * time.Millisecond)
			_, _ = w.Write([]byte("late"))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	f := NewFetcher()
	p, err := f.Fetch(context.Background(), srv.URL+"/ok", time.Second)
	require.NoError(t, err)
	assert.True(t, strings.Contains(p.HTML, "contact@site.fr"))

	_, err = f.Fetch(context.Background(), srv.URL+"/missing", time.Second)
	assert.Error(t, err)

	_, err = f.Fetch(context.Background(), srv.URL+"/slow", 20*time.Millisecond)
	assert.Error(t, err)
}
