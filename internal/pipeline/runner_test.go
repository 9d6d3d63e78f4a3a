package pipeline

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/palantir/business-contact-pipeline/internal/ai"
	"github.com/palantir/business-contact-pipeline/internal/contact"
	"github.com/palantir/business-contact-pipeline/internal/leads"
	"github.com/palantir/business-contact-pipeline/internal/relevance"
)

type fakeStore struct {
	mu      sync.Mutex
	updates []leads.SearchUpdate
	results []leads.ContactResult
	addErr  error
	failAt  int
}

func (s *fakeStore) UpdateSearch(_ context.Context, _ int64, u leads.SearchUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updates = append(s.updates, u)
	return nil
}

func (s *fakeStore) AddContactResult(_ context.Context, searchID int64, r leads.ContactResult) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.addErr != nil && len(s.results)+1 >= s.failAt {
		return 0, s.addErr
	}
	r.SearchID = searchID
	s.results = append(s.results, r)
	return int64(len(s.results)), nil
}

func (s *fakeStore) statuses() []leads.Status {
	var out []leads.Status
	for _, u := range s.updates {
		if u.Status != nil {
			out = append(out, *u.Status)
		}
	}
	return out
}

func (s *fakeStore) last() leads.SearchUpdate {
	return s.updates[len(s.updates)-1]
}

type staticDiscovery []leads.Candidate

func (d staticDiscovery) Discover(context.Context, string, string) []leads.Candidate { return d }

type pageFetcher map[string]string

func (f pageFetcher) Fetch(_ context.Context, rawURL string, _ time.Duration) (contact.Page, error) {
	u := contact.NormalizeURL(rawURL)
	html, ok := f[u]
	if !ok {
		return contact.Page{URL: u}, errors.New("no such host")
	}
	return contact.Page{URL: u, Status: http.StatusOK, HTML: html}, nil
}

type recordingExtractor struct {
	seen []string
}

func (e *recordingExtractor) Extract(_ context.Context, c leads.Candidate, _, area string) []leads.ContactResult {
	e.seen = append(e.seen, c.Name)
	return []leads.ContactResult{{BusinessName: c.Name, Email: "contact@" + c.Name + ".fr", City: area, Origin: leads.OriginRegex}}
}

var search = leads.Search{ID: 7, Area: "75", Sector: "plombier", Status: leads.StatusPending}

func TestRun_SingleCandidateWithoutAI(t *testing.T) {
	store := &fakeStore{}
	fetcher := pageFetcher{
		"https://plomberie-dupont.fr": `<p>contact@plomberie-dupont.fr</p><p>noreply@plomberie-dupont.fr</p>`,
	}
	r := NewRunner(
		staticDiscovery{{Name: "Plomberie Dupont", Website: "plomberie-dupont.fr"}},
		relevance.New(nil, nil),
		contact.New(fetcher, nil, nil),
		store, Options{}, nil,
	)

	sum, err := r.Run(context.Background(), search)
	require.NoError(t, err)

	assert.Equal(t, leads.StatusCompleted, sum.Status)
	assert.Equal(t, 1, sum.TotalResults)
	require.Len(t, store.results, 1)
	assert.Equal(t, "contact@plomberie-dupont.fr", store.results[0].Email)
	assert.Equal(t, int64(7), store.results[0].SearchID)
	assert.Equal(t, []leads.Status{leads.StatusProcessing, leads.StatusCompleted}, store.statuses())
	require.NotNil(t, store.last().TotalResults)
	assert.Equal(t, 1, *store.last().TotalResults)
}

func TestRun_NoCandidatesCompletesEmpty(t *testing.T) {
	store := &fakeStore{}
	ext := &recordingExtractor{}
	r := NewRunner(staticDiscovery{}, relevance.New(nil, nil), ext, store, Options{}, nil)

	sum, err := r.Run(context.Background(), search)
	require.NoError(t, err)

	assert.Equal(t, leads.StatusCompleted, sum.Status)
	assert.Zero(t, sum.TotalResults)
	assert.Empty(t, store.results)
	assert.Empty(t, ext.seen)
	assert.Equal(t, 0, *store.last().TotalResults)
}

func TestRun_PersistenceFailureFailsSearch(t *testing.T) {
	store := &fakeStore{addErr: errors.New("database is locked (api_key=sk-secret)"), failAt: 1}
	r := NewRunner(
		staticDiscovery{{Name: "dupont", Website: "dupont.fr"}, {Name: "martin", Website: "martin.fr"}},
		relevance.New(nil, nil),
		&recordingExtractor{},
		store, Options{}, nil,
	)

	sum, err := r.Run(context.Background(), search)
	require.NoError(t, err)

	assert.Equal(t, leads.StatusFailed, sum.Status)
	assert.Empty(t, store.results)
	assert.Equal(t, []leads.Status{leads.StatusProcessing, leads.StatusFailed}, store.statuses())
	msg := store.last().ErrorMessage
	require.NotNil(t, msg)
	assert.NotEmpty(t, *msg)
	assert.Contains(t, *msg, "database is locked")
	assert.NotContains(t, *msg, "sk-secret")
}

func TestRun_PartialResultsKeptOnFailure(t *testing.T) {
	store := &fakeStore{addErr: errors.New("disk full"), failAt: 2}
	r := NewRunner(
		staticDiscovery{{Name: "dupont", Website: "dupont.fr"}, {Name: "martin", Website: "martin.fr"}},
		relevance.New(nil, nil),
		&recordingExtractor{},
		store, Options{}, nil,
	)

	sum, err := r.Run(context.Background(), search)
	require.NoError(t, err)
	assert.Equal(t, leads.StatusFailed, sum.Status)
	require.Len(t, store.results, 1)
	assert.Equal(t, "dupont", store.results[0].BusinessName)
}

func TestRun_OnlyRelevantCandidatesReachExtraction(t *testing.T) {
	scorer := relevance.New(ai.CompleterFunc(func(context.Context, ai.Request) (string, error) {
		return `[{"name":"Plomberie Dupont","website":"https://plomberie-dupont.fr","relevanceScore":90},
		         {"name":"Boulangerie Martin","website":"https://boulangerie-martin.fr","relevanceScore":30}]`, nil
	}), nil)
	ext := &recordingExtractor{}
	store := &fakeStore{}
	r := NewRunner(
		staticDiscovery{{Name: "Plomberie Dupont"}, {Name: "Boulangerie Martin"}},
		scorer, ext, store, Options{}, nil,
	)

	sum, err := r.Run(context.Background(), search)
	require.NoError(t, err)
	assert.Equal(t, []string{"Plomberie Dupont"}, ext.seen)
	assert.Equal(t, 2, sum.Discovered)
	assert.Equal(t, 1, sum.Kept)
}

type fixedScores []leads.ScoredCandidate

func (f fixedScores) Filter(context.Context, []leads.Candidate, string, string) []leads.ScoredCandidate {
	return f
}

func TestRun_ThresholdBoundary(t *testing.T) {
	ext := &recordingExtractor{}
	scores := fixedScores{
		{Candidate: leads.Candidate{Name: "forty"}, RelevanceScore: 40},
		{Candidate: leads.Candidate{Name: "thirtynine"}, RelevanceScore: 39},
	}
	r := NewRunner(staticDiscovery{{Name: "forty"}, {Name: "thirtynine"}}, scores, ext, &fakeStore{}, Options{}, nil)
	_, err := r.Run(context.Background(), search)
	require.NoError(t, err)
	assert.Equal(t, []string{"forty"}, ext.seen)

	strict := &recordingExtractor{}
	r = NewRunner(staticDiscovery{}, scores, strict, &fakeStore{}, Options{MinRelevance: 60}, nil)
	_, err = r.Run(context.Background(), search)
	require.NoError(t, err)
	assert.Empty(t, strict.seen)
}

type panickyExtractor struct{}

func (panickyExtractor) Extract(context.Context, leads.Candidate, string, string) []leads.ContactResult {
	panic("nil map")
}

func TestRun_PanicFailsSearch(t *testing.T) {
	store := &fakeStore{}
	r := NewRunner(staticDiscovery{{Name: "x", Website: "x.fr"}}, relevance.New(nil, nil), panickyExtractor{}, store, Options{}, nil)

	sum, err := r.Run(context.Background(), search)
	require.NoError(t, err)
	assert.Equal(t, leads.StatusFailed, sum.Status)
	assert.Contains(t, sum.ErrorMessage, "panicked")
}

func TestRun_ResultsKeepCandidateOrder(t *testing.T) {
	store := &fakeStore{}
	r := NewRunner(
		staticDiscovery{{Name: "a"}, {Name: "b"}, {Name: "c"}},
		relevance.New(nil, nil), &recordingExtractor{}, store, Options{}, nil,
	)
	_, err := r.Run(context.Background(), search)
	require.NoError(t, err)
	require.Len(t, store.results, 3)
	assert.Equal(t, "a", store.results[0].BusinessName)
	assert.Equal(t, "b", store.results[1].BusinessName)
	assert.Equal(t, "c", store.results[2].BusinessName)
}
