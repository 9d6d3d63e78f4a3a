// Package pipeline runs one search end to end: discovery, relevance scoring,
// contact extraction, and persistence, while driving the search status.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/palantir/business-contact-pipeline/internal/leads"
	"github.com/palantir/business-contact-pipeline/internal/relevance"
	"github.com/palantir/business-contact-pipeline/pkg/pipeline/redact"
)

// DefaultMinRelevance is the lowest relevance score that still reaches contact extraction.
const DefaultMinRelevance = 40

type Discoverer interface {
	Discover(ctx context.Context, area, sector string) []leads.Candidate
}

type Scorer interface {
	Filter(ctx context.Context, candidates []leads.Candidate, sector, area string) []leads.ScoredCandidate
}

type Extractor interface {
	Extract(ctx context.Context, c leads.Candidate, sector, area string) []leads.ContactResult
}

// Store is the persistence the runner writes to during a run.
type Store interface {
	UpdateSearch(ctx context.Context, id int64, u leads.SearchUpdate) error
	AddContactResult(ctx context.Context, searchID int64, r leads.ContactResult) (int64, error)
}

type Options struct {
	// MinRelevance is inclusive. Zero means DefaultMinRelevance.
	MinRelevance int
}

type Runner struct {
	discovery Discoverer
	scorer    Scorer
	extractor Extractor
	store     Store
	opts      Options
	logger    *zap.Logger
}

func NewRunner(d Discoverer, s Scorer, e Extractor, store Store, opts Options, logger *zap.Logger) *Runner {
	if opts.MinRelevance <= 0 {
		opts.MinRelevance = DefaultMinRelevance
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		discovery: d,
		scorer:    s,
		extractor: e,
		store:     store,
		opts:      opts,
		logger:    logger.Named("pipeline"),
	}
}

// Summary describes a finished run.
type Summary struct {
	SearchID     int64
	Status       leads.Status
	Discovered   int
	Kept         int
	TotalResults int
	ErrorMessage string
	Duration     time.Duration
}

// Run moves the search from pending through processing to completed or
// failed. Only persistence failures (and panics) fail a search; partial
// results already stored are kept. The returned error is non-nil only when
// the final status could not be recorded.
func (r *Runner) Run(ctx context.Context, search leads.Search) (Summary, error) {
	start := time.Now()
	log := r.logger.With(
		zap.String("run", uuid.NewString()),
		zap.Int64("search_id", search.ID),
	)
	sum := Summary{SearchID: search.ID}

	err := r.process(ctx, search, &sum, log)
	sum.Duration = time.Since(start)
	if err != nil {
		msg := failureMessage(err)
		sum.Status = leads.StatusFailed
		sum.ErrorMessage = msg
		log.Error("search failed",
			zap.String("error", msg),
			zap.Int("persisted", sum.TotalResults),
			zap.Duration("duration", sum.Duration),
		)
		failed := leads.StatusFailed
		if uerr := r.store.UpdateSearch(context.WithoutCancel(ctx), search.ID, leads.SearchUpdate{Status: &failed, ErrorMessage: &msg}); uerr != nil {
			return sum, fmt.Errorf("record failure of search %d: %w", search.ID, uerr)
		}
		return sum, nil
	}

	completed := leads.StatusCompleted
	total := sum.TotalResults
	if uerr := r.store.UpdateSearch(ctx, search.ID, leads.SearchUpdate{Status: &completed, TotalResults: &total}); uerr != nil {
		// The completion write is itself a persistence failure.
		msg := failureMessage(uerr)
		failed := leads.StatusFailed
		sum.Status = leads.StatusFailed
		sum.ErrorMessage = msg
		if ferr := r.store.UpdateSearch(context.WithoutCancel(ctx), search.ID, leads.SearchUpdate{Status: &failed, ErrorMessage: &msg}); ferr != nil {
			return sum, fmt.Errorf("record completion of search %d: %w", search.ID, errors.Join(uerr, ferr))
		}
		return sum, nil
	}
	sum.Status = leads.StatusCompleted
	log.Info("search completed",
		zap.String("area", search.Area),
		zap.String("sector", search.Sector),
		zap.Int("discovered", sum.Discovered),
		zap.Int("kept", sum.Kept),
		zap.Int("results", sum.TotalResults),
		zap.Duration("duration", sum.Duration),
	)
	return sum, nil
}

func (r *Runner) process(ctx context.Context, search leads.Search, sum *Summary, log *zap.Logger) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("search run panicked: %v", p)
		}
	}()

	processing := leads.StatusProcessing
	if err := r.store.UpdateSearch(ctx, search.ID, leads.SearchUpdate{Status: &processing}); err != nil {
		return fmt.Errorf("mark search processing: %w", err)
	}

	candidates := r.discovery.Discover(ctx, search.Area, search.Sector)
	sum.Discovered = len(candidates)

	scored := r.scorer.Filter(ctx, candidates, search.Sector, search.Area)
	kept := relevance.Keep(scored, r.opts.MinRelevance)
	sum.Kept = len(kept)
	log.Info("candidates filtered",
		zap.Int("discovered", len(candidates)),
		zap.Int("scored", len(scored)),
		zap.Int("kept", len(kept)),
		zap.Int("min_relevance", r.opts.MinRelevance),
	)

	for _, c := range kept {
		results := r.extractor.Extract(ctx, c.Candidate, search.Sector, search.Area)
		for _, res := range results {
			res.SearchID = search.ID
			if _, err := r.store.AddContactResult(ctx, search.ID, res); err != nil {
				return fmt.Errorf("store contact for %q: %w", c.Name, err)
			}
			sum.TotalResults++
		}
	}
	return nil
}

func failureMessage(err error) string {
	msg := strings.TrimSpace(redact.Secrets(err.Error()))
	if msg == "" {
		return "unknown error"
	}
	return msg
}
