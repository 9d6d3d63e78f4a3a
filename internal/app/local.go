package app

import (
	"context"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"

	"github.com/palantir/business-contact-pipeline/internal/leads"
	"github.com/palantir/business-contact-pipeline/internal/pipeline"
	"github.com/palantir/business-contact-pipeline/pkg/pipeline/io/local"
)

// RunLocal runs every query in order on the calling goroutine and writes all
// contact results to w as one CSV. A search that ends failed does not stop
// the batch; its persisted results are still written.
func (s *Service) RunLocal(ctx context.Context, queries []local.Query, w io.Writer) ([]leads.Search, error) {
	start := time.Now()
	var (
		searches []leads.Search
		results  []leads.ContactResult
	)
	for i, q := range queries {
		if err := ctx.Err(); err != nil {
			return searches, err
		}
		search, rs, err := s.RunSearch(ctx, q.Area, q.Sector)
		if err != nil {
			return searches, fmt.Errorf("query %d (%s / %s): %w", i+1, q.Area, q.Sector, err)
		}
		s.logger.Info("local search finished",
			zap.Int("query", i+1),
			zap.Int("queries", len(queries)),
			zap.Int64("search_id", search.ID),
			zap.String("status", string(search.Status)),
			zap.Int("results", len(rs)),
		)
		searches = append(searches, search)
		results = append(results, rs...)
	}
	if err := pipeline.WriteCSV(w, pipeline.RowsFromResults(results)); err != nil {
		return searches, fmt.Errorf("write csv: %w", err)
	}
	s.logger.Info("local run finished",
		zap.Int("searches", len(searches)),
		zap.Int("results", len(results)),
		zap.Duration("duration", time.Since(start)),
	)
	return searches, nil
}
