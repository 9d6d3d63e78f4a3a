// Package discovery finds candidate businesses for an (area, sector) pair.
//
// Sources are tried in order: a web-search provider first, then a business
// directory scrape. The first source that is available wins; results from
// different sources are never mixed.
package discovery

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/palantir/business-contact-pipeline/internal/leads"
	"github.com/palantir/business-contact-pipeline/pkg/pipeline/core"
	"github.com/palantir/business-contact-pipeline/pkg/pipeline/redact"
)

// MaxCandidates caps the number of candidates a single source returns.
const MaxCandidates = 10

// Query is the discovery input.
type Query struct {
	Area   string
	Sector string
}

// Source is one discovery strategy.
type Source = core.Strategy[Query, []leads.Candidate]

type Discoverer struct {
	chain  *core.Chain[Query, []leads.Candidate]
	logger *zap.Logger
}

// New builds a Discoverer trying sources in the given order. Nil sources are skipped.
func New(logger *zap.Logger, sources ...Source) *Discoverer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Discoverer{
		chain:  core.NewChain(sources...),
		logger: logger.Named("discovery"),
	}
}

// Discover never fails: when every source is unavailable or errors it returns
// an empty list.
func (d *Discoverer) Discover(ctx context.Context, area, sector string) (out []leads.Candidate) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("discovery panicked", zap.String("panic", fmt.Sprint(r)))
			out = []leads.Candidate{}
		}
	}()

	q := Query{Area: area, Sector: sector}
	got, source, attempts, err := d.chain.Run(ctx, q)
	for _, a := range attempts {
		if a.Err != nil {
			d.logger.Warn("discovery source failed",
				zap.String("source", a.Strategy),
				zap.String("error", redact.Secrets(a.Err.Error())),
			)
		}
	}
	if err != nil {
		d.logger.Warn("no discovery source available",
			zap.String("area", area),
			zap.String("sector", sector),
			zap.Duration("duration", time.Since(start)),
		)
		return []leads.Candidate{}
	}
	if got == nil {
		got = []leads.Candidate{}
	}
	d.logger.Info("discovered candidates",
		zap.String("source", source),
		zap.String("area", area),
		zap.String("sector", sector),
		zap.Int("count", len(got)),
		zap.Duration("duration", time.Since(start)),
	)
	return got
}
