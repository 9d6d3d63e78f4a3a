// Package app wires the search service: it creates searches, queues them, and
// runs each queued search exactly once under a lease.
package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/palantir/business-contact-pipeline/internal/lease"
	"github.com/palantir/business-contact-pipeline/internal/leads"
	"github.com/palantir/business-contact-pipeline/internal/pipeline"
	"github.com/palantir/business-contact-pipeline/internal/store"
	"github.com/palantir/business-contact-pipeline/pkg/pipeline/redact"
	"github.com/palantir/business-contact-pipeline/pkg/pipeline/worker"
)

var (
	// ErrInvalidInput is returned when area or sector is blank.
	ErrInvalidInput = errors.New("invalid input")
	// ErrBusy is returned when the job queue cannot take another search.
	ErrBusy = errors.New("search queue is full")
	// ErrActive is returned when deleting a search that has not finished.
	ErrActive = errors.New("search still running")
)

// SearchRunner runs one search to a terminal state.
type SearchRunner interface {
	Run(ctx context.Context, search leads.Search) (pipeline.Summary, error)
}

type ServiceOptions struct {
	Workers   int
	QueueSize int
	LeaseTTL  time.Duration
}

type Service struct {
	store    store.Store
	runner   SearchRunner
	locker   lease.Locker
	leaseTTL time.Duration
	pool     *worker.Pool[int64]
	logger   *zap.Logger
}

func NewService(st store.Store, runner SearchRunner, locker lease.Locker, opts ServiceOptions, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if locker == nil {
		locker = lease.NewMemory()
	}
	if opts.LeaseTTL <= 0 {
		opts.LeaseTTL = lease.DefaultTTL
	}
	s := &Service{
		store:    st,
		runner:   runner,
		locker:   locker,
		leaseTTL: opts.LeaseTTL,
		logger:   logger.Named("service"),
	}
	s.pool = worker.New(s.runQueued, worker.Options{
		Workers:   opts.Workers,
		QueueSize: opts.QueueSize,
		OnError: func(job any, err error) {
			s.logger.Error("search job failed", zap.Any("search_id", job), zap.String("error", redact.Secrets(err.Error())))
		},
	})
	return s
}

// Start launches the queue workers. Runs use ctx; they are not cancelled by
// Close.
func (s *Service) Start(ctx context.Context) {
	s.pool.Start(ctx)
}

// Close stops accepting searches and waits for queued ones to finish.
func (s *Service) Close() {
	s.pool.Close()
}

// StartSearch records a pending search and queues it. It returns as soon as
// the search is queued; callers poll GetSearch for progress.
func (s *Service) StartSearch(ctx context.Context, area, sector string) (leads.Search, error) {
	search, err := s.create(ctx, area, sector)
	if err != nil {
		return leads.Search{}, err
	}
	if err := s.pool.TrySubmit(search.ID); err != nil {
		msg := "not queued: " + err.Error()
		failed := leads.StatusFailed
		if uerr := s.store.UpdateSearch(ctx, search.ID, leads.SearchUpdate{Status: &failed, ErrorMessage: &msg}); uerr != nil {
			s.logger.Error("could not mark unqueued search failed", zap.Int64("search_id", search.ID), zap.Error(uerr))
		}
		if errors.Is(err, worker.ErrQueueFull) {
			return leads.Search{}, ErrBusy
		}
		return leads.Search{}, fmt.Errorf("queue search %d: %w", search.ID, err)
	}
	s.logger.Info("search queued",
		zap.Int64("search_id", search.ID),
		zap.String("area", search.Area),
		zap.String("sector", search.Sector),
	)
	return search, nil
}

// RunSearch creates a search and runs it on the calling goroutine.
func (s *Service) RunSearch(ctx context.Context, area, sector string) (leads.Search, []leads.ContactResult, error) {
	search, err := s.create(ctx, area, sector)
	if err != nil {
		return leads.Search{}, nil, err
	}
	if err := s.runQueued(ctx, search.ID); err != nil {
		return leads.Search{}, nil, err
	}
	final, err := s.store.GetSearch(ctx, search.ID)
	if err != nil {
		return leads.Search{}, nil, err
	}
	results, err := s.store.ListContactResults(ctx, search.ID)
	if err != nil {
		return final, nil, err
	}
	return final, results, nil
}

func (s *Service) create(ctx context.Context, area, sector string) (leads.Search, error) {
	area = strings.TrimSpace(area)
	sector = strings.TrimSpace(sector)
	if area == "" {
		return leads.Search{}, fmt.Errorf("%w: area is required", ErrInvalidInput)
	}
	if sector == "" {
		return leads.Search{}, fmt.Errorf("%w: sector is required", ErrInvalidInput)
	}
	return s.store.CreateSearch(ctx, area, sector)
}

// runQueued runs search id once: it takes the lease and only starts a search
// that is still pending.
func (s *Service) runQueued(ctx context.Context, id int64) error {
	if err := ctx.Err(); err != nil {
		// Shutting down: finish the search instead of leaving it pending.
		return s.markFailed(ctx, id, "not started: "+err.Error())
	}
	l, err := s.locker.Acquire(ctx, lease.SearchKey(id), s.leaseTTL)
	if errors.Is(err, lease.ErrHeld) {
		s.logger.Info("search already running elsewhere, skipping", zap.Int64("search_id", id))
		return nil
	}
	if err != nil {
		err = fmt.Errorf("acquire lease: %w", err)
		if markErr := s.markFailed(ctx, id, err.Error()); markErr != nil {
			s.logger.Warn("mark search failed", zap.Int64("search_id", id), zap.String("error", redact.Secrets(markErr.Error())))
		}
		return err
	}
	defer func() {
		if err := l.Release(context.WithoutCancel(ctx)); err != nil {
			s.logger.Warn("lease release failed", zap.Int64("search_id", id), zap.Error(err))
		}
	}()

	search, err := s.store.GetSearch(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return err
	}
	if err != nil {
		err = fmt.Errorf("load search: %w", err)
		if markErr := s.markFailed(ctx, id, err.Error()); markErr != nil {
			s.logger.Warn("mark search failed", zap.Int64("search_id", id), zap.String("error", redact.Secrets(markErr.Error())))
		}
		return err
	}
	if search.Status != leads.StatusPending {
		s.logger.Info("search not pending, skipping",
			zap.Int64("search_id", id),
			zap.String("status", string(search.Status)),
		)
		return nil
	}
	_, err = s.runner.Run(ctx, search)
	return err
}

// markFailed moves a search that will never run to failed so it does not stay
// pending forever.
func (s *Service) markFailed(ctx context.Context, id int64, msg string) error {
	msg = redact.Secrets(msg)
	failed := leads.StatusFailed
	return s.store.UpdateSearch(context.WithoutCancel(ctx), id, leads.SearchUpdate{Status: &failed, ErrorMessage: &msg})
}

func (s *Service) GetSearch(ctx context.Context, id int64) (leads.Search, error) {
	return s.store.GetSearch(ctx, id)
}

func (s *Service) ListSearches(ctx context.Context, limit int) ([]leads.Search, error) {
	return s.store.ListSearches(ctx, limit)
}

// ListResults returns the contact results of an existing search.
func (s *Service) ListResults(ctx context.Context, id int64) ([]leads.ContactResult, error) {
	if _, err := s.store.GetSearch(ctx, id); err != nil {
		return nil, err
	}
	return s.store.ListContactResults(ctx, id)
}

// DeleteSearch removes a finished search. Pending or processing searches are
// refused with ErrActive.
func (s *Service) DeleteSearch(ctx context.Context, id int64) error {
	search, err := s.store.GetSearch(ctx, id)
	if err != nil {
		return err
	}
	if !search.Status.Terminal() {
		return fmt.Errorf("search %d is %s: %w", id, search.Status, ErrActive)
	}
	return s.store.DeleteSearch(ctx, id)
}
