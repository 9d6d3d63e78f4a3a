package app

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/palantir/business-contact-pipeline/internal/ai"
	"github.com/palantir/business-contact-pipeline/internal/ai/gemini"
	"github.com/palantir/business-contact-pipeline/internal/ai/openrouter"
	"github.com/palantir/business-contact-pipeline/internal/config"
	"github.com/palantir/business-contact-pipeline/internal/contact"
	"github.com/palantir/business-contact-pipeline/internal/discovery"
	"github.com/palantir/business-contact-pipeline/internal/lease"
	"github.com/palantir/business-contact-pipeline/internal/pipeline"
	"github.com/palantir/business-contact-pipeline/internal/relevance"
	"github.com/palantir/business-contact-pipeline/internal/store/sqlite"
	"github.com/palantir/business-contact-pipeline/pkg/pipeline/redact"
	"github.com/palantir/business-contact-pipeline/pkg/pipeline/retry"
)

// App is a fully wired Service together with the resources it owns.
type App struct {
	Service *Service
	Store   *sqlite.Store

	closers []io.Closer
}

// Close releases the store and the Redis client. Stop the Service first.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Build opens storage and constructs every stage from cfg.
func Build(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &App{}

	st, err := sqlite.Open(cfg.Database.Path)
	if err != nil {
		return nil, err
	}
	a.Store = st
	a.closers = append(a.closers, st)

	locker, err := buildLocker(ctx, cfg, logger)
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	if rl, ok := locker.(*redisLocker); ok {
		a.closers = append(a.closers, rl.client)
	}

	completer, err := BuildCompleter(ctx, cfg, logger)
	if err != nil {
		_ = a.Close()
		return nil, err
	}

	discoverer := discovery.New(logger,
		discovery.NewFirecrawlSearch(discovery.FirecrawlConfig{
			APIKey:  cfg.Discovery.FirecrawlAPIKey,
			BaseURL: cfg.Discovery.FirecrawlBaseURL,
			Timeout: cfg.Discovery.Timeout,
		}),
		discovery.NewPagesJaunes(discovery.DirectoryConfig{
			BaseURL: cfg.Discovery.DirectoryBaseURL,
			Timeout: cfg.Discovery.Timeout,
		}),
	)
	runner := pipeline.NewRunner(
		discoverer,
		relevance.New(completer, logger),
		contact.New(contact.NewFetcher(), completer, logger),
		st,
		pipeline.Options{MinRelevance: cfg.Pipeline.MinRelevance},
		logger,
	)
	a.Service = NewService(st, runner, locker, ServiceOptions{
		Workers:   cfg.Queue.Workers,
		QueueSize: cfg.Queue.Size,
		LeaseTTL:  cfg.Queue.LeaseTTL,
	}, logger)
	return a, nil
}

// redisLocker keeps the client next to the Locker so Build can close it.
type redisLocker struct {
	*lease.Redis
	client *redis.Client
}

func buildLocker(ctx context.Context, cfg config.Config, logger *zap.Logger) (lease.Locker, error) {
	if cfg.Redis.URL == "" {
		return lease.NewMemory(), nil
	}
	client, err := lease.Connect(ctx, cfg.Redis.URL)
	if err != nil {
		return nil, err
	}
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", redact.Secrets(cfg.Redis.URL), err)
	}
	logger.Info("using redis run leases", zap.String("redis", redact.Secrets(cfg.Redis.URL)))
	return &redisLocker{Redis: lease.NewRedis(client), client: client}, nil
}

// BuildCompleter returns the configured AI provider wrapped with tracing and
// retries, or nil when no provider is configured.
func BuildCompleter(ctx context.Context, cfg config.Config, logger *zap.Logger) (ai.Completer, error) {
	var (
		next  ai.Completer
		model string
	)
	provider := cfg.ResolvedProvider()
	switch provider {
	case config.ProviderOpenRouter:
		c, err := openrouter.New(openrouter.Config{
			APIKey:  cfg.AI.OpenRouter.APIKey,
			Model:   cfg.AI.OpenRouter.Model,
			BaseURL: cfg.AI.OpenRouter.BaseURL,
		})
		if err != nil {
			return nil, err
		}
		next, model = c, c.Model()
	case config.ProviderGemini:
		c, err := gemini.New(ctx, gemini.Config{
			APIKey:  cfg.AI.Gemini.APIKey,
			Model:   cfg.AI.Gemini.Model,
			BaseURL: cfg.AI.Gemini.BaseURL,
		})
		if err != nil {
			return nil, err
		}
		next, model = c, c.Model()
	default:
		logger.Warn("no AI provider configured; relevance is neutral and contacts come from the page harvest")
		return nil, nil
	}

	logger.Info("AI provider configured", zap.String("provider", provider), zap.String("model", model))
	r := retry.New(retry.Options{
		MaxRetries:     cfg.AI.MaxRetries,
		RequestTimeout: cfg.AI.RequestTimeout,
		RateLimitRPS:   cfg.AI.RateLimitRPS,
	})
	return ai.WithRetry(newTracedCompleter(next, logger, provider, cfg.AI.MaxRetries), r), nil
}
