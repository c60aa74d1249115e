// Package engine assembles the decision core from its startup
// configuration: GitHub client, event dispatcher, work queue, caches,
// and metering, wired once and threaded explicitly.
package engine

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/DataDog/datadog-go/v5/statsd"
	"github.com/mergifyio/engine/pkg/config"
	"github.com/mergifyio/engine/pkg/events"
	"github.com/mergifyio/engine/pkg/github"
	"github.com/mergifyio/engine/pkg/rules"
)

// Engine is the assembled decision core.
type Engine struct {
	Client      *github.Client
	Dispatcher  *events.Dispatcher
	Resolver    *events.Resolver
	Permissions *events.PermissionCache

	closers []io.Closer
}

// Option overrides one of the engine's default backends, mainly for
// tests and single-process deployments that run without Redis.
type Option func(*settings)

type settings struct {
	queue  events.Queue
	cache  events.SHACache
	stats  statsd.ClientInterface
	logger *slog.Logger
}

// WithQueue replaces the default Redis stream queue.
func WithQueue(q events.Queue) Option {
	return func(s *settings) { s.queue = q }
}

// WithSHACache replaces the default Redis SHA cache.
func WithSHACache(c events.SHACache) Option {
	return func(s *settings) { s.cache = c }
}

// WithStatsd replaces the metering client built from the configured
// statsd address.
func WithStatsd(client statsd.ClientInterface) Option {
	return func(s *settings) { s.stats = client }
}

// WithLogger sets the logger shared by the engine's components.
func WithLogger(logger *slog.Logger) Option {
	return func(s *settings) { s.logger = logger }
}

// New assembles an engine from the configuration. Backends not
// overridden by options are built from the configured addresses.
func New(cfg *config.Config, opts ...Option) (*Engine, error) {
	s := &settings{logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}

	e := &Engine{Permissions: events.NewPermissionCache()}

	if s.stats == nil {
		stats, err := events.NewMeter(cfg.StatsdAddr)
		if err != nil {
			return nil, fmt.Errorf("statsd client: %w", err)
		}
		s.stats = stats
	}
	if s.queue == nil {
		queue, err := events.NewRedisStreamQueue(cfg.RedisAddr)
		if err != nil {
			return nil, fmt.Errorf("event queue: %w", err)
		}
		s.queue = queue
		e.closers = append(e.closers, queue)
	}
	if s.cache == nil {
		cache, err := events.NewRedisSHACache(cfg.RedisAddr)
		if err != nil {
			_ = e.Close()
			return nil, fmt.Errorf("sha cache: %w", err)
		}
		s.cache = cache
		e.closers = append(e.closers, cache)
	}

	e.Client = github.NewClient(cfg.GitHubToken,
		github.WithAPIURL(cfg.GitHubAPIURL),
		github.WithLogger(s.logger))

	e.Dispatcher = events.NewDispatcher(s.queue,
		events.WithLogger(s.logger),
		events.WithStatsd(s.stats),
		events.WithPermissionCache(e.Permissions),
		events.WithAppID(cfg.IntegrationID),
		events.WithBotLogins(cfg.BotLogins))

	e.Resolver = events.NewResolver(s.cache, cfg.GitHubAPIURL, s.logger)

	return e, nil
}

// Config fetches and parses a repository's configuration file through
// the engine's GitHub client.
func (e *Engine) Config(ctx context.Context, owner, repo, ref string) (*rules.UserConfiguration, error) {
	return rules.GetConfig(ctx, e.Client, owner, repo, ref)
}

// Close releases the engine's backend connections.
func (e *Engine) Close() error {
	var firstErr error
	for _, c := range e.closers {
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
