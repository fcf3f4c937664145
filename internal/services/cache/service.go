// Package cache invalidates the HTTP cache in front of the web tier.
package cache

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/fgeck/webmaint/internal/models"
	"github.com/fgeck/webmaint/internal/services/remote"
	"github.com/rs/zerolog"
	"go.uber.org/multierr"
)

// Service defines the interface for cache purging.
type Service interface {
	Purge(ctx context.Context) error
}

// New returns the purger selected by cfg.Method, or nil when cfg is nil.
func New(logger zerolog.Logger, cfg *models.CacheConfig, executor remote.Executor) Service {
	if cfg == nil {
		return nil
	}
	if cfg.Method == "http" {
		return NewHTTP(logger, *cfg)
	}
	return NewCommand(logger, *cfg, executor)
}

// CommandPurger runs a ban command on every cache host.
type CommandPurger struct {
	cfg      models.CacheConfig
	executor remote.Executor
	logger   zerolog.Logger
}

// NewCommand creates a purger that runs cfg.BanCommand through executor.
func NewCommand(logger zerolog.Logger, cfg models.CacheConfig, executor remote.Executor) *CommandPurger {
	return &CommandPurger{cfg: cfg, executor: executor, logger: logger}
}

// Purge runs the ban command on each host. Every host is attempted; the
// errors of all failed hosts are combined.
func (p *CommandPurger) Purge(ctx context.Context) error {
	var errs error

	for _, host := range p.cfg.Hosts {
		p.logger.Info().
			Str("host", host.String()).
			Strs("command", p.cfg.BanCommand).
			Msg("purging cache")

		result, err := p.executor.Run(ctx, host, models.Command{Args: p.cfg.BanCommand})
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("cache purge on %s: %w", host, err))
			continue
		}
		if result.Error != nil {
			errs = multierr.Append(errs, fmt.Errorf("cache purge on %s: %w", host, result.Error))
			continue
		}

		p.logger.Debug().Str("host", host.String()).Str("output", result.Output).Msg("cache purged")
	}

	return errs
}

// HTTPClient allows mocking HTTP requests.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// HTTPPurger sends a BAN request to a cache such as Varnish.
type HTTPPurger struct {
	cfg        models.CacheConfig
	httpClient HTTPClient
	logger     zerolog.Logger
}

// NewHTTP creates an HTTP purger.
func NewHTTP(logger zerolog.Logger, cfg models.CacheConfig) *HTTPPurger {
	return &HTTPPurger{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger: logger,
	}
}

// NewHTTPWithClient creates an HTTP purger with a custom HTTP client (for testing).
func NewHTTPWithClient(logger zerolog.Logger, cfg models.CacheConfig, httpClient HTTPClient) *HTTPPurger {
	return &HTTPPurger{cfg: cfg, httpClient: httpClient, logger: logger}
}

// Purge sends the BAN request.
func (p *HTTPPurger) Purge(ctx context.Context) error {
	p.logger.Info().
		Str("url", p.cfg.URL).
		Str("expression", p.cfg.BanExpression).
		Msg("purging cache")

	req, err := http.NewRequestWithContext(ctx, "BAN", p.cfg.URL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if p.cfg.BanHeader != "" {
		req.Header.Set(p.cfg.BanHeader, p.cfg.BanExpression)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("cache returned status %d", resp.StatusCode)
	}

	return nil
}
