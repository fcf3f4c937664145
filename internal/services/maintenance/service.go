// Package maintenance puts the web role into and out of maintenance mode.
package maintenance

import (
	"context"
	"fmt"
	"path"
	"time"

	"github.com/fgeck/webmaint/internal/models"
	"github.com/fgeck/webmaint/internal/services/cache"
	"github.com/fgeck/webmaint/internal/services/local"
	"github.com/fgeck/webmaint/internal/services/prompt"
	"github.com/fgeck/webmaint/internal/services/remote"
	"github.com/fgeck/webmaint/internal/services/render"
	"github.com/fgeck/webmaint/internal/services/ssh"
	"github.com/fgeck/webmaint/internal/services/telegram"
	"github.com/fgeck/webmaint/internal/services/timeparse"
	"github.com/rs/zerolog"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"
)

// ConfirmQuestion is asked before any host is touched.
const ConfirmQuestion = "Are you sure you want to put the website into maintenance mode? (y/n) "

// Service defines the interface for the maintenance controller.
type Service interface {
	Enable(ctx context.Context, req models.EnableRequest) (*models.EnableResult, error)
	Disable(ctx context.Context, t models.MaintenanceType) (*models.DisableResult, error)
	EnableInput(ctx context.Context, req models.EnableRequest) (*models.EnableResult, error)
	DisableInput(ctx context.Context) (*models.DisableResult, error)
	Status(ctx context.Context) ([]models.HostStatus, error)
}

// Services holds the collaborators of the controller.
type Services struct {
	Executor  remote.Executor
	Renderer  render.Service
	Parser    timeparse.Service
	Formatter *timeparse.Formatter
	Prompt    prompt.Service
	Purger    cache.Service    // nil if no cache is configured
	Telegram  telegram.Service // used only when cfg.Telegram is set
	Now       func() time.Time
}

// Impl implements the maintenance Service interface.
type Impl struct {
	cfg         models.Config
	executor    remote.Executor
	renderer    render.Service
	parser      timeparse.Service
	formatter   *timeparse.Formatter
	prompt      prompt.Service
	purger      cache.Service
	telegramSvc telegram.Service
	now         func() time.Time
	logger      zerolog.Logger
}

// New creates a controller wired to SSH, the local executor, the configured
// template, cache and Telegram settings. Answers are read through p.
func New(logger zerolog.Logger, cfg models.Config, p prompt.Service) (*Impl, error) {
	formatter, err := timeparse.NewFormatter(cfg.Maintenance.TimeZone, cfg.Maintenance.TimeFormat)
	if err != nil {
		return nil, err
	}

	inputZone := time.Local
	if cfg.Maintenance.InputZone != "" && cfg.Maintenance.InputZone != "Local" {
		inputZone, err = time.LoadLocation(cfg.Maintenance.InputZone)
		if err != nil {
			return nil, fmt.Errorf("loading input time zone %q: %w", cfg.Maintenance.InputZone, err)
		}
	}

	renderer, err := render.New(logger, cfg.Maintenance.Template)
	if err != nil {
		return nil, err
	}

	executor := remote.NewRouter(local.New(logger), ssh.New(logger, cfg.SSH))

	return NewWithServices(logger, cfg, Services{
		Executor:  executor,
		Renderer:  renderer,
		Parser:    timeparse.New(logger, inputZone),
		Formatter: formatter,
		Prompt:    p,
		Purger:    cache.New(logger, cfg.Cache, executor),
		Telegram:  telegram.New(logger),
		Now:       time.Now,
	}), nil
}

// NewWithServices creates a controller with custom collaborators (for testing).
func NewWithServices(logger zerolog.Logger, cfg models.Config, svcs Services) *Impl {
	now := svcs.Now
	if now == nil {
		now = time.Now
	}
	return &Impl{
		cfg:         cfg,
		executor:    svcs.Executor,
		renderer:    svcs.Renderer,
		parser:      svcs.Parser,
		formatter:   svcs.Formatter,
		prompt:      svcs.Prompt,
		purger:      svcs.Purger,
		telegramSvc: svcs.Telegram,
		now:         now,
		logger:      logger,
	}
}

// Enable resolves the window, asks for confirmation once and then places
// the page and marker on every web host.
func (s *Impl) Enable(ctx context.Context, req models.EnableRequest) (*models.EnableResult, error) {
	window, err := s.resolveWindow(req)
	if err != nil {
		return nil, err
	}

	result := &models.EnableResult{Window: window}

	s.logger.Info().
		Str("type", string(window.Type)).
		Str("reason", window.Reason).
		Str("starting", window.StartedAtDisplay).
		Str("estimated_ending", window.EstimatedEndDisplay).
		Msg("maintenance window")

	if !req.AssumeYes {
		ok, err := s.prompt.Confirm(ConfirmQuestion)
		if err != nil {
			return nil, fmt.Errorf("confirmation failed: %w", err)
		}
		if !ok {
			s.logger.Info().Msg("maintenance mode not applied")
			return result, nil
		}
	}

	// The operator may have sat at the prompt; restamp the start.
	startedAt := s.now()
	window.StartedAt = startedAt
	window.StartedAtDisplay = s.formatter.Format(startedAt)
	result.Window = window

	html, err := s.renderer.Render(render.PageFromWindow(window))
	if err != nil {
		return nil, err
	}

	hosts := s.cfg.WebHosts()
	s.logger.Info().
		Int("hosts", len(hosts)).
		Str("started_at", window.StartedAtDisplay).
		Msg("enabling maintenance mode")

	result.Applied = true
	result.Hosts = forEachHost(ctx, hosts, s.cfg.Maintenance.Parallelism, func(ctx context.Context, host models.Host) models.HostResult {
		return s.enableHost(ctx, host, window.Type, html)
	})
	hostErr := hostErrors(result.Hosts)

	result.PurgeError = s.purge(ctx)

	s.notify(ctx, models.TelegramMessage{
		Enabled:      true,
		Type:         window.Type,
		Reason:       window.Reason,
		StartedAt:    window.StartedAtDisplay,
		EstimatedEnd: window.EstimatedEndDisplay,
		At:           startedAt,
	}, result.Hosts, result.PurgeError)

	return result, hostErr
}

// EnableInput enables the data-input maintenance type.
func (s *Impl) EnableInput(ctx context.Context, req models.EnableRequest) (*models.EnableResult, error) {
	req.Type = models.MaintenanceInput
	return s.Enable(ctx, req)
}

// Disable removes the type's marker from every web host, and the page when
// no other type still needs it. Missing files are not errors.
func (s *Impl) Disable(ctx context.Context, t models.MaintenanceType) (*models.DisableResult, error) {
	t, err := s.resolveType(t)
	if err != nil {
		return nil, err
	}

	hosts := s.cfg.WebHosts()
	s.logger.Info().
		Str("type", string(t)).
		Int("hosts", len(hosts)).
		Msg("disabling maintenance mode")

	result := &models.DisableResult{Type: t}
	result.Hosts = forEachHost(ctx, hosts, s.cfg.Maintenance.Parallelism, func(ctx context.Context, host models.Host) models.HostResult {
		hr := models.HostResult{Host: host}
		if err := s.clearHost(ctx, host, t); err != nil {
			hr.Error = err
			return hr
		}
		hr.Applied = true
		return hr
	})
	hostErr := hostErrors(result.Hosts)

	result.PurgeError = s.purge(ctx)

	s.notify(ctx, models.TelegramMessage{
		Type: t,
		At:   s.now(),
	}, result.Hosts, result.PurgeError)

	return result, hostErr
}

// DisableInput disables the data-input maintenance type.
func (s *Impl) DisableInput(ctx context.Context) (*models.DisableResult, error) {
	return s.Disable(ctx, models.MaintenanceInput)
}

// Status reports which maintenance files exist on every web host.
func (s *Impl) Status(ctx context.Context) ([]models.HostStatus, error) {
	statuses := forEachHost(ctx, s.cfg.WebHosts(), s.cfg.Maintenance.Parallelism, func(ctx context.Context, host models.Host) models.HostStatus {
		st := models.HostStatus{Host: host, Markers: make(map[models.MaintenanceType]bool)}

		page, err := s.exists(ctx, host, s.pagePath())
		if err != nil {
			st.Error = err
			return st
		}
		st.Page = page

		for _, t := range models.MaintenanceTypes {
			on, err := s.exists(ctx, host, s.markerPath(t))
			if err != nil {
				st.Error = err
				return st
			}
			st.Markers[t] = on
		}
		return st
	})

	var errs error
	for _, st := range statuses {
		errs = multierr.Append(errs, st.Error)
	}
	return statuses, errs
}

func (s *Impl) resolveType(t models.MaintenanceType) (models.MaintenanceType, error) {
	if t == "" {
		t = s.cfg.Maintenance.DefaultType
	}
	if t == "" {
		return models.MaintenanceGeneral, nil
	}
	return models.ParseMaintenanceType(string(t))
}

func (s *Impl) resolveWindow(req models.EnableRequest) (models.MaintenanceWindow, error) {
	t, err := s.resolveType(req.Type)
	if err != nil {
		return models.MaintenanceWindow{}, err
	}

	reason := req.Reason
	if reason == "" {
		reason = s.cfg.Maintenance.DefaultReason
	}
	if reason == "" {
		reason = "maintenance"
	}

	now := s.now()
	window := models.MaintenanceWindow{
		Type:                t,
		Reason:              reason,
		StartedAt:           now,
		StartedAtDisplay:    s.formatter.Format(now),
		EstimatedEndDisplay: models.ShortlyDisplay,
	}

	if req.Until != "" {
		end, ok := s.parser.Parse(req.Until, now)
		if !ok {
			return models.MaintenanceWindow{}, &InputError{Value: req.Until}
		}
		window.EstimatedEnd = &end
		window.EstimatedEndDisplay = s.formatter.Format(end)
	}

	return window, nil
}

func (s *Impl) systemDir() string {
	return path.Join(s.cfg.SharedPath, "public", "system")
}

func (s *Impl) pagePath() string {
	return path.Join(s.systemDir(), models.PageName)
}

func (s *Impl) markerPath(t models.MaintenanceType) string {
	return path.Join(s.systemDir(), t.MarkerName())
}

// enableHost writes the page and marker. If a write fails, whatever may
// have been created is removed before the original error is reported.
func (s *Impl) enableHost(ctx context.Context, host models.Host, t models.MaintenanceType, html []byte) models.HostResult {
	hr := models.HostResult{Host: host}

	if err := s.run(ctx, host, "create system directory", models.Command{
		Args: []string{"mkdir", "-p", s.systemDir()},
	}); err != nil {
		hr.Error = err
		return hr
	}

	steps := []struct {
		name string
		cmd  models.Command
	}{
		{"write maintenance page", models.Command{Args: []string{"cp", "/dev/stdin", s.pagePath()}, Stdin: html}},
		{"create marker", models.Command{Args: []string{"touch", s.markerPath(t)}}},
	}

	for _, step := range steps {
		if err := s.run(ctx, host, step.name, step.cmd); err != nil {
			hr.Error = err
			if rbErr := s.clearHost(ctx, host, t); rbErr != nil {
				s.logger.Error().
					Err(rbErr).
					Str("host", host.String()).
					Msg("rollback failed, maintenance files may be left behind")
			} else {
				hr.RolledBack = true
				s.logger.Warn().Str("host", host.String()).Msg("rolled back maintenance files")
			}
			return hr
		}
	}

	hr.Applied = true
	s.logger.Info().Str("host", host.String()).Str("type", string(t)).Msg("maintenance page placed")
	return hr
}

// clearHost removes t's marker, then the page unless another type's marker
// is still present.
func (s *Impl) clearHost(ctx context.Context, host models.Host, t models.MaintenanceType) error {
	if err := s.run(ctx, host, "remove marker", models.Command{
		Args: []string{"rm", "-f", s.markerPath(t)},
	}); err != nil {
		return err
	}

	for _, other := range models.MaintenanceTypes {
		if other == t {
			continue
		}
		active, err := s.exists(ctx, host, s.markerPath(other))
		if err != nil {
			return err
		}
		if active {
			// The page still shows the reason and end time of the last enable.
			s.logger.Warn().
				Str("host", host.String()).
				Str("disabled_type", string(t)).
				Str("active_type", string(other)).
				Msg("keeping maintenance page for other active type; its text may describe the disabled window")
			return nil
		}
	}

	return s.run(ctx, host, "remove maintenance page", models.Command{
		Args: []string{"rm", "-f", s.pagePath()},
	})
}

func (s *Impl) run(ctx context.Context, host models.Host, step string, cmd models.Command) error {
	result, err := s.executor.Run(ctx, host, cmd)
	if err != nil {
		return &RemoteExecutionError{Host: host, Step: step, Err: err}
	}
	if result.Error != nil {
		return &RemoteExecutionError{Host: host, Step: step, Output: result.Output, Err: result.Error}
	}
	return nil
}

// exists probes p with test -e; exit status 1 means absent.
func (s *Impl) exists(ctx context.Context, host models.Host, p string) (bool, error) {
	result, err := s.executor.Run(ctx, host, models.Command{Args: []string{"test", "-e", p}})
	if err != nil {
		return false, &RemoteExecutionError{Host: host, Step: "check " + path.Base(p), Err: err}
	}
	if result.Error == nil {
		return true, nil
	}
	if result.CommandRun && result.ExitCode == 1 {
		return false, nil
	}
	return false, &RemoteExecutionError{Host: host, Step: "check " + path.Base(p), Output: result.Output, Err: result.Error}
}

func (s *Impl) purge(ctx context.Context) error {
	if s.purger == nil {
		return nil
	}
	if err := s.purger.Purge(ctx); err != nil {
		s.logger.Warn().Err(err).Msg("cache purge failed, maintenance state left as is")
		return err
	}
	s.logger.Info().Msg("cache purged")
	return nil
}

func (s *Impl) notify(ctx context.Context, msg models.TelegramMessage, hosts []models.HostResult, purgeErr error) {
	if s.cfg.Telegram == nil || s.telegramSvc == nil {
		return
	}

	msg.HostsTotal = len(hosts)
	for _, hr := range hosts {
		if hr.Error != nil {
			msg.HostsFailed = append(msg.HostsFailed, hr.Host.String())
		}
	}
	if purgeErr != nil {
		msg.PurgeError = purgeErr.Error()
	}

	result, err := s.telegramSvc.SendNotification(ctx, *s.cfg.Telegram, msg)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to send Telegram notification")
		return
	}
	if result.Error != nil {
		s.logger.Error().Err(result.Error).Msg("failed to send Telegram notification")
	}
}

// forEachHost runs fn for every host, at most limit at a time (0 means no
// limit). fn never fails the group, so one host cannot stop another.
// Results keep the order of hosts.
func forEachHost[T any](ctx context.Context, hosts []models.Host, limit int, fn func(context.Context, models.Host) T) []T {
	results := make([]T, len(hosts))

	var g errgroup.Group
	if limit > 0 {
		g.SetLimit(limit)
	}
	for i, host := range hosts {
		i, host := i, host
		g.Go(func() error {
			results[i] = fn(ctx, host)
			return nil
		})
	}
	_ = g.Wait()

	return results
}

func hostErrors(results []models.HostResult) error {
	var errs error
	for _, hr := range results {
		errs = multierr.Append(errs, hr.Error)
	}
	return errs
}
