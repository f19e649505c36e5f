// Package app ties the dataset cache, settings provider and scan scheduler
// together behind a single controller that the CLI and the control API drive.
package app

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/dubbadge/internal/dataset"
	"github.com/JakeFAU/dubbadge/internal/logging"
	"github.com/JakeFAU/dubbadge/internal/metrics"
	"github.com/JakeFAU/dubbadge/internal/scan"
	"github.com/JakeFAU/dubbadge/internal/settings"
)

// Apply actions recorded in metrics and results.
const (
	ActionReload = "reload"
	ActionRescan = "rescan"
)

// Scanner is the slice of the scheduler the controller drives.
type Scanner interface {
	Run(ctx context.Context) error
	Rescan(ctx context.Context) (scan.Pass, error)
	Reset(ctx context.Context) error
}

// Status is the externally visible state of a running controller.
type Status struct {
	Dataset    dataset.Info      `json:"dataset"`
	Settings   settings.Snapshot `json:"settings"`
	Strategies []string          `json:"strategies,omitempty"`
}

// Result describes what one Apply call did.
type Result struct {
	Action   string            `json:"action"`
	Settings settings.Snapshot `json:"settings"`
	Pass     *scan.Pass        `json:"pass,omitempty"`
}

// Controller owns the lifecycle of one annotated page.
type Controller struct {
	cache      *dataset.Cache
	settings   *settings.Provider
	scanner    Scanner
	strategies []string
	logger     *zap.Logger

	applyMu sync.Mutex
	group   *errgroup.Group
	cancel  context.CancelFunc
}

// New builds a controller over already-wired components.
func New(cache *dataset.Cache, provider *settings.Provider, scanner Scanner, strategies []string, logger *zap.Logger) *Controller {
	return &Controller{
		cache:      cache,
		settings:   provider,
		scanner:    scanner,
		strategies: strategies,
		logger:     logging.OrNop(logger).Named("controller"),
	}
}

// Start loads persisted settings, kicks off the first dataset load and starts
// the scheduler. It returns immediately; Wait blocks until everything stops.
func (c *Controller) Start(ctx context.Context) error {
	if c.group != nil {
		return errors.New("controller already started")
	}
	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	snap := c.settings.Load(ctx)
	c.logger.Info("starting",
		zap.String("language", snap.Language),
		zap.String("confidence", snap.Confidence),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := c.cache.Reload(gctx, snap.Language, snap.Confidence); err != nil {
			if errors.Is(err, dataset.ErrSuperseded) || gctx.Err() != nil {
				return nil
			}
			c.logger.Warn("initial dataset load failed", zap.Error(err))
			return nil
		}
		c.rescan(gctx)
		return nil
	})
	g.Go(func() error {
		return c.scanner.Run(gctx)
	})
	c.group = g
	return nil
}

// Wait blocks until the scheduler exits and returns its error.
func (c *Controller) Wait() error {
	if c.group == nil {
		return nil
	}
	if err := c.group.Wait(); err != nil {
		return fmt.Errorf("controller: %w", err)
	}
	return nil
}

// Stop cancels the background work started by Start and waits for it.
func (c *Controller) Stop() error {
	if c.cancel != nil {
		c.cancel()
	}
	return c.Wait()
}

// Settings returns the live settings snapshot.
func (c *Controller) Settings() settings.Snapshot {
	return c.settings.Current()
}

// Ready reports whether the dataset is loaded and scans may annotate.
func (c *Controller) Ready() bool {
	return c.cache.Ready()
}

// Status reports dataset state, settings and the active strategies.
func (c *Controller) Status() Status {
	return Status{
		Dataset:    c.cache.Info(),
		Settings:   c.settings.Current(),
		Strategies: c.strategies,
	}
}

// Apply makes snap current. A changed dataset epoch, or force, invalidates the
// dataset, clears the page, reloads and rescans; any other change only clears
// the page and rescans so overlays pick up the new look.
func (c *Controller) Apply(ctx context.Context, snap settings.Snapshot, force bool) (Result, error) {
	if err := snap.Validate(); err != nil {
		return Result{}, err
	}
	c.applyMu.Lock()
	defer c.applyMu.Unlock()

	prev := c.settings.Current()
	epoch, loaded := c.cache.Epoch()
	reload := force || !loaded || !prev.SameEpoch(snap) ||
		epoch.Language != snap.Language || epoch.Confidence != snap.Confidence

	if err := c.settings.Save(ctx, snap); err != nil {
		return Result{}, err
	}
	res := Result{Action: ActionRescan, Settings: snap}
	if reload {
		res.Action = ActionReload
	}
	metrics.ObserveSettingsApply(res.Action)
	logger := c.logger.With(zap.String("action", res.Action))
	logger.Info("applying settings",
		zap.String("language", snap.Language),
		zap.String("confidence", snap.Confidence),
		zap.String("position", string(snap.Position)),
		zap.String("color", string(snap.Color)),
	)

	// Page work outlives the caller once settings are saved.
	work := context.WithoutCancel(ctx)
	if reload {
		c.cache.Invalidate()
	}
	if err := c.scanner.Reset(work); err != nil {
		return res, fmt.Errorf("reset page: %w", err)
	}
	if reload {
		if err := c.cache.Reload(work, snap.Language, snap.Confidence); err != nil {
			return res, fmt.Errorf("reload dataset: %w", err)
		}
	}
	pass, err := c.scanner.Rescan(work)
	switch {
	case errors.Is(err, scan.ErrBusy):
		logger.Debug("rescan deferred to running pass")
	case err != nil:
		return res, fmt.Errorf("rescan: %w", err)
	default:
		res.Pass = &pass
	}
	return res, nil
}

// Reload forces a dataset reload with the current settings.
func (c *Controller) Reload(ctx context.Context) (Result, error) {
	return c.Apply(ctx, c.settings.Current(), true)
}

func (c *Controller) rescan(ctx context.Context) {
	pass, err := c.scanner.Rescan(ctx)
	if err != nil && !errors.Is(err, scan.ErrBusy) {
		c.logger.Warn("rescan failed", zap.Error(err))
		return
	}
	if err == nil {
		c.logger.Debug("rescan finished", zap.String("pass", pass.ID), zap.Int("elements", pass.Elements))
	}
}
