package app

import (
	"context"
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/JakeFAU/dubbadge/internal/annotate"
	"github.com/JakeFAU/dubbadge/internal/config"
	"github.com/JakeFAU/dubbadge/internal/dataset"
	"github.com/JakeFAU/dubbadge/internal/dom"
	"github.com/JakeFAU/dubbadge/internal/fetch"
	"github.com/JakeFAU/dubbadge/internal/logging"
	"github.com/JakeFAU/dubbadge/internal/resolver"
	"github.com/JakeFAU/dubbadge/internal/scan"
	"github.com/JakeFAU/dubbadge/internal/settings"
	settingsmemory "github.com/JakeFAU/dubbadge/internal/settings/memory"
	settingssqlite "github.com/JakeFAU/dubbadge/internal/settings/sqlite"
)

// Components is every service built from configuration for one document.
type Components struct {
	Fetcher    fetch.Fetcher
	Cache      *dataset.Cache
	Settings   *settings.Provider
	Resolver   *resolver.Resolver
	Annotator  *annotate.Engine
	Scheduler  *scan.Scheduler
	Controller *Controller

	closer io.Closer
}

// Close releases the settings store.
func (c *Components) Close() error {
	if c.closer == nil {
		return nil
	}
	if err := c.closer.Close(); err != nil {
		return fmt.Errorf("close settings store: %w", err)
	}
	return nil
}

// Options overrides pieces Build would otherwise construct from config.
type Options struct {
	Fetcher fetch.Fetcher
	Store   settings.Store
}

// Build wires the full component graph over doc.
func Build(ctx context.Context, cfg config.Config, doc dom.Document, opts Options, logger *zap.Logger) (*Components, error) {
	logger = logging.OrNop(logger)
	comps := &Components{}

	store := opts.Store
	if store == nil {
		var err error
		store, comps.closer, err = OpenStore(ctx, cfg.Settings)
		if err != nil {
			return nil, err
		}
	}
	comps.Settings = settings.NewProvider(store, logger)

	comps.Fetcher = opts.Fetcher
	if comps.Fetcher == nil {
		comps.Fetcher = NewFetcher(cfg, logger)
	}
	comps.Cache = dataset.New(comps.Fetcher, dataset.Config{
		DubbedURLTemplate: cfg.Dataset.DubbedURLTemplate,
		MappingURL:        cfg.Dataset.MappingURL,
	}, logger)
	comps.Resolver = resolver.New(resolver.Config{
		CardDepth:  cfg.Resolver.CardDepth,
		PopupDepth: cfg.Resolver.PopupDepth,
	}, logger)
	comps.Annotator = annotate.New(annotate.Config{ContainerDepth: cfg.Annotate.ContainerDepth}, logger)
	comps.Scheduler = scan.New(doc, comps.Cache, comps.Resolver, comps.Annotator, comps.Settings, scan.Config{
		CardSelector:  cfg.Scan.CardSelector,
		Interval:      cfg.ScanInterval(),
		MaxRetries:    cfg.Scan.MaxRetries,
		Concurrency:   cfg.Scan.Concurrency,
		IncludeNested: cfg.Scan.IncludeNested,
	}, logger)
	comps.Controller = New(comps.Cache, comps.Settings, comps.Scheduler, comps.Resolver.Strategies(), logger)
	return comps, nil
}

// NewFetcher builds the colly-backed dataset fetcher from config.
func NewFetcher(cfg config.Config, logger *zap.Logger) *fetch.CollyFetcher {
	return fetch.NewCollyFetcher(fetch.Config{
		UserAgent:    cfg.Fetch.UserAgent,
		Timeout:      cfg.FetchTimeout(),
		MaxBodyBytes: cfg.Fetch.MaxBodyMB << 20,
	}, logger)
}

// OpenStore opens the configured settings backend. The closer is nil for
// backends that hold no resources.
func OpenStore(ctx context.Context, cfg config.SettingsConfig) (settings.Store, io.Closer, error) {
	switch cfg.Store {
	case "memory":
		return settingsmemory.New(nil), nil, nil
	case "sqlite":
		store, err := settingssqlite.Open(ctx, cfg.Path)
		if err != nil {
			return nil, nil, fmt.Errorf("open settings store: %w", err)
		}
		return store, store, nil
	default:
		return nil, nil, fmt.Errorf("unknown settings store %q", cfg.Store)
	}
}
