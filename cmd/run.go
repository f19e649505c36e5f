package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/dubbadge/internal/api"
	"github.com/JakeFAU/dubbadge/internal/app"
	"github.com/JakeFAU/dubbadge/internal/dom/cdp"
)

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Attach to the browser and keep annotating until interrupted",
		RunE:  runOverlay,
	}
}

func runOverlay(cmd *cobra.Command, _ []string) error {
	env, err := envFrom(cmd.Context())
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	cfg, logger := env.cfg, env.logger

	session, err := cdp.Open(ctx, cdp.SessionConfig{
		RemoteURL:         cfg.Browser.RemoteURL,
		Headless:          cfg.Browser.Headless,
		UserAgent:         cfg.Browser.UserAgent,
		PageURL:           cfg.Browser.PageURL,
		NavigationTimeout: time.Duration(cfg.Browser.NavTimeoutSeconds) * time.Second,
	}, logger.Named("browser"))
	if err != nil {
		return fmt.Errorf("open browser session: %w", err)
	}
	defer session.Close()

	doc := cdp.NewDocument(session.Context(), cdp.Options{
		NotifyPerSecond: cfg.Browser.NotifyPerSecond,
		OpTimeout:       time.Duration(cfg.Browser.OpTimeoutSeconds) * time.Second,
		Logger:          logger.Named("cdp"),
	})
	comps, err := app.Build(ctx, cfg, doc, app.Options{}, logger)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := comps.Close(); cerr != nil {
			logger.Warn("close components failed", zap.Error(cerr))
		}
	}()

	if err := comps.Controller.Start(ctx); err != nil {
		return err
	}

	var srv *http.Server
	serverErr := make(chan error, 1)
	if cfg.Server.Enabled {
		srv = &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
			Handler:           api.NewServer(comps.Controller, cfg, logger).Handler(),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			logger.Info("control server listening", zap.String("addr", srv.Addr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				serverErr <- err
			}
		}()
	}

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-serverErr:
		logger.Error("control server failed", zap.Error(err))
	}

	if srv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.Server.ShutdownTimeoutSeconds)*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("graceful shutdown failed", zap.Error(err))
		}
	}
	if err := comps.Controller.Stop(); err != nil {
		return err
	}
	logger.Info("overlay stopped")
	return nil
}
