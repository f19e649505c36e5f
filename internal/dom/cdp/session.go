package cdp

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
)

// SessionConfig selects how the browser is reached and which page is opened.
type SessionConfig struct {
	// RemoteURL attaches to an already running browser (ws:// or http:// devtools
	// endpoint). When empty a local browser is launched.
	RemoteURL string
	Headless  bool
	UserAgent string
	PageURL   string
	// NavigationTimeout bounds the initial page load.
	NavigationTimeout time.Duration
}

// Session owns the allocator and tab contexts for one host page.
type Session struct {
	tab         context.Context
	tabCancel   context.CancelFunc
	allocCancel context.CancelFunc
}

// Open starts or attaches to a browser, navigates to the host page and waits for
// its body.
func Open(ctx context.Context, cfg SessionConfig, logger *zap.Logger) (*Session, error) {
	if cfg.PageURL == "" {
		return nil, errors.New("page url is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	var (
		allocCtx    context.Context
		allocCancel context.CancelFunc
	)
	if cfg.RemoteURL != "" {
		allocCtx, allocCancel = chromedp.NewRemoteAllocator(ctx, cfg.RemoteURL)
	} else {
		opts := append(chromedp.DefaultExecAllocatorOptions[:],
			chromedp.Flag("headless", cfg.Headless),
			chromedp.Flag("disable-gpu", true),
			chromedp.Flag("hide-scrollbars", true),
			chromedp.Flag("enable-automation", false),
		)
		allocCtx, allocCancel = chromedp.NewExecAllocator(ctx, opts...)
	}
	sugar := logger.Sugar()
	tab, tabCancel := chromedp.NewContext(allocCtx, chromedp.WithErrorf(sugar.Errorf))

	navTimeout := cfg.NavigationTimeout
	if navTimeout <= 0 {
		navTimeout = 45 * time.Second
	}
	navCtx, navCancel := context.WithTimeout(tab, navTimeout)
	defer navCancel()

	if err := chromedp.Run(navCtx, navigateActions(cfg)...); err != nil {
		tabCancel()
		allocCancel()
		return nil, fmt.Errorf("open %s: %w", cfg.PageURL, err)
	}
	logger.Info("browser session ready", zap.String("page", cfg.PageURL), zap.Bool("remote", cfg.RemoteURL != ""))
	return &Session{tab: tab, tabCancel: tabCancel, allocCancel: allocCancel}, nil
}

func navigateActions(cfg SessionConfig) []chromedp.Action {
	actions := make([]chromedp.Action, 0, 3)
	if cfg.UserAgent != "" {
		actions = append(actions, emulation.SetUserAgentOverride(cfg.UserAgent))
	}
	return append(actions,
		chromedp.Navigate(cfg.PageURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
	)
}

// Context returns the tab context for building a Document.
func (s *Session) Context() context.Context {
	return s.tab
}

// Close tears down the tab, then the allocator.
func (s *Session) Close() {
	if s == nil {
		return
	}
	s.tabCancel()
	s.allocCancel()
}
