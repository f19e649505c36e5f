// Package scan drives resolution and annotation across the live card population.
//
// Two producers feed one consumer: an observer subscription delivers newly
// rendered cards, and a periodic pass re-queries cards that are not yet
// checked. Per-card state lives on the card itself as attributes, decoded into
// an explicit state machine (see Record).
package scan

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/dubbadge/internal/annotate"
	"github.com/JakeFAU/dubbadge/internal/dom"
	"github.com/JakeFAU/dubbadge/internal/metrics"
	"github.com/JakeFAU/dubbadge/internal/resolver"
	"github.com/JakeFAU/dubbadge/internal/settings"
)

// Defaults.
const (
	DefaultInterval    = 4 * time.Second
	DefaultMaxRetries  = 10
	DefaultConcurrency = 16
)

// Pass triggers.
const (
	TriggerObserve  = "observe"
	TriggerPeriodic = "periodic"
	TriggerRescan   = "rescan"
)

// ErrBusy reports a lock-guarded pass skipped because another was running.
var ErrBusy = errors.New("scan: pass already running")

// Outcome is the result of processing one card.
type Outcome string

// Outcomes.
const (
	OutcomeAnnotated     Outcome = "annotated"
	OutcomeAlreadyBadged Outcome = "already-badged"
	OutcomeNotDubbed     Outcome = "not-dubbed"
	OutcomeRetry         Outcome = "retry"
	OutcomeExhausted     Outcome = "exhausted"
	OutcomeTerminal      Outcome = "terminal"
	OutcomeInFlight      Outcome = "in-flight"
	OutcomeError         Outcome = "error"
)

// Matcher is the read side of the dataset cache.
type Matcher interface {
	Ready() bool
	Contains(id string) bool
}

// Resolver finds a card's identifier.
type Resolver interface {
	ResolveCandidate(ctx context.Context, c resolver.Candidate) (resolver.Match, bool, error)
}

// Annotator attaches overlays.
type Annotator interface {
	Annotate(ctx context.Context, card dom.Element, id string, snap settings.Snapshot, hints annotate.Hints) (annotate.Outcome, error)
}

// SettingsSource supplies the live settings.
type SettingsSource interface {
	Current() settings.Snapshot
}

// Config tunes the scheduler.
type Config struct {
	CardSelector  string
	Interval      time.Duration
	MaxRetries    int
	Concurrency   int
	IncludeNested bool
}

func (c Config) withDefaults() Config {
	if c.CardSelector == "" {
		c.CardSelector = DefaultCardSelector
	}
	if c.Interval <= 0 {
		c.Interval = DefaultInterval
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = DefaultMaxRetries
	}
	if c.Concurrency <= 0 {
		c.Concurrency = DefaultConcurrency
	}
	return c
}

// Pass summarizes one batch.
type Pass struct {
	ID       string            `json:"id"`
	Trigger  string            `json:"trigger"`
	Elements int               `json:"elements"`
	Outcomes map[Outcome]int   `json:"outcomes,omitempty"`
	Skipped  string            `json:"skipped,omitempty"`
	Duration time.Duration     `json:"duration"`
	Matches  map[string]string `json:"matches,omitempty"`
}

// Scheduler owns the scan-lock and the in-flight claim set.
type Scheduler struct {
	doc      dom.Document
	data     Matcher
	resolver Resolver
	ann      Annotator
	settings SettingsSource
	cfg      Config
	logger   *zap.Logger

	busy     atomic.Bool
	inflight sync.Map

	// gate is held shared by every batch and exclusively by Reset.
	gate sync.RWMutex
}

// New wires a scheduler.
func New(doc dom.Document, data Matcher, res Resolver, ann Annotator, src SettingsSource, cfg Config, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		doc:      doc,
		data:     data,
		resolver: res,
		ann:      ann,
		settings: src,
		cfg:      cfg.withDefaults(),
		logger:   logger.Named("scan"),
	}
}

func (s *Scheduler) queryOptions() dom.QueryOptions {
	return dom.QueryOptions{IncludeNested: s.cfg.IncludeNested, WithInnerHTML: true}
}

// Run subscribes to new cards and polls on the interval until ctx ends.
func (s *Scheduler) Run(ctx context.Context) error {
	sub, err := s.doc.Observe(ctx, s.cfg.CardSelector, func(cbCtx context.Context, els []dom.Element) {
		s.ProcessBatch(cbCtx, TriggerObserve, els)
	}, s.queryOptions())
	if err != nil {
		return err
	}
	defer func() {
		if cerr := sub.Close(); cerr != nil {
			s.logger.Debug("observer close failed", zap.Error(cerr))
		}
	}()

	s.logger.Info("scheduler started",
		zap.String("selector", s.cfg.CardSelector),
		zap.Duration("interval", s.cfg.Interval),
	)
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopped")
			return nil
		case <-ticker.C:
			if _, err := s.locked(ctx, TriggerPeriodic); err != nil && !errors.Is(err, ErrBusy) {
				s.logger.Warn("periodic pass failed", zap.Error(err))
			}
		}
	}
}

// Rescan runs one lock-guarded pass over unchecked cards, as the periodic
// trigger does. It returns ErrBusy when a pass is already running.
func (s *Scheduler) Rescan(ctx context.Context) (Pass, error) {
	return s.locked(ctx, TriggerRescan)
}

func (s *Scheduler) locked(ctx context.Context, trigger string) (Pass, error) {
	if !s.busy.CompareAndSwap(false, true) {
		metrics.ObserveScanPass(trigger, "busy", 0)
		return Pass{Trigger: trigger, Skipped: "busy"}, ErrBusy
	}
	defer s.busy.Store(false)

	if !s.data.Ready() {
		metrics.ObserveScanPass(trigger, "not-ready", 0)
		return Pass{Trigger: trigger, Skipped: "not-ready"}, nil
	}
	els, err := s.doc.Query(ctx, PendingSelector(s.cfg.CardSelector), s.queryOptions())
	if err != nil {
		metrics.ObserveScanPass(trigger, "error", 0)
		return Pass{Trigger: trigger}, err
	}
	return s.ProcessBatch(ctx, trigger, els), nil
}

// acquire waits for the scan-lock.
func (s *Scheduler) acquire(ctx context.Context) error {
	if s.busy.CompareAndSwap(false, true) {
		return nil
	}
	t := time.NewTicker(10 * time.Millisecond)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			if s.busy.CompareAndSwap(false, true) {
				return nil
			}
		}
	}
}

// ProcessBatch processes els concurrently against one settings snapshot. It is a
// no-op while the dataset is not ready. Per-card failures are logged and
// counted; they never abort the batch.
func (s *Scheduler) ProcessBatch(ctx context.Context, trigger string, els []dom.Element) Pass {
	pass := Pass{
		ID:       uuid.NewString(),
		Trigger:  trigger,
		Elements: len(els),
		Outcomes: make(map[Outcome]int),
		Matches:  make(map[string]string),
	}
	if !s.data.Ready() {
		pass.Skipped = "not-ready"
		metrics.ObserveScanPass(trigger, "not-ready", 0)
		return pass
	}
	// Cards skipped here stay unchecked and are picked up by the next periodic pass.
	if !s.gate.TryRLock() {
		pass.Skipped = "resetting"
		metrics.ObserveScanPass(trigger, "resetting", 0)
		return pass
	}
	defer s.gate.RUnlock()
	start := time.Now()
	snap := s.settings.Current()
	logger := s.logger.With(zap.String("pass_id", pass.ID), zap.String("trigger", trigger))

	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	g.SetLimit(s.cfg.Concurrency)
	for _, el := range els {
		g.Go(func() error {
			outcome, id, err := s.process(ctx, el, snap)
			metrics.ObserveElement(string(outcome))
			if err != nil {
				logger.Debug("card failed", zap.String("element", el.Key()), zap.Error(err))
			}
			mu.Lock()
			pass.Outcomes[outcome]++
			if id != "" {
				pass.Matches[el.Key()] = id
			}
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	pass.Duration = time.Since(start)
	metrics.ObserveScanPass(trigger, "ran", pass.Duration)
	if len(els) > 0 {
		logger.Debug("pass complete",
			zap.Int("elements", len(els)),
			zap.Int("annotated", pass.Outcomes[OutcomeAnnotated]),
			zap.Int("retry", pass.Outcomes[OutcomeRetry]),
			zap.Int("errors", pass.Outcomes[OutcomeError]),
			zap.Duration("dur", pass.Duration),
		)
	}
	return pass
}

// process advances one card through the state machine. The card is marked
// checked before the overlay is attached.
func (s *Scheduler) process(ctx context.Context, el dom.Element, snap settings.Snapshot) (Outcome, string, error) {
	if _, loaded := s.inflight.LoadOrStore(el.Key(), struct{}{}); loaded {
		return OutcomeInFlight, "", nil
	}
	defer s.inflight.Delete(el.Key())
	metrics.IncActiveElements()
	defer metrics.DecActiveElements()

	rec, err := ReadRecord(ctx, el)
	if err != nil {
		return OutcomeError, "", err
	}
	if rec.Phase == Terminal {
		return OutcomeTerminal, "", nil
	}

	popup, err := resolver.IsPopup(ctx, el)
	if err != nil {
		return OutcomeError, "", err
	}
	match, ok, err := s.resolver.ResolveCandidate(ctx, resolver.Candidate{Element: el, Popup: popup})
	if err != nil {
		return OutcomeError, "", err
	}
	if !ok {
		next := rec.Unresolved(s.cfg.MaxRetries)
		if err := WriteRecord(ctx, el, rec, next); err != nil {
			return OutcomeError, "", err
		}
		if next.Phase == Terminal {
			return OutcomeExhausted, "", nil
		}
		return OutcomeRetry, "", nil
	}

	if err := WriteRecord(ctx, el, rec, rec.Resolved()); err != nil {
		return OutcomeError, match.ID, err
	}
	if !s.data.Contains(match.ID) {
		return OutcomeNotDubbed, match.ID, nil
	}
	hints := annotate.Hints{Popup: popup, CompetingBadge: resolver.HasSiblingBadgeMarkup(el)}
	res, err := s.ann.Annotate(ctx, el, match.ID, snap, hints)
	if err != nil {
		return OutcomeError, match.ID, err
	}
	if res == annotate.Skipped {
		return OutcomeAlreadyBadged, match.ID, nil
	}
	return OutcomeAnnotated, match.ID, nil
}

// Reset clears every processing marker and removes every overlay. It waits for
// the scan-lock and for running batches; batches triggered while it runs are
// skipped.
func (s *Scheduler) Reset(ctx context.Context) error {
	if err := s.acquire(ctx); err != nil {
		return err
	}
	defer s.busy.Store(false)
	s.gate.Lock()
	defer s.gate.Unlock()

	marked, err := s.doc.Query(ctx, ResetSelector, dom.QueryOptions{IncludeNested: true})
	if err != nil {
		return err
	}
	var errs []error
	for _, el := range marked {
		for _, attr := range []string{AttrChecked, AttrRetries, annotate.AttrHasBadge} {
			if err := el.RemoveAttribute(ctx, attr); err != nil && !errors.Is(err, dom.ErrDetached) {
				errs = append(errs, err)
			}
		}
	}
	overlays, err := s.doc.Query(ctx, "."+annotate.WrapperClass, dom.QueryOptions{IncludeNested: true})
	if err != nil {
		return err
	}
	for _, el := range overlays {
		if err := el.Remove(ctx); err != nil && !errors.Is(err, dom.ErrDetached) {
			errs = append(errs, err)
		}
	}
	s.logger.Info("reset complete", zap.Int("cards", len(marked)), zap.Int("overlays", len(overlays)))
	return errors.Join(errs...)
}
