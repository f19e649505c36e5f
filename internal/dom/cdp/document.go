// Package cdp implements dom.Document against a live browser tab via chromedp.
// Page-side state lives in a small injected registry; DOM mutations are reported
// back through a runtime binding fed by a MutationObserver.
package cdp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/JakeFAU/dubbadge/internal/dom"
	"github.com/JakeFAU/dubbadge/internal/metrics"
)

const (
	bindingName         = "__dubbadgeNotify"
	defaultEventBuffer  = 256
	defaultNotifyPerSec = 4
	defaultNotifyBurst  = 2
	defaultOpTimeout    = 10 * time.Second
)

// Options tunes the document adapter.
type Options struct {
	// NotifyPerSecond caps how often observer batches are delivered; bursts of DOM
	// mutations are coalesced page-side and then rate limited here.
	NotifyPerSecond float64
	// OpTimeout bounds each evaluation round trip.
	OpTimeout time.Duration
	Logger    *zap.Logger
}

// Document drives one chromedp tab context.
type Document struct {
	tab     context.Context
	logger  *zap.Logger
	timeout time.Duration
	limiter *rate.Limiter

	bindOnce sync.Once
	bindErr  error
	events   chan string

	mu     sync.Mutex
	subs   map[int]*subscription
	subSeq int
}

var _ dom.Document = (*Document)(nil)

// NewDocument wraps a chromedp context that already targets the host page.
func NewDocument(tab context.Context, opts Options) *Document {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	perSec := opts.NotifyPerSecond
	if perSec <= 0 {
		perSec = defaultNotifyPerSec
	}
	timeout := opts.OpTimeout
	if timeout <= 0 {
		timeout = defaultOpTimeout
	}
	return &Document{
		tab:     tab,
		logger:  logger,
		timeout: timeout,
		limiter: rate.NewLimiter(rate.Limit(perSec), defaultNotifyBurst),
		events:  make(chan string, defaultEventBuffer),
		subs:    make(map[int]*subscription),
	}
}

type itemPayload struct {
	Key  string `json:"key"`
	HTML string `json:"html"`
}

// Query evaluates the selector page-side and returns keyed handles.
func (d *Document) Query(ctx context.Context, selector string, opts dom.QueryOptions) ([]dom.Element, error) {
	var items []itemPayload
	expr := registryJS + ".query(" + jsArgs(selector, opts.IncludeNested, opts.WithInnerHTML) + ")"
	if err := d.eval(ctx, expr, &items); err != nil {
		return nil, fmt.Errorf("query %q: %w", selector, err)
	}
	out := make([]dom.Element, 0, len(items))
	for _, it := range items {
		out = append(out, &element{doc: d, key: it.Key, inner: it.HTML})
	}
	return out, nil
}

// Observe installs a page-side MutationObserver for selector. Current matches are
// delivered first, then each batch of newly matching elements.
func (d *Document) Observe(ctx context.Context, selector string, cb dom.Callback, opts dom.QueryOptions) (dom.Subscription, error) {
	if err := d.ensureBinding(); err != nil {
		return nil, err
	}
	d.mu.Lock()
	d.subSeq++
	sub := &subscription{id: d.subSeq, doc: d, cb: cb, ctx: ctx}
	d.subs[sub.id] = sub
	d.mu.Unlock()

	var ok bool
	expr := registryJS + ".observe(" + jsArgs(sub.id, bindingName, selector, opts.IncludeNested, opts.WithInnerHTML) + ")"
	if err := d.eval(ctx, expr, &ok); err != nil {
		d.drop(sub.id)
		return nil, fmt.Errorf("observe %q: %w", selector, err)
	}
	return sub, nil
}

func (d *Document) ensureBinding() error {
	d.bindOnce.Do(func() {
		chromedp.ListenTarget(d.tab, func(ev any) {
			called, ok := ev.(*runtime.EventBindingCalled)
			if !ok || called.Name != bindingName {
				return
			}
			select {
			case d.events <- called.Payload:
			default:
				metrics.ObserveDOMNotification("dropped")
				d.logger.Warn("observer notification dropped; buffer full")
			}
		})
		if err := chromedp.Run(d.tab, runtime.AddBinding(bindingName)); err != nil {
			d.bindErr = fmt.Errorf("add binding: %w", err)
			return
		}
		go d.dispatch()
	})
	return d.bindErr
}

// dispatch runs outside the chromedp event loop; callbacks issue further actions.
func (d *Document) dispatch() {
	for {
		select {
		case <-d.tab.Done():
			return
		case payload := <-d.events:
			if err := d.limiter.Wait(d.tab); err != nil {
				return
			}
			d.deliver(payload)
		}
	}
}

func (d *Document) deliver(payload string) {
	id, items, err := parseNotification(payload)
	if err != nil {
		metrics.ObserveDOMNotification("invalid")
		d.logger.Debug("discarding observer payload", zap.Error(err))
		return
	}
	d.mu.Lock()
	sub, ok := d.subs[id]
	d.mu.Unlock()
	if !ok || sub.ctx.Err() != nil || len(items) == 0 {
		return
	}
	els := make([]dom.Element, 0, len(items))
	for _, it := range items {
		els = append(els, &element{doc: d, key: it.Key, inner: it.HTML})
	}
	metrics.ObserveDOMNotification("delivered")
	sub.cb(sub.ctx, els)
}

func parseNotification(payload string) (int, []itemPayload, error) {
	if !gjson.Valid(payload) {
		return 0, nil, errors.New("invalid notification json")
	}
	res := gjson.Parse(payload)
	sub := res.Get("sub")
	if !sub.Exists() {
		return 0, nil, errors.New("notification missing subscription id")
	}
	var items []itemPayload
	res.Get("items").ForEach(func(_, v gjson.Result) bool {
		key := v.Get("key").String()
		if key != "" {
			items = append(items, itemPayload{Key: key, HTML: v.Get("html").String()})
		}
		return true
	})
	return int(sub.Int()), items, nil
}

func (d *Document) drop(id int) {
	d.mu.Lock()
	delete(d.subs, id)
	d.mu.Unlock()
}

// eval runs expr in the tab, bounded by both ctx and the per-op timeout.
func (d *Document) eval(ctx context.Context, expr string, res any) error {
	runCtx, cancel := context.WithTimeout(d.tab, d.timeout)
	defer cancel()
	stop := forwardCancel(ctx, cancel)
	defer stop()
	if err := chromedp.Run(runCtx, chromedp.Evaluate(expr, res)); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return fmt.Errorf("evaluate: %w", err)
	}
	return nil
}

type subscription struct {
	id  int
	doc *Document
	cb  dom.Callback
	ctx context.Context
}

// Close disconnects the page-side observer; the binding stays installed.
func (s *subscription) Close() error {
	s.doc.drop(s.id)
	var ok bool
	expr := registryJS + ".unobserve(" + jsArgs(s.id) + ")"
	if err := s.doc.eval(context.Background(), expr, &ok); err != nil {
		return fmt.Errorf("unobserve: %w", err)
	}
	return nil
}

// jsArgs renders Go values as a JavaScript argument list. JSON encoding escapes the
// line separators that would otherwise break a JS string literal.
func jsArgs(args ...any) string {
	parts := make([]string, 0, len(args))
	for _, a := range args {
		switch v := a.(type) {
		case int:
			parts = append(parts, strconv.Itoa(v))
		case bool:
			parts = append(parts, strconv.FormatBool(v))
		default:
			b, err := json.Marshal(v)
			if err != nil {
				b = []byte("null")
			}
			parts = append(parts, string(b))
		}
	}
	return strings.Join(parts, ",")
}

func forwardCancel(parent context.Context, cancel context.CancelFunc) func() {
	if parent == nil {
		return func() {}
	}
	done := make(chan struct{})
	go func() {
		select {
		case <-parent.Done():
			cancel()
		case <-done:
		}
	}()
	return func() { close(done) }
}
