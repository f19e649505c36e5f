// Package memory implements dom.Document over an in-process HTML tree. It backs the
// dryrun command and every core test: queries use CSS selectors, mutations notify
// observers synchronously once the document lock is released.
package memory

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/JakeFAU/dubbadge/internal/dom"
)

// Document is a mutable HTML tree safe for concurrent use.
type Document struct {
	mu   sync.Mutex
	root *html.Node
	keys map[*html.Node]string
	seq  int

	subMu  sync.Mutex
	subs   map[int]*subscription
	subSeq int
}

// Parse builds a Document from a full or partial HTML page.
func Parse(markup string) (*Document, error) {
	root, err := html.Parse(strings.NewReader(markup))
	if err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	}
	return &Document{
		root: root,
		keys: make(map[*html.Node]string),
		subs: make(map[int]*subscription),
	}, nil
}

// MustParse is Parse for fixtures; it panics on malformed input.
func MustParse(markup string) *Document {
	doc, err := Parse(markup)
	if err != nil {
		panic(err)
	}
	return doc
}

// Query returns handles for every node matching selector.
func (d *Document) Query(ctx context.Context, selector string, opts dom.QueryOptions) ([]dom.Element, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	sel, err := cascadia.Compile(selector)
	if err != nil {
		return nil, fmt.Errorf("compile selector %q: %w", selector, err)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.collectLocked(sel, opts, nil), nil
}

// Observe delivers current matches immediately and every later new match after each
// structural mutation.
func (d *Document) Observe(ctx context.Context, selector string, cb dom.Callback, opts dom.QueryOptions) (dom.Subscription, error) {
	sel, err := cascadia.Compile(selector)
	if err != nil {
		return nil, fmt.Errorf("compile selector %q: %w", selector, err)
	}
	d.subMu.Lock()
	d.subSeq++
	sub := &subscription{
		id:   d.subSeq,
		doc:  d,
		sel:  sel,
		cb:   cb,
		opts: opts,
		ctx:  ctx,
		seen: make(map[*html.Node]struct{}),
	}
	d.subs[sub.id] = sub
	d.subMu.Unlock()

	d.notify()
	return sub, nil
}

// Insert parses markup and appends it under the first node matching parentSelector,
// simulating the host rendering new content.
func (d *Document) Insert(ctx context.Context, parentSelector, markup string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	sel, err := cascadia.Compile(parentSelector)
	if err != nil {
		return fmt.Errorf("compile selector %q: %w", parentSelector, err)
	}
	d.mu.Lock()
	parent := sel.MatchFirst(d.root)
	if parent == nil {
		d.mu.Unlock()
		return fmt.Errorf("no node matches %q", parentSelector)
	}
	if err := appendMarkup(parent, markup); err != nil {
		d.mu.Unlock()
		return err
	}
	d.mu.Unlock()
	d.notify()
	return nil
}

// HTML renders the whole document.
func (d *Document) HTML() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	var b strings.Builder
	_ = html.Render(&b, d.root)
	return b.String()
}

// Count returns the number of nodes matching selector; invalid selectors count zero.
func (d *Document) Count(selector string) int {
	sel, err := cascadia.Compile(selector)
	if err != nil {
		return 0
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(sel.MatchAll(d.root))
}

func (d *Document) collectLocked(sel cascadia.Selector, opts dom.QueryOptions, seen map[*html.Node]struct{}) []dom.Element {
	nodes := goquery.NewDocumentFromNode(d.root).FindMatcher(sel).Nodes
	if !opts.IncludeNested {
		nodes = outermost(nodes)
	}
	out := make([]dom.Element, 0, len(nodes))
	for _, n := range nodes {
		if seen != nil {
			if _, ok := seen[n]; ok {
				continue
			}
			seen[n] = struct{}{}
		}
		out = append(out, d.wrapLocked(n, opts.WithInnerHTML))
	}
	return out
}

func (d *Document) wrapLocked(n *html.Node, withInner bool) *element {
	key, ok := d.keys[n]
	if !ok {
		d.seq++
		key = "n" + strconv.Itoa(d.seq)
		d.keys[n] = key
	}
	el := &element{doc: d, node: n, key: key}
	if withInner {
		el.inner = renderChildren(n)
	}
	return el
}

func (d *Document) attachedLocked(n *html.Node) bool {
	for cur := n; cur != nil; cur = cur.Parent {
		if cur == d.root {
			return true
		}
	}
	return false
}

// notify runs outside the document lock so callbacks may mutate the document.
func (d *Document) notify() {
	d.subMu.Lock()
	subs := make([]*subscription, 0, len(d.subs))
	for _, s := range d.subs {
		subs = append(subs, s)
	}
	d.subMu.Unlock()

	for _, s := range subs {
		if s.ctx.Err() != nil {
			continue
		}
		d.mu.Lock()
		fresh := d.collectLocked(s.sel, s.opts, s.seen)
		d.mu.Unlock()
		if len(fresh) > 0 {
			s.cb(s.ctx, fresh)
		}
	}
}

func (d *Document) unsubscribe(id int) {
	d.subMu.Lock()
	delete(d.subs, id)
	d.subMu.Unlock()
}

type subscription struct {
	id   int
	doc  *Document
	sel  cascadia.Selector
	cb   dom.Callback
	opts dom.QueryOptions
	ctx  context.Context
	seen map[*html.Node]struct{}
}

// Close stops delivery to the callback.
func (s *subscription) Close() error {
	s.doc.unsubscribe(s.id)
	return nil
}

func outermost(nodes []*html.Node) []*html.Node {
	set := make(map[*html.Node]struct{}, len(nodes))
	for _, n := range nodes {
		set[n] = struct{}{}
	}
	out := nodes[:0:0]
	for _, n := range nodes {
		nested := false
		for p := n.Parent; p != nil; p = p.Parent {
			if _, ok := set[p]; ok {
				nested = true
				break
			}
		}
		if !nested {
			out = append(out, n)
		}
	}
	return out
}

func renderChildren(n *html.Node) string {
	var b strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		_ = html.Render(&b, c)
	}
	return b.String()
}

func appendMarkup(parent *html.Node, markup string) error {
	ctxNode := parent
	if parent.Type != html.ElementNode {
		ctxNode = &html.Node{Type: html.ElementNode, Data: "body", DataAtom: atom.Body}
	}
	nodes, err := html.ParseFragment(strings.NewReader(markup), ctxNode)
	if err != nil {
		return fmt.Errorf("parse fragment: %w", err)
	}
	for _, n := range nodes {
		parent.AppendChild(n)
	}
	return nil
}
