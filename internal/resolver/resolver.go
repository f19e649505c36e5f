// Package resolver recovers the host media identifier for a card element.
//
// Strategies run in a fixed rank order and the first hit wins: structural
// attributes are cheapest and authoritative, markup scraping is the fallback for
// cards that expose identity only through an image URL or a nested link.
package resolver

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/JakeFAU/dubbadge/internal/dom"
)

// Host markup attributes.
const (
	AttrMediaID = "data-media-id"
	AttrHref    = "href"
	AttrPopup   = "data-media-entry-card-hover-popup-banner-container"
)

const (
	// DefaultCardDepth bounds the ancestor walk for inline cards, in parent hops.
	DefaultCardDepth = 10
	// DefaultPopupDepth is the single parent link popups expose.
	DefaultPopupDepth = 1
)

// SiblingBadgeMarkers identify status badges that occupy the default slot.
var SiblingBadgeMarkers = []string{
	"data-media-entry-card-body-releasing-badge-container",
	"data-media-entry-card-body-next-airing-badge-container",
	"data-media-entry-card-hover-popup-banner-releasing-badge-container",
}

var (
	idParam = regexp.MustCompile(`[?&]id=(\d+)`)

	imagePatterns = []*regexp.Regexp{
		regexp.MustCompile(`/bx(\d+)`),
		regexp.MustCompile(`/banner/(\d+)`),
		regexp.MustCompile(`/cover/.*/(\d+)`),
		regexp.MustCompile(`/media/(\d+)`),
	}
)

// Candidate is one card under resolution.
type Candidate struct {
	Element dom.Element
	Popup   bool
}

// Func resolves a candidate or reports no match.
type Func func(ctx context.Context, c Candidate) (string, bool, error)

// Strategy is a named, ranked resolution step.
type Strategy struct {
	Name    string
	Resolve Func
}

// Config bounds the ancestor walks.
type Config struct {
	CardDepth  int
	PopupDepth int
}

func (c Config) withDefaults() Config {
	if c.CardDepth <= 0 {
		c.CardDepth = DefaultCardDepth
	}
	if c.PopupDepth <= 0 {
		c.PopupDepth = DefaultPopupDepth
	}
	return c
}

// DefaultStrategies returns the strategies in rank order.
func DefaultStrategies(cfg Config) []Strategy {
	cfg = cfg.withDefaults()
	return []Strategy{
		{Name: "direct-attribute", Resolve: DirectAttribute},
		{Name: "direct-link", Resolve: DirectLink},
		{Name: "ancestry", Resolve: Ancestry(cfg.CardDepth, cfg.PopupDepth)},
		{Name: "markup", Resolve: Markup},
	}
}

// Match is a successful resolution.
type Match struct {
	ID       string
	Strategy string
}

// Resolver applies strategies in order.
type Resolver struct {
	strategies []Strategy
	logger     *zap.Logger
}

// New builds a resolver with the default strategy list.
func New(cfg Config, logger *zap.Logger) *Resolver {
	return NewWithStrategies(DefaultStrategies(cfg), logger)
}

// NewWithStrategies builds a resolver over an explicit ranked list.
func NewWithStrategies(strategies []Strategy, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{strategies: strategies, logger: logger.Named("resolver")}
}

// Strategies returns the names in rank order.
func (r *Resolver) Strategies() []string {
	names := make([]string, 0, len(r.strategies))
	for _, s := range r.strategies {
		names = append(names, s.Name)
	}
	return names
}

// Resolve returns the identifier for el, if any strategy finds one.
func (r *Resolver) Resolve(ctx context.Context, el dom.Element) (string, bool, error) {
	popup, err := IsPopup(ctx, el)
	if err != nil {
		return "", false, err
	}
	m, ok, err := r.ResolveCandidate(ctx, Candidate{Element: el, Popup: popup})
	return m.ID, ok, err
}

// ResolveCandidate runs the strategies and reports which one matched.
func (r *Resolver) ResolveCandidate(ctx context.Context, c Candidate) (Match, bool, error) {
	for _, s := range r.strategies {
		id, ok, err := s.Resolve(ctx, c)
		if err != nil {
			return Match{}, false, fmt.Errorf("%s: %w", s.Name, err)
		}
		if ok {
			r.logger.Debug("resolved",
				zap.String("element", c.Element.Key()),
				zap.String("strategy", s.Name),
				zap.String("id", id),
			)
			return Match{ID: id, Strategy: s.Name}, true, nil
		}
	}
	return Match{}, false, nil
}

// IsPopup reports whether el is a hover popup card.
func IsPopup(ctx context.Context, el dom.Element) (bool, error) {
	v, ok, err := el.GetAttribute(ctx, AttrPopup)
	if err != nil {
		return false, fmt.Errorf("read popup marker: %w", err)
	}
	return ok && v == "true", nil
}

// HasSiblingBadgeMarkup reports whether a status badge already sits in the
// card's default badge slot.
func HasSiblingBadgeMarkup(el dom.Element) bool {
	inner := el.InnerHTML()
	for _, marker := range SiblingBadgeMarkers {
		if strings.Contains(inner, marker) {
			return true
		}
	}
	return false
}

// DirectAttribute reads the media id attribute on the card itself.
func DirectAttribute(ctx context.Context, c Candidate) (string, bool, error) {
	return attributeID(ctx, c.Element)
}

// DirectLink matches the card's own href.
func DirectLink(ctx context.Context, c Candidate) (string, bool, error) {
	return linkID(ctx, c.Element)
}

// Ancestry walks up from the card. Inline cards repeat the attribute and link
// checks on up to cardDepth ancestors; popups only consult the link on their
// nearest popupDepth parents. Depth counts parent hops and excludes the card
// itself, which the direct strategies cover: a card depth of 10 inspects the
// card plus 10 ancestors, so a walk over the card plus 9 ancestors is depth 9.
func Ancestry(cardDepth, popupDepth int) Func {
	return func(ctx context.Context, c Candidate) (string, bool, error) {
		depth := cardDepth
		if c.Popup {
			depth = popupDepth
		}
		current := c.Element
		for range depth {
			parent, err := current.Parent(ctx)
			if err != nil {
				return "", false, fmt.Errorf("walk parent: %w", err)
			}
			if parent == nil {
				return "", false, nil
			}
			if !c.Popup {
				if id, ok, err := attributeID(ctx, parent); err != nil || ok {
					return id, ok, err
				}
			}
			if id, ok, err := linkID(ctx, parent); err != nil || ok {
				return id, ok, err
			}
			current = parent
		}
		return "", false, nil
	}
}

// Markup scrapes the card's serialized contents: the first image source is
// tested against known CDN path shapes, then the first id-bearing link.
func Markup(_ context.Context, c Candidate) (string, bool, error) {
	id, ok := MarkupID(c.Element.InnerHTML())
	return id, ok, nil
}

// MarkupID is the pure form of Markup.
func MarkupID(inner string) (string, bool) {
	if strings.TrimSpace(inner) == "" {
		return "", false
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(inner))
	if err != nil {
		return "", false
	}
	if src, ok := doc.Find("img[src]").First().Attr("src"); ok {
		if id, ok := ImageID(src); ok {
			return id, true
		}
	}
	if href, ok := doc.Find("a[href*='id=']").First().Attr("href"); ok {
		return LinkID(href)
	}
	return "", false
}

// ImageID matches src against the image URL patterns in order.
func ImageID(src string) (string, bool) {
	for _, re := range imagePatterns {
		if m := re.FindStringSubmatch(src); m != nil {
			return m[1], true
		}
	}
	return "", false
}

// LinkID extracts the id query parameter from href.
func LinkID(href string) (string, bool) {
	m := idParam.FindStringSubmatch(href)
	if m == nil {
		return "", false
	}
	return m[1], true
}

func attributeID(ctx context.Context, el dom.Element) (string, bool, error) {
	v, ok, err := el.GetAttribute(ctx, AttrMediaID)
	if err != nil {
		return "", false, fmt.Errorf("read %s: %w", AttrMediaID, err)
	}
	v = strings.TrimSpace(v)
	if !ok || v == "" {
		return "", false, nil
	}
	return v, true, nil
}

func linkID(ctx context.Context, el dom.Element) (string, bool, error) {
	href, ok, err := el.GetAttribute(ctx, AttrHref)
	if err != nil {
		return "", false, fmt.Errorf("read href: %w", err)
	}
	if !ok {
		return "", false, nil
	}
	id, found := LinkID(href)
	return id, found, nil
}
