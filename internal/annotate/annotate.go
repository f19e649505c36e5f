// Package annotate attaches the dubbed overlay to card containers. It is the only
// component that changes what the user sees; every visual decision is a pure
// function of the identifier, the settings snapshot and the resolver's hints.
package annotate

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/JakeFAU/dubbadge/internal/dom"
	"github.com/JakeFAU/dubbadge/internal/resolver"
	"github.com/JakeFAU/dubbadge/internal/settings"
)

// Markers written into the host document.
const (
	AttrHasBadge = "data-has-dub-badge"
	WrapperClass = "seanime-dub-badge-wrapper"
)

// DefaultContainerDepth reaches the card's direct parent link.
const DefaultContainerDepth = 1

// Outcome reports what Annotate did.
type Outcome string

// Outcomes.
const (
	Applied Outcome = "applied"
	Skipped Outcome = "skipped"
)

// Config tunes container selection.
type Config struct {
	// ContainerDepth bounds the search for a navigable ancestor on inline cards.
	ContainerDepth int
}

// Engine places overlays.
type Engine struct {
	depth  int
	logger *zap.Logger
	// claims holds the containers currently being decorated.
	claims sync.Map
}

// New builds an Engine.
func New(cfg Config, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	depth := cfg.ContainerDepth
	if depth <= 0 {
		depth = DefaultContainerDepth
	}
	return &Engine{depth: depth, logger: logger.Named("annotate")}
}

// Annotate attaches one overlay for id to the card's container unless the
// container already carries one or another card is decorating it right now.
func (e *Engine) Annotate(ctx context.Context, card dom.Element, id string, snap settings.Snapshot, hints Hints) (Outcome, error) {
	container, err := e.Container(ctx, card, hints.Popup)
	if err != nil {
		return Skipped, err
	}
	if _, busy := e.claims.LoadOrStore(container.Key(), struct{}{}); busy {
		return Skipped, nil
	}
	defer e.claims.Delete(container.Key())

	_, has, err := container.GetAttribute(ctx, AttrHasBadge)
	if err != nil {
		return Skipped, fmt.Errorf("read badge marker: %w", err)
	}
	if has {
		return Skipped, nil
	}

	frag, err := Render(NewPlan(id, snap, hints))
	if err != nil {
		return Skipped, err
	}
	if !hints.Popup {
		if err := container.SetStyle(ctx, "position", "relative"); err != nil {
			return Skipped, fmt.Errorf("position container: %w", err)
		}
	}
	if err := container.Append(ctx, frag); err != nil {
		return Skipped, fmt.Errorf("append overlay: %w", err)
	}
	if err := container.SetAttribute(ctx, AttrHasBadge, "true"); err != nil {
		return Applied, fmt.Errorf("mark container: %w", err)
	}
	e.logger.Debug("overlay attached",
		zap.String("id", id),
		zap.String("container", container.Key()),
		zap.Bool("popup", hints.Popup),
	)
	return Applied, nil
}

// Container returns the card itself for popups, otherwise the nearest
// ancestor carrying an href within the configured depth, falling back to the
// card.
func (e *Engine) Container(ctx context.Context, card dom.Element, popup bool) (dom.Element, error) {
	if popup {
		return card, nil
	}
	current := card
	for range e.depth {
		parent, err := current.Parent(ctx)
		if err != nil {
			return nil, fmt.Errorf("find container: %w", err)
		}
		if parent == nil {
			break
		}
		href, _, err := parent.GetAttribute(ctx, resolver.AttrHref)
		if err != nil {
			return nil, fmt.Errorf("find container: %w", err)
		}
		if href != "" {
			return parent, nil
		}
		current = parent
	}
	return card, nil
}
