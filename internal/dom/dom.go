// Package dom defines the narrow document contract the annotation core runs against.
// Implementations live in sub-packages: memory (an in-process tree) and cdp (a live
// browser tab driven over the Chrome DevTools Protocol).
package dom

import (
	"context"
	"errors"
)

// ErrDetached is returned when an element handle no longer resolves to a node in the
// document, typically because the host re-rendered the subtree.
var ErrDetached = errors.New("element detached from document")

// QueryOptions mirror the host query/observe flags.
type QueryOptions struct {
	// IncludeNested also reports matches nested inside other matches.
	IncludeNested bool
	// WithInnerHTML captures the serialized inner markup of each match at query time.
	WithInnerHTML bool
}

// Fragment describes a synthetic element to create and append under a container.
type Fragment struct {
	Tag       string
	ClassName string
	Style     string
	InnerHTML string
}

// Element is a handle to a single node. All methods that touch the document may
// suspend and honor ctx.
type Element interface {
	// Key identifies the underlying node for the lifetime of the document.
	Key() string
	// InnerHTML returns the markup snapshot captured by the query, or "" when the
	// query did not request it.
	InnerHTML() string
	GetAttribute(ctx context.Context, name string) (string, bool, error)
	SetAttribute(ctx context.Context, name, value string) error
	RemoveAttribute(ctx context.Context, name string) error
	// Parent returns the parent element, or nil at the root.
	Parent(ctx context.Context) (Element, error)
	Append(ctx context.Context, frag Fragment) error
	Remove(ctx context.Context) error
	SetProperty(ctx context.Context, name, value string) error
	SetStyle(ctx context.Context, name, value string) error
}

// Subscription is returned by Observe; Close stops further callbacks.
type Subscription interface {
	Close() error
}

// Callback receives the elements that newly match an observed selector.
type Callback func(ctx context.Context, elements []Element)

// Document is the host page.
type Document interface {
	Query(ctx context.Context, selector string, opts QueryOptions) ([]Element, error)
	Observe(ctx context.Context, selector string, cb Callback, opts QueryOptions) (Subscription, error)
}
