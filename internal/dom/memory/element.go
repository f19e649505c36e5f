package memory

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/JakeFAU/dubbadge/internal/dom"
)

type element struct {
	doc   *Document
	node  *html.Node
	key   string
	inner string
}

var _ dom.Element = (*element)(nil)

func (e *element) Key() string       { return e.key }
func (e *element) InnerHTML() string { return e.inner }

func (e *element) GetAttribute(ctx context.Context, name string) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	if !e.doc.attachedLocked(e.node) {
		return "", false, dom.ErrDetached
	}
	v, ok := getAttr(e.node, name)
	return v, ok, nil
}

func (e *element) SetAttribute(ctx context.Context, name, value string) error {
	return e.mutate(ctx, false, func() error {
		setAttr(e.node, name, value)
		return nil
	})
}

func (e *element) RemoveAttribute(ctx context.Context, name string) error {
	return e.mutate(ctx, false, func() error {
		removeAttr(e.node, name)
		return nil
	})
}

func (e *element) Parent(ctx context.Context) (dom.Element, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	if !e.doc.attachedLocked(e.node) {
		return nil, dom.ErrDetached
	}
	p := e.node.Parent
	if p == nil || p.Type != html.ElementNode {
		return nil, nil
	}
	return e.doc.wrapLocked(p, false), nil
}

func (e *element) Append(ctx context.Context, frag dom.Fragment) error {
	return e.mutate(ctx, true, func() error {
		tag := frag.Tag
		if tag == "" {
			tag = "div"
		}
		child := &html.Node{Type: html.ElementNode, Data: tag, DataAtom: atom.Lookup([]byte(tag))}
		if frag.ClassName != "" {
			setAttr(child, "class", frag.ClassName)
		}
		if frag.Style != "" {
			setAttr(child, "style", frag.Style)
		}
		if frag.InnerHTML != "" {
			if err := appendMarkup(child, frag.InnerHTML); err != nil {
				return err
			}
		}
		e.node.AppendChild(child)
		return nil
	})
}

func (e *element) Remove(ctx context.Context) error {
	return e.mutate(ctx, true, func() error {
		e.node.Parent.RemoveChild(e.node)
		return nil
	})
}

// SetProperty maps the DOM properties the annotator uses onto attributes or children.
func (e *element) SetProperty(ctx context.Context, name, value string) error {
	structural := name == "innerHTML"
	return e.mutate(ctx, structural, func() error {
		switch name {
		case "className":
			setAttr(e.node, "class", value)
		case "style":
			setAttr(e.node, "style", value)
		case "innerHTML":
			for c := e.node.FirstChild; c != nil; c = e.node.FirstChild {
				e.node.RemoveChild(c)
			}
			return appendMarkup(e.node, value)
		default:
			setAttr(e.node, strings.ToLower(name), value)
		}
		return nil
	})
}

func (e *element) SetStyle(ctx context.Context, name, value string) error {
	return e.mutate(ctx, false, func() error {
		current, _ := getAttr(e.node, "style")
		setAttr(e.node, "style", mergeStyle(current, name, value))
		return nil
	})
}

func (e *element) mutate(ctx context.Context, structural bool, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	e.doc.mu.Lock()
	if !e.doc.attachedLocked(e.node) {
		e.doc.mu.Unlock()
		return dom.ErrDetached
	}
	err := fn()
	e.doc.mu.Unlock()
	if err != nil {
		return fmt.Errorf("mutate %s: %w", e.key, err)
	}
	if structural {
		e.doc.notify()
	}
	return nil
}

func getAttr(n *html.Node, name string) (string, bool) {
	for _, a := range n.Attr {
		if a.Namespace == "" && a.Key == name {
			return a.Val, true
		}
	}
	return "", false
}

func setAttr(n *html.Node, name, value string) {
	for i, a := range n.Attr {
		if a.Namespace == "" && a.Key == name {
			n.Attr[i].Val = value
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: name, Val: value})
}

func removeAttr(n *html.Node, name string) {
	out := n.Attr[:0]
	for _, a := range n.Attr {
		if a.Namespace == "" && a.Key == name {
			continue
		}
		out = append(out, a)
	}
	n.Attr = out
}

// mergeStyle replaces or appends one declaration in an inline style string.
func mergeStyle(style, name, value string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	var decls []string
	replaced := false
	for _, decl := range strings.Split(style, ";") {
		decl = strings.TrimSpace(decl)
		if decl == "" {
			continue
		}
		prop, _, _ := strings.Cut(decl, ":")
		if strings.EqualFold(strings.TrimSpace(prop), name) {
			decl = name + ": " + value
			replaced = true
		}
		decls = append(decls, decl)
	}
	if !replaced {
		decls = append(decls, name+": "+value)
	}
	return strings.Join(decls, "; ") + ";"
}
