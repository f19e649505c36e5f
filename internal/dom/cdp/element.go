package cdp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/JakeFAU/dubbadge/internal/dom"
)

type element struct {
	doc   *Document
	key   string
	inner string
}

var _ dom.Element = (*element)(nil)

type opResult struct {
	Detached bool   `json:"detached"`
	None     bool   `json:"none"`
	Has      bool   `json:"has"`
	Value    string `json:"value"`
	Error    string `json:"error"`
}

func (e *element) Key() string       { return e.key }
func (e *element) InnerHTML() string { return e.inner }

func (e *element) GetAttribute(ctx context.Context, name string) (string, bool, error) {
	res, err := e.op(ctx, "get", name, "")
	if err != nil {
		return "", false, err
	}
	return res.Value, res.Has, nil
}

func (e *element) SetAttribute(ctx context.Context, name, value string) error {
	_, err := e.op(ctx, "set", name, value)
	return err
}

func (e *element) RemoveAttribute(ctx context.Context, name string) error {
	_, err := e.op(ctx, "unset", name, "")
	return err
}

func (e *element) Parent(ctx context.Context) (dom.Element, error) {
	res, err := e.op(ctx, "parent", "", "")
	if err != nil {
		return nil, err
	}
	if res.None || res.Value == "" {
		return nil, nil
	}
	return &element{doc: e.doc, key: res.Value}, nil
}

func (e *element) Append(ctx context.Context, frag dom.Fragment) error {
	payload, err := json.Marshal(map[string]string{
		"tag":       frag.Tag,
		"className": frag.ClassName,
		"style":     frag.Style,
		"innerHTML": frag.InnerHTML,
	})
	if err != nil {
		return fmt.Errorf("encode fragment: %w", err)
	}
	_, err = e.op(ctx, "append", string(payload), "")
	return err
}

func (e *element) Remove(ctx context.Context) error {
	_, err := e.op(ctx, "remove", "", "")
	return err
}

func (e *element) SetProperty(ctx context.Context, name, value string) error {
	_, err := e.op(ctx, "prop", name, value)
	return err
}

func (e *element) SetStyle(ctx context.Context, name, value string) error {
	_, err := e.op(ctx, "style", name, value)
	return err
}

func (e *element) op(ctx context.Context, op, a, b string) (opResult, error) {
	var res opResult
	expr := registryJS + ".op(" + jsArgs(op, e.key, a, b) + ")"
	if err := e.doc.eval(ctx, expr, &res); err != nil {
		return opResult{}, fmt.Errorf("%s %s: %w", op, e.key, err)
	}
	if res.Detached {
		return opResult{}, dom.ErrDetached
	}
	if res.Error != "" {
		return opResult{}, errors.New(res.Error)
	}
	return res, nil
}
