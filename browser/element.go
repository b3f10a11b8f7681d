package browser

import (
	"context"
	"fmt"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"

	"github.com/hazyhaar/domheal/heal"
)

// element is a Rod element bound to the tab generation it was found in.
// A DevTools object id stays valid after its node leaves the document, so
// every call checks isConnected first.
type element struct {
	tab *Tab
	el  *rod.Element
	gen uint64
}

func (e *element) live(ctx context.Context) error {
	if e.tab.generation() != e.gen {
		return fmt.Errorf("browser: element from a previous document: %w", heal.ErrStale)
	}
	res, err := e.el.Context(ctx).Eval(`() => this.isConnected`)
	if err != nil {
		return classify("check element", err)
	}
	if !res.Value.Bool() {
		return fmt.Errorf("browser: element detached: %w", heal.ErrStale)
	}
	return nil
}

func (e *element) on(ctx context.Context) (*rod.Element, error) {
	if err := e.live(ctx); err != nil {
		return nil, err
	}
	return e.el.Context(ctx), nil
}

func (e *element) eval(ctx context.Context, op, js string, args ...any) (*proto.RuntimeRemoteObject, error) {
	el, err := e.on(ctx)
	if err != nil {
		return nil, err
	}
	res, err := el.Eval(js, args...)
	if err != nil {
		return nil, classify(op, err)
	}
	return res, nil
}

func (e *element) FindOne(ctx context.Context, sel heal.Selector) (heal.Object, error) {
	el, err := e.on(ctx)
	if err != nil {
		return nil, err
	}
	found, err := findOne(el, sel)
	if err != nil {
		return nil, err
	}
	return e.tab.wrap(found, e.gen), nil
}

func (e *element) FindMany(ctx context.Context, sel heal.Selector) ([]heal.Object, error) {
	el, err := e.on(ctx)
	if err != nil {
		return nil, err
	}
	els, err := findMany(el, sel)
	if err != nil {
		return nil, err
	}
	return e.tab.wrapAll(els, e.gen), nil
}

func (e *element) Text(ctx context.Context) (string, error) {
	el, err := e.on(ctx)
	if err != nil {
		return "", err
	}
	s, err := el.Text()
	if err != nil {
		return "", classify("text", err)
	}
	return s, nil
}

func (e *element) TagName(ctx context.Context) (string, error) {
	res, err := e.eval(ctx, "tag name", `() => this.tagName.toLowerCase()`)
	if err != nil {
		return "", err
	}
	return res.Value.Str(), nil
}

func (e *element) HTML(ctx context.Context) (string, error) {
	el, err := e.on(ctx)
	if err != nil {
		return "", err
	}
	s, err := el.HTML()
	if err != nil {
		return "", classify("html", err)
	}
	return s, nil
}

func (e *element) Attribute(ctx context.Context, name string) (string, bool, error) {
	el, err := e.on(ctx)
	if err != nil {
		return "", false, err
	}
	v, err := el.Attribute(name)
	if err != nil {
		return "", false, classify("attribute "+name, err)
	}
	if v == nil {
		return "", false, nil
	}
	return *v, true, nil
}

func (e *element) CSSValue(ctx context.Context, property string) (string, error) {
	res, err := e.eval(ctx, "css "+property,
		`(p) => getComputedStyle(this).getPropertyValue(p)`, property)
	if err != nil {
		return "", err
	}
	return res.Value.Str(), nil
}

func (e *element) Enabled(ctx context.Context) (bool, error) {
	res, err := e.eval(ctx, "enabled", `() => !this.disabled && !this.closest('fieldset[disabled]')`)
	if err != nil {
		return false, err
	}
	return res.Value.Bool(), nil
}

func (e *element) Selected(ctx context.Context) (bool, error) {
	res, err := e.eval(ctx, "selected", `() => !!(this.checked || this.selected)`)
	if err != nil {
		return false, err
	}
	return res.Value.Bool(), nil
}

func (e *element) Displayed(ctx context.Context) (bool, error) {
	el, err := e.on(ctx)
	if err != nil {
		return false, err
	}
	v, err := el.Visible()
	if err != nil {
		return false, classify("visible", err)
	}
	return v, nil
}

func (e *element) Rect(ctx context.Context) (heal.Rect, error) {
	res, err := e.eval(ctx, "rect", `() => {
		const r = this.getBoundingClientRect();
		return {x: r.x, y: r.y, width: r.width, height: r.height};
	}`)
	if err != nil {
		return heal.Rect{}, err
	}
	v := res.Value
	return heal.Rect{
		X:      v.Get("x").Num(),
		Y:      v.Get("y").Num(),
		Width:  v.Get("width").Num(),
		Height: v.Get("height").Num(),
	}, nil
}

func (e *element) Click(ctx context.Context) error {
	el, err := e.on(ctx)
	if err != nil {
		return err
	}
	if err := el.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return classify("click", err)
	}
	return nil
}

func (e *element) Clear(ctx context.Context) error {
	el, err := e.on(ctx)
	if err != nil {
		return err
	}
	if err := el.SelectAllText(); err != nil {
		return classify("clear", err)
	}
	if err := el.Input(""); err != nil {
		return classify("clear", err)
	}
	return nil
}

func (e *element) Input(ctx context.Context, text string) error {
	el, err := e.on(ctx)
	if err != nil {
		return err
	}
	if err := el.Input(text); err != nil {
		return classify("input", err)
	}
	return nil
}

func (e *element) Submit(ctx context.Context) error {
	_, err := e.eval(ctx, "submit", `() => {
		const f = this.form || this.closest('form');
		if (!f) throw new Error('element is not in a form');
		f.requestSubmit ? f.requestSubmit() : f.submit();
	}`)
	return err
}

var _ heal.Object = (*element)(nil)
