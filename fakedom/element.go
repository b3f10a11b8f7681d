package fakedom

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/net/html"

	"github.com/hazyhaar/domheal/heal"
)

// element is a reference to a node of a Session document. It goes stale as
// soon as the node is detached or the document is replaced.
type element struct {
	s    *Session
	node *html.Node
}

// live locks the session and checks the node is still attached. The caller
// must unlock s.mu when err is nil.
func (e *element) live() error {
	e.s.mu.Lock()
	if !e.s.attached(e.node) {
		e.s.mu.Unlock()
		return fmt.Errorf("fakedom: %s: %w", label(e.node), heal.ErrStale)
	}
	return nil
}

func (e *element) FindOne(_ context.Context, sel heal.Selector) (heal.Object, error) {
	if err := e.live(); err != nil {
		return nil, err
	}
	defer e.s.mu.Unlock()
	return e.s.findOne(e.node, sel)
}

func (e *element) FindMany(_ context.Context, sel heal.Selector) ([]heal.Object, error) {
	if err := e.live(); err != nil {
		return nil, err
	}
	defer e.s.mu.Unlock()
	return e.s.findMany(e.node, sel)
}

func (e *element) Text(context.Context) (string, error) {
	if err := e.live(); err != nil {
		return "", err
	}
	defer e.s.mu.Unlock()
	var b strings.Builder
	collectText(e.node, &b)
	return strings.Join(strings.Fields(b.String()), " "), nil
}

func (e *element) TagName(context.Context) (string, error) {
	if err := e.live(); err != nil {
		return "", err
	}
	defer e.s.mu.Unlock()
	return strings.ToLower(e.node.Data), nil
}

func (e *element) HTML(context.Context) (string, error) {
	if err := e.live(); err != nil {
		return "", err
	}
	defer e.s.mu.Unlock()
	var b strings.Builder
	if err := html.Render(&b, e.node); err != nil {
		return "", fmt.Errorf("fakedom: render: %w", err)
	}
	return b.String(), nil
}

func (e *element) Attribute(_ context.Context, name string) (string, bool, error) {
	if err := e.live(); err != nil {
		return "", false, err
	}
	defer e.s.mu.Unlock()
	v, ok := attr(e.node, name)
	return v, ok, nil
}

// CSSValue reads inline style declarations only.
func (e *element) CSSValue(_ context.Context, property string) (string, error) {
	if err := e.live(); err != nil {
		return "", err
	}
	defer e.s.mu.Unlock()
	return inlineStyle(e.node, property), nil
}

func (e *element) Enabled(context.Context) (bool, error) {
	if err := e.live(); err != nil {
		return false, err
	}
	defer e.s.mu.Unlock()
	_, disabled := attr(e.node, "disabled")
	return !disabled, nil
}

func (e *element) Selected(context.Context) (bool, error) {
	if err := e.live(); err != nil {
		return false, err
	}
	defer e.s.mu.Unlock()
	_, checked := attr(e.node, "checked")
	_, selected := attr(e.node, "selected")
	return checked || selected, nil
}

func (e *element) Displayed(context.Context) (bool, error) {
	if err := e.live(); err != nil {
		return false, err
	}
	defer e.s.mu.Unlock()
	for n := e.node; n != nil && n.Type == html.ElementNode; n = n.Parent {
		if _, hidden := attr(n, "hidden"); hidden {
			return false, nil
		}
		if strings.TrimSpace(inlineStyle(n, "display")) == "none" {
			return false, nil
		}
	}
	return true, nil
}

// Rect is always zero: there is no layout.
func (e *element) Rect(context.Context) (heal.Rect, error) {
	if err := e.live(); err != nil {
		return heal.Rect{}, err
	}
	defer e.s.mu.Unlock()
	return heal.Rect{}, nil
}

func (e *element) Click(context.Context) error {
	if err := e.live(); err != nil {
		return err
	}
	defer e.s.mu.Unlock()
	e.s.record(Action{Op: "click", Target: label(e.node)})
	return nil
}

func (e *element) Clear(context.Context) error {
	if err := e.live(); err != nil {
		return err
	}
	defer e.s.mu.Unlock()
	setAttr(e.node, "value", "")
	e.s.record(Action{Op: "clear", Target: label(e.node)})
	return nil
}

func (e *element) Input(_ context.Context, text string) error {
	if err := e.live(); err != nil {
		return err
	}
	defer e.s.mu.Unlock()
	v, _ := attr(e.node, "value")
	setAttr(e.node, "value", v+text)
	e.s.record(Action{Op: "input", Target: label(e.node), Value: text})
	return nil
}

// Submit records a submit of the enclosing form.
func (e *element) Submit(context.Context) error {
	if err := e.live(); err != nil {
		return err
	}
	defer e.s.mu.Unlock()
	for n := e.node; n != nil; n = n.Parent {
		if n.Type == html.ElementNode && n.Data == "form" {
			e.s.record(Action{Op: "submit", Target: label(n)})
			return nil
		}
	}
	return fmt.Errorf("fakedom: %s is not inside a form", label(e.node))
}

func collectText(n *html.Node, b *strings.Builder) {
	if n.Type == html.TextNode {
		b.WriteString(n.Data)
		b.WriteByte(' ')
		return
	}
	if n.Type == html.ElementNode && (n.Data == "script" || n.Data == "style") {
		return
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collectText(c, b)
	}
}

func inlineStyle(n *html.Node, property string) string {
	style, _ := attr(n, "style")
	for _, decl := range strings.Split(style, ";") {
		k, v, ok := strings.Cut(decl, ":")
		if ok && strings.EqualFold(strings.TrimSpace(k), property) {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

// label renders a node as tag#id or tag.class for action logs.
func label(n *html.Node) string {
	if id := attrOr(n, "id"); id != "" {
		return n.Data + "#" + id
	}
	if cls := strings.Fields(attrOr(n, "class")); len(cls) > 0 {
		return n.Data + "." + cls[0]
	}
	return n.Data
}

func attrOr(n *html.Node, key string) string {
	v, _ := attr(n, key)
	return v
}
