// Package fakedom is an in-memory DOM session. Documents are parsed with
// golang.org/x/net/html and queried with cascadia; mutations detach the
// nodes they replace so that objects held on them go stale exactly like
// elements in a live browser.
//
// It implements heal.Session and heal.Locator but not heal.ScriptRunner.
package fakedom

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/hazyhaar/domheal/heal"
)

// Action is one side-effecting operation performed on an element.
type Action struct {
	Op     string // click | clear | input | submit
	Target string // element label, e.g. "button#go"
	Value  string
}

// Session is an in-memory browser tab.
type Session struct {
	mu       sync.Mutex
	doc      *html.Node
	location string
	actions  []Action
	lookups  int
}

// New parses markup as the document loaded at location.
func New(location, markup string) (*Session, error) {
	doc, err := html.Parse(strings.NewReader(markup))
	if err != nil {
		return nil, fmt.Errorf("fakedom: parse: %w", err)
	}
	return &Session{doc: doc, location: location}, nil
}

// Navigate replaces the document. Every object obtained before goes stale.
func (s *Session) Navigate(location, markup string) error {
	doc, err := html.Parse(strings.NewReader(markup))
	if err != nil {
		return fmt.Errorf("fakedom: parse: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.doc = doc
	s.location = location
	return nil
}

// SetLocation changes the location without touching the document, as a
// fragment or history.pushState navigation does.
func (s *Session) SetLocation(location string) {
	s.mu.Lock()
	s.location = location
	s.mu.Unlock()
}

// Replace swaps every element matching css for a fresh parse of markup.
// The replaced elements are detached.
func (s *Session) Replace(css, markup string) error {
	return s.mutate(css, func(n *html.Node) error {
		nodes, err := parseFragment(n.Parent, markup)
		if err != nil {
			return err
		}
		for _, c := range nodes {
			n.Parent.InsertBefore(c, n)
		}
		n.Parent.RemoveChild(n)
		return nil
	})
}

// SetChildren replaces the children of every element matching css.
func (s *Session) SetChildren(css, markup string) error {
	return s.mutate(css, func(n *html.Node) error {
		nodes, err := parseFragment(n, markup)
		if err != nil {
			return err
		}
		for c := n.FirstChild; c != nil; {
			next := c.NextSibling
			n.RemoveChild(c)
			c = next
		}
		for _, c := range nodes {
			n.AppendChild(c)
		}
		return nil
	})
}

// Append adds markup at the end of every element matching css.
func (s *Session) Append(css, markup string) error {
	return s.mutate(css, func(n *html.Node) error {
		nodes, err := parseFragment(n, markup)
		if err != nil {
			return err
		}
		for _, c := range nodes {
			n.AppendChild(c)
		}
		return nil
	})
}

// Remove detaches every element matching css.
func (s *Session) Remove(css string) error {
	return s.mutate(css, func(n *html.Node) error {
		n.Parent.RemoveChild(n)
		return nil
	})
}

// Actions returns the side-effecting operations performed so far.
func (s *Session) Actions() []Action {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Action(nil), s.actions...)
}

// Lookups returns how many selector lookups reached the session.
func (s *Session) Lookups() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lookups
}

// CurrentLocation implements heal.Locator.
func (s *Session) CurrentLocation(context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.location, nil
}

// HTML renders the whole document.
func (s *Session) HTML(context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var b strings.Builder
	if err := html.Render(&b, s.doc); err != nil {
		return "", fmt.Errorf("fakedom: render: %w", err)
	}
	return b.String(), nil
}

// FindOne implements heal.Finder against the document.
func (s *Session) FindOne(_ context.Context, sel heal.Selector) (heal.Object, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.findOne(s.doc, sel)
}

// FindMany implements heal.Finder against the document.
func (s *Session) FindMany(_ context.Context, sel heal.Selector) ([]heal.Object, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.findMany(s.doc, sel)
}

func (s *Session) mutate(css string, fn func(*html.Node) error) error {
	m, err := cascadia.ParseGroup(css)
	if err != nil {
		return fmt.Errorf("fakedom: selector %q: %w", css, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	nodes := cascadia.QueryAll(s.doc, m)
	if len(nodes) == 0 {
		return fmt.Errorf("fakedom: mutate %q: %w", css, heal.ErrNotFound)
	}
	for _, n := range nodes {
		if err := fn(n); err != nil {
			return err
		}
	}
	return nil
}

func (s *Session) findOne(scope *html.Node, sel heal.Selector) (heal.Object, error) {
	nodes, err := s.query(scope, sel)
	if err != nil {
		return nil, err
	}
	if len(nodes) == 0 {
		return nil, fmt.Errorf("fakedom: %s: %w", sel, heal.ErrNotFound)
	}
	return &element{s: s, node: nodes[0]}, nil
}

func (s *Session) findMany(scope *html.Node, sel heal.Selector) ([]heal.Object, error) {
	nodes, err := s.query(scope, sel)
	if err != nil {
		return nil, err
	}
	out := make([]heal.Object, len(nodes))
	for i, n := range nodes {
		out[i] = &element{s: s, node: n}
	}
	return out, nil
}

// query must be called with s.mu held.
func (s *Session) query(scope *html.Node, sel heal.Selector) ([]*html.Node, error) {
	s.lookups++
	switch sel.Strategy {
	case heal.StrategyCSS:
		m, err := cascadia.ParseGroup(sel.Pattern)
		if err != nil {
			return nil, fmt.Errorf("fakedom: selector %q: %w", sel.Pattern, err)
		}
		return cascadia.QueryAll(scope, m), nil
	case heal.StrategyID:
		var out []*html.Node
		walk(scope, func(n *html.Node) {
			if v, ok := attr(n, "id"); ok && v == sel.Pattern {
				out = append(out, n)
			}
		})
		return out, nil
	case heal.StrategyXPath:
		switch sel.Pattern {
		case "..":
			if scope.Parent == nil || scope.Parent.Type != html.ElementNode {
				return nil, nil
			}
			return []*html.Node{scope.Parent}, nil
		case ".":
			return []*html.Node{scope}, nil
		}
		return nil, fmt.Errorf("fakedom: xpath %q not supported", sel.Pattern)
	}
	return nil, fmt.Errorf("fakedom: strategy %q not supported", sel.Strategy)
}

// attached reports whether n still belongs to the current document.
// Must be called with s.mu held.
func (s *Session) attached(n *html.Node) bool {
	for p := n; p != nil; p = p.Parent {
		if p == s.doc {
			return true
		}
	}
	return false
}

func (s *Session) record(a Action) {
	s.actions = append(s.actions, a)
}

func parseFragment(parent *html.Node, markup string) ([]*html.Node, error) {
	if parent == nil || parent.Type != html.ElementNode {
		parent = &html.Node{Type: html.ElementNode, Data: "body", DataAtom: atom.Body}
	}
	nodes, err := html.ParseFragment(strings.NewReader(markup), parent)
	if err != nil {
		return nil, fmt.Errorf("fakedom: parse fragment: %w", err)
	}
	return nodes, nil
}

// walk visits the element descendants of n, excluding n.
func walk(n *html.Node, fn func(*html.Node)) {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode {
			fn(c)
		}
		walk(c, fn)
	}
}

func attr(n *html.Node, key string) (string, bool) {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}

func setAttr(n *html.Node, key, val string) {
	for i := range n.Attr {
		if n.Attr[i].Key == key {
			n.Attr[i].Val = val
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: key, Val: val})
}
