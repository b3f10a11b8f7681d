package browser

import (
	"context"
	"fmt"
	"sync"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"

	"github.com/hazyhaar/domheal/heal"
)

// Tab is a browser tab usable as a heal session. It reports its location,
// evaluates script, and survives Chrome recycling by reopening its last
// location on the new process.
type Tab struct {
	mgr   *Manager
	level StealthLevel

	mu   sync.RWMutex
	page *rod.Page
	gen  uint64 // bumped on every navigation and reopen
	url  string
}

// OpenTab creates a tab on the manager's browser and navigates it to
// pageURL. An empty pageURL leaves the tab on about:blank.
func OpenTab(ctx context.Context, mgr *Manager, pageURL string) (*Tab, error) {
	b := mgr.Browser()
	if b == nil {
		return nil, fmt.Errorf("browser: no active browser")
	}

	t := &Tab{mgr: mgr, level: mgr.cfg.Stealth}
	page, err := t.newPage(b)
	if err != nil {
		return nil, err
	}
	t.page = page

	if pageURL != "" {
		if err := t.Navigate(ctx, pageURL); err != nil {
			page.Close()
			return nil, err
		}
	}
	mgr.track(t)
	return t, nil
}

func (t *Tab) newPage(b *rod.Browser) (*rod.Page, error) {
	var page *rod.Page
	var err error
	if t.level >= LevelHeadless {
		page, err = stealth.Page(b)
	} else {
		page, err = b.Page(proto.TargetCreateTarget{URL: ""})
	}
	if err != nil {
		return nil, fmt.Errorf("browser: create tab: %w", err)
	}

	if len(t.mgr.cfg.ResourceBlocking) > 0 {
		if err := applyResourceBlocking(page, t.mgr.cfg.ResourceBlocking); err != nil {
			t.mgr.cfg.Logger.Warn("browser: resource blocking failed", "error", err)
		}
	}
	return page, nil
}

// Navigate loads pageURL. Every element obtained before is stale afterwards.
func (t *Tab) Navigate(ctx context.Context, pageURL string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.navigateLocked(ctx, pageURL)
}

func (t *Tab) navigateLocked(ctx context.Context, pageURL string) error {
	navCtx, cancel := context.WithTimeout(ctx, t.mgr.cfg.NavigationTimeout)
	defer cancel()

	t.gen++
	if err := t.page.Context(navCtx).Navigate(pageURL); err != nil {
		return fmt.Errorf("browser: navigate %s: %w", pageURL, err)
	}
	if err := t.page.Context(navCtx).WaitLoad(); err != nil {
		t.mgr.cfg.Logger.Warn("browser: wait load timeout", "url", pageURL, "error", err)
	}
	t.url = pageURL
	return nil
}

func (t *Tab) reopen(ctx context.Context, b *rod.Browser) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	page, err := t.newPage(b)
	if err != nil {
		return err
	}
	t.page = page
	t.gen++
	if t.url == "" {
		return nil
	}
	return t.navigateLocked(ctx, t.url)
}

// URL returns the last location the tab was navigated to.
func (t *Tab) URL() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.url
}

// Page returns the underlying Rod page.
func (t *Tab) Page() *rod.Page {
	p, _ := t.current()
	return p
}

func (t *Tab) current() (*rod.Page, uint64) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.page, t.gen
}

func (t *Tab) generation() uint64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.gen
}

// HTML serialises the complete document as outer HTML.
func (t *Tab) HTML(ctx context.Context) (string, error) {
	p, _ := t.current()
	res, err := p.Context(ctx).Eval(`() => document.documentElement.outerHTML`)
	if err != nil {
		return "", fmt.Errorf("browser: get DOM: %w", err)
	}
	return res.Value.Str(), nil
}

// CurrentLocation reports the URL the tab is on, including in-page
// navigation done by script.
func (t *Tab) CurrentLocation(ctx context.Context) (string, error) {
	p, _ := t.current()
	info, err := p.Context(ctx).Info()
	if err != nil {
		return "", fmt.Errorf("browser: page info: %w", err)
	}
	return info.URL, nil
}

func (t *Tab) FindOne(ctx context.Context, sel heal.Selector) (heal.Object, error) {
	p, gen := t.current()
	el, err := findOne(p.Context(ctx), sel)
	if err != nil {
		return nil, err
	}
	return t.wrap(el, gen), nil
}

func (t *Tab) FindMany(ctx context.Context, sel heal.Selector) ([]heal.Object, error) {
	p, gen := t.current()
	els, err := findMany(p.Context(ctx), sel)
	if err != nil {
		return nil, err
	}
	return t.wrapAll(els, gen), nil
}

// Eval evaluates js in the page. js must be a function expression.
func (t *Tab) Eval(ctx context.Context, js string, args ...any) (any, error) {
	p, _ := t.current()
	res, err := p.Context(ctx).Eval(js, args...)
	if err != nil {
		return nil, classify("eval", err)
	}
	return res.Value.Val(), nil
}

// EvalOn evaluates js with obj bound as this. obj must come from this tab.
func (t *Tab) EvalOn(ctx context.Context, obj heal.Object, js string, args ...any) (any, error) {
	e, ok := obj.(*element)
	if !ok || e.tab != t {
		return nil, fmt.Errorf("browser: eval on foreign object %T", obj)
	}
	if err := e.live(ctx); err != nil {
		return nil, err
	}
	res, err := e.el.Context(ctx).Eval(js, args...)
	if err != nil {
		return nil, classify("eval", err)
	}
	return res.Value.Val(), nil
}

// Close closes the tab and stops tracking it.
func (t *Tab) Close() error {
	t.mgr.untrack(t)
	p, _ := t.current()
	if p != nil {
		return p.Close()
	}
	return nil
}

func (t *Tab) wrap(el *rod.Element, gen uint64) *element {
	return &element{tab: t, el: el, gen: gen}
}

func (t *Tab) wrapAll(els rod.Elements, gen uint64) []heal.Object {
	out := make([]heal.Object, len(els))
	for i, el := range els {
		out[i] = t.wrap(el, gen)
	}
	return out
}

var (
	_ heal.Session      = (*Tab)(nil)
	_ heal.Locator      = (*Tab)(nil)
	_ heal.ScriptRunner = (*Tab)(nil)
)
