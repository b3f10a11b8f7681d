// Package pilot keeps self-healing handles alive between calls and drives
// them by id, so a remote agent can find an element once and keep using it
// while the page rebuilds underneath.
//
// Handles are registered under UUIDv7 ids. The registry is bounded; the
// oldest handles are released first.
package pilot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"
	"github.com/google/uuid"
	"github.com/microcosm-cc/bluemonday"

	"github.com/hazyhaar/domheal/heal"
	"github.com/hazyhaar/domheal/journal"
	"github.com/hazyhaar/domheal/retrier"
)

// ErrUnknownHandle is returned for ids that were never issued or were released.
var ErrUnknownHandle = errors.New("pilot: unknown handle")

// ErrNoDocument is returned by page-level reads when the session cannot
// serialise its document.
var ErrNoDocument = errors.New("pilot: session cannot render its document")

// ErrNoNavigation is returned by Navigate when the session cannot navigate.
var ErrNoNavigation = errors.New("pilot: session cannot navigate")

// ErrNoJournal is returned by Events when no journal is configured.
var ErrNoJournal = errors.New("pilot: no journal configured")

// Document is implemented by sessions that can serialise the whole page.
type Document interface {
	HTML(ctx context.Context) (string, error)
}

// Navigator is implemented by sessions that can load a URL.
type Navigator interface {
	Navigate(ctx context.Context, url string) error
}

// Config configures a Pilot.
type Config struct {
	Driver *heal.Driver

	// Journal, when set, backs Events. It is not attached to Driver here;
	// pass it as the driver's Sink.
	Journal *journal.Journal

	// Retrier used by WaitForText. Default: retrier.New with defaults.
	Retrier *retrier.Retrier

	// CallTimeout bounds each MCP tool call. Default: 30s.
	CallTimeout time.Duration

	// MaxHandles bounds the registry. Default: 1000.
	MaxHandles int

	// AllowPrivateHosts lets Navigate load loopback and private addresses.
	AllowPrivateHosts bool

	Logger *slog.Logger
}

func (c *Config) defaults() {
	if c.CallTimeout <= 0 {
		c.CallTimeout = 30 * time.Second
	}
	if c.MaxHandles <= 0 {
		c.MaxHandles = 1000
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.Retrier == nil {
		c.Retrier = retrier.New(retrier.Options{Logger: c.Logger})
	}
}

// HandleInfo describes a registered handle.
type HandleInfo struct {
	ID     string `json:"id"`
	Label  string `json:"label"`
	Origin string `json:"origin,omitempty"`
	Parent string `json:"parent,omitempty"`
}

type entry struct {
	info HandleInfo
	h    *heal.Handle
}

// Pilot is a registry of live handles over one driver.
type Pilot struct {
	cfg      Config
	doc      Document
	nav      Navigator
	md       *converter.Converter
	sanitize *bluemonday.Policy

	mu      sync.Mutex
	handles map[string]*entry
	order   []string
}

// New creates a Pilot. cfg.Driver is required.
func New(cfg Config) (*Pilot, error) {
	if cfg.Driver == nil {
		return nil, fmt.Errorf("pilot: driver is required")
	}
	cfg.defaults()
	p := &Pilot{
		cfg:     cfg,
		handles: make(map[string]*entry),
		md: converter.NewConverter(
			converter.WithPlugins(
				base.NewBasePlugin(),
				commonmark.NewCommonmarkPlugin(),
				table.NewTablePlugin(),
			),
		),
		sanitize: bluemonday.UGCPolicy(),
	}
	p.doc, _ = cfg.Driver.Session().(Document)
	p.nav, _ = cfg.Driver.Session().(Navigator)
	return p, nil
}

// scope is what a lookup is issued against: the driver or a handle.
type scope interface {
	Find(ctx context.Context, sel heal.Selector) (*heal.Handle, error)
	FindAll(sel heal.Selector) *heal.Collection[*heal.Handle]
}

func (p *Pilot) scope(parent string) (scope, error) {
	if parent == "" {
		return p.cfg.Driver, nil
	}
	return p.handle(parent)
}

func (p *Pilot) handle(id string) (*heal.Handle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	e, ok := p.handles[id]
	if !ok {
		return nil, fmt.Errorf("pilot: handle %q: %w", id, ErrUnknownHandle)
	}
	return e.h, nil
}

func (p *Pilot) register(h *heal.Handle, parent string) HandleInfo {
	info := HandleInfo{
		ID:     newID(),
		Label:  h.Label(),
		Origin: h.Origin().Location,
		Parent: parent,
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.handles[info.ID] = &entry{info: info, h: h}
	p.order = append(p.order, info.ID)
	for len(p.handles) > p.cfg.MaxHandles {
		oldest := p.order[0]
		p.order = p.order[1:]
		delete(p.handles, oldest)
	}
	return info
}

// Find resolves selector under parent ("" for the page) and registers the
// resulting handle.
func (p *Pilot) Find(ctx context.Context, parent, selector string) (HandleInfo, error) {
	sc, err := p.scope(parent)
	if err != nil {
		return HandleInfo{}, err
	}
	h, err := sc.Find(ctx, heal.ParseSelector(selector))
	if err != nil {
		return HandleInfo{}, err
	}
	return p.register(h, parent), nil
}

// FindAll enumerates selector under parent and registers the matches. Each
// handle re-binds by position when it goes stale. At most MaxHandles are
// registered, so every returned id is live; total is the number of matches.
func (p *Pilot) FindAll(ctx context.Context, parent, selector string) (handles []HandleInfo, total int, err error) {
	sc, err := p.scope(parent)
	if err != nil {
		return nil, 0, err
	}
	hs, err := sc.FindAll(heal.ParseSelector(selector)).Snapshot(ctx)
	if err != nil {
		return nil, 0, err
	}
	total = len(hs)
	if total > p.cfg.MaxHandles {
		p.cfg.Logger.Warn("pilot: find_all truncated",
			"selector", selector, "matches", total, "registered", p.cfg.MaxHandles)
		hs = hs[:p.cfg.MaxHandles]
	}
	handles = make([]HandleInfo, len(hs))
	for i, h := range hs {
		handles[i] = p.register(h, parent)
	}
	return handles, total, nil
}

// Count returns how many elements currently match selector under parent.
func (p *Pilot) Count(ctx context.Context, parent, selector string) (int, error) {
	sc, err := p.scope(parent)
	if err != nil {
		return 0, err
	}
	return sc.FindAll(heal.ParseSelector(selector)).Len(ctx)
}

// Text returns the visible text of a handle.
func (p *Pilot) Text(ctx context.Context, id string) (string, error) {
	h, err := p.handle(id)
	if err != nil {
		return "", err
	}
	return h.Text(ctx)
}

// Attribute reads an attribute of a handle.
func (p *Pilot) Attribute(ctx context.Context, id, name string) (string, bool, error) {
	h, err := p.handle(id)
	if err != nil {
		return "", false, err
	}
	return h.Attribute(ctx, name)
}

// Click clicks a handle.
func (p *Pilot) Click(ctx context.Context, id string) error {
	h, err := p.handle(id)
	if err != nil {
		return err
	}
	return h.Click(ctx)
}

// Input types text into a handle, clearing it first when clear is set.
func (p *Pilot) Input(ctx context.Context, id, text string, clear bool) error {
	h, err := p.handle(id)
	if err != nil {
		return err
	}
	if clear {
		if err := h.Clear(ctx); err != nil {
			return err
		}
	}
	return h.Input(ctx, text)
}

// HTML returns the sanitised outer HTML of a handle, or of the whole page
// when id is empty.
func (p *Pilot) HTML(ctx context.Context, id string) (string, error) {
	raw, err := p.rawHTML(ctx, id)
	if err != nil {
		return "", err
	}
	return p.sanitize.Sanitize(raw), nil
}

// Markdown converts a handle (or the page, when id is empty) to Markdown.
// Relative links resolve against the session location when it is known.
func (p *Pilot) Markdown(ctx context.Context, id string) (string, error) {
	raw, err := p.rawHTML(ctx, id)
	if err != nil {
		return "", err
	}
	var domain string
	if p.cfg.Driver.CanLocate() {
		domain, _ = p.cfg.Driver.Location(ctx)
	}
	md, err := p.md.ConvertString(p.sanitize.Sanitize(raw), converter.WithDomain(domain))
	if err != nil {
		return "", fmt.Errorf("pilot: markdown: %w", err)
	}
	return strings.TrimSpace(md), nil
}

func (p *Pilot) rawHTML(ctx context.Context, id string) (string, error) {
	if id == "" {
		if p.doc == nil {
			return "", ErrNoDocument
		}
		return p.doc.HTML(ctx)
	}
	h, err := p.handle(id)
	if err != nil {
		return "", err
	}
	return h.HTML(ctx)
}

// WaitForText polls a handle until its text contains want, or timeout
// passes. An element that is momentarily missing counts as not yet. It
// returns the last text read.
func (p *Pilot) WaitForText(ctx context.Context, id, want string, timeout time.Duration) (string, error) {
	h, err := p.handle(id)
	if err != nil {
		return "", err
	}
	var last string
	err = p.cfg.Retrier.DoUntil(ctx, retrier.Noop, func(ctx context.Context) (bool, error) {
		txt, err := h.Text(ctx)
		if errors.Is(err, heal.ErrNotFound) {
			return false, nil
		}
		if err != nil {
			return false, err
		}
		last = txt
		return strings.Contains(txt, want), nil
	}, timeout)
	return last, err
}

// Navigate loads url in the session. Registered handles stay registered;
// they re-resolve on the new page subject to the driver's strictness.
func (p *Pilot) Navigate(ctx context.Context, url string) error {
	if err := checkNavigation(ctx, url, p.cfg.AllowPrivateHosts); err != nil {
		return err
	}
	if p.nav == nil {
		return ErrNoNavigation
	}
	return p.nav.Navigate(ctx, url)
}

// Release forgets a handle. It reports whether the id was registered.
func (p *Pilot) Release(id string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.handles[id]; !ok {
		return false
	}
	delete(p.handles, id)
	for i, o := range p.order {
		if o == id {
			p.order = append(p.order[:i], p.order[i+1:]...)
			break
		}
	}
	return true
}

// Handles lists registered handles, oldest first.
func (p *Pilot) Handles() []HandleInfo {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]HandleInfo, 0, len(p.order))
	for _, id := range p.order {
		out = append(out, p.handles[id].info)
	}
	return out
}

// Events returns recent journal entries.
func (p *Pilot) Events(ctx context.Context, f journal.Filter, limit int) ([]journal.Entry, error) {
	if p.cfg.Journal == nil {
		return nil, ErrNoJournal
	}
	return p.cfg.Journal.Recent(ctx, f, limit)
}

func newID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}
