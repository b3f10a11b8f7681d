// Package browser drives a Chrome instance through Rod and exposes its tabs
// as heal sessions: CSS, XPath and id lookups, location reporting and
// script evaluation.
//
// Manager owns the Chrome process. It recycles Chrome when it grows past a
// memory limit or outlives its interval; open tabs are reopened on the new
// process at their last location, and elements obtained before the recycle
// report themselves stale so heal handles re-resolve them.
package browser

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
)

// StealthLevel controls how tabs are opened.
type StealthLevel int

const (
	LevelPlain    StealthLevel = 0 // headless, no evasions
	LevelHeadless StealthLevel = 1 // headless + stealth evasions
	LevelHeadful  StealthLevel = 2 // visible window + stealth evasions
)

// ParseStealthLevel accepts "plain", "headless" or "headful".
func ParseStealthLevel(s string) (StealthLevel, error) {
	switch s {
	case "plain":
		return LevelPlain, nil
	case "", "headless":
		return LevelHeadless, nil
	case "headful":
		return LevelHeadful, nil
	}
	return 0, fmt.Errorf("browser: unknown stealth level %q", s)
}

// Config configures the browser manager.
type Config struct {
	// RemoteURL is the DevTools WebSocket URL of an external Chrome.
	// Empty = launch a local Chrome.
	RemoteURL string

	// Bin overrides the Chrome binary. Empty = launcher lookup/download.
	Bin string

	// Stealth sets the launch mode and default tab level. Default: LevelHeadless.
	Stealth StealthLevel

	// MemoryLimit in bytes of JS heap before Chrome is recycled. Default: 1GB.
	MemoryLimit int64

	// RecycleInterval is the maximum lifetime of a Chrome process. Default: 4h.
	RecycleInterval time.Duration

	// MonitorInterval between memory checks. Default: 30s.
	MonitorInterval time.Duration

	// NavigationTimeout bounds Navigate and WaitLoad. Default: 30s.
	NavigationTimeout time.Duration

	// ResourceBlocking lists resource types to block (images, fonts, media, stylesheets).
	ResourceBlocking []string

	Logger *slog.Logger
}

func (c *Config) defaults() {
	if c.MemoryLimit <= 0 {
		c.MemoryLimit = 1 << 30
	}
	if c.RecycleInterval <= 0 {
		c.RecycleInterval = 4 * time.Hour
	}
	if c.MonitorInterval <= 0 {
		c.MonitorInterval = 30 * time.Second
	}
	if c.NavigationTimeout <= 0 {
		c.NavigationTimeout = 30 * time.Second
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Manager manages the Chrome lifecycle and the tabs opened on it.
type Manager struct {
	cfg     Config
	mu      sync.RWMutex
	browser *rod.Browser
	lnch    *launcher.Launcher
	startAt time.Time
	closed  bool
	tabs    map[*Tab]struct{}
}

// NewManager creates a Manager. Call Start to launch Chrome.
func NewManager(cfg Config) *Manager {
	cfg.defaults()
	return &Manager{cfg: cfg, tabs: make(map[*Tab]struct{})}
}

// Start launches Chrome (or connects to a remote instance) and starts the
// recycle monitor, which stops with ctx.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return fmt.Errorf("browser: manager is closed")
	}
	if m.browser != nil {
		return nil
	}

	b, err := m.launch()
	if err != nil {
		return err
	}
	m.browser = b
	m.startAt = time.Now()

	go m.monitorLoop(ctx)
	return nil
}

// Browser returns the current Rod browser, nil before Start.
func (m *Manager) Browser() *rod.Browser {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.browser
}

// Recycle restarts Chrome and reopens every tab at its last location.
func (m *Manager) Recycle(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return fmt.Errorf("browser: manager is closed")
	}
	return m.recycleLocked(ctx)
}

// Close shuts down Chrome. Open tabs become unusable.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.tabs = make(map[*Tab]struct{})
	m.cleanup()
	return nil
}

func (m *Manager) track(t *Tab) {
	m.mu.Lock()
	m.tabs[t] = struct{}{}
	m.mu.Unlock()
}

func (m *Manager) untrack(t *Tab) {
	m.mu.Lock()
	delete(m.tabs, t)
	m.mu.Unlock()
}

func (m *Manager) launch() (*rod.Browser, error) {
	log := m.cfg.Logger

	wsURL := m.cfg.RemoteURL
	if wsURL != "" {
		log.Info("browser: connecting to remote", "url", wsURL)
	} else {
		l := launcher.New().
			Headless(m.cfg.Stealth != LevelHeadful).
			Set("disable-blink-features", "AutomationControlled")
		if m.cfg.Bin != "" {
			l = l.Bin(m.cfg.Bin)
		}

		u, err := l.Launch()
		if err != nil {
			return nil, fmt.Errorf("browser: launch: %w", err)
		}
		wsURL = u
		m.lnch = l
		log.Info("browser: launched local chrome", "url", wsURL, "stealth", m.cfg.Stealth)
	}

	b := rod.New().ControlURL(wsURL)
	if err := b.Connect(); err != nil {
		return nil, fmt.Errorf("browser: connect: %w", err)
	}
	if err := b.IgnoreCertErrors(true); err != nil {
		log.Warn("browser: ignore cert errors failed", "error", err)
	}
	return b, nil
}

func (m *Manager) recycleLocked(ctx context.Context) error {
	log := m.cfg.Logger
	log.Info("browser: recycling", "uptime", time.Since(m.startAt), "tabs", len(m.tabs))

	m.cleanup()

	b, err := m.launch()
	if err != nil {
		return fmt.Errorf("browser: relaunch: %w", err)
	}
	m.browser = b
	m.startAt = time.Now()

	for t := range m.tabs {
		if err := t.reopen(ctx, b); err != nil {
			log.Warn("browser: reopen tab failed", "url", t.URL(), "error", err)
		}
	}

	log.Info("browser: recycled")
	return nil
}

func (m *Manager) cleanup() {
	if m.browser != nil {
		if err := m.browser.Close(); err != nil {
			m.cfg.Logger.Debug("browser: close", "error", err)
		}
		m.browser = nil
	}
	if m.lnch != nil {
		m.lnch.Cleanup()
		m.lnch = nil
	}
}

func (m *Manager) monitorLoop(ctx context.Context) {
	log := m.cfg.Logger
	ticker := time.NewTicker(m.cfg.MonitorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		m.mu.RLock()
		if m.closed {
			m.mu.RUnlock()
			return
		}
		b, startAt := m.browser, m.startAt
		m.mu.RUnlock()
		if b == nil {
			continue
		}

		if time.Since(startAt) > m.cfg.RecycleInterval {
			log.Info("browser: recycle interval reached")
			if err := m.Recycle(ctx); err != nil {
				log.Error("browser: recycle failed", "error", err)
			}
			continue
		}

		used, err := jsHeapUsage(b)
		if err != nil {
			log.Debug("browser: heap check failed", "error", err)
			continue
		}
		if used > m.cfg.MemoryLimit {
			log.Info("browser: memory limit exceeded", "used", used, "limit", m.cfg.MemoryLimit)
			if err := m.Recycle(ctx); err != nil {
				log.Error("browser: recycle failed", "error", err)
			}
		}
	}
}

// jsHeapUsage sums the JS heap of every open page.
func jsHeapUsage(b *rod.Browser) (int64, error) {
	pages, err := b.Pages()
	if err != nil {
		return 0, err
	}
	if len(pages) == 0 {
		return 0, fmt.Errorf("no pages for heap check")
	}
	var total int64
	for _, p := range pages {
		res, err := p.Eval(`() => performance.memory ? performance.memory.usedJSHeapSize : 0`)
		if err != nil {
			continue
		}
		total += int64(res.Value.Int())
	}
	return total, nil
}
