// Command domheal drives self-healing DOM handles.
//
// Usage:
//
//	domheal -serve                                   # fixture pages on 127.0.0.1:1963
//	domheal -url http://127.0.0.1:1963/stale-element.html -selector '#bottom'
//	domheal -mcp                                     # MCP tools on stdio
//	domheal -config domheal.yaml -mcp
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/domheal/browser"
	"github.com/hazyhaar/domheal/config"
	"github.com/hazyhaar/domheal/fixture"
	"github.com/hazyhaar/domheal/heal"
	"github.com/hazyhaar/domheal/journal"
	"github.com/hazyhaar/domheal/pilot"
	"github.com/hazyhaar/domheal/retrier"
)

const version = "0.1.0"

func main() {
	configPath := flag.String("config", "", "path to domheal.yaml")
	serve := flag.Bool("serve", false, "serve the fixture pages")
	watchURL := flag.String("url", "", "watch elements on this URL")
	var selectors []string
	flag.Func("selector", "selector to watch (repeatable)", func(s string) error {
		selectors = append(selectors, s)
		return nil
	})
	runMCP := flag.Bool("mcp", false, "serve pilot tools over MCP stdio")
	strictness := flag.String("strictness", "", "override origin strictness")
	logLevel := flag.String("log-level", "", "log level: debug, info, warn, error")
	flag.Parse()

	cfg := config.Default()
	if *configPath != "" {
		var err error
		if cfg, err = config.LoadFile(*configPath); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(2)
		}
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}
	if *strictness != "" {
		s, err := heal.ParseStrictness(*strictness)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(2)
		}
		cfg.Strictness = s
	}
	if *watchURL != "" {
		cfg.Watch.URL = *watchURL
	}
	if len(selectors) > 0 {
		cfg.Watch.Selectors = selectors
	}

	level, err := cfg.Level()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch {
	case *serve:
		err = runServe(ctx, logger, cfg)
	case *runMCP:
		err = runPilot(ctx, logger, cfg)
	case cfg.Watch.URL != "":
		err = runWatch(ctx, logger, cfg)
	default:
		fmt.Fprintln(os.Stderr, "usage: domheal -serve | -url <url> -selector <sel> | -mcp [-config <file>]")
		os.Exit(2)
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("domheal: fatal", "error", err)
		os.Exit(1)
	}
}

func runServe(ctx context.Context, logger *slog.Logger, cfg *config.Config) error {
	srv := &http.Server{
		Addr:              cfg.Fixture.Addr,
		Handler:           fixture.NewRouter(cfg.FixtureRouter(logger)),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		logger.Info("fixture: listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("fixture: shutdown", "error", err)
	}
	logger.Info("fixture: stopped")
	return nil
}

// session bundles what both the watch and pilot modes run on.
type session struct {
	mgr     *browser.Manager
	tab     *browser.Tab
	driver  *heal.Driver
	journal *journal.Journal
	close   func()
}

func openSession(ctx context.Context, logger *slog.Logger, cfg *config.Config, name, pageURL string) (*session, error) {
	j, closeJournal, err := openJournal(ctx, logger, cfg, name)
	if err != nil {
		return nil, err
	}

	mgr := browser.NewManager(cfg.BrowserManager(logger))
	if err := mgr.Start(ctx); err != nil {
		closeJournal()
		return nil, fmt.Errorf("browser: start: %w", err)
	}
	tab, err := browser.OpenTab(ctx, mgr, pageURL)
	if err != nil {
		mgr.Close()
		closeJournal()
		return nil, err
	}

	sinks := []heal.Sink{heal.LogSink(logger)}
	if j != nil {
		sinks = append(sinks, j)
	}
	d := heal.NewDriver(tab, heal.Options{
		Strictness: cfg.Strictness,
		Sink:       heal.MultiSink(sinks...),
		Logger:     logger,
	})

	return &session{
		mgr:     mgr,
		tab:     tab,
		driver:  d,
		journal: j,
		close: func() {
			tab.Close()
			mgr.Close()
			closeJournal()
		},
	}, nil
}

// openJournal opens the journal when a path is configured and starts the
// retention sweep. A nil journal means journaling is off.
func openJournal(ctx context.Context, logger *slog.Logger, cfg *config.Config, name string) (*journal.Journal, func(), error) {
	if cfg.Journal.Path == "" {
		return nil, func() {}, nil
	}
	db, err := journal.Open(cfg.Journal.Path, journal.WithMkdirAll())
	if err != nil {
		return nil, nil, err
	}
	j := journal.New(db, journal.WithSession(name), journal.WithLogger(logger))

	if cfg.Journal.Retention > 0 {
		go sweep(ctx, logger, j, cfg.Journal.Retention)
	}
	return j, func() { db.Close() }, nil
}

func sweep(ctx context.Context, logger *slog.Logger, j *journal.Journal, retention time.Duration) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		n, err := j.Cleanup(ctx, retention)
		if err != nil {
			logger.Warn("journal: cleanup", "error", err)
		} else if n > 0 {
			logger.Info("journal: cleanup", "deleted", n)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func runWatch(ctx context.Context, logger *slog.Logger, cfg *config.Config) error {
	if len(cfg.Watch.Selectors) == 0 {
		return fmt.Errorf("watch: no selectors")
	}
	s, err := openSession(ctx, logger, cfg, "watch", cfg.Watch.URL)
	if err != nil {
		return err
	}
	defer s.close()

	r := retrier.New(cfg.Retrier(logger))
	w, err := newWatcher(ctx, s.driver, r, cfg.Watch.Selectors, os.Stdout, logger)
	if err != nil {
		return err
	}
	logger.Info("watch: started", "url", cfg.Watch.URL, "selectors", strings.Join(cfg.Watch.Selectors, ","))
	return w.Run(ctx, cfg.Watch.Interval)
}

func runPilot(ctx context.Context, logger *slog.Logger, cfg *config.Config) error {
	s, err := openSession(ctx, logger, cfg, "mcp", cfg.Watch.URL)
	if err != nil {
		return err
	}
	defer s.close()

	p, err := pilot.New(pilot.Config{
		Driver:  s.driver,
		Journal: s.journal,
		Retrier: retrier.New(cfg.Retrier(logger)),

		CallTimeout:       cfg.Pilot.CallTimeout,
		MaxHandles:        cfg.Pilot.MaxHandles,
		AllowPrivateHosts: cfg.Pilot.AllowPrivateHosts,
		Logger:            logger,
	})
	if err != nil {
		return err
	}

	srv := mcp.NewServer(&mcp.Implementation{Name: "domheal", Version: version}, nil)
	p.RegisterMCP(srv)
	logger.Info("mcp: serving on stdio")
	return srv.Run(ctx, &mcp.StdioTransport{})
}
