package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/hazyhaar/domheal/heal"
	"github.com/hazyhaar/domheal/retrier"
)

// change is one line of watch output.
type change struct {
	Label string    `json:"label"`
	Text  string    `json:"text"`
	At    time.Time `json:"at"`
}

// watcher follows the text of a fixed set of handles and writes a JSON line
// whenever one changes.
type watcher struct {
	handles []*heal.Handle
	last    map[*heal.Handle]string
	enc     *json.Encoder
	logger  *slog.Logger
	now     func() time.Time
}

// newWatcher resolves every selector, waiting for each to appear within the
// retrier's timeout.
func newWatcher(ctx context.Context, d *heal.Driver, r *retrier.Retrier, selectors []string, out io.Writer, logger *slog.Logger) (*watcher, error) {
	w := &watcher{
		last:   make(map[*heal.Handle]string),
		enc:    json.NewEncoder(out),
		logger: logger,
		now:    time.Now,
	}
	for _, raw := range selectors {
		sel := heal.ParseSelector(raw)
		var h *heal.Handle
		err := r.Do(retrier.Noop).Until(ctx, func(ctx context.Context) (bool, error) {
			var err error
			h, err = d.Find(ctx, sel)
			if errors.Is(err, heal.ErrNotFound) {
				return false, nil
			}
			return err == nil, err
		})
		if err != nil {
			return nil, fmt.Errorf("watch: %s: %w", sel, err)
		}
		w.handles = append(w.handles, h)
	}
	return w, nil
}

// Run polls every interval until ctx ends.
func (w *watcher) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if err := w.poll(ctx); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// poll reads every handle once. Read failures are logged and skipped;
// only output errors stop the watcher.
func (w *watcher) poll(ctx context.Context) error {
	for _, h := range w.handles {
		txt, err := h.Text(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			w.logger.Warn("watch: read failed", "label", h.Label(), "error", err)
			continue
		}
		if prev, ok := w.last[h]; ok && prev == txt {
			continue
		}
		w.last[h] = txt
		if err := w.enc.Encode(change{Label: h.Label(), Text: txt, At: w.now()}); err != nil {
			return fmt.Errorf("watch: write: %w", err)
		}
	}
	return nil
}
