package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/hazyhaar/domheal/fakedom"
	"github.com/hazyhaar/domheal/heal"
	"github.com/hazyhaar/domheal/retrier"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []change {
	t.Helper()
	var out []change
	dec := json.NewDecoder(buf)
	for dec.More() {
		var c change
		if err := dec.Decode(&c); err != nil {
			t.Fatalf("decode: %v", err)
		}
		out = append(out, c)
	}
	return out
}

func TestWatcher_ReportsChangesOnly(t *testing.T) {
	// WHAT: The watcher prints a line on first read and on every change, nothing else.
	// WHY: Its output is the feed a user tails while the page rebuilds.
	ctx := context.Background()
	s, err := fakedom.New("http://x.test/", `<div id="c"><p id="v">one</p></div>`)
	if err != nil {
		t.Fatal(err)
	}
	d := heal.NewDriver(s, heal.Options{})
	var buf bytes.Buffer
	w, err := newWatcher(ctx, d, retrier.New(retrier.Options{}), []string{"#v"}, &buf, slog.Default())
	if err != nil {
		t.Fatalf("newWatcher: %v", err)
	}

	w.poll(ctx)
	w.poll(ctx)
	s.SetChildren("#c", `<p id="v">two</p>`)
	w.poll(ctx)

	lines := decodeLines(t, &buf)
	if len(lines) != 2 {
		t.Fatalf("lines: got %d, want 2", len(lines))
	}
	if lines[0].Text != "one" || lines[1].Text != "two" || lines[1].Label != "css:#v" {
		t.Fatalf("lines: got %+v", lines)
	}
}

func TestWatcher_WaitsForSelector(t *testing.T) {
	ctx := context.Background()
	s, _ := fakedom.New("http://x.test/", `<div id="c"></div>`)
	d := heal.NewDriver(s, heal.Options{})

	go func() {
		time.Sleep(20 * time.Millisecond)
		s.Append("#c", `<span id="late">here</span>`)
	}()
	r := retrier.New(retrier.Options{Interval: 5 * time.Millisecond, Timeout: time.Second})
	if _, err := newWatcher(ctx, d, r, []string{"id:late"}, &bytes.Buffer{}, slog.Default()); err != nil {
		t.Fatalf("newWatcher: %v", err)
	}
}

func TestWatcher_MissingSelectorTimesOut(t *testing.T) {
	ctx := context.Background()
	s, _ := fakedom.New("http://x.test/", `<div></div>`)
	d := heal.NewDriver(s, heal.Options{})
	r := retrier.New(retrier.Options{Interval: time.Millisecond, Timeout: 20 * time.Millisecond})

	_, err := newWatcher(ctx, d, r, []string{"#nope"}, &bytes.Buffer{}, slog.Default())
	if !errors.Is(err, retrier.ErrTimedOut) {
		t.Fatalf("newWatcher: got %v, want ErrTimedOut", err)
	}
	if !strings.Contains(err.Error(), "css:#nope") {
		t.Fatalf("error lacks selector: %v", err)
	}
}

func TestWatcher_ReadErrorsAreSkipped(t *testing.T) {
	ctx := context.Background()
	s, _ := fakedom.New("http://x.test/", `<div id="c"><p id="v">one</p></div>`)
	d := heal.NewDriver(s, heal.Options{})
	var buf bytes.Buffer
	w, err := newWatcher(ctx, d, retrier.New(retrier.Options{}), []string{"#v"}, &buf, slog.Default())
	if err != nil {
		t.Fatalf("newWatcher: %v", err)
	}
	w.poll(ctx)

	s.Remove("#v")
	shortCtx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	err = w.poll(shortCtx)
	if err != nil && !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("poll after remove: got %v", err)
	}
	if got := len(decodeLines(t, &buf)); got != 1 {
		t.Fatalf("lines: got %d, want 1", got)
	}
}
