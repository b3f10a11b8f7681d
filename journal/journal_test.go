package journal

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/hazyhaar/domheal/heal"
)

// clock returns a journal whose clock advances one second per event.
func clock(t *testing.T, opts ...Option) *Journal {
	t.Helper()
	j := New(OpenMemory(t), opts...)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	n := 0
	j.now = func() time.Time {
		n++
		return base.Add(time.Duration(n) * time.Second)
	}
	return j
}

func TestEmitAndRecent(t *testing.T) {
	ctx := context.Background()
	j := clock(t, WithSession("s1"))

	j.Emit(heal.Event{Kind: heal.EventResolving, Label: "css:#bottom"})
	j.Emit(heal.Event{Kind: heal.EventStale, Label: "css:#bottom"})
	j.Emit(heal.Event{Kind: heal.EventRejected, Label: "css:#bottom", Location: "http://h/?a=2"})

	got, err := j.Recent(ctx, Filter{}, 10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("Recent: got %d entries, want 3", len(got))
	}
	if got[0].Kind != heal.EventRejected || got[0].Location != "http://h/?a=2" {
		t.Fatalf("newest: got %+v", got[0])
	}
	if got[2].Kind != heal.EventResolving {
		t.Fatalf("oldest: got %+v", got[2])
	}
	if got[0].Session != "s1" || got[0].ID == "" {
		t.Fatalf("session/id: got %+v", got[0])
	}
}

func TestRecent_Limit(t *testing.T) {
	j := clock(t)
	for i := range 5 {
		j.Emit(heal.Event{Kind: heal.EventStale, Label: fmt.Sprintf("e%d", i)})
	}
	got, err := j.Recent(context.Background(), Filter{}, 2)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(got) != 2 || got[0].Label != "e4" || got[1].Label != "e3" {
		t.Fatalf("Recent(2): got %+v", got)
	}
}

func TestCountsAndFilter(t *testing.T) {
	ctx := context.Background()
	j := clock(t)
	a := j.Session("a")
	b := j.Session("b")

	a.Emit(heal.Event{Kind: heal.EventResolving, Label: "x"})
	a.Emit(heal.Event{Kind: heal.EventStale, Label: "x"})
	a.Emit(heal.Event{Kind: heal.EventResolving, Label: "x"})
	b.Emit(heal.Event{Kind: heal.EventResolving, Label: "y"})

	all, err := j.Counts(ctx, Filter{})
	if err != nil {
		t.Fatalf("Counts: %v", err)
	}
	if all[heal.EventResolving] != 3 || all[heal.EventStale] != 1 {
		t.Fatalf("Counts: got %v", all)
	}

	onlyA, err := j.Counts(ctx, Filter{Session: "a", Kind: heal.EventResolving})
	if err != nil {
		t.Fatalf("Counts(a): %v", err)
	}
	if len(onlyA) != 1 || onlyA[heal.EventResolving] != 2 {
		t.Fatalf("Counts(a, resolving): got %v", onlyA)
	}
}

func TestFilterSince(t *testing.T) {
	ctx := context.Background()
	j := clock(t)
	for range 3 {
		j.Emit(heal.Event{Kind: heal.EventStale, Label: "z"})
	}
	since := time.Date(2026, 3, 1, 12, 0, 2, 0, time.UTC)
	got, err := j.Recent(ctx, Filter{Since: since}, 0)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("Recent since: got %d, want 2", len(got))
	}
}

func TestCleanup(t *testing.T) {
	// WHAT: Cleanup removes entries older than the retention window only.
	ctx := context.Background()
	j := clock(t)
	for range 3 {
		j.Emit(heal.Event{Kind: heal.EventStale, Label: "old"})
	}
	// Clock is now at +4s on the next call; keep the last 2 seconds.
	n, err := j.Cleanup(ctx, 2*time.Second)
	if err != nil {
		t.Fatalf("Cleanup: %v", err)
	}
	if n != 1 {
		t.Fatalf("Cleanup: deleted %d, want 1", n)
	}
}

func TestEmit_FailureIsSwallowed(t *testing.T) {
	// WHAT: Emit on a closed database logs and returns.
	// WHY: Diagnostics must never fail the operation they describe.
	db, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	j := New(db)
	db.Close()
	j.Emit(heal.Event{Kind: heal.EventStale, Label: "x"})

	if err := j.Record(context.Background(), heal.Event{Kind: heal.EventStale}); err == nil {
		t.Fatal("Record on closed db: expected error")
	}
}

func TestOpen_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "journal.db")
	db, err := Open(path, WithMkdirAll(), WithBusyTimeout(500))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer db.Close()

	var mode string
	if err := db.QueryRow("PRAGMA journal_mode").Scan(&mode); err != nil {
		t.Fatalf("journal_mode: %v", err)
	}
	if mode != "wal" {
		t.Fatalf("journal_mode: got %q, want wal", mode)
	}
	if err := Init(db); err != nil {
		t.Fatalf("Init twice: %v", err)
	}
}

func TestIsBusy(t *testing.T) {
	if !IsBusy(fmt.Errorf("exec: database is locked (5) (SQLITE_BUSY)")) {
		t.Error("IsBusy(locked): got false")
	}
	if IsBusy(nil) || IsBusy(fmt.Errorf("no such table")) {
		t.Error("IsBusy: false positive")
	}
}

func TestJournalInMultiSink(t *testing.T) {
	ctx := context.Background()
	j := clock(t, WithSession("drv"))
	sink := heal.MultiSink(j, heal.NopSink)
	sink.Emit(heal.Event{Kind: heal.EventStale, Label: "css:#a"})

	got, err := j.Counts(ctx, Filter{Session: "drv"})
	if err != nil || got[heal.EventStale] != 1 {
		t.Fatalf("Counts: got %v, %v", got, err)
	}
}
