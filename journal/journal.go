package journal

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/hazyhaar/domheal/heal"
)

// Entry is one recorded event.
type Entry struct {
	ID       string         `json:"id"`
	Session  string         `json:"session,omitempty"`
	Kind     heal.EventKind `json:"kind"`
	Label    string         `json:"label"`
	Location string         `json:"location,omitempty"`
	At       time.Time      `json:"at"`
}

// Journal is a heal.Sink writing events to SQLite.
type Journal struct {
	db      *sql.DB
	session string
	timeout time.Duration
	logger  *slog.Logger
	newID   func() string
	now     func() time.Time
}

// Option configures a Journal.
type Option func(*Journal)

// WithSession tags every event written by this journal.
func WithSession(name string) Option { return func(j *Journal) { j.session = name } }

// WithLogger sets where write failures are reported. Default: slog.Default().
func WithLogger(l *slog.Logger) Option { return func(j *Journal) { j.logger = l } }

// WithWriteTimeout bounds each Emit. Default: 2s.
func WithWriteTimeout(d time.Duration) Option { return func(j *Journal) { j.timeout = d } }

// WithIDGenerator replaces the UUIDv7 event id generator.
func WithIDGenerator(gen func() string) Option { return func(j *Journal) { j.newID = gen } }

// New creates a Journal on a database opened with Open (or initialised with Init).
func New(db *sql.DB, opts ...Option) *Journal {
	j := &Journal{
		db:      db,
		timeout: 2 * time.Second,
		logger:  slog.Default(),
		newID:   newUUIDv7,
		now:     time.Now,
	}
	for _, o := range opts {
		o(j)
	}
	return j
}

// Session returns a journal on the same database tagged with name.
func (j *Journal) Session(name string) *Journal {
	c := *j
	c.session = name
	return &c
}

// Emit records e. Failures are logged, never returned, so a broken journal
// cannot fail the operation being diagnosed.
func (j *Journal) Emit(e heal.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()
	if err := j.Record(ctx, e); err != nil {
		j.logger.Error("journal: write failed", "error", err, "kind", e.Kind, "label", e.Label)
	}
}

// Record writes e and reports the outcome.
func (j *Journal) Record(ctx context.Context, e heal.Event) error {
	_, err := exec(ctx, j.db, `
		INSERT INTO heal_events (event_id, session, kind, label, location, created_at)
		VALUES (?,?,?,?,?,?)`,
		j.newID(), j.session, string(e.Kind), e.Label, e.Location, j.now().UnixMilli())
	if err != nil {
		return fmt.Errorf("journal: insert: %w", err)
	}
	return nil
}

// Filter narrows Recent and Counts. Zero fields match everything.
type Filter struct {
	Session string
	Kind    heal.EventKind
	Since   time.Time
}

func (f Filter) where() (string, []any) {
	q := " WHERE 1=1"
	var args []any
	if f.Session != "" {
		q += " AND session = ?"
		args = append(args, f.Session)
	}
	if f.Kind != "" {
		q += " AND kind = ?"
		args = append(args, string(f.Kind))
	}
	if !f.Since.IsZero() {
		q += " AND created_at >= ?"
		args = append(args, f.Since.UnixMilli())
	}
	return q, args
}

// Recent returns up to limit matching entries, newest first.
func (j *Journal) Recent(ctx context.Context, f Filter, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	where, args := f.where()
	rows, err := j.db.QueryContext(ctx,
		`SELECT event_id, session, kind, label, location, created_at FROM heal_events`+
			where+` ORDER BY created_at DESC, event_id DESC LIMIT ?`,
		append(args, limit)...)
	if err != nil {
		return nil, fmt.Errorf("journal: recent: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		var kind string
		var ms int64
		if err := rows.Scan(&e.ID, &e.Session, &kind, &e.Label, &e.Location, &ms); err != nil {
			return nil, fmt.Errorf("journal: scan: %w", err)
		}
		e.Kind = heal.EventKind(kind)
		e.At = time.UnixMilli(ms)
		out = append(out, e)
	}
	return out, rows.Err()
}

// Counts returns the number of matching entries per kind.
func (j *Journal) Counts(ctx context.Context, f Filter) (map[heal.EventKind]int, error) {
	where, args := f.where()
	rows, err := j.db.QueryContext(ctx,
		`SELECT kind, COUNT(*) FROM heal_events`+where+` GROUP BY kind`, args...)
	if err != nil {
		return nil, fmt.Errorf("journal: counts: %w", err)
	}
	defer rows.Close()

	out := make(map[heal.EventKind]int)
	for rows.Next() {
		var kind string
		var n int
		if err := rows.Scan(&kind, &n); err != nil {
			return nil, fmt.Errorf("journal: scan: %w", err)
		}
		out[heal.EventKind(kind)] = n
	}
	return out, rows.Err()
}

// Cleanup deletes entries older than maxAge and returns how many went.
func (j *Journal) Cleanup(ctx context.Context, maxAge time.Duration) (int64, error) {
	cutoff := j.now().Add(-maxAge).UnixMilli()
	res, err := exec(ctx, j.db, `DELETE FROM heal_events WHERE created_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("journal: cleanup: %w", err)
	}
	return res.RowsAffected()
}

func newUUIDv7() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

var _ heal.Sink = (*Journal)(nil)
