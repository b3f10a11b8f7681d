// Package heal wraps remote object references (DOM elements reached through
// a browser driver) in handles that survive the remote side recreating them.
//
// Every handle remembers how it was found: a lookup relative to its parent
// scope. When an operation on a handle fails with a stale-reference error,
// the lookup is replayed, the session location is checked against the one
// recorded when the handle was created, and the operation is retried against
// the fresh reference.
//
//	d := heal.NewDriver(session, heal.Options{Strictness: heal.ExactMatch})
//	bottom, err := d.Find(ctx, heal.ID("bottom"))
//	text, err := bottom.Text(ctx) // transparently re-resolved if stale
package heal

import (
	"context"
	"fmt"
	"log/slog"
)

// Options configures a Driver.
type Options struct {
	// Strictness applied when a stale handle is re-resolved.
	// Default: AllowNonMatchingAnchorHashes.
	Strictness Strictness

	// Sink receives diagnostic events. Default: NopSink.
	Sink Sink

	Logger *slog.Logger
}

func (o *Options) defaults() {
	if o.Strictness == 0 {
		o.Strictness = DefaultStrictness
	}
	if o.Sink == nil {
		o.Sink = NopSink
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
}

// Driver is the root scope. Lookups against it go straight to the session,
// which cannot go stale.
type Driver struct {
	session Session
	opts    Options

	// Capabilities resolved once at construction.
	locator Locator
	script  ScriptRunner
}

// NewDriver wraps a session.
func NewDriver(s Session, opts Options) *Driver {
	opts.defaults()
	d := &Driver{session: s, opts: opts}
	d.locator, _ = s.(Locator)
	d.script, _ = s.(ScriptRunner)
	return d
}

// Session returns the wrapped session, for operations that need no healing
// (navigation, window management).
func (d *Driver) Session() Session { return d.session }

// Strictness returns the active origin strictness.
func (d *Driver) Strictness() Strictness { return d.opts.Strictness }

// CanLocate reports whether the session reports its location.
func (d *Driver) CanLocate() bool { return d.locator != nil }

// CanEval reports whether the session evaluates script.
func (d *Driver) CanEval() bool { return d.script != nil }

// Find looks up a single object and wraps it in a Handle.
func (d *Driver) Find(ctx context.Context, sel Selector) (*Handle, error) {
	return findOne(ctx, d, d, sel)
}

// FindAll returns a lazy collection of every object matching sel.
// Nothing is queried until the collection is read.
func (d *Driver) FindAll(sel Selector) *Collection[*Handle] {
	return findAll(d, d, sel)
}

// FindOne implements Finder.
func (d *Driver) FindOne(ctx context.Context, sel Selector) (Object, error) {
	h, err := d.Find(ctx, sel)
	if err != nil {
		return nil, err
	}
	return h, nil
}

// FindMany implements Finder with a single enumeration of FindAll.
func (d *Driver) FindMany(ctx context.Context, sel Selector) ([]Object, error) {
	return asObjects(ctx, d.FindAll(sel))
}

// Location returns the session's current location.
func (d *Driver) Location(ctx context.Context) (string, error) {
	if d.locator == nil {
		return "", &UnsupportedError{Capability: "location"}
	}
	return d.locator.CurrentLocation(ctx)
}

// Eval evaluates script in the session.
func (d *Driver) Eval(ctx context.Context, js string, args ...any) (any, error) {
	if d.script == nil {
		return nil, &UnsupportedError{Capability: "script"}
	}
	return d.script.Eval(ctx, js, args...)
}

func (d *Driver) lookupOne(ctx context.Context, sel Selector) (Object, error) {
	return d.session.FindOne(ctx, sel)
}

func (d *Driver) lookupMany(ctx context.Context, sel Selector) ([]Object, error) {
	return d.session.FindMany(ctx, sel)
}

func (d *Driver) emit(e Event) {
	d.opts.Sink.Emit(e)
}

// fingerprint reads the session location. Sessions without a Locator yield
// an unknown fingerprint.
func (d *Driver) fingerprint(ctx context.Context) (Fingerprint, error) {
	if d.locator == nil {
		return Fingerprint{}, nil
	}
	loc, err := d.locator.CurrentLocation(ctx)
	if err != nil {
		return Fingerprint{}, fmt.Errorf("heal: read location: %w", err)
	}
	return FingerprintOf(loc), nil
}

// checkOrigin validates a re-resolution of h against its recorded origin.
func (d *Driver) checkOrigin(ctx context.Context, h *Handle) error {
	if d.opts.Strictness == DontCheckOrigin || !h.origin.Known {
		return nil
	}
	cur, err := d.fingerprint(ctx)
	if err != nil {
		return err
	}
	if Validate(h.origin, cur, d.opts.Strictness) {
		return nil
	}
	d.emit(Event{Kind: EventRejected, Label: h.Label(), Location: cur.Location})
	d.opts.Logger.Warn("heal: origin changed during re-resolution",
		"label", h.Label(),
		"recorded", h.origin.Location,
		"current", cur.Location,
		"strictness", d.opts.Strictness.String())
	return &InconsistentOriginError{
		Label:      h.Label(),
		Recorded:   h.origin.Location,
		Current:    cur.Location,
		Strictness: d.opts.Strictness,
	}
}
