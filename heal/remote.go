package heal

import "context"

// Finder runs selector lookups. Both sessions and remote objects are finders.
// FindOne returns an error matching ErrNotFound when nothing matches;
// FindMany returns an empty slice.
type Finder interface {
	FindOne(ctx context.Context, sel Selector) (Object, error)
	FindMany(ctx context.Context, sel Selector) ([]Object, error)
}

// Session is the root of a remote object graph. It cannot go stale.
type Session interface {
	Finder
}

// Locator is implemented by sessions that can report where they are.
type Locator interface {
	CurrentLocation(ctx context.Context) (string, error)
}

// ScriptRunner is implemented by sessions that can evaluate script, either
// globally or with an object bound as the receiver.
type ScriptRunner interface {
	Eval(ctx context.Context, js string, args ...any) (any, error)
	EvalOn(ctx context.Context, obj Object, js string, args ...any) (any, error)
}

// Rect is an element's position and size in CSS pixels.
type Rect struct {
	X, Y          float64
	Width, Height float64
}

// Object is a remote object reference. Any method may fail with an error
// matching ErrStale once the remote side has invalidated it.
type Object interface {
	Finder

	Text(ctx context.Context) (string, error)
	TagName(ctx context.Context) (string, error)
	HTML(ctx context.Context) (string, error)
	// Attribute returns the attribute value and whether it is present.
	Attribute(ctx context.Context, name string) (string, bool, error)
	CSSValue(ctx context.Context, property string) (string, error)
	Enabled(ctx context.Context) (bool, error)
	Selected(ctx context.Context) (bool, error)
	Displayed(ctx context.Context) (bool, error)
	Rect(ctx context.Context) (Rect, error)

	Click(ctx context.Context) error
	Clear(ctx context.Context) error
	Input(ctx context.Context, text string) error
	Submit(ctx context.Context) error
}
