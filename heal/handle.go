package heal

import (
	"context"
	"fmt"
	"sync"
)

// Handle is a self-healing reference to one remote object. It implements
// Object, so it can be passed wherever a raw session object is expected, and
// it is a scope for nested lookups.
//
// A Handle is never recreated: the object behind it is replaced each time
// it goes stale, while the Handle itself stays the caller's identity.
type Handle struct {
	driver *Driver
	parent scope // not owned; used only to replay the lookup
	sel    Selector
	index  int // ordinal within a multi-find, -1 for single lookups
	origin Fingerprint
	recipe func(context.Context) (Object, error)

	mu   sync.Mutex
	slot Object // nil once known stale, until the next resolution
}

func newHandle(d *Driver, parent scope, sel Selector, index int, obj Object, origin Fingerprint, recipe func(context.Context) (Object, error)) *Handle {
	return &Handle{
		driver: d,
		parent: parent,
		sel:    sel,
		index:  index,
		origin: origin,
		recipe: recipe,
		slot:   obj,
	}
}

// Selector returns the selector the handle was found by.
func (h *Handle) Selector() Selector { return h.sel }

// Index returns the ordinal of the handle within the multi-find it came
// from, or -1.
func (h *Handle) Index() int { return h.index }

// Origin returns the fingerprint recorded when the handle was created.
func (h *Handle) Origin() Fingerprint { return h.origin }

// Parent returns the handle this one was found through, or nil when it was
// found against the driver.
func (h *Handle) Parent() *Handle {
	p, _ := h.parent.(*Handle)
	return p
}

// Label is the diagnostic name of the handle.
func (h *Handle) Label() string {
	if h.index >= 0 {
		return fmt.Sprintf("%s[%d]", h.sel, h.index)
	}
	return h.sel.String()
}

func (h *Handle) String() string { return h.Label() }

// Unwrap returns the current remote object, resolving it if needed.
func (h *Handle) Unwrap(ctx context.Context) (Object, error) {
	return h.resolve(ctx)
}

func (h *Handle) current() Object {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.slot
}

func (h *Handle) invalidate() {
	h.mu.Lock()
	h.slot = nil
	h.mu.Unlock()
}

// resolve returns the slot, replaying the recipe when it is empty. The
// replacement is only stored once the origin check accepts it.
func (h *Handle) resolve(ctx context.Context) (Object, error) {
	if obj := h.current(); obj != nil {
		return obj, nil
	}
	h.driver.emit(Event{Kind: EventResolving, Label: h.Label()})
	obj, err := h.recipe(ctx)
	if err != nil {
		return nil, err
	}
	if err := h.driver.checkOrigin(ctx, h); err != nil {
		return nil, err
	}
	h.mu.Lock()
	h.slot = obj
	h.mu.Unlock()
	return obj, nil
}

// Nested lookups run through interact: the handle itself may be stale at
// lookup time.

func (h *Handle) lookupOne(ctx context.Context, sel Selector) (Object, error) {
	return interact(ctx, h, func(ctx context.Context, o Object) (Object, error) {
		return o.FindOne(ctx, sel)
	})
}

func (h *Handle) lookupMany(ctx context.Context, sel Selector) ([]Object, error) {
	return interact(ctx, h, func(ctx context.Context, o Object) ([]Object, error) {
		return o.FindMany(ctx, sel)
	})
}

// Find looks up a single descendant.
func (h *Handle) Find(ctx context.Context, sel Selector) (*Handle, error) {
	return findOne(ctx, h.driver, h, sel)
}

// FindAll returns a lazy collection of matching descendants.
func (h *Handle) FindAll(sel Selector) *Collection[*Handle] {
	return findAll(h.driver, h, sel)
}

// FindOne implements Finder.
func (h *Handle) FindOne(ctx context.Context, sel Selector) (Object, error) {
	c, err := h.Find(ctx, sel)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// FindMany implements Finder with a single enumeration of FindAll.
func (h *Handle) FindMany(ctx context.Context, sel Selector) ([]Object, error) {
	return asObjects(ctx, h.FindAll(sel))
}

func (h *Handle) Text(ctx context.Context) (string, error) {
	return interact(ctx, h, func(ctx context.Context, o Object) (string, error) { return o.Text(ctx) })
}

func (h *Handle) TagName(ctx context.Context) (string, error) {
	return interact(ctx, h, func(ctx context.Context, o Object) (string, error) { return o.TagName(ctx) })
}

func (h *Handle) HTML(ctx context.Context) (string, error) {
	return interact(ctx, h, func(ctx context.Context, o Object) (string, error) { return o.HTML(ctx) })
}

type attrValue struct {
	value string
	ok    bool
}

func (h *Handle) Attribute(ctx context.Context, name string) (string, bool, error) {
	v, err := interact(ctx, h, func(ctx context.Context, o Object) (attrValue, error) {
		s, ok, err := o.Attribute(ctx, name)
		return attrValue{s, ok}, err
	})
	return v.value, v.ok, err
}

func (h *Handle) CSSValue(ctx context.Context, property string) (string, error) {
	return interact(ctx, h, func(ctx context.Context, o Object) (string, error) { return o.CSSValue(ctx, property) })
}

func (h *Handle) Enabled(ctx context.Context) (bool, error) {
	return interact(ctx, h, func(ctx context.Context, o Object) (bool, error) { return o.Enabled(ctx) })
}

func (h *Handle) Selected(ctx context.Context) (bool, error) {
	return interact(ctx, h, func(ctx context.Context, o Object) (bool, error) { return o.Selected(ctx) })
}

func (h *Handle) Displayed(ctx context.Context) (bool, error) {
	return interact(ctx, h, func(ctx context.Context, o Object) (bool, error) { return o.Displayed(ctx) })
}

func (h *Handle) Rect(ctx context.Context) (Rect, error) {
	return interact(ctx, h, func(ctx context.Context, o Object) (Rect, error) { return o.Rect(ctx) })
}

func (h *Handle) Click(ctx context.Context) error {
	return do(ctx, h, func(ctx context.Context, o Object) error { return o.Click(ctx) })
}

func (h *Handle) Clear(ctx context.Context) error {
	return do(ctx, h, func(ctx context.Context, o Object) error { return o.Clear(ctx) })
}

func (h *Handle) Input(ctx context.Context, text string) error {
	return do(ctx, h, func(ctx context.Context, o Object) error { return o.Input(ctx, text) })
}

func (h *Handle) Submit(ctx context.Context) error {
	return do(ctx, h, func(ctx context.Context, o Object) error { return o.Submit(ctx) })
}

// Eval evaluates js with the handle's current object bound as receiver.
func (h *Handle) Eval(ctx context.Context, js string, args ...any) (any, error) {
	if h.driver.script == nil {
		return nil, &UnsupportedError{Label: h.Label(), Capability: "script"}
	}
	return interact(ctx, h, func(ctx context.Context, o Object) (any, error) {
		return h.driver.script.EvalOn(ctx, o, js, args...)
	})
}

var _ Object = (*Handle)(nil)
var _ Session = (*Driver)(nil)
