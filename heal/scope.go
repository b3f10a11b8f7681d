package heal

import "context"

// scope is anything a selector lookup can be replayed against: the Driver
// or a Handle. Lookups return raw session objects; wrapping happens in
// findOne and findAll.
type scope interface {
	lookupOne(ctx context.Context, sel Selector) (Object, error)
	lookupMany(ctx context.Context, sel Selector) ([]Object, error)
}

func findOne(ctx context.Context, d *Driver, sc scope, sel Selector) (*Handle, error) {
	obj, err := sc.lookupOne(ctx, sel)
	if err != nil {
		return nil, err
	}
	fp, err := d.fingerprint(ctx)
	if err != nil {
		return nil, err
	}
	recipe := func(ctx context.Context) (Object, error) {
		return sc.lookupOne(ctx, sel)
	}
	return newHandle(d, sc, sel, -1, obj, fp, recipe), nil
}

// findAll binds handles to their ordinal position. After a remote reorder a
// re-resolved handle follows the position, not the content it first had.
func findAll(d *Driver, sc scope, sel Selector) *Collection[*Handle] {
	return NewCollection(func(ctx context.Context) ([]*Handle, error) {
		objs, err := sc.lookupMany(ctx, sel)
		if err != nil {
			return nil, err
		}
		if len(objs) == 0 {
			return nil, nil
		}
		fp, err := d.fingerprint(ctx)
		if err != nil {
			return nil, err
		}
		handles := make([]*Handle, len(objs))
		for i, obj := range objs {
			handles[i] = newHandle(d, sc, sel, i, obj, fp, positionalRecipe(sc, sel, i))
		}
		return handles, nil
	})
}

func positionalRecipe(sc scope, sel Selector, index int) func(context.Context) (Object, error) {
	return func(ctx context.Context) (Object, error) {
		objs, err := sc.lookupMany(ctx, sel)
		if err != nil {
			return nil, err
		}
		if index >= len(objs) {
			return nil, &PositionGoneError{Label: sel.String(), Index: index, Count: len(objs)}
		}
		return objs[index], nil
	}
}

func asObjects(ctx context.Context, c *Collection[*Handle]) ([]Object, error) {
	handles, err := c.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Object, len(handles))
	for i, h := range handles {
		out[i] = h
	}
	return out, nil
}
