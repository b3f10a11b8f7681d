package heal

import "context"

// interact runs op against h's current object. If the slot is empty the
// handle is resolved first; a resolution failure is returned unchanged.
// When op fails with a stale reference the slot is cleared, the handle is
// re-resolved and op runs again. There is no retry limit: a stale reference
// is caused by a single remote mutation and the next lookup sees the new
// node. Only ctx bounds the loop. Any other failure is returned as is and
// leaves the slot populated.
func interact[T any](ctx context.Context, h *Handle, op func(context.Context, Object) (T, error)) (T, error) {
	var zero T
	for {
		if err := ctx.Err(); err != nil {
			return zero, err
		}
		obj, err := h.resolve(ctx)
		if err != nil {
			return zero, err
		}
		v, err := op(ctx, obj)
		if err == nil {
			return v, nil
		}
		if !IsStale(err) {
			return zero, err
		}
		h.driver.emit(Event{Kind: EventStale, Label: h.Label()})
		h.invalidate()
	}
}

// do is interact for operations without a result.
func do(ctx context.Context, h *Handle, op func(context.Context, Object) error) error {
	_, err := interact(ctx, h, func(ctx context.Context, o Object) (struct{}, error) {
		return struct{}{}, op(ctx, o)
	})
	return err
}
