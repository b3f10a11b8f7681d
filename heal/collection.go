package heal

import (
	"context"
	"errors"
	"fmt"
)

// ErrOutOfRange is returned by Collection.At for an index past the end of
// the current enumeration.
var ErrOutOfRange = errors.New("heal: index out of range")

// Collection is a read-only sequence whose items are produced by a query
// run afresh on every read. Two reads at different times may disagree on
// length and contents; a single read sees one consistent result.
type Collection[T any] struct {
	query func(context.Context) ([]T, error)
}

// NewCollection returns a collection backed by query.
func NewCollection[T any](query func(context.Context) ([]T, error)) *Collection[T] {
	return &Collection[T]{query: query}
}

// Snapshot runs the query once and returns its result.
func (c *Collection[T]) Snapshot(ctx context.Context) ([]T, error) {
	return c.query(ctx)
}

// Len runs the query and returns the number of items.
func (c *Collection[T]) Len(ctx context.Context) (int, error) {
	items, err := c.query(ctx)
	if err != nil {
		return 0, err
	}
	return len(items), nil
}

// At runs the query and returns the item at index i.
func (c *Collection[T]) At(ctx context.Context, i int) (T, error) {
	var zero T
	items, err := c.query(ctx)
	if err != nil {
		return zero, err
	}
	if i < 0 || i >= len(items) {
		return zero, fmt.Errorf("%w: %d of %d", ErrOutOfRange, i, len(items))
	}
	return items[i], nil
}

// Each runs the query once and calls fn for every item until fn returns an
// error.
func (c *Collection[T]) Each(ctx context.Context, fn func(i int, v T) error) error {
	items, err := c.query(ctx)
	if err != nil {
		return err
	}
	for i, v := range items {
		if err := fn(i, v); err != nil {
			return err
		}
	}
	return nil
}

// IndexOf runs the query and returns the index of the first item matching,
// or -1.
func (c *Collection[T]) IndexOf(ctx context.Context, match func(T) bool) (int, error) {
	items, err := c.query(ctx)
	if err != nil {
		return -1, err
	}
	for i, v := range items {
		if match(v) {
			return i, nil
		}
	}
	return -1, nil
}

// Contains runs the query and reports whether any item matches.
func (c *Collection[T]) Contains(ctx context.Context, match func(T) bool) (bool, error) {
	i, err := c.IndexOf(ctx, match)
	return i >= 0, err
}
