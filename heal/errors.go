package heal

import (
	"errors"
	"fmt"
)

// ErrStale is matched (via errors.Is) by any error a remote object returns
// when it is no longer addressable. Session implementations wrap their
// driver-specific failure with it.
var ErrStale = errors.New("heal: stale reference")

// ErrNotFound is returned by sessions when a single lookup matches nothing.
var ErrNotFound = errors.New("heal: no matching object")

// IsStale reports whether err signals a stale remote reference.
func IsStale(err error) bool {
	return errors.Is(err, ErrStale)
}

// InconsistentOriginError is returned when a handle was re-resolved while the
// session sits on a location the active strictness considers a different
// page. The replacement object is discarded.
type InconsistentOriginError struct {
	Label      string
	Recorded   string
	Current    string
	Strictness Strictness
}

func (e *InconsistentOriginError) Error() string {
	return fmt.Sprintf("heal: %s re-resolved on %q but was first resolved on %q (strictness %s)",
		e.Label, e.Current, e.Recorded, e.Strictness)
}

// UnsupportedError is returned when a capability is invoked on a scope that
// does not provide it.
type UnsupportedError struct {
	Label      string
	Capability string
}

func (e *UnsupportedError) Error() string {
	if e.Label == "" {
		return fmt.Sprintf("heal: %s not supported by session", e.Capability)
	}
	return fmt.Sprintf("heal: %s not supported for %s", e.Capability, e.Label)
}

// PositionGoneError is returned when a handle obtained from a multi-find is
// re-resolved and the collection no longer has an element at its ordinal.
type PositionGoneError struct {
	Label string
	Index int
	Count int
}

func (e *PositionGoneError) Error() string {
	return fmt.Sprintf("heal: %s[%d] no longer exists (%d matches)", e.Label, e.Index, e.Count)
}
