package heal

import (
	"context"
	"fmt"
	"log/slog"
)

// EventKind classifies diagnostic events.
type EventKind string

const (
	EventResolving EventKind = "resolving"
	EventStale     EventKind = "stale"
	EventRejected  EventKind = "origin_rejected"
)

// Event is one diagnostic record emitted by the proxy.
type Event struct {
	Kind     EventKind
	Label    string
	Location string
}

func (e Event) String() string {
	switch e.Kind {
	case EventResolving:
		return fmt.Sprintf("resolving `%s`", e.Label)
	case EventStale:
		return fmt.Sprintf("`%s` is stale", e.Label)
	case EventRejected:
		return fmt.Sprintf("`%s` rejected on %s", e.Label, e.Location)
	}
	return fmt.Sprintf("%s `%s`", e.Kind, e.Label)
}

// Sink receives diagnostic events. Emit must not block for long and must
// not panic; its outcome never affects the operation being diagnosed.
type Sink interface {
	Emit(Event)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(Event)

func (f SinkFunc) Emit(e Event) { f(e) }

// NopSink discards every event.
var NopSink Sink = SinkFunc(func(Event) {})

// LogSink routes events to logger at debug level.
func LogSink(logger *slog.Logger) Sink {
	return SinkFunc(func(e Event) {
		logger.LogAttrs(context.Background(), slog.LevelDebug, "heal: "+e.String(),
			slog.String("kind", string(e.Kind)),
			slog.String("label", e.Label))
	})
}

// MultiSink fans events out to every sink.
func MultiSink(sinks ...Sink) Sink {
	return SinkFunc(func(e Event) {
		for _, s := range sinks {
			s.Emit(e)
		}
	})
}
