package risk

import "time"

type EventKind string

const (
	EventOpened EventKind = "opened"
	EventClosed EventKind = "closed"
)

// Event describes a lifecycle transition. Position is a snapshot taken
// inside the critical section.
type Event struct {
	Kind     EventKind
	Position Position
	Reason   string
	Time     time.Time
}

// EventSink receives events while the engine lock is held, in the order the
// ledger changed. Publish must not block on I/O or call back into the
// engine; hand the event to a worker instead.
type EventSink interface {
	Publish(Event)
}

// EventSinkFunc adapts a function to EventSink.
type EventSinkFunc func(Event)

func (f EventSinkFunc) Publish(ev Event) { f(ev) }
