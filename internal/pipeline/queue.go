package pipeline

import (
	"sync"

	"github.com/roach88/latch/internal/ir"
	"github.com/roach88/latch/internal/lifecycle"
)

// EventType distinguishes between event kinds.
type EventType int

const (
	// EventFrame delivers one sensor frame to its entity's machine.
	EventFrame EventType = iota + 1
	// EventForceIdle resets an entity to IDLE.
	EventForceIdle
	// EventForceCoast puts an entity into coast.
	EventForceCoast
	// EventConfigure hot-patches config knobs.
	EventConfigure
	// EventReload swaps the rule set and config.
	EventReload
	// EventDrop destroys an entity's machine.
	EventDrop
)

var eventTypeNames = map[EventType]string{
	EventFrame:      "frame",
	EventForceIdle:  "force_idle",
	EventForceCoast: "force_coast",
	EventConfigure:  "configure",
	EventReload:     "reload",
	EventDrop:       "drop",
}

func (t EventType) String() string {
	if name, ok := eventTypeNames[t]; ok {
		return name
	}
	return "unknown"
}

// Event is one unit of work for the Run loop.
//
// Entity is required for frame, force and drop events. Configure and
// reload events with an empty Entity apply to every live entity and to
// entities created later.
type Event struct {
	Type        EventType
	Entity      string
	Frame       ir.SensorFrame
	TimestampMs int64
	Patch       lifecycle.ConfigPatch
	Rules       []ir.RuleSpec
	Config      ir.Config
}

// FrameEvent wraps a frame. The entity comes from frame.Entity.
func FrameEvent(frame ir.SensorFrame) Event {
	return Event{Type: EventFrame, Entity: frame.Entity, Frame: frame, TimestampMs: frame.TimestampMs}
}

// ForceIdleEvent resets entity to IDLE at tsMs.
func ForceIdleEvent(entity string, tsMs int64) Event {
	return Event{Type: EventForceIdle, Entity: entity, TimestampMs: tsMs}
}

// ForceCoastEvent puts entity into coast at tsMs.
func ForceCoastEvent(entity string, tsMs int64) Event {
	return Event{Type: EventForceCoast, Entity: entity, TimestampMs: tsMs}
}

// ConfigureEvent patches entity, or every entity when entity is empty.
func ConfigureEvent(entity string, patch lifecycle.ConfigPatch) Event {
	return Event{Type: EventConfigure, Entity: entity, Patch: patch}
}

// ReloadEvent replaces the rule set and config for every entity.
// Empty rules mean the canonical rules for cfg.
func ReloadEvent(rules []ir.RuleSpec, cfg ir.Config) Event {
	return Event{Type: EventReload, Rules: rules, Config: cfg}
}

// DropEvent destroys entity's machine. A later frame starts a new session.
func DropEvent(entity string) Event {
	return Event{Type: EventDrop, Entity: entity}
}

// eventQueue is a thread-safe unbounded FIFO of events.
//
// Producers (sensor readers, the rule watcher) enqueue from their own
// goroutines while the Pipeline's Run loop is the only consumer. The
// signal channel lets Run wait on the queue and a context together.
type eventQueue struct {
	mu     sync.Mutex
	events []Event
	closed bool
	signal chan struct{} // buffered, size 1
}

func newEventQueue() *eventQueue {
	return &eventQueue{
		events: make([]Event, 0, 64),
		signal: make(chan struct{}, 1),
	}
}

// Enqueue adds an event to the back of the queue.
// Returns false if the queue is closed.
func (q *eventQueue) Enqueue(e Event) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}

	q.events = append(q.events, e)

	// Non-blocking: the size-1 buffer coalesces signals.
	select {
	case q.signal <- struct{}{}:
	default:
	}

	return true
}

// TryDequeue removes the front event without blocking.
func (q *eventQueue) TryDequeue() (Event, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.events) == 0 {
		return Event{}, false
	}

	e := q.events[0]

	// Release the slot so rule slices and extras can be collected.
	q.events[0] = Event{}

	if len(q.events) == 1 {
		q.events = q.events[:0]
	} else {
		q.events = q.events[1:]
	}

	return e, true
}

// Wait returns a channel that fires when events may be available.
// It is closed once the queue is closed.
func (q *eventQueue) Wait() <-chan struct{} {
	return q.signal
}

// Len returns the current queue length.
func (q *eventQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.events)
}

// Drained reports whether the queue is closed and empty.
func (q *eventQueue) Drained() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed && len(q.events) == 0
}

// Close stops further enqueues and wakes any waiter.
func (q *eventQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}

	q.closed = true
	close(q.signal)
}
