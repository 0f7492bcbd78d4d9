package graph

import "log/slog"

// eventCapacity bounds the global render->control event queue (spec §6:
// "a single event kind Ended{node_id} ... on a bounded queue").
const eventCapacity = 256

// Ended is raised exactly once per node, the block its terminal condition
// is first observed in (spec §4.1.8, §4.1.10).
type Ended struct {
	NodeID NodeID
}

// EventBus carries events from the render thread to the control side. The
// render thread only ever does a non-blocking send; delivery to user
// callbacks happens on whichever goroutine calls Drain, never on the render
// thread itself (spec §6: "delivery to user callbacks is via the control
// side's event loop, not the render thread").
type EventBus struct {
	ch     chan Ended
	logger *slog.Logger
	drops  *dropSink
}

func newEventBus(logger *slog.Logger, drops *dropSink) *EventBus {
	return &EventBus{
		ch:     make(chan Ended, eventCapacity),
		logger: logger,
		drops:  drops,
	}
}

// emit is called from the render thread. It never blocks.
func (b *EventBus) emit(ev Ended) {
	select {
	case b.ch <- ev:
	default:
		b.logger.Warn("event bus full, dropping ended event", "node", ev.NodeID.String())
		b.drops.record("events")
	}
}

// Drain delivers every currently-queued event to handle, in arrival order,
// then returns without blocking. Call it from a control-side event loop,
// never from the render thread.
func (b *EventBus) Drain(handle func(Ended)) {
	for {
		select {
		case ev := <-b.ch:
			handle(ev)
		default:
			return
		}
	}
}
