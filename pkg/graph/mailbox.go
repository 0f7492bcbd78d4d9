package graph

import "log/slog"

// mailboxCapacity bounds the per-node control->render message queue. It is
// sized generously relative to the handful of scheduling messages a
// buffer-source node receives over its lifetime (start, stop, a few loop
// updates, at most one buffer swap); spec §5 requires the render thread
// never block on an unbounded channel, so capacity must be finite, not
// "large enough to never matter".
const mailboxCapacity = 64

// mailbox is a single-destination, non-blocking message queue from the
// control side to one node's render processor. Go's buffered channels
// already give FIFO-per-destination ordering (spec §5), so mailbox is a
// thin wrapper that turns a full queue into a logged, dropped message
// instead of a blocked sender — the same non-blocking-send-with-drop-log
// shape as richinsley/goshadertoy's Microphone.audioCallback.
type mailbox struct {
	ch     chan any
	logger *slog.Logger
	nodeID NodeID
	drops  *dropSink
}

func newMailbox(id NodeID, logger *slog.Logger, drops *dropSink) *mailbox {
	return &mailbox{
		ch:     make(chan any, mailboxCapacity),
		logger: logger,
		nodeID: id,
		drops:  drops,
	}
}

// post enqueues a message for delivery; it never blocks. A full mailbox
// indicates the control side is posting faster than the render thread can
// drain, which can only happen under pathological scheduling (spec's
// invariants forbid more than a handful of calls per node) — the message is
// dropped and logged rather than blocking either side.
func (m *mailbox) post(msg any) {
	select {
	case m.ch <- msg:
	default:
		m.logger.Warn("mailbox full, dropping control message",
			"node", m.nodeID.String())
		m.drops.record("mailbox")
	}
}

// drain applies every currently-queued message via apply, in FIFO order,
// then returns. It never blocks waiting for more messages to arrive —
// spec §5's "drained to exhaustion at the top of each callback".
func (m *mailbox) drain(apply func(any)) {
	for {
		select {
		case msg := <-m.ch:
			apply(msg)
		default:
			return
		}
	}
}
