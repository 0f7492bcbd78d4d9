package buffersource

import "github.com/justyntemme/webaudiograph/pkg/graph"

// OnMessage applies one control-side message (spec §4.1.9). It is only
// ever called from the render thread, synchronously, between blocks.
func (r *Render) OnMessage(msg any) {
	switch m := msg.(type) {
	case startMsg:
		r.startTime = m.when
		r.offset = m.offset
		r.duration = m.duration
		r.clampLoopBoundaries()
	case stopMsg:
		r.stopTime = m.when
		r.clampLoopBoundaries()
	case loopMsg:
		r.loop.IsLooping = m.enabled
		r.clampLoopBoundaries()
	case loopStartMsg:
		r.loop.Start = m.value
		r.clampLoopBoundaries()
	case loopEndMsg:
		r.loop.End = m.value
		r.clampLoopBoundaries()
	case setBufferMsg:
		if r.buffer != nil {
			// Swap contents so the previous buffer is freed on the control
			// side, never on the render thread (spec §4.1.9, §5).
			old := r.buffer
			r.buffer = m.buffer
			r.emitSwappedOut(old)
		} else {
			r.buffer = m.buffer
			r.clampLoopBoundaries()
		}
	default:
		r.logger.Warn("dropping unknown control message", "type", msg)
	}
}

// clampLoopBoundaries re-applies spec §3's loop clamp. It is a no-op until
// a buffer is installed (duration is undefined without one), and harmless
// to call after messages that don't touch the loop, since re-clamping
// unchanged bounds against an unchanged duration is idempotent.
func (r *Render) clampLoopBoundaries() {
	if r.buffer == nil {
		return
	}
	r.loop = r.loop.clamp(r.buffer.Duration())
}

// BeforeDrop implements graph.Processor (spec §4.1.10, §3 lifecycle): if
// the node is dropped while !ended and the scheduled start time has
// already passed, it raises ended immediately rather than leaving the node
// registered forever with nothing left to play.
func (r *Render) BeforeDrop(scope graph.Scope) {
	if !r.state.ended && scope.CurrentTime >= r.startTime {
		scope.SendEndedEvent()
		r.state.ended = true
	}
}
