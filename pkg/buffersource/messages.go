package buffersource

import "github.com/justyntemme/webaudiograph/pkg/audiobuffer"

// Messages posted control->render through a node's mailbox (spec §4.1.9).
// Each is a small immutable value; the render side applies it inside
// OnMessage, synchronously, on the render thread.

// startMsg schedules playback. It is the sole start message: start() is
// expressed by the control handle as a startMsg with offset = 0 and
// duration = +Inf, and startAtWithOffset as one with duration = +Inf
// (spec §4.3).
type startMsg struct {
	when     float64
	offset   float64
	duration float64
}

// stopMsg schedules a stop.
type stopMsg struct {
	when float64
}

// loopMsg toggles looping.
type loopMsg struct {
	enabled bool
}

// loopStartMsg / loopEndMsg move a loop bound.
type loopStartMsg struct{ value float64 }
type loopEndMsg struct{ value float64 }

// setBufferMsg installs or swaps the node's buffer. On a swap the render
// side posts the previous buffer to Render.SwappedBuffers() so the control
// side can drop it there instead of on the render thread (spec §4.1.9, §5
// "Buffer swap discipline").
type setBufferMsg struct {
	buffer *audiobuffer.Buffer
}
