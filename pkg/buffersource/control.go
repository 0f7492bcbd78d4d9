// Package buffersource: control-side handle.
package buffersource

import (
	"fmt"
	"math"

	"github.com/justyntemme/webaudiograph/pkg/audiobuffer"
	"github.com/justyntemme/webaudiograph/pkg/graph"
	"github.com/justyntemme/webaudiograph/pkg/param"
)

// Options configures a new Handle (spec §4.3 "new(context, options)").
type Options struct {
	Buffer       *audiobuffer.Buffer
	Detune       float32
	PlaybackRate float32
	Loop         bool
	LoopStart    float64
	LoopEnd      float64
}

// Handle is the control-side façade for one buffer-source node: it owns
// scheduling state mirrored to the render side via messages, and the two
// k-rate parameter handles for detune and playback_rate (spec §4.3).
type Handle struct {
	id      graph.NodeID
	mailbox handleMailboxPoster
	render  *Render

	detune       *param.Parameter
	playbackRate *param.Parameter

	started      bool
	stopped      bool
	bufferSet    bool
	bufferClone  *audiobuffer.Buffer
	startStopCnt uint8
	loopLocal    LoopState
	onEnded      func()
}

// handleMailboxPoster is the minimal surface buffersource needs from
// graph.Context's registration result; declared as an interface so this
// package doesn't need to know graph's concrete handle type name.
type handleMailboxPoster interface {
	Post(msg any)
	Drop()
}

const (
	detuneParamID = uint32(1)
	rateParamID   = uint32(2)
)

// New constructs a node: it builds the render processor, registers it with
// ctx, and (per spec §4.3) immediately posts SetBuffer if options.Buffer is
// present.
func New(ctx *graph.Context, opts Options) *Handle {
	registry := param.NewRegistry()
	detune := param.NewParameter(param.DetuneDescriptor)
	rate := param.NewParameter(param.PlaybackRateDescriptor)
	registry.Add(detuneParamID, detune)
	registry.Add(rateParamID, rate)
	if opts.Detune != 0 {
		detune.SetValue(opts.Detune)
	}
	if opts.PlaybackRate != 0 {
		rate.SetValue(opts.PlaybackRate)
	} else {
		rate.SetValue(1)
	}

	render := NewRender(registry, detuneParamID, rateParamID, ctx.Logger())

	id, box := ctx.Register(render)

	h := &Handle{
		id:           id,
		mailbox:      box,
		render:       render,
		detune:       detune,
		playbackRate: rate,
		loopLocal:    LoopState{IsLooping: opts.Loop, Start: opts.LoopStart, End: opts.LoopEnd},
	}

	if opts.Buffer != nil {
		h.SetBuffer(opts.Buffer)
	}
	if opts.Loop || opts.LoopStart != 0 || opts.LoopEnd != 0 {
		h.mailbox.Post(loopMsg{enabled: opts.Loop})
		h.mailbox.Post(loopStartMsg{value: opts.LoopStart})
		h.mailbox.Post(loopEndMsg{value: opts.LoopEnd})
	}

	return h
}

// ID returns the node's identifier, as surfaced on Ended events.
func (h *Handle) ID() graph.NodeID {
	return h.id
}

// Detune returns the detune parameter handle, in cents.
func (h *Handle) Detune() *param.Parameter {
	return h.detune
}

// PlaybackRate returns the playback-rate parameter handle.
func (h *Handle) PlaybackRate() *param.Parameter {
	return h.playbackRate
}

// SetBuffer installs the node's buffer. It panics if a buffer was already
// set (spec §3: "buffer settable at most once").
func (h *Handle) SetBuffer(buf *audiobuffer.Buffer) {
	if h.bufferSet {
		panic("buffersource: buffer already set")
	}
	h.bufferSet = true
	h.bufferClone = buf.Clone()
	h.mailbox.Post(setBufferMsg{buffer: buf.Clone()})
}

// Start is start_at(current_time) (spec §4.3).
func (h *Handle) Start(ctx *graph.Context) {
	h.StartAtWithOffsetAndDuration(ctx.CurrentTime(), 0, math.Inf(1))
}

// StartAt is start_at_with_offset_and_duration(when, 0, +Inf).
func (h *Handle) StartAt(when float64) {
	h.StartAtWithOffsetAndDuration(when, 0, math.Inf(1))
}

// StartAtWithOffset is start_at_with_offset_and_duration(when, offset, +Inf).
func (h *Handle) StartAtWithOffset(when, offset float64) {
	h.StartAtWithOffsetAndDuration(when, offset, math.Inf(1))
}

// StartAtWithOffsetAndDuration schedules playback. It panics if the node
// was already started, if when or offset is not finite and non-negative,
// or if duration is NaN or negative (+Inf is allowed) — all programmer
// errors asserted at the control boundary (spec §7), never forwarded to
// the render thread.
func (h *Handle) StartAtWithOffsetAndDuration(when, offset, duration float64) {
	if h.started {
		panic("buffersource: start called more than once")
	}
	assertScheduleValue("when", when, false)
	assertScheduleValue("offset", offset, false)
	assertScheduleValue("duration", duration, true)

	h.started = true
	h.startStopCnt++
	h.mailbox.Post(startMsg{when: when, offset: offset, duration: duration})
}

// StopAt schedules a stop. It panics if the node has not been started, or
// has already been stopped (spec §4.3).
func (h *Handle) StopAt(when float64) {
	if !h.started {
		panic("buffersource: stop called before start")
	}
	if h.stopped {
		panic("buffersource: stop called more than once")
	}
	assertScheduleValue("when", when, false)

	h.stopped = true
	h.startStopCnt++
	h.mailbox.Post(stopMsg{when: when})
}

// StartStopCount returns how many of start/stop have been called, for
// diagnostics and tests.
func (h *Handle) StartStopCount() uint8 {
	return h.startStopCnt
}

// Position returns a read-only snapshot of the playhead, in seconds into
// the buffer, read from the render thread's atomic (spec §3, §4.3).
func (h *Handle) Position() float64 {
	return h.render.Position()
}

// Loop reports the last-known looping flag.
func (h *Handle) Loop() bool { return h.loopLocal.IsLooping }

// SetLoop posts a Loop message. Authoritative clamping happens on the
// render side when the message is applied (spec §4.3).
func (h *Handle) SetLoop(enabled bool) {
	h.loopLocal.IsLooping = enabled
	h.mailbox.Post(loopMsg{enabled: enabled})
}

// LoopStart reports the last-known, locally-clamped loop start.
func (h *Handle) LoopStart() float64 { return h.loopLocal.Start }

// SetLoopStart clamps locally against the last buffer seen (best-effort —
// the render side clamp is authoritative) and posts a LoopStart message.
func (h *Handle) SetLoopStart(v float64) {
	h.loopLocal.Start = v
	h.loopLocal = h.loopLocal.clamp(h.localDuration())
	h.mailbox.Post(loopStartMsg{value: v})
}

// LoopEnd reports the last-known, locally-clamped loop end.
func (h *Handle) LoopEnd() float64 { return h.loopLocal.End }

// SetLoopEnd clamps locally and posts a LoopEnd message.
func (h *Handle) SetLoopEnd(v float64) {
	h.loopLocal.End = v
	h.loopLocal = h.loopLocal.clamp(h.localDuration())
	h.mailbox.Post(loopEndMsg{value: v})
}

func (h *Handle) localDuration() float64 {
	if h.bufferClone == nil {
		return 0
	}
	return h.bufferClone.Duration()
}

// OnEnded registers a callback for this node's Ended event. It is never
// invoked directly; a control-side event loop calls HandleEvent for every
// graph.Ended it drains, and HandleEvent dispatches to fn only if the event
// is this node's (spec §6: "delivery to user callbacks is via the control
// side's event loop, not the render thread").
func (h *Handle) OnEnded(fn func()) {
	h.onEnded = fn
}

// HandleEvent dispatches ev to this node's registered OnEnded callback if ev
// belongs to it, and reports whether it did. Safe to call from any
// control-side event loop goroutine, including a re-entrant call from
// within fn itself (spec SUPPLEMENTED FEATURES §3).
func (h *Handle) HandleEvent(ev graph.Ended) bool {
	if ev.NodeID != h.id || h.onEnded == nil {
		return false
	}
	h.onEnded()
	return true
}

// Drop signals the render thread to run BeforeDrop on this node and,
// eventually, collect it (spec §3 "Lifecycle", §5 "Cancellation"). Call it
// when the handle is no longer needed; a Handle left unreferenced without
// calling Drop simply stays registered (harmless, but never collected).
func (h *Handle) Drop() {
	h.mailbox.Drop()
}

// assertScheduleValue enforces spec §7's programmer-error class: non-finite
// or negative schedule values panic at the control boundary. allowInf
// permits +Inf (duration's "until natural end" sentinel).
func assertScheduleValue(name string, v float64, allowInf bool) {
	if math.IsNaN(v) {
		panic(fmt.Sprintf("buffersource: %s must not be NaN", name))
	}
	if math.IsInf(v, 1) {
		if allowInf {
			return
		}
		panic(fmt.Sprintf("buffersource: %s must be finite", name))
	}
	if math.IsInf(v, -1) || v < 0 {
		panic(fmt.Sprintf("buffersource: %s must be non-negative, got %v", name, v))
	}
}
