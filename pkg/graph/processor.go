package graph

import "github.com/justyntemme/webaudiograph/pkg/quantum"

// Scope is the per-block context a Processor's Process call receives. It is
// the render-side analogue of the teacher's process.Context, narrowed to the
// fields spec §4.1 names: the block's start time, the context sample rate,
// and a hook to raise a one-shot ended event.
type Scope struct {
	CurrentTime float64
	SampleRate  float32

	sendEnded func()
}

// NewScope builds a Scope directly, for processor packages' own unit tests
// that need to observe or trigger SendEndedEvent without a live RenderThread.
func NewScope(currentTime float64, sampleRate float32, onEnded func()) Scope {
	return Scope{CurrentTime: currentTime, SampleRate: sampleRate, sendEnded: onEnded}
}

// SendEndedEvent raises the node's Ended event once per call; it does not
// deduplicate, so keeping it to at most one call per node is the
// processor's own responsibility (spec §3: "send_ended_event is emitted at
// most once per node").
func (s Scope) SendEndedEvent() {
	if s.sendEnded != nil {
		s.sendEnded()
	}
}

// Processor is the render-side half of a node: it owns per-block DSP state
// and is driven exclusively by the render thread. Implementations must not
// allocate, lock a contended mutex, or perform I/O from Process, OnMessage,
// or BeforeDrop.
type Processor interface {
	// Process writes exactly quantum.Length samples per active channel into
	// out, or calls out.MakeSilent(). It returns true if the node should be
	// kept alive for another block ("tail remains"), false if it is safe to
	// collect.
	Process(scope Scope, out *quantum.Block) bool

	// OnMessage applies one control-side message. The render thread passes
	// every queued message through unfiltered; logging and dropping unknown
	// message types is the processor's job (spec §4.1.9).
	OnMessage(msg any)

	// BeforeDrop is invoked once, synchronously on the render thread, when
	// the node's control handle is dropped. It lets the processor emit a
	// final ended event if one is due (spec §4.1.10).
	BeforeDrop(scope Scope)
}
