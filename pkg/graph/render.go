package graph

import (
	"log/slog"

	"github.com/justyntemme/webaudiograph/pkg/quantum"
)

// registration is posted once, control->render, when a node is created. The
// mailbox is constructed on the control side (by Context.Register) so the
// handle can start posting scheduling messages immediately, before the
// render thread has drained the registration itself; the channel already
// exists and simply queues.
type registration struct {
	id   NodeID
	proc Processor
	box  *mailbox
}

// EngineStats is implemented by processors that expose counters beyond the
// generic Processor contract — the buffer-source engine's fast-path vs.
// slow-path dispatch split and its resource-unavailable ("no buffer yet")
// count (SPEC_FULL.md's AMBIENT STACK). RenderThread sums these
// opportunistically via a type assertion, so this package stays
// processor-agnostic: a Processor that doesn't implement it just
// contributes zero.
type EngineStats interface {
	FastPathBlocksUnsafe() uint64
	SlowPathBlocksUnsafe() uint64
	BufferUnderrunsUnsafe() uint64
}

// nodeEntry is the render thread's private bookkeeping for one node. The
// scratch block is allocated once, when the render thread drains the
// node's registration, and reused for every block thereafter. The
// last* fields cache the most recent EngineStats reading so Process can
// fold in only the delta each block, the same way telemetry.Collector
// turns a cumulative snapshot into counter increments.
type nodeEntry struct {
	proc    Processor
	box     *mailbox
	scratch *quantum.Block
	dropped bool

	lastFastPath  uint64
	lastSlowPath  uint64
	lastUnderruns uint64
}

// RenderThread is the render-side driver: it is handed the backend's pull
// callback, drains pending control messages, walks the (currently flat,
// mix-to-sink) node topology, and writes the result to the output block.
// Spec §2 bounds its scope to exactly what the buffer-source engine needs:
// a set of processors keyed by node id and a monotonic block clock, no
// general cross-node connection graph.
type RenderThread struct {
	clock      *clock
	events     *EventBus
	logger     *slog.Logger
	numOutCh   int
	registrar  chan registration
	dropper    chan NodeID
	nodes      map[NodeID]*nodeEntry

	blocksRendered  uint64
	nodesCollected  uint64
	fastPathBlocks  uint64
	slowPathBlocks  uint64
	bufferUnderruns uint64
}

func newRenderThread(sampleRate float32, numOutputChannels int, events *EventBus, logger *slog.Logger) *RenderThread {
	return &RenderThread{
		clock:     newClock(sampleRate),
		events:    events,
		logger:    logger,
		numOutCh:  numOutputChannels,
		registrar: make(chan registration, 32),
		dropper:   make(chan NodeID, 32),
		nodes:     make(map[NodeID]*nodeEntry),
	}
}

// Process renders exactly one block: drain registrations and per-node
// mailboxes, advance every live processor, mix into out, and advance the
// clock. It must be called once per backend callback and must never be
// called concurrently with itself.
func (r *RenderThread) Process(out *quantum.Block) {
	out.Resize(r.numOutCh)
	out.MakeSilent()

	r.drainRegistrations()
	r.drainDrops()

	blockTime := r.clock.now()

	for id, entry := range r.nodes {
		scope := Scope{
			CurrentTime: blockTime,
			SampleRate:  r.clock.sampleRate,
			sendEnded:   func() { r.events.emit(Ended{NodeID: id}) },
		}

		entry.box.drain(entry.proc.OnMessage)

		tail := entry.proc.Process(scope, entry.scratch)
		r.mixInto(out, entry.scratch)

		if es, ok := entry.proc.(EngineStats); ok {
			r.foldEngineStats(entry, es)
		}

		// A processor returning tail=false only means "safe to collect if
		// dropped" (spec §5, §9): a node that still has a live control
		// handle stays registered — and keeps draining its mailbox, so a
		// SetBuffer or Start arriving after a silent block still takes
		// effect — exactly like the reference engine's #462 comment.
		if entry.dropped && !tail {
			delete(r.nodes, id)
			r.nodesCollected++
		}
	}

	r.clock.advance(quantum.Length)
	r.blocksRendered++
}

// foldEngineStats adds this block's delta of an EngineStats-implementing
// processor's cumulative counters into the render thread's running totals,
// so a node's contribution survives its eventual collection (its nodeEntry,
// and the last* snapshot this delta is taken against, is simply dropped
// with it — the totals it already folded in stay put).
func (r *RenderThread) foldEngineStats(entry *nodeEntry, es EngineStats) {
	fast := es.FastPathBlocksUnsafe()
	slow := es.SlowPathBlocksUnsafe()
	underruns := es.BufferUnderrunsUnsafe()

	r.fastPathBlocks += fast - entry.lastFastPath
	r.slowPathBlocks += slow - entry.lastSlowPath
	r.bufferUnderruns += underruns - entry.lastUnderruns

	entry.lastFastPath = fast
	entry.lastSlowPath = slow
	entry.lastUnderruns = underruns
}

// mixInto sums src's channels into dst, channel-for-channel, up to the
// smaller of the two channel counts. A node producing fewer channels than
// the sink (e.g. a mono buffer on a stereo output) contributes only to its
// own channels, leaving the rest of the sink untouched by it.
func (r *RenderThread) mixInto(dst, src *quantum.Block) {
	if src.IsSilent() {
		return
	}
	n := dst.NumChannels()
	if src.NumChannels() < n {
		n = src.NumChannels()
	}
	for ch := 0; ch < n; ch++ {
		d := dst.Channel(ch)
		s := src.Channel(ch)
		for i := range d {
			d[i] += s[i]
		}
	}
}

func (r *RenderThread) drainRegistrations() {
	for {
		select {
		case reg := <-r.registrar:
			r.nodes[reg.id] = &nodeEntry{
				proc:    reg.proc,
				box:     reg.box,
				scratch: quantum.New(r.numOutCh),
			}
		default:
			return
		}
	}
}

func (r *RenderThread) drainDrops() {
	for {
		select {
		case id := <-r.dropper:
			if entry, ok := r.nodes[id]; ok {
				entry.dropped = true
				scope := Scope{
					CurrentTime: r.clock.now(),
					SampleRate:  r.clock.sampleRate,
					sendEnded:   func() { r.events.emit(Ended{NodeID: id}) },
				}
				entry.proc.BeforeDrop(scope)
			}
		default:
			return
		}
	}
}

// Stats is a point-in-time snapshot of render-thread counters, safe to read
// from the control side for telemetry (spec §5: counters, not the node map
// itself, cross the thread boundary for observability).
type Stats struct {
	BlocksRendered  uint64
	NodesCollected  uint64
	LiveNodes       int
	FastPathBlocks  uint64
	SlowPathBlocks  uint64
	BufferUnderruns uint64
}

// StatsUnsafe returns the current counters. It is named -Unsafe because it
// reads RenderThread.nodes's length without synchronization; callers must
// only use it for approximate, non-authoritative telemetry, and only when
// they control the call site (e.g. by calling it from the same goroutine
// that calls Process).
func (r *RenderThread) StatsUnsafe() Stats {
	return Stats{
		BlocksRendered:  r.blocksRendered,
		NodesCollected:  r.nodesCollected,
		LiveNodes:       len(r.nodes),
		FastPathBlocks:  r.fastPathBlocks,
		SlowPathBlocks:  r.slowPathBlocks,
		BufferUnderruns: r.bufferUnderruns,
	}
}
