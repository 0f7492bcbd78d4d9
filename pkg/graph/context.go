package graph

import "log/slog"

// Context is the control-side façade: it owns the render thread's
// registration/event plumbing and is the thing node constructors call
// Register against (spec §2: "On node creation the control side constructs
// both [handle and processor], retains the handle, and ships the processor
// to the render side through a registration message").
type Context struct {
	SampleRate float32

	render *RenderThread
	events *EventBus
	logger *slog.Logger
	drops  *dropSink
}

// NewContext creates a context with a fixed sample rate and output channel
// count. numOutputChannels is the sink's channel count; it never changes
// for the lifetime of the context (spec §9, Open Question (b)).
func NewContext(sampleRate float32, numOutputChannels int, logger *slog.Logger) *Context {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "graph")
	drops := &dropSink{}
	events := newEventBus(logger, drops)
	return &Context{
		SampleRate: sampleRate,
		render:     newRenderThread(sampleRate, numOutputChannels, events, logger),
		events:     events,
		logger:     logger,
		drops:      drops,
	}
}

// SetDropRecorder binds r as the destination for every "queue full,
// message dropped" event this context's render thread and mailboxes raise.
// Call it once, right after NewContext and before the render loop starts
// (a telemetry.Collector satisfies DropRecorder); a Context left
// unbound simply never reports drops anywhere but its logger.
func (c *Context) SetDropRecorder(r DropRecorder) {
	c.drops.rec = r
}

// Render returns the render-side driver to hand to the audio backend
// callback. There is exactly one RenderThread per Context.
func (c *Context) Render() *RenderThread {
	return c.render
}

// Events returns the bounded render->control event queue for this context.
func (c *Context) Events() *EventBus {
	return c.events
}

// Logger returns the context's structured logger, for node packages that
// want to log control-side warnings (e.g. programmer-error rejections)
// with consistent fields.
func (c *Context) Logger() *slog.Logger {
	return c.logger
}

// handleMailbox is returned by Register so a control handle can post
// messages to its own processor without going through the Context again.
type handleMailbox struct {
	id  NodeID
	box *mailbox
	ctx *Context
}

// Post enqueues a scheduling message for this node's render processor. It
// never blocks (spec §5).
func (h *handleMailbox) Post(msg any) {
	h.box.post(msg)
}

// Drop signals the render thread to run the processor's BeforeDrop hook on
// its next block (spec §4.1.10, §5 "Cancellation").
func (h *handleMailbox) Drop() {
	select {
	case h.ctx.render.dropper <- h.id:
	default:
		h.ctx.logger.Warn("drop queue full, node may leak", "node", h.id.String())
		h.ctx.drops.record("dropper")
	}
}

// Register constructs a node's render-side registration: it mints the
// mailbox, posts a registration message to the render thread (non-
// blocking), and returns a handleMailbox the control handle uses for all
// further scheduling messages and for its eventual drop.
func (c *Context) Register(proc Processor) (NodeID, *handleMailbox) {
	id := NewNodeID()
	box := newMailbox(id, c.logger, c.drops)

	select {
	case c.render.registrar <- registration{id: id, proc: proc, box: box}:
	default:
		c.logger.Warn("registration queue full, dropping node registration", "node", id.String())
		c.drops.record("registrar")
	}

	return id, &handleMailbox{id: id, box: box, ctx: c}
}

// CurrentTime returns the render thread's current_time, for control-side
// code that wants "now" to schedule relative to (spec §4.3: "start() =
// start_at(current_time)"). It is safe to call concurrently with Process.
func (c *Context) CurrentTime() float64 {
	return c.render.clock.now()
}

