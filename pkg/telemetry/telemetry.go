// Package telemetry exposes render-thread health as Prometheus metrics. It
// never touches the render thread itself — callers hand it periodic
// graph.Stats snapshots (spec §5: counters, not the node map, cross the
// thread boundary for observability) from whatever goroutine already owns
// that read, typically the same one driving the audio callback.
//
// This package never imports net/http: serving /metrics is an application
// concern, not a core one.
package telemetry

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/justyntemme/webaudiograph/pkg/graph"
)

// Collector holds the gauges and counters derived from graph.Stats
// snapshots, plus events reported directly by callers (ended events
// delivered, messages dropped from a full queue) that don't fit a periodic
// poll.
type Collector struct {
	mu sync.Mutex

	blocksRendered  prometheus.Counter
	nodesCollected  prometheus.Counter
	liveNodes       prometheus.Gauge
	endedEvents     prometheus.Counter
	droppedEvents   *prometheus.CounterVec
	fastPathBlocks  prometheus.Counter
	slowPathBlocks  prometheus.Counter
	bufferUnderruns prometheus.Counter

	lastBlocksRendered  uint64
	lastNodesCollected  uint64
	lastFastPathBlocks  uint64
	lastSlowPathBlocks  uint64
	lastBufferUnderruns uint64
}

// NewCollector builds a Collector and registers its metrics with reg. Pass
// prometheus.NewRegistry() for an isolated registry, or
// prometheus.DefaultRegisterer to publish on the process-wide one.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		blocksRendered: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "webaudiograph",
			Subsystem: "render",
			Name:      "blocks_rendered_total",
			Help:      "Render quanta produced by the render thread.",
		}),
		nodesCollected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "webaudiograph",
			Subsystem: "render",
			Name:      "nodes_collected_total",
			Help:      "Nodes removed from the render graph after drop+tail_time=false.",
		}),
		liveNodes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "webaudiograph",
			Subsystem: "render",
			Name:      "live_nodes",
			Help:      "Nodes currently registered on the render thread.",
		}),
		endedEvents: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "webaudiograph",
			Subsystem: "events",
			Name:      "ended_total",
			Help:      "Ended events delivered to control-side callbacks.",
		}),
		droppedEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "webaudiograph",
			Subsystem: "events",
			Name:      "dropped_total",
			Help:      "Messages dropped because a bounded queue was full.",
		}, []string{"queue"}),
		fastPathBlocks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "webaudiograph",
			Subsystem: "buffersource",
			Name:      "fast_path_blocks_total",
			Help:      "Blocks rendered via the sample-aligned memcpy path.",
		}),
		slowPathBlocks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "webaudiograph",
			Subsystem: "buffersource",
			Name:      "slow_path_blocks_total",
			Help:      "Blocks rendered via the per-sample interpolating path.",
		}),
		bufferUnderruns: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "webaudiograph",
			Subsystem: "buffersource",
			Name:      "buffer_underruns_total",
			Help:      "Blocks rendered silent because a node had no buffer yet.",
		}),
	}

	reg.MustRegister(c.blocksRendered, c.nodesCollected, c.liveNodes, c.endedEvents,
		c.droppedEvents, c.fastPathBlocks, c.slowPathBlocks, c.bufferUnderruns)
	return c
}

// Observe updates the gauges/counters from a point-in-time snapshot. Safe
// to call on a timer from any goroutine; concurrent calls are serialized by
// the collector's mutex.
func (c *Collector) Observe(s graph.Stats) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if s.BlocksRendered > c.lastBlocksRendered {
		c.blocksRendered.Add(float64(s.BlocksRendered - c.lastBlocksRendered))
		c.lastBlocksRendered = s.BlocksRendered
	}
	if s.NodesCollected > c.lastNodesCollected {
		c.nodesCollected.Add(float64(s.NodesCollected - c.lastNodesCollected))
		c.lastNodesCollected = s.NodesCollected
	}
	if s.FastPathBlocks > c.lastFastPathBlocks {
		c.fastPathBlocks.Add(float64(s.FastPathBlocks - c.lastFastPathBlocks))
		c.lastFastPathBlocks = s.FastPathBlocks
	}
	if s.SlowPathBlocks > c.lastSlowPathBlocks {
		c.slowPathBlocks.Add(float64(s.SlowPathBlocks - c.lastSlowPathBlocks))
		c.lastSlowPathBlocks = s.SlowPathBlocks
	}
	if s.BufferUnderruns > c.lastBufferUnderruns {
		c.bufferUnderruns.Add(float64(s.BufferUnderruns - c.lastBufferUnderruns))
		c.lastBufferUnderruns = s.BufferUnderruns
	}
	c.liveNodes.Set(float64(s.LiveNodes))
}

// RecordEnded increments the ended-event counter. Call it from the
// control-side event loop, once per graph.Ended delivered.
func (c *Collector) RecordEnded() {
	c.endedEvents.Inc()
}

// RecordDropped increments the dropped-message counter for queue (one of
// "registrar", "dropper", "mailbox", "events"). Call it from the warning
// paths in graph when a bounded send falls through to its default case —
// those sites already log; this gives the same events a metric.
func (c *Collector) RecordDropped(queue string) {
	c.droppedEvents.WithLabelValues(queue).Inc()
}
