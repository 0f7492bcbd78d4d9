package telemetry

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/justyntemme/webaudiograph/pkg/graph"
)

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, c.Write(&m))
	return m.GetCounter().GetValue()
}

func gaugeValue(t *testing.T, g prometheus.Gauge) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, g.Write(&m))
	return m.GetGauge().GetValue()
}

func TestObserveAccumulatesMonotonicCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.Observe(graph.Stats{BlocksRendered: 10, NodesCollected: 1, LiveNodes: 3})
	c.Observe(graph.Stats{BlocksRendered: 25, NodesCollected: 1, LiveNodes: 2})

	assert.Equal(t, 25.0, counterValue(t, c.blocksRendered))
	assert.Equal(t, 1.0, counterValue(t, c.nodesCollected))
	assert.Equal(t, 2.0, gaugeValue(t, c.liveNodes))
}

func TestRecordEndedIncrementsCounter(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)
	c.RecordEnded()
	c.RecordEnded()
	assert.Equal(t, 2.0, counterValue(t, c.endedEvents))
}

func TestObserveAccumulatesEngineCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.Observe(graph.Stats{FastPathBlocks: 4, SlowPathBlocks: 1, BufferUnderruns: 2})
	c.Observe(graph.Stats{FastPathBlocks: 9, SlowPathBlocks: 1, BufferUnderruns: 3})

	assert.Equal(t, 9.0, counterValue(t, c.fastPathBlocks))
	assert.Equal(t, 1.0, counterValue(t, c.slowPathBlocks))
	assert.Equal(t, 3.0, counterValue(t, c.bufferUnderruns))
}

func TestRecordDroppedIsLabeledByQueue(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)
	c.RecordDropped("mailbox")
	c.RecordDropped("mailbox")
	c.RecordDropped("events")

	assert.Equal(t, 2.0, counterValue(t, c.droppedEvents.WithLabelValues("mailbox")))
	assert.Equal(t, 1.0, counterValue(t, c.droppedEvents.WithLabelValues("events")))
}
