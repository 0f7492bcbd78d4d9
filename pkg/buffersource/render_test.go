package buffersource

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/justyntemme/webaudiograph/pkg/audiobuffer"
	"github.com/justyntemme/webaudiograph/pkg/graph"
	"github.com/justyntemme/webaudiograph/pkg/param"
	"github.com/justyntemme/webaudiograph/pkg/quantum"
)

const testSampleRate = 48000

func newTestRender() (*Render, *param.Registry) {
	registry := param.NewRegistry()
	registry.Add(detuneParamID, param.NewParameter(param.DetuneDescriptor))
	registry.Add(rateParamID, param.NewParameter(param.PlaybackRateDescriptor))
	return NewRender(registry, detuneParamID, rateParamID, nil), registry
}

// impulseBuffer builds an n-frame mono buffer with a single 1.0 sample at
// index spike, 0 elsewhere.
func impulseBuffer(n, spike int, sampleRate float32) *audiobuffer.Buffer {
	ch := make([]float32, n)
	ch[spike] = 1
	return audiobuffer.New(sampleRate, [][]float32{ch})
}

func runBlocks(r *Render, out *quantum.Block, sampleRate float32, numBlocks int) [][]float32 {
	blockDuration := float64(quantum.Length) / float64(sampleRate)
	results := make([][]float32, numBlocks)
	for i := 0; i < numBlocks; i++ {
		scope := graph.Scope{CurrentTime: float64(i) * blockDuration, SampleRate: sampleRate}
		r.Process(scope, out)
		cp := make([]float32, quantum.Length)
		copy(cp, out.Channel(0))
		results[i] = cp
	}
	return results
}

func TestFastPathDiracPassesThroughUnchanged(t *testing.T) {
	r, _ := newTestRender()
	buf := impulseBuffer(quantum.Length*3, 5, testSampleRate)
	r.OnMessage(setBufferMsg{buffer: buf})
	r.OnMessage(startMsg{when: 0, offset: 0, duration: math.Inf(1)})

	out := quantum.New(1)
	blocks := runBlocks(r, out, testSampleRate, 1)

	assert.Equal(t, float32(1), blocks[0][5])
	for i, s := range blocks[0] {
		if i != 5 {
			assert.Equalf(t, float32(0), s, "sample %d should be silent", i)
		}
	}
	assert.Equal(t, uint64(1), r.fastPathBlocks)
}

func TestSubSampleStartDelaysFirstNonzeroSample(t *testing.T) {
	r, _ := newTestRender()
	buf := impulseBuffer(quantum.Length*2, 0, testSampleRate)
	buf.Channel(0)[0] = 1

	// Starting 10.5 samples into the block forces the slow path (non-aligned
	// start) and should delay onset roughly to frame 10-11.
	startDelay := 10.5 / float64(testSampleRate)
	r.OnMessage(setBufferMsg{buffer: buf})
	r.OnMessage(startMsg{when: startDelay, offset: 0, duration: math.Inf(1)})

	out := quantum.New(1)
	blocks := runBlocks(r, out, testSampleRate, 1)

	firstNonzero := -1
	for i, s := range blocks[0] {
		if s != 0 {
			firstNonzero = i
			break
		}
	}
	require.NotEqual(t, -1, firstNonzero, "sub-sample start must still eventually produce sound")
	assert.GreaterOrEqual(t, firstNonzero, 9)
	assert.LessOrEqual(t, firstNonzero, 12)
}

func TestFastPathMonoLoopAcrossVariousLengths(t *testing.T) {
	for _, length := range []int{quantum.Length/2 - 1, quantum.Length, quantum.Length + 1, 2*quantum.Length + 1} {
		length := length
		t.Run("", func(t *testing.T) {
			r, _ := newTestRender()
			ch := make([]float32, length)
			for i := range ch {
				ch[i] = float32(i + 1)
			}
			buf := audiobuffer.New(testSampleRate, [][]float32{ch})
			r.OnMessage(setBufferMsg{buffer: buf})
			r.OnMessage(loopMsg{enabled: true})
			r.OnMessage(startMsg{when: 0, offset: 0, duration: math.Inf(1)})

			out := quantum.New(1)
			blocks := runBlocks(r, out, testSampleRate, 6)

			for _, block := range blocks {
				for _, s := range block {
					assert.NotEqual(t, float32(0), s, "a dense looping buffer should never produce silence")
				}
			}
		})
	}
}

func TestSubSampleStopSilencesPastStopTime(t *testing.T) {
	r, _ := newTestRender()
	ch := make([]float32, quantum.Length*4)
	for i := range ch {
		ch[i] = 1
	}
	buf := audiobuffer.New(testSampleRate, [][]float32{ch})
	r.OnMessage(setBufferMsg{buffer: buf})
	r.OnMessage(startMsg{when: 0, offset: 0, duration: math.Inf(1)})
	stopAt := 20.5 / float64(testSampleRate)
	r.OnMessage(stopMsg{when: stopAt})

	out := quantum.New(1)
	blocks := runBlocks(r, out, testSampleRate, 1)

	for i := 21; i < quantum.Length; i++ {
		assert.Equalf(t, float32(0), blocks[0][i], "sample %d should be silent after stop", i)
	}
	assert.NotEqual(t, float32(0), blocks[0][10])
}

func TestNegativePlaybackRateReversesPlayback(t *testing.T) {
	r, registry := newTestRender()
	ch := make([]float32, quantum.Length*4)
	for i := range ch {
		ch[i] = float32(i)
	}
	buf := audiobuffer.New(testSampleRate, [][]float32{ch})
	registry.Parameter(rateParamID).SetValue(-1)
	r.OnMessage(setBufferMsg{buffer: buf})
	r.OnMessage(startMsg{when: 0, offset: float64(quantum.Length*2) / testSampleRate, duration: math.Inf(1)})

	out := quantum.New(1)
	blocks := runBlocks(r, out, testSampleRate, 1)

	// Playing backwards from frame 256: sample values should be decreasing.
	assert.Greater(t, blocks[0][0], blocks[0][quantum.Length-1])
}

func TestSampleRateResamplingAtMultipleRatios(t *testing.T) {
	for _, bufRate := range []float32{22050, 44100, 48000, 96000} {
		bufRate := bufRate
		t.Run("", func(t *testing.T) {
			r, _ := newTestRender()
			n := int(bufRate) // ~1 second
			ch := make([]float32, n)
			for i := range ch {
				ch[i] = float32(math.Sin(2 * math.Pi * 440 * float64(i) / float64(bufRate)))
			}
			buf := audiobuffer.New(bufRate, [][]float32{ch})
			r.OnMessage(setBufferMsg{buffer: buf})
			r.OnMessage(startMsg{when: 0, offset: 0, duration: math.Inf(1)})

			out := quantum.New(1)
			blocks := runBlocks(r, out, testSampleRate, 4)

			for _, block := range blocks {
				for _, s := range block {
					assert.False(t, math.IsNaN(float64(s)))
					assert.LessOrEqual(t, math.Abs(float64(s)), 1.01)
				}
			}
		})
	}
}

func TestOutOfBoundsLoopPointsClampToWholeBuffer(t *testing.T) {
	r, _ := newTestRender()
	buf := impulseBuffer(1000, 0, testSampleRate)
	r.OnMessage(setBufferMsg{buffer: buf})
	// loop_end before loop_start after clamp collapses to an invalid pair,
	// which should fall back to "loop the whole buffer" (resolved Open
	// Question (a)).
	r.OnMessage(loopMsg{enabled: true})
	r.OnMessage(loopStartMsg{value: 1e9})
	r.OnMessage(loopEndMsg{value: -5})

	assert.Equal(t, buf.Duration(), r.loop.Start, "an out-of-range loop_start clamps to duration")
	assert.Equal(t, buf.Duration(), r.loop.End, "a non-positive loop_end resets to duration")
}

func TestEndedEventFiresExactlyOnce(t *testing.T) {
	r, _ := newTestRender()
	buf := impulseBuffer(quantum.Length/2, 0, testSampleRate)
	r.OnMessage(setBufferMsg{buffer: buf})
	r.OnMessage(startMsg{when: 0, offset: 0, duration: math.Inf(1)})

	var endedCount int
	out := quantum.New(1)
	blockDuration := float64(quantum.Length) / float64(testSampleRate)
	for i := 0; i < 4; i++ {
		scope := graph.NewScope(float64(i)*blockDuration, testSampleRate, func() { endedCount++ })
		r.Process(scope, out)
	}

	assert.Equal(t, 1, endedCount, "ended must fire exactly once even across further blocks")
}

func TestEndedEventReentrantSetLoopDoesNotRefire(t *testing.T) {
	r, _ := newTestRender()
	buf := impulseBuffer(quantum.Length/2, 0, testSampleRate)
	r.OnMessage(setBufferMsg{buffer: buf})
	r.OnMessage(startMsg{when: 0, offset: 0, duration: math.Inf(1)})

	var endedCount int
	out := quantum.New(1)
	blockDuration := float64(quantum.Length) / float64(testSampleRate)
	for i := 0; i < 4; i++ {
		scope := graph.NewScope(float64(i)*blockDuration, testSampleRate, func() {
			endedCount++
			// Re-entrant control call from inside the ended callback, as an
			// application's onended handler might do.
			r.OnMessage(loopMsg{enabled: true})
		})
		r.Process(scope, out)
	}

	assert.Equal(t, 1, endedCount)
}

func TestBeforeDropRaisesEndedWhenStartedAndNotYetEnded(t *testing.T) {
	r, _ := newTestRender()
	buf := impulseBuffer(quantum.Length*4, 0, testSampleRate)
	r.OnMessage(setBufferMsg{buffer: buf})
	r.OnMessage(startMsg{when: 0, offset: 0, duration: math.Inf(1)})

	var endedCount int
	r.BeforeDrop(graph.NewScope(0.1, testSampleRate, func() { endedCount++ }))

	assert.Equal(t, 1, endedCount)
	assert.True(t, r.state.ended)
}

func TestBeforeDropBeforeStartTimeDoesNotRaiseEnded(t *testing.T) {
	r, _ := newTestRender()
	buf := impulseBuffer(quantum.Length*4, 0, testSampleRate)
	r.OnMessage(setBufferMsg{buffer: buf})
	r.OnMessage(startMsg{when: 10, offset: 0, duration: math.Inf(1)})

	var endedCount int
	r.BeforeDrop(graph.NewScope(0, testSampleRate, func() { endedCount++ }))

	assert.Equal(t, 0, endedCount, "dropping a node whose scheduled start is still in the future must not raise ended")
}

func TestSwappingBufferEmitsPreviousOnChannel(t *testing.T) {
	r, _ := newTestRender()
	first := impulseBuffer(1000, 0, testSampleRate)
	second := impulseBuffer(1000, 0, testSampleRate)

	r.OnMessage(setBufferMsg{buffer: first})
	r.OnMessage(setBufferMsg{buffer: second})

	select {
	case got := <-r.SwappedBuffers():
		assert.Same(t, first, got)
	default:
		t.Fatal("expected the previous buffer to be emitted on SwappedBuffers()")
	}
}
