// Package buffersource implements the buffer-source playback engine: the
// render-side processor and control-side handle behind an
// AudioBufferSourceNode-equivalent, per spec §4.1.
package buffersource

import (
	"log/slog"
	"math"

	"github.com/justyntemme/webaudiograph/pkg/audiobuffer"
	"github.com/justyntemme/webaudiograph/pkg/graph"
	"github.com/justyntemme/webaudiograph/pkg/param"
	"github.com/justyntemme/webaudiograph/pkg/quantum"
)

const epsilon = 1e-10

// playbackInfo is the per-sample interpolation source computed by the slow
// path (spec §4.1.7 step 7): the floor frame index plus fractional position.
type playbackInfo struct {
	valid     bool
	prevIndex int
	k         float64
}

// renderState is the mutable, render-thread-only bookkeeping a Render
// carries across blocks (spec §3 "render_state").
type renderState struct {
	bufferTime        atomicF64
	started           bool
	enteredLoop       bool
	bufferTimeElapsed float64
	isAligned         bool
	ended             bool
}

// Render is the render-side processor for a buffer-source node. It
// implements graph.Processor. The fields before state are the scheduling
// state set by OnMessage (spec §3 "BufferSourceState"); Process also moves
// startTime forward (start-time normalization, sticky start) and advances
// offset on the first active sample.
type Render struct {
	startTime float64
	stopTime  float64
	offset    float64
	duration  float64

	buffer *audiobuffer.Buffer
	loop   LoopState

	params   param.ValueAccessor
	detuneID uint32
	rateID   uint32

	state renderState

	logger  *slog.Logger
	swapped chan *audiobuffer.Buffer

	fastPathBlocks  uint64
	slowPathBlocks  uint64
	bufferUnderruns uint64
}

// FastPathBlocksUnsafe, SlowPathBlocksUnsafe, and BufferUnderrunsUnsafe
// expose this node's cumulative path-dispatch and resource-unavailability
// counts (SPEC_FULL.md's AMBIENT STACK: "fast-path vs. slow-path block
// counts", "underruns"). graph.RenderThread folds each block's change in
// these into its Stats totals via the graph.EngineStats interface; like
// StatsUnsafe, they
// are safe to read only from the goroutine that calls Process, never
// concurrently with it.
func (r *Render) FastPathBlocksUnsafe() uint64  { return r.fastPathBlocks }
func (r *Render) SlowPathBlocksUnsafe() uint64  { return r.slowPathBlocks }
func (r *Render) BufferUnderrunsUnsafe() uint64 { return r.bufferUnderruns }

// swappedOutCapacity bounds the channel a buffer swap's previous buffer
// travels back to the control side on. Since set_buffer is a once-per-node
// control-side operation (spec §4.3: "fails if a buffer was already set"),
// a swap on an already-buffered node should not happen in ordinary use;
// capacity 1 is enough to carry the one buffer a swap could ever produce
// without blocking the render thread if nobody is listening yet.
const swappedOutCapacity = 1

// emitSwappedOut hands the previous buffer back to the control side
// without blocking the render thread (spec §5 "Buffer swap discipline").
func (r *Render) emitSwappedOut(old *audiobuffer.Buffer) {
	select {
	case r.swapped <- old:
	default:
		r.logger.Warn("swapped-out buffer channel full, dropping reference on render thread")
	}
}

// NewRender constructs a render-side processor in its unscheduled initial
// state (spec: start_time/stop_time/duration = +Inf, offset = 0).
func NewRender(params param.ValueAccessor, detuneID, rateID uint32, logger *slog.Logger) *Render {
	if logger == nil {
		logger = slog.Default()
	}
	return &Render{
		startTime: math.Inf(1),
		stopTime:  math.Inf(1),
		duration:  math.Inf(1),
		offset:    0,
		params:    params,
		detuneID:  detuneID,
		rateID:    rateID,
		logger:    logger.With("component", "buffersource"),
		swapped:   make(chan *audiobuffer.Buffer, swappedOutCapacity),
	}
}

// SwappedBuffers returns the channel that previous buffers are posted to
// when SetBuffer swaps a new buffer in over an existing one. Draining it is
// optional — Go's garbage collector reclaims an undrained buffer once this
// channel itself becomes unreachable — but draining keeps memory bounded
// for a node that swaps buffers in a loop.
func (r *Render) SwappedBuffers() <-chan *audiobuffer.Buffer {
	return r.swapped
}

// Position returns the current playhead position within the buffer, in
// seconds, read from the single atomic render_state.buffer_time exposes
// (spec §3).
func (r *Render) Position() float64 {
	return r.state.bufferTime.load()
}

// Process implements graph.Processor (spec §4.1).
func (r *Render) Process(scope graph.Scope, out *quantum.Block) bool {
	sampleRate := float64(scope.SampleRate)
	dt := 1 / sampleRate
	blockDuration := float64(quantum.Length) * dt
	blockTime := scope.CurrentTime
	nextBlockTime := blockTime + blockDuration

	// §4.1.1 early exits.
	if r.state.ended {
		out.MakeSilent()
		return false
	}
	if r.startTime >= nextBlockTime {
		out.MakeSilent()
		return !math.IsInf(r.startTime, 1)
	}
	if r.buffer == nil {
		out.MakeSilent()
		r.bufferUnderruns++
		return false
	}

	// §4.1.2 parameter sampling.
	detune := float64(r.params.Get(r.detuneID)[0])
	playbackRate := float64(r.params.Get(r.rateID)[0])
	computedPlaybackRate := playbackRate * math.Exp2(detune/1200)

	bufferDuration := r.buffer.Duration()
	bufferLength := r.buffer.Length()

	// §4.1.3 sample-rate ratio.
	samplingRatio := float64(r.buffer.SampleRate()) / sampleRate

	bufferTime := r.state.bufferTime.load()

	out.Resize(r.buffer.NumChannels())

	// §4.1.4 start-time normalization: never play in the past.
	if !r.state.started && r.startTime < blockTime {
		r.startTime = blockTime
	}

	// §4.1.5 fast-path eligibility.
	if r.startTime == blockTime && r.offset == 0 {
		r.state.isAligned = true
	}
	if samplingRatio != 1 || computedPlaybackRate != 1 {
		r.state.isAligned = false
	}
	if r.loop.Start != 0 || r.loop.End != bufferDuration {
		r.state.isAligned = false
	}
	if bufferTime+blockDuration > r.duration || blockTime+blockDuration > r.stopTime {
		r.state.isAligned = false
	}

	if r.state.isAligned {
		bufferTime = r.fastPath(out, sampleRate, blockTime, blockDuration, bufferTime, bufferDuration, bufferLength)
		r.fastPathBlocks++
	} else {
		bufferTime = r.slowPath(out, sampleRate, dt, blockTime, bufferTime, bufferDuration, bufferLength, computedPlaybackRate, samplingRatio)
		r.slowPathBlocks++
	}

	// §4.1.8 end-of-block bookkeeping.
	r.state.bufferTime.store(bufferTime)

	if nextBlockTime >= r.stopTime ||
		r.state.bufferTimeElapsed >= r.duration ||
		(!r.loop.IsLooping && ((computedPlaybackRate > 0 && bufferTime >= bufferDuration) || (computedPlaybackRate < 0 && bufferTime < 0))) {
		r.state.ended = true
		scope.SendEndedEvent()
	}

	return true
}

// fastPath implements spec §4.1.6: allocation-free, interpolation-free
// straight copy from buffer to output.
func (r *Render) fastPath(out *quantum.Block, sampleRate, blockTime, blockDuration, bufferTime, bufferDuration float64, bufferLength int) float64 {
	if r.startTime == blockTime {
		r.state.started = true
	}

	if bufferTime+blockDuration > bufferDuration {
		// §4.1.6(b): block straddles the buffer end.
		endIndex := bufferLength
		loopPointIndex := -1

		for ch := 0; ch < r.buffer.NumChannels(); ch++ {
			src := r.buffer.Channel(ch)
			dst := out.Channel(ch)
			startIndex := int(math.Round(bufferTime * sampleRate))
			offset := 0

			for i := range dst {
				bufferIndex := startIndex + i - offset
				if bufferIndex < endIndex {
					dst[i] = src[bufferIndex]
					continue
				}
				if r.loop.IsLooping {
					loopPointIndex = i
					startIndex = 0
					offset = i
					bufferIndex = 0
					dst[i] = src[bufferIndex]
				} else {
					dst[i] = 0
				}
			}
		}

		if loopPointIndex >= 0 {
			bufferTime = math.Mod(float64(quantum.Length-loopPointIndex)/sampleRate, bufferDuration)
		} else {
			bufferTime += blockDuration
		}
	} else {
		// §4.1.6(a): block fully contained in the buffer.
		startIndex := int(math.Round(bufferTime * sampleRate))
		endIndex := startIndex + quantum.Length
		for ch := 0; ch < r.buffer.NumChannels(); ch++ {
			copy(out.Channel(ch), r.buffer.Channel(ch)[startIndex:endIndex])
		}
		bufferTime += blockDuration
	}

	r.state.bufferTimeElapsed += blockDuration
	return bufferTime
}

// slowPath implements spec §4.1.7: per-sample interpolated resampling,
// handling rate, detune, loop points, and sub-sample scheduling.
func (r *Render) slowPath(
	out *quantum.Block,
	sampleRate, dt, blockTime, bufferTime, bufferDuration float64,
	bufferLength int,
	computedPlaybackRate, samplingRatio float64,
) float64 {
	var actualLoopStart, actualLoopEnd float64
	if r.loop.IsLooping {
		if r.loop.Start >= 0 && r.loop.End > 0 && r.loop.Start < r.loop.End {
			actualLoopStart, actualLoopEnd = r.loop.Start, r.loop.End
		} else {
			actualLoopStart, actualLoopEnd = 0, bufferDuration
		}
	} else {
		r.state.enteredLoop = false
	}

	var infos [quantum.Length]playbackInfo

	for i := 0; i < quantum.Length; i++ {
		currentTime := blockTime + float64(i)*dt

		// Sticky start (spec §4.1.7 step 2).
		if !r.state.started && math.Abs(currentTime-r.startTime) < epsilon {
			r.startTime = currentTime
		}

		if currentTime < r.startTime || currentTime >= r.stopTime || r.state.bufferTimeElapsed >= r.duration {
			continue
		}

		if !r.state.started {
			delta := currentTime - r.startTime
			r.offset += delta * computedPlaybackRate

			if r.loop.IsLooping && computedPlaybackRate >= 0 && r.offset >= actualLoopEnd {
				r.offset = actualLoopEnd
			}
			if r.loop.IsLooping && computedPlaybackRate < 0 && r.offset < actualLoopStart {
				r.offset = actualLoopStart
			}

			bufferTime = r.offset
			r.state.bufferTimeElapsed = delta * computedPlaybackRate
			r.state.started = true
		}

		if r.loop.IsLooping {
			if !r.state.enteredLoop {
				if r.offset < actualLoopEnd && bufferTime >= actualLoopStart {
					r.state.enteredLoop = true
				}
				if r.offset >= actualLoopEnd && bufferTime < actualLoopEnd {
					r.state.enteredLoop = true
				}
			}
			if r.state.enteredLoop {
				loopLen := actualLoopEnd - actualLoopStart
				for bufferTime >= actualLoopEnd {
					bufferTime -= loopLen
				}
				for bufferTime < actualLoopStart {
					bufferTime += loopLen
				}
			}
		}

		if bufferTime >= 0 && bufferTime < bufferDuration {
			playhead := bufferTime * samplingRatio * sampleRate
			prev := math.Floor(playhead)
			k := playhead - prev
			prevIndex := int(prev)
			if prevIndex < bufferLength {
				infos[i] = playbackInfo{valid: true, prevIndex: prevIndex, k: k}
			}
		}

		timeIncr := dt * computedPlaybackRate
		bufferTime += timeIncr
		r.state.bufferTimeElapsed += timeIncr
	}

	for ch := 0; ch < r.buffer.NumChannels(); ch++ {
		src := r.buffer.Channel(ch)
		dst := out.Channel(ch)
		for i := 0; i < quantum.Length; i++ {
			info := infos[i]
			if !info.valid {
				dst[i] = 0
				continue
			}
			prevSample := float64(src[info.prevIndex])
			var nextSample float64
			if info.prevIndex+1 < bufferLength {
				nextSample = float64(src[info.prevIndex+1])
			} else if r.loop.IsLooping {
				if computedPlaybackRate >= 0 {
					startPlayhead := actualLoopStart * sampleRate
					startIndex := int(startPlayhead)
					if math.Floor(startPlayhead) != startPlayhead {
						startIndex++
					}
					nextSample = float64(r.buffer.Sample(ch, startIndex))
				} else {
					endIndex := int(actualLoopEnd * sampleRate)
					nextSample = float64(r.buffer.Sample(ch, endIndex))
				}
			} else {
				if math.Abs(info.k-1) < epsilon || info.prevIndex == 0 {
					nextSample = 0
				} else {
					nextSample = 2*prevSample - float64(src[info.prevIndex-1])
				}
			}
			dst[i] = float32((1-info.k)*prevSample + info.k*nextSample)
		}
	}

	return bufferTime
}
