// Package ringbuffer provides a lock-free, single-producer/single-consumer
// queue of render quanta for decoupling the render thread from the audio
// backend's pull callback: a render goroutine pushes one quantum's worth of
// interleaved samples at a time, and the callback only ever pops from it, so
// a GC pause or a slow render block delays the write side without the
// hardware callback ever blocking.
//
// Unlike a raw sample-indexed circular byte buffer, OutputRing's unit of
// work is the render quantum itself: capacity, the write-ahead lead-in, and
// health are all expressed in whole quanta, the unit every other render-side
// component in this module already thinks in, rather than in bytes or
// individual samples.
package ringbuffer

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/justyntemme/webaudiograph/pkg/quantum"
)

// Stats is a point-in-time health snapshot, safe to read from any goroutine.
type Stats struct {
	Underruns      uint64
	Overruns       uint64
	FillPercentage float32
	CurrentLatency time.Duration
}

// OutputRing is a ring of fixed-size slots, one render quantum of
// interleaved samples each. The producer (a render goroutine calling
// Write, one quantum at a time) and the consumer (an audio callback
// calling Read, any length at a time) coordinate through head/tail alone,
// via atomics; readOffset tracks partial consumption of the slot at head
// and is touched only by Read, so neither side ever spins a CAS loop
// against the other.
type OutputRing struct {
	slots         [][]float32
	slotSamples   int
	capacitySlots uint32
	mask          uint32
	sampleRate    float64

	head       uint64 // atomic; slot index the consumer is currently draining
	tail       uint64 // atomic; slot index the producer will write next
	readOffset int     // consumer-owned; samples already taken from slots[head&mask]

	underruns uint64
	overruns  uint64
}

// New converts latency to latencyQuanta, the nearest whole number of render
// quanta (at least one), and sizes the ring to four times that, rounded up
// to a power of two slot count (so wrap-around is a mask, not a modulo).
// The ring starts with tail
// already latencyQuanta slots ahead of head — over slots that are still
// zero from make(), not yet written — so the very first Read calls return
// a silent lead-in instead of an immediate underrun, giving the producer
// one quantum-grid's worth of headroom to catch up before real audio is
// due.
func New(sampleRate float64, channels int, latency time.Duration) *OutputRing {
	quantumDuration := float64(quantum.Length) / sampleRate
	latencyQuanta := uint32(latency.Seconds()/quantumDuration + 0.5)
	if latencyQuanta < 1 {
		latencyQuanta = 1
	}

	capacitySlots := nextPowerOf2(latencyQuanta * 4)
	slotSamples := quantum.Length * channels

	slots := make([][]float32, capacitySlots)
	for i := range slots {
		slots[i] = make([]float32, slotSamples)
	}

	return &OutputRing{
		slots:         slots,
		slotSamples:   slotSamples,
		capacitySlots: capacitySlots,
		mask:          capacitySlots - 1,
		sampleRate:    sampleRate,
		tail:          uint64(latencyQuanta),
	}
}

// Write pushes one render quantum's worth of interleaved samples. samples
// must be exactly one quantum long (quantum.Length * channels); Write
// fails without copying if no slot is free, rather than overwriting
// unread data.
func (r *OutputRing) Write(samples []float32) error {
	if len(samples) != r.slotSamples {
		return fmt.Errorf("ringbuffer: write must be exactly one render quantum (%d samples), got %d", r.slotSamples, len(samples))
	}

	head := atomic.LoadUint64(&r.head)
	tail := atomic.LoadUint64(&r.tail)
	if tail-head >= uint64(r.capacitySlots) {
		atomic.AddUint64(&r.overruns, 1)
		return fmt.Errorf("ringbuffer: overrun, no free slot available")
	}

	copy(r.slots[tail&uint64(r.mask)], samples)
	atomic.AddUint64(&r.tail, 1)
	return nil
}

// Read fills output with the next interleaved samples, consuming whole
// slots as it drains them and carrying a partial slot's offset across
// calls. Any unfilled tail (the ring ran dry) is zeroed, never left
// stale, and counted as one underrun.
func (r *OutputRing) Read(output []float32) int {
	filled := 0
	for filled < len(output) {
		head := atomic.LoadUint64(&r.head)
		tail := atomic.LoadUint64(&r.tail)
		if head >= tail {
			break
		}

		slot := r.slots[head&uint64(r.mask)]
		available := len(slot) - r.readOffset
		n := len(output) - filled
		if n > available {
			n = available
		}

		copy(output[filled:filled+n], slot[r.readOffset:r.readOffset+n])
		filled += n
		r.readOffset += n

		if r.readOffset == len(slot) {
			r.readOffset = 0
			atomic.AddUint64(&r.head, 1)
		}
	}

	if filled < len(output) {
		atomic.AddUint64(&r.underruns, 1)
		for i := filled; i < len(output); i++ {
			output[i] = 0
		}
	}
	return filled
}

// Health returns a snapshot of the ring's current statistics.
func (r *OutputRing) Health() Stats {
	head := atomic.LoadUint64(&r.head)
	tail := atomic.LoadUint64(&r.tail)

	var queued uint32
	if tail > head {
		queued = uint32(tail - head)
	}

	fillPercentage := float32(queued) / float32(r.capacitySlots) * 100.0
	latencyFrames := float64(queued) * float64(quantum.Length)
	latency := time.Duration(latencyFrames / r.sampleRate * float64(time.Second))

	return Stats{
		Underruns:      atomic.LoadUint64(&r.underruns),
		Overruns:       atomic.LoadUint64(&r.overruns),
		FillPercentage: fillPercentage,
		CurrentLatency: latency,
	}
}

func nextPowerOf2(n uint32) uint32 {
	if n == 0 {
		return 1
	}
	n--
	n |= n >> 1
	n |= n >> 2
	n |= n >> 4
	n |= n >> 8
	n |= n >> 16
	n++
	return n
}
