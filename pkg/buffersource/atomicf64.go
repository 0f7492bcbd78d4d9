package buffersource

import (
	"math"
	"sync/atomic"
)

// atomicF64 is a single 64-bit relaxed atomic holding a float64 (spec §5:
// "buffer_time is a single 64-bit atomic (relaxed)"). Go has no
// atomic.Float64, so this mirrors atomic.Uint64 via bit reinterpretation,
// the same trick the teacher's param.Parameter uses for its normalized
// value.
type atomicF64 struct {
	bits atomic.Uint64
}

func (a *atomicF64) store(v float64) {
	a.bits.Store(math.Float64bits(v))
}

func (a *atomicF64) load() float64 {
	return math.Float64frombits(a.bits.Load())
}
