package graph

import "sync/atomic"

// clock tracks the render thread's monotonic position, as a frame count
// advanced only by the render thread and read from either side via a
// single atomic (spec §5: "current_time is derived from an atomic frame
// counter advanced only by the render thread").
type clock struct {
	frame      atomic.Uint64
	sampleRate float32
}

func newClock(sampleRate float32) *clock {
	return &clock{sampleRate: sampleRate}
}

// now returns the current_time in seconds.
func (c *clock) now() float64 {
	return float64(c.frame.Load()) / float64(c.sampleRate)
}

// advance moves the clock forward by one render quantum. Called once per
// block, after processing, by the render thread only.
func (c *clock) advance(blockLen int) {
	c.frame.Add(uint64(blockLen))
}
