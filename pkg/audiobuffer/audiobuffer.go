// Package audiobuffer provides an immutable, multi-channel PCM container.
package audiobuffer

import "fmt"

// Buffer is an immutable in-memory audio buffer: an ordered sequence of
// channels, each an ordered sequence of equal-length f32 samples, plus the
// sample rate the samples were authored at.
//
// A Buffer's channel slices are never mutated after construction. Clone is
// therefore a plain struct copy: the new value shares the same backing
// arrays as the original, so handing a clone to the render thread never
// allocates and never deallocates on that thread, satisfying the
// render-thread-must-not-allocate rule (spec §5) for buffer swaps.
type Buffer struct {
	channels   [][]float32
	sampleRate float32
}

// New constructs a Buffer from channel data. All channels must have equal
// length; New panics otherwise, since a length mismatch can only be a
// programmer error (it can never arise from valid scheduling input).
func New(sampleRate float32, channels [][]float32) *Buffer {
	if sampleRate <= 0 {
		panic(fmt.Sprintf("audiobuffer: sample rate must be positive, got %v", sampleRate))
	}
	if len(channels) > 0 {
		n := len(channels[0])
		for i, ch := range channels {
			if len(ch) != n {
				panic(fmt.Sprintf("audiobuffer: channel %d has length %d, want %d", i, len(ch), n))
			}
		}
	}
	return &Buffer{channels: channels, sampleRate: sampleRate}
}

// Clone returns a cheap copy that shares underlying sample storage with b.
func (b *Buffer) Clone() *Buffer {
	if b == nil {
		return nil
	}
	clone := *b
	return &clone
}

// NumChannels returns the channel count.
func (b *Buffer) NumChannels() int {
	if b == nil {
		return 0
	}
	return len(b.channels)
}

// Length returns N, the number of samples per channel (0 if there are no
// channels).
func (b *Buffer) Length() int {
	if b == nil || len(b.channels) == 0 {
		return 0
	}
	return len(b.channels[0])
}

// SampleRate returns the buffer's authored sample rate.
func (b *Buffer) SampleRate() float32 {
	if b == nil {
		return 0
	}
	return b.sampleRate
}

// Duration returns N / sample_rate, in seconds.
func (b *Buffer) Duration() float64 {
	if b == nil {
		return 0
	}
	return float64(b.Length()) / float64(b.sampleRate)
}

// Channel returns the sample slice for channel i. Callers must not mutate
// the returned slice.
func (b *Buffer) Channel(i int) []float32 {
	return b.channels[i]
}

// Sample returns the sample at channel ch, frame i, or 0 if i is out of
// range. Used by the slow-path resampler, which routinely probes one frame
// past or before a valid index while absorbing float drift (spec §4.1.7).
func (b *Buffer) Sample(ch, i int) float32 {
	if i < 0 || i >= b.Length() {
		return 0
	}
	return b.channels[ch][i]
}
