package param

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"
)

func TestNewParameterStartsAtDefault(t *testing.T) {
	p := NewParameter(PlaybackRateDescriptor)
	assert.Equal(t, float32(1), p.Value())
}

func TestSetValueClampsToRange(t *testing.T) {
	d := Descriptor{Name: "x", MinValue: -1, MaxValue: 1, DefaultValue: 0}
	p := NewParameter(d)

	p.SetValue(5)
	assert.Equal(t, float32(1), p.Value())

	p.SetValue(-5)
	assert.Equal(t, float32(-1), p.Value())

	p.SetValue(0.25)
	assert.Equal(t, float32(0.25), p.Value())
}

func TestRegistryGetReturnsOneSampleScratch(t *testing.T) {
	r := NewRegistry()
	p := NewParameter(DetuneDescriptor)
	p.SetValue(100)
	r.Add(1, p)

	got := r.Get(1)
	if assert.Len(t, got, 1) {
		assert.Equal(t, float32(100), got[0])
	}
}

func TestRegistryGetUnknownIDReturnsNil(t *testing.T) {
	r := NewRegistry()
	assert.Nil(t, r.Get(99))
}

func TestRegistryParameterReturnsUnderlyingHandle(t *testing.T) {
	r := NewRegistry()
	p := NewParameter(DetuneDescriptor)
	r.Add(1, p)
	assert.Same(t, p, r.Parameter(1))
}

func TestSetValueAlwaysWithinRangeProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		min := rapid.Float32Range(-1000, 0).Draw(t, "min")
		max := rapid.Float32Range(0, 1000).Draw(t, "max")
		v := rapid.Float32Range(-10000, 10000).Draw(t, "v")

		p := NewParameter(Descriptor{Name: "p", MinValue: min, MaxValue: max, DefaultValue: min})
		p.SetValue(v)

		got := p.Value()
		if got < min || got > max {
			t.Fatalf("SetValue(%v) with range [%v,%v] produced out-of-range %v", v, min, max, got)
		}
	})
}
