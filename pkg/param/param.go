// Package param implements the k-rate parameter sampler: each render block,
// a Registry yields one value per parameter id, read by render-side
// processors through the narrow ValueAccessor interface declared in
// spec §6 ("the parameter automation engine [is consumed] only through
// narrow interfaces").
package param

import (
	"math"
	"sync/atomic"
)

// Rate is a parameter's automation rate.
type Rate int

const (
	// KRate parameters are sampled once per block.
	KRate Rate = iota
	// ARate parameters would be sampled once per sample; no parameter in
	// this engine uses it (spec Non-goals: "supporting a-rate automation
	// of playback-rate or detune"), but the type exists so a future
	// automation engine has somewhere to plug in without an API break.
	ARate
)

// Descriptor is a parameter's static shape (spec §6).
type Descriptor struct {
	Name         string
	MinValue     float32
	MaxValue     float32
	DefaultValue float32
	Rate         Rate
	// RateFixed is set for parameters the engine constrains to k-rate
	// regardless of what a host automation system might otherwise allow
	// (detune, playback_rate).
	RateFixed bool
}

// DetuneDescriptor and PlaybackRateDescriptor are the two constrained
// k-rate parameters the buffer-source engine reads every block (spec §6).
var (
	DetuneDescriptor = Descriptor{
		Name: "detune", MinValue: -math.MaxFloat32, MaxValue: math.MaxFloat32,
		DefaultValue: 0, Rate: KRate, RateFixed: true,
	}
	PlaybackRateDescriptor = Descriptor{
		Name: "playback_rate", MinValue: -math.MaxFloat32, MaxValue: math.MaxFloat32,
		DefaultValue: 1, Rate: KRate, RateFixed: true,
	}
)

// Parameter is a single automatable value: control-side writers call
// SetValue; the render side reads it via Registry.Get, which never blocks
// and never allocates (a single atomic load).
type Parameter struct {
	Descriptor
	bits    atomic.Uint64
	scratch [1]float32
}

// NewParameter constructs a parameter initialized to its descriptor's
// default value.
func NewParameter(d Descriptor) *Parameter {
	p := &Parameter{Descriptor: d}
	p.bits.Store(math.Float64bits(float64(d.DefaultValue)))
	return p
}

// SetValue clamps v to [Min, Max] and stores it. Safe to call from any
// goroutine; never called from the render thread.
func (p *Parameter) SetValue(v float32) {
	if v < p.MinValue {
		v = p.MinValue
	} else if v > p.MaxValue {
		v = p.MaxValue
	}
	p.bits.Store(math.Float64bits(float64(v)))
}

// Value returns the current value via a single atomic load.
func (p *Parameter) Value() float32 {
	return float32(math.Float64frombits(p.bits.Load()))
}

// ValueAccessor is the render-side read interface: Get returns a slice of
// length >= 1 for the given parameter id. K-rate readers use only index 0;
// a longer slice (an a-rate parameter's per-sample values, were one ever
// added) is not an error (spec §4.2).
type ValueAccessor interface {
	Get(id uint32) []float32
}

// Registry owns a fixed set of parameters, keyed by a small integer id
// assigned at registration time. It implements ValueAccessor.
type Registry struct {
	byID map[uint32]*Parameter
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{byID: make(map[uint32]*Parameter)}
}

// Add registers a parameter under id. Adding the same id twice replaces
// the previous parameter; this is a control-side setup operation, never
// called once the context is rendering.
func (r *Registry) Add(id uint32, p *Parameter) {
	r.byID[id] = p
}

// Get implements ValueAccessor. The length >= 1 guarantee holds for
// registered ids only: an unregistered id returns nil, and a reader that
// indexes element 0 of the result panics on it.
func (r *Registry) Get(id uint32) []float32 {
	p, ok := r.byID[id]
	if !ok {
		return nil
	}
	p.scratch[0] = p.Value()
	return p.scratch[:]
}

// Parameter returns the control-side handle for id, or nil.
func (r *Registry) Parameter(id uint32) *Parameter {
	return r.byID[id]
}
