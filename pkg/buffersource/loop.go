package buffersource

// LoopState is a buffer-source node's looping configuration (spec §3).
type LoopState struct {
	IsLooping bool
	Start     float64 // seconds
	End       float64 // seconds
}

// clamp applies spec §3's loop-bound clamp: Start is pulled into
// [0, duration]; End is reset to duration if it is non-positive or past
// duration. A logically invalid pair (Start >= End) is left as-is — the
// render side treats that as "loop the whole buffer" (spec §4.1.7,
// resolved Open Question (a) in SPEC_FULL.md).
func (l LoopState) clamp(duration float64) LoopState {
	if l.Start < 0 {
		l.Start = 0
	} else if l.Start > duration {
		l.Start = duration
	}
	if l.End <= 0 || l.End > duration {
		l.End = duration
	}
	return l
}
