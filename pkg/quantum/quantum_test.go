package quantum

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewAllocatesLengthSamples(t *testing.T) {
	b := New(2)
	require.Equal(t, 2, b.NumChannels())
	for ch := 0; ch < 2; ch++ {
		assert.Len(t, b.Channel(ch), Length)
	}
}

func TestResizeGrowReusesCapacity(t *testing.T) {
	b := New(2)
	b.Channel(0)[0] = 1
	b.Resize(4)
	require.Equal(t, 4, b.NumChannels())
	assert.Equal(t, float32(1), b.Channel(0)[0], "growing must not disturb a channel already present")
	for ch := 2; ch < 4; ch++ {
		assert.Len(t, b.Channel(ch), Length)
	}
}

func TestResizeShrinkThenGrowRestoresOldData(t *testing.T) {
	b := New(4)
	b.Channel(3)[5] = 9
	b.Resize(2)
	b.Resize(4)
	assert.Equal(t, float32(9), b.Channel(3)[5], "shrink-then-grow within capacity must not reallocate or zero")
}

func TestMakeSilentZeroesAndMarks(t *testing.T) {
	b := New(1)
	b.Channel(0)[0] = 42
	b.MakeSilent()
	assert.True(t, b.IsSilent())
	assert.Equal(t, float32(0), b.Channel(0)[0])
}

func TestResizeClearsSilentFlag(t *testing.T) {
	b := New(1)
	b.MakeSilent()
	b.Resize(2)
	assert.False(t, b.IsSilent(), "a freshly resized block is not implicitly silent")
}

func TestChannelsReturnsUnderlyingSlice(t *testing.T) {
	b := New(2)
	chans := b.Channels()
	require.Len(t, chans, 2)
	chans[0][0] = 7
	assert.Equal(t, float32(7), b.Channel(0)[0])
}
