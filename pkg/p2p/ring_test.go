package p2p

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPriorityBufferReserveFullFails(t *testing.T) {
	b := NewPriorityBuffer()
	for i := 0; i < RingCapacity; i++ {
		res := b.Reserve(PriorityLow)
		require.True(t, res.Ok())
		b.Commit(PriorityLow)
	}
	res := b.Reserve(PriorityLow)
	assert.False(t, res.Ok())
	assert.Equal(t, StatusUnavailable, res.Status())
}

func TestPriorityBufferOldestPrefersHighestNonEmpty(t *testing.T) {
	b := NewPriorityBuffer()
	b.Reserve(PriorityLow).Value().Header.Length = 1
	b.Commit(PriorityLow)
	b.Reserve(PriorityHigh).Value().Header.Length = 2
	b.Commit(PriorityHigh)

	p, pkt, ok := b.OldestWithPriority()
	require.True(t, ok)
	assert.Equal(t, PriorityHigh, p)
	assert.EqualValues(t, 2, pkt.Header.Length)

	b.Consume()
	p, pkt, ok = b.OldestWithPriority()
	require.True(t, ok)
	assert.Equal(t, PriorityLow, p)
	assert.EqualValues(t, 1, pkt.Header.Length)
}

func TestPriorityBufferFIFOWithinPriority(t *testing.T) {
	b := NewPriorityBuffer()
	for i := 0; i < 3; i++ {
		slot := b.Reserve(PriorityMedium).Value()
		slot.Header.Length = uint16(i)
		b.Commit(PriorityMedium)
	}
	for want := 0; want < 3; want++ {
		pkt := b.OldestValue().Value()
		require.NotNil(t, pkt)
		assert.EqualValues(t, want, pkt.Header.Length)
		b.Consume()
	}
	assert.False(t, b.OldestValue().Ok())
}
