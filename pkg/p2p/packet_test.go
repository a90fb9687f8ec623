package p2p

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func packetWithContent(t *testing.T, content []byte) *Packet {
	t.Helper()
	pkt := &Packet{}
	pkt.Header.Length = uint16(len(content))
	copy(pkt.Content(), content)
	return pkt
}

func TestPrepareToSendThenReadRoundTrips(t *testing.T) {
	cases := [][]byte{
		{},
		{0x01, 0x02, 0x03, 0x04},
		{0x01, StartToken, 0x03},
		{StartToken, StartToken, StartToken},
		{StartToken},
		bytesRange(0, 255),
	}
	for _, content := range cases {
		pkt := packetWithContent(t, content)
		pkt.Header.Priority = PriorityMedium
		require.True(t, pkt.PrepareToSend(), "PrepareToSend(%v)", content)
		wireHasNoUnescapedTokens(t, pkt.WireContent())
		require.True(t, pkt.PrepareToRead(), "PrepareToRead(%v)", content)
		assert.Equal(t, content, append([]byte{}, pkt.WireContent()...))
	}
}

func wireHasNoUnescapedTokens(t *testing.T, wire []byte) {
	t.Helper()
	for i := 0; i < len(wire); i++ {
		if wire[i] == StartToken {
			require.Less(t, i+1, len(wire), "trailing unescaped StartToken")
			require.Equal(t, SpecialToken, wire[i+1])
			i++
		}
	}
}

func bytesRange(start, count int) []byte {
	b := make([]byte, count)
	for i := range b {
		b[i] = byte(start + i)
	}
	return b
}

func TestPrepareToSendFailsWhenEscapedContentOverflows(t *testing.T) {
	content := make([]byte, MaxContentLength)
	for i := range content {
		content[i] = StartToken
	}
	pkt := packetWithContent(t, content)
	assert.False(t, pkt.PrepareToSend())
}

func TestPrepareToReadRejectsChecksumMismatch(t *testing.T) {
	pkt := packetWithContent(t, []byte{1, 2, 3})
	require.True(t, pkt.PrepareToSend())
	pkt.buf[0] ^= 0xFF // corrupt the first content byte after escaping
	assert.False(t, pkt.PrepareToRead())
}

func TestPrepareToReadRejectsTrailingUnescapedStartToken(t *testing.T) {
	pkt := &Packet{}
	pkt.Header.Length = 1
	pkt.Content()[0] = StartToken
	// Bypass PrepareToSend's own escaping to synthesize a malformed frame:
	// checksum matches the (malformed) content so only the escape check
	// can catch it.
	pkt.Header.Length = 1
	checksum := computeChecksum(pkt.Header, pkt.buf[:1])
	copy(pkt.footerSlot(1), Footer{Checksum: checksum}.MarshalBinary())
	assert.False(t, pkt.PrepareToRead())
}

func TestSequenceNumberNextAvoidsTokens(t *testing.T) {
	var seq SequenceNumber
	for i := 0; i < 100000; i++ {
		for _, b := range seq {
			require.Less(t, b, LowestToken)
		}
		seq = seq.Next()
	}
}

func TestHeaderRoundTrip(t *testing.T) {
	h := Header{
		Priority:       PriorityHigh,
		IsContinuation: true,
		Length:         1234,
		Sequence:       SequenceNumber{1, 2, 3, 4},
	}
	wire := h.MarshalBinary()
	require.Equal(t, StartToken, wire[0])
	got := UnmarshalHeaderBody(wire[1:])
	assert.Equal(t, h, got)
}
