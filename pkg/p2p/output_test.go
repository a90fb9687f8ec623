package p2p

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// capturingTransport is a ByteWriter that records every byte written and
// can be told to accept only a limited number of bytes per Write call, to
// exercise partial-write handling.
type capturingTransport struct {
	written     []byte
	burstMax    int
	nsPerByte   int64
	maxPerWrite int // 0 means unlimited
}

func (t *capturingTransport) Write(buf []byte) int {
	n := len(buf)
	if t.maxPerWrite > 0 && n > t.maxPerWrite {
		n = t.maxPerWrite
	}
	t.written = append(t.written, buf[:n]...)
	return n
}

func (t *capturingTransport) BurstMaxLength() int { return t.burstMax }

func (t *capturingTransport) BurstIngestionNanosecondsPerByte() int64 { return t.nsPerByte }

func TestOutputStreamSendsCommittedPacket(t *testing.T) {
	buffer := NewPriorityBuffer()
	transport := &capturingTransport{burstMax: 1024, nsPerByte: 1}
	out := NewOutputStream(transport, buffer)

	slot := out.NewPacket(PriorityMedium).Value()
	require.NotNil(t, slot)
	content := []byte{1, 2, 3, 4}
	copy(slot.Content(), content)
	slot.Header.Length = uint16(len(content))
	require.True(t, out.Commit(PriorityMedium))

	now := int64(0)
	for i := 0; i < 10; i++ {
		wait := out.Run(now)
		now += wait
		if wait == 0 && buffer.OldestValue().Ok() == false {
			break
		}
	}

	require.GreaterOrEqual(t, len(transport.written), HeaderSize+len(content)+FooterSize)
	assert.Equal(t, StartToken, transport.written[0])
}

func TestOutputStreamPacesBurstsAcrossMultipleWrites(t *testing.T) {
	buffer := NewPriorityBuffer()
	// Small burst max forces multiple SendingBurst/WaitingForBurstIngestion
	// cycles for one packet.
	transport := &capturingTransport{burstMax: 4, nsPerByte: 1000}
	out := NewOutputStream(transport, buffer)

	content := make([]byte, 20)
	for i := range content {
		content[i] = byte(i)
	}
	slot := out.NewPacket(PriorityLow).Value()
	copy(slot.Content(), content)
	slot.Header.Length = uint16(len(content))
	require.True(t, out.Commit(PriorityLow))

	totalFrameLen := HeaderSize + len(content) + FooterSize
	now := int64(0)
	for i := 0; i < 10000 && len(transport.written) < totalFrameLen; i++ {
		wait := out.Run(now)
		now += wait
	}
	assert.GreaterOrEqual(t, len(transport.written), totalFrameLen)
}

func TestOutputStreamRecomputesBurstEndOnUnderDeliveredWrite(t *testing.T) {
	buffer := NewPriorityBuffer()
	// maxPerWrite forces every Write to under-deliver relative to what's
	// requested, including the write that starts a fresh burst out of
	// WaitingForBurstIngestion.
	transport := &capturingTransport{burstMax: 10, nsPerByte: 1000, maxPerWrite: 6}
	out := NewOutputStream(transport, buffer)

	content := make([]byte, 12)
	for i := range content {
		content[i] = byte(0x40 + i) // avoid StartToken/SpecialToken values
	}
	slot := out.NewPacket(PriorityMedium).Value()
	require.NotNil(t, slot)
	copy(slot.Content(), content)
	slot.Header.Length = uint16(len(content))
	require.True(t, out.Commit(PriorityMedium))

	// GettingNextPacket -> SendingBurst: first write of the first burst
	// (10 requested) under-delivers to 6, so burstEndNs must be derived
	// from 6 bytes' ingestion time, not 10's.
	wait := out.Run(0)
	assert.Equal(t, int64(0), wait)
	assert.Equal(t, stateSendingBurst, out.state)
	assert.Equal(t, int64(6000), out.burstEndNs)
	assert.Equal(t, 4, out.pendingBurstBytes)
	assert.Equal(t, 17, out.pendingPacketBytes)

	// Remainder of the first burst (4 bytes) fits under maxPerWrite, so it
	// completes in one write.
	wait = out.Run(0)
	assert.Equal(t, int64(0), wait)
	assert.Equal(t, 0, out.pendingBurstBytes)
	assert.Equal(t, 13, out.pendingPacketBytes)

	// pendingBurstBytes is now 0: this Run transitions to
	// WaitingForBurstIngestion without writing.
	wait = out.Run(0)
	assert.Equal(t, int64(0), wait)
	assert.Equal(t, stateWaitingForBurstIngestion, out.state)

	// Still mid-ingestion: Run must not start a new burst early.
	wait = out.Run(0)
	assert.Equal(t, int64(6000), wait)

	// Ingestion deadline reached with 13 bytes of packet still pending:
	// WaitingForBurstIngestion starts a fresh burst (10 requested), whose
	// write again under-delivers to 6, so burstEndNs must again be
	// recomputed from bytes actually written.
	wait = out.Run(6000)
	assert.Equal(t, int64(0), wait)
	assert.Equal(t, stateSendingBurst, out.state)
	assert.Equal(t, int64(12000), out.burstEndNs)
	assert.Equal(t, 4, out.pendingBurstBytes)
	assert.Equal(t, 7, out.pendingPacketBytes)
}

func TestOutputStreamCommitQueuesHighAheadOfLowInBuffer(t *testing.T) {
	buffer := NewPriorityBuffer()
	transport := &capturingTransport{burstMax: 2, nsPerByte: 0}
	out := NewOutputStream(transport, buffer)

	lowSlot := out.NewPacket(PriorityLow).Value()
	lowSlot.Content()[0] = 0xAA
	lowSlot.Header.Length = 1
	require.True(t, out.Commit(PriorityLow))

	highSlot := out.NewPacket(PriorityHigh).Value()
	highSlot.Content()[0] = 0xBB
	highSlot.Header.Length = 1
	require.True(t, out.Commit(PriorityHigh))

	// Nothing sent yet: verify the buffer picks High first.
	_, pkt, ok := buffer.OldestWithPriority()
	require.True(t, ok)
	assert.EqualValues(t, PriorityHigh, pkt.Header.Priority)
}
