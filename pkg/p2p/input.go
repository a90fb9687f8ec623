package p2p

import "github.com/golang/glog"

type inputState int

const (
	stateWaitingForPacket inputState = iota
	stateReadingHeader
	stateReadingContent
	stateDisambiguatingStartTokenInContent
	stateReadingFooter
)

// InputStream reads bytes from a transport, resynchronizes on StartToken,
// reassembles packets (including continuations of preempted lower
// priority packets), validates their checksum, and enqueues them into a
// PriorityBuffer. Run never blocks: it consumes at most one byte per call
// and returns; callers drive progress by invoking Run repeatedly.
type InputStream struct {
	transport ByteReader
	buffer    *PriorityBuffer

	state inputState

	// headerBytes holds the raw wire bytes of the header currently being
	// assembled, including the leading StartToken at index 0.
	headerBytes  [HeaderSize]byte
	headerFilled int // bytes read so far of the current header, content or footer

	priority Priority // priority of the packet currently being assembled

	readBuf [1]byte
}

// NewInputStream creates an InputStream reading from transport and
// delivering complete packets into buffer.
func NewInputStream(transport ByteReader, buffer *PriorityBuffer) *InputStream {
	return &InputStream{transport: transport, buffer: buffer}
}

func (s *InputStream) readByte() (byte, bool) {
	if s.transport.Read(s.readBuf[:]) < 1 {
		return 0, false
	}
	return s.readBuf[0], true
}

func (s *InputStream) startNewHeader(first byte) {
	s.headerBytes[0] = first
	s.headerFilled = 1
	s.state = stateReadingHeader
}

func (s *InputStream) currentSlot() *Packet {
	return s.buffer.Reserve(s.priority).Value()
}

// Run consumes at most one byte from the transport and advances the
// assembly state machine by at most one transition. All malformed input
// and continuation mismatches are recovered locally by resynchronizing on
// the next StartToken; Run never returns an error.
func (s *InputStream) Run() {
	switch s.state {
	case stateWaitingForPacket:
		s.runWaitingForPacket()
	case stateReadingHeader:
		s.runReadingHeader()
	case stateReadingContent:
		s.runReadingContent()
	case stateDisambiguatingStartTokenInContent:
		s.runDisambiguating()
	case stateReadingFooter:
		s.runReadingFooter()
	}
}

func (s *InputStream) runWaitingForPacket() {
	b, ok := s.readByte()
	if !ok {
		return
	}
	if b == StartToken {
		s.startNewHeader(b)
	}
}

func (s *InputStream) runReadingHeader() {
	if s.headerFilled >= HeaderSize {
		s.finishHeader()
		return
	}
	b, ok := s.readByte()
	if !ok {
		return
	}
	s.headerBytes[s.headerFilled] = b
	s.headerFilled++
	if b == StartToken {
		// Assume a restart after link interruption: priority takeover is
		// not legal mid-header.
		s.startNewHeader(StartToken)
		return
	}
	if b == SpecialToken {
		glog.Warningf("p2p: special token mid-header, resynchronizing")
		s.state = stateWaitingForPacket
	}
}

func (s *InputStream) finishHeader() {
	incoming := UnmarshalHeaderBody(s.headerBytes[1:])
	if !incoming.Priority.Valid() {
		glog.Warningf("p2p: invalid priority %d, resynchronizing", incoming.Priority)
		s.state = stateWaitingForPacket
		return
	}
	s.priority = incoming.Priority
	slot := s.currentSlot()
	if slot == nil {
		// No room to reserve a new packet at this priority: drop it and
		// resynchronize, same as any other recoverable condition.
		glog.Warningf("p2p: priority buffer full at %s, dropping packet", s.priority)
		s.state = stateWaitingForPacket
		return
	}
	if !incoming.IsContinuation {
		slot.Header = incoming
		s.state = stateReadingContent
		s.headerFilled = 0
		return
	}
	remaining := incoming.Length
	if incoming.Sequence != slot.Header.Sequence || remaining > slot.Header.Length {
		// Continuation doesn't belong to the packet in store: a link
		// interruption happened. Reset and resynchronize.
		glog.Warningf("p2p: continuation mismatch at %s, resynchronizing", s.priority)
		s.state = stateWaitingForPacket
		return
	}
	s.headerFilled = int(slot.Header.Length - remaining)
	s.state = stateReadingContent
}

func (s *InputStream) runReadingContent() {
	slot := s.currentSlot()
	if slot == nil {
		s.state = stateWaitingForPacket
		return
	}
	if s.headerFilled >= int(slot.Header.Length) {
		s.state = stateReadingFooter
		s.headerFilled = 0
		return
	}
	b, ok := s.readByte()
	if !ok {
		return
	}
	slot.Content()[s.headerFilled] = b
	s.headerFilled++
	if b != StartToken {
		return
	}
	if s.headerFilled < int(slot.Header.Length) {
		// Could be a start token, if the next byte isn't a special token.
		s.state = stateDisambiguatingStartTokenInContent
		return
	}
	// Last content byte: can't be followed by a special token, so assume
	// it begins a preempting (or post-interruption) header. Policy, not a
	// malformed-packet heuristic: see the "last content byte" open
	// question resolution.
	s.startNewHeader(StartToken)
}

func (s *InputStream) runDisambiguating() {
	slot := s.currentSlot()
	if slot == nil {
		s.state = stateWaitingForPacket
		return
	}
	b, ok := s.readByte()
	if !ok {
		return
	}
	slot.Content()[s.headerFilled] = b
	s.headerFilled++
	switch b {
	case SpecialToken:
		// Escaped content byte: collapsing happens in PrepareToRead.
		s.state = stateReadingContent
	case StartToken:
		// Either a new packet after link reestablishment, or a higher
		// priority packet preempting this one.
		s.startNewHeader(StartToken)
	default:
		// The earlier StartToken really was a header start, and b is its
		// second byte.
		s.headerBytes[0] = StartToken
		s.headerBytes[1] = b
		s.headerFilled = 2
		s.state = stateReadingHeader
	}
}

func (s *InputStream) runReadingFooter() {
	slot := s.currentSlot()
	if slot == nil {
		s.state = stateWaitingForPacket
		return
	}
	if s.headerFilled >= FooterSize {
		s.completeFooter(slot)
		return
	}
	footerByte := slot.buf[int(slot.Header.Length)+s.headerFilled : int(slot.Header.Length)+s.headerFilled+1]
	n := s.transport.Read(footerByte)
	if n < 1 {
		return
	}
	b := footerByte[0]
	s.headerFilled++
	if b == StartToken {
		// No priority takeover allowed mid-footer: must be a new packet.
		s.startNewHeader(StartToken)
		return
	}
	if b == SpecialToken {
		glog.Warningf("p2p: special token mid-footer, resynchronizing")
		s.state = stateWaitingForPacket
		return
	}
	if s.headerFilled >= FooterSize {
		s.completeFooter(slot)
	}
}

func (s *InputStream) completeFooter(slot *Packet) {
	if slot.PrepareToRead() {
		s.buffer.Commit(s.priority)
	} else {
		glog.Warningf("p2p: checksum/escape mismatch at %s, dropping packet", s.priority)
	}
	s.state = stateWaitingForPacket
}
