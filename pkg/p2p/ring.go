package p2p

// RingCapacity is the number of packet slots held per priority level.
const RingCapacity = 8

// priorityRing is a fixed-capacity FIFO of packets for a single priority
// level, backed by a plain array the way the teacher hand-rolls its other
// small fixed-size queues rather than reaching for a container library.
type priorityRing struct {
	slots [RingCapacity]Packet
	head  int // index of oldest committed packet
	count int // number of committed packets
}

func (r *priorityRing) empty() bool {
	return r.count == 0
}

func (r *priorityRing) full() bool {
	return r.count == RingCapacity
}

// reserve returns the slot the next commit will land in, without
// advancing count. It's valid to write into the returned pointer any
// number of times before Commit.
func (r *priorityRing) reserve() *Packet {
	idx := (r.head + r.count) % RingCapacity
	return &r.slots[idx]
}

func (r *priorityRing) commit() {
	r.count++
}

func (r *priorityRing) oldest() *Packet {
	if r.empty() {
		return nil
	}
	return &r.slots[r.head]
}

func (r *priorityRing) consume() {
	if r.empty() {
		return
	}
	r.head = (r.head + 1) % RingCapacity
	r.count--
}

// PriorityBuffer is a bounded container storing packets partitioned by
// priority level. Producers reserve a slot, fill it, and commit; consumers
// peek or consume the oldest packet at the highest non-empty priority.
// Reserving a slot at a full priority fails with StatusUnavailable.
type PriorityBuffer struct {
	rings [NumPriorityLevels]priorityRing
}

// NewPriorityBuffer creates an empty PriorityBuffer.
func NewPriorityBuffer() *PriorityBuffer {
	return &PriorityBuffer{}
}

// Reserve returns a mutable reference to the packet slot at the write head
// for the given priority. The caller must eventually call Commit at the
// same priority, or the reservation is simply abandoned (harmless: the
// slot is reused on the next Reserve at that priority).
func (b *PriorityBuffer) Reserve(p Priority) Result[*Packet] {
	ring := &b.rings[p]
	if ring.full() {
		return Unavailable[*Packet]()
	}
	return Success(ring.reserve())
}

// Commit advances the write head for priority p, making the most recently
// reserved packet visible to consumers.
func (b *PriorityBuffer) Commit(p Priority) {
	b.rings[p].commit()
}

// OldestValue returns the oldest packet across the highest non-empty
// priority; ties within a priority are FIFO. Returns StatusUnavailable if
// every priority is empty.
func (b *PriorityBuffer) OldestValue() Result[*Packet] {
	_, pkt, ok := b.OldestWithPriority()
	if !ok {
		return Unavailable[*Packet]()
	}
	return Success(pkt)
}

// OldestWithPriority is like OldestValue but also reports which priority
// the returned packet belongs to, so the output stream can Consume the
// right ring once the packet is fully on the wire.
func (b *PriorityBuffer) OldestWithPriority() (Priority, *Packet, bool) {
	for p := NumPriorityLevels - 1; p >= 0; p-- {
		if pkt := b.rings[p].oldest(); pkt != nil {
			return Priority(p), pkt, true
		}
	}
	return 0, nil, false
}

// HighestNonEmptyPriority returns the highest priority with at least one
// committed packet, and whether one exists.
func (b *PriorityBuffer) HighestNonEmptyPriority() (Priority, bool) {
	for p := NumPriorityLevels - 1; p >= 0; p-- {
		if !b.rings[p].empty() {
			return Priority(p), true
		}
	}
	return 0, false
}

// Consume removes the oldest packet at the highest non-empty priority,
// the one most recently returned by OldestValue.
func (b *PriorityBuffer) Consume() {
	if p, ok := b.HighestNonEmptyPriority(); ok {
		b.rings[p].consume()
	}
}

// ConsumeAt removes the oldest packet at priority p specifically. Callers
// that held onto a priority from an earlier OldestWithPriority (e.g. the
// output stream, which may finish sending a packet well after a
// higher-priority one has since been committed) must use this instead of
// Consume, which always targets whatever is currently highest and would
// otherwise remove the wrong ring's head.
func (b *PriorityBuffer) ConsumeAt(p Priority) {
	b.rings[p].consume()
}

// Len reports the number of committed packets at priority p, for
// diagnostics (e.g. a monitoring CLI showing buffer occupancy).
func (b *PriorityBuffer) Len(p Priority) int {
	return b.rings[p].count
}
