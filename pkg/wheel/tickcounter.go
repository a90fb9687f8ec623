package wheel

import "sync"

// TickCounter is a non-negative counter incremented by an encoder
// interrupt handler and read by the controller. On real firmware the read
// side masks encoder interrupts for the duration of the read to avoid a
// torn read; here a mutex plays the same "scoped critical section with
// guaranteed unmask on all exit paths" role.
type TickCounter struct {
	mu    sync.Mutex
	ticks int32
}

// Increment is called from the encoder edge handler.
func (c *TickCounter) Increment() {
	c.mu.Lock()
	c.ticks++
	c.mu.Unlock()
}

// Get reads the current count inside the critical section.
func (c *TickCounter) Get() int32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ticks
}

// TickCountGetter abstracts the encoder tick source a WheelSpeedController
// reads from, so it can be driven by a real TickCounter or a test double.
type TickCountGetter func() int32

// Getter returns a TickCountGetter backed by this counter.
func (c *TickCounter) Getter() TickCountGetter {
	return c.Get
}
