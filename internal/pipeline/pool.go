// ABOUTME: Fixed-capacity datagram ring, single producer / single consumer
// ABOUTME: Tracks overflow streaks and wakes the sender on every commit
package pipeline

import (
	"sync/atomic"
)

// Slot is one pre-allocated framing buffer. Data is sized to hold exactly
// one URTP datagram (header + body) for the pipeline's configured coding
// scheme; it is never reallocated after pool construction.
type Slot struct {
	Data  []byte
	inUse atomic.Bool
}

// Pool is a bounded circular queue of pre-allocated Slots.
// Reserve/Commit are called only from the codec's framing path; Peek/
// Release only from the sender. nextEmpty and nextTx are each written by
// exactly one side but held as atomics so the other side (and the
// monitor) can read them without a lock.
type Pool struct {
	slots          []*Slot
	size           int32
	nextEmpty      atomic.Int32
	nextTx         atomic.Int32
	overflowStreak int
	events         *EventLog
	signal         chan struct{}
}

// NewPool allocates size slots of datagramSize bytes each, once, up front.
func NewPool(size int, datagramSize int, events *EventLog) *Pool {
	slots := make([]*Slot, size)
	for i := range slots {
		slots[i] = &Slot{Data: make([]byte, datagramSize)}
	}
	return &Pool{
		slots:  slots,
		size:   int32(size),
		events: events,
		signal: make(chan struct{}, 1),
	}
}

// Reserve returns the slot at nextEmpty for the producer to fill and
// advances nextEmpty. If that slot was still in use, its contents are
// about to be overwritten (drop-oldest-by-position) and overwritten is
// true. The caller must fill Data and then call Commit.
func (p *Pool) Reserve() (slot *Slot, overwritten bool) {
	idx := p.nextEmpty.Load()
	slot = p.slots[idx]

	overwritten = slot.inUse.Load()
	if overwritten {
		if p.overflowStreak == 0 {
			p.events.Log(EventOverflowBegin, 0)
		}
		p.overflowStreak++
	} else if p.overflowStreak > 0 {
		p.events.Log(EventOverflowEnd, p.overflowStreak)
		p.overflowStreak = 0
	}

	p.nextEmpty.Store((idx + 1) % p.size)
	return slot, overwritten
}

// Commit marks slot in-use (release/acquire boundary for the sender) and
// signals the sender. The signal holds at most one pending wakeup, so
// commits made before the sender wakes share a single signal.
func (p *Pool) Commit(slot *Slot) {
	slot.inUse.Store(true)
	select {
	case p.signal <- struct{}{}:
	default:
	}
}

// Signal is the channel the sender waits on alongside its timeout.
func (p *Pool) Signal() <-chan struct{} {
	return p.signal
}

// Peek returns the slot at nextTx and whether it is ready to send.
func (p *Pool) Peek() (slot *Slot, ready bool) {
	idx := p.nextTx.Load()
	slot = p.slots[idx]
	return slot, slot.inUse.Load()
}

// Release marks the slot at nextTx free and advances nextTx.
func (p *Pool) Release() {
	idx := p.nextTx.Load()
	p.slots[idx].inUse.Store(false)
	p.nextTx.Store((idx + 1) % p.size)
}

// AvailableToSend returns the number of in-use slots ahead of nextTx.
// In-use slots always form one contiguous run starting at nextTx, so a
// full pool reports its whole size.
func (p *Pool) AvailableToSend() int {
	tx := p.nextTx.Load()
	avail := 0
	for i := int32(0); i < p.size; i++ {
		if !p.slots[(tx+i)%p.size].inUse.Load() {
			break
		}
		avail++
	}
	return avail
}

// Size returns the pool's slot capacity.
func (p *Pool) Size() int {
	return int(p.size)
}
