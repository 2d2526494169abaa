// Package ringbuffer holds recent input events in a bounded, lock-free,
// single-producer/single-consumer ring.
//
// The producer never waits: when the ring is full the oldest event is
// overwritten and counted. The consumer drains a trailing time window
// without stopping the producer.
package ringbuffer

import (
	"sync/atomic"
	"time"

	"github.com/pario-ai/glimpse/pkg/clock"
	"github.com/pario-ai/glimpse/pkg/models"
)

// DefaultWindow is the trailing interval returned by Drain when a
// non-positive window is passed.
const DefaultWindow = 10 * time.Second

// slot pairs an event with the sequence number it was written under, so a
// reader can tell when the slot was recycled underneath it.
type slot struct {
	seq uint64
	ev  models.InputEvent
}

// Buffer is a bounded event ring. Record must only be called from one
// goroutine and Drain from one (possibly different) goroutine.
type Buffer struct {
	clock clock.Clock
	slots []atomic.Pointer[slot]
	size  uint64

	// head is the next sequence to write; written only by the producer.
	head atomic.Uint64
	// tail is the retention boundary; written only by the consumer.
	tail atomic.Uint64
}

// New creates a Buffer holding at most capacity events.
func New(capacity int, c clock.Clock) *Buffer {
	if capacity <= 0 {
		capacity = 1
	}
	if c == nil {
		c = clock.New()
	}
	return &Buffer{
		clock: c,
		slots: make([]atomic.Pointer[slot], capacity),
		size:  uint64(capacity),
	}
}

// Record stamps an event with the current monotonic time and appends it.
func (b *Buffer) Record(kind models.EventKind, value string) {
	b.RecordEvent(models.InputEvent{Kind: kind, Value: value, Timestamp: b.clock.Micros()})
}

// RecordEvent appends a pre-stamped event. Events must arrive in
// non-decreasing timestamp order.
func (b *Buffer) RecordEvent(ev models.InputEvent) {
	seq := b.head.Load()
	b.slots[seq%b.size].Store(&slot{seq: seq, ev: ev})
	b.head.Store(seq + 1)
}

// Drain returns a copy of every event whose timestamp lies within window of
// now, in capture order, and advances the retention boundary past events
// that have aged out. Events still inside the window, and events recorded
// after now was read, stay retained.
func (b *Buffer) Drain(window time.Duration) []models.InputEvent {
	if window <= 0 {
		window = DefaultWindow
	}
	now := b.clock.Micros()
	cutoff := now - window.Microseconds()

	head := b.head.Load()
	start := b.tail.Load()
	if head > b.size && head-b.size > start {
		start = head - b.size
	}

	out := make([]models.InputEvent, 0, head-start)
	kept := head
	for seq := start; seq < head; seq++ {
		s := b.slots[seq%b.size].Load()
		if s == nil || s.seq != seq {
			// Recycled by the producer while we were reading.
			continue
		}
		if s.ev.Timestamp < cutoff {
			continue
		}
		// The boundary stops at the first event that has not aged out,
		// including events stamped after now.
		if kept == head {
			kept = seq
		}
		if s.ev.Timestamp <= now {
			out = append(out, s.ev)
		}
	}
	b.tail.Store(kept)
	return out
}

// Len returns the number of events currently retained.
func (b *Buffer) Len() int {
	head := b.head.Load()
	tail := b.tail.Load()
	if head > b.size && head-b.size > tail {
		tail = head - b.size
	}
	return int(head - tail)
}

// Recorded returns the total number of events ever recorded.
func (b *Buffer) Recorded() uint64 {
	return b.head.Load()
}

// Overwritten returns how many events were lost to the overwrite policy.
func (b *Buffer) Overwritten() uint64 {
	head := b.head.Load()
	if head <= b.size {
		return 0
	}
	return head - b.size
}

// Capacity returns the maximum number of events held.
func (b *Buffer) Capacity() int {
	return int(b.size)
}
