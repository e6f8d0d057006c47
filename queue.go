package ez

import (
	"sync/atomic"

	"golang.org/x/sys/cpu"
)

// Original algorithm by Dmitry Vyukov
// https://www.1024cores.net/home/lock-free-algorithms/queues/bounded-mpmc-queue

type queueSlot[T any] struct {
	seq atomic.Uint64 // controls visibility and slot ownership
	val T
}

// Queue is a bounded wait-free mailbox carrying messages from
// non-realtime producers to a single realtime consumer. It is the
// companion to Sync for traffic flowing the other way: parameter
// changes, notes, commands.
//
// The consumer side never blocks, never allocates and never spins.
type Queue[T any] struct {
	mask     uint64
	capacity uint64
	slots    []queueSlot[T]

	// Padding to avoid false sharing between the producer and
	// consumer indexes.
	_    cpu.CacheLinePad
	push atomic.Uint64 // logical tail, updated by producers
	_    cpu.CacheLinePad
	pop  uint64 // logical head, updated by the single consumer
	_    cpu.CacheLinePad
}

// NewQueue creates a bounded queue. capacity must be a power of two
// of at least 2 (1<<k, k >= 1).
func NewQueue[T any](capacity uint64) *Queue[T] {
	if capacity == 0 || (capacity&(capacity-1)) != 0 {
		panic("capacity must be power of 2 and > 0")
	}
	if capacity < 2 {
		// With one slot the freed and published sequence numbers coincide.
		panic("capacity must be >= 2")
	}

	slots := make([]queueSlot[T], capacity)
	for i := uint64(0); i < capacity; i++ {
		// initial sequence for each slot matches its index
		slots[i].seq.Store(i)
	}

	return &Queue[T]{
		mask:     capacity - 1,
		capacity: capacity,
		slots:    slots,
	}
}

// Push enqueues a message. Returns false if the queue is full.
// Safe to call concurrently from many producer threads.
func (q *Queue[T]) Push(_ NortToken, v T) bool {
	for {
		pos := q.push.Load()
		s := &q.slots[pos&q.mask]

		seq := s.seq.Load()
		diff := int64(seq) - int64(pos)

		if diff == 0 {
			// slot is free for this position, try to reserve it
			if q.push.CompareAndSwap(pos, pos+1) {
				// we won the slot
				s.val = v
				// publish the value: seq = pos+1
				s.seq.Store(pos + 1)
				return true
			}
			// contention, retry
		} else if diff < 0 {
			// slot has not been freed by the consumer yet
			// => queue is full
			return false
		}
		// diff > 0 => this slot still belongs to a previous cycle,
		// retry (pos is likely to change)
	}
}

// Pop dequeues a message. Returns (zero, false) if the queue is
// empty. Wait-free, no allocation. IMPORTANT: must be called from a
// single consumer thread.
func (q *Queue[T]) Pop(RTToken) (T, bool) {
	pos := q.pop
	s := &q.slots[pos&q.mask]

	seq := s.seq.Load()
	diff := int64(seq) - int64(pos+1)

	var zero T

	if diff == 0 {
		// message ready
		q.pop = pos + 1

		v := s.val
		s.val = zero
		// free the slot for the next cycle:
		// next time this physical slot is used at pos+capacity
		s.seq.Store(pos + q.capacity)

		return v, true
	}

	// diff < 0 => nothing published at this position yet: the queue is
	// logically empty, or a producer reserved the slot but has not
	// published yet; report empty rather than wait.
	return zero, false
}

// Capacity returns the fixed queue capacity.
func (q *Queue[T]) Capacity() uint64 {
	return q.capacity
}
