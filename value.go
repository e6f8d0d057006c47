package ez

import (
	"sync"
	"sync/atomic"

	"golang.org/x/sys/cpu"
)

// Value is a multi-version store publishing immutable snapshots of T
// from non-realtime writers to realtime readers.
//
// Snapshots of old versions are kept in a slot table so that they are
// not reclaimed while still referenced by a realtime reader. The cell
// allocated for a dead version is reused for later versions to avoid
// unnecessary (de)allocations, so the steady-state slot count is
// bounded by 1 + the maximum number of views outstanding across any
// publish.
//
// If the store was built with NewValue then GarbageCollect should be
// called periodically to reclaim payloads; every Modify would do, or
// a background thread on a timer. The collection pass is relatively
// inexpensive. NewValueAutoGC runs it inside every Modify instead.
//
// Every method is thread-safe. Only Read is wait-free. Multiple
// simultaneous realtime readers are supported.
type Value[T any] struct {
	current atomic.Pointer[version[T]]

	_ cpu.CacheLinePad

	writerMu sync.Mutex
	working  T
	// bookkeeping holds one extra reference on the current cell so
	// that it is never considered garbage while current.
	bookkeeping *version[T]
	versions    []*version[T]
	dead        []bool
	autoGC      bool

	publishes  uint64
	reclaimed  uint64
	slotGrowth uint64
}

// ValueStats is a snapshot of the store's operational counters.
type ValueStats struct {
	Publishes  uint64 // completed Modify/Set calls
	Reclaimed  uint64 // payloads cleared by collection passes
	SlotGrowth uint64 // cells appended because no dead cell was free
	Slots      uint64 // total cells ever allocated
}

// NewValue creates a store with manual garbage collection.
func NewValue[T any]() *Value[T] {
	return &Value[T]{}
}

// NewValueAutoGC creates a store that runs a collection pass inside
// every Modify, before the writer lock is released.
func NewValueAutoGC[T any]() *Value[T] {
	return &Value[T]{autoGC: true}
}

// Modify computes a new value from the working value and publishes it
// as the current snapshot. May block on the writer lock; may allocate.
func (v *Value[T]) Modify(_ NortToken, updateFn func(T) T) {
	v.writerMu.Lock()
	defer v.writerMu.Unlock()

	newValue := updateFn(v.working)
	v.working = newValue

	index := v.getEmptyVersion()
	cell := v.versions[index]
	cell.set(newValue)
	v.dead[index] = false

	// Retain the new current cell before the release-store below so
	// the pointer never addresses a reclaimable cell.
	cell.refs.Add(1)
	old := v.bookkeeping
	v.bookkeeping = cell
	v.current.Store(cell)
	if old != nil {
		old.refs.Add(-1)
	}
	v.publishes++

	if v.autoGC {
		v.collectLocked()
	}
}

// Set publishes the given value as the current snapshot.
func (v *Value[T]) Set(nort NortToken, value T) {
	v.Modify(nort, func(T) T { return value })
}

// Read returns a view of the current snapshot. Lock-free and
// wait-free: one atomic load, one reference increment, no allocation.
// Safe from any thread. Before the first publish the returned view is
// empty.
//
// The caller must Release the view when done with it.
func (v *Value[T]) Read(SafeToken) Immutable[T] {
	cell := v.current.Load()
	if cell == nil {
		return Immutable[T]{}
	}
	cell.refs.Add(1)
	return Immutable[T]{v: cell}
}

// GarbageCollect clears the payload of every cell no reader references
// anymore, marking the cell dead so a later publish can reuse it. Cell
// storage is never freed and cells never move. The current cell is
// protected by the store's own reference.
func (v *Value[T]) GarbageCollect(NortToken) {
	v.writerMu.Lock()
	defer v.writerMu.Unlock()
	v.collectLocked()
}

// Stats returns the current operational counters.
func (v *Value[T]) Stats(NortToken) ValueStats {
	v.writerMu.Lock()
	defer v.writerMu.Unlock()
	return ValueStats{
		Publishes:  v.publishes,
		Reclaimed:  v.reclaimed,
		SlotGrowth: v.slotGrowth,
		Slots:      uint64(len(v.versions)),
	}
}

func (v *Value[T]) collectLocked() {
	for index, dead := range v.dead {
		if dead {
			continue
		}
		if v.versions[index].isGarbage() {
			v.kill(index)
		}
	}
}

func (v *Value[T]) kill(index int) {
	v.versions[index].clear()
	v.dead[index] = true
	v.reclaimed++
}

// getEmptyVersion returns the index of a dead cell, appending a new
// one only when every cell is alive. First-fit keeps the reuse order
// deterministic.
func (v *Value[T]) getEmptyVersion() int {
	for index, dead := range v.dead {
		if dead {
			return index
		}
	}
	index := len(v.versions)
	v.versions = append(v.versions, newVersion[T]())
	v.dead = append(v.dead, true)
	v.slotGrowth++
	return index
}
