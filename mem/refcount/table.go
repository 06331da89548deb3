// Package refcount implements the per-frame reference count table used by
// the page allocator to decide when a page may be reclaimed and when a
// copy-on-write fault needs a private copy.
//
// The table has one lock. Any sequence that changes a count and then acts on
// the result (free, copy-on-write) must hold it across both steps:
//
//	t.Lock()
//	if t.DecrementLocked(pa) == 0 {
//	    // reclaim pa
//	}
//	t.Unlock()
package refcount

import (
	"sync"
	"sync/atomic"

	"github.com/joshuapare/pagealloc/mem"
)

// Table maps every frame index in a layout to a reference count.
type Table struct {
	mu     sync.Mutex
	layout mem.Layout
	counts []atomic.Int32
}

// New returns a table with a zero count for every frame index in l.
func New(l mem.Layout) *Table {
	return &Table{
		layout: l,
		counts: make([]atomic.Int32, l.MaxIndex()),
	}
}

// Lock acquires the table lock.
func (t *Table) Lock() { t.mu.Lock() }

// Unlock releases the table lock.
func (t *Table) Unlock() { t.mu.Unlock() }

// Increment adds one reference to the frame containing pa.
func (t *Table) Increment(pa mem.Addr) {
	t.mu.Lock()
	t.slot(pa).Add(1)
	t.mu.Unlock()
}

// DecrementLocked drops one reference from the frame containing pa and
// returns the new count. The caller must hold the table lock.
func (t *Table) DecrementLocked(pa mem.Addr) int32 {
	return t.slot(pa).Add(-1)
}

// Read returns the count for the frame containing pa. The value is only
// stable while the caller holds the table lock.
func (t *Table) Read(pa mem.Addr) int32 {
	return t.slot(pa).Load()
}

// Set stores n as the count for the frame containing pa without taking the
// lock. It is only for frames no other owner can reach, such as a page just
// taken off the free list.
func (t *Table) Set(pa mem.Addr, n int32) {
	t.slot(pa).Store(n)
}

// Len is the number of frame indexes covered by the table.
func (t *Table) Len() int {
	return len(t.counts)
}

// Zeroed reports whether every frame in [from, to) has a zero count.
func (t *Table) Zeroed(from, to mem.Addr) bool {
	if from >= to {
		return true
	}
	lo, hi := t.layout.Index(from), t.layout.Index(to-1)
	for i := lo; i <= hi; i++ {
		if t.counts[i].Load() != 0 {
			return false
		}
	}
	return true
}

func (t *Table) slot(pa mem.Addr) *atomic.Int32 {
	return &t.counts[t.layout.Index(pa)]
}
