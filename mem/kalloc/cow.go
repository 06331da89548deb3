package kalloc

import (
	"fmt"

	"github.com/joshuapare/pagealloc/mem"
)

// ResolveCOW handles a write to a copy-on-write page at pa.
//
// If pa has at most one reference it already belongs to the caller alone and
// is returned unchanged; the caller just makes its mapping writable.
// Otherwise a new page is allocated, pa's contents are copied into it, the
// caller's reference to pa is dropped, and the new page (reference count 1)
// is returned. The caller then remaps the faulting address to it.
//
// If no page is free the result wraps ErrOutOfMemory and pa is unchanged.
func (a *Allocator) ResolveCOW(pa mem.Addr) (mem.Addr, error) {
	a.check("kcow", pa)
	a.stats.cowFaults.Add(1)

	// Held across the check, the copy and the decrement so a concurrent
	// Free or ResolveCOW on pa cannot act on a stale count.
	a.refs.Lock()
	defer a.refs.Unlock()

	if n := a.refs.Read(pa); n <= 1 {
		a.stats.cowReused.Add(1)
		if a.debug {
			a.log.Debug("kcow: sole owner", "addr", pa, "refs", n)
		}
		return pa, nil
	}

	npa, err := a.Alloc()
	if err != nil {
		a.stats.cowOutOfMemory.Add(1)
		return 0, fmt.Errorf("cow fault at %s: %w", pa, err)
	}

	a.arena.Copy(npa, pa)
	n := a.refs.DecrementLocked(pa)
	a.stats.cowCopies.Add(1)
	if a.debug {
		a.log.Debug("kcow: copied", "addr", pa, "new", npa, "refs", n)
	}
	return npa, nil
}
