package kalloc

import "sync/atomic"

// Stats is a snapshot of allocator activity.
type Stats struct {
	AllocCalls     uint64 `json:"alloc_calls"`       // Total Alloc() calls, including those made by ResolveCOW
	AllocFailures  uint64 `json:"alloc_failures"`    // Alloc() calls that found the free list empty
	FreeCalls      uint64 `json:"free_calls"`        // Total Free() calls
	FreeReclaimed  uint64 `json:"free_reclaimed"`    // Free() calls that returned the page to the free list
	FreeShared     uint64 `json:"free_shared"`       // Free() calls that only dropped one of several references
	IncRefs        uint64 `json:"inc_refs"`          // IncRef() calls
	COWFaults      uint64 `json:"cow_faults"`        // Total ResolveCOW() calls
	COWCopies      uint64 `json:"cow_copies"`        // Faults resolved by copying to a new page
	COWReused      uint64 `json:"cow_reused"`        // Faults on an unshared page, resolved in place
	COWOutOfMemory uint64 `json:"cow_out_of_memory"` // Faults that needed a copy but got ErrOutOfMemory

	FreePages  int `json:"free_pages"`  // Pages on the free list at snapshot time
	TotalPages int `json:"total_pages"` // Pages seeded by Init
}

// InUse is the number of pages handed out and not yet reclaimed.
func (s Stats) InUse() int {
	return s.TotalPages - s.FreePages
}

// allocatorStats holds the live counters behind Stats.
type allocatorStats struct {
	allocCalls     atomic.Uint64
	allocFailures  atomic.Uint64
	freeCalls      atomic.Uint64
	freeReclaimed  atomic.Uint64
	freeShared     atomic.Uint64
	incRefs        atomic.Uint64
	cowFaults      atomic.Uint64
	cowCopies      atomic.Uint64
	cowReused      atomic.Uint64
	cowOutOfMemory atomic.Uint64
}

func (s *allocatorStats) snapshot() Stats {
	return Stats{
		AllocCalls:     s.allocCalls.Load(),
		AllocFailures:  s.allocFailures.Load(),
		FreeCalls:      s.freeCalls.Load(),
		FreeReclaimed:  s.freeReclaimed.Load(),
		FreeShared:     s.freeShared.Load(),
		IncRefs:        s.incRefs.Load(),
		COWFaults:      s.cowFaults.Load(),
		COWCopies:      s.cowCopies.Load(),
		COWReused:      s.cowReused.Load(),
		COWOutOfMemory: s.cowOutOfMemory.Load(),
	}
}
