// Package kalloc is the physical page allocator. It hands out and reclaims
// whole page frames and keeps a reference count per frame so pages can be
// shared copy-on-write.
//
// # Overview
//
// An Allocator owns a reference-count table and a LIFO free list of frame
// indexes over one physmem.Arena. The free list is index-linked: page
// contents are never used as list nodes, so a stale handle to a freed page
// cannot corrupt the list.
//
//	arena, err := physmem.New(mem.DefaultLayout)
//	if err != nil {
//	    return err
//	}
//	ka := kalloc.New(arena, nil)
//	ka.Init()
//
//	pa, err := ka.Alloc()            // refs(pa) == 1
//	if errors.Is(err, kalloc.ErrOutOfMemory) {
//	    // fail the syscall, kill the process, ...
//	}
//	ka.IncRef(pa)                    // fork maps pa into the child: refs 2
//	npa, err := ka.ResolveCOW(pa)    // child writes: private copy, refs(pa) 1
//	ka.Free(npa)                     // child exits
//	ka.Free(pa)                      // parent exits: pa returns to the free list
//
// # Page lifecycle
//
//	Free -> Alloc -> Allocated(1) -> IncRef -> Shared(>=2)
//	Shared -> Free/ResolveCOW -> Allocated(1) -> Free -> Free list
//
// Free and ResolveCOW are the only operations that drop a reference.
//
// # Errors
//
// Running out of pages is reported as ErrOutOfMemory from Alloc and
// ResolveCOW. Passing a misaligned or out-of-range address, freeing a page
// with no references, or calling Init twice is a caller bug: the allocator
// logs it and panics with a *FatalError.
//
// # Thread Safety
//
// All methods are safe for concurrent use. There are two locks: the
// reference-count table lock and the free-list lock. When both are held the
// table lock is always taken first.
//
// # Debug fill
//
// Allocated pages are filled with Options.AllocJunk and reclaimed pages with
// Options.FreeJunk, so reads of uninitialized or freed memory stand out.
package kalloc
