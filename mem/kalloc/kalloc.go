package kalloc

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/joshuapare/pagealloc/internal/format"
	"github.com/joshuapare/pagealloc/internal/logger"
	"github.com/joshuapare/pagealloc/mem"
	"github.com/joshuapare/pagealloc/mem/physmem"
	"github.com/joshuapare/pagealloc/mem/refcount"
)

// Options configures an Allocator.
type Options struct {
	// AllocJunk is written over a page when it is allocated.
	AllocJunk byte

	// FreeJunk is written over a page when it returns to the free list.
	FreeJunk byte

	// Logger receives allocator transitions at debug level and contract
	// violations at error level. Default: logger.L
	Logger *slog.Logger
}

// DefaultOptions is used when New is given nil options.
var DefaultOptions = Options{
	AllocJunk: format.AllocJunk,
	FreeJunk:  format.FreeJunk,
}

// Allocator hands out page frames from an arena and tracks how many owners
// reference each one.
type Allocator struct {
	layout mem.Layout
	arena  *physmem.Arena
	refs   *refcount.Table
	opts   Options
	log    *slog.Logger
	debug  bool // log every transition; fixed at New

	// Free list, guarded by mu. Lock order: refs, then mu.
	mu    sync.Mutex
	next  []uint32 // next[i] is the frame after i on the free list
	head  uint32   // first free frame, format.NoFrame when empty
	nfree int
	total int // pages seeded by Init

	initialized atomic.Bool

	stats allocatorStats
}

// New creates an allocator over arena. The free list is empty until Init.
func New(arena *physmem.Arena, opts *Options) *Allocator {
	if opts == nil {
		opts = &DefaultOptions
	}
	l := arena.Layout()

	lg := opts.Logger
	if lg == nil {
		lg = logger.L
	}

	next := make([]uint32, l.MaxIndex())
	for i := range next {
		next[i] = format.NoFrame
	}

	return &Allocator{
		layout: l,
		arena:  arena,
		refs:   refcount.New(l),
		opts:   *opts,
		log:    lg.With("pkg", "kalloc"),
		debug:  lg.Enabled(context.Background(), slog.LevelDebug),
		next:   next,
		head:   format.NoFrame,
	}
}

// Init seeds the free list with every page in [FirstPage, PhysTop). It must
// be called exactly once, before any other operation.
func (a *Allocator) Init() {
	if !a.initialized.CompareAndSwap(false, true) {
		a.fatal("kinit", 0, ErrReinit)
	}
	first := a.layout.FirstPage()
	if !a.refs.Zeroed(first, a.layout.PhysTop) {
		a.fatal("kinit", first, ErrDirtyRefs)
	}

	n := a.freeRange(first, a.layout.PhysTop)

	a.mu.Lock()
	a.total = n
	a.mu.Unlock()

	a.log.Info("kinit", "start", first, "end", a.layout.PhysTop, "pages", n)
}

// freeRange puts every whole page in [start, end) on the free list and
// returns how many it added. Counts are already zero, so the pages go
// straight onto the list instead of through Free.
func (a *Allocator) freeRange(start, end mem.Addr) int {
	// With end rounded down, p < end leaves room for a whole page and
	// p+PageSize cannot wrap even when end is the last page boundary.
	end = a.layout.PageRoundDown(end)
	n := 0
	for p := a.layout.PageRoundUp(start); p < end; p += mem.Addr(a.layout.PageSize) {
		a.check("kinit", p)
		a.arena.Fill(p, a.opts.FreeJunk)
		a.push(p)
		n++
	}
	return n
}

// Alloc takes one page off the free list. The page is filled with
// Options.AllocJunk and has a reference count of 1. It returns
// ErrOutOfMemory if no page is free; it never waits for one.
func (a *Allocator) Alloc() (mem.Addr, error) {
	a.stats.allocCalls.Add(1)

	pa, ok := a.pop()
	if !ok {
		a.stats.allocFailures.Add(1)
		if a.debug {
			a.log.Debug("kalloc: out of memory")
		}
		return 0, ErrOutOfMemory
	}

	// Nobody else can reach pa yet, so neither lock is needed here.
	a.arena.Fill(pa, a.opts.AllocJunk)
	a.refs.Set(pa, 1)

	if a.debug {
		a.log.Debug("kalloc", "addr", pa)
	}
	return pa, nil
}

// Free drops one reference to the page at pa. When that was the last
// reference the page is filled with Options.FreeJunk and returned to the
// free list; otherwise it stays allocated for its remaining owners.
//
// A misaligned or out-of-range pa, or a page with no references, is a fatal
// contract violation.
func (a *Allocator) Free(pa mem.Addr) {
	a.check("kfree", pa)
	a.stats.freeCalls.Add(1)

	a.refs.Lock()
	n := a.refs.DecrementLocked(pa)
	switch {
	case n < 0:
		a.refs.Set(pa, 0)
		a.refs.Unlock()
		a.fatal("kfree", pa, ErrDoubleFree)
	case n == 0:
		a.arena.Fill(pa, a.opts.FreeJunk)
		a.push(pa)
		a.stats.freeReclaimed.Add(1)
		if a.debug {
			a.log.Debug("kfree", "addr", pa)
		}
	default:
		a.stats.freeShared.Add(1)
		if a.debug {
			a.log.Debug("kfree: still shared", "addr", pa, "refs", n)
		}
	}
	a.refs.Unlock()
}

// IncRef adds a reference to the allocated page at pa, for example when
// fork maps it into a child instead of copying it. Every IncRef must be
// paired with a later Free or ResolveCOW or the page is never reclaimed.
func (a *Allocator) IncRef(pa mem.Addr) {
	a.check("kincref", pa)
	a.stats.incRefs.Add(1)
	a.refs.Increment(pa)
}

// Refs returns the current reference count of the page at pa.
func (a *Allocator) Refs(pa mem.Addr) int32 {
	a.check("krefs", pa)
	a.refs.Lock()
	n := a.refs.Read(pa)
	a.refs.Unlock()
	return n
}

// Page returns the bytes of the page at pa. Callers may only touch pages
// they hold a reference to.
func (a *Allocator) Page(pa mem.Addr) []byte {
	return a.arena.Page(pa)
}

// Layout returns the physical layout being managed.
func (a *Allocator) Layout() mem.Layout {
	return a.layout
}

// FreePages returns the number of pages on the free list.
func (a *Allocator) FreePages() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.nfree
}

// Stats returns a snapshot of the allocator counters.
func (a *Allocator) Stats() Stats {
	s := a.stats.snapshot()
	a.mu.Lock()
	s.FreePages = a.nfree
	s.TotalPages = a.total
	a.mu.Unlock()
	return s
}

func (a *Allocator) pop() (mem.Addr, bool) {
	a.mu.Lock()
	idx := a.head
	if idx != format.NoFrame {
		a.head = a.next[idx]
		a.next[idx] = format.NoFrame
		a.nfree--
	}
	a.mu.Unlock()

	if idx == format.NoFrame {
		return 0, false
	}
	return a.layout.Addr(int(idx)), true
}

func (a *Allocator) push(pa mem.Addr) {
	idx := uint32(a.layout.Index(pa))

	a.mu.Lock()
	a.next[idx] = a.head
	a.head = idx
	a.nfree++
	a.mu.Unlock()
}

// check validates pa the way every entry point does: page aligned and in
// [KernEnd, PhysTop).
func (a *Allocator) check(op string, pa mem.Addr) {
	if !a.layout.Aligned(pa) {
		a.fatal(op, pa, ErrMisaligned)
	}
	if !a.layout.Managed(pa) {
		a.fatal(op, pa, ErrOutOfRange)
	}
}

func (a *Allocator) fatal(op string, pa mem.Addr, err error) {
	fe := &FatalError{Op: op, Addr: pa, Err: err}
	a.log.Error("kernel panic", "op", op, "addr", pa, "err", err)
	panic(fe)
}
