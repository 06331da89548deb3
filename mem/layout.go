// Package mem describes the physical memory layout handed to the page
// allocator: where usable memory starts, where the kernel image ends, and
// where physical memory stops. The layout is fixed for the lifetime of an
// allocator.
package mem

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/joshuapare/pagealloc/internal/buf"
	"github.com/joshuapare/pagealloc/internal/format"
)

// PageSize is the default page frame size.
const PageSize = format.PageSize

// Addr is a physical address.
type Addr uint64

// String formats the address as hex.
func (a Addr) String() string {
	return fmt.Sprintf("%#x", uint64(a))
}

// Layout is the physical memory map the allocator manages.
//
//	KernBase           KernEnd  FirstPage                    PhysTop
//	   |---- kernel image ---|....|---- managed pages ----------|
//
// Frame indexes are counted from KernBase, so pages under the kernel image
// have indexes but are never handed out.
type Layout struct {
	// KernBase is the first physical address of RAM. Must be page aligned.
	KernBase Addr `json:"kern_base"`

	// KernEnd is the first address after the kernel image. It need not be
	// page aligned; management starts at the next page boundary.
	KernEnd Addr `json:"kern_end"`

	// PhysTop is one past the last usable physical address. Must be page aligned.
	PhysTop Addr `json:"phys_top"`

	// PageSize is the frame size in bytes. Must be a power of two.
	PageSize uint64 `json:"page_size"`
}

// DefaultLayout mirrors a small RISC-V board: 128MB of RAM at 0x80000000
// with the kernel image loaded at the bottom.
var DefaultLayout = Layout{
	KernBase: 0x80000000,
	KernEnd:  0x80021b40,
	PhysTop:  0x80000000 + 128*1024*1024,
	PageSize: PageSize,
}

// Validate reports whether the layout can be managed. The returned error
// wraps ErrBadLayout.
func (l Layout) Validate() error {
	if !format.IsPow2(l.PageSize) {
		return fmt.Errorf("%w: page size %d is not a power of two", ErrBadLayout, l.PageSize)
	}
	if !format.Aligned(uint64(l.KernBase), l.PageSize) {
		return fmt.Errorf("%w: kernel base %s is not page aligned", ErrBadLayout, l.KernBase)
	}
	if !format.Aligned(uint64(l.PhysTop), l.PageSize) {
		return fmt.Errorf("%w: phys top %s is not page aligned", ErrBadLayout, l.PhysTop)
	}
	if l.KernEnd < l.KernBase {
		return fmt.Errorf("%w: kernel end %s below kernel base %s", ErrBadLayout, l.KernEnd, l.KernBase)
	}
	if l.PhysTop <= l.KernEnd {
		return fmt.Errorf("%w: phys top %s not above kernel end %s", ErrBadLayout, l.PhysTop, l.KernEnd)
	}
	if _, ok := buf.AddOverflowSafe(uint64(l.KernEnd), l.PageSize-1); !ok {
		return fmt.Errorf("%w: kernel end %s overflows when rounded", ErrBadLayout, l.KernEnd)
	}
	if _, ok := buf.ToInt(l.Size()); !ok {
		return fmt.Errorf("%w: range of %d bytes is too large", ErrBadLayout, l.Size())
	}
	if uint64(l.MaxIndex()) >= uint64(format.NoFrame) {
		return fmt.Errorf("%w: %d frames exceed the index space", ErrBadLayout, l.MaxIndex())
	}
	return nil
}

// Size is the number of bytes in [KernBase, PhysTop).
func (l Layout) Size() uint64 {
	return uint64(l.PhysTop - l.KernBase)
}

// Index returns the page frame index of the frame containing a.
func (l Layout) Index(a Addr) int {
	return int(uint64(a-l.KernBase) / l.PageSize)
}

// Addr returns the physical address of frame index i.
func (l Layout) Addr(i int) Addr {
	return l.KernBase + Addr(uint64(i)*l.PageSize)
}

// MaxIndex is the number of frame indexes in [KernBase, PhysTop).
func (l Layout) MaxIndex() int {
	return int(l.Size() / l.PageSize)
}

// FirstPage is the first page boundary at or above KernEnd.
func (l Layout) FirstPage() Addr {
	return l.PageRoundUp(l.KernEnd)
}

// NumPages is the number of whole pages in [FirstPage, PhysTop).
func (l Layout) NumPages() int {
	first := l.FirstPage()
	if first >= l.PhysTop {
		return 0
	}
	return int(uint64(l.PhysTop-first) / l.PageSize)
}

// PageRoundUp rounds a up to a page boundary.
func (l Layout) PageRoundUp(a Addr) Addr {
	return Addr(format.RoundUp(uint64(a), l.PageSize))
}

// PageRoundDown rounds a down to a page boundary.
func (l Layout) PageRoundDown(a Addr) Addr {
	return Addr(format.RoundDown(uint64(a), l.PageSize))
}

// Aligned reports whether a sits on a page boundary.
func (l Layout) Aligned(a Addr) bool {
	return format.Aligned(uint64(a), l.PageSize)
}

// Managed reports whether a falls in [KernEnd, PhysTop), the range any
// address passed to the allocator must lie in.
func (l Layout) Managed(a Addr) bool {
	return a >= l.KernEnd && a < l.PhysTop
}

// CheckPage returns an error wrapping ErrBadAddr unless a is a page-aligned
// address inside [KernBase, PhysTop).
func (l Layout) CheckPage(a Addr) error {
	if !l.Aligned(a) {
		return fmt.Errorf("%w: %s is not page aligned", ErrBadAddr, a)
	}
	if a < l.KernBase || a >= l.PhysTop {
		return fmt.Errorf("%w: %s outside [%s, %s)", ErrBadAddr, a, l.KernBase, l.PhysTop)
	}
	return nil
}

// WithPages returns a copy of l whose PhysTop leaves exactly n managed pages.
// The error wraps ErrBadLayout when n is negative or the pages would run past
// the end of the address space.
func (l Layout) WithPages(n int) (Layout, error) {
	if n < 0 {
		return Layout{}, fmt.Errorf("%w: negative page count %d", ErrBadLayout, n)
	}
	top, err := buf.CheckSpan(uint64(l.FirstPage()), uint64(n), l.PageSize)
	if err != nil {
		return Layout{}, fmt.Errorf("%w: %d pages from %s: %w", ErrBadLayout, n, l.FirstPage(), err)
	}
	l.PhysTop = Addr(top)
	return l, nil
}

// LoadLayout reads a JSON layout from path. Fields left out of the file take
// their value from DefaultLayout.
func LoadLayout(path string) (Layout, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Layout{}, fmt.Errorf("read layout: %w", err)
	}
	return ParseLayout(data)
}

// ParseLayout decodes a JSON layout, filling omitted fields from DefaultLayout,
// and validates the result.
func ParseLayout(data []byte) (Layout, error) {
	l := DefaultLayout
	if err := json.Unmarshal(data, &l); err != nil {
		return Layout{}, fmt.Errorf("%w: %w", ErrBadLayout, err)
	}
	if err := l.Validate(); err != nil {
		return Layout{}, err
	}
	return l, nil
}
