// Package physmem provides the storage behind a simulated physical address
// range. An Arena owns one contiguous mapping covering [KernBase, PhysTop)
// and hands out page-sized views of it by physical address.
package physmem

import (
	"fmt"
	"sync"

	"github.com/joshuapare/pagealloc/internal/mmfile"
	"github.com/joshuapare/pagealloc/mem"
)

// Arena is the backing memory for a Layout.
//
// Page content is not synchronized by the Arena; whoever holds a reference
// to a page per the allocator owns its bytes.
type Arena struct {
	layout mem.Layout
	data   []byte

	closeOnce sync.Once
	unmap     func() error
	closeErr  error
}

// New maps memory for every byte in [KernBase, PhysTop) of l.
func New(l mem.Layout) (*Arena, error) {
	if err := l.Validate(); err != nil {
		return nil, err
	}
	data, unmap, err := mmfile.MapAnon(int(l.Size()))
	if err != nil {
		return nil, fmt.Errorf("physmem: map %d bytes: %w", l.Size(), err)
	}
	return &Arena{layout: l, data: data, unmap: unmap}, nil
}

// Layout returns the layout the arena was created for.
func (a *Arena) Layout() mem.Layout {
	return a.layout
}

// Page returns the PageSize bytes of the page at pa. It panics with an error
// wrapping mem.ErrBadAddr if pa is not a page inside the arena.
func (a *Arena) Page(pa mem.Addr) []byte {
	if err := a.layout.CheckPage(pa); err != nil {
		panic(fmt.Errorf("physmem: %w", err))
	}
	off := uint64(pa - a.layout.KernBase)
	return a.data[off : off+a.layout.PageSize : off+a.layout.PageSize]
}

// Fill sets every byte of the page at pa to b.
func (a *Arena) Fill(pa mem.Addr, b byte) {
	pg := a.Page(pa)
	if b == 0 {
		clear(pg)
		return
	}
	pg[0] = b
	// Doubling copy: each pass copies what is already filled.
	for n := 1; n < len(pg); n *= 2 {
		copy(pg[n:], pg[:n])
	}
}

// Copy copies the whole page at src over the page at dst.
func (a *Arena) Copy(dst, src mem.Addr) {
	copy(a.Page(dst), a.Page(src))
}

// Close releases the mapping. The arena must not be used afterwards.
// Calling Close more than once returns the first result.
func (a *Arena) Close() error {
	a.closeOnce.Do(func() {
		a.closeErr = a.unmap()
		a.data = nil
	})
	return a.closeErr
}
