package mem

import "errors"

var (
	// ErrBadLayout indicates a physical memory layout that cannot be managed.
	ErrBadLayout = errors.New("mem: bad layout")

	// ErrBadAddr indicates an address that is misaligned or outside the layout.
	ErrBadAddr = errors.New("mem: bad address")
)
