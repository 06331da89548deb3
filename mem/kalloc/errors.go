package kalloc

import (
	"errors"
	"fmt"

	"github.com/joshuapare/pagealloc/mem"
)

// ErrOutOfMemory indicates that the free list is empty. It is the only error
// a caller is expected to handle; everything else is a FatalError.
var ErrOutOfMemory = errors.New("kalloc: out of memory")

// Contract violations. These are carried by a FatalError panic, never returned.
var (
	// ErrMisaligned indicates an address that is not on a page boundary.
	ErrMisaligned = errors.New("kalloc: misaligned address")

	// ErrOutOfRange indicates an address below the kernel end or at/above PhysTop.
	ErrOutOfRange = errors.New("kalloc: address out of range")

	// ErrDoubleFree indicates a free of a page that holds no references.
	ErrDoubleFree = errors.New("kalloc: free of unallocated page")

	// ErrReinit indicates a second call to Init.
	ErrReinit = errors.New("kalloc: already initialized")

	// ErrDirtyRefs indicates nonzero reference counts at Init.
	ErrDirtyRefs = errors.New("kalloc: reference counts not zero at init")
)

// FatalError is the panic value for a contract violation by a caller. The
// allocator's state is undefined for the offending page afterwards; the
// system is expected to halt.
type FatalError struct {
	Op   string   // kinit, kfree, kincref, kcow, krefs
	Addr mem.Addr // offending address, zero for kinit
	Err  error    // one of the contract violation errors above
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Addr, e.Err)
}

func (e *FatalError) Unwrap() error { return e.Err }
