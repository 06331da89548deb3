// Package format holds the fixed page geometry shared by the allocator
// packages: the page size and the junk bytes written into pages as they
// change hands. Keeping them here lets the mem packages agree on the same
// values without importing each other.
package format

// PageSize is the size of one physical page frame in bytes.
const PageSize = 4096

const (
	// AllocJunk is written over every byte of a page when it is handed out,
	// so reads of never-written memory show up as 0x05 patterns.
	AllocJunk byte = 5

	// FreeJunk is written over every byte of a page when it returns to the
	// free list, so use-after-free shows up as 0x01 patterns.
	FreeJunk byte = 1
)

// NoFrame marks the end of an index-linked free list.
const NoFrame = ^uint32(0)
