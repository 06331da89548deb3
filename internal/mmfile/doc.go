// Package mmfile provides platform-specific helpers for mapping the memory
// that backs a simulated physical address range.
//
// On unix systems the memory comes from an anonymous private mapping so the
// host only commits pages that are actually touched; elsewhere it falls back
// to a heap slice.
package mmfile
