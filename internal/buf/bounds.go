// Package buf provides overflow-checked arithmetic for address and size
// calculations.
package buf

import (
	"fmt"
	"math"
	"math/bits"
)

// AddOverflowSafe adds a and b, returning ok = false when the result would overflow uint64.
func AddOverflowSafe(a, b uint64) (uint64, bool) {
	sum, carry := bits.Add64(a, b, 0)
	return sum, carry == 0
}

// MulOverflowSafe multiplies a and b, returning ok = false when the result would overflow uint64.
// This is what count * pageSize calculations go through.
func MulOverflowSafe(a, b uint64) (uint64, bool) {
	hi, lo := bits.Mul64(a, b)
	return lo, hi == 0
}

// CheckSpan validates that count elements of elemSize bytes starting at base
// stay inside the address space and returns the exclusive end.
//
//	end, err := buf.CheckSpan(uint64(base), uint64(n), pageSize)
//	if err != nil {
//	    return fmt.Errorf("layout: %w", err)
//	}
func CheckSpan(base, count, elemSize uint64) (uint64, error) {
	size, ok := MulOverflowSafe(count, elemSize)
	if !ok {
		return 0, fmt.Errorf("overflow: count=%d * elemSize=%d", count, elemSize)
	}
	end, ok := AddOverflowSafe(base, size)
	if !ok {
		return 0, fmt.Errorf("overflow: base=%#x + size=%d", base, size)
	}
	return end, nil
}

// ToInt converts n to an int, returning ok = false when it does not fit.
func ToInt(n uint64) (int, bool) {
	if n > math.MaxInt {
		return 0, false
	}
	return int(n), true
}
