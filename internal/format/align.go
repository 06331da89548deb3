package format

// Rounding helpers for page-granular addresses. All of them take the page
// size as a parameter so layouts with a non-default page size still work;
// size must be a power of two.

// RoundUp returns n rounded up to the next multiple of size.
//
// Example:
//
//	RoundUp(1, 4096)    = 4096
//	RoundUp(4096, 4096) = 4096
//	RoundUp(4097, 4096) = 8192
func RoundUp(n, size uint64) uint64 {
	return (n + size - 1) &^ (size - 1)
}

// RoundDown returns n rounded down to a multiple of size.
//
// Example:
//
//	RoundDown(4095, 4096) = 0
//	RoundDown(4096, 4096) = 4096
//	RoundDown(8191, 4096) = 4096
func RoundDown(n, size uint64) uint64 {
	return n &^ (size - 1)
}

// Aligned reports whether n is a multiple of size.
func Aligned(n, size uint64) bool {
	return n&(size-1) == 0
}

// IsPow2 reports whether n is a non-zero power of two.
func IsPow2(n uint64) bool {
	return n != 0 && n&(n-1) == 0
}
