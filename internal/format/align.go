package format

import "math/bits"

// Alignment utilities for address arithmetic.
// Every alignment handled here must be a power of two; callers validate with
// IsPowerOfTwo before rounding.

// IsPowerOfTwo reports whether n is a non-zero power of two.
func IsPowerOfTwo(n uintptr) bool {
	return n != 0 && n&(n-1) == 0
}

// AlignUp returns n aligned up to the next multiple of align.
// The second result is false when rounding would overflow.
//
// Example:
//
//	AlignUp(0x1001, 0x10) = 0x1010, true
//	AlignUp(0x1010, 0x10) = 0x1010, true
func AlignUp(n, align uintptr) (uintptr, bool) {
	mask := align - 1
	sum, carry := bits.Add64(uint64(n), uint64(mask), 0)
	if carry != 0 || sum > uint64(^uintptr(0)) {
		return 0, false
	}
	return uintptr(sum) & ^mask, true
}

// AlignDown returns n aligned down to the previous multiple of align.
//
// Example:
//
//	AlignDown(0x2fff, 0x1000) = 0x2000
//	AlignDown(0x3000, 0x1000) = 0x3000
func AlignDown(n, align uintptr) uintptr {
	return n & ^(align - 1)
}

// IsAligned reports whether n is a multiple of align.
func IsAligned(n, align uintptr) bool {
	return n&(align-1) == 0
}
