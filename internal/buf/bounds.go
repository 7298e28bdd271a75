package buf

import "fmt"

// MaxAddr is the largest representable address.
const MaxAddr = ^uintptr(0)

// AddOverflowSafe adds a and b, returning ok = false when the result would overflow uintptr.
func AddOverflowSafe(a, b uintptr) (uintptr, bool) {
	if a > MaxAddr-b {
		return 0, false
	}
	return a + b, true
}

// SubUnderflowSafe subtracts b from a, returning ok = false when b > a.
func SubUnderflowSafe(a, b uintptr) (uintptr, bool) {
	if b > a {
		return 0, false
	}
	return a - b, true
}

// MulOverflowSafe multiplies a and b, returning ok = false when the result would overflow uintptr.
func MulOverflowSafe(a, b uintptr) (uintptr, bool) {
	if a == 0 || b == 0 {
		return 0, true
	}
	if a > MaxAddr/b {
		return 0, false
	}
	return a * b, true
}

// CheckRange validates that [addr, addr+n) lies within [base, base+size).
// Returns the offset of addr from base, or an error naming the failure:
//
//	off, err := buf.CheckRange(base, uintptr(len(data)), addr, n)
//	if err != nil {
//	    return fmt.Errorf("region: %w", err)
//	}
//	// Safe to use data[off:off+n]
func CheckRange(base, size, addr, n uintptr) (uintptr, error) {
	limit, ok := AddOverflowSafe(base, size)
	if !ok {
		return 0, fmt.Errorf("overflow: base=%#x + size=%#x", base, size)
	}
	if addr < base {
		return 0, fmt.Errorf("bounds: addr=%#x < base=%#x", addr, base)
	}
	end, ok := AddOverflowSafe(addr, n)
	if !ok {
		return 0, fmt.Errorf("overflow: addr=%#x + n=%#x", addr, n)
	}
	if end > limit {
		return 0, fmt.Errorf("bounds: end=%#x > limit=%#x", end, limit)
	}
	return addr - base, nil
}
