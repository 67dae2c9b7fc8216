package utils

import "math/bits"

// RoundUp2 - Returns the nearest exponent of 2 that is equal to or bigger than the given value.
// Values lower than 1 are rounded up to 1.
func RoundUp2(a int64) int64 {
	if a <= 1 {
		return 1
	}

	return 1 << bits.Len64(uint64(a-1))
}

// AlignUp - Rounds size up to the nearest multiple of 1<<alignPow
func AlignUp(size int64, alignPow int8) int64 {
	quantum := int64(1) << alignPow
	return (size + quantum - 1) &^ (quantum - 1)
}

// Log2 - Returns the integer base 2 logarithm of a, zero for values lower than 2
func Log2(a int64) int {
	if a < 2 {
		return 0
	}

	return bits.Len64(uint64(a)) - 1
}

// CopyBytes - Returns a copy of a, nil stays nil
func CopyBytes(a []byte) []byte {
	if a == nil {
		return nil
	}
	b := make([]byte, len(a))
	_ = copy(b, a)

	return b
}
