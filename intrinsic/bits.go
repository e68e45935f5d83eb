package intrinsic

import (
	"fmt"
	"math/bits"
)

// Word is an operand type of a bit intrinsic. The width comes from the type,
// never from the value.
type Word interface {
	~uint32 | ~uint64
}

func width[T Word]() int {
	return bits.Len64(uint64(^T(0)))
}

// OnesCount counts the set bits of x.
func OnesCount[T Word](x T) uint32 {
	return uint32(bits.OnesCount64(uint64(x)))
}

// Reverse reverses the bit order of x: output bit i is input bit W-1-i.
func Reverse[T Word](x T) T {
	return T(bits.Reverse64(uint64(x)) >> (64 - width[T]()))
}

// LeadingZeros counts leading zero bits from the most significant bit of x.
// LeadingZeros(0) is W, matching the device instruction.
func LeadingZeros[T Word](x T) uint32 {
	return uint32(bits.LeadingZeros64(uint64(x)) - (64 - width[T]()))
}

// EvalBit evaluates a bit request on a raw operand. Only the low r.Width
// bits of x take part; the result is zero extended into the uint64.
func EvalBit(r Request, x uint64) (uint64, error) {
	if !r.Width.Valid() {
		return 0, &WidthMismatchError{Request: r}
	}
	switch r.Width {
	case W32:
		return evalBit(r.Kind, uint32(x))
	default:
		return evalBit(r.Kind, x)
	}
}

func evalBit[T Word](k Kind, x T) (uint64, error) {
	switch k {
	case Popc:
		return uint64(OnesCount(x)), nil
	case Brev:
		return uint64(Reverse(x)), nil
	case Clz:
		return uint64(LeadingZeros(x)), nil
	case ThreadIdx, BlockIdx, BlockDim, GridDim, Grid, GridSize:
		return 0, fmt.Errorf("%v is not a bit intrinsic", k)
	default:
		return 0, fmt.Errorf("unhandled intrinsic kind %v", k)
	}
}
