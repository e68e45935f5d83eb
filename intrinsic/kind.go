// Package intrinsic defines the compiler-recognized kernel intrinsics and
// their reference semantics.
//
// Every lowering backend (LLVM for the device, the host JIT, the lane
// simulator) must agree bit for bit with the functions in this package.
package intrinsic

import (
	"fmt"
	"strings"
)

// Kind is the closed set of intrinsics. Switches over Kind are expected to
// be exhaustive; adding a kind means visiting every switch.
type Kind int

const (
	ThreadIdx Kind = iota
	BlockIdx
	BlockDim
	GridDim
	Grid
	GridSize
	Popc
	Brev
	Clz

	numKinds
)

var kindNames = [...]string{
	ThreadIdx: "threadIdx",
	BlockIdx:  "blockIdx",
	BlockDim:  "blockDim",
	GridDim:   "gridDim",
	Grid:      "grid",
	GridSize:  "gridsize",
	Popc:      "popc",
	Brev:      "brev",
	Clz:       "clz",
}

func (k Kind) String() string {
	if 0 <= k && k < numKinds {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// IsHierarchy reports whether k reads the thread hierarchy.
func (k Kind) IsHierarchy() bool {
	switch k {
	case ThreadIdx, BlockIdx, BlockDim, GridDim, Grid, GridSize:
		return true
	case Popc, Brev, Clz:
		return false
	default:
		panic(fmt.Sprintf("IsHierarchy: unhandled kind %v", k))
	}
}

// IsBit reports whether k is a fixed-width bit intrinsic.
func (k Kind) IsBit() bool {
	return !k.IsHierarchy()
}

// Kinds lists every intrinsic in declaration order.
func Kinds() []Kind {
	ks := make([]Kind, numKinds)
	for i := range ks {
		ks[i] = Kind(i)
	}
	return ks
}

// ParseKind maps a source-level intrinsic name to its Kind. Matching is
// case-insensitive so both "gridsize" and "gridSize" resolve.
func ParseKind(name string) (Kind, error) {
	for k, n := range kindNames {
		if strings.EqualFold(n, name) {
			return Kind(k), nil
		}
	}
	return 0, fmt.Errorf("unknown intrinsic %q", name)
}
