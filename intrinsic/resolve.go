package intrinsic

import (
	"fmt"

	"github.com/thiremani/lanejit/geometry"
)

// Value is the result of one hierarchy intrinsic: Dims components in
// (x, y, z) order. Components past Dims are zero.
type Value struct {
	V    geometry.Dim3
	Dims int
}

// X is the first component; the whole result for a 1-D request.
func (v Value) X() uint32 { return v.V[geometry.X] }

// Y is the second component.
func (v Value) Y() uint32 { return v.V[geometry.Y] }

// Z is the third component.
func (v Value) Z() uint32 { return v.V[geometry.Z] }

// At returns the component for axis a.
func (v Value) At(a geometry.Axis) uint32 { return v.V[a] }

// Slice returns the declared components.
func (v Value) Slice() []uint32 {
	return append([]uint32(nil), v.V[:v.Dims]...)
}

func (v Value) String() string {
	switch v.Dims {
	case 1:
		return fmt.Sprintf("%d", v.V[0])
	case 2:
		return fmt.Sprintf("(%d, %d)", v.V[0], v.V[1])
	default:
		return v.V.String()
	}
}

// Resolve evaluates a hierarchy request for the lane at pos in launch g.
//
// Grid and GridSize use 32-bit unsigned arithmetic and wrap on overflow the
// way the target multiply does. Requesting fewer axes than the launch
// declares ignores the trailing ones; requesting more is an error.
func Resolve(r Request, pos geometry.Position, g geometry.Launch) (Value, error) {
	if err := r.Check(g); err != nil {
		return Value{}, err
	}
	if r.Kind.IsBit() {
		return Value{}, fmt.Errorf("%s is not a hierarchy intrinsic", r)
	}

	v := Value{Dims: r.Dims}
	for a := 0; a < r.Dims; a++ {
		v.V[a] = component(r.Kind, a, pos, g)
	}
	return v, nil
}

func component(k Kind, a int, pos geometry.Position, g geometry.Launch) uint32 {
	switch k {
	case ThreadIdx:
		return pos.ThreadIdx[a]
	case BlockIdx:
		return pos.BlockIdx[a]
	case BlockDim:
		return g.Block[a]
	case GridDim:
		return g.Grid[a]
	case Grid:
		return pos.BlockIdx[a]*g.Block[a] + pos.ThreadIdx[a]
	case GridSize:
		return g.Grid[a] * g.Block[a]
	case Popc, Brev, Clz:
		panic(fmt.Sprintf("component: %v is not a hierarchy intrinsic", k))
	default:
		panic(fmt.Sprintf("component: unhandled kind %v", k))
	}
}
