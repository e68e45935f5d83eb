// Package geometry models the grid/block shape of one kernel launch.
//
// A Launch is built once per launch from caller supplied extents, validated,
// and never mutated afterwards. Every hierarchy intrinsic reads from it.
package geometry

import (
	"errors"
	"fmt"
	"iter"
	"math"
	"strings"
)

// MaxDims is the largest launch dimensionality (x, y, z).
const MaxDims = 3

// Axis names a hierarchy axis. X varies fastest.
type Axis int

const (
	X Axis = iota
	Y
	Z
)

func (a Axis) String() string {
	switch a {
	case X:
		return "x"
	case Y:
		return "y"
	case Z:
		return "z"
	default:
		return fmt.Sprintf("axis(%d)", int(a))
	}
}

// Dim3 holds one unsigned component per axis in (x, y, z) order.
type Dim3 [MaxDims]uint32

func (d Dim3) String() string {
	return fmt.Sprintf("(%d, %d, %d)", d[X], d[Y], d[Z])
}

// Extent is a caller supplied launch dimension: a scalar means 1-D, a tuple
// of 1 to 3 components gives the extent per axis. It is unchecked until
// passed to Validate.
type Extent []int

// Scalar returns the 1-D extent n.
func Scalar(n int) Extent {
	return Extent{n}
}

// Tuple returns the extent with one component per axis.
func Tuple(ns ...int) Extent {
	return Extent(ns)
}

func (e Extent) String() string {
	if len(e) == 1 {
		return fmt.Sprintf("%d", e[0])
	}
	parts := make([]string, len(e))
	for i, n := range e {
		parts[i] = fmt.Sprintf("%d", n)
	}
	return "(" + strings.Join(parts, ", ") + ")"
}

// ErrInvalidGeometry is matched by every *InvalidGeometryError.
var ErrInvalidGeometry = errors.New("invalid launch geometry")

// InvalidGeometryError reports an extent that cannot describe a launch.
type InvalidGeometryError struct {
	Grid   Extent
	Block  Extent
	Reason string
}

func (e *InvalidGeometryError) Error() string {
	return fmt.Sprintf("invalid launch geometry grid=%s block=%s: %s", e.Grid, e.Block, e.Reason)
}

func (e *InvalidGeometryError) Is(target error) bool {
	return target == ErrInvalidGeometry
}

// Launch is a validated launch geometry. Axes past Dims hold 1.
type Launch struct {
	Grid  Dim3
	Block Dim3
	Dims  int
}

// Validate checks grid and block extents and builds the Launch for them.
// Zero or negative components, components that do not fit in 32 bits,
// more than three components, and grid/block vectors of different
// dimensionality are all rejected. Nothing is ever clamped.
func Validate(grid, block Extent) (Launch, error) {
	fail := func(format string, args ...any) (Launch, error) {
		return Launch{}, &InvalidGeometryError{Grid: grid, Block: block, Reason: fmt.Sprintf(format, args...)}
	}

	switch {
	case len(grid) == 0 || len(block) == 0:
		return fail("extent has no components")
	case len(grid) > MaxDims || len(block) > MaxDims:
		return fail("extent has more than %d components", MaxDims)
	case len(grid) != len(block):
		return fail("grid is %d-D but block is %d-D", len(grid), len(block))
	}

	l := Launch{
		Grid:  Dim3{1, 1, 1},
		Block: Dim3{1, 1, 1},
		Dims:  len(grid),
	}
	for a := 0; a < l.Dims; a++ {
		g, err := component(grid[a])
		if err != nil {
			return fail("grid %s %v", Axis(a), err)
		}
		b, err := component(block[a])
		if err != nil {
			return fail("block %s %v", Axis(a), err)
		}
		l.Grid[a] = g
		l.Block[a] = b
	}
	return l, nil
}

func component(n int) (uint32, error) {
	if n < 1 {
		return 0, fmt.Errorf("extent %d is below 1", n)
	}
	if uint64(n) > math.MaxUint32 {
		return 0, fmt.Errorf("extent %d does not fit in 32 bits", n)
	}
	return uint32(n), nil
}

// MustValidate is Validate for fixed geometries in tests and examples.
func MustValidate(grid, block Extent) Launch {
	l, err := Validate(grid, block)
	if err != nil {
		panic(err)
	}
	return l
}

// Position is one lane's identity: its block within the grid and its
// thread within the block. Supplied by the execution environment; read only.
type Position struct {
	BlockIdx  Dim3
	ThreadIdx Dim3
}

func (p Position) String() string {
	return fmt.Sprintf("block%s thread%s", p.BlockIdx, p.ThreadIdx)
}

// BlocksPerGrid is the number of blocks in the launch.
func (l Launch) BlocksPerGrid() int {
	return int(l.Grid[X]) * int(l.Grid[Y]) * int(l.Grid[Z])
}

// ThreadsPerBlock is the number of lanes in each block.
func (l Launch) ThreadsPerBlock() int {
	return int(l.Block[X]) * int(l.Block[Y]) * int(l.Block[Z])
}

// TotalLanes is the number of lanes in the launch.
func (l Launch) TotalLanes() int {
	return l.BlocksPerGrid() * l.ThreadsPerBlock()
}

// Contains reports whether p is a lane of this launch.
func (l Launch) Contains(p Position) bool {
	for a := 0; a < MaxDims; a++ {
		if p.BlockIdx[a] >= l.Grid[a] || p.ThreadIdx[a] >= l.Block[a] {
			return false
		}
	}
	return true
}

// BlockAt converts a linear block number to its grid position, x fastest.
func (l Launch) BlockAt(linear int) Dim3 {
	return unflatten(linear, l.Grid)
}

// ThreadAt converts a linear thread number to its block position, x fastest.
func (l Launch) ThreadAt(linear int) Dim3 {
	return unflatten(linear, l.Block)
}

func unflatten(linear int, d Dim3) Dim3 {
	plane := int(d[X]) * int(d[Y])
	return Dim3{
		uint32(linear % int(d[X])),
		uint32((linear % plane) / int(d[X])),
		uint32(linear / plane),
	}
}

// Lanes yields every lane position: blocks in linear order, and within each
// block threads in linear order, x fastest in both.
func (l Launch) Lanes() iter.Seq[Position] {
	return func(yield func(Position) bool) {
		threads := l.ThreadsPerBlock()
		for b := range l.BlocksPerGrid() {
			blockIdx := l.BlockAt(b)
			for t := range threads {
				if !yield(Position{BlockIdx: blockIdx, ThreadIdx: l.ThreadAt(t)}) {
					return
				}
			}
		}
	}
}

// String prints only the declared axes, e.g. "grid=(6, 5) block=(3, 4)".
func (l Launch) String() string {
	return fmt.Sprintf("grid=%s block=%s", l.extent(l.Grid), l.extent(l.Block))
}

func (l Launch) extent(d Dim3) Extent {
	e := make(Extent, l.Dims)
	for a := range e {
		e[a] = int(d[a])
	}
	return e
}

// GridExtent returns the grid extent in the form it was declared.
func (l Launch) GridExtent() Extent {
	return l.extent(l.Grid)
}

// BlockExtent returns the block extent in the form it was declared.
func (l Launch) BlockExtent() Extent {
	return l.extent(l.Block)
}
