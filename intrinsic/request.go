package intrinsic

import (
	"errors"
	"fmt"

	"github.com/thiremani/lanejit/geometry"
)

// Width is the declared operand width of a bit intrinsic call site.
type Width uint32

const (
	W32 Width = 32
	W64 Width = 64
)

func (w Width) Valid() bool {
	return w == W32 || w == W64
}

func (w Width) String() string {
	return fmt.Sprintf("u%d", uint32(w))
}

// Request is one intrinsic occurrence as the front end hands it over.
// Dims applies to hierarchy kinds, Width to bit kinds; both are compile-time
// constants.
type Request struct {
	Kind  Kind
	Dims  int
	Width Width
}

// Hierarchy builds a thread-hierarchy request.
func Hierarchy(k Kind, dims int) Request {
	return Request{Kind: k, Dims: dims}
}

// Bit builds a bit-intrinsic request.
func Bit(k Kind, w Width) Request {
	return Request{Kind: k, Width: w}
}

func (r Request) String() string {
	switch r.Kind {
	case Popc, Brev, Clz:
		return fmt.Sprintf("%s.%s", r.Kind, r.Width)
	default:
		return fmt.Sprintf("%s(%d)", r.Kind, r.Dims)
	}
}

var (
	ErrDimensionalityMismatch = errors.New("dimensionality mismatch")
	ErrWidthMismatch          = errors.New("width mismatch")
)

// DimensionalityMismatchError reports a hierarchy request for more axes than
// the launch declares, or a dimensionality outside 1..3.
type DimensionalityMismatchError struct {
	Request  Request
	Declared int
}

func (e *DimensionalityMismatchError) Error() string {
	if e.Request.Dims < 1 || e.Request.Dims > geometry.MaxDims {
		return fmt.Sprintf("%s: dimensionality must be 1, 2 or 3", e.Request)
	}
	return fmt.Sprintf("%s: launch is only %d-D", e.Request, e.Declared)
}

func (e *DimensionalityMismatchError) Is(target error) bool {
	return target == ErrDimensionalityMismatch
}

// WidthMismatchError reports a bit request whose width is not 32 or 64, or
// that disagrees with the declared width of its operand.
type WidthMismatchError struct {
	Request Request
	Operand Width
}

func (e *WidthMismatchError) Error() string {
	if !e.Request.Width.Valid() {
		return fmt.Sprintf("%s: operand width must be 32 or 64", e.Request)
	}
	return fmt.Sprintf("%s: operand is declared %s", e.Request, e.Operand)
}

func (e *WidthMismatchError) Is(target error) bool {
	return target == ErrWidthMismatch
}

// Check validates r against the launch it will be resolved in. Bit requests
// only need a valid width; the operand check is CheckOperand.
func (r Request) Check(g geometry.Launch) error {
	switch r.Kind {
	case ThreadIdx, BlockIdx, BlockDim, GridDim, Grid, GridSize:
		if r.Dims < 1 || r.Dims > geometry.MaxDims || r.Dims > g.Dims {
			return &DimensionalityMismatchError{Request: r, Declared: g.Dims}
		}
		return nil
	case Popc, Brev, Clz:
		if !r.Width.Valid() {
			return &WidthMismatchError{Request: r}
		}
		return nil
	default:
		return fmt.Errorf("unhandled intrinsic kind %v", r.Kind)
	}
}

// CheckOperand validates a bit request against its operand's declared width.
func (r Request) CheckOperand(declared Width) error {
	if !r.Width.Valid() || r.Width != declared {
		return &WidthMismatchError{Request: r, Operand: declared}
	}
	return nil
}

// ResultWidth is the width of the value a bit intrinsic produces: popc and
// clz always yield 32 bits, brev keeps the operand width.
func (r Request) ResultWidth() Width {
	switch r.Kind {
	case Brev:
		return r.Width
	default:
		return W32
	}
}

// Components is how many values r produces.
func (r Request) Components() int {
	if r.Kind.IsHierarchy() {
		return r.Dims
	}
	return 1
}
