package compiler

import (
	"fmt"

	"github.com/thiremani/lanejit/intrinsic"
	"github.com/thiremani/lanejit/manifest"
)

type Kind int

const (
	UnresolvedKind Kind = iota
	IntKind
	UintKind
	PtrKind
)

// Type is the interface for every kernel-visible type the lowering handles.
type Type interface {
	String() string
	Kind() Kind
}

// Common concrete types. Value typed, so safe as map keys.
var (
	I32 Type = Int{Width: 32}
	I64 Type = Int{Width: 64}
	U32 Type = Uint{Width: 32}
	U64 Type = Uint{Width: 64}
)

type Unresolved struct{}

func (u Unresolved) Kind() Kind     { return UnresolvedKind }
func (u Unresolved) String() string { return "?" }

// Int is a signed integer of the given bit width.
type Int struct {
	Width uint32
}

func (i Int) String() string {
	return fmt.Sprintf("int%d", i.Width)
}

func (i Int) Kind() Kind {
	return IntKind
}

// Uint is an unsigned integer of the given bit width. LLVM does not
// distinguish it from Int; the front end does, and so do diagnostics.
type Uint struct {
	Width uint32
}

func (u Uint) String() string {
	return fmt.Sprintf("uint%d", u.Width)
}

func (u Uint) Kind() Kind {
	return UintKind
}

// Ptr is a pointer to Elem. Kernels only use it for output buffers.
type Ptr struct {
	Elem Type
}

func (p Ptr) String() string {
	return fmt.Sprintf("%s[]", p.Elem.String())
}

func (p Ptr) Kind() Kind {
	return PtrKind
}

// IntWidth returns the bit width of an integer type, and false for
// everything else.
func IntWidth(t Type) (uint32, bool) {
	switch v := t.(type) {
	case Int:
		return v.Width, true
	case Uint:
		return v.Width, true
	default:
		return 0, false
	}
}

// OperandWidth is the declared width a bit intrinsic sees for t.
func OperandWidth(t Type) intrinsic.Width {
	w, _ := IntWidth(t)
	return intrinsic.Width(w)
}

// ParseType maps a declared scalar type name to its Type.
func ParseType(name string) (Type, error) {
	w, signed, err := manifest.ScalarType(name)
	if err != nil {
		return Unresolved{}, err
	}
	if signed {
		return Int{Width: uint32(w)}, nil
	}
	return Uint{Width: uint32(w)}, nil
}

// TypeEqual performs structural equality on types with a dispatcher by Kind.
func TypeEqual(a, b Type) bool {
	if a.Kind() != b.Kind() {
		return false
	}
	switch a.Kind() {
	case UnresolvedKind:
		return true
	case IntKind:
		return a.(Int).Width == b.(Int).Width
	case UintKind:
		return a.(Uint).Width == b.(Uint).Width
	case PtrKind:
		return TypeEqual(a.(Ptr).Elem, b.(Ptr).Elem)
	default:
		panic(fmt.Sprintf("TypeEqual: unhandled kind %v", a.Kind()))
	}
}
