package compiler

import (
	"fmt"

	"github.com/thiremani/lanejit/geometry"
	"tinygo.org/x/go-llvm"
)

const (
	// Special registers of the device target. Suffixed with .x/.y/.z.
	SREG_TID    = "llvm.nvvm.read.ptx.sreg.tid"
	SREG_CTAID  = "llvm.nvvm.read.ptx.sreg.ctaid"
	SREG_NTID   = "llvm.nvvm.read.ptx.sreg.ntid"
	SREG_NCTAID = "llvm.nvvm.read.ptx.sreg.nctaid"

	// Bit intrinsics. Suffixed with the overload, .i32 or .i64.
	CTPOP      = "llvm.ctpop"
	CTLZ       = "llvm.ctlz"
	BITREVERSE = "llvm.bitreverse"
)

// reg is one of the four per-lane hierarchy registers.
type reg int

const (
	regTid reg = iota
	regCtaid
	regNtid
	regNctaid

	numRegs
)

var regBase = [numRegs]string{
	regTid:    SREG_TID,
	regCtaid:  SREG_CTAID,
	regNtid:   SREG_NTID,
	regNctaid: SREG_NCTAID,
}

var regNames = [numRegs]string{
	regTid:    "tid",
	regCtaid:  "ctaid",
	regNtid:   "ntid",
	regNctaid: "nctaid",
}

// regName is the value name for r on axis a, e.g. "ntid.y".
func regName(r reg, a geometry.Axis) string {
	return regNames[r] + "." + a.String()
}

// sregName is the device intrinsic reading r on axis a.
func sregName(r reg, a geometry.Axis) string {
	return regBase[r] + "." + a.String()
}

// overloadName appends the integer overload suffix, e.g. llvm.ctpop.i64.
func overloadName(base string, width int) string {
	return fmt.Sprintf("%s.i%d", base, width)
}

// GetFnType returns the LLVM FunctionType for an intrinsic family. width
// selects the overload for bit intrinsics and is ignored for registers.
func (c *Compiler) GetFnType(base string, width int) llvm.Type {
	i32 := c.Context.Int32Type()

	switch base {
	case SREG_TID, SREG_CTAID, SREG_NTID, SREG_NCTAID:
		return llvm.FunctionType(i32, nil, false)
	case CTPOP, BITREVERSE:
		iw := c.Context.IntType(width)
		return llvm.FunctionType(iw, []llvm.Type{iw}, false)
	case CTLZ:
		// second operand is is_zero_poison
		iw := c.Context.IntType(width)
		return llvm.FunctionType(iw, []llvm.Type{iw, c.Context.Int1Type()}, false)
	default:
		panic("Unknown intrinsic family " + base)
	}
}

// GetIntrinsic declares the named intrinsic once per module and returns its
// type and function value.
func (c *Compiler) GetIntrinsic(base, name string, width int) (llvm.Type, llvm.Value) {
	fnType := c.GetFnType(base, width)
	fn := c.Module.NamedFunction(name)
	if fn.IsNil() {
		fn = llvm.AddFunction(c.Module, name, fnType)
	}

	return fnType, fn
}
