package compiler

import (
	"fmt"

	"github.com/thiremani/lanejit/geometry"
	"github.com/thiremani/lanejit/intrinsic"
	"github.com/thiremani/lanejit/token"
	"tinygo.org/x/go-llvm"
)

// Lower emits the value fragment for one intrinsic occurrence. Hierarchy
// kinds take no operands and return req.Dims symbols in (x, y, z) order;
// bit kinds take exactly one operand and return one symbol.
//
// On failure the error is recorded against site, nothing is emitted and nil
// is returned.
func (c *Compiler) Lower(req intrinsic.Request, operands []*Symbol, site token.Token) []*Symbol {
	switch req.Kind {
	case intrinsic.ThreadIdx, intrinsic.BlockIdx, intrinsic.BlockDim,
		intrinsic.GridDim, intrinsic.Grid, intrinsic.GridSize:
		if len(operands) != 0 {
			c.addError(site, fmt.Errorf("%s takes no operands, got %d", req.Kind, len(operands)))
			return nil
		}
		return c.LowerHierarchy(req, site)
	case intrinsic.Popc, intrinsic.Brev, intrinsic.Clz:
		if len(operands) != 1 {
			c.addError(site, fmt.Errorf("%s takes one operand, got %d", req.Kind, len(operands)))
			return nil
		}
		s := c.LowerBit(req, operands[0], site)
		if s == nil {
			return nil
		}
		return []*Symbol{s}
	default:
		c.addError(site, fmt.Errorf("unhandled intrinsic kind %v", req.Kind))
		return nil
	}
}

// LowerHierarchy emits reads of the hierarchy registers and the index
// arithmetic for req. All values are u32 and wrap on overflow.
func (c *Compiler) LowerHierarchy(req intrinsic.Request, site token.Token) []*Symbol {
	if err := req.Check(c.Launch); err != nil {
		c.addError(site, err)
		return nil
	}
	if req.Kind.IsBit() {
		c.addError(site, fmt.Errorf("%s is not a hierarchy intrinsic", req))
		return nil
	}

	out := make([]*Symbol, req.Dims)
	for a := range req.Dims {
		out[a] = &Symbol{Val: c.hierarchyAxis(req.Kind, geometry.Axis(a)), Type: U32}
	}
	return out
}

func (c *Compiler) hierarchyAxis(k intrinsic.Kind, a geometry.Axis) llvm.Value {
	switch k {
	case intrinsic.ThreadIdx:
		return c.readReg(regTid, a)
	case intrinsic.BlockIdx:
		return c.readReg(regCtaid, a)
	case intrinsic.BlockDim:
		return c.readReg(regNtid, a)
	case intrinsic.GridDim:
		return c.readReg(regNctaid, a)
	case intrinsic.Grid:
		base := c.builder.CreateMul(c.readReg(regCtaid, a), c.readReg(regNtid, a), "block_base."+a.String())
		return c.builder.CreateAdd(base, c.readReg(regTid, a), "grid."+a.String())
	case intrinsic.GridSize:
		return c.builder.CreateMul(c.readReg(regNctaid, a), c.readReg(regNtid, a), "gridsize."+a.String())
	case intrinsic.Popc, intrinsic.Brev, intrinsic.Clz:
		panic(fmt.Sprintf("hierarchyAxis: %v is not a hierarchy intrinsic", k))
	default:
		panic(fmt.Sprintf("hierarchyAxis: unhandled kind %v", k))
	}
}

// readReg produces the value of register r on axis a for the current lane.
func (c *Compiler) readReg(r reg, a geometry.Axis) llvm.Value {
	if c.Options.FoldExtents {
		switch r {
		case regNtid:
			return c.ConstU32(c.Launch.Block[a])
		case regNctaid:
			return c.ConstU32(c.Launch.Grid[a])
		}
	}

	switch c.Options.Target {
	case Host:
		return c.hostRegs[r][a]
	default:
		name := sregName(r, a)
		fnType, fn := c.GetIntrinsic(regBase[r], name, 32)
		return c.builder.CreateCall(fnType, fn, nil, regName(r, a))
	}
}

// LowerBit emits popc, brev or clz on operand. The operand's declared width
// must equal req.Width and be 32 or 64. clz is emitted with is_zero_poison
// false so clz(0) is the operand width.
func (c *Compiler) LowerBit(req intrinsic.Request, operand *Symbol, site token.Token) *Symbol {
	if err := req.Check(c.Launch); err != nil {
		c.addError(site, err)
		return nil
	}
	if req.Kind.IsHierarchy() {
		c.addError(site, fmt.Errorf("%s is not a bit intrinsic", req))
		return nil
	}
	if _, ok := IntWidth(operand.Type); !ok {
		c.addError(site, fmt.Errorf("%s: operand must be an integer, got %s", req, operand.Type))
		return nil
	}
	if err := req.CheckOperand(OperandWidth(operand.Type)); err != nil {
		c.addError(site, err)
		return nil
	}

	width := int(req.Width)
	switch req.Kind {
	case intrinsic.Popc:
		fnType, fn := c.GetIntrinsic(CTPOP, overloadName(CTPOP, width), width)
		v := c.builder.CreateCall(fnType, fn, []llvm.Value{operand.Val}, c.tmpName("popc"))
		return &Symbol{Val: c.toU32(v, width), Type: U32}
	case intrinsic.Brev:
		fnType, fn := c.GetIntrinsic(BITREVERSE, overloadName(BITREVERSE, width), width)
		v := c.builder.CreateCall(fnType, fn, []llvm.Value{operand.Val}, c.tmpName("brev"))
		return &Symbol{Val: v, Type: operand.Type}
	case intrinsic.Clz:
		fnType, fn := c.GetIntrinsic(CTLZ, overloadName(CTLZ, width), width)
		zeroPoison := llvm.ConstInt(c.Context.Int1Type(), 0, false)
		v := c.builder.CreateCall(fnType, fn, []llvm.Value{operand.Val, zeroPoison}, c.tmpName("clz"))
		return &Symbol{Val: c.toU32(v, width), Type: U32}
	default:
		panic(fmt.Sprintf("LowerBit: unhandled kind %v", req.Kind))
	}
}

// toU32 narrows a count produced at the operand width. Counts never exceed
// 64 so truncation is exact.
func (c *Compiler) toU32(v llvm.Value, width int) llvm.Value {
	if width == 32 {
		return v
	}
	return c.builder.CreateTrunc(v, c.Context.Int32Type(), c.tmpName("count"))
}
