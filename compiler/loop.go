package compiler

import (
	"fmt"

	"github.com/thiremani/lanejit/geometry"
	"github.com/thiremani/lanejit/intrinsic"
	"github.com/thiremani/lanejit/token"
	"tinygo.org/x/go-llvm"
)

type Loop struct {
	Iter *Symbol
	Body llvm.BasicBlock
	Exit llvm.BasicBlock
}

// GridStrideLoop emits
//
//	for i := grid[axis]; i < bound; i += gridsize[axis] { body(i) }
//
// with the induction variable at the width of bound. Like
// intrinsic.Stride, the loop exits instead of wrapping past the top of the
// type. body runs with the insert point inside the loop and a loop scope
// in which the induction variable is bound as name.
func (c *Compiler) GridStrideLoop(axis geometry.Axis, name string, bound *Symbol, site token.Token, body func(iter *Symbol)) *Loop {
	w, ok := IntWidth(bound.Type)
	if !ok || (w != 32 && w != 64) {
		c.addError(site, fmt.Errorf("grid-stride bound must be a 32 or 64 bit integer, got %s", bound.Type))
		return nil
	}

	dims := int(axis) + 1
	start := c.LowerHierarchy(intrinsic.Hierarchy(intrinsic.Grid, dims), site)
	if start == nil {
		return nil
	}
	step := c.LowerHierarchy(intrinsic.Hierarchy(intrinsic.GridSize, dims), site)
	startVal := c.widen(start[axis].Val, w)
	stepVal := c.widen(step[axis].Val, w)

	curr := c.builder.GetInsertBlock()
	fn := c.kernel

	label := c.tmpName("stride")
	cond := c.Context.AddBasicBlock(fn, label+"_cond")
	bodyBlock := c.Context.AddBasicBlock(fn, label+"_body")
	exit := c.Context.AddBasicBlock(fn, label+"_exit")

	c.builder.CreateBr(cond)
	c.builder.SetInsertPointAtEnd(cond)

	iterType := c.Context.IntType(int(w))
	iter := c.builder.CreatePHI(iterType, name)
	iter.AddIncoming([]llvm.Value{startVal}, []llvm.BasicBlock{curr})

	inRange := c.builder.CreateICmp(llvm.IntULT, iter, bound.Val, label+"_in_range")
	c.builder.CreateCondBr(inRange, bodyBlock, exit)

	c.builder.SetInsertPointAtEnd(bodyBlock)
	loop := &Loop{
		Iter: &Symbol{Val: iter, Type: Uint{Width: w}},
		Body: bodyBlock,
		Exit: exit,
	}

	c.Scopes.push(strideScope)
	c.Scopes.bind(name, loop.Iter)
	body(loop.Iter)
	c.Scopes.pop(strideScope)

	// body may have opened blocks of its own; the back edge leaves from
	// wherever it ended.
	latch := c.builder.GetInsertBlock()
	next := c.builder.CreateAdd(iter, stepVal, label+"_next")
	wrapped := c.builder.CreateICmp(llvm.IntULE, next, iter, label+"_wrapped")
	c.builder.CreateCondBr(wrapped, exit, cond)
	iter.AddIncoming([]llvm.Value{next}, []llvm.BasicBlock{latch})

	c.builder.SetInsertPointAtEnd(exit)
	return loop
}

func (c *Compiler) widen(v llvm.Value, width uint32) llvm.Value {
	if width == 32 {
		return v
	}
	return c.builder.CreateZExt(v, c.Context.IntType(int(width)), c.tmpName("wide"))
}
