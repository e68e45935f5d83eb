package compiler

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/thiremani/lanejit/geometry"
	"github.com/thiremani/lanejit/intrinsic"
	"github.com/thiremani/lanejit/manifest"
	"github.com/thiremani/lanejit/token"
	"tinygo.org/x/go-llvm"
)

func site(line int) token.Token {
	return token.Token{FileName: "k.yaml", Line: line, Column: 5}
}

func newTestCompiler(t *testing.T, grid, block geometry.Extent, opts Options) *Compiler {
	t.Helper()
	ctx := llvm.NewContext()
	c := NewCompiler(ctx, "test", geometry.MustValidate(grid, block), opts)
	t.Cleanup(func() {
		c.Dispose()
		ctx.Dispose()
	})
	return c
}

func requireContains(t *testing.T, ir string, parts ...string) {
	t.Helper()
	for _, p := range parts {
		if !strings.Contains(ir, p) {
			t.Fatalf("IR does not contain %q:\n%s", p, ir)
		}
	}
}

func TestNVPTXHierarchy(t *testing.T) {
	c := newTestCompiler(t, geometry.Tuple(6, 5), geometry.Tuple(3, 4), Options{Target: NVPTX})
	c.BeginKernel("k", nil)

	grid := c.Lower(intrinsic.Hierarchy(intrinsic.Grid, 2), nil, site(1))
	require.Len(t, grid, 2)
	size := c.Lower(intrinsic.Hierarchy(intrinsic.GridSize, 2), nil, site(2))
	require.Len(t, size, 2)
	for _, s := range append(grid, size...) {
		assert.True(t, TypeEqual(U32, s.Type))
	}
	c.Lower(intrinsic.Hierarchy(intrinsic.ThreadIdx, 1), nil, site(3))
	c.EndKernel()

	require.Empty(t, c.Errors)
	require.NoError(t, c.Verify())

	ir := c.GenerateIR()
	requireContains(t, ir,
		`target triple = "nvptx64-nvidia-cuda"`,
		"define void @_lj1k_g6x5_b3x4()",
		"@llvm.nvvm.read.ptx.sreg.ctaid.x()",
		"@llvm.nvvm.read.ptx.sreg.ntid.y()",
		"@llvm.nvvm.read.ptx.sreg.tid.y()",
		"@llvm.nvvm.read.ptx.sreg.nctaid.y()",
		"%grid.x = add i32",
		"%grid.y = add i32",
		"%gridsize.x = mul i32",
		"!nvvm.annotations",
		`!"kernel"`,
	)
	assert.NotContains(t, ir, ".z()", "2-D launch never reads z registers")
}

func TestFoldExtents(t *testing.T) {
	c := newTestCompiler(t, geometry.Tuple(6, 5), geometry.Tuple(3, 4), Options{Target: NVPTX, FoldExtents: true})
	c.BeginKernel("k", nil)

	size := c.Lower(intrinsic.Hierarchy(intrinsic.GridSize, 2), nil, site(1))
	require.Len(t, size, 2)
	require.True(t, size[0].Val.IsConstant())
	assert.Equal(t, uint64(18), size[0].Val.ZExtValue())
	assert.Equal(t, uint64(20), size[1].Val.ZExtValue())

	dim := c.Lower(intrinsic.Hierarchy(intrinsic.BlockDim, 2), nil, site(2))
	assert.Equal(t, uint64(4), dim[1].Val.ZExtValue())

	c.Lower(intrinsic.Hierarchy(intrinsic.Grid, 1), nil, site(3))
	c.EndKernel()
	require.Empty(t, c.Errors)

	ir := c.GenerateIR()
	requireContains(t, ir, "mul i32 %ctaid.x, 3")
	assert.NotContains(t, ir, "sreg.ntid")
	assert.NotContains(t, ir, "sreg.nctaid")
}

func TestBitIntrinsics(t *testing.T) {
	c := newTestCompiler(t, geometry.Scalar(1), geometry.Scalar(1), Options{Target: NVPTX})
	c.BeginKernel("bits", []Param{{"x", U32}, {"c", U64}, {"s", I32}})
	x, _ := c.Lookup("x")
	cc, _ := c.Lookup("c")
	s, _ := c.Lookup("s")

	p32 := c.Lower(intrinsic.Bit(intrinsic.Popc, intrinsic.W32), []*Symbol{x}, site(1))
	p64 := c.Lower(intrinsic.Bit(intrinsic.Popc, intrinsic.W64), []*Symbol{cc}, site(2))
	b64 := c.Lower(intrinsic.Bit(intrinsic.Brev, intrinsic.W64), []*Symbol{cc}, site(3))
	z64 := c.Lower(intrinsic.Bit(intrinsic.Clz, intrinsic.W64), []*Symbol{cc}, site(4))
	z32 := c.Lower(intrinsic.Bit(intrinsic.Clz, intrinsic.W32), []*Symbol{s}, site(5))
	c.EndKernel()

	require.Empty(t, c.Errors)
	require.NoError(t, c.Verify())

	assert.True(t, TypeEqual(U32, p32[0].Type))
	assert.True(t, TypeEqual(U32, p64[0].Type), "popc of a 64-bit operand still yields u32")
	assert.True(t, TypeEqual(U64, b64[0].Type), "brev keeps the operand type")
	assert.True(t, TypeEqual(U32, z64[0].Type))
	assert.True(t, TypeEqual(U32, z32[0].Type))

	requireContains(t, c.GenerateIR(),
		"call i32 @llvm.ctpop.i32(i32 %x)",
		"call i64 @llvm.ctpop.i64(i64 %c)",
		"call i64 @llvm.bitreverse.i64(i64 %c)",
		"call i64 @llvm.ctlz.i64(i64 %c, i1 false)",
		"call i32 @llvm.ctlz.i32(i32 %s, i1 false)",
		"trunc i64",
	)
}

func TestIntrinsicDeclaredOnce(t *testing.T) {
	c := newTestCompiler(t, geometry.Scalar(4), geometry.Scalar(4), Options{Target: NVPTX})
	c.BeginKernel("k", []Param{{"x", U32}})
	x, _ := c.Lookup("x")
	for i := range 3 {
		c.Lower(intrinsic.Bit(intrinsic.Popc, intrinsic.W32), []*Symbol{x}, site(i))
		c.Lower(intrinsic.Hierarchy(intrinsic.ThreadIdx, 1), nil, site(i))
	}
	c.EndKernel()

	ir := c.GenerateIR()
	assert.Equal(t, 1, strings.Count(ir, "declare i32 @llvm.ctpop.i32"))
	assert.Equal(t, 1, strings.Count(ir, "declare i32 @llvm.nvvm.read.ptx.sreg.tid.x"))
}

func TestLowerErrors(t *testing.T) {
	c := newTestCompiler(t, geometry.Tuple(6, 5), geometry.Tuple(3, 4), Options{Target: NVPTX})
	c.BeginKernel("k", []Param{{"c", U64}, {"out", Ptr{Elem: I64}}})
	cc, _ := c.Lookup("c")
	out, _ := c.Lookup("out")

	assert.Nil(t, c.Lower(intrinsic.Hierarchy(intrinsic.Grid, 3), nil, site(1)))
	assert.Nil(t, c.Lower(intrinsic.Bit(intrinsic.Popc, intrinsic.W32), []*Symbol{cc}, site(2)))
	assert.Nil(t, c.Lower(intrinsic.Bit(intrinsic.Clz, 16), []*Symbol{cc}, site(3)))
	assert.Nil(t, c.Lower(intrinsic.Bit(intrinsic.Brev, intrinsic.W64), nil, site(4)))
	assert.Nil(t, c.Lower(intrinsic.Hierarchy(intrinsic.BlockIdx, 1), []*Symbol{cc}, site(5)))
	assert.Nil(t, c.Lower(intrinsic.Bit(intrinsic.Popc, intrinsic.W64), []*Symbol{out}, site(6)))
	c.EndKernel()

	require.Len(t, c.Errors, 6)

	var dm *intrinsic.DimensionalityMismatchError
	require.True(t, errors.As(c.Errors[0], &dm))
	assert.Equal(t, 2, dm.Declared)
	assert.EqualError(t, c.Errors[0], "k.yaml:1:5: grid(3): launch is only 2-D")

	var wm *intrinsic.WidthMismatchError
	require.True(t, errors.As(c.Errors[1], &wm))
	assert.Equal(t, intrinsic.W64, wm.Operand)
	assert.ErrorIs(t, c.Errors[2], intrinsic.ErrWidthMismatch)

	assert.ErrorContains(t, c.Errors[3], "brev takes one operand, got 0")
	assert.ErrorContains(t, c.Errors[4], "blockIdx takes no operands, got 1")
	assert.ErrorContains(t, c.Errors[5], "operand must be an integer")

	// Failed sites emit nothing.
	assert.NotContains(t, c.GenerateIR(), "ctaid.z")
	assert.NotContains(t, c.GenerateIR(), "@llvm.ctpop")
}

func TestGridStrideLoopIR(t *testing.T) {
	c := newTestCompiler(t, geometry.Tuple(6, 5), geometry.Tuple(3, 4), Options{Target: NVPTX})
	c.BeginKernel("k", []Param{{"n", U32}, {"m", U64}})
	n, _ := c.Lookup("n")
	m, _ := c.Lookup("m")

	visited := 0
	loop := c.GridStrideLoop(geometry.Y, "i", n, site(1), func(iter *Symbol) {
		visited++
		inner, ok := c.Lookup("i")
		require.True(t, ok)
		assert.Equal(t, iter, inner)
	})
	require.NotNil(t, loop)
	_, ok := c.Lookup("i")
	assert.False(t, ok, "induction variable is scoped to the loop")

	wide := c.GridStrideLoop(geometry.X, "j", m, site(2), func(iter *Symbol) {
		assert.True(t, TypeEqual(U64, iter.Type))
	})
	require.NotNil(t, wide)
	c.EndKernel()

	assert.Equal(t, 1, visited)
	require.Empty(t, c.Errors)
	require.NoError(t, c.Verify())
	requireContains(t, c.GenerateIR(),
		"%i = phi i32",
		"%j = phi i64",
		"icmp ult i32 %i, %n",
		"icmp ule i32",
		"zext i32",
	)
}

func TestGridStrideLoopErrors(t *testing.T) {
	c := newTestCompiler(t, geometry.Scalar(6), geometry.Scalar(3), Options{Target: NVPTX})
	c.BeginKernel("k", []Param{{"n", U32}, {"out", Ptr{Elem: I64}}})
	n, _ := c.Lookup("n")
	out, _ := c.Lookup("out")

	assert.Nil(t, c.GridStrideLoop(geometry.Y, "i", n, site(1), func(*Symbol) { t.Fatal("body of failed loop ran") }))
	assert.Nil(t, c.GridStrideLoop(geometry.X, "i", out, site(2), func(*Symbol) { t.Fatal("body of failed loop ran") }))
	c.EndKernel()

	require.Len(t, c.Errors, 2)
	assert.ErrorIs(t, c.Errors[0], intrinsic.ErrDimensionalityMismatch)
	assert.ErrorContains(t, c.Errors[1], "bound must be a 32 or 64 bit integer")
}

func TestProbeCompiler(t *testing.T) {
	m, err := manifest.Parse("probe.yaml", []byte(`kernel: probe
launch: {grid: [6, 5], block: [3, 4]}
params:
  - {name: c, type: uint64}
intrinsics:
  - {name: i, call: grid, dims: 2}
  - {name: p, call: popc, arg: c}
  - {name: q, call: clz, arg: i.y}
`))
	require.NoError(t, err)

	ctx := llvm.NewContext()
	defer ctx.Dispose()
	pc, errs := NewProbeCompiler(ctx, m, Options{Target: NVPTX})
	require.Empty(t, errs)
	require.Empty(t, pc.Compile())
	require.NoError(t, pc.Compiler.Verify())

	requireContains(t, pc.Compiler.GenerateIR(),
		"define void @_lj5probe_g6x5_b3x4(ptr %out, i64 %c)",
		"call i32 @llvm.ctlz.i32(i32 %grid.y, i1 false)",
		"getelementptr i64, ptr %out, i64 3",
	)
}

func TestProbeCompilerErrors(t *testing.T) {
	ctx := llvm.NewContext()
	defer ctx.Dispose()

	bad, err := manifest.Parse("bad.yaml", []byte("kernel: k\nlaunch: {grid: [0, 5], block: [3, 4]}\nintrinsics: []\n"))
	require.NoError(t, err)
	_, errs := NewProbeCompiler(ctx, bad, Options{})
	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], geometry.ErrInvalidGeometry)

	m, err := manifest.Parse("k.yaml", []byte(`kernel: k
launch: {grid: 4, block: 8}
params:
  - {name: c, type: uint64}
  - {name: x, type: uint32}
intrinsics:
  - {name: a, call: grid, dims: 2}
  - {name: b, call: popc, width: 32, arg: c}
  - {name: d, call: clz, arg: x}
`))
	require.NoError(t, err)
	pc, errs := NewProbeCompiler(ctx, m, Options{})
	require.Empty(t, errs)
	errs = pc.Compile()
	require.Len(t, errs, 2)
	assert.ErrorIs(t, errs[0], intrinsic.ErrDimensionalityMismatch)
	assert.Equal(t, 7, errs[0].Token.Line)
	assert.ErrorIs(t, errs[1], intrinsic.ErrWidthMismatch)
	assert.Equal(t, 8, errs[1].Token.Line)

	badType, err := manifest.Parse("t.yaml", []byte(`kernel: k
launch: {grid: 1, block: 1}
params:
  - {name: f, type: float32}
intrinsics: []
`))
	require.NoError(t, err)
	pc, errs = NewProbeCompiler(ctx, badType, Options{})
	require.Empty(t, errs)
	errs = pc.Compile()
	require.Len(t, errs, 1)
	assert.ErrorContains(t, errs[0], `unsupported kernel type "float32"`)
}

func TestParseTarget(t *testing.T) {
	for in, want := range map[string]Target{"nvptx": NVPTX, "": NVPTX, "CUDA": NVPTX, "host": Host, "cpu": Host} {
		got, err := ParseTarget(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := ParseTarget("amdgpu")
	assert.Error(t, err)
	assert.Equal(t, "host", Host.String())
}

func TestTypes(t *testing.T) {
	for name, want := range map[string]Type{"int32": I32, "u64": U64, "UINT32": U32, "i64": I64} {
		got, err := ParseType(name)
		require.NoError(t, err)
		assert.True(t, TypeEqual(want, got), name)
	}
	for _, name := range []string{"float32", "float64", "bogus32"} {
		_, err := ParseType(name)
		assert.ErrorContains(t, err, "unsupported kernel type", name)
	}
	assert.False(t, TypeEqual(I32, U32))
	assert.False(t, TypeEqual(U32, U64))
	assert.True(t, TypeEqual(Ptr{Elem: I64}, Ptr{Elem: I64}))
	assert.Equal(t, intrinsic.W64, OperandWidth(I64))
	assert.Equal(t, "uint64[]", Ptr{Elem: U64}.String())
}
