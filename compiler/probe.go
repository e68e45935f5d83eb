package compiler

import (
	"fmt"

	"github.com/thiremani/lanejit/manifest"
	"github.com/thiremani/lanejit/token"
	"tinygo.org/x/go-llvm"
)

// OUT is the name of the probe kernel's output buffer parameter.
const OUT = "out"

// ProbeCompiler builds a probe kernel from a manifest: every intrinsic
// occurrence is lowered in order and each of its components is stored,
// zero extended to i64, at the next slot of the output buffer.
type ProbeCompiler struct {
	Compiler *Compiler
	Manifest *manifest.Manifest
}

// NewProbeCompiler validates the manifest launch and prepares a compiler
// specialized for it. An invalid launch is reported as a compile error at
// the manifest and no compiler is created.
func NewProbeCompiler(ctx llvm.Context, m *manifest.Manifest, opts Options) (*ProbeCompiler, []*token.CompileError) {
	launch, err := m.Geometry()
	if err != nil {
		site := token.Token{FileName: m.File, Literal: "launch"}
		return nil, []*token.CompileError{{Token: site, Err: err}}
	}
	return &ProbeCompiler{
		Compiler: NewCompiler(ctx, m.Kernel, launch, opts),
		Manifest: m,
	}, nil
}

// Params are the probe kernel parameters after the host registers: the
// output buffer, then the manifest params in order.
func (pc *ProbeCompiler) Params() ([]Param, []*token.CompileError) {
	var errs []*token.CompileError
	params := []Param{{Name: OUT, Type: Ptr{Elem: I64}}}
	for _, p := range pc.Manifest.Params {
		t, err := ParseType(p.Type)
		if err != nil {
			errs = append(errs, &token.CompileError{Token: p.Site, Err: err})
			continue
		}
		params = append(params, Param{Name: p.Name, Type: t})
	}
	return params, errs
}

// Compile emits the probe kernel and returns every call-site error. The
// module is only meaningful when no errors are returned.
func (pc *ProbeCompiler) Compile() []*token.CompileError {
	c := pc.Compiler
	params, errs := pc.Params()
	if len(errs) > 0 {
		return errs
	}

	c.BeginKernel(pc.Manifest.Kernel, params)
	out, _ := c.Lookup(OUT)

	slot := 0
	reqs := pc.Manifest.Requests()
	for i, call := range pc.Manifest.Intrinsics {
		names := call.Results()

		var operands []*Symbol
		if call.Arg != "" {
			s, ok := c.Lookup(call.Arg)
			if !ok {
				c.addError(call.Site, fmt.Errorf("undefined operand %q", call.Arg))
				slot += len(names)
				continue
			}
			operands = append(operands, s)
		}

		results := c.Lower(reqs[i], operands, call.Site)
		if results == nil {
			slot += len(names)
			continue
		}
		for j, r := range results {
			c.Bind(names[j], r)
			c.store(out, slot, r)
			slot++
		}
	}

	c.EndKernel()
	return c.Errors
}

// store writes s, zero extended to i64, to out[slot].
func (c *Compiler) store(out *Symbol, slot int, s *Symbol) {
	v := s.Val
	if w, _ := IntWidth(s.Type); w < 64 {
		v = c.builder.CreateZExt(v, c.Context.Int64Type(), c.tmpName("slot"))
	}
	ptr := c.builder.CreateGEP(c.Context.Int64Type(), out.Val, []llvm.Value{c.ConstI64(uint64(slot))}, c.tmpName("slot_ptr"))
	c.builder.CreateStore(v, ptr)
}
