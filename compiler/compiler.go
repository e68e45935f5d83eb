package compiler

import (
	"fmt"
	"strings"

	"github.com/thiremani/lanejit/geometry"
	"github.com/thiremani/lanejit/token"
	"tinygo.org/x/go-llvm"
)

// Target selects how hierarchy registers are read.
type Target int

const (
	// NVPTX reads identity and extents from the device special registers.
	NVPTX Target = iota
	// Host passes the twelve registers as leading i32 kernel parameters:
	// tid.xyz, ctaid.xyz, ntid.xyz, nctaid.xyz.
	Host
)

const (
	NVPTX_TRIPLE = "nvptx64-nvidia-cuda"
	NVPTX_LAYOUT = "e-i64:64-i128:128-v16:16-v32:32-n16:32:64"
)

func (t Target) String() string {
	switch t {
	case NVPTX:
		return "nvptx"
	case Host:
		return "host"
	default:
		return fmt.Sprintf("target(%d)", int(t))
	}
}

func ParseTarget(s string) (Target, error) {
	switch strings.ToLower(s) {
	case "nvptx", "ptx", "cuda", "":
		return NVPTX, nil
	case "host", "cpu":
		return Host, nil
	default:
		return 0, fmt.Errorf("unknown target %q: must be nvptx or host", s)
	}
}

type Options struct {
	Target Target
	// FoldExtents emits blockDim/gridDim as constants of the validated
	// launch instead of reading ntid/nctaid.
	FoldExtents bool
}

type Symbol struct {
	Val  llvm.Value
	Type Type
}

// Param is a declared kernel parameter.
type Param struct {
	Name string
	Type Type
}

// Compiler lowers intrinsic occurrences of kernels specialized for one
// launch geometry into a single LLVM module.
type Compiler struct {
	Scopes     Scopes
	Context    llvm.Context
	Module     llvm.Module
	builder    llvm.Builder
	Launch     geometry.Launch
	Options    Options
	Errors     []*token.CompileError
	kernel     llvm.Value
	hostRegs   [numRegs][geometry.MaxDims]llvm.Value
	tmpCounter int
}

func NewCompiler(ctx llvm.Context, moduleName string, launch geometry.Launch, opts Options) *Compiler {
	module := ctx.NewModule(moduleName)
	builder := ctx.NewBuilder()

	switch opts.Target {
	case NVPTX:
		module.SetTarget(NVPTX_TRIPLE)
		module.SetDataLayout(NVPTX_LAYOUT)
	case Host:
		module.SetTarget(llvm.DefaultTargetTriple())
	}

	return &Compiler{
		Scopes:  NewScopes(),
		Context: ctx,
		Module:  module,
		builder: builder,
		Launch:  launch,
		Options: opts,
		Errors:  []*token.CompileError{},
	}
}

func (c *Compiler) mapToLLVMType(t Type) llvm.Type {
	switch t.Kind() {
	case IntKind, UintKind:
		w, _ := IntWidth(t)
		switch w {
		case 1, 8, 16, 32, 64:
			return c.Context.IntType(int(w))
		default:
			panic(fmt.Sprintf("unsupported int width: %d", w))
		}
	case PtrKind:
		ptrType := t.(Ptr)
		elemLLVM := c.mapToLLVMType(ptrType.Elem)
		return llvm.PointerType(elemLLVM, 0)
	default:
		panic("unknown type in mapToLLVMType: " + t.String())
	}
}

func (c *Compiler) ConstU32(v uint32) llvm.Value {
	return llvm.ConstInt(c.Context.Int32Type(), uint64(v), false)
}

func (c *Compiler) ConstI64(v uint64) llvm.Value {
	return llvm.ConstInt(c.Context.Int64Type(), v, false)
}

func (c *Compiler) tmpName(prefix string) string {
	name := fmt.Sprintf("%s_%d", prefix, c.tmpCounter)
	c.tmpCounter++
	return name
}

// BeginKernel declares a kernel function, opens its entry block and binds
// params by name in a fresh kernel scope. The symbol is the kernel name
// mangled with the launch specialization.
func (c *Compiler) BeginKernel(name string, params []Param) llvm.Value {
	var llvmParams []llvm.Type
	if c.Options.Target == Host {
		for range int(numRegs) * geometry.MaxDims {
			llvmParams = append(llvmParams, c.Context.Int32Type())
		}
	}
	for _, p := range params {
		llvmParams = append(llvmParams, c.mapToLLVMType(p.Type))
	}

	fnType := llvm.FunctionType(c.Context.VoidType(), llvmParams, false)
	fn := llvm.AddFunction(c.Module, MangleKernel(name, c.Launch), fnType)
	entry := c.Context.AddBasicBlock(fn, "entry")
	c.builder.SetInsertPointAtEnd(entry)
	c.kernel = fn

	c.Scopes.push(kernelScope)

	offset := 0
	if c.Options.Target == Host {
		for r := range numRegs {
			for a := range geometry.MaxDims {
				v := fn.Param(offset)
				v.SetName(regName(r, geometry.Axis(a)))
				c.hostRegs[r][a] = v
				offset++
			}
		}
	} else {
		c.markKernel(fn)
	}

	for i, p := range params {
		v := fn.Param(offset + i)
		v.SetName(p.Name)
		c.Scopes.bind(p.Name, &Symbol{Val: v, Type: p.Type})
	}
	return fn
}

// markKernel lists fn in nvvm.annotations so the device backend emits it as
// an entry point.
func (c *Compiler) markKernel(fn llvm.Value) {
	md := c.Context.MDNode([]llvm.Metadata{
		fn.ConstantAsMetadata(),
		c.Context.MDString("kernel"),
		llvm.ConstInt(c.Context.Int32Type(), 1, false).ConstantAsMetadata(),
	})
	c.Module.AddNamedMetadataOperand("nvvm.annotations", md)
}

// EndKernel terminates the current kernel and closes its scope.
func (c *Compiler) EndKernel() {
	c.builder.CreateRetVoid()
	c.Scopes.pop(kernelScope)
	c.kernel = llvm.Value{}
}

// Lookup finds a named value of the current kernel.
func (c *Compiler) Lookup(name string) (*Symbol, bool) {
	return c.Scopes.lookup(name)
}

// Bind names a value in the innermost scope.
func (c *Compiler) Bind(name string, s *Symbol) {
	c.Scopes.bind(name, s)
}

func (c *Compiler) addError(site token.Token, err error) {
	c.Errors = append(c.Errors, &token.CompileError{Token: site, Err: err})
}

func (c *Compiler) GenerateIR() string {
	return c.Module.String()
}

// Verify runs the LLVM module verifier.
func (c *Compiler) Verify() error {
	return llvm.VerifyModule(c.Module, llvm.ReturnStatusAction)
}

// Dispose releases the builder and module. The context stays with the caller.
func (c *Compiler) Dispose() {
	c.builder.Dispose()
	c.Module.Dispose()
}
