package compiler

import "fmt"

type scopeKind int

const (
	moduleScope scopeKind = iota
	kernelScope
	strideScope // body of a grid-stride loop, binds its index
)

func (k scopeKind) String() string {
	switch k {
	case moduleScope:
		return "module"
	case kernelScope:
		return "kernel"
	case strideScope:
		return "grid-stride loop"
	default:
		return fmt.Sprintf("scope(%d)", int(k))
	}
}

type scope struct {
	kind    scopeKind
	symbols map[string]*Symbol
}

// Scopes is the stack of names visible while lowering. The module scope at
// the bottom is never popped and holds nothing a kernel can see.
type Scopes struct {
	stack []scope
}

func NewScopes() Scopes {
	return Scopes{stack: []scope{{kind: moduleScope, symbols: map[string]*Symbol{}}}}
}

func (s *Scopes) push(k scopeKind) {
	s.stack = append(s.stack, scope{kind: k, symbols: map[string]*Symbol{}})
}

// pop closes the innermost scope, which must be of kind k. A mismatch means
// a kernel or loop was closed out of order.
func (s *Scopes) pop(k scopeKind) {
	top := s.stack[len(s.stack)-1]
	if top.kind == moduleScope {
		panic("cannot pop module scope")
	}
	if top.kind != k {
		panic(fmt.Sprintf("closing %s scope, innermost is %s", k, top.kind))
	}
	s.stack = s.stack[:len(s.stack)-1]
}

func (s *Scopes) bind(name string, sym *Symbol) {
	s.stack[len(s.stack)-1].symbols[name] = sym
}

// lookup searches from the innermost scope outward and stops at the
// nearest kernel scope: kernels never see each other's names.
func (s *Scopes) lookup(name string) (*Symbol, bool) {
	for i := len(s.stack) - 1; i >= 0; i-- {
		if sym, ok := s.stack[i].symbols[name]; ok {
			return sym, true
		}
		if s.stack[i].kind == kernelScope {
			break
		}
	}
	return nil, false
}

// Depth is the number of open scopes above the module scope.
func (s *Scopes) Depth() int {
	return len(s.stack) - 1
}
