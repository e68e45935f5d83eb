package compiler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScopesLookupStopsAtKernel(t *testing.T) {
	s := NewScopes()
	s.bind("leak", &Symbol{Type: U32})

	s.push(kernelScope)
	c := &Symbol{Type: U64}
	s.bind("c", c)

	s.push(strideScope)
	i := &Symbol{Type: U32}
	s.bind("i", i)
	assert.Equal(t, 2, s.Depth())

	got, ok := s.lookup("c")
	require.True(t, ok, "outer kernel names are visible inside a loop")
	assert.Same(t, c, got)
	got, ok = s.lookup("i")
	require.True(t, ok)
	assert.Same(t, i, got)
	_, ok = s.lookup("leak")
	assert.False(t, ok, "module names are not visible to a kernel")

	s.pop(strideScope)
	_, ok = s.lookup("i")
	assert.False(t, ok, "loop index is gone after the loop")

	s.pop(kernelScope)
	assert.Equal(t, 0, s.Depth())
}

func TestScopesPopChecksKind(t *testing.T) {
	s := NewScopes()
	assert.PanicsWithValue(t, "cannot pop module scope", func() { s.pop(kernelScope) })

	s.push(kernelScope)
	s.push(strideScope)
	assert.PanicsWithValue(t, "closing kernel scope, innermost is grid-stride loop", func() { s.pop(kernelScope) })
}
