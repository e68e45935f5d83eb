package compiler

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/thiremani/lanejit/geometry"
)

const (
	PREFIX = "_lj" // every kernel symbol starts with it
	GRID   = "_g"  // grid extents follow
	BLOCK  = "_b"  // block extents follow
	SEP    = "x"   // between extents of one vector
)

// MangleKernel names the specialization of kernel name for launch g:
//
//	_lj<len><name>_g<gx>x<gy>_b<bx>x<by>
//
// e.g. probe over grid (6, 5), block (3, 4) is _lj5probe_g6x5_b3x4. Only
// the declared axes appear. Non identifier runes in name become '_'.
func MangleKernel(name string, g geometry.Launch) string {
	ident := sanitize(name)
	var sb strings.Builder
	sb.WriteString(PREFIX)
	sb.WriteString(strconv.Itoa(len(ident)))
	sb.WriteString(ident)
	sb.WriteString(GRID)
	writeExtent(&sb, g.GridExtent())
	sb.WriteString(BLOCK)
	writeExtent(&sb, g.BlockExtent())
	return sb.String()
}

func writeExtent(sb *strings.Builder, e geometry.Extent) {
	for i, n := range e {
		if i > 0 {
			sb.WriteString(SEP)
		}
		sb.WriteString(strconv.Itoa(n))
	}
}

// sanitize maps name to an identifier. A leading digit gets a '_' in front
// so the length prefix stays unambiguous.
func sanitize(name string) string {
	var sb strings.Builder
	if name != "" && name[0] >= '0' && name[0] <= '9' {
		sb.WriteByte('_')
	}
	for _, r := range name {
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_') {
			sb.WriteRune(r)
			continue
		}
		sb.WriteByte('_')
	}
	return sb.String()
}

// DemangleKernel inverts MangleKernel. The name comes back sanitized.
func DemangleKernel(sym string) (name string, grid, block geometry.Extent, err error) {
	rest, ok := strings.CutPrefix(sym, PREFIX)
	if !ok {
		return "", nil, nil, fmt.Errorf("invalid kernel symbol %q: missing %s prefix", sym, PREFIX)
	}

	i := 0
	for i < len(rest) && rest[i] >= '0' && rest[i] <= '9' {
		i++
	}
	n, err := strconv.Atoi(rest[:i])
	if err != nil || i+n > len(rest) {
		return "", nil, nil, fmt.Errorf("invalid kernel symbol %q: bad name length", sym)
	}
	name = rest[i : i+n]
	rest = rest[i+n:]

	rest, ok = strings.CutPrefix(rest, GRID)
	if !ok {
		return "", nil, nil, fmt.Errorf("invalid kernel symbol %q: missing grid", sym)
	}
	gridStr, blockStr, ok := strings.Cut(rest, BLOCK)
	if !ok {
		return "", nil, nil, fmt.Errorf("invalid kernel symbol %q: missing block", sym)
	}
	if grid, err = readExtent(gridStr); err != nil {
		return "", nil, nil, fmt.Errorf("invalid kernel symbol %q: grid: %w", sym, err)
	}
	if block, err = readExtent(blockStr); err != nil {
		return "", nil, nil, fmt.Errorf("invalid kernel symbol %q: block: %w", sym, err)
	}
	return name, grid, block, nil
}

func readExtent(s string) (geometry.Extent, error) {
	var e geometry.Extent
	for part := range strings.SplitSeq(s, SEP) {
		n, err := strconv.Atoi(part)
		if err != nil {
			return nil, err
		}
		e = append(e, n)
	}
	return e, nil
}
