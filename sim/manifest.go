package sim

import (
	"errors"
	"fmt"

	"github.com/thiremani/lanejit/geometry"
	"github.com/thiremani/lanejit/intrinsic"
	"github.com/thiremani/lanejit/manifest"
	"github.com/thiremani/lanejit/token"
)

// EvalManifest computes, for the lane at pos, the values a probe kernel
// built from m stores into its output buffer, in slot order. Param values
// default to zero and are truncated to their declared width.
//
// Like the compiler, it reports every failing site; a site whose operand
// failed earlier is reported as undefined.
func EvalManifest(m *manifest.Manifest, pos geometry.Position) ([]uint64, error) {
	geom, err := m.Geometry()
	if err != nil {
		return nil, err
	}
	if !geom.Contains(pos) {
		return nil, fmt.Errorf("%s is not a lane of %s", pos, geom)
	}

	var errs []error
	fail := func(site token.Token, err error) {
		errs = append(errs, &token.CompileError{Token: site, Err: err})
	}

	vals := map[string]uint64{}
	widths := map[string]intrinsic.Width{}
	for _, p := range m.Params {
		w, _, err := manifest.ScalarType(p.Type)
		if err != nil {
			fail(p.Site, err)
			continue
		}
		var v uint64
		if p.Value != nil {
			v = truncate(*p.Value, w)
		}
		vals[p.Name] = v
		widths[p.Name] = w
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	reqs := m.Requests()
	out := make([]uint64, 0, len(m.Slots()))
	for i, c := range m.Intrinsics {
		r := reqs[i]
		names := c.Results()

		if r.Kind.IsHierarchy() {
			v, err := intrinsic.Resolve(r, pos, geom)
			if err != nil {
				fail(c.Site, err)
				out = append(out, make([]uint64, len(names))...)
				continue
			}
			for j, n := range names {
				vals[n] = uint64(v.V[j])
				widths[n] = intrinsic.W32
				out = append(out, vals[n])
			}
			continue
		}

		x, ok := vals[c.Arg]
		if !ok {
			fail(c.Site, fmt.Errorf("undefined operand %q", c.Arg))
			out = append(out, 0)
			continue
		}
		if err := r.Check(geom); err != nil {
			fail(c.Site, err)
			out = append(out, 0)
			continue
		}
		if err := r.CheckOperand(widths[c.Arg]); err != nil {
			fail(c.Site, err)
			out = append(out, 0)
			continue
		}
		v, err := intrinsic.EvalBit(r, x)
		if err != nil {
			fail(c.Site, err)
			out = append(out, 0)
			continue
		}
		vals[c.Name] = v
		widths[c.Name] = r.ResultWidth()
		out = append(out, v)
	}

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return out, nil
}

func truncate(v uint64, w intrinsic.Width) uint64 {
	if w == intrinsic.W32 {
		return uint64(uint32(v))
	}
	return v
}
