// Package manifest reads probe-kernel manifests.
//
// A manifest stands in for the front end: it names a kernel, its launch, its
// scalar parameters, and an ordered list of intrinsic occurrences. Each
// occurrence remembers where it was written so diagnostics point at it.
//
//	kernel: probe
//	launch:
//	  grid: [6, 5]
//	  block: [3, 4]
//	params:
//	  - {name: c, type: uint64, value: 0xF00000000000}
//	intrinsics:
//	  - {name: i, call: grid, dims: 2}
//	  - {name: n, call: popc, width: 64, arg: c}
package manifest

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/thiremani/lanejit/geometry"
	"github.com/thiremani/lanejit/intrinsic"
	"github.com/thiremani/lanejit/token"
	"gopkg.in/yaml.v3"
)

type Manifest struct {
	Kernel     string  `yaml:"kernel"`
	Target     string  `yaml:"target,omitempty"`
	Launch     Launch  `yaml:"launch"`
	Params     []Param `yaml:"params,omitempty"`
	Intrinsics []Call  `yaml:"intrinsics"`

	// File is where the manifest was read from; used in diagnostics.
	File string `yaml:"-"`
}

type Launch struct {
	Grid  Extent `yaml:"grid"`
	Block Extent `yaml:"block"`
}

// Extent accepts a scalar (1-D) or a list of up to three integers.
type Extent geometry.Extent

func (e *Extent) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		var n int
		if err := node.Decode(&n); err != nil {
			return fmt.Errorf("line %d: extent: %w", node.Line, err)
		}
		*e = Extent{n}
		return nil
	case yaml.SequenceNode:
		var ns []int
		if err := node.Decode(&ns); err != nil {
			return fmt.Errorf("line %d: extent: %w", node.Line, err)
		}
		*e = Extent(ns)
		return nil
	default:
		return fmt.Errorf("line %d: extent must be an integer or a list of integers", node.Line)
	}
}

// Param is a scalar kernel parameter. Value is only used by simulation.
type Param struct {
	Name  string  `yaml:"name"`
	Type  string  `yaml:"type"`
	Value *uint64 `yaml:"value,omitempty"`

	Site token.Token `yaml:"-"`
}

func (p *Param) UnmarshalYAML(node *yaml.Node) error {
	type plain Param
	var raw plain
	if err := node.Decode(&raw); err != nil {
		return err
	}
	*p = Param(raw)
	p.Site = token.Token{Literal: p.Name, Line: node.Line, Column: node.Column}
	return nil
}

// Call is one intrinsic occurrence.
type Call struct {
	Name  string `yaml:"name"`
	Call  string `yaml:"call"`
	Dims  int    `yaml:"dims,omitempty"`
	Width int    `yaml:"width,omitempty"`
	Arg   string `yaml:"arg,omitempty"`

	Site token.Token `yaml:"-"`
}

func (c *Call) UnmarshalYAML(node *yaml.Node) error {
	type plain Call
	var raw plain
	if err := node.Decode(&raw); err != nil {
		return err
	}
	*c = Call(raw)
	c.Site = token.Token{Literal: c.Call, Line: node.Line, Column: node.Column}
	return nil
}

// Load reads and checks the manifest at path.
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	return Parse(path, data)
}

// Parse decodes a manifest and checks its structure. Geometry and request
// validity are left to the compiler so they surface as call-site errors.
func Parse(file string, data []byte) (*Manifest, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	m := &Manifest{}
	if err := dec.Decode(m); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%s: empty manifest", file)
		}
		return nil, fmt.Errorf("%s: %w", file, err)
	}
	m.File = file
	for i := range m.Params {
		m.Params[i].Site.FileName = file
	}
	for i := range m.Intrinsics {
		m.Intrinsics[i].Site.FileName = file
	}

	if errs := m.Check(); len(errs) > 0 {
		return nil, errors.Join(asErrors(errs)...)
	}
	return m, nil
}

func asErrors(errs []*token.CompileError) []error {
	out := make([]error, len(errs))
	for i, e := range errs {
		out[i] = e
	}
	return out
}

// Check reports structural problems: missing, malformed or duplicate names,
// unknown intrinsics, operands that are missing or refer to later names,
// and a width on a hierarchy call or dims on a bit call.
func (m *Manifest) Check() []*token.CompileError {
	var errs []*token.CompileError
	fail := func(site token.Token, format string, args ...any) {
		errs = append(errs, &token.CompileError{Token: site, Msg: fmt.Sprintf(format, args...)})
	}

	if m.Kernel == "" {
		fail(token.Token{FileName: m.File}, "manifest has no kernel name")
	} else if err := ValidateKernelName(m.Kernel); err != nil {
		fail(token.Token{FileName: m.File}, "%v", err)
	}

	defined := map[string]bool{}
	for _, p := range m.Params {
		switch {
		case p.Name == "":
			fail(p.Site, "parameter has no name")
		case ValidateName(p.Name) != nil:
			fail(p.Site, "%v", ValidateName(p.Name))
		case defined[p.Name]:
			fail(p.Site, "parameter %q declared twice", p.Name)
		}
		defined[p.Name] = true
	}

	for _, c := range m.Intrinsics {
		switch {
		case c.Name == "":
			fail(c.Site, "intrinsic occurrence has no name")
		case ValidateName(c.Name) != nil:
			fail(c.Site, "%v", ValidateName(c.Name))
		case defined[c.Name]:
			fail(c.Site, "name %q already defined", c.Name)
		}

		k, err := intrinsic.ParseKind(c.Call)
		if err != nil {
			fail(c.Site, "%v", err)
			defined[c.Name] = true
			continue
		}
		if k.IsBit() {
			switch {
			case c.Arg == "":
				fail(c.Site, "%s needs an operand", k)
			case !defined[c.Arg]:
				fail(c.Site, "operand %q is not defined before use", c.Arg)
			}
			if c.Dims != 0 {
				fail(c.Site, "%s takes no dims", k)
			}
		} else {
			if c.Arg != "" {
				fail(c.Site, "%s takes no operand", k)
			}
			if c.Width != 0 {
				fail(c.Site, "%s takes no width", k)
			}
		}
		for _, n := range c.Results() {
			defined[n] = true
		}
	}
	return errs
}

// Results names the values c produces: the bare name for a scalar result,
// name.x, name.y, name.z for a multi-dimensional one.
func (c Call) Results() []string {
	k, err := intrinsic.ParseKind(c.Call)
	if err != nil || k.IsBit() || c.Dims <= 1 {
		return []string{c.Name}
	}
	names := make([]string, 0, geometry.MaxDims)
	for a := 0; a < min(c.Dims, geometry.MaxDims); a++ {
		names = append(names, c.Name+"."+geometry.Axis(a).String())
	}
	return names
}

// Geometry validates the launch extents.
func (m *Manifest) Geometry() (geometry.Launch, error) {
	return geometry.Validate(geometry.Extent(m.Launch.Grid), geometry.Extent(m.Launch.Block))
}

// Request converts c into an intrinsic request. Hierarchy calls default to
// one dimension. The call must have passed Check.
func (c Call) Request() intrinsic.Request {
	k, err := intrinsic.ParseKind(c.Call)
	if err != nil {
		panic(err)
	}
	if k.IsBit() {
		return intrinsic.Bit(k, intrinsic.Width(c.Width))
	}
	dims := c.Dims
	if dims == 0 {
		dims = 1
	}
	return intrinsic.Hierarchy(k, dims)
}

// Requests converts every occurrence, in order. A bit call without an
// explicit width takes the declared width of its operand, as the front end
// would from the operand's static type.
func (m *Manifest) Requests() []intrinsic.Request {
	widths := map[string]intrinsic.Width{}
	for _, p := range m.Params {
		widths[p.Name] = TypeWidth(p.Type)
	}

	reqs := make([]intrinsic.Request, len(m.Intrinsics))
	for i, c := range m.Intrinsics {
		r := c.Request()
		if r.Kind.IsBit() && r.Width == 0 {
			r.Width = widths[c.Arg]
		}
		for _, n := range c.Results() {
			if r.Kind.IsBit() {
				widths[n] = r.ResultWidth()
			} else {
				widths[n] = intrinsic.W32
			}
		}
		reqs[i] = r
	}
	return reqs
}

type scalarType struct {
	width  intrinsic.Width
	signed bool
}

var scalarTypes = map[string]scalarType{
	"int32":  {intrinsic.W32, true},
	"i32":    {intrinsic.W32, true},
	"int64":  {intrinsic.W64, true},
	"i64":    {intrinsic.W64, true},
	"uint32": {intrinsic.W32, false},
	"u32":    {intrinsic.W32, false},
	"uint64": {intrinsic.W64, false},
	"u64":    {intrinsic.W64, false},
}

// ScalarType resolves a declared parameter type name, case-insensitively.
// Only 32 and 64-bit integers are kernel types; anything else, float32
// included, is an error.
func ScalarType(name string) (width intrinsic.Width, signed bool, err error) {
	t, ok := scalarTypes[strings.ToLower(name)]
	if !ok {
		return 0, false, fmt.Errorf("unsupported kernel type %q", name)
	}
	return t.width, t.signed, nil
}

// TypeWidth is the width of a declared scalar type, or 0 when name is not
// a kernel type.
func TypeWidth(name string) intrinsic.Width {
	w, _, err := ScalarType(name)
	if err != nil {
		return 0
	}
	return w
}

// Param returns the parameter named name.
func (m *Manifest) Param(name string) (Param, bool) {
	for _, p := range m.Params {
		if p.Name == name {
			return p, true
		}
	}
	return Param{}, false
}

// Slots lists every result name in output order. A probe kernel stores
// the value of slot i at out[i].
func (m *Manifest) Slots() []string {
	var slots []string
	for _, c := range m.Intrinsics {
		slots = append(slots, c.Results()...)
	}
	return slots
}
