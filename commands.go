package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"

	"github.com/spf13/cobra"
	"github.com/thiremani/lanejit/compiler"
	"github.com/thiremani/lanejit/geometry"
	"github.com/thiremani/lanejit/manifest"
	"github.com/thiremani/lanejit/sim"
	"tinygo.org/x/go-llvm"
)

// IROptions holds flags for the ir command.
type IROptions struct {
	Target      string
	FoldExtents bool
	Out         string
	Cache       bool
}

// NewIRCommand creates the ir command.
func NewIRCommand() *cobra.Command {
	opts := &IROptions{}

	cmd := &cobra.Command{
		Use:   "ir <manifest.yaml>",
		Short: "Emit LLVM IR for a probe kernel",
		Long: `Emit LLVM IR for the probe kernel a manifest describes.

Every intrinsic occurrence is lowered for the manifest's launch and its
components are stored, in order, to the kernel's i64 output buffer.
The target flag overrides the manifest's target.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIR(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Target, "target", "", "lowering target (nvptx|host)")
	cmd.Flags().BoolVar(&opts.FoldExtents, "fold-extents", false, "emit blockDim/gridDim as constants")
	cmd.Flags().StringVarP(&opts.Out, "out", "o", "", "write IR to file instead of stdout")
	cmd.Flags().BoolVar(&opts.Cache, "cache", false, "write IR into $LJCACHE and print its path")

	return cmd
}

func runIR(opts *IROptions, path string, cmd *cobra.Command) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read manifest: %w", err)
	}
	m, err := manifest.Parse(path, data)
	if err != nil {
		return err
	}

	target := m.Target
	if cmd.Flags().Changed("target") {
		target = opts.Target
	}
	t, err := compiler.ParseTarget(target)
	if err != nil {
		return err
	}
	copts := compiler.Options{Target: t, FoldExtents: opts.FoldExtents}
	slog.Debug("lowering", "kernel", m.Kernel, "target", t, "fold", opts.FoldExtents)

	emit := func() (string, error) {
		return emitIR(m, copts, cmd.ErrOrStderr())
	}

	if opts.Cache {
		irPath, cached, err := cachedIR(defaultLJCache(), m.Kernel, data, copts, emit)
		if err != nil {
			return err
		}
		slog.Info("IR ready", "path", irPath, "cached", cached)
		fmt.Fprintln(cmd.OutOrStdout(), irPath)
		return nil
	}

	ir, err := emit()
	if err != nil {
		return err
	}
	if opts.Out != "" {
		if err := os.WriteFile(opts.Out, []byte(ir), 0644); err != nil {
			return fmt.Errorf("write IR: %w", err)
		}
		slog.Info("IR written", "path", opts.Out)
		return nil
	}
	_, err = io.WriteString(cmd.OutOrStdout(), ir)
	return err
}

// emitIR compiles m and returns its module as text. Compile errors are
// printed one per line to errOut.
func emitIR(m *manifest.Manifest, opts compiler.Options, errOut io.Writer) (string, error) {
	ctx := llvm.NewContext()
	defer ctx.Dispose()

	pc, errs := compiler.NewProbeCompiler(ctx, m, opts)
	if len(errs) == 0 {
		defer pc.Compiler.Dispose()
		errs = pc.Compile()
	}
	if len(errs) > 0 {
		for _, e := range errs {
			fmt.Fprintln(errOut, e)
		}
		return "", fmt.Errorf("%s: %d compile error(s)", m.Kernel, len(errs))
	}
	if err := pc.Compiler.Verify(); err != nil {
		return "", fmt.Errorf("%s: invalid module: %w", m.Kernel, err)
	}
	return pc.Compiler.GenerateIR(), nil
}

// SimOptions holds flags for the sim command.
type SimOptions struct {
	Block    []uint
	Thread   []uint
	All      bool
	Coverage uint32
	Limit    int
}

// NewSimCommand creates the sim command.
func NewSimCommand() *cobra.Command {
	opts := &SimOptions{}

	cmd := &cobra.Command{
		Use:   "sim <manifest.yaml>",
		Short: "Evaluate a manifest lane by lane",
		Long: `Evaluate the intrinsic occurrences of a manifest for one lane, for
every lane, or check that grid-stride loops over the manifest's launch
visit each index of an N-per-axis array exactly once.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSim(cmd.Context(), opts, args[0], cmd.OutOrStdout())
		},
	}

	cmd.Flags().UintSliceVar(&opts.Block, "block", nil, "block index of the lane, e.g. 4,2")
	cmd.Flags().UintSliceVar(&opts.Thread, "thread", nil, "thread index of the lane, e.g. 1,3")
	cmd.Flags().BoolVar(&opts.All, "all", false, "evaluate every lane")
	cmd.Flags().Uint32Var(&opts.Coverage, "coverage", 0, "check grid-stride coverage of N elements per axis")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "blocks simulated concurrently (0 = GOMAXPROCS)")

	return cmd
}

func runSim(ctx context.Context, opts *SimOptions, path string, out io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	m, err := manifest.Load(path)
	if err != nil {
		return err
	}
	geom, err := m.Geometry()
	if err != nil {
		return err
	}

	var runOpts []sim.Option
	if opts.Limit > 0 {
		runOpts = append(runOpts, sim.WithLimit(opts.Limit))
	}

	switch {
	case opts.Coverage > 0:
		if err := checkCoverage(ctx, geom, opts.Coverage, runOpts...); err != nil {
			return err
		}
		fmt.Fprintf(out, "coverage ok: %s covers %d^%d elements\n", geom, opts.Coverage, geom.Dims)
		return nil

	case opts.All:
		return simAll(ctx, m, geom, out, runOpts...)

	default:
		pos, err := lanePosition(opts.Block, opts.Thread)
		if err != nil {
			return err
		}
		vals, err := sim.EvalManifest(m, pos)
		if err != nil {
			return err
		}
		printSlots(out, m.Slots(), vals)
		return nil
	}
}

func lanePosition(block, thread []uint) (geometry.Position, error) {
	var pos geometry.Position
	if len(block) > geometry.MaxDims || len(thread) > geometry.MaxDims {
		return pos, fmt.Errorf("lane index has more than %d components", geometry.MaxDims)
	}
	for a, v := range block {
		pos.BlockIdx[a] = uint32(v)
	}
	for a, v := range thread {
		pos.ThreadIdx[a] = uint32(v)
	}
	return pos, nil
}

func printSlots(out io.Writer, slots []string, vals []uint64) {
	for i, v := range vals {
		fmt.Fprintf(out, "%s = %d (%#x)\n", slots[i], v, v)
	}
}

// simAll evaluates every lane on the simulator and prints the lanes in
// launch order.
func simAll(ctx context.Context, m *manifest.Manifest, geom geometry.Launch, out io.Writer, opts ...sim.Option) error {
	var mu sync.Mutex
	results := map[geometry.Position][]uint64{}

	err := sim.Run(ctx, geom, func(l *sim.Lane) error {
		vals, err := sim.EvalManifest(m, l.Position())
		if err != nil {
			return err
		}
		mu.Lock()
		results[l.Position()] = vals
		mu.Unlock()
		return nil
	}, opts...)
	if err != nil {
		return err
	}

	slots := m.Slots()
	for pos := range geom.Lanes() {
		fmt.Fprintln(out, pos)
		printSlots(out, slots, results[pos])
	}
	return nil
}

// maxCoverageElements bounds n^dims for the coverage check, which keeps one
// counter per element.
const maxCoverageElements = 1 << 24

// coverageElements is n^dims, or an error once it passes maxCoverageElements.
func coverageElements(n uint32, dims int) (int, error) {
	if n == 0 {
		return 0, fmt.Errorf("coverage needs at least one element per axis")
	}
	total := uint64(1)
	for range dims {
		if uint64(n) > maxCoverageElements/total {
			return 0, fmt.Errorf("coverage of %d^%d elements exceeds the limit of %d", n, dims, maxCoverageElements)
		}
		total *= uint64(n)
	}
	return int(total), nil
}

// checkCoverage runs nested grid-stride loops over an n-per-axis array with
// the launch's dimensionality and fails unless every element was visited
// exactly once.
func checkCoverage(ctx context.Context, geom geometry.Launch, n uint32, opts ...sim.Option) error {
	total, err := coverageElements(n, geom.Dims)
	if err != nil {
		return err
	}
	hits := make([]atomic.Int32, total)

	err = sim.Run(ctx, geom, func(l *sim.Lane) error {
		var walk func(axis, idx int)
		walk = func(axis, idx int) {
			if axis < 0 {
				hits[idx].Add(1)
				return
			}
			for i := range l.GridStride(geometry.Axis(axis), n) {
				walk(axis-1, idx*int(n)+int(i))
			}
		}
		walk(geom.Dims-1, 0)
		return nil
	}, opts...)
	if err != nil {
		return err
	}

	for i := range hits {
		if got := hits[i].Load(); got != 1 {
			return fmt.Errorf("element %d visited %d times", i, got)
		}
	}
	return nil
}
