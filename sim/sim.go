// Package sim runs kernels written in Go over every lane of a launch.
//
// Blocks are spread over goroutines; the lanes of one block run one after
// another on the goroutine that owns the block. Every lane sees the same
// intrinsic values the lowered IR would compute for it.
package sim

import (
	"context"
	"fmt"
	"iter"
	"runtime"

	"github.com/thiremani/lanejit/geometry"
	"github.com/thiremani/lanejit/intrinsic"
	"golang.org/x/sync/errgroup"
)

// Lane is the identity of the running lane. It is only valid for the
// duration of one kernel call.
type Lane struct {
	pos  geometry.Position
	geom geometry.Launch
}

// NewLane returns the lane at pos of geom.
func NewLane(geom geometry.Launch, pos geometry.Position) *Lane {
	return &Lane{pos: pos, geom: geom}
}

func (l *Lane) Position() geometry.Position { return l.pos }

func (l *Lane) Geometry() geometry.Launch { return l.geom }

// Resolve answers a hierarchy request for this lane.
func (l *Lane) Resolve(r intrinsic.Request) (intrinsic.Value, error) {
	return intrinsic.Resolve(r, l.pos, l.geom)
}

// must resolves k at dims and panics on a dimensionality mismatch, which
// in a Go kernel is a programming error.
func (l *Lane) must(k intrinsic.Kind, dims int) intrinsic.Value {
	v, err := l.Resolve(intrinsic.Hierarchy(k, dims))
	if err != nil {
		panic(err)
	}
	return v
}

func (l *Lane) ThreadIdx(dims int) intrinsic.Value { return l.must(intrinsic.ThreadIdx, dims) }
func (l *Lane) BlockIdx(dims int) intrinsic.Value  { return l.must(intrinsic.BlockIdx, dims) }
func (l *Lane) BlockDim(dims int) intrinsic.Value  { return l.must(intrinsic.BlockDim, dims) }
func (l *Lane) GridDim(dims int) intrinsic.Value   { return l.must(intrinsic.GridDim, dims) }
func (l *Lane) Grid(dims int) intrinsic.Value      { return l.must(intrinsic.Grid, dims) }
func (l *Lane) GridSize(dims int) intrinsic.Value  { return l.must(intrinsic.GridSize, dims) }

// GridStride yields this lane's share of [0, bound) along axis. Together
// the lanes of the launch yield every index exactly once.
func (l *Lane) GridStride(axis geometry.Axis, bound uint32) iter.Seq[uint32] {
	dims := int(axis) + 1
	return intrinsic.Stride(l.Grid(dims).At(axis), l.GridSize(dims).At(axis), bound)
}

type config struct {
	limit int
}

type Option func(*config)

// WithLimit caps the number of blocks in flight. n <= 0 means no cap.
func WithLimit(n int) Option {
	return func(c *config) { c.limit = n }
}

// Kernel is the body run by every lane. The lane must not be retained.
type Kernel func(*Lane) error

// Run executes kernel once per lane of geom. The first error stops blocks
// that have not started yet and is returned, prefixed with the lane that
// produced it. Cancelling ctx has the same effect.
func Run(ctx context.Context, geom geometry.Launch, kernel Kernel, opts ...Option) error {
	cfg := config{limit: runtime.GOMAXPROCS(0)}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.limit <= 0 {
		cfg.limit = -1
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.limit)

	threads := geom.ThreadsPerBlock()
	for b := range geom.BlocksPerGrid() {
		if gctx.Err() != nil {
			break
		}
		blockIdx := geom.BlockAt(b)
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			lane := Lane{geom: geom}
			for t := range threads {
				lane.pos = geometry.Position{BlockIdx: blockIdx, ThreadIdx: geom.ThreadAt(t)}
				if err := kernel(&lane); err != nil {
					return fmt.Errorf("%s: %w", lane.pos, err)
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}
