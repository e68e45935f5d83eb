package geometry

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		grid    Extent
		block   Extent
		want    Launch
		wantErr string
	}{
		{"scalar", Scalar(7), Scalar(3), Launch{Grid: Dim3{7, 1, 1}, Block: Dim3{3, 1, 1}, Dims: 1}, ""},
		{"2d", Tuple(6, 5), Tuple(3, 4), Launch{Grid: Dim3{6, 5, 1}, Block: Dim3{3, 4, 1}, Dims: 2}, ""},
		{"3d", Tuple(4, 3, 2), Tuple(3, 2, 4), Launch{Grid: Dim3{4, 3, 2}, Block: Dim3{3, 2, 4}, Dims: 3}, ""},
		{"one tuple", Tuple(1), Tuple(10), Launch{Grid: Dim3{1, 1, 1}, Block: Dim3{10, 1, 1}, Dims: 1}, ""},

		{"zero grid x", Tuple(0, 5), Tuple(3, 4), Launch{}, "grid x extent 0 is below 1"},
		{"zero block z", Tuple(1, 1, 1), Tuple(1, 1, 0), Launch{}, "block z extent 0 is below 1"},
		{"negative", Scalar(-2), Scalar(3), Launch{}, "below 1"},
		{"too wide", Scalar(1 << 33), Scalar(1), Launch{}, "does not fit in 32 bits"},
		{"ragged", Tuple(2, 2), Scalar(2), Launch{}, "grid is 2-D but block is 1-D"},
		{"four dims", Tuple(1, 1, 1, 1), Tuple(1, 1, 1, 1), Launch{}, "more than 3 components"},
		{"empty", Extent{}, Scalar(1), Launch{}, "no components"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Validate(tt.grid, tt.block)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrInvalidGeometry)
				var ge *InvalidGeometryError
				require.True(t, errors.As(err, &ge))
				assert.Contains(t, ge.Reason, tt.wantErr)
				assert.Equal(t, Launch{}, got)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLanesCoverEveryPositionOnce(t *testing.T) {
	l := MustValidate(Tuple(2, 3, 2), Tuple(3, 1, 2))
	seen := map[Position]bool{}
	for p := range l.Lanes() {
		require.True(t, l.Contains(p), "lane %s outside %s", p, l)
		require.False(t, seen[p], "lane %s yielded twice", p)
		seen[p] = true
	}
	assert.Len(t, seen, l.TotalLanes())
	assert.Equal(t, 72, l.TotalLanes())
}

func TestLanesXFastest(t *testing.T) {
	l := MustValidate(Tuple(1, 1), Tuple(2, 2))
	var got []Dim3
	for p := range l.Lanes() {
		got = append(got, p.ThreadIdx)
	}
	assert.Equal(t, []Dim3{{0, 0, 0}, {1, 0, 0}, {0, 1, 0}, {1, 1, 0}}, got)
}

func TestLanesStopEarly(t *testing.T) {
	l := MustValidate(Scalar(4), Scalar(4))
	n := 0
	for range l.Lanes() {
		n++
		if n == 5 {
			break
		}
	}
	assert.Equal(t, 5, n)
}

func TestString(t *testing.T) {
	assert.Equal(t, "grid=(6, 5) block=(3, 4)", MustValidate(Tuple(6, 5), Tuple(3, 4)).String())
	assert.Equal(t, "grid=7 block=3", MustValidate(Scalar(7), Scalar(3)).String())
	assert.Equal(t, "y", Y.String())
}

func TestMustValidatePanics(t *testing.T) {
	assert.Panics(t, func() { MustValidate(Tuple(0, 5), Tuple(1, 1)) })
	assert.Panics(t, func() { MustValidate(Scalar(1), Tuple(2, 2)) })
}
