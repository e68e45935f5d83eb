package intrinsic

import "iter"

// Stride yields start, start+stride, start+2*stride, ... while below bound.
//
// It is the grid-stride idiom: with start = Grid[a] and stride = GridSize[a],
// the lanes of a launch together visit every index in [0, bound) exactly
// once. The sequence stops rather than wrap past 2^32, and a zero stride
// (a GridSize product that wrapped) yields start alone.
func Stride(start, stride, bound uint32) iter.Seq[uint32] {
	return func(yield func(uint32) bool) {
		for i := start; i < bound; {
			if !yield(i) {
				return
			}
			next := i + stride
			if next <= i {
				return
			}
			i = next
		}
	}
}
