// Package simd provides vectorised batch distance kernels for the correlation search.
//
// Reference points are transposed into structure-of-arrays Columns once, then every
// query evaluates its distance to a whole tile of references through viterin/vek
// element-wise kernels (AVX2 on amd64, NEON on arm64, pure Go elsewhere):
//
//	cols := simd.Transpose(refs)
//	scratch := simd.NewScratch(1024)
//	tile := cols.Slice(0, 1024)
//	d := simd.BatchDistance(scratch.Distances(tile.Len()), tile, query, &params, scratch)
//	idx, best := simd.ArgMin(d)
//
// # Exactness
//
// The kernels only use element-wise subtract, multiply, add, divide and square root.
// Each of those is correctly rounded in IEEE 754, and they are applied in the same
// order as metric.AnisotropicDistance and metric.EuclideanDistance, so tile distances
// agree with the scalar metric for the same pair.
//
// # Thread Safety
//
// Columns are read-only and may be shared. A Scratch belongs to one goroutine.
package simd
