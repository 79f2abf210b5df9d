package simd

import (
	"github.com/viterin/vek"

	"github.com/orneryd/geocorrelate/pkg/geometry"
	"github.com/orneryd/geocorrelate/pkg/metric"
)

// Implementation represents the active SIMD implementation
type Implementation string

const (
	// ImplGeneric indicates pure Go fallback (no SIMD)
	ImplGeneric Implementation = "generic"
	// ImplAVX2 indicates x86 AVX2 SIMD
	ImplAVX2 Implementation = "avx2"
	// ImplNEON indicates ARM NEON SIMD
	ImplNEON Implementation = "neon"
)

// RuntimeInfo contains information about the active SIMD implementation
type RuntimeInfo struct {
	// Implementation is the active SIMD backend
	Implementation Implementation
	// Features lists specific CPU features being used
	Features []string
	// Accelerated indicates whether SIMD acceleration is active
	Accelerated bool
}

// Info returns information about the active SIMD implementation.
func Info() RuntimeInfo {
	return runtimeInfo()
}

// Columns holds points in structure-of-arrays layout.
type Columns struct {
	X, Y, Z []float64
}

// Transpose copies points into column layout.
func Transpose(points []geometry.Point3) Columns {
	c := Columns{
		X: make([]float64, len(points)),
		Y: make([]float64, len(points)),
		Z: make([]float64, len(points)),
	}
	for i, p := range points {
		c.X[i], c.Y[i], c.Z[i] = p.X, p.Y, p.Z
	}
	return c
}

// Len returns the number of points.
func (c Columns) Len() int { return len(c.X) }

// Slice returns the points in [lo, hi) without copying.
func (c Columns) Slice(lo, hi int) Columns {
	return Columns{X: c.X[lo:hi], Y: c.Y[lo:hi], Z: c.Z[lo:hi]}
}

// Scratch holds the per-goroutine buffers used by BatchDistance.
type Scratch struct {
	dx, dy, dz []float64
	proj, tmp  []float64
	dist       []float64
}

// NewScratch allocates buffers for tiles of up to n points.
func NewScratch(n int) *Scratch {
	return &Scratch{
		dx:   make([]float64, n),
		dy:   make([]float64, n),
		dz:   make([]float64, n),
		proj: make([]float64, n),
		tmp:  make([]float64, n),
		dist: make([]float64, n),
	}
}

// Cap returns the largest tile the scratch can serve.
func (s *Scratch) Cap() int { return len(s.dist) }

// Distances returns the scratch distance buffer sized to n.
func (s *Scratch) Distances(n int) []float64 { return s.dist[:n] }

// BatchDistance writes the distance from q to every point of cols into dst.
//
// dst must hold cols.Len() values and cols.Len() must not exceed s.Cap().
// The difference is taken as point - q, matching the scalar metric.
func BatchDistance(dst []float64, cols Columns, q geometry.Point3, params *metric.Params, s *Scratch) []float64 {
	n := cols.Len()
	if n == 0 {
		return dst[:0]
	}
	dst = dst[:n]
	dx, dy, dz := s.dx[:n], s.dy[:n], s.dz[:n]
	vek.SubNumber_Into(dx, cols.X, q.X)
	vek.SubNumber_Into(dy, cols.Y, q.Y)
	vek.SubNumber_Into(dz, cols.Z, q.Z)

	if params.Kind == metric.KindAnisotropic {
		anisotropic(dst, dx, dy, dz, params, s.proj[:n], s.tmp[:n])
	} else {
		euclidean(dst, dx, dy, dz, s.tmp[:n])
	}
	vek.Sqrt_Inplace(dst)
	return dst
}

// anisotropic accumulates the squared weighted projections into dst.
func anisotropic(dst, dx, dy, dz []float64, params *metric.Params, proj, tmp []float64) {
	for k := 0; k < 3; k++ {
		c := params.Columns[k]
		vek.MulNumber_Into(proj, dx, c[0])
		vek.MulNumber_Into(tmp, dy, c[1])
		vek.Add_Inplace(proj, tmp)
		vek.MulNumber_Into(tmp, dz, c[2])
		vek.Add_Inplace(proj, tmp)
		vek.DivNumber_Inplace(proj, params.Weights[k])
		if k == 0 {
			vek.Mul_Into(dst, proj, proj)
			continue
		}
		// vek rejects a destination that overlaps an input.
		vek.Mul_Into(tmp, proj, proj)
		vek.Add_Inplace(dst, tmp)
	}
}

// euclidean writes the squared lengths of (dx, dy, dz) into dst.
func euclidean(dst, dx, dy, dz, tmp []float64) {
	vek.Mul_Into(dst, dx, dx)
	vek.Mul_Into(tmp, dy, dy)
	vek.Add_Inplace(dst, tmp)
	vek.Mul_Into(tmp, dz, dz)
	vek.Add_Inplace(dst, tmp)
}

// ArgMin returns the index and value of the first minimum in x, or -1 for an empty x.
func ArgMin(x []float64) (int, float64) {
	if len(x) == 0 {
		return -1, 0
	}
	least := vek.Min(x)
	for i, v := range x {
		if v == least {
			return i, v
		}
	}
	// Only reachable when x contains NaN; fall back to a plain scan.
	best := 0
	for i := 1; i < len(x); i++ {
		if x[i] < x[best] {
			best = i
		}
	}
	return best, x[best]
}
