// Package metric provides the distance functions used by the nearest-neighbour search.
//
// Two metrics exist:
//   - Anisotropic: a weighted Euclidean norm in the frame of an inverse basis. The
//     difference vector is projected onto each inverse-basis column, divided by that
//     axis weight, and the three projections are combined as sqrt(p0² + p1² + p2²).
//     Weights are linear divisors, not exponents.
//   - Euclidean: the plain L2 norm, used when no basis or weights are supplied.
//
// Every metric describes itself through Params so vectorised and device strategies
// can reproduce the exact same arithmetic without re-deriving the formula.
//
// Evaluation order is fixed: diff = q - p, each projection is
// ((c0*dx + c1*dy) + c2*dz) / w and the sum is (p0² + p1²) + p2². Intermediate
// products are explicitly converted to float64 so the compiler cannot fuse them
// into FMA instructions on platforms that have them.
package metric

import (
	"errors"
	"fmt"
	"math"

	"github.com/orneryd/geocorrelate/pkg/geometry"
)

// Kind identifies a metric family.
type Kind string

const (
	KindAnisotropic Kind = "anisotropic"
	KindEuclidean   Kind = "euclidean"
)

// ErrInvalidWeight is returned for a non-positive or non-finite anisotropy weight.
var ErrInvalidWeight = errors.New("metric: anisotropy weights must be positive and finite")

// Weights are the per-axis anisotropy divisors (major, intermediate, minor).
type Weights struct {
	Major        float64 `yaml:"major"`
	Intermediate float64 `yaml:"intermediate"`
	Minor        float64 `yaml:"minor"`
}

// DefaultWeights returns the weighting used when none is configured.
func DefaultWeights() Weights {
	return Weights{Major: 5, Intermediate: 5, Minor: 1}
}

// Validate checks every weight is positive and finite.
func (w Weights) Validate() error {
	for _, v := range [3]float64{w.Major, w.Intermediate, w.Minor} {
		if !(v > 0) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: got %g/%g/%g", ErrInvalidWeight, w.Major, w.Intermediate, w.Minor)
		}
	}
	return nil
}

// Array returns the weights in axis order.
func (w Weights) Array() [3]float64 {
	return [3]float64{w.Major, w.Intermediate, w.Minor}
}

// Params is the flat description of a metric.
//
// For KindAnisotropic, Columns[k] is inverse-basis column k and Weights[k] its divisor.
// For KindEuclidean both arrays are unused.
type Params struct {
	Kind    Kind
	Columns [3][3]float64
	Weights [3]float64
}

// Metric computes a non-negative distance between two points.
type Metric interface {
	Distance(p, q geometry.Point3) float64
	Params() Params
	Name() string
}

// Anisotropic is the weighted distance in the frame of an inverse basis.
type Anisotropic struct {
	params Params
}

// NewAnisotropic builds the metric from a basis and its axis weights.
func NewAnisotropic(basis *geometry.Basis, w Weights) (*Anisotropic, error) {
	if basis == nil {
		return nil, errors.New("metric: nil basis")
	}
	if err := w.Validate(); err != nil {
		return nil, err
	}
	p := Params{Kind: KindAnisotropic, Weights: w.Array()}
	for k := 0; k < 3; k++ {
		col := basis.InverseColumn(k)
		p.Columns[k] = [3]float64{col.X, col.Y, col.Z}
	}
	return &Anisotropic{params: p}, nil
}

// Distance returns the weighted anisotropic distance between p and q.
func (a *Anisotropic) Distance(p, q geometry.Point3) float64 {
	return AnisotropicDistance(&a.params, p, q)
}

// Params describes the metric.
func (a *Anisotropic) Params() Params { return a.params }

// Name returns "anisotropic".
func (a *Anisotropic) Name() string { return string(KindAnisotropic) }

// AnisotropicDistance evaluates the anisotropic formula for explicit parameters.
func AnisotropicDistance(params *Params, p, q geometry.Point3) float64 {
	dx := q.X - p.X
	dy := q.Y - p.Y
	dz := q.Z - p.Z

	var sum float64
	for k := 0; k < 3; k++ {
		c := &params.Columns[k]
		proj := (float64(float64(c[0]*dx)+float64(c[1]*dy)) + float64(c[2]*dz)) / params.Weights[k]
		sum = float64(sum + float64(proj*proj))
	}
	return math.Sqrt(sum)
}

// Euclidean is the isotropic L2 distance.
type Euclidean struct{}

// NewEuclidean returns the isotropic metric.
func NewEuclidean() Euclidean { return Euclidean{} }

// Distance returns the L2 distance between p and q.
func (Euclidean) Distance(p, q geometry.Point3) float64 {
	return EuclideanDistance(p, q)
}

// Params describes the metric.
func (Euclidean) Params() Params { return Params{Kind: KindEuclidean} }

// Name returns "euclidean".
func (Euclidean) Name() string { return string(KindEuclidean) }

// EuclideanDistance evaluates the L2 norm of q - p.
func EuclideanDistance(p, q geometry.Point3) float64 {
	dx := q.X - p.X
	dy := q.Y - p.Y
	dz := q.Z - p.Z
	return math.Sqrt(float64(float64(dx*dx)+float64(dy*dy)) + float64(dz*dz))
}

// FromParams rebuilds a Metric from its description.
func FromParams(p Params) (Metric, error) {
	switch p.Kind {
	case KindEuclidean:
		return Euclidean{}, nil
	case KindAnisotropic:
		for _, w := range p.Weights {
			if !(w > 0) || math.IsInf(w, 0) {
				return nil, ErrInvalidWeight
			}
		}
		return &Anisotropic{params: p}, nil
	}
	return nil, fmt.Errorf("metric: unknown kind %q", p.Kind)
}
