package geometry

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"
)

const radians = math.Pi / 180.0

// singularDeterminant is the smallest |det| accepted for a basis matrix.
const singularDeterminant = 1e-12

// SingularBasisError reports a major direction whose basis matrix cannot be inverted.
type SingularBasisError struct {
	Dip          float64
	DipDirection float64
	Determinant  float64
	cause        error
}

func (e *SingularBasisError) Error() string {
	msg := fmt.Sprintf("geometry: singular basis for dip %g, dip direction %g (det %g)",
		e.Dip, e.DipDirection, e.Determinant)
	if e.cause != nil {
		msg += ": " + e.cause.Error()
	}
	return msg
}

func (e *SingularBasisError) Unwrap() error { return e.cause }

// Basis is the orthonormal (major, intermediate, minor) frame of a major direction
// together with its matrix inverse.
//
// A Basis is immutable once built and safe for concurrent use.
type Basis struct {
	major        r3.Vec
	intermediate r3.Vec
	minor        r3.Vec
	inverse      [3][3]float64
}

// MajorDirection returns the major axis for a dip / dip-direction pair in degrees.
func MajorDirection(dip, dipDirection float64) r3.Vec {
	d, dd := dip*radians, dipDirection*radians
	return r3.Vec{
		X: math.Sin(dd) * math.Cos(d),
		Y: math.Cos(dd) * math.Cos(d),
		Z: -1 * math.Sin(d),
	}
}

// Normal returns the plane normal for a dip / dip-direction pair in degrees.
func Normal(dip, dipDirection float64) r3.Vec {
	d, dd := dip*radians, dipDirection*radians
	return r3.Vec{
		X: math.Sin(d) * math.Sin(dd),
		Y: math.Sin(d) * math.Cos(dd),
		Z: math.Cos(d),
	}
}

// BuildBasis derives the basis for a major direction given as dip and dip direction
// in degrees, and inverts it.
//
// The minor axis is the plane normal and the intermediate axis is major × minor.
// A degenerate direction yields *SingularBasisError.
func BuildBasis(dip, dipDirection float64) (*Basis, error) {
	if !finite(dip) || !finite(dipDirection) {
		return nil, &SingularBasisError{Dip: dip, DipDirection: dipDirection, Determinant: math.NaN()}
	}

	major := MajorDirection(dip, dipDirection)
	minor := Normal(dip, dipDirection)
	intermediate := r3.Cross(major, minor)

	b := &Basis{major: major, intermediate: intermediate, minor: minor}

	m := b.dense()
	det := mat.Det(m)
	if math.Abs(det) < singularDeterminant || !finite(det) {
		return nil, &SingularBasisError{Dip: dip, DipDirection: dipDirection, Determinant: det}
	}

	var inv mat.Dense
	if err := inv.Inverse(m); err != nil {
		return nil, &SingularBasisError{Dip: dip, DipDirection: dipDirection, Determinant: det, cause: err}
	}
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			b.inverse[i][j] = inv.At(i, j)
		}
	}
	return b, nil
}

func (b *Basis) dense() *mat.Dense {
	return mat.NewDense(3, 3, []float64{
		b.major.X, b.major.Y, b.major.Z,
		b.intermediate.X, b.intermediate.Y, b.intermediate.Z,
		b.minor.X, b.minor.Y, b.minor.Z,
	})
}

// Major returns the major axis.
func (b *Basis) Major() r3.Vec { return b.major }

// Intermediate returns the intermediate axis.
func (b *Basis) Intermediate() r3.Vec { return b.intermediate }

// Minor returns the minor axis.
func (b *Basis) Minor() r3.Vec { return b.minor }

// Matrix returns the basis rows [major, intermediate, minor].
func (b *Basis) Matrix() [3][3]float64 {
	return [3][3]float64{
		{b.major.X, b.major.Y, b.major.Z},
		{b.intermediate.X, b.intermediate.Y, b.intermediate.Z},
		{b.minor.X, b.minor.Y, b.minor.Z},
	}
}

// Inverse returns the inverse of Matrix.
func (b *Basis) Inverse() [3][3]float64 { return b.inverse }

// InverseColumn returns column k of the inverse matrix.
func (b *Basis) InverseColumn(k int) r3.Vec {
	return r3.Vec{X: b.inverse[0][k], Y: b.inverse[1][k], Z: b.inverse[2][k]}
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
