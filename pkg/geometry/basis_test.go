package geometry

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"
)

const tolerance = 1e-6

func TestBuildBasis_Orthonormal(t *testing.T) {
	directions := []struct {
		dip, dipDirection float64
	}{
		{40, 90},
		{0, 0},
		{0, 135},
		{15, 270},
		{60, 45},
		{89, 10},
		{90, 0},
		{-30, 200},
		{180, 90},
	}

	for _, d := range directions {
		b, err := BuildBasis(d.dip, d.dipDirection)
		require.NoError(t, err, "dip %v dd %v", d.dip, d.dipDirection)

		assert.InDelta(t, 0, r3.Dot(b.Major(), b.Intermediate()), tolerance)
		assert.InDelta(t, 0, r3.Dot(b.Major(), b.Minor()), tolerance)
		assert.InDelta(t, 0, r3.Dot(b.Intermediate(), b.Minor()), tolerance)

		assert.InDelta(t, 1, r3.Norm(b.Major()), tolerance)
		assert.InDelta(t, 1, r3.Norm(b.Intermediate()), tolerance)
		assert.InDelta(t, 1, r3.Norm(b.Minor()), tolerance)
	}
}

func TestBuildBasis_InverseTimesMatrixIsIdentity(t *testing.T) {
	b, err := BuildBasis(40, 90)
	require.NoError(t, err)

	m := b.Matrix()
	inv := b.Inverse()
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			var sum float64
			for k := 0; k < 3; k++ {
				sum += inv[i][k] * m[k][j]
			}
			want := 0.0
			if i == j {
				want = 1
			}
			assert.InDelta(t, want, sum, tolerance, "cell (%d,%d)", i, j)
		}
	}
}

func TestBuildBasis_KnownAxes(t *testing.T) {
	// Horizontal major axis pointing east, vertical normal.
	b, err := BuildBasis(0, 90)
	require.NoError(t, err)

	assert.InDelta(t, 1, b.Major().X, tolerance)
	assert.InDelta(t, 0, b.Major().Y, tolerance)
	assert.InDelta(t, 0, b.Major().Z, tolerance)
	assert.InDelta(t, 1, b.Minor().Z, tolerance)

	col := b.InverseColumn(0)
	assert.InDelta(t, b.Inverse()[0][0], col.X, 0)
	assert.InDelta(t, b.Inverse()[1][0], col.Y, 0)
	assert.InDelta(t, b.Inverse()[2][0], col.Z, 0)
}

func TestBuildBasis_NonFiniteIsSingular(t *testing.T) {
	for _, angle := range []float64{math.NaN(), math.Inf(1), math.Inf(-1)} {
		_, err := BuildBasis(angle, 10)
		var sbe *SingularBasisError
		require.True(t, errors.As(err, &sbe), "dip %v", angle)
		assert.Contains(t, err.Error(), "singular basis")

		_, err = BuildBasis(10, angle)
		require.True(t, errors.As(err, &sbe), "dip direction %v", angle)
	}
}
