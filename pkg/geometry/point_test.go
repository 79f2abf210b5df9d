package geometry

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPoint3_Sub(t *testing.T) {
	assert.Equal(t, Point3{X: -1, Y: 2, Z: 0.5}, Point3{X: 1, Y: 4, Z: 1}.Sub(Point3{X: 2, Y: 2, Z: 0.5}))
}

func TestPositions(t *testing.T) {
	refs := []LabeledPoint{
		{Point3: Point3{X: 1}, Label: "A"},
		{Point3: Point3{Y: 2}, Label: "B"},
	}
	assert.Equal(t, []Point3{{X: 1}, {Y: 2}}, Positions(refs))
	assert.Empty(t, Positions(nil))
}

func TestStorage_ParseCoordinate(t *testing.T) {
	tests := []struct {
		storage Storage
		text    string
		want    float64
		wantErr bool
	}{
		{StorageFloat64, "0.1", 0.1, false},
		{StorageFloat64, "-1e3", -1000, false},
		{StorageFloat64, "abc", 0, true},
		{StorageFloat64, "NaN", 0, true},
		{StorageFloat64, "Inf", 0, true},
		{StorageFloat32, "0.1", float64(float32(0.1)), false},
		{StorageFloat32, "1e39", 0, true},
		{StorageFloat32, "1e300", 0, true},
		{StorageInt8, "-128", -128, false},
		{StorageInt8, "127", 127, false},
		{StorageInt8, "128", 0, true},
		{StorageInt8, "1.5", 0, true},
	}
	for _, tt := range tests {
		got, err := tt.storage.ParseCoordinate(tt.text)
		if tt.wantErr {
			assert.Error(t, err, "%s %q", tt.storage, tt.text)
			continue
		}
		require.NoError(t, err, "%s %q", tt.storage, tt.text)
		assert.Equal(t, tt.want, got, "%s %q", tt.storage, tt.text)
	}
}

func TestStorage_Convert(t *testing.T) {
	v, err := StorageInt8.Convert(-7)
	require.NoError(t, err)
	assert.Equal(t, -7.0, v)

	_, err = StorageInt8.Convert(200)
	assert.Error(t, err)
	_, err = StorageInt8.Convert(0.25)
	assert.Error(t, err)
	_, err = StorageFloat64.Convert(math.Inf(-1))
	assert.Error(t, err)
}

func TestStorage_Format(t *testing.T) {
	assert.Equal(t, "0.1", StorageFloat64.Format(0.1))
	assert.Equal(t, "0.1", StorageFloat32.Format(float64(float32(0.1))))
	assert.Equal(t, "-12", StorageInt8.Format(-12))
}

func TestParseStorage(t *testing.T) {
	s, err := ParseStorage("")
	require.NoError(t, err)
	assert.Equal(t, StorageFloat64, s)

	s, err = ParseStorage("int8")
	require.NoError(t, err)
	assert.Equal(t, StorageInt8, s)

	_, err = ParseStorage("int16")
	assert.Error(t, err)
}

func TestLabelKind(t *testing.T) {
	k, err := ParseLabelKind("")
	require.NoError(t, err)
	assert.Equal(t, LabelString, k)

	_, err = ParseLabelKind("date")
	assert.Error(t, err)

	got, err := LabelString.Normalize("GRANITE")
	require.NoError(t, err)
	assert.Equal(t, "GRANITE", got)

	got, err = LabelNumber.Normalize("3.50")
	require.NoError(t, err)
	assert.Equal(t, "3.5", got)

	got, err = LabelNumber.Normalize("3.0")
	require.NoError(t, err)
	assert.Equal(t, "3", got)

	_, err = LabelNumber.Normalize("GRANITE")
	assert.Error(t, err)
}
