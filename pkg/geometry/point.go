// Package geometry provides the point types and the directional basis used by the
// anisotropic correlation.
//
// Coordinates are always held as float64 regardless of how they were stored on disk;
// narrower storage widths are applied once, at load time, through Storage.
package geometry

import (
	"fmt"
	"math"
	"strconv"
)

// Point3 is a point in 3D space.
type Point3 struct {
	X, Y, Z float64
}

// Sub returns p - q component-wise.
func (p Point3) Sub(q Point3) Point3 {
	return Point3{X: p.X - q.X, Y: p.Y - q.Y, Z: p.Z - q.Z}
}

// LabeledPoint is a reference point carrying the attribute to transfer.
type LabeledPoint struct {
	Point3
	Label string
}

// Positions returns the coordinates of a reference set, in order.
func Positions(refs []LabeledPoint) []Point3 {
	out := make([]Point3, len(refs))
	for i := range refs {
		out[i] = refs[i].Point3
	}
	return out
}

// Storage is the numeric width coordinates are stored with in point files.
type Storage string

const (
	StorageFloat64 Storage = "float64"
	StorageFloat32 Storage = "float32"
	StorageInt8    Storage = "int8"
)

// ParseStorage validates a storage name. Empty means float64.
func ParseStorage(s string) (Storage, error) {
	switch Storage(s) {
	case "", StorageFloat64:
		return StorageFloat64, nil
	case StorageFloat32, StorageInt8:
		return Storage(s), nil
	}
	return "", fmt.Errorf("geometry: unknown storage %q (want float64, float32 or int8)", s)
}

// Convert narrows v to the storage width and widens it back to float64.
func (s Storage) Convert(v float64) (float64, error) {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("value %v is not finite", v)
	}
	switch s {
	case StorageFloat32:
		if math.Abs(v) > math.MaxFloat32 {
			return 0, fmt.Errorf("value %v overflows float32", v)
		}
		return float64(float32(v)), nil
	case StorageInt8:
		if v != math.Trunc(v) {
			return 0, fmt.Errorf("value %v is not an integer", v)
		}
		if v < math.MinInt8 || v > math.MaxInt8 {
			return 0, fmt.Errorf("value %v out of int8 range", v)
		}
		return v, nil
	}
	return v, nil
}

// ParseCoordinate parses a textual coordinate and applies the storage width.
func (s Storage) ParseCoordinate(text string) (float64, error) {
	if s == StorageInt8 {
		n, err := strconv.ParseInt(text, 10, 8)
		if err != nil {
			return 0, fmt.Errorf("%q is not an int8", text)
		}
		return float64(n), nil
	}
	bits := 64
	if s == StorageFloat32 {
		bits = 32
	}
	v, err := strconv.ParseFloat(text, bits)
	if err != nil {
		return 0, fmt.Errorf("%q is not a number", text)
	}
	return s.Convert(v)
}

// Format renders a coordinate the way it is stored.
func (s Storage) Format(v float64) string {
	switch s {
	case StorageInt8:
		return strconv.FormatInt(int64(v), 10)
	case StorageFloat32:
		return strconv.FormatFloat(v, 'g', -1, 32)
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// LabelKind selects how reference labels are validated.
type LabelKind string

const (
	LabelString LabelKind = "string"
	LabelNumber LabelKind = "number"
)

// ParseLabelKind validates a label kind name. Empty means string.
func ParseLabelKind(s string) (LabelKind, error) {
	switch LabelKind(s) {
	case "", LabelString:
		return LabelString, nil
	case LabelNumber:
		return LabelNumber, nil
	}
	return "", fmt.Errorf("geometry: unknown label kind %q (want string or number)", s)
}

// Normalize validates a raw label and returns its canonical text.
func (k LabelKind) Normalize(raw string) (string, error) {
	if k != LabelNumber {
		return raw, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return "", fmt.Errorf("label %q is not numeric", raw)
	}
	return strconv.FormatFloat(v, 'g', -1, 64), nil
}
