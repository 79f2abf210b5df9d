// Package pointio reads query and reference point files and writes result files.
//
// Supported inputs, chosen by file extension:
//   - CSV with one header line (.csv or any other name), optionally compressed
//     as .gz or .zst
//   - Parquet (.parquet) with flat x, y, z (and w for labels) columns
//
// CSV columns are positional by default: queries have exactly x,y,z and
// references exactly x,y,z,label. When column names are configured the header
// is used to locate them and rows may carry extra columns.
//
// Every malformed row is reported as an *InputFormatError naming the file, line
// and column. Nothing is returned for a file with any malformed row.
package pointio

import (
	"github.com/orneryd/geocorrelate/pkg/geometry"
)

// Default parquet column names.
var (
	DefaultQueryColumns     = []string{"x", "y", "z"}
	DefaultReferenceColumns = []string{"x", "y", "z", "w"}
)

// ResultHeader is the header line of result files.
var ResultHeader = []string{"x", "y", "z", "w"}

// Options controls parsing of point files.
type Options struct {
	// Storage is the coordinate width values are converted to at load time
	Storage geometry.Storage

	// LabelKind validates reference labels
	LabelKind geometry.LabelKind

	// QueryColumns names the x, y, z columns of query files (nil = positional)
	QueryColumns []string

	// ReferenceColumns names the x, y, z, label columns of reference files (nil = positional)
	ReferenceColumns []string
}

// ReadQueries loads a query point set.
func ReadQueries(path string, opts Options) ([]geometry.Point3, error) {
	rows, err := readTable(path, opts.QueryColumns, DefaultQueryColumns, 3)
	if err != nil {
		return nil, err
	}
	points := make([]geometry.Point3, len(rows))
	for i, r := range rows {
		p, err := parsePoint(path, r, opts.Storage)
		if err != nil {
			return nil, err
		}
		points[i] = p
	}
	return points, nil
}

// ReadReferences loads a labeled reference point set.
func ReadReferences(path string, opts Options) ([]geometry.LabeledPoint, error) {
	rows, err := readTable(path, opts.ReferenceColumns, DefaultReferenceColumns, 4)
	if err != nil {
		return nil, err
	}
	refs := make([]geometry.LabeledPoint, len(rows))
	for i, r := range rows {
		p, err := parsePoint(path, r, opts.Storage)
		if err != nil {
			return nil, err
		}
		label, err := opts.LabelKind.Normalize(r.fields[3])
		if err != nil {
			return nil, &InputFormatError{Path: path, Line: r.line, Column: r.columns[3], Reason: err.Error()}
		}
		refs[i] = geometry.LabeledPoint{Point3: p, Label: label}
	}
	return refs, nil
}

// row is one record reduced to the selected fields, in x, y, z[, label] order.
type row struct {
	line    int
	fields  []string
	columns []int // 1-based source column of each field
}

func readTable(path string, names, defaults []string, width int) ([]row, error) {
	f, c, err := detect(path)
	if err != nil {
		return nil, err
	}
	if f == formatParquet {
		if names == nil {
			names = defaults
		}
		return readParquet(path, names)
	}
	return readCSV(path, c, names, width)
}

func parsePoint(path string, r row, storage geometry.Storage) (geometry.Point3, error) {
	var v [3]float64
	for k := 0; k < 3; k++ {
		x, err := storage.ParseCoordinate(r.fields[k])
		if err != nil {
			return geometry.Point3{}, &InputFormatError{Path: path, Line: r.line, Column: r.columns[k], Reason: err.Error()}
		}
		v[k] = x
	}
	return geometry.Point3{X: v[0], Y: v[1], Z: v[2]}, nil
}
