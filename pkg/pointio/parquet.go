package pointio

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/parquet-go/parquet-go"
)

// resultRecord is the parquet row layout of result files.
type resultRecord struct {
	X float64 `parquet:"x"`
	Y float64 `parquet:"y"`
	Z float64 `parquet:"z"`
	W string  `parquet:"w"`
}

const parquetBatch = 1024

func readParquet(path string, names []string) ([]row, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		return nil, err
	}
	pf, err := parquet.OpenFile(f, stat.Size())
	if err != nil {
		return nil, &InputFormatError{Path: path, Reason: "invalid parquet file: " + err.Error()}
	}

	columns := make([]int, len(names))
	for k, name := range names {
		leaf, ok := pf.Schema().Lookup(name)
		if !ok {
			return nil, &InputFormatError{Path: path, Reason: fmt.Sprintf("column %q not in schema", name)}
		}
		columns[k] = leaf.ColumnIndex
	}

	var out []row
	buf := make([]parquet.Row, parquetBatch)
	for _, rg := range pf.RowGroups() {
		rows := rg.Rows()
		for {
			n, err := rows.ReadRows(buf)
			for _, r := range buf[:n] {
				converted, cerr := parquetRow(path, len(out)+1, r, columns)
				if cerr != nil {
					rows.Close()
					return nil, cerr
				}
				out = append(out, converted)
			}
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				rows.Close()
				return nil, fmt.Errorf("pointio: read %s: %w", path, err)
			}
		}
		if err := rows.Close(); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// parquetRow extracts the selected columns. Line is the 1-based row number.
func parquetRow(path string, line int, r parquet.Row, columns []int) (row, error) {
	out := row{line: line, fields: make([]string, len(columns)), columns: make([]int, len(columns))}
	for k, col := range columns {
		out.columns[k] = col + 1
		found := false
		for _, v := range r {
			if v.Column() != col {
				continue
			}
			text, err := parquetText(v)
			if err != nil {
				return row{}, &InputFormatError{Path: path, Line: line, Column: col + 1, Reason: err.Error()}
			}
			out.fields[k] = text
			found = true
			break
		}
		if !found {
			return row{}, &InputFormatError{Path: path, Line: line, Column: col + 1, Reason: "missing value"}
		}
	}
	return out, nil
}

// parquetText renders a value as text so parquet rows share the CSV parsing and
// storage conversion path.
func parquetText(v parquet.Value) (string, error) {
	if v.IsNull() {
		return "", errors.New("null value")
	}
	switch v.Kind() {
	case parquet.Boolean:
		return strconv.FormatBool(v.Boolean()), nil
	case parquet.Int32:
		return strconv.FormatInt(int64(v.Int32()), 10), nil
	case parquet.Int64:
		return strconv.FormatInt(v.Int64(), 10), nil
	case parquet.Float:
		return strconv.FormatFloat(float64(v.Float()), 'g', -1, 32), nil
	case parquet.Double:
		return strconv.FormatFloat(v.Double(), 'g', -1, 64), nil
	case parquet.ByteArray, parquet.FixedLenByteArray:
		return string(v.ByteArray()), nil
	}
	return "", fmt.Errorf("unsupported parquet type %s", v.Kind())
}

func writeParquet(w io.Writer, rows []resultRecord) error {
	pw := parquet.NewGenericWriter[resultRecord](w, parquet.Compression(&parquet.Zstd))
	if _, err := pw.Write(rows); err != nil {
		_ = pw.Close()
		return err
	}
	return pw.Close()
}
