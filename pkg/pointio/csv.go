package pointio

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
)

func readCSV(path string, c compression, names []string, width int) ([]row, error) {
	rc, err := openDecompressed(path, c)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	r := csv.NewReader(rc)
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true
	r.ReuseRecord = true

	header, err := r.Read()
	if errors.Is(err, io.EOF) {
		return nil, &InputFormatError{Path: path, Line: 1, Reason: "missing header line"}
	}
	if err != nil {
		return nil, csvError(path, err)
	}

	// Positional selection keeps the first width fields and requires exactly width.
	selected := make([]int, width)
	expect := width
	if names != nil {
		if len(names) != width {
			return nil, fmt.Errorf("pointio: %d column names configured, need %d", len(names), width)
		}
		expect = len(header)
		if selected, err = lookupColumns(path, header, names); err != nil {
			return nil, err
		}
	} else {
		for k := range selected {
			selected[k] = k
		}
	}

	var rows []row
	for {
		record, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, csvError(path, err)
		}
		line, _ := r.FieldPos(0)
		if len(record) != expect {
			return nil, &InputFormatError{
				Path:   path,
				Line:   line,
				Reason: fmt.Sprintf("expected %d columns, got %d", expect, len(record)),
			}
		}

		out := row{line: line, fields: make([]string, width), columns: make([]int, width)}
		for k, idx := range selected {
			out.fields[k] = strings.TrimSpace(record[idx])
			out.columns[k] = idx + 1
		}
		rows = append(rows, out)
	}
	return rows, nil
}

func lookupColumns(path string, header, names []string) ([]int, error) {
	index := make(map[string]int, len(header))
	for i, h := range header {
		h = strings.TrimSpace(h)
		if _, dup := index[h]; !dup {
			index[h] = i
		}
	}
	out := make([]int, len(names))
	for k, name := range names {
		i, ok := index[name]
		if !ok {
			return nil, &InputFormatError{Path: path, Line: 1, Reason: fmt.Sprintf("column %q not in header", name)}
		}
		out[k] = i
	}
	return out, nil
}

func csvError(path string, err error) error {
	var pe *csv.ParseError
	if errors.As(err, &pe) {
		return &InputFormatError{Path: path, Line: pe.Line, Column: pe.Column, Reason: pe.Err.Error()}
	}
	return fmt.Errorf("pointio: read %s: %w", path, err)
}
