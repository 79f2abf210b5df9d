package pointio

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

type compression int

const (
	compressionNone compression = iota
	compressionGzip
	compressionZstd
)

type format int

const (
	formatCSV format = iota
	formatParquet
)

// detect derives the container format and compression from the file name,
// e.g. points.csv.zst, points.gz or points.parquet.
func detect(path string) (format, compression, error) {
	name := strings.ToLower(filepath.Base(path))
	c := compressionNone
	switch {
	case strings.HasSuffix(name, ".gz"):
		c = compressionGzip
		name = strings.TrimSuffix(name, ".gz")
	case strings.HasSuffix(name, ".zst"):
		c = compressionZstd
		name = strings.TrimSuffix(name, ".zst")
	}
	if strings.HasSuffix(name, ".parquet") {
		if c != compressionNone {
			return 0, 0, fmt.Errorf("%w: %s (parquet files carry their own compression)", ErrUnsupportedFormat, path)
		}
		return formatParquet, c, nil
	}
	return formatCSV, c, nil
}

type multiCloser struct {
	io.Reader
	closers []func() error
}

func (m *multiCloser) Close() error {
	var first error
	for _, c := range m.closers {
		if err := c(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// openDecompressed opens path and undoes its compression.
func openDecompressed(path string, c compression) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	switch c {
	case compressionGzip:
		zr, err := gzip.NewReader(f)
		if err != nil {
			f.Close()
			return nil, &InputFormatError{Path: path, Reason: "invalid gzip stream: " + err.Error()}
		}
		return &multiCloser{Reader: zr, closers: []func() error{zr.Close, f.Close}}, nil
	case compressionZstd:
		zr, err := zstd.NewReader(f)
		if err != nil {
			f.Close()
			return nil, &InputFormatError{Path: path, Reason: "invalid zstd stream: " + err.Error()}
		}
		return &multiCloser{Reader: zr, closers: []func() error{func() error { zr.Close(); return nil }, f.Close}}, nil
	}
	return f, nil
}

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }

// compressWriter wraps w in the requested compression. Closing the result
// flushes the compressor but leaves w open.
func compressWriter(w io.Writer, c compression) (io.WriteCloser, error) {
	switch c {
	case compressionGzip:
		return gzip.NewWriter(w), nil
	case compressionZstd:
		return zstd.NewWriter(w)
	}
	return nopWriteCloser{w}, nil
}
