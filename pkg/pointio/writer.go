package pointio

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/orneryd/geocorrelate/pkg/geometry"
)

// WriteResults writes rows with a header x,y,z,w.
//
// The file is written to a temporary sibling and renamed into place once
// complete, so a failed write never leaves a partial result at path.
func WriteResults(path string, rows []geometry.LabeledPoint, storage geometry.Storage) (err error) {
	f, c, err := detect(path)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("pointio: create %s: %w", path, err)
	}
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	bw := bufio.NewWriterSize(tmp, 1<<20)
	if f == formatParquet {
		records := make([]resultRecord, len(rows))
		for i, r := range rows {
			records[i] = resultRecord{X: r.X, Y: r.Y, Z: r.Z, W: r.Label}
		}
		err = writeParquet(bw, records)
	} else {
		err = writeCSV(bw, c, rows, storage)
	}
	if err != nil {
		return fmt.Errorf("pointio: write %s: %w", path, err)
	}

	if err = bw.Flush(); err != nil {
		return fmt.Errorf("pointio: write %s: %w", path, err)
	}
	if err = tmp.Sync(); err != nil {
		return fmt.Errorf("pointio: sync %s: %w", path, err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("pointio: close %s: %w", path, err)
	}
	if err = os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("pointio: rename into %s: %w", path, err)
	}
	return nil
}

func writeCSV(w io.Writer, c compression, rows []geometry.LabeledPoint, storage geometry.Storage) error {
	zw, err := compressWriter(w, c)
	if err != nil {
		return err
	}

	cw := csv.NewWriter(zw)
	if err := cw.Write(ResultHeader); err != nil {
		return err
	}
	record := make([]string, 4)
	for _, r := range rows {
		record[0] = storage.Format(r.X)
		record[1] = storage.Format(r.Y)
		record[2] = storage.Format(r.Z)
		record[3] = r.Label
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return err
	}
	return zw.Close()
}
