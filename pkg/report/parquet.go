package report

import (
	"fmt"
	"io"

	"github.com/eunmann/txagg/pkg/fileutil"
	"github.com/parquet-go/parquet-go"
)

// WriteParquet writes rows to a Parquet file at path. The file appears
// atomically: it is written next to path and renamed into place.
func WriteParquet(path string, rows []Row) error {
	err := fileutil.WriteAtomic(path, func(w io.Writer) error {
		return parquet.Write(w, rows)
	})
	if err != nil {
		return fmt.Errorf("write parquet %s: %w", path, err)
	}
	return nil
}

// ReadParquet reads rows previously written by WriteParquet.
func ReadParquet(path string) ([]Row, error) {
	rows, err := parquet.ReadFile[Row](path)
	if err != nil {
		return nil, fmt.Errorf("read parquet %s: %w", path, err)
	}
	return rows, nil
}
