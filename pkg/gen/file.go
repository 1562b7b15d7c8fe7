package gen

import (
	"fmt"
	"io"
	"time"

	"github.com/eunmann/txagg/pkg/fileutil"
	"github.com/eunmann/txagg/pkg/logging"
	"github.com/eunmann/txagg/pkg/source"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

const phaseGenerate = "generate"

// flushBytes is the size of the line block handed to the writer at once.
const flushBytes = 1 << 20

// WriteStats describes a generated file.
type WriteStats struct {
	Rows    int64
	// Bytes is the uncompressed size, header included.
	Bytes   int64
	Elapsed time.Duration
}

// WriteFile writes the header plus whole rows to path without letting the
// uncompressed size exceed targetBytes. Paths ending in .gz or .zst
// are compressed. The file appears atomically.
func (g *Generator) WriteFile(path string, targetBytes int64) (*WriteStats, error) {
	if targetBytes < int64(len(Header)) {
		return nil, fmt.Errorf("target size %d is smaller than the header", targetBytes)
	}

	start := time.Now()
	var stats WriteStats
	err := fileutil.WriteAtomic(path, func(w io.Writer) error {
		cw, err := compressWriter(w, source.CompressionOf(path))
		if err != nil {
			return err
		}
		if err := g.writeRows(cw, targetBytes, &stats); err != nil {
			cw.Close()
			return err
		}
		return cw.Close()
	})
	if err != nil {
		return nil, fmt.Errorf("generate %s: %w", path, err)
	}
	stats.Elapsed = time.Since(start)

	log := logging.WithPhase(phaseGenerate)
	logging.FileCreated(log, phaseGenerate, stats.Elapsed).
		Str("path", path).
		Count("rows", stats.Rows).
		Bytes("bytes", stats.Bytes).
		Throughput(stats.Bytes).
		Log("transactions written")
	return &stats, nil
}

func (g *Generator) writeRows(w io.Writer, targetBytes int64, stats *WriteStats) error {
	buf := make([]byte, 0, flushBytes+len(Header))
	buf = append(buf, Header...)
	written := int64(len(Header))

	// A row that does not fit is skipped; two misses in a row end the file.
	var line []byte
	missed := false
	for {
		line = g.Next().AppendCSV(line[:0])
		if written+int64(len(line)) > targetBytes {
			if missed {
				break
			}
			missed = true
			continue
		}
		missed = false
		buf = append(buf, line...)
		written += int64(len(line))
		stats.Rows++

		if len(buf) >= flushBytes {
			if _, err := w.Write(buf); err != nil {
				return fmt.Errorf("write rows: %w", err)
			}
			buf = buf[:0]
		}
	}
	if _, err := w.Write(buf); err != nil {
		return fmt.Errorf("write rows: %w", err)
	}
	stats.Bytes = written
	return nil
}

type nopCloser struct{ io.Writer }

func (nopCloser) Close() error { return nil }

func compressWriter(w io.Writer, c source.Compression) (io.WriteCloser, error) {
	switch c {
	case source.Gzip:
		return gzip.NewWriter(w), nil
	case source.Zstd:
		zw, err := zstd.NewWriter(w)
		if err != nil {
			return nil, fmt.Errorf("zstd writer: %w", err)
		}
		return zw, nil
	default:
		return nopCloser{w}, nil
	}
}
