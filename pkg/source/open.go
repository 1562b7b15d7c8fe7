package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/eunmann/txagg/internal/logctx"
	"github.com/eunmann/txagg/pkg/membudget"
	"github.com/eunmann/txagg/pkg/s3fetch"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

// Options controls how Open materialises a region.
type Options struct {
	// Budget caps the memory pinned by decompressed inputs. Nil means
	// unlimited. Memory-mapped files are not charged.
	Budget *membudget.Budget

	// TempDir receives downloaded S3 objects. Empty means os.TempDir().
	TempDir string

	// Downloader fetches s3:// inputs. When nil, one is created from the
	// default AWS configuration using S3.
	Downloader *s3fetch.Downloader
	S3         s3fetch.DownloaderConfig
}

// Compression identifies how a file's bytes are encoded.
type Compression int

const (
	None Compression = iota
	Gzip
	Zstd
)

func (c Compression) String() string {
	switch c {
	case Gzip:
		return "gzip"
	case Zstd:
		return "zstd"
	default:
		return "none"
	}
}

// CompressionOf picks the codec from the file suffix.
func CompressionOf(path string) Compression {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".gz", ".gzip":
		return Gzip
	case ".zst", ".zstd":
		return Zstd
	default:
		return None
	}
}

// Open returns the region named by uri: a local path or s3://bucket/key.
// Plain files are memory-mapped; .gz and .zst files are decompressed into
// memory charged against opts.Budget. Every failure wraps ErrOpen.
func Open(ctx context.Context, uri string, opts Options) (ByteSource, error) {
	if s3fetch.IsS3URI(uri) {
		return openS3(ctx, uri, opts)
	}
	return OpenFile(ctx, uri, opts)
}

// OpenFile opens a local file.
func OpenFile(ctx context.Context, path string, opts Options) (ByteSource, error) {
	comp := CompressionOf(path)
	if comp == None {
		return Map(path)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrOpen, err)
	}
	defer f.Close()

	var sizeHint int64
	if info, err := f.Stat(); err == nil {
		sizeHint = info.Size()
	}

	var r io.Reader
	switch comp {
	case Gzip:
		zr, err := gzip.NewReader(f)
		if err != nil {
			return nil, fmt.Errorf("%w: gzip %s: %w", ErrOpen, path, err)
		}
		defer zr.Close()
		r = zr
	case Zstd:
		zr, err := zstd.NewReader(f)
		if err != nil {
			return nil, fmt.Errorf("%w: zstd %s: %w", ErrOpen, path, err)
		}
		defer zr.Close()
		r = zr
	}

	buf, err := readAll(ctx, r, opts.Budget, sizeHint)
	if err != nil {
		return nil, fmt.Errorf("%w: decompress %s: %w", ErrOpen, path, err)
	}
	log := logctx.FromContext(ctx)
	log.Debug().
		Str("path", path).
		Stringer("compression", comp).
		Int64("compressed_bytes", sizeHint).
		Int("bytes", buf.Len()).
		Msg("input decompressed into memory")
	return buf, nil
}

const (
	minGrow = 1 << 20
	maxGrow = 256 << 20
)

// readAll drains r into a Buffer, reserving every capacity increase
// against budget before allocating it.
func readAll(ctx context.Context, r io.Reader, budget *membudget.Budget, sizeHint int64) (*Buffer, error) {
	var reserved uint64
	release := func() {
		if budget != nil && reserved > 0 {
			budget.Release(reserved)
			reserved = 0
		}
	}
	grow := func(buf []byte, n int) ([]byte, error) {
		if budget != nil {
			if err := budget.Reserve(uint64(n)); err != nil {
				return nil, err
			}
			reserved += uint64(n)
		}
		nb := make([]byte, len(buf), cap(buf)+n)
		copy(nb, buf)
		return nb, nil
	}

	// Delimited text typically compresses 3-5x.
	initial := int(min(max(sizeHint*4, minGrow), maxGrow))
	buf, err := grow(nil, initial)
	if err != nil {
		return nil, err
	}

	for {
		if len(buf) == cap(buf) {
			if err := ctx.Err(); err != nil {
				release()
				return nil, err
			}
			if buf, err = grow(buf, min(max(cap(buf), minGrow), maxGrow)); err != nil {
				release()
				return nil, err
			}
		}
		n, err := r.Read(buf[len(buf):cap(buf)])
		buf = buf[:len(buf)+n]
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			release()
			return nil, err
		}
	}

	return &Buffer{data: buf, release: release}, nil
}

// downloaded removes the local copy of an S3 object after the region is
// released.
type downloaded struct {
	ByteSource
	dir string
}

func (d *downloaded) Close() error {
	err := d.ByteSource.Close()
	if rmErr := os.RemoveAll(d.dir); rmErr != nil && err == nil {
		err = fmt.Errorf("remove download dir: %w", rmErr)
	}
	return err
}

func openS3(ctx context.Context, uri string, opts Options) (ByteSource, error) {
	dl := opts.Downloader
	if dl == nil {
		client, err := s3fetch.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrOpen, err)
		}
		// Fail before creating any local state when the object is missing
		// or unreadable.
		bucket, key, err := s3fetch.ParseS3URI(uri)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrOpen, err)
		}
		size, err := client.ObjectSize(ctx, bucket, key)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrOpen, err)
		}
		log := logctx.FromContext(ctx)
		log.Info().
			Str("uri", uri).
			Int64("bytes", size).
			Msg("downloading input")
		dl = client.Downloader(opts.S3)
	}

	dir, res, err := dl.FetchURI(ctx, uri, opts.TempDir)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrOpen, err)
	}

	src, err := OpenFile(ctx, res.Path, opts)
	if err != nil {
		os.RemoveAll(dir)
		return nil, err
	}
	return &downloaded{ByteSource: src, dir: dir}, nil
}
