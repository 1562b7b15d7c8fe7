// Package s3fetch downloads transaction files from S3 so they can be
// memory-mapped like local files.
package s3fetch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/eunmann/txagg/internal/logctx"
	"github.com/eunmann/txagg/pkg/humanfmt"
)

// DefaultPartSize is the size of each ranged GET.
const DefaultPartSize = 16 * humanfmt.MiB

// DownloaderConfig configures parallel ranged downloads.
type DownloaderConfig struct {
	// Concurrency is the number of parts fetched at once.
	// Default: NumCPU clamped to [4, 16].
	Concurrency int

	// PartSize is the size of each ranged GET in bytes.
	PartSize int64
}

// DefaultDownloaderConfig returns defaults sized for the current machine.
func DefaultDownloaderConfig() DownloaderConfig {
	return DownloaderConfig{
		Concurrency: min(max(runtime.NumCPU(), 4), 16),
		PartSize:    DefaultPartSize,
	}
}

func (c DownloaderConfig) withDefaults() DownloaderConfig {
	def := DefaultDownloaderConfig()
	if c.Concurrency <= 0 {
		c.Concurrency = def.Concurrency
	}
	if c.PartSize <= 0 {
		c.PartSize = def.PartSize
	}
	return c
}

// Downloader fetches whole objects with concurrent ranged GETs.
type Downloader struct {
	manager *manager.Downloader
	config  DownloaderConfig
}

// NewDownloader creates a Downloader over any client that can serve
// ranged GetObject calls.
func NewDownloader(api manager.DownloadAPIClient, cfg DownloaderConfig) *Downloader {
	cfg = cfg.withDefaults()
	mgr := manager.NewDownloader(api, func(d *manager.Downloader) {
		d.Concurrency = cfg.Concurrency
		d.PartSize = cfg.PartSize
		d.BufferProvider = manager.NewPooledBufferedWriterReadFromProvider(int(cfg.PartSize))
	})
	return &Downloader{manager: mgr, config: cfg}
}

// Config returns the effective configuration.
func (d *Downloader) Config() DownloaderConfig {
	return d.config
}

// DownloadResult describes a completed download.
type DownloadResult struct {
	Path            string
	BytesDownloaded int64
	Duration        time.Duration
}

// DownloadToFile downloads s3://bucket/key to destPath. A partial file is
// removed on failure.
func (d *Downloader) DownloadToFile(ctx context.Context, bucket, key, destPath string) (*DownloadResult, error) {
	start := time.Now()

	file, err := os.Create(destPath)
	if err != nil {
		return nil, fmt.Errorf("create destination file: %w", err)
	}

	n, err := d.manager.Download(ctx, file, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	closeErr := file.Close()
	if err == nil && closeErr != nil {
		err = fmt.Errorf("close destination file: %w", closeErr)
	}
	if err != nil {
		os.Remove(destPath)
		return nil, fmt.Errorf("download s3://%s/%s: %w", bucket, key, err)
	}

	res := &DownloadResult{Path: destPath, BytesDownloaded: n, Duration: time.Since(start)}
	log := logctx.FromContext(ctx)
	log.Debug().
		Str("bucket", bucket).
		Str("key", key).
		Int64("bytes", n).
		Str("throughput", humanfmt.Throughput(n, res.Duration)).
		Msg("object downloaded")
	return res, nil
}

// FetchURI downloads the object named by uri into a fresh directory under
// tempDir (os.TempDir() when empty). The caller owns the returned
// directory and must remove it.
func (d *Downloader) FetchURI(ctx context.Context, uri, tempDir string) (dir string, res *DownloadResult, err error) {
	bucket, key, err := ParseS3URI(uri)
	if err != nil {
		return "", nil, err
	}

	dir, err = os.MkdirTemp(tempDir, "txagg-s3-*")
	if err != nil {
		return "", nil, fmt.Errorf("create download dir: %w", err)
	}

	res, err = d.DownloadToFile(ctx, bucket, key, filepath.Join(dir, localName(key)))
	if err != nil {
		os.RemoveAll(dir)
		return "", nil, err
	}
	return dir, res, nil
}
