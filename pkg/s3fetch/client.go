package s3fetch

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// Client wraps an S3 client configured from the default AWS credential
// chain (environment, shared config, instance role).
type Client struct {
	s3Client *s3.Client
}

// NewClient creates a Client using the default AWS configuration.
func NewClient(ctx context.Context) (*Client, error) {
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}
	return NewClientWithConfig(cfg), nil
}

// NewClientWithConfig creates a Client from an explicit AWS config.
func NewClientWithConfig(cfg aws.Config) *Client {
	return &Client{s3Client: s3.NewFromConfig(cfg)}
}

// ObjectSize returns the size of an object without downloading it.
func (c *Client) ObjectSize(ctx context.Context, bucket, key string) (int64, error) {
	out, err := c.s3Client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return 0, fmt.Errorf("head object s3://%s/%s: %w", bucket, key, err)
	}
	return aws.ToInt64(out.ContentLength), nil
}

// Downloader returns a ranged-GET downloader backed by this client.
func (c *Client) Downloader(cfg DownloaderConfig) *Downloader {
	return NewDownloader(c.s3Client, cfg)
}
