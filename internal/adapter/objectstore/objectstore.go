// Package objectstore reads import files from S3-compatible storage.
package objectstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"

	"github.com/couchcryptid/cell-locator/internal/config"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// ErrNotConfigured is returned when MinIO credentials are missing.
var ErrNotConfigured = errors.New("object store not configured: set MINIO_ENDPOINT, MINIO_ACCESS_KEY and MINIO_SECRET_KEY")

// ErrObjectNotFound is returned when the bucket or key does not exist. It
// matches fs.ErrNotExist.
var ErrObjectNotFound = fmt.Errorf("object %w", fs.ErrNotExist)

// Client streams objects from a MinIO or S3 endpoint.
type Client struct {
	client *minio.Client
	logger *slog.Logger
}

// NewClient builds a client from the MINIO_* settings.
func NewClient(cfg *config.Config, logger *slog.Logger) (*Client, error) {
	if cfg.MinioEndpoint == "" || cfg.MinioAccessKey == "" || cfg.MinioSecretKey == "" {
		return nil, ErrNotConfigured
	}
	mc, err := minio.New(cfg.MinioEndpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.MinioAccessKey, cfg.MinioSecretKey, ""),
		Secure: cfg.MinioUseSSL,
		Region: cfg.MinioRegion,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}
	return &Client{client: mc, logger: logger}, nil
}

// Open returns a reader for bucket/key. The caller closes it.
func (c *Client) Open(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	obj, err := c.client.GetObject(ctx, bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("get object %s/%s: %w", bucket, key, err)
	}
	info, err := obj.Stat()
	if err != nil {
		_ = obj.Close()
		switch minio.ToErrorResponse(err).Code {
		case "NoSuchKey", "NoSuchBucket":
			return nil, fmt.Errorf("%w: %s/%s", ErrObjectNotFound, bucket, key)
		}
		return nil, fmt.Errorf("stat object %s/%s: %w", bucket, key, err)
	}
	c.logger.Info("opened import object", "bucket", bucket, "key", key, "size", info.Size)
	return obj, nil
}
