// Package minio keeps the glossary in S3-compatible object storage.
package minio

import (
	"bytes"
	"context"
	"io"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/turtacn/doctalk/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/doctalk/pkg/errors"
)

const DefaultRegion = "us-east-1"

// MinIOConfig holds the object storage connection parameters.
type MinIOConfig struct {
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	UseSSL          bool   `mapstructure:"use_ssl"`
	Region          string `mapstructure:"region"`
	Bucket          string `mapstructure:"bucket"`
}

// ObjectInfo describes a stored object.
type ObjectInfo struct {
	Key  string
	Size int64
	ETag string
}

// Client reads and writes objects of one bucket.
type Client struct {
	client *minio.Client
	config MinIOConfig
	logger logging.Logger
}

// NewClient creates a client for cfg.Bucket.  No request is made until the
// first operation.
func NewClient(cfg MinIOConfig, log logging.Logger) (*Client, error) {
	if cfg.Endpoint == "" {
		return nil, errors.New(errors.ErrCodeConfigInvalid, "object store endpoint is required")
	}
	if cfg.Bucket == "" {
		return nil, errors.New(errors.ErrCodeConfigInvalid, "object store bucket is required")
	}
	if cfg.Region == "" {
		cfg.Region = DefaultRegion
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeConfigInvalid, "failed to create minio client")
	}
	return &Client{client: client, config: cfg, logger: logging.OrNop(log)}, nil
}

// Bucket returns the configured bucket name.
func (c *Client) Bucket() string { return c.config.Bucket }

// HealthCheck verifies that the bucket is reachable and exists.
func (c *Client) HealthCheck(ctx context.Context) error {
	exists, err := c.client.BucketExists(ctx, c.config.Bucket)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeObjectStoreError, "object store unreachable")
	}
	if !exists {
		return errors.New(errors.ErrCodeObjectStoreError, "bucket does not exist").
			WithDetail("bucket=" + c.config.Bucket)
	}
	return nil
}

// EnsureBucket creates the bucket if it is missing.
func (c *Client) EnsureBucket(ctx context.Context) error {
	exists, err := c.client.BucketExists(ctx, c.config.Bucket)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeObjectStoreError, "failed to check bucket existence")
	}
	if exists {
		return nil
	}
	if err := c.client.MakeBucket(ctx, c.config.Bucket, minio.MakeBucketOptions{Region: c.config.Region}); err != nil {
		return errors.Wrap(err, errors.ErrCodeObjectStoreError, "failed to create bucket").
			WithDetail("bucket=" + c.config.Bucket)
	}
	c.logger.Info("created bucket", logging.String("bucket", c.config.Bucket))
	return nil
}

// Get downloads the object stored under key.  A missing key or bucket is
// ErrCodeNotFound.
func (c *Client) Get(ctx context.Context, key string) ([]byte, ObjectInfo, error) {
	obj, err := c.client.GetObject(ctx, c.config.Bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, ObjectInfo{}, c.mapError(err, key)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, ObjectInfo{}, c.mapError(err, key)
	}
	info := ObjectInfo{Key: key, Size: int64(len(data))}
	if st, err := obj.Stat(); err == nil {
		info.ETag = st.ETag
	}
	return data, info, nil
}

// Put uploads data under key.
func (c *Client) Put(ctx context.Context, key string, data []byte, contentType string) (ObjectInfo, error) {
	up, err := c.client.PutObject(ctx, c.config.Bucket, key, bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return ObjectInfo{}, c.mapError(err, key)
	}
	return ObjectInfo{Key: key, Size: up.Size, ETag: up.ETag}, nil
}

func (c *Client) mapError(err error, key string) error {
	switch minio.ToErrorResponse(err).Code {
	case "NoSuchKey", "NoSuchBucket":
		return errors.Wrap(err, errors.ErrCodeNotFound, "object not found").
			WithDetail("bucket=" + c.config.Bucket + " key=" + key)
	}
	return errors.Wrap(err, errors.ErrCodeObjectStoreError, "object store request failed").
		WithDetail("bucket=" + c.config.Bucket + " key=" + key)
}
