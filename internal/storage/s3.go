package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Config holds S3/MinIO client configuration.
type Config struct {
	Endpoint        string // "localhost:9000" for MinIO
	Bucket          string // "multichat"
	AccessKeyID     string
	SecretAccessKey string
	UseSSL          bool
}

// Client stores knowledge snapshots as S3 objects. It satisfies store.KV so
// the knowledge cache can archive to a bucket instead of the shared store.
type Client struct {
	minioClient *minio.Client
	bucket      string
	now         func() time.Time
}

// New creates a new S3/MinIO client.
func New(config Config) (*Client, error) {
	if config.Endpoint == "" {
		return nil, fmt.Errorf("endpoint is required")
	}
	if config.Bucket == "" {
		return nil, fmt.Errorf("bucket is required")
	}

	minioClient, err := minio.New(config.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(config.AccessKeyID, config.SecretAccessKey, ""),
		Secure: config.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}

	return &Client{
		minioClient: minioClient,
		bucket:      config.Bucket,
		now:         time.Now,
	}, nil
}

// EnsureBucket creates the bucket if it doesn't exist.
func (c *Client) EnsureBucket(ctx context.Context) error {
	exists, err := c.minioClient.BucketExists(ctx, c.bucket)
	if err != nil {
		return fmt.Errorf("failed to check bucket: %w", err)
	}
	if exists {
		return nil
	}

	err = c.minioClient.MakeBucket(ctx, c.bucket, minio.MakeBucketOptions{})
	if err != nil {
		return fmt.Errorf("failed to create bucket: %w", err)
	}
	return nil
}

// envelope is the object body. S3 has no per-object TTL, so expiry travels
// with the value and is checked on read.
type envelope struct {
	ExpiresAt *time.Time      `json:"expires_at,omitempty"`
	Value     json.RawMessage `json:"value"`
}

func objectName(key string) string {
	return key + ".json"
}

// Set writes value under key. Values must be valid JSON.
func (c *Client) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	env := envelope{Value: value}
	if ttl > 0 {
		exp := c.now().Add(ttl).UTC()
		env.ExpiresAt = &exp
	}

	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("failed to marshal object: %w", err)
	}

	_, err = c.minioClient.PutObject(ctx, c.bucket, objectName(key), bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: "application/json",
	})
	if err != nil {
		return fmt.Errorf("failed to put object: %w", err)
	}
	return nil
}

// Get reads key. Expired objects are reported as missing and removed.
func (c *Client) Get(ctx context.Context, key string) ([]byte, bool, error) {
	object, err := c.minioClient.GetObject(ctx, c.bucket, objectName(key), minio.GetObjectOptions{})
	if err != nil {
		return nil, false, fmt.Errorf("failed to get object: %w", err)
	}
	defer object.Close()

	data, err := io.ReadAll(object)
	if err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to read object: %w", err)
	}

	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, false, fmt.Errorf("failed to unmarshal object: %w", err)
	}

	if env.ExpiresAt != nil && !c.now().Before(*env.ExpiresAt) {
		if err := c.Delete(ctx, key); err != nil {
			return nil, false, err
		}
		return nil, false, nil
	}

	return env.Value, true, nil
}

func (c *Client) Delete(ctx context.Context, key string) error {
	err := c.minioClient.RemoveObject(ctx, c.bucket, objectName(key), minio.RemoveObjectOptions{})
	if err != nil {
		return fmt.Errorf("failed to remove object: %w", err)
	}
	return nil
}

// DeletePrefix removes every object whose key starts with prefix.
func (c *Client) DeletePrefix(ctx context.Context, prefix string) (int, error) {
	objectCh := c.minioClient.ListObjects(ctx, c.bucket, minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: true,
	})

	removed := 0
	for object := range objectCh {
		if object.Err != nil {
			return removed, fmt.Errorf("failed to list objects: %w", object.Err)
		}
		err := c.minioClient.RemoveObject(ctx, c.bucket, object.Key, minio.RemoveObjectOptions{})
		if err != nil {
			return removed, fmt.Errorf("failed to remove object: %w", err)
		}
		removed++
	}
	return removed, nil
}

// Bucket returns the bucket name.
func (c *Client) Bucket() string {
	return c.bucket
}
