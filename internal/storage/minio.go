// Package storage holds note attachments in an S3-compatible object store.
package storage

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// PublicPrefix is the key prefix for objects anyone may read. The bucket
// policy grants anonymous read on this prefix only; everything else is
// reachable through presigned URLs.
const PublicPrefix = "public"

type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// Client wraps a MinIO client scoped to a single bucket.
type Client struct {
	mc     *minio.Client
	bucket string
	base   string
}

func New(cfg Config) (*Client, error) {
	mc, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create storage client: %w", err)
	}

	scheme := "http"
	if cfg.UseSSL {
		scheme = "https"
	}

	return &Client{
		mc:     mc,
		bucket: cfg.Bucket,
		base:   fmt.Sprintf("%s://%s/%s", scheme, cfg.Endpoint, cfg.Bucket),
	}, nil
}

// EnsureBucket creates the bucket if it does not exist yet.
func (c *Client) EnsureBucket(ctx context.Context) error {
	exists, err := c.mc.BucketExists(ctx, c.bucket)
	if err != nil {
		return fmt.Errorf("check bucket: %w", err)
	}
	if exists {
		return nil
	}
	if err := c.mc.MakeBucket(ctx, c.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("create bucket: %w", err)
	}
	return nil
}

// Upload writes an object, replacing any existing one at the same path.
func (c *Client) Upload(ctx context.Context, path string, r io.Reader, size int64, contentType string) error {
	_, err := c.mc.PutObject(ctx, c.bucket, path, r, size, minio.PutObjectOptions{
		ContentType:  contentType,
		CacheControl: "max-age=3600",
	})
	if err != nil {
		return fmt.Errorf("upload object: %w", err)
	}
	return nil
}

// PublicURL returns the permanent anonymous-read URL for an object. Only
// meaningful for objects under PublicPrefix.
func (c *Client) PublicURL(path string) string {
	return c.base + "/" + path
}

// SignedURL returns a time-limited read URL for a private object.
func (c *Client) SignedURL(ctx context.Context, path string, ttl time.Duration) (string, error) {
	u, err := c.mc.PresignedGetObject(ctx, c.bucket, path, ttl, url.Values{})
	if err != nil {
		return "", fmt.Errorf("presign object: %w", err)
	}
	return u.String(), nil
}

// Ping verifies the object store is reachable.
func (c *Client) Ping(ctx context.Context) error {
	if _, err := c.mc.BucketExists(ctx, c.bucket); err != nil {
		return fmt.Errorf("storage ping: %w", err)
	}
	return nil
}

// ObjectPath builds the storage key for a note attachment. Public notes
// land under the shared public/ prefix; private notes are namespaced by
// owner so presigned access stays per-user.
func ObjectPath(public bool, ownerID, noteID, filename string, now time.Time) string {
	name := fmt.Sprintf("%s-%d-%s", noteID, now.UnixMilli(), SanitizeFilename(filename))
	if public {
		return PublicPrefix + "/" + name
	}
	return ownerID + "/" + name
}

// SanitizeFilename strips path separators and characters that are awkward
// in object keys or URLs.
func SanitizeFilename(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	if i := strings.LastIndex(name, "/"); i >= 0 {
		name = name[i+1:]
	}
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '.', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	if b.Len() == 0 {
		return "file"
	}
	return b.String()
}
