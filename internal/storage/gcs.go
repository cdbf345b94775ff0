// Package storage uploads course media (thumbnails, screenshots) to Google
// Cloud Storage and hands back a public URL for the course record.
//
// storage.NewClient honours STORAGE_EMULATOR_HOST, so local development can
// point at fake-gcs-server without code changes.
package storage

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"github.com/rs/xid"
)

const (
	DefaultPrefix     = "learnmade-courses"
	defaultPublicBase = "https://storage.googleapis.com"
	uploadTimeout     = 2 * time.Minute
)

// Object is a stored file. Key doubles as the public id returned to clients.
type Object struct {
	Key         string `json:"publicId"`
	URL         string `json:"url"`
	ContentType string `json:"contentType"`
}

type Config struct {
	Bucket string
	Prefix string
	// PublicBaseURL overrides https://storage.googleapis.com, e.g. for a CDN.
	PublicBaseURL string
}

// GCSUploader writes objects into a single bucket under a fixed prefix.
type GCSUploader struct {
	client     *storage.Client
	bucket     string
	prefix     string
	publicBase string
	logger     *slog.Logger
}

func NewGCSUploader(ctx context.Context, cfg Config, logger *slog.Logger) (*GCSUploader, error) {
	if strings.TrimSpace(cfg.Bucket) == "" {
		return nil, fmt.Errorf("storage: bucket name is required")
	}

	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("storage: creating GCS client: %w", err)
	}

	u := &GCSUploader{
		client:     client,
		bucket:     cfg.Bucket,
		prefix:     cfg.Prefix,
		publicBase: cfg.PublicBaseURL,
		logger:     logger.With(slog.String("component", "storage")),
	}
	if u.prefix == "" {
		u.prefix = DefaultPrefix
	}
	if u.publicBase == "" {
		u.publicBase = defaultPublicBase
	}

	u.logger.Info("object storage initialized",
		slog.String("bucket", u.bucket),
		slog.String("prefix", u.prefix),
	)
	return u, nil
}

// Upload streams body to a fresh key derived from filename's extension.
// The original filename is never used as the key.
func (u *GCSUploader) Upload(ctx context.Context, filename, contentType string, body io.Reader) (*Object, error) {
	key := ObjectKey(u.prefix, filename)

	ctx, cancel := context.WithTimeout(ctx, uploadTimeout)
	defer cancel()

	w := u.client.Bucket(u.bucket).Object(key).NewWriter(ctx)
	w.ContentType = contentType
	w.CacheControl = "public, max-age=31536000"

	if _, err := io.Copy(w, body); err != nil {
		_ = w.Close()
		return nil, fmt.Errorf("storage: writing %s: %w", key, err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("storage: closing writer for %s: %w", key, err)
	}

	u.logger.Info("object uploaded",
		slog.String("key", key),
		slog.String("contentType", contentType),
	)

	return &Object{
		Key:         key,
		URL:         PublicURL(u.publicBase, u.bucket, key),
		ContentType: contentType,
	}, nil
}

func (u *GCSUploader) Close() error {
	return u.client.Close()
}

// ObjectKey returns "<prefix>/<xid><ext>" with the extension lower-cased.
func ObjectKey(prefix, filename string) string {
	ext := strings.ToLower(path.Ext(path.Base(strings.ReplaceAll(filename, "\\", "/"))))
	name := xid.New().String() + ext
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		return name
	}
	return prefix + "/" + name
}

func PublicURL(base, bucket, key string) string {
	base = strings.TrimRight(base, "/")
	return fmt.Sprintf("%s/%s/%s", base, bucket, strings.TrimLeft(key, "/"))
}
