package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"
)

var (
	// ErrObjectNotFound is returned by Read when the key does not exist.
	ErrObjectNotFound = errors.New("object not found")
	// ErrUploadUnsupported is returned by backends that cannot presign uploads.
	ErrUploadUnsupported = errors.New("presigned upload not supported")
)

// Storage is the object store holding originals and their derived versions.
type Storage interface {
	// Write stores content from the reader with the given key.
	// size is the expected content size (-1 if unknown).
	Write(ctx context.Context, key string, r io.Reader, size int64, contentType string) error

	// Read retrieves content for the given key. The caller closes the reader.
	Read(ctx context.Context, key string) (io.ReadCloser, error)

	// Exists checks if content with the given key exists.
	Exists(ctx context.Context, key string) (bool, error)

	// GetURL returns a download URL valid for roughly the given duration.
	GetURL(ctx context.Context, key string, expires time.Duration) (string, error)

	// GetUploadURL returns a URL a client can PUT the object to directly.
	GetUploadURL(ctx context.Context, key, contentType string, expires time.Duration) (string, error)
}

// Tagger is implemented by backends that support object tags.
type Tagger interface {
	TagObject(ctx context.Context, key, tagKey, tagValue string) error
}

// Config selects and configures a Storage backend.
type Config struct {
	Type  string      `mapstructure:"type"`
	S3    S3Config    `mapstructure:"s3"`
	Local LocalConfig `mapstructure:"local"`
}

// New builds the backend named by cfg.Type ("s3" or "local").
func New(ctx context.Context, cfg Config) (Storage, error) {
	switch cfg.Type {
	case "s3", "minio", "":
		return NewS3Storage(ctx, cfg.S3)
	case "local":
		return NewLocalStorage(cfg.Local)
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", cfg.Type)
	}
}
