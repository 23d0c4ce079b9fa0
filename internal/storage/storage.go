package storage

import (
	"context"
	"io"
)

// ObjectStore is the blob-store collaborator. The core only deals in object
// keys; MinIO is the production implementation.
type ObjectStore interface {
	Upload(ctx context.Context, objectName string, reader io.Reader, size int64, contentType string) error
	Download(ctx context.Context, objectName string) (io.ReadCloser, error)
	Delete(ctx context.Context, objectName string) error
}
