// Package storage persists uploaded document files so the indexing worker
// can re-read them out of band from the HTTP request.
package storage

import (
	"context"
	"io"
)

type Storage interface {
	Upload(ctx context.Context, path string, data io.Reader) error
	Download(ctx context.Context, path string) (io.ReadCloser, error)
	Delete(ctx context.Context, path string) error
}
