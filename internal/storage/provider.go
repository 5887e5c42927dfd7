package storage

import (
	"context"
	"errors"
	"io"
)

var ErrObjectNotFound = errors.New("object not found")

// Provider persists generated annotation files. Writing a key that already
// exists replaces it.
type Provider interface {
	CreateBucket(ctx context.Context, bucket string) error

	PutObject(ctx context.Context, bucket, key string, data io.Reader) error

	GetObject(ctx context.Context, bucket, key string) ([]byte, error)

	// Location is the human readable address of an object, as reported to
	// clients.
	Location(bucket, key string) string
}
