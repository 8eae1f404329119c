package storage

import (
	"context"
	"errors"
)

var ErrNotFound = errors.New("blob not found")

// Storage keeps rendered documents and seal images. Objects are addressed
// by opaque keys; nothing is ever served from the store directly.
type Storage interface {
	Upload(ctx context.Context, key string, data []byte, contentType string) error
	Download(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
}
