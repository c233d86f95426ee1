package metadata

import (
	"context"
	"time"
)

// Repository is a small key/value store kept inside the sync database.
// Sync watermarks live here.
type Repository interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	DeletePrefix(ctx context.Context, prefix string) error
	List(ctx context.Context) (map[string][]byte, error)

	// GetTime returns the timestamp stored under key or nil when unset.
	GetTime(ctx context.Context, key string) (*time.Time, error)
	// SetTime stores t under key.
	SetTime(ctx context.Context, key string, t time.Time) error
}
