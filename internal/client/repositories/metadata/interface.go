// Package metadata is a small key/value store kept in the client's SQLite
// database. The CLI keeps its current session there.
package metadata

import (
	"context"
)

// Repository stores opaque values by key. Get returns (nil, nil) when the
// key is absent.
type Repository interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	List(ctx context.Context) (map[string][]byte, error)
	Clear(ctx context.Context) error
}
