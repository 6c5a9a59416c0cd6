package store

import "context"

// KV is the durable key/value contract the cache, the governor and the
// recent-search history are written against.
type KV interface {
	GetItem(ctx context.Context, key string) (string, bool, error)
	SetItem(ctx context.Context, key, value string) error
	RemoveItem(ctx context.Context, key string) error
}

var (
	_ KV = (*Store)(nil)
	_ KV = (*Memory)(nil)
)
