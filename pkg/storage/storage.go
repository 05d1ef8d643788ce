// Package storage defines the server's key/value surface: a raw byte-level
// KV carved into prefixes, and a typed JSON codec layered on top.
package storage

import "context"

// KV is the raw byte-level store under a single prefix.
type KV interface {
	Put(ctx context.Context, key string, value []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
	ListKeys(ctx context.Context) ([]string, error)
	List(ctx context.Context) ([][]byte, error)
	Delete(ctx context.Context, key string) error
}

// KVBroker hands out prefixed views over the underlying store.
type KVBroker interface {
	KeyValue(prefix string) KV
}

// KeyValue is the typed store the services program against.
type KeyValue[T any] interface {
	Put(ctx context.Context, key string, obj T) error
	Get(ctx context.Context, key string) (T, error)
	ListKeys(ctx context.Context) ([]string, error)
	List(ctx context.Context) ([]T, error)
	Delete(ctx context.Context, key string) error
}
