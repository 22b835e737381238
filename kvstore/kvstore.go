// Package kvstore is the persistent key-value store the snapshot cache
// writes to. Stores may enforce a size quota and report it with
// ErrQuotaExceeded so callers can shrink their payload and retry.
package kvstore

import (
	"context"
	"errors"
)

// ErrQuotaExceeded is returned by Set when the value would push the store
// over its size limit.
var ErrQuotaExceeded = errors.New("kvstore: quota exceeded")

type Store interface {
	// Get returns the value for key. ok is false when the key is absent.
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)
	Set(ctx context.Context, key string, value []byte) error
	Remove(ctx context.Context, key string) error
}
