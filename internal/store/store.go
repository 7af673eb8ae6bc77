// Package store is the external key-value layer shared by the session
// store and the matchmaking queue. All game state lives here as whole
// serialized values; the only cross-writer conflict resolution is
// CompareAndSwap.
package store

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned for absent keys and empty lists.
	ErrNotFound = errors.New("key not found")
	// ErrConflict is returned when a CompareAndSwap precondition fails.
	ErrConflict = errors.New("value changed concurrently")
)

// Store is the subset of key-value, set and list operations the core needs.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	// Set writes value with ttl. Any touch keys get the same TTL in the
	// same transaction.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration, touch ...string) error
	// CompareAndSwap writes value only if the stored bytes still equal old,
	// refreshing the touch keys' TTL along with it.
	CompareAndSwap(ctx context.Context, key string, old, value []byte, ttl time.Duration, touch ...string) error
	Delete(ctx context.Context, keys ...string) error

	// SetAndAdd writes every value and adds members to setKey in one transaction.
	SetAndAdd(ctx context.Context, values map[string][]byte, ttl time.Duration, setKey string, members ...string) error
	// DeleteAndRemove deletes keys and removes members from setKey in one transaction.
	DeleteAndRemove(ctx context.Context, keys []string, setKey string, members ...string) error

	SAdd(ctx context.Context, key, member string) (bool, error)
	SRem(ctx context.Context, key string, members ...string) error
	SIsMember(ctx context.Context, key, member string) (bool, error)

	RPush(ctx context.Context, key string, value []byte) error
	LPush(ctx context.Context, key string, value []byte) error
	LPop(ctx context.Context, key string) ([]byte, error)
	LLen(ctx context.Context, key string) (int64, error)
}
