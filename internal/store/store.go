// Package store provides the keyed TTL store backing sessions and
// rate-limit markers, plus the per-key serialization lock.
package store

import (
	"context"
	"errors"
)

// ErrUpstream marks a storage backend failure. It is wrapped, never
// retried; callers decide how to surface it.
var ErrUpstream = errors.New("store: upstream failure")

// Store is a keyed blob store with a fixed per-store TTL.
//
// Values are opaque byte blobs; the store never interprets them. Get with
// an absent (or expired) key is a valid outcome, not an error. Put with an
// empty key generates a fresh random key and returns the effective key;
// every Put resets the TTL. Delete is idempotent.
type Store interface {
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)
	Put(ctx context.Context, key string, value []byte) (string, error)
	Delete(ctx context.Context, key string) error
}
