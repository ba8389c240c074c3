// Package ratelimit implements a one-action-per-window limiter on top of a
// TTL marker store.
package ratelimit

import (
	"context"
	"errors"

	"schedex/internal/store"
)

// ErrLimited reports that the identity is inside its cooldown window.
// It is distinct from store.ErrUpstream so callers can answer "try again
// in a minute" rather than a generic failure.
var ErrLimited = errors.New("ratelimit: limited")

// Limiter answers "may this identity proceed now?" and, if so, records a
// cooldown marker. The marker store's TTL defines the window.
type Limiter struct {
	markers store.Store
	locks   *store.KeyLock
}

func New(markers store.Store) *Limiter {
	return &Limiter{
		markers: markers,
		locks:   store.NewKeyLock(),
	}
}

// CheckAndMark returns nil exactly once per identity per window; concurrent
// calls for the same identity are serialized through a per-key lock so two
// callers can never both observe "not limited". A non-nil return is either
// ErrLimited or a wrapped store failure.
func (l *Limiter) CheckAndMark(ctx context.Context, identity string) error {
	return l.locks.WithLock(identity, func() error {
		_, present, err := l.markers.Get(ctx, identity)
		if err != nil {
			return err
		}
		if present {
			return ErrLimited
		}
		_, err = l.markers.Put(ctx, identity, []byte("1"))
		return err
	})
}
