// Package session persists authenticated portal sessions in a TTL store.
// The portal state blob is opaque here: it is stored and returned
// byte-for-byte, never inspected.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"schedex/internal/store"
)

// ErrNoSession reports an unknown or expired session token.
var ErrNoSession = errors.New("session: not found")

// Record is what the store holds per session: who logged in, plus the
// portal client's serialized state.
type Record struct {
	Principal string          `json:"principal"`
	State     json.RawMessage `json:"state"`
}

// Manager wraps a TTL store with the session codec. The store's TTL is the
// session lifetime; every write (Create or Refresh) resets it.
type Manager struct {
	store store.Store
}

func NewManager(s store.Store) *Manager {
	return &Manager{store: s}
}

// Create stores rec under a fresh random token and returns the token.
func (m *Manager) Create(ctx context.Context, rec Record) (string, error) {
	data, err := json.Marshal(rec)
	if err != nil {
		return "", fmt.Errorf("session: encode: %w", err)
	}
	return m.store.Put(ctx, "", data)
}

// Load resolves a token to its record. An absent or expired token yields
// ErrNoSession.
func (m *Manager) Load(ctx context.Context, token string) (Record, error) {
	data, ok, err := m.store.Get(ctx, token)
	if err != nil {
		return Record{}, err
	}
	if !ok {
		return Record{}, ErrNoSession
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return Record{}, fmt.Errorf("session: decode: %w", err)
	}
	return rec, nil
}

// Refresh rewrites the record under its existing token, resetting the TTL.
// Used for auto-save after each authenticated call.
func (m *Manager) Refresh(ctx context.Context, token string, rec Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("session: encode: %w", err)
	}
	_, err = m.store.Put(ctx, token, data)
	return err
}

// Delete removes the session. Deleting an unknown token is not an error.
func (m *Manager) Delete(ctx context.Context, token string) error {
	return m.store.Delete(ctx, token)
}
