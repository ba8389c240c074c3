package store

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// MemoryStore is an in-process Store used in tests and redis-less dev runs.
// Expiry is lazy on Get; StartSweeper adds a periodic purge so long-idle
// processes do not accumulate dead entries.
type MemoryStore struct {
	mu    sync.RWMutex
	ttl   time.Duration
	items map[string]memoryItem

	// now is injectable so tests can drive TTL expiry deterministically.
	now func() time.Time
}

type memoryItem struct {
	value   []byte
	expires time.Time
}

// NewMemoryStore creates an in-process store with the given TTL.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		ttl:   ttl,
		items: make(map[string]memoryItem),
		now:   time.Now,
	}
}

// SetClock replaces the store's time source. Tests only.
func (s *MemoryStore) SetClock(now func() time.Time) {
	s.mu.Lock()
	s.now = now
	s.mu.Unlock()
}

func (s *MemoryStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	it, ok := s.items[key]
	if !ok || !s.now().Before(it.expires) {
		return nil, false, nil
	}
	return it.value, true, nil
}

func (s *MemoryStore) Put(_ context.Context, key string, value []byte) (string, error) {
	if key == "" {
		key = NewKey()
	}

	// Copy so later caller mutations cannot alias stored state.
	v := make([]byte, len(value))
	copy(v, value)

	s.mu.Lock()
	s.items[key] = memoryItem{value: v, expires: s.now().Add(s.ttl)}
	s.mu.Unlock()
	return key, nil
}

func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	delete(s.items, key)
	s.mu.Unlock()
	return nil
}

// StartSweeper starts a cron-driven purge of expired entries on the given
// schedule (e.g. "@every 1m") and returns a stop function.
func (s *MemoryStore) StartSweeper(schedule string) (stop func(), err error) {
	c := cron.New()
	if _, err := c.AddFunc(schedule, s.sweep); err != nil {
		return nil, err
	}
	c.Start()
	return func() { c.Stop() }, nil
}

func (s *MemoryStore) sweep() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for key, it := range s.items {
		if !now.Before(it.expires) {
			delete(s.items, key)
		}
	}
}
