package store

import "sync"

// KeyLock serializes work correlated by a dynamic string key. Locks are
// created lazily on first use and kept for the process lifetime; the key
// space is bounded by distinct recipient identities, so no eviction.
type KeyLock struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewKeyLock() *KeyLock {
	return &KeyLock{locks: make(map[string]*sync.Mutex)}
}

// WithLock runs fn while holding the lock for key. The lock is released on
// every exit path, including panics. Two calls with the same key never
// interleave; calls with different keys proceed in parallel.
func (l *KeyLock) WithLock(key string, fn func() error) error {
	m := l.lockFor(key)
	m.Lock()
	defer m.Unlock()
	return fn()
}

func (l *KeyLock) lockFor(key string) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()

	m, ok := l.locks[key]
	if !ok {
		m = &sync.Mutex{}
		l.locks[key] = m
	}
	return m
}
