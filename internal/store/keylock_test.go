package store

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyLockSerializesSameKey(t *testing.T) {
	l := NewKeyLock()

	const goroutines = 32
	var inFlight, maxInFlight int
	var mu sync.Mutex
	var wg sync.WaitGroup

	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = l.WithLock("same", func() error {
				mu.Lock()
				inFlight++
				if inFlight > maxInFlight {
					maxInFlight = inFlight
				}
				mu.Unlock()

				time.Sleep(time.Millisecond)

				mu.Lock()
				inFlight--
				mu.Unlock()
				return nil
			})
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, maxInFlight, "bodies for the same key must never interleave")
}

func TestKeyLockDifferentKeysRunInParallel(t *testing.T) {
	l := NewKeyLock()

	release := make(chan struct{})
	started := make(chan struct{}, 2)
	var wg sync.WaitGroup

	for _, key := range []string{"a", "b"} {
		wg.Add(1)
		go func(key string) {
			defer wg.Done()
			_ = l.WithLock(key, func() error {
				started <- struct{}{}
				<-release
				return nil
			})
		}(key)
	}

	// Both bodies must be in flight at once; a shared lock would deadlock
	// this wait.
	for i := 0; i < 2; i++ {
		select {
		case <-started:
		case <-time.After(time.Second):
			t.Fatal("lock bodies for distinct keys did not run in parallel")
		}
	}
	close(release)
	wg.Wait()
}

func TestKeyLockReleasesOnError(t *testing.T) {
	l := NewKeyLock()

	err := l.WithLock("k", func() error {
		return assert.AnError
	})
	require.ErrorIs(t, err, assert.AnError)

	// Lock must be free again.
	done := make(chan struct{})
	go func() {
		_ = l.WithLock("k", func() error { return nil })
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("lock was not released after an error exit")
	}
}

func TestKeyLockReleasesOnPanic(t *testing.T) {
	l := NewKeyLock()

	func() {
		defer func() { _ = recover() }()
		_ = l.WithLock("k", func() error {
			panic("boom")
		})
	}()

	done := make(chan struct{})
	go func() {
		_ = l.WithLock("k", func() error { return nil })
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("lock was not released after a panic")
	}
}
