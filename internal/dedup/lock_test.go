package dedup

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryLockerSerializesSameKey(t *testing.T) {
	locker := NewMemoryLocker()

	var inside int
	var maxInside int
	var mu sync.Mutex

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := locker.WithLock(context.Background(), "space:global|library:all|guid:abc", func() error {
				mu.Lock()
				inside++
				if inside > maxInside {
					maxInside = inside
				}
				mu.Unlock()

				time.Sleep(2 * time.Millisecond)

				mu.Lock()
				inside--
				mu.Unlock()
				return nil
			})
			require.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, maxInside, "critical sections for one key must not overlap")
}

func TestMemoryLockerDifferentKeysDoNotBlock(t *testing.T) {
	locker := NewMemoryLocker()

	release := make(chan struct{})
	held := make(chan struct{})
	go func() {
		locker.WithLock(context.Background(), "key-a", func() error {
			close(held)
			<-release
			return nil
		})
	}()
	<-held

	done := make(chan struct{})
	go func() {
		locker.WithLock(context.Background(), "key-b", func() error { return nil })
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("lock for a different key blocked")
	}
	close(release)
}

func TestMemoryLockerReleasesOnError(t *testing.T) {
	locker := NewMemoryLocker()
	boom := errors.New("boom")

	err := locker.WithLock(context.Background(), "k", func() error { return boom })
	require.ErrorIs(t, err, boom)

	// Key must be usable again immediately.
	err = locker.WithLock(context.Background(), "k", func() error { return nil })
	require.NoError(t, err)

	locker.mu.Lock()
	defer locker.mu.Unlock()
	assert.Empty(t, locker.locks, "released entries should be pruned")
}

func TestLockIDDeterministic(t *testing.T) {
	a := LockID("space:global|library:all|guid:plex://movie/1")
	b := LockID("space:global|library:all|guid:plex://movie/1")
	c := LockID("space:global|library:all|guid:plex://movie/2")

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
}
