package engine

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestIDLocks_SerializesSameID(t *testing.T) {
	locks := newIDLocks()

	var active int32
	var maxActive int32
	var wg sync.WaitGroup

	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			locks.withLock(1, func() {
				n := atomic.AddInt32(&active, 1)
				if n > atomic.LoadInt32(&maxActive) {
					atomic.StoreInt32(&maxActive, n)
				}
				time.Sleep(time.Millisecond)
				atomic.AddInt32(&active, -1)
			})
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxActive, "withLock must never let two goroutines hold the same id's lock concurrently")
}

func TestIDLocks_DistinctIDsRunConcurrently(t *testing.T) {
	locks := newIDLocks()

	release := make(chan struct{})
	started := make(chan struct{})

	go locks.withLock(1, func() {
		close(started)
		<-release
	})
	<-started

	done := make(chan struct{})
	go func() {
		locks.withLock(2, func() {})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("a lock held on id 1 must not block an unrelated id 2")
	}

	close(release)
}

func TestIDLocks_ReleasesEntryWhenRefcountReachesZero(t *testing.T) {
	locks := newIDLocks()

	locks.withLock(1, func() {})

	locks.mu.Lock()
	_, stillTracked := locks.locks[1]
	locks.mu.Unlock()

	assert.False(t, stillTracked, "an id with no in-flight holders should not linger in the map")
}
