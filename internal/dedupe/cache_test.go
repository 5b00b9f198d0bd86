// ABOUTME: Tests for the dedupe cache used for idempotency and replay suppression.
// ABOUTME: Validates TTL expiry, LRU eviction, disabled mode, cleanup, and concurrency safety.

package dedupe

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock lets tests move time forward without sleeping.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

func newTestCache(t *testing.T, ttl time.Duration, maxSize int) (*Cache, *fakeClock) {
	t.Helper()
	clock := &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	cache := New(ttl, maxSize)
	cache.now = clock.Now
	t.Cleanup(cache.Close)
	return cache, clock
}

func TestCache_Check_FirstCallFalseSecondTrue(t *testing.T) {
	cache, _ := newTestCache(t, 5*time.Minute, 100)

	assert.False(t, cache.Check("my-key"), "fresh key should not be a duplicate")
	assert.True(t, cache.Check("my-key"), "immediate repeat should be a duplicate")
}

func TestCache_Check_EmptyKeyNeverStored(t *testing.T) {
	cache, _ := newTestCache(t, 5*time.Minute, 100)

	assert.False(t, cache.Check(""))
	assert.False(t, cache.Check(""))
	assert.Equal(t, 0, cache.Size())
}

func TestCache_Check_ExpiredAfterTTL(t *testing.T) {
	cache := New(100*time.Millisecond, 100)
	defer cache.Close()

	assert.False(t, cache.Check("a"))
	time.Sleep(150 * time.Millisecond)
	assert.False(t, cache.Check("a"), "entry older than the TTL must not count as seen")
}

func TestCache_Check_RefreshExtendsWindow(t *testing.T) {
	cache, clock := newTestCache(t, 50*time.Millisecond, 100)

	assert.False(t, cache.Check("refresh-key"))

	clock.Advance(30 * time.Millisecond)
	assert.True(t, cache.Check("refresh-key"))

	// 60ms after the first insert but only 30ms after the refresh.
	clock.Advance(30 * time.Millisecond)
	assert.True(t, cache.Check("refresh-key"))
}

func TestCache_Check_ExactlyAtTTLIsExpired(t *testing.T) {
	cache, clock := newTestCache(t, time.Second, 100)

	cache.Check("edge")
	clock.Advance(time.Second)
	assert.False(t, cache.Check("edge"))
}

func TestCache_Eviction_OldestFirst(t *testing.T) {
	cache, clock := newTestCache(t, 5*time.Minute, 2)

	cache.Check("a")
	clock.Advance(time.Millisecond)
	cache.Check("b")
	clock.Advance(time.Millisecond)
	cache.Check("c")

	require.Equal(t, 2, cache.Size())

	// "b" and "c" survive; probing them first keeps "a" from evicting them.
	assert.True(t, cache.Check("c"))
	assert.True(t, cache.Check("b"))
	assert.False(t, cache.Check("a"), "oldest key should have been evicted")
}

func TestCache_Eviction_RecencyProtectsTouchedKey(t *testing.T) {
	cache, clock := newTestCache(t, 5*time.Minute, 3)

	for _, k := range []string{"first", "second", "third"} {
		cache.Check(k)
		clock.Advance(time.Millisecond)
	}

	// Touch "first" so "second" becomes least recently used.
	assert.True(t, cache.Check("first"))
	cache.Check("fourth")

	assert.True(t, cache.Check("first"))
	assert.True(t, cache.Check("third"))
	assert.True(t, cache.Check("fourth"))
	assert.False(t, cache.Check("second"), "second should be evicted")
}

func TestCache_DisabledWhenMaxSizeNotPositive(t *testing.T) {
	for _, size := range []int{0, -1} {
		cache, _ := newTestCache(t, 5*time.Minute, size)

		assert.False(t, cache.Check("k"))
		assert.False(t, cache.Check("k"), "disabled cache must never report duplicates")
		assert.Equal(t, 0, cache.Size())
	}
}

func TestCache_ZeroTTLNeverExpires(t *testing.T) {
	cache, clock := newTestCache(t, 0, 10)

	cache.Check("forever")
	clock.Advance(24 * time.Hour)
	assert.True(t, cache.Check("forever"))
}

func TestCache_ZeroTTLStillEvictsByCapacity(t *testing.T) {
	cache, _ := newTestCache(t, 0, 1)

	cache.Check("x")
	cache.Check("y")
	assert.Equal(t, 1, cache.Size())
	assert.True(t, cache.Check("y"))
}

func TestCache_PruneDropsExpiredEntries(t *testing.T) {
	cache, clock := newTestCache(t, 10*time.Millisecond, 100)

	cache.Check("cleanup-1")
	cache.Check("cleanup-2")
	cache.Check("cleanup-3")
	require.Equal(t, 3, cache.Size())

	clock.Advance(20 * time.Millisecond)
	cache.runCleanup()

	assert.Equal(t, 0, cache.Size(), "cleanup should remove expired entries")
}

func TestCache_Clear(t *testing.T) {
	cache, _ := newTestCache(t, 5*time.Minute, 100)

	cache.Check("a")
	cache.Check("b")
	cache.Clear()

	assert.Equal(t, 0, cache.Size())
	assert.False(t, cache.Check("a"))
}

func TestCache_Concurrent(t *testing.T) {
	cache := New(5*time.Minute, 1000)
	defer cache.Close()

	const numGoroutines = 100
	const opsPerGoroutine = 100

	var wg sync.WaitGroup
	wg.Add(numGoroutines)
	for i := 0; i < numGoroutines; i++ {
		go func(id int) {
			defer wg.Done()
			for j := 0; j < opsPerGoroutine; j++ {
				key := "key-" + string(rune('A'+id%26)) + "-" + string(rune('0'+j%10))
				cache.Check(key)
			}
		}(i)
	}
	wg.Wait()

	assert.LessOrEqual(t, cache.Size(), 1000)
	assert.False(t, cache.Check("final-key"))
	assert.True(t, cache.Check("final-key"))
}

func TestCache_Check_ExactlyOneWinner(t *testing.T) {
	cache := New(5*time.Minute, 100)
	defer cache.Close()

	const numGoroutines = 100
	var winners atomic.Int32
	var wg sync.WaitGroup
	wg.Add(numGoroutines)

	for i := 0; i < numGoroutines; i++ {
		go func() {
			defer wg.Done()
			if !cache.Check("contested-key") {
				winners.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), winners.Load(), "exactly one caller should see the key as new")
}

func TestCache_Close(t *testing.T) {
	cache := New(5*time.Minute, 100)

	assert.False(t, cache.Check("before-close"))
	assert.True(t, cache.Check("before-close"))

	cache.Close()
	cache.Close()
}
