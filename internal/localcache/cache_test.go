package localcache

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetAndGet(t *testing.T) {
	c := New()
	c.Set("roster", []byte(`{"a":1}`), time.Minute)

	value, ok := c.Get("roster")
	require.True(t, ok)
	assert.Equal(t, []byte(`{"a":1}`), value)

	_, ok = c.Get("missing")
	assert.False(t, ok)
}

func TestExpiryPerEntry(t *testing.T) {
	now := time.Date(2024, 3, 11, 8, 0, 0, 0, time.UTC)
	var mu sync.Mutex
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}
	advance := func(d time.Duration) {
		mu.Lock()
		defer mu.Unlock()
		now = now.Add(d)
	}

	c := NewWithClock(clock)
	c.Set("short", []byte("s"), time.Minute)
	c.Set("long", []byte("l"), time.Hour)

	advance(30 * time.Second)
	_, ok := c.Get("short")
	assert.True(t, ok)

	advance(31 * time.Second)
	_, ok = c.Get("short")
	assert.False(t, ok, "entry past its own refresh window is absent")
	_, ok = c.Get("long")
	assert.True(t, ok)

	// An expired entry still counts until replaced or invalidated.
	assert.Equal(t, 2, c.Size())

	// Refreshing restarts the window.
	c.Set("short", []byte("s2"), time.Minute)
	value, ok := c.Get("short")
	require.True(t, ok)
	assert.Equal(t, []byte("s2"), value)
}

func TestGetReturnsACopy(t *testing.T) {
	c := New()
	original := []byte("data")
	c.Set("k", original, time.Minute)

	first, ok := c.Get("k")
	require.True(t, ok)
	first[0] = 'X'

	second, ok := c.Get("k")
	require.True(t, ok)
	assert.Equal(t, []byte("data"), second)

	// Mutating the caller's slice after Set does not leak in either.
	original[0] = 'Y'
	third, ok := c.Get("k")
	require.True(t, ok)
	assert.Equal(t, []byte("data"), third)
}

func TestInvalidate(t *testing.T) {
	c := New()
	c.Set("k", []byte("v"), time.Minute)

	assert.True(t, c.Invalidate("k"))
	assert.False(t, c.Invalidate("k"), "second invalidation finds nothing")

	_, ok := c.Get("k")
	assert.False(t, ok)
}

func TestClear(t *testing.T) {
	c := New()
	c.Set("a", []byte("1"), time.Minute)
	c.Set("b", []byte("2"), time.Minute)
	require.Equal(t, 2, c.Size())

	c.Clear()
	assert.Equal(t, 0, c.Size())
}

func TestConcurrentAccess(t *testing.T) {
	c := New()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				c.Set("k", []byte("v"), time.Minute)
				c.Get("k")
				c.Invalidate("k")
			}
		}()
	}
	wg.Wait()
}
