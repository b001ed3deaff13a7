package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetGetAndExpire(t *testing.T) {
	c := New(10, 0)
	key := KeyFromStrings("unit", "expire")

	_, ok := c.Get(key)
	require.False(t, ok, "expected no value initially")

	c.Set(key, "hello", 50*time.Millisecond)
	v, ok := c.Get(key)
	require.True(t, ok)
	assert.Equal(t, "hello", v)

	time.Sleep(80 * time.Millisecond)
	_, ok = c.Get(key)
	assert.False(t, ok, "expected expired value to be gone")
}

func TestDelete(t *testing.T) {
	c := New(10, 0)
	c.Set("k", 42, time.Second)
	v, ok := c.Get("k")
	require.True(t, ok)
	assert.Equal(t, 42, v)

	c.Delete("k")
	_, ok = c.Get("k")
	assert.False(t, ok)
}

func TestEvictsLeastRecentlyUsed(t *testing.T) {
	c := New(2, 0)
	c.Set("a", 1, 0)
	c.Set("b", 2, 0)
	_, _ = c.Get("a") // b is now LRU
	c.Set("c", 3, 0)

	assert.Equal(t, 2, c.Len())
	_, ok := c.Get("b")
	assert.False(t, ok)
	_, ok = c.Get("a")
	assert.True(t, ok)
	_, ok = c.Get("c")
	assert.True(t, ok)
}

func TestJanitorDropsExpired(t *testing.T) {
	c := New(0, 10*time.Millisecond)
	defer c.Close()
	c.Set("gone", 1, 5*time.Millisecond)

	assert.Eventually(t, func() bool { return c.Len() == 0 }, time.Second, 10*time.Millisecond)
}

func TestNilCacheIsNoop(t *testing.T) {
	var c *Cache
	c.Set("k", 1, 0)
	_, ok := c.Get("k")
	assert.False(t, ok)
	assert.Zero(t, c.Len())
	c.Close()
}

func TestKeyFromStringsStability(t *testing.T) {
	assert.Equal(t, KeyFromStrings("a", "b", "c"), KeyFromStrings("a", "b", "c"))
	assert.NotEqual(t, KeyFromStrings("a", "b", "c"), KeyFromStrings("a", "b", "d"))
	assert.NotEqual(t, KeyFromStrings("ab", "c"), KeyFromStrings("a", "bc"))
}
