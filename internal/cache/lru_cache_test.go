package cache

import (
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

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

func newTestCache(t *testing.T, config *Config) (*LRUCache[string], *fakeClock) {
	t.Helper()
	clock := &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	c := NewLRUCache[string](config)
	c.now = clock.Now
	return c, clock
}

func TestNewLRUCache(t *testing.T) {
	config := DefaultConfig()
	c := NewLRUCache[string](config)

	assert.Len(t, c.shards, config.ShardCount)
	assert.Equal(t, config.MaxSize/config.ShardCount, c.shards[0].capacity)
	assert.False(t, c.IsRunning())

	// 分片数非法时退化为单分片
	c = NewLRUCache[string](&Config{MaxSize: 3})
	assert.Len(t, c.shards, 1)
	assert.Equal(t, 3, c.shards[0].capacity)
}

func TestLRUCache_BasicOperations(t *testing.T) {
	c, _ := newTestCache(t, DefaultConfig())

	c.Set("key1", "value1", time.Hour)

	value, exists := c.Get("key1")
	assert.True(t, exists)
	assert.Equal(t, "value1", value)

	// 覆盖写
	c.Set("key1", "value2", time.Hour)
	value, _ = c.Get("key1")
	assert.Equal(t, "value2", value)
	assert.Equal(t, 1, c.Size())

	value, exists = c.Get("nonexistent")
	assert.False(t, exists)
	assert.Empty(t, value)

	assert.True(t, c.Delete("key1"))
	_, exists = c.Get("key1")
	assert.False(t, exists)
	assert.False(t, c.Delete("nonexistent"))
}

func TestLRUCache_TTL(t *testing.T) {
	c, clock := newTestCache(t, &Config{ShardCount: 1, DefaultTTL: time.Minute})

	c.Set("short", "v", 100*time.Millisecond)
	c.Set("default", "v", 0)

	_, exists := c.Get("short")
	assert.True(t, exists)

	clock.Advance(150 * time.Millisecond)
	_, exists = c.Get("short")
	assert.False(t, exists)
	_, exists = c.Get("default")
	assert.True(t, exists)

	clock.Advance(time.Minute)
	_, exists = c.Get("default")
	assert.False(t, exists)
	assert.Equal(t, 0, c.Size())
	assert.Equal(t, int64(2), c.GetStats().Expirations)
}

func TestLRUCache_NoExpiryWithoutTTL(t *testing.T) {
	c, clock := newTestCache(t, &Config{ShardCount: 1})

	c.Set("key", "v", 0)
	clock.Advance(24 * time.Hour)

	_, exists := c.Get("key")
	assert.True(t, exists)
}

func TestLRUCache_LRUEviction(t *testing.T) {
	c, _ := newTestCache(t, &Config{MaxSize: 3, ShardCount: 1})

	c.Set("key1", "value1", time.Hour)
	c.Set("key2", "value2", time.Hour)
	c.Set("key3", "value3", time.Hour)
	assert.Equal(t, 3, c.Size())

	// 访问key1，使其成为最近使用的
	c.Get("key1")

	// 添加第4个项目，应该淘汰key2
	c.Set("key4", "value4", time.Hour)

	_, exists := c.Get("key2")
	assert.False(t, exists)
	for _, key := range []string{"key1", "key3", "key4"} {
		_, exists = c.Get(key)
		assert.True(t, exists, key)
	}
	assert.Equal(t, int64(1), c.GetStats().Evictions)
}

func TestLRUCache_EvictExpired(t *testing.T) {
	c, clock := newTestCache(t, &Config{ShardCount: 4})

	for i := 0; i < 10; i++ {
		ttl := time.Hour
		if i%2 == 0 {
			ttl = time.Second
		}
		c.Set("key"+strconv.Itoa(i), "v", ttl)
	}

	clock.Advance(2 * time.Second)
	assert.Equal(t, 5, c.EvictExpired())
	assert.Equal(t, 5, c.Size())

	stats := c.GetStats()
	assert.Equal(t, int64(5), stats.Expirations)
	assert.Equal(t, clock.Now(), stats.LastCleanup)
}

func TestLRUCache_Stats(t *testing.T) {
	c, _ := newTestCache(t, DefaultConfig())

	c.Set("key1", "value1", time.Hour)
	c.Set("key2", "value2", time.Hour)
	c.Get("key1")
	c.Get("key1")
	c.Get("key3")
	c.Delete("key2")

	stats := c.GetStats()
	assert.Equal(t, 1, stats.Items)
	assert.Equal(t, int64(2), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
	assert.Equal(t, int64(2), stats.Sets)
	assert.Equal(t, int64(1), stats.Deletes)
	assert.InDelta(t, 2.0/3.0, stats.HitRate, 0.001)
}

func TestLRUCache_StartStop(t *testing.T) {
	c := NewLRUCache[string](&Config{ShardCount: 2, CleanupInterval: 10 * time.Millisecond})

	require.NoError(t, c.Start())
	assert.True(t, c.IsRunning())
	assert.ErrorIs(t, c.Start(), ErrAlreadyRunning)

	c.Set("key", "v", time.Millisecond)
	assert.Eventually(t, func() bool { return c.Size() == 0 }, time.Second, 5*time.Millisecond)

	require.NoError(t, c.Stop())
	assert.False(t, c.IsRunning())
	assert.ErrorIs(t, c.Stop(), ErrNotRunning)
}

func TestLRUCache_ConcurrentAccess(t *testing.T) {
	c := NewLRUCache[int](&Config{MaxSize: 100, ShardCount: 8})

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				key := strconv.Itoa((g*200 + i) % 150)
				c.Set(key, i, time.Minute)
				c.Get(key)
				if i%10 == 0 {
					c.Delete(key)
				}
			}
		}(g)
	}
	wg.Wait()

	assert.LessOrEqual(t, c.Size(), 100)
}
