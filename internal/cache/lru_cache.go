package cache

import (
	"errors"
	"hash/fnv"
	"sync"
	"sync/atomic"
	"time"
)

var (
	ErrAlreadyRunning = errors.New("cache is already running")
	ErrNotRunning     = errors.New("cache is not running")
)

// LRUCache 分片LRU缓存，支持按项TTL
type LRUCache[V any] struct {
	shards []*shard[V]
	config *Config
	now    func() time.Time

	running atomic.Bool
	stopCh  chan struct{}
	wg      sync.WaitGroup

	// 全局统计
	hits        atomic.Int64
	misses      atomic.Int64
	sets        atomic.Int64
	deletes     atomic.Int64
	evictions   atomic.Int64
	expirations atomic.Int64
	lastCleanup atomic.Int64
}

// NewLRUCache 创建新的LRU缓存
func NewLRUCache[V any](config *Config) *LRUCache[V] {
	if config == nil {
		config = DefaultConfig()
	}
	shardCount := config.ShardCount
	if shardCount <= 0 {
		shardCount = 1
	}
	capacity := 0
	if config.MaxSize > 0 {
		capacity = config.MaxSize / shardCount
		if capacity == 0 {
			capacity = 1
		}
	}

	c := &LRUCache[V]{
		shards: make([]*shard[V], shardCount),
		config: config,
		now:    time.Now,
		stopCh: make(chan struct{}),
	}
	for i := range c.shards {
		c.shards[i] = newShard[V](capacity)
	}
	return c
}

// getShard 根据key获取对应的分片
func (c *LRUCache[V]) getShard(key string) *shard[V] {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return c.shards[h.Sum32()%uint32(len(c.shards))]
}

// Get 获取缓存项，过期项视为不存在并立即清除
func (c *LRUCache[V]) Get(key string) (V, bool) {
	var zero V
	s := c.getShard(key)

	s.mutex.Lock()
	defer s.mutex.Unlock()

	e, ok := s.items[key]
	if !ok {
		c.misses.Add(1)
		return zero, false
	}
	if e.expired(c.now()) {
		delete(s.items, key)
		s.lru.remove(e)
		c.expirations.Add(1)
		c.misses.Add(1)
		return zero, false
	}
	s.lru.moveToHead(e)
	c.hits.Add(1)
	return e.value, true
}

// Set 设置缓存项，ttl <= 0 时使用默认TTL
func (c *LRUCache[V]) Set(key string, value V, ttl time.Duration) {
	if ttl <= 0 {
		ttl = c.config.DefaultTTL
	}
	var expiresAt time.Time
	if ttl > 0 {
		expiresAt = c.now().Add(ttl)
	}

	s := c.getShard(key)
	s.mutex.Lock()
	defer s.mutex.Unlock()

	c.sets.Add(1)
	if e, ok := s.items[key]; ok {
		e.value = value
		e.expiresAt = expiresAt
		s.lru.moveToHead(e)
		return
	}

	e := &entry[V]{key: key, value: value, expiresAt: expiresAt}
	s.items[key] = e
	s.lru.addToHead(e)

	// 超出分片容量时淘汰最久未使用的项
	for s.capacity > 0 && s.lru.size > s.capacity {
		last := s.lru.removeTail()
		delete(s.items, last.key)
		c.evictions.Add(1)
	}
}

// Delete 删除缓存项
func (c *LRUCache[V]) Delete(key string) bool {
	s := c.getShard(key)
	s.mutex.Lock()
	defer s.mutex.Unlock()

	e, ok := s.items[key]
	if !ok {
		return false
	}
	delete(s.items, key)
	s.lru.remove(e)
	c.deletes.Add(1)
	return true
}

// Size 获取缓存项数量，包含尚未清理的过期项
func (c *LRUCache[V]) Size() int {
	total := 0
	for _, s := range c.shards {
		s.mutex.Lock()
		total += len(s.items)
		s.mutex.Unlock()
	}
	return total
}

// EvictExpired 清理过期项，返回清理数量
func (c *LRUCache[V]) EvictExpired() int {
	now := c.now()
	expired := 0
	for _, s := range c.shards {
		s.mutex.Lock()
		for key, e := range s.items {
			if e.expired(now) {
				delete(s.items, key)
				s.lru.remove(e)
				expired++
			}
		}
		s.mutex.Unlock()
	}
	c.expirations.Add(int64(expired))
	c.lastCleanup.Store(now.UnixNano())
	return expired
}

// GetStats 获取统计信息
func (c *LRUCache[V]) GetStats() Stats {
	stats := Stats{
		Items:       c.Size(),
		Hits:        c.hits.Load(),
		Misses:      c.misses.Load(),
		Sets:        c.sets.Load(),
		Deletes:     c.deletes.Load(),
		Evictions:   c.evictions.Load(),
		Expirations: c.expirations.Load(),
	}
	if ts := c.lastCleanup.Load(); ts != 0 {
		stats.LastCleanup = time.Unix(0, ts)
	}
	if total := stats.Hits + stats.Misses; total > 0 {
		stats.HitRate = float64(stats.Hits) / float64(total)
	}
	return stats
}

// Start 启动后台过期清理
func (c *LRUCache[V]) Start() error {
	if c.config.CleanupInterval <= 0 {
		return nil
	}
	if !c.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}

	c.wg.Add(1)
	go c.cleanupWorker()
	return nil
}

// Stop 停止后台清理
func (c *LRUCache[V]) Stop() error {
	if !c.running.CompareAndSwap(true, false) {
		return ErrNotRunning
	}
	close(c.stopCh)
	c.wg.Wait()
	return nil
}

// IsRunning 检查是否正在运行
func (c *LRUCache[V]) IsRunning() bool {
	return c.running.Load()
}

// cleanupWorker 清理工作协程
func (c *LRUCache[V]) cleanupWorker() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.EvictExpired()
		case <-c.stopCh:
			return
		}
	}
}
