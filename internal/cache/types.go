package cache

import (
	"sync"
	"time"
)

// Config 缓存配置
type Config struct {
	// 容量配置，按分片均分
	MaxSize int `json:"max_size"`

	// TTL配置
	DefaultTTL      time.Duration `json:"default_ttl"`      // Set 未指定TTL时使用，0表示不过期
	CleanupInterval time.Duration `json:"cleanup_interval"` // 后台清理间隔

	// 分片数量，减少锁竞争
	ShardCount int `json:"shard_count"`
}

// DefaultConfig 默认缓存配置
func DefaultConfig() *Config {
	return &Config{
		MaxSize:         10000,
		DefaultTTL:      5 * time.Minute,
		CleanupInterval: time.Minute,
		ShardCount:      16,
	}
}

// Stats 缓存统计信息
type Stats struct {
	Items int `json:"items"`

	// 命中率统计
	Hits    int64   `json:"hits"`
	Misses  int64   `json:"misses"`
	HitRate float64 `json:"hit_rate"`

	// 操作统计
	Sets        int64 `json:"sets"`
	Deletes     int64 `json:"deletes"`
	Evictions   int64 `json:"evictions"`   // 容量淘汰次数
	Expirations int64 `json:"expirations"` // 过期清理次数

	LastCleanup time.Time `json:"last_cleanup"`
}

// entry 缓存项，同时是LRU链表节点
type entry[V any] struct {
	key       string
	value     V
	expiresAt time.Time

	prev *entry[V]
	next *entry[V]
}

func (e *entry[V]) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

// lruList 带哨兵的双向链表，头部为最近使用
type lruList[V any] struct {
	head *entry[V]
	tail *entry[V]
	size int
}

func newLRUList[V any]() *lruList[V] {
	head := &entry[V]{}
	tail := &entry[V]{}
	head.next = tail
	tail.prev = head
	return &lruList[V]{head: head, tail: tail}
}

// addToHead 添加节点到头部
func (l *lruList[V]) addToHead(e *entry[V]) {
	e.prev = l.head
	e.next = l.head.next
	l.head.next.prev = e
	l.head.next = e
	l.size++
}

// remove 移除节点
func (l *lruList[V]) remove(e *entry[V]) {
	e.prev.next = e.next
	e.next.prev = e.prev
	e.prev, e.next = nil, nil
	l.size--
}

// moveToHead 移动节点到头部
func (l *lruList[V]) moveToHead(e *entry[V]) {
	l.remove(e)
	l.addToHead(e)
}

// removeTail 移除尾部节点，链表为空时返回 nil
func (l *lruList[V]) removeTail() *entry[V] {
	if l.size == 0 {
		return nil
	}
	last := l.tail.prev
	l.remove(last)
	return last
}

// shard 缓存分片。Get 会调整链表顺序，因此读写都持有互斥锁
type shard[V any] struct {
	mutex    sync.Mutex
	items    map[string]*entry[V]
	lru      *lruList[V]
	capacity int
}

func newShard[V any](capacity int) *shard[V] {
	return &shard[V]{
		items:    make(map[string]*entry[V]),
		lru:      newLRUList[V](),
		capacity: capacity,
	}
}
