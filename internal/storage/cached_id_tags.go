package storage

import (
	"context"
	"time"

	"github.com/charging-platform/central-system/internal/cache"
)

// CachedIdTagStore 在中心授权数据前加一层本地缓存，减少 Authorize 对后端的访问。
// 只缓存查到的记录，ErrNotFound 不缓存
type CachedIdTagStore struct {
	inner IdTagStore
	cache *cache.LRUCache[IdTagRecord]
	ttl   time.Duration
}

// NewCachedIdTagStore 创建带缓存的授权数据存储，ttl <= 0 时使用缓存的默认TTL
func NewCachedIdTagStore(inner IdTagStore, c *cache.LRUCache[IdTagRecord], ttl time.Duration) *CachedIdTagStore {
	return &CachedIdTagStore{inner: inner, cache: c, ttl: ttl}
}

// SaveIdTag 写入后端并使缓存失效
func (s *CachedIdTagStore) SaveIdTag(ctx context.Context, tag *IdTagRecord) error {
	if err := s.inner.SaveIdTag(ctx, tag); err != nil {
		return err
	}
	s.cache.Delete(tagKey(tag.IdTag))
	return nil
}

// GetIdTag 先查缓存，未命中时回源并回填
func (s *CachedIdTagStore) GetIdTag(ctx context.Context, idTag string) (*IdTagRecord, error) {
	key := tagKey(idTag)
	if tag, ok := s.cache.Get(key); ok {
		return &tag, nil
	}

	tag, err := s.inner.GetIdTag(ctx, idTag)
	if err != nil {
		return nil, err
	}
	s.cache.Set(key, *tag, s.ttl)
	return tag, nil
}
