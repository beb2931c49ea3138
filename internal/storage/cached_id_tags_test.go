package storage

import (
	"context"
	"testing"
	"time"

	"github.com/charging-platform/central-system/internal/cache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockIdTagStore struct {
	mock.Mock
}

func (m *mockIdTagStore) SaveIdTag(ctx context.Context, tag *IdTagRecord) error {
	return m.Called(ctx, tag).Error(0)
}

func (m *mockIdTagStore) GetIdTag(ctx context.Context, idTag string) (*IdTagRecord, error) {
	args := m.Called(ctx, idTag)
	tag, _ := args.Get(0).(*IdTagRecord)
	return tag, args.Error(1)
}

func newCachedStore(inner IdTagStore) *CachedIdTagStore {
	return NewCachedIdTagStore(inner, cache.NewLRUCache[IdTagRecord](&cache.Config{MaxSize: 10, ShardCount: 1}), time.Minute)
}

func TestCachedIdTagStore_HitsBackendOnce(t *testing.T) {
	inner := new(mockIdTagStore)
	inner.On("GetIdTag", mock.Anything, "TAG1").
		Return(&IdTagRecord{IdTag: "TAG1", Status: "Accepted"}, nil).Once()

	s := newCachedStore(inner)
	ctx := context.Background()

	tag, err := s.GetIdTag(ctx, "TAG1")
	require.NoError(t, err)
	assert.Equal(t, "Accepted", tag.Status)

	// 大小写不敏感，命中缓存
	tag, err = s.GetIdTag(ctx, "tag1")
	require.NoError(t, err)
	assert.Equal(t, "TAG1", tag.IdTag)

	// 调用方修改返回值不影响缓存
	tag.Status = "Blocked"
	tag, err = s.GetIdTag(ctx, "TAG1")
	require.NoError(t, err)
	assert.Equal(t, "Accepted", tag.Status)

	inner.AssertExpectations(t)
}

func TestCachedIdTagStore_NotFoundIsNotCached(t *testing.T) {
	inner := new(mockIdTagStore)
	inner.On("GetIdTag", mock.Anything, "TAG404").Return(nil, ErrNotFound).Twice()

	s := newCachedStore(inner)
	for i := 0; i < 2; i++ {
		_, err := s.GetIdTag(context.Background(), "TAG404")
		assert.ErrorIs(t, err, ErrNotFound)
	}
	inner.AssertExpectations(t)
}

func TestCachedIdTagStore_SaveInvalidates(t *testing.T) {
	backend := NewMemoryStorage()
	s := newCachedStore(backend)
	ctx := context.Background()

	require.NoError(t, s.SaveIdTag(ctx, &IdTagRecord{IdTag: "TAG1", Status: "Accepted"}))
	tag, err := s.GetIdTag(ctx, "TAG1")
	require.NoError(t, err)
	assert.Equal(t, "Accepted", tag.Status)

	require.NoError(t, s.SaveIdTag(ctx, &IdTagRecord{IdTag: "tag1", Status: "Blocked"}))
	tag, err = s.GetIdTag(ctx, "TAG1")
	require.NoError(t, err)
	assert.Equal(t, "Blocked", tag.Status)
}
