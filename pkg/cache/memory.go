package cache

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// MemoryStore keeps artifacts in process memory; used by the long-running
// service and by tests.
type MemoryStore struct {
	items *gocache.Cache
}

func NewMemoryStore(ttl time.Duration) *MemoryStore {
	if ttl <= 0 {
		ttl = gocache.NoExpiration
	}
	return &MemoryStore{items: gocache.New(ttl, 10*time.Minute)}
}

func (s *MemoryStore) Load(_ context.Context, key string) ([]byte, bool, error) {
	v, ok := s.items.Get(key)
	if !ok {
		return nil, false, nil
	}
	data, _ := v.([]byte)
	return data, true, nil
}

func (s *MemoryStore) Save(_ context.Context, key string, data []byte) error {
	buf := make([]byte, len(data))
	copy(buf, data)
	s.items.SetDefault(key, buf)
	return nil
}

func (s *MemoryStore) Clear(_ context.Context) error {
	s.items.Flush()
	return nil
}

func (s *MemoryStore) Len() int {
	return s.items.ItemCount()
}
