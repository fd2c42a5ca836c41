package data

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

type memoryItem struct {
	value     []byte
	expiresAt time.Time
}

// MemoryStore 进程内状态存储，值以 JSON 保存，读写互不共享底层数据
type MemoryStore struct {
	mu    sync.RWMutex
	items map[string]memoryItem
	ttl   time.Duration
	now   func() time.Time
}

// NewMemoryStore ttl 为 0 表示不过期
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		items: make(map[string]memoryItem),
		ttl:   ttl,
		now:   time.Now,
	}
}

func (s *MemoryStore) Get(_ context.Context, key string, dst interface{}) (bool, error) {
	s.mu.RLock()
	item, ok := s.items[key]
	s.mu.RUnlock()

	if !ok {
		return false, nil
	}
	if !item.expiresAt.IsZero() && s.now().After(item.expiresAt) {
		s.mu.Lock()
		delete(s.items, key)
		s.mu.Unlock()
		return false, nil
	}
	return true, json.Unmarshal(item.value, dst)
}

func (s *MemoryStore) Set(_ context.Context, key string, value interface{}) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}

	item := memoryItem{value: data}
	if s.ttl > 0 {
		item.expiresAt = s.now().Add(s.ttl)
	}

	s.mu.Lock()
	s.items[key] = item
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	delete(s.items, key)
	s.mu.Unlock()
	return nil
}

// Len 当前条目数（含未清理的过期条目）
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}
