package cache

import (
	"sync"

	"github.com/golang/groupcache/lru"
)

// Memory is a LRU cache bounded by the size of its keys and values. The
// accounting is the one of the groupcache main cache, on top of its lru.
type Memory struct {
	mu       sync.Mutex
	lru      *lru.Cache
	nbytes   int64
	maxBytes int64
}

// NewMemory creates a cache holding at most maxBytes.
func NewMemory(maxBytes int64) *Memory {
	m := &Memory{
		lru:      lru.New(0),
		maxBytes: maxBytes,
	}

	m.lru.OnEvicted = func(key lru.Key, value interface{}) {
		m.nbytes -= int64(len(key.(string)) + len(value.([]byte)))
	}

	return m
}

// Get implements Cache.
func (m *Memory) Get(key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	v, ok := m.lru.Get(key)
	if !ok {
		return nil, ErrCacheMiss
	}
	return v.([]byte), nil
}

// Set implements Cache. A value larger than the capacity evicts everything,
// itself included.
func (m *Memory) Set(key string, body []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if v, ok := m.lru.Get(key); ok {
		m.nbytes -= int64(len(v.([]byte)))
		m.nbytes += int64(len(body))
	} else {
		m.nbytes += int64(len(key) + len(body))
	}
	m.lru.Add(key, body)

	for m.nbytes > m.maxBytes && m.lru.Len() > 0 {
		m.lru.RemoveOldest()
	}

	return nil
}

// Len is the number of entries.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.lru.Len()
}

// Bytes is the memory currently accounted for.
func (m *Memory) Bytes() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.nbytes
}

// Capacity is the maximum amount of bytes held.
func (m *Memory) Capacity() int64 {
	return m.maxBytes
}
