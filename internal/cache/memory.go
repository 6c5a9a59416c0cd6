package cache

import (
	"container/list"
	"sync"
)

// memoryTier is a bounded LRU of decoded entries in front of the durable tier.
type memoryTier[T any] struct {
	mu      sync.Mutex
	entries map[string]*list.Element
	lru     *list.List
	max     int
}

type memoryEntry[T any] struct {
	key   string
	entry Entry[T]
}

func newMemoryTier[T any](max int) *memoryTier[T] {
	return &memoryTier[T]{
		entries: make(map[string]*list.Element, max),
		lru:     list.New(),
		max:     max,
	}
}

func (m *memoryTier[T]) get(key string) (Entry[T], bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	elem, ok := m.entries[key]
	if !ok {
		return Entry[T]{}, false
	}
	m.lru.MoveToFront(elem)
	return elem.Value.(*memoryEntry[T]).entry, true
}

func (m *memoryTier[T]) put(key string, e Entry[T]) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if elem, ok := m.entries[key]; ok {
		elem.Value.(*memoryEntry[T]).entry = e
		m.lru.MoveToFront(elem)
		return
	}

	m.entries[key] = m.lru.PushFront(&memoryEntry[T]{key: key, entry: e})
	for m.lru.Len() > m.max {
		oldest := m.lru.Back()
		m.lru.Remove(oldest)
		delete(m.entries, oldest.Value.(*memoryEntry[T]).key)
	}
}

func (m *memoryTier[T]) remove(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if elem, ok := m.entries[key]; ok {
		m.lru.Remove(elem)
		delete(m.entries, key)
	}
}
