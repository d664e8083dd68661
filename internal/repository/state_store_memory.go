package repository

import (
	"container/list"
	"context"
	"sync"
	"time"
)

type memEntry struct {
	key       string
	value     []byte
	expiresAt time.Time
	hasTTL    bool
}

func (e *memEntry) isExpired(now time.Time) bool {
	return e.hasTTL && !now.Before(e.expiresAt)
}

// MemoryOption customizes a memory state store.
type MemoryOption func(*memoryStateStore)

// WithClock replaces time.Now, mostly for tests.
func WithClock(now func() time.Time) MemoryOption {
	return func(s *memoryStateStore) {
		if now != nil {
			s.now = now
		}
	}
}

// memoryStateStore keeps entries in a map plus a list ordered by write time
// (front = most recently written). When maxEntries is exceeded the back of
// the list is dropped.
type memoryStateStore struct {
	mu         sync.Mutex
	entries    map[string]*list.Element
	order      *list.List
	maxEntries int
	now        func() time.Time
}

// NewMemoryStateStore returns a size-bounded in-memory store.
// maxEntries <= 0 disables the bound.
func NewMemoryStateStore(maxEntries int, opts ...MemoryOption) StateStore {
	s := &memoryStateStore{
		entries:    make(map[string]*list.Element),
		order:      list.New(),
		maxEntries: maxEntries,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *memoryStateStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	stored := append([]byte(nil), value...)

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	entry := &memEntry{key: key, value: stored}
	if ttl > 0 {
		entry.hasTTL = true
		entry.expiresAt = now.Add(ttl)
	}

	if el, ok := s.entries[key]; ok {
		el.Value = entry
		s.order.MoveToFront(el)
	} else {
		s.entries[key] = s.order.PushFront(entry)
	}

	if s.maxEntries > 0 && s.order.Len() > s.maxEntries {
		s.purgeExpired(now)
		for s.order.Len() > s.maxEntries {
			s.removeElement(s.order.Back())
		}
	}
	return nil
}

func (s *memoryStateStore) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	el, ok := s.entries[key]
	if !ok {
		return nil, nil
	}
	entry := el.Value.(*memEntry)
	if entry.isExpired(s.now()) {
		s.removeElement(el)
		return nil, nil
	}
	return append([]byte(nil), entry.value...), nil
}

// purgeExpired walks from the oldest write forward. Entries do not share a
// TTL, so the whole list is scanned.
func (s *memoryStateStore) purgeExpired(now time.Time) {
	for el := s.order.Back(); el != nil; {
		prev := el.Prev()
		if el.Value.(*memEntry).isExpired(now) {
			s.removeElement(el)
		}
		el = prev
	}
}

func (s *memoryStateStore) removeElement(el *list.Element) {
	entry := s.order.Remove(el).(*memEntry)
	delete(s.entries, entry.key)
}
