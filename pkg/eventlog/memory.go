package eventlog

import (
	"context"
	"maps"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-memory processing log for tests.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[entryKey]Entry
}

type entryKey struct {
	eventID   string
	eventType string
}

// NewMemoryStore creates an empty in-memory processing log.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[entryKey]Entry)}
}

func (s *MemoryStore) Upsert(_ context.Context, entry Entry) error {
	if entry.EventID == "" || entry.EventType == "" {
		return ErrInvalidEntryKey
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := entryKey{eventID: entry.EventID, eventType: entry.EventType}
	now := time.Now().UTC()
	if prev, ok := s.entries[key]; ok {
		entry.CreatedAt = prev.CreatedAt
	} else {
		entry.CreatedAt = now
	}
	entry.UpdatedAt = now
	entry.Metadata = maps.Clone(entry.Metadata)
	s.entries[key] = entry
	return nil
}

func (s *MemoryStore) Get(_ context.Context, eventID, eventType string) (*Entry, error) {
	if eventID == "" || eventType == "" {
		return nil, ErrInvalidEntryKey
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.entries[entryKey{eventID: eventID, eventType: eventType}]
	if !ok {
		return nil, ErrEntryNotFound
	}
	cp := entry
	cp.Metadata = maps.Clone(entry.Metadata)
	return &cp, nil
}

func (s *MemoryStore) Recent(_ context.Context, limit int) ([]Entry, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	all := make([]Entry, 0, len(s.entries))
	for _, e := range s.entries {
		all = append(all, e)
	}
	sort.Slice(all, func(i, j int) bool {
		return all[i].UpdatedAt.After(all[j].UpdatedAt)
	})
	if len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}
