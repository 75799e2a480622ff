package relationship

import (
	"context"
	"sync"
)

type memoryRecord struct {
	members  []string
	revision int64
}

// MemoryStore is an in-process Store with per-record revisions. It backs
// tests and serves as the fallback when no database is configured. Its
// compare-and-swap is instance-local: running several service instances
// against separate MemoryStores loses writes, so it is single-instance
// only.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[Kind]map[string]*memoryRecord
}

func NewMemoryStore() *MemoryStore {
	records := make(map[Kind]map[string]*memoryRecord, len(Kinds))
	for _, kind := range Kinds {
		records[kind] = make(map[string]*memoryRecord)
	}
	return &MemoryStore{records: records}
}

func (s *MemoryStore) Get(_ context.Context, kind Kind, userID string) (Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[kind][userID]
	if !ok {
		return Record{}, nil
	}
	members := make([]string, len(rec.members))
	copy(members, rec.members)
	return Record{Members: members, Revision: rec.revision}, nil
}

func (s *MemoryStore) CompareAndPut(_ context.Context, kind Kind, userID string, members []string, expected int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[kind][userID]
	if !ok {
		if expected != 0 {
			return ErrRevisionConflict
		}
		stored := make([]string, len(members))
		copy(stored, members)
		s.records[kind][userID] = &memoryRecord{members: stored, revision: 1}
		return nil
	}

	if rec.revision != expected {
		return ErrRevisionConflict
	}
	stored := make([]string, len(members))
	copy(stored, members)
	rec.members = stored
	rec.revision++
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, kind Kind, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.records[kind], userID)
	return nil
}
