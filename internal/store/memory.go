package store

import (
	"context"
	"sort"
	"sync"

	"github.com/telhawk-systems/trailhawk/internal/models"
)

// MemoryStore keeps records in a map. Used for dry runs and tests.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[recordKey]models.PersistenceRecord
}

type recordKey struct {
	eventID   string
	eventTime string
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[recordKey]models.PersistenceRecord)}
}

// Name implements Store.
func (s *MemoryStore) Name() string { return "memory" }

// Put implements Store.
func (s *MemoryStore) Put(ctx context.Context, record *models.PersistenceRecord) (Response, error) {
	if err := ctx.Err(); err != nil {
		return Response{}, err
	}
	if err := validate(record); err != nil {
		return Response{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := recordKey{eventID: record.EventID, eventTime: record.EventTime}
	_, replaced := s.records[key]
	s.records[key] = *record

	return Response{Backend: s.Name(), Target: "memory", Key: record.Key(), Replaced: replaced}, nil
}

// Get returns the record stored under (eventID, eventTime).
func (s *MemoryStore) Get(eventID, eventTime string) (models.PersistenceRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.records[recordKey{eventID: eventID, eventTime: eventTime}]
	return r, ok
}

// All returns a snapshot of every record, ordered by key.
func (s *MemoryStore) All() []models.PersistenceRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.PersistenceRecord, 0, len(s.records))
	for _, r := range s.records {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].EventID != out[j].EventID {
			return out[i].EventID < out[j].EventID
		}
		return out[i].EventTime < out[j].EventTime
	})
	return out
}

// Len returns the number of stored records.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}
