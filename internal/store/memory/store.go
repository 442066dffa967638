// Package memory provides an in-memory record store for development/testing.
package memory

import (
	"context"
	"sync"

	"github.com/hubharvest/hubharvest/internal/harvest"
)

// RecordStore keeps records in a map guarded by a RWMutex. Writes for
// distinct identifiers never block each other beyond map access.
type RecordStore struct {
	mu      sync.RWMutex
	records map[harvest.Identifier]harvest.Record
}

// NewRecordStore constructs an empty RecordStore.
func NewRecordStore() *RecordStore {
	return &RecordStore{
		records: make(map[harvest.Identifier]harvest.Record),
	}
}

// LoadAll returns a copy of every stored record.
func (s *RecordStore) LoadAll(_ context.Context) (map[harvest.Identifier]harvest.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[harvest.Identifier]harvest.Record, len(s.records))
	for id, rec := range s.records {
		out[id] = rec
	}
	return out, nil
}

// Write replaces the record for record.ID.
func (s *RecordStore) Write(_ context.Context, record harvest.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[record.ID] = record
	return nil
}

// Get fetches a single record, mainly for tests and the status endpoint.
func (s *RecordStore) Get(_ context.Context, id harvest.Identifier) (harvest.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[id]
	if !ok {
		return harvest.Record{}, harvest.ErrRecordNotFound
	}
	return rec, nil
}
