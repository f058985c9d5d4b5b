package lockout

import (
	"context"
	"sync"
	"time"

	"civicgate/pkg/requestcontext"
)

// InMemoryStore keeps lockout records in a process-local map. State is lost on
// restart, which this threat model accepts: a restart clears all lockouts.
type InMemoryStore struct {
	mu      sync.Mutex
	records map[string]*Record
}

// NewInMemoryStore creates an empty in-memory lockout store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		records: make(map[string]*Record),
	}
}

func (s *InMemoryStore) RecordFailure(ctx context.Context, identifier string) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	record := s.records[identifier]
	if record == nil {
		record = &Record{Identifier: identifier}
		s.records[identifier] = record
	}
	record.FailedAttempts++
	record.LastAttemptAt = requestcontext.Now(ctx)

	return cloneRecord(record), nil
}

func (s *InMemoryStore) Get(ctx context.Context, identifier string) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	record := s.records[identifier]
	if record == nil {
		return nil, nil
	}
	return cloneRecord(record), nil
}

func (s *InMemoryStore) Update(ctx context.Context, record *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records[record.Identifier] = cloneRecord(record)
	return nil
}

func (s *InMemoryStore) Clear(ctx context.Context, identifier string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.records, identifier)
	return nil
}

func (s *InMemoryStore) DeleteStale(ctx context.Context, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for identifier, record := range s.records {
		if record.LastAttemptAt.Before(cutoff) {
			delete(s.records, identifier)
			removed++
		}
	}
	return removed, nil
}

// cloneRecord copies a record so callers never share memory with the map.
func cloneRecord(record *Record) *Record {
	clone := *record
	if record.LockedUntil != nil {
		until := *record.LockedUntil
		clone.LockedUntil = &until
	}
	return &clone
}
