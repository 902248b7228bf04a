package persistence

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/GriffinCanCode/HeadUnit/backend/internal/shared/types"
)

// MemoryStore keeps records in process memory
type MemoryStore struct {
	mu         sync.RWMutex
	records    map[types.RecordKey]*types.Record
	lastIgnOff time.Time
}

// NewMemoryStore creates an empty memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[types.RecordKey]*types.Record)}
}

// Load returns copies of all records ordered by key
func (s *MemoryStore) Load(ctx context.Context) ([]*types.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*types.Record, 0, len(s.records))
	for _, r := range s.records {
		out = append(out, r.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Key().String() < out[j].Key().String()
	})
	return out, nil
}

// Save replaces the stored record set
func (s *MemoryStore) Save(ctx context.Context, records []*types.Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	next := make(map[types.RecordKey]*types.Record, len(records))
	for _, r := range cloneRecords(records) {
		next[r.Key()] = r
	}

	s.mu.Lock()
	s.records = next
	s.mu.Unlock()
	return nil
}

// GetLastIgnOffTime returns the stored ignition-off time
func (s *MemoryStore) GetLastIgnOffTime(ctx context.Context) (time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastIgnOff, nil
}

// SetLastIgnOffTime stores the ignition-off time
func (s *MemoryStore) SetLastIgnOffTime(ctx context.Context, t time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastIgnOff = t
	return nil
}

// Close is a no-op
func (s *MemoryStore) Close() error {
	return nil
}
