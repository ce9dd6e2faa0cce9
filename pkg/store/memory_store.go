package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/hyperledger-archives/quilt-sub000/pkg/conditions"
)

// MemoryStore implements Store in process memory.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]*Record
	now     func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[string]*Record),
		now:     time.Now,
	}
}

func (s *MemoryStore) Put(_ context.Context, c conditions.Condition) (*Record, error) {
	rec, err := NewRecord(c, s.now())
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.records[rec.URI]; ok {
		return existing.clone(), nil
	}
	s.records[rec.URI] = rec
	return rec.clone(), nil
}

func (s *MemoryStore) Get(_ context.Context, uri string) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[uri]
	if !ok {
		return nil, ErrNotFound
	}
	return rec.clone(), nil
}

func (s *MemoryStore) MarkFulfilled(_ context.Context, uri string, fulfillment []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[uri]
	if !ok {
		return ErrNotFound
	}
	if rec.State == StateFulfilled {
		return ErrAlreadyFulfilled
	}
	rec.State = StateFulfilled
	rec.Fulfillment = append([]byte(nil), fulfillment...)
	rec.UpdatedAt = s.now().UTC()
	return nil
}

func (s *MemoryStore) ListPending(_ context.Context, limit int) ([]*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Record
	for _, rec := range s.records {
		if rec.State == StatePending {
			out = append(out, rec.clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].URI < out[j].URI
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) Close() error {
	return nil
}
