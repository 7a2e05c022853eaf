package store

import (
	"context"
	"maps"
	"reflect"
	"sync"
	"time"
)

// MemoryStore keeps records in process. Used by tests and local runs.
type MemoryStore struct {
	mu     sync.RWMutex
	tables map[string][]Record
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{tables: make(map[string][]Record)}
}

func (s *MemoryStore) Query(_ context.Context, table string, filters Fields) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Record
	for _, r := range s.tables[table] {
		if matches(r, filters) {
			out = append(out, maps.Clone(r))
		}
	}
	return out, nil
}

func (s *MemoryStore) Patch(_ context.Context, table string, filters, fields Fields) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, r := range s.tables[table] {
		if !matches(r, filters) {
			continue
		}
		for k, v := range fields {
			r[k] = normalize(v)
		}
		n++
	}
	return n, nil
}

func (s *MemoryStore) Create(_ context.Context, table string, fields Fields) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := make(Record, len(fields))
	for k, v := range fields {
		r[k] = normalize(v)
	}
	s.tables[table] = append(s.tables[table], r)
	return nil
}

// RunInTx runs fn directly; writes are not rolled back.
func (s *MemoryStore) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

// Count returns the number of records in table.
func (s *MemoryStore) Count(table string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.tables[table])
}

func matches(r Record, filters Fields) bool {
	for k, want := range filters {
		if !equal(r[k], normalize(want)) {
			return false
		}
	}
	return true
}

func equal(a, b any) bool {
	if ta, ok := a.(time.Time); ok {
		tb, ok := b.(time.Time)
		return ok && ta.Equal(tb)
	}
	return reflect.DeepEqual(a, b)
}
