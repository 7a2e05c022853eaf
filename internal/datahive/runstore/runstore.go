// Package runstore keeps run summaries so a finished run can be looked up by
// id after the trigger request has returned.
package runstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"recon/internal/datahive/models"
	"recon/pkg/platform/sentinel"
)

// DefaultTTL is how long a run stays retrievable.
const DefaultTTL = 7 * 24 * time.Hour

const keyPrefix = "recon:run:"

// RedisStore keeps each summary as one JSON value with a TTL.
type RedisStore struct {
	client redis.Cmdable
	ttl    time.Duration
}

func NewRedisStore(client redis.Cmdable, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisStore{client: client, ttl: ttl}
}

func (s *RedisStore) Save(ctx context.Context, summary *models.RunSummary) error {
	raw, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("encoding run %s: %w", summary.RunID, err)
	}
	if err := s.client.Set(ctx, keyPrefix+summary.RunID, raw, s.ttl).Err(); err != nil {
		return fmt.Errorf("saving run %s: %w", summary.RunID, err)
	}
	return nil
}

// Get returns sentinel.ErrNotFound for unknown or expired runs.
func (s *RedisStore) Get(ctx context.Context, runID string) (*models.RunSummary, error) {
	raw, err := s.client.Get(ctx, keyPrefix+runID).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("run %s: %w", runID, sentinel.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("loading run %s: %w", runID, err)
	}
	var summary models.RunSummary
	if err := json.Unmarshal(raw, &summary); err != nil {
		return nil, fmt.Errorf("decoding run %s: %w", runID, err)
	}
	return &summary, nil
}

// MemoryStore keeps summaries in process. Entries do not expire.
type MemoryStore struct {
	mu   sync.RWMutex
	runs map[string]*models.RunSummary
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{runs: make(map[string]*models.RunSummary)}
}

func (s *MemoryStore) Save(_ context.Context, summary *models.RunSummary) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *summary
	s.runs[summary.RunID] = &cp
	return nil
}

func (s *MemoryStore) Get(_ context.Context, runID string) (*models.RunSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	summary, ok := s.runs[runID]
	if !ok {
		return nil, fmt.Errorf("run %s: %w", runID, sentinel.ErrNotFound)
	}
	cp := *summary
	return &cp, nil
}
