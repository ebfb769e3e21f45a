package channel

import (
	"context"
	"sync"
	"time"

	"github.com/BaSui01/canvasflow/internal/cache"
)

// SnapshotStore keeps the latest snapshot per execution.
type SnapshotStore interface {
	Get(ctx context.Context, executionID string) (*Snapshot, bool, error)
	Put(ctx context.Context, executionID string, snap *Snapshot) error
	Delete(ctx context.Context, executionID string) error
}

// StoreMetrics observes store lookups. May be nil.
type StoreMetrics interface {
	RecordSnapshotHit(store string)
	RecordSnapshotMiss(store string)
}

// MemoryStore is a bounded in-memory snapshot store. When full, the
// execution with the oldest write is evicted.
type MemoryStore struct {
	mu         sync.Mutex
	snaps      map[string]*Snapshot
	writtenAt  map[string]time.Time
	maxEntries int
	metrics    StoreMetrics
}

// NewMemoryStore creates a store holding at most maxEntries executions.
// maxEntries <= 0 defaults to 1024. metrics may be nil.
func NewMemoryStore(maxEntries int, metrics StoreMetrics) *MemoryStore {
	if maxEntries <= 0 {
		maxEntries = 1024
	}
	return &MemoryStore{
		snaps:      make(map[string]*Snapshot),
		writtenAt:  make(map[string]time.Time),
		maxEntries: maxEntries,
		metrics:    metrics,
	}
}

func (s *MemoryStore) Get(_ context.Context, executionID string) (*Snapshot, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap, ok := s.snaps[executionID]
	if !ok {
		if s.metrics != nil {
			s.metrics.RecordSnapshotMiss("memory")
		}
		return nil, false, nil
	}
	if s.metrics != nil {
		s.metrics.RecordSnapshotHit("memory")
	}
	cp := *snap
	return &cp, true, nil
}

func (s *MemoryStore) Put(_ context.Context, executionID string, snap *Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.snaps[executionID]; !exists && len(s.snaps) >= s.maxEntries {
		s.evictOldest()
	}

	cp := *snap
	s.snaps[executionID] = &cp
	s.writtenAt[executionID] = time.Now()
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, executionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.snaps, executionID)
	delete(s.writtenAt, executionID)
	return nil
}

// Len reports the number of stored executions.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.snaps)
}

// evictOldest removes the least recently written execution. Caller holds
// the lock.
func (s *MemoryStore) evictOldest() {
	var oldestID string
	var oldest time.Time
	for id, at := range s.writtenAt {
		if oldestID == "" || at.Before(oldest) {
			oldestID = id
			oldest = at
		}
	}
	if oldestID != "" {
		delete(s.snaps, oldestID)
		delete(s.writtenAt, oldestID)
	}
}

// RedisStore keeps snapshots in redis with a TTL, surviving process
// restarts and shared across instances.
type RedisStore struct {
	cache   *cache.Manager
	ttl     time.Duration
	metrics StoreMetrics
}

// NewRedisStore creates a redis-backed store. ttl <= 0 uses the cache
// manager's default. metrics may be nil.
func NewRedisStore(manager *cache.Manager, ttl time.Duration, metrics StoreMetrics) *RedisStore {
	return &RedisStore{cache: manager, ttl: ttl, metrics: metrics}
}

func snapshotKey(executionID string) string {
	return "execsnap:" + executionID
}

func (s *RedisStore) Get(ctx context.Context, executionID string) (*Snapshot, bool, error) {
	var snap Snapshot
	err := s.cache.GetJSON(ctx, snapshotKey(executionID), &snap)
	if cache.IsCacheMiss(err) {
		if s.metrics != nil {
			s.metrics.RecordSnapshotMiss("redis")
		}
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	if s.metrics != nil {
		s.metrics.RecordSnapshotHit("redis")
	}
	return &snap, true, nil
}

func (s *RedisStore) Put(ctx context.Context, executionID string, snap *Snapshot) error {
	return s.cache.SetJSON(ctx, snapshotKey(executionID), snap, s.ttl)
}

func (s *RedisStore) Delete(ctx context.Context, executionID string) error {
	return s.cache.Delete(ctx, snapshotKey(executionID))
}
