package presets

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultProgressTTL is how long a snapshot outlives its last update.
const DefaultProgressTTL = time.Hour

// ProgressStore keeps the latest provisioning snapshot per tenant.
type ProgressStore interface {
	Save(ctx context.Context, tenantID string, snap Snapshot) error
	// Load returns false when no snapshot exists for the tenant.
	Load(ctx context.Context, tenantID string) (Snapshot, bool, error)
}

// ProgressKey is the Redis key holding a tenant's snapshot.
func ProgressKey(tenantID string) string {
	return "onboarding:progress:" + tenantID
}

// RedisProgressStore stores snapshots as JSON strings with a TTL.
type RedisProgressStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisProgressStore wraps client. A non-positive ttl uses DefaultProgressTTL.
func NewRedisProgressStore(client *redis.Client, ttl time.Duration) *RedisProgressStore {
	if ttl <= 0 {
		ttl = DefaultProgressTTL
	}
	return &RedisProgressStore{client: client, ttl: ttl}
}

// Save implements ProgressStore.
func (s *RedisProgressStore) Save(ctx context.Context, tenantID string, snap Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshaling progress: %w", err)
	}
	if err := s.client.Set(ctx, ProgressKey(tenantID), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("saving progress: %w", err)
	}
	return nil
}

// Load implements ProgressStore.
func (s *RedisProgressStore) Load(ctx context.Context, tenantID string) (Snapshot, bool, error) {
	data, err := s.client.Get(ctx, ProgressKey(tenantID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Snapshot{}, false, nil
		}
		return Snapshot{}, false, fmt.Errorf("loading progress: %w", err)
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return Snapshot{}, false, fmt.Errorf("unmarshaling progress: %w", err)
	}
	return snap, true, nil
}

type memoryEntry struct {
	snap    Snapshot
	expires time.Time
}

// MemoryProgressStore is an in-process ProgressStore for tests and single
// node development setups.
type MemoryProgressStore struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	ttl     time.Duration
	now     func() time.Time
}

// NewMemoryProgressStore creates an empty store. A non-positive ttl uses
// DefaultProgressTTL.
func NewMemoryProgressStore(ttl time.Duration) *MemoryProgressStore {
	if ttl <= 0 {
		ttl = DefaultProgressTTL
	}
	return &MemoryProgressStore{
		entries: make(map[string]memoryEntry),
		ttl:     ttl,
		now:     time.Now,
	}
}

// Save implements ProgressStore.
func (s *MemoryProgressStore) Save(_ context.Context, tenantID string, snap Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[tenantID] = memoryEntry{snap: snap, expires: s.now().Add(s.ttl)}
	return nil
}

// Load implements ProgressStore.
func (s *MemoryProgressStore) Load(_ context.Context, tenantID string) (Snapshot, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[tenantID]
	if !ok {
		return Snapshot{}, false, nil
	}
	if !s.now().Before(e.expires) {
		delete(s.entries, tenantID)
		return Snapshot{}, false, nil
	}
	return e.snap, true, nil
}
