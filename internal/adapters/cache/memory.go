package cache

import (
	"context"
	"sync"
	"time"

	"github.com/viralforge/mesh/services/trust-compliance/M42-trust-layer-service/internal/domain"
)

type memoryEntry struct {
	score     domain.TrustScore
	expiresAt time.Time
}

// MemoryTrustScoreCache is the process-local cache used without Redis.
type MemoryTrustScoreCache struct {
	mu    sync.Mutex
	rows  map[string]memoryEntry
	nowFn func() time.Time
}

func NewMemoryTrustScoreCache(nowFn func() time.Time) *MemoryTrustScoreCache {
	if nowFn == nil {
		nowFn = func() time.Time { return time.Now().UTC() }
	}
	return &MemoryTrustScoreCache{rows: map[string]memoryEntry{}, nowFn: nowFn}
}

func (c *MemoryTrustScoreCache) Get(_ context.Context, owner string) (domain.TrustScore, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.rows[owner]
	if !ok {
		return domain.TrustScore{}, false, nil
	}
	if !c.nowFn().Before(entry.expiresAt) {
		delete(c.rows, owner)
		return domain.TrustScore{}, false, nil
	}
	return entry.score, true, nil
}

func (c *MemoryTrustScoreCache) Set(_ context.Context, score domain.TrustScore, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rows[score.Owner] = memoryEntry{score: score, expiresAt: c.nowFn().Add(ttl)}
	return nil
}

func (c *MemoryTrustScoreCache) Invalidate(_ context.Context, owner string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.rows, owner)
	return nil
}
