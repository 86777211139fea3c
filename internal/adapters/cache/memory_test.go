package cache

import (
	"context"
	"testing"
	"time"

	"github.com/viralforge/mesh/services/trust-compliance/M42-trust-layer-service/internal/domain"
)

func TestMemoryTrustScoreCacheExpiresEntries(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewMemoryTrustScoreCache(func() time.Time { return now })
	ctx := context.Background()

	if err := c.Set(ctx, domain.TrustScore{Owner: "alice", Composite: 0.8}, 30*time.Second); err != nil {
		t.Fatalf("set: %v", err)
	}
	got, ok, err := c.Get(ctx, "alice")
	if err != nil || !ok || got.Composite != 0.8 {
		t.Fatalf("expected cached score, got %+v ok=%v err=%v", got, ok, err)
	}

	now = now.Add(31 * time.Second)
	if _, ok, _ := c.Get(ctx, "alice"); ok {
		t.Fatalf("expected entry to expire")
	}
}

func TestMemoryTrustScoreCacheInvalidate(t *testing.T) {
	t.Parallel()
	c := NewMemoryTrustScoreCache(nil)
	ctx := context.Background()
	_ = c.Set(ctx, domain.TrustScore{Owner: "bob"}, time.Minute)
	if err := c.Invalidate(ctx, "bob"); err != nil {
		t.Fatalf("invalidate: %v", err)
	}
	if _, ok, _ := c.Get(ctx, "bob"); ok {
		t.Fatalf("expected entry to be gone")
	}
}
