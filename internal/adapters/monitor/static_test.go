package monitor

import (
	"context"
	"errors"
	"testing"

	"github.com/viralforge/mesh/services/trust-compliance/M42-trust-layer-service/internal/domain"
)

func TestStaticMetrics(t *testing.T) {
	t.Parallel()

	m := NewStatic()
	m.Record("bob", domain.PerformanceMetrics{EngagementRate: 0.06, Evidence: []string{"e1"}})

	got, err := m.Metrics(context.Background(), "deal-1", "bob")
	if err != nil {
		t.Fatalf("metrics: %v", err)
	}
	got.Evidence[0] = "mutated"
	again, _ := m.Metrics(context.Background(), "deal-1", "bob")
	if again.Evidence[0] != "e1" {
		t.Fatalf("expected stored evidence to be isolated from callers")
	}
	if _, err := m.Metrics(context.Background(), "deal-2", "carol"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}
