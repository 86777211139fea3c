package monitor

import (
	"context"
	"fmt"
	"sync"

	"github.com/viralforge/mesh/services/trust-compliance/M42-trust-layer-service/internal/domain"
)

// Static reports metrics recorded per payee. Unknown payees fail so a deal is
// never released on invented numbers.
type Static struct {
	mu      sync.RWMutex
	byPayee map[string]domain.PerformanceMetrics
}

func NewStatic() *Static {
	return &Static{byPayee: make(map[string]domain.PerformanceMetrics)}
}

func (s *Static) Record(payee string, m domain.PerformanceMetrics) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m.Evidence = append([]string(nil), m.Evidence...)
	s.byPayee[payee] = m
}

func (s *Static) Metrics(_ context.Context, _ string, payee string) (domain.PerformanceMetrics, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.byPayee[payee]
	if !ok {
		return domain.PerformanceMetrics{}, fmt.Errorf("%w: no metrics recorded for %s", domain.ErrNotFound, payee)
	}
	m.Evidence = append([]string(nil), m.Evidence...)
	return m, nil
}
