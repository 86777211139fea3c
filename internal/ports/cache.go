package ports

import (
	"context"
	"time"

	"github.com/viralforge/mesh/services/trust-compliance/M42-trust-layer-service/internal/domain"
)

type TrustScoreCache interface {
	Get(ctx context.Context, owner string) (domain.TrustScore, bool, error)
	Set(ctx context.Context, score domain.TrustScore, ttl time.Duration) error
	Invalidate(ctx context.Context, owner string) error
}
