package application

import (
	"context"
	"math"
	"strings"

	"github.com/viralforge/mesh/services/trust-compliance/M42-trust-layer-service/internal/domain"
)

// CalculateTrustScore serves a cached score when one is fresh and otherwise
// recomputes it from stake, payment history and reputation signals.
// Degraded scores are returned but never cached.
func (s *Service) CalculateTrustScore(ctx context.Context, owner string) (domain.TrustScore, error) {
	owner = strings.TrimSpace(owner)
	if owner == "" {
		return domain.TrustScore{}, domain.ErrInvalidInput
	}
	if s.scoreCache != nil {
		cached, ok, err := s.scoreCache.Get(ctx, owner)
		if err != nil {
			s.warn(ctx, "trust score cache read failed", "calculate_trust_score", err, "owner", owner)
		} else if ok {
			return cached, nil
		}
	}
	score, _, err := s.computeTrust(ctx, owner)
	if err != nil {
		return domain.TrustScore{}, err
	}
	if s.scoreCache != nil && !score.Degraded {
		if err := s.scoreCache.Set(ctx, score, s.cfg.TrustCacheTTL); err != nil {
			s.warn(ctx, "trust score cache write failed", "calculate_trust_score", err, "owner", owner)
		}
	}
	return score, nil
}

func (s *Service) GenerateTrustReport(ctx context.Context, owner string) (domain.TrustReport, error) {
	owner = strings.TrimSpace(owner)
	if owner == "" {
		return domain.TrustReport{}, domain.ErrInvalidInput
	}
	score, in, err := s.computeTrust(ctx, owner)
	if err != nil {
		return domain.TrustReport{}, err
	}
	return domain.TrustReport{
		Owner:           owner,
		Score:           score,
		Stake:           in.stake,
		Payments:        in.payments,
		Signals:         in.signals,
		RiskLevel:       domain.RiskLevel(score.Composite),
		Recommendations: domain.Recommendations(in.stake, in.payments, in.signals),
		GeneratedAt:     score.CalculatedAt,
	}, nil
}

type trustInputs struct {
	stake    domain.StakeAccount
	payments domain.PaymentStatistics
	signals  domain.TrustSignals
}

func (s *Service) computeTrust(ctx context.Context, owner string) (domain.TrustScore, trustInputs, error) {
	acc, _, err := s.loadStake(ctx, owner)
	if err != nil {
		return domain.TrustScore{}, trustInputs{}, err
	}
	history, err := s.payments.ListByUser(ctx, owner)
	if err != nil {
		return domain.TrustScore{}, trustInputs{}, err
	}
	in := trustInputs{
		stake:    acc,
		payments: domain.ComputePaymentStatistics(owner, history),
		signals:  s.signalsFor(ctx, owner),
	}
	return domain.ComputeTrustScore(owner, in.stake, in.payments, in.signals, s.nowFn()), in, nil
}

// signalsFor never fails: an unreachable or slow reputation source yields
// neutral signals flagged as degraded.
func (s *Service) signalsFor(ctx context.Context, owner string) domain.TrustSignals {
	if s.reputation == nil {
		return domain.NeutralSignals()
	}
	callCtx, cancel := s.withExternalTimeout(ctx)
	defer cancel()
	signals, err := s.reputation.Query(callCtx, owner)
	if err != nil {
		s.warn(ctx, "reputation signals unavailable, using neutral defaults", "query_reputation", err, "owner", owner)
		return domain.NeutralSignals()
	}
	if math.IsNaN(signals.Score) || math.IsNaN(signals.SybilRisk) {
		s.warn(ctx, "reputation signals not numeric, using neutral defaults", "query_reputation", domain.ErrExternalService, "owner", owner)
		return domain.NeutralSignals()
	}
	signals.Score = domain.ClampScore(signals.Score)
	signals.SybilRisk = domain.ClampScore(signals.SybilRisk)
	return signals
}

func (s *Service) invalidateScore(ctx context.Context, owner string) {
	if s.scoreCache == nil || strings.TrimSpace(owner) == "" {
		return
	}
	if err := s.scoreCache.Invalidate(ctx, owner); err != nil {
		s.warn(ctx, "trust score cache invalidation failed", "invalidate_trust_score", err, "owner", owner)
	}
}
