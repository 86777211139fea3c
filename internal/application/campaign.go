package application

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/viralforge/mesh/services/trust-compliance/M42-trust-layer-service/internal/contracts"
	"github.com/viralforge/mesh/services/trust-compliance/M42-trust-layer-service/internal/domain"
	"golang.org/x/sync/errgroup"
)

// ExecuteCampaign runs the full campaign lifecycle: verify the brand's stake,
// reserve the discovery payment, match counterparties, open one escrow deal per
// match and settle each deal independently. Only a failed stake check aborts
// the run; individual deal failures are recorded in the result.
func (s *Service) ExecuteCampaign(ctx context.Context, actor Actor, input ExecuteCampaignInput) (domain.CampaignResult, error) {
	input.Brand = ownerOrSubject(input.Brand, actor)
	if err := requireSelfOrPrivileged(actor, input.Brand); err != nil {
		return domain.CampaignResult{}, err
	}
	if input.Budget <= 0 {
		return domain.CampaignResult{}, fmt.Errorf("%w: budget must be positive", domain.ErrInvalidInput)
	}
	if input.Budget > s.cfg.MaxCampaignBudget {
		return domain.CampaignResult{}, fmt.Errorf("%w: %s exceeds %s", domain.ErrBudgetExceeded, input.Budget, s.cfg.MaxCampaignBudget)
	}
	input.CampaignID = strings.TrimSpace(input.CampaignID)
	return idempotent(ctx, s, actor, "execute_campaign", input, func() (domain.CampaignResult, error) {
		if input.CampaignID == "" {
			input.CampaignID = uuid.NewString()
		}
		return s.executeCampaign(ctx, actor, input)
	})
}

func (s *Service) executeCampaign(ctx context.Context, actor Actor, input ExecuteCampaignInput) (domain.CampaignResult, error) {
	result := domain.CampaignResult{
		CampaignID:   input.CampaignID,
		Brand:        input.Brand,
		Budget:       input.Budget,
		RequiredTier: domain.RequiredTierForBudget(input.Budget),
		StartedAt:    s.nowFn(),
	}

	ok, err := s.VerifyStakingRequirements(ctx, input.Brand, result.RequiredTier)
	if err != nil {
		return domain.CampaignResult{}, err
	}
	if !ok {
		return domain.CampaignResult{}, fmt.Errorf("%w: %s requires %s stake", domain.ErrInsufficientStake, input.Brand, result.RequiredTier)
	}

	discovery, err := s.InitiateDiscoveryPayment(ctx, s.systemActor(actor.RequestID), DiscoveryInput{
		Brand:          input.Brand,
		CampaignID:     input.CampaignID,
		CampaignBudget: input.Budget,
	})
	if err != nil {
		return domain.CampaignResult{}, err
	}
	result.DiscoveryPaymentID = discovery.Payment.ID

	candidates := s.resolveCandidates(ctx, input.Candidates)
	matched, sybilRejected := domain.MatchCandidates(candidates, s.matchRequirements(input.Requirements))
	result.TrustMetrics.SybilDetected = sybilRejected

	if len(matched) > 0 {
		result.Deals = s.settleDeals(ctx, actor, input, matched)
	}
	result.CompletedAt = s.nowFn()
	result = domain.Summarize(result)

	if err := s.campaigns.Save(ctx, result); err != nil {
		s.logError(ctx, "campaign result not persisted", "execute_campaign", err, "campaign_id", result.CampaignID)
		return domain.CampaignResult{}, err
	}
	s.enqueueAfterCommit(ctx, domain.EventCampaignCompleted, actor.RequestID, result.CampaignID, contracts.CampaignCompletedPayload{
		CampaignID:      result.CampaignID,
		Brand:           result.Brand,
		Status:          string(result.Status),
		TotalDeals:      result.TotalDeals,
		SuccessfulDeals: result.SuccessfulDeals,
		TotalPayments:   result.TotalPayments.String(),
		AverageROI:      result.AverageROI,
	}, result.CompletedAt)
	return result, nil
}

func (s *Service) GetCampaign(ctx context.Context, campaignID string) (domain.CampaignResult, error) {
	campaignID = strings.TrimSpace(campaignID)
	if campaignID == "" {
		return domain.CampaignResult{}, domain.ErrInvalidInput
	}
	return s.campaigns.GetByID(ctx, campaignID)
}

func (s *Service) matchRequirements(in CampaignRequirements) domain.MatchRequirements {
	req := domain.MatchRequirements{
		MinReputation: s.cfg.DefaultMinReputation,
		MaxSybilRisk:  s.cfg.DefaultMaxSybilRisk,
		MinTier:       in.MinTier,
		MaxMatches:    in.MaxMatches,
	}
	if in.MinReputation != nil {
		req.MinReputation = *in.MinReputation
	}
	if in.MaxSybilRisk != nil {
		req.MaxSybilRisk = *in.MaxSybilRisk
	}
	if req.MaxMatches <= 0 {
		req.MaxMatches = s.cfg.CampaignMaxMatches
	}
	return req
}

// resolveCandidates fills in trust, reputation, sybil risk and tier for
// candidates that arrived without them.
func (s *Service) resolveCandidates(ctx context.Context, in []domain.Candidate) []domain.Candidate {
	out := make([]domain.Candidate, 0, len(in))
	for _, c := range in {
		c.ID = strings.TrimSpace(c.ID)
		if c.ID == "" {
			continue
		}
		if !c.SignalsKnown {
			score, report, err := s.computeTrust(ctx, c.ID)
			if err != nil {
				s.warn(ctx, "candidate trust unavailable, using neutral defaults", "resolve_candidate", err, "candidate", c.ID)
				signals := domain.NeutralSignals()
				c.TrustScore = domain.NeutralSignal
				c.Reputation = signals.Score
				c.SybilRisk = signals.SybilRisk
				c.Tier = domain.TierBasic
			} else {
				c.TrustScore = score.Composite
				c.Reputation = report.signals.Score
				c.SybilRisk = report.signals.SybilRisk
				c.Tier = report.stake.Tier
			}
			c.SignalsKnown = true
		}
		if c.Tier == "" {
			c.Tier = domain.TierBasic
		}
		out = append(out, c)
	}
	return out
}

// settleDeals opens an equal-split deal per match and settles them
// concurrently. Outcomes keep the match order.
func (s *Service) settleDeals(ctx context.Context, actor Actor, input ExecuteCampaignInput, matched []domain.MatchedCandidate) []domain.DealOutcome {
	share := input.Budget / domain.Amount(len(matched))
	outcomes := make([]domain.DealOutcome, len(matched))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.SettlementConcurrency)
	for i, m := range matched {
		g.Go(func() error {
			outcomes[i] = s.settleDeal(gctx, actor, input, m, share)
			return nil
		})
	}
	_ = g.Wait()
	return outcomes
}

func (s *Service) settleDeal(ctx context.Context, actor Actor, input ExecuteCampaignInput, m domain.MatchedCandidate, share domain.Amount) domain.DealOutcome {
	outcome := domain.DealOutcome{
		Payee:      m.ID,
		Allocated:  share,
		MatchScore: m.MatchScore,
		TrustScore: m.TrustScore,
	}
	fail := func(stage string, err error) domain.DealOutcome {
		s.warn(ctx, "campaign deal failed", "settle_deal", err, "campaign_id", input.CampaignID, "payee", m.ID, "stage", stage)
		outcome.Error = err.Error()
		return outcome
	}
	if share <= 0 {
		return fail("allocate", fmt.Errorf("%w: budget too small for %s", domain.ErrInvalidInput, m.ID))
	}

	deal, err := s.createDeal(ctx, CreateEscrowInput{
		Payer:                input.Brand,
		Payee:                m.ID,
		TotalAmount:          share,
		PerformanceThreshold: domain.CampaignPerformanceThreshold,
		VerificationHash:     input.VerificationHash,
		Metadata:             map[string]string{"campaign_id": input.CampaignID},
	})
	if err != nil {
		return fail("create", err)
	}
	outcome.DealID = deal.DealID
	outcome.Status = deal.Status
	system := s.systemActor(actor.RequestID)
	if deal, err = s.ActivateDeal(ctx, system, deal.DealID); err != nil {
		return fail("activate", err)
	}
	outcome.Status = deal.Status

	metrics, err := s.dealMetrics(ctx, input, deal)
	if err != nil {
		return fail("monitor", err)
	}

	if countEvidence(metrics.Evidence) >= s.cfg.FraudEvidenceThreshold {
		cond, _ := domain.LookupSlashCondition(domain.SlashFakeEngagement)
		if _, err := s.slashStake(ctx, m.ID, cond, metrics.Evidence, actor.RequestID); err != nil && !errors.Is(err, domain.ErrInsufficientStake) {
			return fail("slash_stake", err)
		}
		slashed, err := s.slashDeal(ctx, deal.DealID, string(domain.SlashFakeEngagement), metrics.Evidence, actor.RequestID)
		if err != nil {
			return fail("slash_deal", err)
		}
		outcome.Status = slashed.Status
		outcome.Slashed = true
		return outcome
	}

	release, err := s.releaseDeal(ctx, system, ReleaseEscrowInput{
		DealID:     deal.DealID,
		Proof:      metrics,
		IsVerifier: true,
	})
	if err != nil {
		return fail("release", err)
	}
	outcome.Released = release.ReleasedAmount
	outcome.Score = release.Score
	outcome.Status = release.Status
	outcome.Success = release.Success
	return outcome
}

func (s *Service) dealMetrics(ctx context.Context, input ExecuteCampaignInput, deal domain.EscrowDeal) (domain.PerformanceMetrics, error) {
	if m, ok := input.Performance[deal.Payee]; ok {
		return m, nil
	}
	if s.monitor == nil {
		return domain.PerformanceMetrics{}, fmt.Errorf("%w: no performance proof for %s", domain.ErrInvalidInput, deal.Payee)
	}
	callCtx, cancel := s.withExternalTimeout(ctx)
	defer cancel()
	m, err := s.monitor.Metrics(callCtx, deal.DealID, deal.Payee)
	if err != nil {
		return domain.PerformanceMetrics{}, externalFailure("performance metrics", err)
	}
	return m, nil
}

func countEvidence(evidence []string) int {
	n := 0
	for _, e := range evidence {
		if strings.TrimSpace(e) != "" {
			n++
		}
	}
	return n
}
