package application

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/google/uuid"
	"github.com/viralforge/mesh/services/trust-compliance/M42-trust-layer-service/internal/domain"
	"github.com/viralforge/mesh/services/trust-compliance/M42-trust-layer-service/internal/ports"
)

func (s *Service) CreateEscrow(ctx context.Context, actor Actor, input CreateEscrowInput) (domain.EscrowDeal, error) {
	input.Payer = ownerOrSubject(input.Payer, actor)
	if err := requireSelfOrPrivileged(actor, input.Payer); err != nil {
		return domain.EscrowDeal{}, err
	}
	input.Payee = strings.TrimSpace(input.Payee)
	if input.Payee == "" || input.Payee == input.Payer {
		return domain.EscrowDeal{}, fmt.Errorf("%w: payee is required and must differ from payer", domain.ErrInvalidInput)
	}
	if input.TotalAmount <= 0 {
		return domain.EscrowDeal{}, fmt.Errorf("%w: total amount must be positive", domain.ErrInvalidInput)
	}
	if math.IsNaN(input.PerformanceThreshold) || input.PerformanceThreshold < 0 || input.PerformanceThreshold > 1 {
		return domain.EscrowDeal{}, fmt.Errorf("%w: performance threshold must be within [0,1]", domain.ErrInvalidInput)
	}
	return idempotent(ctx, s, actor, "create_escrow", input, func() (domain.EscrowDeal, error) {
		return s.createDeal(ctx, input)
	})
}

func (s *Service) createDeal(ctx context.Context, input CreateEscrowInput) (domain.EscrowDeal, error) {
	now := s.nowFn()
	deal := domain.EscrowDeal{
		DealID:               uuid.NewString(),
		Payer:                input.Payer,
		Payee:                input.Payee,
		TotalAmount:          input.TotalAmount,
		PerformanceThreshold: input.PerformanceThreshold,
		VerificationHash:     strings.TrimSpace(input.VerificationHash),
		Status:               domain.DealStatusPending,
		Metadata:             input.Metadata,
		CreatedAt:            now,
		UpdatedAt:            now,
	}
	if err := s.escrows.Create(ctx, deal); err != nil {
		return domain.EscrowDeal{}, err
	}
	deal.Version = 1
	return deal, nil
}

func (s *Service) ActivateDeal(ctx context.Context, actor Actor, dealID string) (domain.EscrowDeal, error) {
	if err := requireActor(actor); err != nil {
		return domain.EscrowDeal{}, err
	}
	dealID = strings.TrimSpace(dealID)
	unlock := s.locks.Lock(dealLockKey(dealID))
	defer unlock()

	deal, err := s.getDeal(ctx, dealID)
	if err != nil {
		return domain.EscrowDeal{}, err
	}
	if !actor.privileged() && actor.SubjectID != deal.Payer {
		return domain.EscrowDeal{}, domain.ErrForbidden
	}
	if err := deal.Activate(s.nowFn()); err != nil {
		return domain.EscrowDeal{}, err
	}
	if err := s.escrows.Update(ctx, deal); err != nil {
		return domain.EscrowDeal{}, err
	}
	deal.Version++
	return deal, nil
}

// ReleasePayment scores the proof against the deal threshold. Only a verifier
// moves funds; any other caller attaches the proof as evidence.
func (s *Service) ReleasePayment(ctx context.Context, actor Actor, input ReleaseEscrowInput) (domain.ReleaseResult, error) {
	if err := requireActor(actor); err != nil {
		return domain.ReleaseResult{}, err
	}
	input.DealID = strings.TrimSpace(input.DealID)
	if input.DealID == "" || input.MaxReleasable < 0 {
		return domain.ReleaseResult{}, fmt.Errorf("%w: deal id and non-negative cap required", domain.ErrInvalidInput)
	}
	return idempotent(ctx, s, actor, "release_payment", input, func() (domain.ReleaseResult, error) {
		return s.releaseDeal(ctx, actor, input)
	})
}

func (s *Service) releaseDeal(ctx context.Context, actor Actor, input ReleaseEscrowInput) (domain.ReleaseResult, error) {
	unlock := s.locks.Lock(dealLockKey(input.DealID))
	defer unlock()

	deal, err := s.getDeal(ctx, input.DealID)
	if err != nil {
		return domain.ReleaseResult{}, err
	}
	if !deal.Status.Releasable() {
		return domain.ReleaseResult{}, fmt.Errorf("%w: deal %s is %s", domain.ErrInvalidTransition, deal.DealID, deal.Status)
	}
	now := s.nowFn()
	score := domain.PerformanceScore(input.Proof)
	deal.Evidence = append(deal.Evidence, domain.EscrowEvidence{
		SubmittedBy: actor.SubjectID,
		Metrics:     input.Proof,
		Score:       score,
		SubmittedAt: now,
	})

	if !input.IsVerifier {
		deal.UpdatedAt = now
		if err := s.escrows.Update(ctx, deal); err != nil {
			return domain.ReleaseResult{}, err
		}
		deal.Version++
		return releaseResult(deal, 0, score, false), nil
	}

	plan := deal.PlanRelease(score, input.MaxReleasable)
	if plan.Release > 0 {
		callCtx, cancel := s.withExternalTimeout(ctx)
		_, err := s.ledger.Transfer(callCtx, escrowAccount(deal.DealID), deal.Payee, plan.Release, "escrow_release:"+deal.DealID)
		cancel()
		if err != nil {
			return domain.ReleaseResult{}, externalFailure("escrow release transfer", err)
		}
	}
	if err := deal.ApplyRelease(plan, now); err != nil {
		return domain.ReleaseResult{}, err
	}
	if err := s.escrows.Update(ctx, deal); err != nil {
		s.logError(ctx, "escrow release transferred but not persisted", "release_payment", err, "deal_id", deal.DealID, "released", plan.Release.String())
		return domain.ReleaseResult{}, err
	}
	deal.Version++
	if plan.Release > 0 {
		if _, err := s.balances.Adjust(ctx, deal.Payee, plan.Release, now); err != nil {
			s.warn(ctx, "payee balance credit failed", "release_payment", err, "deal_id", deal.DealID)
		}
		s.invalidateScore(ctx, deal.Payee)
	}

	success := score >= deal.PerformanceThreshold
	s.enqueueEscrowEvent(ctx, domain.EventEscrowReleased, deal, actor.RequestID)
	if deal.Status == domain.DealStatusSettled {
		s.enqueueEscrowEvent(ctx, domain.EventEscrowSettled, deal, actor.RequestID)
	}
	s.publishAudit(ctx, ports.AuditRecord{
		Kind:      "escrow_release",
		SubjectID: deal.Payee,
		Reference: deal.DealID,
		Payload: map[string]any{
			"score":             score,
			"released":          plan.Release.String(),
			"remaining":         deal.RemainingAmount().String(),
			"status":            string(deal.Status),
			"verification_hash": deal.VerificationHash,
		},
		OccurredAt: now,
	})
	return releaseResult(deal, plan.Release, score, success), nil
}

// SlashDeal closes a deal on proven fraud and returns the unreleased remainder
// to the payer.
func (s *Service) SlashDeal(ctx context.Context, actor Actor, input SlashDealInput) (domain.EscrowDeal, error) {
	if err := requireActor(actor); err != nil {
		return domain.EscrowDeal{}, err
	}
	if !input.IsArbitrator {
		return domain.EscrowDeal{}, domain.ErrArbitrationRequired
	}
	input.DealID = strings.TrimSpace(input.DealID)
	input.Reason = strings.TrimSpace(input.Reason)
	if input.DealID == "" || input.Reason == "" {
		return domain.EscrowDeal{}, fmt.Errorf("%w: deal id and reason are required", domain.ErrInvalidInput)
	}
	return idempotent(ctx, s, actor, "slash_deal", input, func() (domain.EscrowDeal, error) {
		return s.slashDeal(ctx, input.DealID, input.Reason, input.Evidence, actor.RequestID)
	})
}

func (s *Service) slashDeal(ctx context.Context, dealID, reason string, evidence []string, traceID string) (domain.EscrowDeal, error) {
	unlock := s.locks.Lock(dealLockKey(dealID))
	defer unlock()

	deal, err := s.getDeal(ctx, dealID)
	if err != nil {
		return domain.EscrowDeal{}, err
	}
	now := s.nowFn()
	if err := deal.Slash(reason, now); err != nil {
		return domain.EscrowDeal{}, err
	}
	if deal.SlashedAmount > 0 {
		callCtx, cancel := s.withExternalTimeout(ctx)
		_, err := s.ledger.Transfer(callCtx, escrowAccount(deal.DealID), deal.Payer, deal.SlashedAmount, "escrow_slash:"+deal.DealID)
		cancel()
		if err != nil {
			return domain.EscrowDeal{}, externalFailure("escrow slash refund", err)
		}
	}
	if err := s.escrows.Update(ctx, deal); err != nil {
		s.logError(ctx, "escrow slash refunded but not persisted", "slash_deal", err, "deal_id", deal.DealID)
		return domain.EscrowDeal{}, err
	}
	deal.Version++
	s.invalidateScore(ctx, deal.Payee)
	s.enqueueEscrowEvent(ctx, domain.EventEscrowSlashed, deal, traceID)
	s.publishAudit(ctx, ports.AuditRecord{
		Kind:      "escrow_slash",
		SubjectID: deal.Payee,
		Reference: deal.DealID,
		Payload: map[string]any{
			"reason":         reason,
			"evidence":       evidence,
			"slashed_amount": deal.SlashedAmount.String(),
		},
		OccurredAt: now,
	})
	return deal, nil
}

func (s *Service) GetDeal(ctx context.Context, dealID string) (domain.EscrowDeal, error) {
	return s.getDeal(ctx, strings.TrimSpace(dealID))
}

func (s *Service) GetUserDeals(ctx context.Context, owner string) ([]domain.EscrowDeal, error) {
	owner = strings.TrimSpace(owner)
	if owner == "" {
		return nil, domain.ErrInvalidInput
	}
	return s.escrows.ListByParty(ctx, owner)
}

func (s *Service) GetSlashingStatistics(ctx context.Context) (domain.SlashingStatistics, error) {
	deals, err := s.escrows.ListAll(ctx)
	if err != nil {
		return domain.SlashingStatistics{}, err
	}
	return domain.ComputeSlashingStatistics(deals), nil
}

func (s *Service) getDeal(ctx context.Context, dealID string) (domain.EscrowDeal, error) {
	if dealID == "" {
		return domain.EscrowDeal{}, domain.ErrInvalidInput
	}
	deal, err := s.escrows.GetByID(ctx, dealID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.EscrowDeal{}, fmt.Errorf("%w: %s", domain.ErrDealNotFound, dealID)
		}
		return domain.EscrowDeal{}, err
	}
	return deal, nil
}

func escrowAccount(dealID string) string { return "escrow:" + dealID }

func releaseResult(deal domain.EscrowDeal, released domain.Amount, score float64, success bool) domain.ReleaseResult {
	return domain.ReleaseResult{
		DealID:          deal.DealID,
		ReleasedAmount:  released,
		RemainingAmount: deal.RemainingAmount(),
		Success:         success,
		Score:           score,
		Status:          deal.Status,
	}
}
