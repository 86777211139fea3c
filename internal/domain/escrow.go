package domain

import (
	"fmt"
	"math"
	"time"
)

type DealStatus string

const (
	DealStatusPending  DealStatus = "PENDING"
	DealStatusActive   DealStatus = "ACTIVE"
	DealStatusSettled  DealStatus = "SETTLED"
	DealStatusDisputed DealStatus = "DISPUTED"
	DealStatusSlashed  DealStatus = "SLASHED"
)

// Releasable reports whether funds may still move out of a deal in this state.
func (s DealStatus) Releasable() bool {
	return s == DealStatusActive || s == DealStatusDisputed
}

func (s DealStatus) Terminal() bool {
	return s == DealStatusSettled || s == DealStatusSlashed
}

type EscrowEvidence struct {
	SubmittedBy string
	Metrics     PerformanceMetrics
	Score       float64
	SubmittedAt time.Time
}

type EscrowDeal struct {
	DealID               string
	Payer                string
	Payee                string
	TotalAmount          Amount
	ReleasedAmount       Amount
	SlashedAmount        Amount
	PerformanceThreshold float64
	VerificationHash     string
	Status               DealStatus
	Metadata             map[string]string
	Evidence             []EscrowEvidence
	LastScore            float64
	SlashReason          string
	Version              int64
	CreatedAt            time.Time
	ActivatedAt          *time.Time
	UpdatedAt            time.Time
}

// RemainingAmount is the committed value not yet released to the payee.
// ReleasedAmount + RemainingAmount always equals TotalAmount.
func (d EscrowDeal) RemainingAmount() Amount { return d.TotalAmount - d.ReleasedAmount }

func (d *EscrowDeal) Activate(now time.Time) error {
	if d.Status != DealStatusPending {
		return fmt.Errorf("%w: deal %s is %s", ErrInvalidTransition, d.DealID, d.Status)
	}
	d.Status = DealStatusActive
	d.ActivatedAt = &now
	d.UpdatedAt = now
	return nil
}

// PerformanceScore normalises each metric against its success-bonus target
// and combines them 0.4/0.3/0.3 into [0,1].
func PerformanceScore(m PerformanceMetrics) float64 {
	engagement := math.Min(1, math.Max(0, m.EngagementRate)/EngagementRateTarget)
	conversions := math.Min(1, math.Max(0, float64(m.Conversions))/ConversionsTarget)
	quality := math.Min(1, math.Max(0, m.QualityRating)/QualityRatingTarget)
	return ClampScore(0.4*engagement + 0.3*conversions + 0.3*quality)
}

type ReleasePlan struct {
	Score      float64
	Release    Amount
	NextStatus DealStatus
}

// PlanRelease decides how much to release for a verified score.
// maxReleasable <= 0 means no external cap.
func (d EscrowDeal) PlanRelease(score float64, maxReleasable Amount) ReleasePlan {
	capAmount := d.RemainingAmount()
	if maxReleasable > 0 {
		capAmount = minAmount(capAmount, maxReleasable)
	}
	plan := ReleasePlan{Score: score}
	switch {
	case score >= d.PerformanceThreshold:
		plan.Release = capAmount
		plan.NextStatus = DealStatusActive
		if d.ReleasedAmount+capAmount == d.TotalAmount {
			plan.NextStatus = DealStatusSettled
		}
	case score >= d.PerformanceThreshold/2:
		bp := int64(math.Floor(score / d.PerformanceThreshold * 10_000))
		plan.Release = capAmount.MulBasisPoints(bp)
		plan.NextStatus = DealStatusDisputed
	default:
		plan.NextStatus = DealStatusDisputed
	}
	return plan
}

func (d *EscrowDeal) ApplyRelease(plan ReleasePlan, now time.Time) error {
	if !d.Status.Releasable() {
		return fmt.Errorf("%w: deal %s is %s", ErrInvalidTransition, d.DealID, d.Status)
	}
	if plan.Release < 0 || plan.Release > d.RemainingAmount() {
		return fmt.Errorf("%w: release %s exceeds remaining %s", ErrInvalidInput, plan.Release, d.RemainingAmount())
	}
	d.ReleasedAmount += plan.Release
	d.LastScore = plan.Score
	d.Status = plan.NextStatus
	d.UpdatedAt = now
	return nil
}

// Slash closes the deal and returns the unreleased remainder to the payer.
func (d *EscrowDeal) Slash(reason string, now time.Time) error {
	if !d.Status.Releasable() {
		return fmt.Errorf("%w: deal %s is %s", ErrInvalidTransition, d.DealID, d.Status)
	}
	d.SlashedAmount = d.RemainingAmount()
	d.SlashReason = reason
	d.Status = DealStatusSlashed
	d.UpdatedAt = now
	return nil
}

type ReleaseResult struct {
	DealID          string
	ReleasedAmount  Amount
	RemainingAmount Amount
	Success         bool
	Score           float64
	Status          DealStatus
}

type SlashingStatistics struct {
	TotalDeals         int
	ActiveDeals        int
	SettledDeals       int
	DisputedDeals      int
	SlashedDeals       int
	TotalCommitted     Amount
	TotalReleased      Amount
	TotalSlashedAmount Amount
	SlashRate          float64
}

func ComputeSlashingStatistics(deals []EscrowDeal) SlashingStatistics {
	var out SlashingStatistics
	for _, d := range deals {
		out.TotalDeals++
		out.TotalCommitted += d.TotalAmount
		out.TotalReleased += d.ReleasedAmount
		switch d.Status {
		case DealStatusActive:
			out.ActiveDeals++
		case DealStatusSettled:
			out.SettledDeals++
		case DealStatusDisputed:
			out.DisputedDeals++
		case DealStatusSlashed:
			out.SlashedDeals++
			out.TotalSlashedAmount += d.SlashedAmount
		}
	}
	if out.TotalDeals > 0 {
		out.SlashRate = float64(out.SlashedDeals) / float64(out.TotalDeals)
	}
	return out
}
