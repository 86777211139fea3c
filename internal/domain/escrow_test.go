package domain

import (
	"errors"
	"math"
	"testing"
)

func activeDeal(total Amount, threshold float64) EscrowDeal {
	return EscrowDeal{DealID: "deal-1", Payer: "brand", Payee: "creator", TotalAmount: total, PerformanceThreshold: threshold, Status: DealStatusActive}
}

func TestPerformanceScore(t *testing.T) {
	t.Parallel()

	if got := PerformanceScore(PerformanceMetrics{EngagementRate: 0.05, Conversions: 100, QualityRating: 4.5}); got != 1 {
		t.Fatalf("expected perfect score, got %v", got)
	}
	if got := PerformanceScore(PerformanceMetrics{EngagementRate: 0.5, Conversions: 10_000, QualityRating: 5}); got != 1 {
		t.Fatalf("metrics above target must saturate, got %v", got)
	}
	if got := PerformanceScore(PerformanceMetrics{EngagementRate: -1, Conversions: -5}); got != 0 {
		t.Fatalf("negative metrics must floor at zero, got %v", got)
	}
	got := PerformanceScore(PerformanceMetrics{EngagementRate: 0.025, Conversions: 50, QualityRating: 2.25})
	if math.Abs(got-0.5) > 1e-9 {
		t.Fatalf("expected half score, got %v", got)
	}
}

func TestPlanReleaseBranches(t *testing.T) {
	t.Parallel()

	deal := activeDeal(Whole(100), 0.7)

	full := deal.PlanRelease(0.9, 0)
	if full.Release != Whole(100) || full.NextStatus != DealStatusSettled {
		t.Fatalf("expected full settlement, got %+v", full)
	}

	capped := deal.PlanRelease(0.9, Whole(10))
	if capped.Release != Whole(10) || capped.NextStatus != DealStatusActive {
		t.Fatalf("expected capped release to keep deal active, got %+v", capped)
	}

	partial := deal.PlanRelease(0.5, 0)
	if partial.NextStatus != DealStatusDisputed || partial.Release != 71_420_000 {
		t.Fatalf("expected proportional release 71.42, got %+v", partial)
	}

	none := deal.PlanRelease(0.2, 0)
	if none.Release != 0 || none.NextStatus != DealStatusDisputed {
		t.Fatalf("expected no release below half threshold, got %+v", none)
	}

	disputed := activeDeal(Whole(100), 0.7)
	disputed.Status = DealStatusDisputed
	recovered := disputed.PlanRelease(0.9, Whole(10))
	if recovered.Release != Whole(10) || recovered.NextStatus != DealStatusActive {
		t.Fatalf("expected a passing proof to return a disputed deal to ACTIVE, got %+v", recovered)
	}
}

func TestReleaseConservesFunds(t *testing.T) {
	t.Parallel()

	deal := activeDeal(Whole(100), 0.7)
	for _, score := range []float64{0.5, 0.4, 0.36, 0.9} {
		plan := deal.PlanRelease(score, 0)
		if err := deal.ApplyRelease(plan, testNow); err != nil {
			t.Fatalf("release at %v: %v", score, err)
		}
		if deal.ReleasedAmount+deal.RemainingAmount() != deal.TotalAmount {
			t.Fatalf("released %s + remaining %s != total", deal.ReleasedAmount, deal.RemainingAmount())
		}
		if deal.ReleasedAmount > deal.TotalAmount {
			t.Fatalf("over-release %s", deal.ReleasedAmount)
		}
	}
	if deal.Status != DealStatusSettled || deal.RemainingAmount() != 0 {
		t.Fatalf("expected settled deal, got %s remaining %s", deal.Status, deal.RemainingAmount())
	}
	if err := deal.ApplyRelease(ReleasePlan{Release: 1}, testNow); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("settled deal must reject releases, got %v", err)
	}
}

func TestApplyReleaseRejectsOverRelease(t *testing.T) {
	t.Parallel()

	deal := activeDeal(Whole(10), 0.7)
	if err := deal.ApplyRelease(ReleasePlan{Release: Whole(11), NextStatus: DealStatusSettled}, testNow); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
	if deal.ReleasedAmount != 0 {
		t.Fatalf("rejected release mutated the deal")
	}
}

func TestDealActivateAndSlash(t *testing.T) {
	t.Parallel()

	deal := activeDeal(Whole(100), 0.7)
	deal.Status = DealStatusPending
	if err := deal.Slash("fraud", testNow); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("pending deal cannot be slashed, got %v", err)
	}
	if err := deal.Activate(testNow); err != nil {
		t.Fatalf("activate: %v", err)
	}
	if err := deal.Activate(testNow); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("double activation must fail, got %v", err)
	}
	if err := deal.ApplyRelease(deal.PlanRelease(0.9, Whole(30)), testNow); err != nil {
		t.Fatalf("release: %v", err)
	}
	if err := deal.Slash("fraud", testNow); err != nil {
		t.Fatalf("slash: %v", err)
	}
	if deal.SlashedAmount != Whole(70) || deal.Status != DealStatusSlashed {
		t.Fatalf("expected remaining 70 slashed, got %s %s", deal.SlashedAmount, deal.Status)
	}
}

func TestComputeSlashingStatistics(t *testing.T) {
	t.Parallel()

	stats := ComputeSlashingStatistics([]EscrowDeal{
		{TotalAmount: Whole(100), ReleasedAmount: Whole(100), Status: DealStatusSettled},
		{TotalAmount: Whole(50), SlashedAmount: Whole(50), Status: DealStatusSlashed},
		{TotalAmount: Whole(30), Status: DealStatusActive},
		{TotalAmount: Whole(20), ReleasedAmount: Whole(5), Status: DealStatusDisputed},
	})
	if stats.TotalDeals != 4 || stats.SlashedDeals != 1 || stats.SettledDeals != 1 || stats.ActiveDeals != 1 || stats.DisputedDeals != 1 {
		t.Fatalf("unexpected counts %+v", stats)
	}
	if stats.TotalCommitted != Whole(200) || stats.TotalReleased != Whole(105) || stats.TotalSlashedAmount != Whole(50) {
		t.Fatalf("unexpected totals %+v", stats)
	}
	if stats.SlashRate != 0.25 {
		t.Fatalf("expected slash rate 0.25, got %v", stats.SlashRate)
	}
}
