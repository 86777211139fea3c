package application_test

import (
	"context"
	"errors"
	"testing"

	"github.com/viralforge/mesh/services/trust-compliance/M42-trust-layer-service/internal/adapters/monitor"
	"github.com/viralforge/mesh/services/trust-compliance/M42-trust-layer-service/internal/application"
	"github.com/viralforge/mesh/services/trust-compliance/M42-trust-layer-service/internal/domain"
)

func knownCandidate(id string, trust, sybil float64, tier domain.Tier) domain.Candidate {
	return domain.Candidate{ID: id, TrustScore: trust, Reputation: trust, SybilRisk: sybil, Tier: tier, SignalsKnown: true}
}

func TestCampaignSettlesBothDeals(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.stake(t, "brand", 5_000)

	result, err := f.svc.ExecuteCampaign(context.Background(), user("brand"), application.ExecuteCampaignInput{
		CampaignID: "camp-e",
		Budget:     domain.Whole(10_000),
		Candidates: []domain.Candidate{
			knownCandidate("creator-a", 0.8, 0.1, domain.TierVerified),
			knownCandidate("creator-b", 0.7, 0.1, domain.TierBasic),
		},
		Performance: map[string]domain.PerformanceMetrics{
			"creator-a": perfectMetrics,
			"creator-b": perfectMetrics,
		},
	})
	if err != nil {
		t.Fatalf("execute campaign: %v", err)
	}
	if result.RequiredTier != domain.TierVerified {
		t.Fatalf("expected VERIFIED requirement, got %s", result.RequiredTier)
	}
	if result.Status != domain.CampaignStatusCompleted || result.TotalDeals != 2 || result.SuccessfulDeals != 2 {
		t.Fatalf("unexpected campaign result %+v", result)
	}
	if result.TotalPayments != domain.Whole(10_000) || result.AverageROI != 0 {
		t.Fatalf("expected 10000 paid at 0%% ROI, got %s / %v", result.TotalPayments, result.AverageROI)
	}
	for _, d := range result.Deals {
		if d.Allocated != domain.Whole(5_000) || d.Status != domain.DealStatusSettled {
			t.Fatalf("unexpected deal outcome %+v", d)
		}
	}
	if result.Deals[0].Payee != "creator-a" {
		t.Fatalf("expected outcomes in match order, got %s first", result.Deals[0].Payee)
	}

	discovery, err := f.svc.GetPayment(context.Background(), result.DiscoveryPaymentID)
	if err != nil {
		t.Fatalf("discovery payment: %v", err)
	}
	if discovery.Amount != domain.Whole(500) || discovery.Status != domain.PaymentStatusPending {
		t.Fatalf("unexpected discovery payment %+v", discovery)
	}
	stored, err := f.svc.GetCampaign(context.Background(), "camp-e")
	if err != nil || stored.Status != domain.CampaignStatusCompleted {
		t.Fatalf("expected stored campaign, got %+v (%v)", stored, err)
	}
	if !contains(f.outboxTypes(), domain.EventCampaignCompleted) {
		t.Fatalf("expected %s in outbox", domain.EventCampaignCompleted)
	}
}

func TestCampaignAbortsWhenBrandUnderStaked(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.stake(t, "brand", 1_000)

	_, err := f.svc.ExecuteCampaign(context.Background(), user("brand"), application.ExecuteCampaignInput{
		Budget:     domain.Whole(50_000),
		Candidates: []domain.Candidate{knownCandidate("creator-a", 0.9, 0.1, domain.TierElite)},
	})
	if !errors.Is(err, domain.ErrInsufficientStake) {
		t.Fatalf("expected ErrInsufficientStake, got %v", err)
	}
	if len(f.repos.Outbox.Records()) != 1 {
		t.Fatalf("aborted campaign must not emit events beyond the stake, got %v", f.outboxTypes())
	}

	_, err = f.svc.ExecuteCampaign(context.Background(), user("brand"), application.ExecuteCampaignInput{Budget: domain.Whole(20_000_000)})
	if !errors.Is(err, domain.ErrBudgetExceeded) {
		t.Fatalf("expected ErrBudgetExceeded, got %v", err)
	}
}

func TestCampaignSlashesFraudAndRejectsSybils(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.stake(t, "brand", 1_000)
	f.stake(t, "cheater", 2_000)

	result, err := f.svc.ExecuteCampaign(context.Background(), user("brand"), application.ExecuteCampaignInput{
		Budget: domain.Whole(2_000),
		Candidates: []domain.Candidate{
			knownCandidate("honest", 0.8, 0.1, domain.TierBasic),
			knownCandidate("cheater", 0.7, 0.2, domain.TierBasic),
			knownCandidate("sock-puppet", 0.9, 0.9, domain.TierElite),
		},
		Performance: map[string]domain.PerformanceMetrics{
			"honest":  perfectMetrics,
			"cheater": {EngagementRate: 0.2, Conversions: 500, QualityRating: 5, Evidence: []string{"bot-1", "bot-2", "bot-3"}},
		},
	})
	if err != nil {
		t.Fatalf("execute campaign: %v", err)
	}
	if result.TrustMetrics.SybilDetected != 1 {
		t.Fatalf("expected one sybil rejection, got %d", result.TrustMetrics.SybilDetected)
	}
	if result.Status != domain.CampaignStatusPartial || result.TrustMetrics.SlashingEvents != 1 {
		t.Fatalf("unexpected campaign result %+v", result)
	}
	if result.TotalPayments != domain.Whole(1_000) {
		t.Fatalf("expected only the honest deal paid, got %s", result.TotalPayments)
	}

	acc, err := f.svc.GetStake(context.Background(), "cheater")
	if err != nil {
		t.Fatalf("get cheater stake: %v", err)
	}
	if acc.TotalStaked.Cmp(domain.Tokens(1_500)) != 0 {
		t.Fatalf("expected 25%% fake-engagement slash, got %s", domain.FormatTokens(acc.TotalStaked))
	}
	for _, d := range result.Deals {
		if d.Payee == "cheater" && (!d.Slashed || d.Status != domain.DealStatusSlashed) {
			t.Fatalf("expected cheater deal slashed, got %+v", d)
		}
	}
}

func TestCampaignUsesMonitorAndRecordsDealErrors(t *testing.T) {
	t.Parallel()

	perf := monitor.NewStatic()
	perf.Record("tracked", perfectMetrics)
	f := newFixture(t, withMonitor(perf))
	f.stake(t, "brand", 1_000)

	result, err := f.svc.ExecuteCampaign(context.Background(), user("brand"), application.ExecuteCampaignInput{
		Budget: domain.Whole(1_000),
		Candidates: []domain.Candidate{
			{ID: "tracked"},
			{ID: "untracked"},
			{ID: "  "},
		},
	})
	if err != nil {
		t.Fatalf("execute campaign: %v", err)
	}
	if result.TotalDeals != 2 || result.SuccessfulDeals != 1 || result.Status != domain.CampaignStatusPartial {
		t.Fatalf("unexpected campaign result %+v", result)
	}
	for _, d := range result.Deals {
		if d.Payee == "untracked" && d.Error == "" {
			t.Fatalf("expected monitor failure recorded on the deal")
		}
		if d.Payee == "tracked" && d.Released != domain.Whole(500) {
			t.Fatalf("expected tracked payee paid 500, got %s", d.Released)
		}
	}
}

func TestCampaignWithoutMatches(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.stake(t, "brand", 1_000)
	result, err := f.svc.ExecuteCampaign(context.Background(), user("brand"), application.ExecuteCampaignInput{
		Budget:     domain.Whole(1_000),
		Candidates: []domain.Candidate{knownCandidate("risky", 0.9, 0.95, domain.TierElite)},
	})
	if err != nil {
		t.Fatalf("execute campaign: %v", err)
	}
	if result.Status != domain.CampaignStatusNoMatches || result.TotalDeals != 0 || result.AverageROI != -100 {
		t.Fatalf("unexpected empty campaign %+v", result)
	}
}

func TestCampaignPartialRequirementsKeepDefaults(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.stake(t, "brand", 1_000)
	result, err := f.svc.ExecuteCampaign(context.Background(), user("brand"), application.ExecuteCampaignInput{
		Budget: domain.Whole(1_000),
		Candidates: []domain.Candidate{
			knownCandidate("creator-a", 0.8, 0.1, domain.TierBasic),
			knownCandidate("creator-b", 0.7, 0.1, domain.TierBasic),
			knownCandidate("creator-c", 0.6, 0.5, domain.TierBasic),
		},
		Requirements: application.CampaignRequirements{MaxMatches: 5},
		Performance: map[string]domain.PerformanceMetrics{
			"creator-a": perfectMetrics,
			"creator-b": perfectMetrics,
		},
	})
	if err != nil {
		t.Fatalf("execute campaign: %v", err)
	}
	if result.TotalDeals != 2 || result.TrustMetrics.SybilDetected != 1 {
		t.Fatalf("expected default sybil ceiling to apply, got deals=%d sybil=%d", result.TotalDeals, result.TrustMetrics.SybilDetected)
	}

	strict := 0.05
	result, err = f.svc.ExecuteCampaign(context.Background(), user("brand"), application.ExecuteCampaignInput{
		Budget:       domain.Whole(1_000),
		Candidates:   []domain.Candidate{knownCandidate("creator-a", 0.8, 0.1, domain.TierBasic)},
		Requirements: application.CampaignRequirements{MaxSybilRisk: &strict},
	})
	if err != nil {
		t.Fatalf("execute strict campaign: %v", err)
	}
	if result.Status != domain.CampaignStatusNoMatches || result.TrustMetrics.SybilDetected != 1 {
		t.Fatalf("explicit sybil ceiling ignored: %+v", result)
	}
}
