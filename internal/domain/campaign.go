package domain

import (
	"sort"
	"time"
)

// CampaignPerformanceThreshold is the release threshold for every campaign deal.
const CampaignPerformanceThreshold = 0.7

// RequiredTierForBudget maps a campaign budget to the stake tier its brand must hold.
func RequiredTierForBudget(budget Amount) Tier {
	switch {
	case budget >= Whole(100_000):
		return TierElite
	case budget >= Whole(50_000):
		return TierPremium
	case budget >= Whole(10_000):
		return TierVerified
	default:
		return TierBasic
	}
}

// Candidate is a prospective counterparty. When SignalsKnown is false the
// orchestrator resolves trust, sybil risk and tier itself.
type Candidate struct {
	ID           string
	TrustScore   float64
	Reputation   float64
	SybilRisk    float64
	Tier         Tier
	SignalsKnown bool
}

type MatchRequirements struct {
	MinReputation float64
	MaxSybilRisk  float64
	MinTier       Tier
	MaxMatches    int
}

type MatchedCandidate struct {
	Candidate
	MatchScore float64
}

func MatchScore(c Candidate) float64 {
	return 0.6*c.TrustScore + c.Tier.MatchBonus() + 0.1*(1-c.SybilRisk)
}

// MatchCandidates filters by reputation, sybil risk and tier then ranks by
// match score, highest first. Ties keep input order.
func MatchCandidates(candidates []Candidate, req MatchRequirements) (matched []MatchedCandidate, sybilRejected int) {
	for _, c := range candidates {
		if c.SybilRisk > req.MaxSybilRisk {
			sybilRejected++
			continue
		}
		if c.Reputation < req.MinReputation {
			continue
		}
		if req.MinTier != "" && !c.Tier.AtLeast(req.MinTier) {
			continue
		}
		matched = append(matched, MatchedCandidate{Candidate: c, MatchScore: MatchScore(c)})
	}
	sort.SliceStable(matched, func(i, j int) bool { return matched[i].MatchScore > matched[j].MatchScore })
	if req.MaxMatches > 0 && len(matched) > req.MaxMatches {
		matched = matched[:req.MaxMatches]
	}
	return matched, sybilRejected
}

type CampaignStatus string

const (
	CampaignStatusCompleted CampaignStatus = "COMPLETED"
	CampaignStatusPartial   CampaignStatus = "PARTIALLY_COMPLETED"
	CampaignStatusFailed    CampaignStatus = "FAILED"
	CampaignStatusNoMatches CampaignStatus = "NO_MATCHES"
)

type DealOutcome struct {
	DealID     string
	Payee      string
	Allocated  Amount
	Released   Amount
	Score      float64
	Status     DealStatus
	Success    bool
	Slashed    bool
	MatchScore float64
	TrustScore float64
	Error      string
}

type CampaignTrustMetrics struct {
	AverageTrustScore float64
	SybilDetected     int
	SlashingEvents    int
}

// CampaignResult is produced once per orchestrator run and never mutated.
type CampaignResult struct {
	CampaignID         string
	Brand              string
	Budget             Amount
	RequiredTier       Tier
	DiscoveryPaymentID string
	Status             CampaignStatus
	TotalDeals         int
	SuccessfulDeals    int
	TotalPayments      Amount
	AverageROI         float64
	TrustMetrics       CampaignTrustMetrics
	Deals              []DealOutcome
	StartedAt          time.Time
	CompletedAt        time.Time
}

// Summarize aggregates deal outcomes into the campaign totals.
func Summarize(result CampaignResult) CampaignResult {
	result.TotalDeals = len(result.Deals)
	result.SuccessfulDeals = 0
	result.TotalPayments = 0
	var trustSum float64
	slashing := 0
	for _, d := range result.Deals {
		result.TotalPayments += d.Released
		trustSum += d.TrustScore
		if d.Success {
			result.SuccessfulDeals++
		}
		if d.Slashed {
			slashing++
		}
	}
	result.TrustMetrics.SlashingEvents = slashing
	if result.TotalDeals > 0 {
		result.TrustMetrics.AverageTrustScore = trustSum / float64(result.TotalDeals)
	}
	if result.Budget > 0 {
		ratio := result.TotalPayments.Decimal().Div(result.Budget.Decimal()).InexactFloat64()
		result.AverageROI = (ratio - 1) * 100
	}
	switch {
	case result.TotalDeals == 0:
		result.Status = CampaignStatusNoMatches
	case result.SuccessfulDeals == result.TotalDeals:
		result.Status = CampaignStatusCompleted
	case result.SuccessfulDeals == 0:
		result.Status = CampaignStatusFailed
	default:
		result.Status = CampaignStatusPartial
	}
	return result
}
