package domain

import (
	"math"
	"math/big"
	"time"
)

const (
	WeightEconomic   = 0.35
	WeightReputation = 0.30
	WeightPayment    = 0.20
	WeightSybil      = 0.15
)

// NeutralSignal is substituted for any reputation or sybil input that could not be read.
const NeutralSignal = 0.5

const (
	stakeSaturationTokens = 100_000
	volumeSaturation      = 100_000
	confidenceZ           = 1.96
)

// TrustSignals are the externally computed reputation inputs for one owner.
type TrustSignals struct {
	Score        float64
	DomainScores map[string]float64
	SybilRisk    float64
	Connections  int
	Degraded     bool
}

func NeutralSignals() TrustSignals {
	return TrustSignals{Score: NeutralSignal, SybilRisk: NeutralSignal, Degraded: true}
}

type TrustComponents struct {
	Economic        float64
	Reputation      float64
	Payment         float64
	SybilResistance float64
}

func (c TrustComponents) values() []float64 {
	return []float64{c.Economic, c.Reputation, c.Payment, c.SybilResistance}
}

type ConfidenceInterval struct {
	Lower float64
	Upper float64
}

type TrustScore struct {
	Owner        string
	Composite    float64
	Components   TrustComponents
	Confidence   ConfidenceInterval
	Degraded     bool
	CalculatedAt time.Time
}

// EconomicTrust scores stake size, tier and multiplier.
func EconomicTrust(acc StakeAccount) float64 {
	saturation := new(big.Float).SetInt(Tokens(stakeSaturationTokens))
	staked := new(big.Float).SetInt(cloneInt(acc.TotalStaked))
	ratio, _ := new(big.Float).Quo(staked, saturation).Float64()
	multiplier := float64(acc.ReputationMultiplier-BaseMultiplierPct) / 100
	return ClampScore(0.4*math.Min(1, ratio) + 0.4*acc.Tier.Score() + 0.2*multiplier)
}

// PaymentTrust scores settlement history. Owners without history are neutral.
func PaymentTrust(stats PaymentStatistics) float64 {
	if stats.TotalTransactions == 0 {
		return NeutralSignal
	}
	volume := stats.TotalVolume().Decimal().InexactFloat64()
	return ClampScore(0.5*stats.SuccessRate + 0.3*(1-stats.DisputeRate) + 0.2*math.Min(1, volume/volumeSaturation))
}

func ComputeTrustScore(owner string, acc StakeAccount, stats PaymentStatistics, signals TrustSignals, now time.Time) TrustScore {
	components := TrustComponents{
		Economic:        EconomicTrust(acc),
		Reputation:      ClampScore(signals.Score),
		Payment:         PaymentTrust(stats),
		SybilResistance: ClampScore(1 - signals.SybilRisk),
	}
	composite := ClampScore(WeightEconomic*components.Economic +
		WeightReputation*components.Reputation +
		WeightPayment*components.Payment +
		WeightSybil*components.SybilResistance)
	return TrustScore{
		Owner:        owner,
		Composite:    composite,
		Components:   components,
		Confidence:   confidenceAround(composite, components.values()),
		Degraded:     signals.Degraded,
		CalculatedAt: now,
	}
}

// confidenceAround treats the component scores as a small sample and returns
// composite +/- 1.96 sample standard deviations, clamped to [0,1].
func confidenceAround(composite float64, sample []float64) ConfidenceInterval {
	if len(sample) < 2 {
		return ConfidenceInterval{Lower: composite, Upper: composite}
	}
	var mean float64
	for _, v := range sample {
		mean += v
	}
	mean /= float64(len(sample))
	var variance float64
	for _, v := range sample {
		variance += (v - mean) * (v - mean)
	}
	variance /= float64(len(sample) - 1)
	margin := confidenceZ * math.Sqrt(variance)
	return ConfidenceInterval{
		Lower: ClampScore(math.Min(composite, composite-margin)),
		Upper: ClampScore(math.Max(composite, composite+margin)),
	}
}

// RiskLevel buckets the complement of a composite trust score.
func RiskLevel(composite float64) string {
	risk := ClampScore(1 - composite)
	switch {
	case risk >= 0.85:
		return "Critical"
	case risk >= 0.60:
		return "High"
	case risk >= 0.30:
		return "Medium"
	default:
		return "Low"
	}
}

type TrustReport struct {
	Owner           string
	Score           TrustScore
	Stake           StakeAccount
	Payments        PaymentStatistics
	Signals         TrustSignals
	RiskLevel       string
	Recommendations []string
	GeneratedAt     time.Time
}

const minHealthyConnections = 5

// Recommendations derives simple next steps from the report inputs.
func Recommendations(acc StakeAccount, stats PaymentStatistics, signals TrustSignals) []string {
	var out []string
	if !acc.Qualified {
		out = append(out, "Stake at least 1000 tokens to qualify for the BASIC tier")
	} else if acc.Tier != TierElite {
		out = append(out, "Upgrade staking tier to increase economic trust")
	}
	if stats.TotalTransactions == 0 {
		out = append(out, "Build payment history through completed x402 payments")
	} else if stats.DisputeRate > 0.1 {
		out = append(out, "Reduce dispute rate below 10%")
	}
	if !signals.Degraded && signals.Connections < minHealthyConnections {
		out = append(out, "Diversify connections to strengthen reputation")
	}
	if signals.SybilRisk > 0.3 {
		out = append(out, "Complete identity verification to lower sybil risk")
	}
	if signals.Degraded {
		out = append(out, "Reputation signals unavailable; score uses neutral defaults")
	}
	return out
}
