package http

import (
	"strings"

	"github.com/viralforge/mesh/services/trust-compliance/M42-trust-layer-service/internal/application"
	"github.com/viralforge/mesh/services/trust-compliance/M42-trust-layer-service/internal/contracts"
	"github.com/viralforge/mesh/services/trust-compliance/M42-trust-layer-service/internal/domain"
)

func parseOptionalAmount(raw string) (domain.Amount, error) {
	if strings.TrimSpace(raw) == "" {
		return 0, nil
	}
	return domain.ParseAmount(raw)
}

func parseOptionalTier(raw string) (domain.Tier, error) {
	if strings.TrimSpace(raw) == "" {
		return "", nil
	}
	return domain.ParseTier(raw)
}

func toStakeResponse(acc domain.StakeAccount, txHash string) contracts.StakeResponse {
	out := contracts.StakeResponse{
		Owner:                acc.Owner,
		Tier:                 string(acc.Tier),
		Qualified:            acc.Qualified,
		TotalStaked:          "0",
		LockedUntil:          acc.LockedUntil,
		ReputationMultiplier: acc.ReputationMultiplier,
		SlashableAmount:      "0",
		TxHash:               txHash,
	}
	if acc.TotalStaked != nil {
		out.TotalStaked = acc.TotalStaked.String()
	}
	if acc.SlashableAmount != nil {
		out.SlashableAmount = acc.SlashableAmount.String()
	}
	if acc.SlashedTotal != nil && acc.SlashedTotal.Sign() > 0 {
		out.SlashedTotal = acc.SlashedTotal.String()
	}
	return out
}

func toStakeResultResponse(res application.StakeResult) contracts.StakeResponse {
	return toStakeResponse(domain.StakeAccount{
		Owner:                res.Owner,
		TotalStaked:          res.TotalStaked,
		Tier:                 res.Tier,
		Qualified:            res.Qualified,
		LockedUntil:          res.LockedUntil,
		ReputationMultiplier: res.ReputationMultiplier,
		SlashableAmount:      res.SlashableAmount,
	}, res.TxHash)
}

func toStakeEvents(events []domain.StakeEvent) []contracts.StakeEventResponse {
	out := make([]contracts.StakeEventResponse, 0, len(events))
	for _, e := range events {
		item := contracts.StakeEventResponse{
			EventID:    e.EventID,
			Kind:       e.Kind,
			Amount:     "0",
			TotalAfter: "0",
			Tier:       string(e.Tier),
			Reason:     e.Reason,
			TxHash:     e.TxHash,
			OccurredAt: e.OccurredAt,
		}
		if e.Amount != nil {
			item.Amount = e.Amount.String()
		}
		if e.TotalAfter != nil {
			item.TotalAfter = e.TotalAfter.String()
		}
		out = append(out, item)
	}
	return out
}

func fromConditions(c *contracts.PaymentConditions) *domain.PaymentConditions {
	if c == nil {
		return nil
	}
	return &domain.PaymentConditions{
		Stage:            c.Stage,
		Expiry:           c.Expiry,
		MaxResults:       c.MaxResults,
		QualityThreshold: c.QualityThreshold,
		VerificationKind: c.VerificationKind,
		CampaignID:       c.CampaignID,
	}
}

func toConditions(c *domain.PaymentConditions) *contracts.PaymentConditions {
	if c == nil {
		return nil
	}
	return &contracts.PaymentConditions{
		Stage:            c.Stage,
		Expiry:           c.Expiry,
		MaxResults:       c.MaxResults,
		QualityThreshold: c.QualityThreshold,
		VerificationKind: c.VerificationKind,
		CampaignID:       c.CampaignID,
	}
}

func toPaymentResponse(p domain.Payment) contracts.PaymentResponse {
	return contracts.PaymentResponse{
		ID:         p.ID,
		From:       p.From,
		To:         p.To,
		Amount:     p.Amount.String(),
		Currency:   p.Currency,
		Resource:   p.ResourceHash,
		Conditions: toConditions(p.Conditions),
		Status:     string(p.Status),
		Timestamp:  p.Timestamp,
		Metadata:   p.Metadata,
		Reason:     p.Reason,
		TxHash:     p.TxHash,
	}
}

func toChannelResponse(c domain.PaymentChannel) contracts.PaymentChannelResponse {
	return contracts.PaymentChannelResponse{
		Payer:     c.Payer,
		Payee:     c.Payee,
		Deposit:   c.Deposit.String(),
		ReserveTx: c.ReserveTx,
		OpenedAt:  c.OpenedAt,
		ExpiresAt: c.ExpiresAt,
	}
}

func toPaymentStatistics(s domain.PaymentStatistics) contracts.PaymentStatisticsResponse {
	return contracts.PaymentStatisticsResponse{
		User:              s.User,
		TotalTransactions: s.TotalTransactions,
		SuccessRate:       s.SuccessRate,
		AverageAmount:     s.AverageAmount.String(),
		DisputeRate:       s.DisputeRate,
		TotalReceived:     s.TotalReceived.String(),
		TotalSent:         s.TotalSent.String(),
		TotalVolume:       s.TotalVolume().String(),
	}
}

func fromMetrics(m contracts.PerformanceMetrics) domain.PerformanceMetrics {
	return domain.PerformanceMetrics{
		EngagementRate: m.EngagementRate,
		Conversions:    m.Conversions,
		QualityRating:  m.QualityRating,
		Evidence:       m.Evidence,
	}
}

func toMetrics(m domain.PerformanceMetrics) contracts.PerformanceMetrics {
	return contracts.PerformanceMetrics{
		EngagementRate: m.EngagementRate,
		Conversions:    m.Conversions,
		QualityRating:  m.QualityRating,
		Evidence:       m.Evidence,
	}
}

func fromProof(p contracts.PaymentProof) (domain.PaymentProof, error) {
	amount, err := domain.ParseAmount(p.Amount)
	if err != nil {
		return domain.PaymentProof{}, err
	}
	return domain.PaymentProof{
		Amount:    amount,
		Currency:  p.Currency,
		Recipient: p.Recipient,
		Resource:  p.Resource,
		Payer:     p.Payer,
		Timestamp: p.Timestamp,
		TxHash:    p.TxHash,
		Nonce:     p.Nonce,
		Signature: p.Signature,
	}, nil
}

func toDealResponse(d domain.EscrowDeal) contracts.EscrowDealResponse {
	evidence := make([]contracts.EscrowEvidence, 0, len(d.Evidence))
	for _, e := range d.Evidence {
		evidence = append(evidence, contracts.EscrowEvidence{
			SubmittedBy: e.SubmittedBy,
			Metrics:     toMetrics(e.Metrics),
			Score:       e.Score,
			SubmittedAt: e.SubmittedAt,
		})
	}
	return contracts.EscrowDealResponse{
		DealID:               d.DealID,
		Payer:                d.Payer,
		Payee:                d.Payee,
		TotalAmount:          d.TotalAmount.String(),
		ReleasedAmount:       d.ReleasedAmount.String(),
		SlashedAmount:        d.SlashedAmount.String(),
		RemainingAmount:      d.RemainingAmount().String(),
		PerformanceThreshold: d.PerformanceThreshold,
		VerificationHash:     d.VerificationHash,
		Status:               string(d.Status),
		Metadata:             d.Metadata,
		Evidence:             evidence,
		LastScore:            d.LastScore,
		SlashReason:          d.SlashReason,
		CreatedAt:            d.CreatedAt,
		ActivatedAt:          d.ActivatedAt,
		UpdatedAt:            d.UpdatedAt,
	}
}

func toReleaseResponse(r domain.ReleaseResult) contracts.ReleaseResultResponse {
	return contracts.ReleaseResultResponse{
		DealID:          r.DealID,
		ReleasedAmount:  r.ReleasedAmount.String(),
		RemainingAmount: r.RemainingAmount.String(),
		Success:         r.Success,
		Score:           r.Score,
		Status:          string(r.Status),
	}
}

func toSlashingStatistics(s domain.SlashingStatistics) contracts.SlashingStatisticsResponse {
	return contracts.SlashingStatisticsResponse{
		TotalDeals:         s.TotalDeals,
		ActiveDeals:        s.ActiveDeals,
		SettledDeals:       s.SettledDeals,
		DisputedDeals:      s.DisputedDeals,
		SlashedDeals:       s.SlashedDeals,
		TotalCommitted:     s.TotalCommitted.String(),
		TotalReleased:      s.TotalReleased.String(),
		TotalSlashedAmount: s.TotalSlashedAmount.String(),
		SlashRate:          s.SlashRate,
	}
}

func toTrustScore(s domain.TrustScore) contracts.TrustScoreResponse {
	return contracts.TrustScoreResponse{
		Owner:     s.Owner,
		Composite: s.Composite,
		Components: contracts.TrustComponents{
			Economic:        s.Components.Economic,
			Reputation:      s.Components.Reputation,
			Payment:         s.Components.Payment,
			SybilResistance: s.Components.SybilResistance,
		},
		Confidence:   [2]float64{s.Confidence.Lower, s.Confidence.Upper},
		Degraded:     s.Degraded,
		CalculatedAt: s.CalculatedAt,
	}
}

func toTrustReport(r domain.TrustReport) contracts.TrustReportResponse {
	return contracts.TrustReportResponse{
		Owner:    r.Owner,
		Score:    toTrustScore(r.Score),
		Stake:    toStakeResponse(r.Stake, ""),
		Payments: toPaymentStatistics(r.Payments),
		Signals: contracts.TrustSignals{
			Score:        r.Signals.Score,
			DomainScores: r.Signals.DomainScores,
			SybilRisk:    r.Signals.SybilRisk,
			Connections:  r.Signals.Connections,
			Degraded:     r.Signals.Degraded,
		},
		RiskLevel:       r.RiskLevel,
		Recommendations: r.Recommendations,
		GeneratedAt:     r.GeneratedAt,
	}
}

// fromCandidate marks signals as known only when all three were supplied.
func fromCandidate(c contracts.CampaignCandidate) (domain.Candidate, error) {
	tier, err := parseOptionalTier(c.Tier)
	if err != nil {
		return domain.Candidate{}, err
	}
	out := domain.Candidate{ID: strings.TrimSpace(c.ID), Tier: tier}
	if c.TrustScore != nil && c.Reputation != nil && c.SybilRisk != nil {
		out.TrustScore = *c.TrustScore
		out.Reputation = *c.Reputation
		out.SybilRisk = *c.SybilRisk
		out.SignalsKnown = true
	}
	return out, nil
}

func toCampaignResponse(r domain.CampaignResult) contracts.CampaignResultResponse {
	deals := make([]contracts.DealOutcomeResponse, 0, len(r.Deals))
	for _, d := range r.Deals {
		deals = append(deals, contracts.DealOutcomeResponse{
			DealID:     d.DealID,
			Payee:      d.Payee,
			Allocated:  d.Allocated.String(),
			Released:   d.Released.String(),
			Score:      d.Score,
			Status:     string(d.Status),
			Success:    d.Success,
			Slashed:    d.Slashed,
			MatchScore: d.MatchScore,
			TrustScore: d.TrustScore,
			Error:      d.Error,
		})
	}
	return contracts.CampaignResultResponse{
		CampaignID:         r.CampaignID,
		Brand:              r.Brand,
		Budget:             r.Budget.String(),
		RequiredTier:       string(r.RequiredTier),
		DiscoveryPaymentID: r.DiscoveryPaymentID,
		Status:             string(r.Status),
		TotalDeals:         r.TotalDeals,
		SuccessfulDeals:    r.SuccessfulDeals,
		TotalPayments:      r.TotalPayments.String(),
		AverageROI:         r.AverageROI,
		TrustMetrics: contracts.CampaignTrustMetrics{
			AverageTrustScore: r.TrustMetrics.AverageTrustScore,
			SybilDetected:     r.TrustMetrics.SybilDetected,
			SlashingEvents:    r.TrustMetrics.SlashingEvents,
		},
		Deals:       deals,
		StartedAt:   r.StartedAt,
		CompletedAt: r.CompletedAt,
	}
}
