package postgres

import (
	"fmt"
	"math/big"

	"github.com/viralforge/mesh/services/trust-compliance/M42-trust-layer-service/internal/domain"
)

func parseInt(raw string) (*big.Int, error) {
	if raw == "" {
		return new(big.Int), nil
	}
	v, ok := new(big.Int).SetString(raw, 10)
	if !ok {
		return nil, fmt.Errorf("decode numeric %q", raw)
	}
	return v, nil
}

func intString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func toStakeModel(a domain.StakeAccount) stakeAccountModel {
	return stakeAccountModel{
		Owner: a.Owner, TotalStaked: intString(a.TotalStaked), Tier: string(a.Tier), Qualified: a.Qualified,
		LockedUntil: a.LockedUntil, ReputationMultiplier: a.ReputationMultiplier,
		SlashableAmount: intString(a.SlashableAmount), SlashedTotal: intString(a.SlashedTotal),
		Version: a.Version, CreatedAt: a.CreatedAt, UpdatedAt: a.UpdatedAt,
	}
}

func toDomainStake(m stakeAccountModel) (domain.StakeAccount, error) {
	total, err := parseInt(m.TotalStaked)
	if err != nil {
		return domain.StakeAccount{}, err
	}
	slashable, err := parseInt(m.SlashableAmount)
	if err != nil {
		return domain.StakeAccount{}, err
	}
	slashed, err := parseInt(m.SlashedTotal)
	if err != nil {
		return domain.StakeAccount{}, err
	}
	return domain.StakeAccount{
		Owner: m.Owner, TotalStaked: total, Tier: domain.Tier(m.Tier), Qualified: m.Qualified,
		LockedUntil: m.LockedUntil, ReputationMultiplier: m.ReputationMultiplier,
		SlashableAmount: slashable, SlashedTotal: slashed,
		Version: m.Version, CreatedAt: m.CreatedAt, UpdatedAt: m.UpdatedAt,
	}, nil
}

func toDomainStakeEvent(m stakeEventModel) (domain.StakeEvent, error) {
	amount, err := parseInt(m.Amount)
	if err != nil {
		return domain.StakeEvent{}, err
	}
	after, err := parseInt(m.TotalAfter)
	if err != nil {
		return domain.StakeEvent{}, err
	}
	return domain.StakeEvent{
		EventID: m.EventID, Owner: m.Owner, Kind: m.Kind, Amount: amount, TotalAfter: after,
		Tier: domain.Tier(m.Tier), Reason: m.Reason, TxHash: m.TxHash, OccurredAt: m.OccurredAt,
	}, nil
}

func toPaymentModel(p domain.Payment) (paymentModel, error) {
	m := paymentModel{
		PaymentID: p.ID, FromUser: p.From, ToUser: p.To, Amount: int64(p.Amount), Currency: p.Currency,
		ResourceHash: p.ResourceHash, Status: string(p.Status), Reason: p.Reason, TxHash: p.TxHash,
		Version: p.Version, CreatedAt: p.Timestamp, UpdatedAt: p.UpdatedAt,
	}
	if p.Conditions != nil {
		raw, err := encodeJSON(p.Conditions)
		if err != nil {
			return paymentModel{}, err
		}
		m.Conditions = &raw
	}
	if len(p.Metadata) > 0 {
		raw, err := encodeJSON(p.Metadata)
		if err != nil {
			return paymentModel{}, err
		}
		m.Metadata = &raw
	}
	return m, nil
}

func toDomainPayment(m paymentModel) (domain.Payment, error) {
	p := domain.Payment{
		ID: m.PaymentID, From: m.FromUser, To: m.ToUser, Amount: domain.Amount(m.Amount), Currency: m.Currency,
		ResourceHash: m.ResourceHash, Status: domain.PaymentStatus(m.Status), Reason: m.Reason, TxHash: m.TxHash,
		Version: m.Version, Timestamp: m.CreatedAt, UpdatedAt: m.UpdatedAt,
	}
	if m.Conditions != nil {
		var c domain.PaymentConditions
		if err := decodeJSON(*m.Conditions, &c); err != nil {
			return domain.Payment{}, err
		}
		p.Conditions = &c
	}
	if m.Metadata != nil {
		if err := decodeJSON(*m.Metadata, &p.Metadata); err != nil {
			return domain.Payment{}, err
		}
	}
	return p, nil
}

func toDealModel(d domain.EscrowDeal) (escrowDealModel, error) {
	m := escrowDealModel{
		DealID: d.DealID, Payer: d.Payer, Payee: d.Payee, TotalAmount: int64(d.TotalAmount),
		ReleasedAmount: int64(d.ReleasedAmount), SlashedAmount: int64(d.SlashedAmount),
		PerformanceThreshold: d.PerformanceThreshold, VerificationHash: d.VerificationHash,
		Status: string(d.Status), LastScore: d.LastScore, SlashReason: d.SlashReason, Version: d.Version,
		CreatedAt: d.CreatedAt, ActivatedAt: d.ActivatedAt, UpdatedAt: d.UpdatedAt,
	}
	if len(d.Metadata) > 0 {
		raw, err := encodeJSON(d.Metadata)
		if err != nil {
			return escrowDealModel{}, err
		}
		m.Metadata = &raw
	}
	if len(d.Evidence) > 0 {
		raw, err := encodeJSON(d.Evidence)
		if err != nil {
			return escrowDealModel{}, err
		}
		m.Evidence = &raw
	}
	return m, nil
}

func toDomainDeal(m escrowDealModel) (domain.EscrowDeal, error) {
	d := domain.EscrowDeal{
		DealID: m.DealID, Payer: m.Payer, Payee: m.Payee, TotalAmount: domain.Amount(m.TotalAmount),
		ReleasedAmount: domain.Amount(m.ReleasedAmount), SlashedAmount: domain.Amount(m.SlashedAmount),
		PerformanceThreshold: m.PerformanceThreshold, VerificationHash: m.VerificationHash,
		Status: domain.DealStatus(m.Status), LastScore: m.LastScore, SlashReason: m.SlashReason, Version: m.Version,
		CreatedAt: m.CreatedAt, ActivatedAt: m.ActivatedAt, UpdatedAt: m.UpdatedAt,
	}
	if m.Metadata != nil {
		if err := decodeJSON(*m.Metadata, &d.Metadata); err != nil {
			return domain.EscrowDeal{}, err
		}
	}
	if m.Evidence != nil {
		if err := decodeJSON(*m.Evidence, &d.Evidence); err != nil {
			return domain.EscrowDeal{}, err
		}
	}
	return d, nil
}
