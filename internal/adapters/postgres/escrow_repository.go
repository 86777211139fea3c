package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/viralforge/mesh/services/trust-compliance/M42-trust-layer-service/internal/domain"
	"gorm.io/gorm"
)

type escrowRepository struct {
	db *gorm.DB
}

func (r *escrowRepository) Create(ctx context.Context, deal domain.EscrowDeal) error {
	rec, err := toDealModel(deal)
	if err != nil {
		return err
	}
	rec.Version = 1
	if err := r.db.WithContext(ctx).Create(&rec).Error; err != nil {
		if isUniqueViolation(err) {
			return domain.ErrConflict
		}
		return err
	}
	return nil
}

func (r *escrowRepository) GetByID(ctx context.Context, dealID string) (domain.EscrowDeal, error) {
	var rec escrowDealModel
	if err := r.db.WithContext(ctx).Where("deal_id = ?", strings.TrimSpace(dealID)).Take(&rec).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.EscrowDeal{}, domain.ErrNotFound
		}
		return domain.EscrowDeal{}, err
	}
	return toDomainDeal(rec)
}

func (r *escrowRepository) Update(ctx context.Context, deal domain.EscrowDeal) error {
	rec, err := toDealModel(deal)
	if err != nil {
		return err
	}
	return versionedUpdate(r.db.WithContext(ctx), &escrowDealModel{}, "deal_id", rec.DealID, deal.Version, map[string]any{
		"released_amount": rec.ReleasedAmount,
		"slashed_amount":  rec.SlashedAmount,
		"status":          rec.Status,
		"evidence":        rec.Evidence,
		"last_score":      rec.LastScore,
		"slash_reason":    rec.SlashReason,
		"activated_at":    rec.ActivatedAt,
		"updated_at":      rec.UpdatedAt,
	})
}

func (r *escrowRepository) ListByParty(ctx context.Context, owner string) ([]domain.EscrowDeal, error) {
	owner = strings.TrimSpace(owner)
	return r.list(r.db.WithContext(ctx).Where("payer = ? OR payee = ?", owner, owner))
}

func (r *escrowRepository) ListAll(ctx context.Context) ([]domain.EscrowDeal, error) {
	return r.list(r.db.WithContext(ctx))
}

func (r *escrowRepository) list(q *gorm.DB) ([]domain.EscrowDeal, error) {
	var rows []escrowDealModel
	if err := q.Order("created_at asc, deal_id asc").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]domain.EscrowDeal, 0, len(rows))
	for _, row := range rows {
		d, err := toDomainDeal(row)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, nil
}

type campaignRepository struct {
	db *gorm.DB
}

func (r *campaignRepository) Save(ctx context.Context, result domain.CampaignResult) error {
	raw, err := json.Marshal(result)
	if err != nil {
		return err
	}
	rec := campaignResultModel{
		CampaignID: result.CampaignID, Brand: result.Brand, Status: string(result.Status),
		Result: string(raw), CompletedAt: result.CompletedAt,
	}
	if err := r.db.WithContext(ctx).Create(&rec).Error; err != nil {
		if isUniqueViolation(err) {
			return domain.ErrConflict
		}
		return err
	}
	return nil
}

func (r *campaignRepository) GetByID(ctx context.Context, campaignID string) (domain.CampaignResult, error) {
	var rec campaignResultModel
	if err := r.db.WithContext(ctx).Where("campaign_id = ?", strings.TrimSpace(campaignID)).Take(&rec).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.CampaignResult{}, domain.ErrNotFound
		}
		return domain.CampaignResult{}, err
	}
	var out domain.CampaignResult
	if err := decodeJSON(rec.Result, &out); err != nil {
		return domain.CampaignResult{}, err
	}
	return out, nil
}
