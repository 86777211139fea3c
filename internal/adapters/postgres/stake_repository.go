package postgres

import (
	"context"
	"errors"
	"strings"

	"github.com/viralforge/mesh/services/trust-compliance/M42-trust-layer-service/internal/domain"
	"gorm.io/gorm"
)

type stakeRepository struct {
	db *gorm.DB
}

func (r *stakeRepository) GetByOwner(ctx context.Context, owner string) (domain.StakeAccount, error) {
	var rec stakeAccountModel
	if err := r.db.WithContext(ctx).Where("owner = ?", strings.TrimSpace(owner)).Take(&rec).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.StakeAccount{}, domain.ErrNotFound
		}
		return domain.StakeAccount{}, err
	}
	return toDomainStake(rec)
}

func (r *stakeRepository) Create(ctx context.Context, account domain.StakeAccount) error {
	rec := toStakeModel(account)
	rec.Version = 1
	if err := r.db.WithContext(ctx).Create(&rec).Error; err != nil {
		if isUniqueViolation(err) {
			return domain.ErrConflict
		}
		return err
	}
	return nil
}

func (r *stakeRepository) Update(ctx context.Context, account domain.StakeAccount) error {
	rec := toStakeModel(account)
	return versionedUpdate(r.db.WithContext(ctx), &stakeAccountModel{}, "owner", rec.Owner, account.Version, map[string]any{
		"total_staked":          rec.TotalStaked,
		"tier":                  rec.Tier,
		"qualified":             rec.Qualified,
		"locked_until":          rec.LockedUntil,
		"reputation_multiplier": rec.ReputationMultiplier,
		"slashable_amount":      rec.SlashableAmount,
		"slashed_total":         rec.SlashedTotal,
		"updated_at":            rec.UpdatedAt,
	})
}

func (r *stakeRepository) AppendEvent(ctx context.Context, event domain.StakeEvent) error {
	rec := stakeEventModel{
		EventID: event.EventID, Owner: event.Owner, Kind: event.Kind,
		Amount: intString(event.Amount), TotalAfter: intString(event.TotalAfter),
		Tier: string(event.Tier), Reason: event.Reason, TxHash: event.TxHash, OccurredAt: event.OccurredAt,
	}
	return r.db.WithContext(ctx).Create(&rec).Error
}

func (r *stakeRepository) ListEvents(ctx context.Context, owner string) ([]domain.StakeEvent, error) {
	var rows []stakeEventModel
	if err := r.db.WithContext(ctx).Where("owner = ?", strings.TrimSpace(owner)).Order("occurred_at asc").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]domain.StakeEvent, 0, len(rows))
	for _, row := range rows {
		ev, err := toDomainStakeEvent(row)
		if err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	return out, nil
}
