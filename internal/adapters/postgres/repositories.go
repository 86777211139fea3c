package postgres

import (
	"github.com/viralforge/mesh/services/trust-compliance/M42-trust-layer-service/internal/domain"
	"github.com/viralforge/mesh/services/trust-compliance/M42-trust-layer-service/internal/ports"
	"gorm.io/gorm"
)

type Repositories struct {
	Stakes      ports.StakeRepository
	Payments    ports.PaymentRepository
	Balances    ports.BalanceRepository
	Queries     ports.QueryAccessRepository
	Channels    ports.PaymentChannelRepository
	Escrows     ports.EscrowRepository
	Campaigns   ports.CampaignRepository
	Idempotency ports.IdempotencyRepository
	Outbox      ports.OutboxRepository
}

func NewRepositories(db *gorm.DB) Repositories {
	return Repositories{
		Stakes:      &stakeRepository{db: db},
		Payments:    &paymentRepository{db: db},
		Balances:    &balanceRepository{db: db},
		Queries:     &queryAccessRepository{db: db},
		Channels:    &paymentChannelRepository{db: db},
		Escrows:     &escrowRepository{db: db},
		Campaigns:   &campaignRepository{db: db},
		Idempotency: &idempotencyRepository{db: db},
		Outbox:      &outboxRepository{db: db},
	}
}

// versionedUpdate writes updates only when the row still carries version and
// bumps it. A stale writer gets domain.ErrConflict.
func versionedUpdate(db *gorm.DB, model any, keyColumn, key string, version int64, updates map[string]any) error {
	updates["version"] = gorm.Expr("version + 1")
	res := db.Model(model).Where(keyColumn+" = ? AND version = ?", key, version).Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected > 0 {
		return nil
	}
	var count int64
	if err := db.Model(model).Where(keyColumn+" = ?", key).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return domain.ErrConflict
	}
	return domain.ErrNotFound
}
