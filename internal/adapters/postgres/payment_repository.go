package postgres

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/viralforge/mesh/services/trust-compliance/M42-trust-layer-service/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type paymentRepository struct {
	db *gorm.DB
}

func (r *paymentRepository) Create(ctx context.Context, payment domain.Payment) error {
	rec, err := toPaymentModel(payment)
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

func (r *paymentRepository) GetByID(ctx context.Context, paymentID string) (domain.Payment, error) {
	var rec paymentModel
	if err := r.db.WithContext(ctx).Where("payment_id = ?", strings.TrimSpace(paymentID)).Take(&rec).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Payment{}, domain.ErrNotFound
		}
		return domain.Payment{}, err
	}
	return toDomainPayment(rec)
}

func (r *paymentRepository) Update(ctx context.Context, payment domain.Payment) error {
	rec, err := toPaymentModel(payment)
	if err != nil {
		return err
	}
	return versionedUpdate(r.db.WithContext(ctx), &paymentModel{}, "payment_id", rec.PaymentID, payment.Version, map[string]any{
		"status":     rec.Status,
		"reason":     rec.Reason,
		"tx_hash":    rec.TxHash,
		"metadata":   rec.Metadata,
		"updated_at": rec.UpdatedAt,
	})
}

func (r *paymentRepository) ListByUser(ctx context.Context, user string) ([]domain.Payment, error) {
	user = strings.TrimSpace(user)
	var rows []paymentModel
	if err := r.db.WithContext(ctx).Where("from_user = ? OR to_user = ?", user, user).Order("created_at asc").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]domain.Payment, 0, len(rows))
	for _, row := range rows {
		p, err := toDomainPayment(row)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

type balanceRepository struct {
	db *gorm.DB
}

func (r *balanceRepository) Get(ctx context.Context, user string) (domain.Amount, error) {
	var rec balanceModel
	if err := r.db.WithContext(ctx).Where("user_id = ?", strings.TrimSpace(user)).Take(&rec).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, nil
		}
		return 0, err
	}
	return domain.Amount(rec.Balance), nil
}

func (r *balanceRepository) Adjust(ctx context.Context, user string, delta domain.Amount, at time.Time) (domain.Amount, error) {
	var out domain.Amount
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		rec := balanceModel{UserID: user, Balance: int64(delta), UpdatedAt: at}
		if err := tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "user_id"}},
			DoUpdates: clause.Assignments(map[string]any{
				"balance":    gorm.Expr("balances.balance + EXCLUDED.balance"),
				"updated_at": at,
			}),
		}).Create(&rec).Error; err != nil {
			return err
		}
		var current balanceModel
		if err := tx.Where("user_id = ?", user).Take(&current).Error; err != nil {
			return err
		}
		out = domain.Amount(current.Balance)
		return nil
	})
	return out, err
}

type queryAccessRepository struct {
	db *gorm.DB
}

func (r *queryAccessRepository) SetPrice(ctx context.Context, resource string, price domain.Amount) error {
	rec := queryPriceModel{Resource: resource, Price: int64(price)}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "resource"}},
		DoUpdates: clause.AssignmentColumns([]string{"price"}),
	}).Create(&rec).Error
}

func (r *queryAccessRepository) GetPrice(ctx context.Context, resource string) (domain.Amount, bool, error) {
	var rec queryPriceModel
	if err := r.db.WithContext(ctx).Where("resource = ?", resource).Take(&rec).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, false, nil
		}
		return 0, false, err
	}
	return domain.Amount(rec.Price), true, nil
}

func (r *queryAccessRepository) Grant(ctx context.Context, access domain.QueryAccess) error {
	rec := queryAccessModel{
		Payer: access.Payer, Resource: access.Resource, PaymentID: access.PaymentID,
		Price: int64(access.Price), GrantedAt: access.GrantedAt, ExpiresAt: access.ExpiresAt,
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "payer"}, {Name: "resource"}},
		DoUpdates: clause.AssignmentColumns([]string{"payment_id", "price", "granted_at", "expires_at"}),
	}).Create(&rec).Error
}

func (r *queryAccessRepository) Get(ctx context.Context, payer, resource string) (domain.QueryAccess, error) {
	var rec queryAccessModel
	if err := r.db.WithContext(ctx).Where("payer = ? AND resource = ?", payer, resource).Take(&rec).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.QueryAccess{}, domain.ErrNotFound
		}
		return domain.QueryAccess{}, err
	}
	return domain.QueryAccess{
		Payer: rec.Payer, Resource: rec.Resource, PaymentID: rec.PaymentID,
		Price: domain.Amount(rec.Price), GrantedAt: rec.GrantedAt, ExpiresAt: rec.ExpiresAt,
	}, nil
}
