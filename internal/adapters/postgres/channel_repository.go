package postgres

import (
	"context"

	"github.com/viralforge/mesh/services/trust-compliance/M42-trust-layer-service/internal/domain"
	"gorm.io/gorm"
)

type paymentChannelRepository struct {
	db *gorm.DB
}

func (r *paymentChannelRepository) Create(ctx context.Context, channel domain.PaymentChannel) error {
	rec := paymentChannelModel{
		Payer: channel.Payer, Payee: channel.Payee, Deposit: int64(channel.Deposit),
		ReserveTx: channel.ReserveTx, OpenedAt: channel.OpenedAt, ExpiresAt: channel.ExpiresAt,
	}
	if err := r.db.WithContext(ctx).Create(&rec).Error; err != nil {
		if isUniqueViolation(err) {
			return domain.ErrChannelExists
		}
		return err
	}
	return nil
}

func (r *paymentChannelRepository) Get(ctx context.Context, payer, payee string) (domain.PaymentChannel, error) {
	var rec paymentChannelModel
	res := r.db.WithContext(ctx).Where("payer = ? AND payee = ?", payer, payee).Limit(1).Find(&rec)
	if res.Error != nil {
		return domain.PaymentChannel{}, res.Error
	}
	if res.RowsAffected == 0 {
		return domain.PaymentChannel{}, domain.ErrChannelNotFound
	}
	return channelFromModel(rec), nil
}

func (r *paymentChannelRepository) Delete(ctx context.Context, payer, payee string) error {
	res := r.db.WithContext(ctx).Where("payer = ? AND payee = ?", payer, payee).Delete(&paymentChannelModel{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrChannelNotFound
	}
	return nil
}

func (r *paymentChannelRepository) ListByPayer(ctx context.Context, payer string) ([]domain.PaymentChannel, error) {
	var rows []paymentChannelModel
	if err := r.db.WithContext(ctx).Where("payer = ?", payer).Order("payee ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]domain.PaymentChannel, 0, len(rows))
	for _, rec := range rows {
		out = append(out, channelFromModel(rec))
	}
	return out, nil
}

func channelFromModel(rec paymentChannelModel) domain.PaymentChannel {
	return domain.PaymentChannel{
		Payer: rec.Payer, Payee: rec.Payee, Deposit: domain.Amount(rec.Deposit),
		ReserveTx: rec.ReserveTx, OpenedAt: rec.OpenedAt, ExpiresAt: rec.ExpiresAt,
	}
}
