package application

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/viralforge/mesh/services/trust-compliance/M42-trust-layer-service/internal/contracts"
	"github.com/viralforge/mesh/services/trust-compliance/M42-trust-layer-service/internal/domain"
)

// OpenPaymentChannel reserves the deposit on the ledger under the channel
// account. A payer holds one channel per payee until it is closed.
func (s *Service) OpenPaymentChannel(ctx context.Context, actor Actor, input OpenChannelInput) (domain.PaymentChannel, error) {
	input.Payer = ownerOrSubject(input.Payer, actor)
	if err := requireSelfOrPrivileged(actor, input.Payer); err != nil {
		return domain.PaymentChannel{}, err
	}
	input.Payee = strings.TrimSpace(input.Payee)
	if input.Payee == "" || input.Payee == input.Payer {
		return domain.PaymentChannel{}, fmt.Errorf("%w: payee is required and must differ from payer", domain.ErrInvalidInput)
	}
	if input.Deposit <= 0 || input.Duration <= 0 {
		return domain.PaymentChannel{}, fmt.Errorf("%w: deposit and duration must be positive", domain.ErrInvalidInput)
	}
	return idempotent(ctx, s, actor, "open_payment_channel", input, func() (domain.PaymentChannel, error) {
		unlock := s.locks.Lock(channelLockKey(input.Payer, input.Payee))
		defer unlock()

		if _, err := s.channels.Get(ctx, input.Payer, input.Payee); err == nil {
			return domain.PaymentChannel{}, fmt.Errorf("%w: %s to %s", domain.ErrChannelExists, input.Payer, input.Payee)
		} else if !errors.Is(err, domain.ErrChannelNotFound) {
			return domain.PaymentChannel{}, err
		}

		callCtx, cancel := s.withExternalTimeout(ctx)
		receipt, err := s.ledger.Transfer(callCtx, input.Payer, domain.ChannelAccount(input.Payer, input.Payee), input.Deposit, "channel:open")
		cancel()
		if err != nil {
			return domain.PaymentChannel{}, externalFailure("reserve channel deposit", err)
		}
		now := s.nowFn()
		channel := domain.PaymentChannel{
			Payer:     input.Payer,
			Payee:     input.Payee,
			Deposit:   input.Deposit,
			ReserveTx: receipt.TxHash,
			OpenedAt:  now,
			ExpiresAt: now.Add(input.Duration),
		}
		if err := s.channels.Create(ctx, channel); err != nil {
			s.logError(ctx, "channel deposit reserved but channel not stored", "open_payment_channel", err,
				"payer", input.Payer, "payee", input.Payee, "tx_hash", receipt.TxHash)
			return domain.PaymentChannel{}, err
		}
		s.enqueueChannelEvent(ctx, domain.EventChannelOpened, channel, receipt.TxHash, actor.RequestID)
		return channel, nil
	})
}

// ClosePaymentChannel returns the reserved deposit to the payer and removes
// the channel. The payee may also close a channel once it has expired.
func (s *Service) ClosePaymentChannel(ctx context.Context, actor Actor, input CloseChannelInput) (domain.PaymentChannel, error) {
	if err := requireActor(actor); err != nil {
		return domain.PaymentChannel{}, err
	}
	input.Payer = ownerOrSubject(input.Payer, actor)
	input.Payee = strings.TrimSpace(input.Payee)
	if input.Payee == "" {
		return domain.PaymentChannel{}, fmt.Errorf("%w: payee is required", domain.ErrInvalidInput)
	}
	return idempotent(ctx, s, actor, "close_payment_channel", input, func() (domain.PaymentChannel, error) {
		unlock := s.locks.Lock(channelLockKey(input.Payer, input.Payee))
		defer unlock()

		channel, err := s.channels.Get(ctx, input.Payer, input.Payee)
		if err != nil {
			return domain.PaymentChannel{}, err
		}
		if !canCloseChannel(actor, channel, s.nowFn()) {
			return domain.PaymentChannel{}, fmt.Errorf("%w: %s cannot close channel %s to %s", domain.ErrForbidden, actor.SubjectID, channel.Payer, channel.Payee)
		}

		callCtx, cancel := s.withExternalTimeout(ctx)
		receipt, err := s.ledger.Transfer(callCtx, domain.ChannelAccount(channel.Payer, channel.Payee), channel.Payer, channel.Deposit, "channel:close")
		cancel()
		if err != nil {
			return domain.PaymentChannel{}, externalFailure("return channel deposit", err)
		}
		if err := s.channels.Delete(ctx, channel.Payer, channel.Payee); err != nil {
			s.logError(ctx, "channel deposit returned but channel not removed", "close_payment_channel", err,
				"payer", channel.Payer, "payee", channel.Payee, "tx_hash", receipt.TxHash)
			return domain.PaymentChannel{}, err
		}
		s.enqueueChannelEvent(ctx, domain.EventChannelClosed, channel, receipt.TxHash, actor.RequestID)
		return channel, nil
	})
}

func canCloseChannel(actor Actor, channel domain.PaymentChannel, now time.Time) bool {
	switch {
	case actor.privileged(), actor.SubjectID == channel.Payer:
		return true
	case actor.SubjectID == channel.Payee:
		return channel.ExpiredAt(now)
	default:
		return false
	}
}

func (s *Service) GetPaymentChannel(ctx context.Context, payer, payee string) (domain.PaymentChannel, error) {
	payer, payee = strings.TrimSpace(payer), strings.TrimSpace(payee)
	if payer == "" || payee == "" {
		return domain.PaymentChannel{}, domain.ErrInvalidInput
	}
	return s.channels.Get(ctx, payer, payee)
}

func (s *Service) ListPaymentChannels(ctx context.Context, payer string) ([]domain.PaymentChannel, error) {
	payer = strings.TrimSpace(payer)
	if payer == "" {
		return nil, domain.ErrInvalidInput
	}
	return s.channels.ListByPayer(ctx, payer)
}

func (s *Service) enqueueChannelEvent(ctx context.Context, eventType string, c domain.PaymentChannel, txHash, traceID string) {
	s.enqueueAfterCommit(ctx, eventType, traceID, c.Payer, contracts.ChannelEventPayload{
		Payer:     c.Payer,
		Payee:     c.Payee,
		Deposit:   c.Deposit.String(),
		ExpiresAt: c.ExpiresAt,
		TxHash:    txHash,
	}, s.nowFn())
}
