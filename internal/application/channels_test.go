package application_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/viralforge/mesh/services/trust-compliance/M42-trust-layer-service/internal/application"
	"github.com/viralforge/mesh/services/trust-compliance/M42-trust-layer-service/internal/domain"
)

func TestPaymentChannelLifecycle(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	channel, err := f.svc.OpenPaymentChannel(ctx, user("alice"), application.OpenChannelInput{
		Payee:    "bob",
		Deposit:  domain.Whole(5),
		Duration: time.Hour,
	})
	if err != nil {
		t.Fatalf("open channel: %v", err)
	}
	if channel.Payer != "alice" || channel.Deposit != domain.Whole(5) || !channel.ExpiresAt.Equal(startTime.Add(time.Hour)) {
		t.Fatalf("unexpected channel %+v", channel)
	}

	_, err = f.svc.OpenPaymentChannel(ctx, user("alice"), application.OpenChannelInput{Payee: "bob", Deposit: domain.Whole(1), Duration: time.Hour})
	if !errors.Is(err, domain.ErrChannelExists) {
		t.Fatalf("expected ErrChannelExists, got %v", err)
	}

	closed, err := f.svc.ClosePaymentChannel(ctx, user("alice"), application.CloseChannelInput{Payee: "bob"})
	if err != nil {
		t.Fatalf("close channel: %v", err)
	}
	if closed.Deposit != domain.Whole(5) {
		t.Fatalf("expected full deposit returned, got %s", closed.Deposit)
	}
	if _, err := f.svc.GetPaymentChannel(ctx, "alice", "bob"); !errors.Is(err, domain.ErrChannelNotFound) {
		t.Fatalf("expected closed channel removed, got %v", err)
	}
	if _, err := f.svc.ClosePaymentChannel(ctx, user("alice"), application.CloseChannelInput{Payee: "bob"}); !errors.Is(err, domain.ErrChannelNotFound) {
		t.Fatalf("expected ErrChannelNotFound, got %v", err)
	}

	moves := f.ledger.Movements()
	if len(moves) != 2 {
		t.Fatalf("expected reserve and return transfers, got %+v", moves)
	}
	account := domain.ChannelAccount("alice", "bob")
	if moves[0].From != "alice" || moves[0].To != account || moves[1].From != account || moves[1].To != "alice" {
		t.Fatalf("deposit did not round-trip through the channel account: %+v", moves)
	}
	types := f.outboxTypes()
	if !contains(types, domain.EventChannelOpened) || !contains(types, domain.EventChannelClosed) {
		t.Fatalf("expected channel events in outbox, got %v", types)
	}

	if _, err := f.svc.OpenPaymentChannel(ctx, user("alice"), application.OpenChannelInput{Payee: "bob", Deposit: domain.Whole(2), Duration: time.Minute}); err != nil {
		t.Fatalf("reopen after close: %v", err)
	}
}

func TestPaymentChannelValidationAndAccess(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	for name, input := range map[string]application.OpenChannelInput{
		"self":        {Payee: "alice", Deposit: domain.Whole(1), Duration: time.Hour},
		"no payee":    {Deposit: domain.Whole(1), Duration: time.Hour},
		"no deposit":  {Payee: "bob", Duration: time.Hour},
		"no duration": {Payee: "bob", Deposit: domain.Whole(1)},
	} {
		if _, err := f.svc.OpenPaymentChannel(ctx, user("alice"), input); !errors.Is(err, domain.ErrInvalidInput) {
			t.Fatalf("%s: expected ErrInvalidInput, got %v", name, err)
		}
	}
	if _, err := f.svc.OpenPaymentChannel(ctx, user("mallory"), application.OpenChannelInput{Payer: "alice", Payee: "bob", Deposit: domain.Whole(1), Duration: time.Hour}); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("expected ErrForbidden opening for someone else, got %v", err)
	}

	if _, err := f.svc.OpenPaymentChannel(ctx, user("alice"), application.OpenChannelInput{Payee: "bob", Deposit: domain.Whole(3), Duration: time.Hour}); err != nil {
		t.Fatalf("open channel: %v", err)
	}
	closeInput := application.CloseChannelInput{Payer: "alice", Payee: "bob"}
	if _, err := f.svc.ClosePaymentChannel(ctx, user("mallory"), closeInput); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("expected ErrForbidden for a stranger, got %v", err)
	}
	if _, err := f.svc.ClosePaymentChannel(ctx, user("bob"), closeInput); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("expected ErrForbidden for the payee before expiry, got %v", err)
	}
	f.clock.Advance(2 * time.Hour)
	if _, err := f.svc.ClosePaymentChannel(ctx, user("bob"), closeInput); err != nil {
		t.Fatalf("payee closing an expired channel: %v", err)
	}
}

func TestPaymentChannelLedgerFailureKeepsPairFree(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	f.ledger.FailWith(errors.New("insufficient balance"))
	_, err := f.svc.OpenPaymentChannel(ctx, user("alice"), application.OpenChannelInput{Payee: "bob", Deposit: domain.Whole(5), Duration: time.Hour})
	if !errors.Is(err, domain.ErrExternalService) {
		t.Fatalf("expected ErrExternalService, got %v", err)
	}
	f.ledger.FailWith(nil)
	if _, err := f.svc.OpenPaymentChannel(ctx, user("alice"), application.OpenChannelInput{Payee: "bob", Deposit: domain.Whole(5), Duration: time.Hour}); err != nil {
		t.Fatalf("open after ledger recovery: %v", err)
	}
	list, err := f.svc.ListPaymentChannels(ctx, "alice")
	if err != nil || len(list) != 1 || list[0].Payee != "bob" {
		t.Fatalf("expected one listed channel, got %+v (%v)", list, err)
	}
}
