package chain

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/viralforge/mesh/services/trust-compliance/M42-trust-layer-service/internal/domain"
)

func TestSimulatedLedgerRecordsMovements(t *testing.T) {
	t.Parallel()

	ledger := NewSimulatedLedger()
	ctx := context.Background()

	lock, err := ledger.LockStake(ctx, "alice", domain.Tokens(1000))
	if err != nil {
		t.Fatalf("lock stake: %v", err)
	}
	transfer, err := ledger.Transfer(ctx, "escrow:d1", "bob", domain.Whole(25), "escrow_release:d1")
	if err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if !lock.Simulated || !transfer.Simulated {
		t.Fatalf("expected simulated receipts")
	}
	if lock.TxHash == transfer.TxHash {
		t.Fatalf("expected distinct tx hashes")
	}
	if !strings.HasPrefix(lock.TxHash, "0x") || len(lock.TxHash) != 66 {
		t.Fatalf("unexpected tx hash %q", lock.TxHash)
	}
	if transfer.BlockNumber != lock.BlockNumber+1 {
		t.Fatalf("expected increasing block numbers, got %d then %d", lock.BlockNumber, transfer.BlockNumber)
	}

	moves := ledger.Movements()
	if len(moves) != 2 {
		t.Fatalf("expected 2 movements, got %d", len(moves))
	}
	if moves[1].Op != "transfer" || moves[1].Amount != "25000000" || moves[1].To != "bob" {
		t.Fatalf("unexpected transfer movement: %+v", moves[1])
	}
}

func TestSimulatedLedgerRejectsNonPositiveAmounts(t *testing.T) {
	t.Parallel()

	ledger := NewSimulatedLedger()
	if _, err := ledger.Transfer(context.Background(), "a", "b", 0, "ref"); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
	if _, err := ledger.BurnStake(context.Background(), "a", domain.Tokens(0), "Spam"); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}

func TestSimulatedLedgerFailWith(t *testing.T) {
	t.Parallel()

	ledger := NewSimulatedLedger()
	boom := errors.New("rpc down")
	ledger.FailWith(boom)
	if _, err := ledger.LockStake(context.Background(), "alice", domain.Tokens(1)); !errors.Is(err, boom) {
		t.Fatalf("expected injected failure, got %v", err)
	}
	ledger.FailWith(nil)
	if _, err := ledger.LockStake(context.Background(), "alice", domain.Tokens(1)); err != nil {
		t.Fatalf("expected recovery, got %v", err)
	}
	if len(ledger.Movements()) != 1 {
		t.Fatalf("failed calls must not be recorded")
	}
}

func TestOwnerAddress(t *testing.T) {
	t.Parallel()

	hex := "0x00000000000000000000000000000000000000aa"
	if got := OwnerAddress(hex).Hex(); !strings.EqualFold(got, hex) {
		t.Fatalf("expected hex address passthrough, got %s", got)
	}
	if OwnerAddress("alice") != OwnerAddress(" alice ") {
		t.Fatalf("expected trimmed ids to map to the same address")
	}
	if OwnerAddress("alice") == OwnerAddress("bob") {
		t.Fatalf("expected distinct addresses for distinct ids")
	}
}
