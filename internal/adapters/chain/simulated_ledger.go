package chain

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/viralforge/mesh/services/trust-compliance/M42-trust-layer-service/internal/domain"
	"github.com/viralforge/mesh/services/trust-compliance/M42-trust-layer-service/internal/ports"
)

// Movement is one ledger operation recorded by SimulatedLedger.
type Movement struct {
	Op        string
	From      string
	To        string
	Amount    string
	Reference string
	TxHash    string
}

// SimulatedLedger is the ledger used when no chain endpoint is configured.
// Transaction hashes are derived deterministically from the operation and a
// sequence number, and every receipt is marked Simulated.
type SimulatedLedger struct {
	mu        sync.Mutex
	block     uint64
	movements []Movement
	failWith  error
}

func NewSimulatedLedger() *SimulatedLedger {
	return &SimulatedLedger{}
}

// FailWith makes every subsequent call return err. Passing nil clears it.
func (l *SimulatedLedger) FailWith(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.failWith = err
}

func (l *SimulatedLedger) LockStake(_ context.Context, owner string, amount *big.Int) (ports.TxReceipt, error) {
	return l.record("lock_stake", "", owner, amount, "")
}

func (l *SimulatedLedger) ReleaseStake(_ context.Context, owner string, amount *big.Int) (ports.TxReceipt, error) {
	return l.record("release_stake", owner, "", amount, "")
}

func (l *SimulatedLedger) BurnStake(_ context.Context, owner string, amount *big.Int, reason string) (ports.TxReceipt, error) {
	return l.record("burn_stake", owner, "", amount, reason)
}

func (l *SimulatedLedger) Transfer(_ context.Context, from, to string, amount domain.Amount, reference string) (ports.TxReceipt, error) {
	if amount <= 0 {
		return ports.TxReceipt{}, fmt.Errorf("%w: transfer amount must be positive", domain.ErrInvalidInput)
	}
	return l.record("transfer", from, to, big.NewInt(int64(amount)), reference)
}

// Movements returns a copy of every recorded operation in order.
func (l *SimulatedLedger) Movements() []Movement {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Movement(nil), l.movements...)
}

func (l *SimulatedLedger) record(op, from, to string, amount *big.Int, reference string) (ports.TxReceipt, error) {
	if amount == nil || amount.Sign() <= 0 {
		return ports.TxReceipt{}, fmt.Errorf("%w: %s amount must be positive", domain.ErrInvalidInput, op)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.failWith != nil {
		return ports.TxReceipt{}, l.failWith
	}
	l.block++
	hash := crypto.Keccak256Hash(
		[]byte(op),
		[]byte(strings.TrimSpace(from)),
		[]byte(strings.TrimSpace(to)),
		amount.Bytes(),
		[]byte(reference),
		new(big.Int).SetUint64(l.block).Bytes(),
	).Hex()
	l.movements = append(l.movements, Movement{
		Op:        op,
		From:      from,
		To:        to,
		Amount:    amount.String(),
		Reference: reference,
		TxHash:    hash,
	})
	return ports.TxReceipt{TxHash: hash, BlockNumber: l.block, Simulated: true}, nil
}
