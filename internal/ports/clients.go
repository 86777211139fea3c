package ports

import (
	"context"
	"math/big"
	"time"

	"github.com/viralforge/mesh/services/trust-compliance/M42-trust-layer-service/internal/domain"
)

// TxReceipt identifies a ledger transaction. Simulated receipts come from the
// deterministic ledger used when no chain endpoint is configured.
type TxReceipt struct {
	TxHash      string
	BlockNumber uint64
	Simulated   bool
}

// TokenLedgerPort executes stake, slash and transfer movements on the token ledger.
type TokenLedgerPort interface {
	LockStake(ctx context.Context, owner string, amount *big.Int) (TxReceipt, error)
	ReleaseStake(ctx context.Context, owner string, amount *big.Int) (TxReceipt, error)
	BurnStake(ctx context.Context, owner string, amount *big.Int, reason string) (TxReceipt, error)
	Transfer(ctx context.Context, from, to string, amount domain.Amount, reference string) (TxReceipt, error)
}

const (
	SettlementMethodFacilitator = "facilitator"
	SettlementMethodOnChain     = "onchain"
	SettlementMethodSigned      = "signed_authorization"
)

type SettlementResult struct {
	Verified bool
	Method   string
	TxHash   string
}

// PaymentFacilitatorPort verifies that an x402 payment actually settled.
type PaymentFacilitatorPort interface {
	VerifySettlement(ctx context.Context, payment domain.Payment, proof domain.PaymentProof) (SettlementResult, error)
}

// ReputationSignalPort reads externally computed reputation and sybil risk.
type ReputationSignalPort interface {
	Query(ctx context.Context, owner string) (domain.TrustSignals, error)
}

type AuditRecord struct {
	Kind       string
	SubjectID  string
	Reference  string
	Payload    map[string]any
	OccurredAt time.Time
}

// AuditPublishPort is best effort; callers log failures and continue.
type AuditPublishPort interface {
	PublishEvidence(ctx context.Context, record AuditRecord) error
}

// PerformanceMonitorPort reports observed campaign metrics for a deal.
type PerformanceMonitorPort interface {
	Metrics(ctx context.Context, dealID, payee string) (domain.PerformanceMetrics, error)
}
