package facilitator

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/viralforge/mesh/services/trust-compliance/M42-trust-layer-service/internal/domain"
	"github.com/viralforge/mesh/services/trust-compliance/M42-trust-layer-service/internal/ports"
)

var ErrNotApplicable = errors.New("verifier not applicable to proof")

// ReceiptReader is satisfied by *ethclient.Client.
type ReceiptReader interface {
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

// OnChainVerifier accepts a proof whose transaction hash has a successful
// receipt on chain.
type OnChainVerifier struct {
	reader ReceiptReader
}

func NewOnChainVerifier(reader ReceiptReader) *OnChainVerifier {
	return &OnChainVerifier{reader: reader}
}

func (v *OnChainVerifier) VerifySettlement(ctx context.Context, _ domain.Payment, proof domain.PaymentProof) (ports.SettlementResult, error) {
	raw := strings.TrimSpace(proof.TxHash)
	if raw == "" {
		return ports.SettlementResult{}, ErrNotApplicable
	}
	if len(strings.TrimPrefix(raw, "0x")) != 2*common.HashLength {
		return ports.SettlementResult{}, fmt.Errorf("%w: malformed tx hash", domain.ErrPaymentMismatch)
	}
	hash := common.HexToHash(raw)
	receipt, err := v.reader.TransactionReceipt(ctx, hash)
	if err != nil {
		return ports.SettlementResult{}, fmt.Errorf("read receipt %s: %w", hash.Hex(), err)
	}
	return ports.SettlementResult{
		Verified: receipt.Status == types.ReceiptStatusSuccessful,
		Method:   ports.SettlementMethodOnChain,
		TxHash:   hash.Hex(),
	}, nil
}
