package facilitator

import (
	"context"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/viralforge/mesh/services/trust-compliance/M42-trust-layer-service/internal/domain"
	"github.com/viralforge/mesh/services/trust-compliance/M42-trust-layer-service/internal/ports"
)

// SignatureVerifier accepts a proof carrying a personal_sign signature by the
// payer over the canonical authorization message.
type SignatureVerifier struct{}

func NewSignatureVerifier() SignatureVerifier { return SignatureVerifier{} }

// AuthorizationMessage is the text a payer signs to authorize a payment.
func AuthorizationMessage(paymentID string, proof domain.PaymentProof) string {
	return strings.Join([]string{
		"x402-authorization",
		strings.TrimSpace(paymentID),
		proof.Amount.String(),
		strings.ToUpper(strings.TrimSpace(proof.Currency)),
		strings.TrimSpace(proof.Recipient),
		strings.TrimSpace(proof.Resource),
		strings.TrimSpace(proof.Nonce),
	}, "\n")
}

func (SignatureVerifier) VerifySettlement(_ context.Context, payment domain.Payment, proof domain.PaymentProof) (ports.SettlementResult, error) {
	sigHex := strings.TrimSpace(proof.Signature)
	if sigHex == "" {
		return ports.SettlementResult{}, ErrNotApplicable
	}
	if !common.IsHexAddress(proof.Payer) {
		return ports.SettlementResult{}, fmt.Errorf("%w: signed authorization needs a hex payer address", domain.ErrPaymentMismatch)
	}
	sig, err := hexutil.Decode(sigHex)
	if err != nil || len(sig) != crypto.SignatureLength {
		return ports.SettlementResult{}, fmt.Errorf("%w: malformed signature", domain.ErrPaymentMismatch)
	}
	sig = append([]byte(nil), sig...)
	if sig[crypto.RecoveryIDOffset] >= 27 {
		sig[crypto.RecoveryIDOffset] -= 27
	}
	hash := accounts.TextHash([]byte(AuthorizationMessage(payment.ID, proof)))
	pub, err := crypto.SigToPub(hash, sig)
	if err != nil {
		return ports.SettlementResult{}, fmt.Errorf("%w: recover signer: %v", domain.ErrPaymentMismatch, err)
	}
	signer := crypto.PubkeyToAddress(*pub)
	return ports.SettlementResult{
		Verified: signer == common.HexToAddress(proof.Payer),
		Method:   ports.SettlementMethodSigned,
		TxHash:   proof.TxHash,
	}, nil
}
