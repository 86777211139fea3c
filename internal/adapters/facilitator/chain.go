package facilitator

import (
	"context"
	"errors"

	"github.com/viralforge/mesh/services/trust-compliance/M42-trust-layer-service/internal/domain"
	"github.com/viralforge/mesh/services/trust-compliance/M42-trust-layer-service/internal/ports"
)

// Chain tries each verifier in order and returns the first verified result.
// Verifiers that do not apply to the proof are skipped.
type Chain struct {
	verifiers []ports.PaymentFacilitatorPort
}

func NewChain(verifiers ...ports.PaymentFacilitatorPort) *Chain {
	out := make([]ports.PaymentFacilitatorPort, 0, len(verifiers))
	for _, v := range verifiers {
		if v != nil {
			out = append(out, v)
		}
	}
	return &Chain{verifiers: out}
}

func (c *Chain) VerifySettlement(ctx context.Context, payment domain.Payment, proof domain.PaymentProof) (ports.SettlementResult, error) {
	var (
		lastErr    error
		lastResult ports.SettlementResult
		tried      bool
	)
	for _, v := range c.verifiers {
		result, err := v.VerifySettlement(ctx, payment, proof)
		if errors.Is(err, ErrNotApplicable) {
			continue
		}
		tried = true
		if err != nil {
			lastErr = err
			continue
		}
		if result.Verified {
			return result, nil
		}
		lastResult = result
	}
	if lastErr != nil && !lastResult.Verified && lastResult.Method == "" {
		return ports.SettlementResult{}, lastErr
	}
	if !tried {
		return ports.SettlementResult{}, errors.New("no verifier applies to the payment proof")
	}
	return lastResult, nil
}
