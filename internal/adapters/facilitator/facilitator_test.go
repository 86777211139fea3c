package facilitator

import (
	"context"
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/viralforge/mesh/services/trust-compliance/M42-trust-layer-service/internal/domain"
	"github.com/viralforge/mesh/services/trust-compliance/M42-trust-layer-service/internal/ports"
)

func samplePayment() (domain.Payment, domain.PaymentProof) {
	payment := domain.Payment{
		ID:           "pay-1",
		From:         "brand",
		To:           "treasury",
		Amount:       domain.Whole(50),
		Currency:     "USDC",
		ResourceHash: "discovery:c1",
		Status:       domain.PaymentStatusPending,
	}
	proof := domain.PaymentProof{
		Amount:    payment.Amount,
		Currency:  payment.Currency,
		Recipient: payment.To,
		Resource:  payment.ResourceHash,
		Nonce:     "n-1",
	}
	return payment, proof
}

func TestSignatureVerifierRecoversPayer(t *testing.T) {
	t.Parallel()

	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	payment, proof := samplePayment()
	proof.Payer = crypto.PubkeyToAddress(key.PublicKey).Hex()
	sig, err := crypto.Sign(accounts.TextHash([]byte(AuthorizationMessage(payment.ID, proof))), key)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	sig[crypto.RecoveryIDOffset] += 27
	proof.Signature = hexutil.Encode(sig)

	result, err := NewSignatureVerifier().VerifySettlement(context.Background(), payment, proof)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if !result.Verified || result.Method != ports.SettlementMethodSigned {
		t.Fatalf("expected verified signed authorization, got %+v", result)
	}

	proof.Amount = domain.Whole(51)
	result, err = NewSignatureVerifier().VerifySettlement(context.Background(), payment, proof)
	if err != nil {
		t.Fatalf("verify tampered: %v", err)
	}
	if result.Verified {
		t.Fatalf("expected tampered amount to fail verification")
	}
}

func TestSignatureVerifierRejectsMalformedInput(t *testing.T) {
	t.Parallel()

	payment, proof := samplePayment()
	if _, err := NewSignatureVerifier().VerifySettlement(context.Background(), payment, proof); !errors.Is(err, ErrNotApplicable) {
		t.Fatalf("expected not applicable without signature, got %v", err)
	}
	proof.Signature = "0x1234"
	proof.Payer = "0x00000000000000000000000000000000000000aa"
	if _, err := NewSignatureVerifier().VerifySettlement(context.Background(), payment, proof); !errors.Is(err, domain.ErrPaymentMismatch) {
		t.Fatalf("expected mismatch for short signature, got %v", err)
	}
}

type stubReceipts struct {
	status uint64
	err    error
}

func (s stubReceipts) TransactionReceipt(context.Context, common.Hash) (*types.Receipt, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &types.Receipt{Status: s.status, BlockNumber: big.NewInt(10)}, nil
}

func TestOnChainVerifier(t *testing.T) {
	t.Parallel()

	payment, proof := samplePayment()
	proof.TxHash = crypto.Keccak256Hash([]byte("tx")).Hex()

	ok, err := NewOnChainVerifier(stubReceipts{status: types.ReceiptStatusSuccessful}).VerifySettlement(context.Background(), payment, proof)
	if err != nil || !ok.Verified || ok.Method != ports.SettlementMethodOnChain {
		t.Fatalf("expected verified receipt, got %+v err=%v", ok, err)
	}
	failed, err := NewOnChainVerifier(stubReceipts{status: types.ReceiptStatusFailed}).VerifySettlement(context.Background(), payment, proof)
	if err != nil || failed.Verified {
		t.Fatalf("expected reverted receipt to be unverified, got %+v err=%v", failed, err)
	}
	proof.TxHash = "0xabc"
	if _, err := NewOnChainVerifier(stubReceipts{}).VerifySettlement(context.Background(), payment, proof); !errors.Is(err, domain.ErrPaymentMismatch) {
		t.Fatalf("expected malformed hash mismatch, got %v", err)
	}
}

func TestHTTPClientVerify(t *testing.T) {
	t.Parallel()

	var got verifyRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/verify" || r.Method != http.MethodPost {
			http.NotFound(w, r)
			return
		}
		if r.Header.Get("Authorization") != "Bearer k1" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		_ = json.NewEncoder(w).Encode(verifyResponse{Verified: true, TxHash: "0xfeed"})
	}))
	defer server.Close()

	payment, proof := samplePayment()
	client := NewHTTPClient(HTTPClientConfig{BaseURL: server.URL + "/", APIKey: "k1", HTTPClient: server.Client()})
	result, err := client.VerifySettlement(context.Background(), payment, proof)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if !result.Verified || result.TxHash != "0xfeed" || result.Method != ports.SettlementMethodFacilitator {
		t.Fatalf("unexpected result: %+v", result)
	}
	if got.PaymentID != "pay-1" || got.Amount != "50.000000" {
		t.Fatalf("unexpected request payload: %+v", got)
	}
}

func TestHTTPClientSurfacesServerErrors(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "down", http.StatusBadGateway)
	}))
	defer server.Close()

	payment, proof := samplePayment()
	if _, err := NewHTTPClient(HTTPClientConfig{BaseURL: server.URL}).VerifySettlement(context.Background(), payment, proof); err == nil {
		t.Fatalf("expected error for 502")
	}
}

type stubVerifier struct {
	result ports.SettlementResult
	err    error
	calls  int
}

func (s *stubVerifier) VerifySettlement(context.Context, domain.Payment, domain.PaymentProof) (ports.SettlementResult, error) {
	s.calls++
	return s.result, s.err
}

func TestChainFallsThroughToNextVerifier(t *testing.T) {
	t.Parallel()

	down := &stubVerifier{err: errors.New("facilitator down")}
	skip := &stubVerifier{err: ErrNotApplicable}
	ok := &stubVerifier{result: ports.SettlementResult{Verified: true, Method: ports.SettlementMethodSigned}}
	payment, proof := samplePayment()

	result, err := NewChain(down, nil, skip, ok).VerifySettlement(context.Background(), payment, proof)
	if err != nil || !result.Verified || result.Method != ports.SettlementMethodSigned {
		t.Fatalf("expected signed fallback, got %+v err=%v", result, err)
	}
	if down.calls != 1 || skip.calls != 1 || ok.calls != 1 {
		t.Fatalf("expected each verifier tried once")
	}

	if _, err := NewChain(down).VerifySettlement(context.Background(), payment, proof); err == nil {
		t.Fatalf("expected error when the only verifier fails")
	}
	if _, err := NewChain(skip).VerifySettlement(context.Background(), payment, proof); err == nil {
		t.Fatalf("expected error when no verifier applies")
	}
}
