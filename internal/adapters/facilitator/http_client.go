package facilitator

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/viralforge/mesh/services/trust-compliance/M42-trust-layer-service/internal/domain"
	"github.com/viralforge/mesh/services/trust-compliance/M42-trust-layer-service/internal/ports"
)

type HTTPClientConfig struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
}

// HTTPClient asks an x402 facilitator whether a payment settled.
type HTTPClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

type verifyRequest struct {
	PaymentID string `json:"payment_id"`
	Amount    string `json:"amount"`
	Currency  string `json:"currency"`
	Recipient string `json:"recipient"`
	Resource  string `json:"resource"`
	Payer     string `json:"payer,omitempty"`
	TxHash    string `json:"tx_hash,omitempty"`
	Nonce     string `json:"nonce,omitempty"`
	Signature string `json:"signature,omitempty"`
}

type verifyResponse struct {
	Verified bool   `json:"verified"`
	TxHash   string `json:"tx_hash"`
	Reason   string `json:"reason"`
}

func NewHTTPClient(cfg HTTPClientConfig) *HTTPClient {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 8 * time.Second}
	}
	return &HTTPClient{
		baseURL:    strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
		apiKey:     strings.TrimSpace(cfg.APIKey),
		httpClient: httpClient,
	}
}

func (c *HTTPClient) VerifySettlement(ctx context.Context, payment domain.Payment, proof domain.PaymentProof) (ports.SettlementResult, error) {
	if c.baseURL == "" {
		return ports.SettlementResult{}, errors.New("facilitator base url is not configured")
	}
	body, err := json.Marshal(verifyRequest{
		PaymentID: payment.ID,
		Amount:    proof.Amount.String(),
		Currency:  proof.Currency,
		Recipient: proof.Recipient,
		Resource:  proof.Resource,
		Payer:     proof.Payer,
		TxHash:    proof.TxHash,
		Nonce:     proof.Nonce,
		Signature: proof.Signature,
	})
	if err != nil {
		return ports.SettlementResult{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/verify", bytes.NewReader(body))
	if err != nil {
		return ports.SettlementResult{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return ports.SettlementResult{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return ports.SettlementResult{}, fmt.Errorf("facilitator verify failed: status=%d body=%s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	var out verifyResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return ports.SettlementResult{}, fmt.Errorf("decode facilitator response: %w", err)
	}
	txHash := strings.TrimSpace(out.TxHash)
	if txHash == "" {
		txHash = proof.TxHash
	}
	return ports.SettlementResult{Verified: out.Verified, Method: ports.SettlementMethodFacilitator, TxHash: txHash}, nil
}
