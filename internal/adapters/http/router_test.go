package http

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/viralforge/mesh/services/trust-compliance/M42-trust-layer-service/internal/adapters/chain"
	"github.com/viralforge/mesh/services/trust-compliance/M42-trust-layer-service/internal/adapters/memory"
	"github.com/viralforge/mesh/services/trust-compliance/M42-trust-layer-service/internal/adapters/security"
	"github.com/viralforge/mesh/services/trust-compliance/M42-trust-layer-service/internal/application"
	"github.com/viralforge/mesh/services/trust-compliance/M42-trust-layer-service/internal/contracts"
)

type envelope struct {
	Status string                 `json:"status"`
	Data   json.RawMessage        `json:"data"`
	Error  contracts.ErrorPayload `json:"error"`
}

func newTestRouter(t *testing.T, verifier *security.HMACVerifier) http.Handler {
	t.Helper()
	repos := memory.NewRepositories()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc := application.NewService(application.Dependencies{
		Stakes:      repos.Stakes,
		Payments:    repos.Payments,
		Balances:    repos.Balances,
		Queries:     repos.Queries,
		Channels:    repos.Channels,
		Escrows:     repos.Escrows,
		Campaigns:   repos.Campaigns,
		Idempotency: repos.Idempotency,
		Outbox:      repos.Outbox,
		Ledger:      chain.NewSimulatedLedger(),
		Now:         func() time.Time { return now },
	})
	if verifier == nil {
		return NewRouter(NewHandler(svc, nil))
	}
	return NewRouter(NewHandler(svc, verifier))
}

func doJSON(t *testing.T, h http.Handler, method, path, subject, role string, body any) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if subject != "" {
		req.Header.Set("Authorization", "Bearer "+subject)
	}
	if role != "" {
		req.Header.Set("X-Actor-Role", role)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	var env envelope
	_ = json.Unmarshal(rec.Body.Bytes(), &env)
	return rec, env
}

func TestHealthAndAuth(t *testing.T) {
	t.Parallel()

	router := newTestRouter(t, nil)
	rec, _ := doJSON(t, router, http.MethodGet, "/healthz", "", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 from healthz, got %d", rec.Code)
	}
	if rec.Header().Get("X-Request-Id") == "" {
		t.Fatalf("expected request id header")
	}
	rec, env := doJSON(t, router, http.MethodGet, "/v1/trust/staking/alice", "", "", nil)
	if rec.Code != http.StatusUnauthorized || env.Error.Code != "unauthorized" {
		t.Fatalf("expected 401 without bearer, got %d %+v", rec.Code, env)
	}
}

func TestStakeAndReadBack(t *testing.T) {
	t.Parallel()

	router := newTestRouter(t, nil)
	rec, env := doJSON(t, router, http.MethodPost, "/v1/trust/staking/stake", "alice", "", contracts.StakeRequest{Amount: "tokens:5000"})
	if rec.Code != http.StatusOK {
		t.Fatalf("stake: expected 200, got %d body=%s", rec.Code, rec.Body.String())
	}
	var staked contracts.StakeResponse
	if err := json.Unmarshal(env.Data, &staked); err != nil {
		t.Fatalf("decode stake: %v", err)
	}
	if staked.Tier != "VERIFIED" || !staked.Qualified || staked.TxHash == "" {
		t.Fatalf("unexpected stake response: %+v", staked)
	}

	rec, env = doJSON(t, router, http.MethodGet, "/v1/trust/staking/alice", "bob", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get stake: expected 200, got %d", rec.Code)
	}
	var acc contracts.StakeResponse
	_ = json.Unmarshal(env.Data, &acc)
	if acc.TotalStaked != "5000000000000000000000" {
		t.Fatalf("unexpected total staked %q", acc.TotalStaked)
	}

	rec, env = doJSON(t, router, http.MethodGet, "/v1/trust/staking/alice/requirements?tier=premium", "alice", "", nil)
	var reqs contracts.RequirementsResponse
	_ = json.Unmarshal(env.Data, &reqs)
	if rec.Code != http.StatusOK || reqs.Meets {
		t.Fatalf("expected VERIFIED stake to miss PREMIUM, got %d %+v", rec.Code, reqs)
	}

	rec, env = doJSON(t, router, http.MethodPost, "/v1/trust/staking/stake", "mallory", "", contracts.StakeRequest{Owner: "alice", Amount: "tokens:1"})
	if rec.Code != http.StatusForbidden || env.Error.Code != "forbidden" {
		t.Fatalf("expected 403 staking for another owner, got %d %+v", rec.Code, env)
	}
}

func TestUnstakeDuringLockMapsTo422(t *testing.T) {
	t.Parallel()

	router := newTestRouter(t, nil)
	doJSON(t, router, http.MethodPost, "/v1/trust/staking/stake", "alice", "", contracts.StakeRequest{Amount: "tokens:1000"})
	rec, env := doJSON(t, router, http.MethodPost, "/v1/trust/staking/unstake", "alice", "", contracts.UnstakeRequest{Amount: "tokens:10"})
	if rec.Code != http.StatusUnprocessableEntity || env.Error.Code != "lock_period_active" {
		t.Fatalf("expected 422 lock_period_active, got %d %+v", rec.Code, env)
	}
}

func TestSlashRequiresArbitratorRole(t *testing.T) {
	t.Parallel()

	router := newTestRouter(t, nil)
	doJSON(t, router, http.MethodPost, "/v1/trust/staking/stake", "alice", "", contracts.StakeRequest{Amount: "tokens:5000"})
	body := contracts.SlashRequest{Owner: "alice", Condition: "Campaign_Fraud", Evidence: []string{"e1", "e2"}}

	rec, env := doJSON(t, router, http.MethodPost, "/v1/trust/staking/slash", "bob", "", body)
	if rec.Code != http.StatusForbidden || env.Error.Code != "arbitration_required" {
		t.Fatalf("expected 403 arbitration_required, got %d %+v", rec.Code, env)
	}
	rec, env = doJSON(t, router, http.MethodPost, "/v1/trust/staking/slash", "arb-1", "arbitrator", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected arbitrator slash to succeed, got %d %s", rec.Code, rec.Body.String())
	}
	var slashed contracts.SlashResponse
	_ = json.Unmarshal(env.Data, &slashed)
	if slashed.SlashedAmount == "0" || slashed.Condition != "Campaign_Fraud" {
		t.Fatalf("unexpected slash response: %+v", slashed)
	}
}

func TestEscrowReleaseHonoursVerifierRole(t *testing.T) {
	t.Parallel()

	router := newTestRouter(t, nil)
	rec, env := doJSON(t, router, http.MethodPost, "/v1/trust/escrow", "brand", "", contracts.CreateEscrowRequest{
		Payee:                "creator",
		TotalAmount:          "100",
		PerformanceThreshold: 0.7,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create escrow: expected 201, got %d %s", rec.Code, rec.Body.String())
	}
	var deal contracts.EscrowDealResponse
	_ = json.Unmarshal(env.Data, &deal)
	if rec, _ := doJSON(t, router, http.MethodPost, "/v1/trust/escrow/"+deal.DealID+"/activate", "brand", "", nil); rec.Code != http.StatusOK {
		t.Fatalf("activate: expected 200, got %d %s", rec.Code, rec.Body.String())
	}

	proof := contracts.ReleaseEscrowRequest{Proof: contracts.PerformanceMetrics{EngagementRate: 0.05, Conversions: 100, QualityRating: 4.5}}
	rec, env = doJSON(t, router, http.MethodPost, "/v1/trust/escrow/"+deal.DealID+"/release", "creator", "", proof)
	var attempt contracts.ReleaseResultResponse
	_ = json.Unmarshal(env.Data, &attempt)
	if rec.Code != http.StatusOK || attempt.ReleasedAmount != "0.000000" || attempt.Success {
		t.Fatalf("non-verifier must not release funds, got %d %+v", rec.Code, attempt)
	}

	rec, env = doJSON(t, router, http.MethodPost, "/v1/trust/escrow/"+deal.DealID+"/release", "oracle", "verifier", proof)
	var released contracts.ReleaseResultResponse
	_ = json.Unmarshal(env.Data, &released)
	if rec.Code != http.StatusOK || released.ReleasedAmount != "100.000000" || released.Status != "SETTLED" || !released.Success {
		t.Fatalf("verifier release: got %d %+v", rec.Code, released)
	}

	rec, env = doJSON(t, router, http.MethodGet, "/v1/trust/users/creator/balance", "creator", "", nil)
	var bal contracts.BalanceResponse
	_ = json.Unmarshal(env.Data, &bal)
	if rec.Code != http.StatusOK || bal.Balance != "100.000000" {
		t.Fatalf("expected creator balance 100, got %d %+v", rec.Code, bal)
	}

	rec, env = doJSON(t, router, http.MethodGet, "/v1/trust/escrow/missing", "brand", "", nil)
	if rec.Code != http.StatusNotFound || env.Error.Code != "deal_not_found" {
		t.Fatalf("expected 404 deal_not_found, got %d %+v", rec.Code, env)
	}
}

func TestPaymentLifecycleOverHTTP(t *testing.T) {
	t.Parallel()

	router := newTestRouter(t, nil)
	rec, env := doJSON(t, router, http.MethodPost, "/v1/trust/payments", "alice", "", contracts.CreatePaymentRequest{
		From:     "alice",
		To:       "bob",
		Amount:   "12.5",
		Resource: "report:42",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create payment: expected 201, got %d %s", rec.Code, rec.Body.String())
	}
	var p contracts.PaymentResponse
	_ = json.Unmarshal(env.Data, &p)
	if p.Status != "PENDING" || p.Amount != "12.500000" || p.Currency != "USDC" {
		t.Fatalf("unexpected payment: %+v", p)
	}

	mismatch := contracts.CompletePaymentRequest{Proof: &contracts.PaymentProof{Amount: "12", Currency: "USDC", Recipient: "bob", Resource: "report:42"}}
	rec, env = doJSON(t, router, http.MethodPost, "/v1/trust/payments/"+p.ID+"/complete", "alice", "", mismatch)
	if rec.Code != http.StatusUnprocessableEntity || env.Error.Code != "payment_mismatch" {
		t.Fatalf("expected 422 payment_mismatch, got %d %+v", rec.Code, env)
	}

	rec, env = doJSON(t, router, http.MethodPost, "/v1/trust/payments/"+p.ID+"/dispute", "bob", "", contracts.ReasonRequest{Reason: "not delivered"})
	var disputed contracts.PaymentResponse
	_ = json.Unmarshal(env.Data, &disputed)
	if rec.Code != http.StatusOK || disputed.Status != "DISPUTED" {
		t.Fatalf("expected dispute to succeed, got %d %+v", rec.Code, disputed)
	}

	rec, _ = doJSON(t, router, http.MethodPost, "/v1/trust/payments", "alice", "", map[string]any{"amount": 5})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for numeric amount, got %d", rec.Code)
	}
}

func TestJWTVerifierResolvesActor(t *testing.T) {
	t.Parallel()

	verifier, err := security.NewHMACVerifier("secret", "")
	if err != nil {
		t.Fatalf("verifier: %v", err)
	}
	router := newTestRouter(t, verifier)
	token, _ := verifier.Sign("alice", "user", time.Minute)

	rec, env := doJSON(t, router, http.MethodPost, "/v1/trust/staking/stake", token, "admin", contracts.StakeRequest{Amount: "tokens:1000"})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected token stake to succeed, got %d %s", rec.Code, rec.Body.String())
	}
	var staked contracts.StakeResponse
	_ = json.Unmarshal(env.Data, &staked)
	if staked.Owner != "alice" {
		t.Fatalf("expected owner from token subject, got %q", staked.Owner)
	}

	rec, _ = doJSON(t, router, http.MethodGet, "/v1/trust/staking/alice", "alice", "", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected raw subject to be rejected when a verifier is configured, got %d", rec.Code)
	}
}

func TestPaymentChannelRoutes(t *testing.T) {
	t.Parallel()

	router := newTestRouter(t, nil)
	open := contracts.OpenChannelRequest{Payee: "bob", Deposit: "2.5", DurationSeconds: 3600}
	rec, env := doJSON(t, router, http.MethodPost, "/v1/trust/channels", "alice", "", open)
	if rec.Code != http.StatusCreated {
		t.Fatalf("open channel: expected 201, got %d body=%s", rec.Code, rec.Body.String())
	}
	var channel contracts.PaymentChannelResponse
	_ = json.Unmarshal(env.Data, &channel)
	if channel.Payer != "alice" || channel.Deposit != "2.500000" || channel.ReserveTx == "" {
		t.Fatalf("unexpected channel response: %+v", channel)
	}

	rec, env = doJSON(t, router, http.MethodPost, "/v1/trust/channels", "alice", "", open)
	if rec.Code != http.StatusConflict || env.Error.Code != "channel_exists" {
		t.Fatalf("expected 409 channel_exists, got %d %+v", rec.Code, env)
	}
	rec, _ = doJSON(t, router, http.MethodGet, "/v1/trust/channels/bob?payer=alice", "carol", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get channel: expected 200, got %d", rec.Code)
	}
	rec, env = doJSON(t, router, http.MethodDelete, "/v1/trust/channels/bob?payer=alice", "carol", "", nil)
	if rec.Code != http.StatusForbidden || env.Error.Code != "forbidden" {
		t.Fatalf("expected 403 closing another payer's channel, got %d %+v", rec.Code, env)
	}
	rec, _ = doJSON(t, router, http.MethodDelete, "/v1/trust/channels/bob", "alice", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("close channel: expected 200, got %d body=%s", rec.Code, rec.Body.String())
	}
	rec, env = doJSON(t, router, http.MethodDelete, "/v1/trust/channels/bob", "alice", "", nil)
	if rec.Code != http.StatusNotFound || env.Error.Code != "channel_not_found" {
		t.Fatalf("expected 404 channel_not_found, got %d %+v", rec.Code, env)
	}
}
