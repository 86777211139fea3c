package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/viralforge/mesh/services/trust-compliance/M42-trust-layer-service/internal/adapters/security"
	"github.com/viralforge/mesh/services/trust-compliance/M42-trust-layer-service/internal/contracts"
)

func TestRootCommandRegistersGroups(t *testing.T) {
	expected := map[string][]string{
		"staking":  {"stake", "unstake", "slash", "requirements", "get", "history"},
		"payment":  {"create", "complete", "refund", "dispute", "get", "balance", "stats"},
		"channel":  {"open", "close", "get", "list"},
		"escrow":   {"create", "activate", "release", "slash", "get", "deals", "stats"},
		"trust":    {"score", "report"},
		"campaign": {"execute", "get"},
		"token":    nil,
	}
	for group, subs := range expected {
		cmd, _, err := rootCmd.Find([]string{group})
		if err != nil || cmd.Name() != group {
			t.Fatalf("expected %q to be registered, got %v", group, err)
		}
		for _, sub := range subs {
			found, _, err := rootCmd.Find([]string{group, sub})
			if err != nil || found.Name() != sub {
				t.Fatalf("expected %s %s to be registered", group, sub)
			}
		}
	}
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestStakeCommandSendsRequest(t *testing.T) {
	var got contracts.StakeRequest
	var auth, role string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/v1/trust/staking/stake" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		auth = r.Header.Get("Authorization")
		role = r.Header.Get("X-Actor-Role")
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(contracts.SuccessResponse{
			Status: "success",
			Data:   contracts.StakeResponse{Owner: "alice", Tier: "VERIFIED", Qualified: true},
		})
	}))
	defer server.Close()

	out, err := execute(t, "--server", server.URL, "--subject", "alice", "--role", "user", "--jwt-secret", "",
		"staking", "stake", "5000", "--target-tier", "VERIFIED")
	if err != nil {
		t.Fatalf("stake: %v", err)
	}
	if got.Amount != "5000" || got.TargetTier != "VERIFIED" {
		t.Fatalf("unexpected request body %+v", got)
	}
	if auth != "Bearer alice" || role != "user" {
		t.Fatalf("unexpected auth headers %q %q", auth, role)
	}
	if !strings.Contains(out, `"tier": "VERIFIED"`) {
		t.Fatalf("expected indented json output, got %s", out)
	}
}

func TestErrorEnvelopeIsReturned(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_ = json.NewEncoder(w).Encode(contracts.ErrorResponse{
			Status: "error",
			Error:  contracts.ErrorPayload{Code: "deal_not_found", Message: "deal not found"},
		})
	}))
	defer server.Close()

	_, err := execute(t, "--server", server.URL, "--subject", "brand", "--jwt-secret", "", "escrow", "get", "missing")
	var apiErr *apiError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected api error, got %v", err)
	}
	if apiErr.StatusCode != http.StatusNotFound || apiErr.Payload.Code != "deal_not_found" {
		t.Fatalf("unexpected api error %+v", apiErr)
	}
}

func TestTokenCommandMintsVerifiableToken(t *testing.T) {
	out, err := execute(t, "--subject", "oracle", "--role", "verifier", "--jwt-secret", "s3cret", "token")
	if err != nil {
		t.Fatalf("token: %v", err)
	}
	verifier, err := security.NewHMACVerifier("s3cret", "")
	if err != nil {
		t.Fatalf("verifier: %v", err)
	}
	identity, err := verifier.Verify(context.Background(), strings.TrimSpace(out))
	if err != nil {
		t.Fatalf("verify minted token: %v", err)
	}
	if identity.SubjectID != "oracle" || identity.Role != "verifier" {
		t.Fatalf("unexpected identity %+v", identity)
	}
}
