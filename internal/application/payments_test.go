package application_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/viralforge/mesh/services/trust-compliance/M42-trust-layer-service/internal/application"
	"github.com/viralforge/mesh/services/trust-compliance/M42-trust-layer-service/internal/domain"
)

func (f *fixture) pendingPayment(t *testing.T, conditions *domain.PaymentConditions) domain.Payment {
	t.Helper()
	p, err := f.svc.CreatePaymentRequest(context.Background(), user("alice"), application.CreatePaymentInput{
		To:         "bob",
		Amount:     domain.Whole(10),
		Resource:   "report:42",
		Conditions: conditions,
	})
	if err != nil {
		t.Fatalf("create payment: %v", err)
	}
	return p
}

func matchingProof(p domain.Payment, at time.Time) *domain.PaymentProof {
	return &domain.PaymentProof{Amount: p.Amount, Currency: p.Currency, Recipient: p.To, Resource: p.ResourceHash, Payer: p.From, Timestamp: &at}
}

func TestCreatePaymentValidation(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	p := f.pendingPayment(t, nil)
	if p.Status != domain.PaymentStatusPending || p.Currency != domain.DefaultCurrency || p.From != "alice" {
		t.Fatalf("unexpected payment %+v", p)
	}

	for name, in := range map[string]application.CreatePaymentInput{
		"self":     {To: "alice", Amount: domain.Whole(1), Resource: "r"},
		"zero":     {To: "bob", Amount: 0, Resource: "r"},
		"resource": {To: "bob", Amount: domain.Whole(1)},
	} {
		if _, err := f.svc.CreatePaymentRequest(context.Background(), user("alice"), in); !errors.Is(err, domain.ErrInvalidInput) {
			t.Fatalf("%s: expected ErrInvalidInput, got %v", name, err)
		}
	}
}

func TestCompleteExpiredPaymentFails(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	expiry := startTime.Add(time.Hour)
	p := f.pendingPayment(t, &domain.PaymentConditions{Expiry: &expiry})

	f.clock.Advance(2 * time.Hour)
	_, err := f.svc.CompletePayment(context.Background(), user("alice"), application.CompletePaymentInput{PaymentID: p.ID})
	if !errors.Is(err, domain.ErrPaymentExpired) {
		t.Fatalf("expected ErrPaymentExpired, got %v", err)
	}
	stored, err := f.svc.GetPayment(context.Background(), p.ID)
	if err != nil {
		t.Fatalf("get payment: %v", err)
	}
	if stored.Status != domain.PaymentStatusFailed {
		t.Fatalf("expected FAILED, got %s", stored.Status)
	}
	if bal, _ := f.svc.GetBalance(context.Background(), "bob"); bal != 0 {
		t.Fatalf("expired payment moved funds: %s", bal)
	}
	if !contains(f.outboxTypes(), domain.EventPaymentFailed) {
		t.Fatalf("expected %s in outbox", domain.EventPaymentFailed)
	}
}

func TestCompletePaymentWithVerifiedProof(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	p := f.pendingPayment(t, nil)

	done, err := f.svc.CompletePayment(context.Background(), user("alice"), application.CompletePaymentInput{
		PaymentID: p.ID,
		Proof:     matchingProof(p, startTime.Add(-time.Minute)),
	})
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if done.Status != domain.PaymentStatusCompleted || done.TxHash != "0xfeedface" {
		t.Fatalf("unexpected completed payment %+v", done)
	}
	if bal, _ := f.svc.GetBalance(context.Background(), "bob"); bal != domain.Whole(10) {
		t.Fatalf("expected bob credited 10, got %s", bal)
	}
	if _, err := f.svc.CompletePayment(context.Background(), user("alice"), application.CompletePaymentInput{PaymentID: p.ID}); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("second completion must fail, got %v", err)
	}

	refunded, err := f.svc.RefundPayment(context.Background(), user("bob"), application.RefundPaymentInput{PaymentID: p.ID, Reason: "goodwill"})
	if err != nil {
		t.Fatalf("refund: %v", err)
	}
	if refunded.Status != domain.PaymentStatusRefunded {
		t.Fatalf("expected REFUNDED, got %s", refunded.Status)
	}
	if bal, _ := f.svc.GetBalance(context.Background(), "bob"); bal != 0 {
		t.Fatalf("expected refund to debit bob, got %s", bal)
	}
}

func TestCompletePaymentRejectsMismatchedProof(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	p := f.pendingPayment(t, nil)
	proof := matchingProof(p, startTime)
	proof.Amount = domain.Whole(9)

	_, err := f.svc.CompletePayment(context.Background(), user("alice"), application.CompletePaymentInput{PaymentID: p.ID, Proof: proof})
	if !errors.Is(err, domain.ErrPaymentMismatch) {
		t.Fatalf("expected ErrPaymentMismatch, got %v", err)
	}
	stored, _ := f.svc.GetPayment(context.Background(), p.ID)
	if stored.Status != domain.PaymentStatusPending {
		t.Fatalf("mismatched proof must leave payment PENDING, got %s", stored.Status)
	}
	if f.facilitator.calls != 0 {
		t.Fatalf("facilitator must not be consulted for a mismatched proof")
	}
}

func TestCompletePaymentFacilitatorFailures(t *testing.T) {
	t.Parallel()

	f := newFixture(t, withoutFacilitator())
	p := f.pendingPayment(t, nil)
	_, err := f.svc.CompletePayment(context.Background(), user("alice"), application.CompletePaymentInput{PaymentID: p.ID, Proof: matchingProof(p, startTime)})
	if !errors.Is(err, domain.ErrExternalService) {
		t.Fatalf("expected ErrExternalService without facilitator, got %v", err)
	}

	g := newFixture(t)
	g.facilitator.err = errors.New("facilitator timeout")
	q := g.pendingPayment(t, nil)
	_, err = g.svc.CompletePayment(context.Background(), user("alice"), application.CompletePaymentInput{PaymentID: q.ID, Proof: matchingProof(q, startTime)})
	if !errors.Is(err, domain.ErrExternalService) {
		t.Fatalf("expected ErrExternalService, got %v", err)
	}
	stored, _ := g.svc.GetPayment(context.Background(), q.ID)
	if stored.Status != domain.PaymentStatusPending {
		t.Fatalf("facilitator failure must leave payment PENDING, got %s", stored.Status)
	}
}

func TestDisputePaymentRequiresParty(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	p := f.pendingPayment(t, nil)
	if _, err := f.svc.DisputePayment(context.Background(), user("mallory"), application.DisputePaymentInput{PaymentID: p.ID, Reason: "spam"}); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
	disputed, err := f.svc.DisputePayment(context.Background(), user("bob"), application.DisputePaymentInput{PaymentID: p.ID, Reason: "not delivered"})
	if err != nil {
		t.Fatalf("dispute: %v", err)
	}
	if disputed.Status != domain.PaymentStatusDisputed || disputed.Reason != "not delivered" {
		t.Fatalf("unexpected disputed payment %+v", disputed)
	}
	stats, err := f.svc.GetPaymentStatistics(context.Background(), "alice")
	if err != nil || stats.DisputeRate != 1 {
		t.Fatalf("expected dispute rate 1, got %+v (%v)", stats, err)
	}
}

func TestDiscoveryAndVerificationPayments(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	flow, err := f.svc.InitiateDiscoveryPayment(context.Background(), user("brand"), application.DiscoveryInput{CampaignID: "c-1", CampaignBudget: domain.Whole(10_000)})
	if err != nil {
		t.Fatalf("discovery: %v", err)
	}
	if flow.Payment.Amount != domain.Whole(500) || flow.Payment.Status != domain.PaymentStatusPending || flow.Payment.To != "treasury" {
		t.Fatalf("unexpected discovery payment %+v", flow.Payment)
	}
	if flow.MaxResults != 50 || flow.QualityThreshold != 0.7 || !flow.ExpiresAt.Equal(startTime.Add(24*time.Hour)) {
		t.Fatalf("unexpected discovery flow %+v", flow)
	}
	if _, err := f.svc.InitiateDiscoveryPayment(context.Background(), user("brand"), application.DiscoveryInput{CampaignBudget: domain.Whole(20_000_000)}); !errors.Is(err, domain.ErrBudgetExceeded) {
		t.Fatalf("expected ErrBudgetExceeded, got %v", err)
	}

	verification, err := f.svc.InitiateVerificationPayment(context.Background(), user("brand"), application.VerificationInput{Kind: "sybil_analysis", Subject: "creator"})
	if err != nil {
		t.Fatalf("verification: %v", err)
	}
	if verification.Amount != domain.Whole(25) || verification.ResourceHash != "verification:sybil_analysis:creator" {
		t.Fatalf("unexpected verification payment %+v", verification)
	}
	if _, err := f.svc.InitiateVerificationPayment(context.Background(), user("brand"), application.VerificationInput{Kind: "horoscope"}); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestReleaseSuccessPaymentAddsBonus(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	p, err := f.svc.ReleaseSuccessPayment(context.Background(), user("brand"), application.SuccessPaymentInput{
		CampaignID:       "c-1",
		Payer:            "brand",
		Payee:            "creator",
		Metrics:          domain.PerformanceMetrics{EngagementRate: 0.06, Conversions: 120, QualityRating: 4.7},
		BaseCompensation: domain.Whole(100),
	})
	if err != nil {
		t.Fatalf("success payment: %v", err)
	}
	if p.Amount != domain.Whole(325) || p.Status != domain.PaymentStatusCompleted {
		t.Fatalf("unexpected success payment %+v", p)
	}
	if bal, _ := f.svc.GetBalance(context.Background(), "creator"); bal != domain.Whole(325) {
		t.Fatalf("expected creator balance 325, got %s", bal)
	}
}

func TestQueryAccessLifecycle(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	price, err := f.svc.QueryPrice(context.Background(), "dataset:trends")
	if err != nil || price != domain.Whole(1) {
		t.Fatalf("expected base price 1, got %s (%v)", price, err)
	}
	if err := f.svc.SetQueryPrice(context.Background(), user("alice"), "dataset:trends", domain.Whole(3)); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("expected ErrForbidden for a plain user, got %v", err)
	}
	if err := f.svc.SetQueryPrice(context.Background(), role("data-co", application.RoleProvider), "dataset:trends", domain.Whole(3)); err != nil {
		t.Fatalf("set price: %v", err)
	}

	res, err := f.svc.PayForQuery(context.Background(), user("alice"), application.QueryAccessInput{Resource: "dataset:trends", Duration: time.Hour})
	if err != nil {
		t.Fatalf("pay for query: %v", err)
	}
	if res.Access.Price != domain.Whole(3) || res.Payment.Status != domain.PaymentStatusCompleted {
		t.Fatalf("unexpected query access %+v", res)
	}
	ok, err := f.svc.HasQueryAccess(context.Background(), "alice", "dataset:trends")
	if err != nil || !ok {
		t.Fatalf("expected access, got %v (%v)", ok, err)
	}
	if ok, _ := f.svc.HasQueryAccess(context.Background(), "bob", "dataset:trends"); ok {
		t.Fatalf("bob never paid")
	}
	f.clock.Advance(2 * time.Hour)
	if ok, _ := f.svc.HasQueryAccess(context.Background(), "alice", "dataset:trends"); ok {
		t.Fatalf("expected access to lapse")
	}

	verification, err := f.svc.VerifyAccessReceipt(context.Background(), domain.AccessReceipt{
		Type: domain.AccessReceiptType, ID: res.Payment.ID, Payer: "alice", Recipient: "treasury",
		Amount: "3.000000", Token: "USDC", ResourceUAL: "dataset:trends",
		PaymentTx: "0xabcdef0123", PaymentMethod: domain.PaymentMethodX402,
	})
	if err != nil || !verification.Valid {
		t.Fatalf("expected receipt to verify, got %+v (%v)", verification, err)
	}
	tampered, err := f.svc.VerifyAccessReceipt(context.Background(), domain.AccessReceipt{
		Type: domain.AccessReceiptType, ID: res.Payment.ID, Payer: "alice", Recipient: "treasury",
		Amount: "1.000000", Token: "USDC", ResourceUAL: "dataset:trends",
		PaymentTx: "0xabcdef0123", PaymentMethod: domain.PaymentMethodX402,
	})
	if err != nil || tampered.Valid || len(tampered.Errors) != 1 {
		t.Fatalf("expected amount mismatch, got %+v (%v)", tampered, err)
	}
}

func TestPaymentWritesRequireAParty(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	if _, err := f.svc.CreatePaymentRequest(context.Background(), user("mallory"), application.CreatePaymentInput{
		From: "alice", To: "bob", Amount: domain.Whole(1), Resource: "r",
	}); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("create for another payer: expected ErrForbidden, got %v", err)
	}

	p := f.pendingPayment(t, nil)
	if _, err := f.svc.CompletePayment(context.Background(), user("mallory"), application.CompletePaymentInput{PaymentID: p.ID}); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("outsider complete: expected ErrForbidden, got %v", err)
	}
	if _, err := f.svc.CompletePayment(context.Background(), user("bob"), application.CompletePaymentInput{PaymentID: p.ID}); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("recipient complete: expected ErrForbidden, got %v", err)
	}
	if stored, _ := f.svc.GetPayment(context.Background(), p.ID); stored.Status != domain.PaymentStatusPending {
		t.Fatalf("rejected completion changed status to %s", stored.Status)
	}

	if _, err := f.svc.CompletePayment(context.Background(), role("ops", application.RoleAdmin), application.CompletePaymentInput{PaymentID: p.ID}); err != nil {
		t.Fatalf("admin complete: %v", err)
	}
	if _, err := f.svc.RefundPayment(context.Background(), user("mallory"), application.RefundPaymentInput{PaymentID: p.ID}); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("outsider refund: expected ErrForbidden, got %v", err)
	}
	if _, err := f.svc.RefundPayment(context.Background(), user("alice"), application.RefundPaymentInput{PaymentID: p.ID}); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("payer refund of settled payment: expected ErrForbidden, got %v", err)
	}
	if bal, _ := f.svc.GetBalance(context.Background(), "bob"); bal != domain.Whole(10) {
		t.Fatalf("rejected refunds moved funds: %s", bal)
	}

	q := f.pendingPayment(t, nil)
	withdrawn, err := f.svc.RefundPayment(context.Background(), user("alice"), application.RefundPaymentInput{PaymentID: q.ID, Reason: "cancelled"})
	if err != nil || withdrawn.Status != domain.PaymentStatusRefunded {
		t.Fatalf("payer withdraw of pending request: %+v (%v)", withdrawn, err)
	}
}
