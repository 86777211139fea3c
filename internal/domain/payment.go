package domain

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "PENDING"
	PaymentStatusCompleted PaymentStatus = "COMPLETED"
	PaymentStatusFailed    PaymentStatus = "FAILED"
	PaymentStatusRefunded  PaymentStatus = "REFUNDED"
	PaymentStatusDisputed  PaymentStatus = "DISPUTED"
)

// DefaultCurrency is the settlement token for every x402 payment.
const DefaultCurrency = "USDC"

// CanTransition encodes the one-directional payment lifecycle. COMPLETED may
// still be refunded; every other non-PENDING state is terminal.
func (s PaymentStatus) CanTransition(to PaymentStatus) bool {
	switch s {
	case PaymentStatusPending:
		return to == PaymentStatusCompleted || to == PaymentStatusFailed || to == PaymentStatusRefunded || to == PaymentStatusDisputed
	case PaymentStatusCompleted:
		return to == PaymentStatusRefunded
	default:
		return false
	}
}

const (
	PaymentStageDiscovery    = "discovery"
	PaymentStageVerification = "verification"
	PaymentStageSuccess      = "success"
	PaymentStageQueryAccess  = "query_access"
)

type PaymentConditions struct {
	Stage            string     `json:"stage,omitempty"`
	Expiry           *time.Time `json:"expiry,omitempty"`
	MaxResults       int        `json:"max_results,omitempty"`
	QualityThreshold float64    `json:"quality_threshold,omitempty"`
	VerificationKind string     `json:"verification_kind,omitempty"`
	CampaignID       string     `json:"campaign_id,omitempty"`
}

type Payment struct {
	ID           string
	From         string
	To           string
	Amount       Amount
	Currency     string
	ResourceHash string
	Conditions   *PaymentConditions
	Status       PaymentStatus
	Timestamp    time.Time
	Metadata     map[string]string
	Reason       string
	TxHash       string
	Version      int64
	UpdatedAt    time.Time
}

func (p Payment) Expired(now time.Time) bool {
	return p.Conditions != nil && p.Conditions.Expiry != nil && now.After(*p.Conditions.Expiry)
}

func (p *Payment) Transition(to PaymentStatus, now time.Time) error {
	if !p.Status.CanTransition(to) {
		return fmt.Errorf("%w: payment %s %s -> %s", ErrInvalidTransition, p.ID, p.Status, to)
	}
	p.Status = to
	p.UpdatedAt = now
	return nil
}

func (p Payment) Expectation() PaymentExpectation {
	return PaymentExpectation{Amount: p.Amount, Currency: p.Currency, Recipient: p.To, Resource: p.ResourceHash}
}

// PaymentExpectation is what a proof must match exactly.
type PaymentExpectation struct {
	Amount    Amount
	Currency  string
	Recipient string
	Resource  string
}

// PaymentProof is the evidence a payer presents for a settled x402 payment.
type PaymentProof struct {
	Amount    Amount     `json:"amount"`
	Currency  string     `json:"currency"`
	Recipient string     `json:"recipient"`
	Resource  string     `json:"resource"`
	Payer     string     `json:"payer,omitempty"`
	Timestamp *time.Time `json:"timestamp,omitempty"`
	TxHash    string     `json:"tx_hash,omitempty"`
	Nonce     string     `json:"nonce,omitempty"`
	Signature string     `json:"signature,omitempty"`
}

// ValidatePaymentProof rejects a proof when any of amount, currency, recipient
// or resource differs from expected. Field mismatch is checked before age so a
// stale proof that also mismatches always reports ErrPaymentMismatch.
func ValidatePaymentProof(expected PaymentExpectation, proof PaymentProof, now time.Time, maxAge time.Duration) error {
	var mismatched []string
	if proof.Amount != expected.Amount {
		mismatched = append(mismatched, "amount")
	}
	if !strings.EqualFold(strings.TrimSpace(proof.Currency), strings.TrimSpace(expected.Currency)) {
		mismatched = append(mismatched, "currency")
	}
	if strings.TrimSpace(proof.Recipient) != strings.TrimSpace(expected.Recipient) {
		mismatched = append(mismatched, "recipient")
	}
	if strings.TrimSpace(proof.Resource) != strings.TrimSpace(expected.Resource) {
		mismatched = append(mismatched, "resource")
	}
	if len(mismatched) > 0 {
		return fmt.Errorf("%w: %s", ErrPaymentMismatch, strings.Join(mismatched, ","))
	}
	if proof.Timestamp != nil && maxAge > 0 && now.Sub(*proof.Timestamp) > maxAge {
		return fmt.Errorf("%w: proof older than %s", ErrPaymentExpired, maxAge)
	}
	return nil
}

// Verification costs in whole currency units.
var verificationCosts = map[string]int64{
	"identity":             10,
	"sybil_analysis":       25,
	"reputation_audit":     15,
	"cross_platform_check": 20,
}

func VerificationCost(kind string) (Amount, error) {
	cost, ok := verificationCosts[strings.TrimSpace(kind)]
	if !ok {
		return 0, fmt.Errorf("%w: unknown verification kind %q", ErrInvalidInput, kind)
	}
	return Whole(cost), nil
}

const (
	DiscoveryBudgetPct        = 5
	DiscoveryMaxResults       = 50
	DiscoveryQualityThreshold = 0.7
	DiscoveryExpiry           = 24 * time.Hour
)

// PerformanceMetrics are the campaign outcome figures a payee reports.
type PerformanceMetrics struct {
	EngagementRate float64  `json:"engagement_rate"`
	Conversions    int64    `json:"conversions"`
	QualityRating  float64  `json:"quality_rating"`
	Evidence       []string `json:"evidence,omitempty"`
}

const (
	EngagementRateTarget = 0.05
	ConversionsTarget    = 100
	QualityRatingTarget  = 4.5
)

// SuccessBonus returns the bonus earned on top of base compensation.
func SuccessBonus(m PerformanceMetrics) Amount {
	var bonus Amount
	if m.EngagementRate >= EngagementRateTarget {
		bonus += Whole(50)
	}
	if m.Conversions >= ConversionsTarget {
		bonus += Whole(100)
	}
	if m.QualityRating >= QualityRatingTarget {
		bonus += Whole(75)
	}
	return bonus
}

type PaymentStatistics struct {
	User              string
	TotalTransactions int
	SuccessRate       float64
	AverageAmount     Amount
	DisputeRate       float64
	TotalReceived     Amount
	TotalSent         Amount
}

// TotalVolume is the settled value the user moved in either direction.
func (s PaymentStatistics) TotalVolume() Amount { return s.TotalReceived + s.TotalSent }

// ComputePaymentStatistics scans a user's history as payer and payee.
func ComputePaymentStatistics(user string, history []Payment) PaymentStatistics {
	out := PaymentStatistics{User: user}
	var completed, disputed int
	var sum Amount
	for _, p := range history {
		if p.From != user && p.To != user {
			continue
		}
		out.TotalTransactions++
		sum += p.Amount
		switch p.Status {
		case PaymentStatusCompleted:
			completed++
			if p.To == user {
				out.TotalReceived += p.Amount
			}
			if p.From == user {
				out.TotalSent += p.Amount
			}
		case PaymentStatusDisputed:
			disputed++
		}
	}
	if out.TotalTransactions == 0 {
		return out
	}
	n := float64(out.TotalTransactions)
	out.SuccessRate = float64(completed) / n
	out.DisputeRate = float64(disputed) / n
	out.AverageAmount = sum / Amount(out.TotalTransactions)
	return out
}

// QueryAccess grants a payer premium access to one resource until ExpiresAt.
type QueryAccess struct {
	Payer     string
	Resource  string
	PaymentID string
	Price     Amount
	GrantedAt time.Time
	ExpiresAt time.Time
}

func (q QueryAccess) ActiveAt(now time.Time) bool { return !now.After(q.ExpiresAt) }

// PaymentChannel reserves a payer's deposit toward one payee. A payer holds
// at most one open channel per payee.
type PaymentChannel struct {
	Payer     string
	Payee     string
	Deposit   Amount
	ReserveTx string
	OpenedAt  time.Time
	ExpiresAt time.Time
}

func (c PaymentChannel) ExpiredAt(now time.Time) bool { return now.After(c.ExpiresAt) }

// ChannelAccount names the ledger account holding a channel deposit.
func ChannelAccount(payer, payee string) string { return "channel:" + payer + ":" + payee }

// AccessReceipt is the externally published record of a paid query.
type AccessReceipt struct {
	Type          string `json:"type"`
	ID            string `json:"id"`
	Payer         string `json:"payer"`
	Recipient     string `json:"recipient"`
	Amount        string `json:"amount"`
	Token         string `json:"token"`
	ResourceUAL   string `json:"resourceUAL"`
	PaymentTx     string `json:"paymentTx"`
	PaymentMethod string `json:"paymentMethod"`
}

const (
	AccessReceiptType   = "AccessReceipt"
	PaymentMethodX402   = "x402"
	minReceiptTxHexSize = 8
)

var txHashPattern = regexp.MustCompile(`^0x[0-9a-fA-F]+$`)

// ValidateShape checks required fields and formats without consulting the ledger.
func (r AccessReceipt) ValidateShape() error {
	var missing []string
	for name, value := range map[string]string{
		"type": r.Type, "id": r.ID, "payer": r.Payer, "recipient": r.Recipient,
		"amount": r.Amount, "token": r.Token, "resourceUAL": r.ResourceUAL, "paymentTx": r.PaymentTx,
	} {
		if strings.TrimSpace(value) == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: receipt missing %s", ErrInvalidInput, strings.Join(sortedCopy(missing), ","))
	}
	if r.Type != AccessReceiptType {
		return fmt.Errorf("%w: receipt type %q", ErrInvalidInput, r.Type)
	}
	if r.PaymentMethod != PaymentMethodX402 {
		return fmt.Errorf("%w: payment method %q", ErrInvalidInput, r.PaymentMethod)
	}
	if !txHashPattern.MatchString(r.PaymentTx) || len(r.PaymentTx)-2 < minReceiptTxHexSize {
		return fmt.Errorf("%w: payment tx %q", ErrInvalidInput, r.PaymentTx)
	}
	return nil
}
