package application

import (
	"math/big"
	"time"

	"github.com/viralforge/mesh/services/trust-compliance/M42-trust-layer-service/internal/domain"
)

type Config struct {
	ServiceName            string
	IdempotencyTTL         time.Duration
	ExternalCallTimeout    time.Duration
	ProofMaxAge            time.Duration
	TrustCacheTTL          time.Duration
	TreasuryAccount        string
	BaseQueryPrice         domain.Amount
	DefaultQueryAccess     time.Duration
	MaxCampaignBudget      domain.Amount
	CampaignMaxMatches     int
	SettlementConcurrency  int
	FraudEvidenceThreshold int
	DefaultMinReputation   float64
	DefaultMaxSybilRisk    float64
}

const (
	RoleAdmin      = "admin"
	RoleArbitrator = "arbitrator"
	RoleVerifier   = "verifier"
	RoleProvider   = "provider"
	RoleSystem     = "system"
	RoleUser       = "user"
)

type Actor struct {
	SubjectID      string
	Role           string
	RequestID      string
	IdempotencyKey string
}

func (a Actor) privileged() bool { return a.Role == RoleAdmin || a.Role == RoleSystem }

// IsArbitrator reports whether the actor may execute arbitration-gated slashes.
func (a Actor) IsArbitrator() bool { return a.Role == RoleArbitrator || a.privileged() }

// IsVerifier reports whether the actor may trigger escrow settlement.
func (a Actor) IsVerifier() bool { return a.Role == RoleVerifier || a.privileged() }

type StakeInput struct {
	Owner      string
	Amount     *big.Int
	TargetTier domain.Tier
}

type StakeResult struct {
	Owner                string
	Tier                 domain.Tier
	Qualified            bool
	TotalStaked          *big.Int
	LockedUntil          time.Time
	ReputationMultiplier int64
	SlashableAmount      *big.Int
	TxHash               string
}

type UnstakeInput struct {
	Owner  string
	Amount *big.Int
}

type UnstakeResult struct {
	Owner          string
	RemainingStake *big.Int
	NewTier        domain.Tier
	Qualified      bool
	TxHash         string
}

type SlashInput struct {
	Owner        string
	Condition    domain.SlashKind
	Evidence     []string
	IsArbitrator bool
}

type SlashResult struct {
	Owner          string
	Condition      domain.SlashKind
	SlashedAmount  *big.Int
	RemainingStake *big.Int
	NewTier        domain.Tier
	TxHash         string
}

type CreatePaymentInput struct {
	From       string
	To         string
	Amount     domain.Amount
	Currency   string
	Resource   string
	Conditions *domain.PaymentConditions
	Metadata   map[string]string
}

type DiscoveryInput struct {
	Brand          string
	CampaignID     string
	CampaignBudget domain.Amount
}

type DiscoveryFlow struct {
	Payment          domain.Payment
	MaxResults       int
	QualityThreshold float64
	ExpiresAt        time.Time
}

type VerificationInput struct {
	Payer   string
	Kind    string
	Subject string
}

type SuccessPaymentInput struct {
	CampaignID       string
	Payer            string
	Payee            string
	Metrics          domain.PerformanceMetrics
	BaseCompensation domain.Amount
}

type CompletePaymentInput struct {
	PaymentID string
	Proof     *domain.PaymentProof
}

type RefundPaymentInput struct {
	PaymentID string
	Reason    string
}

type DisputePaymentInput struct {
	PaymentID string
	Reason    string
}

type QueryAccessInput struct {
	Payer    string
	Resource string
	Duration time.Duration
}

type QueryAccessResult struct {
	Access  domain.QueryAccess
	Payment domain.Payment
}

type OpenChannelInput struct {
	Payer    string
	Payee    string
	Deposit  domain.Amount
	Duration time.Duration
}

type CloseChannelInput struct {
	Payer string
	Payee string
}

type ReceiptVerification struct {
	Valid     bool
	PaymentID string
	Errors    []string
}

type CreateEscrowInput struct {
	Payer                string
	Payee                string
	TotalAmount          domain.Amount
	PerformanceThreshold float64
	VerificationHash     string
	Metadata             map[string]string
}

type ReleaseEscrowInput struct {
	DealID        string
	Proof         domain.PerformanceMetrics
	MaxReleasable domain.Amount
	IsVerifier    bool
}

type SlashDealInput struct {
	DealID       string
	Reason       string
	Evidence     []string
	IsArbitrator bool
}

// CampaignRequirements narrows matching. Nil thresholds and a zero
// MaxMatches fall back to the service defaults one field at a time.
type CampaignRequirements struct {
	MinReputation *float64
	MaxSybilRisk  *float64
	MinTier       domain.Tier
	MaxMatches    int
}

type ExecuteCampaignInput struct {
	CampaignID       string
	Brand            string
	Budget           domain.Amount
	Candidates       []domain.Candidate
	Requirements     CampaignRequirements
	Performance      map[string]domain.PerformanceMetrics
	VerificationHash string
}
