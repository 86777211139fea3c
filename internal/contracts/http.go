package contracts

import "time"

// Stake amounts are base-unit integer strings, or "tokens:<decimal>" on input.
// Payment amounts are decimal USDC strings ("12.500000").

type StakeRequest struct {
	Owner      string `json:"owner"`
	Amount     string `json:"amount"`
	TargetTier string `json:"target_tier,omitempty"`
}

type UnstakeRequest struct {
	Owner  string `json:"owner"`
	Amount string `json:"amount"`
}

type SlashRequest struct {
	Owner     string   `json:"owner"`
	Condition string   `json:"condition"`
	Evidence  []string `json:"evidence"`
}

type StakeResponse struct {
	Owner                string    `json:"owner"`
	Tier                 string    `json:"tier"`
	Qualified            bool      `json:"qualified"`
	TotalStaked          string    `json:"total_staked"`
	LockedUntil          time.Time `json:"locked_until"`
	ReputationMultiplier int64     `json:"reputation_multiplier"`
	SlashableAmount      string    `json:"slashable_amount"`
	SlashedTotal         string    `json:"slashed_total,omitempty"`
	TxHash               string    `json:"tx_hash,omitempty"`
}

type UnstakeResponse struct {
	Owner          string `json:"owner"`
	RemainingStake string `json:"remaining_stake"`
	NewTier        string `json:"new_tier"`
	Qualified      bool   `json:"qualified"`
	TxHash         string `json:"tx_hash,omitempty"`
}

type SlashResponse struct {
	Owner          string `json:"owner"`
	Condition      string `json:"condition"`
	SlashedAmount  string `json:"slashed_amount"`
	RemainingStake string `json:"remaining_stake"`
	NewTier        string `json:"new_tier"`
	TxHash         string `json:"tx_hash,omitempty"`
}

type StakeEventResponse struct {
	EventID    string    `json:"event_id"`
	Kind       string    `json:"kind"`
	Amount     string    `json:"amount"`
	TotalAfter string    `json:"total_after"`
	Tier       string    `json:"tier"`
	Reason     string    `json:"reason,omitempty"`
	TxHash     string    `json:"tx_hash,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

type RequirementsResponse struct {
	Owner        string `json:"owner"`
	RequiredTier string `json:"required_tier"`
	Meets        bool   `json:"meets"`
}

type PaymentConditions struct {
	Stage            string     `json:"stage,omitempty"`
	Expiry           *time.Time `json:"expiry,omitempty"`
	MaxResults       int        `json:"max_results,omitempty"`
	QualityThreshold float64    `json:"quality_threshold,omitempty"`
	VerificationKind string     `json:"verification_kind,omitempty"`
	CampaignID       string     `json:"campaign_id,omitempty"`
}

type CreatePaymentRequest struct {
	From       string             `json:"from"`
	To         string             `json:"to"`
	Amount     string             `json:"amount"`
	Currency   string             `json:"currency,omitempty"`
	Resource   string             `json:"resource"`
	Conditions *PaymentConditions `json:"conditions,omitempty"`
	Metadata   map[string]string  `json:"metadata,omitempty"`
}

type DiscoveryPaymentRequest struct {
	Brand          string `json:"brand"`
	CampaignID     string `json:"campaign_id,omitempty"`
	CampaignBudget string `json:"campaign_budget"`
}

type VerificationPaymentRequest struct {
	Payer   string `json:"payer"`
	Kind    string `json:"kind"`
	Subject string `json:"subject"`
}

type PerformanceMetrics struct {
	EngagementRate float64  `json:"engagement_rate"`
	Conversions    int64    `json:"conversions"`
	QualityRating  float64  `json:"quality_rating"`
	Evidence       []string `json:"evidence,omitempty"`
}

type SuccessPaymentRequest struct {
	CampaignID       string             `json:"campaign_id"`
	Payer            string             `json:"payer,omitempty"`
	Payee            string             `json:"payee"`
	Metrics          PerformanceMetrics `json:"metrics"`
	BaseCompensation string             `json:"base_compensation"`
}

type PaymentProof struct {
	Amount    string     `json:"amount"`
	Currency  string     `json:"currency"`
	Recipient string     `json:"recipient"`
	Resource  string     `json:"resource"`
	Payer     string     `json:"payer,omitempty"`
	Timestamp *time.Time `json:"timestamp,omitempty"`
	TxHash    string     `json:"tx_hash,omitempty"`
	Nonce     string     `json:"nonce,omitempty"`
	Signature string     `json:"signature,omitempty"`
}

type CompletePaymentRequest struct {
	Proof *PaymentProof `json:"proof,omitempty"`
}

type ReasonRequest struct {
	Reason string `json:"reason"`
}

type PaymentResponse struct {
	ID         string             `json:"id"`
	From       string             `json:"from"`
	To         string             `json:"to"`
	Amount     string             `json:"amount"`
	Currency   string             `json:"currency"`
	Resource   string             `json:"resource"`
	Conditions *PaymentConditions `json:"conditions,omitempty"`
	Status     string             `json:"status"`
	Timestamp  time.Time          `json:"timestamp"`
	Metadata   map[string]string  `json:"metadata,omitempty"`
	Reason     string             `json:"reason,omitempty"`
	TxHash     string             `json:"tx_hash,omitempty"`
}

type DiscoveryFlowResponse struct {
	Payment          PaymentResponse `json:"payment"`
	MaxResults       int             `json:"max_results"`
	QualityThreshold float64         `json:"quality_threshold"`
	ExpiresAt        time.Time       `json:"expires_at"`
}

type PaymentStatisticsResponse struct {
	User              string  `json:"user"`
	TotalTransactions int     `json:"total_transactions"`
	SuccessRate       float64 `json:"success_rate"`
	AverageAmount     string  `json:"average_amount"`
	DisputeRate       float64 `json:"dispute_rate"`
	TotalReceived     string  `json:"total_received"`
	TotalSent         string  `json:"total_sent"`
	TotalVolume       string  `json:"total_volume"`
}

type BalanceResponse struct {
	User    string `json:"user"`
	Balance string `json:"balance"`
}

type QueryPriceRequest struct {
	Resource string `json:"resource"`
	Price    string `json:"price"`
}

type QueryPriceResponse struct {
	Resource string `json:"resource"`
	Price    string `json:"price"`
}

type QueryAccessRequest struct {
	Payer           string `json:"payer,omitempty"`
	Resource        string `json:"resource"`
	DurationSeconds int64  `json:"duration_seconds,omitempty"`
}

type QueryAccessResponse struct {
	Payer     string          `json:"payer"`
	Resource  string          `json:"resource"`
	Price     string          `json:"price"`
	GrantedAt time.Time       `json:"granted_at"`
	ExpiresAt time.Time       `json:"expires_at"`
	Payment   PaymentResponse `json:"payment"`
}

type QueryAccessCheckResponse struct {
	Payer     string `json:"payer"`
	Resource  string `json:"resource"`
	HasAccess bool   `json:"has_access"`
}

type OpenChannelRequest struct {
	Payer           string `json:"payer,omitempty"`
	Payee           string `json:"payee"`
	Deposit         string `json:"deposit"`
	DurationSeconds int64  `json:"duration_seconds"`
}

type PaymentChannelResponse struct {
	Payer     string    `json:"payer"`
	Payee     string    `json:"payee"`
	Deposit   string    `json:"deposit"`
	ReserveTx string    `json:"reserve_tx,omitempty"`
	OpenedAt  time.Time `json:"opened_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

type ReceiptVerificationResponse struct {
	Valid     bool     `json:"valid"`
	PaymentID string   `json:"payment_id,omitempty"`
	Errors    []string `json:"errors,omitempty"`
}

type CreateEscrowRequest struct {
	Payer                string            `json:"payer,omitempty"`
	Payee                string            `json:"payee"`
	TotalAmount          string            `json:"total_amount"`
	PerformanceThreshold float64           `json:"performance_threshold"`
	VerificationHash     string            `json:"verification_hash,omitempty"`
	Metadata             map[string]string `json:"metadata,omitempty"`
}

type ReleaseEscrowRequest struct {
	Proof         PerformanceMetrics `json:"proof"`
	MaxReleasable string             `json:"max_releasable,omitempty"`
}

type SlashDealRequest struct {
	Reason   string   `json:"reason"`
	Evidence []string `json:"evidence,omitempty"`
}

type EscrowEvidence struct {
	SubmittedBy string             `json:"submitted_by"`
	Metrics     PerformanceMetrics `json:"metrics"`
	Score       float64            `json:"score"`
	SubmittedAt time.Time          `json:"submitted_at"`
}

type EscrowDealResponse struct {
	DealID               string            `json:"deal_id"`
	Payer                string            `json:"payer"`
	Payee                string            `json:"payee"`
	TotalAmount          string            `json:"total_amount"`
	ReleasedAmount       string            `json:"released_amount"`
	SlashedAmount        string            `json:"slashed_amount"`
	RemainingAmount      string            `json:"remaining_amount"`
	PerformanceThreshold float64           `json:"performance_threshold"`
	VerificationHash     string            `json:"verification_hash,omitempty"`
	Status               string            `json:"status"`
	Metadata             map[string]string `json:"metadata,omitempty"`
	Evidence             []EscrowEvidence  `json:"evidence,omitempty"`
	LastScore            float64           `json:"last_score"`
	SlashReason          string            `json:"slash_reason,omitempty"`
	CreatedAt            time.Time         `json:"created_at"`
	ActivatedAt          *time.Time        `json:"activated_at,omitempty"`
	UpdatedAt            time.Time         `json:"updated_at"`
}

type ReleaseResultResponse struct {
	DealID          string  `json:"deal_id"`
	ReleasedAmount  string  `json:"released_amount"`
	RemainingAmount string  `json:"remaining_amount"`
	Success         bool    `json:"success"`
	Score           float64 `json:"score"`
	Status          string  `json:"status"`
}

type SlashingStatisticsResponse struct {
	TotalDeals         int     `json:"total_deals"`
	ActiveDeals        int     `json:"active_deals"`
	SettledDeals       int     `json:"settled_deals"`
	DisputedDeals      int     `json:"disputed_deals"`
	SlashedDeals       int     `json:"slashed_deals"`
	TotalCommitted     string  `json:"total_committed"`
	TotalReleased      string  `json:"total_released"`
	TotalSlashedAmount string  `json:"total_slashed_amount"`
	SlashRate          float64 `json:"slash_rate"`
}

type TrustComponents struct {
	Economic        float64 `json:"economic"`
	Reputation      float64 `json:"reputation"`
	Payment         float64 `json:"payment"`
	SybilResistance float64 `json:"sybil_resistance"`
}

type TrustScoreResponse struct {
	Owner        string          `json:"owner"`
	Composite    float64         `json:"composite"`
	Components   TrustComponents `json:"components"`
	Confidence   [2]float64      `json:"confidence"`
	Degraded     bool            `json:"degraded,omitempty"`
	CalculatedAt time.Time       `json:"calculated_at"`
}

type TrustSignals struct {
	Score        float64            `json:"score"`
	DomainScores map[string]float64 `json:"domain_scores,omitempty"`
	SybilRisk    float64            `json:"sybil_risk"`
	Connections  int                `json:"connections"`
	Degraded     bool               `json:"degraded,omitempty"`
}

type TrustReportResponse struct {
	Owner           string                    `json:"owner"`
	Score           TrustScoreResponse        `json:"score"`
	Stake           StakeResponse             `json:"stake"`
	Payments        PaymentStatisticsResponse `json:"payments"`
	Signals         TrustSignals              `json:"signals"`
	RiskLevel       string                    `json:"risk_level"`
	Recommendations []string                  `json:"recommendations"`
	GeneratedAt     time.Time                 `json:"generated_at"`
}

type CampaignCandidate struct {
	ID         string   `json:"id"`
	TrustScore *float64 `json:"trust_score,omitempty"`
	Reputation *float64 `json:"reputation,omitempty"`
	SybilRisk  *float64 `json:"sybil_risk,omitempty"`
	Tier       string   `json:"tier,omitempty"`
}

type CampaignRequirements struct {
	MinReputation *float64 `json:"min_reputation,omitempty"`
	MaxSybilRisk  *float64 `json:"max_sybil_risk,omitempty"`
	MinTier       string   `json:"min_tier,omitempty"`
	MaxMatches    int      `json:"max_matches,omitempty"`
}

type ExecuteCampaignRequest struct {
	CampaignID       string                        `json:"campaign_id,omitempty"`
	Brand            string                        `json:"brand,omitempty"`
	Budget           string                        `json:"budget"`
	Candidates       []CampaignCandidate           `json:"candidates"`
	Requirements     *CampaignRequirements         `json:"requirements,omitempty"`
	Performance      map[string]PerformanceMetrics `json:"performance,omitempty"`
	VerificationHash string                        `json:"verification_hash,omitempty"`
}

type DealOutcomeResponse struct {
	DealID     string  `json:"deal_id,omitempty"`
	Payee      string  `json:"payee"`
	Allocated  string  `json:"allocated"`
	Released   string  `json:"released"`
	Score      float64 `json:"score"`
	Status     string  `json:"status,omitempty"`
	Success    bool    `json:"success"`
	Slashed    bool    `json:"slashed,omitempty"`
	MatchScore float64 `json:"match_score"`
	TrustScore float64 `json:"trust_score"`
	Error      string  `json:"error,omitempty"`
}

type CampaignTrustMetrics struct {
	AverageTrustScore float64 `json:"average_trust_score"`
	SybilDetected     int     `json:"sybil_detected"`
	SlashingEvents    int     `json:"slashing_events"`
}

type CampaignResultResponse struct {
	CampaignID         string                `json:"campaign_id"`
	Brand              string                `json:"brand"`
	Budget             string                `json:"budget"`
	RequiredTier       string                `json:"required_tier"`
	DiscoveryPaymentID string                `json:"discovery_payment_id"`
	Status             string                `json:"status"`
	TotalDeals         int                   `json:"total_deals"`
	SuccessfulDeals    int                   `json:"successful_deals"`
	TotalPayments      string                `json:"total_payments"`
	AverageROI         float64               `json:"average_roi"`
	TrustMetrics       CampaignTrustMetrics  `json:"trust_metrics"`
	Deals              []DealOutcomeResponse `json:"deals"`
	StartedAt          time.Time             `json:"started_at"`
	CompletedAt        time.Time             `json:"completed_at"`
}

type SuccessResponse struct {
	Status  string      `json:"status"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

type ErrorResponse struct {
	Status string       `json:"status"`
	Error  ErrorPayload `json:"error"`
}

type ErrorPayload struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}
