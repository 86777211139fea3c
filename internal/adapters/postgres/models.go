package postgres

import (
	"time"

	"github.com/google/uuid"
)

// Token quantities are NUMERIC(78,0) columns carried as base-10 strings.

type stakeAccountModel struct {
	Owner                string    `gorm:"column:owner;primaryKey"`
	TotalStaked          string    `gorm:"column:total_staked;type:numeric(78,0)"`
	Tier                 string    `gorm:"column:tier"`
	Qualified            bool      `gorm:"column:qualified"`
	LockedUntil          time.Time `gorm:"column:locked_until"`
	ReputationMultiplier int64     `gorm:"column:reputation_multiplier"`
	SlashableAmount      string    `gorm:"column:slashable_amount;type:numeric(78,0)"`
	SlashedTotal         string    `gorm:"column:slashed_total;type:numeric(78,0)"`
	Version              int64     `gorm:"column:version"`
	CreatedAt            time.Time `gorm:"column:created_at"`
	UpdatedAt            time.Time `gorm:"column:updated_at"`
}

func (stakeAccountModel) TableName() string { return "stake_accounts" }

type stakeEventModel struct {
	EventID    string    `gorm:"column:event_id;primaryKey"`
	Owner      string    `gorm:"column:owner"`
	Kind       string    `gorm:"column:kind"`
	Amount     string    `gorm:"column:amount;type:numeric(78,0)"`
	TotalAfter string    `gorm:"column:total_after;type:numeric(78,0)"`
	Tier       string    `gorm:"column:tier"`
	Reason     string    `gorm:"column:reason"`
	TxHash     string    `gorm:"column:tx_hash"`
	OccurredAt time.Time `gorm:"column:occurred_at"`
}

func (stakeEventModel) TableName() string { return "stake_events" }

type paymentModel struct {
	PaymentID    string    `gorm:"column:payment_id;primaryKey"`
	FromUser     string    `gorm:"column:from_user"`
	ToUser       string    `gorm:"column:to_user"`
	Amount       int64     `gorm:"column:amount"`
	Currency     string    `gorm:"column:currency"`
	ResourceHash string    `gorm:"column:resource_hash"`
	Conditions   *string   `gorm:"column:conditions;type:jsonb"`
	Status       string    `gorm:"column:status"`
	Metadata     *string   `gorm:"column:metadata;type:jsonb"`
	Reason       string    `gorm:"column:reason"`
	TxHash       string    `gorm:"column:tx_hash"`
	Version      int64     `gorm:"column:version"`
	CreatedAt    time.Time `gorm:"column:created_at"`
	UpdatedAt    time.Time `gorm:"column:updated_at"`
}

func (paymentModel) TableName() string { return "payments" }

type balanceModel struct {
	UserID    string    `gorm:"column:user_id;primaryKey"`
	Balance   int64     `gorm:"column:balance"`
	UpdatedAt time.Time `gorm:"column:updated_at"`
}

func (balanceModel) TableName() string { return "balances" }

type queryPriceModel struct {
	Resource string `gorm:"column:resource;primaryKey"`
	Price    int64  `gorm:"column:price"`
}

func (queryPriceModel) TableName() string { return "query_prices" }

type queryAccessModel struct {
	Payer     string    `gorm:"column:payer;primaryKey"`
	Resource  string    `gorm:"column:resource;primaryKey"`
	PaymentID string    `gorm:"column:payment_id"`
	Price     int64     `gorm:"column:price"`
	GrantedAt time.Time `gorm:"column:granted_at"`
	ExpiresAt time.Time `gorm:"column:expires_at"`
}

func (queryAccessModel) TableName() string { return "query_access" }

type paymentChannelModel struct {
	Payer     string    `gorm:"column:payer;primaryKey"`
	Payee     string    `gorm:"column:payee;primaryKey"`
	Deposit   int64     `gorm:"column:deposit"`
	ReserveTx string    `gorm:"column:reserve_tx"`
	OpenedAt  time.Time `gorm:"column:opened_at"`
	ExpiresAt time.Time `gorm:"column:expires_at"`
}

func (paymentChannelModel) TableName() string { return "payment_channels" }

type escrowDealModel struct {
	DealID               string     `gorm:"column:deal_id;primaryKey"`
	Payer                string     `gorm:"column:payer"`
	Payee                string     `gorm:"column:payee"`
	TotalAmount          int64      `gorm:"column:total_amount"`
	ReleasedAmount       int64      `gorm:"column:released_amount"`
	SlashedAmount        int64      `gorm:"column:slashed_amount"`
	PerformanceThreshold float64    `gorm:"column:performance_threshold"`
	VerificationHash     string     `gorm:"column:verification_hash"`
	Status               string     `gorm:"column:status"`
	Metadata             *string    `gorm:"column:metadata;type:jsonb"`
	Evidence             *string    `gorm:"column:evidence;type:jsonb"`
	LastScore            float64    `gorm:"column:last_score"`
	SlashReason          string     `gorm:"column:slash_reason"`
	Version              int64      `gorm:"column:version"`
	CreatedAt            time.Time  `gorm:"column:created_at"`
	ActivatedAt          *time.Time `gorm:"column:activated_at"`
	UpdatedAt            time.Time  `gorm:"column:updated_at"`
}

func (escrowDealModel) TableName() string { return "escrow_deals" }

type campaignResultModel struct {
	CampaignID  string    `gorm:"column:campaign_id;primaryKey"`
	Brand       string    `gorm:"column:brand"`
	Status      string    `gorm:"column:status"`
	Result      string    `gorm:"column:result;type:jsonb"`
	CompletedAt time.Time `gorm:"column:completed_at"`
}

func (campaignResultModel) TableName() string { return "campaign_results" }

type idempotencyModel struct {
	IdempotencyKey string    `gorm:"column:idempotency_key;primaryKey"`
	RequestHash    string    `gorm:"column:request_hash"`
	Status         string    `gorm:"column:status"`
	ResponseCode   int       `gorm:"column:response_code"`
	ResponseBody   *string   `gorm:"column:response_body"`
	ExpiresAt      time.Time `gorm:"column:expires_at"`
	CreatedAt      time.Time `gorm:"column:created_at"`
	UpdatedAt      time.Time `gorm:"column:updated_at"`
}

func (idempotencyModel) TableName() string { return "trust_idempotency" }

type outboxModel struct {
	OutboxID         uuid.UUID  `gorm:"column:outbox_id;type:uuid;primaryKey"`
	EventType        string     `gorm:"column:event_type"`
	EventClass       string     `gorm:"column:event_class"`
	PartitionKey     string     `gorm:"column:partition_key"`
	PartitionKeyPath string     `gorm:"column:partition_key_path"`
	Payload          string     `gorm:"column:payload;type:jsonb"`
	SchemaVersion    string     `gorm:"column:schema_version"`
	TraceID          string     `gorm:"column:trace_id"`
	RetryCount       int        `gorm:"column:retry_count"`
	PublishedAt      *time.Time `gorm:"column:published_at"`
	LastError        *string    `gorm:"column:last_error"`
	LastErrorAt      *time.Time `gorm:"column:last_error_at"`
	FirstSeenAt      time.Time  `gorm:"column:first_seen_at"`
	CreatedAt        time.Time  `gorm:"column:created_at"`
}

func (outboxModel) TableName() string { return "trust_outbox" }
