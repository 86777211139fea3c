package ports

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/viralforge/mesh/services/trust-compliance/M42-trust-layer-service/internal/domain"
)

// Update methods compare the entity Version against the stored row and
// return domain.ErrConflict when another writer got there first.

type StakeRepository interface {
	GetByOwner(ctx context.Context, owner string) (domain.StakeAccount, error)
	Create(ctx context.Context, account domain.StakeAccount) error
	Update(ctx context.Context, account domain.StakeAccount) error
	AppendEvent(ctx context.Context, event domain.StakeEvent) error
	ListEvents(ctx context.Context, owner string) ([]domain.StakeEvent, error)
}

type PaymentRepository interface {
	Create(ctx context.Context, payment domain.Payment) error
	GetByID(ctx context.Context, paymentID string) (domain.Payment, error)
	Update(ctx context.Context, payment domain.Payment) error
	ListByUser(ctx context.Context, user string) ([]domain.Payment, error)
}

type BalanceRepository interface {
	Get(ctx context.Context, user string) (domain.Amount, error)
	Adjust(ctx context.Context, user string, delta domain.Amount, at time.Time) (domain.Amount, error)
}

type QueryAccessRepository interface {
	SetPrice(ctx context.Context, resource string, price domain.Amount) error
	GetPrice(ctx context.Context, resource string) (domain.Amount, bool, error)
	Grant(ctx context.Context, access domain.QueryAccess) error
	Get(ctx context.Context, payer, resource string) (domain.QueryAccess, error)
}

// PaymentChannelRepository keeps at most one channel per payer and payee.
// Create reports domain.ErrChannelExists for an occupied pair; Get and
// Delete report domain.ErrChannelNotFound for an empty one.
type PaymentChannelRepository interface {
	Create(ctx context.Context, channel domain.PaymentChannel) error
	Get(ctx context.Context, payer, payee string) (domain.PaymentChannel, error)
	Delete(ctx context.Context, payer, payee string) error
	ListByPayer(ctx context.Context, payer string) ([]domain.PaymentChannel, error)
}

type EscrowRepository interface {
	Create(ctx context.Context, deal domain.EscrowDeal) error
	GetByID(ctx context.Context, dealID string) (domain.EscrowDeal, error)
	Update(ctx context.Context, deal domain.EscrowDeal) error
	ListByParty(ctx context.Context, owner string) ([]domain.EscrowDeal, error)
	ListAll(ctx context.Context) ([]domain.EscrowDeal, error)
}

type CampaignRepository interface {
	Save(ctx context.Context, result domain.CampaignResult) error
	GetByID(ctx context.Context, campaignID string) (domain.CampaignResult, error)
}

type IdempotencyRecord struct {
	Key          string
	RequestHash  string
	ResponseCode int
	ResponseBody []byte
	ExpiresAt    time.Time
}

type IdempotencyRepository interface {
	Get(ctx context.Context, key string, now time.Time) (*IdempotencyRecord, error)
	Reserve(ctx context.Context, key, requestHash string, expiresAt time.Time) error
	Complete(ctx context.Context, key string, responseCode int, responseBody []byte, at time.Time) error
	// Release drops a reservation that never completed so the key can be retried.
	Release(ctx context.Context, key string) error
}

type OutboxEvent struct {
	EventID          uuid.UUID
	EventType        string
	EventClass       string
	PartitionKey     string
	PartitionKeyPath string
	Payload          []byte
	OccurredAt       time.Time
	SchemaVersion    string
	TraceID          string
}

type OutboxRecord struct {
	OutboxID     uuid.UUID
	EventType    string
	PartitionKey string
	Payload      []byte
	RetryCount   int
	PublishedAt  *time.Time
	LastError    *string
	LastErrorAt  *time.Time
	FirstSeenAt  time.Time
}

type OutboxRepository interface {
	Enqueue(ctx context.Context, event OutboxEvent) error
	FetchUnpublished(ctx context.Context, limit int) ([]OutboxRecord, error)
	MarkPublished(ctx context.Context, outboxID uuid.UUID, at time.Time) error
	MarkFailed(ctx context.Context, outboxID uuid.UUID, errMsg string, at time.Time) error
}
