package memory

import (
	"context"
	"maps"
	"math/big"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/viralforge/mesh/services/trust-compliance/M42-trust-layer-service/internal/domain"
	"github.com/viralforge/mesh/services/trust-compliance/M42-trust-layer-service/internal/ports"
)

// Repositories backs every port with mutex-guarded maps. Used when no
// database URL is configured and throughout the tests.
type Repositories struct {
	Stakes      *StakeRepository
	Payments    *PaymentRepository
	Balances    *BalanceRepository
	Queries     *QueryAccessRepository
	Channels    *PaymentChannelRepository
	Escrows     *EscrowRepository
	Campaigns   *CampaignRepository
	Idempotency *IdempotencyRepository
	Outbox      *OutboxRepository
}

func NewRepositories() *Repositories {
	return &Repositories{
		Stakes:      &StakeRepository{rows: map[string]domain.StakeAccount{}, events: map[string][]domain.StakeEvent{}},
		Payments:    &PaymentRepository{rows: map[string]domain.Payment{}},
		Balances:    &BalanceRepository{rows: map[string]domain.Amount{}},
		Queries:     &QueryAccessRepository{prices: map[string]domain.Amount{}, grants: map[string]domain.QueryAccess{}},
		Channels:    &PaymentChannelRepository{rows: map[string]domain.PaymentChannel{}},
		Escrows:     &EscrowRepository{rows: map[string]domain.EscrowDeal{}},
		Campaigns:   &CampaignRepository{rows: map[string]domain.CampaignResult{}},
		Idempotency: &IdempotencyRepository{rows: map[string]ports.IdempotencyRecord{}},
		Outbox:      &OutboxRepository{rows: map[uuid.UUID]ports.OutboxRecord{}},
	}
}

type StakeRepository struct {
	mu     sync.Mutex
	rows   map[string]domain.StakeAccount
	events map[string][]domain.StakeEvent
}

func (r *StakeRepository) GetByOwner(_ context.Context, owner string) (domain.StakeAccount, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.rows[strings.TrimSpace(owner)]
	if !ok {
		return domain.StakeAccount{}, domain.ErrNotFound
	}
	return row.Clone(), nil
}

func (r *StakeRepository) Create(_ context.Context, account domain.StakeAccount) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.rows[account.Owner]; ok {
		return domain.ErrConflict
	}
	row := account.Clone()
	row.Version = 1
	r.rows[account.Owner] = row
	return nil
}

func (r *StakeRepository) Update(_ context.Context, account domain.StakeAccount) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	current, ok := r.rows[account.Owner]
	if !ok {
		return domain.ErrNotFound
	}
	if current.Version != account.Version {
		return domain.ErrConflict
	}
	row := account.Clone()
	row.Version = current.Version + 1
	r.rows[account.Owner] = row
	return nil
}

func (r *StakeRepository) AppendEvent(_ context.Context, event domain.StakeEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	event.Amount = new(big.Int).Set(event.Amount)
	event.TotalAfter = new(big.Int).Set(event.TotalAfter)
	r.events[event.Owner] = append(r.events[event.Owner], event)
	return nil
}

func (r *StakeRepository) ListEvents(_ context.Context, owner string) ([]domain.StakeEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rows := r.events[strings.TrimSpace(owner)]
	out := make([]domain.StakeEvent, len(rows))
	copy(out, rows)
	return out, nil
}

type PaymentRepository struct {
	mu   sync.Mutex
	rows map[string]domain.Payment
}

func (r *PaymentRepository) Create(_ context.Context, payment domain.Payment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.rows[payment.ID]; ok {
		return domain.ErrConflict
	}
	payment.Version = 1
	r.rows[payment.ID] = clonePayment(payment)
	return nil
}

func (r *PaymentRepository) GetByID(_ context.Context, paymentID string) (domain.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.rows[strings.TrimSpace(paymentID)]
	if !ok {
		return domain.Payment{}, domain.ErrNotFound
	}
	return clonePayment(row), nil
}

func (r *PaymentRepository) Update(_ context.Context, payment domain.Payment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	current, ok := r.rows[payment.ID]
	if !ok {
		return domain.ErrNotFound
	}
	if current.Version != payment.Version {
		return domain.ErrConflict
	}
	payment.Version = current.Version + 1
	r.rows[payment.ID] = clonePayment(payment)
	return nil
}

func (r *PaymentRepository) ListByUser(_ context.Context, user string) ([]domain.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	user = strings.TrimSpace(user)
	out := make([]domain.Payment, 0)
	for _, row := range r.rows {
		if row.From == user || row.To == user {
			out = append(out, clonePayment(row))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}

func clonePayment(p domain.Payment) domain.Payment {
	if p.Conditions != nil {
		c := *p.Conditions
		if c.Expiry != nil {
			e := *c.Expiry
			c.Expiry = &e
		}
		p.Conditions = &c
	}
	p.Metadata = maps.Clone(p.Metadata)
	return p
}

type BalanceRepository struct {
	mu   sync.Mutex
	rows map[string]domain.Amount
}

func (r *BalanceRepository) Get(_ context.Context, user string) (domain.Amount, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rows[strings.TrimSpace(user)], nil
}

func (r *BalanceRepository) Adjust(_ context.Context, user string, delta domain.Amount, _ time.Time) (domain.Amount, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rows[user] += delta
	return r.rows[user], nil
}

type QueryAccessRepository struct {
	mu     sync.Mutex
	prices map[string]domain.Amount
	grants map[string]domain.QueryAccess
}

func (r *QueryAccessRepository) SetPrice(_ context.Context, resource string, price domain.Amount) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.prices[resource] = price
	return nil
}

func (r *QueryAccessRepository) GetPrice(_ context.Context, resource string) (domain.Amount, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	price, ok := r.prices[resource]
	return price, ok, nil
}

func (r *QueryAccessRepository) Grant(_ context.Context, access domain.QueryAccess) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.grants[grantKey(access.Payer, access.Resource)] = access
	return nil
}

func (r *QueryAccessRepository) Get(_ context.Context, payer, resource string) (domain.QueryAccess, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.grants[grantKey(payer, resource)]
	if !ok {
		return domain.QueryAccess{}, domain.ErrNotFound
	}
	return row, nil
}

func grantKey(payer, resource string) string { return payer + "\x00" + resource }

type PaymentChannelRepository struct {
	mu   sync.Mutex
	rows map[string]domain.PaymentChannel
}

func (r *PaymentChannelRepository) Create(_ context.Context, channel domain.PaymentChannel) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := grantKey(channel.Payer, channel.Payee)
	if _, ok := r.rows[key]; ok {
		return domain.ErrChannelExists
	}
	r.rows[key] = channel
	return nil
}

func (r *PaymentChannelRepository) Get(_ context.Context, payer, payee string) (domain.PaymentChannel, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.rows[grantKey(payer, payee)]
	if !ok {
		return domain.PaymentChannel{}, domain.ErrChannelNotFound
	}
	return row, nil
}

func (r *PaymentChannelRepository) Delete(_ context.Context, payer, payee string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := grantKey(payer, payee)
	if _, ok := r.rows[key]; !ok {
		return domain.ErrChannelNotFound
	}
	delete(r.rows, key)
	return nil
}

func (r *PaymentChannelRepository) ListByPayer(_ context.Context, payer string) ([]domain.PaymentChannel, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.PaymentChannel, 0)
	for _, row := range r.rows {
		if row.Payer == payer {
			out = append(out, row)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Payee < out[j].Payee })
	return out, nil
}

type EscrowRepository struct {
	mu   sync.Mutex
	rows map[string]domain.EscrowDeal
}

func (r *EscrowRepository) Create(_ context.Context, deal domain.EscrowDeal) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.rows[deal.DealID]; ok {
		return domain.ErrConflict
	}
	deal.Version = 1
	r.rows[deal.DealID] = cloneDeal(deal)
	return nil
}

func (r *EscrowRepository) GetByID(_ context.Context, dealID string) (domain.EscrowDeal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.rows[strings.TrimSpace(dealID)]
	if !ok {
		return domain.EscrowDeal{}, domain.ErrNotFound
	}
	return cloneDeal(row), nil
}

func (r *EscrowRepository) Update(_ context.Context, deal domain.EscrowDeal) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	current, ok := r.rows[deal.DealID]
	if !ok {
		return domain.ErrNotFound
	}
	if current.Version != deal.Version {
		return domain.ErrConflict
	}
	deal.Version = current.Version + 1
	r.rows[deal.DealID] = cloneDeal(deal)
	return nil
}

func (r *EscrowRepository) ListByParty(_ context.Context, owner string) ([]domain.EscrowDeal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	owner = strings.TrimSpace(owner)
	out := make([]domain.EscrowDeal, 0)
	for _, row := range r.rows {
		if row.Payer == owner || row.Payee == owner {
			out = append(out, cloneDeal(row))
		}
	}
	sortDeals(out)
	return out, nil
}

func (r *EscrowRepository) ListAll(_ context.Context) ([]domain.EscrowDeal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.EscrowDeal, 0, len(r.rows))
	for _, row := range r.rows {
		out = append(out, cloneDeal(row))
	}
	sortDeals(out)
	return out, nil
}

func sortDeals(rows []domain.EscrowDeal) {
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].CreatedAt.Equal(rows[j].CreatedAt) {
			return rows[i].DealID < rows[j].DealID
		}
		return rows[i].CreatedAt.Before(rows[j].CreatedAt)
	})
}

func cloneDeal(d domain.EscrowDeal) domain.EscrowDeal {
	d.Metadata = maps.Clone(d.Metadata)
	d.Evidence = append([]domain.EscrowEvidence(nil), d.Evidence...)
	if d.ActivatedAt != nil {
		at := *d.ActivatedAt
		d.ActivatedAt = &at
	}
	return d
}

type CampaignRepository struct {
	mu   sync.Mutex
	rows map[string]domain.CampaignResult
}

func (r *CampaignRepository) Save(_ context.Context, result domain.CampaignResult) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.rows[result.CampaignID]; ok {
		return domain.ErrConflict
	}
	result.Deals = append([]domain.DealOutcome(nil), result.Deals...)
	r.rows[result.CampaignID] = result
	return nil
}

func (r *CampaignRepository) GetByID(_ context.Context, campaignID string) (domain.CampaignResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.rows[strings.TrimSpace(campaignID)]
	if !ok {
		return domain.CampaignResult{}, domain.ErrNotFound
	}
	row.Deals = append([]domain.DealOutcome(nil), row.Deals...)
	return row, nil
}

type IdempotencyRepository struct {
	mu   sync.Mutex
	rows map[string]ports.IdempotencyRecord
}

func (r *IdempotencyRepository) Get(_ context.Context, key string, now time.Time) (*ports.IdempotencyRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.rows[key]
	if !ok {
		return nil, nil
	}
	if now.After(row.ExpiresAt) {
		delete(r.rows, key)
		return nil, nil
	}
	c := row
	c.ResponseBody = append([]byte(nil), row.ResponseBody...)
	return &c, nil
}

func (r *IdempotencyRepository) Reserve(_ context.Context, key, requestHash string, expiresAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.rows[key]; ok {
		return domain.ErrConflict
	}
	r.rows[key] = ports.IdempotencyRecord{Key: key, RequestHash: requestHash, ExpiresAt: expiresAt}
	return nil
}

func (r *IdempotencyRepository) Complete(_ context.Context, key string, responseCode int, responseBody []byte, _ time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.rows[key]
	if !ok {
		return domain.ErrNotFound
	}
	row.ResponseCode = responseCode
	row.ResponseBody = append([]byte(nil), responseBody...)
	r.rows[key] = row
	return nil
}

func (r *IdempotencyRepository) Release(_ context.Context, key string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if row, ok := r.rows[key]; ok && len(row.ResponseBody) == 0 {
		delete(r.rows, key)
	}
	return nil
}

type OutboxRepository struct {
	mu    sync.Mutex
	rows  map[uuid.UUID]ports.OutboxRecord
	order []uuid.UUID
}

func (r *OutboxRepository) Enqueue(_ context.Context, event ports.OutboxEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.rows[event.EventID]; ok {
		return domain.ErrConflict
	}
	r.rows[event.EventID] = ports.OutboxRecord{
		OutboxID:     event.EventID,
		EventType:    event.EventType,
		PartitionKey: event.PartitionKey,
		Payload:      append([]byte(nil), event.Payload...),
		FirstSeenAt:  event.OccurredAt,
	}
	r.order = append(r.order, event.EventID)
	return nil
}

func (r *OutboxRepository) FetchUnpublished(_ context.Context, limit int) ([]ports.OutboxRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if limit <= 0 {
		limit = 100
	}
	out := make([]ports.OutboxRecord, 0, limit)
	for _, id := range r.order {
		row, ok := r.rows[id]
		if !ok || row.PublishedAt != nil {
			continue
		}
		out = append(out, row)
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (r *OutboxRepository) MarkPublished(_ context.Context, outboxID uuid.UUID, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.rows[outboxID]
	if !ok {
		return domain.ErrNotFound
	}
	row.PublishedAt = &at
	r.rows[outboxID] = row
	return nil
}

func (r *OutboxRepository) MarkFailed(_ context.Context, outboxID uuid.UUID, errMsg string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.rows[outboxID]
	if !ok {
		return domain.ErrNotFound
	}
	row.RetryCount++
	row.LastError = &errMsg
	row.LastErrorAt = &at
	r.rows[outboxID] = row
	return nil
}

// Records returns every outbox row in enqueue order.
func (r *OutboxRepository) Records() []ports.OutboxRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]ports.OutboxRecord, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.rows[id])
	}
	return out
}
