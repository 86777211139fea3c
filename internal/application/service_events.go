package application

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/viralforge/mesh/services/trust-compliance/M42-trust-layer-service/internal/contracts"
	"github.com/viralforge/mesh/services/trust-compliance/M42-trust-layer-service/internal/domain"
	"github.com/viralforge/mesh/services/trust-compliance/M42-trust-layer-service/internal/ports"
)

func (s *Service) enqueueEvent(ctx context.Context, eventType, traceID, partitionKey string, data any, now time.Time) error {
	if s.outbox == nil {
		return nil
	}
	if !domain.IsCanonicalEmittedEvent(eventType) {
		return domain.ErrUnsupportedEventType
	}
	b, err := json.Marshal(data)
	if err != nil {
		return domain.ErrInvalidInput
	}
	if strings.TrimSpace(traceID) == "" {
		traceID = uuid.NewString()
	}
	eventID := uuid.New()
	env := contracts.EventEnvelope{
		EventID:          eventID.String(),
		EventType:        eventType,
		EventClass:       domain.CanonicalEventClass(eventType),
		OccurredAt:       now,
		PartitionKeyPath: domain.CanonicalPartitionKeyPath(eventType),
		PartitionKey:     partitionKey,
		SourceService:    s.cfg.ServiceName,
		TraceID:          traceID,
		SchemaVersion:    "v1",
		Data:             b,
	}
	payload, err := json.Marshal(env)
	if err != nil {
		return domain.ErrInvalidInput
	}
	return s.outbox.Enqueue(ctx, ports.OutboxEvent{
		EventID:          eventID,
		EventType:        eventType,
		EventClass:       env.EventClass,
		PartitionKey:     partitionKey,
		PartitionKeyPath: env.PartitionKeyPath,
		Payload:          payload,
		OccurredAt:       now,
		SchemaVersion:    env.SchemaVersion,
		TraceID:          traceID,
	})
}

// enqueueAfterCommit is used once state is already persisted: an outbox
// failure is logged rather than reported as a failed write.
func (s *Service) enqueueAfterCommit(ctx context.Context, eventType, traceID, partitionKey string, data any, now time.Time) {
	if err := s.enqueueEvent(ctx, eventType, traceID, partitionKey, data, now); err != nil {
		s.logError(ctx, "outbox enqueue failed", "enqueue_event", err, "event_type", eventType, "partition_key", partitionKey)
	}
}

func (s *Service) enqueueStakeUpdated(ctx context.Context, acc domain.StakeAccount, kind, amount, txHash, traceID string) {
	s.enqueueAfterCommit(ctx, domain.EventStakeUpdated, traceID, acc.Owner, contracts.StakeUpdatedPayload{
		Owner:       acc.Owner,
		Kind:        kind,
		Amount:      amount,
		TotalStaked: acc.TotalStaked.String(),
		Tier:        string(acc.Tier),
		LockedUntil: acc.LockedUntil,
		TxHash:      txHash,
	}, acc.UpdatedAt)
}

func (s *Service) enqueuePaymentEvent(ctx context.Context, eventType string, p domain.Payment, traceID string) {
	s.enqueueAfterCommit(ctx, eventType, traceID, p.ID, contracts.PaymentEventPayload{
		PaymentID: p.ID,
		From:      p.From,
		To:        p.To,
		Amount:    p.Amount.String(),
		Currency:  p.Currency,
		Resource:  p.ResourceHash,
		Status:    string(p.Status),
		Reason:    p.Reason,
		TxHash:    p.TxHash,
	}, p.UpdatedAt)
}

func (s *Service) enqueueEscrowEvent(ctx context.Context, eventType string, d domain.EscrowDeal, traceID string) {
	payload := contracts.EscrowEventPayload{
		DealID:          d.DealID,
		Payer:           d.Payer,
		Payee:           d.Payee,
		ReleasedAmount:  d.ReleasedAmount.String(),
		RemainingAmount: d.RemainingAmount().String(),
		Score:           d.LastScore,
		Status:          string(d.Status),
	}
	if d.SlashedAmount > 0 {
		payload.SlashedAmount = d.SlashedAmount.String()
	}
	s.enqueueAfterCommit(ctx, eventType, traceID, d.DealID, payload, d.UpdatedAt)
}

// publishAudit forwards evidence to the provenance store. Failures never
// propagate to the caller.
func (s *Service) publishAudit(ctx context.Context, record ports.AuditRecord) {
	if s.audit == nil {
		return
	}
	callCtx, cancel := s.withExternalTimeout(ctx)
	defer cancel()
	if err := s.audit.PublishEvidence(callCtx, record); err != nil {
		s.warn(ctx, "audit publish failed", "publish_audit", err, "kind", record.Kind, "reference", record.Reference)
	}
}
