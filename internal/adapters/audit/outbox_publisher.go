package audit

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/google/uuid"
	"github.com/viralforge/mesh/services/trust-compliance/M42-trust-layer-service/internal/contracts"
	"github.com/viralforge/mesh/services/trust-compliance/M42-trust-layer-service/internal/domain"
	"github.com/viralforge/mesh/services/trust-compliance/M42-trust-layer-service/internal/ports"
)

// OutboxPublisher hands audit evidence to the provenance pipeline as
// trust.audit_evidence events written to the outbox.
type OutboxPublisher struct {
	outbox        ports.OutboxRepository
	sourceService string
}

func NewOutboxPublisher(outbox ports.OutboxRepository, sourceService string) *OutboxPublisher {
	return &OutboxPublisher{outbox: outbox, sourceService: sourceService}
}

func (p *OutboxPublisher) PublishEvidence(ctx context.Context, record ports.AuditRecord) error {
	if strings.TrimSpace(record.Kind) == "" || strings.TrimSpace(record.Reference) == "" {
		return domain.ErrInvalidInput
	}
	data, err := json.Marshal(contracts.AuditEvidencePayload{
		Kind:       record.Kind,
		SubjectID:  record.SubjectID,
		Reference:  record.Reference,
		Payload:    record.Payload,
		OccurredAt: record.OccurredAt,
	})
	if err != nil {
		return err
	}
	partitionKey := strings.TrimSpace(record.SubjectID)
	if partitionKey == "" {
		partitionKey = record.Reference
	}
	eventID := uuid.New()
	env := contracts.EventEnvelope{
		EventID:          eventID.String(),
		EventType:        domain.EventAuditEvidence,
		EventClass:       domain.CanonicalEventClass(domain.EventAuditEvidence),
		OccurredAt:       record.OccurredAt,
		PartitionKeyPath: domain.CanonicalPartitionKeyPath(domain.EventAuditEvidence),
		PartitionKey:     partitionKey,
		SourceService:    p.sourceService,
		TraceID:          uuid.NewString(),
		SchemaVersion:    "v1",
		Data:             data,
	}
	payload, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return p.outbox.Enqueue(ctx, ports.OutboxEvent{
		EventID:          eventID,
		EventType:        env.EventType,
		EventClass:       env.EventClass,
		PartitionKey:     env.PartitionKey,
		PartitionKeyPath: env.PartitionKeyPath,
		Payload:          payload,
		OccurredAt:       env.OccurredAt,
		SchemaVersion:    env.SchemaVersion,
		TraceID:          env.TraceID,
	})
}
