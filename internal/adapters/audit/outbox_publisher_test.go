package audit

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/viralforge/mesh/services/trust-compliance/M42-trust-layer-service/internal/adapters/memory"
	"github.com/viralforge/mesh/services/trust-compliance/M42-trust-layer-service/internal/contracts"
	"github.com/viralforge/mesh/services/trust-compliance/M42-trust-layer-service/internal/domain"
	"github.com/viralforge/mesh/services/trust-compliance/M42-trust-layer-service/internal/ports"
)

func TestOutboxPublisherWritesEnvelope(t *testing.T) {
	t.Parallel()

	repos := memory.NewRepositories()
	publisher := NewOutboxPublisher(repos.Outbox, "M42-Trust-Layer-Service")
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	err := publisher.PublishEvidence(context.Background(), ports.AuditRecord{
		Kind:       "payment_evidence",
		SubjectID:  "alice",
		Reference:  "pay-1",
		Payload:    map[string]any{"amount": "5.000000"},
		OccurredAt: at,
	})
	if err != nil {
		t.Fatalf("publish: %v", err)
	}

	records := repos.Outbox.Records()
	if len(records) != 1 {
		t.Fatalf("expected one outbox record, got %d", len(records))
	}
	if records[0].EventType != domain.EventAuditEvidence || records[0].PartitionKey != "alice" {
		t.Fatalf("unexpected record: %+v", records[0])
	}
	var env contracts.EventEnvelope
	if err := json.Unmarshal(records[0].Payload, &env); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	var data contracts.AuditEvidencePayload
	if err := json.Unmarshal(env.Data, &data); err != nil {
		t.Fatalf("decode data: %v", err)
	}
	if data.Kind != "payment_evidence" || data.SubjectID != "alice" || !data.OccurredAt.Equal(at) {
		t.Fatalf("unexpected payload: %+v", data)
	}
}

func TestOutboxPublisherRejectsIncompleteRecords(t *testing.T) {
	t.Parallel()

	publisher := NewOutboxPublisher(memory.NewRepositories().Outbox, "svc")
	if err := publisher.PublishEvidence(context.Background(), ports.AuditRecord{Kind: "x"}); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}
