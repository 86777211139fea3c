package contracts

import (
	"encoding/json"
	"time"
)

type EventEnvelope struct {
	EventID          string          `json:"event_id"`
	EventType        string          `json:"event_type"`
	EventClass       string          `json:"event_class"`
	OccurredAt       time.Time       `json:"occurred_at"`
	PartitionKeyPath string          `json:"partition_key_path"`
	PartitionKey     string          `json:"partition_key"`
	SourceService    string          `json:"source_service"`
	TraceID          string          `json:"trace_id"`
	SchemaVersion    string          `json:"schema_version"`
	Data             json.RawMessage `json:"data"`
}

type StakeUpdatedPayload struct {
	Owner       string    `json:"owner"`
	Kind        string    `json:"kind"`
	Amount      string    `json:"amount"`
	TotalStaked string    `json:"total_staked"`
	Tier        string    `json:"tier"`
	LockedUntil time.Time `json:"locked_until"`
	TxHash      string    `json:"tx_hash,omitempty"`
}

type StakeSlashedPayload struct {
	Owner          string `json:"owner"`
	Condition      string `json:"condition"`
	SlashedAmount  string `json:"slashed_amount"`
	RemainingStake string `json:"remaining_stake"`
	EvidenceCount  int    `json:"evidence_count"`
	TxHash         string `json:"tx_hash,omitempty"`
}

type PaymentEventPayload struct {
	PaymentID string `json:"payment_id"`
	From      string `json:"from"`
	To        string `json:"to"`
	Amount    string `json:"amount"`
	Currency  string `json:"currency"`
	Resource  string `json:"resource"`
	Status    string `json:"status"`
	Reason    string `json:"reason,omitempty"`
	TxHash    string `json:"tx_hash,omitempty"`
}

type ChannelEventPayload struct {
	Payer     string    `json:"payer"`
	Payee     string    `json:"payee"`
	Deposit   string    `json:"deposit"`
	ExpiresAt time.Time `json:"expires_at"`
	TxHash    string    `json:"tx_hash,omitempty"`
}

type EscrowEventPayload struct {
	DealID          string  `json:"deal_id"`
	Payer           string  `json:"payer"`
	Payee           string  `json:"payee"`
	ReleasedAmount  string  `json:"released_amount"`
	RemainingAmount string  `json:"remaining_amount"`
	SlashedAmount   string  `json:"slashed_amount,omitempty"`
	Score           float64 `json:"score"`
	Status          string  `json:"status"`
}

type CampaignCompletedPayload struct {
	CampaignID      string  `json:"campaign_id"`
	Brand           string  `json:"brand"`
	Status          string  `json:"status"`
	TotalDeals      int     `json:"total_deals"`
	SuccessfulDeals int     `json:"successful_deals"`
	TotalPayments   string  `json:"total_payments"`
	AverageROI      float64 `json:"average_roi"`
}

type AuditEvidencePayload struct {
	Kind       string         `json:"kind"`
	SubjectID  string         `json:"subject_id"`
	Reference  string         `json:"reference"`
	Payload    map[string]any `json:"payload,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
}
