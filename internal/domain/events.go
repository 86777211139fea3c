package domain

const (
	CanonicalEventClassDomain        = "domain"
	CanonicalEventClassAnalyticsOnly = "analytics_only"
	CanonicalEventClassOps           = "ops"
)

const (
	EventStakeUpdated      = "trust.stake_updated"
	EventStakeSlashed      = "trust.stake_slashed"
	EventPaymentCompleted  = "trust.payment_completed"
	EventPaymentRefunded   = "trust.payment_refunded"
	EventPaymentFailed     = "trust.payment_failed"
	EventChannelOpened     = "trust.channel_opened"
	EventChannelClosed     = "trust.channel_closed"
	EventEscrowReleased    = "trust.escrow_released"
	EventEscrowSettled     = "trust.escrow_settled"
	EventEscrowSlashed     = "trust.escrow_slashed"
	EventCampaignCompleted = "trust.campaign_completed"
	EventAuditEvidence     = "trust.audit_evidence"
)

func IsCanonicalEmittedEvent(eventType string) bool {
	switch eventType {
	case EventStakeUpdated, EventStakeSlashed,
		EventPaymentCompleted, EventPaymentRefunded, EventPaymentFailed,
		EventChannelOpened, EventChannelClosed,
		EventEscrowReleased, EventEscrowSettled, EventEscrowSlashed,
		EventCampaignCompleted, EventAuditEvidence:
		return true
	default:
		return false
	}
}

func CanonicalEventClass(eventType string) string {
	switch eventType {
	case EventStakeSlashed, EventPaymentCompleted, EventPaymentRefunded, EventEscrowSettled, EventEscrowSlashed,
		EventChannelOpened, EventChannelClosed:
		return CanonicalEventClassDomain
	case EventStakeUpdated, EventPaymentFailed, EventEscrowReleased, EventCampaignCompleted:
		return CanonicalEventClassAnalyticsOnly
	case EventAuditEvidence:
		return CanonicalEventClassOps
	default:
		return ""
	}
}

func CanonicalPartitionKeyPath(eventType string) string {
	switch eventType {
	case EventStakeUpdated, EventStakeSlashed:
		return "data.owner"
	case EventPaymentCompleted, EventPaymentRefunded, EventPaymentFailed:
		return "data.payment_id"
	case EventChannelOpened, EventChannelClosed:
		return "data.payer"
	case EventEscrowReleased, EventEscrowSettled, EventEscrowSlashed:
		return "data.deal_id"
	case EventCampaignCompleted:
		return "data.campaign_id"
	case EventAuditEvidence:
		return "data.subject_id"
	default:
		return ""
	}
}
