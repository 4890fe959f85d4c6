/**
 * @description
 * Audit and messaging event types for the buyer-service.
 *
 * @notes
 * - AuditEvent rows are written synchronously before a mutating request
 *   returns; BuyerEvent messages published to RabbitMQ are best-effort
 *   notifications for downstream services and may be dropped.
 * - The BuyerEvent structure is a contract shared with the notification
 *   consumers; keep producer and consumers in agreement.
 */
package domain

import "time"

// Audit actions recorded by this service.
const (
	AuditBuyerSeeded           = "buyer.seeded"
	AuditBuyerAdopted          = "buyer.adopted"
	AuditProfileCreated        = "buyer.profile_created"
	AuditPurchaseCompleted     = "buyer.purchase_completed"
	AuditPremiumUpgradeRequest = "buyer.premium_upgrade_requested"
	AuditBuyerApproved         = "buyer.approved"
	AuditBuyerRejected         = "buyer.rejected"
	AuditTierSet               = "buyer.tier_set"
	AuditPremiumSet            = "buyer.premium_set"
)

// AuditEvent is an immutable record of a state-mutating action.
type AuditEvent struct {
	ID         string         `json:"id"`
	Action     string         `json:"action"`
	ActorUID   string         `json:"actorUid"`
	ActorEmail string         `json:"actorEmail,omitempty"`
	TargetUID  string         `json:"targetUid"`
	Details    map[string]any `json:"details,omitempty"`
	CreatedAt  time.Time      `json:"createdAt"`
}

// Routing keys for buyer lifecycle events on the buyer.events exchange.
const (
	EventBuyerApproved          = "buyer.approved"
	EventBuyerRejected          = "buyer.rejected"
	EventBuyerAdopted           = "buyer.adopted"
	EventBuyerPurchaseCompleted = "buyer.purchase_completed"
	EventBuyerPremiumChanged    = "buyer.premium_changed"
)

// BuyerEvent is the payload published to RabbitMQ for downstream services
// (notifications, analytics).
type BuyerEvent struct {
	EventType      string         `json:"event_type"`
	UID            string         `json:"uid"`
	ApprovalStatus ApprovalStatus `json:"approval_status"`
	BuyerTier      BuyerTier      `json:"buyer_tier"`
	PremiumPlan    PremiumPlan    `json:"premium_plan"`
	PremiumStatus  PremiumStatus  `json:"premium_status"`
	OccurredAt     time.Time      `json:"occurred_at"`
	Details        map[string]any `json:"details,omitempty"`
}
