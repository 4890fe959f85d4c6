/**
 * @description
 * This file defines the core domain models for the buyer-service.
 * It includes the BuyerRecord struct that maps to the buyers table, the
 * enums that drive the approval and premium lifecycle, and the nested
 * metrics, billing and profile sub-records.
 *
 * @notes
 * - Enum values are persisted as their string form, so the constants here
 *   are the single source of truth for what is stored and what goes over
 *   the wire.
 * - JSON tags are camelCase to match the contract the web portal already
 *   consumes; the store layer maps to snake_case columns.
 * - Trial timestamps are kept as RFC3339 strings rather than time.Time:
 *   records imported from the legacy document store occasionally carry
 *   malformed values, and the rules engine must treat those as "not
 *   expired" instead of failing the whole record.
 */
package domain

import "time"

// AccountTypeBuyer tags a record as a buyer account. Other account kinds
// (farmer, cooperative) live in the same table but are not managed here.
const AccountTypeBuyer = "buyer"

// ApprovalStatus is the admin-controlled verification state of a buyer.
type ApprovalStatus string

const (
	ApprovalPending  ApprovalStatus = "PENDING"
	ApprovalApproved ApprovalStatus = "APPROVED"
	ApprovalRejected ApprovalStatus = "REJECTED"
)

// BuyerTier is the purchase-history classification of a buyer.
type BuyerTier string

const (
	TierBronze BuyerTier = "BRONZE"
	TierSilver BuyerTier = "SILVER"
	TierGold   BuyerTier = "GOLD"
)

// PremiumPlan identifies which paid add-on, if any, the buyer is on.
type PremiumPlan string

const (
	PlanNone       PremiumPlan = "NONE"
	PlanGoldAddon  PremiumPlan = "GOLD_ADDON"
	PlanEnterprise PremiumPlan = "ENTERPRISE"
)

// PremiumStatus is the billing state of the buyer's premium plan.
type PremiumStatus string

const (
	PremiumTrial     PremiumStatus = "TRIAL"
	PremiumActive    PremiumStatus = "ACTIVE"
	PremiumExpired   PremiumStatus = "EXPIRED"
	PremiumPastDue   PremiumStatus = "PAST_DUE"
	PremiumCancelled PremiumStatus = "CANCELLED"
)

// TrialDays is the fixed length of the premium trial window granted at
// record creation. Trials are never renewed or extended in this service.
const TrialDays = 14

// BuyerMetrics aggregates the purchase history that drives tier evaluation.
type BuyerMetrics struct {
	SuccessfulPurchasesCount int     `json:"successfulPurchasesCount"`
	TotalSpendKes            float64 `json:"totalSpendKes"`
	DisputesCount            int     `json:"disputesCount"`
}

// Billing holds the premium billing fields for a buyer. Currency is fixed
// at KES for the whole platform.
type Billing struct {
	Currency        string     `json:"currency"`
	MonthlyPriceKes float64    `json:"monthlyPriceKes"`
	NextBillingDate *time.Time `json:"nextBillingDate,omitempty"`
	LastPaymentAt   *time.Time `json:"lastPaymentAt,omitempty"`
	PaymentStatus   string     `json:"paymentStatus,omitempty"`
}

// CompanyProfile is the buyer's company sub-record. Destinations is a
// lenient list: malformed values from the legacy store decode to empty.
type CompanyProfile struct {
	Name         string         `json:"name,omitempty"`
	Destinations StringList     `json:"destinations"`
	Extra        map[string]any `json:"extra,omitempty"`
}

// BuyerPreferences captures sourcing preferences used by the marketplace UI.
type BuyerPreferences struct {
	Crops    StringList     `json:"crops"`
	Counties StringList     `json:"counties"`
	Extra    map[string]any `json:"extra,omitempty"`
}

// BuyerProfile is the free-form profile attached to a buyer record. The
// rules engine never inspects it; the serializer only normalizes its lists.
type BuyerProfile struct {
	DisplayName string            `json:"displayName,omitempty"`
	Company     *CompanyProfile   `json:"company,omitempty"`
	Preferences *BuyerPreferences `json:"preferences,omitempty"`
	Extra       map[string]any    `json:"extra,omitempty"`
}

// UpgradeRequest records a buyer's pending request to move to a paid plan.
// It does not change the plan itself; an admin action does that.
type UpgradeRequest struct {
	RequestedPlan PremiumPlan `json:"requestedPlan"`
	Status        string      `json:"status"`
	RequestedAt   time.Time   `json:"requestedAt"`
}

// UpgradeRequestPending is the only status an upgrade request carries in
// this service; resolution happens through the admin setPremium action.
const UpgradeRequestPending = "PENDING"

// BuyerRecord is the per-user document managed by this service, one row
// per uid in the buyers table.
type BuyerRecord struct {
	UID            string         `json:"uid"`
	Type           string         `json:"type"`
	ApprovalStatus ApprovalStatus `json:"approvalStatus"`
	VerifiedBuyer  bool           `json:"verifiedBuyer"`
	BuyerTier      BuyerTier      `json:"buyerTier"`
	PremiumPlan    PremiumPlan    `json:"premiumPlan"`
	PremiumStatus  PremiumStatus  `json:"premiumStatus"`

	// RFC3339 strings; see file note about malformed legacy values.
	TrialStartAt string `json:"trialStartAt"`
	TrialEndAt   string `json:"trialEndAt"`

	Metrics      BuyerMetrics  `json:"metrics"`
	Billing      Billing       `json:"billing"`
	BuyerProfile *BuyerProfile `json:"buyerProfile,omitempty"`

	PremiumUpgradeRequest *UpgradeRequest `json:"premiumUpgradeRequest,omitempty"`

	ApprovedBy      *string    `json:"approvedBy,omitempty"`
	ApprovedAt      *time.Time `json:"approvedAt,omitempty"`
	RejectionReason *string    `json:"rejectionReason,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// NewBuyerRecord seeds a buyer record with platform defaults: pending
// approval, bronze tier, no paid plan, and a fresh trial window.
func NewBuyerRecord(uid string, now time.Time) BuyerRecord {
	return BuyerRecord{
		UID:            uid,
		Type:           AccountTypeBuyer,
		ApprovalStatus: ApprovalPending,
		VerifiedBuyer:  false,
		BuyerTier:      TierBronze,
		PremiumPlan:    PlanNone,
		PremiumStatus:  PremiumTrial,
		TrialStartAt:   now.UTC().Format(time.RFC3339),
		TrialEndAt:     now.UTC().Add(TrialDays * 24 * time.Hour).Format(time.RFC3339),
		Metrics:        BuyerMetrics{},
		Billing:        Billing{Currency: "KES"},
		CreatedAt:      now.UTC(),
		UpdatedAt:      now.UTC(),
	}
}

// NormalizeTier maps arbitrary input to a valid tier, defaulting to BRONZE.
func NormalizeTier(raw string) BuyerTier {
	switch BuyerTier(raw) {
	case TierBronze, TierSilver, TierGold:
		return BuyerTier(raw)
	default:
		return TierBronze
	}
}

// NormalizePlan maps arbitrary input to a valid plan, defaulting to NONE.
func NormalizePlan(raw string) PremiumPlan {
	switch PremiumPlan(raw) {
	case PlanNone, PlanGoldAddon, PlanEnterprise:
		return PremiumPlan(raw)
	default:
		return PlanNone
	}
}

// NormalizePremiumStatus maps arbitrary input to a valid premium status,
// defaulting to TRIAL.
func NormalizePremiumStatus(raw string) PremiumStatus {
	switch PremiumStatus(raw) {
	case PremiumTrial, PremiumActive, PremiumExpired, PremiumPastDue, PremiumCancelled:
		return PremiumStatus(raw)
	default:
		return PremiumTrial
	}
}

// PlanMonthlyPriceKes returns the list price for a premium plan.
func PlanMonthlyPriceKes(plan PremiumPlan) float64 {
	switch plan {
	case PlanGoldAddon:
		return 6000
	case PlanEnterprise:
		return 15000
	default:
		return 0
	}
}

// Caller is the authenticated identity resolved by the auth middleware.
type Caller struct {
	UID   string
	Email string
}
