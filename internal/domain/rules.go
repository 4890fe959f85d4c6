/**
 * @description
 * The buyer rules engine: pure functions that compute the next record state
 * from the current record and a request payload. Nothing here touches the
 * database or the clock directly; callers pass `now` in so every rule is
 * deterministic and trivially testable.
 */
package domain

import (
	"math"
	"strings"
	"time"
)

// Tier thresholds. A buyer is GOLD with a strong purchase history and at
// most two disputes, SILVER with a moderate history and at most one.
const (
	goldMinPurchases   = 20
	goldMaxDisputes    = 2
	silverMinPurchases = 5
	silverMaxDisputes  = 1
)

// EvaluateTier classifies a buyer from its metrics. Total over all inputs:
// every metrics value maps to exactly one tier. A gold-volume buyer with
// too many disputes drops to SILVER, not BRONZE.
func EvaluateTier(m BuyerMetrics) BuyerTier {
	if m.SuccessfulPurchasesCount >= goldMinPurchases {
		if m.DisputesCount <= goldMaxDisputes {
			return TierGold
		}
		return TierSilver
	}
	if m.SuccessfulPurchasesCount >= silverMinPurchases && m.DisputesCount <= silverMaxDisputes {
		return TierSilver
	}
	return TierBronze
}

// IsTrialExpired reports whether the trial window has passed. A trial end
// that does not parse is treated as not expired (fail open).
func IsTrialExpired(rec BuyerRecord, now time.Time) bool {
	end, err := time.Parse(time.RFC3339, rec.TrialEndAt)
	if err != nil {
		return false
	}
	return now.After(end)
}

// TrialDaysLeft returns the whole days remaining in the trial window,
// rounded up and clamped at zero. Unparseable trial ends count as zero.
func TrialDaysLeft(rec BuyerRecord, now time.Time) int {
	end, err := time.Parse(time.RFC3339, rec.TrialEndAt)
	if err != nil {
		return 0
	}
	days := int(math.Ceil(end.Sub(now).Hours() / 24))
	if days < 0 {
		return 0
	}
	return days
}

// PurchaseRequest is the payload for committing a completed purchase.
type PurchaseRequest struct {
	AmountKes  float64 `json:"amountKes"`
	HasDispute bool    `json:"hasDispute,omitempty"`
	OrderID    string  `json:"orderId,omitempty"`
}

// roundKes rounds to whole cents; spend totals are stored at 2 decimals.
func roundKes(v float64) float64 {
	return math.Round(v*100) / 100
}

// ApplyPurchase folds a completed purchase into the record: increments the
// purchase count, accumulates spend, tracks disputes, and re-evaluates the
// tier. The approval gate is the caller's responsibility.
func ApplyPurchase(rec BuyerRecord, req PurchaseRequest, now time.Time) (BuyerRecord, error) {
	if math.IsNaN(req.AmountKes) || math.IsInf(req.AmountKes, 0) || req.AmountKes <= 0 {
		return rec, ValidationError("amountKes must be a positive finite number", map[string]any{
			"amountKes": req.AmountKes,
		})
	}

	rec.Metrics.SuccessfulPurchasesCount++
	rec.Metrics.TotalSpendKes = roundKes(rec.Metrics.TotalSpendKes + req.AmountKes)
	if req.HasDispute {
		rec.Metrics.DisputesCount++
	}
	rec.BuyerTier = EvaluateTier(rec.Metrics)
	rec.UpdatedAt = now.UTC()
	return rec, nil
}

// AdminTierRequest is the payload for the admin tier override.
type AdminTierRequest struct {
	Tier string `json:"tier"`
}

// ApplyAdminTier sets the tier directly, bypassing evaluation. Unrecognized
// input normalizes to BRONZE.
func ApplyAdminTier(rec BuyerRecord, req AdminTierRequest, now time.Time) BuyerRecord {
	rec.BuyerTier = NormalizeTier(req.Tier)
	rec.UpdatedAt = now.UTC()
	return rec
}

// AdminPremiumRequest is the payload for the admin premium override. The
// optional fields override the derived billing values when present.
type AdminPremiumRequest struct {
	Plan            string     `json:"plan"`
	Status          string     `json:"status"`
	MonthlyPriceKes *float64   `json:"monthlyPriceKes,omitempty"`
	NextBillingDate *time.Time `json:"nextBillingDate,omitempty"`
	PaymentStatus   *string    `json:"paymentStatus,omitempty"`
}

// ApplyAdminPremium sets the premium plan and status from normalized enums
// and recomputes the monthly price from the plan table unless an explicit
// override price is supplied. Other billing fields are preserved unless
// overridden.
func ApplyAdminPremium(rec BuyerRecord, req AdminPremiumRequest, now time.Time) BuyerRecord {
	rec.PremiumPlan = NormalizePlan(req.Plan)
	rec.PremiumStatus = NormalizePremiumStatus(req.Status)
	if req.MonthlyPriceKes != nil {
		rec.Billing.MonthlyPriceKes = roundKes(*req.MonthlyPriceKes)
	} else {
		rec.Billing.MonthlyPriceKes = PlanMonthlyPriceKes(rec.PremiumPlan)
	}
	if req.NextBillingDate != nil {
		rec.Billing.NextBillingDate = req.NextBillingDate
	}
	if req.PaymentStatus != nil {
		rec.Billing.PaymentStatus = *req.PaymentStatus
	}
	rec.UpdatedAt = now.UTC()
	return rec
}

// Approve transitions the record to APPROVED. Re-approval after rejection
// is allowed; the transition is idempotent.
func Approve(rec BuyerRecord, adminUID string, now time.Time) BuyerRecord {
	approvedAt := now.UTC()
	rec.ApprovalStatus = ApprovalApproved
	rec.VerifiedBuyer = true
	rec.ApprovedBy = &adminUID
	rec.ApprovedAt = &approvedAt
	rec.RejectionReason = nil
	rec.UpdatedAt = approvedAt
	return rec
}

// Reject transitions the record to REJECTED. A non-empty reason is
// required; rejecting an already-approved buyer is allowed and clears the
// verified flag.
func Reject(rec BuyerRecord, reason string, now time.Time) (BuyerRecord, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return rec, ValidationError("rejectionReason is required", nil)
	}
	rec.ApprovalStatus = ApprovalRejected
	rec.VerifiedBuyer = false
	rec.RejectionReason = &reason
	rec.ApprovedBy = nil
	rec.ApprovedAt = nil
	rec.UpdatedAt = now.UTC()
	return rec, nil
}
