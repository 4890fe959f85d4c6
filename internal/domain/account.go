/**
 * @description
 * Account classification for the load-or-seed path. Records in the buyers
 * table are not guaranteed to be buyer accounts: other account kinds share
 * the table, and records imported from the legacy document store sometimes
 * carry buyer-shaped fields without the buyer type tag. Classification is
 * explicit here so adoption is a logged, audited step instead of a silent
 * structural guess.
 */
package domain

import "time"

// AccountKind is the result of classifying a stored record.
type AccountKind string

const (
	// AccountKindBuyer is a well-formed buyer record.
	AccountKindBuyer AccountKind = "buyer"
	// AccountKindAdoptable is an untyped or non-buyer record carrying
	// buyer-shaped fields (a profile or non-zero purchase metrics).
	AccountKindAdoptable AccountKind = "adoptable"
	// AccountKindUnknown is a record of some other account kind with no
	// buyer traits. These are never reshaped.
	AccountKindUnknown AccountKind = "unknown"
)

// ClassifyAccount tags a stored record by how buyer-like it is.
func ClassifyAccount(rec BuyerRecord) AccountKind {
	if rec.Type == AccountTypeBuyer {
		return AccountKindBuyer
	}
	if rec.Type == "" || rec.BuyerProfile != nil || rec.Metrics != (BuyerMetrics{}) {
		return AccountKindAdoptable
	}
	return AccountKindUnknown
}

// AdoptAsBuyer upgrades a non-buyer record into a buyer record, filling
// any lifecycle fields the record is missing with the seed defaults while
// preserving whatever buyer-shaped data it already carries.
func AdoptAsBuyer(rec BuyerRecord, now time.Time) BuyerRecord {
	rec.Type = AccountTypeBuyer
	if rec.ApprovalStatus == "" {
		rec.ApprovalStatus = ApprovalPending
	}
	rec.VerifiedBuyer = rec.ApprovalStatus == ApprovalApproved
	rec.BuyerTier = EvaluateTier(rec.Metrics)
	if rec.PremiumPlan == "" {
		rec.PremiumPlan = PlanNone
	}
	if rec.PremiumStatus == "" {
		rec.PremiumStatus = PremiumTrial
	}
	if rec.TrialStartAt == "" || rec.TrialEndAt == "" {
		rec.TrialStartAt = now.UTC().Format(time.RFC3339)
		rec.TrialEndAt = now.UTC().Add(TrialDays * 24 * time.Hour).Format(time.RFC3339)
	}
	if rec.Billing.Currency == "" {
		rec.Billing.Currency = "KES"
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now.UTC()
	}
	rec.UpdatedAt = now.UTC()
	return rec
}
