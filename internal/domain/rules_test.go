package domain

import (
	"errors"
	"math"
	"testing"
	"time"
)

var testNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func TestEvaluateTier(t *testing.T) {
	tests := []struct {
		name      string
		purchases int
		disputes  int
		want      BuyerTier
	}{
		{name: "gold boundary", purchases: 20, disputes: 2, want: TierGold},
		{name: "gold volume with excess disputes drops to silver", purchases: 20, disputes: 3, want: TierSilver},
		{name: "silver boundary", purchases: 5, disputes: 1, want: TierSilver},
		{name: "silver volume with excess disputes", purchases: 5, disputes: 2, want: TierBronze},
		{name: "below silver volume", purchases: 4, disputes: 0, want: TierBronze},
		{name: "fresh buyer", purchases: 0, disputes: 0, want: TierBronze},
		{name: "heavy clean buyer", purchases: 100, disputes: 0, want: TierGold},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := BuyerMetrics{SuccessfulPurchasesCount: tt.purchases, DisputesCount: tt.disputes}
			if got := EvaluateTier(m); got != tt.want {
				t.Fatalf("EvaluateTier(%d purchases, %d disputes) = %s, want %s", tt.purchases, tt.disputes, got, tt.want)
			}
		})
	}
}

func TestApplyPurchaseAccumulates(t *testing.T) {
	rec := NewBuyerRecord("buyer-1", testNow)
	rec.Metrics = BuyerMetrics{SuccessfulPurchasesCount: 4, TotalSpendKes: 1000.50, DisputesCount: 0}

	got, err := ApplyPurchase(rec, PurchaseRequest{AmountKes: 499.499}, testNow)
	if err != nil {
		t.Fatalf("ApplyPurchase returned error: %v", err)
	}
	if got.Metrics.SuccessfulPurchasesCount != 5 {
		t.Fatalf("expected 5 purchases, got %d", got.Metrics.SuccessfulPurchasesCount)
	}
	if got.Metrics.TotalSpendKes != 1500.00 {
		t.Fatalf("expected spend rounded to 1500.00, got %v", got.Metrics.TotalSpendKes)
	}
	if got.BuyerTier != TierSilver {
		t.Fatalf("expected tier re-evaluated to SILVER, got %s", got.BuyerTier)
	}
}

func TestApplyPurchaseDispute(t *testing.T) {
	rec := NewBuyerRecord("buyer-1", testNow)
	rec.Metrics = BuyerMetrics{SuccessfulPurchasesCount: 5, DisputesCount: 1}

	got, err := ApplyPurchase(rec, PurchaseRequest{AmountKes: 10, HasDispute: true}, testNow)
	if err != nil {
		t.Fatalf("ApplyPurchase returned error: %v", err)
	}
	if got.Metrics.DisputesCount != 2 {
		t.Fatalf("expected 2 disputes, got %d", got.Metrics.DisputesCount)
	}
	// 6 purchases with 2 disputes no longer qualifies for silver.
	if got.BuyerTier != TierBronze {
		t.Fatalf("expected tier BRONZE after second dispute, got %s", got.BuyerTier)
	}
}

func TestApplyPurchaseRejectsBadAmounts(t *testing.T) {
	rec := NewBuyerRecord("buyer-1", testNow)
	rec.Metrics = BuyerMetrics{SuccessfulPurchasesCount: 3, TotalSpendKes: 77.25}

	amounts := []float64{0, -15, math.NaN(), math.Inf(1), math.Inf(-1)}
	for _, amount := range amounts {
		got, err := ApplyPurchase(rec, PurchaseRequest{AmountKes: amount}, testNow)
		if err == nil {
			t.Fatalf("expected error for amount %v", amount)
		}
		var apiErr *Error
		if !errors.As(err, &apiErr) || apiErr.Code != CodeValidationError {
			t.Fatalf("expected VALIDATION_ERROR for amount %v, got %v", amount, err)
		}
		if got.Metrics != rec.Metrics {
			t.Fatalf("record mutated on invalid amount %v", amount)
		}
	}
}

func TestTrialExpiry(t *testing.T) {
	rec := NewBuyerRecord("buyer-1", testNow)

	rec.TrialEndAt = testNow.Add(-time.Hour).Format(time.RFC3339)
	if !IsTrialExpired(rec, testNow) {
		t.Fatal("expected past trial end to be expired")
	}
	if got := TrialDaysLeft(rec, testNow); got != 0 {
		t.Fatalf("expected 0 days left on expired trial, got %d", got)
	}

	rec.TrialEndAt = testNow.Add(36 * time.Hour).Format(time.RFC3339)
	if IsTrialExpired(rec, testNow) {
		t.Fatal("expected future trial end to not be expired")
	}
	if got := TrialDaysLeft(rec, testNow); got != 2 {
		t.Fatalf("expected 36h to round up to 2 days, got %d", got)
	}

	// Unparseable timestamps fail open: not expired, zero days left.
	rec.TrialEndAt = "not-a-timestamp"
	if IsTrialExpired(rec, testNow) {
		t.Fatal("expected unparseable trial end to not be expired")
	}
	if got := TrialDaysLeft(rec, testNow); got != 0 {
		t.Fatalf("expected 0 days left for unparseable trial end, got %d", got)
	}
}

func TestApproveAndReject(t *testing.T) {
	rec := NewBuyerRecord("buyer-1", testNow)

	approved := Approve(rec, "admin-1", testNow)
	if approved.ApprovalStatus != ApprovalApproved || !approved.VerifiedBuyer {
		t.Fatalf("expected approved verified buyer, got %s verified=%v", approved.ApprovalStatus, approved.VerifiedBuyer)
	}
	if approved.ApprovedBy == nil || *approved.ApprovedBy != "admin-1" {
		t.Fatal("expected approvedBy to record the admin uid")
	}
	if approved.RejectionReason != nil {
		t.Fatal("expected rejectionReason cleared on approval")
	}

	// Re-rejection of an approved buyer is allowed.
	rejected, err := Reject(approved, "fraudulent listings", testNow)
	if err != nil {
		t.Fatalf("Reject returned error: %v", err)
	}
	if rejected.ApprovalStatus != ApprovalRejected || rejected.VerifiedBuyer {
		t.Fatalf("expected rejected unverified buyer, got %s verified=%v", rejected.ApprovalStatus, rejected.VerifiedBuyer)
	}
	if rejected.RejectionReason == nil || *rejected.RejectionReason != "fraudulent listings" {
		t.Fatal("expected rejectionReason to be stored")
	}
	if rejected.ApprovedBy != nil || rejected.ApprovedAt != nil {
		t.Fatal("expected approval fields cleared on rejection")
	}

	// Re-approval after rejection is allowed.
	reapproved := Approve(rejected, "admin-2", testNow)
	if reapproved.ApprovalStatus != ApprovalApproved || reapproved.RejectionReason != nil {
		t.Fatal("expected re-approval to clear the rejection")
	}
}

func TestRejectRequiresReason(t *testing.T) {
	rec := NewBuyerRecord("buyer-1", testNow)

	for _, reason := range []string{"", "   "} {
		got, err := Reject(rec, reason, testNow)
		var apiErr *Error
		if !errors.As(err, &apiErr) || apiErr.Code != CodeValidationError {
			t.Fatalf("expected VALIDATION_ERROR for reason %q, got %v", reason, err)
		}
		if got.ApprovalStatus != ApprovalPending {
			t.Fatalf("record mutated on invalid rejection: %s", got.ApprovalStatus)
		}
	}
}

func TestApplyAdminTier(t *testing.T) {
	rec := NewBuyerRecord("buyer-1", testNow)
	rec.Metrics = BuyerMetrics{SuccessfulPurchasesCount: 50}

	got := ApplyAdminTier(rec, AdminTierRequest{Tier: "GOLD"}, testNow)
	if got.BuyerTier != TierGold {
		t.Fatalf("expected GOLD override, got %s", got.BuyerTier)
	}

	got = ApplyAdminTier(rec, AdminTierRequest{Tier: "platinum"}, testNow)
	if got.BuyerTier != TierBronze {
		t.Fatalf("expected unrecognized tier to default to BRONZE, got %s", got.BuyerTier)
	}
}

func TestApplyAdminPremium(t *testing.T) {
	rec := NewBuyerRecord("buyer-1", testNow)
	nextBilling := testNow.AddDate(0, 1, 0)
	rec.Billing.NextBillingDate = &nextBilling

	got := ApplyAdminPremium(rec, AdminPremiumRequest{Plan: "ENTERPRISE", Status: "ACTIVE"}, testNow)
	if got.PremiumPlan != PlanEnterprise || got.PremiumStatus != PremiumActive {
		t.Fatalf("expected ENTERPRISE/ACTIVE, got %s/%s", got.PremiumPlan, got.PremiumStatus)
	}
	if got.Billing.MonthlyPriceKes != 15000 {
		t.Fatalf("expected plan-table price 15000, got %v", got.Billing.MonthlyPriceKes)
	}
	if got.Billing.NextBillingDate == nil || !got.Billing.NextBillingDate.Equal(nextBilling) {
		t.Fatal("expected nextBillingDate preserved when not overridden")
	}

	override := 4999.99
	got = ApplyAdminPremium(rec, AdminPremiumRequest{Plan: "GOLD_ADDON", Status: "ACTIVE", MonthlyPriceKes: &override}, testNow)
	if got.Billing.MonthlyPriceKes != 4999.99 {
		t.Fatalf("expected override price 4999.99, got %v", got.Billing.MonthlyPriceKes)
	}

	got = ApplyAdminPremium(rec, AdminPremiumRequest{Plan: "bogus", Status: "bogus"}, testNow)
	if got.PremiumPlan != PlanNone || got.PremiumStatus != PremiumTrial {
		t.Fatalf("expected unrecognized input to default to NONE/TRIAL, got %s/%s", got.PremiumPlan, got.PremiumStatus)
	}
	if got.Billing.MonthlyPriceKes != 0 {
		t.Fatalf("expected NONE plan price 0, got %v", got.Billing.MonthlyPriceKes)
	}
}
