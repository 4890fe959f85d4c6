/**
 * @description
 * The buyer serializer: projects the stored BuyerRecord into the external
 * read view returned by the API. Derived fields (effective premium status,
 * trial days left, entitlement flags) are computed fresh on every call and
 * never written back to the record — an expired trial keeps reading TRIAL
 * in storage while every response reports EXPIRED.
 */
package domain

import "time"

// Entitlements are the feature gates the portal checks before showing
// premium surfaces or commit buttons.
type Entitlements struct {
	CanCommitActions           bool `json:"canCommitActions"`
	CanRevealContacts          bool `json:"canRevealContacts"`
	CanUseAdvancedIntelligence bool `json:"canUseAdvancedIntelligence"`
	CanCreateBulkContracts     bool `json:"canCreateBulkContracts"`
}

// BuyerView is the external-facing projection of a buyer record.
type BuyerView struct {
	UID            string         `json:"uid"`
	Type           string         `json:"type"`
	ApprovalStatus ApprovalStatus `json:"approvalStatus"`
	VerifiedBuyer  bool           `json:"verifiedBuyer"`
	BuyerTier      BuyerTier      `json:"buyerTier"`
	PremiumPlan    PremiumPlan    `json:"premiumPlan"`

	// PremiumStatus here is the effective status, not necessarily the
	// stored one; see SerializeBuyerMe.
	PremiumStatus PremiumStatus `json:"premiumStatus"`

	TrialStartAt  string `json:"trialStartAt"`
	TrialEndAt    string `json:"trialEndAt"`
	TrialDaysLeft int    `json:"trialDaysLeft"`

	Metrics      BuyerMetrics  `json:"metrics"`
	Billing      Billing       `json:"billing"`
	BuyerProfile *BuyerProfile `json:"buyerProfile,omitempty"`

	PremiumUpgradeRequest *UpgradeRequest `json:"premiumUpgradeRequest,omitempty"`

	ApprovedBy      *string    `json:"approvedBy,omitempty"`
	ApprovedAt      *time.Time `json:"approvedAt,omitempty"`
	RejectionReason *string    `json:"rejectionReason,omitempty"`

	PremiumEntitlements Entitlements `json:"premiumEntitlements"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// SerializeBuyerMe builds the read view for a buyer record. The effective
// premium status downgrades TRIAL to EXPIRED when the trial window has
// passed and no paid plan was taken; the stored record is left untouched.
func SerializeBuyerMe(rec BuyerRecord, now time.Time) BuyerView {
	effective := rec.PremiumStatus
	if IsTrialExpired(rec, now) && rec.PremiumPlan == PlanNone && rec.PremiumStatus == PremiumTrial {
		effective = PremiumExpired
	}

	approved := rec.ApprovalStatus == ApprovalApproved
	premiumOK := effective == PremiumActive || effective == PremiumTrial

	return BuyerView{
		UID:            rec.UID,
		Type:           rec.Type,
		ApprovalStatus: rec.ApprovalStatus,
		VerifiedBuyer:  rec.VerifiedBuyer,
		BuyerTier:      rec.BuyerTier,
		PremiumPlan:    rec.PremiumPlan,
		PremiumStatus:  effective,
		TrialStartAt:   rec.TrialStartAt,
		TrialEndAt:     rec.TrialEndAt,
		TrialDaysLeft:  TrialDaysLeft(rec, now),
		Metrics:        rec.Metrics,
		Billing:        rec.Billing,
		BuyerProfile:   normalizeProfile(rec.BuyerProfile),

		PremiumUpgradeRequest: rec.PremiumUpgradeRequest,

		ApprovedBy:      rec.ApprovedBy,
		ApprovedAt:      rec.ApprovedAt,
		RejectionReason: rec.RejectionReason,

		PremiumEntitlements: Entitlements{
			CanCommitActions:           approved,
			CanRevealContacts:          approved && premiumOK,
			CanUseAdvancedIntelligence: approved && premiumOK,
			CanCreateBulkContracts:     approved && premiumOK,
		},

		CreatedAt: rec.CreatedAt,
		UpdatedAt: rec.UpdatedAt,
	}
}

// normalizeProfile returns a copy of the profile with every list field
// non-nil, so the portal always receives [] instead of null. A nil profile
// stays nil.
func normalizeProfile(p *BuyerProfile) *BuyerProfile {
	if p == nil {
		return nil
	}
	out := *p
	if out.Company != nil {
		company := *out.Company
		if company.Destinations == nil {
			company.Destinations = StringList{}
		}
		out.Company = &company
	}
	if out.Preferences != nil {
		prefs := *out.Preferences
		if prefs.Crops == nil {
			prefs.Crops = StringList{}
		}
		if prefs.Counties == nil {
			prefs.Counties = StringList{}
		}
		out.Preferences = &prefs
	}
	return &out
}
