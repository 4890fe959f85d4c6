/**
 * @description
 * This file implements the data access layer for the buyer-service. It
 * contains all the SQL for the buyers table and the buyer_audit_events
 * table, behind a small repository type the app layer depends on.
 *
 * @notes
 * - The buyers table is one row per uid; writes are whole-record upserts
 *   (last write wins, no optimistic concurrency — an accepted limitation
 *   of this subsystem).
 * - buyer_profile, billing and premium_upgrade_request are JSONB columns.
 *   Profile decoding is lenient: a malformed blob logs a warning and loads
 *   as an empty profile instead of failing the record.
 */
package store

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sokoyetu/buyer-service/internal/domain"
)

// ErrBuyerNotFound is returned when no record exists for a uid.
var ErrBuyerNotFound = errors.New("buyer not found")

// Repository handles database operations for buyer records and audit events.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

const buyerColumns = `
        uid, account_type, approval_status, verified_buyer, buyer_tier,
        premium_plan, premium_status, trial_start_at, trial_end_at,
        purchases_count, total_spend_kes, disputes_count,
        billing, buyer_profile, premium_upgrade_request,
        approved_by, approved_at, rejection_reason, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBuyer(row rowScanner) (*domain.BuyerRecord, error) {
	var (
		rec            domain.BuyerRecord
		billingJSON    []byte
		profileJSON    []byte
		upgradeJSON    []byte
		approvalStatus string
		buyerTier      string
		premiumPlan    string
		premiumStatus  string
	)
	err := row.Scan(
		&rec.UID,
		&rec.Type,
		&approvalStatus,
		&rec.VerifiedBuyer,
		&buyerTier,
		&premiumPlan,
		&premiumStatus,
		&rec.TrialStartAt,
		&rec.TrialEndAt,
		&rec.Metrics.SuccessfulPurchasesCount,
		&rec.Metrics.TotalSpendKes,
		&rec.Metrics.DisputesCount,
		&billingJSON,
		&profileJSON,
		&upgradeJSON,
		&rec.ApprovedBy,
		&rec.ApprovedAt,
		&rec.RejectionReason,
		&rec.CreatedAt,
		&rec.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	rec.ApprovalStatus = domain.ApprovalStatus(approvalStatus)
	rec.BuyerTier = domain.BuyerTier(buyerTier)
	rec.PremiumPlan = domain.PremiumPlan(premiumPlan)
	rec.PremiumStatus = domain.PremiumStatus(premiumStatus)

	if len(billingJSON) > 0 {
		if err := json.Unmarshal(billingJSON, &rec.Billing); err != nil {
			log.Printf("Warning: malformed billing blob for buyer %s: %v", rec.UID, err)
			rec.Billing = domain.Billing{Currency: "KES"}
		}
	}
	if len(profileJSON) > 0 {
		var profile domain.BuyerProfile
		if err := json.Unmarshal(profileJSON, &profile); err != nil {
			log.Printf("Warning: malformed buyer_profile blob for buyer %s: %v", rec.UID, err)
		} else {
			rec.BuyerProfile = &profile
		}
	}
	if len(upgradeJSON) > 0 {
		var upgrade domain.UpgradeRequest
		if err := json.Unmarshal(upgradeJSON, &upgrade); err != nil {
			log.Printf("Warning: malformed premium_upgrade_request blob for buyer %s: %v", rec.UID, err)
		} else {
			rec.PremiumUpgradeRequest = &upgrade
		}
	}

	return &rec, nil
}

// GetBuyer retrieves the record for a given uid.
func (r *Repository) GetBuyer(ctx context.Context, uid string) (*domain.BuyerRecord, error) {
	query := `SELECT` + buyerColumns + `
        FROM buyers
        WHERE uid = $1
    `
	rec, err := scanBuyer(r.db.QueryRow(ctx, query, uid))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrBuyerNotFound
		}
		return nil, err
	}
	return rec, nil
}

// UpsertBuyer creates or replaces the record for rec.UID and returns the
// stored row.
func (r *Repository) UpsertBuyer(ctx context.Context, rec *domain.BuyerRecord) (*domain.BuyerRecord, error) {
	billingJSON, err := json.Marshal(rec.Billing)
	if err != nil {
		return nil, err
	}
	var profileJSON []byte
	if rec.BuyerProfile != nil {
		if profileJSON, err = json.Marshal(rec.BuyerProfile); err != nil {
			return nil, err
		}
	}
	var upgradeJSON []byte
	if rec.PremiumUpgradeRequest != nil {
		if upgradeJSON, err = json.Marshal(rec.PremiumUpgradeRequest); err != nil {
			return nil, err
		}
	}

	query := `
        INSERT INTO buyers (
            uid, account_type, approval_status, verified_buyer, buyer_tier,
            premium_plan, premium_status, trial_start_at, trial_end_at,
            purchases_count, total_spend_kes, disputes_count,
            billing, buyer_profile, premium_upgrade_request,
            approved_by, approved_at, rejection_reason, created_at, updated_at
        )
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)
        ON CONFLICT (uid) DO UPDATE SET
            account_type = EXCLUDED.account_type,
            approval_status = EXCLUDED.approval_status,
            verified_buyer = EXCLUDED.verified_buyer,
            buyer_tier = EXCLUDED.buyer_tier,
            premium_plan = EXCLUDED.premium_plan,
            premium_status = EXCLUDED.premium_status,
            trial_start_at = EXCLUDED.trial_start_at,
            trial_end_at = EXCLUDED.trial_end_at,
            purchases_count = EXCLUDED.purchases_count,
            total_spend_kes = EXCLUDED.total_spend_kes,
            disputes_count = EXCLUDED.disputes_count,
            billing = EXCLUDED.billing,
            buyer_profile = EXCLUDED.buyer_profile,
            premium_upgrade_request = EXCLUDED.premium_upgrade_request,
            approved_by = EXCLUDED.approved_by,
            approved_at = EXCLUDED.approved_at,
            rejection_reason = EXCLUDED.rejection_reason,
            updated_at = EXCLUDED.updated_at
        RETURNING` + buyerColumns

	stored, err := scanBuyer(r.db.QueryRow(ctx, query,
		rec.UID,
		rec.Type,
		string(rec.ApprovalStatus),
		rec.VerifiedBuyer,
		string(rec.BuyerTier),
		string(rec.PremiumPlan),
		string(rec.PremiumStatus),
		rec.TrialStartAt,
		rec.TrialEndAt,
		rec.Metrics.SuccessfulPurchasesCount,
		rec.Metrics.TotalSpendKes,
		rec.Metrics.DisputesCount,
		billingJSON,
		profileJSON,
		upgradeJSON,
		rec.ApprovedBy,
		rec.ApprovedAt,
		rec.RejectionReason,
		rec.CreatedAt,
		rec.UpdatedAt,
	))
	if err != nil {
		log.Printf("Error upserting buyer %s: %v", rec.UID, err)
		return nil, err
	}
	return stored, nil
}

// ListBuyersByApprovalStatus returns buyer records filtered by approval
// status, newest first.
func (r *Repository) ListBuyersByApprovalStatus(ctx context.Context, status domain.ApprovalStatus, limit, offset int) ([]domain.BuyerRecord, error) {
	query := `SELECT` + buyerColumns + `
        FROM buyers
        WHERE account_type = $1 AND approval_status = $2
        ORDER BY created_at DESC
        LIMIT $3 OFFSET $4
    `
	rows, err := r.db.Query(ctx, query, domain.AccountTypeBuyer, string(status), limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []domain.BuyerRecord
	for rows.Next() {
		rec, err := scanBuyer(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, *rec)
	}
	return records, rows.Err()
}

// AppendAuditEvent writes an immutable audit record. Callers invoke this
// before responding so mutations are never acknowledged without a trail.
func (r *Repository) AppendAuditEvent(ctx context.Context, ev *domain.AuditEvent) error {
	var detailsJSON []byte
	if ev.Details != nil {
		var err error
		if detailsJSON, err = json.Marshal(ev.Details); err != nil {
			return err
		}
	}

	query := `
        INSERT INTO buyer_audit_events (id, action, actor_uid, actor_email, target_uid, details, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7)
    `
	createdAt := ev.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	if _, err := r.db.Exec(ctx, query, ev.ID, ev.Action, ev.ActorUID, ev.ActorEmail, ev.TargetUID, detailsJSON, createdAt); err != nil {
		log.Printf("Error appending audit event %s for target %s: %v", ev.Action, ev.TargetUID, err)
		return err
	}
	return nil
}
