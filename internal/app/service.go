/**
 * @description
 * This file contains the core business logic for the buyer-service. The
 * Service layer sits between the HTTP handlers and the repository: it
 * loads (or seeds) the buyer record, invokes the pure rule functions in
 * the domain package, persists the result, writes the audit trail, and
 * publishes lifecycle events for downstream services.
 *
 * @notes
 * - Audit writes are synchronous: a mutation that cannot be audited fails
 *   the request. Event publication is best-effort and only logged.
 * - All time-dependent logic goes through s.now so tests can pin the clock.
 */
package app

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/sokoyetu/buyer-service/internal/domain"
	"github.com/sokoyetu/buyer-service/internal/store"
)

// BuyerEventsExchange is the topic exchange buyer lifecycle events are
// published to.
const BuyerEventsExchange = "buyer.events"

// Repository defines the interface for database operations that the
// service needs.
type Repository interface {
	GetBuyer(ctx context.Context, uid string) (*domain.BuyerRecord, error)
	UpsertBuyer(ctx context.Context, rec *domain.BuyerRecord) (*domain.BuyerRecord, error)
	ListBuyersByApprovalStatus(ctx context.Context, status domain.ApprovalStatus, limit, offset int) ([]domain.BuyerRecord, error)
	AppendAuditEvent(ctx context.Context, ev *domain.AuditEvent) error
}

// Publisher is the interface implemented by types that can publish events.
type Publisher interface {
	Publish(ctx context.Context, exchange, routingKey string, body interface{}) error
}

// RateLimiter limits purchase commits per buyer. A nil limiter disables
// rate limiting.
type RateLimiter interface {
	ConsumeRateLimit(ctx context.Context, scope, subject string, limit int, window time.Duration) (count int, retryAfterSeconds int, err error)
}

// Limits carries the tunable rate-limit knobs from configuration.
type Limits struct {
	PurchaseRateLimit  int
	PurchaseRateWindow time.Duration
}

// Service provides the business logic for the buyer lifecycle.
type Service struct {
	repo      Repository
	publisher Publisher
	limiter   RateLimiter
	logger    *slog.Logger
	limits    Limits
	now       func() time.Time
}

// NewService creates a new buyer service.
func NewService(repo Repository, publisher Publisher, limiter RateLimiter, logger *slog.Logger, limits Limits) *Service {
	return &Service{
		repo:      repo,
		publisher: publisher,
		limiter:   limiter,
		logger:    logger,
		limits:    limits,
		now:       time.Now,
	}
}

// PurchaseResult is the response payload for a committed purchase.
type PurchaseResult struct {
	Metrics   domain.BuyerMetrics `json:"metrics"`
	BuyerTier domain.BuyerTier    `json:"buyerTier"`
}

// UpgradeRequestResult is the response payload for a premium upgrade
// request.
type UpgradeRequestResult struct {
	RequestedPlan domain.PremiumPlan `json:"requestedPlan"`
	Status        string             `json:"status"`
}

// GetMe loads (or seeds) the caller's buyer record and returns the
// serialized read view.
func (s *Service) GetMe(ctx context.Context, caller domain.Caller) (domain.BuyerView, error) {
	rec, err := s.ensureBuyer(ctx, caller)
	if err != nil {
		return domain.BuyerView{}, err
	}
	return domain.SerializeBuyerMe(*rec, s.now()), nil
}

// CreateProfile merges the provided profile fields into the caller's
// record, seeding it first if necessary.
func (s *Service) CreateProfile(ctx context.Context, caller domain.Caller, profile domain.BuyerProfile) (domain.BuyerView, error) {
	rec, err := s.ensureBuyer(ctx, caller)
	if err != nil {
		return domain.BuyerView{}, err
	}

	next := *rec
	next.BuyerProfile = mergeProfile(next.BuyerProfile, profile)
	next.UpdatedAt = s.now().UTC()

	stored, err := s.repo.UpsertBuyer(ctx, &next)
	if err != nil {
		return domain.BuyerView{}, err
	}
	if err := s.audit(ctx, domain.AuditProfileCreated, caller, caller.UID, nil); err != nil {
		return domain.BuyerView{}, err
	}
	return domain.SerializeBuyerMe(*stored, s.now()), nil
}

// RequestPremiumUpgrade records a pending upgrade request on the record.
// It never changes the premium plan itself; an admin does that via
// SetPremium.
func (s *Service) RequestPremiumUpgrade(ctx context.Context, caller domain.Caller, requestedPlan string) (UpgradeRequestResult, error) {
	rec, err := s.ensureBuyer(ctx, caller)
	if err != nil {
		return UpgradeRequestResult{}, err
	}
	if rec.ApprovalStatus != domain.ApprovalApproved {
		return UpgradeRequestResult{}, domain.ApprovalRequiredError()
	}

	plan := domain.NormalizePlan(requestedPlan)
	if plan == domain.PlanNone {
		return UpgradeRequestResult{}, domain.ValidationError("requestedPlan must be GOLD_ADDON or ENTERPRISE", map[string]any{
			"requestedPlan": requestedPlan,
		})
	}

	now := s.now().UTC()
	next := *rec
	next.PremiumUpgradeRequest = &domain.UpgradeRequest{
		RequestedPlan: plan,
		Status:        domain.UpgradeRequestPending,
		RequestedAt:   now,
	}
	next.UpdatedAt = now

	if _, err := s.repo.UpsertBuyer(ctx, &next); err != nil {
		return UpgradeRequestResult{}, err
	}
	if err := s.audit(ctx, domain.AuditPremiumUpgradeRequest, caller, caller.UID, map[string]any{"requestedPlan": plan}); err != nil {
		return UpgradeRequestResult{}, err
	}
	return UpgradeRequestResult{RequestedPlan: plan, Status: domain.UpgradeRequestPending}, nil
}

// CommitPurchase folds a completed purchase into the caller's metrics and
// re-evaluates the tier. Requires an approved buyer.
func (s *Service) CommitPurchase(ctx context.Context, caller domain.Caller, req domain.PurchaseRequest) (PurchaseResult, error) {
	rec, err := s.ensureBuyer(ctx, caller)
	if err != nil {
		return PurchaseResult{}, err
	}
	if rec.ApprovalStatus != domain.ApprovalApproved {
		return PurchaseResult{}, domain.ApprovalRequiredError()
	}

	if s.limiter != nil && s.limits.PurchaseRateLimit > 0 {
		count, retryAfter, err := s.limiter.ConsumeRateLimit(ctx, "purchase_commit", caller.UID, s.limits.PurchaseRateLimit, s.limits.PurchaseRateWindow)
		if err != nil {
			// Rate limiting fails open: a Redis outage must not block purchases.
			s.logger.Warn("purchase rate limit check failed", "uid", caller.UID, "error", err)
		} else if count > s.limits.PurchaseRateLimit {
			return PurchaseResult{}, domain.RateLimitedError(retryAfter)
		}
	}

	next, err := domain.ApplyPurchase(*rec, req, s.now())
	if err != nil {
		return PurchaseResult{}, err
	}

	stored, err := s.repo.UpsertBuyer(ctx, &next)
	if err != nil {
		return PurchaseResult{}, err
	}
	if err := s.audit(ctx, domain.AuditPurchaseCompleted, caller, caller.UID, map[string]any{
		"amountKes":  req.AmountKes,
		"hasDispute": req.HasDispute,
		"orderId":    req.OrderID,
	}); err != nil {
		return PurchaseResult{}, err
	}
	s.publish(ctx, domain.EventBuyerPurchaseCompleted, stored, map[string]any{"orderId": req.OrderID})
	return PurchaseResult{Metrics: stored.Metrics, BuyerTier: stored.BuyerTier}, nil
}

// ListBuyers returns buyer views filtered by approval status for the admin
// console. An empty status defaults to PENDING.
func (s *Service) ListBuyers(ctx context.Context, statusRaw string, limit, offset int) ([]domain.BuyerView, error) {
	status := domain.ApprovalPending
	if trimmed := strings.TrimSpace(statusRaw); trimmed != "" {
		switch domain.ApprovalStatus(strings.ToUpper(trimmed)) {
		case domain.ApprovalPending, domain.ApprovalApproved, domain.ApprovalRejected:
			status = domain.ApprovalStatus(strings.ToUpper(trimmed))
		default:
			return nil, domain.ValidationError("status must be PENDING, APPROVED or REJECTED", map[string]any{"status": statusRaw})
		}
	}

	if limit <= 0 {
		limit = 50
	}
	if limit > 200 {
		limit = 200
	}
	if offset < 0 {
		offset = 0
	}

	records, err := s.repo.ListBuyersByApprovalStatus(ctx, status, limit, offset)
	if err != nil {
		return nil, err
	}
	now := s.now()
	views := make([]domain.BuyerView, 0, len(records))
	for _, rec := range records {
		views = append(views, domain.SerializeBuyerMe(rec, now))
	}
	return views, nil
}

// Approve marks the target buyer as approved. Idempotent; re-approval
// after rejection is allowed.
func (s *Service) Approve(ctx context.Context, admin domain.Caller, targetUID string) (domain.BuyerView, error) {
	rec, err := s.getTarget(ctx, targetUID)
	if err != nil {
		return domain.BuyerView{}, err
	}

	next := domain.Approve(*rec, admin.UID, s.now())
	stored, err := s.repo.UpsertBuyer(ctx, &next)
	if err != nil {
		return domain.BuyerView{}, err
	}
	if err := s.audit(ctx, domain.AuditBuyerApproved, admin, targetUID, nil); err != nil {
		return domain.BuyerView{}, err
	}
	s.publish(ctx, domain.EventBuyerApproved, stored, nil)
	return domain.SerializeBuyerMe(*stored, s.now()), nil
}

// Reject marks the target buyer as rejected with the given reason.
func (s *Service) Reject(ctx context.Context, admin domain.Caller, targetUID, reason string) (domain.BuyerView, error) {
	rec, err := s.getTarget(ctx, targetUID)
	if err != nil {
		return domain.BuyerView{}, err
	}

	next, err := domain.Reject(*rec, reason, s.now())
	if err != nil {
		return domain.BuyerView{}, err
	}
	stored, err := s.repo.UpsertBuyer(ctx, &next)
	if err != nil {
		return domain.BuyerView{}, err
	}
	if err := s.audit(ctx, domain.AuditBuyerRejected, admin, targetUID, map[string]any{"rejectionReason": reason}); err != nil {
		return domain.BuyerView{}, err
	}
	s.publish(ctx, domain.EventBuyerRejected, stored, nil)
	return domain.SerializeBuyerMe(*stored, s.now()), nil
}

// SetTier applies an admin tier override, bypassing tier evaluation.
func (s *Service) SetTier(ctx context.Context, admin domain.Caller, targetUID string, req domain.AdminTierRequest) (domain.BuyerView, error) {
	rec, err := s.getTarget(ctx, targetUID)
	if err != nil {
		return domain.BuyerView{}, err
	}

	next := domain.ApplyAdminTier(*rec, req, s.now())
	stored, err := s.repo.UpsertBuyer(ctx, &next)
	if err != nil {
		return domain.BuyerView{}, err
	}
	if err := s.audit(ctx, domain.AuditTierSet, admin, targetUID, map[string]any{"tier": stored.BuyerTier}); err != nil {
		return domain.BuyerView{}, err
	}
	return domain.SerializeBuyerMe(*stored, s.now()), nil
}

// SetPremium applies an admin premium plan/status override and recomputes
// billing.
func (s *Service) SetPremium(ctx context.Context, admin domain.Caller, targetUID string, req domain.AdminPremiumRequest) (domain.BuyerView, error) {
	rec, err := s.getTarget(ctx, targetUID)
	if err != nil {
		return domain.BuyerView{}, err
	}

	next := domain.ApplyAdminPremium(*rec, req, s.now())
	stored, err := s.repo.UpsertBuyer(ctx, &next)
	if err != nil {
		return domain.BuyerView{}, err
	}
	if err := s.audit(ctx, domain.AuditPremiumSet, admin, targetUID, map[string]any{
		"plan":   stored.PremiumPlan,
		"status": stored.PremiumStatus,
	}); err != nil {
		return domain.BuyerView{}, err
	}
	s.publish(ctx, domain.EventBuyerPremiumChanged, stored, nil)
	return domain.SerializeBuyerMe(*stored, s.now()), nil
}

// ensureBuyer implements the load-or-seed path: a missing record is seeded
// with defaults, an adoptable record is explicitly upgraded (logged and
// audited), and a well-formed buyer record passes through untouched.
func (s *Service) ensureBuyer(ctx context.Context, caller domain.Caller) (*domain.BuyerRecord, error) {
	rec, err := s.repo.GetBuyer(ctx, caller.UID)
	if err != nil {
		if !errors.Is(err, store.ErrBuyerNotFound) {
			return nil, err
		}
		seeded := domain.NewBuyerRecord(caller.UID, s.now())
		stored, err := s.repo.UpsertBuyer(ctx, &seeded)
		if err != nil {
			return nil, err
		}
		if err := s.audit(ctx, domain.AuditBuyerSeeded, caller, caller.UID, nil); err != nil {
			return nil, err
		}
		return stored, nil
	}

	switch domain.ClassifyAccount(*rec) {
	case domain.AccountKindBuyer:
		return rec, nil
	case domain.AccountKindAdoptable:
		s.logger.Info("adopting buyer-shaped account", "uid", caller.UID, "storedType", rec.Type)
		adopted := domain.AdoptAsBuyer(*rec, s.now())
		stored, err := s.repo.UpsertBuyer(ctx, &adopted)
		if err != nil {
			return nil, err
		}
		if err := s.audit(ctx, domain.AuditBuyerAdopted, caller, caller.UID, map[string]any{"previousType": rec.Type}); err != nil {
			return nil, err
		}
		s.publish(ctx, domain.EventBuyerAdopted, stored, nil)
		return stored, nil
	default:
		forbidden := domain.ForbiddenError()
		forbidden.Message = "account is not a buyer account"
		forbidden.Details = map[string]any{"type": rec.Type}
		return nil, forbidden
	}
}

func (s *Service) getTarget(ctx context.Context, targetUID string) (*domain.BuyerRecord, error) {
	if strings.TrimSpace(targetUID) == "" {
		return nil, domain.ValidationError("uid is required", nil)
	}
	rec, err := s.repo.GetBuyer(ctx, targetUID)
	if err != nil {
		if errors.Is(err, store.ErrBuyerNotFound) {
			return nil, domain.NotFoundError("buyer not found")
		}
		return nil, err
	}
	return rec, nil
}

func (s *Service) audit(ctx context.Context, action string, actor domain.Caller, targetUID string, details map[string]any) error {
	ev := &domain.AuditEvent{
		ID:         uuid.NewString(),
		Action:     action,
		ActorUID:   actor.UID,
		ActorEmail: actor.Email,
		TargetUID:  targetUID,
		Details:    details,
		CreatedAt:  s.now().UTC(),
	}
	if err := s.repo.AppendAuditEvent(ctx, ev); err != nil {
		s.logger.Error("audit write failed", "action", action, "targetUid", targetUID, "error", err)
		return err
	}
	return nil
}

// publish sends a lifecycle event to the buyer.events exchange. Failures
// are logged and dropped; the audit table is the durable trail.
func (s *Service) publish(ctx context.Context, routingKey string, rec *domain.BuyerRecord, details map[string]any) {
	if s.publisher == nil {
		return
	}
	event := domain.BuyerEvent{
		EventType:      routingKey,
		UID:            rec.UID,
		ApprovalStatus: rec.ApprovalStatus,
		BuyerTier:      rec.BuyerTier,
		PremiumPlan:    rec.PremiumPlan,
		PremiumStatus:  rec.PremiumStatus,
		OccurredAt:     s.now().UTC(),
		Details:        details,
	}
	if err := s.publisher.Publish(ctx, BuyerEventsExchange, routingKey, event); err != nil {
		s.logger.Warn("event publish failed", "routingKey", routingKey, "uid", rec.UID, "error", err)
	}
}

// mergeProfile overlays the provided profile fields onto the existing
// profile. Only fields present in the request replace stored values.
func mergeProfile(existing *domain.BuyerProfile, incoming domain.BuyerProfile) *domain.BuyerProfile {
	merged := domain.BuyerProfile{}
	if existing != nil {
		merged = *existing
	}
	if incoming.DisplayName != "" {
		merged.DisplayName = incoming.DisplayName
	}
	if incoming.Company != nil {
		merged.Company = incoming.Company
	}
	if incoming.Preferences != nil {
		merged.Preferences = incoming.Preferences
	}
	if len(incoming.Extra) > 0 {
		if merged.Extra == nil {
			merged.Extra = map[string]any{}
		}
		for k, v := range incoming.Extra {
			merged.Extra[k] = v
		}
	}
	return &merged
}
