package app

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/sokoyetu/buyer-service/internal/domain"
	"github.com/sokoyetu/buyer-service/internal/store"
)

var testNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

type stubRepo struct {
	records map[string]domain.BuyerRecord
	audits  []domain.AuditEvent
	upserts int

	listStatus domain.ApprovalStatus
	listLimit  int
	listOffset int
	listResult []domain.BuyerRecord

	getErr    error
	upsertErr error
	auditErr  error
}

func newStubRepo() *stubRepo {
	return &stubRepo{records: make(map[string]domain.BuyerRecord)}
}

func (r *stubRepo) GetBuyer(ctx context.Context, uid string) (*domain.BuyerRecord, error) {
	if r.getErr != nil {
		return nil, r.getErr
	}
	rec, ok := r.records[uid]
	if !ok {
		return nil, store.ErrBuyerNotFound
	}
	copied := rec
	return &copied, nil
}

func (r *stubRepo) UpsertBuyer(ctx context.Context, rec *domain.BuyerRecord) (*domain.BuyerRecord, error) {
	if r.upsertErr != nil {
		return nil, r.upsertErr
	}
	r.upserts++
	r.records[rec.UID] = *rec
	copied := *rec
	return &copied, nil
}

func (r *stubRepo) ListBuyersByApprovalStatus(ctx context.Context, status domain.ApprovalStatus, limit, offset int) ([]domain.BuyerRecord, error) {
	r.listStatus = status
	r.listLimit = limit
	r.listOffset = offset
	return r.listResult, nil
}

func (r *stubRepo) AppendAuditEvent(ctx context.Context, ev *domain.AuditEvent) error {
	if r.auditErr != nil {
		return r.auditErr
	}
	r.audits = append(r.audits, *ev)
	return nil
}

func (r *stubRepo) lastAudit() *domain.AuditEvent {
	if len(r.audits) == 0 {
		return nil
	}
	return &r.audits[len(r.audits)-1]
}

type stubPublisher struct {
	routingKeys []string
}

func (p *stubPublisher) Publish(ctx context.Context, exchange, routingKey string, body interface{}) error {
	p.routingKeys = append(p.routingKeys, routingKey)
	return nil
}

type stubLimiter struct {
	count      int
	retryAfter int
	err        error
}

func (l *stubLimiter) ConsumeRateLimit(ctx context.Context, scope, subject string, limit int, window time.Duration) (int, int, error) {
	return l.count, l.retryAfter, l.err
}

func newTestService(repo *stubRepo, pub *stubPublisher, limiter RateLimiter, limits Limits) *Service {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s := NewService(repo, pub, limiter, logger, limits)
	s.now = func() time.Time { return testNow }
	return s
}

func seedApprovedBuyer(repo *stubRepo, uid string) domain.BuyerRecord {
	rec := domain.NewBuyerRecord(uid, testNow.Add(-48*time.Hour))
	rec = domain.Approve(rec, "admin-1", testNow.Add(-24*time.Hour))
	repo.records[uid] = rec
	return rec
}

func errCode(t *testing.T, err error) string {
	t.Helper()
	var apiErr *domain.Error
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *domain.Error, got %v", err)
	}
	return apiErr.Code
}

func TestGetMeSeedsNewBuyer(t *testing.T) {
	repo := newStubRepo()
	s := newTestService(repo, &stubPublisher{}, nil, Limits{})

	view, err := s.GetMe(context.Background(), domain.Caller{UID: "buyer-1"})
	if err != nil {
		t.Fatalf("GetMe returned error: %v", err)
	}
	if view.ApprovalStatus != domain.ApprovalPending || view.BuyerTier != domain.TierBronze {
		t.Fatalf("expected PENDING/BRONZE defaults, got %s/%s", view.ApprovalStatus, view.BuyerTier)
	}
	if view.PremiumStatus != domain.PremiumTrial {
		t.Fatalf("expected fresh trial, got %s", view.PremiumStatus)
	}
	if view.TrialDaysLeft != domain.TrialDays {
		t.Fatalf("expected %d trial days left, got %d", domain.TrialDays, view.TrialDaysLeft)
	}
	if _, ok := repo.records["buyer-1"]; !ok {
		t.Fatal("expected record persisted")
	}
	if audit := repo.lastAudit(); audit == nil || audit.Action != domain.AuditBuyerSeeded {
		t.Fatalf("expected %s audit event, got %+v", domain.AuditBuyerSeeded, audit)
	}
}

func TestGetMePreservesExistingBuyer(t *testing.T) {
	repo := newStubRepo()
	rec := seedApprovedBuyer(repo, "buyer-1")
	rec.Metrics = domain.BuyerMetrics{SuccessfulPurchasesCount: 7, TotalSpendKes: 12000, DisputesCount: 1}
	rec.BuyerTier = domain.EvaluateTier(rec.Metrics)
	repo.records["buyer-1"] = rec
	s := newTestService(repo, &stubPublisher{}, nil, Limits{})

	view, err := s.GetMe(context.Background(), domain.Caller{UID: "buyer-1"})
	if err != nil {
		t.Fatalf("GetMe returned error: %v", err)
	}
	if repo.upserts != 0 {
		t.Fatalf("expected no writes on read of a well-formed buyer, got %d", repo.upserts)
	}
	if view.ApprovalStatus != domain.ApprovalApproved || view.BuyerTier != domain.TierSilver {
		t.Fatalf("expected stored approval and tier preserved, got %s/%s", view.ApprovalStatus, view.BuyerTier)
	}
	if view.Metrics != rec.Metrics {
		t.Fatalf("expected stored metrics preserved, got %+v", view.Metrics)
	}
}

func TestGetMeAdoptsBuyerShapedAccount(t *testing.T) {
	repo := newStubRepo()
	repo.records["buyer-1"] = domain.BuyerRecord{
		UID:     "buyer-1",
		Type:    "farmer",
		Metrics: domain.BuyerMetrics{SuccessfulPurchasesCount: 6, TotalSpendKes: 800},
	}
	pub := &stubPublisher{}
	s := newTestService(repo, pub, nil, Limits{})

	view, err := s.GetMe(context.Background(), domain.Caller{UID: "buyer-1"})
	if err != nil {
		t.Fatalf("GetMe returned error: %v", err)
	}
	if view.Type != domain.AccountTypeBuyer {
		t.Fatalf("expected adopted record typed buyer, got %q", view.Type)
	}
	if view.BuyerTier != domain.TierSilver {
		t.Fatalf("expected tier evaluated during adoption, got %s", view.BuyerTier)
	}
	audit := repo.lastAudit()
	if audit == nil || audit.Action != domain.AuditBuyerAdopted {
		t.Fatalf("expected %s audit event, got %+v", domain.AuditBuyerAdopted, audit)
	}
	if audit.Details["previousType"] != "farmer" {
		t.Fatalf("expected adoption audit to record the previous type, got %+v", audit.Details)
	}
	if len(pub.routingKeys) != 1 || pub.routingKeys[0] != domain.EventBuyerAdopted {
		t.Fatalf("expected %s event published, got %v", domain.EventBuyerAdopted, pub.routingKeys)
	}
}

func TestGetMeRejectsForeignAccount(t *testing.T) {
	repo := newStubRepo()
	repo.records["coop-1"] = domain.BuyerRecord{UID: "coop-1", Type: "cooperative"}
	s := newTestService(repo, &stubPublisher{}, nil, Limits{})

	_, err := s.GetMe(context.Background(), domain.Caller{UID: "coop-1"})
	if errCode(t, err) != domain.CodeForbidden {
		t.Fatalf("expected FORBIDDEN for non-buyer account, got %v", err)
	}
	if repo.upserts != 0 {
		t.Fatal("expected no writes for a non-buyer account")
	}
}

func TestCommitPurchaseRequiresApproval(t *testing.T) {
	repo := newStubRepo()
	repo.records["buyer-1"] = domain.NewBuyerRecord("buyer-1", testNow)
	s := newTestService(repo, &stubPublisher{}, nil, Limits{})

	_, err := s.CommitPurchase(context.Background(), domain.Caller{UID: "buyer-1"}, domain.PurchaseRequest{AmountKes: 1500})
	if errCode(t, err) != domain.CodeApprovalRequired {
		t.Fatalf("expected APPROVAL_REQUIRED, got %v", err)
	}
	if repo.upserts != 0 {
		t.Fatal("expected metrics untouched for an unapproved buyer")
	}
	if stored := repo.records["buyer-1"]; stored.Metrics != (domain.BuyerMetrics{}) {
		t.Fatalf("metrics mutated: %+v", stored.Metrics)
	}
}

func TestCommitPurchaseFlow(t *testing.T) {
	repo := newStubRepo()
	seedApprovedBuyer(repo, "buyer-1")
	pub := &stubPublisher{}
	s := newTestService(repo, pub, nil, Limits{})

	result, err := s.CommitPurchase(context.Background(), domain.Caller{UID: "buyer-1", Email: "b@soko.co.ke"}, domain.PurchaseRequest{AmountKes: 1500, OrderID: "ord-9"})
	if err != nil {
		t.Fatalf("CommitPurchase returned error: %v", err)
	}
	if result.Metrics.SuccessfulPurchasesCount != 1 || result.Metrics.TotalSpendKes != 1500.00 {
		t.Fatalf("unexpected metrics: %+v", result.Metrics)
	}
	if result.BuyerTier != domain.TierBronze {
		t.Fatalf("expected BRONZE after one purchase, got %s", result.BuyerTier)
	}
	audit := repo.lastAudit()
	if audit == nil || audit.Action != domain.AuditPurchaseCompleted {
		t.Fatalf("expected %s audit event, got %+v", domain.AuditPurchaseCompleted, audit)
	}
	if audit.Details["orderId"] != "ord-9" {
		t.Fatalf("expected orderId in audit details, got %+v", audit.Details)
	}
	if len(pub.routingKeys) != 1 || pub.routingKeys[0] != domain.EventBuyerPurchaseCompleted {
		t.Fatalf("expected %s event published, got %v", domain.EventBuyerPurchaseCompleted, pub.routingKeys)
	}
}

func TestCommitPurchaseInvalidAmount(t *testing.T) {
	repo := newStubRepo()
	rec := seedApprovedBuyer(repo, "buyer-1")
	s := newTestService(repo, &stubPublisher{}, nil, Limits{})

	_, err := s.CommitPurchase(context.Background(), domain.Caller{UID: "buyer-1"}, domain.PurchaseRequest{AmountKes: -5})
	if errCode(t, err) != domain.CodeValidationError {
		t.Fatalf("expected VALIDATION_ERROR, got %v", err)
	}
	if stored := repo.records["buyer-1"]; stored.Metrics != rec.Metrics {
		t.Fatalf("metrics mutated on invalid amount: %+v", stored.Metrics)
	}
}

func TestCommitPurchaseRateLimited(t *testing.T) {
	repo := newStubRepo()
	seedApprovedBuyer(repo, "buyer-1")
	limiter := &stubLimiter{count: 31, retryAfter: 42}
	s := newTestService(repo, &stubPublisher{}, limiter, Limits{PurchaseRateLimit: 30, PurchaseRateWindow: time.Minute})

	_, err := s.CommitPurchase(context.Background(), domain.Caller{UID: "buyer-1"}, domain.PurchaseRequest{AmountKes: 100})
	var apiErr *domain.Error
	if !errors.As(err, &apiErr) || apiErr.Code != domain.CodeRateLimited {
		t.Fatalf("expected RATE_LIMITED, got %v", err)
	}
	if apiErr.Details["retryAfterSeconds"] != 42 {
		t.Fatalf("expected retryAfterSeconds detail, got %+v", apiErr.Details)
	}
	if repo.upserts != 0 {
		t.Fatal("expected no write when rate limited")
	}
}

func TestCommitPurchaseRateLimiterFailsOpen(t *testing.T) {
	repo := newStubRepo()
	seedApprovedBuyer(repo, "buyer-1")
	limiter := &stubLimiter{err: errors.New("redis unavailable")}
	s := newTestService(repo, &stubPublisher{}, limiter, Limits{PurchaseRateLimit: 30, PurchaseRateWindow: time.Minute})

	if _, err := s.CommitPurchase(context.Background(), domain.Caller{UID: "buyer-1"}, domain.PurchaseRequest{AmountKes: 100}); err != nil {
		t.Fatalf("expected purchase to succeed when the limiter is down, got %v", err)
	}
}

func TestRequestPremiumUpgrade(t *testing.T) {
	repo := newStubRepo()
	seedApprovedBuyer(repo, "buyer-1")
	s := newTestService(repo, &stubPublisher{}, nil, Limits{})

	result, err := s.RequestPremiumUpgrade(context.Background(), domain.Caller{UID: "buyer-1"}, "ENTERPRISE")
	if err != nil {
		t.Fatalf("RequestPremiumUpgrade returned error: %v", err)
	}
	if result.RequestedPlan != domain.PlanEnterprise || result.Status != domain.UpgradeRequestPending {
		t.Fatalf("unexpected result: %+v", result)
	}

	stored := repo.records["buyer-1"]
	if stored.PremiumUpgradeRequest == nil || stored.PremiumUpgradeRequest.RequestedPlan != domain.PlanEnterprise {
		t.Fatalf("expected upgrade request recorded, got %+v", stored.PremiumUpgradeRequest)
	}
	// Requesting an upgrade must not change the plan itself.
	if stored.PremiumPlan != domain.PlanNone {
		t.Fatalf("premium plan mutated to %s", stored.PremiumPlan)
	}
}

func TestRequestPremiumUpgradeGates(t *testing.T) {
	repo := newStubRepo()
	repo.records["pending-1"] = domain.NewBuyerRecord("pending-1", testNow)
	seedApprovedBuyer(repo, "buyer-1")
	s := newTestService(repo, &stubPublisher{}, nil, Limits{})

	_, err := s.RequestPremiumUpgrade(context.Background(), domain.Caller{UID: "pending-1"}, "ENTERPRISE")
	if errCode(t, err) != domain.CodeApprovalRequired {
		t.Fatalf("expected APPROVAL_REQUIRED for pending buyer, got %v", err)
	}

	_, err = s.RequestPremiumUpgrade(context.Background(), domain.Caller{UID: "buyer-1"}, "SHINY_PLAN")
	if errCode(t, err) != domain.CodeValidationError {
		t.Fatalf("expected VALIDATION_ERROR for unknown plan, got %v", err)
	}
}

func TestApproveThenPurchaseEndToEnd(t *testing.T) {
	repo := newStubRepo()
	pub := &stubPublisher{}
	s := newTestService(repo, pub, nil, Limits{})
	buyer := domain.Caller{UID: "buyer-1"}
	admin := domain.Caller{UID: "admin-1", Email: "ops@soko.co.ke"}

	// New buyer starts with defaults.
	view, err := s.GetMe(context.Background(), buyer)
	if err != nil {
		t.Fatalf("GetMe returned error: %v", err)
	}
	if view.ApprovalStatus != domain.ApprovalPending || view.PremiumEntitlements.CanCommitActions {
		t.Fatal("expected pending buyer without commit entitlement")
	}

	// Admin approves.
	if _, err := s.Approve(context.Background(), admin, "buyer-1"); err != nil {
		t.Fatalf("Approve returned error: %v", err)
	}

	view, err = s.GetMe(context.Background(), buyer)
	if err != nil {
		t.Fatalf("GetMe returned error: %v", err)
	}
	if view.ApprovalStatus != domain.ApprovalApproved || !view.PremiumEntitlements.CanCommitActions {
		t.Fatal("expected approved buyer with commit entitlement")
	}

	// Buyer commits a purchase.
	result, err := s.CommitPurchase(context.Background(), buyer, domain.PurchaseRequest{AmountKes: 1500})
	if err != nil {
		t.Fatalf("CommitPurchase returned error: %v", err)
	}
	if result.Metrics.SuccessfulPurchasesCount != 1 || result.Metrics.TotalSpendKes != 1500.00 || result.BuyerTier != domain.TierBronze {
		t.Fatalf("unexpected end-to-end result: %+v", result)
	}
}

func TestRejectFlow(t *testing.T) {
	repo := newStubRepo()
	seedApprovedBuyer(repo, "buyer-1")
	s := newTestService(repo, &stubPublisher{}, nil, Limits{})
	admin := domain.Caller{UID: "admin-1"}

	_, err := s.Reject(context.Background(), admin, "buyer-1", "")
	if errCode(t, err) != domain.CodeValidationError {
		t.Fatalf("expected VALIDATION_ERROR without reason, got %v", err)
	}

	view, err := s.Reject(context.Background(), admin, "buyer-1", "documents did not verify")
	if err != nil {
		t.Fatalf("Reject returned error: %v", err)
	}
	if view.ApprovalStatus != domain.ApprovalRejected || view.VerifiedBuyer {
		t.Fatal("expected rejected unverified buyer")
	}
	audit := repo.lastAudit()
	if audit == nil || audit.Action != domain.AuditBuyerRejected {
		t.Fatalf("expected %s audit event, got %+v", domain.AuditBuyerRejected, audit)
	}
}

func TestAdminActionsOnMissingBuyer(t *testing.T) {
	repo := newStubRepo()
	s := newTestService(repo, &stubPublisher{}, nil, Limits{})
	admin := domain.Caller{UID: "admin-1"}

	if _, err := s.Approve(context.Background(), admin, "ghost"); errCode(t, err) != domain.CodeNotFound {
		t.Fatalf("expected NOT_FOUND, got %v", err)
	}
	if _, err := s.SetTier(context.Background(), admin, "", domain.AdminTierRequest{Tier: "GOLD"}); errCode(t, err) != domain.CodeValidationError {
		t.Fatalf("expected VALIDATION_ERROR for empty uid, got %v", err)
	}
}

func TestSetPremiumRecomputesBilling(t *testing.T) {
	repo := newStubRepo()
	seedApprovedBuyer(repo, "buyer-1")
	pub := &stubPublisher{}
	s := newTestService(repo, pub, nil, Limits{})

	view, err := s.SetPremium(context.Background(), domain.Caller{UID: "admin-1"}, "buyer-1", domain.AdminPremiumRequest{Plan: "GOLD_ADDON", Status: "ACTIVE"})
	if err != nil {
		t.Fatalf("SetPremium returned error: %v", err)
	}
	if view.PremiumPlan != domain.PlanGoldAddon || view.PremiumStatus != domain.PremiumActive {
		t.Fatalf("unexpected premium state: %s/%s", view.PremiumPlan, view.PremiumStatus)
	}
	if view.Billing.MonthlyPriceKes != 6000 {
		t.Fatalf("expected plan-table price 6000, got %v", view.Billing.MonthlyPriceKes)
	}
	if len(pub.routingKeys) != 1 || pub.routingKeys[0] != domain.EventBuyerPremiumChanged {
		t.Fatalf("expected %s event, got %v", domain.EventBuyerPremiumChanged, pub.routingKeys)
	}
}

func TestListBuyersValidation(t *testing.T) {
	repo := newStubRepo()
	repo.listResult = []domain.BuyerRecord{domain.NewBuyerRecord("b1", testNow)}
	s := newTestService(repo, &stubPublisher{}, nil, Limits{})

	views, err := s.ListBuyers(context.Background(), "", 0, -3)
	if err != nil {
		t.Fatalf("ListBuyers returned error: %v", err)
	}
	if len(views) != 1 {
		t.Fatalf("expected 1 view, got %d", len(views))
	}
	if repo.listStatus != domain.ApprovalPending {
		t.Fatalf("expected default status PENDING, got %s", repo.listStatus)
	}
	if repo.listLimit != 50 || repo.listOffset != 0 {
		t.Fatalf("expected clamped limit/offset 50/0, got %d/%d", repo.listLimit, repo.listOffset)
	}

	if _, err := s.ListBuyers(context.Background(), "approved", 500, 10); err != nil {
		t.Fatalf("ListBuyers returned error: %v", err)
	}
	if repo.listStatus != domain.ApprovalApproved || repo.listLimit != 200 {
		t.Fatalf("expected APPROVED with limit capped at 200, got %s/%d", repo.listStatus, repo.listLimit)
	}

	if _, err := s.ListBuyers(context.Background(), "weird", 0, 0); errCode(t, err) != domain.CodeValidationError {
		t.Fatalf("expected VALIDATION_ERROR for unknown status, got %v", err)
	}
}

func TestTrialExpiryIsReadTimeOnly(t *testing.T) {
	repo := newStubRepo()
	rec := seedApprovedBuyer(repo, "buyer-1")
	rec.TrialEndAt = testNow.Add(-48 * time.Hour).Format(time.RFC3339)
	repo.records["buyer-1"] = rec
	s := newTestService(repo, &stubPublisher{}, nil, Limits{})

	view, err := s.GetMe(context.Background(), domain.Caller{UID: "buyer-1"})
	if err != nil {
		t.Fatalf("GetMe returned error: %v", err)
	}
	if view.PremiumStatus != domain.PremiumExpired {
		t.Fatalf("expected effective EXPIRED in response, got %s", view.PremiumStatus)
	}
	// The stored record must still read TRIAL; the correction never persists.
	if stored := repo.records["buyer-1"]; stored.PremiumStatus != domain.PremiumTrial {
		t.Fatalf("stored premium status mutated to %s", stored.PremiumStatus)
	}
}

func TestAuditFailureFailsMutation(t *testing.T) {
	repo := newStubRepo()
	seedApprovedBuyer(repo, "buyer-1")
	repo.auditErr = errors.New("audit table unavailable")
	s := newTestService(repo, &stubPublisher{}, nil, Limits{})

	if _, err := s.Approve(context.Background(), domain.Caller{UID: "admin-1"}, "buyer-1"); err == nil {
		t.Fatal("expected approve to fail when the audit write fails")
	}
}
