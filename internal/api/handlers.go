/**
 * @description
 * This file contains the HTTP handler functions for the buyer-service.
 * Handlers parse incoming requests, call the business logic in the service
 * layer, and write the response envelope. All authorization beyond the
 * superadmin gate (approval checks, validation) lives in the service.
 */
package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/sokoyetu/buyer-service/internal/app"
	"github.com/sokoyetu/buyer-service/internal/domain"
)

// Service defines the business operations the handlers dispatch to.
type Service interface {
	GetMe(ctx context.Context, caller domain.Caller) (domain.BuyerView, error)
	CreateProfile(ctx context.Context, caller domain.Caller, profile domain.BuyerProfile) (domain.BuyerView, error)
	RequestPremiumUpgrade(ctx context.Context, caller domain.Caller, requestedPlan string) (app.UpgradeRequestResult, error)
	CommitPurchase(ctx context.Context, caller domain.Caller, req domain.PurchaseRequest) (app.PurchaseResult, error)
	ListBuyers(ctx context.Context, status string, limit, offset int) ([]domain.BuyerView, error)
	Approve(ctx context.Context, admin domain.Caller, targetUID string) (domain.BuyerView, error)
	Reject(ctx context.Context, admin domain.Caller, targetUID, reason string) (domain.BuyerView, error)
	SetTier(ctx context.Context, admin domain.Caller, targetUID string, req domain.AdminTierRequest) (domain.BuyerView, error)
	SetPremium(ctx context.Context, admin domain.Caller, targetUID string, req domain.AdminPremiumRequest) (domain.BuyerView, error)
}

// Handler holds the application service that handlers will interact with.
type Handler struct {
	service Service
	logger  *slog.Logger
}

// NewHandler creates a new Handler with the given service.
func NewHandler(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

func (h *Handler) caller(w http.ResponseWriter, r *http.Request) (domain.Caller, bool) {
	caller, ok := CallerFromContext(r.Context())
	if !ok {
		respondError(w, h.logger, r, domain.UnauthorizedError("caller identity missing"))
		return domain.Caller{}, false
	}
	return caller, true
}

// handleGetMe returns the caller's buyer record, seeding it on first call.
func (h *Handler) handleGetMe(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}

	view, err := h.service.GetMe(r.Context(), caller)
	if err != nil {
		respondError(w, h.logger, r, err)
		return
	}
	respondData(w, http.StatusOK, view)
}

// handleCreateProfile merges the posted profile fields into the caller's
// record.
func (h *Handler) handleCreateProfile(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}

	var profile domain.BuyerProfile
	if err := json.NewDecoder(r.Body).Decode(&profile); err != nil {
		respondError(w, h.logger, r, domain.InvalidJSONError())
		return
	}

	view, err := h.service.CreateProfile(r.Context(), caller, profile)
	if err != nil {
		respondError(w, h.logger, r, err)
		return
	}
	respondData(w, http.StatusOK, view)
}

// handleRequestPremiumUpgrade records a pending plan upgrade request.
func (h *Handler) handleRequestPremiumUpgrade(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}

	var req struct {
		RequestedPlan string `json:"requestedPlan"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, h.logger, r, domain.InvalidJSONError())
		return
	}

	result, err := h.service.RequestPremiumUpgrade(r.Context(), caller, req.RequestedPlan)
	if err != nil {
		respondError(w, h.logger, r, err)
		return
	}
	respondData(w, http.StatusOK, result)
}

// handleCommitPurchase folds a completed purchase into the caller's
// metrics. Also mounted as /buyers/recordPurchaseCompleted.
func (h *Handler) handleCommitPurchase(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}

	var req domain.PurchaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, h.logger, r, domain.InvalidJSONError())
		return
	}

	result, err := h.service.CommitPurchase(r.Context(), caller, req)
	if err != nil {
		respondError(w, h.logger, r, err)
		return
	}
	respondData(w, http.StatusOK, result)
}

// handleListBuyers lists buyer records filtered by approval status for the
// admin console.
func (h *Handler) handleListBuyers(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", 0)
	if err != nil {
		respondError(w, h.logger, r, err)
		return
	}
	offset, err := queryInt(r, "offset", 0)
	if err != nil {
		respondError(w, h.logger, r, err)
		return
	}

	views, err := h.service.ListBuyers(r.Context(), r.URL.Query().Get("status"), limit, offset)
	if err != nil {
		respondError(w, h.logger, r, err)
		return
	}
	respondData(w, http.StatusOK, views)
}

// handleApprove marks the target buyer as approved.
func (h *Handler) handleApprove(w http.ResponseWriter, r *http.Request) {
	admin, ok := h.caller(w, r)
	if !ok {
		return
	}

	view, err := h.service.Approve(r.Context(), admin, chi.URLParam(r, "uid"))
	if err != nil {
		respondError(w, h.logger, r, err)
		return
	}
	respondData(w, http.StatusOK, view)
}

// handleReject marks the target buyer as rejected with a required reason.
func (h *Handler) handleReject(w http.ResponseWriter, r *http.Request) {
	admin, ok := h.caller(w, r)
	if !ok {
		return
	}

	var req struct {
		RejectionReason string `json:"rejectionReason"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, h.logger, r, domain.InvalidJSONError())
		return
	}

	view, err := h.service.Reject(r.Context(), admin, chi.URLParam(r, "uid"), req.RejectionReason)
	if err != nil {
		respondError(w, h.logger, r, err)
		return
	}
	respondData(w, http.StatusOK, view)
}

// handleSetTier applies an admin tier override.
func (h *Handler) handleSetTier(w http.ResponseWriter, r *http.Request) {
	admin, ok := h.caller(w, r)
	if !ok {
		return
	}

	var req domain.AdminTierRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, h.logger, r, domain.InvalidJSONError())
		return
	}

	view, err := h.service.SetTier(r.Context(), admin, chi.URLParam(r, "uid"), req)
	if err != nil {
		respondError(w, h.logger, r, err)
		return
	}
	respondData(w, http.StatusOK, view)
}

// handleSetPremium applies an admin premium plan/status override.
func (h *Handler) handleSetPremium(w http.ResponseWriter, r *http.Request) {
	admin, ok := h.caller(w, r)
	if !ok {
		return
	}

	var req domain.AdminPremiumRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, h.logger, r, domain.InvalidJSONError())
		return
	}

	view, err := h.service.SetPremium(r.Context(), admin, chi.URLParam(r, "uid"), req)
	if err != nil {
		respondError(w, h.logger, r, err)
		return
	}
	respondData(w, http.StatusOK, view)
}

func queryInt(r *http.Request, name string, fallback int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, domain.ValidationError(name+" must be an integer", map[string]any{name: raw})
	}
	return value, nil
}
