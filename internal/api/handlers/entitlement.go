// Package handlers contains the HTTP handler implementations for the
// PawKeeper API. Handlers define their service contracts as local interfaces
// and receive implementations via constructors, which keeps them decoupled
// from concrete types and mockable in tests.
package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"pawkeeper/internal/core"
	"pawkeeper/internal/types"
)

// EntitlementEngine is the per-user entitlement surface the handler needs.
type EntitlementEngine interface {
	GetEntitlement(ctx context.Context) (*types.SubscriptionStatus, error)
	RefreshEntitlement(ctx context.Context) (*types.SubscriptionStatus, error)
	CanAccessFeature(ctx context.Context, id types.FeatureID) bool
	CheckResourceAccess(ctx context.Context, kind types.ResourceKind, currentCount int) types.AccessDecision
}

// EngineSource hands out per-user engines and ends sessions.
type EngineSource interface {
	For(userID, customerID string) EntitlementEngine
	Evict(userID string)
}

// EntitlementHandler serves entitlement reads, manual refresh, access checks,
// and logout.
type EntitlementHandler struct {
	engines EngineSource
}

// NewEntitlementHandler creates the handler.
func NewEntitlementHandler(engines EngineSource) *EntitlementHandler {
	return &EntitlementHandler{engines: engines}
}

// RegisterRoutes mounts the entitlement endpoints.
func (h *EntitlementHandler) RegisterRoutes(r chi.Router) {
	r.Get("/v1/entitlement", h.Get)
	r.Post("/v1/entitlement/refresh", h.Refresh)
	r.Get("/v1/entitlement/access", h.CheckAccess)
	r.Get("/v1/entitlement/features/{featureID}", h.CheckFeature)
	r.Post("/v1/session/logout", h.Logout)
}

// Get returns the current entitlement snapshot, fetching when the cache is
// unknown or stale.
func (h *EntitlementHandler) Get(w http.ResponseWriter, r *http.Request) {
	eng, ok := h.engine(w, r)
	if !ok {
		return
	}
	status, err := eng.GetEntitlement(r.Context())
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, status)
}

// Refresh forces a provider fetch with manual-refresh semantics.
func (h *EntitlementHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	eng, ok := h.engine(w, r)
	if !ok {
		return
	}
	status, err := eng.RefreshEntitlement(r.Context())
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, status)
}

// CheckAccess evaluates a resource access decision for
// ?resource=<kind>&count=<current usage>.
func (h *EntitlementHandler) CheckAccess(w http.ResponseWriter, r *http.Request) {
	eng, ok := h.engine(w, r)
	if !ok {
		return
	}

	kind := types.ResourceKind(r.URL.Query().Get("resource"))
	if kind == "" {
		core.Error(w, r, types.NewAppError(types.ErrCodeValidationMissingField, "resource query parameter is required", nil))
		return
	}
	count, err := strconv.Atoi(r.URL.Query().Get("count"))
	if err != nil || count < 0 {
		core.Error(w, r, types.NewAppError(types.ErrCodeValidationInvalidField, "count must be a non-negative integer", nil))
		return
	}

	decision := eng.CheckResourceAccess(r.Context(), kind, count)
	core.JSON(w, r, http.StatusOK, decision)
}

// CheckFeature reports whether the current entitlement grants a feature.
func (h *EntitlementHandler) CheckFeature(w http.ResponseWriter, r *http.Request) {
	eng, ok := h.engine(w, r)
	if !ok {
		return
	}
	id := types.FeatureID(chi.URLParam(r, "featureID"))
	core.JSON(w, r, http.StatusOK, map[string]bool{"allowed": eng.CanAccessFeature(r.Context(), id)})
}

// Logout ends the session: the engine is torn down and its cache invalidated
// so nothing from this session can leak into the next.
func (h *EntitlementHandler) Logout(w http.ResponseWriter, r *http.Request) {
	actor, ok := types.GetActor(r.Context())
	if !ok {
		core.Error(w, r, types.NewAppError(types.ErrCodeAuthTokenMissing, "request has no authenticated identity", nil))
		return
	}
	h.engines.Evict(actor.ID)
	core.JSON(w, r, http.StatusOK, map[string]bool{"ok": true})
}

func (h *EntitlementHandler) engine(w http.ResponseWriter, r *http.Request) (EntitlementEngine, bool) {
	actor, ok := types.GetActor(r.Context())
	if !ok {
		core.Error(w, r, types.NewAppError(types.ErrCodeAuthTokenMissing, "request has no authenticated identity", nil))
		return nil, false
	}
	return h.engines.For(actor.ID, actor.CustomerID), true
}
