package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"pawkeeper/internal/core"
	"pawkeeper/internal/types"
)

// PetStore abstracts pet persistence.
type PetStore interface {
	Create(ctx context.Context, pet *types.Pet) error
	ListByOwner(ctx context.Context, ownerID string) ([]*types.Pet, error)
	CountByOwner(ctx context.Context, ownerID string) (int, error)
	Delete(ctx context.Context, ownerID, id string) error
}

// PetsHandler serves pet CRUD. Creation is gated by the entitlement engine:
// the access decision, not the client, is the source of truth for whether
// another pet fits the user's plan.
type PetsHandler struct {
	store     PetStore
	engines   EngineSource
	validator *core.Validator
}

// NewPetsHandler creates the handler.
func NewPetsHandler(store PetStore, engines EngineSource, validator *core.Validator) *PetsHandler {
	return &PetsHandler{store: store, engines: engines, validator: validator}
}

// RegisterRoutes mounts the pet endpoints.
func (h *PetsHandler) RegisterRoutes(r chi.Router) {
	r.Get("/v1/pets", h.List)
	r.Post("/v1/pets", h.Create)
	r.Delete("/v1/pets/{petID}", h.Delete)
}

type createPetRequest struct {
	Name      string     `json:"name" validate:"required,max=100"`
	Species   string     `json:"species" validate:"required,max=50"`
	Breed     string     `json:"breed" validate:"max=100"`
	BirthDate *time.Time `json:"birth_date"`
}

// List returns the caller's pets.
func (h *PetsHandler) List(w http.ResponseWriter, r *http.Request) {
	actor, ok := types.GetActor(r.Context())
	if !ok {
		core.Error(w, r, types.NewAppError(types.ErrCodeAuthTokenMissing, "request has no authenticated identity", nil))
		return
	}
	pets, err := h.store.ListByOwner(r.Context(), actor.ID)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, pets)
}

// Create adds a pet after checking the entitlement limit against the current
// count. A denied decision returns 403 with the decision attached so the
// client can render the upgrade prompt.
func (h *PetsHandler) Create(w http.ResponseWriter, r *http.Request) {
	actor, ok := types.GetActor(r.Context())
	if !ok {
		core.Error(w, r, types.NewAppError(types.ErrCodeAuthTokenMissing, "request has no authenticated identity", nil))
		return
	}

	var req createPetRequest
	if err := core.DecodeJSON(r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.Struct(&req); err != nil {
		core.Error(w, r, err)
		return
	}

	count, err := h.store.CountByOwner(r.Context(), actor.ID)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	eng := h.engines.For(actor.ID, actor.CustomerID)
	decision := eng.CheckResourceAccess(r.Context(), types.ResourcePets, count)
	if !decision.Allowed {
		core.Error(w, r, types.NewAppErrorWithDetails(
			types.ErrCodeLimitResource,
			decision.Message,
			nil,
			map[string]any{
				"resource":         types.ResourcePets,
				"requires_upgrade": decision.RequiresUpgrade,
			},
		))
		return
	}

	pet := &types.Pet{
		ID:        "pet_" + uuid.NewString(),
		OwnerID:   actor.ID,
		Name:      req.Name,
		Species:   req.Species,
		Breed:     req.Breed,
		BirthDate: req.BirthDate,
	}
	if err := h.store.Create(r.Context(), pet); err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusCreated, pet)
}

// Delete removes one of the caller's pets.
func (h *PetsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	actor, ok := types.GetActor(r.Context())
	if !ok {
		core.Error(w, r, types.NewAppError(types.ErrCodeAuthTokenMissing, "request has no authenticated identity", nil))
		return
	}
	if err := h.store.Delete(r.Context(), actor.ID, chi.URLParam(r, "petID")); err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, map[string]bool{"ok": true})
}
