package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/pimgrid/api/internal/platform/httpx"
	"github.com/pimgrid/api/internal/services"
)

const maxRelationBodySize = 8 * 1024

// RelationHandlers exposes category, channel and asset relation endpoints
// nested under a product.
type RelationHandlers struct {
	cascade  services.ChannelCascadeService
	ordering services.OrderingService
}

// NewRelationHandlers constructs a new RelationHandlers instance.
func NewRelationHandlers(cascade services.ChannelCascadeService, ordering services.OrderingService) *RelationHandlers {
	return &RelationHandlers{
		cascade:  cascade,
		ordering: ordering,
	}
}

// routes registers relation endpoints on a /products/{productID} subtree.
func (h *RelationHandlers) routes(r chi.Router) {
	r.Post("/categories/{categoryID}", h.linkCategory)
	r.Delete("/categories/{categoryID}", h.unlinkCategory)
	r.Put("/categories/{categoryID}/position", h.setCategoryPosition)

	r.Post("/channels/{channelID}", h.relateChannel)
	r.Delete("/channels/{channelID}", h.unrelateChannel)
	r.Put("/channels/{channelID}/activation", h.setChannelActivation)

	r.Put("/assets/{member}/position", h.setAssetPosition)
}

func (h *RelationHandlers) linkCategory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	err := h.cascade.LinkCategory(ctx, chi.URLParam(r, "productID"), chi.URLParam(r, "categoryID"))
	if err != nil {
		writeCatalogError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *RelationHandlers) unlinkCategory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	err := h.cascade.UnlinkCategory(ctx, chi.URLParam(r, "productID"), chi.URLParam(r, "categoryID"))
	if err != nil {
		writeCatalogError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type positionRequest struct {
	Sorting *int `json:"sorting"`
}

func (h *RelationHandlers) setCategoryPosition(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	body, err := readLimitedBody(r, maxRelationBodySize)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}
	var req positionRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON payload", http.StatusBadRequest))
		return
	}

	err = h.ordering.SetCategoryPosition(ctx, services.SetCategoryPositionCommand{
		CategoryID: chi.URLParam(r, "categoryID"),
		ProductID:  chi.URLParam(r, "productID"),
		Sorting:    req.Sorting,
	})
	if err != nil {
		writeCatalogError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *RelationHandlers) relateChannel(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	err := h.cascade.RelateChannel(ctx, chi.URLParam(r, "productID"), chi.URLParam(r, "channelID"))
	if err != nil {
		writeCatalogError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *RelationHandlers) unrelateChannel(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	err := h.cascade.UnrelateChannel(ctx, chi.URLParam(r, "productID"), chi.URLParam(r, "channelID"))
	if err != nil {
		writeCatalogError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type activationRequest struct {
	Active bool `json:"active"`
}

func (h *RelationHandlers) setChannelActivation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	body, err := readLimitedBody(r, maxRelationBodySize)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}
	var req activationRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON payload", http.StatusBadRequest))
		return
	}

	err = h.cascade.SetChannelActivation(ctx, chi.URLParam(r, "productID"), chi.URLParam(r, "channelID"), req.Active)
	if err != nil {
		writeCatalogError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *RelationHandlers) setAssetPosition(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	body, err := readLimitedBody(r, maxRelationBodySize)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}
	var req positionRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON payload", http.StatusBadRequest))
		return
	}

	err = h.ordering.SetAssetPosition(ctx, services.SetAssetPositionCommand{
		ProductID: chi.URLParam(r, "productID"),
		Member:    chi.URLParam(r, "member"),
		Sorting:   req.Sorting,
	})
	if err != nil {
		writeCatalogError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
