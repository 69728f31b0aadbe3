package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/pimgrid/api/internal/platform/httpx"
	"github.com/pimgrid/api/internal/services"
)

const maxAssociationBodySize = 32 * 1024

// AssociationHandlers exposes typed product association endpoints.
type AssociationHandlers struct {
	associations services.AssociationService
}

// NewAssociationHandlers constructs a new AssociationHandlers instance.
func NewAssociationHandlers(associations services.AssociationService) *AssociationHandlers {
	return &AssociationHandlers{associations: associations}
}

// Routes registers the /associations endpoints.
func (h *AssociationHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/relate", h.relate)
	r.Delete("/edges/{edgeID}", h.unrelate)
	r.Post("/duplicate", h.duplicate)
}

func (h *AssociationHandlers) relate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	body, err := readLimitedBody(r, maxAssociationBodySize)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	var req relateRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON payload", http.StatusBadRequest))
		return
	}
	if strings.TrimSpace(req.AssociationID) == "" || len(req.MainProductIDs) == 0 || len(req.RelatedProductIDs) == 0 {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "association_id, main_product_ids and related_product_ids are required", http.StatusBadRequest))
		return
	}

	report, err := h.associations.Relate(ctx, services.RelateAssociationCommand{
		AssociationID:     strings.TrimSpace(req.AssociationID),
		MainProductIDs:    req.MainProductIDs,
		RelatedProductIDs: req.RelatedProductIDs,
	})
	if err != nil {
		writeCatalogError(ctx, w, err)
		return
	}

	payload := relateResponse{Related: report.Related}
	for _, failure := range report.Failures {
		payload.Failures = append(payload.Failures, relateFailurePayload{
			MainProductID:    failure.MainProductID,
			RelatedProductID: failure.RelatedProductID,
			Error:            failure.Err.Error(),
		})
	}

	status := http.StatusOK
	if report.Related == 0 && len(report.Failures) > 0 {
		status = http.StatusUnprocessableEntity
	}
	writeJSONResponse(w, status, payload)
}

func (h *AssociationHandlers) unrelate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := h.associations.Unrelate(ctx, chi.URLParam(r, "edgeID")); err != nil {
		writeCatalogError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *AssociationHandlers) duplicate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	body, err := readLimitedBody(r, maxAssociationBodySize)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	var req duplicateRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON payload", http.StatusBadRequest))
		return
	}
	if strings.TrimSpace(req.SourceProductID) == "" || strings.TrimSpace(req.TargetProductID) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "source_product_id and target_product_id are required", http.StatusBadRequest))
		return
	}

	if err := h.associations.DuplicateFrom(ctx, req.SourceProductID, req.TargetProductID); err != nil {
		writeCatalogError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type relateRequest struct {
	AssociationID     string   `json:"association_id"`
	MainProductIDs    []string `json:"main_product_ids"`
	RelatedProductIDs []string `json:"related_product_ids"`
}

type relateFailurePayload struct {
	MainProductID    string `json:"main_product_id"`
	RelatedProductID string `json:"related_product_id"`
	Error            string `json:"error"`
}

type relateResponse struct {
	Related  int                    `json:"related"`
	Failures []relateFailurePayload `json:"failures,omitempty"`
}

type duplicateRequest struct {
	SourceProductID string `json:"source_product_id"`
	TargetProductID string `json:"target_product_id"`
}
