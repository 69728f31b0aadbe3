package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pimgrid/api/internal/platform/httpx"
	"github.com/pimgrid/api/internal/repositories"
	"github.com/pimgrid/api/internal/services"
)

const defaultMaxBodySize = 64 * 1024

var (
	errEmptyBody    = errors.New("request body is empty")
	errBodyTooLarge = errors.New("request body too large")
)

func readLimitedBody(r *http.Request, limit int64) ([]byte, error) {
	if r == nil || r.Body == nil {
		return nil, errEmptyBody
	}
	if limit <= 0 {
		limit = defaultMaxBodySize
	}
	reader := io.LimitReader(r.Body, limit+1)
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, err
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, errEmptyBody
	}
	if int64(len(data)) > limit {
		return nil, errBodyTooLarge
	}
	return data, nil
}

func writeBodyError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, errEmptyBody):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body is required", http.StatusBadRequest))
	case errors.Is(err, errBodyTooLarge):
		httpx.WriteError(ctx, w, httpx.NewError("payload_too_large", "request body exceeds allowed size", http.StatusRequestEntityTooLarge))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	}
}

func writeJSONResponse(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

// writeCatalogError maps service and repository errors onto the JSON error
// envelope. Conflict reports carry their field union as payload detail.
func writeCatalogError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}

	if conflict, ok := services.AsConflict(err); ok {
		httpx.WriteError(ctx, w, httpx.NewError("conflict", "concurrent modification detected", http.StatusConflict).
			WithDetails(map[string]any{"fields": conflict.Fields}))
		return
	}
	if conflict, ok := services.AsVersionConflict(err); ok {
		httpx.WriteError(ctx, w, httpx.NewError("conflict", "concurrent modification detected", http.StatusConflict).
			WithDetails(map[string]any{"entity_id": conflict.EntityID, "fields": conflict.Fields}))
		return
	}

	switch {
	case errors.Is(err, services.ErrNotModified):
		httpx.WriteError(ctx, w, httpx.NewError("not_modified", "no fields changed", http.StatusBadRequest))
	case errors.Is(err, services.ErrDuplicateAttributeValue):
		httpx.WriteError(ctx, w, httpx.NewError("duplicate_attribute_value", "attribute already has a value in this scope", http.StatusConflict))
	case errors.Is(err, services.ErrChannelAlreadyRelated):
		httpx.WriteError(ctx, w, httpx.NewError("channel_already_related", "channel is already related to the product", http.StatusConflict))
	case errors.Is(err, services.ErrCategoryAlreadyRelated):
		httpx.WriteError(ctx, w, httpx.NewError("category_already_related", "category is already related to the product", http.StatusConflict))
	case errors.Is(err, services.ErrCategoryCatalogMismatch):
		httpx.WriteError(ctx, w, httpx.NewError("category_catalog_mismatch", "category tree is not allowed for the product's catalog", http.StatusUnprocessableEntity))
	case errors.Is(err, services.ErrNonLeafCategoryLink):
		httpx.WriteError(ctx, w, httpx.NewError("category_not_leaf", "only leaf categories can be linked", http.StatusUnprocessableEntity))
	case errors.Is(err, services.ErrImmutableField):
		httpx.WriteError(ctx, w, httpx.NewError("immutable_field", "field cannot be changed after creation", http.StatusUnprocessableEntity))
	case errors.Is(err, services.ErrNotGroupMember):
		httpx.WriteError(ctx, w, httpx.NewError("not_group_member", "record is not part of the ordered group", http.StatusUnprocessableEntity))
	case errors.Is(err, services.ErrNegativeSorting):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "sorting must be non-negative", http.StatusBadRequest))
	case errors.Is(err, services.ErrUniqueFieldTaken):
		httpx.WriteError(ctx, w, httpx.NewError("unique_field_taken", "identifier already used by another product in this catalog", http.StatusConflict))
	default:
		var repoErr repositories.RepositoryError
		if errors.As(err, &repoErr) {
			switch {
			case repoErr.IsNotFound():
				httpx.WriteError(ctx, w, httpx.NewError("not_found", "record not found", http.StatusNotFound))
				return
			case repoErr.IsConflict():
				httpx.WriteError(ctx, w, httpx.NewError("conflict", "conflicting record state", http.StatusConflict))
				return
			case repoErr.IsUnavailable():
				httpx.WriteError(ctx, w, httpx.NewError("service_unavailable", "storage unavailable", http.StatusServiceUnavailable))
				return
			}
		}
		httpx.WriteError(ctx, w, httpx.NewError("internal_error", "failed to process request", http.StatusInternalServerError))
	}
}
