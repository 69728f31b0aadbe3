package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	domain "github.com/pimgrid/api/internal/domain"
	"github.com/pimgrid/api/internal/platform/httpx"
	"github.com/pimgrid/api/internal/services"
)

const maxProductBodySize = 128 * 1024

// ProductHandlers exposes product CRUD, composite updates and attribute
// value endpoints.
type ProductHandlers struct {
	products   services.ProductService
	attributes services.AttributeService
	projector  services.LocaleProjector
	relations  *RelationHandlers
}

// NewProductHandlers constructs a new ProductHandlers instance.
func NewProductHandlers(products services.ProductService, attributes services.AttributeService, projector services.LocaleProjector, relations *RelationHandlers) *ProductHandlers {
	return &ProductHandlers{
		products:   products,
		attributes: attributes,
		projector:  projector,
		relations:  relations,
	}
}

// Routes registers the /products endpoints.
func (h *ProductHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/", h.createProduct)
	r.Route("/{productID}", func(r chi.Router) {
		r.Get("/", h.getProduct)
		r.Patch("/", h.updateProduct)
		r.Delete("/", h.deleteProduct)

		r.Get("/values", h.listValues)
		r.Post("/values", h.saveValue)
		r.Patch("/values/{valueID}", h.updateValue)
		r.Delete("/values/{valueID}", h.deleteValue)
		r.Post("/reconcile", h.reconcile)

		if h.relations != nil {
			h.relations.routes(r)
		}
	})
}

func (h *ProductHandlers) createProduct(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	body, err := readLimitedBody(r, maxProductBodySize)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	var req createProductRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON payload", http.StatusBadRequest))
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "name is required", http.StatusBadRequest))
		return
	}

	product, err := h.products.CreateProduct(ctx, services.CreateProductCommand{
		Name:           strings.TrimSpace(req.Name),
		Type:           strings.TrimSpace(req.Type),
		SKU:            strings.TrimSpace(req.SKU),
		EAN:            strings.TrimSpace(req.EAN),
		MPN:            strings.TrimSpace(req.MPN),
		CatalogID:      strings.TrimSpace(req.CatalogID),
		FamilyID:       strings.TrimSpace(req.FamilyID),
		Active:         req.Active,
		OwnerUserID:    strings.TrimSpace(req.OwnerUserID),
		AssignedUserID: strings.TrimSpace(req.AssignedUserID),
		TeamIDs:        req.TeamIDs,
	})
	if err != nil {
		writeCatalogError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusCreated, buildProductPayload(product))
}

func (h *ProductHandlers) getProduct(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	product, err := h.products.GetProduct(ctx, chi.URLParam(r, "productID"))
	if err != nil {
		writeCatalogError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildProductPayload(product))
}

func (h *ProductHandlers) updateProduct(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	body, err := readLimitedBody(r, maxProductBodySize)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	var req updateProductRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON payload", http.StatusBadRequest))
		return
	}

	cmd := services.UpdateProductCommand{
		ProductID:       chi.URLParam(r, "productID"),
		Name:            req.Name,
		Type:            req.Type,
		SKU:             req.SKU,
		EAN:             req.EAN,
		MPN:             req.MPN,
		CatalogID:       req.CatalogID,
		FamilyID:        req.FamilyID,
		Active:          req.Active,
		Prev:            req.Prev,
		IgnoreConflicts: req.IgnoreConflicts,
	}
	for _, nested := range req.Values {
		cmd.NestedValues = append(cmd.NestedValues, nested.toCommand())
	}

	product, err := h.products.UpdateProduct(ctx, cmd)
	if err != nil {
		writeCatalogError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, buildProductPayload(product))
}

func (h *ProductHandlers) deleteProduct(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := h.products.DeleteProduct(ctx, chi.URLParam(r, "productID")); err != nil {
		writeCatalogError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *ProductHandlers) listValues(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	values, err := h.projector.ListProductValues(ctx, chi.URLParam(r, "productID"))
	if err != nil {
		writeCatalogError(ctx, w, err)
		return
	}

	payload := listValuesResponse{Values: make([]valuePayload, 0, len(values))}
	for _, value := range values {
		payload.Values = append(payload.Values, buildValuePayload(value))
	}
	writeJSONResponse(w, http.StatusOK, payload)
}

func (h *ProductHandlers) saveValue(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	body, err := readLimitedBody(r, maxProductBodySize)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	var req saveValueRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON payload", http.StatusBadRequest))
		return
	}

	scope := domain.ScopeGlobal
	if strings.EqualFold(req.Scope, string(domain.ScopeChannel)) {
		scope = domain.ScopeChannel
	}

	localeValues := make(map[string]domain.LocalizedValue, len(req.LocaleValues))
	for locale, v := range req.LocaleValues {
		localeValues[locale] = domain.LocalizedValue{Value: v}
	}

	value, err := h.attributes.SaveValue(ctx, services.SaveValueCommand{
		ProductID:    chi.URLParam(r, "productID"),
		AttributeID:  strings.TrimSpace(req.AttributeID),
		Scope:        scope,
		ChannelID:    strings.TrimSpace(req.ChannelID),
		Value:        req.Value,
		TypeValue:    req.TypeValue,
		LocaleValues: localeValues,
	})
	if err != nil {
		writeCatalogError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusCreated, buildStoredValuePayload(value))
}

func (h *ProductHandlers) updateValue(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	body, err := readLimitedBody(r, maxProductBodySize)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	var req updateValueRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON payload", http.StatusBadRequest))
		return
	}

	cmd := req.toCommand()
	cmd.ValueID = chi.URLParam(r, "valueID")

	value, err := h.attributes.UpdateValue(ctx, cmd)
	if err != nil {
		writeCatalogError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, buildStoredValuePayload(value))
}

func (h *ProductHandlers) deleteValue(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := h.attributes.DeleteValue(ctx, chi.URLParam(r, "valueID")); err != nil {
		writeCatalogError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *ProductHandlers) reconcile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	report, err := h.attributes.Reconcile(ctx, chi.URLParam(r, "productID"))
	if err != nil {
		writeCatalogError(ctx, w, err)
		return
	}

	payload := reconcileResponse{
		Detached:     report.Detached,
		Materialized: report.Materialized,
		Claimed:      report.Claimed,
	}
	for _, failure := range report.Failures {
		payload.Failures = append(payload.Failures, reconcileFailurePayload{
			TemplateID:  failure.TemplateID,
			AttributeID: failure.AttributeID,
			Error:       failure.Err.Error(),
		})
	}
	writeJSONResponse(w, http.StatusOK, payload)
}

type createProductRequest struct {
	Name           string   `json:"name"`
	Type           string   `json:"type"`
	SKU            string   `json:"sku"`
	EAN            string   `json:"ean"`
	MPN            string   `json:"mpn"`
	CatalogID      string   `json:"catalog_id"`
	FamilyID       string   `json:"family_id"`
	Active         bool     `json:"active"`
	OwnerUserID    string   `json:"owner_user_id"`
	AssignedUserID string   `json:"assigned_user_id"`
	TeamIDs        []string `json:"team_ids"`
}

type updateProductRequest struct {
	Name      *string `json:"name"`
	Type      *string `json:"type"`
	SKU       *string `json:"sku"`
	EAN       *string `json:"ean"`
	MPN       *string `json:"mpn"`
	CatalogID *string `json:"catalog_id"`
	FamilyID  *string `json:"family_id"`
	Active    *bool   `json:"active"`

	Prev            map[string]string    `json:"prev"`
	Values          []updateValueRequest `json:"values"`
	IgnoreConflicts bool                 `json:"ignore_conflicts"`
}

type saveValueRequest struct {
	AttributeID  string            `json:"attribute_id"`
	Scope        string            `json:"scope"`
	ChannelID    string            `json:"channel_id"`
	Value        string            `json:"value"`
	TypeValue    []string          `json:"type_value"`
	LocaleValues map[string]string `json:"locale_values"`
}

type updateValueRequest struct {
	ValueID      string            `json:"value_id"`
	Value        *string           `json:"value"`
	TypeValue    []string          `json:"type_value"`
	LocaleValues map[string]string `json:"locale_values"`

	Prev           *valueSnapshotPayload `json:"prev"`
	IgnoreConflict bool                  `json:"ignore_conflict"`
}

type valueSnapshotPayload struct {
	Value        *string           `json:"value"`
	LocaleValues map[string]string `json:"locale_values"`
}

func (r updateValueRequest) toCommand() services.UpdateValueCommand {
	cmd := services.UpdateValueCommand{
		ValueID:        r.ValueID,
		Value:          r.Value,
		TypeValue:      r.TypeValue,
		LocaleValues:   r.LocaleValues,
		IgnoreConflict: r.IgnoreConflict,
	}
	if r.Prev != nil {
		cmd.Prev = &services.ValueSnapshot{
			Value:        r.Prev.Value,
			LocaleValues: r.Prev.LocaleValues,
		}
	}
	return cmd
}

type productPayload struct {
	ID             string   `json:"id"`
	Name           string   `json:"name"`
	Type           string   `json:"type"`
	SKU            string   `json:"sku,omitempty"`
	EAN            string   `json:"ean,omitempty"`
	MPN            string   `json:"mpn,omitempty"`
	CatalogID      string   `json:"catalog_id,omitempty"`
	FamilyID       string   `json:"family_id,omitempty"`
	Active         bool     `json:"active"`
	OwnerUserID    string   `json:"owner_user_id,omitempty"`
	AssignedUserID string   `json:"assigned_user_id,omitempty"`
	TeamIDs        []string `json:"team_ids,omitempty"`
	CreatedAt      string   `json:"created_at"`
	UpdatedAt      string   `json:"updated_at"`
}

func buildProductPayload(product services.Product) productPayload {
	return productPayload{
		ID:             product.ID,
		Name:           product.Name,
		Type:           product.Type,
		SKU:            product.SKU,
		EAN:            product.EAN,
		MPN:            product.MPN,
		CatalogID:      product.CatalogID,
		FamilyID:       product.FamilyID,
		Active:         product.Active,
		OwnerUserID:    product.OwnerUserID,
		AssignedUserID: product.AssignedUserID,
		TeamIDs:        product.TeamIDs,
		CreatedAt:      formatTime(product.CreatedAt),
		UpdatedAt:      formatTime(product.UpdatedAt),
	}
}

type listValuesResponse struct {
	Values []valuePayload `json:"values"`
}

type valuePayload struct {
	ID          string            `json:"id"`
	AttributeID string            `json:"attribute_id"`
	Scope       string            `json:"scope"`
	ChannelID   string            `json:"channel_id,omitempty"`
	Value       string            `json:"value"`
	TypeValue   []string          `json:"type_value,omitempty"`
	Title       string            `json:"title,omitempty"`
	IsLocale    bool              `json:"is_locale,omitempty"`
	Locale      string            `json:"locale,omitempty"`
	Required    bool              `json:"required,omitempty"`
	LocaleMap   map[string]string `json:"locale_values,omitempty"`
}

func buildValuePayload(value services.ProjectedAttributeValue) valuePayload {
	return valuePayload{
		ID:          value.ID,
		AttributeID: value.AttributeID,
		Scope:       string(value.Scope),
		ChannelID:   value.ChannelID,
		Value:       value.Value,
		TypeValue:   value.TypeValue,
		Title:       value.Title,
		IsLocale:    value.IsLocale,
		Locale:      value.Locale,
		Required:    value.Required,
	}
}

func buildStoredValuePayload(value services.AttributeValue) valuePayload {
	payload := valuePayload{
		ID:          value.ID,
		AttributeID: value.AttributeID,
		Scope:       string(value.Scope),
		ChannelID:   value.ChannelID,
		Value:       value.Value,
		TypeValue:   value.TypeValue,
		Required:    value.Required,
	}
	if len(value.LocaleValues) > 0 {
		payload.LocaleMap = make(map[string]string, len(value.LocaleValues))
		for locale, lv := range value.LocaleValues {
			payload.LocaleMap[locale] = lv.Value
		}
	}
	return payload
}

type reconcileFailurePayload struct {
	TemplateID  string `json:"template_id"`
	AttributeID string `json:"attribute_id"`
	Error       string `json:"error"`
}

type reconcileResponse struct {
	Detached     int                       `json:"detached"`
	Materialized int                       `json:"materialized"`
	Claimed      int                       `json:"claimed"`
	Failures     []reconcileFailurePayload `json:"failures,omitempty"`
}
