package warehouse

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/khatapp/backend-khata/internal/common"
	"github.com/khatapp/backend-khata/internal/db"
	"github.com/khatapp/backend-khata/internal/tenant"
)

// Store is the persistence surface for warehouse and stock management.
type Store interface {
	CreateWarehouse(ctx context.Context, w *db.Warehouse) error
	GetWarehouse(ctx context.Context, companyID, id uuid.UUID) (*db.Warehouse, error)
	ListWarehouses(ctx context.Context, companyID uuid.UUID) ([]db.Warehouse, error)
	UpdateWarehouse(ctx context.Context, w *db.Warehouse) error
	GetStockLevels(ctx context.Context, companyID uuid.UUID, sku string) ([]db.StockLevel, error)
	AdjustStock(ctx context.Context, companyID uuid.UUID, warehouseID *uuid.UUID, sku string, delta float64) error
}

// Handler exposes warehouse and stock endpoints.
type Handler struct {
	Store    Store
	Validate *validator.Validate
}

// Routes mounts warehouse and stock endpoints onto r.
func (h *Handler) Routes(r chi.Router) {
	r.Route("/warehouses", func(r chi.Router) {
		r.Post("/", h.Create)
		r.Get("/", h.List)
		r.Put("/{id}", h.Update)
	})
	r.Route("/stock", func(r chi.Router) {
		r.Get("/{sku}", h.StockLevels)
		r.Post("/adjustments", h.AdjustStock)
	})
}

type warehouseRequest struct {
	Name      string `json:"name" validate:"required,min=2,max=120"`
	Code      string `json:"code" validate:"required,min=1,max=16"`
	Priority  int    `json:"priority" validate:"min=0"`
	IsDefault bool   `json:"is_default"`
}

type warehouseResponse struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Code      string    `json:"code"`
	Priority  int       `json:"priority"`
	IsDefault bool      `json:"is_default"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Create handles POST /api/v1/warehouses.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	companyID, ok := companyFrom(r)
	if !ok {
		common.WriteError(w, common.BadRequest("company scope is required", nil))
		return
	}
	var req warehouseRequest
	if err := common.DecodeJSON(r, &req); err != nil {
		common.WriteError(w, err)
		return
	}
	if h.Validate != nil {
		if err := h.Validate.Struct(req); err != nil {
			common.WriteError(w, common.BadRequest("invalid warehouse", err.Error()))
			return
		}
	}
	wh := db.Warehouse{
		CompanyID: companyID,
		Name:      strings.TrimSpace(req.Name),
		Code:      strings.ToUpper(strings.TrimSpace(req.Code)),
		Priority:  req.Priority,
		IsDefault: req.IsDefault,
	}
	if err := h.Store.CreateWarehouse(r.Context(), &wh); err != nil {
		if errors.Is(err, db.ErrDuplicate) {
			common.WriteError(w, common.Conflict("warehouse code already in use", err))
			return
		}
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusCreated, map[string]any{"data": toResponse(wh)})
}

// List handles GET /api/v1/warehouses, ordered by allocation priority.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	companyID, ok := companyFrom(r)
	if !ok {
		common.WriteError(w, common.BadRequest("company scope is required", nil))
		return
	}
	warehouses, err := h.Store.ListWarehouses(r.Context(), companyID)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	out := make([]warehouseResponse, 0, len(warehouses))
	for _, wh := range warehouses {
		out = append(out, toResponse(wh))
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": out})
}

// Update handles PUT /api/v1/warehouses/{id}.
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	companyID, ok := companyFrom(r)
	if !ok {
		common.WriteError(w, common.BadRequest("company scope is required", nil))
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		common.WriteError(w, common.BadRequest("invalid warehouse id", nil))
		return
	}
	var req warehouseRequest
	if err := common.DecodeJSON(r, &req); err != nil {
		common.WriteError(w, err)
		return
	}
	if h.Validate != nil {
		if err := h.Validate.Struct(req); err != nil {
			common.WriteError(w, common.BadRequest("invalid warehouse", err.Error()))
			return
		}
	}
	wh, err := h.Store.GetWarehouse(r.Context(), companyID, id)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			common.WriteError(w, common.NotFound("warehouse not found"))
			return
		}
		common.WriteError(w, err)
		return
	}
	wh.Name = strings.TrimSpace(req.Name)
	wh.Code = strings.ToUpper(strings.TrimSpace(req.Code))
	wh.Priority = req.Priority
	wh.IsDefault = req.IsDefault
	if err := h.Store.UpdateWarehouse(r.Context(), wh); err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": toResponse(*wh)})
}

type stockLevelResponse struct {
	WarehouseID string  `json:"warehouse_id,omitempty"`
	SKU         string  `json:"sku"`
	Quantity    float64 `json:"quantity"`
}

// StockLevels handles GET /api/v1/stock/{sku}. Rows without a warehouse id
// describe the company's default location.
func (h *Handler) StockLevels(w http.ResponseWriter, r *http.Request) {
	companyID, ok := companyFrom(r)
	if !ok {
		common.WriteError(w, common.BadRequest("company scope is required", nil))
		return
	}
	sku := strings.TrimSpace(chi.URLParam(r, "sku"))
	if sku == "" {
		common.WriteError(w, common.BadRequest("sku is required", nil))
		return
	}
	levels, err := h.Store.GetStockLevels(r.Context(), companyID, sku)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	out := make([]stockLevelResponse, 0, len(levels))
	var total float64
	for _, lvl := range levels {
		entry := stockLevelResponse{SKU: lvl.SKU, Quantity: lvl.Quantity}
		if lvl.WarehouseID != nil {
			entry.WarehouseID = lvl.WarehouseID.String()
		}
		out = append(out, entry)
		total += lvl.Quantity
	}
	common.JSON(w, http.StatusOK, map[string]any{
		"data": out,
		"meta": map[string]any{"sku": sku, "total": total},
	})
}

type adjustStockRequest struct {
	WarehouseID string  `json:"warehouse_id"`
	SKU         string  `json:"sku" validate:"required,min=1,max=64"`
	Delta       float64 `json:"delta"`
}

// AdjustStock handles POST /api/v1/stock/adjustments. An empty warehouse id
// targets the default location. Negative deltas are accepted; levels below
// zero represent backordered quantity.
func (h *Handler) AdjustStock(w http.ResponseWriter, r *http.Request) {
	companyID, ok := companyFrom(r)
	if !ok {
		common.WriteError(w, common.BadRequest("company scope is required", nil))
		return
	}
	var req adjustStockRequest
	if err := common.DecodeJSON(r, &req); err != nil {
		common.WriteError(w, err)
		return
	}
	if h.Validate != nil {
		if err := h.Validate.Struct(req); err != nil {
			common.WriteError(w, common.BadRequest("invalid adjustment", err.Error()))
			return
		}
	}
	if req.Delta == 0 {
		common.WriteError(w, common.BadRequest("delta must be non-zero", nil))
		return
	}

	var warehouseID *uuid.UUID
	if raw := strings.TrimSpace(req.WarehouseID); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			common.WriteError(w, common.BadRequest("invalid warehouse id", nil))
			return
		}
		if _, err := h.Store.GetWarehouse(r.Context(), companyID, id); err != nil {
			if errors.Is(err, db.ErrNotFound) {
				common.WriteError(w, common.NotFound("warehouse not found"))
				return
			}
			common.WriteError(w, err)
			return
		}
		warehouseID = &id
	}
	if err := h.Store.AdjustStock(r.Context(), companyID, warehouseID, strings.TrimSpace(req.SKU), req.Delta); err != nil {
		common.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func toResponse(w db.Warehouse) warehouseResponse {
	return warehouseResponse{
		ID:        w.ID.String(),
		Name:      w.Name,
		Code:      w.Code,
		Priority:  w.Priority,
		IsDefault: w.IsDefault,
		CreatedAt: w.CreatedAt,
		UpdatedAt: w.UpdatedAt,
	}
}

func companyFrom(r *http.Request) (uuid.UUID, bool) {
	raw, ok := tenant.FromContext(r.Context())
	if !ok {
		return uuid.Nil, false
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}
