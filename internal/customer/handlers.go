package customer

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
	"github.com/khatapp/backend-khata/internal/gst"
	"github.com/khatapp/backend-khata/internal/tenant"
)

// Store is the persistence surface for customer management.
type Store interface {
	CreateCustomer(ctx context.Context, c *db.Customer) error
	GetCustomer(ctx context.Context, companyID, id uuid.UUID) (*db.Customer, error)
	ListCustomers(ctx context.Context, companyID uuid.UUID, limit, offset int) ([]db.Customer, int64, error)
	UpdateCustomer(ctx context.Context, c *db.Customer) error
	DeleteCustomer(ctx context.Context, companyID, id uuid.UUID) error
}

// Handler exposes customer CRUD endpoints.
type Handler struct {
	Store    Store
	Validate *validator.Validate
}

// Routes mounts the customer endpoints onto r.
func (h *Handler) Routes(r chi.Router) {
	r.Route("/customers", func(r chi.Router) {
		r.Post("/", h.Create)
		r.Get("/", h.List)
		r.Get("/{id}", h.Get)
		r.Put("/{id}", h.Update)
		r.Delete("/{id}", h.Delete)
	})
}

type customerRequest struct {
	Name      string `json:"name" validate:"required,min=2,max=120"`
	Email     string `json:"email" validate:"omitempty,email"`
	Phone     string `json:"phone" validate:"omitempty,min=6,max=20"`
	GSTIN     string `json:"gstin"`
	PAN       string `json:"pan"`
	StateCode string `json:"state_code"`
}

type customerResponse struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email,omitempty"`
	Phone     string    `json:"phone,omitempty"`
	GSTIN     string    `json:"gstin,omitempty"`
	PAN       string    `json:"pan,omitempty"`
	StateCode string    `json:"state_code,omitempty"`
	StateName string    `json:"state_name,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// normalize validates tax identifiers and derives the state code from the
// GSTIN when the caller did not send one. A state code that contradicts the
// GSTIN prefix is rejected.
func (req *customerRequest) normalize() error {
	req.Name = strings.TrimSpace(req.Name)
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	req.Phone = strings.TrimSpace(req.Phone)
	req.GSTIN = strings.ToUpper(strings.TrimSpace(req.GSTIN))
	req.PAN = strings.ToUpper(strings.TrimSpace(req.PAN))
	req.StateCode = strings.TrimSpace(req.StateCode)

	if req.GSTIN != "" {
		if err := gst.ValidateGSTIN(req.GSTIN); err != nil {
			return common.BadRequest(err.Error(), nil)
		}
		derived, err := gst.StateCodeFromGSTIN(req.GSTIN)
		if err != nil {
			return common.BadRequest(err.Error(), nil)
		}
		if req.StateCode == "" {
			req.StateCode = derived
		} else if req.StateCode != derived {
			return common.BadRequest("state code does not match gstin", nil)
		}
	}
	if req.PAN != "" {
		if err := gst.ValidatePAN(req.PAN); err != nil {
			return common.BadRequest(err.Error(), nil)
		}
	}
	if req.StateCode != "" && !gst.ValidStateCode(req.StateCode) {
		return common.BadRequest("unknown state code", nil)
	}
	return nil
}

// Create handles POST /api/v1/customers.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	companyID, ok := companyFrom(r)
	if !ok {
		common.WriteError(w, common.BadRequest("company scope is required", nil))
		return
	}
	var req customerRequest
	if err := common.DecodeJSON(r, &req); err != nil {
		common.WriteError(w, err)
		return
	}
	if h.Validate != nil {
		if err := h.Validate.Struct(req); err != nil {
			common.WriteError(w, common.BadRequest("invalid customer", err.Error()))
			return
		}
	}
	if err := req.normalize(); err != nil {
		common.WriteError(w, err)
		return
	}

	customer := db.Customer{
		CompanyID: companyID,
		Name:      req.Name,
		Email:     req.Email,
		Phone:     req.Phone,
		GSTIN:     req.GSTIN,
		PAN:       req.PAN,
		StateCode: req.StateCode,
	}
	if err := h.Store.CreateCustomer(r.Context(), &customer); err != nil {
		if errors.Is(err, db.ErrDuplicate) {
			common.WriteError(w, common.Conflict("customer already exists", err))
			return
		}
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusCreated, map[string]any{"data": toResponse(customer)})
}

// List handles GET /api/v1/customers.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	companyID, ok := companyFrom(r)
	if !ok {
		common.WriteError(w, common.BadRequest("company scope is required", nil))
		return
	}
	page, perPage := common.ParsePagination(r, 20)
	customers, total, err := h.Store.ListCustomers(r.Context(), companyID, perPage, (page-1)*perPage)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	out := make([]customerResponse, 0, len(customers))
	for _, c := range customers {
		out = append(out, toResponse(c))
	}
	common.JSON(w, http.StatusOK, map[string]any{
		"data": out,
		"meta": common.Pagination{Page: page, PerPage: perPage, Total: total},
	})
}

// Get handles GET /api/v1/customers/{id}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	companyID, ok := companyFrom(r)
	if !ok {
		common.WriteError(w, common.BadRequest("company scope is required", nil))
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		common.WriteError(w, common.BadRequest("invalid customer id", nil))
		return
	}
	customer, err := h.Store.GetCustomer(r.Context(), companyID, id)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			common.WriteError(w, common.NotFound("customer not found"))
			return
		}
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": toResponse(*customer)})
}

// Update handles PUT /api/v1/customers/{id}.
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	companyID, ok := companyFrom(r)
	if !ok {
		common.WriteError(w, common.BadRequest("company scope is required", nil))
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		common.WriteError(w, common.BadRequest("invalid customer id", nil))
		return
	}
	var req customerRequest
	if err := common.DecodeJSON(r, &req); err != nil {
		common.WriteError(w, err)
		return
	}
	if h.Validate != nil {
		if err := h.Validate.Struct(req); err != nil {
			common.WriteError(w, common.BadRequest("invalid customer", err.Error()))
			return
		}
	}
	if err := req.normalize(); err != nil {
		common.WriteError(w, err)
		return
	}

	customer, err := h.Store.GetCustomer(r.Context(), companyID, id)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			common.WriteError(w, common.NotFound("customer not found"))
			return
		}
		common.WriteError(w, err)
		return
	}
	customer.Name = req.Name
	customer.Email = req.Email
	customer.Phone = req.Phone
	customer.GSTIN = req.GSTIN
	customer.PAN = req.PAN
	customer.StateCode = req.StateCode
	if err := h.Store.UpdateCustomer(r.Context(), customer); err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": toResponse(*customer)})
}

// Delete handles DELETE /api/v1/customers/{id}.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	companyID, ok := companyFrom(r)
	if !ok {
		common.WriteError(w, common.BadRequest("company scope is required", nil))
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		common.WriteError(w, common.BadRequest("invalid customer id", nil))
		return
	}
	if err := h.Store.DeleteCustomer(r.Context(), companyID, id); err != nil {
		if errors.Is(err, db.ErrNotFound) {
			common.WriteError(w, common.NotFound("customer not found"))
			return
		}
		common.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func toResponse(c db.Customer) customerResponse {
	return customerResponse{
		ID:        c.ID.String(),
		Name:      c.Name,
		Email:     c.Email,
		Phone:     c.Phone,
		GSTIN:     c.GSTIN,
		PAN:       c.PAN,
		StateCode: c.StateCode,
		StateName: gst.StateName(c.StateCode),
		CreatedAt: c.CreatedAt,
		UpdatedAt: c.UpdatedAt,
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
