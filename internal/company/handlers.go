package company

import (
	"context"
	"errors"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/khatapp/backend-khata/internal/common"
	"github.com/khatapp/backend-khata/internal/db"
	"github.com/khatapp/backend-khata/internal/gst"
	"github.com/khatapp/backend-khata/internal/tenant"
)

var slugPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9-]{1,62}$`)

// Store is the persistence surface for company management.
type Store interface {
	CreateCompany(ctx context.Context, c *db.Company) error
	GetCompany(ctx context.Context, id uuid.UUID) (*db.Company, error)
	UpdateCompany(ctx context.Context, c *db.Company) error
}

// Handler exposes company onboarding and profile endpoints.
type Handler struct {
	Store    Store
	Validate *validator.Validate
}

type createRequest struct {
	Slug      string `json:"slug" validate:"required"`
	Name      string `json:"name" validate:"required,min=2,max=160"`
	GSTIN     string `json:"gstin"`
	StateCode string `json:"state_code"`
}

type updateRequest struct {
	Name      string `json:"name" validate:"required,min=2,max=160"`
	GSTIN     string `json:"gstin"`
	StateCode string `json:"state_code"`
}

type companyResponse struct {
	ID        string    `json:"id"`
	Slug      string    `json:"slug"`
	Name      string    `json:"name"`
	GSTIN     string    `json:"gstin,omitempty"`
	StateCode string    `json:"state_code,omitempty"`
	StateName string    `json:"state_name,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Create handles POST /api/v1/companies. This is the tenant bootstrap
// endpoint; users register under the company slug afterwards.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := common.DecodeJSON(r, &req); err != nil {
		common.WriteError(w, err)
		return
	}
	if h.Validate != nil {
		if err := h.Validate.Struct(req); err != nil {
			common.WriteError(w, common.BadRequest("invalid company", err.Error()))
			return
		}
	}
	slug := strings.ToLower(strings.TrimSpace(req.Slug))
	if !slugPattern.MatchString(slug) {
		common.WriteError(w, common.BadRequest("slug must be lowercase letters, digits, and hyphens", nil))
		return
	}
	gstin, stateCode, err := normalizeTaxIdentity(req.GSTIN, req.StateCode)
	if err != nil {
		common.WriteError(w, err)
		return
	}

	company := db.Company{
		Slug:      slug,
		Name:      strings.TrimSpace(req.Name),
		GSTIN:     gstin,
		StateCode: stateCode,
	}
	if err := h.Store.CreateCompany(r.Context(), &company); err != nil {
		if errors.Is(err, db.ErrDuplicate) {
			common.WriteError(w, common.Conflict("company slug already taken", err))
			return
		}
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusCreated, map[string]any{"data": toResponse(company)})
}

// Get handles GET /api/v1/company, returning the authenticated company.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	companyID, ok := companyFrom(r)
	if !ok {
		common.WriteError(w, common.BadRequest("company scope is required", nil))
		return
	}
	company, err := h.Store.GetCompany(r.Context(), companyID)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			common.WriteError(w, common.NotFound("company not found"))
			return
		}
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": toResponse(*company)})
}

// Update handles PUT /api/v1/company.
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	companyID, ok := companyFrom(r)
	if !ok {
		common.WriteError(w, common.BadRequest("company scope is required", nil))
		return
	}
	var req updateRequest
	if err := common.DecodeJSON(r, &req); err != nil {
		common.WriteError(w, err)
		return
	}
	if h.Validate != nil {
		if err := h.Validate.Struct(req); err != nil {
			common.WriteError(w, common.BadRequest("invalid company", err.Error()))
			return
		}
	}
	gstin, stateCode, err := normalizeTaxIdentity(req.GSTIN, req.StateCode)
	if err != nil {
		common.WriteError(w, err)
		return
	}

	company, err := h.Store.GetCompany(r.Context(), companyID)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			common.WriteError(w, common.NotFound("company not found"))
			return
		}
		common.WriteError(w, err)
		return
	}
	company.Name = strings.TrimSpace(req.Name)
	company.GSTIN = gstin
	company.StateCode = stateCode
	if err := h.Store.UpdateCompany(r.Context(), company); err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": toResponse(*company)})
}

// normalizeTaxIdentity validates the GSTIN and reconciles it with the state
// code. The GSTIN prefix wins when the caller omits the state.
func normalizeTaxIdentity(gstin, stateCode string) (string, string, error) {
	gstin = strings.ToUpper(strings.TrimSpace(gstin))
	stateCode = strings.TrimSpace(stateCode)
	if gstin != "" {
		if err := gst.ValidateGSTIN(gstin); err != nil {
			return "", "", common.BadRequest(err.Error(), nil)
		}
		derived, err := gst.StateCodeFromGSTIN(gstin)
		if err != nil {
			return "", "", common.BadRequest(err.Error(), nil)
		}
		if stateCode == "" {
			stateCode = derived
		} else if stateCode != derived {
			return "", "", common.BadRequest("state code does not match gstin", nil)
		}
	}
	if stateCode != "" && !gst.ValidStateCode(stateCode) {
		return "", "", common.BadRequest("unknown state code", nil)
	}
	return gstin, stateCode, nil
}

func toResponse(c db.Company) companyResponse {
	return companyResponse{
		ID:        c.ID.String(),
		Slug:      c.Slug,
		Name:      c.Name,
		GSTIN:     c.GSTIN,
		StateCode: c.StateCode,
		StateName: gst.StateName(c.StateCode),
		CreatedAt: c.CreatedAt,
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
