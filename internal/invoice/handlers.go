package invoice

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/khatapp/backend-khata/internal/common"
	"github.com/khatapp/backend-khata/internal/obs"
	"github.com/khatapp/backend-khata/internal/tenant"
)

// Handler exposes invoice endpoints over chi.
type Handler struct {
	Service *Service
}

// Routes mounts the invoice and tax preview endpoints onto r.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/tax/preview", h.PreviewTax)
	r.Route("/invoices", func(r chi.Router) {
		r.Post("/", h.Create)
		r.Get("/", h.List)
		r.Get("/{id}", h.Get)
		r.Post("/{id}/actions/{action}", h.Transition)
		r.Post("/{id}/payments", h.RecordPayment)
	})
}

type previewRequest struct {
	PlaceOfSupply string      `json:"place_of_supply"`
	HomeState     string      `json:"home_state"`
	Lines         []LineInput `json:"lines"`
}

// PreviewTax handles POST /api/v1/tax/preview. It computes line amounts and
// document totals without touching storage. When home_state is omitted the
// company's registered state is used.
func (h *Handler) PreviewTax(w http.ResponseWriter, r *http.Request) {
	companyID, ok := companyFrom(r)
	if !ok {
		common.WriteError(w, common.BadRequest("company scope is required", nil))
		return
	}
	var req previewRequest
	if err := common.DecodeJSON(r, &req); err != nil {
		common.WriteError(w, err)
		return
	}
	if len(req.Lines) == 0 {
		common.WriteError(w, common.BadRequest("preview requires at least one line", nil))
		return
	}
	homeState := strings.TrimSpace(req.HomeState)
	if homeState == "" {
		company, err := h.Service.Store.GetCompany(r.Context(), companyID)
		if err != nil {
			common.WriteError(w, err)
			return
		}
		homeState = company.StateCode
	}
	lines, totals := Preview(req.Lines, strings.TrimSpace(req.PlaceOfSupply), homeState)
	if obs.TaxPreviewsTotal != nil {
		obs.TaxPreviewsTotal.Inc()
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": map[string]any{
		"lines":  lines,
		"totals": totals,
	}})
}

// Create handles POST /api/v1/invoices.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	companyID, ok := companyFrom(r)
	if !ok {
		common.WriteError(w, common.BadRequest("company scope is required", nil))
		return
	}
	var req CreateInput
	if err := common.DecodeJSON(r, &req); err != nil {
		common.WriteError(w, err)
		return
	}
	view, err := h.Service.Create(r.Context(), companyID, req)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusCreated, map[string]any{"data": view})
}

// List handles GET /api/v1/invoices with optional status filter.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	companyID, ok := companyFrom(r)
	if !ok {
		common.WriteError(w, common.BadRequest("company scope is required", nil))
		return
	}
	page, perPage := common.ParsePagination(r, 20)
	status := strings.TrimSpace(r.URL.Query().Get("status"))
	result, err := h.Service.List(r.Context(), companyID, status, perPage, (page-1)*perPage)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{
		"data": result.Invoices,
		"meta": common.Pagination{Page: page, PerPage: perPage, Total: result.Total},
	})
}

// Get handles GET /api/v1/invoices/{id}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	companyID, ok := companyFrom(r)
	if !ok {
		common.WriteError(w, common.BadRequest("company scope is required", nil))
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		common.WriteError(w, common.BadRequest("invalid invoice id", nil))
		return
	}
	view, err := h.Service.Get(r.Context(), companyID, id)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": view})
}

// Transition handles POST /api/v1/invoices/{id}/actions/{action} for the
// non-payment lifecycle actions.
func (h *Handler) Transition(w http.ResponseWriter, r *http.Request) {
	companyID, ok := companyFrom(r)
	if !ok {
		common.WriteError(w, common.BadRequest("company scope is required", nil))
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		common.WriteError(w, common.BadRequest("invalid invoice id", nil))
		return
	}
	action := Action(strings.TrimSpace(chi.URLParam(r, "action")))
	switch action {
	case ActionFinalize, ActionCancel, ActionVoid, ActionRefund, ActionWriteOff:
	default:
		common.WriteError(w, common.BadRequest("unknown invoice action", nil))
		return
	}
	view, err := h.Service.Apply(r.Context(), companyID, id, action)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": view})
}

type paymentRequest struct {
	Amount    float64 `json:"amount"`
	Method    string  `json:"method"`
	Reference string  `json:"reference"`
}

// RecordPayment handles POST /api/v1/invoices/{id}/payments.
func (h *Handler) RecordPayment(w http.ResponseWriter, r *http.Request) {
	companyID, ok := companyFrom(r)
	if !ok {
		common.WriteError(w, common.BadRequest("company scope is required", nil))
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		common.WriteError(w, common.BadRequest("invalid invoice id", nil))
		return
	}
	var req paymentRequest
	if err := common.DecodeJSON(r, &req); err != nil {
		common.WriteError(w, err)
		return
	}
	view, err := h.Service.RecordPayment(r.Context(), companyID, id, req.Amount, req.Method, req.Reference)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": view})
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
