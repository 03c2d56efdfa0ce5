package notify

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/khatapp/backend-khata/internal/cache"
	"github.com/khatapp/backend-khata/internal/common"
	"github.com/khatapp/backend-khata/internal/db"
	"github.com/khatapp/backend-khata/internal/tenant"
)

// Handler exposes webhook endpoint management.
type Handler struct {
	Store    Store
	Cache    *cache.Cache
	Validate *validator.Validate
}

// Routes mounts webhook endpoint management onto r.
func (h *Handler) Routes(r chi.Router) {
	r.Route("/webhooks", func(r chi.Router) {
		r.Post("/", h.Create)
		r.Get("/", h.List)
		r.Delete("/{id}", h.Delete)
	})
}

type createEndpointRequest struct {
	URL string `json:"url" validate:"required,url"`
}

type endpointResponse struct {
	ID        string `json:"id"`
	URL       string `json:"url"`
	Secret    string `json:"secret,omitempty"`
	Active    bool   `json:"active"`
	CreatedAt string `json:"created_at"`
}

// Create handles POST /api/v1/webhooks. The signing secret is generated
// server side and returned once in the creation response.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	companyID, ok := companyFrom(r)
	if !ok {
		common.WriteError(w, common.BadRequest("company scope is required", nil))
		return
	}
	var req createEndpointRequest
	if err := common.DecodeJSON(r, &req); err != nil {
		common.WriteError(w, err)
		return
	}
	if h.Validate != nil {
		if err := h.Validate.Struct(req); err != nil {
			common.WriteError(w, common.BadRequest("invalid webhook endpoint", err.Error()))
			return
		}
	}
	if err := validateURL(strings.TrimSpace(req.URL)); err != nil {
		common.WriteError(w, common.BadRequest(err.Error(), nil))
		return
	}

	secret, err := generateSecret()
	if err != nil {
		common.WriteError(w, err)
		return
	}
	endpoint := db.WebhookEndpoint{
		CompanyID: companyID,
		URL:       strings.TrimSpace(req.URL),
		Secret:    secret,
		Active:    true,
	}
	if err := h.Store.CreateWebhookEndpoint(r.Context(), &endpoint); err != nil {
		if errors.Is(err, db.ErrDuplicate) {
			common.WriteError(w, common.Conflict("webhook endpoint already registered", err))
			return
		}
		common.WriteError(w, err)
		return
	}
	_ = h.Cache.Delete(r.Context(), cache.EndpointsKey(companyID.String()))
	common.JSON(w, http.StatusCreated, map[string]any{"data": endpointResponse{
		ID:        endpoint.ID.String(),
		URL:       endpoint.URL,
		Secret:    endpoint.Secret,
		Active:    endpoint.Active,
		CreatedAt: endpoint.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
	}})
}

// List handles GET /api/v1/webhooks. Secrets are never echoed back.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	companyID, ok := companyFrom(r)
	if !ok {
		common.WriteError(w, common.BadRequest("company scope is required", nil))
		return
	}
	endpoints, err := h.Store.ListActiveWebhookEndpoints(r.Context(), companyID)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	out := make([]endpointResponse, 0, len(endpoints))
	for _, ep := range endpoints {
		out = append(out, endpointResponse{
			ID:        ep.ID.String(),
			URL:       ep.URL,
			Active:    ep.Active,
			CreatedAt: ep.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
		})
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": out})
}

// Delete handles DELETE /api/v1/webhooks/{id}.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	companyID, ok := companyFrom(r)
	if !ok {
		common.WriteError(w, common.BadRequest("company scope is required", nil))
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		common.WriteError(w, common.BadRequest("invalid webhook id", nil))
		return
	}
	if err := h.Store.DeleteWebhookEndpoint(r.Context(), companyID, id); err != nil {
		if errors.Is(err, db.ErrNotFound) {
			common.WriteError(w, common.NotFound("webhook endpoint not found"))
			return
		}
		common.WriteError(w, err)
		return
	}
	_ = h.Cache.Delete(r.Context(), cache.EndpointsKey(companyID.String()))
	w.WriteHeader(http.StatusNoContent)
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

func generateSecret() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return "whsec_" + hex.EncodeToString(buf), nil
}
