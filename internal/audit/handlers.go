package audit

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/khatapp/backend-khata/internal/common"
	"github.com/khatapp/backend-khata/internal/tenant"
)

// Handler exposes the audit trail to administrators.
type Handler struct {
	Store Store
}

type entryResponse struct {
	ID           string    `json:"id"`
	ActorKind    string    `json:"actor_kind"`
	ActorUserID  string    `json:"actor_user_id,omitempty"`
	Action       string    `json:"action"`
	ResourceType string    `json:"resource_type"`
	ResourceID   string    `json:"resource_id,omitempty"`
	Status       int       `json:"status"`
	IP           string    `json:"ip,omitempty"`
	RequestID    string    `json:"request_id,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// List handles GET /api/v1/audit-logs.
func (h Handler) List(w http.ResponseWriter, r *http.Request) {
	raw, ok := tenant.FromContext(r.Context())
	if !ok {
		common.WriteError(w, common.BadRequest("company scope is required", nil))
		return
	}
	companyID, err := uuid.Parse(raw)
	if err != nil {
		common.WriteError(w, common.BadRequest("company scope is required", nil))
		return
	}
	limit := common.AtoiDefault(r.URL.Query().Get("limit"), 50)
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	offset := common.AtoiDefault(r.URL.Query().Get("offset"), 0)
	if offset < 0 {
		offset = 0
	}

	entries, err := h.Store.ListAuditLogs(r.Context(), companyID, limit, offset)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	out := make([]entryResponse, 0, len(entries))
	for _, e := range entries {
		resp := entryResponse{
			ID:           e.ID.String(),
			ActorKind:    e.ActorKind,
			Action:       e.Action,
			ResourceType: e.ResourceType,
			ResourceID:   e.ResourceID,
			Status:       e.Status,
			IP:           e.IP,
			RequestID:    e.RequestID,
			CreatedAt:    e.CreatedAt,
		}
		if e.ActorUserID != nil {
			resp.ActorUserID = e.ActorUserID.String()
		}
		out = append(out, resp)
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": out})
}
