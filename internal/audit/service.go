package audit

import (
	"context"
	"errors"
	"math/rand"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/khatapp/backend-khata/internal/common"
	"github.com/khatapp/backend-khata/internal/db"
	"github.com/khatapp/backend-khata/internal/obs"
	"github.com/khatapp/backend-khata/internal/tenant"
)

// ActorKind represents the source of an audited action.
type ActorKind string

const (
	ActorKindUser      ActorKind = "user"
	ActorKindSystem    ActorKind = "system"
	ActorKindAnonymous ActorKind = "anonymous"
)

// Actor describes the entity performing the action.
type Actor struct {
	Kind   ActorKind
	UserID *uuid.UUID
}

// Store defines the database operations required for auditing.
type Store interface {
	InsertAuditLog(ctx context.Context, entry *db.AuditLog) error
	ListAuditLogs(ctx context.Context, companyID uuid.UUID, limit, offset int) ([]db.AuditLog, error)
}

// Service persists audit entries for company data mutations.
type Service struct {
	Store        Store
	Enabled      bool
	SamplingRate float64
}

// Record persists one audit entry when auditing is enabled. Entries without a
// resolvable company scope are dropped; the trail is per company.
func (s Service) Record(ctx context.Context, actor Actor, action, resourceType, resourceID string, req *http.Request, status int, metadata []byte) error {
	if !s.Enabled {
		return nil
	}
	if s.SamplingRate > 0 && s.SamplingRate < 1 {
		if rand.Float64() > s.SamplingRate {
			return nil
		}
	}
	if req == nil {
		return errors.New("audit: request is required")
	}
	if s.Store == nil {
		return errors.New("audit: store not configured")
	}
	raw, ok := tenant.FromContext(ctx)
	if !ok {
		return nil
	}
	companyID, err := uuid.Parse(raw)
	if err != nil {
		return nil
	}

	route := obs.RoutePatternFromContext(req.Context())
	if route == "" {
		route = strings.TrimSpace(req.URL.Path)
	}
	if status == 0 {
		status = http.StatusOK
	}

	return s.Store.InsertAuditLog(ctx, &db.AuditLog{
		CompanyID:    companyID,
		ActorKind:    string(normalizeActorKind(actor.Kind)),
		ActorUserID:  actor.UserID,
		Action:       buildAction(action, req.Method, route),
		ResourceType: buildResource(resourceType, route),
		ResourceID:   strings.TrimSpace(resourceID),
		Method:       req.Method,
		Path:         req.URL.Path,
		Route:        route,
		Status:       status,
		IP:           common.ClientIP(req),
		UserAgent:    strings.TrimSpace(req.Header.Get("User-Agent")),
		RequestID:    strings.TrimSpace(req.Header.Get("X-Request-ID")),
		Metadata:     metadata,
	})
}

func buildAction(action, method, route string) string {
	trimmed := strings.TrimSpace(action)
	if trimmed != "" {
		return trimmed
	}
	target := route
	if target == "" {
		target = "/"
	}
	return strings.ToUpper(strings.TrimSpace(method)) + " " + target
}

func buildResource(resourceType, route string) string {
	trimmed := strings.TrimSpace(resourceType)
	if trimmed != "" {
		return trimmed
	}
	route = strings.Trim(route, " /")
	if route == "" {
		return "unknown"
	}
	segments := strings.Split(route, "/")
	if len(segments) >= 3 && segments[0] == "api" && segments[1] == "v1" {
		return strings.Join(segments[2:], ".")
	}
	return strings.ReplaceAll(route, "/", ".")
}

func normalizeActorKind(kind ActorKind) ActorKind {
	switch kind {
	case ActorKindUser, ActorKindSystem:
		return kind
	default:
		return ActorKindAnonymous
	}
}
