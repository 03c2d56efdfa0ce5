package notify

import (
	"context"

	"github.com/google/uuid"

	"github.com/khatapp/backend-khata/internal/db"
)

// Store is the persistence surface webhook scheduling and delivery need.
type Store interface {
	ListActiveWebhookEndpoints(ctx context.Context, companyID uuid.UUID) ([]db.WebhookEndpoint, error)
	GetWebhookEndpoint(ctx context.Context, companyID, id uuid.UUID) (*db.WebhookEndpoint, error)
	CreateWebhookEndpoint(ctx context.Context, ep *db.WebhookEndpoint) error
	DeleteWebhookEndpoint(ctx context.Context, companyID, id uuid.UUID) error
	GetDomainEvent(ctx context.Context, id uuid.UUID) (*db.DomainEvent, error)
	UpsertWebhookDelivery(ctx context.Context, d *db.WebhookDelivery) error
	GetWebhookDelivery(ctx context.Context, endpointID, eventID uuid.UUID) (*db.WebhookDelivery, error)
}
