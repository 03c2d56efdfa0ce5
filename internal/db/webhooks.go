package db

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// WebhookEndpoint is a subscriber URL registered by a company. Secret signs
// delivery payloads with HMAC-SHA256.
type WebhookEndpoint struct {
	ID        uuid.UUID
	CompanyID uuid.UUID
	URL       string
	Secret    string
	Active    bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// WebhookDelivery tracks the delivery of one event to one endpoint.
type WebhookDelivery struct {
	ID         uuid.UUID
	EndpointID uuid.UUID
	EventID    uuid.UUID
	Status     string
	Attempts   int
	LastError  string
	UpdatedAt  time.Time
	CreatedAt  time.Time
}

const webhookEndpointColumns = `id, company_id, url, secret, active, created_at, updated_at`

// CreateWebhookEndpoint registers a subscriber URL.
func (s *Store) CreateWebhookEndpoint(ctx context.Context, ep *WebhookEndpoint) error {
	if ep.ID == uuid.Nil {
		ep.ID = uuid.New()
	}
	now := time.Now().UTC()
	ep.CreatedAt = now
	ep.UpdatedAt = now
	const q = `
		INSERT INTO webhook_endpoints (id, company_id, url, secret, active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`
	_, err := s.q.Exec(ctx, q, ep.ID, ep.CompanyID, ep.URL, ep.Secret, ep.Active, ep.CreatedAt, ep.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("insert webhook endpoint: %w", err)
	}
	return nil
}

// GetWebhookEndpoint fetches one endpoint scoped to a company.
func (s *Store) GetWebhookEndpoint(ctx context.Context, companyID, id uuid.UUID) (*WebhookEndpoint, error) {
	const q = `SELECT ` + webhookEndpointColumns + ` FROM webhook_endpoints WHERE company_id = $1 AND id = $2`
	var ep WebhookEndpoint
	err := s.q.QueryRow(ctx, q, companyID, id).Scan(
		&ep.ID, &ep.CompanyID, &ep.URL, &ep.Secret, &ep.Active, &ep.CreatedAt, &ep.UpdatedAt,
	)
	if err != nil {
		return nil, wrapScan("get webhook endpoint", err)
	}
	return &ep, nil
}

// ListActiveWebhookEndpoints returns the active endpoints of a company.
func (s *Store) ListActiveWebhookEndpoints(ctx context.Context, companyID uuid.UUID) ([]WebhookEndpoint, error) {
	const q = `
		SELECT ` + webhookEndpointColumns + `
		FROM webhook_endpoints
		WHERE company_id = $1 AND active
		ORDER BY created_at`
	rows, err := s.q.Query(ctx, q, companyID)
	if err != nil {
		return nil, fmt.Errorf("list webhook endpoints: %w", err)
	}
	defer rows.Close()

	var out []WebhookEndpoint
	for rows.Next() {
		var ep WebhookEndpoint
		if err := rows.Scan(
			&ep.ID, &ep.CompanyID, &ep.URL, &ep.Secret, &ep.Active, &ep.CreatedAt, &ep.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan webhook endpoint: %w", err)
		}
		out = append(out, ep)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate webhook endpoints: %w", err)
	}
	return out, nil
}

// DeleteWebhookEndpoint unregisters a subscriber URL.
func (s *Store) DeleteWebhookEndpoint(ctx context.Context, companyID, id uuid.UUID) error {
	const q = `DELETE FROM webhook_endpoints WHERE company_id = $1 AND id = $2`
	tag, err := s.q.Exec(ctx, q, companyID, id)
	if err != nil {
		return fmt.Errorf("delete webhook endpoint: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// UpsertWebhookDelivery records a delivery attempt outcome, creating the
// tracking row on first attempt.
func (s *Store) UpsertWebhookDelivery(ctx context.Context, d *WebhookDelivery) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	now := time.Now().UTC()
	d.UpdatedAt = now
	if d.CreatedAt.IsZero() {
		d.CreatedAt = now
	}
	const q = `
		INSERT INTO webhook_deliveries (id, endpoint_id, event_id, status, attempts, last_error, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (endpoint_id, event_id)
		DO UPDATE SET status = EXCLUDED.status, attempts = EXCLUDED.attempts,
			last_error = EXCLUDED.last_error, updated_at = EXCLUDED.updated_at`
	_, err := s.q.Exec(ctx, q, d.ID, d.EndpointID, d.EventID, d.Status, d.Attempts, d.LastError, d.CreatedAt, d.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert webhook delivery: %w", err)
	}
	return nil
}

// GetWebhookDelivery fetches the delivery record for an endpoint/event pair.
func (s *Store) GetWebhookDelivery(ctx context.Context, endpointID, eventID uuid.UUID) (*WebhookDelivery, error) {
	const q = `
		SELECT id, endpoint_id, event_id, status, attempts, last_error, created_at, updated_at
		FROM webhook_deliveries
		WHERE endpoint_id = $1 AND event_id = $2`
	var d WebhookDelivery
	err := s.q.QueryRow(ctx, q, endpointID, eventID).Scan(
		&d.ID, &d.EndpointID, &d.EventID, &d.Status, &d.Attempts, &d.LastError, &d.CreatedAt, &d.UpdatedAt,
	)
	if err != nil {
		return nil, wrapScan("get webhook delivery", err)
	}
	return &d, nil
}
