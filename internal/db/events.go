package db

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// DomainEvent is an outbox row describing something that happened to an
// aggregate. Payload carries the JSON body delivered to subscribers.
type DomainEvent struct {
	ID          uuid.UUID
	CompanyID   uuid.UUID
	Topic       string
	AggregateID uuid.UUID
	Payload     []byte
	CreatedAt   time.Time
	PublishedAt *time.Time
}

// CreateDomainEvent appends an event to the outbox.
func (s *Store) CreateDomainEvent(ctx context.Context, e *DomainEvent) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	e.CreatedAt = time.Now().UTC()
	const q = `
		INSERT INTO domain_events (id, company_id, topic, aggregate_id, payload, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`
	_, err := s.q.Exec(ctx, q, e.ID, e.CompanyID, e.Topic, e.AggregateID, e.Payload, e.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert domain event: %w", err)
	}
	return nil
}

// GetDomainEvent fetches one event by id.
func (s *Store) GetDomainEvent(ctx context.Context, id uuid.UUID) (*DomainEvent, error) {
	const q = `
		SELECT id, company_id, topic, aggregate_id, payload, created_at, published_at
		FROM domain_events WHERE id = $1`
	var e DomainEvent
	err := s.q.QueryRow(ctx, q, id).Scan(
		&e.ID, &e.CompanyID, &e.Topic, &e.AggregateID, &e.Payload, &e.CreatedAt, &e.PublishedAt,
	)
	if err != nil {
		return nil, wrapScan("get domain event", err)
	}
	return &e, nil
}

// ListUnpublishedEvents returns pending outbox rows, oldest first.
func (s *Store) ListUnpublishedEvents(ctx context.Context, limit int) ([]DomainEvent, error) {
	const q = `
		SELECT id, company_id, topic, aggregate_id, payload, created_at, published_at
		FROM domain_events
		WHERE published_at IS NULL
		ORDER BY created_at
		LIMIT $1`
	rows, err := s.q.Query(ctx, q, limit)
	if err != nil {
		return nil, fmt.Errorf("list unpublished events: %w", err)
	}
	defer rows.Close()

	var out []DomainEvent
	for rows.Next() {
		var e DomainEvent
		if err := rows.Scan(
			&e.ID, &e.CompanyID, &e.Topic, &e.AggregateID, &e.Payload, &e.CreatedAt, &e.PublishedAt,
		); err != nil {
			return nil, fmt.Errorf("scan domain event: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate domain events: %w", err)
	}
	return out, nil
}

// MarkEventPublished stamps an outbox row as handed off to delivery.
func (s *Store) MarkEventPublished(ctx context.Context, id uuid.UUID) error {
	const q = `UPDATE domain_events SET published_at = $2 WHERE id = $1 AND published_at IS NULL`
	_, err := s.q.Exec(ctx, q, id, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("mark event published: %w", err)
	}
	return nil
}
