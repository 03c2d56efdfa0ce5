package db

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// AuditLog is one recorded mutation against company data.
type AuditLog struct {
	ID           uuid.UUID
	CompanyID    uuid.UUID
	ActorKind    string
	ActorUserID  *uuid.UUID
	Action       string
	ResourceType string
	ResourceID   string
	Method       string
	Path         string
	Route        string
	Status       int
	IP           string
	UserAgent    string
	RequestID    string
	Metadata     []byte
	CreatedAt    time.Time
}

// InsertAuditLog appends one audit entry.
func (s *Store) InsertAuditLog(ctx context.Context, entry *AuditLog) error {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	entry.CreatedAt = time.Now().UTC()
	const q = `
		INSERT INTO audit_logs (id, company_id, actor_kind, actor_user_id, action, resource_type,
			resource_id, method, path, route, status, ip, user_agent, request_id, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`
	_, err := s.q.Exec(ctx, q,
		entry.ID, entry.CompanyID, entry.ActorKind, entry.ActorUserID, entry.Action, entry.ResourceType,
		entry.ResourceID, entry.Method, entry.Path, entry.Route, entry.Status, entry.IP,
		entry.UserAgent, entry.RequestID, entry.Metadata, entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert audit log: %w", err)
	}
	return nil
}

// ListAuditLogs returns a company's audit entries, newest first.
func (s *Store) ListAuditLogs(ctx context.Context, companyID uuid.UUID, limit, offset int) ([]AuditLog, error) {
	const q = `
		SELECT id, company_id, actor_kind, actor_user_id, action, resource_type,
			resource_id, method, path, route, status, ip, user_agent, request_id, metadata, created_at
		FROM audit_logs
		WHERE company_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`
	rows, err := s.q.Query(ctx, q, companyID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list audit logs: %w", err)
	}
	defer rows.Close()

	var out []AuditLog
	for rows.Next() {
		var entry AuditLog
		if err := rows.Scan(
			&entry.ID, &entry.CompanyID, &entry.ActorKind, &entry.ActorUserID, &entry.Action, &entry.ResourceType,
			&entry.ResourceID, &entry.Method, &entry.Path, &entry.Route, &entry.Status, &entry.IP,
			&entry.UserAgent, &entry.RequestID, &entry.Metadata, &entry.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan audit log: %w", err)
		}
		out = append(out, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit logs: %w", err)
	}
	return out, nil
}
