package db

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Company is a tenant of the platform. StateCode is the GST state code the
// company is registered in and decides inter vs intra state tax routing.
type Company struct {
	ID        uuid.UUID
	Slug      string
	Name      string
	GSTIN     string
	StateCode string
	CreatedAt time.Time
	UpdatedAt time.Time
}

const companyColumns = `id, slug, name, gstin, state_code, created_at, updated_at`

// CreateCompany inserts a company row.
func (s *Store) CreateCompany(ctx context.Context, c *Company) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	now := time.Now().UTC()
	c.CreatedAt = now
	c.UpdatedAt = now
	const q = `
		INSERT INTO companies (id, slug, name, gstin, state_code, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`
	_, err := s.q.Exec(ctx, q, c.ID, c.Slug, c.Name, c.GSTIN, c.StateCode, c.CreatedAt, c.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("insert company: %w", err)
	}
	return nil
}

// GetCompanyBySlug looks a company up by its URL slug.
func (s *Store) GetCompanyBySlug(ctx context.Context, slug string) (*Company, error) {
	const q = `SELECT ` + companyColumns + ` FROM companies WHERE slug = $1`
	var c Company
	err := s.q.QueryRow(ctx, q, slug).Scan(&c.ID, &c.Slug, &c.Name, &c.GSTIN, &c.StateCode, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, wrapScan("get company by slug", err)
	}
	return &c, nil
}

// GetCompany looks a company up by id.
func (s *Store) GetCompany(ctx context.Context, id uuid.UUID) (*Company, error) {
	const q = `SELECT ` + companyColumns + ` FROM companies WHERE id = $1`
	var c Company
	err := s.q.QueryRow(ctx, q, id).Scan(&c.ID, &c.Slug, &c.Name, &c.GSTIN, &c.StateCode, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, wrapScan("get company", err)
	}
	return &c, nil
}

// UpdateCompany persists mutable company fields.
func (s *Store) UpdateCompany(ctx context.Context, c *Company) error {
	c.UpdatedAt = time.Now().UTC()
	const q = `
		UPDATE companies
		SET name = $2, gstin = $3, state_code = $4, updated_at = $5
		WHERE id = $1`
	tag, err := s.q.Exec(ctx, q, c.ID, c.Name, c.GSTIN, c.StateCode, c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update company: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
