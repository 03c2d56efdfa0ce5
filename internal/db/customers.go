package db

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Customer is a billed party. GSTIN and PAN are optional for unregistered
// customers; StateCode is the customer's place-of-supply default.
type Customer struct {
	ID        uuid.UUID
	CompanyID uuid.UUID
	Name      string
	Email     string
	Phone     string
	GSTIN     string
	PAN       string
	StateCode string
	CreatedAt time.Time
	UpdatedAt time.Time
}

const customerColumns = `id, company_id, name, email, phone, gstin, pan, state_code, created_at, updated_at`

// CreateCustomer inserts a customer row.
func (s *Store) CreateCustomer(ctx context.Context, c *Customer) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	now := time.Now().UTC()
	c.CreatedAt = now
	c.UpdatedAt = now
	const q = `
		INSERT INTO customers (id, company_id, name, email, phone, gstin, pan, state_code, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	_, err := s.q.Exec(ctx, q,
		c.ID, c.CompanyID, c.Name, c.Email, c.Phone, c.GSTIN, c.PAN, c.StateCode, c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("insert customer: %w", err)
	}
	return nil
}

// GetCustomer fetches a customer scoped to a company.
func (s *Store) GetCustomer(ctx context.Context, companyID, id uuid.UUID) (*Customer, error) {
	const q = `SELECT ` + customerColumns + ` FROM customers WHERE company_id = $1 AND id = $2`
	var c Customer
	err := s.q.QueryRow(ctx, q, companyID, id).Scan(
		&c.ID, &c.CompanyID, &c.Name, &c.Email, &c.Phone, &c.GSTIN, &c.PAN, &c.StateCode, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, wrapScan("get customer", err)
	}
	return &c, nil
}

// ListCustomers returns a page of customers plus the total count.
func (s *Store) ListCustomers(ctx context.Context, companyID uuid.UUID, limit, offset int) ([]Customer, int64, error) {
	const countQ = `SELECT count(*) FROM customers WHERE company_id = $1`
	var total int64
	if err := s.q.QueryRow(ctx, countQ, companyID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count customers: %w", err)
	}

	const q = `
		SELECT ` + customerColumns + `
		FROM customers
		WHERE company_id = $1
		ORDER BY created_at DESC, id
		LIMIT $2 OFFSET $3`
	rows, err := s.q.Query(ctx, q, companyID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list customers: %w", err)
	}
	defer rows.Close()

	var out []Customer
	for rows.Next() {
		var c Customer
		if err := rows.Scan(
			&c.ID, &c.CompanyID, &c.Name, &c.Email, &c.Phone, &c.GSTIN, &c.PAN, &c.StateCode, &c.CreatedAt, &c.UpdatedAt,
		); err != nil {
			return nil, 0, fmt.Errorf("scan customer: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate customers: %w", err)
	}
	return out, total, nil
}

// UpdateCustomer persists mutable customer fields.
func (s *Store) UpdateCustomer(ctx context.Context, c *Customer) error {
	c.UpdatedAt = time.Now().UTC()
	const q = `
		UPDATE customers
		SET name = $3, email = $4, phone = $5, gstin = $6, pan = $7, state_code = $8, updated_at = $9
		WHERE company_id = $1 AND id = $2`
	tag, err := s.q.Exec(ctx, q,
		c.CompanyID, c.ID, c.Name, c.Email, c.Phone, c.GSTIN, c.PAN, c.StateCode, c.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update customer: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteCustomer removes a customer row.
func (s *Store) DeleteCustomer(ctx context.Context, companyID, id uuid.UUID) error {
	const q = `DELETE FROM customers WHERE company_id = $1 AND id = $2`
	tag, err := s.q.Exec(ctx, q, companyID, id)
	if err != nil {
		return fmt.Errorf("delete customer: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
