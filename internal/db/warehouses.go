package db

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Warehouse is a stock location. Priority orders allocation preference;
// lower numbers are drawn from first. IsDefault marks the location that
// absorbs unresolvable allocations.
type Warehouse struct {
	ID        uuid.UUID
	CompanyID uuid.UUID
	Name      string
	Code      string
	Priority  int
	IsDefault bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// StockLevel is the on-hand quantity for one SKU at one warehouse. A nil
// WarehouseID tracks stock held at the company's default location.
type StockLevel struct {
	CompanyID   uuid.UUID
	WarehouseID *uuid.UUID
	SKU         string
	Quantity    float64
	UpdatedAt   time.Time
}

const warehouseColumns = `id, company_id, name, code, priority, is_default, created_at, updated_at`

// CreateWarehouse inserts a warehouse row.
func (s *Store) CreateWarehouse(ctx context.Context, w *Warehouse) error {
	if w.ID == uuid.Nil {
		w.ID = uuid.New()
	}
	now := time.Now().UTC()
	w.CreatedAt = now
	w.UpdatedAt = now
	const q = `
		INSERT INTO warehouses (id, company_id, name, code, priority, is_default, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	_, err := s.q.Exec(ctx, q, w.ID, w.CompanyID, w.Name, w.Code, w.Priority, w.IsDefault, w.CreatedAt, w.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("insert warehouse: %w", err)
	}
	return nil
}

// GetWarehouse fetches a warehouse scoped to a company.
func (s *Store) GetWarehouse(ctx context.Context, companyID, id uuid.UUID) (*Warehouse, error) {
	const q = `SELECT ` + warehouseColumns + ` FROM warehouses WHERE company_id = $1 AND id = $2`
	var w Warehouse
	err := s.q.QueryRow(ctx, q, companyID, id).Scan(
		&w.ID, &w.CompanyID, &w.Name, &w.Code, &w.Priority, &w.IsDefault, &w.CreatedAt, &w.UpdatedAt,
	)
	if err != nil {
		return nil, wrapScan("get warehouse", err)
	}
	return &w, nil
}

// ListWarehouses returns every warehouse of a company ordered by allocation
// priority.
func (s *Store) ListWarehouses(ctx context.Context, companyID uuid.UUID) ([]Warehouse, error) {
	const q = `
		SELECT ` + warehouseColumns + `
		FROM warehouses
		WHERE company_id = $1
		ORDER BY priority, created_at`
	rows, err := s.q.Query(ctx, q, companyID)
	if err != nil {
		return nil, fmt.Errorf("list warehouses: %w", err)
	}
	defer rows.Close()

	var out []Warehouse
	for rows.Next() {
		var w Warehouse
		if err := rows.Scan(
			&w.ID, &w.CompanyID, &w.Name, &w.Code, &w.Priority, &w.IsDefault, &w.CreatedAt, &w.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan warehouse: %w", err)
		}
		out = append(out, w)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate warehouses: %w", err)
	}
	return out, nil
}

// UpdateWarehouse persists mutable warehouse fields.
func (s *Store) UpdateWarehouse(ctx context.Context, w *Warehouse) error {
	w.UpdatedAt = time.Now().UTC()
	const q = `
		UPDATE warehouses
		SET name = $3, code = $4, priority = $5, is_default = $6, updated_at = $7
		WHERE company_id = $1 AND id = $2`
	tag, err := s.q.Exec(ctx, q, w.CompanyID, w.ID, w.Name, w.Code, w.Priority, w.IsDefault, w.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update warehouse: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// GetStockLevels returns per-warehouse availability for one SKU. Rows with a
// NULL warehouse_id represent default-location stock.
func (s *Store) GetStockLevels(ctx context.Context, companyID uuid.UUID, sku string) ([]StockLevel, error) {
	const q = `
		SELECT company_id, warehouse_id, sku, quantity, updated_at
		FROM stock_levels
		WHERE company_id = $1 AND sku = $2`
	rows, err := s.q.Query(ctx, q, companyID, sku)
	if err != nil {
		return nil, fmt.Errorf("get stock levels: %w", err)
	}
	defer rows.Close()

	var out []StockLevel
	for rows.Next() {
		var lvl StockLevel
		if err := rows.Scan(&lvl.CompanyID, &lvl.WarehouseID, &lvl.SKU, &lvl.Quantity, &lvl.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan stock level: %w", err)
		}
		out = append(out, lvl)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate stock levels: %w", err)
	}
	return out, nil
}

// AdjustStock adds delta to the on-hand quantity of a SKU at a warehouse,
// inserting the level row when absent. Negative deltas are allowed; levels
// may go below zero to represent backordered quantity.
func (s *Store) AdjustStock(ctx context.Context, companyID uuid.UUID, warehouseID *uuid.UUID, sku string, delta float64) error {
	now := time.Now().UTC()
	if warehouseID == nil {
		const q = `
			INSERT INTO stock_levels (company_id, warehouse_id, sku, quantity, updated_at)
			VALUES ($1, NULL, $2, $3, $4)
			ON CONFLICT (company_id, sku) WHERE warehouse_id IS NULL
			DO UPDATE SET quantity = stock_levels.quantity + EXCLUDED.quantity, updated_at = EXCLUDED.updated_at`
		if _, err := s.q.Exec(ctx, q, companyID, sku, delta, now); err != nil {
			return fmt.Errorf("adjust default stock: %w", err)
		}
		return nil
	}
	const q = `
		INSERT INTO stock_levels (company_id, warehouse_id, sku, quantity, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (company_id, warehouse_id, sku) WHERE warehouse_id IS NOT NULL
		DO UPDATE SET quantity = stock_levels.quantity + EXCLUDED.quantity, updated_at = EXCLUDED.updated_at`
	if _, err := s.q.Exec(ctx, q, companyID, *warehouseID, sku, delta, now); err != nil {
		return fmt.Errorf("adjust stock: %w", err)
	}
	return nil
}
