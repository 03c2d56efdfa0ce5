package db

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Invoice is a persisted sales invoice. Monetary columns mirror the computed
// document totals at the time the invoice was last written.
type Invoice struct {
	ID            uuid.UUID
	CompanyID     uuid.UUID
	CustomerID    uuid.UUID
	Number        string
	Status        string
	PlaceOfSupply string
	InterState    bool
	Subtotal      float64
	Discount      float64
	Taxable       float64
	Tax           float64
	IGST          float64
	CGST          float64
	SGST          float64
	Total         float64
	AmountPaid    float64
	FinalizedAt   *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// InvoiceItem is one line of an invoice with its computed amounts.
type InvoiceItem struct {
	ID              uuid.UUID
	InvoiceID       uuid.UUID
	Position        int
	SKU             string
	Description     string
	Quantity        float64
	UnitPrice       float64
	DiscountPercent float64
	GSTRate         float64
	Inclusive       bool
	Subtotal        float64
	Discount        float64
	Taxable         float64
	Tax             float64
	Total           float64
}

// ItemAllocation records which warehouse fulfils what share of a line. A nil
// WarehouseID means the company default location.
type ItemAllocation struct {
	ID            uuid.UUID
	InvoiceItemID uuid.UUID
	WarehouseID   *uuid.UUID
	Quantity      float64
}

// Payment is money received against an invoice.
type Payment struct {
	ID        uuid.UUID
	InvoiceID uuid.UUID
	Amount    float64
	Method    string
	Reference string
	PaidAt    time.Time
}

const invoiceColumns = `id, company_id, customer_id, number, status, place_of_supply, inter_state,
	subtotal, discount, taxable, tax, igst, cgst, sgst, total, amount_paid,
	finalized_at, created_at, updated_at`

func scanInvoice(row interface{ Scan(...any) error }, inv *Invoice) error {
	return row.Scan(
		&inv.ID, &inv.CompanyID, &inv.CustomerID, &inv.Number, &inv.Status, &inv.PlaceOfSupply, &inv.InterState,
		&inv.Subtotal, &inv.Discount, &inv.Taxable, &inv.Tax, &inv.IGST, &inv.CGST, &inv.SGST, &inv.Total, &inv.AmountPaid,
		&inv.FinalizedAt, &inv.CreatedAt, &inv.UpdatedAt,
	)
}

// CreateInvoice inserts the invoice header.
func (s *Store) CreateInvoice(ctx context.Context, inv *Invoice) error {
	if inv.ID == uuid.Nil {
		inv.ID = uuid.New()
	}
	now := time.Now().UTC()
	inv.CreatedAt = now
	inv.UpdatedAt = now
	const q = `
		INSERT INTO invoices (id, company_id, customer_id, number, status, place_of_supply, inter_state,
			subtotal, discount, taxable, tax, igst, cgst, sgst, total, amount_paid,
			finalized_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)`
	_, err := s.q.Exec(ctx, q,
		inv.ID, inv.CompanyID, inv.CustomerID, inv.Number, inv.Status, inv.PlaceOfSupply, inv.InterState,
		inv.Subtotal, inv.Discount, inv.Taxable, inv.Tax, inv.IGST, inv.CGST, inv.SGST, inv.Total, inv.AmountPaid,
		inv.FinalizedAt, inv.CreatedAt, inv.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("insert invoice: %w", err)
	}
	return nil
}

// CreateInvoiceItem inserts one line of an invoice.
func (s *Store) CreateInvoiceItem(ctx context.Context, item *InvoiceItem) error {
	if item.ID == uuid.Nil {
		item.ID = uuid.New()
	}
	const q = `
		INSERT INTO invoice_items (id, invoice_id, position, sku, description, quantity, unit_price,
			discount_percent, gst_rate, inclusive, subtotal, discount, taxable, tax, total)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`
	_, err := s.q.Exec(ctx, q,
		item.ID, item.InvoiceID, item.Position, item.SKU, item.Description, item.Quantity, item.UnitPrice,
		item.DiscountPercent, item.GSTRate, item.Inclusive, item.Subtotal, item.Discount, item.Taxable, item.Tax, item.Total,
	)
	if err != nil {
		return fmt.Errorf("insert invoice item: %w", err)
	}
	return nil
}

// CreateItemAllocation records a warehouse allocation for one line.
func (s *Store) CreateItemAllocation(ctx context.Context, alloc *ItemAllocation) error {
	if alloc.ID == uuid.Nil {
		alloc.ID = uuid.New()
	}
	const q = `
		INSERT INTO item_allocations (id, invoice_item_id, warehouse_id, quantity)
		VALUES ($1, $2, $3, $4)`
	_, err := s.q.Exec(ctx, q, alloc.ID, alloc.InvoiceItemID, alloc.WarehouseID, alloc.Quantity)
	if err != nil {
		return fmt.Errorf("insert item allocation: %w", err)
	}
	return nil
}

// InvoiceLine pairs one item with its warehouse allocations for atomic
// creation.
type InvoiceLine struct {
	Item        InvoiceItem
	Allocations []ItemAllocation
}

// StockAdjustment is a delta applied to one stock level as part of an
// invoice graph write.
type StockAdjustment struct {
	WarehouseID *uuid.UUID
	SKU         string
	Delta       float64
}

// CreateInvoiceGraph atomically writes an invoice header, its lines, their
// allocations, and the stock deltas those allocations imply.
func (s *Store) CreateInvoiceGraph(ctx context.Context, inv *Invoice, lines []InvoiceLine, adjustments []StockAdjustment) error {
	return s.WithTx(ctx, func(tx *Store) error {
		if err := tx.CreateInvoice(ctx, inv); err != nil {
			return err
		}
		for i := range lines {
			item := &lines[i].Item
			item.InvoiceID = inv.ID
			item.Position = i
			if err := tx.CreateInvoiceItem(ctx, item); err != nil {
				return err
			}
			for j := range lines[i].Allocations {
				alloc := &lines[i].Allocations[j]
				alloc.InvoiceItemID = item.ID
				if err := tx.CreateItemAllocation(ctx, alloc); err != nil {
					return err
				}
			}
		}
		for _, adj := range adjustments {
			if err := tx.AdjustStock(ctx, inv.CompanyID, adj.WarehouseID, adj.SKU, adj.Delta); err != nil {
				return err
			}
		}
		return nil
	})
}

// GetInvoice fetches an invoice header scoped to a company.
func (s *Store) GetInvoice(ctx context.Context, companyID, id uuid.UUID) (*Invoice, error) {
	const q = `SELECT ` + invoiceColumns + ` FROM invoices WHERE company_id = $1 AND id = $2`
	var inv Invoice
	if err := scanInvoice(s.q.QueryRow(ctx, q, companyID, id), &inv); err != nil {
		return nil, wrapScan("get invoice", err)
	}
	return &inv, nil
}

// ListInvoices returns a page of invoice headers plus the total count. An
// empty status matches every status.
func (s *Store) ListInvoices(ctx context.Context, companyID uuid.UUID, status string, limit, offset int) ([]Invoice, int64, error) {
	const countQ = `
		SELECT count(*) FROM invoices
		WHERE company_id = $1 AND ($2 = '' OR status = $2)`
	var total int64
	if err := s.q.QueryRow(ctx, countQ, companyID, status).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count invoices: %w", err)
	}

	const q = `
		SELECT ` + invoiceColumns + `
		FROM invoices
		WHERE company_id = $1 AND ($2 = '' OR status = $2)
		ORDER BY created_at DESC, id
		LIMIT $3 OFFSET $4`
	rows, err := s.q.Query(ctx, q, companyID, status, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list invoices: %w", err)
	}
	defer rows.Close()

	var out []Invoice
	for rows.Next() {
		var inv Invoice
		if err := scanInvoice(rows, &inv); err != nil {
			return nil, 0, fmt.Errorf("scan invoice: %w", err)
		}
		out = append(out, inv)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate invoices: %w", err)
	}
	return out, total, nil
}

// ListInvoiceItems returns every line of an invoice in display order.
func (s *Store) ListInvoiceItems(ctx context.Context, invoiceID uuid.UUID) ([]InvoiceItem, error) {
	const q = `
		SELECT id, invoice_id, position, sku, description, quantity, unit_price,
			discount_percent, gst_rate, inclusive, subtotal, discount, taxable, tax, total
		FROM invoice_items
		WHERE invoice_id = $1
		ORDER BY position`
	rows, err := s.q.Query(ctx, q, invoiceID)
	if err != nil {
		return nil, fmt.Errorf("list invoice items: %w", err)
	}
	defer rows.Close()

	var out []InvoiceItem
	for rows.Next() {
		var item InvoiceItem
		if err := rows.Scan(
			&item.ID, &item.InvoiceID, &item.Position, &item.SKU, &item.Description, &item.Quantity, &item.UnitPrice,
			&item.DiscountPercent, &item.GSTRate, &item.Inclusive, &item.Subtotal, &item.Discount, &item.Taxable, &item.Tax, &item.Total,
		); err != nil {
			return nil, fmt.Errorf("scan invoice item: %w", err)
		}
		out = append(out, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate invoice items: %w", err)
	}
	return out, nil
}

// ListItemAllocations returns the warehouse allocations for one line.
func (s *Store) ListItemAllocations(ctx context.Context, invoiceItemID uuid.UUID) ([]ItemAllocation, error) {
	const q = `
		SELECT id, invoice_item_id, warehouse_id, quantity
		FROM item_allocations
		WHERE invoice_item_id = $1
		ORDER BY id`
	rows, err := s.q.Query(ctx, q, invoiceItemID)
	if err != nil {
		return nil, fmt.Errorf("list item allocations: %w", err)
	}
	defer rows.Close()

	var out []ItemAllocation
	for rows.Next() {
		var alloc ItemAllocation
		if err := rows.Scan(&alloc.ID, &alloc.InvoiceItemID, &alloc.WarehouseID, &alloc.Quantity); err != nil {
			return nil, fmt.Errorf("scan item allocation: %w", err)
		}
		out = append(out, alloc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate item allocations: %w", err)
	}
	return out, nil
}

// UpdateInvoiceStatus transitions an invoice to a new status. The expected
// current status guards against concurrent transitions; a mismatch returns
// ErrNotFound.
func (s *Store) UpdateInvoiceStatus(ctx context.Context, companyID, id uuid.UUID, fromStatus, toStatus string, finalizedAt *time.Time) error {
	const q = `
		UPDATE invoices
		SET status = $4, finalized_at = COALESCE($5, finalized_at), updated_at = $6
		WHERE company_id = $1 AND id = $2 AND status = $3`
	tag, err := s.q.Exec(ctx, q, companyID, id, fromStatus, toStatus, finalizedAt, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update invoice status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// CreatePayment records money received and bumps the invoice's paid amount.
func (s *Store) CreatePayment(ctx context.Context, p *Payment) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	if p.PaidAt.IsZero() {
		p.PaidAt = time.Now().UTC()
	}
	const insertQ = `
		INSERT INTO payments (id, invoice_id, amount, method, reference, paid_at)
		VALUES ($1, $2, $3, $4, $5, $6)`
	if _, err := s.q.Exec(ctx, insertQ, p.ID, p.InvoiceID, p.Amount, p.Method, p.Reference, p.PaidAt); err != nil {
		return fmt.Errorf("insert payment: %w", err)
	}
	const bumpQ = `
		UPDATE invoices SET amount_paid = amount_paid + $2, updated_at = $3 WHERE id = $1`
	if _, err := s.q.Exec(ctx, bumpQ, p.InvoiceID, p.Amount, time.Now().UTC()); err != nil {
		return fmt.Errorf("bump invoice paid amount: %w", err)
	}
	return nil
}

// ListPayments returns payments against an invoice, oldest first.
func (s *Store) ListPayments(ctx context.Context, invoiceID uuid.UUID) ([]Payment, error) {
	const q = `
		SELECT id, invoice_id, amount, method, reference, paid_at
		FROM payments
		WHERE invoice_id = $1
		ORDER BY paid_at, id`
	rows, err := s.q.Query(ctx, q, invoiceID)
	if err != nil {
		return nil, fmt.Errorf("list payments: %w", err)
	}
	defer rows.Close()

	var out []Payment
	for rows.Next() {
		var p Payment
		if err := rows.Scan(&p.ID, &p.InvoiceID, &p.Amount, &p.Method, &p.Reference, &p.PaidAt); err != nil {
			return nil, fmt.Errorf("scan payment: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate payments: %w", err)
	}
	return out, nil
}

// NextInvoiceNumber reserves the next sequential invoice number for a
// company, formatted with the given prefix.
func (s *Store) NextInvoiceNumber(ctx context.Context, companyID uuid.UUID, prefix string) (string, error) {
	const q = `
		INSERT INTO invoice_sequences (company_id, last_value)
		VALUES ($1, 1)
		ON CONFLICT (company_id)
		DO UPDATE SET last_value = invoice_sequences.last_value + 1
		RETURNING last_value`
	var n int64
	if err := s.q.QueryRow(ctx, q, companyID).Scan(&n); err != nil {
		return "", fmt.Errorf("next invoice number: %w", err)
	}
	return fmt.Sprintf("%s%06d", prefix, n), nil
}
