package invoice

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/khatapp/backend-khata/internal/common"
	"github.com/khatapp/backend-khata/internal/db"
	"github.com/khatapp/backend-khata/internal/events"
	"github.com/khatapp/backend-khata/internal/gst"
	"github.com/khatapp/backend-khata/internal/obs"
	"github.com/khatapp/backend-khata/internal/stock"
	"github.com/khatapp/backend-khata/internal/tax"
)

const settleEpsilon = 1e-9

// Store is the persistence surface the invoice service depends on.
type Store interface {
	GetCompany(ctx context.Context, id uuid.UUID) (*db.Company, error)
	GetCustomer(ctx context.Context, companyID, id uuid.UUID) (*db.Customer, error)
	ListWarehouses(ctx context.Context, companyID uuid.UUID) ([]db.Warehouse, error)
	GetStockLevels(ctx context.Context, companyID uuid.UUID, sku string) ([]db.StockLevel, error)
	NextInvoiceNumber(ctx context.Context, companyID uuid.UUID, prefix string) (string, error)
	CreateInvoiceGraph(ctx context.Context, inv *db.Invoice, lines []db.InvoiceLine, adjustments []db.StockAdjustment) error
	GetInvoice(ctx context.Context, companyID, id uuid.UUID) (*db.Invoice, error)
	ListInvoices(ctx context.Context, companyID uuid.UUID, status string, limit, offset int) ([]db.Invoice, int64, error)
	ListInvoiceItems(ctx context.Context, invoiceID uuid.UUID) ([]db.InvoiceItem, error)
	ListItemAllocations(ctx context.Context, invoiceItemID uuid.UUID) ([]db.ItemAllocation, error)
	ListPayments(ctx context.Context, invoiceID uuid.UUID) ([]db.Payment, error)
	UpdateInvoiceStatus(ctx context.Context, companyID, id uuid.UUID, fromStatus, toStatus string, finalizedAt *time.Time) error
	CreatePayment(ctx context.Context, p *db.Payment) error
}

// Service owns invoice computation, persistence, and lifecycle.
type Service struct {
	Store        Store
	Bus          *events.Bus
	NumberPrefix string
}

// LineInput is one requested invoice line.
type LineInput struct {
	SKU             string  `json:"sku"`
	Description     string  `json:"description"`
	Quantity        float64 `json:"quantity"`
	UnitPrice       float64 `json:"unit_price"`
	DiscountPercent float64 `json:"discount_percent"`
	GSTRate         float64 `json:"gst_rate"`
	Inclusive       bool    `json:"inclusive"`
}

// CreateInput is the payload for creating an invoice.
type CreateInput struct {
	CustomerID    string      `json:"customer_id"`
	PlaceOfSupply string      `json:"place_of_supply"`
	Lines         []LineInput `json:"lines"`
}

// LineView is one computed line returned to clients.
type LineView struct {
	SKU             string           `json:"sku"`
	Description     string           `json:"description"`
	Quantity        float64          `json:"quantity"`
	UnitPrice       float64          `json:"unit_price"`
	DiscountPercent float64          `json:"discount_percent"`
	GSTRate         float64          `json:"gst_rate"`
	Inclusive       bool             `json:"inclusive"`
	Subtotal        float64          `json:"subtotal"`
	Discount        float64          `json:"discount"`
	Taxable         float64          `json:"taxable"`
	Tax             float64          `json:"tax"`
	Total           float64          `json:"total"`
	Allocations     []AllocationView `json:"allocations,omitempty"`
}

// AllocationView reports which warehouse fulfils what share of a line.
type AllocationView struct {
	WarehouseID string  `json:"warehouse_id,omitempty"`
	Quantity    float64 `json:"quantity"`
}

// View is a fully assembled invoice.
type View struct {
	ID             uuid.UUID          `json:"id"`
	Number         string             `json:"number"`
	CustomerID     uuid.UUID          `json:"customer_id"`
	Status         Status             `json:"status"`
	AllowedActions []Action           `json:"allowed_actions"`
	PlaceOfSupply  string             `json:"place_of_supply"`
	Totals         tax.DocumentTotals `json:"totals"`
	AmountPaid     float64            `json:"amount_paid"`
	Lines          []LineView         `json:"lines"`
	Payments       []PaymentView      `json:"payments,omitempty"`
	FinalizedAt    *time.Time         `json:"finalized_at,omitempty"`
	CreatedAt      time.Time          `json:"created_at"`
	UpdatedAt      time.Time          `json:"updated_at"`
}

// PaymentView is one payment against an invoice.
type PaymentView struct {
	ID        uuid.UUID `json:"id"`
	Amount    float64   `json:"amount"`
	Method    string    `json:"method"`
	Reference string    `json:"reference,omitempty"`
	PaidAt    time.Time `json:"paid_at"`
}

// Preview computes line amounts and document totals without persisting
// anything. placeOfSupply and homeState decide IGST vs CGST+SGST routing.
func Preview(lines []LineInput, placeOfSupply, homeState string) ([]LineView, tax.DocumentTotals) {
	items := make([]tax.LineItem, len(lines))
	views := make([]LineView, len(lines))
	for i, in := range lines {
		items[i] = tax.LineItem{
			Quantity:        in.Quantity,
			UnitPrice:       in.UnitPrice,
			DiscountPercent: in.DiscountPercent,
			GSTRate:         in.GSTRate,
			Inclusive:       in.Inclusive,
		}
		res := tax.ComputeLine(items[i])
		views[i] = LineView{
			SKU:             in.SKU,
			Description:     in.Description,
			Quantity:        in.Quantity,
			UnitPrice:       in.UnitPrice,
			DiscountPercent: in.DiscountPercent,
			GSTRate:         in.GSTRate,
			Inclusive:       in.Inclusive,
			Subtotal:        res.Subtotal,
			Discount:        res.Discount,
			Taxable:         res.Taxable,
			Tax:             res.Tax,
			Total:           res.Total,
		}
	}
	totals := tax.Aggregate(items, placeOfSupply, homeState)
	return views, totals
}

// Create computes, allocates, and persists a new draft invoice.
func (s *Service) Create(ctx context.Context, companyID uuid.UUID, in CreateInput) (*View, error) {
	if len(in.Lines) == 0 {
		return nil, common.BadRequest("invoice requires at least one line", nil)
	}
	for i, line := range in.Lines {
		if line.Quantity <= 0 {
			return nil, common.BadRequest(fmt.Sprintf("line %d: quantity must be positive", i), nil)
		}
		if line.UnitPrice < 0 {
			return nil, common.BadRequest(fmt.Sprintf("line %d: unit price must not be negative", i), nil)
		}
		if line.DiscountPercent < 0 || line.DiscountPercent > 100 {
			return nil, common.BadRequest(fmt.Sprintf("line %d: discount percent out of range", i), nil)
		}
		if !gst.RateValid(line.GSTRate) {
			return nil, common.BadRequest(fmt.Sprintf("line %d: unknown gst rate %v", i, line.GSTRate), nil)
		}
	}
	customerID, err := uuid.Parse(strings.TrimSpace(in.CustomerID))
	if err != nil {
		return nil, common.BadRequest("invalid customer id", nil)
	}

	company, err := s.Store.GetCompany(ctx, companyID)
	if err != nil {
		return nil, fmt.Errorf("load company: %w", err)
	}
	customer, err := s.Store.GetCustomer(ctx, companyID, customerID)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return nil, common.NotFound("customer not found")
		}
		return nil, fmt.Errorf("load customer: %w", err)
	}

	placeOfSupply := strings.TrimSpace(in.PlaceOfSupply)
	if placeOfSupply == "" {
		placeOfSupply = customer.StateCode
	}
	if placeOfSupply != "" && !gst.ValidStateCode(placeOfSupply) {
		return nil, common.BadRequest("unknown place of supply state code", nil)
	}

	lineViews, totals := Preview(in.Lines, placeOfSupply, company.StateCode)

	warehouses, err := s.Store.ListWarehouses(ctx, companyID)
	if err != nil {
		return nil, fmt.Errorf("list warehouses: %w", err)
	}
	priority := priorityRefs(warehouses)

	number, err := s.Store.NextInvoiceNumber(ctx, companyID, s.numberPrefix())
	if err != nil {
		return nil, fmt.Errorf("reserve invoice number: %w", err)
	}

	inv := db.Invoice{
		CompanyID:     companyID,
		CustomerID:    customer.ID,
		Number:        number,
		Status:        string(StatusDraft),
		PlaceOfSupply: placeOfSupply,
		InterState:    totals.InterState,
		Subtotal:      totals.Subtotal,
		Discount:      totals.Discount,
		Taxable:       totals.Taxable,
		Tax:           totals.Tax,
		IGST:          totals.IGST,
		CGST:          totals.CGST,
		SGST:          totals.SGST,
		Total:         totals.Total,
	}

	var (
		lines       []db.InvoiceLine
		adjustments []db.StockAdjustment
		backordered bool
	)
	for i, req := range in.Lines {
		item := db.InvoiceItem{
			SKU:             req.SKU,
			Description:     req.Description,
			Quantity:        req.Quantity,
			UnitPrice:       req.UnitPrice,
			DiscountPercent: req.DiscountPercent,
			GSTRate:         req.GSTRate,
			Inclusive:       req.Inclusive,
			Subtotal:        lineViews[i].Subtotal,
			Discount:        lineViews[i].Discount,
			Taxable:         lineViews[i].Taxable,
			Tax:             lineViews[i].Tax,
			Total:           lineViews[i].Total,
		}
		line := db.InvoiceLine{Item: item}
		if strings.TrimSpace(req.SKU) != "" {
			levels, err := s.Store.GetStockLevels(ctx, companyID, req.SKU)
			if err != nil {
				return nil, fmt.Errorf("load stock for %s: %w", req.SKU, err)
			}
			avail := availability(levels)
			allocs := stock.AutoAllocate(req.Quantity, avail, priority)
			for _, a := range allocs {
				line.Allocations = append(line.Allocations, db.ItemAllocation{
					WarehouseID: a.WarehouseID,
					Quantity:    a.Quantity,
				})
				adjustments = append(adjustments, db.StockAdjustment{
					WarehouseID: a.WarehouseID,
					SKU:         req.SKU,
					Delta:       -a.Quantity,
				})
				if got, _ := lookupAvailable(avail, a.WarehouseID); a.Quantity > got {
					backordered = true
				}
			}
			lineViews[i].Allocations = allocationViews(line.Allocations)
		}
		lines = append(lines, line)
	}

	if err := s.Store.CreateInvoiceGraph(ctx, &inv, lines, adjustments); err != nil {
		if obs.InvoicesCreatedTotal != nil {
			obs.InvoicesCreatedTotal.WithLabelValues("error").Inc()
		}
		return nil, fmt.Errorf("persist invoice: %w", err)
	}
	if obs.InvoicesCreatedTotal != nil {
		obs.InvoicesCreatedTotal.WithLabelValues("ok").Inc()
	}
	if backordered {
		if obs.StockBackordersTotal != nil {
			obs.StockBackordersTotal.Inc()
		}
		s.emit(ctx, companyID, events.TopicStockBackordered, inv.ID, map[string]any{
			"invoiceId": inv.ID.String(),
			"number":    inv.Number,
		})
	}

	view := s.assemble(&inv, lineViews, nil)
	return view, nil
}

// Get loads one invoice with lines, allocations, and payments.
func (s *Service) Get(ctx context.Context, companyID, id uuid.UUID) (*View, error) {
	inv, err := s.Store.GetInvoice(ctx, companyID, id)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return nil, common.NotFound("invoice not found")
		}
		return nil, fmt.Errorf("load invoice: %w", err)
	}
	items, err := s.Store.ListInvoiceItems(ctx, inv.ID)
	if err != nil {
		return nil, fmt.Errorf("load invoice items: %w", err)
	}
	lineViews := make([]LineView, 0, len(items))
	for _, item := range items {
		lv := LineView{
			SKU:             item.SKU,
			Description:     item.Description,
			Quantity:        item.Quantity,
			UnitPrice:       item.UnitPrice,
			DiscountPercent: item.DiscountPercent,
			GSTRate:         item.GSTRate,
			Inclusive:       item.Inclusive,
			Subtotal:        item.Subtotal,
			Discount:        item.Discount,
			Taxable:         item.Taxable,
			Tax:             item.Tax,
			Total:           item.Total,
		}
		allocs, err := s.Store.ListItemAllocations(ctx, item.ID)
		if err != nil {
			return nil, fmt.Errorf("load allocations: %w", err)
		}
		lv.Allocations = allocationViews(allocs)
		lineViews = append(lineViews, lv)
	}
	payments, err := s.Store.ListPayments(ctx, inv.ID)
	if err != nil {
		return nil, fmt.Errorf("load payments: %w", err)
	}
	return s.assemble(inv, lineViews, payments), nil
}

// ListResult is one page of invoice headers.
type ListResult struct {
	Invoices []View
	Total    int64
}

// List returns a page of invoice headers without line detail.
func (s *Service) List(ctx context.Context, companyID uuid.UUID, status string, limit, offset int) (*ListResult, error) {
	if status != "" && !ValidStatus(Status(status)) {
		return nil, common.BadRequest("unknown invoice status", nil)
	}
	rows, total, err := s.Store.ListInvoices(ctx, companyID, status, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list invoices: %w", err)
	}
	out := make([]View, 0, len(rows))
	for i := range rows {
		out = append(out, *s.assemble(&rows[i], nil, nil))
	}
	return &ListResult{Invoices: out, Total: total}, nil
}

// Apply performs a lifecycle action on an invoice. Payment actions must go
// through RecordPayment instead.
func (s *Service) Apply(ctx context.Context, companyID, id uuid.UUID, action Action) (*View, error) {
	if action == ActionPay {
		return nil, common.BadRequest("record a payment to pay an invoice", nil)
	}
	inv, err := s.Store.GetInvoice(ctx, companyID, id)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return nil, common.NotFound("invoice not found")
		}
		return nil, fmt.Errorf("load invoice: %w", err)
	}

	current := Status(inv.Status)
	next, err := Next(current, action)
	if err != nil {
		s.countTransition(action, "rejected")
		return nil, common.Conflict(fmt.Sprintf("cannot %s an invoice in status %s", action, current), err)
	}

	var finalizedAt *time.Time
	if action == ActionFinalize {
		now := time.Now().UTC()
		finalizedAt = &now
	}
	if err := s.Store.UpdateInvoiceStatus(ctx, companyID, id, string(current), string(next), finalizedAt); err != nil {
		s.countTransition(action, "error")
		if errors.Is(err, db.ErrNotFound) {
			return nil, common.Conflict("invoice status changed concurrently", err)
		}
		return nil, fmt.Errorf("transition invoice: %w", err)
	}
	s.countTransition(action, "ok")

	if topic := topicForAction(action); topic != "" {
		s.emit(ctx, companyID, topic, inv.ID, map[string]any{
			"invoiceId": inv.ID.String(),
			"number":    inv.Number,
			"from":      string(current),
			"to":        string(next),
		})
	}
	return s.Get(ctx, companyID, id)
}

// RecordPayment applies a payment to an invoice, promoting it to paid when
// the outstanding balance reaches zero.
func (s *Service) RecordPayment(ctx context.Context, companyID, id uuid.UUID, amount float64, method, reference string) (*View, error) {
	if amount <= 0 {
		return nil, common.BadRequest("payment amount must be positive", nil)
	}
	inv, err := s.Store.GetInvoice(ctx, companyID, id)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return nil, common.NotFound("invoice not found")
		}
		return nil, fmt.Errorf("load invoice: %w", err)
	}

	current := Status(inv.Status)
	settled := inv.AmountPaid+amount+settleEpsilon >= inv.Total
	next, err := NextOnPayment(current, settled)
	if err != nil {
		s.countTransition(ActionPay, "rejected")
		return nil, common.Conflict(fmt.Sprintf("cannot pay an invoice in status %s", current), err)
	}

	if err := s.Store.CreatePayment(ctx, &db.Payment{
		InvoiceID: inv.ID,
		Amount:    amount,
		Method:    strings.TrimSpace(method),
		Reference: strings.TrimSpace(reference),
	}); err != nil {
		s.countTransition(ActionPay, "error")
		return nil, fmt.Errorf("record payment: %w", err)
	}
	if next != current {
		if err := s.Store.UpdateInvoiceStatus(ctx, companyID, id, string(current), string(next), nil); err != nil {
			s.countTransition(ActionPay, "error")
			return nil, fmt.Errorf("transition invoice: %w", err)
		}
	}
	s.countTransition(ActionPay, "ok")

	topic := events.TopicInvoicePartPaid
	if next == StatusPaid {
		topic = events.TopicInvoicePaid
	}
	s.emit(ctx, companyID, topic, inv.ID, map[string]any{
		"invoiceId": inv.ID.String(),
		"number":    inv.Number,
		"amount":    amount,
		"settled":   next == StatusPaid,
	})
	return s.Get(ctx, companyID, id)
}

func (s *Service) assemble(inv *db.Invoice, lines []LineView, payments []db.Payment) *View {
	view := &View{
		ID:             inv.ID,
		Number:         inv.Number,
		CustomerID:     inv.CustomerID,
		Status:         Status(inv.Status),
		AllowedActions: AllowedActions(Status(inv.Status)),
		PlaceOfSupply:  inv.PlaceOfSupply,
		Totals: tax.DocumentTotals{
			Subtotal:   inv.Subtotal,
			Discount:   inv.Discount,
			Taxable:    inv.Taxable,
			Tax:        inv.Tax,
			Total:      inv.Total,
			InterState: inv.InterState,
			IGST:       inv.IGST,
			CGST:       inv.CGST,
			SGST:       inv.SGST,
		},
		AmountPaid:  inv.AmountPaid,
		Lines:       lines,
		FinalizedAt: inv.FinalizedAt,
		CreatedAt:   inv.CreatedAt,
		UpdatedAt:   inv.UpdatedAt,
	}
	for _, p := range payments {
		view.Payments = append(view.Payments, PaymentView{
			ID:        p.ID,
			Amount:    p.Amount,
			Method:    p.Method,
			Reference: p.Reference,
			PaidAt:    p.PaidAt,
		})
	}
	return view
}

func (s *Service) emit(ctx context.Context, companyID uuid.UUID, topic string, aggregateID uuid.UUID, payload any) {
	if s.Bus == nil {
		return
	}
	// Fan-out failures must not fail the request; the outbox row persists.
	_, _ = s.Bus.Emit(ctx, companyID, topic, aggregateID, payload)
}

func (s *Service) countTransition(action Action, result string) {
	if obs.InvoiceTransitionsTotal != nil {
		obs.InvoiceTransitionsTotal.WithLabelValues(string(action), result).Inc()
	}
}

func (s *Service) numberPrefix() string {
	if strings.TrimSpace(s.NumberPrefix) != "" {
		return s.NumberPrefix
	}
	return "INV-"
}

func topicForAction(a Action) string {
	switch a {
	case ActionFinalize:
		return events.TopicInvoiceFinalized
	case ActionCancel:
		return events.TopicInvoiceCancelled
	case ActionVoid:
		return events.TopicInvoiceVoided
	case ActionRefund:
		return events.TopicInvoiceRefunded
	case ActionWriteOff:
		return events.TopicInvoiceWrittenOff
	}
	return ""
}

// priorityRefs maps warehouses, already ordered by priority, onto allocation
// refs. Companies without configured warehouses fall back to the default
// location so unmet demand still lands somewhere.
func priorityRefs(warehouses []db.Warehouse) []string {
	if len(warehouses) == 0 {
		return []string{stock.MainWarehouseRef}
	}
	refs := make([]string, 0, len(warehouses))
	for _, w := range warehouses {
		if w.IsDefault {
			refs = append(refs, stock.MainWarehouseRef)
			continue
		}
		refs = append(refs, w.ID.String())
	}
	return refs
}

func availability(levels []db.StockLevel) []stock.Availability {
	out := make([]stock.Availability, 0, len(levels))
	for _, lvl := range levels {
		out = append(out, stock.Availability{WarehouseID: lvl.WarehouseID, Available: lvl.Quantity})
	}
	return out
}

func lookupAvailable(avail []stock.Availability, id *uuid.UUID) (float64, bool) {
	for _, a := range avail {
		switch {
		case a.WarehouseID == nil && id == nil:
			return a.Available, true
		case a.WarehouseID != nil && id != nil && *a.WarehouseID == *id:
			return a.Available, true
		}
	}
	return 0, false
}

func allocationViews(allocs []db.ItemAllocation) []AllocationView {
	out := make([]AllocationView, 0, len(allocs))
	for _, a := range allocs {
		v := AllocationView{Quantity: a.Quantity}
		if a.WarehouseID != nil {
			v.WarehouseID = a.WarehouseID.String()
		}
		out = append(out, v)
	}
	return out
}
