package stock

import (
	"strings"

	"github.com/google/uuid"
)

// MainWarehouseRef is the priority-list sentinel for the default warehouse,
// which carries no explicit identifier.
const MainWarehouseRef = "main"

// Availability is a point-in-time stock snapshot for one warehouse. A nil
// WarehouseID denotes the default warehouse.
type Availability struct {
	WarehouseID *uuid.UUID
	Available   float64
}

// Allocation assigns part of a requested quantity to a warehouse. The
// priority-first warehouse may be allocated beyond its available stock,
// recording a backorder.
type Allocation struct {
	WarehouseID *uuid.UUID
	Quantity    float64
}

// AutoAllocate greedily distributes qty across warehouses following the given
// priority order. Demand left after exhausting the list is added to the first
// priority warehouse, allowing its resulting stock to go negative. The
// returned quantities sum to qty whenever priority is non-empty; with an empty
// priority list unmet demand is silently dropped and callers must compare the
// allocated sum against qty.
func AutoAllocate(qty float64, stock []Availability, priority []string) []Allocation {
	remaining := qty
	allocation := make([]Allocation, 0, len(priority))

	for _, ref := range priority {
		if remaining <= 0 {
			break
		}
		id, ok := resolveRef(ref)
		if !ok {
			continue
		}
		avail, found := lookup(stock, id)
		if !found || avail <= 0 {
			continue
		}
		toAllocate := avail
		if remaining < toAllocate {
			toAllocate = remaining
		}
		allocation = append(allocation, Allocation{WarehouseID: id, Quantity: toAllocate})
		remaining -= toAllocate
	}

	if remaining > 0 && len(priority) > 0 {
		if first, ok := resolveRef(priority[0]); ok {
			allocation = addTo(allocation, first, remaining)
		}
	}
	return allocation
}

// Sum returns the total allocated quantity.
func Sum(allocation []Allocation) float64 {
	var total float64
	for _, a := range allocation {
		total += a.Quantity
	}
	return total
}

func resolveRef(ref string) (*uuid.UUID, bool) {
	ref = strings.TrimSpace(ref)
	if ref == "" || strings.EqualFold(ref, MainWarehouseRef) {
		return nil, true
	}
	id, err := uuid.Parse(ref)
	if err != nil {
		return nil, false
	}
	return &id, true
}

func lookup(stock []Availability, id *uuid.UUID) (float64, bool) {
	for _, s := range stock {
		if sameWarehouse(s.WarehouseID, id) {
			return s.Available, true
		}
	}
	return 0, false
}

func addTo(allocation []Allocation, id *uuid.UUID, qty float64) []Allocation {
	for i := range allocation {
		if sameWarehouse(allocation[i].WarehouseID, id) {
			allocation[i].Quantity += qty
			return allocation
		}
	}
	return append(allocation, Allocation{WarehouseID: id, Quantity: qty})
}

func sameWarehouse(a, b *uuid.UUID) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
