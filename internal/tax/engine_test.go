package tax

import (
	"math"
	"testing"
)

const eps = 1e-9

func within(a, b float64) bool {
	return math.Abs(a-b) <= eps
}

func TestComputeLineExclusive(t *testing.T) {
	res := ComputeLine(LineItem{Quantity: 2, UnitPrice: 100, DiscountPercent: 10, GSTRate: 18})
	if !within(res.Subtotal, 200) {
		t.Fatalf("subtotal = %v, want 200", res.Subtotal)
	}
	if !within(res.Discount, 20) {
		t.Fatalf("discount = %v, want 20", res.Discount)
	}
	if !within(res.Taxable, 180) {
		t.Fatalf("taxable = %v, want 180", res.Taxable)
	}
	if !within(res.Tax, 32.4) {
		t.Fatalf("tax = %v, want 32.4", res.Tax)
	}
	if !within(res.Total, 212.4) {
		t.Fatalf("total = %v, want 212.4", res.Total)
	}
}

func TestComputeLineInclusiveRoundTrip(t *testing.T) {
	res := ComputeLine(LineItem{Quantity: 1, UnitPrice: 118, GSTRate: 18, Inclusive: true})
	if !within(res.Taxable, 100) {
		t.Fatalf("taxable = %v, want 100", res.Taxable)
	}
	if !within(res.Tax, 18) {
		t.Fatalf("tax = %v, want 18", res.Tax)
	}
	if !within(res.Total, 118) {
		t.Fatalf("total = %v, want 118", res.Total)
	}
}

func TestComputeLineInclusiveDiscountReporting(t *testing.T) {
	// Discount and subtotal are re-expressed in base-price terms by dividing
	// out the tax factor.
	item := LineItem{Quantity: 1, UnitPrice: 118, DiscountPercent: 10, GSTRate: 18, Inclusive: true}
	res := ComputeLine(item)
	afterDiscount := 118 * 0.9
	base := afterDiscount / 1.18
	if !within(res.Total, afterDiscount) {
		t.Fatalf("total = %v, want %v", res.Total, afterDiscount)
	}
	if !within(res.Taxable, base) {
		t.Fatalf("taxable = %v, want %v", res.Taxable, base)
	}
	if !within(res.Discount, 11.8/1.18) {
		t.Fatalf("discount = %v, want %v", res.Discount, 11.8/1.18)
	}
	if !within(res.Subtotal, base+11.8/1.18) {
		t.Fatalf("subtotal = %v, want %v", res.Subtotal, base+11.8/1.18)
	}
}

func TestComputeLineZeroRateInclusiveMatchesExclusive(t *testing.T) {
	incl := ComputeLine(LineItem{Quantity: 3, UnitPrice: 40, DiscountPercent: 5, GSTRate: 0, Inclusive: true})
	excl := ComputeLine(LineItem{Quantity: 3, UnitPrice: 40, DiscountPercent: 5, GSTRate: 0})
	if incl != excl {
		t.Fatalf("inclusive zero-rate result %+v differs from exclusive %+v", incl, excl)
	}
	if !within(incl.Tax, 0) {
		t.Fatalf("tax = %v, want 0", incl.Tax)
	}
}

func TestComputeLineIdempotent(t *testing.T) {
	items := []LineItem{
		{Quantity: 2, UnitPrice: 100, DiscountPercent: 10, GSTRate: 18},
		{Quantity: 1.5, UnitPrice: 33.33, DiscountPercent: 2.5, GSTRate: 12, Inclusive: true},
		{Quantity: 0, UnitPrice: 999, GSTRate: 28},
	}
	for _, item := range items {
		first := ComputeLine(item)
		second := ComputeLine(item)
		if first != second {
			t.Fatalf("recomputation diverged for %+v: %+v vs %+v", item, first, second)
		}
	}
}

func TestComputeLineNegativeInputsPropagate(t *testing.T) {
	res := ComputeLine(LineItem{Quantity: 1, UnitPrice: -50, GSTRate: 18})
	if res.Total >= 0 {
		t.Fatalf("negative price should yield negative total, got %v", res.Total)
	}
}
