package tax

import (
	"math"
	"testing"
)

func TestAggregateEmpty(t *testing.T) {
	totals := Aggregate(nil, "27", "27")
	if totals != (DocumentTotals{}) {
		t.Fatalf("empty aggregate = %+v, want zero value", totals)
	}
}

func TestAggregateSumInvariant(t *testing.T) {
	items := []LineItem{
		{Quantity: 2, UnitPrice: 100, DiscountPercent: 10, GSTRate: 18},
		{Quantity: 1, UnitPrice: 118, GSTRate: 18, Inclusive: true},
		{Quantity: 5, UnitPrice: 9.99, DiscountPercent: 2, GSTRate: 5},
		{Quantity: 3, UnitPrice: 250, GSTRate: 28, Inclusive: true},
	}
	for _, interState := range []bool{true, false} {
		home := "07"
		pos := "07"
		if interState {
			pos = "27"
		}
		totals := Aggregate(items, pos, home)
		var lineSum float64
		for _, item := range items {
			lineSum += ComputeLine(item).Total
		}
		if math.Abs(totals.Total-lineSum) > eps {
			t.Fatalf("interState=%v: document total %v != line sum %v", interState, totals.Total, lineSum)
		}
	}
}

func TestAggregateTaxRouting(t *testing.T) {
	items := []LineItem{{Quantity: 2, UnitPrice: 100, GSTRate: 18}}

	inter := Aggregate(items, "27", "07")
	if !inter.InterState {
		t.Fatal("expected inter-state supply for differing state codes")
	}
	if !within(inter.IGST, inter.Tax) || inter.CGST != 0 || inter.SGST != 0 {
		t.Fatalf("inter-state routing wrong: %+v", inter)
	}

	intra := Aggregate(items, "07", "07")
	if intra.InterState {
		t.Fatal("expected intra-state supply for matching state codes")
	}
	if !within(intra.CGST, intra.Tax/2) || !within(intra.SGST, intra.Tax/2) || intra.IGST != 0 {
		t.Fatalf("intra-state routing wrong: %+v", intra)
	}
}

func TestInterStateEmptyCodesDefaultIntra(t *testing.T) {
	cases := []struct {
		pos, home string
	}{
		{"", "07"},
		{"27", ""},
		{"", ""},
	}
	for _, tc := range cases {
		if InterState(tc.pos, tc.home) {
			t.Fatalf("InterState(%q, %q) = true, want false", tc.pos, tc.home)
		}
	}
	if !InterState("27", "07") {
		t.Fatal("InterState(27, 07) = false, want true")
	}
}

func TestAggregateTaxableRecomputedFromDocumentFigures(t *testing.T) {
	items := []LineItem{
		{Quantity: 1, UnitPrice: 0.1, GSTRate: 18},
		{Quantity: 1, UnitPrice: 0.2, GSTRate: 18},
	}
	totals := Aggregate(items, "27", "27")
	if !within(totals.Taxable, totals.Subtotal-totals.Discount) {
		t.Fatalf("taxable %v != subtotal-discount %v", totals.Taxable, totals.Subtotal-totals.Discount)
	}
}
