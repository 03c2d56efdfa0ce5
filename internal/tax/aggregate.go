package tax

// DocumentTotals folds per-line results into invoice-level figures and routes
// the tax into IGST or the CGST/SGST halves.
type DocumentTotals struct {
	Subtotal   float64
	Discount   float64
	Taxable    float64
	Tax        float64
	Total      float64
	InterState bool
	IGST       float64
	CGST       float64
	SGST       float64
}

// InterState reports whether a supply is inter-state. Unknown or missing
// state codes are treated as intra-state; that default drives tax routing and
// must not be changed.
func InterState(placeOfSupply, homeState string) bool {
	return placeOfSupply != "" && homeState != "" && placeOfSupply != homeState
}

// Aggregate computes document totals for the given line items. Document-level
// taxable is recomputed as subtotal minus discount rather than summed from
// lines, which keeps it free of per-line float drift.
func Aggregate(items []LineItem, placeOfSupply, homeState string) DocumentTotals {
	var t DocumentTotals
	for _, item := range items {
		res := ComputeLine(item)
		t.Subtotal += res.Subtotal
		t.Discount += res.Discount
		t.Tax += res.Tax
	}
	t.Taxable = t.Subtotal - t.Discount
	t.Total = t.Taxable + t.Tax
	t.InterState = InterState(placeOfSupply, homeState)
	if t.InterState {
		t.IGST = t.Tax
	} else {
		t.CGST = t.Tax / 2
		t.SGST = t.Tax / 2
	}
	return t
}
