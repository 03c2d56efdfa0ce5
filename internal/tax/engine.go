package tax

// LineItem describes a single invoice line before computation. UnitPrice is
// the quoted price per unit; when Inclusive is true it already carries GST.
type LineItem struct {
	Quantity        float64
	UnitPrice       float64
	DiscountPercent float64
	GSTRate         float64
	Inclusive       bool
}

// LineResult holds the computed figures for one line. In inclusive mode
// Subtotal and Discount are reporting reconstructions expressed in base-price
// terms; downstream totals depend only on Taxable, Tax, and Total.
type LineResult struct {
	Subtotal float64
	Discount float64
	Taxable  float64
	Tax      float64
	Total    float64
}

// ComputeLine calculates one line item. It is pure and total: out-of-range
// inputs propagate arithmetically instead of erroring, callers validate
// ranges before submission.
func ComputeLine(item LineItem) LineResult {
	gross := item.Quantity * item.UnitPrice
	discountOnGross := gross * item.DiscountPercent / 100
	afterDiscount := gross - discountOnGross

	if item.Inclusive && item.GSTRate > 0 {
		// Price already carries tax: extract it from the discounted amount.
		// The customer-facing total does not change.
		divisor := 1 + item.GSTRate/100
		base := afterDiscount / divisor
		return LineResult{
			Subtotal: base + discountOnGross/divisor,
			Discount: discountOnGross / divisor,
			Taxable:  base,
			Tax:      afterDiscount - base,
			Total:    afterDiscount,
		}
	}

	tax := afterDiscount * item.GSTRate / 100
	return LineResult{
		Subtotal: gross,
		Discount: discountOnGross,
		Taxable:  afterDiscount,
		Tax:      tax,
		Total:    afterDiscount + tax,
	}
}
