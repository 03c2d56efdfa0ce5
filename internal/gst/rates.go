package gst

// Rates lists the GST slabs in use.
var Rates = []float64{0, 5, 12, 18, 28}

// RateValid reports whether the rate belongs to a published GST slab.
func RateValid(rate float64) bool {
	for _, r := range Rates {
		if r == rate {
			return true
		}
	}
	return false
}
