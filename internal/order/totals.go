package order

import "math"

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// CalculateTotals derives order totals from the item lines. Each figure
// is rounded to 2 decimal places after its own arithmetic rather than
// being derived from an already-rounded intermediate, matching how bills
// are computed everywhere else in the system.
func CalculateTotals(items []Item, discountTotal, taxRate float64) Totals {
	subTotal := 0.0
	for i := range items {
		subTotal += items[i].PriceSnapshot * float64(items[i].Qty)
	}
	taxTotal := subTotal * taxRate
	grandTotal := subTotal + taxTotal - discountTotal

	return Totals{
		SubTotal:      round2(subTotal),
		TaxTotal:      round2(taxTotal),
		DiscountTotal: round2(discountTotal),
		GrandTotal:    round2(grandTotal),
	}
}
