package domain

// LineRequest is a single requested checkout line before pricing.
type LineRequest struct {
	ProductID    string
	VariantID    string
	Quantity     int
	ShippingCode string
}

// PricedLine stores the resolved monetary fields for one line in the smallest currency unit.
type PricedLine struct {
	ProductID       string
	VariantID       string
	SellerID        string
	ProductName     string
	VariantName     string
	ShippingCode    string
	Quantity        int
	UnitPrice       int64
	DiscountPercent int
	ShippingCost    int64
	TotalPaid       int64
}

// Totals holds rolled-up monetary fields in the smallest currency unit.
type Totals struct {
	Subtotal int64
	Shipping int64
	Total    int64
}

// SumTotals rolls lines into order totals. Total equals the sum of every line's TotalPaid.
func SumTotals(lines []PricedLine) Totals {
	var totals Totals
	for _, line := range lines {
		totals.Total += line.TotalPaid
		totals.Shipping += line.ShippingCost
	}
	totals.Subtotal = totals.Total - totals.Shipping
	return totals
}
