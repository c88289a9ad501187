package domain

import "time"

// Reservation is a create-only claim of stock against a product, attributed to one order.
type Reservation struct {
	ID        string
	OrderID   string
	BuyerID   string
	VariantID string
	Quantity  int
	CreatedAt time.Time
}

// Inventory is the per-product reservation ledger.
type Inventory struct {
	ProductID    string
	SellerID     string
	Reservations []Reservation
}

// ReservedQuantity sums the reservations recorded for orderID.
func (inv Inventory) ReservedQuantity(orderID string) int {
	total := 0
	for _, r := range inv.Reservations {
		if r.OrderID == orderID {
			total += r.Quantity
		}
	}
	return total
}
