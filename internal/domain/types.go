package domain

import (
	"time"
)

// Pagination defines standard cursor-based paging inputs for list operations.
type Pagination struct {
	PageSize  int
	PageToken string
}

// CursorPage packages list results with an encoded next token.
type CursorPage[T any] struct {
	Items         []T
	NextPageToken string
}

// AddressSnapshot is the delivery address copied onto an order or payment history at checkout.
type AddressSnapshot struct {
	ID         string
	Recipient  string
	Phone      string
	Line1      string
	Line2      string
	Ward       string
	District   string
	City       string
	PostalCode string
	Country    string
}

// Product is the catalog view consumed by pricing and stock bookkeeping.
type Product struct {
	ID        string
	SellerID  string
	Name      string
	Variants  []Variant
	TotalSold int
}

// Variant returns the variant with the given id.
func (p Product) Variant(id string) (Variant, bool) {
	for _, v := range p.Variants {
		if v.ID == id {
			return v, true
		}
	}
	return Variant{}, false
}

// Variant is a sellable option of a product holding its own price and stock.
type Variant struct {
	ID              string
	Name            string
	Price           int64
	DiscountPercent int
	Quantity        int
}

// ShippingRate is a delivery option addressed by its numeric-looking code.
type ShippingRate struct {
	Code      string
	Price     int64
	Company   string
	From      string
	To        string
	ShipperID string
}

// ShipperRegistration links a shipper account to the shipping code it serves.
type ShipperRegistration struct {
	ShipperID string
	Code      string
	Company   string
}

// Cart aggregates the buyer's pending selections.
type Cart struct {
	UserID    string
	Items     []CartItem
	UpdatedAt time.Time
}

// CartItem stores a single product variant entry within a cart.
type CartItem struct {
	ProductID string
	VariantID string
	Quantity  int
}

// CartKey identifies a (product, variant) pair to remove from a cart.
type CartKey struct {
	ProductID string
	VariantID string
}

// UserStats holds the per-buyer order counters.
type UserStats struct {
	UserID           string
	Email            string
	Name             string
	TotalBuy         int
	TotalCancel      int
	TotalOrderReject int
}

const (
	// HealthStatusOK indicates all dependencies are healthy.
	HealthStatusOK = "ok"
	// HealthStatusDegraded indicates at least one dependency is degraded but service remains running.
	HealthStatusDegraded = "degraded"
	// HealthStatusError indicates the service or a critical dependency is unavailable.
	HealthStatusError = "error"
)

// SystemHealthCheck describes the outcome of an individual dependency check.
type SystemHealthCheck struct {
	Status    string
	Detail    string
	Latency   time.Duration
	CheckedAt time.Time
}

// SystemHealthReport aggregates dependency status for readiness endpoints.
type SystemHealthReport struct {
	Status      string
	Checks      map[string]SystemHealthCheck
	Environment string
	GeneratedAt time.Time
}
