package domain

import "time"

// PaymentMethod selects the payment rail of an order.
type PaymentMethod string

const (
	// PaymentMethodCOD settles on delivery; the order is created synchronously.
	PaymentMethodCOD PaymentMethod = "cod"
	// PaymentMethodExternal settles through a two-phase provider capture.
	PaymentMethodExternal PaymentMethod = "external"
)

// Valid reports whether the payment method is supported.
func (m PaymentMethod) Valid() bool {
	return m == PaymentMethodCOD || m == PaymentMethodExternal
}

// ItemPaymentStatus is the per line item payment outcome.
type ItemPaymentStatus string

const (
	ItemPaymentPending   ItemPaymentStatus = "pending"
	ItemPaymentCompleted ItemPaymentStatus = "completed"
	ItemPaymentCancelled ItemPaymentStatus = "cancelled"
	ItemPaymentRefund    ItemPaymentStatus = "refund"
)

// Order is the aggregate root created when checkout succeeds. Only nested items mutate afterwards.
type Order struct {
	ID             string
	BuyerID        string
	Address        AddressSnapshot
	Subtotal       int64
	ShippingCost   int64
	TotalAmount    int64
	Currency       string
	PaymentMethod  PaymentMethod
	PaymentID      string
	IdempotencyKey string
	Items          []OrderItem
	SellerIDs      []string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Item returns a pointer to the item with the given id so callers can mutate it in place.
func (o *Order) Item(itemID string) (*OrderItem, bool) {
	for i := range o.Items {
		if o.Items[i].ID == itemID {
			return &o.Items[i], true
		}
	}
	return nil, false
}

// OrderItem is one product variant line with its own lifecycle.
type OrderItem struct {
	ID              string
	ProductID       string
	VariantID       string
	SellerID        string
	ProductName     string
	VariantName     string
	UnitPrice       int64
	DiscountPercent int
	Quantity        int
	TotalPaid       int64
	ShippingCode    string
	ShippingCost    int64
	Status          ItemStatus
	Timeline        []StatusEntry
	Cancellation    *Cancellation
	ClientRejected  bool
	Deleted         bool
	PaymentStatus   ItemPaymentStatus
	UpdatedAt       time.Time
}

// IsCancelled reports whether the one-way cancellation flag is set.
func (i OrderItem) IsCancelled() bool {
	return i.Cancellation != nil || i.Status == ItemStatusCancelled
}

// CancelActor records who cancelled an item.
type CancelActor string

const (
	CancelActorBuyer   CancelActor = "buyer"
	CancelActorSeller  CancelActor = "seller"
	CancelActorShipper CancelActor = "shipper"
)

// Cancellation captures the terminal cancellation of an item.
type Cancellation struct {
	Actor      CancelActor
	ActorID    string
	Reason     string
	At         time.Time
	FromStatus ItemStatus
}

// NewOrderItem builds an item from a priced line with a fresh timeline.
// Captured payments start with the ordered stage already completed.
func NewOrderItem(id string, line PricedLine, at time.Time, captured bool) OrderItem {
	item := OrderItem{
		ID:              id,
		ProductID:       line.ProductID,
		VariantID:       line.VariantID,
		SellerID:        line.SellerID,
		ProductName:     line.ProductName,
		VariantName:     line.VariantName,
		UnitPrice:       line.UnitPrice,
		DiscountPercent: line.DiscountPercent,
		Quantity:        line.Quantity,
		TotalPaid:       line.TotalPaid,
		ShippingCode:    line.ShippingCode,
		ShippingCost:    line.ShippingCost,
		Status:          ItemStatusOrdered,
		Timeline:        []StatusEntry{{Stage: ItemStatusOrdered, At: at}},
		PaymentStatus:   ItemPaymentPending,
		UpdatedAt:       at,
	}
	if captured {
		item.PaymentStatus = ItemPaymentCompleted
		item.Timeline[0].Completed = true
		item.Timeline = append(item.Timeline, StatusEntry{Stage: ItemStatusPacked, At: at})
		item.Status = ItemStatusPacked
	}
	return item
}
