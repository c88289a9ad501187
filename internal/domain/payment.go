package domain

import "time"

// PaymentHistoryStatus tracks an external payment intent from creation to capture.
type PaymentHistoryStatus string

const (
	PaymentHistoryPending   PaymentHistoryStatus = "pending"
	PaymentHistoryCapturing PaymentHistoryStatus = "capturing"
	PaymentHistoryCompleted PaymentHistoryStatus = "completed"
	PaymentHistoryCancelled PaymentHistoryStatus = "cancelled"
	PaymentHistoryRefunded  PaymentHistoryStatus = "refunded"
)

// Cancellable reports whether the buyer can still abandon the payment. Once a capture has been
// claimed the provider may already hold the funds, so only pending payments qualify.
func (s PaymentHistoryStatus) Cancellable() bool {
	return s == PaymentHistoryPending
}

// PaymentHistory records a provider intent before the order exists. ID is the provider payment id.
type PaymentHistory struct {
	ID             string
	Provider       string
	BuyerID        string
	Token          string
	OrderID        string
	IdempotencyKey string
	Status         PaymentHistoryStatus
	Address        AddressSnapshot
	Lines          []PricedLine
	Totals         Totals
	Currency       string
	Details        map[string]any
	CreatedAt      time.Time
	UpdatedAt      time.Time
}
