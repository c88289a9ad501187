package domain

import "time"

// EventType names the topics emitted through the outbox.
type EventType string

const (
	EventOrderSuccess       EventType = "order_success"
	EventNotifyOrder        EventType = "send_noti_order"
	EventNotifyDelivery     EventType = "send_noti_delivery"
	EventOrderItemCancelled EventType = "order_item_cancelled"
)

// EventPayload is implemented by every typed event body.
type EventPayload interface {
	EventType() EventType
}

// Event is a domain event appended to the outbox inside the emitting transaction.
type Event struct {
	ID          string
	AggregateID string
	ActorID     string
	Payload     EventPayload
	OccurredAt  time.Time
}

// Type returns the payload's event type.
func (e Event) Type() EventType {
	if e.Payload == nil {
		return ""
	}
	return e.Payload.EventType()
}

// OrderSuccessPayload announces a placed order to the buyer.
type OrderSuccessPayload struct {
	OrderID           string `json:"orderId"`
	Email             string `json:"email"`
	Name              string `json:"name"`
	TotalPaid         int64  `json:"totalPaid"`
	TotalShippingCost int64  `json:"totalShippingCost"`
	Currency          string `json:"currency"`
	PaymentMethod     string `json:"paymentMethod"`
}

func (OrderSuccessPayload) EventType() EventType { return EventOrderSuccess }

// NotificationPayload carries a persisted buyer notification to the push channel.
type NotificationPayload struct {
	Type           EventType `json:"-"`
	NotificationID string    `json:"id"`
	UserID         string    `json:"user"`
	Title          string    `json:"title"`
	Content        string    `json:"content"`
	Kind           string    `json:"kind"`
	OrderID        string    `json:"orderId"`
	ItemID         string    `json:"itemId"`
	ProductID      string    `json:"productId"`
}

func (p NotificationPayload) EventType() EventType { return p.Type }

// ItemCancelledPayload records a cancellation and its compensation.
type ItemCancelledPayload struct {
	OrderID       string `json:"orderId"`
	ItemID        string `json:"itemId"`
	BuyerID       string `json:"buyerId"`
	ProductID     string `json:"productId"`
	VariantID     string `json:"variantId"`
	Quantity      int    `json:"quantity"`
	Actor         string `json:"actor"`
	Reason        string `json:"reason,omitempty"`
	FromStatus    string `json:"fromStatus"`
	Refund        bool   `json:"refund"`
	ClientRejects bool   `json:"clientRejected,omitempty"`
}

func (ItemCancelledPayload) EventType() EventType { return EventOrderItemCancelled }
