package domain

import "time"

// PermissionReview lists the buyers entitled to review a product.
type PermissionReview struct {
	ProductID string
	BuyerIDs  []string
	UpdatedAt time.Time
}

// Review is a buyer's rating of a product. One per (product, buyer).
type Review struct {
	ProductID string
	BuyerID   string
	Rating    int
	Comment   string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// NotificationKind classifies buyer notifications.
type NotificationKind string

const (
	NotificationKindOrder    NotificationKind = "order"
	NotificationKindDelivery NotificationKind = "delivery"
)

// NotificationTarget identifies the item a notification refers to.
type NotificationTarget struct {
	Kind      NotificationKind
	OrderID   string
	ItemID    string
	ProductID string
}

// Notification is a buyer facing record written alongside lifecycle transitions.
type Notification struct {
	ID        string
	UserID    string
	Title     string
	Content   string
	Target    NotificationTarget
	Read      bool
	CreatedAt time.Time
}
