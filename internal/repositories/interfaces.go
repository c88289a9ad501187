package repositories

import (
	"context"
	"time"

	domain "github.com/marketcart/api/internal/domain"
)

// Registry exposes typed repository accessors and lifecycle hooks for dependency injection.
type Registry interface {
	Close(ctx context.Context) error

	Orders() OrderRepository
	Products() ProductRepository
	ShippingRates() ShippingRateRepository
	Addresses() AddressRepository
	Carts() CartRepository
	UserStats() UserStatsRepository
	Inventory() InventoryRepository
	PaymentHistories() PaymentHistoryRepository
	ReviewPermissions() ReviewPermissionRepository
	Reviews() ReviewRepository
	Notifications() NotificationRepository
	Outbox() OutboxRepository
	Health() HealthRepository
	UnitOfWork
}

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	// IsInvalid reports a request the backend rejected as malformed, such as an empty key.
	IsInvalid() bool
}

// UnitOfWork groups repository operations in one atomic transaction. Repositories called with
// the context handed to fn join the transaction; all reads must precede all writes.
type UnitOfWork interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// OrderRepository persists order aggregates.
type OrderRepository interface {
	// Create inserts a new order and reports a conflict when the id already exists.
	Create(ctx context.Context, order domain.Order) error
	Update(ctx context.Context, order domain.Order) error
	FindByID(ctx context.Context, orderID string) (domain.Order, error)
	// ListByBuyer pages the buyer's orders newest first. A non-empty statuses keeps orders with at
	// least one item in one of them.
	ListByBuyer(ctx context.Context, buyerID string, statuses []domain.ItemStatus, pager domain.Pagination) (domain.CursorPage[domain.Order], error)
	ListBySeller(ctx context.Context, sellerID string) ([]domain.Order, error)
	// ListPendingBySeller pages orders where the seller still has an item to pack or ship.
	ListPendingBySeller(ctx context.Context, sellerID string, pager domain.Pagination) (domain.CursorPage[domain.Order], error)
	// ListActiveByShippingCode pages orders with an item in transit with the given carrier.
	ListActiveByShippingCode(ctx context.Context, code string, pager domain.Pagination) (domain.CursorPage[domain.Order], error)
}

// ProductRepository exposes the catalog reads and stock counters the order flows need.
type ProductRepository interface {
	FindByID(ctx context.Context, productID string) (domain.Product, error)
	// AdjustVariantQuantity atomically adds delta (negative to decrement) to a variant's stock.
	AdjustVariantQuantity(ctx context.Context, productID, variantID string, delta int) error
	IncrementSold(ctx context.Context, productID string, delta int) error
}

// ShippingRateRepository resolves shipping codes and shipper registrations.
type ShippingRateRepository interface {
	FindByCode(ctx context.Context, code string) (domain.ShippingRate, error)
	FindRegistration(ctx context.Context, shipperID string) (domain.ShipperRegistration, error)
}

// AddressRepository resolves a buyer's saved address into an immutable snapshot.
type AddressRepository interface {
	FindByID(ctx context.Context, userID, addressID string) (domain.AddressSnapshot, error)
}

// CartRepository stores the buyer's cart document.
type CartRepository interface {
	Get(ctx context.Context, userID string) (domain.Cart, error)
	Replace(ctx context.Context, cart domain.Cart) error
}

// UserStatsDelta lists counter increments applied atomically to a buyer.
type UserStatsDelta struct {
	TotalBuy         int
	TotalCancel      int
	TotalOrderReject int
}

// UserStatsRepository maintains per-buyer counters.
type UserStatsRepository interface {
	Increment(ctx context.Context, userID string, delta UserStatsDelta) error
	Get(ctx context.Context, userID string) (domain.UserStats, error)
}

// InventoryRepository appends reservation claims to per-product inventory records.
type InventoryRepository interface {
	// AppendReservation creates the record with sellerID when absent. Write only.
	AppendReservation(ctx context.Context, productID, sellerID string, reservation domain.Reservation) error
	FindByProduct(ctx context.Context, productID string) (domain.Inventory, error)
}

// PaymentHistoryRepository stores external payment intents keyed by provider payment id.
type PaymentHistoryRepository interface {
	Create(ctx context.Context, history domain.PaymentHistory) error
	Update(ctx context.Context, history domain.PaymentHistory) error
	FindByID(ctx context.Context, paymentID string) (domain.PaymentHistory, error)
	FindByToken(ctx context.Context, token string) (domain.PaymentHistory, error)
}

// ReviewPermissionRepository manages per-product review entitlements.
type ReviewPermissionRepository interface {
	// Grant adds buyerID to the product's entitlement set. Repeated grants are no-ops.
	Grant(ctx context.Context, productID, buyerID string, at time.Time) error
	IsGranted(ctx context.Context, productID, buyerID string) (bool, error)
}

// ReviewRepository persists one review per (product, buyer).
type ReviewRepository interface {
	Find(ctx context.Context, productID, buyerID string) (domain.Review, error)
	Save(ctx context.Context, review domain.Review) error
}

// NotificationRepository stores buyer notifications.
type NotificationRepository interface {
	Insert(ctx context.Context, notification domain.Notification) error
}

// OutboxStatus tracks delivery of an outbox entry.
type OutboxStatus string

const (
	OutboxPending   OutboxStatus = "pending"
	OutboxDelivered OutboxStatus = "delivered"
	OutboxDead      OutboxStatus = "dead"
)

// OutboxEntry is a serialised domain event awaiting delivery.
type OutboxEntry struct {
	ID          string
	Type        string
	AggregateID string
	ActorID     string
	Payload     []byte
	Status      OutboxStatus
	Attempts    int
	LastError   string
	OccurredAt  time.Time
	DeliveredAt *time.Time
}

// OutboxRepository is the transactional event outbox.
type OutboxRepository interface {
	// Append writes a pending entry. Called inside the emitting transaction.
	Append(ctx context.Context, entry OutboxEntry) error
	// ListPending returns the oldest pending entries first.
	ListPending(ctx context.Context, limit int) ([]OutboxEntry, error)
	MarkDelivered(ctx context.Context, entryID string, at time.Time) error
	// MarkFailed records a failed attempt; deadLetter parks the entry so it is no longer listed.
	MarkFailed(ctx context.Context, entryID string, cause string, at time.Time, deadLetter bool) error
}

// HealthRepository exposes status of downstream dependencies for readiness checks.
type HealthRepository interface {
	Collect(ctx context.Context) (domain.SystemHealthReport, error)
}
