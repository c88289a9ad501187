package services

import (
	"context"
	"time"

	domain "github.com/marketcart/api/internal/domain"
	"github.com/marketcart/api/internal/payments"
)

// Logger is the structured event logger shared by every service.
type Logger func(ctx context.Context, event string, fields map[string]any)

// EventSink appends domain events to the transactional outbox. Emit joins the caller's
// transaction when ctx carries one; delivery happens later and independently.
type EventSink interface {
	Emit(ctx context.Context, event domain.Event) error
}

// PaymentGateway abstracts payments.Manager for easier testing.
type PaymentGateway interface {
	CreateIntent(ctx context.Context, paymentCtx payments.PaymentContext, req payments.IntentRequest) (payments.Intent, error)
	Capture(ctx context.Context, paymentCtx payments.PaymentContext, req payments.CaptureRequest) (payments.PaymentDetails, error)
	Refund(ctx context.Context, paymentCtx payments.PaymentContext, req payments.RefundRequest) (payments.PaymentDetails, error)
	LookupPayment(ctx context.Context, paymentCtx payments.PaymentContext, req payments.LookupRequest) (payments.PaymentDetails, error)
}

// Metrics records order flow counters. A nil *observability.Metrics satisfies it.
type Metrics interface {
	OrderPlaced(ctx context.Context, method string)
	ItemAdvanced(ctx context.Context, to string)
	ItemCancelled(ctx context.Context, actor string)
	PaymentCallback(ctx context.Context, outcome string)
}

// PricingResolver prices requested lines against the catalog and shipping rates.
type PricingResolver interface {
	Resolve(ctx context.Context, lines []domain.LineRequest) ([]domain.PricedLine, domain.Totals, error)
}

// InventoryLedger records create-only stock reservations.
type InventoryLedger interface {
	Reserve(ctx context.Context, cmd ReserveCommand) error
}

// CheckoutService places orders on either payment rail and handles provider callbacks.
type CheckoutService interface {
	PlaceOrder(ctx context.Context, actor domain.Actor, cmd PlaceOrderCommand) (PlaceOrderResult, error)
	CompleteExternalPayment(ctx context.Context, cmd CapturePaymentCommand) (string, error)
	CancelExternalPayment(ctx context.Context, token string) error
	PaymentStatus(ctx context.Context, actor domain.Actor, paymentID string) (PaymentStatusView, error)
}

// OrderLifecycleService drives item transitions and order reads.
type OrderLifecycleService interface {
	AdvanceBySeller(ctx context.Context, actor domain.Actor, cmd TransitionCommand) (domain.OrderItem, error)
	AdvanceByShipper(ctx context.Context, actor domain.Actor, cmd TransitionCommand) (domain.OrderItem, error)
	GetOrder(ctx context.Context, actor domain.Actor, orderID string) (domain.Order, error)
	ListBuyerOrders(ctx context.Context, actor domain.Actor, filter domain.OrderStatusFilter, pager domain.Pagination) (domain.CursorPage[domain.Order], error)
	ListSellerPending(ctx context.Context, actor domain.Actor, pager domain.Pagination) (domain.CursorPage[domain.Order], error)
	ListShipperQueue(ctx context.Context, actor domain.Actor, pager domain.Pagination) (domain.CursorPage[domain.Order], error)
	SellerEarnings(ctx context.Context, actor domain.Actor) (SellerEarnings, error)
}

// CancellationService cancels items within each actor's window and compensates stock and payments.
type CancellationService interface {
	CancelBySeller(ctx context.Context, actor domain.Actor, cmd CancelItemCommand) (domain.OrderItem, error)
	CancelByShipper(ctx context.Context, actor domain.Actor, cmd CancelItemCommand) (domain.OrderItem, error)
	CancelItemByBuyer(ctx context.Context, actor domain.Actor, cmd BuyerCancelItemCommand) (domain.OrderItem, error)
	CancelOrderByBuyer(ctx context.Context, actor domain.Actor, orderID, reason string) (domain.Order, error)
}

// ReviewService gates and stores product reviews.
type ReviewService interface {
	IsEligible(ctx context.Context, buyerID, productID string) (bool, error)
	SubmitReview(ctx context.Context, actor domain.Actor, cmd SubmitReviewCommand) (domain.Review, error)
}

// ReserveCommand claims stock for one product within one order.
type ReserveCommand struct {
	ProductID string
	SellerID  string
	VariantID string
	OrderID   string
	BuyerID   string
	Quantity  int
}

// PlaceOrderCommand is a checkout request.
type PlaceOrderCommand struct {
	AddressID      string
	Items          []domain.LineRequest
	PaymentMethod  domain.PaymentMethod
	IdempotencyKey string
}

// PlaceOrderResult carries the order id for COD, or the approval link for external payments.
type PlaceOrderResult struct {
	OrderID     string
	PaymentID   string
	ApprovalURL string
	Token       string
	Totals      domain.Totals
	Currency    string
	Replayed    bool
}

// CapturePaymentCommand is the provider success callback.
type CapturePaymentCommand struct {
	PaymentID string
	PayerID   string
}

// PaymentStatusView is the buyer-facing view of an external payment.
type PaymentStatusView struct {
	PaymentID string
	Status    domain.PaymentHistoryStatus
	OrderID   string
	Totals    domain.Totals
	Currency  string
	UpdatedAt time.Time
}

// TransitionCommand targets one order item.
type TransitionCommand struct {
	OrderID string
	ItemID  string
}

// SellerEarnings sums what a seller earned from completed items, shipping excluded.
type SellerEarnings struct {
	SellerID       string
	CompletedItems int
	Amount         int64
}

// CancelItemCommand cancels one item as seller or shipper. ClientReject applies to shippers only.
type CancelItemCommand struct {
	OrderID      string
	ItemID       string
	Reason       string
	ClientReject bool
}

// BuyerCancelItemCommand cancels one of the buyer's own items.
type BuyerCancelItemCommand struct {
	OrderID string
	ItemID  string
	Reason  string
}

// SubmitReviewCommand creates or replaces the actor's review of a product.
type SubmitReviewCommand struct {
	ProductID string
	Rating    int
	Comment   string
}

type noopUnitOfWork struct{}

func (noopUnitOfWork) RunInTx(ctx context.Context, fn func(context.Context) error) error {
	return fn(ctx)
}

type noopMetrics struct{}

func (noopMetrics) OrderPlaced(context.Context, string)     {}
func (noopMetrics) ItemAdvanced(context.Context, string)    {}
func (noopMetrics) ItemCancelled(context.Context, string)   {}
func (noopMetrics) PaymentCallback(context.Context, string) {}

func defaultLogger(logger Logger) Logger {
	if logger == nil {
		return func(context.Context, string, map[string]any) {}
	}
	return logger
}

func defaultClock(clock func() time.Time) func() time.Time {
	if clock == nil {
		clock = time.Now
	}
	return func() time.Time {
		return clock().UTC()
	}
}
