package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/marketcart/api/internal/domain"
	pfirestore "github.com/marketcart/api/internal/platform/firestore"
	"github.com/marketcart/api/internal/platform/pagination"
	"github.com/marketcart/api/internal/repositories"
)

const ordersCollection = "orders"

// OrderRepository persists order aggregates with their items embedded in one document, so a
// single transactional read/write covers every item transition.
type OrderRepository struct {
	base *pfirestore.BaseRepository[orderDocument]
}

// NewOrderRepository constructs a Firestore-backed order repository.
func NewOrderRepository(provider *pfirestore.Provider) (*OrderRepository, error) {
	if provider == nil {
		return nil, errors.New("order repository requires firestore provider")
	}
	return &OrderRepository{
		base: pfirestore.NewBaseRepository[orderDocument](provider, ordersCollection, nil, nil),
	}, nil
}

func (r *OrderRepository) Create(ctx context.Context, order domain.Order) error {
	_, err := r.base.Create(ctx, order.ID, newOrderDocument(order))
	return err
}

func (r *OrderRepository) Update(ctx context.Context, order domain.Order) error {
	_, err := r.base.Set(ctx, order.ID, newOrderDocument(order))
	return err
}

func (r *OrderRepository) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	doc, err := r.base.Get(ctx, strings.TrimSpace(orderID))
	if err != nil {
		return domain.Order{}, err
	}
	return doc.Data.toDomain(doc.ID), nil
}

// ListByBuyer pages the buyer's orders newest first. Status filtering runs on the
// denormalised itemStatuses array.
func (r *OrderRepository) ListByBuyer(ctx context.Context, buyerID string, statuses []domain.ItemStatus, pager domain.Pagination) (domain.CursorPage[domain.Order], error) {
	return r.listPage(ctx, pager, func(q firestore.Query) firestore.Query {
		q = q.Where("buyerId", "==", buyerID)
		if len(statuses) > 0 {
			values := make([]any, 0, len(statuses))
			for _, status := range statuses {
				values = append(values, string(status))
			}
			q = q.Where("itemStatuses", "array-contains-any", values)
		}
		return q
	})
}

func (r *OrderRepository) ListPendingBySeller(ctx context.Context, sellerID string, pager domain.Pagination) (domain.CursorPage[domain.Order], error) {
	return r.listPage(ctx, pager, func(q firestore.Query) firestore.Query {
		return q.Where("pendingSellerIds", "array-contains", sellerID)
	})
}

func (r *OrderRepository) ListActiveByShippingCode(ctx context.Context, code string, pager domain.Pagination) (domain.CursorPage[domain.Order], error) {
	return r.listPage(ctx, pager, func(q firestore.Query) firestore.Query {
		return q.Where("activeShippingCodes", "array-contains", code)
	})
}

// listPage orders the filtered query newest first. The page token encodes the last
// (createdAt, id) pair returned.
func (r *OrderRepository) listPage(ctx context.Context, pager domain.Pagination, filter func(firestore.Query) firestore.Query) (domain.CursorPage[domain.Order], error) {
	cursor, err := pagination.DecodeToken(pager.PageToken)
	if err != nil {
		return domain.CursorPage[domain.Order]{}, err
	}
	size := pager.PageSize
	if size <= 0 {
		size = pagination.DefaultPageSize
	}

	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		q = filter(q).
			OrderBy("createdAt", firestore.Desc).
			OrderBy(firestore.DocumentID, firestore.Desc)
		if !cursor.IsZero() {
			q = q.StartAfter(cursor.CreatedAt, cursor.ID)
		}
		return q.Limit(size + 1)
	})
	if err != nil {
		return domain.CursorPage[domain.Order]{}, err
	}

	page := domain.CursorPage[domain.Order]{}
	for i, doc := range docs {
		if i == size {
			last := page.Items[len(page.Items)-1]
			token, err := pagination.EncodeToken(pagination.Cursor{CreatedAt: last.CreatedAt, ID: last.ID})
			if err != nil {
				return domain.CursorPage[domain.Order]{}, err
			}
			page.NextPageToken = token
			break
		}
		page.Items = append(page.Items, doc.Data.toDomain(doc.ID))
	}
	return page, nil
}

// ListBySeller returns every order containing at least one item sold by sellerID.
func (r *OrderRepository) ListBySeller(ctx context.Context, sellerID string) ([]domain.Order, error) {
	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("sellerIds", "array-contains", sellerID)
	})
	if err != nil {
		return nil, err
	}
	orders := make([]domain.Order, 0, len(docs))
	for _, doc := range docs {
		orders = append(orders, doc.Data.toDomain(doc.ID))
	}
	return orders, nil
}

type orderDocument struct {
	BuyerID        string              `firestore:"buyerId"`
	Address        addressSnapshotDoc  `firestore:"address"`
	Subtotal       int64               `firestore:"subtotal"`
	ShippingCost   int64               `firestore:"shippingCost"`
	TotalAmount    int64               `firestore:"totalAmount"`
	Currency       string              `firestore:"currency"`
	PaymentMethod  string              `firestore:"paymentMethod"`
	PaymentID      string              `firestore:"paymentId,omitempty"`
	IdempotencyKey string              `firestore:"idempotencyKey,omitempty"`
	Items          []orderItemDocument `firestore:"items"`
	SellerIDs      []string            `firestore:"sellerIds"`
	CreatedAt      time.Time           `firestore:"createdAt"`
	UpdatedAt      time.Time           `firestore:"updatedAt"`

	// Query projections, recomputed from Items on every write.
	ItemStatuses        []string `firestore:"itemStatuses"`
	PendingSellerIDs    []string `firestore:"pendingSellerIds"`
	ActiveShippingCodes []string `firestore:"activeShippingCodes"`
}

type orderItemDocument struct {
	ID              string           `firestore:"id"`
	ProductID       string           `firestore:"productId"`
	VariantID       string           `firestore:"variantId"`
	SellerID        string           `firestore:"sellerId"`
	ProductName     string           `firestore:"productName"`
	VariantName     string           `firestore:"variantName,omitempty"`
	UnitPrice       int64            `firestore:"unitPrice"`
	DiscountPercent int              `firestore:"discountPercent"`
	Quantity        int              `firestore:"quantity"`
	TotalPaid       int64            `firestore:"totalPaid"`
	ShippingCode    string           `firestore:"shippingCode"`
	ShippingCost    int64            `firestore:"shippingCost"`
	Status          string           `firestore:"status"`
	Timeline        []statusEntryDoc `firestore:"timeline"`
	Cancellation    *cancellationDoc `firestore:"cancellation,omitempty"`
	IsCancel        bool             `firestore:"isCancel"`
	ClientRejected  bool             `firestore:"clientRejected"`
	Deleted         bool             `firestore:"isDelete"`
	PaymentStatus   string           `firestore:"paymentStatus"`
	UpdatedAt       time.Time        `firestore:"updatedAt"`
}

type statusEntryDoc struct {
	Stage     string    `firestore:"stage"`
	At        time.Time `firestore:"at"`
	Completed bool      `firestore:"isCompleted"`
}

type cancellationDoc struct {
	Actor      string    `firestore:"actor"`
	ActorID    string    `firestore:"actorId"`
	Reason     string    `firestore:"reason,omitempty"`
	At         time.Time `firestore:"at"`
	FromStatus string    `firestore:"fromStatus"`
}

type addressSnapshotDoc struct {
	ID         string `firestore:"id"`
	Recipient  string `firestore:"recipient"`
	Phone      string `firestore:"phone,omitempty"`
	Line1      string `firestore:"line1"`
	Line2      string `firestore:"line2,omitempty"`
	Ward       string `firestore:"ward,omitempty"`
	District   string `firestore:"district,omitempty"`
	City       string `firestore:"city"`
	PostalCode string `firestore:"postalCode,omitempty"`
	Country    string `firestore:"country,omitempty"`
}

func newAddressSnapshotDoc(a domain.AddressSnapshot) addressSnapshotDoc {
	return addressSnapshotDoc(a)
}

func (d addressSnapshotDoc) toDomain() domain.AddressSnapshot {
	return domain.AddressSnapshot(d)
}

func newOrderDocument(order domain.Order) orderDocument {
	doc := orderDocument{
		BuyerID:        order.BuyerID,
		Address:        newAddressSnapshotDoc(order.Address),
		Subtotal:       order.Subtotal,
		ShippingCost:   order.ShippingCost,
		TotalAmount:    order.TotalAmount,
		Currency:       order.Currency,
		PaymentMethod:  string(order.PaymentMethod),
		PaymentID:      order.PaymentID,
		IdempotencyKey: order.IdempotencyKey,
		SellerIDs:      append([]string(nil), order.SellerIDs...),
		CreatedAt:      order.CreatedAt.UTC(),
		UpdatedAt:      order.UpdatedAt.UTC(),
		Items:          make([]orderItemDocument, 0, len(order.Items)),

		PendingSellerIDs:    order.PendingSellerIDs(),
		ActiveShippingCodes: order.ActiveShippingCodes(),
	}
	for _, item := range order.Items {
		doc.Items = append(doc.Items, newOrderItemDocument(item))
	}
	for _, status := range order.ItemStatuses() {
		doc.ItemStatuses = append(doc.ItemStatuses, string(status))
	}
	return doc
}

func newOrderItemDocument(item domain.OrderItem) orderItemDocument {
	doc := orderItemDocument{
		ID:              item.ID,
		ProductID:       item.ProductID,
		VariantID:       item.VariantID,
		SellerID:        item.SellerID,
		ProductName:     item.ProductName,
		VariantName:     item.VariantName,
		UnitPrice:       item.UnitPrice,
		DiscountPercent: item.DiscountPercent,
		Quantity:        item.Quantity,
		TotalPaid:       item.TotalPaid,
		ShippingCode:    item.ShippingCode,
		ShippingCost:    item.ShippingCost,
		Status:          string(item.Status),
		IsCancel:        item.IsCancelled(),
		ClientRejected:  item.ClientRejected,
		Deleted:         item.Deleted,
		PaymentStatus:   string(item.PaymentStatus),
		UpdatedAt:       item.UpdatedAt.UTC(),
	}
	for _, entry := range item.Timeline {
		doc.Timeline = append(doc.Timeline, statusEntryDoc{Stage: string(entry.Stage), At: entry.At.UTC(), Completed: entry.Completed})
	}
	if c := item.Cancellation; c != nil {
		doc.Cancellation = &cancellationDoc{
			Actor:      string(c.Actor),
			ActorID:    c.ActorID,
			Reason:     c.Reason,
			At:         c.At.UTC(),
			FromStatus: string(c.FromStatus),
		}
	}
	return doc
}

func (d orderDocument) toDomain(id string) domain.Order {
	order := domain.Order{
		ID:             id,
		BuyerID:        d.BuyerID,
		Address:        d.Address.toDomain(),
		Subtotal:       d.Subtotal,
		ShippingCost:   d.ShippingCost,
		TotalAmount:    d.TotalAmount,
		Currency:       d.Currency,
		PaymentMethod:  domain.PaymentMethod(d.PaymentMethod),
		PaymentID:      d.PaymentID,
		IdempotencyKey: d.IdempotencyKey,
		SellerIDs:      append([]string(nil), d.SellerIDs...),
		CreatedAt:      d.CreatedAt,
		UpdatedAt:      d.UpdatedAt,
		Items:          make([]domain.OrderItem, 0, len(d.Items)),
	}
	for _, item := range d.Items {
		order.Items = append(order.Items, item.toDomain())
	}
	return order
}

func (d orderItemDocument) toDomain() domain.OrderItem {
	item := domain.OrderItem{
		ID:              d.ID,
		ProductID:       d.ProductID,
		VariantID:       d.VariantID,
		SellerID:        d.SellerID,
		ProductName:     d.ProductName,
		VariantName:     d.VariantName,
		UnitPrice:       d.UnitPrice,
		DiscountPercent: d.DiscountPercent,
		Quantity:        d.Quantity,
		TotalPaid:       d.TotalPaid,
		ShippingCode:    d.ShippingCode,
		ShippingCost:    d.ShippingCost,
		Status:          domain.ItemStatus(d.Status),
		ClientRejected:  d.ClientRejected,
		Deleted:         d.Deleted,
		PaymentStatus:   domain.ItemPaymentStatus(d.PaymentStatus),
		UpdatedAt:       d.UpdatedAt,
	}
	for _, entry := range d.Timeline {
		item.Timeline = append(item.Timeline, domain.StatusEntry{Stage: domain.ItemStatus(entry.Stage), At: entry.At, Completed: entry.Completed})
	}
	if item.Status == "" {
		item.Status, _ = domain.StatusFromTimeline(item.Timeline)
	}
	if d.IsCancel && d.Cancellation == nil {
		item.Status = domain.ItemStatusCancelled
	}
	if c := d.Cancellation; c != nil {
		item.Cancellation = &domain.Cancellation{
			Actor:      domain.CancelActor(c.Actor),
			ActorID:    c.ActorID,
			Reason:     c.Reason,
			At:         c.At,
			FromStatus: domain.ItemStatus(c.FromStatus),
		}
	}
	return item
}

var _ repositories.OrderRepository = (*OrderRepository)(nil)
