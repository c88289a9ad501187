package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	domain "github.com/marketcart/api/internal/domain"
	pfirestore "github.com/marketcart/api/internal/platform/firestore"
	"github.com/marketcart/api/internal/repositories"
)

const paymentHistoriesCollection = "paymentHistories"

// PaymentHistoryRepository stores external payment intents keyed by the provider payment id.
type PaymentHistoryRepository struct {
	base *pfirestore.BaseRepository[paymentHistoryDocument]
}

// NewPaymentHistoryRepository constructs a Firestore-backed payment history repository.
func NewPaymentHistoryRepository(provider *pfirestore.Provider) (*PaymentHistoryRepository, error) {
	if provider == nil {
		return nil, errors.New("payment history repository requires firestore provider")
	}
	return &PaymentHistoryRepository{
		base: pfirestore.NewBaseRepository[paymentHistoryDocument](provider, paymentHistoriesCollection, nil, nil),
	}, nil
}

func (r *PaymentHistoryRepository) Create(ctx context.Context, history domain.PaymentHistory) error {
	_, err := r.base.Create(ctx, history.ID, newPaymentHistoryDocument(history))
	return err
}

func (r *PaymentHistoryRepository) Update(ctx context.Context, history domain.PaymentHistory) error {
	_, err := r.base.Set(ctx, history.ID, newPaymentHistoryDocument(history))
	return err
}

func (r *PaymentHistoryRepository) FindByID(ctx context.Context, paymentID string) (domain.PaymentHistory, error) {
	doc, err := r.base.Get(ctx, strings.TrimSpace(paymentID))
	if err != nil {
		return domain.PaymentHistory{}, err
	}
	return doc.Data.toDomain(doc.ID), nil
}

// FindByToken resolves the correlation token carried on provider redirects.
func (r *PaymentHistoryRepository) FindByToken(ctx context.Context, token string) (domain.PaymentHistory, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return domain.PaymentHistory{}, pfirestore.WrapError("paymentHistories.findByToken", status.Error(codes.InvalidArgument, "token is required"))
	}
	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("token", "==", token).Limit(1)
	})
	if err != nil {
		return domain.PaymentHistory{}, err
	}
	if len(docs) == 0 {
		return domain.PaymentHistory{}, pfirestore.WrapError("paymentHistories.findByToken", status.Error(codes.NotFound, "no payment history for token"))
	}
	return docs[0].Data.toDomain(docs[0].ID), nil
}

type paymentHistoryDocument struct {
	Provider       string             `firestore:"provider"`
	BuyerID        string             `firestore:"buyerId"`
	Token          string             `firestore:"token"`
	OrderID        string             `firestore:"orderId,omitempty"`
	IdempotencyKey string             `firestore:"idempotencyKey,omitempty"`
	Status         string             `firestore:"status"`
	Address        addressSnapshotDoc `firestore:"address"`
	Lines          []pricedLineDoc    `firestore:"lines"`
	Subtotal       int64              `firestore:"subtotal"`
	Shipping       int64              `firestore:"shipping"`
	Total          int64              `firestore:"total"`
	Currency       string             `firestore:"currency"`
	Details        map[string]any     `firestore:"details,omitempty"`
	CreatedAt      time.Time          `firestore:"createdAt"`
	UpdatedAt      time.Time          `firestore:"updatedAt"`
}

type pricedLineDoc struct {
	ProductID       string `firestore:"productId"`
	VariantID       string `firestore:"variantId"`
	SellerID        string `firestore:"sellerId"`
	ProductName     string `firestore:"productName"`
	VariantName     string `firestore:"variantName,omitempty"`
	ShippingCode    string `firestore:"shippingCode"`
	Quantity        int    `firestore:"quantity"`
	UnitPrice       int64  `firestore:"unitPrice"`
	DiscountPercent int    `firestore:"discountPercent"`
	ShippingCost    int64  `firestore:"shippingCost"`
	TotalPaid       int64  `firestore:"totalPaid"`
}

func newPaymentHistoryDocument(h domain.PaymentHistory) paymentHistoryDocument {
	doc := paymentHistoryDocument{
		Provider:       h.Provider,
		BuyerID:        h.BuyerID,
		Token:          h.Token,
		OrderID:        h.OrderID,
		IdempotencyKey: h.IdempotencyKey,
		Status:         string(h.Status),
		Address:        newAddressSnapshotDoc(h.Address),
		Subtotal:       h.Totals.Subtotal,
		Shipping:       h.Totals.Shipping,
		Total:          h.Totals.Total,
		Currency:       h.Currency,
		Details:        h.Details,
		CreatedAt:      h.CreatedAt.UTC(),
		UpdatedAt:      h.UpdatedAt.UTC(),
	}
	for _, line := range h.Lines {
		doc.Lines = append(doc.Lines, pricedLineDoc(line))
	}
	return doc
}

func (d paymentHistoryDocument) toDomain(id string) domain.PaymentHistory {
	h := domain.PaymentHistory{
		ID:             id,
		Provider:       d.Provider,
		BuyerID:        d.BuyerID,
		Token:          d.Token,
		OrderID:        d.OrderID,
		IdempotencyKey: d.IdempotencyKey,
		Status:         domain.PaymentHistoryStatus(d.Status),
		Address:        d.Address.toDomain(),
		Totals:         domain.Totals{Subtotal: d.Subtotal, Shipping: d.Shipping, Total: d.Total},
		Currency:       d.Currency,
		Details:        d.Details,
		CreatedAt:      d.CreatedAt,
		UpdatedAt:      d.UpdatedAt,
	}
	for _, line := range d.Lines {
		h.Lines = append(h.Lines, domain.PricedLine(line))
	}
	return h
}

var _ repositories.PaymentHistoryRepository = (*PaymentHistoryRepository)(nil)
