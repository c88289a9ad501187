package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/marketcart/api/internal/domain"
	pfirestore "github.com/marketcart/api/internal/platform/firestore"
	"github.com/marketcart/api/internal/repositories"
)

const inventoryCollection = "inventory"

// InventoryRepository keeps one ledger document per product holding every reservation made
// against it. Reservations are appended with ArrayUnion and never rewritten.
type InventoryRepository struct {
	base *pfirestore.BaseRepository[inventoryDocument]
}

// NewInventoryRepository constructs a Firestore-backed reservation ledger.
func NewInventoryRepository(provider *pfirestore.Provider) (*InventoryRepository, error) {
	if provider == nil {
		return nil, errors.New("inventory repository requires firestore provider")
	}
	return &InventoryRepository{
		base: pfirestore.NewBaseRepository[inventoryDocument](provider, inventoryCollection, nil, nil),
	}, nil
}

// AppendReservation adds reservation to the product ledger, creating the ledger when absent.
// It is a blind merge so it may run after the transaction's reads, which means sellerId is
// written on every append rather than only on create. Callers pass the owner read from the
// product in the same transaction and a product never changes owner, so the value is
// re-asserted, never replaced. An empty sellerID leaves the stored owner untouched.
func (r *InventoryRepository) AppendReservation(ctx context.Context, productID, sellerID string, reservation domain.Reservation) error {
	productID = strings.TrimSpace(productID)
	if reservation.ID == "" {
		return errors.New("inventory repository: reservation id is required")
	}
	fields := map[string]any{
		"productId":    productID,
		"reservations": firestore.ArrayUnion(newReservationDocument(reservation)),
		"updatedAt":    reservation.CreatedAt.UTC(),
	}
	if sellerID = strings.TrimSpace(sellerID); sellerID != "" {
		fields["sellerId"] = sellerID
	}
	return r.base.SetFields(ctx, productID, fields)
}

func (r *InventoryRepository) FindByProduct(ctx context.Context, productID string) (domain.Inventory, error) {
	doc, err := r.base.Get(ctx, strings.TrimSpace(productID))
	if err != nil {
		return domain.Inventory{}, err
	}
	inv := domain.Inventory{ProductID: doc.ID, SellerID: doc.Data.SellerID}
	for _, res := range doc.Data.Reservations {
		inv.Reservations = append(inv.Reservations, res.toDomain())
	}
	return inv, nil
}

type inventoryDocument struct {
	ProductID    string                `firestore:"productId"`
	SellerID     string                `firestore:"sellerId"`
	Reservations []reservationDocument `firestore:"reservations"`
	UpdatedAt    time.Time             `firestore:"updatedAt"`
}

type reservationDocument struct {
	ID        string    `firestore:"id"`
	OrderID   string    `firestore:"orderId"`
	BuyerID   string    `firestore:"buyerId"`
	VariantID string    `firestore:"variantId"`
	Quantity  int       `firestore:"quantity"`
	CreatedAt time.Time `firestore:"createdAt"`
}

func newReservationDocument(r domain.Reservation) reservationDocument {
	return reservationDocument{
		ID:        r.ID,
		OrderID:   r.OrderID,
		BuyerID:   r.BuyerID,
		VariantID: r.VariantID,
		Quantity:  r.Quantity,
		CreatedAt: r.CreatedAt.UTC(),
	}
}

func (d reservationDocument) toDomain() domain.Reservation {
	return domain.Reservation{
		ID:        d.ID,
		OrderID:   d.OrderID,
		BuyerID:   d.BuyerID,
		VariantID: d.VariantID,
		Quantity:  d.Quantity,
		CreatedAt: d.CreatedAt,
	}
}

var _ repositories.InventoryRepository = (*InventoryRepository)(nil)
