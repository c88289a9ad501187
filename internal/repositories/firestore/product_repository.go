package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/marketcart/api/internal/domain"
	pfirestore "github.com/marketcart/api/internal/platform/firestore"
	"github.com/marketcart/api/internal/repositories"
)

const (
	productsCollection        = "products"
	variantCollectionTemplate = "products/%s/variants"
)

// ProductRepository reads catalog products and maintains their stock and sales counters.
// Variant stock lives in a subcollection so concurrent checkouts of different variants do not
// contend on the product document.
type ProductRepository struct {
	provider *pfirestore.Provider
	products *pfirestore.BaseRepository[productDocument]
	clock    func() time.Time
}

// NewProductRepository constructs a Firestore-backed product repository.
func NewProductRepository(provider *pfirestore.Provider) (*ProductRepository, error) {
	if provider == nil {
		return nil, errors.New("product repository requires firestore provider")
	}
	return &ProductRepository{
		provider: provider,
		products: pfirestore.NewBaseRepository[productDocument](provider, productsCollection, nil, nil),
		clock:    time.Now,
	}, nil
}

func (r *ProductRepository) FindByID(ctx context.Context, productID string) (domain.Product, error) {
	productID = strings.TrimSpace(productID)
	doc, err := r.products.Get(ctx, productID)
	if err != nil {
		return domain.Product{}, err
	}
	variants, err := r.variants(productID).Query(ctx, func(q firestore.Query) firestore.Query {
		return q.OrderBy(firestore.DocumentID, firestore.Asc)
	})
	if err != nil {
		return domain.Product{}, err
	}

	product := domain.Product{
		ID:        doc.ID,
		SellerID:  doc.Data.SellerID,
		Name:      doc.Data.Name,
		TotalSold: doc.Data.TotalSold,
	}
	for _, v := range variants {
		product.Variants = append(product.Variants, v.Data.toDomain(v.ID))
	}
	return product, nil
}

// AdjustVariantQuantity applies delta with a server-side increment, so it needs no read and can
// follow the transactional read phase.
func (r *ProductRepository) AdjustVariantQuantity(ctx context.Context, productID, variantID string, delta int) error {
	if delta == 0 {
		return nil
	}
	_, err := r.variants(productID).Update(ctx, variantID, []firestore.Update{
		{Path: "quantity", Value: firestore.Increment(delta)},
		{Path: "updatedAt", Value: r.clock().UTC()},
	})
	return err
}

func (r *ProductRepository) IncrementSold(ctx context.Context, productID string, delta int) error {
	if delta == 0 {
		return nil
	}
	_, err := r.products.Update(ctx, productID, []firestore.Update{
		{Path: "totalSold", Value: firestore.Increment(delta)},
	})
	return err
}

func (r *ProductRepository) variants(productID string) *pfirestore.BaseRepository[variantDocument] {
	return pfirestore.NewBaseRepository[variantDocument](r.provider, fmt.Sprintf(variantCollectionTemplate, strings.TrimSpace(productID)), nil, nil)
}

type productDocument struct {
	SellerID  string    `firestore:"sellerId"`
	Name      string    `firestore:"name"`
	TotalSold int       `firestore:"totalSold"`
	UpdatedAt time.Time `firestore:"updatedAt,omitempty"`
}

type variantDocument struct {
	Name            string    `firestore:"name"`
	Price           int64     `firestore:"price"`
	DiscountPercent int       `firestore:"discountPercent"`
	Quantity        int       `firestore:"quantity"`
	UpdatedAt       time.Time `firestore:"updatedAt,omitempty"`
}

func (d variantDocument) toDomain(id string) domain.Variant {
	return domain.Variant{
		ID:              id,
		Name:            d.Name,
		Price:           d.Price,
		DiscountPercent: d.DiscountPercent,
		Quantity:        d.Quantity,
	}
}

var _ repositories.ProductRepository = (*ProductRepository)(nil)
