package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	domain "github.com/marketcart/api/internal/domain"
	pfirestore "github.com/marketcart/api/internal/platform/firestore"
	"github.com/marketcart/api/internal/repositories"
)

const cartsCollection = "carts"

// CartRepository stores one cart document per user.
type CartRepository struct {
	base *pfirestore.BaseRepository[cartDocument]
}

// NewCartRepository constructs a Firestore-backed cart repository.
func NewCartRepository(provider *pfirestore.Provider) (*CartRepository, error) {
	if provider == nil {
		return nil, errors.New("cart repository requires firestore provider")
	}
	return &CartRepository{
		base: pfirestore.NewBaseRepository[cartDocument](provider, cartsCollection, nil, nil),
	}, nil
}

// Get returns the user's cart. A user without a cart document has an empty cart.
func (r *CartRepository) Get(ctx context.Context, userID string) (domain.Cart, error) {
	userID = strings.TrimSpace(userID)
	doc, err := r.base.Get(ctx, userID)
	if err != nil {
		if isNotFound(err) {
			return domain.Cart{UserID: userID}, nil
		}
		return domain.Cart{}, err
	}
	cart := domain.Cart{UserID: userID, UpdatedAt: doc.Data.UpdatedAt}
	for _, item := range doc.Data.Items {
		cart.Items = append(cart.Items, domain.CartItem{
			ProductID: item.ProductID,
			VariantID: item.VariantID,
			Quantity:  item.Quantity,
		})
	}
	return cart, nil
}

func (r *CartRepository) Replace(ctx context.Context, cart domain.Cart) error {
	doc := cartDocument{UpdatedAt: cart.UpdatedAt.UTC(), Items: []cartItemDocument{}}
	for _, item := range cart.Items {
		doc.Items = append(doc.Items, cartItemDocument{
			ProductID: item.ProductID,
			VariantID: item.VariantID,
			Quantity:  item.Quantity,
		})
	}
	_, err := r.base.Set(ctx, cart.UserID, doc)
	return err
}

type cartDocument struct {
	Items     []cartItemDocument `firestore:"items"`
	UpdatedAt time.Time          `firestore:"updatedAt"`
}

type cartItemDocument struct {
	ProductID string `firestore:"productId"`
	VariantID string `firestore:"variantId"`
	Quantity  int    `firestore:"quantity"`
}

func isNotFound(err error) bool {
	var repoErr repositories.RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsNotFound()
}

var _ repositories.CartRepository = (*CartRepository)(nil)
