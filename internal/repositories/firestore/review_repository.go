package firestore

import (
	"context"
	"errors"
	"slices"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/marketcart/api/internal/domain"
	pfirestore "github.com/marketcart/api/internal/platform/firestore"
	"github.com/marketcart/api/internal/repositories"
)

const (
	reviewPermissionsCollection = "permissionReviews"
	reviewsCollection           = "reviews"
)

// ReviewPermissionRepository stores the set of buyers entitled to review each product.
type ReviewPermissionRepository struct {
	base *pfirestore.BaseRepository[reviewPermissionDocument]
}

// NewReviewPermissionRepository constructs a Firestore-backed entitlement repository.
func NewReviewPermissionRepository(provider *pfirestore.Provider) (*ReviewPermissionRepository, error) {
	if provider == nil {
		return nil, errors.New("review permission repository requires firestore provider")
	}
	return &ReviewPermissionRepository{
		base: pfirestore.NewBaseRepository[reviewPermissionDocument](provider, reviewPermissionsCollection, nil, nil),
	}, nil
}

// Grant unions buyerID into the product's buyer set; granting twice leaves one entry.
func (r *ReviewPermissionRepository) Grant(ctx context.Context, productID, buyerID string, at time.Time) error {
	return r.base.SetFields(ctx, strings.TrimSpace(productID), map[string]any{
		"buyerIds":  firestore.ArrayUnion(buyerID),
		"updatedAt": at.UTC(),
	})
}

func (r *ReviewPermissionRepository) IsGranted(ctx context.Context, productID, buyerID string) (bool, error) {
	doc, err := r.base.Get(ctx, strings.TrimSpace(productID))
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, err
	}
	return slices.Contains(doc.Data.BuyerIDs, buyerID), nil
}

type reviewPermissionDocument struct {
	BuyerIDs  []string  `firestore:"buyerIds"`
	UpdatedAt time.Time `firestore:"updatedAt"`
}

// ReviewRepository stores one review per (product, buyer) pair.
type ReviewRepository struct {
	base *pfirestore.BaseRepository[reviewDocument]
}

// NewReviewRepository constructs a Firestore-backed review repository.
func NewReviewRepository(provider *pfirestore.Provider) (*ReviewRepository, error) {
	if provider == nil {
		return nil, errors.New("review repository requires firestore provider")
	}
	return &ReviewRepository{
		base: pfirestore.NewBaseRepository[reviewDocument](provider, reviewsCollection, nil, nil),
	}, nil
}

func (r *ReviewRepository) Find(ctx context.Context, productID, buyerID string) (domain.Review, error) {
	doc, err := r.base.Get(ctx, reviewDocumentID(productID, buyerID))
	if err != nil {
		return domain.Review{}, err
	}
	return domain.Review{
		ProductID: doc.Data.ProductID,
		BuyerID:   doc.Data.BuyerID,
		Rating:    doc.Data.Rating,
		Comment:   doc.Data.Comment,
		CreatedAt: doc.Data.CreatedAt,
		UpdatedAt: doc.Data.UpdatedAt,
	}, nil
}

func (r *ReviewRepository) Save(ctx context.Context, review domain.Review) error {
	_, err := r.base.Set(ctx, reviewDocumentID(review.ProductID, review.BuyerID), reviewDocument{
		ProductID: review.ProductID,
		BuyerID:   review.BuyerID,
		Rating:    review.Rating,
		Comment:   review.Comment,
		CreatedAt: review.CreatedAt.UTC(),
		UpdatedAt: review.UpdatedAt.UTC(),
	})
	return err
}

func reviewDocumentID(productID, buyerID string) string {
	return strings.TrimSpace(productID) + "_" + strings.TrimSpace(buyerID)
}

type reviewDocument struct {
	ProductID string    `firestore:"productId"`
	BuyerID   string    `firestore:"buyerId"`
	Rating    int       `firestore:"rating"`
	Comment   string    `firestore:"comment"`
	CreatedAt time.Time `firestore:"createdAt"`
	UpdatedAt time.Time `firestore:"updatedAt"`
}

var (
	_ repositories.ReviewPermissionRepository = (*ReviewPermissionRepository)(nil)
	_ repositories.ReviewRepository           = (*ReviewRepository)(nil)
)
