package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	domain "github.com/marketcart/api/internal/domain"
	pfirestore "github.com/marketcart/api/internal/platform/firestore"
	"github.com/marketcart/api/internal/repositories"
)

const addressCollectionPattern = "users/%s/addresses"

// AddressRepository reads user addresses and returns them as order snapshots.
type AddressRepository struct {
	provider *pfirestore.Provider
}

// NewAddressRepository constructs a Firestore-backed address repository.
func NewAddressRepository(provider *pfirestore.Provider) (*AddressRepository, error) {
	if provider == nil {
		return nil, errors.New("address repository requires firestore provider")
	}
	return &AddressRepository{provider: provider}, nil
}

func (r *AddressRepository) FindByID(ctx context.Context, userID, addressID string) (domain.AddressSnapshot, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return domain.AddressSnapshot{}, errors.New("address repository: user id is required")
	}
	base := pfirestore.NewBaseRepository[addressDocument](r.provider, fmt.Sprintf(addressCollectionPattern, userID), nil, nil)
	doc, err := base.Get(ctx, strings.TrimSpace(addressID))
	if err != nil {
		return domain.AddressSnapshot{}, err
	}
	return doc.Data.toSnapshot(doc.ID), nil
}

type addressDocument struct {
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

func (d addressDocument) toSnapshot(id string) domain.AddressSnapshot {
	return domain.AddressSnapshot{
		ID:         id,
		Recipient:  strings.TrimSpace(d.Recipient),
		Phone:      strings.TrimSpace(d.Phone),
		Line1:      strings.TrimSpace(d.Line1),
		Line2:      strings.TrimSpace(d.Line2),
		Ward:       strings.TrimSpace(d.Ward),
		District:   strings.TrimSpace(d.District),
		City:       strings.TrimSpace(d.City),
		PostalCode: strings.TrimSpace(d.PostalCode),
		Country:    strings.TrimSpace(d.Country),
	}
}

var _ repositories.AddressRepository = (*AddressRepository)(nil)
