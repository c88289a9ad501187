package firestore

import (
	"context"
	"errors"
	"strings"

	domain "github.com/marketcart/api/internal/domain"
	pfirestore "github.com/marketcart/api/internal/platform/firestore"
	"github.com/marketcart/api/internal/repositories"
)

const (
	shippingRatesCollection   = "shippings"
	shipperRegistryCollection = "shipperRegistrations"
)

// ShippingRateRepository resolves shipping codes to prices and shipper accounts to the code they serve.
type ShippingRateRepository struct {
	rates         *pfirestore.BaseRepository[shippingRateDocument]
	registrations *pfirestore.BaseRepository[shipperRegistrationDocument]
}

// NewShippingRateRepository constructs a Firestore-backed shipping repository.
func NewShippingRateRepository(provider *pfirestore.Provider) (*ShippingRateRepository, error) {
	if provider == nil {
		return nil, errors.New("shipping rate repository requires firestore provider")
	}
	return &ShippingRateRepository{
		rates:         pfirestore.NewBaseRepository[shippingRateDocument](provider, shippingRatesCollection, nil, nil),
		registrations: pfirestore.NewBaseRepository[shipperRegistrationDocument](provider, shipperRegistryCollection, nil, nil),
	}, nil
}

func (r *ShippingRateRepository) FindByCode(ctx context.Context, code string) (domain.ShippingRate, error) {
	code = strings.TrimSpace(code)
	doc, err := r.rates.Get(ctx, code)
	if err != nil {
		return domain.ShippingRate{}, err
	}
	return domain.ShippingRate{
		Code:      code,
		Price:     doc.Data.Price,
		Company:   doc.Data.Company,
		From:      doc.Data.From,
		To:        doc.Data.To,
		ShipperID: doc.Data.ShipperID,
	}, nil
}

// FindRegistration looks up the shipping code a shipper account is registered for.
func (r *ShippingRateRepository) FindRegistration(ctx context.Context, shipperID string) (domain.ShipperRegistration, error) {
	shipperID = strings.TrimSpace(shipperID)
	doc, err := r.registrations.Get(ctx, shipperID)
	if err != nil {
		return domain.ShipperRegistration{}, err
	}
	return domain.ShipperRegistration{
		ShipperID: shipperID,
		Code:      doc.Data.Code,
		Company:   doc.Data.Company,
	}, nil
}

type shippingRateDocument struct {
	Price     int64  `firestore:"price"`
	Company   string `firestore:"company"`
	From      string `firestore:"from,omitempty"`
	To        string `firestore:"to,omitempty"`
	ShipperID string `firestore:"shipperId,omitempty"`
}

type shipperRegistrationDocument struct {
	Code    string `firestore:"code"`
	Company string `firestore:"company,omitempty"`
}

var _ repositories.ShippingRateRepository = (*ShippingRateRepository)(nil)
