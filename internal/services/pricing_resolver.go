package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	domain "github.com/marketcart/api/internal/domain"
	"github.com/marketcart/api/internal/repositories"
)

const defaultResolverConcurrency = 8

var hundred = decimal.NewFromInt(100)

// PricingResolverDeps bundles collaborators required to construct the pricing resolver.
type PricingResolverDeps struct {
	Products      repositories.ProductRepository
	ShippingRates repositories.ShippingRateRepository
	Concurrency   int
}

type pricingResolver struct {
	products    repositories.ProductRepository
	rates       repositories.ShippingRateRepository
	concurrency int
}

// NewPricingResolver constructs a resolver that fetches rates and products in parallel.
func NewPricingResolver(deps PricingResolverDeps) (PricingResolver, error) {
	if deps.Products == nil {
		return nil, errors.New("pricing resolver: product repository is required")
	}
	if deps.ShippingRates == nil {
		return nil, errors.New("pricing resolver: shipping rate repository is required")
	}
	concurrency := deps.Concurrency
	if concurrency <= 0 {
		concurrency = defaultResolverConcurrency
	}
	return &pricingResolver{
		products:    deps.Products,
		rates:       deps.ShippingRates,
		concurrency: concurrency,
	}, nil
}

type variantKey struct {
	productID string
	variantID string
}

// Resolve prices every line. It performs reads only.
func (r *pricingResolver) Resolve(ctx context.Context, lines []domain.LineRequest) ([]domain.PricedLine, domain.Totals, error) {
	if len(lines) == 0 {
		return nil, domain.Totals{}, fmt.Errorf("%w: at least one item is required", ErrValidation)
	}

	requested := make(map[variantKey]int, len(lines))
	var codes, productIDs []string
	seenCode := map[string]bool{}
	seenProduct := map[string]bool{}
	for i, line := range lines {
		line.ProductID = strings.TrimSpace(line.ProductID)
		line.VariantID = strings.TrimSpace(line.VariantID)
		line.ShippingCode = strings.TrimSpace(line.ShippingCode)
		switch {
		case line.ProductID == "" || line.VariantID == "":
			return nil, domain.Totals{}, fmt.Errorf("%w: item %d: product and variant are required", ErrValidation, i)
		case line.ShippingCode == "":
			return nil, domain.Totals{}, fmt.Errorf("%w: item %d: shipping code is required", ErrValidation, i)
		case line.Quantity <= 0:
			return nil, domain.Totals{}, fmt.Errorf("%w: item %d: quantity must be positive", ErrValidation, i)
		}
		lines[i] = line
		requested[variantKey{line.ProductID, line.VariantID}] += line.Quantity
		if !seenCode[line.ShippingCode] {
			seenCode[line.ShippingCode] = true
			codes = append(codes, line.ShippingCode)
		}
		if !seenProduct[line.ProductID] {
			seenProduct[line.ProductID] = true
			productIDs = append(productIDs, line.ProductID)
		}
	}

	var (
		mu       sync.Mutex
		rates    = make(map[string]domain.ShippingRate, len(codes))
		products = make(map[string]domain.Product, len(productIDs))
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)
	for _, code := range codes {
		g.Go(func() error {
			rate, err := r.rates.FindByCode(gctx, code)
			if err != nil {
				return notFoundAs(err, ErrValidation, "unknown shipping code %s", code)
			}
			mu.Lock()
			rates[code] = rate
			mu.Unlock()
			return nil
		})
	}
	for _, id := range productIDs {
		g.Go(func() error {
			product, err := r.products.FindByID(gctx, id)
			if err != nil {
				return notFoundAs(err, ErrValidation, "unknown product %s", id)
			}
			mu.Lock()
			products[id] = product
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, domain.Totals{}, err
	}

	priced := make([]domain.PricedLine, 0, len(lines))
	for _, line := range lines {
		product := products[line.ProductID]
		variant, ok := product.Variant(line.VariantID)
		if !ok {
			return nil, domain.Totals{}, fmt.Errorf("%w: unknown variant %s of product %s", ErrValidation, line.VariantID, line.ProductID)
		}
		if err := checkStock(variant, requested[variantKey{line.ProductID, line.VariantID}]); err != nil {
			return nil, domain.Totals{}, fmt.Errorf("%w: %w", ErrValidation, err)
		}
		rate := rates[line.ShippingCode]
		priced = append(priced, domain.PricedLine{
			ProductID:       product.ID,
			VariantID:       variant.ID,
			SellerID:        product.SellerID,
			ProductName:     product.Name,
			VariantName:     variant.Name,
			ShippingCode:    line.ShippingCode,
			Quantity:        line.Quantity,
			UnitPrice:       variant.Price,
			DiscountPercent: variant.DiscountPercent,
			ShippingCost:    rate.Price,
			TotalPaid:       lineTotal(variant.Price, line.Quantity, variant.DiscountPercent, rate.Price),
		})
	}
	return priced, domain.SumTotals(priced), nil
}

// lineTotal computes price*quantity*(1-discount/100)+shipping in minor units, rounding half
// away from zero to the nearest minor unit.
func lineTotal(unitPrice int64, quantity, discountPercent int, shipping int64) int64 {
	goods := decimal.NewFromInt(unitPrice).
		Mul(decimal.NewFromInt(int64(quantity))).
		Mul(hundred.Sub(decimal.NewFromInt(int64(discountPercent)))).
		Div(hundred).
		Round(0)
	return goods.Add(decimal.NewFromInt(shipping)).IntPart()
}

var errInsufficientStock = errors.New("insufficient stock")

// checkStock rejects requests that would leave the variant with nothing on hand.
func checkStock(variant domain.Variant, requested int) error {
	if variant.Quantity-requested <= 0 {
		return fmt.Errorf("%w: variant %s has %d, requested %d", errInsufficientStock, variant.ID, variant.Quantity, requested)
	}
	return nil
}
