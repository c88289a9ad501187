package firestore

import (
	"context"
	"errors"
	"fmt"

	pfirestore "github.com/marketcart/api/internal/platform/firestore"
	"github.com/marketcart/api/internal/repositories"
)

// RegistryOption customises the Firestore registry.
type RegistryOption func(*registryConfig)

type registryConfig struct {
	deps      []repositories.DependencyCheck
	environment string
	txOpts      []pfirestore.TxOption
}

// WithHealthChecks adds dependency checks (event transport, payment provider) to readiness checks.
func WithHealthChecks(deps ...repositories.DependencyCheck) RegistryOption {
	return func(cfg *registryConfig) {
		cfg.deps = append(cfg.deps, deps...)
	}
}

// WithHealthEnvironment labels health reports with the deployment environment.
func WithHealthEnvironment(env string) RegistryOption {
	return func(cfg *registryConfig) {
		cfg.environment = env
	}
}

// WithTransactionOptions overrides the retry and timeout settings of the unit of work.
func WithTransactionOptions(opts ...pfirestore.TxOption) RegistryOption {
	return func(cfg *registryConfig) {
		cfg.txOpts = append(cfg.txOpts, opts...)
	}
}

// Registry wires every Firestore repository against one shared provider.
type Registry struct {
	provider *pfirestore.Provider
	uow      *pfirestore.UnitOfWork
	health   repositories.HealthRepository

	orders            *OrderRepository
	products          *ProductRepository
	shippingRates     *ShippingRateRepository
	addresses         *AddressRepository
	carts             *CartRepository
	userStats         *UserStatsRepository
	inventory         *InventoryRepository
	paymentHistories  *PaymentHistoryRepository
	reviewPermissions *ReviewPermissionRepository
	reviews           *ReviewRepository
	notifications     *NotificationRepository
	outbox            *OutboxRepository
}

var _ repositories.Registry = (*Registry)(nil)

// NewRegistry constructs all repositories. The provider is owned by the registry and closed with it.
func NewRegistry(provider *pfirestore.Provider, opts ...RegistryOption) (*Registry, error) {
	if provider == nil {
		return nil, errors.New("registry requires firestore provider")
	}
	var cfg registryConfig
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}

	reg := &Registry{
		provider: provider,
		uow:      pfirestore.NewUnitOfWork(provider, cfg.txOpts...),
	}

	var err error
	if reg.orders, err = NewOrderRepository(provider); err != nil {
		return nil, err
	}
	if reg.products, err = NewProductRepository(provider); err != nil {
		return nil, err
	}
	if reg.shippingRates, err = NewShippingRateRepository(provider); err != nil {
		return nil, err
	}
	if reg.addresses, err = NewAddressRepository(provider); err != nil {
		return nil, err
	}
	if reg.carts, err = NewCartRepository(provider); err != nil {
		return nil, err
	}
	if reg.userStats, err = NewUserStatsRepository(provider); err != nil {
		return nil, err
	}
	if reg.inventory, err = NewInventoryRepository(provider); err != nil {
		return nil, err
	}
	if reg.paymentHistories, err = NewPaymentHistoryRepository(provider); err != nil {
		return nil, err
	}
	if reg.reviewPermissions, err = NewReviewPermissionRepository(provider); err != nil {
		return nil, err
	}
	if reg.reviews, err = NewReviewRepository(provider); err != nil {
		return nil, err
	}
	if reg.notifications, err = NewNotificationRepository(provider); err != nil {
		return nil, err
	}
	if reg.outbox, err = NewOutboxRepository(provider); err != nil {
		return nil, err
	}

	deps := append([]repositories.DependencyCheck{{
		Name:     "firestore",
		Critical: true,
		Check:    provider.Ping,
	}}, cfg.deps...)
	var healthOpts []repositories.HealthOption
	if cfg.environment != "" {
		healthOpts = append(healthOpts, repositories.WithEnvironment(cfg.environment))
	}
	if reg.health, err = repositories.NewDependencyHealthRepository(deps, healthOpts...); err != nil {
		return nil, fmt.Errorf("registry: health: %w", err)
	}
	return reg, nil
}

func (r *Registry) Close(ctx context.Context) error {
	return r.provider.Close(ctx)
}

func (r *Registry) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return r.uow.RunInTx(ctx, fn)
}

func (r *Registry) Orders() repositories.OrderRepository {
	return r.orders
}

func (r *Registry) Products() repositories.ProductRepository {
	return r.products
}

func (r *Registry) ShippingRates() repositories.ShippingRateRepository {
	return r.shippingRates
}

func (r *Registry) Addresses() repositories.AddressRepository {
	return r.addresses
}

func (r *Registry) Carts() repositories.CartRepository {
	return r.carts
}

func (r *Registry) UserStats() repositories.UserStatsRepository {
	return r.userStats
}

func (r *Registry) Inventory() repositories.InventoryRepository {
	return r.inventory
}

func (r *Registry) PaymentHistories() repositories.PaymentHistoryRepository {
	return r.paymentHistories
}

func (r *Registry) ReviewPermissions() repositories.ReviewPermissionRepository {
	return r.reviewPermissions
}

func (r *Registry) Reviews() repositories.ReviewRepository {
	return r.reviews
}

func (r *Registry) Notifications() repositories.NotificationRepository {
	return r.notifications
}

func (r *Registry) Outbox() repositories.OutboxRepository {
	return r.outbox
}

func (r *Registry) Health() repositories.HealthRepository {
	return r.health
}
