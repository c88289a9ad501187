package di

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/marketcart/api/internal/platform/config"
	"github.com/marketcart/api/internal/repositories"
	"github.com/marketcart/api/internal/services"
)

// Services bundles the service-layer contracts that handlers rely upon. Concrete implementations
// are assembled via dependency injection in NewContainer.
type Services struct {
	Checkout      services.CheckoutService
	Lifecycle     services.OrderLifecycleService
	Cancellations services.CancellationService
	Reviews       services.ReviewService
}

// Container wires repositories and services for runtime use.
type Container struct {
	Config       config.Config
	Repositories repositories.Registry
	Events       services.EventSink
	Services     Services
}

// Option customises collaborators that live outside the repository registry.
type Option func(*options)

type options struct {
	payments services.PaymentGateway
	metrics  services.Metrics
	logger   services.Logger
	clock    func() time.Time
}

// WithPaymentGateway sets the gateway used for external payments and refunds.
func WithPaymentGateway(gateway services.PaymentGateway) Option {
	return func(o *options) {
		o.payments = gateway
	}
}

// WithMetrics sets the order flow counters.
func WithMetrics(metrics services.Metrics) Option {
	return func(o *options) {
		o.metrics = metrics
	}
}

// WithLogger sets the structured event logger shared by services.
func WithLogger(logger services.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithClock overrides the service clock, primarily for tests.
func WithClock(clock func() time.Time) Option {
	return func(o *options) {
		o.clock = clock
	}
}

// NewContainer constructs the runtime dependencies. Tests can supply in-memory registries.
func NewContainer(_ context.Context, cfg config.Config, reg repositories.Registry, opts ...Option) (*Container, error) {
	if reg == nil {
		return nil, errors.New("repositories registry is required")
	}
	var o options
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	if o.payments == nil {
		return nil, errors.New("payment gateway is required")
	}

	sink, err := services.NewOutboxEventSink(reg.Outbox())
	if err != nil {
		return nil, fmt.Errorf("build event sink: %w", err)
	}

	svc, err := buildServices(reg, cfg, sink, o)
	if err != nil {
		return nil, err
	}

	return &Container{
		Config:       cfg,
		Repositories: reg,
		Events:       sink,
		Services:     svc,
	}, nil
}

// Close releases repository clients.
func (c *Container) Close(ctx context.Context) error {
	if c == nil || c.Repositories == nil {
		return nil
	}
	return c.Repositories.Close(ctx)
}

func buildServices(reg repositories.Registry, cfg config.Config, sink services.EventSink, o options) (Services, error) {
	var svc Services

	resolver, err := services.NewPricingResolver(services.PricingResolverDeps{
		Products:      reg.Products(),
		ShippingRates: reg.ShippingRates(),
		Concurrency:   cfg.Checkout.ResolverConcurrency,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build pricing resolver: %w", err)
	}

	ledger, err := services.NewInventoryLedger(services.InventoryLedgerDeps{
		Inventory: reg.Inventory(),
		Clock:     o.clock,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build inventory ledger: %w", err)
	}

	svc.Checkout, err = services.NewCheckoutService(services.CheckoutServiceDeps{
		Orders:           reg.Orders(),
		Products:         reg.Products(),
		Carts:            reg.Carts(),
		Addresses:        reg.Addresses(),
		PaymentHistories: reg.PaymentHistories(),
		Resolver:         resolver,
		Ledger:           ledger,
		Payments:         o.payments,
		Events:           sink,
		UnitOfWork:       reg,
		Metrics:          o.metrics,
		PaymentProvider:  cfg.PSP.Provider,
		Currency:         cfg.Checkout.Currency,
		SuccessURL:       cfg.PSP.SuccessURL,
		CancelURL:        cfg.PSP.CancelURL,
		Clock:            o.clock,
		Logger:           o.logger,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build checkout service: %w", err)
	}

	svc.Lifecycle, err = services.NewOrderLifecycleService(services.OrderLifecycleServiceDeps{
		Orders:            reg.Orders(),
		Products:          reg.Products(),
		ShippingRates:     reg.ShippingRates(),
		UserStats:         reg.UserStats(),
		ReviewPermissions: reg.ReviewPermissions(),
		Notifications:     reg.Notifications(),
		Events:            sink,
		UnitOfWork:        reg,
		Metrics:           o.metrics,
		Clock:             o.clock,
		Logger:            o.logger,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build order lifecycle service: %w", err)
	}

	svc.Cancellations, err = services.NewCancellationService(services.CancellationServiceDeps{
		Orders:        reg.Orders(),
		Products:      reg.Products(),
		ShippingRates: reg.ShippingRates(),
		UserStats:     reg.UserStats(),
		Payments:      o.payments,
		Events:        sink,
		UnitOfWork:    reg,
		Metrics:       o.metrics,
		Clock:         o.clock,
		Logger:        o.logger,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build cancellation service: %w", err)
	}

	svc.Reviews, err = services.NewReviewService(services.ReviewServiceDeps{
		Products:    reg.Products(),
		Permissions: reg.ReviewPermissions(),
		Reviews:     reg.Reviews(),
		Clock:       o.clock,
		Logger:      o.logger,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build review service: %w", err)
	}

	return svc, nil
}
