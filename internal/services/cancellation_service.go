package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	domain "github.com/marketcart/api/internal/domain"
	"github.com/marketcart/api/internal/payments"
	"github.com/marketcart/api/internal/platform/observability"
	"github.com/marketcart/api/internal/repositories"
)

// CancellationServiceDeps bundles collaborators required to construct the cancellation service.
type CancellationServiceDeps struct {
	Orders        repositories.OrderRepository
	Products      repositories.ProductRepository
	ShippingRates repositories.ShippingRateRepository
	UserStats     repositories.UserStatsRepository
	Payments      PaymentGateway
	Events        EventSink
	UnitOfWork    repositories.UnitOfWork
	Metrics       Metrics
	Clock         func() time.Time
	Logger        Logger
}

type cancellationService struct {
	orders     repositories.OrderRepository
	products   repositories.ProductRepository
	rates      repositories.ShippingRateRepository
	stats      repositories.UserStatsRepository
	payments   PaymentGateway
	events     EventSink
	unitOfWork repositories.UnitOfWork
	metrics    Metrics
	clock      func() time.Time
	logger     Logger
}

// NewCancellationService wires dependencies into a concrete CancellationService implementation.
func NewCancellationService(deps CancellationServiceDeps) (CancellationService, error) {
	switch {
	case deps.Orders == nil:
		return nil, errors.New("cancellation service: order repository is required")
	case deps.Products == nil:
		return nil, errors.New("cancellation service: product repository is required")
	case deps.ShippingRates == nil:
		return nil, errors.New("cancellation service: shipping rate repository is required")
	case deps.UserStats == nil:
		return nil, errors.New("cancellation service: user stats repository is required")
	case deps.Events == nil:
		return nil, errors.New("cancellation service: event sink is required")
	}
	unit := deps.UnitOfWork
	if unit == nil {
		unit = noopUnitOfWork{}
	}
	metrics := deps.Metrics
	if metrics == nil {
		metrics = noopMetrics{}
	}
	return &cancellationService{
		orders:     deps.Orders,
		products:   deps.Products,
		rates:      deps.ShippingRates,
		stats:      deps.UserStats,
		payments:   deps.Payments,
		events:     deps.Events,
		unitOfWork: unit,
		metrics:    metrics,
		clock:      defaultClock(deps.Clock),
		logger:     defaultLogger(deps.Logger),
	}, nil
}

// cancelRequest describes one cancellation run against a single order.
type cancelRequest struct {
	actor        domain.Actor
	by           domain.CancelActor
	orderID      string
	itemID       string
	reason       string
	clientReject bool
	// authorize checks the actor's scope over the order and, when set, the targeted item.
	authorize func(order domain.Order, item *domain.OrderItem) error
}

type cancelOutcome struct {
	order     domain.Order
	cancelled []domain.OrderItem
}

func (s *cancellationService) CancelBySeller(ctx context.Context, actor domain.Actor, cmd CancelItemCommand) (domain.OrderItem, error) {
	if !actor.Is(domain.RoleSeller) {
		return domain.OrderItem{}, fmt.Errorf("%w: seller role required", ErrForbidden)
	}
	if err := validateTransition(TransitionCommand{OrderID: cmd.OrderID, ItemID: cmd.ItemID}); err != nil {
		return domain.OrderItem{}, err
	}
	outcome, err := s.cancel(ctx, cancelRequest{
		actor:   actor,
		by:      domain.CancelActorSeller,
		orderID: cmd.OrderID,
		itemID:  cmd.ItemID,
		reason:  cmd.Reason,
		authorize: func(_ domain.Order, item *domain.OrderItem) error {
			if item.SellerID != actor.ID {
				return fmt.Errorf("%w: item %s belongs to another seller", ErrForbidden, item.ID)
			}
			return nil
		},
	})
	if err != nil {
		return domain.OrderItem{}, err
	}
	return outcome.cancelled[0], nil
}

func (s *cancellationService) CancelByShipper(ctx context.Context, actor domain.Actor, cmd CancelItemCommand) (domain.OrderItem, error) {
	if !actor.Is(domain.RoleShipper) {
		return domain.OrderItem{}, fmt.Errorf("%w: shipper role required", ErrForbidden)
	}
	if err := validateTransition(TransitionCommand{OrderID: cmd.OrderID, ItemID: cmd.ItemID}); err != nil {
		return domain.OrderItem{}, err
	}
	registration, err := s.rates.FindRegistration(ctx, actor.ID)
	if err != nil {
		return domain.OrderItem{}, notFoundAs(err, ErrValidation, "shipper %s has no shipping registration", actor.ID)
	}
	outcome, err := s.cancel(ctx, cancelRequest{
		actor:        actor,
		by:           domain.CancelActorShipper,
		orderID:      cmd.OrderID,
		itemID:       cmd.ItemID,
		reason:       cmd.Reason,
		clientReject: cmd.ClientReject,
		authorize: func(_ domain.Order, item *domain.OrderItem) error {
			if item.ShippingCode != registration.Code {
				return fmt.Errorf("%w: item %s is not served by shipping code %s", ErrForbidden, item.ID, registration.Code)
			}
			return nil
		},
	})
	if err != nil {
		return domain.OrderItem{}, err
	}
	return outcome.cancelled[0], nil
}

func (s *cancellationService) CancelItemByBuyer(ctx context.Context, actor domain.Actor, cmd BuyerCancelItemCommand) (domain.OrderItem, error) {
	if err := validateTransition(TransitionCommand{OrderID: cmd.OrderID, ItemID: cmd.ItemID}); err != nil {
		return domain.OrderItem{}, err
	}
	outcome, err := s.cancel(ctx, cancelRequest{
		actor:     actor,
		by:        domain.CancelActorBuyer,
		orderID:   cmd.OrderID,
		itemID:    cmd.ItemID,
		reason:    cmd.Reason,
		authorize: buyerOwns(actor),
	})
	if err != nil {
		return domain.OrderItem{}, err
	}
	return outcome.cancelled[0], nil
}

func (s *cancellationService) CancelOrderByBuyer(ctx context.Context, actor domain.Actor, orderID, reason string) (domain.Order, error) {
	if strings.TrimSpace(orderID) == "" {
		return domain.Order{}, fmt.Errorf("%w: order id is required", ErrValidation)
	}
	outcome, err := s.cancel(ctx, cancelRequest{
		actor:     actor,
		by:        domain.CancelActorBuyer,
		orderID:   orderID,
		reason:    reason,
		authorize: buyerOwns(actor),
	})
	if err != nil {
		return domain.Order{}, err
	}
	return outcome.order, nil
}

func buyerOwns(actor domain.Actor) func(domain.Order, *domain.OrderItem) error {
	return func(order domain.Order, _ *domain.OrderItem) error {
		if strings.TrimSpace(actor.ID) == "" || order.BuyerID != actor.ID {
			return fmt.Errorf("%w: order %s", ErrNotFound, order.ID)
		}
		return nil
	}
}

// cancel flags the targeted items and applies every compensation in one transaction. An empty
// itemID cancels all items still inside the actor's window.
func (s *cancellationService) cancel(ctx context.Context, req cancelRequest) (outcome cancelOutcome, err error) {
	ctx, end := observability.StartSpan(ctx, "cancellation.Cancel",
		attribute.String("order.id", req.orderID),
		attribute.String("item.id", req.itemID),
		attribute.String("cancel.actor", string(req.by)))
	defer func() { end(err) }()

	err = s.unitOfWork.RunInTx(ctx, func(txCtx context.Context) error {
		outcome = cancelOutcome{}
		order, err := s.orders.FindByID(txCtx, req.orderID)
		if err != nil {
			return notFoundAs(err, ErrNotFound, "order %s", req.orderID)
		}

		var targets []*domain.OrderItem
		if req.itemID != "" {
			item, ok := order.Item(req.itemID)
			if !ok {
				return fmt.Errorf("%w: item %s in order %s", ErrNotFound, req.itemID, req.orderID)
			}
			if err := req.authorize(order, item); err != nil {
				return err
			}
			if !domain.CancelWindowOpen(req.by, *item) {
				return fmt.Errorf("%w: item %s cannot be cancelled by %s from %s", ErrNotFound, item.ID, req.by, item.Status)
			}
			targets = append(targets, item)
		} else {
			if err := req.authorize(order, nil); err != nil {
				return err
			}
			for i := range order.Items {
				if domain.CancelWindowOpen(req.by, order.Items[i]) {
					targets = append(targets, &order.Items[i])
				}
			}
			if len(targets) == 0 {
				return fmt.Errorf("%w: order %s has no items %s may cancel", ErrNotFound, order.ID, req.by)
			}
		}

		now := s.clock()
		refund := order.PaymentMethod == domain.PaymentMethodExternal
		var delta repositories.UserStatsDelta
		payloads := make([]domain.ItemCancelledPayload, 0, len(targets))
		for _, item := range targets {
			from := item.Status
			if err := item.Cancel(req.by, req.actor.ID, strings.TrimSpace(req.reason), now); err != nil {
				return err
			}
			if refund {
				item.PaymentStatus = domain.ItemPaymentRefund
			} else {
				item.PaymentStatus = domain.ItemPaymentCancelled
			}
			if req.clientReject && req.by == domain.CancelActorShipper {
				item.ClientRejected = true
				delta.TotalOrderReject++
			}
			if req.by == domain.CancelActorBuyer {
				delta.TotalCancel++
			}
			payloads = append(payloads, domain.ItemCancelledPayload{
				OrderID:       order.ID,
				ItemID:        item.ID,
				BuyerID:       order.BuyerID,
				ProductID:     item.ProductID,
				VariantID:     item.VariantID,
				Quantity:      item.Quantity,
				Actor:         string(req.by),
				Reason:        item.Cancellation.Reason,
				FromStatus:    string(from),
				Refund:        refund,
				ClientRejects: item.ClientRejected,
			})
		}
		order.UpdatedAt = now

		if err := s.orders.Update(txCtx, order); err != nil {
			return err
		}
		for _, item := range targets {
			if err := s.products.AdjustVariantQuantity(txCtx, item.ProductID, item.VariantID, item.Quantity); err != nil {
				return err
			}
		}
		if delta != (repositories.UserStatsDelta{}) {
			if err := s.stats.Increment(txCtx, order.BuyerID, delta); err != nil {
				return err
			}
		}
		for _, payload := range payloads {
			if err := s.events.Emit(txCtx, domain.Event{
				AggregateID: order.ID,
				ActorID:     req.actor.ID,
				OccurredAt:  now,
				Payload:     payload,
			}); err != nil {
				return err
			}
		}

		outcome.order = order
		for _, item := range targets {
			outcome.cancelled = append(outcome.cancelled, *item)
		}
		return nil
	})
	if err != nil {
		mapped := mapRepositoryError(err)
		if errors.Is(mapped, ErrInternal) {
			s.logger(ctx, "cancellation.commit.error", map[string]any{
				"orderId": req.orderID,
				"itemId":  req.itemID,
				"actor":   string(req.by),
				"error":   err,
			})
		}
		return cancelOutcome{}, mapped
	}

	for _, item := range outcome.cancelled {
		s.metrics.ItemCancelled(ctx, string(req.by))
		s.logger(ctx, "cancellation.item.cancelled", map[string]any{
			"orderId":  outcome.order.ID,
			"itemId":   item.ID,
			"actor":    string(req.by),
			"actorId":  req.actor.ID,
			"from":     string(item.Cancellation.FromStatus),
			"quantity": item.Quantity,
		})
		if outcome.order.PaymentMethod == domain.PaymentMethodExternal {
			s.refundItem(ctx, outcome.order, item)
		}
	}
	return outcome, nil
}

// refundItem asks the provider to return the item's share of the capture. Failures are logged
// for reconciliation; the cancellation itself has already committed.
func (s *cancellationService) refundItem(ctx context.Context, order domain.Order, item domain.OrderItem) {
	if s.payments == nil || order.PaymentID == "" {
		s.logger(ctx, "cancellation.refund.skipped", map[string]any{"orderId": order.ID, "itemId": item.ID})
		return
	}
	amount := item.TotalPaid
	_, err := s.payments.Refund(ctx, payments.PaymentContext{Currency: order.Currency}, payments.RefundRequest{
		PaymentID:      order.PaymentID,
		Amount:         &amount,
		Reason:         item.Cancellation.Reason,
		IdempotencyKey: "refund-" + item.ID,
		Metadata: map[string]string{
			"order_id": order.ID,
			"item_id":  item.ID,
		},
	})
	if err != nil {
		s.metrics.PaymentCallback(ctx, "refund_failed")
		s.logger(ctx, "cancellation.refund.failed", map[string]any{
			"orderId":   order.ID,
			"itemId":    item.ID,
			"paymentId": order.PaymentID,
			"amount":    amount,
			"error":     err,
		})
		return
	}
	s.metrics.PaymentCallback(ctx, "refunded")
}
