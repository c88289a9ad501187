package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"slices"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	domain "github.com/marketcart/api/internal/domain"
	"github.com/marketcart/api/internal/platform/observability"
	"github.com/marketcart/api/internal/repositories"
)

// OrderLifecycleServiceDeps bundles collaborators required to construct the lifecycle service.
type OrderLifecycleServiceDeps struct {
	Orders            repositories.OrderRepository
	Products          repositories.ProductRepository
	ShippingRates     repositories.ShippingRateRepository
	UserStats         repositories.UserStatsRepository
	ReviewPermissions repositories.ReviewPermissionRepository
	Notifications     repositories.NotificationRepository
	Events            EventSink
	UnitOfWork        repositories.UnitOfWork
	Metrics           Metrics
	Language          language.Tag
	Clock             func() time.Time
	IDGenerator       func() string
	Logger            Logger
}

type orderLifecycleService struct {
	orders        repositories.OrderRepository
	products      repositories.ProductRepository
	rates         repositories.ShippingRateRepository
	stats         repositories.UserStatsRepository
	permissions   repositories.ReviewPermissionRepository
	notifications repositories.NotificationRepository
	events        EventSink
	unitOfWork    repositories.UnitOfWork
	metrics       Metrics
	printer       *message.Printer
	clock         func() time.Time
	newID         func() string
	logger        Logger
}

// NewOrderLifecycleService wires dependencies into a concrete OrderLifecycleService implementation.
func NewOrderLifecycleService(deps OrderLifecycleServiceDeps) (OrderLifecycleService, error) {
	switch {
	case deps.Orders == nil:
		return nil, errors.New("order lifecycle service: order repository is required")
	case deps.Products == nil:
		return nil, errors.New("order lifecycle service: product repository is required")
	case deps.ShippingRates == nil:
		return nil, errors.New("order lifecycle service: shipping rate repository is required")
	case deps.UserStats == nil:
		return nil, errors.New("order lifecycle service: user stats repository is required")
	case deps.ReviewPermissions == nil:
		return nil, errors.New("order lifecycle service: review permission repository is required")
	case deps.Notifications == nil:
		return nil, errors.New("order lifecycle service: notification repository is required")
	case deps.Events == nil:
		return nil, errors.New("order lifecycle service: event sink is required")
	}

	unit := deps.UnitOfWork
	if unit == nil {
		unit = noopUnitOfWork{}
	}
	metrics := deps.Metrics
	if metrics == nil {
		metrics = noopMetrics{}
	}
	tag := deps.Language
	if tag == language.Und {
		tag = language.English
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string {
			return "ntf_" + ulid.Make().String()
		}
	}

	return &orderLifecycleService{
		orders:        deps.Orders,
		products:      deps.Products,
		rates:         deps.ShippingRates,
		stats:         deps.UserStats,
		permissions:   deps.ReviewPermissions,
		notifications: deps.Notifications,
		events:        deps.Events,
		unitOfWork:    unit,
		metrics:       metrics,
		printer:       message.NewPrinter(tag),
		clock:         defaultClock(deps.Clock),
		newID:         idGen,
		logger:        defaultLogger(deps.Logger),
	}, nil
}

func (s *orderLifecycleService) AdvanceBySeller(ctx context.Context, actor domain.Actor, cmd TransitionCommand) (item domain.OrderItem, err error) {
	ctx, end := observability.StartSpan(ctx, "lifecycle.AdvanceBySeller",
		attribute.String("order.id", cmd.OrderID), attribute.String("item.id", cmd.ItemID))
	defer func() { end(err) }()

	if !actor.Is(domain.RoleSeller) {
		return domain.OrderItem{}, fmt.Errorf("%w: seller role required", ErrForbidden)
	}
	if err := validateTransition(cmd); err != nil {
		return domain.OrderItem{}, err
	}

	var from domain.ItemStatus
	err = s.unitOfWork.RunInTx(ctx, func(txCtx context.Context) error {
		order, target, err := s.loadItem(txCtx, cmd)
		if err != nil {
			return err
		}
		if target.SellerID != actor.ID {
			return fmt.Errorf("%w: item %s belongs to another seller", ErrForbidden, target.ID)
		}
		if !domain.SellerCanAdvance(*target) {
			return fmt.Errorf("%w: item %s cannot be advanced by seller from %s", ErrNotFound, target.ID, target.Status)
		}
		from = target.Status
		now := s.clock()
		if _, err := target.Advance(now); err != nil {
			return err
		}
		order.UpdatedAt = now
		if err := s.orders.Update(txCtx, order); err != nil {
			return err
		}
		item = *target
		if from != domain.ItemStatusOrdered {
			return nil
		}
		return s.notify(txCtx, actor, order, *target, domain.NotificationKindOrder, now)
	})
	if err != nil {
		return domain.OrderItem{}, s.classify(ctx, "lifecycle.seller_advance.error", err, cmd)
	}
	s.advanced(ctx, actor, cmd, from, item.Status)
	return item, nil
}

func (s *orderLifecycleService) AdvanceByShipper(ctx context.Context, actor domain.Actor, cmd TransitionCommand) (item domain.OrderItem, err error) {
	ctx, end := observability.StartSpan(ctx, "lifecycle.AdvanceByShipper",
		attribute.String("order.id", cmd.OrderID), attribute.String("item.id", cmd.ItemID))
	defer func() { end(err) }()

	if !actor.Is(domain.RoleShipper) {
		return domain.OrderItem{}, fmt.Errorf("%w: shipper role required", ErrForbidden)
	}
	if err := validateTransition(cmd); err != nil {
		return domain.OrderItem{}, err
	}
	registration, err := s.rates.FindRegistration(ctx, actor.ID)
	if err != nil {
		return domain.OrderItem{}, notFoundAs(err, ErrValidation, "shipper %s has no shipping registration", actor.ID)
	}

	var from domain.ItemStatus
	err = s.unitOfWork.RunInTx(ctx, func(txCtx context.Context) error {
		order, target, err := s.loadItem(txCtx, cmd)
		if err != nil {
			return err
		}
		if target.ShippingCode != registration.Code {
			return fmt.Errorf("%w: item %s is not served by shipping code %s", ErrForbidden, target.ID, registration.Code)
		}
		if !domain.ShipperCanAdvance(*target) {
			return fmt.Errorf("%w: item %s cannot be advanced by shipper from %s", ErrNotFound, target.ID, target.Status)
		}
		from = target.Status
		now := s.clock()
		to, err := target.Advance(now)
		if err != nil {
			return err
		}
		if to == domain.ItemStatusCompleted {
			target.PaymentStatus = domain.ItemPaymentCompleted
		}
		order.UpdatedAt = now
		if err := s.orders.Update(txCtx, order); err != nil {
			return err
		}
		item = *target

		switch to {
		case domain.ItemStatusDelivered:
			return s.notify(txCtx, actor, order, *target, domain.NotificationKindDelivery, now)
		case domain.ItemStatusCompleted:
			if err := s.stats.Increment(txCtx, order.BuyerID, repositories.UserStatsDelta{TotalBuy: 1}); err != nil {
				return err
			}
			if err := s.products.IncrementSold(txCtx, target.ProductID, target.Quantity); err != nil {
				return err
			}
			return s.permissions.Grant(txCtx, target.ProductID, order.BuyerID, now)
		}
		return nil
	})
	if err != nil {
		return domain.OrderItem{}, s.classify(ctx, "lifecycle.shipper_advance.error", err, cmd)
	}
	s.advanced(ctx, actor, cmd, from, item.Status)
	return item, nil
}

func (s *orderLifecycleService) GetOrder(ctx context.Context, actor domain.Actor, orderID string) (domain.Order, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return domain.Order{}, fmt.Errorf("%w: order id is required", ErrValidation)
	}
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return domain.Order{}, notFoundAs(err, ErrNotFound, "order %s", orderID)
	}
	visible, err := s.canView(ctx, actor, order)
	if err != nil {
		return domain.Order{}, err
	}
	if !visible {
		return domain.Order{}, fmt.Errorf("%w: order %s", ErrNotFound, orderID)
	}
	return order, nil
}

func (s *orderLifecycleService) ListBuyerOrders(ctx context.Context, actor domain.Actor, filter domain.OrderStatusFilter, pager domain.Pagination) (domain.CursorPage[domain.Order], error) {
	if strings.TrimSpace(actor.ID) == "" {
		return domain.CursorPage[domain.Order]{}, fmt.Errorf("%w: authenticated buyer is required", ErrForbidden)
	}
	if _, ok := domain.ParseOrderStatusFilter(string(filter)); !ok {
		return domain.CursorPage[domain.Order]{}, fmt.Errorf("%w: unknown status filter %q", ErrValidation, filter)
	}
	page, err := s.orders.ListByBuyer(ctx, actor.ID, filter.Statuses(), pager)
	if err != nil {
		return domain.CursorPage[domain.Order]{}, s.classifyList(ctx, "lifecycle.list_buyer.error", err, actor)
	}
	return page, nil
}

// ListSellerPending pages the seller's work queue: orders with an item still to pack or ship.
func (s *orderLifecycleService) ListSellerPending(ctx context.Context, actor domain.Actor, pager domain.Pagination) (domain.CursorPage[domain.Order], error) {
	if !actor.Is(domain.RoleSeller) {
		return domain.CursorPage[domain.Order]{}, fmt.Errorf("%w: seller role required", ErrForbidden)
	}
	page, err := s.orders.ListPendingBySeller(ctx, actor.ID, pager)
	if err != nil {
		return domain.CursorPage[domain.Order]{}, s.classifyList(ctx, "lifecycle.list_seller.error", err, actor)
	}
	return page, nil
}

// ListShipperQueue pages orders carrying an item in transit with the shipper's registered code.
func (s *orderLifecycleService) ListShipperQueue(ctx context.Context, actor domain.Actor, pager domain.Pagination) (domain.CursorPage[domain.Order], error) {
	if !actor.Is(domain.RoleShipper) {
		return domain.CursorPage[domain.Order]{}, fmt.Errorf("%w: shipper role required", ErrForbidden)
	}
	registration, err := s.rates.FindRegistration(ctx, actor.ID)
	if err != nil {
		if isRepoNotFound(err) {
			return domain.CursorPage[domain.Order]{}, fmt.Errorf("%w: shipper %s has no registered shipping code", ErrForbidden, actor.ID)
		}
		return domain.CursorPage[domain.Order]{}, s.classifyList(ctx, "lifecycle.list_shipper.error", err, actor)
	}
	page, err := s.orders.ListActiveByShippingCode(ctx, registration.Code, pager)
	if err != nil {
		return domain.CursorPage[domain.Order]{}, s.classifyList(ctx, "lifecycle.list_shipper.error", err, actor)
	}
	return page, nil
}

func (s *orderLifecycleService) SellerEarnings(ctx context.Context, actor domain.Actor) (SellerEarnings, error) {
	if !actor.Is(domain.RoleSeller) {
		return SellerEarnings{}, fmt.Errorf("%w: seller role required", ErrForbidden)
	}
	orders, err := s.orders.ListBySeller(ctx, actor.ID)
	if err != nil {
		return SellerEarnings{}, mapRepositoryError(err)
	}
	earnings := SellerEarnings{SellerID: actor.ID}
	for _, order := range orders {
		for _, item := range order.Items {
			if item.SellerID != actor.ID || item.Status != domain.ItemStatusCompleted || item.IsCancelled() {
				continue
			}
			earnings.CompletedItems++
			earnings.Amount += item.TotalPaid - item.ShippingCost
		}
	}
	return earnings, nil
}

func (s *orderLifecycleService) canView(ctx context.Context, actor domain.Actor, order domain.Order) (bool, error) {
	switch {
	case actor.Is(domain.RoleAdmin):
		return true, nil
	case actor.ID != "" && actor.ID == order.BuyerID:
		return true, nil
	case actor.Is(domain.RoleSeller):
		return slices.Contains(order.SellerIDs, actor.ID), nil
	case actor.Is(domain.RoleShipper):
		registration, err := s.rates.FindRegistration(ctx, actor.ID)
		if err != nil {
			if isRepoNotFound(err) {
				return false, nil
			}
			return false, mapRepositoryError(err)
		}
		return slices.ContainsFunc(order.Items, func(item domain.OrderItem) bool {
			return item.ShippingCode == registration.Code
		}), nil
	}
	return false, nil
}

func (s *orderLifecycleService) loadItem(ctx context.Context, cmd TransitionCommand) (domain.Order, *domain.OrderItem, error) {
	order, err := s.orders.FindByID(ctx, cmd.OrderID)
	if err != nil {
		return domain.Order{}, nil, notFoundAs(err, ErrNotFound, "order %s", cmd.OrderID)
	}
	item, ok := order.Item(cmd.ItemID)
	if !ok {
		return domain.Order{}, nil, fmt.Errorf("%w: item %s in order %s", ErrNotFound, cmd.ItemID, cmd.OrderID)
	}
	return order, item, nil
}

// notify stores the buyer notification and queues its push event. Write only.
func (s *orderLifecycleService) notify(ctx context.Context, actor domain.Actor, order domain.Order, item domain.OrderItem, kind domain.NotificationKind, at time.Time) error {
	notification := domain.Notification{
		ID:     s.newID(),
		UserID: order.BuyerID,
		Target: domain.NotificationTarget{
			Kind:      kind,
			OrderID:   order.ID,
			ItemID:    item.ID,
			ProductID: item.ProductID,
		},
		CreatedAt: at,
	}
	eventType := domain.EventNotifyOrder
	amount := s.formatAmount(item.TotalPaid, order.Currency)
	switch kind {
	case domain.NotificationKindDelivery:
		eventType = domain.EventNotifyDelivery
		notification.Title = s.printer.Sprintf("Delivered: %s", item.ProductName)
		notification.Content = s.printer.Sprintf("%d x %s (%s) has been delivered.", item.Quantity, item.ProductName, amount)
	default:
		notification.Title = s.printer.Sprintf("Order confirmed: %s", item.ProductName)
		notification.Content = s.printer.Sprintf("The seller confirmed %d x %s (%s) and is packing it.", item.Quantity, item.ProductName, amount)
	}
	if err := s.notifications.Insert(ctx, notification); err != nil {
		return err
	}
	return s.events.Emit(ctx, domain.Event{
		AggregateID: order.ID,
		ActorID:     actor.ID,
		OccurredAt:  at,
		Payload: domain.NotificationPayload{
			Type:           eventType,
			NotificationID: notification.ID,
			UserID:         notification.UserID,
			Title:          notification.Title,
			Content:        notification.Content,
			Kind:           string(kind),
			OrderID:        order.ID,
			ItemID:         item.ID,
			ProductID:      item.ProductID,
		},
	})
}

// formatAmount renders minor units with the currency's symbol and standard scale.
func (s *orderLifecycleService) formatAmount(minor int64, code string) string {
	unit, err := currency.ParseISO(code)
	if err != nil {
		return s.printer.Sprintf("%d %s", minor, code)
	}
	scale, _ := currency.Standard.Rounding(unit)
	value := float64(minor) / math.Pow10(scale)
	return s.printer.Sprint(currency.Symbol(unit.Amount(value)))
}

func (s *orderLifecycleService) advanced(ctx context.Context, actor domain.Actor, cmd TransitionCommand, from, to domain.ItemStatus) {
	s.metrics.ItemAdvanced(ctx, string(to))
	s.logger(ctx, "lifecycle.item.advanced", map[string]any{
		"orderId": cmd.OrderID,
		"itemId":  cmd.ItemID,
		"actorId": actor.ID,
		"role":    string(actor.Role),
		"from":    string(from),
		"to":      string(to),
	})
}

func (s *orderLifecycleService) classify(ctx context.Context, event string, err error, cmd TransitionCommand) error {
	mapped := mapRepositoryError(err)
	if errors.Is(mapped, ErrInternal) {
		s.logger(ctx, event, map[string]any{
			"orderId": cmd.OrderID,
			"itemId":  cmd.ItemID,
			"error":   err,
		})
	}
	return mapped
}

func (s *orderLifecycleService) classifyList(ctx context.Context, event string, err error, actor domain.Actor) error {
	mapped := mapRepositoryError(err)
	if errors.Is(mapped, ErrInternal) {
		s.logger(ctx, event, map[string]any{
			"actorId": actor.ID,
			"role":    string(actor.Role),
			"error":   err,
		})
	}
	return mapped
}

func validateTransition(cmd TransitionCommand) error {
	if strings.TrimSpace(cmd.OrderID) == "" || strings.TrimSpace(cmd.ItemID) == "" {
		return fmt.Errorf("%w: order and item are required", ErrValidation)
	}
	return nil
}
