package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel/attribute"

	domain "github.com/marketcart/api/internal/domain"
	"github.com/marketcart/api/internal/payments"
	"github.com/marketcart/api/internal/platform/observability"
	"github.com/marketcart/api/internal/repositories"
)

const (
	orderIDPrefix = "ord_"
	itemIDPrefix  = "itm_"

	checkoutSessionPlaceholder = "{CHECKOUT_SESSION_ID}"
)

// CheckoutServiceDeps bundles collaborators required to construct the checkout service.
type CheckoutServiceDeps struct {
	Orders           repositories.OrderRepository
	Products         repositories.ProductRepository
	Carts            repositories.CartRepository
	Addresses        repositories.AddressRepository
	PaymentHistories repositories.PaymentHistoryRepository
	Resolver         PricingResolver
	Ledger           InventoryLedger
	Payments         PaymentGateway
	Events           EventSink
	UnitOfWork       repositories.UnitOfWork
	Metrics          Metrics
	// PaymentProvider names the provider used for external payments; empty selects the default.
	PaymentProvider string
	Currency        string
	SuccessURL      string
	CancelURL       string
	Clock           func() time.Time
	IDGenerator     func() string
	TokenGenerator  func() string
	Logger          Logger
}

type checkoutService struct {
	orders     repositories.OrderRepository
	products   repositories.ProductRepository
	carts      repositories.CartRepository
	addresses  repositories.AddressRepository
	histories  repositories.PaymentHistoryRepository
	resolver   PricingResolver
	ledger     InventoryLedger
	payments   PaymentGateway
	events     EventSink
	unitOfWork repositories.UnitOfWork
	metrics    Metrics
	provider   string
	currency   string
	successURL string
	cancelURL  string
	clock      func() time.Time
	newID      func() string
	newToken   func() string
	logger     Logger
}

// NewCheckoutService wires dependencies into a concrete CheckoutService implementation.
func NewCheckoutService(deps CheckoutServiceDeps) (CheckoutService, error) {
	switch {
	case deps.Orders == nil:
		return nil, errors.New("checkout service: order repository is required")
	case deps.Products == nil:
		return nil, errors.New("checkout service: product repository is required")
	case deps.Carts == nil:
		return nil, errors.New("checkout service: cart repository is required")
	case deps.Addresses == nil:
		return nil, errors.New("checkout service: address repository is required")
	case deps.PaymentHistories == nil:
		return nil, errors.New("checkout service: payment history repository is required")
	case deps.Resolver == nil:
		return nil, errors.New("checkout service: pricing resolver is required")
	case deps.Ledger == nil:
		return nil, errors.New("checkout service: inventory ledger is required")
	case deps.Events == nil:
		return nil, errors.New("checkout service: event sink is required")
	}

	unit := deps.UnitOfWork
	if unit == nil {
		unit = noopUnitOfWork{}
	}
	metrics := deps.Metrics
	if metrics == nil {
		metrics = noopMetrics{}
	}
	currency := strings.ToUpper(strings.TrimSpace(deps.Currency))
	if currency == "" {
		currency = "USD"
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string {
			return ulid.Make().String()
		}
	}
	tokenGen := deps.TokenGenerator
	if tokenGen == nil {
		tokenGen = func() string {
			return strings.ToLower(ulid.Make().String())
		}
	}

	return &checkoutService{
		orders:     deps.Orders,
		products:   deps.Products,
		carts:      deps.Carts,
		addresses:  deps.Addresses,
		histories:  deps.PaymentHistories,
		resolver:   deps.Resolver,
		ledger:     deps.Ledger,
		payments:   deps.Payments,
		events:     deps.Events,
		unitOfWork: unit,
		metrics:    metrics,
		provider:   strings.TrimSpace(deps.PaymentProvider),
		currency:   currency,
		successURL: strings.TrimSpace(deps.SuccessURL),
		cancelURL:  strings.TrimSpace(deps.CancelURL),
		clock:      defaultClock(deps.Clock),
		newID:      idGen,
		newToken:   tokenGen,
		logger:     defaultLogger(deps.Logger),
	}, nil
}

func (s *checkoutService) PlaceOrder(ctx context.Context, actor domain.Actor, cmd PlaceOrderCommand) (result PlaceOrderResult, err error) {
	ctx, end := observability.StartSpan(ctx, "checkout.PlaceOrder",
		attribute.String("payment.method", string(cmd.PaymentMethod)))
	defer func() { end(err) }()

	buyerID := strings.TrimSpace(actor.ID)
	if buyerID == "" {
		return PlaceOrderResult{}, fmt.Errorf("%w: authenticated buyer is required", ErrForbidden)
	}
	if !cmd.PaymentMethod.Valid() {
		return PlaceOrderResult{}, fmt.Errorf("%w: unsupported payment method %q", ErrValidation, cmd.PaymentMethod)
	}
	addressID := strings.TrimSpace(cmd.AddressID)
	if addressID == "" {
		return PlaceOrderResult{}, fmt.Errorf("%w: address is required", ErrValidation)
	}

	key := strings.TrimSpace(cmd.IdempotencyKey)
	if key != "" {
		existing, err := s.orders.FindByID(ctx, orderIDFor(buyerID, key))
		switch {
		case err == nil:
			return replayResult(existing), nil
		case !isRepoNotFound(err):
			return PlaceOrderResult{}, s.classify(ctx, "checkout.replay_lookup.error", err)
		}
	}

	address, err := s.addresses.FindByID(ctx, buyerID, addressID)
	if err != nil {
		return PlaceOrderResult{}, notFoundAs(err, ErrValidation, "unknown address %s", addressID)
	}

	lines, totals, err := s.resolver.Resolve(ctx, slices.Clone(cmd.Items))
	if err != nil {
		return PlaceOrderResult{}, err
	}

	if cmd.PaymentMethod == domain.PaymentMethodExternal {
		return s.beginExternal(ctx, actor, key, address, lines, totals)
	}

	orderID := s.nextOrderID(buyerID, key)
	order := s.buildOrder(orderID, buyerID, key, address, lines, totals, domain.PaymentMethodCOD, "", false)
	if err := s.commitOrder(ctx, actor, order, nil); err != nil {
		if errors.Is(err, ErrConflict) && key != "" {
			if existing, findErr := s.orders.FindByID(ctx, orderID); findErr == nil {
				return replayResult(existing), nil
			}
		}
		return PlaceOrderResult{}, err
	}

	s.metrics.OrderPlaced(ctx, string(domain.PaymentMethodCOD))
	s.logger(ctx, "checkout.order.placed", map[string]any{
		"orderId":       order.ID,
		"buyerId":       buyerID,
		"paymentMethod": string(order.PaymentMethod),
		"totalAmount":   order.TotalAmount,
		"items":         len(order.Items),
	})
	return PlaceOrderResult{OrderID: order.ID, Totals: totals, Currency: order.Currency}, nil
}

// beginExternal opens the provider intent and records the pending history. No order exists yet.
func (s *checkoutService) beginExternal(ctx context.Context, actor domain.Actor, key string, address domain.AddressSnapshot, lines []domain.PricedLine, totals domain.Totals) (PlaceOrderResult, error) {
	if s.payments == nil {
		return PlaceOrderResult{}, fmt.Errorf("%w: external payments are not configured", ErrValidation)
	}
	token := s.newToken()
	successURL, err := callbackURL(s.successURL, token, true)
	if err != nil {
		return PlaceOrderResult{}, fmt.Errorf("%w: success url: %w", ErrInternal, err)
	}
	cancelURL, err := callbackURL(s.cancelURL, token, false)
	if err != nil {
		return PlaceOrderResult{}, fmt.Errorf("%w: cancel url: %w", ErrInternal, err)
	}

	req := payments.IntentRequest{
		Amount:     totals.Total,
		Currency:   s.currency,
		BuyerID:    actor.ID,
		SuccessURL: successURL,
		CancelURL:  cancelURL,
		Token:      token,
		Items:      intentLineItems(lines, s.currency),
	}
	if key != "" {
		req.IdempotencyKey = "intent-" + orderIDFor(actor.ID, key)
	}
	intent, err := s.payments.CreateIntent(ctx, payments.PaymentContext{PreferredProvider: s.provider, Currency: s.currency}, req)
	if err != nil {
		s.logger(ctx, "checkout.intent.failed", map[string]any{"buyerId": actor.ID, "error": err})
		return PlaceOrderResult{}, fmt.Errorf("%w: create payment intent: %w", ErrUpstream, err)
	}
	if approvalToken := tokenFromApprovalURL(intent.ApprovalURL); approvalToken != "" {
		token = approvalToken
	}

	now := s.clock()
	history := domain.PaymentHistory{
		ID:             intent.PaymentID,
		Provider:       intent.Provider,
		BuyerID:        actor.ID,
		Token:          token,
		IdempotencyKey: key,
		Status:         domain.PaymentHistoryPending,
		Address:        address,
		Lines:          lines,
		Totals:         totals,
		Currency:       s.currency,
		Details: map[string]any{
			"approvalUrl": intent.ApprovalURL,
			"expiresAt":   intent.ExpiresAt,
			"buyerEmail":  actor.Email,
			"buyerName":   actor.Name,
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.histories.Create(ctx, history); err != nil {
		mapped := s.classify(ctx, "checkout.history.create.error", err)
		if !errors.Is(mapped, ErrConflict) {
			return PlaceOrderResult{}, mapped
		}
		existing, findErr := s.histories.FindByID(ctx, intent.PaymentID)
		if findErr != nil || existing.BuyerID != actor.ID {
			return PlaceOrderResult{}, mapped
		}
		approvalURL, _ := existing.Details["approvalUrl"].(string)
		return PlaceOrderResult{
			OrderID:     existing.OrderID,
			PaymentID:   existing.ID,
			ApprovalURL: approvalURL,
			Token:       existing.Token,
			Totals:      existing.Totals,
			Currency:    existing.Currency,
			Replayed:    true,
		}, nil
	}

	s.logger(ctx, "checkout.intent.created", map[string]any{
		"paymentId": intent.PaymentID,
		"buyerId":   actor.ID,
		"amount":    totals.Total,
	})
	return PlaceOrderResult{
		PaymentID:   intent.PaymentID,
		ApprovalURL: intent.ApprovalURL,
		Token:       token,
		Totals:      totals,
		Currency:    s.currency,
	}, nil
}

var errPaymentAlreadyCompleted = errors.New("payment already completed")

func (s *checkoutService) CompleteExternalPayment(ctx context.Context, cmd CapturePaymentCommand) (orderID string, err error) {
	ctx, end := observability.StartSpan(ctx, "checkout.CompleteExternalPayment",
		attribute.String("payment.id", cmd.PaymentID))
	defer func() { end(err) }()

	paymentID := strings.TrimSpace(cmd.PaymentID)
	if paymentID == "" {
		return "", fmt.Errorf("%w: payment id is required", ErrValidation)
	}
	if s.payments == nil {
		return "", fmt.Errorf("%w: external payments are not configured", ErrValidation)
	}
	history, completedOrderID, err := s.claimCapture(ctx, paymentID)
	if err != nil {
		if errors.Is(err, errPaymentAlreadyCompleted) {
			return completedOrderID, nil
		}
		return "", err
	}

	paymentCtx := payments.PaymentContext{PreferredProvider: history.Provider, Currency: history.Currency}
	if _, err := s.payments.Capture(ctx, paymentCtx, payments.CaptureRequest{
		PaymentID:      paymentID,
		PayerID:        strings.TrimSpace(cmd.PayerID),
		IdempotencyKey: "capture-" + paymentID,
	}); err != nil {
		s.metrics.PaymentCallback(ctx, "capture_failed")
		s.logger(ctx, "checkout.capture.failed", map[string]any{"paymentId": paymentID, "error": err})
		s.releaseCapture(ctx, paymentID)
		return "", fmt.Errorf("%w: capture payment: %w", ErrUpstream, err)
	}

	buyer := domain.Actor{ID: history.BuyerID, Role: domain.RoleBuyer}
	if email, ok := history.Details["buyerEmail"].(string); ok {
		buyer.Email = email
	}
	if name, ok := history.Details["buyerName"].(string); ok {
		buyer.Name = name
	}
	orderKey := history.IdempotencyKey
	if orderKey == "" {
		orderKey = "payment:" + history.ID
	}
	order := s.buildOrder(orderIDFor(history.BuyerID, orderKey), history.BuyerID, history.IdempotencyKey,
		history.Address, history.Lines, history.Totals, domain.PaymentMethodExternal, paymentID, true)
	order.Currency = history.Currency

	err = s.commitOrder(ctx, buyer, order, &historyLink{
		paymentID: paymentID,
		onRead: func(current domain.PaymentHistory) error {
			if current.Status == domain.PaymentHistoryCompleted {
				completedOrderID = current.OrderID
				return errPaymentAlreadyCompleted
			}
			if current.Status != domain.PaymentHistoryCapturing {
				return fmt.Errorf("%w: payment %s is %s", ErrConflict, paymentID, current.Status)
			}
			return nil
		},
	})
	switch {
	case err == nil:
	case errors.Is(err, errPaymentAlreadyCompleted):
		return completedOrderID, nil
	case retryableCommitError(err):
		// The history stays capturing; the next callback re-captures idempotently and retries.
		return "", err
	default:
		s.refundUncommitted(ctx, history, paymentCtx)
		return "", err
	}

	s.metrics.OrderPlaced(ctx, string(domain.PaymentMethodExternal))
	s.metrics.PaymentCallback(ctx, "captured")
	s.logger(ctx, "checkout.order.placed", map[string]any{
		"orderId":       order.ID,
		"buyerId":       order.BuyerID,
		"paymentId":     paymentID,
		"paymentMethod": string(order.PaymentMethod),
		"totalAmount":   order.TotalAmount,
		"items":         len(order.Items),
	})
	return order.ID, nil
}

// claimCapture moves a pending history to capturing in its own transaction, so a cancel callback
// racing the provider capture can no longer abandon it. A history already capturing is reclaimed,
// which lets a callback retry after a transient commit failure.
func (s *checkoutService) claimCapture(ctx context.Context, paymentID string) (domain.PaymentHistory, string, error) {
	var (
		claimed     domain.PaymentHistory
		completedID string
	)
	err := s.unitOfWork.RunInTx(ctx, func(txCtx context.Context) error {
		history, err := s.histories.FindByID(txCtx, paymentID)
		if err != nil {
			return notFoundAs(err, ErrNotFound, "payment %s", paymentID)
		}
		switch history.Status {
		case domain.PaymentHistoryCompleted:
			completedID = history.OrderID
			return errPaymentAlreadyCompleted
		case domain.PaymentHistoryPending, domain.PaymentHistoryCapturing:
		default:
			return fmt.Errorf("%w: payment %s is %s", ErrConflict, paymentID, history.Status)
		}
		history.Status = domain.PaymentHistoryCapturing
		history.UpdatedAt = s.clock()
		if err := s.histories.Update(txCtx, history); err != nil {
			return err
		}
		claimed = history
		return nil
	})
	if err != nil {
		if errors.Is(err, errPaymentAlreadyCompleted) {
			return domain.PaymentHistory{}, completedID, err
		}
		return domain.PaymentHistory{}, "", s.classify(ctx, "checkout.capture.claim.error", err, "paymentId", paymentID)
	}
	return claimed, "", nil
}

// releaseCapture returns a history to pending after the provider declined the capture.
func (s *checkoutService) releaseCapture(ctx context.Context, paymentID string) {
	err := s.unitOfWork.RunInTx(ctx, func(txCtx context.Context) error {
		history, err := s.histories.FindByID(txCtx, paymentID)
		if err != nil {
			return err
		}
		if history.Status != domain.PaymentHistoryCapturing {
			return nil
		}
		history.Status = domain.PaymentHistoryPending
		history.UpdatedAt = s.clock()
		return s.histories.Update(txCtx, history)
	})
	if err != nil {
		s.logger(ctx, "checkout.capture.release.failed", map[string]any{"paymentId": paymentID, "error": err})
	}
}

// retryableCommitError reports commit failures that leave the captured payment claimable by a
// later callback instead of refunding it.
func retryableCommitError(err error) bool {
	return errors.Is(err, ErrInternal) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// refundUncommitted returns captured funds when the order could not be materialised. Failures
// are logged only; the history stays capturing for reconciliation in that case.
func (s *checkoutService) refundUncommitted(ctx context.Context, history domain.PaymentHistory, paymentCtx payments.PaymentContext) {
	s.metrics.PaymentCallback(ctx, "refunded")
	if _, err := s.payments.Refund(ctx, paymentCtx, payments.RefundRequest{
		PaymentID:      history.ID,
		Reason:         "requested_by_customer",
		IdempotencyKey: "refund-" + history.ID,
	}); err != nil {
		s.logger(ctx, "checkout.refund.failed", map[string]any{"paymentId": history.ID, "error": err})
		return
	}
	history.Status = domain.PaymentHistoryRefunded
	history.UpdatedAt = s.clock()
	if err := s.histories.Update(ctx, history); err != nil {
		s.logger(ctx, "checkout.history.update.failed", map[string]any{"paymentId": history.ID, "error": err})
	}
}

func (s *checkoutService) CancelExternalPayment(ctx context.Context, token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return fmt.Errorf("%w: token is required", ErrValidation)
	}
	err := s.unitOfWork.RunInTx(ctx, func(txCtx context.Context) error {
		history, err := s.histories.FindByToken(txCtx, token)
		if err != nil {
			return notFoundAs(err, ErrNotFound, "payment token")
		}
		if history.Status == domain.PaymentHistoryCancelled {
			return nil
		}
		if !history.Status.Cancellable() {
			return fmt.Errorf("%w: payment %s is %s", ErrConflict, history.ID, history.Status)
		}
		history.Status = domain.PaymentHistoryCancelled
		history.UpdatedAt = s.clock()
		return s.histories.Update(txCtx, history)
	})
	if err != nil {
		return s.classify(ctx, "checkout.cancel_payment.error", err)
	}
	s.metrics.PaymentCallback(ctx, "cancelled")
	s.logger(ctx, "checkout.payment.cancelled", map[string]any{"token": token})
	return nil
}

func (s *checkoutService) PaymentStatus(ctx context.Context, actor domain.Actor, paymentID string) (PaymentStatusView, error) {
	paymentID = strings.TrimSpace(paymentID)
	if paymentID == "" {
		return PaymentStatusView{}, fmt.Errorf("%w: payment id is required", ErrValidation)
	}
	history, err := s.histories.FindByID(ctx, paymentID)
	if err != nil {
		return PaymentStatusView{}, notFoundAs(err, ErrNotFound, "payment %s", paymentID)
	}
	if history.BuyerID != actor.ID && actor.Role != domain.RoleAdmin {
		return PaymentStatusView{}, fmt.Errorf("%w: payment %s", ErrNotFound, paymentID)
	}
	return PaymentStatusView{
		PaymentID: history.ID,
		Status:    history.Status,
		OrderID:   history.OrderID,
		Totals:    history.Totals,
		Currency:  history.Currency,
		UpdatedAt: history.UpdatedAt,
	}, nil
}

// historyLink ties order creation to a pending payment history inside the same transaction.
type historyLink struct {
	paymentID string
	onRead    func(domain.PaymentHistory) error
}

// commitOrder persists the order with its stock, cart, reservation and outbox effects in one
// transaction. All reads happen before the first write.
func (s *checkoutService) commitOrder(ctx context.Context, actor domain.Actor, order domain.Order, link *historyLink) error {
	err := s.unitOfWork.RunInTx(ctx, func(txCtx context.Context) error {
		var history domain.PaymentHistory
		if link != nil {
			var err error
			if history, err = s.histories.FindByID(txCtx, link.paymentID); err != nil {
				return err
			}
			if err := link.onRead(history); err != nil {
				return err
			}
		}

		requested := map[variantKey]int{}
		var productOrder []string
		for _, item := range order.Items {
			if !slices.Contains(productOrder, item.ProductID) {
				productOrder = append(productOrder, item.ProductID)
			}
			requested[variantKey{item.ProductID, item.VariantID}] += item.Quantity
		}
		for _, productID := range productOrder {
			product, err := s.products.FindByID(txCtx, productID)
			if err != nil {
				return notFoundAs(err, ErrConflict, "product %s no longer exists", productID)
			}
			for key, qty := range requested {
				if key.productID != productID {
					continue
				}
				variant, ok := product.Variant(key.variantID)
				if !ok {
					return fmt.Errorf("%w: variant %s no longer exists", ErrConflict, key.variantID)
				}
				if err := checkStock(variant, qty); err != nil {
					return fmt.Errorf("%w: %w", ErrConflict, err)
				}
			}
		}
		cart, err := s.carts.Get(txCtx, order.BuyerID)
		if err != nil {
			return err
		}

		if err := s.orders.Create(txCtx, order); err != nil {
			return err
		}
		if remaining, changed := removeOrderedFromCart(cart, order.Items); changed {
			remaining.UpdatedAt = order.CreatedAt
			if err := s.carts.Replace(txCtx, remaining); err != nil {
				return err
			}
		}
		for key, qty := range requested {
			if err := s.products.AdjustVariantQuantity(txCtx, key.productID, key.variantID, -qty); err != nil {
				return err
			}
		}
		for _, productID := range productOrder {
			if err := s.ledger.Reserve(txCtx, reservationFor(order, productID)); err != nil {
				return err
			}
		}
		if link != nil {
			history.Status = domain.PaymentHistoryCompleted
			history.OrderID = order.ID
			history.UpdatedAt = order.CreatedAt
			if err := s.histories.Update(txCtx, history); err != nil {
				return err
			}
		}
		return s.events.Emit(txCtx, domain.Event{
			AggregateID: order.ID,
			ActorID:     actor.ID,
			OccurredAt:  order.CreatedAt,
			Payload: domain.OrderSuccessPayload{
				OrderID:           order.ID,
				Email:             actor.Email,
				Name:              actor.Name,
				TotalPaid:         order.TotalAmount,
				TotalShippingCost: order.ShippingCost,
				Currency:          order.Currency,
				PaymentMethod:     string(order.PaymentMethod),
			},
		})
	})
	if err != nil {
		if errors.Is(err, errPaymentAlreadyCompleted) {
			return err
		}
		return s.classify(ctx, "checkout.order.commit.error", err, "orderId", order.ID)
	}
	return nil
}

func (s *checkoutService) buildOrder(orderID, buyerID, key string, address domain.AddressSnapshot, lines []domain.PricedLine, totals domain.Totals, method domain.PaymentMethod, paymentID string, captured bool) domain.Order {
	now := s.clock()
	order := domain.Order{
		ID:             orderID,
		BuyerID:        buyerID,
		Address:        address,
		Subtotal:       totals.Subtotal,
		ShippingCost:   totals.Shipping,
		TotalAmount:    totals.Total,
		Currency:       s.currency,
		PaymentMethod:  method,
		PaymentID:      paymentID,
		IdempotencyKey: key,
		Items:          make([]domain.OrderItem, 0, len(lines)),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	for _, line := range lines {
		order.Items = append(order.Items, domain.NewOrderItem(itemIDPrefix+s.newID(), line, now, captured))
		if !slices.Contains(order.SellerIDs, line.SellerID) {
			order.SellerIDs = append(order.SellerIDs, line.SellerID)
		}
	}
	return order
}

func (s *checkoutService) nextOrderID(buyerID, key string) string {
	if key != "" {
		return orderIDFor(buyerID, key)
	}
	return orderIDPrefix + s.newID()
}

// classify logs internal failures with their cause and returns the classified error.
func (s *checkoutService) classify(ctx context.Context, event string, err error, kv ...string) error {
	mapped := mapRepositoryError(err)
	if errors.Is(mapped, ErrInternal) {
		fields := map[string]any{"error": err}
		for i := 0; i+1 < len(kv); i += 2 {
			fields[kv[i]] = kv[i+1]
		}
		s.logger(ctx, event, fields)
	}
	return mapped
}

// orderIDFor derives a stable order id so a replayed request maps onto the order it created.
func orderIDFor(buyerID, key string) string {
	sum := sha256.Sum256([]byte(buyerID + "\x00" + key))
	return orderIDPrefix + hex.EncodeToString(sum[:13])
}

func replayResult(order domain.Order) PlaceOrderResult {
	return PlaceOrderResult{
		OrderID:   order.ID,
		PaymentID: order.PaymentID,
		Totals:    domain.Totals{Subtotal: order.Subtotal, Shipping: order.ShippingCost, Total: order.TotalAmount},
		Currency:  order.Currency,
		Replayed:  true,
	}
}

func removeOrderedFromCart(cart domain.Cart, items []domain.OrderItem) (domain.Cart, bool) {
	ordered := make(map[domain.CartKey]bool, len(items))
	for _, item := range items {
		ordered[domain.CartKey{ProductID: item.ProductID, VariantID: item.VariantID}] = true
	}
	kept := cart.Items[:0:0]
	for _, entry := range cart.Items {
		if !ordered[domain.CartKey{ProductID: entry.ProductID, VariantID: entry.VariantID}] {
			kept = append(kept, entry)
		}
	}
	if len(kept) == len(cart.Items) {
		return cart, false
	}
	cart.Items = kept
	return cart, true
}

func reservationFor(order domain.Order, productID string) ReserveCommand {
	cmd := ReserveCommand{ProductID: productID, OrderID: order.ID, BuyerID: order.BuyerID}
	variants := map[string]bool{}
	for _, item := range order.Items {
		if item.ProductID != productID {
			continue
		}
		cmd.SellerID = item.SellerID
		cmd.Quantity += item.Quantity
		variants[item.VariantID] = true
		cmd.VariantID = item.VariantID
	}
	if len(variants) > 1 {
		cmd.VariantID = ""
	}
	return cmd
}

func intentLineItems(lines []domain.PricedLine, currency string) []payments.LineItem {
	items := make([]payments.LineItem, 0, len(lines)*2)
	var shipping int64
	for _, line := range lines {
		goods := line.TotalPaid - line.ShippingCost
		name := line.ProductName
		if line.VariantName != "" {
			name += " (" + line.VariantName + ")"
		}
		qty, unit := int64(line.Quantity), goods/int64(line.Quantity)
		if unit*qty != goods {
			qty, unit = 1, goods
			name = fmt.Sprintf("%s x%d", name, line.Quantity)
		}
		items = append(items, payments.LineItem{
			Name:     name,
			SKU:      line.VariantID,
			Quantity: qty,
			Amount:   unit,
			Currency: currency,
		})
		shipping += line.ShippingCost
	}
	if shipping > 0 {
		items = append(items, payments.LineItem{Name: "Shipping", Quantity: 1, Amount: shipping, Currency: currency})
	}
	return items
}

// callbackURL adds the correlation token, and for the success target the provider's payment id
// placeholder, which must stay unescaped.
func callbackURL(base, token string, success bool) (string, error) {
	if base == "" {
		return "", errors.New("callback url is not configured")
	}
	u, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()
	if success {
		u.RawQuery += "&paymentId=" + checkoutSessionPlaceholder
	}
	return u.String(), nil
}

func tokenFromApprovalURL(raw string) string {
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return u.Query().Get("token")
}
