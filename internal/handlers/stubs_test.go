package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"

	domain "github.com/marketcart/api/internal/domain"
	"github.com/marketcart/api/internal/platform/auth"
	"github.com/marketcart/api/internal/services"
)

var errStubUnexpected = errors.New("unexpected call")

type stubCheckoutService struct {
	placeFn    func(context.Context, domain.Actor, services.PlaceOrderCommand) (services.PlaceOrderResult, error)
	completeFn func(context.Context, services.CapturePaymentCommand) (string, error)
	cancelFn   func(context.Context, string) error
	statusFn   func(context.Context, domain.Actor, string) (services.PaymentStatusView, error)
}

func (s *stubCheckoutService) PlaceOrder(ctx context.Context, actor domain.Actor, cmd services.PlaceOrderCommand) (services.PlaceOrderResult, error) {
	if s.placeFn == nil {
		return services.PlaceOrderResult{}, errStubUnexpected
	}
	return s.placeFn(ctx, actor, cmd)
}

func (s *stubCheckoutService) CompleteExternalPayment(ctx context.Context, cmd services.CapturePaymentCommand) (string, error) {
	if s.completeFn == nil {
		return "", errStubUnexpected
	}
	return s.completeFn(ctx, cmd)
}

func (s *stubCheckoutService) CancelExternalPayment(ctx context.Context, token string) error {
	if s.cancelFn == nil {
		return errStubUnexpected
	}
	return s.cancelFn(ctx, token)
}

func (s *stubCheckoutService) PaymentStatus(ctx context.Context, actor domain.Actor, paymentID string) (services.PaymentStatusView, error) {
	if s.statusFn == nil {
		return services.PaymentStatusView{}, errStubUnexpected
	}
	return s.statusFn(ctx, actor, paymentID)
}

type stubLifecycleService struct {
	sellerFn   func(context.Context, domain.Actor, services.TransitionCommand) (domain.OrderItem, error)
	shipperFn  func(context.Context, domain.Actor, services.TransitionCommand) (domain.OrderItem, error)
	getFn      func(context.Context, domain.Actor, string) (domain.Order, error)
	listFn     func(context.Context, domain.Actor, domain.OrderStatusFilter, domain.Pagination) (domain.CursorPage[domain.Order], error)
	pendingFn  func(context.Context, domain.Actor, domain.Pagination) (domain.CursorPage[domain.Order], error)
	queueFn    func(context.Context, domain.Actor, domain.Pagination) (domain.CursorPage[domain.Order], error)
	earningsFn func(context.Context, domain.Actor) (services.SellerEarnings, error)
}

func (s *stubLifecycleService) AdvanceBySeller(ctx context.Context, actor domain.Actor, cmd services.TransitionCommand) (domain.OrderItem, error) {
	if s.sellerFn == nil {
		return domain.OrderItem{}, errStubUnexpected
	}
	return s.sellerFn(ctx, actor, cmd)
}

func (s *stubLifecycleService) AdvanceByShipper(ctx context.Context, actor domain.Actor, cmd services.TransitionCommand) (domain.OrderItem, error) {
	if s.shipperFn == nil {
		return domain.OrderItem{}, errStubUnexpected
	}
	return s.shipperFn(ctx, actor, cmd)
}

func (s *stubLifecycleService) GetOrder(ctx context.Context, actor domain.Actor, orderID string) (domain.Order, error) {
	if s.getFn == nil {
		return domain.Order{}, errStubUnexpected
	}
	return s.getFn(ctx, actor, orderID)
}

func (s *stubLifecycleService) ListBuyerOrders(ctx context.Context, actor domain.Actor, filter domain.OrderStatusFilter, pager domain.Pagination) (domain.CursorPage[domain.Order], error) {
	if s.listFn == nil {
		return domain.CursorPage[domain.Order]{}, errStubUnexpected
	}
	return s.listFn(ctx, actor, filter, pager)
}

func (s *stubLifecycleService) ListSellerPending(ctx context.Context, actor domain.Actor, pager domain.Pagination) (domain.CursorPage[domain.Order], error) {
	if s.pendingFn == nil {
		return domain.CursorPage[domain.Order]{}, errStubUnexpected
	}
	return s.pendingFn(ctx, actor, pager)
}

func (s *stubLifecycleService) ListShipperQueue(ctx context.Context, actor domain.Actor, pager domain.Pagination) (domain.CursorPage[domain.Order], error) {
	if s.queueFn == nil {
		return domain.CursorPage[domain.Order]{}, errStubUnexpected
	}
	return s.queueFn(ctx, actor, pager)
}

func (s *stubLifecycleService) SellerEarnings(ctx context.Context, actor domain.Actor) (services.SellerEarnings, error) {
	if s.earningsFn == nil {
		return services.SellerEarnings{}, errStubUnexpected
	}
	return s.earningsFn(ctx, actor)
}

type stubCancellationService struct {
	sellerFn    func(context.Context, domain.Actor, services.CancelItemCommand) (domain.OrderItem, error)
	shipperFn   func(context.Context, domain.Actor, services.CancelItemCommand) (domain.OrderItem, error)
	buyerItemFn func(context.Context, domain.Actor, services.BuyerCancelItemCommand) (domain.OrderItem, error)
	buyerFn     func(context.Context, domain.Actor, string, string) (domain.Order, error)
}

func (s *stubCancellationService) CancelBySeller(ctx context.Context, actor domain.Actor, cmd services.CancelItemCommand) (domain.OrderItem, error) {
	if s.sellerFn == nil {
		return domain.OrderItem{}, errStubUnexpected
	}
	return s.sellerFn(ctx, actor, cmd)
}

func (s *stubCancellationService) CancelByShipper(ctx context.Context, actor domain.Actor, cmd services.CancelItemCommand) (domain.OrderItem, error) {
	if s.shipperFn == nil {
		return domain.OrderItem{}, errStubUnexpected
	}
	return s.shipperFn(ctx, actor, cmd)
}

func (s *stubCancellationService) CancelItemByBuyer(ctx context.Context, actor domain.Actor, cmd services.BuyerCancelItemCommand) (domain.OrderItem, error) {
	if s.buyerItemFn == nil {
		return domain.OrderItem{}, errStubUnexpected
	}
	return s.buyerItemFn(ctx, actor, cmd)
}

func (s *stubCancellationService) CancelOrderByBuyer(ctx context.Context, actor domain.Actor, orderID, reason string) (domain.Order, error) {
	if s.buyerFn == nil {
		return domain.Order{}, errStubUnexpected
	}
	return s.buyerFn(ctx, actor, orderID, reason)
}

type stubReviewService struct {
	eligibleFn func(context.Context, string, string) (bool, error)
	submitFn   func(context.Context, domain.Actor, services.SubmitReviewCommand) (domain.Review, error)
}

func (s *stubReviewService) IsEligible(ctx context.Context, buyerID, productID string) (bool, error) {
	if s.eligibleFn == nil {
		return false, errStubUnexpected
	}
	return s.eligibleFn(ctx, buyerID, productID)
}

func (s *stubReviewService) SubmitReview(ctx context.Context, actor domain.Actor, cmd services.SubmitReviewCommand) (domain.Review, error) {
	if s.submitFn == nil {
		return domain.Review{}, errStubUnexpected
	}
	return s.submitFn(ctx, actor, cmd)
}

func newRequestAs(method, target, body, uid string, role domain.Role) *http.Request {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	if uid != "" {
		req = req.WithContext(auth.WithIdentity(req.Context(), &auth.Identity{UID: uid, Role: role}))
	}
	return req
}

var (
	_ services.CheckoutService       = (*stubCheckoutService)(nil)
	_ services.OrderLifecycleService = (*stubLifecycleService)(nil)
	_ services.CancellationService   = (*stubCancellationService)(nil)
	_ services.ReviewService         = (*stubReviewService)(nil)
)
