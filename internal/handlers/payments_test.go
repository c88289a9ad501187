package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	domain "github.com/marketcart/api/internal/domain"
	"github.com/marketcart/api/internal/services"
)

func TestPaymentHandlersSuccessCallback(t *testing.T) {
	var captured services.CapturePaymentCommand
	checkout := &stubCheckoutService{
		completeFn: func(_ context.Context, cmd services.CapturePaymentCommand) (string, error) {
			captured = cmd
			return "ord_1", nil
		},
	}
	handler := NewPaymentHandlers(nil, checkout)
	router := NewRouter(WithPaymentRoutes(handler.Routes))

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/payments/callback/success?paymentId=cs_test_1&PayerID=payer-9&token=tok-1", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if captured.PaymentID != "cs_test_1" || captured.PayerID != "payer-9" {
		t.Fatalf("unexpected command %+v", captured)
	}
	var payload paymentCallbackResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if payload.OrderID != "ord_1" || payload.Status != "completed" {
		t.Fatalf("unexpected payload %+v", payload)
	}

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/payments/callback/success", nil))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without paymentId, got %d", rr.Code)
	}
}

func TestPaymentHandlersSuccessCallbackUpstreamFailure(t *testing.T) {
	checkout := &stubCheckoutService{
		completeFn: func(context.Context, services.CapturePaymentCommand) (string, error) {
			return "", fmt.Errorf("%w: capture declined", services.ErrUpstream)
		},
	}
	router := NewRouter(WithPaymentRoutes(NewPaymentHandlers(nil, checkout).Routes))

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/payments/callback/success?paymentId=cs_1", nil))
	if rr.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", rr.Code)
	}
}

func TestPaymentHandlersCancelCallback(t *testing.T) {
	var token string
	checkout := &stubCheckoutService{
		cancelFn: func(_ context.Context, tok string) error {
			token = tok
			return nil
		},
	}
	router := NewRouter(WithPaymentRoutes(NewPaymentHandlers(nil, checkout).Routes))

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/payments/callback/cancel?token=tok-1", nil))
	if rr.Code != http.StatusOK || token != "tok-1" {
		t.Fatalf("expected cancel with token, got %d token=%q", rr.Code, token)
	}

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/payments/callback/cancel", nil))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without token, got %d", rr.Code)
	}
}

func TestPaymentHandlersStatus(t *testing.T) {
	now := time.Date(2025, 3, 4, 9, 0, 0, 0, time.UTC)
	checkout := &stubCheckoutService{
		statusFn: func(_ context.Context, actor domain.Actor, paymentID string) (services.PaymentStatusView, error) {
			if actor.ID != "buyer-1" {
				return services.PaymentStatusView{}, services.ErrNotFound
			}
			return services.PaymentStatusView{
				PaymentID: paymentID,
				Status:    domain.PaymentHistoryPending,
				Totals:    domain.Totals{Subtotal: 1800, Shipping: 500, Total: 2300},
				Currency:  "USD",
				UpdatedAt: now,
			}, nil
		},
	}
	router := NewRouter(WithPaymentRoutes(NewPaymentHandlers(nil, checkout).Routes))

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, newRequestAs(http.MethodGet, "/api/v1/payments/cs_test_1", "", "buyer-1", domain.RoleBuyer))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var payload paymentStatusResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if payload.PaymentID != "cs_test_1" || payload.Status != "pending" || payload.Totals.Total != 2300 {
		t.Fatalf("unexpected payload %+v", payload)
	}

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, newRequestAs(http.MethodGet, "/api/v1/payments/cs_test_1", "", "buyer-2", domain.RoleBuyer))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for another buyer, got %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/payments/cs_test_1", nil))
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without identity, got %d", rr.Code)
	}
}

func TestPaymentHandlersCallbackRateLimited(t *testing.T) {
	now := time.Date(2025, 3, 4, 9, 0, 0, 0, time.UTC)
	checkout := &stubCheckoutService{
		cancelFn: func(context.Context, string) error { return nil },
	}
	limiter := NewCallbackRateLimiter(2, func() time.Time { return now })
	router := NewRouter(WithPaymentRoutes(NewPaymentHandlers(nil, checkout, WithCallbackLimiter(limiter)).Routes))

	codes := make([]int, 0, 3)
	for range 3 {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/payments/callback/cancel?token=t", nil)
		req.RemoteAddr = "203.0.113.7:5000"
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)
		codes = append(codes, rr.Code)
	}
	if codes[0] != http.StatusOK || codes[1] != http.StatusOK || codes[2] != http.StatusTooManyRequests {
		t.Fatalf("unexpected status sequence %v", codes)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/payments/callback/cancel?token=t", nil)
	req.RemoteAddr = "198.51.100.1:5000"
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected other client to be unaffected, got %d", rr.Code)
	}
}
