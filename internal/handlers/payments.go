package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/marketcart/api/internal/platform/auth"
	"github.com/marketcart/api/internal/platform/httpx"
	"github.com/marketcart/api/internal/services"
)

// PaymentHandlers exposes external payment status and the provider redirect callbacks.
// Callbacks are unauthenticated; the provider payment id and token are the only credentials.
type PaymentHandlers struct {
	authn    *auth.Authenticator
	checkout services.CheckoutService
	limiter  func(http.Handler) http.Handler
}

// PaymentOption customises PaymentHandlers.
type PaymentOption func(*PaymentHandlers)

// WithCallbackLimiter guards the callback routes with the given middleware.
func WithCallbackLimiter(mw func(http.Handler) http.Handler) PaymentOption {
	return func(h *PaymentHandlers) {
		h.limiter = mw
	}
}

// NewPaymentHandlers constructs a new PaymentHandlers instance.
func NewPaymentHandlers(authn *auth.Authenticator, checkout services.CheckoutService, opts ...PaymentOption) *PaymentHandlers {
	h := &PaymentHandlers{authn: authn, checkout: checkout}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Routes registers the /payments endpoints.
func (h *PaymentHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Group(func(callbacks chi.Router) {
		if h.limiter != nil {
			callbacks.Use(h.limiter)
		}
		callbacks.Get("/callback/success", h.success)
		callbacks.Get("/callback/cancel", h.cancel)
	})
	r.Group(func(authed chi.Router) {
		if h.authn != nil {
			authed.Use(h.authn.RequireFirebaseAuth())
		}
		authed.Get("/{paymentID}", h.status)
	})
}

type paymentCallbackResponse struct {
	Status  string `json:"status"`
	OrderID string `json:"orderId,omitempty"`
}

type paymentStatusResponse struct {
	PaymentID string        `json:"paymentId"`
	Status    string        `json:"status"`
	OrderID   string        `json:"orderId,omitempty"`
	Totals    totalsPayload `json:"totals"`
	Currency  string        `json:"currency"`
	UpdatedAt string        `json:"updatedAt,omitempty"`
}

func (h *PaymentHandlers) success(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.checkout == nil {
		serviceUnavailable(ctx, w, "checkout")
		return
	}
	query := r.URL.Query()
	paymentID := strings.TrimSpace(query.Get("paymentId"))
	if paymentID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "paymentId is required", http.StatusBadRequest))
		return
	}

	orderID, err := h.checkout.CompleteExternalPayment(ctx, services.CapturePaymentCommand{
		PaymentID: paymentID,
		PayerID:   strings.TrimSpace(query.Get("PayerID")),
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, paymentCallbackResponse{Status: "completed", OrderID: orderID})
}

func (h *PaymentHandlers) cancel(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.checkout == nil {
		serviceUnavailable(ctx, w, "checkout")
		return
	}
	token := strings.TrimSpace(r.URL.Query().Get("token"))
	if token == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "token is required", http.StatusBadRequest))
		return
	}
	if err := h.checkout.CancelExternalPayment(ctx, token); err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, paymentCallbackResponse{Status: "cancelled"})
}

func (h *PaymentHandlers) status(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.checkout == nil {
		serviceUnavailable(ctx, w, "checkout")
		return
	}
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	paymentID, ok := pathParam(w, r, "paymentID", "payment id")
	if !ok {
		return
	}

	view, err := h.checkout.PaymentStatus(ctx, actor, paymentID)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, paymentStatusResponse{
		PaymentID: view.PaymentID,
		Status:    string(view.Status),
		OrderID:   view.OrderID,
		Totals:    buildTotals(view.Totals),
		Currency:  view.Currency,
		UpdatedAt: formatTime(view.UpdatedAt),
	})
}
