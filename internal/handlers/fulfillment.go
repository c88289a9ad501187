package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	domain "github.com/marketcart/api/internal/domain"
	"github.com/marketcart/api/internal/platform/auth"
	"github.com/marketcart/api/internal/services"
)

// FulfillmentHandlers exposes item transitions and cancellations for sellers or shippers.
// One instance serves one role.
type FulfillmentHandlers struct {
	authn     *auth.Authenticator
	role      domain.Role
	lifecycle services.OrderLifecycleService
	cancels   services.CancellationService
}

// NewSellerHandlers constructs the /seller endpoints.
func NewSellerHandlers(authn *auth.Authenticator, lifecycle services.OrderLifecycleService, cancels services.CancellationService) *FulfillmentHandlers {
	return &FulfillmentHandlers{authn: authn, role: domain.RoleSeller, lifecycle: lifecycle, cancels: cancels}
}

// NewShipperHandlers constructs the /shipper endpoints.
func NewShipperHandlers(authn *auth.Authenticator, lifecycle services.OrderLifecycleService, cancels services.CancellationService) *FulfillmentHandlers {
	return &FulfillmentHandlers{authn: authn, role: domain.RoleShipper, lifecycle: lifecycle, cancels: cancels}
}

// Routes registers the role scoped endpoints.
func (h *FulfillmentHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireFirebaseAuth(h.role))
	}
	r.Get("/orders", h.queue)
	r.Post("/orders/{orderID}/items/{itemID}/advance", h.advance)
	r.Post("/orders/{orderID}/items/{itemID}/cancel", h.cancel)
	if h.role == domain.RoleSeller {
		r.Get("/earnings", h.earnings)
	}
}

type earningsResponse struct {
	SellerID       string `json:"sellerId"`
	CompletedItems int    `json:"completedItems"`
	Amount         int64  `json:"amount"`
}

// queue lists the orders waiting on this role: unpacked or unshipped items for sellers,
// items in transit with the shipper's carrier code for shippers.
func (h *FulfillmentHandlers) queue(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.lifecycle == nil {
		serviceUnavailable(ctx, w, "order")
		return
	}
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	pager, ok := pageParams(w, r)
	if !ok {
		return
	}

	list := h.lifecycle.ListSellerPending
	if h.role == domain.RoleShipper {
		list = h.lifecycle.ListShipperQueue
	}
	page, err := list(ctx, actor, pager)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildOrderListResponse(page))
}

func (h *FulfillmentHandlers) advance(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.lifecycle == nil {
		serviceUnavailable(ctx, w, "order")
		return
	}
	actor, cmd, ok := h.target(w, r)
	if !ok {
		return
	}

	var advance func(context.Context, domain.Actor, services.TransitionCommand) (domain.OrderItem, error)
	switch h.role {
	case domain.RoleShipper:
		advance = h.lifecycle.AdvanceByShipper
	default:
		advance = h.lifecycle.AdvanceBySeller
	}
	item, err := advance(ctx, actor, cmd)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, itemResponse{Item: buildOrderItemPayload(item)})
}

func (h *FulfillmentHandlers) cancel(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.cancels == nil {
		serviceUnavailable(ctx, w, "cancellation")
		return
	}
	actor, target, ok := h.target(w, r)
	if !ok {
		return
	}
	var req cancelRequest
	if !decodeJSONBody(w, r, maxCancelBodySize, true, &req) {
		return
	}

	cmd := services.CancelItemCommand{
		OrderID: target.OrderID,
		ItemID:  target.ItemID,
		Reason:  strings.TrimSpace(req.Reason),
	}
	var (
		item domain.OrderItem
		err  error
	)
	switch h.role {
	case domain.RoleShipper:
		cmd.ClientReject = req.ClientReject
		item, err = h.cancels.CancelByShipper(ctx, actor, cmd)
	default:
		item, err = h.cancels.CancelBySeller(ctx, actor, cmd)
	}
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, itemResponse{Item: buildOrderItemPayload(item)})
}

func (h *FulfillmentHandlers) earnings(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.lifecycle == nil {
		serviceUnavailable(ctx, w, "order")
		return
	}
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	earnings, err := h.lifecycle.SellerEarnings(ctx, actor)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, earningsResponse{
		SellerID:       earnings.SellerID,
		CompletedItems: earnings.CompletedItems,
		Amount:         earnings.Amount,
	})
}

func (h *FulfillmentHandlers) target(w http.ResponseWriter, r *http.Request) (domain.Actor, services.TransitionCommand, bool) {
	actor, ok := requireActor(w, r)
	if !ok {
		return domain.Actor{}, services.TransitionCommand{}, false
	}
	orderID, ok := pathParam(w, r, "orderID", "order id")
	if !ok {
		return domain.Actor{}, services.TransitionCommand{}, false
	}
	itemID, ok := pathParam(w, r, "itemID", "item id")
	if !ok {
		return domain.Actor{}, services.TransitionCommand{}, false
	}
	return actor, services.TransitionCommand{OrderID: orderID, ItemID: itemID}, true
}
