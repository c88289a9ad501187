package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	domain "github.com/marketcart/api/internal/domain"
	"github.com/marketcart/api/internal/platform/auth"
	"github.com/marketcart/api/internal/platform/httpx"
	"github.com/marketcart/api/internal/platform/pagination"
	"github.com/marketcart/api/internal/services"
)

const (
	maxPlaceOrderBodySize = 64 * 1024
	maxCancelBodySize     = 4 * 1024
	idempotencyHeader     = "Idempotency-Key"
)

// OrderHandlers exposes checkout and buyer order endpoints.
type OrderHandlers struct {
	authn     *auth.Authenticator
	checkout  services.CheckoutService
	lifecycle services.OrderLifecycleService
	cancels   services.CancellationService
}

// NewOrderHandlers constructs a new OrderHandlers instance.
func NewOrderHandlers(authn *auth.Authenticator, checkout services.CheckoutService, lifecycle services.OrderLifecycleService, cancels services.CancellationService) *OrderHandlers {
	return &OrderHandlers{
		authn:     authn,
		checkout:  checkout,
		lifecycle: lifecycle,
		cancels:   cancels,
	}
}

// Routes registers the /orders endpoints.
func (h *OrderHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireFirebaseAuth())
	}
	r.Post("/", h.placeOrder)
	r.Get("/", h.listOrders)
	r.Get("/{orderID}", h.getOrder)
	r.Post("/{orderID}/cancel", h.cancelOrder)
	r.Post("/{orderID}/items/{itemID}/cancel", h.cancelItem)
}

type placeOrderLine struct {
	ProductID    string `json:"productId"`
	VariantID    string `json:"variantId"`
	Quantity     int    `json:"quantity"`
	ShippingCode string `json:"shippingCode"`
}

type placeOrderRequest struct {
	AddressID      string           `json:"addressId"`
	PaymentMethod  string           `json:"paymentMethod"`
	Items          []placeOrderLine `json:"items"`
	IdempotencyKey string           `json:"idempotencyKey"`
}

type totalsPayload struct {
	Subtotal int64 `json:"subtotal"`
	Shipping int64 `json:"shipping"`
	Total    int64 `json:"total"`
}

type placeOrderResponse struct {
	OrderID     string        `json:"orderId,omitempty"`
	PaymentID   string        `json:"paymentId,omitempty"`
	ApprovalURL string        `json:"approvalUrl,omitempty"`
	Token       string        `json:"token,omitempty"`
	Totals      totalsPayload `json:"totals"`
	Currency    string        `json:"currency"`
	Replayed    bool          `json:"replayed"`
}

type cancelRequest struct {
	Reason       string `json:"reason"`
	ClientReject bool   `json:"clientReject"`
}

type orderListResponse struct {
	Items         []orderPayload `json:"items"`
	NextPageToken string         `json:"nextPageToken,omitempty"`
}

type orderResponse struct {
	Order orderPayload `json:"order"`
}

type itemResponse struct {
	Item orderItemPayload `json:"item"`
}

type addressPayload struct {
	Recipient  string `json:"recipient"`
	Phone      string `json:"phone,omitempty"`
	Line1      string `json:"line1"`
	Line2      string `json:"line2,omitempty"`
	Ward       string `json:"ward,omitempty"`
	District   string `json:"district,omitempty"`
	City       string `json:"city"`
	PostalCode string `json:"postalCode,omitempty"`
	Country    string `json:"country,omitempty"`
}

type orderPayload struct {
	ID            string             `json:"id"`
	BuyerID       string             `json:"buyerId"`
	Address       addressPayload     `json:"address"`
	Totals        totalsPayload      `json:"totals"`
	Currency      string             `json:"currency"`
	PaymentMethod string             `json:"paymentMethod"`
	PaymentID     string             `json:"paymentId,omitempty"`
	Items         []orderItemPayload `json:"items"`
	CreatedAt     string             `json:"createdAt"`
	UpdatedAt     string             `json:"updatedAt,omitempty"`
}

type statusEntryPayload struct {
	Stage     string `json:"stage"`
	At        string `json:"at,omitempty"`
	Completed bool   `json:"completed"`
}

type cancellationPayload struct {
	Actor      string `json:"actor"`
	Reason     string `json:"reason,omitempty"`
	At         string `json:"at"`
	FromStatus string `json:"fromStatus"`
}

type orderItemPayload struct {
	ID              string               `json:"id"`
	ProductID       string               `json:"productId"`
	VariantID       string               `json:"variantId"`
	SellerID        string               `json:"sellerId"`
	ProductName     string               `json:"productName"`
	VariantName     string               `json:"variantName,omitempty"`
	UnitPrice       int64                `json:"unitPrice"`
	DiscountPercent int                  `json:"discountPercent"`
	Quantity        int                  `json:"quantity"`
	TotalPaid       int64                `json:"totalPaid"`
	ShippingCode    string               `json:"shippingCode"`
	ShippingCost    int64                `json:"shippingCost"`
	Status          string               `json:"status"`
	PaymentStatus   string               `json:"paymentStatus"`
	Timeline        []statusEntryPayload `json:"timeline"`
	Cancellation    *cancellationPayload `json:"cancellation,omitempty"`
	ClientRejected  bool                 `json:"clientRejected,omitempty"`
	UpdatedAt       string               `json:"updatedAt,omitempty"`
}

func (h *OrderHandlers) placeOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.checkout == nil {
		serviceUnavailable(ctx, w, "checkout")
		return
	}
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	var req placeOrderRequest
	if !decodeJSONBody(w, r, maxPlaceOrderBodySize, false, &req) {
		return
	}
	if len(req.Items) == 0 {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "at least one item is required", http.StatusBadRequest))
		return
	}

	cmd := services.PlaceOrderCommand{
		AddressID:      strings.TrimSpace(req.AddressID),
		PaymentMethod:  domain.PaymentMethod(strings.ToLower(strings.TrimSpace(req.PaymentMethod))),
		IdempotencyKey: strings.TrimSpace(r.Header.Get(idempotencyHeader)),
		Items:          make([]domain.LineRequest, 0, len(req.Items)),
	}
	if cmd.IdempotencyKey == "" {
		cmd.IdempotencyKey = strings.TrimSpace(req.IdempotencyKey)
	}
	for _, line := range req.Items {
		cmd.Items = append(cmd.Items, domain.LineRequest{
			ProductID:    strings.TrimSpace(line.ProductID),
			VariantID:    strings.TrimSpace(line.VariantID),
			Quantity:     line.Quantity,
			ShippingCode: strings.TrimSpace(line.ShippingCode),
		})
	}

	result, err := h.checkout.PlaceOrder(ctx, actor, cmd)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}

	status := http.StatusCreated
	if result.Replayed {
		status = http.StatusOK
	}
	writeJSONResponse(w, status, placeOrderResponse{
		OrderID:     result.OrderID,
		PaymentID:   result.PaymentID,
		ApprovalURL: result.ApprovalURL,
		Token:       result.Token,
		Totals:      buildTotals(result.Totals),
		Currency:    result.Currency,
		Replayed:    result.Replayed,
	})
}

func (h *OrderHandlers) listOrders(w http.ResponseWriter, r *http.Request) {
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
	filter, ok := domain.ParseOrderStatusFilter(r.URL.Query().Get("status"))
	if !ok {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_status", "status must be one of ordered, packed, shipping, done, cancelled", http.StatusBadRequest))
		return
	}

	page, err := h.lifecycle.ListBuyerOrders(ctx, actor, filter, pager)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildOrderListResponse(page))
}

// pageParams reads pageSize and pageToken, writing a 400 when either is malformed.
func pageParams(w http.ResponseWriter, r *http.Request) (domain.Pagination, bool) {
	params, err := pagination.FromRequest(r, pagination.Options{})
	if err != nil {
		code := "invalid_page_size"
		if errors.Is(err, pagination.ErrInvalidPageToken) {
			code = "invalid_page_token"
		}
		httpx.WriteError(r.Context(), w, httpx.NewError(code, err.Error(), http.StatusBadRequest))
		return domain.Pagination{}, false
	}
	return domain.Pagination{PageSize: params.PageSize, PageToken: params.PageToken}, true
}

func buildOrderListResponse(page domain.CursorPage[domain.Order]) orderListResponse {
	items := make([]orderPayload, 0, len(page.Items))
	for _, order := range page.Items {
		items = append(items, buildOrderPayload(order))
	}
	return orderListResponse{Items: items, NextPageToken: page.NextPageToken}
}

func (h *OrderHandlers) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.lifecycle == nil {
		serviceUnavailable(ctx, w, "order")
		return
	}
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	orderID, ok := pathParam(w, r, "orderID", "order id")
	if !ok {
		return
	}

	order, err := h.lifecycle.GetOrder(ctx, actor, orderID)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

func (h *OrderHandlers) cancelOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.cancels == nil {
		serviceUnavailable(ctx, w, "cancellation")
		return
	}
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	orderID, ok := pathParam(w, r, "orderID", "order id")
	if !ok {
		return
	}
	var req cancelRequest
	if !decodeJSONBody(w, r, maxCancelBodySize, true, &req) {
		return
	}

	order, err := h.cancels.CancelOrderByBuyer(ctx, actor, orderID, strings.TrimSpace(req.Reason))
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

func (h *OrderHandlers) cancelItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.cancels == nil {
		serviceUnavailable(ctx, w, "cancellation")
		return
	}
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	orderID, ok := pathParam(w, r, "orderID", "order id")
	if !ok {
		return
	}
	itemID, ok := pathParam(w, r, "itemID", "item id")
	if !ok {
		return
	}
	var req cancelRequest
	if !decodeJSONBody(w, r, maxCancelBodySize, true, &req) {
		return
	}

	item, err := h.cancels.CancelItemByBuyer(ctx, actor, services.BuyerCancelItemCommand{
		OrderID: orderID,
		ItemID:  itemID,
		Reason:  strings.TrimSpace(req.Reason),
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, itemResponse{Item: buildOrderItemPayload(item)})
}

func buildTotals(t domain.Totals) totalsPayload {
	return totalsPayload{Subtotal: t.Subtotal, Shipping: t.Shipping, Total: t.Total}
}

func buildOrderPayload(order domain.Order) orderPayload {
	payload := orderPayload{
		ID:      order.ID,
		BuyerID: order.BuyerID,
		Address: addressPayload{
			Recipient:  order.Address.Recipient,
			Phone:      order.Address.Phone,
			Line1:      order.Address.Line1,
			Line2:      order.Address.Line2,
			Ward:       order.Address.Ward,
			District:   order.Address.District,
			City:       order.Address.City,
			PostalCode: order.Address.PostalCode,
			Country:    order.Address.Country,
		},
		Totals:        totalsPayload{Subtotal: order.Subtotal, Shipping: order.ShippingCost, Total: order.TotalAmount},
		Currency:      strings.ToUpper(order.Currency),
		PaymentMethod: string(order.PaymentMethod),
		PaymentID:     order.PaymentID,
		Items:         make([]orderItemPayload, 0, len(order.Items)),
		CreatedAt:     formatTime(order.CreatedAt),
		UpdatedAt:     formatTime(order.UpdatedAt),
	}
	for _, item := range order.Items {
		if item.Deleted {
			continue
		}
		payload.Items = append(payload.Items, buildOrderItemPayload(item))
	}
	return payload
}

func buildOrderItemPayload(item domain.OrderItem) orderItemPayload {
	payload := orderItemPayload{
		ID:              item.ID,
		ProductID:       item.ProductID,
		VariantID:       item.VariantID,
		SellerID:        item.SellerID,
		ProductName:     item.ProductName,
		VariantName:     item.VariantName,
		UnitPrice:       item.UnitPrice,
		DiscountPercent: item.DiscountPercent,
		Quantity:        item.Quantity,
		TotalPaid:       item.TotalPaid,
		ShippingCode:    item.ShippingCode,
		ShippingCost:    item.ShippingCost,
		Status:          string(item.Status),
		PaymentStatus:   string(item.PaymentStatus),
		Timeline:        make([]statusEntryPayload, 0, len(item.Timeline)),
		ClientRejected:  item.ClientRejected,
		UpdatedAt:       formatTime(item.UpdatedAt),
	}
	for _, entry := range item.Timeline {
		payload.Timeline = append(payload.Timeline, statusEntryPayload{
			Stage:     string(entry.Stage),
			At:        formatTime(entry.At),
			Completed: entry.Completed,
		})
	}
	if c := item.Cancellation; c != nil {
		payload.Cancellation = &cancellationPayload{
			Actor:      string(c.Actor),
			Reason:     c.Reason,
			At:         formatTime(c.At),
			FromStatus: string(c.FromStatus),
		}
	}
	return payload
}
