package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	domain "github.com/marketcart/api/internal/domain"
	"github.com/marketcart/api/internal/services"
)

func TestSellerHandlersAdvance(t *testing.T) {
	var captured services.TransitionCommand
	lifecycle := &stubLifecycleService{
		sellerFn: func(_ context.Context, actor domain.Actor, cmd services.TransitionCommand) (domain.OrderItem, error) {
			if actor.ID != "seller-1" {
				return domain.OrderItem{}, services.ErrForbidden
			}
			captured = cmd
			return domain.OrderItem{ID: cmd.ItemID, Status: domain.ItemStatusPacked}, nil
		},
	}
	handler := NewSellerHandlers(nil, lifecycle, nil)
	router := NewRouter(WithSellerRoutes(handler.Routes))

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, newRequestAs(http.MethodPost, "/api/v1/seller/orders/ord_1/items/itm_1/advance", "", "seller-1", domain.RoleSeller))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if captured.OrderID != "ord_1" || captured.ItemID != "itm_1" {
		t.Fatalf("unexpected command %+v", captured)
	}
	var payload itemResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if payload.Item.Status != "packed" {
		t.Fatalf("expected packed, got %s", payload.Item.Status)
	}

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, newRequestAs(http.MethodPost, "/api/v1/seller/orders/ord_1/items/itm_1/advance", "", "seller-2", domain.RoleSeller))
	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for foreign seller, got %d", rr.Code)
	}
}

func TestShipperHandlersAdvanceAndCancel(t *testing.T) {
	advanced := false
	var cancelCmd services.CancelItemCommand
	lifecycle := &stubLifecycleService{
		shipperFn: func(_ context.Context, _ domain.Actor, cmd services.TransitionCommand) (domain.OrderItem, error) {
			advanced = true
			return domain.OrderItem{ID: cmd.ItemID, Status: domain.ItemStatusDelivered}, nil
		},
	}
	cancels := &stubCancellationService{
		shipperFn: func(_ context.Context, _ domain.Actor, cmd services.CancelItemCommand) (domain.OrderItem, error) {
			cancelCmd = cmd
			return domain.OrderItem{ID: cmd.ItemID, Status: domain.ItemStatusCancelled, ClientRejected: cmd.ClientReject}, nil
		},
	}
	handler := NewShipperHandlers(nil, lifecycle, cancels)
	router := NewRouter(WithShipperRoutes(handler.Routes))

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, newRequestAs(http.MethodPost, "/api/v1/shipper/orders/ord_1/items/itm_1/advance", "", "shipper-1", domain.RoleShipper))
	if rr.Code != http.StatusOK || !advanced {
		t.Fatalf("expected shipper advance, got %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, newRequestAs(http.MethodPost, "/api/v1/shipper/orders/ord_1/items/itm_1/cancel", `{"reason":"refused","clientReject":true}`, "shipper-1", domain.RoleShipper))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if !cancelCmd.ClientReject || cancelCmd.Reason != "refused" {
		t.Fatalf("unexpected cancel command %+v", cancelCmd)
	}

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, newRequestAs(http.MethodGet, "/api/v1/shipper/earnings", "", "shipper-1", domain.RoleShipper))
	if rr.Code == http.StatusOK {
		t.Fatalf("earnings must not be exposed to shippers")
	}
}

func TestSellerHandlersCancelIgnoresClientReject(t *testing.T) {
	var captured services.CancelItemCommand
	cancels := &stubCancellationService{
		sellerFn: func(_ context.Context, _ domain.Actor, cmd services.CancelItemCommand) (domain.OrderItem, error) {
			captured = cmd
			return domain.OrderItem{ID: cmd.ItemID, Status: domain.ItemStatusCancelled}, nil
		},
	}
	handler := NewSellerHandlers(nil, nil, cancels)
	router := NewRouter(WithSellerRoutes(handler.Routes))

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, newRequestAs(http.MethodPost, "/api/v1/seller/orders/ord_1/items/itm_1/cancel", `{"clientReject":true}`, "seller-1", domain.RoleSeller))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if captured.ClientReject {
		t.Fatalf("seller cancellation must not carry client reject")
	}
}

func TestSellerHandlersEarnings(t *testing.T) {
	lifecycle := &stubLifecycleService{
		earningsFn: func(_ context.Context, actor domain.Actor) (services.SellerEarnings, error) {
			return services.SellerEarnings{SellerID: actor.ID, CompletedItems: 1, Amount: 1800}, nil
		},
	}
	handler := NewSellerHandlers(nil, lifecycle, nil)
	router := NewRouter(WithSellerRoutes(handler.Routes))

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, newRequestAs(http.MethodGet, "/api/v1/seller/earnings", "", "seller-1", domain.RoleSeller))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var payload earningsResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if payload.SellerID != "seller-1" || payload.Amount != 1800 || payload.CompletedItems != 1 {
		t.Fatalf("unexpected earnings %+v", payload)
	}
}

func TestFulfillmentHandlersWorkQueues(t *testing.T) {
	var pendingFor, queueFor string
	var pager domain.Pagination
	lifecycle := &stubLifecycleService{
		pendingFn: func(_ context.Context, actor domain.Actor, p domain.Pagination) (domain.CursorPage[domain.Order], error) {
			pendingFor = actor.ID
			pager = p
			return domain.CursorPage[domain.Order]{Items: []domain.Order{sampleOrder(time.Now())}}, nil
		},
		queueFn: func(_ context.Context, actor domain.Actor, _ domain.Pagination) (domain.CursorPage[domain.Order], error) {
			queueFor = actor.ID
			if actor.ID == "shipper-9" {
				return domain.CursorPage[domain.Order]{}, services.ErrForbidden
			}
			return domain.CursorPage[domain.Order]{NextPageToken: "more"}, nil
		},
	}
	router := NewRouter(
		WithSellerRoutes(NewSellerHandlers(nil, lifecycle, nil).Routes),
		WithShipperRoutes(NewShipperHandlers(nil, lifecycle, nil).Routes),
	)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, newRequestAs(http.MethodGet, "/api/v1/seller/orders?pageSize=20", "", "seller-1", domain.RoleSeller))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var payload orderListResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if pendingFor != "seller-1" || pager.PageSize != 20 || len(payload.Items) != 1 {
		t.Fatalf("unexpected seller queue call %q %+v %+v", pendingFor, pager, payload)
	}

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, newRequestAs(http.MethodGet, "/api/v1/shipper/orders", "", "shipper-1", domain.RoleShipper))
	if rr.Code != http.StatusOK || queueFor != "shipper-1" {
		t.Fatalf("expected shipper queue for shipper-1, got %d %q", rr.Code, queueFor)
	}
	payload = orderListResponse{}
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if payload.NextPageToken != "more" {
		t.Fatalf("expected next page token, got %+v", payload)
	}

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, newRequestAs(http.MethodGet, "/api/v1/shipper/orders", "", "shipper-9", domain.RoleShipper))
	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for unregistered shipper, got %d", rr.Code)
	}
}
