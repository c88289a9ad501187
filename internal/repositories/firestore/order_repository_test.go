package firestore

import (
	"slices"
	"testing"
	"time"

	domain "github.com/marketcart/api/internal/domain"
)

func TestOrderDocumentQueryProjections(t *testing.T) {
	at := time.Date(2025, 3, 4, 10, 0, 0, 0, time.UTC)
	packed := domain.NewOrderItem("itm_1", domain.PricedLine{SellerID: "seller-1", ShippingCode: "101", Quantity: 1}, at, true)
	shipped := domain.NewOrderItem("itm_2", domain.PricedLine{SellerID: "seller-2", ShippingCode: "202", Quantity: 1}, at, true)
	if _, err := shipped.Advance(at); err != nil {
		t.Fatalf("Advance: %v", err)
	}
	order := domain.Order{ID: "ord_1", BuyerID: "buyer-1", Items: []domain.OrderItem{packed, shipped}, CreatedAt: at, UpdatedAt: at}

	doc := newOrderDocument(order)
	if !slices.Equal(doc.ItemStatuses, []string{"packed", "shipped"}) {
		t.Fatalf("itemStatuses = %v", doc.ItemStatuses)
	}
	if !slices.Equal(doc.PendingSellerIDs, []string{"seller-1"}) {
		t.Fatalf("pendingSellerIds = %v", doc.PendingSellerIDs)
	}
	if !slices.Equal(doc.ActiveShippingCodes, []string{"202"}) {
		t.Fatalf("activeShippingCodes = %v", doc.ActiveShippingCodes)
	}

	// Projections follow the items on every write.
	if err := order.Items[0].Cancel(domain.CancelActorSeller, "seller-1", "out of stock", at); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	doc = newOrderDocument(order)
	if len(doc.PendingSellerIDs) != 0 || !slices.Contains(doc.ItemStatuses, "cancelled") {
		t.Fatalf("expected cancelled item to leave the seller queue, got %+v %+v", doc.PendingSellerIDs, doc.ItemStatuses)
	}

	round := doc.toDomain(order.ID)
	if len(round.Items) != 2 || round.Items[1].Status != domain.ItemStatusShipped {
		t.Fatalf("unexpected order %+v", round)
	}
}
