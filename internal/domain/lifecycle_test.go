package domain

import (
	"errors"
	"testing"
	"time"
)

func newTestItem(captured bool) OrderItem {
	at := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	return NewOrderItem("item_1", PricedLine{
		ProductID:    "prod_1",
		VariantID:    "var_1",
		SellerID:     "seller_1",
		Quantity:     2,
		ShippingCode: "101",
	}, at, captured)
}

func assertTimelineConsistent(t *testing.T, item OrderItem) {
	t.Helper()
	open := 0
	for i, entry := range item.Timeline {
		if !entry.Completed {
			open++
			if i != len(item.Timeline)-1 {
				t.Fatalf("non-final entry %d is open: %+v", i, item.Timeline)
			}
		}
		if i > 0 {
			prev, _ := NextStatus(item.Timeline[i-1].Stage)
			if prev != entry.Stage {
				t.Fatalf("timeline stage %s does not follow %s", entry.Stage, item.Timeline[i-1].Stage)
			}
		}
	}
	if open > 1 {
		t.Fatalf("expected at most one open entry, got %d", open)
	}
	if item.IsCancelled() {
		return
	}
	derived, ok := StatusFromTimeline(item.Timeline)
	if !ok || derived != item.Status {
		t.Fatalf("timeline derives %q (ok=%v) but status is %q", derived, ok, item.Status)
	}
}

func TestOrderItemAdvanceWalksFullLifecycle(t *testing.T) {
	item := newTestItem(false)
	assertTimelineConsistent(t, item)

	at := time.Date(2024, 5, 2, 9, 0, 0, 0, time.UTC)
	want := []ItemStatus{ItemStatusPacked, ItemStatusShipped, ItemStatusDelivered, ItemStatusCompleted}
	for _, expected := range want {
		got, err := item.Advance(at)
		if err != nil {
			t.Fatalf("advance to %s: %v", expected, err)
		}
		if got != expected {
			t.Fatalf("expected %s, got %s", expected, got)
		}
		assertTimelineConsistent(t, item)
	}

	if len(item.Timeline) != 4 {
		t.Fatalf("expected 4 timeline entries, got %d", len(item.Timeline))
	}
	if !item.Timeline[3].Completed {
		t.Fatalf("expected delivered entry completed")
	}
	if _, err := item.Advance(at); !errors.Is(err, ErrIllegalTransition) {
		t.Fatalf("expected illegal transition after completion, got %v", err)
	}
}

func TestOrderItemPackedTimeline(t *testing.T) {
	item := newTestItem(false)
	if _, err := item.Advance(time.Now()); err != nil {
		t.Fatalf("advance: %v", err)
	}
	if len(item.Timeline) != 2 {
		t.Fatalf("expected two entries, got %+v", item.Timeline)
	}
	if item.Timeline[0].Stage != ItemStatusOrdered || !item.Timeline[0].Completed {
		t.Fatalf("unexpected first entry %+v", item.Timeline[0])
	}
	if item.Timeline[1].Stage != ItemStatusPacked || item.Timeline[1].Completed {
		t.Fatalf("unexpected second entry %+v", item.Timeline[1])
	}
}

func TestNewOrderItemCaptured(t *testing.T) {
	item := newTestItem(true)
	if item.Status != ItemStatusPacked {
		t.Fatalf("expected captured item at packed, got %s", item.Status)
	}
	if item.PaymentStatus != ItemPaymentCompleted {
		t.Fatalf("expected completed payment, got %s", item.PaymentStatus)
	}
	assertTimelineConsistent(t, item)
}

func TestCancelIsOneWay(t *testing.T) {
	item := newTestItem(false)
	at := time.Now()
	if err := item.Cancel(CancelActorSeller, "seller_1", "out of stock", at); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if !item.IsCancelled() || item.Cancellation.FromStatus != ItemStatusOrdered {
		t.Fatalf("unexpected cancellation %+v", item.Cancellation)
	}
	assertTimelineConsistent(t, item)

	if err := item.Cancel(CancelActorBuyer, "buyer_1", "", at); !errors.Is(err, ErrItemCancelled) {
		t.Fatalf("expected ErrItemCancelled, got %v", err)
	}
	if _, err := item.Advance(at); !errors.Is(err, ErrItemCancelled) {
		t.Fatalf("expected advance to be rejected, got %v", err)
	}
	if SellerCanAdvance(item) || CancelWindowOpen(CancelActorShipper, item) {
		t.Fatalf("guards must reject cancelled item")
	}
}

func TestCancelWindowsPartitionLiveStates(t *testing.T) {
	cases := []struct {
		status  ItemStatus
		seller  bool
		shipper bool
		buyer   bool
	}{
		{ItemStatusOrdered, true, false, true},
		{ItemStatusPacked, true, false, false},
		{ItemStatusShipped, true, false, false},
		{ItemStatusDelivered, false, true, false},
		{ItemStatusCompleted, false, false, false},
	}

	for _, tc := range cases {
		item := OrderItem{Status: tc.status}
		if got := CancelWindowOpen(CancelActorSeller, item); got != tc.seller {
			t.Fatalf("seller window at %s: expected %v", tc.status, tc.seller)
		}
		if got := CancelWindowOpen(CancelActorShipper, item); got != tc.shipper {
			t.Fatalf("shipper window at %s: expected %v", tc.status, tc.shipper)
		}
		if got := CancelWindowOpen(CancelActorBuyer, item); got != tc.buyer {
			t.Fatalf("buyer window at %s: expected %v", tc.status, tc.buyer)
		}
		if tc.seller && tc.shipper {
			t.Fatalf("seller and shipper windows overlap at %s", tc.status)
		}
	}

	deleted := OrderItem{Status: ItemStatusOrdered, Deleted: true}
	if CancelWindowOpen(CancelActorSeller, deleted) {
		t.Fatalf("deleted items cannot be cancelled")
	}
}

func TestAdvanceGuards(t *testing.T) {
	for _, status := range []ItemStatus{ItemStatusOrdered, ItemStatusPacked} {
		if !SellerCanAdvance(OrderItem{Status: status}) {
			t.Fatalf("seller should advance from %s", status)
		}
		if ShipperCanAdvance(OrderItem{Status: status}) {
			t.Fatalf("shipper should not advance from %s", status)
		}
	}
	for _, status := range []ItemStatus{ItemStatusShipped, ItemStatusDelivered} {
		if SellerCanAdvance(OrderItem{Status: status}) {
			t.Fatalf("seller should not advance from %s", status)
		}
		if !ShipperCanAdvance(OrderItem{Status: status}) {
			t.Fatalf("shipper should advance from %s", status)
		}
	}
}

func TestSumTotals(t *testing.T) {
	totals := SumTotals([]PricedLine{
		{TotalPaid: 2300, ShippingCost: 500},
		{TotalPaid: 1000, ShippingCost: 0},
	})
	if totals.Total != 3300 || totals.Shipping != 500 || totals.Subtotal != 2800 {
		t.Fatalf("unexpected totals %+v", totals)
	}
}

func TestParseRole(t *testing.T) {
	if ParseRole(" Seller ") != RoleSeller {
		t.Fatalf("expected seller")
	}
	if ParseRole("unknown") != RoleBuyer {
		t.Fatalf("expected buyer fallback")
	}
	if (Actor{Role: RoleSeller}).Is(RoleSeller) {
		t.Fatalf("actor without id must not match")
	}
}

func TestOrderWorkQueueFields(t *testing.T) {
	at := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	open := newTestItem(false)

	inTransit := NewOrderItem("item_2", PricedLine{SellerID: "seller_2", Quantity: 1, ShippingCode: "202"}, at, false)
	for range 2 {
		if _, err := inTransit.Advance(at); err != nil {
			t.Fatalf("Advance: %v", err)
		}
	}

	cancelled := NewOrderItem("item_3", PricedLine{SellerID: "seller_3", Quantity: 1, ShippingCode: "303"}, at, false)
	if err := cancelled.Cancel(CancelActorBuyer, "buyer_1", "changed mind", at); err != nil {
		t.Fatalf("Cancel: %v", err)
	}

	order := Order{Items: []OrderItem{open, inTransit, cancelled}}
	if got := order.PendingSellerIDs(); len(got) != 1 || got[0] != "seller_1" {
		t.Fatalf("pending sellers = %v", got)
	}
	if got := order.ActiveShippingCodes(); len(got) != 1 || got[0] != "202" {
		t.Fatalf("active shipping codes = %v", got)
	}
	got := order.ItemStatuses()
	want := []ItemStatus{ItemStatusOrdered, ItemStatusShipped, ItemStatusCancelled}
	if len(got) != len(want) {
		t.Fatalf("item statuses = %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("item statuses = %v, want %v", got, want)
		}
	}
}

func TestParseOrderStatusFilter(t *testing.T) {
	cases := []struct {
		raw  string
		want []ItemStatus
		ok   bool
	}{
		{raw: "", ok: true},
		{raw: " Shipping ", want: []ItemStatus{ItemStatusShipped, ItemStatusDelivered}, ok: true},
		{raw: "done", want: []ItemStatus{ItemStatusCompleted}, ok: true},
		{raw: "cancelled", want: []ItemStatus{ItemStatusCancelled}, ok: true},
		{raw: "returned"},
	}
	for _, tc := range cases {
		filter, ok := ParseOrderStatusFilter(tc.raw)
		if ok != tc.ok {
			t.Fatalf("ParseOrderStatusFilter(%q) ok = %v", tc.raw, ok)
		}
		if !ok {
			continue
		}
		got := filter.Statuses()
		if len(got) != len(tc.want) {
			t.Fatalf("%q statuses = %v, want %v", tc.raw, got, tc.want)
		}
		for i := range got {
			if got[i] != tc.want[i] {
				t.Fatalf("%q statuses = %v, want %v", tc.raw, got, tc.want)
			}
		}
	}
}
