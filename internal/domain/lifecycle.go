package domain

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"
)

// ItemStatus is the explicit lifecycle state tag of an order item.
type ItemStatus string

const (
	ItemStatusOrdered   ItemStatus = "ordered"
	ItemStatusPacked    ItemStatus = "packed"
	ItemStatusShipped   ItemStatus = "shipped"
	ItemStatusDelivered ItemStatus = "delivered"
	// ItemStatusCompleted is delivered with the delivery stage confirmed.
	ItemStatusCompleted ItemStatus = "completed"
	ItemStatusCancelled ItemStatus = "cancelled"
)

// StatusEntry is one append-only timeline record. The last entry is current until completed.
type StatusEntry struct {
	Stage     ItemStatus
	At        time.Time
	Completed bool
}

var (
	// ErrIllegalTransition is returned when an item cannot move to the requested state.
	ErrIllegalTransition = errors.New("domain: illegal item transition")
	// ErrItemCancelled is returned when mutating an item whose cancellation flag is set.
	ErrItemCancelled = errors.New("domain: item cancelled")
)

var itemTransitions = map[ItemStatus]ItemStatus{
	ItemStatusOrdered:   ItemStatusPacked,
	ItemStatusPacked:    ItemStatusShipped,
	ItemStatusShipped:   ItemStatusDelivered,
	ItemStatusDelivered: ItemStatusCompleted,
}

var (
	sellerAdvanceFrom  = []ItemStatus{ItemStatusOrdered, ItemStatusPacked}
	shipperAdvanceFrom = []ItemStatus{ItemStatusShipped, ItemStatusDelivered}

	sellerCancelWindow  = []ItemStatus{ItemStatusOrdered, ItemStatusPacked, ItemStatusShipped}
	shipperCancelWindow = []ItemStatus{ItemStatusDelivered}
	buyerCancelWindow   = []ItemStatus{ItemStatusOrdered}
)

// NextStatus returns the forward successor of status.
func NextStatus(status ItemStatus) (ItemStatus, bool) {
	next, ok := itemTransitions[status]
	return next, ok
}

// IsTerminal reports whether no forward or cancel transition can leave status.
func (s ItemStatus) IsTerminal() bool {
	return s == ItemStatusCompleted || s == ItemStatusCancelled
}

// Advance moves the item one step forward, marking the current timeline entry completed and
// appending the next stage. The delivered to completed step only completes the current entry.
func (i *OrderItem) Advance(at time.Time) (ItemStatus, error) {
	if i.IsCancelled() {
		return i.Status, ErrItemCancelled
	}
	next, ok := NextStatus(i.Status)
	if !ok || len(i.Timeline) == 0 {
		return i.Status, fmt.Errorf("%w: from %s", ErrIllegalTransition, i.Status)
	}
	last := &i.Timeline[len(i.Timeline)-1]
	if last.Completed || last.Stage != i.Status {
		return i.Status, fmt.Errorf("%w: timeline out of sync at %s", ErrIllegalTransition, i.Status)
	}
	last.Completed = true
	if next != ItemStatusCompleted {
		i.Timeline = append(i.Timeline, StatusEntry{Stage: next, At: at})
	}
	i.Status = next
	i.UpdatedAt = at
	return next, nil
}

// Cancel sets the one-way cancellation flag. The timeline is left as the audit of how far the item got.
func (i *OrderItem) Cancel(actor CancelActor, actorID, reason string, at time.Time) error {
	if i.IsCancelled() {
		return ErrItemCancelled
	}
	if i.Status.IsTerminal() {
		return fmt.Errorf("%w: cancel from %s", ErrIllegalTransition, i.Status)
	}
	i.Cancellation = &Cancellation{
		Actor:      actor,
		ActorID:    actorID,
		Reason:     reason,
		At:         at,
		FromStatus: i.Status,
	}
	i.Status = ItemStatusCancelled
	i.UpdatedAt = at
	return nil
}

// StatusFromTimeline derives the state tag from the stage/completion history.
func StatusFromTimeline(timeline []StatusEntry) (ItemStatus, bool) {
	if len(timeline) == 0 {
		return "", false
	}
	last := timeline[len(timeline)-1]
	if last.Completed {
		if last.Stage == ItemStatusDelivered {
			return ItemStatusCompleted, true
		}
		return "", false
	}
	return last.Stage, true
}

// SellerCanAdvance is the seller transition guard over the item state.
func SellerCanAdvance(item OrderItem) bool {
	return isLive(item) && slices.Contains(sellerAdvanceFrom, item.Status)
}

// ShipperCanAdvance is the shipper transition guard over the item state.
func ShipperCanAdvance(item OrderItem) bool {
	return isLive(item) && slices.Contains(shipperAdvanceFrom, item.Status)
}

// CancelWindowOpen reports whether actor may cancel item in its current state.
// Seller covers ordered through shipped, shipper covers delivered, and the two never overlap.
func CancelWindowOpen(actor CancelActor, item OrderItem) bool {
	if !isLive(item) {
		return false
	}
	switch actor {
	case CancelActorSeller:
		return slices.Contains(sellerCancelWindow, item.Status)
	case CancelActorShipper:
		return slices.Contains(shipperCancelWindow, item.Status)
	case CancelActorBuyer:
		return slices.Contains(buyerCancelWindow, item.Status)
	default:
		return false
	}
}

func isLive(item OrderItem) bool {
	return !item.IsCancelled() && !item.Deleted
}

// OrderStatusFilter narrows a buyer's order listing to orders holding at least one item in
// the matching stages.
type OrderStatusFilter string

const (
	OrderFilterAll       OrderStatusFilter = ""
	OrderFilterOrdered   OrderStatusFilter = "ordered"
	OrderFilterPacked    OrderStatusFilter = "packed"
	OrderFilterShipping  OrderStatusFilter = "shipping"
	OrderFilterDone      OrderStatusFilter = "done"
	OrderFilterCancelled OrderStatusFilter = "cancelled"
)

var orderFilterStatuses = map[OrderStatusFilter][]ItemStatus{
	OrderFilterOrdered:   {ItemStatusOrdered},
	OrderFilterPacked:    {ItemStatusPacked},
	OrderFilterShipping:  {ItemStatusShipped, ItemStatusDelivered},
	OrderFilterDone:      {ItemStatusCompleted},
	OrderFilterCancelled: {ItemStatusCancelled},
}

// ParseOrderStatusFilter converts the raw query value into a filter. Empty selects every order.
func ParseOrderStatusFilter(raw string) (OrderStatusFilter, bool) {
	filter := OrderStatusFilter(strings.ToLower(strings.TrimSpace(raw)))
	if filter == OrderFilterAll {
		return filter, true
	}
	_, ok := orderFilterStatuses[filter]
	return filter, ok
}

// Statuses returns the item stages the filter matches, nil for every stage.
func (f OrderStatusFilter) Statuses() []ItemStatus {
	return slices.Clone(orderFilterStatuses[f])
}

// ItemStatuses lists the distinct current stages of the order's items.
func (o Order) ItemStatuses() []ItemStatus {
	var out []ItemStatus
	for _, item := range o.Items {
		status := item.Status
		if item.IsCancelled() {
			status = ItemStatusCancelled
		}
		if !slices.Contains(out, status) {
			out = append(out, status)
		}
	}
	return out
}

// PendingSellerIDs lists sellers that still have an item to pack or hand to the carrier.
func (o Order) PendingSellerIDs() []string {
	var out []string
	for _, item := range o.Items {
		if SellerCanAdvance(item) && !slices.Contains(out, item.SellerID) {
			out = append(out, item.SellerID)
		}
	}
	return out
}

// ActiveShippingCodes lists carriers holding an item that is shipped or awaiting confirmation.
func (o Order) ActiveShippingCodes() []string {
	var out []string
	for _, item := range o.Items {
		if ShipperCanAdvance(item) && !slices.Contains(out, item.ShippingCode) {
			out = append(out, item.ShippingCode)
		}
	}
	return out
}
