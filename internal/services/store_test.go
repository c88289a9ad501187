package services

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	domain "github.com/marketcart/api/internal/domain"
	"github.com/marketcart/api/internal/payments"
	"github.com/marketcart/api/internal/repositories"
)

type repoError struct {
	message  string
	notFound bool
	conflict bool
}

func (e repoError) Error() string { return e.message }
func (e repoError) IsNotFound() bool { return e.notFound }
func (e repoError) IsConflict() bool { return e.conflict }
func (e repoError) IsInvalid() bool { return false }

func notFound(format string, args ...any) error {
	return repoError{message: fmt.Sprintf(format, args...), notFound: true}
}

// memoryStore backs every repository the services use. RunInTx snapshots the state and restores
// it when fn fails, so tests observe all-or-nothing commits.
type memoryStore struct {
	mu sync.Mutex

	orders        map[string]domain.Order
	products      map[string]domain.Product
	rates         map[string]domain.ShippingRate
	registrations map[string]domain.ShipperRegistration
	addresses     map[string]domain.AddressSnapshot
	carts         map[string]domain.Cart
	stats         map[string]domain.UserStats
	inventory     map[string]domain.Inventory
	histories     map[string]domain.PaymentHistory
	permissions   map[string][]string
	reviews       map[string]domain.Review
	notifications []domain.Notification
	outbox        []repositories.OutboxEntry

	// fail injects an error into the named operation, e.g. "orders.Create".
	fail map[string]error
	txs  int
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		orders:        map[string]domain.Order{},
		products:      map[string]domain.Product{},
		rates:         map[string]domain.ShippingRate{},
		registrations: map[string]domain.ShipperRegistration{},
		addresses:     map[string]domain.AddressSnapshot{},
		carts:         map[string]domain.Cart{},
		stats:         map[string]domain.UserStats{},
		inventory:     map[string]domain.Inventory{},
		histories:     map[string]domain.PaymentHistory{},
		permissions:   map[string][]string{},
		reviews:       map[string]domain.Review{},
		fail:          map[string]error{},
	}
}

type storeSnapshot struct {
	orders        map[string]domain.Order
	products      map[string]domain.Product
	carts         map[string]domain.Cart
	stats         map[string]domain.UserStats
	inventory     map[string]domain.Inventory
	histories     map[string]domain.PaymentHistory
	permissions   map[string][]string
	reviews       map[string]domain.Review
	notifications []domain.Notification
	outbox        []repositories.OutboxEntry
}

func (s *memoryStore) RunInTx(ctx context.Context, fn func(context.Context) error) error {
	s.mu.Lock()
	s.txs++
	snap := storeSnapshot{
		orders:        maps.Clone(s.orders),
		products:      maps.Clone(s.products),
		carts:         maps.Clone(s.carts),
		stats:         maps.Clone(s.stats),
		inventory:     maps.Clone(s.inventory),
		histories:     maps.Clone(s.histories),
		permissions:   maps.Clone(s.permissions),
		reviews:       maps.Clone(s.reviews),
		notifications: slices.Clone(s.notifications),
		outbox:        slices.Clone(s.outbox),
	}
	s.mu.Unlock()

	if err := fn(ctx); err != nil {
		s.mu.Lock()
		s.orders, s.products, s.carts, s.stats = snap.orders, snap.products, snap.carts, snap.stats
		s.inventory, s.histories, s.permissions, s.reviews = snap.inventory, snap.histories, snap.permissions, snap.reviews
		s.notifications, s.outbox = snap.notifications, snap.outbox
		s.mu.Unlock()
		return err
	}
	return nil
}

func (s *memoryStore) check(op string) error {
	if err, ok := s.fail[op]; ok {
		return err
	}
	return nil
}

func (s *memoryStore) addProduct(p domain.Product) {
	s.products[p.ID] = p
}

func (s *memoryStore) variantQuantity(productID, variantID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, _ := s.products[productID].Variant(variantID)
	return v.Quantity
}

func (s *memoryStore) outboxTypes() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	types := make([]string, 0, len(s.outbox))
	for _, entry := range s.outbox {
		types = append(types, entry.Type)
	}
	return types
}

func (s *memoryStore) order(id string) domain.Order {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneOrder(s.orders[id])
}

func cloneOrder(o domain.Order) domain.Order {
	o.SellerIDs = slices.Clone(o.SellerIDs)
	o.Items = slices.Clone(o.Items)
	for i := range o.Items {
		o.Items[i].Timeline = slices.Clone(o.Items[i].Timeline)
		if c := o.Items[i].Cancellation; c != nil {
			copied := *c
			o.Items[i].Cancellation = &copied
		}
	}
	return o
}

type memoryOrders struct{ s *memoryStore }

func (r memoryOrders) Create(_ context.Context, order domain.Order) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.check("orders.Create"); err != nil {
		return err
	}
	if _, ok := r.s.orders[order.ID]; ok {
		return repoError{message: "order exists", conflict: true}
	}
	r.s.orders[order.ID] = cloneOrder(order)
	return nil
}

func (r memoryOrders) Update(_ context.Context, order domain.Order) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.check("orders.Update"); err != nil {
		return err
	}
	if _, ok := r.s.orders[order.ID]; !ok {
		return notFound("order %s", order.ID)
	}
	r.s.orders[order.ID] = cloneOrder(order)
	return nil
}

func (r memoryOrders) FindByID(_ context.Context, id string) (domain.Order, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	order, ok := r.s.orders[id]
	if !ok {
		return domain.Order{}, notFound("order %s", id)
	}
	return cloneOrder(order), nil
}

func (r memoryOrders) ListByBuyer(_ context.Context, buyerID string, statuses []domain.ItemStatus, _ domain.Pagination) (domain.CursorPage[domain.Order], error) {
	return r.list(func(order domain.Order) bool {
		if order.BuyerID != buyerID {
			return false
		}
		return len(statuses) == 0 || slices.ContainsFunc(order.ItemStatuses(), func(status domain.ItemStatus) bool {
			return slices.Contains(statuses, status)
		})
	}), nil
}

func (r memoryOrders) ListPendingBySeller(_ context.Context, sellerID string, _ domain.Pagination) (domain.CursorPage[domain.Order], error) {
	return r.list(func(order domain.Order) bool {
		return slices.Contains(order.PendingSellerIDs(), sellerID)
	}), nil
}

func (r memoryOrders) ListActiveByShippingCode(_ context.Context, code string, _ domain.Pagination) (domain.CursorPage[domain.Order], error) {
	return r.list(func(order domain.Order) bool {
		return slices.Contains(order.ActiveShippingCodes(), code)
	}), nil
}

func (r memoryOrders) list(match func(domain.Order) bool) domain.CursorPage[domain.Order] {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var page domain.CursorPage[domain.Order]
	for _, order := range r.s.orders {
		if match(order) {
			page.Items = append(page.Items, cloneOrder(order))
		}
	}
	slices.SortFunc(page.Items, func(a, b domain.Order) int { return b.CreatedAt.Compare(a.CreatedAt) })
	return page
}

func (r memoryOrders) ListBySeller(_ context.Context, sellerID string) ([]domain.Order, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []domain.Order
	for _, order := range r.s.orders {
		if slices.Contains(order.SellerIDs, sellerID) {
			out = append(out, cloneOrder(order))
		}
	}
	return out, nil
}

type memoryProducts struct{ s *memoryStore }

func (r memoryProducts) FindByID(_ context.Context, id string) (domain.Product, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.products[id]
	if !ok {
		return domain.Product{}, notFound("product %s", id)
	}
	p.Variants = slices.Clone(p.Variants)
	return p, nil
}

func (r memoryProducts) AdjustVariantQuantity(_ context.Context, productID, variantID string, delta int) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.check("products.AdjustVariantQuantity"); err != nil {
		return err
	}
	p, ok := r.s.products[productID]
	if !ok {
		return notFound("product %s", productID)
	}
	p.Variants = slices.Clone(p.Variants)
	for i := range p.Variants {
		if p.Variants[i].ID == variantID {
			p.Variants[i].Quantity += delta
			r.s.products[productID] = p
			return nil
		}
	}
	return notFound("variant %s", variantID)
}

func (r memoryProducts) IncrementSold(_ context.Context, productID string, delta int) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p := r.s.products[productID]
	p.TotalSold += delta
	r.s.products[productID] = p
	return nil
}

type memoryRates struct{ s *memoryStore }

func (r memoryRates) FindByCode(_ context.Context, code string) (domain.ShippingRate, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	rate, ok := r.s.rates[code]
	if !ok {
		return domain.ShippingRate{}, notFound("rate %s", code)
	}
	return rate, nil
}

func (r memoryRates) FindRegistration(_ context.Context, shipperID string) (domain.ShipperRegistration, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	reg, ok := r.s.registrations[shipperID]
	if !ok {
		return domain.ShipperRegistration{}, notFound("registration %s", shipperID)
	}
	return reg, nil
}

type memoryAddresses struct{ s *memoryStore }

func (r memoryAddresses) FindByID(_ context.Context, userID, addressID string) (domain.AddressSnapshot, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	addr, ok := r.s.addresses[userID+"/"+addressID]
	if !ok {
		return domain.AddressSnapshot{}, notFound("address %s", addressID)
	}
	return addr, nil
}

type memoryCarts struct{ s *memoryStore }

func (r memoryCarts) Get(_ context.Context, userID string) (domain.Cart, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	cart, ok := r.s.carts[userID]
	if !ok {
		return domain.Cart{UserID: userID}, nil
	}
	cart.Items = slices.Clone(cart.Items)
	return cart, nil
}

func (r memoryCarts) Replace(_ context.Context, cart domain.Cart) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	cart.Items = slices.Clone(cart.Items)
	r.s.carts[cart.UserID] = cart
	return nil
}

type memoryStats struct{ s *memoryStore }

func (r memoryStats) Increment(_ context.Context, userID string, delta repositories.UserStatsDelta) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	stats := r.s.stats[userID]
	stats.UserID = userID
	stats.TotalBuy += delta.TotalBuy
	stats.TotalCancel += delta.TotalCancel
	stats.TotalOrderReject += delta.TotalOrderReject
	r.s.stats[userID] = stats
	return nil
}

func (r memoryStats) Get(_ context.Context, userID string) (domain.UserStats, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.s.stats[userID], nil
}

type memoryInventory struct{ s *memoryStore }

func (r memoryInventory) AppendReservation(_ context.Context, productID, sellerID string, reservation domain.Reservation) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.check("inventory.AppendReservation"); err != nil {
		return err
	}
	inv := r.s.inventory[productID]
	inv.ProductID = productID
	if sellerID != "" {
		inv.SellerID = sellerID
	}
	inv.Reservations = append(slices.Clone(inv.Reservations), reservation)
	r.s.inventory[productID] = inv
	return nil
}

func (r memoryInventory) FindByProduct(_ context.Context, productID string) (domain.Inventory, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	inv, ok := r.s.inventory[productID]
	if !ok {
		return domain.Inventory{}, notFound("inventory %s", productID)
	}
	return inv, nil
}

type memoryHistories struct{ s *memoryStore }

func (r memoryHistories) Create(_ context.Context, h domain.PaymentHistory) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.histories[h.ID]; ok {
		return repoError{message: "history exists", conflict: true}
	}
	r.s.histories[h.ID] = h
	return nil
}

func (r memoryHistories) Update(_ context.Context, h domain.PaymentHistory) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.check("histories.Update"); err != nil {
		return err
	}
	r.s.histories[h.ID] = h
	return nil
}

func (r memoryHistories) FindByID(_ context.Context, id string) (domain.PaymentHistory, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	h, ok := r.s.histories[id]
	if !ok {
		return domain.PaymentHistory{}, notFound("payment %s", id)
	}
	return h, nil
}

func (r memoryHistories) FindByToken(_ context.Context, token string) (domain.PaymentHistory, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, h := range r.s.histories {
		if h.Token == token {
			return h, nil
		}
	}
	return domain.PaymentHistory{}, notFound("token %s", token)
}

type memoryPermissions struct{ s *memoryStore }

func (r memoryPermissions) Grant(_ context.Context, productID, buyerID string, _ time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if !slices.Contains(r.s.permissions[productID], buyerID) {
		r.s.permissions[productID] = append(slices.Clone(r.s.permissions[productID]), buyerID)
	}
	return nil
}

func (r memoryPermissions) IsGranted(_ context.Context, productID, buyerID string) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return slices.Contains(r.s.permissions[productID], buyerID), nil
}

type memoryReviews struct{ s *memoryStore }

func (r memoryReviews) Find(_ context.Context, productID, buyerID string) (domain.Review, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	review, ok := r.s.reviews[productID+"_"+buyerID]
	if !ok {
		return domain.Review{}, notFound("review")
	}
	return review, nil
}

func (r memoryReviews) Save(_ context.Context, review domain.Review) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.check("reviews.Save"); err != nil {
		return err
	}
	r.s.reviews[review.ProductID+"_"+review.BuyerID] = review
	return nil
}

type memoryNotifications struct{ s *memoryStore }

func (r memoryNotifications) Insert(_ context.Context, n domain.Notification) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.notifications = append(r.s.notifications, n)
	return nil
}

type memoryOutbox struct{ s *memoryStore }

func (r memoryOutbox) Append(_ context.Context, entry repositories.OutboxEntry) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.check("outbox.Append"); err != nil {
		return err
	}
	r.s.outbox = append(r.s.outbox, entry)
	return nil
}

func (r memoryOutbox) ListPending(context.Context, int) ([]repositories.OutboxEntry, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return slices.Clone(r.s.outbox), nil
}

func (memoryOutbox) MarkDelivered(context.Context, string, time.Time) error { return nil }

func (memoryOutbox) MarkFailed(context.Context, string, string, time.Time, bool) error { return nil }

// stubPayments records gateway calls and answers with the configured funcs.
type stubPayments struct {
	mu        sync.Mutex
	createFn  func(payments.PaymentContext, payments.IntentRequest) (payments.Intent, error)
	captureFn func(payments.CaptureRequest) (payments.PaymentDetails, error)
	refundFn  func(payments.RefundRequest) (payments.PaymentDetails, error)
	intents   []payments.IntentRequest
	captures  []payments.CaptureRequest
	refunds   []payments.RefundRequest
}

func (p *stubPayments) CreateIntent(_ context.Context, pctx payments.PaymentContext, req payments.IntentRequest) (payments.Intent, error) {
	p.mu.Lock()
	p.intents = append(p.intents, req)
	p.mu.Unlock()
	if p.createFn != nil {
		return p.createFn(pctx, req)
	}
	return payments.Intent{
		PaymentID:   "cs_test_1",
		Provider:    "stripe",
		ApprovalURL: "https://checkout.example/pay/cs_test_1",
	}, nil
}

func (p *stubPayments) Capture(_ context.Context, _ payments.PaymentContext, req payments.CaptureRequest) (payments.PaymentDetails, error) {
	p.mu.Lock()
	p.captures = append(p.captures, req)
	p.mu.Unlock()
	if p.captureFn != nil {
		return p.captureFn(req)
	}
	return payments.PaymentDetails{PaymentID: req.PaymentID, Status: payments.StatusSucceeded, Captured: true}, nil
}

func (p *stubPayments) Refund(_ context.Context, _ payments.PaymentContext, req payments.RefundRequest) (payments.PaymentDetails, error) {
	p.mu.Lock()
	p.refunds = append(p.refunds, req)
	p.mu.Unlock()
	if p.refundFn != nil {
		return p.refundFn(req)
	}
	return payments.PaymentDetails{PaymentID: req.PaymentID, Status: payments.StatusRefunded}, nil
}

func (p *stubPayments) LookupPayment(_ context.Context, _ payments.PaymentContext, req payments.LookupRequest) (payments.PaymentDetails, error) {
	return payments.PaymentDetails{PaymentID: req.PaymentID}, nil
}

type countingMetrics struct {
	mu        sync.Mutex
	placed    map[string]int
	advanced  map[string]int
	cancelled map[string]int
	callbacks map[string]int
}

func newCountingMetrics() *countingMetrics {
	return &countingMetrics{
		placed:    map[string]int{},
		advanced:  map[string]int{},
		cancelled: map[string]int{},
		callbacks: map[string]int{},
	}
}

func (m *countingMetrics) OrderPlaced(_ context.Context, method string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.placed[method]++
}

func (m *countingMetrics) ItemAdvanced(_ context.Context, to string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.advanced[to]++
}

func (m *countingMetrics) ItemCancelled(_ context.Context, actor string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cancelled[actor]++
}

func (m *countingMetrics) PaymentCallback(_ context.Context, outcome string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callbacks[outcome]++
}

var (
	buyer   = domain.Actor{ID: "buyer-1", Role: domain.RoleBuyer, Email: "buyer@example.com", Name: "Binh"}
	seller  = domain.Actor{ID: "seller-1", Role: domain.RoleSeller}
	shipper = domain.Actor{ID: "shipper-1", Role: domain.RoleShipper}
)

// seededStore holds one product with two variants, one shipping rate and a buyer address.
func seededStore() *memoryStore {
	s := newMemoryStore()
	s.addProduct(domain.Product{
		ID:       "prod-1",
		SellerID: seller.ID,
		Name:     "Ceramic Mug",
		Variants: []domain.Variant{
			{ID: "var-1", Name: "Blue", Price: 2000, DiscountPercent: 10, Quantity: 10},
			{ID: "var-2", Name: "Red", Price: 1500, Quantity: 3},
		},
	})
	s.rates["101"] = domain.ShippingRate{Code: "101", Price: 500, Company: "FastShip", ShipperID: shipper.ID}
	s.registrations[shipper.ID] = domain.ShipperRegistration{ShipperID: shipper.ID, Code: "101", Company: "FastShip"}
	s.registrations["shipper-2"] = domain.ShipperRegistration{ShipperID: "shipper-2", Code: "202"}
	s.addresses[buyer.ID+"/addr-1"] = domain.AddressSnapshot{ID: "addr-1", Recipient: "Binh", Line1: "1 Main St", City: "Hanoi"}
	s.carts[buyer.ID] = domain.Cart{UserID: buyer.ID, Items: []domain.CartItem{
		{ProductID: "prod-1", VariantID: "var-1", Quantity: 1},
		{ProductID: "prod-9", VariantID: "var-9", Quantity: 4},
	}}
	return s
}

var testNow = time.Date(2025, 3, 4, 10, 0, 0, 0, time.UTC)

type harness struct {
	store     *memoryStore
	payments  *stubPayments
	metrics   *countingMetrics
	checkout  CheckoutService
	lifecycle OrderLifecycleService
	cancels   CancellationService
	reviews   ReviewService
}

func newHarness(store *memoryStore) (*harness, error) {
	h := &harness{store: store, payments: &stubPayments{}, metrics: newCountingMetrics()}
	clock := func() time.Time { return testNow }
	var seq int
	nextID := func() string {
		seq++
		return fmt.Sprintf("%04d", seq)
	}

	sink, err := NewOutboxEventSink(memoryOutbox{store})
	if err != nil {
		return nil, err
	}
	resolver, err := NewPricingResolver(PricingResolverDeps{Products: memoryProducts{store}, ShippingRates: memoryRates{store}})
	if err != nil {
		return nil, err
	}
	ledger, err := NewInventoryLedger(InventoryLedgerDeps{Inventory: memoryInventory{store}, Clock: clock})
	if err != nil {
		return nil, err
	}
	h.checkout, err = NewCheckoutService(CheckoutServiceDeps{
		Orders:           memoryOrders{store},
		Products:         memoryProducts{store},
		Carts:            memoryCarts{store},
		Addresses:        memoryAddresses{store},
		PaymentHistories: memoryHistories{store},
		Resolver:         resolver,
		Ledger:           ledger,
		Payments:         h.payments,
		Events:           sink,
		UnitOfWork:       store,
		Metrics:          h.metrics,
		Currency:         "usd",
		SuccessURL:       "https://shop.example/api/v1/payments/callback/success",
		CancelURL:        "https://shop.example/api/v1/payments/callback/cancel",
		Clock:            clock,
		IDGenerator:      nextID,
		TokenGenerator:   func() string { return "tok-1" },
	})
	if err != nil {
		return nil, err
	}
	h.lifecycle, err = NewOrderLifecycleService(OrderLifecycleServiceDeps{
		Orders:            memoryOrders{store},
		Products:          memoryProducts{store},
		ShippingRates:     memoryRates{store},
		UserStats:         memoryStats{store},
		ReviewPermissions: memoryPermissions{store},
		Notifications:     memoryNotifications{store},
		Events:            sink,
		UnitOfWork:        store,
		Metrics:           h.metrics,
		Clock:             clock,
	})
	if err != nil {
		return nil, err
	}
	h.cancels, err = NewCancellationService(CancellationServiceDeps{
		Orders:        memoryOrders{store},
		Products:      memoryProducts{store},
		ShippingRates: memoryRates{store},
		UserStats:     memoryStats{store},
		Payments:      h.payments,
		Events:        sink,
		UnitOfWork:    store,
		Metrics:       h.metrics,
		Clock:         clock,
	})
	if err != nil {
		return nil, err
	}
	h.reviews, err = NewReviewService(ReviewServiceDeps{
		Products:    memoryProducts{store},
		Permissions: memoryPermissions{store},
		Reviews:     memoryReviews{store},
		Clock:       clock,
	})
	if err != nil {
		return nil, err
	}
	return h, nil
}

// placeCOD places a one-line COD order and returns the created order.
func (h *harness) placeCOD(ctx context.Context, variantID string, qty int) (domain.Order, error) {
	res, err := h.checkout.PlaceOrder(ctx, buyer, PlaceOrderCommand{
		AddressID:     "addr-1",
		PaymentMethod: domain.PaymentMethodCOD,
		Items:         []domain.LineRequest{{ProductID: "prod-1", VariantID: variantID, Quantity: qty, ShippingCode: "101"}},
	})
	if err != nil {
		return domain.Order{}, err
	}
	return h.store.order(res.OrderID), nil
}

var (
	_ repositories.OrderRepository            = memoryOrders{}
	_ repositories.ProductRepository          = memoryProducts{}
	_ repositories.ShippingRateRepository     = memoryRates{}
	_ repositories.AddressRepository          = memoryAddresses{}
	_ repositories.CartRepository             = memoryCarts{}
	_ repositories.UserStatsRepository        = memoryStats{}
	_ repositories.InventoryRepository        = memoryInventory{}
	_ repositories.PaymentHistoryRepository   = memoryHistories{}
	_ repositories.ReviewPermissionRepository = memoryPermissions{}
	_ repositories.ReviewRepository           = memoryReviews{}
	_ repositories.NotificationRepository     = memoryNotifications{}
	_ repositories.OutboxRepository           = memoryOutbox{}
	_ repositories.UnitOfWork                 = (*memoryStore)(nil)
	_ PaymentGateway                          = (*stubPayments)(nil)
	_ Metrics                                 = (*countingMetrics)(nil)
)
