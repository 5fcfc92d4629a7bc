package checkout_test

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/promo-storefront/internal/cart"
	"github.com/noah-isme/promo-storefront/internal/checkout"
	"github.com/noah-isme/promo-storefront/internal/events"
	"github.com/noah-isme/promo-storefront/internal/lock"
	"github.com/noah-isme/promo-storefront/internal/order"
	"github.com/noah-isme/promo-storefront/internal/payment"
	"github.com/noah-isme/promo-storefront/internal/pricing"
	"github.com/noah-isme/promo-storefront/internal/upstream"
	"github.com/noah-isme/promo-storefront/internal/user"
)

type memStore struct {
	mu       sync.Mutex
	attempts map[uuid.UUID]checkout.Attempt
	history  []checkout.Status
}

func newMemStore() *memStore {
	return &memStore{attempts: map[uuid.UUID]checkout.Attempt{}}
}

func (m *memStore) Create(_ context.Context, a checkout.Attempt) (checkout.Attempt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.attempts {
		if existing.UserID == a.UserID && existing.IdempotencyKey == a.IdempotencyKey {
			return checkout.Attempt{}, checkout.ErrDuplicateKey
		}
	}
	now := time.Now().UTC()
	a.CreatedAt, a.UpdatedAt = now, now
	m.attempts[a.ID] = a
	m.history = append(m.history, a.Status)
	return a, nil
}

func (m *memStore) Get(_ context.Context, id uuid.UUID) (checkout.Attempt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.attempts[id]
	if !ok {
		return checkout.Attempt{}, checkout.ErrAttemptNotFound
	}
	return a, nil
}

func (m *memStore) FindByKey(_ context.Context, userID, key string) (checkout.Attempt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.attempts {
		if a.UserID == userID && a.IdempotencyKey == key {
			return a, nil
		}
	}
	return checkout.Attempt{}, checkout.ErrAttemptNotFound
}

func (m *memStore) Transition(_ context.Context, id uuid.UUID, to checkout.Status, upd checkout.Update) (checkout.Attempt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.attempts[id]
	if !ok {
		return checkout.Attempt{}, checkout.ErrAttemptNotFound
	}
	if !checkout.CanTransition(a.Status, to) {
		return checkout.Attempt{}, checkout.ErrInvalidTransition
	}
	a.Status = to
	if upd.TransactionID != nil {
		a.TransactionID = *upd.TransactionID
	}
	if upd.OrderID != nil {
		a.OrderID = *upd.OrderID
	}
	if upd.Order != nil {
		a.Order = upd.Order
	}
	if upd.DeclineMessage != nil {
		a.DeclineMessage = *upd.DeclineMessage
	}
	if upd.LastError != nil {
		a.LastError = *upd.LastError
	}
	a.UpdatedAt = time.Now().UTC()
	m.attempts[id] = a
	m.history = append(m.history, to)
	return a, nil
}

func (m *memStore) Restart(_ context.Context, a checkout.Attempt) (checkout.Attempt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.attempts[a.ID]
	if !ok || stored.Status != checkout.StatusAborted {
		return checkout.Attempt{}, checkout.ErrInvalidTransition
	}
	stored.Status = checkout.StatusPending
	stored.AmountTotal = a.AmountTotal
	stored.ShippingFee = a.ShippingFee
	stored.BillingAddressID = a.BillingAddressID
	stored.ShippingAddressID = a.ShippingAddressID
	stored.LastError = ""
	stored.UpdatedAt = time.Now().UTC()
	m.attempts[a.ID] = stored
	m.history = append(m.history, checkout.StatusPending)
	return stored, nil
}

func (m *memStore) ListOrphaned(_ context.Context, before time.Time, limit int) ([]checkout.Attempt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []checkout.Attempt
	for _, a := range m.attempts {
		if a.Status == checkout.StatusOrphaned && a.UpdatedAt.Before(before) {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.Before(out[j].UpdatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memStore) only(t *testing.T) checkout.Attempt {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	require.Len(t, m.attempts, 1)
	for _, a := range m.attempts {
		return a
	}
	return checkout.Attempt{}
}

type fakePricer struct {
	items []pricing.LineItem
	cfg   *pricing.Config
	err   error
	calls int
}

func (f *fakePricer) Priced(_ context.Context, g pricing.Granularity) (cart.PricedCart, error) {
	f.calls++
	if f.err != nil {
		return cart.PricedCart{}, f.err
	}
	cfg := pricing.DefaultConfig()
	if f.cfg != nil {
		cfg = *f.cfg
	}
	totals := pricing.NewEngine(cfg).ComputeCart(f.items, g)
	return cart.PricedCart{Cart: cart.Cart{ID: "cart-1"}, Totals: totals}, nil
}

type fakeResolver struct {
	calls int
	err   error
}

func (f *fakeResolver) Reconcile(_ context.Context, billingID, shippingID string, sync bool) (user.Resolution, error) {
	f.calls++
	if f.err != nil {
		return user.Resolution{}, f.err
	}
	if sync && (shippingID == "" || shippingID == billingID) {
		shippingID = "addr-synced"
	}
	return user.Resolution{BillingID: billingID, ShippingID: shippingID, Synced: sync, State: user.HasBillingAndShipping}, nil
}

type fakeGateway struct {
	mu       sync.Mutex
	charges  []payment.ChargeRequest
	refunds  []payment.ChargeRequest
	resp     payment.Response
	err      error
	refund   payment.Response
	refundEr error
	onCharge func()
}

func (f *fakeGateway) Charge(_ context.Context, req payment.ChargeRequest) (payment.Response, error) {
	if f.onCharge != nil {
		f.onCharge()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.charges = append(f.charges, req)
	return f.resp, f.err
}

func (f *fakeGateway) Refund(_ context.Context, req payment.ChargeRequest) (payment.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refunds = append(f.refunds, req)
	return f.refund, f.refundEr
}

func (f *fakeGateway) chargeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.charges)
}

type fakeOrders struct {
	calls    int
	requests []order.CreateRequest
	err      error
	ctxErr   error
}

func (f *fakeOrders) Create(ctx context.Context, req order.CreateRequest) (order.Order, error) {
	f.calls++
	f.ctxErr = ctx.Err()
	f.requests = append(f.requests, req)
	if f.err != nil {
		return order.Order{}, f.err
	}
	return order.Order{
		ID:                "ord-1",
		Number:            "PS-0001",
		Status:            "pending_fulfilment",
		PaymentStatus:     req.PaymentStatus,
		TransactionID:     req.TransactionID,
		BillingAddressID:  req.BillingAddressID,
		ShippingAddressID: req.ShippingAddressID,
		AmountTotal:       req.AmountTotal,
		ShippingFee:       req.ShippingFee,
		Items:             req.Items,
	}, nil
}

type captureEmitter struct {
	mu     sync.Mutex
	topics []string
}

func (c *captureEmitter) Emit(_ context.Context, topic string, aggregateID uuid.UUID, _ any) (events.Event, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.topics = append(c.topics, topic)
	return events.Event{ID: uuid.New(), Topic: topic, AggregateID: aggregateID}, nil
}

type fakeCompensator struct {
	attempts []checkout.Attempt
	err      error
}

func (f *fakeCompensator) EnqueueVoid(_ context.Context, a checkout.Attempt) error {
	if f.err != nil {
		return f.err
	}
	f.attempts = append(f.attempts, a)
	return nil
}

type fixture struct {
	svc       *checkout.Service
	store     *memStore
	pricer    *fakePricer
	resolver  *fakeResolver
	gateway   *fakeGateway
	orders    *fakeOrders
	events    *captureEmitter
	comp      *fakeCompensator
	miniredis *miniredis.Miniredis
}

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newFixture(t *testing.T) *fixture {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	f := &fixture{
		store:     newMemStore(),
		pricer:    &fakePricer{items: []pricing.LineItem{bulkLine(150)}},
		resolver:  &fakeResolver{},
		gateway:   &fakeGateway{resp: captured("tx-100")},
		orders:    &fakeOrders{},
		events:    &captureEmitter{},
		comp:      &fakeCompensator{},
		miniredis: mr,
	}
	f.svc = &checkout.Service{
		Cart:        f.pricer,
		Addresses:   f.resolver,
		Gateway:     f.gateway,
		Orders:      f.orders,
		Attempts:    f.store,
		Locker:      lock.Locker{R: client},
		LockTTL:     time.Minute,
		Compensator: f.comp,
		Events:      f.events,
		Currency:    "USD",
		Now:         func() time.Time { return fixedNow },
	}
	return f
}

func bulkLine(qty int) pricing.LineItem {
	upper := 99
	return pricing.LineItem{
		ID:        "line-1",
		ProductID: "tee-classic",
		Quantity:  qty,
		BaseTiers: []pricing.Tier{
			{QuantityMin: 1, QuantityMax: &upper, UnitPrice: pricing.MustParse("10")},
			{QuantityMin: 100, UnitPrice: pricing.MustParse("8")},
		},
	}
}

func captured(txID string) payment.Response {
	return payment.Response{TransactionID: txID, Status: payment.StatusCapture, HTTPStatus: 200}
}

func validInput() checkout.Input {
	return checkout.Input{
		BillingAddressID:  "addr-billing",
		ShippingAddressID: "addr-shipping",
		Notes:             "leave at reception",
		Payment: payment.Card{
			Number:   "4111 1111 1111 1111",
			ExpMonth: 12,
			ExpYear:  2030,
			CVV:      "123",
		},
	}
}

var errBackend = &upstream.StatusError{Target: "orders", Method: "POST", Path: "/api/orders", Status: 500, Message: "database unavailable"}

var errTransport = errors.Join(upstream.ErrUnavailable, errors.New("dial tcp: connection refused"))

var errBreakerOpen = errors.Join(upstream.ErrUnavailable, upstream.ErrNotSent, errors.New("resilience: circuit breaker open"))
