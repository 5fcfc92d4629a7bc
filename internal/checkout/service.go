package checkout

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/noah-isme/promo-storefront/internal/cart"
	"github.com/noah-isme/promo-storefront/internal/common"
	"github.com/noah-isme/promo-storefront/internal/events"
	"github.com/noah-isme/promo-storefront/internal/lock"
	"github.com/noah-isme/promo-storefront/internal/obs"
	"github.com/noah-isme/promo-storefront/internal/order"
	"github.com/noah-isme/promo-storefront/internal/payment"
	"github.com/noah-isme/promo-storefront/internal/pricing"
	"github.com/noah-isme/promo-storefront/internal/upstream"
	"github.com/noah-isme/promo-storefront/internal/user"
)

const defaultLockTTL = 2 * time.Minute

// Pricer loads and prices the caller's cart.
type Pricer interface {
	Priced(ctx context.Context, g pricing.Granularity) (cart.PricedCart, error)
}

// AddressResolver turns the submitted address ids into a distinct billing and
// shipping pair.
type AddressResolver interface {
	Reconcile(ctx context.Context, billingID, shippingID string, sync bool) (user.Resolution, error)
}

// Locker serialises checkouts of one user.
type Locker interface {
	TryWithLock(ctx context.Context, key string, ttl time.Duration, fn func(context.Context) error) error
}

// Compensator schedules the void of an orphaned charge.
type Compensator interface {
	EnqueueVoid(ctx context.Context, a Attempt) error
}

// Emitter publishes domain events.
type Emitter interface {
	Emit(ctx context.Context, topic string, aggregateID uuid.UUID, payload any) (events.Event, error)
}

// Input is the checkout request body.
type Input struct {
	BillingAddressID  string       `json:"billing_address_id" validate:"required"`
	ShippingAddressID string       `json:"shipping_address_id"`
	SyncShipping      bool         `json:"sync_shipping"`
	Notes             string       `json:"notes,omitempty" validate:"max=1000"`
	Payment           payment.Card `json:"payment" validate:"-"`
}

// Result is the outcome of a successful checkout.
type Result struct {
	Attempt  Attempt
	Order    order.Order
	Replayed bool
}

// Service runs the two-phase checkout: capture the payment, then create the
// order for the captured transaction. Every attempt is recorded in the ledger
// under the caller's idempotency key.
type Service struct {
	Cart        Pricer
	Addresses   AddressResolver
	Gateway     payment.Gateway
	Orders      order.Creator
	Attempts    AttemptStore
	Locker      Locker
	LockTTL     time.Duration
	Compensator Compensator
	Events      Emitter
	Logger      zerolog.Logger
	Currency    string
	Now         func() time.Time
}

// LockKey is the Redis key guarding checkouts of userID.
func LockKey(userID string) string {
	return "checkout:lock:" + userID
}

// Fingerprint identifies the request behind an idempotency key. Card data is
// left out so it never reaches the ledger.
func Fingerprint(userID string, in Input) string {
	payload, _ := json.Marshal(struct {
		UserID   string `json:"u"`
		Billing  string `json:"b"`
		Shipping string `json:"s"`
		Sync     bool   `json:"y"`
		Notes    string `json:"n"`
	}{
		UserID:   userID,
		Billing:  strings.TrimSpace(in.BillingAddressID),
		Shipping: strings.TrimSpace(in.ShippingAddressID),
		Sync:     in.SyncShipping,
		Notes:    strings.TrimSpace(in.Notes),
	})
	return common.Sha256Hex(string(payload))
}

// Validate checks the request without touching any collaborator.
func (s *Service) Validate(in Input) error {
	var fields []common.FieldError
	for _, err := range []error{common.ValidateStruct(in), in.Payment.Validate(s.now())} {
		if err == nil {
			continue
		}
		var appErr *common.AppError
		if !errors.As(err, &appErr) {
			return err
		}
		if f, ok := appErr.Details.([]common.FieldError); ok {
			fields = append(fields, f...)
		}
	}
	if len(fields) > 0 {
		return common.Validation("invalid request payload", fields)
	}
	if !in.SyncShipping {
		// Without sync the pair is only compared, which needs no address book.
		if _, err := (user.Reconciler{}).Reconcile(context.Background(), in.BillingAddressID, in.ShippingAddressID, false); err != nil {
			return err
		}
	}
	return nil
}

// Quote prices the cart the way checkout charges it, with shipping per line.
func (s *Service) Quote(ctx context.Context) (pricing.Totals, error) {
	if s.Cart == nil {
		return pricing.Totals{}, errors.New("checkout: cart not configured")
	}
	priced, err := s.Cart.Priced(ctx, pricing.PerLine)
	if err != nil {
		return pricing.Totals{}, err
	}
	return priced.Totals, nil
}

// FindAttempt returns the caller's attempt with the given id.
func (s *Service) FindAttempt(ctx context.Context, userID string, id uuid.UUID) (Attempt, error) {
	a, err := s.Attempts.Get(ctx, id)
	if err != nil {
		return Attempt{}, err
	}
	if a.UserID != userID {
		return Attempt{}, ErrAttemptNotFound
	}
	return a, nil
}

// Checkout places an order for the caller's cart. Input problems are
// reported before any network call. Once the attempt is recorded, the phase
// calls run detached from ctx cancellation so an abandoned request cannot
// leave a charge half done.
func (s *Service) Checkout(ctx context.Context, userID, key string, in Input) (Result, error) {
	userID = strings.TrimSpace(userID)
	key = strings.TrimSpace(key)
	if userID == "" {
		return Result{}, common.NewAppError("UNAUTHORIZED", "missing or invalid token", http.StatusUnauthorized, nil)
	}
	if key == "" {
		return Result{}, common.Validation(common.IdempotencyHeader+" header is required", nil)
	}
	if err := s.Validate(in); err != nil {
		obs.RecordCheckout(ctx, "invalid")
		return Result{}, err
	}

	ctx, span := otel.Tracer("checkout.Service").Start(ctx, "Checkout")
	defer span.End()
	span.SetAttributes(attribute.String("checkout.user_id", userID))

	var res Result
	err := s.Locker.TryWithLock(ctx, LockKey(userID), s.lockTTL(), func(ctx context.Context) error {
		var runErr error
		res, runErr = s.run(ctx, userID, key, in)
		return runErr
	})
	if errors.Is(err, lock.ErrLocked) {
		obs.RecordCheckout(ctx, "in_progress")
		return Result{}, inProgress()
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "checkout failed")
		return Result{}, err
	}
	span.SetAttributes(attribute.String("checkout.attempt_id", res.Attempt.ID.String()))
	return res, nil
}

func (s *Service) run(ctx context.Context, userID, key string, in Input) (Result, error) {
	fingerprint := Fingerprint(userID, in)
	existing, err := s.Attempts.FindByKey(ctx, userID, key)
	restart := false
	switch {
	case err == nil && existing.Status == StatusAborted && existing.Fingerprint == fingerprint:
		restart = true
	case err == nil:
		return s.replay(ctx, existing, fingerprint)
	case !errors.Is(err, ErrAttemptNotFound):
		return Result{}, err
	}

	priced, err := s.Cart.Priced(ctx, pricing.PerLine)
	if err != nil {
		return Result{}, err
	}
	if len(priced.Totals.Lines) == 0 {
		obs.RecordCheckout(ctx, "invalid")
		return Result{}, emptyCart()
	}
	if ids := priced.Totals.InvalidLines(); len(ids) > 0 {
		obs.RecordCheckout(ctx, "invalid")
		return Result{}, invalidLines(ids)
	}
	if priced.Totals.QuoteOnly() {
		obs.RecordCheckout(ctx, "quote_only")
		return Result{}, quoteOnly()
	}
	if !pricing.Round(priced.Totals.GrandTotal).IsPositive() {
		obs.RecordCheckout(ctx, "invalid")
		return Result{}, nothingToCharge()
	}

	addrs, err := s.Addresses.Reconcile(ctx, in.BillingAddressID, in.ShippingAddressID, in.SyncShipping)
	if err != nil {
		return Result{}, err
	}

	pending := Attempt{
		ID:                uuid.New(),
		UserID:            userID,
		IdempotencyKey:    key,
		Fingerprint:       fingerprint,
		Status:            StatusPending,
		AmountTotal:       pricing.Round(priced.Totals.GrandTotal),
		ShippingFee:       pricing.Round(priced.Totals.ShippingFee),
		Currency:          s.Currency,
		BillingAddressID:  addrs.BillingID,
		ShippingAddressID: addrs.ShippingID,
	}
	var attempt Attempt
	if restart {
		pending.ID = existing.ID
		attempt, err = s.Attempts.Restart(ctx, pending)
	} else {
		attempt, err = s.Attempts.Create(ctx, pending)
	}
	if errors.Is(err, ErrDuplicateKey) || errors.Is(err, ErrInvalidTransition) {
		return Result{}, inProgress()
	}
	if err != nil {
		return Result{}, err
	}

	ctx = context.WithoutCancel(ctx)
	log := s.Logger.With().
		Str("attempt_id", attempt.ID.String()).
		Str("idempotency_key", key).
		Str("user_id", userID).
		Logger()
	log.Info().Str("amount_total", pricing.Format(attempt.AmountTotal)).Bool("restarted", restart).Msg("checkout_attempt_created")

	attempt, err = s.charge(ctx, &log, attempt, in.Payment)
	if err != nil {
		return Result{}, err
	}
	return s.createOrder(ctx, &log, attempt, in, priced.Totals)
}

func (s *Service) replay(ctx context.Context, a Attempt, fingerprint string) (Result, error) {
	if a.Fingerprint != fingerprint {
		obs.RecordCheckout(ctx, "key_reused")
		return Result{}, keyReused()
	}
	switch a.Status {
	case StatusCompleted:
		var o order.Order
		if len(a.Order) > 0 {
			if err := json.Unmarshal(a.Order, &o); err != nil {
				return Result{}, err
			}
		}
		obs.RecordCheckout(ctx, "replayed")
		return Result{Attempt: a, Order: o, Replayed: true}, nil
	case StatusDeclined:
		return Result{}, declined(a.DeclineMessage, a.ID.String())
	default:
		return Result{}, unresolved(a)
	}
}

// charge is phase one. The charge request is sent exactly once.
func (s *Service) charge(ctx context.Context, log *zerolog.Logger, a Attempt, card payment.Card) (Attempt, error) {
	ctx, span := otel.Tracer("checkout.Service").Start(ctx, "Checkout.Charge")
	defer span.End()
	start := s.now()

	resp, err := s.Gateway.Charge(ctx, payment.NewCharge(card, a.AmountTotal, a.ShippingFee))
	if errors.Is(err, upstream.ErrNotSent) {
		span.RecordError(err)
		span.SetStatus(codes.Error, "charge not sent")
		obs.ObservePhase("charge", "not_sent", s.since(start))
		msg := err.Error()
		a = s.transition(ctx, log, a, StatusAborted, Update{LastError: &msg})
		log.Warn().Err(err).Msg("checkout_charge_not_sent")
		obs.RecordCheckout(ctx, "aborted")
		return a, chargeNotSent(a, err)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "charge outcome unknown")
		obs.ObservePhase("charge", "unknown", s.since(start))
		msg := err.Error()
		a = s.transition(ctx, log, a, StatusChargeUnknown, Update{LastError: &msg})
		s.emit(ctx, log, events.TopicCheckoutChargeUnknown, a, nil)
		log.Error().Err(err).Msg("checkout_charge_unknown")
		obs.RecordCheckout(ctx, "charge_unknown")
		return a, chargeUnknown(a, err)
	}
	if !resp.Succeeded() {
		msg := resp.DeclineMessage()
		span.SetStatus(codes.Error, "declined")
		obs.ObservePhase("charge", "declined", s.since(start))
		a = s.transition(ctx, log, a, StatusDeclined, Update{DeclineMessage: &msg})
		s.emit(ctx, log, events.TopicPaymentDeclined, a, map[string]any{"message": msg})
		log.Warn().Int("gateway_status", resp.HTTPStatus).Str("status", resp.Status).Msg("checkout_payment_declined")
		obs.RecordCheckout(ctx, "declined")
		return a, declined(msg, a.ID.String())
	}

	obs.ObservePhase("charge", "captured", s.since(start))
	span.SetAttributes(attribute.String("payment.transaction_id", resp.TransactionID))
	txID := resp.TransactionID
	a = s.transition(ctx, log, a, StatusCharged, Update{TransactionID: &txID})
	a.TransactionID = txID
	s.emit(ctx, log, events.TopicPaymentCaptured, a, map[string]any{"status": resp.Status})
	log.Info().Str("transaction_id", txID).Str("status", resp.Status).Msg("checkout_payment_captured")
	return a, nil
}

// createOrder is phase two. It only runs for a captured transaction.
func (s *Service) createOrder(ctx context.Context, log *zerolog.Logger, a Attempt, in Input, totals pricing.Totals) (Result, error) {
	ctx, span := otel.Tracer("checkout.Service").Start(ctx, "Checkout.CreateOrder")
	defer span.End()
	start := s.now()

	o, err := s.Orders.Create(ctx, order.CreateRequest{
		BillingAddressID:  a.BillingAddressID,
		ShippingAddressID: a.ShippingAddressID,
		Notes:             strings.TrimSpace(in.Notes),
		PaymentStatus:     order.PaymentStatusPaid,
		TransactionID:     a.TransactionID,
		AmountTotal:       pricing.Format(a.AmountTotal),
		ShippingFee:       pricing.Format(a.ShippingFee),
		Items:             orderLines(totals),
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "order creation failed")
		obs.ObservePhase("create_order", "failed", s.since(start))
		msg := err.Error()
		a = s.transition(ctx, log, a, StatusOrphaned, Update{LastError: &msg})
		s.emit(ctx, log, events.TopicCheckoutChargeOrphan, a, map[string]any{"error": msg})
		log.Error().Err(err).Str("transaction_id", a.TransactionID).Msg("checkout_charge_orphaned")
		if s.Compensator != nil {
			if cerr := s.Compensator.EnqueueVoid(ctx, a); cerr != nil {
				log.Error().Err(cerr).Str("transaction_id", a.TransactionID).Msg("checkout_void_enqueue_failed")
			}
		}
		obs.RecordCheckout(ctx, "orphaned")
		return Result{}, orderCreationFailed(a, err)
	}

	obs.ObservePhase("create_order", "created", s.since(start))
	snapshot, _ := json.Marshal(o)
	orderID := o.ID
	a = s.transition(ctx, log, a, StatusCompleted, Update{OrderID: &orderID, Order: snapshot})
	a.OrderID = orderID
	created := map[string]any{"order_number": o.Number}
	if o.CustomerEmail != "" {
		created["email"] = o.CustomerEmail
	}
	s.emit(ctx, log, events.TopicOrderCreated, a, created)
	log.Info().Str("transaction_id", a.TransactionID).Str("order_id", orderID).Msg("checkout_completed")
	obs.RecordCheckout(ctx, "completed")
	return Result{Attempt: a, Order: o}, nil
}

// transition records a state change. A failed write is logged and the
// in-memory attempt still moves on: the phase outcome has already happened
// and must be reported to the caller.
func (s *Service) transition(ctx context.Context, log *zerolog.Logger, a Attempt, to Status, upd Update) Attempt {
	updated, err := s.Attempts.Transition(ctx, a.ID, to, upd)
	if err != nil {
		log.Error().Err(err).Str("status", string(to)).Msg("checkout_attempt_transition_failed")
		upd.apply(&a)
		a.Status = to
		return a
	}
	return updated
}

func (s *Service) emit(ctx context.Context, log *zerolog.Logger, topic string, a Attempt, extra map[string]any) {
	if s.Events == nil {
		return
	}
	payload := map[string]any{
		"attempt_id":     a.ID.String(),
		"user_id":        a.UserID,
		"amount_total":   pricing.Format(a.AmountTotal),
		"currency":       a.Currency,
		"transaction_id": a.TransactionID,
		"order_id":       a.OrderID,
	}
	for k, v := range extra {
		payload[k] = v
	}
	if _, err := s.Events.Emit(ctx, topic, a.ID, payload); err != nil {
		log.Warn().Err(err).Str("topic", topic).Msg("checkout_event_emit_failed")
	}
}

func orderLines(t pricing.Totals) []order.Line {
	lines := make([]order.Line, 0, len(t.Lines))
	for _, l := range t.Lines {
		lines = append(lines, order.Line{
			ProductID:              l.ProductID,
			PartID:                 l.PartID,
			Quantity:               l.Quantity,
			UnitPrice:              pricing.Format(l.UnitPrice),
			CustomizationUnitTotal: pricing.Format(l.CustomizationUnitTotal),
			LineSubtotal:           pricing.Format(l.LineSubtotal),
		})
	}
	return lines
}

func (s *Service) lockTTL() time.Duration {
	if s.LockTTL > 0 {
		return s.LockTTL
	}
	return defaultLockTTL
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *Service) since(start time.Time) float64 {
	return float64(s.now().Sub(start).Microseconds()) / 1000
}
