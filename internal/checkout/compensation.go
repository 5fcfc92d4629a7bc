package checkout

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/noah-isme/promo-storefront/internal/events"
	"github.com/noah-isme/promo-storefront/internal/obs"
	"github.com/noah-isme/promo-storefront/internal/payment"
	"github.com/noah-isme/promo-storefront/internal/pricing"
)

// TypeVoidCharge is the asynq task type refunding an orphaned charge.
const TypeVoidCharge = "checkout:void_charge"

// TypeSweepOrphans is the periodic asynq task re-enqueueing voids for orphaned attempts.
const TypeSweepOrphans = "checkout:sweep_orphans"

// QueueCompensation is the asynq queue voids are scheduled on.
const QueueCompensation = "critical"

const defaultCompensationRetry = 10

// VoidPayload is the body of a TypeVoidCharge task.
type VoidPayload struct {
	AttemptID string `json:"attempt_id"`
}

// Enqueuer is the part of *asynq.Client used to schedule tasks.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// AsynqCompensator schedules voids on the asynq queue. The task id is the
// attempt id, so an attempt is never queued twice.
type AsynqCompensator struct {
	Client   Enqueuer
	MaxRetry int
	Queue    string
}

// EnqueueVoid implements Compensator.
func (c AsynqCompensator) EnqueueVoid(ctx context.Context, a Attempt) error {
	if c.Client == nil {
		return errors.New("checkout: task client not configured")
	}
	payload, err := json.Marshal(VoidPayload{AttemptID: a.ID.String()})
	if err != nil {
		return err
	}
	maxRetry := c.MaxRetry
	if maxRetry <= 0 {
		maxRetry = defaultCompensationRetry
	}
	opts := []asynq.Option{asynq.TaskID(a.ID.String()), asynq.MaxRetry(maxRetry)}
	if c.Queue != "" {
		opts = append(opts, asynq.Queue(c.Queue))
	}
	_, err = c.Client.EnqueueContext(ctx, asynq.NewTask(TypeVoidCharge, payload), opts...)
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		return nil
	}
	return err
}

// VoidHandler refunds the transaction of an orphaned attempt. Returning an
// error makes asynq retry with backoff until MaxRetry is exhausted.
type VoidHandler struct {
	Attempts AttemptStore
	Gateway  payment.Gateway
	Events   Emitter
	Logger   zerolog.Logger
}

// ProcessTask implements asynq.Handler.
func (h VoidHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var p VoidPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return fmt.Errorf("decode void payload: %v: %w", err, asynq.SkipRetry)
	}
	id, err := uuid.Parse(p.AttemptID)
	if err != nil {
		return fmt.Errorf("invalid attempt id %q: %w", p.AttemptID, asynq.SkipRetry)
	}
	log := h.Logger.With().Str("attempt_id", id.String()).Logger()

	a, err := h.Attempts.Get(ctx, id)
	if errors.Is(err, ErrAttemptNotFound) {
		return fmt.Errorf("attempt %s: %w", id, asynq.SkipRetry)
	}
	if err != nil {
		return err
	}
	switch a.Status {
	case StatusVoided:
		return nil
	case StatusOrphaned:
	default:
		log.Warn().Str("status", string(a.Status)).Msg("checkout_void_skipped")
		return fmt.Errorf("attempt %s is %s: %w", id, a.Status, asynq.SkipRetry)
	}

	resp, err := h.Gateway.Refund(ctx, payment.NewRefund(a.TransactionID, a.AmountTotal))
	if err != nil {
		obs.RecordCompensation("retry")
		log.Warn().Err(err).Str("transaction_id", a.TransactionID).Msg("checkout_void_failed")
		return err
	}
	if !resp.Refunded() {
		obs.RecordCompensation("rejected")
		msg := resp.DeclineMessage()
		log.Error().Str("transaction_id", a.TransactionID).Str("message", msg).Msg("checkout_void_rejected")
		return fmt.Errorf("refund of %s rejected: %s", a.TransactionID, msg)
	}

	// The refund went through; a failed ledger write is only logged.
	if _, err := h.Attempts.Transition(ctx, a.ID, StatusVoided, Update{}); err != nil {
		log.Error().Err(err).Str("transaction_id", a.TransactionID).Msg("checkout_void_record_failed")
	}
	if h.Events != nil {
		payload := map[string]any{
			"attempt_id":     a.ID.String(),
			"user_id":        a.UserID,
			"transaction_id": a.TransactionID,
			"amount_total":   pricing.Format(a.AmountTotal),
			"currency":       a.Currency,
		}
		if _, err := h.Events.Emit(ctx, events.TopicCheckoutChargeVoided, a.ID, payload); err != nil {
			log.Warn().Err(err).Msg("checkout_event_emit_failed")
		}
	}
	obs.RecordCompensation("voided")
	log.Info().Str("transaction_id", a.TransactionID).Msg("checkout_charge_voided")
	return nil
}

// Sweeper re-enqueues voids for attempts left orphaned, covering enqueue
// failures at checkout time. Attempts younger than MinAge are skipped because
// their void was just scheduled.
type Sweeper struct {
	Attempts    AttemptStore
	Compensator Compensator
	MinAge      time.Duration
	Batch       int
	Logger      zerolog.Logger
	Now         func() time.Time
}

// Sweep enqueues a void for every stale orphaned attempt and returns how many
// were enqueued. A failed enqueue is logged and left for the next sweep.
func (s Sweeper) Sweep(ctx context.Context) (int, error) {
	now := time.Now
	if s.Now != nil {
		now = s.Now
	}
	minAge := s.MinAge
	if minAge <= 0 {
		minAge = time.Minute
	}
	orphans, err := s.Attempts.ListOrphaned(ctx, now().Add(-minAge), s.Batch)
	if err != nil {
		return 0, err
	}
	enqueued := 0
	for _, a := range orphans {
		if err := s.Compensator.EnqueueVoid(ctx, a); err != nil {
			s.Logger.Error().Err(err).Str("attempt_id", a.ID.String()).Str("transaction_id", a.TransactionID).Msg("checkout_void_enqueue_failed")
			continue
		}
		enqueued++
	}
	if len(orphans) > 0 {
		s.Logger.Info().Int("orphaned", len(orphans)).Int("enqueued", enqueued).Msg("checkout_orphans_swept")
	}
	return enqueued, nil
}

// ProcessTask implements asynq.Handler for TypeSweepOrphans.
func (s Sweeper) ProcessTask(ctx context.Context, _ *asynq.Task) error {
	_, err := s.Sweep(ctx)
	return err
}
