package checkout

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// ErrStoreUnavailable indicates the database pool is not configured.
var ErrStoreUnavailable = errors.New("checkout: attempt store unavailable")

const uniqueViolation = "23505"

const attemptColumns = `id, user_id, idempotency_key, fingerprint, status,
amount_total::text, shipping_fee::text, currency,
billing_address_id, shipping_address_id,
COALESCE(transaction_id, ''), COALESCE(order_id, ''), order_snapshot,
COALESCE(decline_message, ''), COALESCE(last_error, ''), created_at, updated_at`

// NewStore constructs an AttemptStore over the checkout_attempts table.
func NewStore(pool *pgxpool.Pool) AttemptStore {
	return &pgStore{pool: pool}
}

type pgStore struct {
	pool *pgxpool.Pool
}

func (s *pgStore) Create(ctx context.Context, a Attempt) (Attempt, error) {
	if s == nil || s.pool == nil {
		return Attempt{}, ErrStoreUnavailable
	}
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	if a.Status == "" {
		a.Status = StatusPending
	}
	row := s.pool.QueryRow(ctx, `INSERT INTO checkout_attempts
(id, user_id, idempotency_key, fingerprint, status, amount_total, shipping_fee, currency, billing_address_id, shipping_address_id)
VALUES ($1, $2, $3, $4, $5, $6::numeric, $7::numeric, $8, $9, $10)
RETURNING `+attemptColumns,
		a.ID, a.UserID, a.IdempotencyKey, a.Fingerprint, string(a.Status),
		a.AmountTotal.String(), a.ShippingFee.String(), a.Currency,
		a.BillingAddressID, a.ShippingAddressID,
	)
	created, err := scanAttempt(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return Attempt{}, ErrDuplicateKey
		}
		return Attempt{}, err
	}
	return created, nil
}

func (s *pgStore) Get(ctx context.Context, id uuid.UUID) (Attempt, error) {
	if s == nil || s.pool == nil {
		return Attempt{}, ErrStoreUnavailable
	}
	row := s.pool.QueryRow(ctx, `SELECT `+attemptColumns+` FROM checkout_attempts WHERE id = $1`, id)
	return notFound(scanAttempt(row))
}

func (s *pgStore) FindByKey(ctx context.Context, userID, key string) (Attempt, error) {
	if s == nil || s.pool == nil {
		return Attempt{}, ErrStoreUnavailable
	}
	row := s.pool.QueryRow(ctx, `SELECT `+attemptColumns+` FROM checkout_attempts
WHERE user_id = $1 AND idempotency_key = $2`, userID, key)
	return notFound(scanAttempt(row))
}

// Transition moves the attempt to the given status only when its current
// status is one the target may be entered from. The check and the write are a
// single statement.
func (s *pgStore) Transition(ctx context.Context, id uuid.UUID, to Status, upd Update) (Attempt, error) {
	if s == nil || s.pool == nil {
		return Attempt{}, ErrStoreUnavailable
	}
	from := AllowedFrom(to)
	if len(from) == 0 {
		return Attempt{}, ErrInvalidTransition
	}
	fromText := make([]string, 0, len(from))
	for _, st := range from {
		fromText = append(fromText, string(st))
	}
	var snapshot []byte
	if upd.Order != nil {
		snapshot = upd.Order
	}
	row := s.pool.QueryRow(ctx, `UPDATE checkout_attempts SET
status = $2,
transaction_id = COALESCE($3, transaction_id),
order_id = COALESCE($4, order_id),
order_snapshot = COALESCE($5::jsonb, order_snapshot),
decline_message = COALESCE($6, decline_message),
last_error = COALESCE($7, last_error),
updated_at = now()
WHERE id = $1 AND status = ANY($8::text[])
RETURNING `+attemptColumns,
		id, string(to), upd.TransactionID, upd.OrderID, snapshot, upd.DeclineMessage, upd.LastError, fromText,
	)
	updated, err := scanAttempt(row)
	if errors.Is(err, pgx.ErrNoRows) {
		if _, getErr := s.Get(ctx, id); getErr != nil {
			return Attempt{}, getErr
		}
		return Attempt{}, ErrInvalidTransition
	}
	return updated, err
}

func (s *pgStore) Restart(ctx context.Context, a Attempt) (Attempt, error) {
	if s == nil || s.pool == nil {
		return Attempt{}, ErrStoreUnavailable
	}
	row := s.pool.QueryRow(ctx, `UPDATE checkout_attempts SET
status = $2,
amount_total = $3::numeric,
shipping_fee = $4::numeric,
billing_address_id = $5,
shipping_address_id = $6,
last_error = NULL,
updated_at = now()
WHERE id = $1 AND status = $7
RETURNING `+attemptColumns,
		a.ID, string(StatusPending), a.AmountTotal.String(), a.ShippingFee.String(),
		a.BillingAddressID, a.ShippingAddressID, string(StatusAborted),
	)
	restarted, err := scanAttempt(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Attempt{}, ErrInvalidTransition
	}
	return restarted, err
}

func (s *pgStore) ListOrphaned(ctx context.Context, before time.Time, limit int) ([]Attempt, error) {
	if s == nil || s.pool == nil {
		return nil, ErrStoreUnavailable
	}
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx, `SELECT `+attemptColumns+` FROM checkout_attempts
WHERE status = $1 AND updated_at < $2
ORDER BY updated_at
LIMIT $3`, string(StatusOrphaned), before, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Attempt
	for rows.Next() {
		a, err := scanAttempt(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func scanAttempt(row pgx.Row) (Attempt, error) {
	var (
		a        Attempt
		status   string
		amount   string
		shipping string
		snapshot []byte
	)
	err := row.Scan(
		&a.ID, &a.UserID, &a.IdempotencyKey, &a.Fingerprint, &status,
		&amount, &shipping, &a.Currency,
		&a.BillingAddressID, &a.ShippingAddressID,
		&a.TransactionID, &a.OrderID, &snapshot,
		&a.DeclineMessage, &a.LastError, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return Attempt{}, err
	}
	a.Status = Status(status)
	if a.AmountTotal, err = decimal.NewFromString(amount); err != nil {
		return Attempt{}, err
	}
	if a.ShippingFee, err = decimal.NewFromString(shipping); err != nil {
		return Attempt{}, err
	}
	if len(snapshot) > 0 {
		a.Order = snapshot
	}
	return a, nil
}

func notFound(a Attempt, err error) (Attempt, error) {
	if errors.Is(err, pgx.ErrNoRows) {
		return Attempt{}, ErrAttemptNotFound
	}
	return a, err
}
