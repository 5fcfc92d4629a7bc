package checkout

import (
	"errors"
	"net/http"

	"github.com/noah-isme/promo-storefront/internal/common"
)

var (
	// ErrPaymentDeclined is returned when the gateway did not capture the charge.
	ErrPaymentDeclined = errors.New("checkout: payment declined")
	// ErrOrderCreationFailed is returned when the order service rejected an
	// order after the charge was captured.
	ErrOrderCreationFailed = errors.New("checkout: order creation failed after charge")
	// ErrChargeUnknown is returned when the charge call failed in transport and
	// its outcome cannot be known.
	ErrChargeUnknown = errors.New("checkout: payment outcome unknown")
	// ErrInProgress is returned while another checkout of the same user holds the lock.
	ErrInProgress = errors.New("checkout: another checkout is in progress")
	// ErrQuoteOnly is returned when a cart line has no resolvable price.
	ErrQuoteOnly = errors.New("checkout: cart contains items that require a quote")
	// ErrEmptyCart is returned for carts without lines.
	ErrEmptyCart = errors.New("checkout: cart is empty")
	// ErrInvalidCart is returned when a line cannot be priced or the cart totals to nothing.
	ErrInvalidCart = errors.New("checkout: cart cannot be charged")
	// ErrChargeNotSent is returned when the charge request never left the
	// service, for example because the gateway breaker is open.
	ErrChargeNotSent = errors.New("checkout: payment gateway unavailable, no charge was made")
	// ErrKeyReused is returned when an idempotency key is replayed with different input.
	ErrKeyReused = errors.New("checkout: idempotency key reused with different input")
	// ErrUnresolved is returned when a key is replayed while its attempt awaits reconciliation.
	ErrUnresolved = errors.New("checkout: attempt is not resolved")
)

func declined(message string, attemptID string) error {
	if message == "" {
		message = "payment was declined"
	}
	return common.NewAppError("PAYMENT_DECLINED", message, http.StatusPaymentRequired, ErrPaymentDeclined).
		WithDetails(map[string]any{"attempt_id": attemptID})
}

func orderCreationFailed(a Attempt, cause error) error {
	return common.NewAppError(
		"ORDER_CREATION_FAILED",
		"payment was captured but the order could not be created; the charge will be voided",
		http.StatusBadGateway,
		errors.Join(ErrOrderCreationFailed, cause),
	).WithDetails(map[string]any{
		"attempt_id":     a.ID.String(),
		"transaction_id": a.TransactionID,
	})
}

func chargeUnknown(a Attempt, cause error) error {
	return common.NewAppError(
		"UPSTREAM_UNAVAILABLE",
		"payment outcome is unknown; do not retry, contact support with the attempt id",
		http.StatusServiceUnavailable,
		errors.Join(ErrChargeUnknown, cause),
	).WithDetails(map[string]any{"attempt_id": a.ID.String()})
}

func inProgress() error {
	return common.NewAppError("CHECKOUT_IN_PROGRESS", "a checkout is already in progress", http.StatusConflict, ErrInProgress)
}

func quoteOnly() error {
	return common.NewAppError("QUOTE_ONLY", "cart contains items that require a custom quote", http.StatusUnprocessableEntity, ErrQuoteOnly)
}

func emptyCart() error {
	return &common.AppError{Code: "VALIDATION_ERROR", Message: "cart is empty", HTTPStatus: http.StatusBadRequest, Err: ErrEmptyCart}
}

func invalidLines(ids []string) error {
	return (&common.AppError{Code: "VALIDATION_ERROR", Message: "cart contains lines with an invalid quantity", HTTPStatus: http.StatusBadRequest, Err: ErrInvalidCart}).
		WithDetails(map[string]any{"line_ids": ids})
}

func nothingToCharge() error {
	return &common.AppError{Code: "VALIDATION_ERROR", Message: "cart total must be greater than zero", HTTPStatus: http.StatusBadRequest, Err: ErrInvalidCart}
}

func chargeNotSent(a Attempt, cause error) error {
	return common.NewAppError(
		"UPSTREAM_UNAVAILABLE",
		"payment service is unavailable and no charge was made; retry shortly",
		http.StatusServiceUnavailable,
		errors.Join(ErrChargeNotSent, cause),
	).WithDetails(map[string]any{"attempt_id": a.ID.String(), "retryable": true})
}

func keyReused() error {
	return common.NewAppError("IDEMPOTENCY_KEY_REUSED", "idempotency key was used with a different request", http.StatusUnprocessableEntity, ErrKeyReused)
}

func unresolved(a Attempt) error {
	return common.NewAppError("CHECKOUT_UNRESOLVED", "a previous attempt with this key is awaiting reconciliation", http.StatusConflict, ErrUnresolved).
		WithDetails(map[string]any{"attempt_id": a.ID.String(), "status": a.Status})
}
