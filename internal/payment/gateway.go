package payment

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/noah-isme/promo-storefront/internal/pricing"
	"github.com/noah-isme/promo-storefront/internal/upstream"
)

// Gateway statuses and actions.
const (
	StatusCapture = "CAPTURE"
	StatusHold    = "HOLD"

	ActionCharge = "CHARGE"
	ActionRefund = "REFUND"
)

// AppKeyHeader carries the gateway application key.
const AppKeyHeader = "X-App-Key"

// ChargeRequest is the gateway transaction payload.
type ChargeRequest struct {
	CardNumber     string `json:"cardNumber,omitempty"`
	CardExpMonth   string `json:"cardExpMonth,omitempty"`
	CardExpYear    string `json:"cardExpYear,omitempty"`
	CVV            string `json:"cvv,omitempty"`
	AmountBase     string `json:"amountBase"`
	AmountShipping string `json:"amountShipping,omitempty"`
	AmountTax      string `json:"amountTax,omitempty"`
	Status         string `json:"status,omitempty"`
	Action         string `json:"action,omitempty"`
	TransactionID  string `json:"transactionId,omitempty"`
}

// NewCharge builds a capturing charge. amountBase is the full grand total and
// already includes shipping; amountShipping reports that share of it. Tax is
// always zero.
func NewCharge(card Card, amount, shipping pricing.Money) ChargeRequest {
	return ChargeRequest{
		CardNumber:     Digits(card.Number),
		CardExpMonth:   monthString(card.ExpMonth),
		CardExpYear:    strconv.Itoa(card.ExpYear),
		CVV:            strings.TrimSpace(card.CVV),
		AmountBase:     pricing.Format(pricing.Round(amount)),
		AmountShipping: pricing.Format(pricing.Round(shipping)),
		AmountTax:      "0.00",
		Status:         StatusCapture,
		Action:         ActionCharge,
	}
}

// NewRefund builds a refund of a captured transaction.
func NewRefund(transactionID string, amount pricing.Money) ChargeRequest {
	return ChargeRequest{
		AmountBase:    pricing.Format(pricing.Round(amount)),
		Action:        ActionRefund,
		TransactionID: transactionID,
	}
}

// Response is the gateway reply.
type Response struct {
	TransactionID string          `json:"transactionId"`
	Status        string          `json:"status"`
	Message       string          `json:"message,omitempty"`
	Errors        json.RawMessage `json:"errors,omitempty"`
	HTTPStatus    int             `json:"-"`
}

// Succeeded reports whether a charge was accepted: a 2xx reply carrying a
// transaction id and a CAPTURE or HOLD status.
func (r Response) Succeeded() bool {
	if r.HTTPStatus < 200 || r.HTTPStatus >= 300 {
		return false
	}
	if strings.TrimSpace(r.TransactionID) == "" {
		return false
	}
	switch strings.ToUpper(strings.TrimSpace(r.Status)) {
	case StatusCapture, StatusHold:
		return true
	default:
		return false
	}
}

// Refunded reports whether a refund was accepted.
func (r Response) Refunded() bool {
	if r.HTTPStatus < 200 || r.HTTPStatus >= 300 {
		return false
	}
	errs := strings.TrimSpace(string(r.Errors))
	return errs == "" || errs == "null" || errs == "[]" || errs == "{}"
}

// DeclineMessage is the gateway's own explanation, shown verbatim to the buyer.
func (r Response) DeclineMessage() string {
	if msg := strings.TrimSpace(r.Message); msg != "" {
		return msg
	}
	if len(r.Errors) > 0 {
		if msg := upstream.MessageFrom([]byte(`{"errors":` + string(r.Errors) + `}`)); msg != "" {
			return msg
		}
	}
	if r.Status != "" {
		return "payment " + strings.ToLower(r.Status)
	}
	return "payment declined"
}

// Gateway is the card-payment collaborator.
type Gateway interface {
	Charge(ctx context.Context, req ChargeRequest) (Response, error)
	Refund(ctx context.Context, req ChargeRequest) (Response, error)
}

// HTTPGateway calls the gateway over HTTP Basic Auth plus an application key.
type HTTPGateway struct {
	API *upstream.Client
}

// GatewayConfig holds gateway credentials.
type GatewayConfig struct {
	Username string
	Password string
	AppKey   string
}

// Authenticate returns a request decorator adding the gateway credentials.
func (c GatewayConfig) Authenticate() func(*http.Request) {
	return func(req *http.Request) {
		req.SetBasicAuth(c.Username, c.Password)
		if c.AppKey != "" {
			req.Header.Set(AppKeyHeader, c.AppKey)
		}
	}
}

const transactionsPath = "/transactions"

// Charge submits a charge. Any HTTP reply yields a Response and a nil error;
// only transport failures, where the outcome is unknown, return an error
// wrapping upstream.ErrUnavailable.
func (g HTTPGateway) Charge(ctx context.Context, req ChargeRequest) (Response, error) {
	if req.Action == "" {
		req.Action = ActionCharge
	}
	return g.send(ctx, "Gateway.Charge", req)
}

// Refund submits a refund for req.TransactionID.
func (g HTTPGateway) Refund(ctx context.Context, req ChargeRequest) (Response, error) {
	if strings.TrimSpace(req.TransactionID) == "" {
		return Response{}, errors.New("payment: refund requires a transaction id")
	}
	req.Action = ActionRefund
	return g.send(ctx, "Gateway.Refund", req)
}

func (g HTTPGateway) send(ctx context.Context, op string, req ChargeRequest) (Response, error) {
	ctx, span := otel.Tracer("payment.Gateway").Start(ctx, op)
	defer span.End()
	span.SetAttributes(
		attribute.String("payment.action", req.Action),
		attribute.String("payment.amount", req.AmountBase),
	)

	raw, err := g.API.Send(ctx, http.MethodPost, transactionsPath, nil, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "gateway unreachable")
		return Response{}, err
	}
	resp := Response{HTTPStatus: raw.Status}
	if len(raw.Body) > 0 {
		if decodeErr := json.Unmarshal(upstream.Unwrap(raw.Body, "data"), &resp); decodeErr != nil {
			resp.Message = upstream.MessageFrom(raw.Body)
		}
		resp.HTTPStatus = raw.Status
	}
	span.SetAttributes(
		attribute.Int("http.status_code", raw.Status),
		attribute.String("payment.status", resp.Status),
		attribute.String("payment.transaction_id", resp.TransactionID),
	)
	return resp, nil
}
