package order

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/noah-isme/promo-storefront/internal/common"
	"github.com/noah-isme/promo-storefront/internal/upstream"
)

// PaymentStatusPaid is the only payment status an order is ever created with.
const PaymentStatusPaid = "paid"

// ErrNotPaid guards order creation without a captured charge.
var ErrNotPaid = errors.New("order: orders are only created for captured payments")

// Line is an order line snapshot with display-rounded amounts.
type Line struct {
	ProductID              string `json:"product_id"`
	PartID                 string `json:"part_id,omitempty"`
	Quantity               int    `json:"quantity"`
	UnitPrice              string `json:"unit_price"`
	CustomizationUnitTotal string `json:"customization_unit_total"`
	LineSubtotal           string `json:"line_subtotal"`
}

// Order is the persisted order as returned by the order service.
type Order struct {
	ID                string     `json:"id"`
	Number            string     `json:"number,omitempty"`
	Status            string     `json:"status,omitempty"`
	PaymentStatus     string     `json:"payment_status"`
	TransactionID     string     `json:"transaction_id"`
	BillingAddressID  string     `json:"billing_address_id"`
	ShippingAddressID string     `json:"shipping_address_id"`
	AmountTotal       string     `json:"amount_total,omitempty"`
	ShippingFee       string     `json:"shipping_fee,omitempty"`
	Notes             string     `json:"notes,omitempty"`
	CustomerEmail     string     `json:"customer_email,omitempty"`
	Items             []Line     `json:"items,omitempty"`
	CreatedAt         *time.Time `json:"created_at,omitempty"`
}

// CreateRequest is the order service submission.
type CreateRequest struct {
	BillingAddressID  string `json:"billing_address_id"`
	ShippingAddressID string `json:"shipping_address_id"`
	Notes             string `json:"notes,omitempty"`
	PaymentStatus     string `json:"payment_status"`
	TransactionID     string `json:"transaction_id"`
	AmountTotal       string `json:"amount_total"`
	ShippingFee       string `json:"shipping_fee"`
	Items             []Line `json:"items"`
}

// Creator submits orders.
type Creator interface {
	Create(ctx context.Context, req CreateRequest) (Order, error)
}

// Client talks to the backend order service.
type Client struct {
	API *upstream.Client
}

const ordersPath = "/api/orders"

// Create submits an order for an already captured payment. It refuses to
// send anything that is not marked paid with a transaction id.
func (c Client) Create(ctx context.Context, req CreateRequest) (Order, error) {
	if req.PaymentStatus != PaymentStatusPaid || strings.TrimSpace(req.TransactionID) == "" {
		return Order{}, ErrNotPaid
	}
	var raw json.RawMessage
	if err := c.API.Post(ctx, ordersPath, req, &raw); err != nil {
		return Order{}, err
	}
	return decodeOrder(raw)
}

// List returns a page of the caller's orders.
func (c Client) List(ctx context.Context, page common.Pagination) ([]Order, common.Pagination, error) {
	var raw json.RawMessage
	if err := c.API.Get(ctx, ordersPath, page.Query(), &raw); err != nil {
		return nil, page, err
	}
	var envelope struct {
		Count int `json:"count"`
		Total int `json:"total"`
	}
	_ = json.Unmarshal(raw, &envelope)

	var orders []Order
	if len(raw) > 0 {
		if err := json.Unmarshal(upstream.Unwrap(raw, "results", "data", "orders"), &orders); err != nil {
			return nil, page, fmt.Errorf("order: decode list: %w", err)
		}
	}
	if orders == nil {
		orders = []Order{}
	}
	page.TotalItems = envelope.Count
	if page.TotalItems == 0 {
		page.TotalItems = envelope.Total
	}
	if page.TotalItems == 0 {
		page.TotalItems = len(orders)
	}
	return orders, page, nil
}

// Get fetches one order.
func (c Client) Get(ctx context.Context, id string) (Order, error) {
	var raw json.RawMessage
	if err := c.API.Get(ctx, ordersPath+"/"+upstream.PathEscape(id), nil, &raw); err != nil {
		return Order{}, err
	}
	return decodeOrder(raw)
}

func decodeOrder(raw []byte) (Order, error) {
	var out Order
	if err := json.Unmarshal(upstream.Unwrap(raw, "data", "order"), &out); err != nil {
		return Order{}, fmt.Errorf("order: decode: %w", err)
	}
	return out, nil
}
