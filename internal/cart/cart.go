package cart

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/noah-isme/promo-storefront/internal/pricing"
	"github.com/noah-isme/promo-storefront/internal/upstream"
)

// Item is a cart line as held by the cart service.
type Item struct {
	ID             string                  `json:"id"`
	ProductID      string                  `json:"product_id"`
	PartID         string                  `json:"part_id,omitempty"`
	Quantity       int                     `json:"quantity"`
	Customizations []pricing.Customization `json:"customizations,omitempty"`
}

// Cart is the caller's cart. Prices are never taken from the cart service;
// they are recomputed from catalog price tables on every read.
type Cart struct {
	ID    string `json:"id"`
	Items []Item `json:"items"`
}

// ItemInput is the payload for adding a line.
type ItemInput struct {
	ProductID      string                  `json:"product_id" validate:"required"`
	PartID         string                  `json:"part_id,omitempty"`
	Quantity       int                     `json:"quantity" validate:"min=1"`
	Customizations []pricing.Customization `json:"customizations,omitempty" validate:"dive"`
}

// ItemUpdate is the payload for changing a line.
type ItemUpdate struct {
	Quantity       int                     `json:"quantity" validate:"min=1"`
	Customizations []pricing.Customization `json:"customizations,omitempty"`
}

// Store is the cart service collaborator. Every mutation returns the full
// recomputed cart.
type Store interface {
	Get(ctx context.Context) (Cart, error)
	AddItem(ctx context.Context, in ItemInput) (Cart, error)
	UpdateItem(ctx context.Context, itemID string, in ItemUpdate) (Cart, error)
	RemoveItem(ctx context.Context, itemID string) (Cart, error)
}

// Client is the HTTP Store backed by the cart service.
type Client struct {
	API *upstream.Client
}

const cartPath = "/api/cart"

// Get returns the caller's cart.
func (c Client) Get(ctx context.Context) (Cart, error) {
	var raw json.RawMessage
	if err := c.API.Get(ctx, cartPath, nil, &raw); err != nil {
		return Cart{}, err
	}
	return decodeCart(raw)
}

// AddItem adds a line and returns the updated cart.
func (c Client) AddItem(ctx context.Context, in ItemInput) (Cart, error) {
	var raw json.RawMessage
	if err := c.API.Post(ctx, cartPath+"/items", in, &raw); err != nil {
		return Cart{}, err
	}
	return decodeCart(raw)
}

// UpdateItem changes a line and returns the updated cart.
func (c Client) UpdateItem(ctx context.Context, itemID string, in ItemUpdate) (Cart, error) {
	var raw json.RawMessage
	if err := c.API.Patch(ctx, itemPath(itemID), in, &raw); err != nil {
		return Cart{}, err
	}
	return decodeCart(raw)
}

// RemoveItem deletes a line and returns the updated cart.
func (c Client) RemoveItem(ctx context.Context, itemID string) (Cart, error) {
	var raw json.RawMessage
	if err := c.API.Delete(ctx, itemPath(itemID), &raw); err != nil {
		return Cart{}, err
	}
	return decodeCart(raw)
}

func itemPath(id string) string {
	return cartPath + "/items/" + upstream.PathEscape(id)
}

func decodeCart(raw []byte) (Cart, error) {
	var out Cart
	inner := upstream.Unwrap(raw, "data", "cart")
	if len(inner) == 0 {
		return Cart{Items: []Item{}}, nil
	}
	if err := json.Unmarshal(inner, &out); err != nil {
		return Cart{}, fmt.Errorf("cart: decode: %w", err)
	}
	if out.Items == nil {
		out.Items = []Item{}
	}
	return out, nil
}
