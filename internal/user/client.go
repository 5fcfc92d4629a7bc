package user

import (
	"context"
	"encoding/json"
	"net/url"

	"github.com/noah-isme/promo-storefront/internal/upstream"
)

// AddressBook is the address service collaborator.
type AddressBook interface {
	List(ctx context.Context) ([]Address, error)
	Get(ctx context.Context, id string) (Address, error)
	Create(ctx context.Context, in AddressInput) (Address, error)
	Update(ctx context.Context, id string, in AddressInput) (Address, error)
	Delete(ctx context.Context, id string) error
}

// Client talks to the backend address service on behalf of the caller.
type Client struct {
	API *upstream.Client
}

const addressesPath = "/api/addresses"

// List returns every address of the caller.
func (c Client) List(ctx context.Context) ([]Address, error) {
	var raw json.RawMessage
	if err := c.API.Get(ctx, addressesPath, url.Values{}, &raw); err != nil {
		return nil, err
	}
	return NormalizeList(raw)
}

// Get fetches a single address.
func (c Client) Get(ctx context.Context, id string) (Address, error) {
	var raw json.RawMessage
	if err := c.API.Get(ctx, addressPath(id), nil, &raw); err != nil {
		return Address{}, err
	}
	return decodeAddress(raw)
}

// Create adds an address.
func (c Client) Create(ctx context.Context, in AddressInput) (Address, error) {
	var raw json.RawMessage
	if err := c.API.Post(ctx, addressesPath, in, &raw); err != nil {
		return Address{}, err
	}
	return decodeAddress(raw)
}

// Update replaces the fields of an address.
func (c Client) Update(ctx context.Context, id string, in AddressInput) (Address, error) {
	var raw json.RawMessage
	if err := c.API.Patch(ctx, addressPath(id), in, &raw); err != nil {
		return Address{}, err
	}
	return decodeAddress(raw)
}

// Delete removes an address.
func (c Client) Delete(ctx context.Context, id string) error {
	return c.API.Delete(ctx, addressPath(id), nil)
}

func addressPath(id string) string {
	return addressesPath + "/" + upstream.PathEscape(id)
}

func decodeAddress(raw []byte) (Address, error) {
	var out Address
	if err := json.Unmarshal(upstream.Unwrap(raw, "data", "address"), &out); err != nil {
		return Address{}, err
	}
	return out, nil
}
