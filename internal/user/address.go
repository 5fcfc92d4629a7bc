package user

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/noah-isme/promo-storefront/internal/upstream"
)

// AddressType distinguishes billing from shipping records.
type AddressType string

const (
	Billing  AddressType = "billing"
	Shipping AddressType = "shipping"
)

// Address is an address book entry as returned by the address service.
type Address struct {
	ID          string      `json:"id"`
	AddressType AddressType `json:"address_type"`
	Line1       string      `json:"line1"`
	Line2       string      `json:"line2,omitempty"`
	City        string      `json:"city"`
	State       string      `json:"state"`
	PostalCode  string      `json:"postal_code"`
	Country     string      `json:"country"`
	IsDefault   bool        `json:"is_default"`
}

// AddressInput captures the payload for creating or updating an address.
type AddressInput struct {
	AddressType AddressType `json:"address_type" validate:"required,oneof=billing shipping"`
	Line1       string      `json:"line1" validate:"required,max=255"`
	Line2       string      `json:"line2,omitempty" validate:"max=255"`
	City        string      `json:"city" validate:"required,max=120"`
	State       string      `json:"state" validate:"required,max=120"`
	PostalCode  string      `json:"postal_code" validate:"required,max=20"`
	Country     string      `json:"country" validate:"required,max=80"`
	IsDefault   bool        `json:"is_default"`
}

// Mirror returns the input that duplicates a's fields under a different role.
func (a Address) Mirror(role AddressType) AddressInput {
	return AddressInput{
		AddressType: role,
		Line1:       a.Line1,
		Line2:       a.Line2,
		City:        a.City,
		State:       a.State,
		PostalCode:  a.PostalCode,
		Country:     a.Country,
	}
}

// NormalizeList decodes an address list that may arrive as a bare array or
// wrapped under results, data or addresses. Null or empty bodies yield an
// empty list.
func NormalizeList(raw []byte) ([]Address, error) {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return []Address{}, nil
	}
	inner := upstream.Unwrap(raw, "results", "data", "addresses")
	if strings.HasPrefix(strings.TrimSpace(string(inner)), "{") {
		// A wrapper that itself wraps the list, e.g. {"data":{"results":[...]}}.
		inner = upstream.Unwrap(inner, "results", "data", "addresses")
	}
	var out []Address
	if err := json.Unmarshal(inner, &out); err != nil {
		return nil, fmt.Errorf("user: decode address list: %w", err)
	}
	if out == nil {
		out = []Address{}
	}
	return out, nil
}

// State is the checkout readiness of an address book.
type State int

const (
	NoAddresses State = iota
	HasBilling
	HasBillingAndShipping
)

func (s State) String() string {
	switch s {
	case HasBilling:
		return "has_billing"
	case HasBillingAndShipping:
		return "has_billing_and_shipping"
	default:
		return "no_addresses"
	}
}

// MarshalText renders the state name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// StateOf derives the address book state. A shipping address alone does not
// advance the state; checkout needs a billing address first.
func StateOf(addrs []Address) State {
	var billing, shipping bool
	for _, a := range addrs {
		switch a.AddressType {
		case Billing:
			billing = true
		case Shipping:
			shipping = true
		}
	}
	switch {
	case billing && shipping:
		return HasBillingAndShipping
	case billing:
		return HasBilling
	default:
		return NoAddresses
	}
}
