package user

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/noah-isme/promo-storefront/internal/common"
)

// ErrAddressConflict is returned when billing and shipping resolve to the same record.
var ErrAddressConflict = errors.New("user: billing and shipping address must be distinct records")

// Resolution is the address pair a checkout may use.
type Resolution struct {
	BillingID  string `json:"billing_address_id"`
	ShippingID string `json:"shipping_address_id"`
	// Synced is set when the shipping record was written to mirror billing.
	Synced bool `json:"synced"`
	// Created is set when syncing had to create a new shipping record.
	Created bool  `json:"created"`
	State   State `json:"state"`
}

// Reconciler enforces that a checkout references two distinct address
// records, even when their contents are identical.
type Reconciler struct {
	Book AddressBook
}

// Reconcile resolves the billing/shipping pair. Without sync the ids are only
// checked, never fetched. With sync the shipping record is made to mirror the
// billing address: the supplied shipping id is updated in place, else the
// existing (preferably default) shipping address is, else a new one is created.
func (r Reconciler) Reconcile(ctx context.Context, billingID, shippingID string, sync bool) (Resolution, error) {
	billingID = strings.TrimSpace(billingID)
	shippingID = strings.TrimSpace(shippingID)
	if billingID == "" {
		return Resolution{}, common.Validation("billing_address_id is required", nil)
	}
	if !sync {
		if shippingID == "" {
			return Resolution{}, common.Validation("shipping_address_id is required unless sync_shipping is set", nil)
		}
		if shippingID == billingID {
			return Resolution{}, conflict(billingID)
		}
		return Resolution{BillingID: billingID, ShippingID: shippingID, State: HasBillingAndShipping}, nil
	}
	if r.Book == nil {
		return Resolution{}, errors.New("user: address book not configured")
	}

	billing, err := r.Book.Get(ctx, billingID)
	if err != nil {
		return Resolution{}, err
	}

	targetID := ""
	isDefault := false
	if shippingID != "" && shippingID != billingID {
		targetID = shippingID
		existing, err := r.Book.Get(ctx, shippingID)
		if err != nil {
			return Resolution{}, err
		}
		isDefault = existing.IsDefault
	} else {
		addrs, err := r.Book.List(ctx)
		if err != nil {
			return Resolution{}, err
		}
		if found, ok := preferredShipping(addrs, billingID); ok {
			targetID = found.ID
			isDefault = found.IsDefault
		} else {
			// First shipping address becomes the default.
			isDefault = true
		}
	}

	in := billing.Mirror(Shipping)
	in.IsDefault = isDefault
	res := Resolution{BillingID: billingID, Synced: true, State: HasBillingAndShipping}
	var written Address
	if targetID != "" {
		written, err = r.Book.Update(ctx, targetID, in)
	} else {
		written, err = r.Book.Create(ctx, in)
		res.Created = true
	}
	if err != nil {
		return Resolution{}, err
	}
	if written.ID == "" {
		written.ID = targetID
	}
	if written.ID == "" || written.ID == billingID {
		return Resolution{}, conflict(billingID)
	}
	res.ShippingID = written.ID
	return res, nil
}

func preferredShipping(addrs []Address, billingID string) (Address, bool) {
	var (
		first Address
		found bool
	)
	for _, a := range addrs {
		if a.AddressType != Shipping || a.ID == billingID || a.ID == "" {
			continue
		}
		if a.IsDefault {
			return a, true
		}
		if !found {
			first = a
			found = true
		}
	}
	return first, found
}

func conflict(id string) error {
	return common.NewAppError(
		"ADDRESS_CONFLICT",
		"billing and shipping must be different address records; enable sync_shipping to copy the billing address",
		http.StatusConflict,
		ErrAddressConflict,
	).WithDetails(map[string]string{"address_id": id})
}
