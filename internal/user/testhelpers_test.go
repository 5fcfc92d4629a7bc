package user_test

import (
	"context"
	"fmt"

	"github.com/noah-isme/promo-storefront/internal/user"
)

// fakeBook is an in-memory AddressBook that counts every call.
type fakeBook struct {
	addrs   []user.Address
	calls   int
	created int
	updated []string
	nextID  int
}

func (f *fakeBook) List(context.Context) ([]user.Address, error) {
	f.calls++
	return append([]user.Address(nil), f.addrs...), nil
}

func (f *fakeBook) Get(_ context.Context, id string) (user.Address, error) {
	f.calls++
	for _, a := range f.addrs {
		if a.ID == id {
			return a, nil
		}
	}
	return user.Address{}, fmt.Errorf("address %s not found", id)
}

func (f *fakeBook) Create(_ context.Context, in user.AddressInput) (user.Address, error) {
	f.calls++
	f.created++
	f.nextID++
	a := fromInput(fmt.Sprintf("new-%d", f.nextID), in)
	f.addrs = append(f.addrs, a)
	return a, nil
}

func (f *fakeBook) Update(_ context.Context, id string, in user.AddressInput) (user.Address, error) {
	f.calls++
	for i, a := range f.addrs {
		if a.ID == id {
			f.updated = append(f.updated, id)
			f.addrs[i] = fromInput(id, in)
			return f.addrs[i], nil
		}
	}
	return user.Address{}, fmt.Errorf("address %s not found", id)
}

func (f *fakeBook) Delete(_ context.Context, id string) error {
	f.calls++
	for i, a := range f.addrs {
		if a.ID == id {
			f.addrs = append(f.addrs[:i], f.addrs[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("address %s not found", id)
}

func fromInput(id string, in user.AddressInput) user.Address {
	return user.Address{
		ID:          id,
		AddressType: in.AddressType,
		Line1:       in.Line1,
		Line2:       in.Line2,
		City:        in.City,
		State:       in.State,
		PostalCode:  in.PostalCode,
		Country:     in.Country,
		IsDefault:   in.IsDefault,
	}
}

func billingAddress() user.Address {
	return user.Address{
		ID:          "bill-1",
		AddressType: user.Billing,
		Line1:       "1 Main St",
		City:        "Springfield",
		State:       "IL",
		PostalCode:  "62701",
		Country:     "US",
		IsDefault:   true,
	}
}
