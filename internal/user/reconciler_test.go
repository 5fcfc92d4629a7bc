package user_test

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/promo-storefront/internal/common"
	"github.com/noah-isme/promo-storefront/internal/user"
)

func TestReconcileSameIDWithoutSyncConflicts(t *testing.T) {
	book := &fakeBook{addrs: []user.Address{billingAddress()}}
	r := user.Reconciler{Book: book}

	_, err := r.Reconcile(context.Background(), "bill-1", "bill-1", false)
	require.ErrorIs(t, err, user.ErrAddressConflict)
	var appErr *common.AppError
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, "ADDRESS_CONFLICT", appErr.Code)
	require.Equal(t, http.StatusConflict, appErr.HTTPStatus)
	require.Zero(t, book.calls, "conflict must be detected without contacting the address service")
}

func TestReconcileDistinctIDsSucceedsWithoutNetwork(t *testing.T) {
	book := &fakeBook{}
	r := user.Reconciler{Book: book}
	res, err := r.Reconcile(context.Background(), "a", "b", false)
	require.NoError(t, err)
	require.Equal(t, "a", res.BillingID)
	require.Equal(t, "b", res.ShippingID)
	require.Equal(t, user.HasBillingAndShipping, res.State)
	require.Zero(t, book.calls)
}

func TestReconcileRequiresIDs(t *testing.T) {
	r := user.Reconciler{Book: &fakeBook{}}
	_, err := r.Reconcile(context.Background(), " ", "b", false)
	require.Error(t, err)
	_, err = r.Reconcile(context.Background(), "a", "", false)
	require.Error(t, err)
}

func TestReconcileSyncCreatesMirrorWhenNoShipping(t *testing.T) {
	book := &fakeBook{addrs: []user.Address{billingAddress()}}
	r := user.Reconciler{Book: book}

	res, err := r.Reconcile(context.Background(), "bill-1", "bill-1", true)
	require.NoError(t, err)
	require.True(t, res.Synced)
	require.True(t, res.Created)
	require.NotEqual(t, res.BillingID, res.ShippingID)
	require.Equal(t, 1, book.created)

	created, err := book.Get(context.Background(), res.ShippingID)
	require.NoError(t, err)
	require.Equal(t, user.Shipping, created.AddressType)
	require.Equal(t, "1 Main St", created.Line1)
	require.Equal(t, "62701", created.PostalCode)
	require.True(t, created.IsDefault)
}

func TestReconcileSyncUpdatesDefaultShippingInPlace(t *testing.T) {
	book := &fakeBook{addrs: []user.Address{
		billingAddress(),
		{ID: "ship-old", AddressType: user.Shipping, Line1: "9 Elm", City: "X", State: "Y", PostalCode: "1", Country: "US"},
		{ID: "ship-default", AddressType: user.Shipping, Line1: "7 Oak", City: "X", State: "Y", PostalCode: "1", Country: "US", IsDefault: true},
	}}
	r := user.Reconciler{Book: book}

	res, err := r.Reconcile(context.Background(), "bill-1", "", true)
	require.NoError(t, err)
	require.False(t, res.Created)
	require.Equal(t, "ship-default", res.ShippingID)
	require.Equal(t, []string{"ship-default"}, book.updated)
	require.Zero(t, book.created)

	updated, err := book.Get(context.Background(), "ship-default")
	require.NoError(t, err)
	require.Equal(t, "1 Main St", updated.Line1)
	require.True(t, updated.IsDefault)
}

func TestReconcileSyncUpdatesProvidedShippingID(t *testing.T) {
	book := &fakeBook{addrs: []user.Address{
		billingAddress(),
		{ID: "ship-1", AddressType: user.Shipping, Line1: "old"},
	}}
	r := user.Reconciler{Book: book}

	res, err := r.Reconcile(context.Background(), "bill-1", "ship-1", true)
	require.NoError(t, err)
	require.Equal(t, "ship-1", res.ShippingID)
	require.Equal(t, []string{"ship-1"}, book.updated)
}
