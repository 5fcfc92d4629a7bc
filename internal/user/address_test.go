package user_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/promo-storefront/internal/user"
)

func TestNormalizeListShapes(t *testing.T) {
	bodies := []string{
		`[{"id":"1","address_type":"billing"}]`,
		`{"results":[{"id":"1","address_type":"billing"}]}`,
		`{"data":[{"id":"1","address_type":"billing"}]}`,
		`{"addresses":[{"id":"1","address_type":"billing"}]}`,
		`{"data":{"results":[{"id":"1","address_type":"billing"}]}}`,
	}
	for _, body := range bodies {
		addrs, err := user.NormalizeList([]byte(body))
		require.NoError(t, err, body)
		require.Len(t, addrs, 1, body)
		require.Equal(t, "1", addrs[0].ID)
		require.Equal(t, user.Billing, addrs[0].AddressType)
	}

	for _, body := range []string{"", "null", `{"results":null,"data":[]}`} {
		addrs, err := user.NormalizeList([]byte(body))
		require.NoError(t, err, body)
		require.Empty(t, addrs)
		require.NotNil(t, addrs)
	}

	_, err := user.NormalizeList([]byte(`{"count":3}`))
	require.Error(t, err)
}

func TestStateOf(t *testing.T) {
	require.Equal(t, user.NoAddresses, user.StateOf(nil))
	require.Equal(t, user.NoAddresses, user.StateOf([]user.Address{{AddressType: user.Shipping}}))
	require.Equal(t, user.HasBilling, user.StateOf([]user.Address{{AddressType: user.Billing}}))
	require.Equal(t, user.HasBillingAndShipping, user.StateOf([]user.Address{
		{AddressType: user.Shipping},
		{AddressType: user.Billing},
	}))
	require.Equal(t, "has_billing", user.HasBilling.String())
}
