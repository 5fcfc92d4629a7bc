package checkout

import (
	"reflect"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

type fakeRow struct {
	values []any
}

func (r fakeRow) Scan(dest ...any) error {
	for i, d := range dest {
		reflect.ValueOf(d).Elem().Set(reflect.ValueOf(r.values[i]))
	}
	return nil
}

func attemptRow(id uuid.UUID, amount, shipping string, snapshot []byte) fakeRow {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return fakeRow{values: []any{
		id, "user-1", "key-1", "fp", "charged",
		amount, shipping, "USD",
		"addr-billing", "addr-shipping",
		"tx-1", "", snapshot,
		"", "", now, now,
	}}
}

func TestScanAttemptKeepsNumericPrecision(t *testing.T) {
	id := uuid.New()
	a, err := scanAttempt(attemptRow(id, "960.1250", "100.0000", nil))
	require.NoError(t, err)
	require.Equal(t, id, a.ID)
	require.Equal(t, StatusCharged, a.Status)
	require.Equal(t, "960.125", a.AmountTotal.String())
	require.Equal(t, "100.00", a.ShippingFee.StringFixed(2))
	require.Equal(t, "tx-1", a.TransactionID)
	require.Nil(t, a.Order)

	a, err = scanAttempt(attemptRow(id, "140.0000", "0.0000", []byte(`{"id":"ord-1"}`)))
	require.NoError(t, err)
	require.JSONEq(t, `{"id":"ord-1"}`, string(a.Order))
	require.True(t, a.ShippingFee.IsZero())
}

func TestScanAttemptRejectsMalformedAmount(t *testing.T) {
	_, err := scanAttempt(attemptRow(uuid.New(), "not-a-number", "0", nil))
	require.Error(t, err)
}
