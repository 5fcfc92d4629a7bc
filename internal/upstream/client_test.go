package upstream_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/promo-storefront/internal/common"
	"github.com/noah-isme/promo-storefront/internal/resilience"
	"github.com/noah-isme/promo-storefront/internal/upstream"
)

func newClient(url string) *upstream.Client {
	return &upstream.Client{
		BaseURL:      url,
		Target:       "backend",
		HTTP:         &resilience.HTTPClient{Client: upstream.NewHTTPClient(time.Second)},
		ForwardToken: true,
	}
}

func TestClientForwardsTokenAndDecodes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "Bearer tok-1", r.Header.Get("Authorization"))
		require.Equal(t, "/api/items/a%2Fb", r.URL.EscapedPath())
		_, _ = w.Write([]byte(`{"id":"x"}`))
	}))
	t.Cleanup(srv.Close)

	ctx := common.WithAccessToken(context.Background(), "tok-1")
	var out struct {
		ID string `json:"id"`
	}
	require.NoError(t, newClient(srv.URL).Get(ctx, "/api/items/"+upstream.PathEscape("a/b"), nil, &out))
	require.Equal(t, "x", out.ID)
}

func TestClientStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"errors":[{"message":"quantity too large"}]}`))
	}))
	t.Cleanup(srv.Close)

	err := newClient(srv.URL).Post(context.Background(), "/api/cart/items", map[string]int{"quantity": 1}, nil)
	var statusErr *upstream.StatusError
	require.ErrorAs(t, err, &statusErr)
	require.Equal(t, http.StatusUnprocessableEntity, statusErr.Status)
	require.Equal(t, "quantity too large", statusErr.Message)

	var appErr *common.AppError
	require.ErrorAs(t, upstream.AppError(err), &appErr)
	require.Equal(t, "VALIDATION_ERROR", appErr.Code)
}

func TestClientTransportFailureIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := srv.URL
	srv.Close()

	err := newClient(url).Get(context.Background(), "/api/cart", nil, nil)
	require.True(t, errors.Is(err, upstream.ErrUnavailable))

	var appErr *common.AppError
	require.ErrorAs(t, upstream.AppError(err), &appErr)
	require.Equal(t, http.StatusServiceUnavailable, appErr.HTTPStatus)
}

func TestClientOpenCircuitIsNotSent(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)

	breaker := resilience.NewBreaker(1, 0.5, time.Minute)
	breaker.Report(context.Background(), false)
	client := &upstream.Client{
		BaseURL: srv.URL,
		Target:  "payment-gateway",
		HTTP:    &resilience.HTTPClient{Client: srv.Client(), Breaker: breaker},
	}

	_, err := client.Send(context.Background(), http.MethodPost, "/transactions", nil, map[string]string{"amountBase": "10.00"})
	require.ErrorIs(t, err, upstream.ErrUnavailable)
	require.ErrorIs(t, err, upstream.ErrNotSent)
	require.ErrorIs(t, err, resilience.ErrOpenCircuit)
	require.Zero(t, hits)
}

func TestClientTransportFailureMayHaveBeenSent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := srv.URL
	srv.Close()

	_, err := newClient(url).Send(context.Background(), http.MethodPost, "/transactions", nil, map[string]string{})
	require.ErrorIs(t, err, upstream.ErrUnavailable)
	require.False(t, errors.Is(err, upstream.ErrNotSent))
}

func TestUnwrap(t *testing.T) {
	cases := map[string]string{
		`[{"id":"1"}]`:                 `[{"id":"1"}]`,
		`{"results":[{"id":"1"}]}`:     `[{"id":"1"}]`,
		`{"data":{"id":"1"}}`:          `{"id":"1"}`,
		`{"data":null,"id":"1"}`:       `{"data":null,"id":"1"}`,
		`{"id":"1","name":"plain"}`:    `{"id":"1","name":"plain"}`,
		`  {"addresses":[]}  `:         `[]`,
	}
	for in, want := range cases {
		got := upstream.Unwrap([]byte(in), "results", "data", "addresses")
		require.JSONEq(t, want, string(got), in)
	}
	require.True(t, json.Valid(upstream.Unwrap([]byte(`{"cart":{"id":"c"}}`), "cart")))
}

func TestMessageFrom(t *testing.T) {
	require.Equal(t, "Card declined", upstream.MessageFrom([]byte(`{"message":"Card declined"}`)))
	require.Equal(t, "a; b", upstream.MessageFrom([]byte(`{"errors":["a","b"]}`)))
	require.Equal(t, "plain text", upstream.MessageFrom([]byte(`plain text`)))
}
