package gateway

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"ticket-checkout/internal/status"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	return NewClient(&ClientConfig{
		BaseURL:      srv.URL + "/pg/",
		ClientID:     "app_id",
		ClientSecret: "app_secret",
	})
}

func TestClient_CreateOrder(t *testing.T) {
	var got map[string]any
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/pg/orders", r.URL.Path)
		assert.Equal(t, "app_id", r.Header.Get("x-client-id"))
		assert.Equal(t, "app_secret", r.Header.Get("x-client-secret"))
		assert.Equal(t, defaultAPIVersion, r.Header.Get("x-api-version"))

		b, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(b, &got))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"cf_order_id":"2149460581","order_id":"order_1","order_status":"ACTIVE","payment_session_id":"session_abc"}`))
	})

	eventName := "Concert"
	session, err := c.CreateOrder(context.Background(), &CreateOrderInput{
		OrderID:       "order_1",
		Amount:        decimal.RequireFromString("520.41"),
		Currency:      "INR",
		CustomerID:    "cust_1",
		CustomerName:  "Ada",
		CustomerEmail: "ada@example.com",
		CustomerPhone: "9999999999",
		EventName:     &eventName,
		ReturnURL:     "https://shop.example/return?order_id=order_1",
	})
	require.NoError(t, err)

	assert.Equal(t, "session_abc", session.PaymentSessionID)
	assert.JSONEq(t, `{"cf_order_id":"2149460581","order_id":"order_1","order_status":"ACTIVE","payment_session_id":"session_abc"}`, string(session.Raw))

	assert.Equal(t, "order_1", got["order_id"])
	assert.Equal(t, 520.41, got["order_amount"])
	assert.Equal(t, "INR", got["order_currency"])
	assert.Equal(t, "Tickets for Concert", got["order_note"])
	assert.NotContains(t, got, "order_tags")
	customer := got["customer_details"].(map[string]any)
	assert.Equal(t, "cust_1", customer["customer_id"])
	assert.Equal(t, "9999999999", customer["customer_phone"])
	meta := got["order_meta"].(map[string]any)
	assert.Equal(t, "https://shop.example/return?order_id=order_1", meta["return_url"])
}

func TestClient_CreateOrder_Rejected(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"message":"customer_phone is invalid","code":"customer_details.customer_phone_invalid"}`))
	})

	_, err := c.CreateOrder(context.Background(), &CreateOrderInput{OrderID: "order_1", Amount: decimal.NewFromInt(1)})
	require.Error(t, err)
	assert.ErrorIs(t, err, status.ErrGateway)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	assert.Contains(t, apiErr.Body, "customer_phone is invalid")
}

func TestClient_CreateOrder_MissingSession(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"order_id":"order_1"}`))
	})

	_, err := c.CreateOrder(context.Background(), &CreateOrderInput{OrderID: "order_1", Amount: decimal.NewFromInt(1)})
	assert.ErrorIs(t, err, status.ErrGateway)
}

func TestClient_ListPayments(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/pg/orders/order_1/payments", r.URL.Path)
		_, _ = w.Write([]byte(`[
			{"cf_payment_id": 5114915422, "order_id": "order_1", "payment_status": "FAILED", "payment_message": "insufficient funds", "payment_amount": 520.41},
			{"cf_payment_id": "5114915999", "order_id": "order_1", "payment_status": "SUCCESS", "payment_amount": "520.41", "payment_time": "2025-06-02T14:01:00+05:30"}
		]`))
	})

	attempts, err := c.ListPayments(context.Background(), "order_1")
	require.NoError(t, err)
	require.Len(t, attempts, 2)

	assert.Equal(t, ID("5114915422"), attempts[0].PaymentID)
	assert.Equal(t, OutcomeFailed, attempts[0].Status)
	assert.Equal(t, "insufficient funds", attempts[0].Message)
	assert.Equal(t, "5114915999", attempts[1].PaymentID.String())
	assert.Equal(t, OutcomeSuccess, attempts[1].Status)
	assert.True(t, attempts[1].Amount.Equal(decimal.RequireFromString("520.41")))
}

func TestClient_ListPayments_Empty(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[]`))
	})

	attempts, err := c.ListPayments(context.Background(), "order_1")
	require.NoError(t, err)
	assert.Empty(t, attempts)
}

func TestClient_ServerErrorsOpenBreaker(t *testing.T) {
	calls := 0
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusBadGateway)
	})

	for i := 0; i < 10; i++ {
		_, err := c.ListPayments(context.Background(), "order_1")
		require.ErrorIs(t, err, status.ErrGateway)
	}
	assert.Equal(t, StateOpen, c.breaker.State())

	_, err := c.ListPayments(context.Background(), "order_1")
	assert.ErrorIs(t, err, status.ErrGatewayUnavailable)
	assert.Equal(t, 10, calls)
}

func TestClient_ClientErrorsKeepBreakerClosed(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	for i := 0; i < 15; i++ {
		_, err := c.ListPayments(context.Background(), "order_1")
		require.ErrorIs(t, err, status.ErrGateway)
	}
	assert.Equal(t, StateClosed, c.breaker.State())
}

func TestID_UnmarshalJSON(t *testing.T) {
	tests := []struct {
		in   string
		want ID
	}{
		{in: `"abc"`, want: "abc"},
		{in: `12345678901`, want: "12345678901"},
		{in: `null`, want: ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			var id ID
			require.NoError(t, json.Unmarshal([]byte(tt.in), &id))
			assert.Equal(t, tt.want, id)
		})
	}

	var id ID
	assert.Error(t, json.Unmarshal([]byte(`{}`), &id))
}
