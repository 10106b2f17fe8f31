package store

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"ticket-checkout/internal/status"
	"ticket-checkout/models"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRedisStore() (*RedisStore, redismock.ClientMock) {
	db, redisMock := redismock.NewClientMock()
	return NewRedisStore(db), redisMock
}

// hashOf renders an order the way HGETALL returns it.
func hashOf(o *models.Order) map[string]string {
	args := encodeOrder(o)
	fields := make(map[string]string, len(args)/2)
	for i := 0; i < len(args); i += 2 {
		fields[args[i].(string)] = args[i+1].(string)
	}
	if o.PaymentID != "" {
		fields["payment_id"] = o.PaymentID
	}
	if o.FailureReason != "" {
		fields["failure_reason"] = o.FailureReason
	}
	if o.PaidAt != nil {
		fields["paid_at"] = o.PaidAt.Format(time.RFC3339Nano)
	}
	if o.UpdatedAt != nil {
		fields["updated_at"] = o.UpdatedAt.Format(time.RFC3339Nano)
	}
	return fields
}

func TestRedisStore_Create(t *testing.T) {
	s, redisMock := setupTestRedisStore()
	order := newPendingOrder("order_1")

	redisMock.ExpectEval(createOrderScript, []string{"order:order_1"}, encodeOrder(order)...).SetVal(int64(1))

	require.NoError(t, s.Create(context.Background(), order))
	require.NoError(t, redisMock.ExpectationsWereMet())
}

func TestRedisStore_Create_Duplicate(t *testing.T) {
	s, redisMock := setupTestRedisStore()
	order := newPendingOrder("order_1")

	redisMock.ExpectEval(createOrderScript, []string{"order:order_1"}, encodeOrder(order)...).SetVal(int64(0))

	err := s.Create(context.Background(), order)
	assert.ErrorIs(t, err, status.ErrOrderExists)
	require.NoError(t, redisMock.ExpectationsWereMet())
}

func TestRedisStore_Create_RedisError(t *testing.T) {
	s, redisMock := setupTestRedisStore()
	order := newPendingOrder("order_1")

	redisMock.ExpectEval(createOrderScript, []string{"order:order_1"}, encodeOrder(order)...).SetErr(errors.New("connection refused"))

	err := s.Create(context.Background(), order)
	assert.ErrorContains(t, err, "connection refused")
}

func TestRedisStore_Get(t *testing.T) {
	s, redisMock := setupTestRedisStore()
	order := newPendingOrder("order_1")

	redisMock.ExpectHGetAll("order:order_1").SetVal(hashOf(order))

	got, err := s.Get(context.Background(), "order_1")
	require.NoError(t, err)
	assert.Equal(t, models.OrderPending, got.Status)
	assert.Equal(t, "520.41", got.TotalAmount.String())
	assert.Equal(t, "ada@example.com", got.CustomerEmail)
	require.NotNil(t, got.EventID)
	assert.Nil(t, got.EventName)
	assert.True(t, got.CreatedAt.Equal(testNow))
	require.NoError(t, redisMock.ExpectationsWereMet())
}

func TestRedisStore_Get_NotFound(t *testing.T) {
	s, redisMock := setupTestRedisStore()

	redisMock.ExpectHGetAll("order:nope").SetVal(map[string]string{})

	_, err := s.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, status.ErrOrderNotFound)
}

func TestRedisStore_Get_RejectsInconsistentDocument(t *testing.T) {
	s, redisMock := setupTestRedisStore()
	fields := hashOf(newPendingOrder("order_1"))
	fields["status"] = "SUCCESS"

	redisMock.ExpectHGetAll("order:order_1").SetVal(fields)

	_, err := s.Get(context.Background(), "order_1")
	assert.ErrorIs(t, err, status.ErrInvalidOrder)
}

func TestRedisStore_Finalize(t *testing.T) {
	tr := successTransition(models.SourceWebhook, "pay_1")
	finalized := newPendingOrder("order_1")
	finalized.Apply(tr)

	tests := []struct {
		code   int64
		result FinalizeResult
	}{
		{code: 1, result: Applied},
		{code: 2, result: AlreadyFinal},
		{code: 3, result: Conflict},
	}

	for _, tt := range tests {
		t.Run(tt.result.String(), func(t *testing.T) {
			s, redisMock := setupTestRedisStore()

			redisMock.ExpectEval(finalizeOrderScript, []string{"order:order_1"},
				"SUCCESS", "pay_1", "", tr.At.Format(time.RFC3339Nano), "webhook_received",
			).SetVal(tt.code)
			redisMock.ExpectHGetAll("order:order_1").SetVal(hashOf(finalized))

			got, result, err := s.Finalize(context.Background(), "order_1", tr)
			require.NoError(t, err)
			assert.Equal(t, tt.result, result)
			assert.Equal(t, "pay_1", got.PaymentID)
			assert.True(t, got.WebhookReceived)
			require.NoError(t, redisMock.ExpectationsWereMet())
		})
	}
}

func TestRedisStore_Finalize_NotFound(t *testing.T) {
	s, redisMock := setupTestRedisStore()
	tr := failedTransition(models.SourceAPI)

	redisMock.ExpectEval(finalizeOrderScript, []string{"order:order_1"},
		"FAILED", "", "declined", tr.At.Format(time.RFC3339Nano), "verified_by_api",
	).SetVal(int64(-1))

	_, _, err := s.Finalize(context.Background(), "order_1", tr)
	assert.ErrorIs(t, err, status.ErrOrderNotFound)
	require.NoError(t, redisMock.ExpectationsWereMet())
}

func TestEncodeOrder_OmitsNullEventFields(t *testing.T) {
	order := newPendingOrder("order_1")
	order.EventID = nil

	fields := hashOf(order)

	_, hasEventID := fields["event_id"]
	_, hasEventName := fields["event_name"]
	assert.False(t, hasEventID)
	assert.False(t, hasEventName)
	assert.Equal(t, fmt.Sprint(order.TotalAmount), fields["total_amount"])
}
