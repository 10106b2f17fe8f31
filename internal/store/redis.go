package store

import (
	"context"
	"fmt"
	"time"

	"ticket-checkout/internal/status"
	"ticket-checkout/models"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

const (
	createOrderScript = `
if redis.call('EXISTS', KEYS[1]) == 1 then
	return 0
end
redis.call('HSET', KEYS[1], unpack(ARGV))
return 1
`

	// ARGV: status, payment_id, failure_reason, at, provenance field
	finalizeOrderScript = `
local current = redis.call('HGET', KEYS[1], 'status')
if not current then
	return -1
end
if current == 'PENDING' then
	redis.call('HSET', KEYS[1], 'status', ARGV[1], 'updated_at', ARGV[4], ARGV[5], '1')
	if ARGV[1] == 'SUCCESS' then
		redis.call('HSET', KEYS[1], 'payment_id', ARGV[2], 'paid_at', ARGV[4])
	else
		redis.call('HSET', KEYS[1], 'failure_reason', ARGV[3])
	end
	return 1
end
if current == ARGV[1] then
	redis.call('HSET', KEYS[1], ARGV[5], '1')
	return 2
end
return 3
`
)

// RedisStore keeps each order in a hash at order:<id>. Orders never expire.
type RedisStore struct {
	Redis *redis.Client
}

func NewRedisStore(redisClient *redis.Client) *RedisStore {
	return &RedisStore{Redis: redisClient}
}

func orderKey(orderID string) string {
	return fmt.Sprintf("order:%s", orderID)
}

func (s *RedisStore) Create(ctx context.Context, order *models.Order) error {
	if err := order.Validate(); err != nil {
		return err
	}

	created, err := s.Redis.Eval(ctx, createOrderScript, []string{orderKey(order.OrderID)}, encodeOrder(order)...).Int64()
	if err != nil {
		return fmt.Errorf("redis create order %s: %w", order.OrderID, err)
	}
	if created == 0 {
		return status.ErrOrderExists
	}

	return nil
}

func (s *RedisStore) Get(ctx context.Context, orderID string) (*models.Order, error) {
	fields, err := s.Redis.HGetAll(ctx, orderKey(orderID)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis get order %s: %w", orderID, err)
	}
	if len(fields) == 0 {
		return nil, status.ErrOrderNotFound
	}

	return decodeOrder(fields)
}

func (s *RedisStore) Finalize(ctx context.Context, orderID string, t models.Transition) (*models.Order, FinalizeResult, error) {
	if err := t.Validate(); err != nil {
		return nil, Conflict, err
	}

	args := []any{
		string(t.Status),
		t.PaymentID,
		t.FailureReason,
		t.At.UTC().Format(time.RFC3339Nano),
		provenanceField(t.Source),
	}

	code, err := s.Redis.Eval(ctx, finalizeOrderScript, []string{orderKey(orderID)}, args...).Int64()
	if err != nil {
		return nil, Conflict, fmt.Errorf("redis finalize order %s: %w", orderID, err)
	}

	var result FinalizeResult
	switch code {
	case -1:
		return nil, Conflict, status.ErrOrderNotFound
	case 1:
		result = Applied
	case 2:
		result = AlreadyFinal
	case 3:
		result = Conflict
	default:
		return nil, Conflict, fmt.Errorf("redis finalize order %s: unexpected script result %d", orderID, code)
	}

	order, err := s.Get(ctx, orderID)
	if err != nil {
		return nil, result, err
	}

	return order, result, nil
}

func provenanceField(src models.TransitionSource) string {
	if src == models.SourceWebhook {
		return "webhook_received"
	}
	return "verified_by_api"
}

func encodeOrder(o *models.Order) []any {
	args := []any{
		"order_id", o.OrderID,
		"base_amount", o.BaseAmount.String(),
		"platform_fee", o.PlatformFee.String(),
		"gateway_fee", o.GatewayFee.String(),
		"total_amount", o.TotalAmount.String(),
		"currency", o.Currency,
		"status", string(o.Status),
		"customer_id", o.CustomerID,
		"customer_name", o.CustomerName,
		"customer_email", o.CustomerEmail,
		"customer_phone", o.CustomerPhone,
		"created_at", o.CreatedAt.UTC().Format(time.RFC3339Nano),
		"verified_by_api", boolFlag(o.VerifiedByAPI),
		"webhook_received", boolFlag(o.WebhookReceived),
	}
	if o.EventID != nil {
		args = append(args, "event_id", *o.EventID)
	}
	if o.EventName != nil {
		args = append(args, "event_name", *o.EventName)
	}
	return args
}

func decodeOrder(f map[string]string) (*models.Order, error) {
	o := &models.Order{
		OrderID:         f["order_id"],
		Currency:        f["currency"],
		Status:          models.OrderStatus(f["status"]),
		CustomerID:      f["customer_id"],
		CustomerName:    f["customer_name"],
		CustomerEmail:   f["customer_email"],
		CustomerPhone:   f["customer_phone"],
		PaymentID:       f["payment_id"],
		FailureReason:   f["failure_reason"],
		VerifiedByAPI:   f["verified_by_api"] == "1",
		WebhookReceived: f["webhook_received"] == "1",
	}

	var err error
	if o.BaseAmount, err = parseAmount(f, "base_amount"); err != nil {
		return nil, err
	}
	if o.PlatformFee, err = parseAmount(f, "platform_fee"); err != nil {
		return nil, err
	}
	if o.GatewayFee, err = parseAmount(f, "gateway_fee"); err != nil {
		return nil, err
	}
	if o.TotalAmount, err = parseAmount(f, "total_amount"); err != nil {
		return nil, err
	}

	if v, ok := f["event_id"]; ok {
		o.EventID = &v
	}
	if v, ok := f["event_name"]; ok {
		o.EventName = &v
	}

	if o.CreatedAt, err = time.Parse(time.RFC3339Nano, f["created_at"]); err != nil {
		return nil, fmt.Errorf("%w: created_at: %v", status.ErrInvalidOrder, err)
	}
	if o.PaidAt, err = parseOptionalTime(f, "paid_at"); err != nil {
		return nil, err
	}
	if o.UpdatedAt, err = parseOptionalTime(f, "updated_at"); err != nil {
		return nil, err
	}

	if err := o.Validate(); err != nil {
		return nil, err
	}
	return o, nil
}

func parseAmount(f map[string]string, key string) (decimal.Decimal, error) {
	v, ok := f[key]
	if !ok || v == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(v)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %s: %v", status.ErrInvalidOrder, key, err)
	}
	return d, nil
}

func parseOptionalTime(f map[string]string, key string) (*time.Time, error) {
	v, ok := f[key]
	if !ok || v == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", status.ErrInvalidOrder, key, err)
	}
	return &t, nil
}

func boolFlag(v bool) string {
	if v {
		return "1"
	}
	return "0"
}
