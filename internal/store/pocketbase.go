package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"ticket-checkout/internal/status"
	"ticket-checkout/models"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/pocketbase/dbx"
	"github.com/pocketbase/pocketbase/core"
	"github.com/shopspring/decimal"
)

const OrdersCollection = "orders"

// Amounts are stored as fixed two-place decimal strings.
const amountPattern = `^-?\d+\.\d{2}$`

// PocketBaseStore keeps orders as records of the orders collection, looked up
// by the unique order_id field.
type PocketBaseStore struct {
	app core.App
}

func NewPocketBaseStore(app core.App) *PocketBaseStore {
	return &PocketBaseStore{app: app}
}

// EnsureCollection creates the orders collection if it does not exist yet.
func EnsureCollection(app core.App) error {
	if _, err := app.FindCollectionByNameOrId(OrdersCollection); err == nil {
		return nil
	}

	collection := core.NewBaseCollection(OrdersCollection)
	collection.Fields.Add(
		&core.TextField{Name: "order_id", Required: true, Max: 64},
		&core.TextField{Name: "base_amount", Required: true, Pattern: amountPattern},
		&core.TextField{Name: "platform_fee", Required: true, Pattern: amountPattern},
		&core.TextField{Name: "gateway_fee", Required: true, Pattern: amountPattern},
		&core.TextField{Name: "total_amount", Required: true, Pattern: amountPattern},
		&core.TextField{Name: "currency", Required: true, Max: 3},
		&core.SelectField{
			Name:      "status",
			Required:  true,
			MaxSelect: 1,
			Values:    []string{string(models.OrderPending), string(models.OrderSuccess), string(models.OrderFailed)},
		},
		&core.TextField{Name: "customer_id", Required: true},
		&core.TextField{Name: "customer_name"},
		&core.TextField{Name: "customer_email"},
		&core.TextField{Name: "customer_phone"},
		&core.TextField{Name: "event_id"},
		&core.TextField{Name: "event_name"},
		&core.TextField{Name: "payment_id"},
		&core.TextField{Name: "failure_reason"},
		&core.DateField{Name: "created_at", Required: true},
		&core.DateField{Name: "paid_at"},
		&core.DateField{Name: "updated_at"},
		&core.BoolField{Name: "verified_by_api"},
		&core.BoolField{Name: "webhook_received"},
	)
	collection.AddIndex("idx_orders_order_id", true, "order_id", "")
	collection.AddIndex("idx_orders_customer", false, "customer_id", "")

	return app.Save(collection)
}

func (s *PocketBaseStore) Create(ctx context.Context, order *models.Order) error {
	if err := order.Validate(); err != nil {
		return err
	}

	if _, err := findOrderRecord(s.app, order.OrderID); err == nil {
		return status.ErrOrderExists
	} else if !errors.Is(err, status.ErrOrderNotFound) {
		return err
	}

	collection, err := s.app.FindCollectionByNameOrId(OrdersCollection)
	if err != nil {
		return fmt.Errorf("find orders collection: %w", err)
	}

	record := core.NewRecord(collection)
	record.Set("order_id", order.OrderID)
	record.Set("base_amount", order.BaseAmount.StringFixed(2))
	record.Set("platform_fee", order.PlatformFee.StringFixed(2))
	record.Set("gateway_fee", order.GatewayFee.StringFixed(2))
	record.Set("total_amount", order.TotalAmount.StringFixed(2))
	record.Set("currency", order.Currency)
	record.Set("customer_id", order.CustomerID)
	record.Set("customer_name", order.CustomerName)
	record.Set("customer_email", order.CustomerEmail)
	record.Set("customer_phone", order.CustomerPhone)
	if order.EventID != nil {
		record.Set("event_id", *order.EventID)
	}
	if order.EventName != nil {
		record.Set("event_name", *order.EventName)
	}
	record.Set("created_at", order.CreatedAt)
	writeTerminalFields(record, order)

	if err := s.app.SaveWithContext(ctx, record); err != nil {
		// A concurrent create with the same id loses on the unique index.
		if isUniqueViolation(err) {
			return status.ErrOrderExists
		}
		return fmt.Errorf("save order %s: %w", order.OrderID, err)
	}

	return nil
}

func (s *PocketBaseStore) Get(_ context.Context, orderID string) (*models.Order, error) {
	record, err := findOrderRecord(s.app, orderID)
	if err != nil {
		return nil, err
	}

	return recordToOrder(record)
}

func (s *PocketBaseStore) Finalize(ctx context.Context, orderID string, t models.Transition) (*models.Order, FinalizeResult, error) {
	if err := t.Validate(); err != nil {
		return nil, Conflict, err
	}

	var (
		order  *models.Order
		result FinalizeResult
	)

	err := s.app.RunInTransaction(func(txApp core.App) error {
		record, err := findOrderRecord(txApp, orderID)
		if err != nil {
			return err
		}

		order, err = recordToOrder(record)
		if err != nil {
			return err
		}

		var changed bool
		result, changed = decide(order, t)
		if !changed {
			return nil
		}

		writeTerminalFields(record, order)
		return txApp.SaveWithContext(ctx, record)
	})
	if err != nil {
		return nil, Conflict, err
	}

	return order, result, nil
}

func findOrderRecord(app core.App, orderID string) (*core.Record, error) {
	record, err := app.FindFirstRecordByFilter(
		OrdersCollection,
		"order_id = {:orderId}",
		dbx.Params{"orderId": orderID},
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, status.ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find order %s: %w", orderID, err)
	}

	return record, nil
}

func writeTerminalFields(record *core.Record, o *models.Order) {
	record.Set("status", string(o.Status))
	record.Set("payment_id", o.PaymentID)
	record.Set("failure_reason", o.FailureReason)
	if o.PaidAt != nil {
		record.Set("paid_at", *o.PaidAt)
	}
	if o.UpdatedAt != nil {
		record.Set("updated_at", *o.UpdatedAt)
	}
	record.Set("verified_by_api", o.VerifiedByAPI)
	record.Set("webhook_received", o.WebhookReceived)
}

func recordToOrder(r *core.Record) (*models.Order, error) {
	o := &models.Order{
		OrderID:         r.GetString("order_id"),
		Currency:        r.GetString("currency"),
		Status:          models.OrderStatus(r.GetString("status")),
		CustomerID:      r.GetString("customer_id"),
		CustomerName:    r.GetString("customer_name"),
		CustomerEmail:   r.GetString("customer_email"),
		CustomerPhone:   r.GetString("customer_phone"),
		EventID:         models.StringPtr(r.GetString("event_id")),
		EventName:       models.StringPtr(r.GetString("event_name")),
		PaymentID:       r.GetString("payment_id"),
		FailureReason:   r.GetString("failure_reason"),
		CreatedAt:       r.GetDateTime("created_at").Time(),
		VerifiedByAPI:   r.GetBool("verified_by_api"),
		WebhookReceived: r.GetBool("webhook_received"),
	}

	var err error
	if o.BaseAmount, err = recordAmount(r, "base_amount"); err != nil {
		return nil, err
	}
	if o.PlatformFee, err = recordAmount(r, "platform_fee"); err != nil {
		return nil, err
	}
	if o.GatewayFee, err = recordAmount(r, "gateway_fee"); err != nil {
		return nil, err
	}
	if o.TotalAmount, err = recordAmount(r, "total_amount"); err != nil {
		return nil, err
	}

	if paidAt := r.GetDateTime("paid_at"); !paidAt.IsZero() {
		t := paidAt.Time()
		o.PaidAt = &t
	}
	if updatedAt := r.GetDateTime("updated_at"); !updatedAt.IsZero() {
		t := updatedAt.Time()
		o.UpdatedAt = &t
	}

	if err := o.Validate(); err != nil {
		return nil, err
	}
	return o, nil
}

func recordAmount(r *core.Record, field string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(r.GetString(field))
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %s: %v", status.ErrInvalidOrder, field, err)
	}
	return d, nil
}

// isUniqueViolation reports whether err came from the order_id unique index.
// PocketBase reports it either as a field validation error or as the raw
// SQLite constraint failure.
func isUniqueViolation(err error) bool {
	var fieldErrs validation.Errors
	if errors.As(err, &fieldErrs) {
		if fe, ok := fieldErrs["order_id"]; ok {
			var code validation.Error
			if errors.As(fe, &code) && code.Code() == "validation_not_unique" {
				return true
			}
		}
	}
	return strings.Contains(strings.ToLower(err.Error()), "unique constraint failed")
}
