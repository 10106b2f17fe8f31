package models

import (
	"fmt"
	"strings"
	"time"

	"ticket-checkout/internal/status"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	OrderPending OrderStatus = "PENDING"
	OrderSuccess OrderStatus = "SUCCESS"
	OrderFailed  OrderStatus = "FAILED"
)

func (s OrderStatus) IsTerminal() bool {
	return s == OrderSuccess || s == OrderFailed
}

func (s OrderStatus) Valid() bool {
	return s == OrderPending || s.IsTerminal()
}

// TransitionSource records which reconciliation path produced a terminal write.
type TransitionSource string

const (
	SourceAPI     TransitionSource = "api"
	SourceWebhook TransitionSource = "webhook"
)

type Order struct {
	OrderID string `json:"order_id"`

	BaseAmount  decimal.Decimal `json:"base_amount"`
	PlatformFee decimal.Decimal `json:"platform_fee"`
	GatewayFee  decimal.Decimal `json:"gateway_fee"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	Currency    string          `json:"currency"`

	Status OrderStatus `json:"status"`

	CustomerID    string `json:"customer_id"`
	CustomerName  string `json:"customer_name"`
	CustomerEmail string `json:"customer_email"`
	CustomerPhone string `json:"customer_phone"`

	EventID   *string `json:"event_id"`
	EventName *string `json:"event_name"`

	PaymentID     string `json:"payment_id,omitempty"`
	FailureReason string `json:"failure_reason,omitempty"`

	CreatedAt time.Time  `json:"created_at"`
	PaidAt    *time.Time `json:"paid_at,omitempty"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`

	VerifiedByAPI   bool `json:"verified_by_api"`
	WebhookReceived bool `json:"webhook_received"`
}

// Validate checks the exactly-one status invariant and the write-once fields.
// Store adapters call it on every decoded document.
func (o *Order) Validate() error {
	if o.OrderID == "" {
		return fmt.Errorf("%w: empty order id", status.ErrInvalidOrder)
	}
	if !o.Status.Valid() {
		return fmt.Errorf("%w: unknown status %q", status.ErrInvalidOrder, o.Status)
	}
	if o.BaseAmount.IsNegative() || o.TotalAmount.IsNegative() {
		return fmt.Errorf("%w: negative amount", status.ErrInvalidOrder)
	}

	switch o.Status {
	case OrderPending:
		if o.PaymentID != "" || o.FailureReason != "" {
			return fmt.Errorf("%w: pending order %s carries a terminal field", status.ErrInvalidOrder, o.OrderID)
		}
	case OrderSuccess:
		if o.PaymentID == "" {
			return fmt.Errorf("%w: successful order %s has no payment id", status.ErrInvalidOrder, o.OrderID)
		}
	case OrderFailed:
		if o.FailureReason == "" {
			return fmt.Errorf("%w: failed order %s has no failure reason", status.ErrInvalidOrder, o.OrderID)
		}
	}

	return nil
}

// Transition is the single terminal write applied to a pending order.
type Transition struct {
	Status        OrderStatus
	PaymentID     string
	FailureReason string
	At            time.Time
	Source        TransitionSource
}

func (t Transition) Validate() error {
	switch t.Status {
	case OrderSuccess:
		if t.PaymentID == "" {
			return fmt.Errorf("%w: success transition without payment id", status.ErrInvalidRequest)
		}
	case OrderFailed:
		if t.FailureReason == "" {
			return fmt.Errorf("%w: failed transition without reason", status.ErrInvalidRequest)
		}
	default:
		return fmt.Errorf("%w: transition to %q", status.ErrInvalidRequest, t.Status)
	}
	if t.Source != SourceAPI && t.Source != SourceWebhook {
		return fmt.Errorf("%w: unknown transition source %q", status.ErrInvalidRequest, t.Source)
	}
	return nil
}

// Apply writes the transition onto a pending order.
func (o *Order) Apply(t Transition) {
	at := t.At
	o.Status = t.Status
	switch t.Status {
	case OrderSuccess:
		o.PaymentID = t.PaymentID
		o.PaidAt = &at
	case OrderFailed:
		o.FailureReason = t.FailureReason
	}
	o.UpdatedAt = &at
	o.MarkSource(t.Source)
}

func (o *Order) MarkSource(src TransitionSource) {
	switch src {
	case SourceAPI:
		o.VerifiedByAPI = true
	case SourceWebhook:
		o.WebhookReceived = true
	}
}

type CreateOrderRequest struct {
	Amount        decimal.Decimal `json:"amount"`
	CustomerID    string          `json:"customerId"`
	CustomerPhone string          `json:"customerPhone"`
	CustomerName  string          `json:"customerName"`
	CustomerEmail string          `json:"customerEmail"`
	EventName     *string         `json:"eventName"`
	EventID       *string         `json:"eventId"`
}

func (r *CreateOrderRequest) Validate() error {
	var missing []string
	if r.CustomerID == "" {
		missing = append(missing, "customerId")
	}
	if r.CustomerPhone == "" {
		missing = append(missing, "customerPhone")
	}
	if r.CustomerName == "" {
		missing = append(missing, "customerName")
	}
	if r.CustomerEmail == "" {
		missing = append(missing, "customerEmail")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing required fields: %s", status.ErrInvalidRequest, strings.Join(missing, ", "))
	}

	if err := validation.Validate(r.CustomerEmail, is.EmailFormat); err != nil {
		return fmt.Errorf("%w: invalid customerEmail", status.ErrInvalidRequest)
	}
	if !r.Amount.IsPositive() {
		return fmt.Errorf("%w: amount must be greater than zero", status.ErrInvalidRequest)
	}

	return nil
}

// StringPtr returns nil for an empty string.
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
