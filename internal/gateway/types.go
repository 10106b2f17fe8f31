package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
)

// Gateway is what the order service needs from the payment provider.
type Gateway interface {
	// CreateOrder registers a remote order and returns its checkout session.
	CreateOrder(ctx context.Context, in *CreateOrderInput) (*CheckoutSession, error)

	// ListPayments returns every payment attempt made against the order.
	ListPayments(ctx context.Context, orderID string) ([]PaymentAttempt, error)
}

type CreateOrderInput struct {
	OrderID       string
	Amount        decimal.Decimal
	Currency      string
	CustomerID    string
	CustomerName  string
	CustomerEmail string
	CustomerPhone string
	EventID       *string
	EventName     *string
	ReturnURL     string
}

// CheckoutSession carries the gateway's create-order response verbatim plus
// the token the browser needs to open checkout.
type CheckoutSession struct {
	OrderID          string
	PaymentSessionID string
	Raw              json.RawMessage
}

type PaymentOutcome string

const (
	OutcomeSuccess      PaymentOutcome = "SUCCESS"
	OutcomeFailed       PaymentOutcome = "FAILED"
	OutcomePending      PaymentOutcome = "PENDING"
	OutcomeUserDropped  PaymentOutcome = "USER_DROPPED"
	OutcomeCancelled    PaymentOutcome = "CANCELLED"
	OutcomeNotAttempted PaymentOutcome = "NOT_ATTEMPTED"
)

type PaymentAttempt struct {
	PaymentID   ID              `json:"cf_payment_id"`
	OrderID     string          `json:"order_id"`
	Status      PaymentOutcome  `json:"payment_status"`
	Message     string          `json:"payment_message"`
	Amount      decimal.Decimal `json:"payment_amount"`
	PaymentTime string          `json:"payment_time"`
}

// ID accepts identifiers the gateway sends either as JSON strings or numbers.
type ID string

func (id *ID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*id = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("payment id: %w", err)
	}
	*id = ID(n.String())
	return nil
}

func (id ID) String() string {
	return string(id)
}
