package webhook

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"ticket-checkout/internal/gateway"
	"ticket-checkout/internal/status"
	"ticket-checkout/models"
)

type EventType string

const (
	PaymentSuccess     EventType = "PAYMENT_SUCCESS_WEBHOOK"
	PaymentFailed      EventType = "PAYMENT_FAILED_WEBHOOK"
	PaymentUserDropped EventType = "PAYMENT_USER_DROPPED_WEBHOOK"
)

type Event struct {
	Type      EventType `json:"type"`
	EventTime string    `json:"event_time"`
	Data      EventData `json:"data"`
}

type EventData struct {
	Order struct {
		OrderID string `json:"order_id"`
	} `json:"order"`
	Payment struct {
		PaymentID      gateway.ID             `json:"cf_payment_id"`
		PaymentStatus  gateway.PaymentOutcome `json:"payment_status"`
		PaymentMessage string                 `json:"payment_message"`
		PaymentTime    string                 `json:"payment_time"`
	} `json:"payment"`
	ErrorDetails *struct {
		ErrorCode        string `json:"error_code"`
		ErrorReason      string `json:"error_reason"`
		ErrorDescription string `json:"error_description"`
	} `json:"error_details"`
}

// ParseEvent decodes a webhook body. Callers must verify the signature first.
func ParseEvent(body []byte) (*Event, error) {
	var ev Event
	if err := json.Unmarshal(body, &ev); err != nil {
		return nil, fmt.Errorf("%w: %v", status.ErrMalformedEvent, err)
	}
	if ev.Type == "" {
		return nil, fmt.Errorf("%w: missing type", status.ErrMalformedEvent)
	}
	if ev.Data.Order.OrderID == "" {
		return nil, fmt.Errorf("%w: missing data.order.order_id", status.ErrMalformedEvent)
	}
	return &ev, nil
}

func (e *Event) OrderID() string {
	return e.Data.Order.OrderID
}

// Transition maps the event to the terminal transition it asks for. ok is
// false for event types that do not finalize an order.
func (e *Event) Transition(receivedAt time.Time) (t models.Transition, ok bool) {
	at := receivedAt
	if e.Data.Payment.PaymentTime != "" {
		if parsed, err := time.Parse(time.RFC3339, e.Data.Payment.PaymentTime); err == nil {
			at = parsed.UTC()
		}
	}

	switch e.Type {
	case PaymentSuccess:
		paymentID := e.Data.Payment.PaymentID.String()
		if paymentID == "" {
			return models.Transition{}, false
		}
		return models.Transition{
			Status:    models.OrderSuccess,
			PaymentID: paymentID,
			At:        at,
			Source:    models.SourceWebhook,
		}, true

	case PaymentFailed, PaymentUserDropped:
		return models.Transition{
			Status:        models.OrderFailed,
			FailureReason: e.failureReason(),
			At:            receivedAt,
			Source:        models.SourceWebhook,
		}, true
	}
	return models.Transition{}, false
}

func (e *Event) failureReason() string {
	if d := e.Data.ErrorDetails; d != nil {
		if s := strings.TrimSpace(d.ErrorDescription); s != "" {
			return s
		}
		if s := strings.TrimSpace(d.ErrorReason); s != "" {
			return s
		}
	}
	if s := strings.TrimSpace(e.Data.Payment.PaymentMessage); s != "" {
		return s
	}
	if e.Type == PaymentUserDropped {
		return "user dropped"
	}
	return "payment failed"
}
