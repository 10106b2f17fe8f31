package events

import (
	"context"
	"errors"
	"time"
)

type Kind string

const (
	OrderCreated   Kind = "order.created"
	OrderSucceeded Kind = "order.succeeded"
	OrderFailed    Kind = "order.failed"

	// OrderOrphaned means the gateway holds an order we failed to persist.
	OrderOrphaned Kind = "order.orphaned"

	// OrderStatusConflict means a finalizer reported a terminal status that
	// disagrees with the one already stored.
	OrderStatusConflict Kind = "order.status_conflict"
)

type Event struct {
	Kind          Kind      `json:"kind"`
	OrderID       string    `json:"order_id"`
	Status        string    `json:"status,omitempty"`
	PaymentID     string    `json:"payment_id,omitempty"`
	FailureReason string    `json:"failure_reason,omitempty"`
	Amount        string    `json:"amount,omitempty"`
	Currency      string    `json:"currency,omitempty"`
	Source        string    `json:"source,omitempty"`
	Error         string    `json:"error,omitempty"`
	At            time.Time `json:"at"`
}

// Notifier publishes order lifecycle events. Delivery is best effort; callers
// log a returned error and carry on.
type Notifier interface {
	Notify(ctx context.Context, ev Event) error
}

type Nop struct{}

func (Nop) Notify(context.Context, Event) error { return nil }

// Multi fans an event out to every notifier and joins their errors.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, ev Event) error {
	var errs []error
	for _, n := range m {
		if err := n.Notify(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
