// Package store persists orders keyed by order id.
package store

import (
	"context"

	"ticket-checkout/models"
)

// FinalizeResult tells the caller what a conditional terminal write did.
type FinalizeResult int

const (
	// Applied means the order was PENDING and now carries the transition.
	Applied FinalizeResult = iota
	// AlreadyFinal means the order already had the same terminal status; only
	// the caller's provenance flag was recorded.
	AlreadyFinal
	// Conflict means the order already had the opposite terminal status and
	// nothing was written.
	Conflict
)

func (r FinalizeResult) String() string {
	switch r {
	case Applied:
		return "applied"
	case AlreadyFinal:
		return "already_final"
	case Conflict:
		return "conflict"
	default:
		return "unknown"
	}
}

type OrderStore interface {
	// Create stores a new order. Returns status.ErrOrderExists on a duplicate id.
	Create(ctx context.Context, order *models.Order) error

	// Get returns status.ErrOrderNotFound when no order has the id.
	Get(ctx context.Context, orderID string) (*models.Order, error)

	// Finalize atomically moves a PENDING order to the transition's terminal
	// status. The returned order is the stored state after the call.
	Finalize(ctx context.Context, orderID string, t models.Transition) (*models.Order, FinalizeResult, error)
}

// decide applies the compare-and-set rule to an order already read inside the
// store's atomic section. It mutates order and reports whether anything changed.
func decide(order *models.Order, t models.Transition) (FinalizeResult, bool) {
	switch {
	case order.Status == models.OrderPending:
		order.Apply(t)
		return Applied, true

	case order.Status == t.Status:
		before := *order
		order.MarkSource(t.Source)
		changed := before.VerifiedByAPI != order.VerifiedByAPI || before.WebhookReceived != order.WebhookReceived
		return AlreadyFinal, changed

	default:
		return Conflict, false
	}
}
