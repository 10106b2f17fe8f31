package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"ticket-checkout/internal/events"
	"ticket-checkout/internal/gateway"
	"ticket-checkout/internal/pricing"
	"ticket-checkout/internal/status"
	"ticket-checkout/internal/store"
	"ticket-checkout/internal/webhook"
	"ticket-checkout/models"
	"ticket-checkout/monitoring"

	"github.com/google/uuid"
)

type OrderServiceConfig struct {
	Currency string

	// ReturnURLTemplate is where the gateway sends the buyer afterwards.
	// "{order_id}" is replaced with the escaped order id.
	ReturnURLTemplate string

	WebhookSecret string
}

type CreateOrderResult struct {
	OrderID   string
	Breakdown pricing.Breakdown
	Session   *gateway.CheckoutSession

	// Persisted is false when the gateway order exists without a local record.
	Persisted bool
}

type OrderService struct {
	store    store.OrderStore
	gateway  gateway.Gateway
	notifier events.Notifier
	logger   *slog.Logger
	cfg      OrderServiceConfig

	now   func() time.Time
	newID func() string
}

func NewOrderService(orderStore store.OrderStore, gw gateway.Gateway, notifier events.Notifier, logger *slog.Logger, cfg OrderServiceConfig) *OrderService {
	if notifier == nil {
		notifier = events.Nop{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Currency == "" {
		cfg.Currency = "INR"
	}

	return &OrderService{
		store:    orderStore,
		gateway:  gw,
		notifier: notifier,
		logger:   logger,
		cfg:      cfg,
		now:      func() time.Time { return time.Now().UTC() },
		newID:    func() string { return "order_" + uuid.NewString() },
	}
}

// CreateOrder prices the request, records a PENDING order and opens a
// checkout session at the gateway. A failed local write does not stop
// checkout; the order is reported as orphaned instead.
func (s *OrderService) CreateOrder(ctx context.Context, req *models.CreateOrderRequest) (*CreateOrderResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	breakdown, err := pricing.ComputeBreakdown(req.Amount)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", status.ErrInvalidRequest, err)
	}

	// The request amount is what the buyer pays; the breakdown only records
	// how it splits.
	charge := req.Amount.Round(2)

	orderID := s.newID()
	order := &models.Order{
		OrderID:       orderID,
		BaseAmount:    breakdown.BaseAmount,
		PlatformFee:   breakdown.PlatformFee,
		GatewayFee:    breakdown.GatewayFee,
		TotalAmount:   breakdown.TotalAmount,
		Currency:      s.cfg.Currency,
		Status:        models.OrderPending,
		CustomerID:    req.CustomerID,
		CustomerName:  req.CustomerName,
		CustomerEmail: req.CustomerEmail,
		CustomerPhone: req.CustomerPhone,
		EventID:       req.EventID,
		EventName:     req.EventName,
		CreatedAt:     s.now(),
	}

	persisted := true
	if err := s.store.Create(ctx, order); err != nil {
		persisted = false
		s.logger.Error("failed to persist order, continuing to gateway", "order_id", orderID, "error", err)
	}

	session, err := s.gateway.CreateOrder(ctx, &gateway.CreateOrderInput{
		OrderID:       orderID,
		Amount:        charge,
		Currency:      s.cfg.Currency,
		CustomerID:    req.CustomerID,
		CustomerName:  req.CustomerName,
		CustomerEmail: req.CustomerEmail,
		CustomerPhone: req.CustomerPhone,
		EventID:       req.EventID,
		EventName:     req.EventName,
		ReturnURL:     s.returnURL(orderID),
	})
	if err != nil {
		s.logger.Error("gateway rejected order", "order_id", orderID, "error", err)
		return nil, fmt.Errorf("create order %s: %w", orderID, err)
	}

	monitoring.TrackOrderCreated(s.cfg.Currency)
	kind := events.OrderCreated
	if !persisted {
		kind = events.OrderOrphaned
		monitoring.TrackOrderOrphaned()
	}
	s.notify(ctx, events.Event{
		Kind:     kind,
		OrderID:  orderID,
		Status:   string(models.OrderPending),
		Amount:   charge.StringFixed(2),
		Currency: s.cfg.Currency,
		At:       s.now(),
	})

	s.logger.Info("order created", "order_id", orderID, "charge", charge.StringFixed(2), "persisted", persisted)

	return &CreateOrderResult{
		OrderID:   orderID,
		Breakdown: breakdown,
		Session:   session,
		Persisted: persisted,
	}, nil
}

// Verify asks the gateway about a pending order and finalizes it when a
// terminal payment attempt exists. Gateway trouble leaves the order PENDING.
func (s *OrderService) Verify(ctx context.Context, orderID string) (models.OrderStatus, error) {
	order, err := s.store.Get(ctx, orderID)
	if err != nil {
		return "", err
	}
	if order.Status.IsTerminal() {
		return order.Status, nil
	}

	attempts, err := s.gateway.ListPayments(ctx, orderID)
	if err != nil {
		s.logger.Warn("payment lookup failed, order stays pending", "order_id", orderID, "error", err)
		return order.Status, nil
	}

	t, ok := s.transitionFromAttempts(attempts)
	if !ok {
		return order.Status, nil
	}

	finalized, err := s.finalize(ctx, orderID, t)
	if err != nil {
		return "", err
	}
	return finalized.Status, nil
}

func (s *OrderService) transitionFromAttempts(attempts []gateway.PaymentAttempt) (models.Transition, bool) {
	for _, a := range attempts {
		if a.Status == gateway.OutcomeSuccess && a.PaymentID != "" {
			return models.Transition{
				Status:    models.OrderSuccess,
				PaymentID: a.PaymentID.String(),
				At:        s.gatewayTime(a.PaymentTime),
				Source:    models.SourceAPI,
			}, true
		}
	}

	for _, a := range attempts {
		if a.Status == gateway.OutcomeFailed {
			reason := strings.TrimSpace(a.Message)
			if reason == "" {
				reason = "payment failed"
			}
			return models.Transition{
				Status:        models.OrderFailed,
				FailureReason: reason,
				At:            s.now(),
				Source:        models.SourceAPI,
			}, true
		}
	}

	return models.Transition{}, false
}

// HandleWebhook authenticates and applies a gateway callback. The signature
// is checked on the raw body before anything is decoded.
func (s *OrderService) HandleWebhook(ctx context.Context, rawBody []byte, timestamp, signature string) error {
	if err := webhook.Verify(s.cfg.WebhookSecret, timestamp, signature, rawBody); err != nil {
		reason := "invalid_signature"
		if errors.Is(err, status.ErrMissingSignature) {
			reason = "missing_headers"
		}
		monitoring.TrackWebhookRejected(reason)
		s.logger.Warn("webhook rejected", "reason", reason)
		return err
	}

	ev, err := webhook.ParseEvent(rawBody)
	if err != nil {
		monitoring.TrackWebhookRejected("malformed")
		s.logger.Warn("webhook payload could not be parsed", "error", err)
		return err
	}

	t, ok := ev.Transition(s.now())
	if !ok {
		s.logger.Info("webhook ignored", "type", ev.Type, "order_id", ev.OrderID())
		return nil
	}

	if _, err := s.finalize(ctx, ev.OrderID(), t); err != nil {
		if errors.Is(err, status.ErrOrderNotFound) {
			s.logger.Warn("webhook for unknown order", "order_id", ev.OrderID(), "type", ev.Type)
			return nil
		}
		return fmt.Errorf("apply webhook %s for %s: %w", ev.Type, ev.OrderID(), err)
	}
	return nil
}

func (s *OrderService) GetOrder(ctx context.Context, orderID string) (*models.Order, error) {
	return s.store.Get(ctx, orderID)
}

// finalize performs the conditional terminal write shared by both paths.
func (s *OrderService) finalize(ctx context.Context, orderID string, t models.Transition) (*models.Order, error) {
	order, result, err := s.store.Finalize(ctx, orderID, t)
	if err != nil {
		return nil, err
	}
	monitoring.TrackTransition(string(t.Status), string(t.Source), result.String())

	logger := s.logger.With("order_id", orderID, "source", t.Source)
	switch result {
	case store.Applied:
		logger.Info("order finalized", "status", order.Status, "payment_id", order.PaymentID)
		kind := events.OrderSucceeded
		if order.Status == models.OrderFailed {
			kind = events.OrderFailed
		}
		s.notify(ctx, events.Event{
			Kind:          kind,
			OrderID:       orderID,
			Status:        string(order.Status),
			PaymentID:     order.PaymentID,
			FailureReason: order.FailureReason,
			Currency:      order.Currency,
			Source:        string(t.Source),
			At:            t.At,
		})

	case store.AlreadyFinal:
		logger.Debug("order already final", "status", order.Status)

	case store.Conflict:
		monitoring.TrackStatusConflict()
		logger.Warn("conflicting terminal status ignored", "stored", order.Status, "reported", t.Status)
		s.notify(ctx, events.Event{
			Kind:    events.OrderStatusConflict,
			OrderID: orderID,
			Status:  string(order.Status),
			Source:  string(t.Source),
			Error:   fmt.Sprintf("reported %s", t.Status),
			At:      s.now(),
		})
	}

	return order, nil
}

func (s *OrderService) notify(ctx context.Context, ev events.Event) {
	if err := s.notifier.Notify(ctx, ev); err != nil {
		s.logger.Warn("order event not delivered", "kind", ev.Kind, "order_id", ev.OrderID, "error", err)
	}
}

func (s *OrderService) returnURL(orderID string) string {
	return strings.ReplaceAll(s.cfg.ReturnURLTemplate, "{order_id}", url.QueryEscape(orderID))
}

func (s *OrderService) gatewayTime(v string) time.Time {
	if v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			return t.UTC()
		}
	}
	return s.now()
}
