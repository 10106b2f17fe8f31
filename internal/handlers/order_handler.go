package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"ticket-checkout/internal/services"
	"ticket-checkout/internal/status"
	"ticket-checkout/internal/webhook"
	"ticket-checkout/models"

	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"
)

// maxWebhookBody bounds how much of a callback body is read.
const maxWebhookBody = 1 << 20

type OrderService interface {
	CreateOrder(ctx context.Context, req *models.CreateOrderRequest) (*services.CreateOrderResult, error)
	Verify(ctx context.Context, orderID string) (models.OrderStatus, error)
	GetOrder(ctx context.Context, orderID string) (*models.Order, error)
	HandleWebhook(ctx context.Context, rawBody []byte, timestamp, signature string) error
	SimulateWebhook(ctx context.Context, orderID string, success bool) error
}

type OrderHandler struct {
	orders OrderService
	logger *slog.Logger
}

func NewOrderHandler(orders OrderService, logger *slog.Logger) *OrderHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &OrderHandler{orders: orders, logger: logger}
}

// CreateOrder - POST /api/orders
func (h *OrderHandler) CreateOrder(e *core.RequestEvent) error {
	var req models.CreateOrderRequest
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request body", err)
	}

	res, err := h.orders.CreateOrder(e.Request.Context(), &req)
	if err != nil {
		h.logger.Error("h.orders.CreateOrder()", "customer_id", req.CustomerID, "error", err)
		return toAPIError(err)
	}

	// The gateway payload goes back untouched; only our own keys are added.
	payload := map[string]json.RawMessage{}
	if err := json.Unmarshal(res.Session.Raw, &payload); err != nil {
		h.logger.Error("gateway payload is not a JSON object", "order_id", res.OrderID, "error", err)
		return apis.NewInternalServerError("Unexpected gateway response", nil)
	}
	if _, ok := payload["order_id"]; !ok {
		payload["order_id"], _ = json.Marshal(res.OrderID)
	}
	payload["breakdown"], _ = json.Marshal(res.Breakdown)

	return e.JSON(http.StatusOK, payload)
}

// VerifyOrder - GET /api/orders/verify?order_id=
func (h *OrderHandler) VerifyOrder(e *core.RequestEvent) error {
	orderID := e.Request.URL.Query().Get("order_id")
	if orderID == "" {
		return apis.NewBadRequestError("order_id is required", nil)
	}

	st, err := h.orders.Verify(e.Request.Context(), orderID)
	if err != nil {
		if !errors.Is(err, status.ErrOrderNotFound) {
			h.logger.Error("h.orders.Verify()", "order_id", orderID, "error", err)
		}
		return toAPIError(err)
	}

	return e.JSON(http.StatusOK, map[string]any{
		"status":   st,
		"order_id": orderID,
	})
}

// GetOrder - GET /api/orders/{orderId}
func (h *OrderHandler) GetOrder(e *core.RequestEvent) error {
	orderID := e.Request.PathValue("orderId")

	order, err := h.orders.GetOrder(e.Request.Context(), orderID)
	if err != nil {
		return toAPIError(err)
	}
	return e.JSON(http.StatusOK, order)
}

// Webhook - POST /api/payments/webhook
func (h *OrderHandler) Webhook(e *core.RequestEvent) error {
	body, err := io.ReadAll(io.LimitReader(e.Request.Body, maxWebhookBody))
	if err != nil {
		return apis.NewBadRequestError("Could not read body", nil)
	}

	err = h.orders.HandleWebhook(
		e.Request.Context(),
		body,
		e.Request.Header.Get(webhook.HeaderTimestamp),
		e.Request.Header.Get(webhook.HeaderSignature),
	)
	if err != nil {
		if !errors.Is(err, status.ErrInvalidSignature) && !errors.Is(err, status.ErrMissingSignature) {
			h.logger.Error("h.orders.HandleWebhook()", "error", err)
		}
		return toAPIError(err)
	}

	return e.JSON(http.StatusOK, map[string]any{"status": "ok"})
}

type simulateWebhookRequest struct {
	OrderID string `json:"order_id"`
	Status  string `json:"status"`
}

// SimulateWebhook - POST /api/test/simulate-webhook (development only)
func (h *OrderHandler) SimulateWebhook(e *core.RequestEvent) error {
	var req simulateWebhookRequest
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}
	if req.OrderID == "" {
		return apis.NewBadRequestError("order_id is required", nil)
	}

	var success bool
	switch models.OrderStatus(req.Status) {
	case models.OrderSuccess:
		success = true
	case models.OrderFailed:
	default:
		return apis.NewBadRequestError("status must be SUCCESS or FAILED", nil)
	}

	if err := h.orders.SimulateWebhook(e.Request.Context(), req.OrderID, success); err != nil {
		return toAPIError(err)
	}
	return e.JSON(http.StatusOK, map[string]any{"message": "Webhook simulation sent"})
}

func toAPIError(err error) error {
	switch {
	case errors.Is(err, status.ErrInvalidRequest),
		errors.Is(err, status.ErrMissingSignature),
		errors.Is(err, status.ErrMalformedEvent):
		return apis.NewBadRequestError(err.Error(), nil)
	case errors.Is(err, status.ErrInvalidSignature):
		return apis.NewUnauthorizedError("Invalid signature", nil)
	case errors.Is(err, status.ErrOrderNotFound):
		return apis.NewNotFoundError("Order not found", nil)
	case errors.Is(err, status.ErrGatewayUnavailable):
		return apis.NewApiError(http.StatusServiceUnavailable, "Payment gateway unavailable, try again shortly", nil)
	case errors.Is(err, status.ErrGateway):
		return apis.NewApiError(http.StatusBadGateway, "Payment gateway rejected the order", nil)
	default:
		return apis.NewInternalServerError("Internal error", nil)
	}
}
