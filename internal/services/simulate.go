package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"ticket-checkout/internal/webhook"
)

// SimulateWebhook builds a gateway callback for orderID, signs it with the
// configured secret and feeds it through HandleWebhook. It backs the opt-in
// simulator route.
func (s *OrderService) SimulateWebhook(ctx context.Context, orderID string, success bool) error {
	now := s.now()

	eventType := webhook.PaymentFailed
	payment := map[string]any{
		"cf_payment_id":   fmt.Sprintf("sim_%d", now.UnixNano()),
		"payment_status":  "FAILED",
		"payment_message": "simulated failure",
		"payment_time":    now.Format(time.RFC3339),
	}
	if success {
		eventType = webhook.PaymentSuccess
		payment["payment_status"] = "SUCCESS"
		payment["payment_message"] = "simulated success"
	}

	body, err := json.Marshal(map[string]any{
		"type":       eventType,
		"event_time": now.Format(time.RFC3339),
		"data": map[string]any{
			"order":   map[string]any{"order_id": orderID},
			"payment": payment,
		},
	})
	if err != nil {
		return fmt.Errorf("SimulateWebhook: json.Marshal: %v", err)
	}

	ts := strconv.FormatInt(now.Unix(), 10)
	return s.HandleWebhook(ctx, body, ts, webhook.Sign(s.cfg.WebhookSecret, ts, body))
}
