package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"ticket-checkout/internal/status"
	"ticket-checkout/models"
	"ticket-checkout/monitoring"
)

// Verifier resolves the current status of an order.
type Verifier interface {
	Verify(ctx context.Context, orderID string) (models.OrderStatus, error)
}

type PollOutcome string

const (
	PollSucceeded PollOutcome = "succeeded"
	PollFailed    PollOutcome = "failed"

	// PollTimedOut is not a payment failure; the order is still PENDING.
	PollTimedOut PollOutcome = "timed_out"

	PollNotFound PollOutcome = "not_found"
	PollCanceled PollOutcome = "canceled"
)

type PollResult struct {
	OrderID  string
	Outcome  PollOutcome
	Status   models.OrderStatus
	Attempts int
	LastErr  error
}

// Message is the text shown to the buyer.
func (r PollResult) Message() string {
	switch r.Outcome {
	case PollSucceeded:
		return "Payment successful. Your tickets are confirmed."
	case PollFailed:
		return "Payment failed. You have not been charged for this order."
	case PollNotFound:
		return "We could not find this order."
	default:
		return "Processing is taking longer than expected. We will update your booking once the payment is confirmed."
	}
}

type StatusPoller struct {
	verifier    Verifier
	maxAttempts int
	interval    time.Duration
	logger      *slog.Logger
}

func NewStatusPoller(v Verifier, maxAttempts int, interval time.Duration, logger *slog.Logger) *StatusPoller {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &StatusPoller{verifier: v, maxAttempts: maxAttempts, interval: interval, logger: logger}
}

// Poll verifies orderID until it is terminal, the attempt budget runs out or
// ctx is done. Verification errors count as a pending attempt.
func (p *StatusPoller) Poll(ctx context.Context, orderID string) PollResult {
	res := PollResult{OrderID: orderID, Status: models.OrderPending}
	defer func() { monitoring.TrackPollOutcome(string(res.Outcome)) }()

	for attempt := 1; attempt <= p.maxAttempts; attempt++ {
		res.Attempts = attempt

		st, err := p.verifier.Verify(ctx, orderID)
		switch {
		case errors.Is(err, status.ErrOrderNotFound):
			res.Outcome = PollNotFound
			res.LastErr = err
			return res
		case err != nil:
			res.LastErr = err
			p.logger.Warn("verify attempt failed", "order_id", orderID, "attempt", attempt, "error", err)
		case st == models.OrderSuccess:
			res.Status, res.Outcome = st, PollSucceeded
			return res
		case st == models.OrderFailed:
			res.Status, res.Outcome = st, PollFailed
			return res
		}

		if attempt == p.maxAttempts {
			break
		}

		select {
		case <-ctx.Done():
			res.Outcome = PollCanceled
			res.LastErr = ctx.Err()
			return res
		case <-time.After(p.interval):
		}
	}

	res.Outcome = PollTimedOut
	return res
}

// HTTPVerifier calls the verify endpoint of a running checkout service.
type HTTPVerifier struct {
	baseURL string
	hc      *http.Client
}

func NewHTTPVerifier(baseURL string, timeout time.Duration) *HTTPVerifier {
	return &HTTPVerifier{
		baseURL: strings.TrimRight(baseURL, "/"),
		hc:      &http.Client{Timeout: timeout},
	}
}

func (v *HTTPVerifier) Verify(ctx context.Context, orderID string) (models.OrderStatus, error) {
	u := v.baseURL + "/api/orders/verify?order_id=" + url.QueryEscape(orderID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return "", fmt.Errorf("Verify: http.NewReq: %v", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := v.hc.Do(req)
	if err != nil {
		return "", fmt.Errorf("Verify: hc.Do: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return "", status.ErrOrderNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("Verify: unexpected status %d", resp.StatusCode)
	}

	var body struct {
		Status models.OrderStatus `json:"status"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("Verify: decode: %v", err)
	}
	if !body.Status.Valid() {
		return "", fmt.Errorf("Verify: unknown status %q", body.Status)
	}
	return body.Status, nil
}
