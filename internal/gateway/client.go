package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"ticket-checkout/internal/status"
	"ticket-checkout/monitoring"

	"golang.org/x/time/rate"
)

const defaultAPIVersion = "2023-08-01"

type ClientConfig struct {
	BaseURL      string
	ClientID     string
	ClientSecret string
	APIVersion   string
	Timeout      time.Duration

	// RatePerSecond caps outbound calls. Zero disables throttling.
	RatePerSecond float64
}

// APIError is a non-2xx answer from the gateway.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("gateway: http %d: %s", e.StatusCode, e.Body)
}

func (e *APIError) Unwrap() error {
	return status.ErrGateway
}

type Client struct {
	// baseURL is the gateway API root, e.g. https://sandbox.cashfree.com/pg.
	baseURL string

	clientID     string
	clientSecret string
	apiVersion   string

	// hc is the http client.
	hc *http.Client

	limiter *rate.Limiter
	breaker *CircuitBreaker
}

// NewClient creates new instance of the gateway client.
func NewClient(c *ClientConfig) *Client {
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	apiVersion := c.APIVersion
	if apiVersion == "" {
		apiVersion = defaultAPIVersion
	}

	limiter := rate.NewLimiter(rate.Inf, 1)
	if c.RatePerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(c.RatePerSecond), int(c.RatePerSecond)+1)
	}

	return &Client{
		baseURL:      strings.TrimRight(c.BaseURL, "/"),
		clientID:     c.ClientID,
		clientSecret: c.ClientSecret,
		apiVersion:   apiVersion,
		hc: &http.Client{
			Timeout: timeout,
		},
		limiter: limiter,
		breaker: NewCircuitBreaker("payment-gateway"),
	}
}

type customerDetails struct {
	CustomerID    string `json:"customer_id"`
	CustomerName  string `json:"customer_name,omitempty"`
	CustomerEmail string `json:"customer_email,omitempty"`
	CustomerPhone string `json:"customer_phone"`
}

type orderMeta struct {
	ReturnURL string `json:"return_url,omitempty"`
}

type createOrderRequest struct {
	OrderID         string            `json:"order_id"`
	OrderAmount     json.Number       `json:"order_amount"`
	OrderCurrency   string            `json:"order_currency"`
	CustomerDetails customerDetails   `json:"customer_details"`
	OrderMeta       orderMeta         `json:"order_meta"`
	OrderNote       string            `json:"order_note,omitempty"`
	OrderTags       map[string]string `json:"order_tags,omitempty"`
}

type createOrderResponse struct {
	OrderID          string `json:"order_id"`
	PaymentSessionID string `json:"payment_session_id"`
}

// CreateOrder registers the order with the gateway. The gateway's JSON answer
// is returned untouched in CheckoutSession.Raw.
func (c *Client) CreateOrder(ctx context.Context, in *CreateOrderInput) (*CheckoutSession, error) {
	body := createOrderRequest{
		OrderID:       in.OrderID,
		OrderAmount:   json.Number(in.Amount.StringFixed(2)),
		OrderCurrency: in.Currency,
		CustomerDetails: customerDetails{
			CustomerID:    in.CustomerID,
			CustomerName:  in.CustomerName,
			CustomerEmail: in.CustomerEmail,
			CustomerPhone: in.CustomerPhone,
		},
		OrderMeta: orderMeta{ReturnURL: in.ReturnURL},
	}
	if in.EventName != nil {
		body.OrderNote = "Tickets for " + *in.EventName
	}
	if in.EventID != nil {
		body.OrderTags = map[string]string{"event_id": *in.EventID}
	}

	raw, err := c.call(ctx, "create_order", http.MethodPost, "/orders", body)
	if err != nil {
		return nil, fmt.Errorf("CreateOrder: %w", err)
	}

	var resp createOrderResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("CreateOrder: decode: %w: %v", status.ErrGateway, err)
	}
	if resp.PaymentSessionID == "" {
		return nil, fmt.Errorf("CreateOrder: %w: response has no payment_session_id", status.ErrGateway)
	}

	return &CheckoutSession{
		OrderID:          in.OrderID,
		PaymentSessionID: resp.PaymentSessionID,
		Raw:              json.RawMessage(raw),
	}, nil
}

// ListPayments fetches the payment attempts recorded for orderID.
func (c *Client) ListPayments(ctx context.Context, orderID string) ([]PaymentAttempt, error) {
	raw, err := c.call(ctx, "list_payments", http.MethodGet, "/orders/"+url.PathEscape(orderID)+"/payments", nil)
	if err != nil {
		return nil, fmt.Errorf("ListPayments: %w", err)
	}

	var attempts []PaymentAttempt
	if err := json.Unmarshal(raw, &attempts); err != nil {
		return nil, fmt.Errorf("ListPayments: decode: %w: %v", status.ErrGateway, err)
	}
	return attempts, nil
}

func (c *Client) call(ctx context.Context, operation, method, path string, payload any) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit: %w", err)
	}

	start := time.Now()
	var raw []byte
	err := c.breaker.Execute(func() error {
		var err error
		raw, err = c.do(ctx, method, path, payload)
		return err
	}, countsAgainstGateway)

	monitoring.TrackGatewayRequest(operation, outcomeLabel(err), time.Since(start))
	return raw, err
}

func (c *Client) do(ctx context.Context, method, path string, payload any) ([]byte, error) {
	var bodyReader io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("json.Marshal: %v", err)
		}
		bodyReader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("http.NewReq: %v", err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("x-client-id", c.clientID)
	req.Header.Set("x-client-secret", c.clientSecret)
	req.Header.Set("x-api-version", c.apiVersion)

	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("hc.Do: %w: %v", status.ErrGateway, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("io.ReadAll: %w: %v", status.ErrGateway, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &APIError{StatusCode: resp.StatusCode, Body: string(raw)}
	}
	return raw, nil
}

// countsAgainstGateway reports whether err should trip the breaker. Rejections
// of our own request (4xx) say nothing about gateway health.
func countsAgainstGateway(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode >= 500 || apiErr.StatusCode == http.StatusTooManyRequests
	}
	return !errors.Is(err, context.Canceled)
}

func outcomeLabel(err error) string {
	var apiErr *APIError
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, status.ErrGatewayUnavailable):
		return "breaker_open"
	case errors.As(err, &apiErr):
		return fmt.Sprintf("http_%d", apiErr.StatusCode)
	default:
		return "error"
	}
}
