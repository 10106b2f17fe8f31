package status

import "errors"

var (
	ErrOrderNotFound = errors.New("order: order not found")
	ErrOrderExists   = errors.New("order: order already exists")
	ErrInvalidOrder  = errors.New("order: invalid order document")

	ErrNegativeAmount = errors.New("amount: amount must not be negative")
	ErrInvalidRequest = errors.New("request: invalid request")

	ErrGateway            = errors.New("gateway: request failed")
	ErrGatewayUnavailable = errors.New("gateway: circuit breaker is open")

	ErrMissingSignature = errors.New("webhook: missing timestamp or signature header")
	ErrInvalidSignature = errors.New("webhook: signature mismatch")
	ErrMalformedEvent   = errors.New("webhook: malformed event payload")
)
