// Package pricing computes the buyer-facing fee breakdown of a ticket order.
package pricing

import (
	"ticket-checkout/internal/status"

	"github.com/shopspring/decimal"
)

var (
	// PlatformRate is the platform commission on the base price.
	PlatformRate = decimal.RequireFromString("0.02")
	// GatewayRate is the gateway's cut of the gross charge.
	GatewayRate = decimal.RequireFromString("0.02")
)

type Breakdown struct {
	BaseAmount  decimal.Decimal `json:"base_amount"`
	PlatformFee decimal.Decimal `json:"platform_fee"`
	GatewayFee  decimal.Decimal `json:"gateway_fee"`
	TotalAmount decimal.Decimal `json:"total_amount"`
}

// ComputeBreakdown grosses up base so that, after the gateway takes its rate of
// the total, the platform still nets its fee. The gateway fee is the residual,
// so base + platform + gateway always equals total exactly.
func ComputeBreakdown(base decimal.Decimal) (Breakdown, error) {
	if base.IsNegative() {
		return Breakdown{}, status.ErrNegativeAmount
	}
	if base.IsZero() {
		return Breakdown{
			BaseAmount:  decimal.Zero,
			PlatformFee: decimal.Zero,
			GatewayFee:  decimal.Zero,
			TotalAmount: decimal.Zero,
		}, nil
	}

	base = base.Round(2)
	one := decimal.NewFromInt(1)
	total := base.Mul(one.Add(PlatformRate)).Div(one.Sub(GatewayRate)).Round(2)
	platform := base.Mul(PlatformRate).Round(2)
	gateway := total.Sub(base).Sub(platform)

	return Breakdown{
		BaseAmount:  base,
		PlatformFee: platform,
		GatewayFee:  gateway,
		TotalAmount: total,
	}, nil
}
