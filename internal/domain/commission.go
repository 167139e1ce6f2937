package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Commission is the platform's cut of an order, computed once when the order
// first becomes paid, with the rate in effect at that moment. Never
// recomputed retroactively.
type Commission struct {
	OrderID      string          `json:"order_id"`
	Rate         decimal.Decimal `json:"rate"`
	PlatformFee  decimal.Decimal `json:"platform_fee"`
	SellerPayout decimal.Decimal `json:"seller_payout"`
	CreatedAt    time.Time       `json:"created_at"`
}

// ComputeCommission splits a total into platform fee and seller payout. The
// fee is rounded to 2 decimal places first and the payout is the remainder,
// so fee + payout always equals the total exactly.
func ComputeCommission(total, rate decimal.Decimal) (fee, payout decimal.Decimal) {
	fee = total.Mul(rate).Round(2)
	payout = total.Sub(fee)
	return fee, payout
}
