package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderStatusChangedEvent is published after a status transition has been
// committed. Consumers use it for buyer notifications; delivery is
// best-effort and never rolls back the transition.
type OrderStatusChangedEvent struct {
	OrderID        string          `json:"order_id"`
	BuyerID        string          `json:"buyer_id"`
	BuyerPhone     string          `json:"buyer_phone"`
	PreviousStatus OrderStatus     `json:"previous_status"`
	Status         OrderStatus     `json:"status"`
	Total          decimal.Decimal `json:"total"`
	Timestamp      time.Time       `json:"timestamp"`
}
