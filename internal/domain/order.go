package domain

import "time"

type OrderSide string

const (
	OrderSideBuy  OrderSide = "buy"
	OrderSideSell OrderSide = "sell"
)

type OrderType string

const (
	OrderTypeMarket    OrderType = "market"
	OrderTypeLimit     OrderType = "limit"
	OrderTypeStop      OrderType = "stop"
	OrderTypeStopLimit OrderType = "stop_limit"
	OrderTypeBid       OrderType = "bid"
)

type OrderStatus string

const (
	OrderStatusPending         OrderStatus = "pending"
	OrderStatusActive          OrderStatus = "active"
	OrderStatusPartiallyFilled OrderStatus = "partially_filled"
	OrderStatusFilled          OrderStatus = "filled"
	OrderStatusCancelled       OrderStatus = "cancelled"
	OrderStatusExpired         OrderStatus = "expired"

	// OrderStatusCompleted is the caller-facing synonym for filled. Both
	// names refer to the same terminal bucket; the stored value is "filled".
	OrderStatusCompleted = OrderStatusFilled
)

// TradingOrder is a trading-order record in the cooperative's order ledger.
// Quantity/value splits are derived: remaining and the three value fields
// are always recomputed from quantity, filled_quantity and price_per_unit.
type TradingOrder struct {
	Number       string `json:"order_number"`
	Trader       string `json:"trader"`
	Pool         string `json:"pool,omitempty"`
	Counterparty string `json:"counterparty,omitempty"`

	Side OrderSide `json:"side"`
	Type OrderType `json:"order_type"`

	Quantity          float64 `json:"quantity"`
	FilledQuantity    float64 `json:"filled_quantity"`
	RemainingQuantity float64 `json:"remaining_quantity"`

	PricePerUnit   float64 `json:"price_per_unit"`
	TotalValue     float64 `json:"total_value"`
	FilledValue    float64 `json:"filled_value"`
	RemainingValue float64 `json:"remaining_value"`
	Currency       string  `json:"currency"`

	ValidFrom     *time.Time `json:"valid_from,omitempty"`
	ValidUntil    *time.Time `json:"valid_until,omitempty"`
	ExecutionTime *time.Time `json:"execution_time,omitempty"`
	ExpiryTime    *time.Time `json:"expiry_time,omitempty"`

	Status OrderStatus `json:"status"`

	// External annotations. Approval/execution happen outside this core;
	// ApprovedBy only influences whether a zero-fill order reports active.
	ApprovedBy string `json:"approved_by,omitempty"`
	ExecutedBy string `json:"executed_by,omitempty"`

	// Opaque side channels, passed through unchanged.
	Tags       map[string]any `json:"tags,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Conditions map[string]any `json:"order_conditions,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsTerminal reports whether the order can accept no further fills.
func (o *TradingOrder) IsTerminal() bool {
	switch o.Status {
	case OrderStatusFilled, OrderStatusCancelled, OrderStatusExpired:
		return true
	}
	return false
}

// Recalculate rederives remaining quantity and all value fields from the
// source-of-truth triple (quantity, filled_quantity, price_per_unit).
func (o *TradingOrder) Recalculate() {
	o.RemainingQuantity = o.Quantity - o.FilledQuantity
	o.TotalValue = o.Quantity * o.PricePerUnit
	o.FilledValue = o.FilledQuantity * o.PricePerUnit
	o.RemainingValue = o.RemainingQuantity * o.PricePerUnit
}

// DeriveStatus applies the fill-ratio status rule. Cancelled and expired
// are sticky and never overridden by fill arithmetic.
func (o *TradingOrder) DeriveStatus() OrderStatus {
	switch o.Status {
	case OrderStatusCancelled, OrderStatusExpired:
		return o.Status
	}
	switch {
	case o.FilledQuantity <= Epsilon:
		if o.ApprovedBy != "" {
			return OrderStatusActive
		}
		return OrderStatusPending
	case o.FilledQuantity >= o.Quantity-Epsilon:
		return OrderStatusFilled
	default:
		return OrderStatusPartiallyFilled
	}
}

func ValidOrderSide(s OrderSide) bool {
	return s == OrderSideBuy || s == OrderSideSell
}

func ValidOrderType(t OrderType) bool {
	switch t {
	case OrderTypeMarket, OrderTypeLimit, OrderTypeStop, OrderTypeStopLimit, OrderTypeBid:
		return true
	}
	return false
}
