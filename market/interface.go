package market

import (
	"context"
	"time"
)

// OrderSide defines the order direction (BUY or SELL).
// BUY charges the battery, SELL discharges it.
type OrderSide string

const (
	Buy  OrderSide = "BUY"
	Sell OrderSide = "SELL"
)

// OrderStatus defines the order status as a closed enum. Venue responses are
// parsed into these values; anything else maps to StatusUnknown, which the
// execution engine treats as "the order did not happen".
type OrderStatus string

const (
	Pending   OrderStatus = "PENDING"
	Accepted  OrderStatus = "ACCEPTED"
	Partial   OrderStatus = "PARTIAL"
	Filled    OrderStatus = "FILLED"
	Cancelled OrderStatus = "CANCELLED"
	Rejected  OrderStatus = "REJECTED"
	Expired   OrderStatus = "EXPIRED"

	StatusUnknown OrderStatus = "UNKNOWN"
)

// ParseStatus maps a raw venue status string onto the closed enum.
func ParseStatus(raw string) OrderStatus {
	switch OrderStatus(raw) {
	case Pending, Accepted, Partial, Filled, Cancelled, Rejected, Expired:
		return OrderStatus(raw)
	}
	return StatusUnknown
}

// IsTerminal reports whether no further transitions can occur for the status.
func (s OrderStatus) IsTerminal() bool {
	switch s {
	case Filled, Cancelled, Rejected, Expired:
		return true
	}
	return false
}

// IsWorking reports whether the status holds a live reservation after submit.
func (s OrderStatus) IsWorking() bool {
	switch s {
	case Pending, Accepted, Partial:
		return true
	}
	return false
}

// OrderRequest carries the parameters of a single order submission.
type OrderRequest struct {
	Product       string    `json:"product"`
	DeliveryStart time.Time `json:"delivery_start"`
	DeliveryEnd   time.Time `json:"delivery_end"`
	Side          OrderSide `json:"side"`
	VolumeMWh     float64   `json:"volume_mwh"`
	PriceEURMWh   float64   `json:"price_eur_mwh"`
}

// OrderResponse is the venue's answer to an order submission or status query.
type OrderResponse struct {
	Market      string      `json:"market"`
	OrderID     string      `json:"order_id,omitempty"`
	Status      OrderStatus `json:"status"`
	Reason      string      `json:"reason,omitempty"`
	Side        OrderSide   `json:"side,omitempty"`
	VolumeMWh   float64     `json:"volume_mwh,omitempty"`
	PriceEURMWh float64     `json:"price,omitempty"`
	FilledMWh   float64     `json:"filled_volume_mwh,omitempty"`
}

// Positions summarizes the venue's view of the account.
type Positions struct {
	OpenOrders int                `json:"open_orders"`
	NetMWh     map[string]float64 `json:"net_mwh,omitempty"` // keyed by product
}

// Client defines the interface a venue client needs to implement.
type Client interface {
	// Name returns the venue name, e.g. "PZU" or "BALANCING".
	Name() string

	// Authenticate obtains a session token. Must be called before any
	// order-placing request against a real venue.
	Authenticate(ctx context.Context) error

	// GetDayAheadPrices returns the hourly prices for the given delivery date.
	GetDayAheadPrices(ctx context.Context, deliveryDate time.Time) ([]float64, error)

	// PlaceOrder submits a new order to the venue.
	PlaceOrder(ctx context.Context, req *OrderRequest) (*OrderResponse, error)

	// CancelOrder cancels an active order. Returns whether the venue
	// acknowledged the cancellation.
	CancelOrder(ctx context.Context, orderID string) (bool, error)

	// GetOrderStatus queries the current state of an order.
	GetOrderStatus(ctx context.Context, orderID string) (*OrderResponse, error)

	// GetPositions queries the account's open orders and net positions.
	GetPositions(ctx context.Context) (*Positions, error)
}
