// sim/fills.go
package sim

import (
	"sync"
	"time"

	"battery_dispatch_go/logs"
	"battery_dispatch_go/market"
)

// StatusUpdater is the slice of the execution engine the fill simulator
// needs: the single public status-update entry point.
type StatusUpdater interface {
	UpdateOrderStatus(orderID string, newStatus market.OrderStatus, filledVolumeMWh float64)
}

// PendingOrder is a submitted order awaiting a simulated fill.
type PendingOrder struct {
	Product       string
	DeliveryStart time.Time
	DeliveryEnd   time.Time
	Side          market.OrderSide
	VolumeMWh     float64
	PriceEURMWh   float64
	Filled        bool
}

// FillEngine evaluates pending orders against a historical price series and
// emulates fills, cancellations and expiries by driving the execution
// engine's status-update entry point. Backtest only; it never talks to a
// live venue.
type FillEngine struct {
	engine StatusUpdater

	mu      sync.Mutex
	pending map[string]*PendingOrder
}

// NewFillEngine creates a fill simulator wired to the given engine.
func NewFillEngine(engine StatusUpdater) *FillEngine {
	return &FillEngine{
		engine:  engine,
		pending: make(map[string]*PendingOrder),
	}
}

// RegisterOrder stores a submitted order for simulated fills. Call it
// immediately after a Submit that returned a working status.
func (f *FillEngine) RegisterOrder(orderID, product string, deliveryStart, deliveryEnd time.Time, side market.OrderSide, volumeMWh, priceEURMWh float64) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.pending[orderID] = &PendingOrder{
		Product:       product,
		DeliveryStart: deliveryStart,
		DeliveryEnd:   deliveryEnd,
		Side:          side,
		VolumeMWh:     volumeMWh,
		PriceEURMWh:   priceEURMWh,
	}
	logs.Debugf("[Sim] Registered order %s: %s %.2f MWh @ %.2f EUR/MWh", orderID, side, volumeMWh, priceEURMWh)
}

// CheckFills scans pending orders against the price table and fills the ones
// whose limit crosses the market price for their delivery slot.
//
// A BUY fills when market <= limit; a SELL fills when market >= limit.
// Orders whose delivery has not started by currentTime are skipped (a zero
// currentTime disables the gate), as are slots absent from the table.
// Returns the ids of the newly filled orders.
func (f *FillEngine) CheckFills(prices *PriceTable, currentTime time.Time) []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	var filled []string
	for orderID, order := range f.pending {
		if order.Filled {
			continue
		}
		if !currentTime.IsZero() && currentTime.Before(order.DeliveryStart) {
			continue
		}

		y, mo, d := order.DeliveryStart.Date()
		deliveryDay := time.Date(y, mo, d, 0, 0, 0, 0, order.DeliveryStart.Location())
		marketPrice, ok := prices.Lookup(deliveryDay, order.DeliveryStart.Hour())
		if !ok {
			logs.Debugf("[Sim] No market data for order %s delivery %s H%d",
				orderID, deliveryDay.Format("2006-01-02"), order.DeliveryStart.Hour())
			continue
		}

		shouldFill := false
		switch order.Side {
		case market.Buy:
			shouldFill = marketPrice <= order.PriceEURMWh
		case market.Sell:
			shouldFill = marketPrice >= order.PriceEURMWh
		}
		if !shouldFill {
			continue
		}

		logs.Infof("[Sim] %s order %s fills: market %.2f vs limit %.2f", order.Side, orderID, marketPrice, order.PriceEURMWh)
		f.engine.UpdateOrderStatus(orderID, market.Filled, order.VolumeMWh)
		order.Filled = true
		filled = append(filled, orderID)
	}

	for _, orderID := range filled {
		delete(f.pending, orderID)
	}
	return filled
}

// CancelOrder cancels one pending order through the engine. Returns whether
// the order was tracked.
func (f *FillEngine) CancelOrder(orderID string) bool {
	f.mu.Lock()
	_, ok := f.pending[orderID]
	if ok {
		delete(f.pending, orderID)
	}
	f.mu.Unlock()

	if !ok {
		return false
	}

	f.engine.UpdateOrderStatus(orderID, market.Cancelled, 0)
	logs.Infof("[Sim] Order %s cancelled", orderID)
	return true
}

// CancelAllPending cancels every currently pending order and returns the count.
func (f *FillEngine) CancelAllPending() int {
	f.mu.Lock()
	ids := make([]string, 0, len(f.pending))
	for orderID := range f.pending {
		ids = append(ids, orderID)
	}
	f.mu.Unlock()

	count := 0
	for _, orderID := range ids {
		if f.CancelOrder(orderID) {
			count++
		}
	}
	return count
}

// ExpireOldOrders expires pending orders whose delivery ended more than
// expiryHours before currentTime. Returns the expired order ids.
func (f *FillEngine) ExpireOldOrders(currentTime time.Time, expiryHours int) []string {
	f.mu.Lock()
	var expired []string
	for orderID, order := range f.pending {
		hoursSinceDelivery := currentTime.Sub(order.DeliveryEnd).Hours()
		if hoursSinceDelivery > float64(expiryHours) {
			expired = append(expired, orderID)
		}
	}
	for _, orderID := range expired {
		delete(f.pending, orderID)
	}
	f.mu.Unlock()

	for _, orderID := range expired {
		f.engine.UpdateOrderStatus(orderID, market.Expired, 0)
		logs.Infof("[Sim] Order %s expired (>%dh past delivery)", orderID, expiryHours)
	}
	return expired
}

// GetPendingOrders returns a snapshot copy of the pending orders.
func (f *FillEngine) GetPendingOrders() map[string]PendingOrder {
	f.mu.Lock()
	defer f.mu.Unlock()

	snapshot := make(map[string]PendingOrder, len(f.pending))
	for id, order := range f.pending {
		snapshot[id] = *order
	}
	return snapshot
}
