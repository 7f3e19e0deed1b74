// monitor/order_monitor.go
package monitor

import (
	"fmt"
	"sync"
	"time"

	"battery_dispatch_go/logs"
	"battery_dispatch_go/market"
)

// OrderInfo is the per-order record tracked by the monitor.
type OrderInfo struct {
	OrderID            string
	Side               market.OrderSide
	VolumeMWh          float64
	PriceEURMWh        float64
	Status             market.OrderStatus
	ReservationID      string
	FilledVolumeMWh    float64
	RemainingVolumeMWh float64
	LastUpdate         time.Time
}

// IsTerminal reports whether the order has reached a terminal state.
func (o *OrderInfo) IsTerminal() bool {
	return o.Status.IsTerminal()
}

// EventHandler receives fill and cancellation events detected by the monitor.
// The execution engine implements it and is injected at construction.
type EventHandler interface {
	// OnOrderFilled is called for every detected fill with the newly filled
	// volume (not the running total).
	OnOrderFilled(orderID string, newlyFilledMWh float64, side market.OrderSide) error

	// OnOrderCancelled is called when an order ends as CANCELLED or EXPIRED.
	OnOrderCancelled(orderID string) error
}

// OrderMonitor owns the per-order state machine. It detects fills and
// terminal transitions from status updates and fans them out to the handler.
//
// Handler failures are logged and swallowed: a misbehaving handler must never
// leave a terminal order stuck in the tracking table.
type OrderMonitor struct {
	mu      sync.Mutex
	tracked map[string]*OrderInfo
	handler EventHandler
	clock   func() time.Time
}

// NewOrderMonitor creates an order monitor with the given event handler.
func NewOrderMonitor(handler EventHandler) *OrderMonitor {
	return &OrderMonitor{
		tracked: make(map[string]*OrderInfo),
		handler: handler,
		clock:   time.Now,
	}
}

// TrackOrder starts tracking an order. An already-tracked order id is an
// error; the existing record is never silently overwritten.
func (m *OrderMonitor) TrackOrder(orderID string, side market.OrderSide, volumeMWh, priceEURMWh float64, status market.OrderStatus, reservationID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.tracked[orderID]; exists {
		return fmt.Errorf("order %s is already tracked", orderID)
	}

	m.tracked[orderID] = &OrderInfo{
		OrderID:            orderID,
		Side:               side,
		VolumeMWh:          volumeMWh,
		PriceEURMWh:        priceEURMWh,
		Status:             status,
		ReservationID:      reservationID,
		FilledVolumeMWh:    0,
		RemainingVolumeMWh: volumeMWh,
		LastUpdate:         m.clock(),
	}

	logs.Debugf("[Monitor] Started tracking order %s: %s", orderID, status)
	return nil
}

// UpdateOrderStatus advances an order's state machine and triggers callbacks.
//
// filledVolumeMWh is the running total reported by the venue; pass 0 when the
// update carries no fill information (filled volume is monotonic, so a total
// at or below the previous one never fires the fill callback). Updates for
// untracked ids are logged and ignored.
func (m *OrderMonitor) UpdateOrderStatus(orderID string, newStatus market.OrderStatus, filledVolumeMWh float64) {
	m.mu.Lock()

	order, ok := m.tracked[orderID]
	if !ok {
		m.mu.Unlock()
		logs.Warnf("[Monitor] Order %s not tracked - ignoring update to %s", orderID, newStatus)
		return
	}

	oldStatus := order.Status
	order.Status = newStatus
	order.LastUpdate = m.clock()

	var newlyFilled float64
	if filledVolumeMWh > order.FilledVolumeMWh {
		newlyFilled = filledVolumeMWh - order.FilledVolumeMWh
		order.FilledVolumeMWh = filledVolumeMWh
		order.RemainingVolumeMWh = order.VolumeMWh - filledVolumeMWh
	}

	terminal := order.IsTerminal()
	if terminal {
		// Removed unconditionally, whatever the callbacks do below.
		delete(m.tracked, orderID)
	}
	side := order.Side
	m.mu.Unlock()

	logs.Debugf("[Monitor] Order %s status: %s -> %s", orderID, oldStatus, newStatus)

	if newlyFilled > 0 {
		logs.Infof("[Monitor] Order %s filled: %.4f MWh", orderID, newlyFilled)
		m.guardedCall(orderID, "fill", func() error {
			return m.handler.OnOrderFilled(orderID, newlyFilled, side)
		})
	}

	if terminal {
		logs.Infof("[Monitor] Order %s terminal: %s", orderID, newStatus)
		switch newStatus {
		case market.Cancelled, market.Expired:
			m.guardedCall(orderID, "cancel", func() error {
				return m.handler.OnOrderCancelled(orderID)
			})
		case market.Rejected:
			// Rejection is handled at submit time, before tracking begins.
		}
		logs.Debugf("[Monitor] Stopped tracking order %s", orderID)
	}
}

// guardedCall invokes a handler callback, logging errors and absorbing
// panics so terminal cleanup always completes.
func (m *OrderMonitor) guardedCall(orderID, kind string, fn func() error) {
	defer func() {
		if r := recover(); r != nil {
			logs.Errorf("[Monitor] %s callback panicked for order %s: %v", kind, orderID, r)
		}
	}()
	if err := fn(); err != nil {
		logs.Errorf("[Monitor] %s callback failed for order %s: %v", kind, orderID, err)
	}
}

// GetActiveOrders returns a snapshot of all tracked orders. The returned map
// holds copies; mutating it cannot touch monitor state.
func (m *OrderMonitor) GetActiveOrders() map[string]OrderInfo {
	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot := make(map[string]OrderInfo, len(m.tracked))
	for id, order := range m.tracked {
		snapshot[id] = *order
	}
	return snapshot
}

// CleanupStaleOrders removes entries with no update for longer than maxAge,
// without invoking callbacks. Returns the number of removed entries.
func (m *OrderMonitor) CleanupStaleOrders(maxAge time.Duration) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.clock()
	var stale []string
	for id, order := range m.tracked {
		if now.Sub(order.LastUpdate) > maxAge {
			stale = append(stale, id)
		}
	}

	for _, id := range stale {
		logs.Warnf("[Monitor] Cleaning up stale order %s", id)
		delete(m.tracked, id)
	}

	return len(stale)
}
