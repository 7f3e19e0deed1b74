// engine/execution.go
package engine

import (
	"context"
	"strings"
	"sync"
	"time"

	"battery_dispatch_go/logs"
	"battery_dispatch_go/market"
	"battery_dispatch_go/monitor"
	"battery_dispatch_go/risk"
)

// Engine orchestrates order submission: it validates and reserves battery
// capacity through the risk manager, places the order with the venue client,
// and wires the order monitor's fill/cancel events back into the ledger.
type Engine struct {
	clients       map[string]market.Client
	risk          *risk.Manager
	monitor       *monitor.OrderMonitor
	submitTimeout time.Duration

	mu sync.Mutex
	// activeOrders maps a venue order id to its reservation id. An entry is
	// removed exactly once: finalized on fill, reversed on cancel/expire.
	activeOrders map[string]string

	onTrade func(orderID string, filledMWh float64, side market.OrderSide)
}

// NewEngine creates an execution engine. The engine registers itself as the
// order monitor's event handler.
func NewEngine(clients map[string]market.Client, riskManager *risk.Manager, submitTimeout time.Duration) *Engine {
	e := &Engine{
		clients:       clients,
		risk:          riskManager,
		submitTimeout: submitTimeout,
		activeOrders:  make(map[string]string),
	}
	e.monitor = monitor.NewOrderMonitor(e)
	return e
}

// Monitor exposes the engine's order monitor for snapshots and stale-order
// cleanup.
func (e *Engine) Monitor() *monitor.OrderMonitor {
	return e.monitor
}

// SetOnTrade registers a callback fired for every detected fill, after the
// ledger has been updated. Used by the orchestrator for trade accounting.
func (e *Engine) SetOnTrade(callback func(orderID string, filledMWh float64, side market.OrderSide)) {
	e.onTrade = callback
}

// Submit validates, reserves and places one order.
//
// A validation failure or an unknown market returns a REJECTED response with
// the reason and makes no reservation. A transport error from the venue
// releases the reservation and is returned to the caller: the reservation
// never outlives a failed submission attempt.
func (e *Engine) Submit(ctx context.Context, marketName string, req *market.OrderRequest) (*market.OrderResponse, error) {
	// Side-effect-free pre-check so limit violations reject before anything
	// else happens.
	if err := e.risk.ValidateOrder(req.Side, req.VolumeMWh, req.PriceEURMWh); err != nil {
		logs.Warnf("[Engine] Order rejected by risk: %v", err)
		return &market.OrderResponse{Status: market.Rejected, Reason: err.Error()}, nil
	}

	client := e.resolveClient(marketName)
	if client == nil {
		logs.Warnf("[Engine] No client configured for market %s", marketName)
		return &market.OrderResponse{Status: market.Rejected, Reason: "no client"}, nil
	}

	// The real check-and-reserve, atomic under the ledger lock.
	reservationID, err := e.risk.ValidateAndReserve(req.Side, req.VolumeMWh, req.PriceEURMWh)
	if err != nil {
		logs.Warnf("[Engine] Order rejected by risk: %v", err)
		return &market.OrderResponse{Status: market.Rejected, Reason: err.Error()}, nil
	}

	placeCtx, cancel := context.WithTimeout(ctx, e.submitTimeout)
	defer cancel()

	resp, err := client.PlaceOrder(placeCtx, req)
	if err != nil {
		// Guaranteed cleanup before the error propagates.
		if relErr := e.risk.ReleaseOrder(reservationID); relErr != nil {
			logs.Errorf("[Engine] Failed to release reservation after place error: %v", relErr)
		}
		return nil, err
	}

	switch {
	case resp.Status == market.Rejected:
		logs.Warnf("[Engine] Order rejected by venue %s: %s", client.Name(), resp.Reason)
		e.mustRelease(reservationID)

	case resp.Status.IsWorking():
		if resp.OrderID == "" {
			// An order we cannot reference later would leak its
			// reservation permanently.
			logs.Errorf("[Engine] Venue %s accepted order without an order id, releasing reservation", client.Name())
			e.mustRelease(reservationID)
			break
		}

		e.mu.Lock()
		e.activeOrders[resp.OrderID] = reservationID
		e.mu.Unlock()

		if err := e.monitor.TrackOrder(resp.OrderID, req.Side, req.VolumeMWh, req.PriceEURMWh, resp.Status, reservationID); err != nil {
			logs.Errorf("[Engine] Failed to track order %s: %v", resp.OrderID, err)
			e.mu.Lock()
			delete(e.activeOrders, resp.OrderID)
			e.mu.Unlock()
			e.mustRelease(reservationID)
			break
		}
		logs.Infof("[Engine] Submitted order %s: %s %.2f MWh @ %.2f EUR/MWh on %s (%s)",
			resp.OrderID, req.Side, req.VolumeMWh, req.PriceEURMWh, client.Name(), resp.Status)

	default:
		// Unexpected status is treated as "did not happen".
		logs.Warnf("[Engine] Venue %s returned status %s at submit, releasing reservation", client.Name(), resp.Status)
		e.mustRelease(reservationID)
	}

	return resp, nil
}

// UpdateOrderStatus is the single public entry point other subsystems (live
// feeds, polling loops, the backtest fill engine) call to advance an order's
// state. filledVolumeMWh is the running total; pass 0 when unknown.
func (e *Engine) UpdateOrderStatus(orderID string, newStatus market.OrderStatus, filledVolumeMWh float64) {
	e.monitor.UpdateOrderStatus(orderID, newStatus, filledVolumeMWh)
}

// ActiveOrderCount returns the number of orders holding a live reservation.
func (e *Engine) ActiveOrderCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.activeOrders)
}

// OnOrderFilled implements monitor.EventHandler. The reservation becomes
// permanent: its ledger entry is removed without reversing the SOC delta.
func (e *Engine) OnOrderFilled(orderID string, newlyFilledMWh float64, side market.OrderSide) error {
	e.mu.Lock()
	reservationID, ok := e.activeOrders[orderID]
	if ok {
		delete(e.activeOrders, orderID)
	}
	e.mu.Unlock()

	if !ok {
		logs.Debugf("[Engine] Fill for order %s without active reservation, nothing to finalize", orderID)
		return nil
	}

	if err := e.risk.FinalizeReservation(reservationID); err != nil {
		return err
	}
	logs.Infof("[Engine] Order %s filled %.4f MWh, reservation %s finalized", orderID, newlyFilledMWh, reservationID)

	if e.onTrade != nil {
		e.onTrade(orderID, newlyFilledMWh, side)
	}
	return nil
}

// OnOrderCancelled implements monitor.EventHandler. The reservation's SOC
// effect is reversed.
func (e *Engine) OnOrderCancelled(orderID string) error {
	e.mu.Lock()
	reservationID, ok := e.activeOrders[orderID]
	if ok {
		delete(e.activeOrders, orderID)
	}
	e.mu.Unlock()

	if !ok {
		logs.Debugf("[Engine] Cancel for order %s without active reservation, nothing to release", orderID)
		return nil
	}

	if err := e.risk.ReleaseOrder(reservationID); err != nil {
		return err
	}
	logs.Infof("[Engine] Order %s cancelled, reservation %s released", orderID, reservationID)
	return nil
}

func (e *Engine) resolveClient(marketName string) market.Client {
	name := strings.ToUpper(marketName)
	if client, ok := e.clients[name]; ok {
		return client
	}
	// The balancing venue answers to both of its common names.
	if name == "BM" {
		return e.clients["BALANCING"]
	}
	if name == "BALANCING" {
		return e.clients["BM"]
	}
	return nil
}

// mustRelease releases a reservation that is known to exist; a failure here
// means the ledger is corrupted and is logged loudly.
func (e *Engine) mustRelease(reservationID string) {
	if err := e.risk.ReleaseOrder(reservationID); err != nil {
		logs.Errorf("[Engine] Ledger inconsistency: %v", err)
	}
}
