// backtest/runner.go
package backtest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"battery_dispatch_go/config"
	"battery_dispatch_go/engine"
	"battery_dispatch_go/exposure"
	"battery_dispatch_go/logs"
	"battery_dispatch_go/market"
	"battery_dispatch_go/profit"
	"battery_dispatch_go/sim"
	"battery_dispatch_go/strategy"
)

// Runner drives a backtest: it steps a simulated clock hour by hour across
// the price history, plans each day with the strategy, submits the plan
// through the execution engine, and lets the fill simulator emulate the
// venue's fills and expiries.
type Runner struct {
	cfg        *config.Config
	engine     *engine.Engine
	fills      *sim.FillEngine
	strat      *strategy.HorizonStrategy
	exposure   *exposure.Manager
	accountant *profit.Accountant
	prices     *sim.PriceTable
	marketName string

	mu         sync.Mutex
	registered map[string]strategy.PlacedOrder // venue order id -> order, for fill accounting
}

// NewRunner wires a backtest run. It registers itself for the engine's
// on-trade callback so fills land in the accountant with their limit price.
func NewRunner(
	cfg *config.Config,
	eng *engine.Engine,
	fills *sim.FillEngine,
	strat *strategy.HorizonStrategy,
	exp *exposure.Manager,
	accountant *profit.Accountant,
	prices *sim.PriceTable,
	marketName string,
) *Runner {
	r := &Runner{
		cfg:        cfg,
		engine:     eng,
		fills:      fills,
		strat:      strat,
		exposure:   exp,
		accountant: accountant,
		prices:     prices,
		marketName: marketName,
		registered: make(map[string]strategy.PlacedOrder),
	}
	eng.SetOnTrade(r.onTrade)
	return r
}

// onTrade records a detected fill into the accountant.
func (r *Runner) onTrade(orderID string, filledMWh float64, side market.OrderSide) {
	r.mu.Lock()
	order, ok := r.registered[orderID]
	r.mu.Unlock()
	if !ok {
		logs.Warnf("[Backtest] Fill for unknown order %s, skipping accounting", orderID)
		return
	}

	r.accountant.RecordTrade(profit.Trade{
		OrderID:     orderID,
		Market:      r.marketName,
		Side:        side,
		PriceEURMWh: order.PriceEURMWh,
		VolumeMWh:   filledMWh,
		Timestamp:   order.DeliveryStart.Unix(),
	})
}

// placeDay plans and submits one delivery day and registers every accepted
// order with the fill simulator.
func (r *Runner) placeDay(day time.Time) {
	prices, ok := r.prices.DayPrices(day)
	if !ok {
		logs.Warnf("[Backtest] Incomplete price data for %s, skipping day", day.Format("2006-01-02"))
		return
	}

	placed, err := r.strat.ExecuteDay(day, prices)
	if err != nil {
		logs.Errorf("[Backtest] Failed to execute day plan for %s: %v", day.Format("2006-01-02"), err)
		return
	}

	for _, order := range placed {
		r.mu.Lock()
		r.registered[order.OrderID] = order
		r.mu.Unlock()

		product := fmt.Sprintf("H%d", order.DeliveryStart.Hour()+1)
		r.fills.RegisterOrder(order.OrderID, product, order.DeliveryStart, order.DeliveryEnd,
			order.Side, order.VolumeMWh, order.PriceEURMWh)
	}
	if len(placed) > 0 {
		logs.Infof("[Backtest] %s: %d orders working", day.Format("2006-01-02"), len(placed))
	}
}

// Run executes the backtest until the price history is exhausted or ctx is
// cancelled. Each tick of the step interval advances the simulated clock by
// one hour.
func (r *Runner) Run(ctx context.Context) {
	days := r.prices.Days()
	if len(days) == 0 {
		logs.Error("[Backtest] Price table is empty, nothing to do.")
		return
	}

	stepInterval := time.Duration(r.cfg.Normal.StepIntervalSeconds) * time.Second
	heartbeatInterval := time.Duration(r.cfg.Normal.HeartbeatIntervalMinutes) * time.Minute
	staleMaxAge := time.Duration(r.cfg.Normal.StaleOrderMaxAgeHours) * time.Hour
	expiryHours := r.cfg.Simulation.ExpiryHours

	ticker := time.NewTicker(stepInterval)
	defer ticker.Stop()

	lastHeartbeat := time.Now()

	dayIndex := 0
	simClock := days[0]
	r.placeDay(days[0])

	for {
		select {
		case <-ctx.Done():
			logs.Info("[Backtest] Stop requested, cancelling pending orders.")
			r.finish(simClock)
			return
		case <-ticker.C:
			simClock = simClock.Add(time.Hour)

			// A new simulated day: plan and submit it.
			if simClock.Hour() == 0 {
				dayIndex++
				if dayIndex >= len(days) {
					logs.Info("[Backtest] Price history exhausted.")
					r.finish(simClock)
					return
				}
				// Jump gaps in the history rather than idling through them.
				if simClock.Before(days[dayIndex]) {
					simClock = days[dayIndex]
				}
				r.placeDay(days[dayIndex])
			}

			filled := r.fills.CheckFills(r.prices, simClock)
			expired := r.fills.ExpireOldOrders(simClock, expiryHours)
			if len(filled) > 0 || len(expired) > 0 {
				logs.Debugf("[Backtest] %s: %d fills, %d expiries", simClock.Format("2006-01-02 15:04"), len(filled), len(expired))
			}

			r.exposure.CheckAndUpdate()
			r.strat.SetTradingHalted(r.exposure.IsTradingHalted())

			if cleaned := r.engine.Monitor().CleanupStaleOrders(staleMaxAge); cleaned > 0 {
				logs.Warnf("[Backtest] Cleaned up %d stale orders", cleaned)
			}

			if time.Since(lastHeartbeat) >= heartbeatInterval {
				pos := r.accountant.GetPositionState()
				logs.Infof("[Backtest-Heartbeat] sim time %s | realized %.2f EUR | %d fills | %d orders working",
					simClock.Format("2006-01-02 15:04"), pos.RealizedProfitEUR, r.accountant.TradeCount(), r.engine.ActiveOrderCount())
				lastHeartbeat = time.Now()
			}
		}
	}
}

// finish cancels every pending order and prints the final summary.
func (r *Runner) finish(simClock time.Time) {
	cancelled := r.fills.CancelAllPending()
	if cancelled > 0 {
		logs.Infof("[Backtest] Cancelled %d pending orders at shutdown.", cancelled)
	}

	pos := r.accountant.GetPositionState()
	logs.Info("--- Backtest Summary ---")
	logs.Infof("Simulated through:   %s", simClock.Format("2006-01-02 15:04"))
	logs.Infof("Fills recorded:      %d", r.accountant.TradeCount())
	logs.Infof("Gross cost:          %.2f EUR", pos.GrossCostEUR)
	logs.Infof("Gross revenue:       %.2f EUR", pos.GrossRevenueEUR)
	logs.Infof("Realized profit:     %.2f EUR", pos.RealizedProfitEUR)
	logs.Infof("Open energy:         %.2f MWh @ %.2f EUR/MWh", pos.TotalMWh, pos.AverageCostEURMWh)
	logs.Info("------------------------")
}
