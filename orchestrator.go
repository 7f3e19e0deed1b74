// orchestrator.go
package main

import (
	"context"
	"fmt"
	"sync"
	"time"

	"battery_dispatch_go/backtest"
	"battery_dispatch_go/config"
	"battery_dispatch_go/engine"
	"battery_dispatch_go/exposure"
	"battery_dispatch_go/logs"
	"battery_dispatch_go/market"
	"battery_dispatch_go/profit"
	"battery_dispatch_go/risk"
	"battery_dispatch_go/sim"
	"battery_dispatch_go/strategy"
)

// Orchestrator wires the risk manager, execution engine, fill simulator and
// strategy together and owns their lifecycle.
type Orchestrator struct {
	cfg         *config.Config
	riskManager *risk.Manager
	engine      *engine.Engine
	fillEngine  *sim.FillEngine
	strategy    *strategy.HorizonStrategy
	exposure    *exposure.Manager
	accountant  *profit.Accountant
	runner      *backtest.Runner
	ctx         context.Context
	cancel      context.CancelFunc
	wg          sync.WaitGroup
}

func NewOrchestrator(cfg *config.Config, envCfg *config.EnvConfig) (*Orchestrator, error) {
	riskManager := risk.NewManager(cfg.Battery, cfg.Risk)

	clients := make(map[string]market.Client)
	if cfg.UseSimulation {
		clients["PZU"] = market.NewMockClient("PZU")
		clients["BALANCING"] = market.NewMockClient("BALANCING")
		logs.Warnf("<<<<<<<<<< WARNING: Running in simulation mode >>>>>>>>>>")
	} else {
		pzu := market.NewAPIClient("PZU", envCfg.PZUBaseURL, envCfg.PZUUsername, envCfg.PZUPassword, cfg.Normal.HTTPTimeoutSeconds)
		if err := pzu.Authenticate(context.Background()); err != nil {
			return nil, fmt.Errorf("failed to authenticate against PZU: %w", err)
		}
		clients["PZU"] = pzu

		if envCfg.BMBaseURL != "" {
			bm := market.NewAPIClient("BALANCING", envCfg.BMBaseURL, envCfg.BMUsername, envCfg.BMPassword, cfg.Normal.HTTPTimeoutSeconds)
			if err := bm.Authenticate(context.Background()); err != nil {
				return nil, fmt.Errorf("failed to authenticate against balancing market: %w", err)
			}
			clients["BALANCING"] = bm
		}
	}

	submitTimeout := time.Duration(cfg.Normal.SubmitTimeoutSeconds) * time.Second
	eng := engine.NewEngine(clients, riskManager, submitTimeout)
	fillEngine := sim.NewFillEngine(eng)
	exposureManager := exposure.NewManager(riskManager, cfg.Risk.MaxPositionMWh)
	accountant := profit.NewAccountant()

	// The strategy submits through the engine on the day-ahead venue.
	placeOrder := func(deliveryStart, deliveryEnd time.Time, side market.OrderSide, volumeMWh, priceEURMWh float64) (string, market.OrderStatus, error) {
		req := &market.OrderRequest{
			Product:       fmt.Sprintf("H%d", deliveryStart.Hour()+1),
			DeliveryStart: deliveryStart,
			DeliveryEnd:   deliveryEnd,
			Side:          side,
			VolumeMWh:     volumeMWh,
			PriceEURMWh:   priceEURMWh,
		}
		resp, err := eng.Submit(context.Background(), "PZU", req)
		if err != nil {
			return "", market.StatusUnknown, err
		}
		return resp.OrderID, resp.Status, nil
	}

	strat, err := strategy.NewHorizonStrategy(cfg.Strategy, cfg.Battery, placeOrder)
	if err != nil {
		return nil, fmt.Errorf("failed to create horizon strategy: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	o := &Orchestrator{
		cfg:         cfg,
		riskManager: riskManager,
		engine:      eng,
		fillEngine:  fillEngine,
		strategy:    strat,
		exposure:    exposureManager,
		accountant:  accountant,
		ctx:         ctx,
		cancel:      cancel,
	}

	if cfg.UseSimulation {
		if err := o.prepareBacktest(); err != nil {
			cancel()
			return nil, err
		}
	}

	return o, nil
}

// prepareBacktest loads the price history and builds the backtest runner.
func (o *Orchestrator) prepareBacktest() error {
	var startDate, endDate time.Time
	var err error
	if o.cfg.Simulation.StartDate != "" {
		if startDate, err = time.Parse("2006-01-02", o.cfg.Simulation.StartDate); err != nil {
			return fmt.Errorf("bad simulation.start_date: %w", err)
		}
	}
	if o.cfg.Simulation.EndDate != "" {
		if endDate, err = time.Parse("2006-01-02", o.cfg.Simulation.EndDate); err != nil {
			return fmt.Errorf("bad simulation.end_date: %w", err)
		}
	}

	prices, err := sim.LoadPriceCSV(o.cfg.Simulation.PriceCSV, startDate, endDate)
	if err != nil {
		return fmt.Errorf("failed to load price history: %w", err)
	}
	logs.Infof("Loaded %d price rows across %d days from %s", prices.Len(), len(prices.Days()), o.cfg.Simulation.PriceCSV)

	o.runner = backtest.NewRunner(o.cfg, o.engine, o.fillEngine, o.strategy, o.exposure, o.accountant, prices, "PZU")
	return nil
}

// Start launches the backtest loop. Live operation (no simulation) only
// wires the components; order flow is then driven by external callers of
// the engine.
func (o *Orchestrator) Start() {
	if o.runner == nil {
		logs.Info("Live mode: engine ready, waiting for order flow.")
		return
	}

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		o.runner.Run(o.ctx)
	}()
	logs.Infof("Backtest for %s started, press Ctrl+C to exit.", o.cfg.AssetName)
}

// Stop performs a graceful shutdown.
func (o *Orchestrator) Stop() {
	logs.Info("Received close signal, starting graceful shutdown...")

	o.cancel()
	o.wg.Wait()

	o.printFinalSummary()
	logs.Info("All services stopped successfully.")
}

func (o *Orchestrator) printFinalSummary() {
	dischargeable, chargeable := o.riskManager.AvailableEnergyMWh()
	logs.Info("--- Final State ---")
	logs.Infof("SOC: %.4f (dischargeable %.2f MWh, headroom %.2f MWh)", o.riskManager.SOC(), dischargeable, chargeable)
	logs.Infof("Open orders holding reservations: %d", o.riskManager.OpenOrders())
	logs.Infof("Realized profit: %.2f EUR", o.accountant.GetRealizedPNL())
	logs.Info("-------------------")
}

// Engine exposes the execution engine for external status feeds.
func (o *Orchestrator) Engine() *engine.Engine {
	return o.engine
}
