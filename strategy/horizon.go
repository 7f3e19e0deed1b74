// strategy/horizon.go
package strategy

import (
	"fmt"
	"math"
	"sync"
	"time"

	"battery_dispatch_go/config"
	"battery_dispatch_go/logs"
	"battery_dispatch_go/market"
)

// PlaceOrderFunc submits one hourly order and returns the venue order id and
// the status the venue answered with. Injected by the orchestrator so the
// strategy stays independent of the execution engine.
type PlaceOrderFunc func(deliveryStart, deliveryEnd time.Time, side market.OrderSide, volumeMWh, priceEURMWh float64) (string, market.OrderStatus, error)

// PlannedOrder is one hourly order of a day plan.
type PlannedOrder struct {
	Hour        int
	Side        market.OrderSide
	VolumeMWh   float64
	PriceEURMWh float64
}

// DayPlan is the charge/discharge schedule for one delivery day: a cheap
// block to charge in and a later expensive block to discharge in.
type DayPlan struct {
	Date          time.Time
	BuyStartHour  int
	SellStartHour int
	Orders        []PlannedOrder
	ExpectedEUR   float64
}

// PlacedOrder pairs a planned order with the venue's answer.
type PlacedOrder struct {
	OrderID       string
	Status        market.OrderStatus
	DeliveryStart time.Time
	DeliveryEnd   time.Time
	Side          market.OrderSide
	VolumeMWh     float64
	PriceEURMWh   float64
}

// HorizonStrategy plans a fixed-length charge block in the cheapest hours of
// a day and a discharge block of the same length in the most expensive later
// hours, sized by the battery's power rating and capacity.
type HorizonStrategy struct {
	cfg     *config.StrategyConfig
	battery *config.BatteryConfig

	placeOrder PlaceOrderFunc

	mu              sync.Mutex
	isTradingHalted bool
}

// NewHorizonStrategy creates the two-hour cycle day-ahead strategy.
func NewHorizonStrategy(cfg *config.StrategyConfig, battery *config.BatteryConfig, placeOrder PlaceOrderFunc) (*HorizonStrategy, error) {
	if placeOrder == nil {
		return nil, fmt.Errorf("strategy requires a place-order function")
	}
	return &HorizonStrategy{
		cfg:        cfg,
		battery:    battery,
		placeOrder: placeOrder,
	}, nil
}

// SetTradingHalted pauses or resumes order placement (exposure cap).
func (s *HorizonStrategy) SetTradingHalted(halted bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.isTradingHalted == halted {
		return
	}
	s.isTradingHalted = halted
	if halted {
		logs.Warn("[Strategy] Position cap reached, pausing new day plans.")
	} else {
		logs.Info("[Strategy] Position cap lifted, resuming day plans.")
	}
}

// hourlyVolumeMWh is how much energy one hourly order moves: limited by the
// power rating and by fitting a full block inside the usable capacity.
func (s *HorizonStrategy) hourlyVolumeMWh() float64 {
	blockHours := float64(s.cfg.BlockHours)
	byCapacity := s.battery.CapacityMWh / blockHours
	if s.battery.PowerMW > 0 {
		return math.Min(s.battery.PowerMW, byCapacity)
	}
	return byCapacity
}

// blockAverage returns the mean price of the block starting at `start`.
func blockAverage(prices []float64, start, blockHours int) float64 {
	sum := 0.0
	for h := start; h < start+blockHours; h++ {
		sum += prices[h]
	}
	return sum / float64(blockHours)
}

// PlanDay builds the schedule for one delivery day from its 24 hourly
// prices. Returns nil (no error) when no profitable cycle exists: the round
// trip must clear its efficiency loss before any order is worth placing.
func (s *HorizonStrategy) PlanDay(date time.Time, prices []float64) (*DayPlan, error) {
	if len(prices) != 24 {
		return nil, fmt.Errorf("day plan needs 24 hourly prices, got %d", len(prices))
	}

	blockHours := s.cfg.BlockHours
	if 2*blockHours > 24 {
		return nil, fmt.Errorf("block of %d hours cannot cycle within one day", blockHours)
	}

	// Cheapest charge block, leaving room for a discharge block after it.
	buyStart := 0
	buyAvg := math.Inf(1)
	for start := 0; start+2*blockHours <= 24; start++ {
		if avg := blockAverage(prices, start, blockHours); avg < buyAvg {
			buyAvg = avg
			buyStart = start
		}
	}

	// Most expensive discharge block strictly after the charge block ends.
	sellStart := -1
	sellAvg := math.Inf(-1)
	for start := buyStart + blockHours; start+blockHours <= 24; start++ {
		if avg := blockAverage(prices, start, blockHours); avg > sellAvg {
			sellAvg = avg
			sellStart = start
		}
	}
	if sellStart < 0 {
		return nil, nil
	}

	// The sell leg must beat the buy leg net of the round-trip loss.
	if sellAvg*s.battery.RoundTripEfficiency <= buyAvg {
		logs.Debugf("[Strategy] %s: no profitable cycle (buy avg %.2f, sell avg %.2f, rte %.2f)",
			date.Format("2006-01-02"), buyAvg, sellAvg, s.battery.RoundTripEfficiency)
		return nil, nil
	}

	volume := s.hourlyVolumeMWh()
	spread := s.cfg.OrderSpread

	plan := &DayPlan{
		Date:          date,
		BuyStartHour:  buyStart,
		SellStartHour: sellStart,
	}
	for h := buyStart; h < buyStart+blockHours; h++ {
		// Limit above the expected price so the order crosses.
		plan.Orders = append(plan.Orders, PlannedOrder{
			Hour:        h,
			Side:        market.Buy,
			VolumeMWh:   volume,
			PriceEURMWh: prices[h] + spread,
		})
	}
	for h := sellStart; h < sellStart+blockHours; h++ {
		limit := prices[h] - spread
		if limit < 0 {
			limit = 0
		}
		plan.Orders = append(plan.Orders, PlannedOrder{
			Hour:        h,
			Side:        market.Sell,
			VolumeMWh:   volume,
			PriceEURMWh: limit,
		})
	}
	plan.ExpectedEUR = (sellAvg*s.battery.RoundTripEfficiency - buyAvg) * volume * float64(blockHours)

	logs.Infof("[Strategy] %s: charge H%d-H%d (avg %.2f), discharge H%d-H%d (avg %.2f), expected %.2f EUR",
		date.Format("2006-01-02"), buyStart, buyStart+blockHours-1, buyAvg,
		sellStart, sellStart+blockHours-1, sellAvg, plan.ExpectedEUR)
	return plan, nil
}

// ExecuteDay plans a day and places its orders. Orders the venue does not
// accept are logged and skipped; the rest of the plan proceeds.
func (s *HorizonStrategy) ExecuteDay(date time.Time, prices []float64) ([]PlacedOrder, error) {
	s.mu.Lock()
	halted := s.isTradingHalted
	s.mu.Unlock()
	if halted {
		logs.Debugf("[Strategy] Trading halted, skipping day plan for %s", date.Format("2006-01-02"))
		return nil, nil
	}

	plan, err := s.PlanDay(date, prices)
	if err != nil {
		return nil, err
	}
	if plan == nil {
		return nil, nil
	}

	var placed []PlacedOrder
	for _, order := range plan.Orders {
		deliveryStart := time.Date(date.Year(), date.Month(), date.Day(), order.Hour, 0, 0, 0, date.Location())
		deliveryEnd := deliveryStart.Add(time.Hour)

		orderID, status, err := s.placeOrder(deliveryStart, deliveryEnd, order.Side, order.VolumeMWh, order.PriceEURMWh)
		if err != nil {
			logs.Errorf("[Strategy] Failed to place %s order for %s H%d: %v", order.Side, date.Format("2006-01-02"), order.Hour, err)
			continue
		}
		if !status.IsWorking() {
			logs.Warnf("[Strategy] %s order for %s H%d not accepted: %s", order.Side, date.Format("2006-01-02"), order.Hour, status)
			continue
		}

		placed = append(placed, PlacedOrder{
			OrderID:       orderID,
			Status:        status,
			DeliveryStart: deliveryStart,
			DeliveryEnd:   deliveryEnd,
			Side:          order.Side,
			VolumeMWh:     order.VolumeMWh,
			PriceEURMWh:   order.PriceEURMWh,
		})
	}
	return placed, nil
}
