package strategy

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"battery_dispatch_go/config"
	"battery_dispatch_go/market"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStrategy(t *testing.T, place PlaceOrderFunc) *HorizonStrategy {
	t.Helper()
	cfg := &config.StrategyConfig{BlockHours: 2, OrderSpread: 5}
	battery := &config.BatteryConfig{
		CapacityMWh:         100,
		PowerMW:             25,
		SOCInitial:          0.5,
		RoundTripEfficiency: 0.81,
	}
	s, err := NewHorizonStrategy(cfg, battery, place)
	require.NoError(t, err)
	return s
}

func noopPlace(deliveryStart, deliveryEnd time.Time, side market.OrderSide, volumeMWh, priceEURMWh float64) (string, market.OrderStatus, error) {
	return "ord", market.Accepted, nil
}

// curve returns a flat 50 EUR/MWh day with a cheap block at hours 2-3 and an
// expensive block at hours 18-19.
func curve() []float64 {
	prices := make([]float64, 24)
	for h := range prices {
		prices[h] = 50
	}
	prices[2], prices[3] = 10, 10
	prices[18], prices[19] = 90, 90
	return prices
}

var planDate = time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

func TestPlanDayPicksBestBlocks(t *testing.T) {
	s := newTestStrategy(t, noopPlace)

	plan, err := s.PlanDay(planDate, curve())
	require.NoError(t, err)
	require.NotNil(t, plan)

	assert.Equal(t, 2, plan.BuyStartHour)
	assert.Equal(t, 18, plan.SellStartHour)
	require.Len(t, plan.Orders, 4)

	// Two buys at the cheap hours, limit above the expected price.
	assert.Equal(t, market.Buy, plan.Orders[0].Side)
	assert.Equal(t, 2, plan.Orders[0].Hour)
	assert.InDelta(t, 15.0, plan.Orders[0].PriceEURMWh, 1e-9)

	// Two sells at the expensive hours, limit below the expected price.
	assert.Equal(t, market.Sell, plan.Orders[2].Side)
	assert.Equal(t, 18, plan.Orders[2].Hour)
	assert.InDelta(t, 85.0, plan.Orders[2].PriceEURMWh, 1e-9)

	// Volume capped by the power rating: min(25, 100/2) = 25 MWh per hour.
	for _, order := range plan.Orders {
		assert.InDelta(t, 25.0, order.VolumeMWh, 1e-9)
	}

	// (90*0.81 - 10) * 25 MWh * 2 hours.
	assert.InDelta(t, (90*0.81-10)*25*2, plan.ExpectedEUR, 1e-6)
}

func TestPlanDayNoProfitableCycle(t *testing.T) {
	s := newTestStrategy(t, noopPlace)

	// Flat prices: the efficiency loss eats the spread.
	flat := make([]float64, 24)
	for h := range flat {
		flat[h] = 50
	}
	plan, err := s.PlanDay(planDate, flat)
	require.NoError(t, err)
	assert.Nil(t, plan)
}

func TestPlanDayRejectsPartialCurve(t *testing.T) {
	s := newTestStrategy(t, noopPlace)
	_, err := s.PlanDay(planDate, make([]float64, 23))
	assert.Error(t, err)
}

func TestPlanDaySellBlockAfterBuyBlock(t *testing.T) {
	s := newTestStrategy(t, noopPlace)

	// The most expensive hours sit BEFORE the cheapest ones; the plan must
	// pick the best sell block after the buy block, not the global maximum.
	prices := make([]float64, 24)
	for h := range prices {
		prices[h] = 50
	}
	prices[0], prices[1] = 95, 95
	prices[10], prices[11] = 10, 10
	prices[20], prices[21] = 80, 80

	plan, err := s.PlanDay(planDate, prices)
	require.NoError(t, err)
	require.NotNil(t, plan)
	assert.Equal(t, 10, plan.BuyStartHour)
	assert.Equal(t, 20, plan.SellStartHour)
}

func TestPlanDayClampsNegativeSellLimit(t *testing.T) {
	s := newTestStrategy(t, noopPlace)

	prices := make([]float64, 24)
	for h := range prices {
		prices[h] = 3
	}
	prices[2], prices[3] = -40, -40 // negative day-ahead prices do happen

	plan, err := s.PlanDay(planDate, prices)
	require.NoError(t, err)
	require.NotNil(t, plan)
	for _, order := range plan.Orders {
		if order.Side == market.Sell {
			assert.GreaterOrEqual(t, order.PriceEURMWh, 0.0)
		}
	}
}

type placeCall struct {
	start  time.Time
	side   market.OrderSide
	volume float64
	price  float64
}

func TestExecuteDayPlacesOrders(t *testing.T) {
	var calls []placeCall
	nextID := 0
	s := newTestStrategy(t, func(deliveryStart, deliveryEnd time.Time, side market.OrderSide, volumeMWh, priceEURMWh float64) (string, market.OrderStatus, error) {
		calls = append(calls, placeCall{deliveryStart, side, volumeMWh, priceEURMWh})
		nextID++
		return fmt.Sprintf("ord-%d", nextID), market.Accepted, nil
	})

	placed, err := s.ExecuteDay(planDate, curve())
	require.NoError(t, err)
	require.Len(t, placed, 4)
	require.Len(t, calls, 4)

	assert.Equal(t, planDate.Add(2*time.Hour), calls[0].start)
	assert.Equal(t, market.Buy, calls[0].side)
	assert.Equal(t, "ord-1", placed[0].OrderID)
	assert.Equal(t, planDate.Add(19*time.Hour), calls[3].start)
	assert.Equal(t, market.Sell, calls[3].side)
}

func TestExecuteDaySkipsFailedOrders(t *testing.T) {
	count := 0
	s := newTestStrategy(t, func(deliveryStart, deliveryEnd time.Time, side market.OrderSide, volumeMWh, priceEURMWh float64) (string, market.OrderStatus, error) {
		count++
		switch count {
		case 1:
			return "", market.StatusUnknown, errors.New("gateway down")
		case 2:
			return "", market.Rejected, nil
		default:
			return fmt.Sprintf("ord-%d", count), market.Accepted, nil
		}
	})

	placed, err := s.ExecuteDay(planDate, curve())
	require.NoError(t, err)
	assert.Len(t, placed, 2, "failed and rejected orders are skipped, the rest proceed")
}

func TestExecuteDayHalted(t *testing.T) {
	called := false
	s := newTestStrategy(t, func(deliveryStart, deliveryEnd time.Time, side market.OrderSide, volumeMWh, priceEURMWh float64) (string, market.OrderStatus, error) {
		called = true
		return "ord", market.Accepted, nil
	})

	s.SetTradingHalted(true)
	placed, err := s.ExecuteDay(planDate, curve())
	require.NoError(t, err)
	assert.Nil(t, placed)
	assert.False(t, called)

	s.SetTradingHalted(false)
	placed, err = s.ExecuteDay(planDate, curve())
	require.NoError(t, err)
	assert.Len(t, placed, 4)
}
