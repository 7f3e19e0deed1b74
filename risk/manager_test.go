package risk

import (
	"testing"

	"battery_dispatch_go/config"
	"battery_dispatch_go/market"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager() *Manager {
	battery := &config.BatteryConfig{
		CapacityMWh:         100,
		PowerMW:             25,
		SOCInitial:          0.5,
		RoundTripEfficiency: 0.81,
	}
	limits := &config.RiskConfig{
		MaxPositionMWh: 100,
		MaxOrderMWh:    50,
		MinPriceEURMWh: 0,
		MaxPriceEURMWh: 500,
		MaxOpenOrders:  4,
	}
	return NewManager(battery, limits)
}

func TestAvailableEnergy(t *testing.T) {
	m := newTestManager()
	dischargeable, chargeable := m.AvailableEnergyMWh()
	assert.InDelta(t, 50.0, dischargeable, 1e-9)
	assert.InDelta(t, 50.0, chargeable, 1e-9)
}

func TestValidateOrder(t *testing.T) {
	tests := []struct {
		name       string
		side       market.OrderSide
		volume     float64
		price      float64
		wantReason string
	}{
		{"valid buy", market.Buy, 10, 100, ""},
		{"valid sell", market.Sell, 10, 100, ""},
		{"zero volume", market.Buy, 0, 100, "volume must be > 0"},
		{"negative volume", market.Buy, -5, 100, "volume must be > 0"},
		{"volume over per-order limit", market.Buy, 51, 100, "volume exceeds per-order limit"},
		{"price below floor", market.Buy, 10, -1, "price out of bounds"},
		{"price above cap", market.Buy, 10, 501, "price out of bounds"},
		{"sell over per-order limit", market.Sell, 50.1, 100, "volume exceeds per-order limit"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newTestManager()
			err := m.ValidateOrder(tt.side, tt.volume, tt.price)
			if tt.wantReason == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				var rejectErr *RejectError
				require.ErrorAs(t, err, &rejectErr)
				assert.Equal(t, tt.wantReason, rejectErr.Reason)
			}
			// Validation never has side effects.
			assert.EqualValues(t, 0, m.OpenOrders())
			assert.InDelta(t, 0.5, m.SOC(), 1e-12)
		})
	}
}

func TestValidateOrderHeadroom(t *testing.T) {
	m := newTestManager()
	// 45 MWh is within the per-order limit but exceeds the 50*0.9=45 of
	// dischargeable energy only once the SOC has dropped.
	resID, err := m.ValidateAndReserve(market.Sell, 40, 100)
	require.NoError(t, err)
	require.NotEmpty(t, resID)

	// SELL 40 drains 40/0.9 = 44.44 MWh; only ~5.56 MWh remain dischargeable.
	err = m.ValidateOrder(market.Sell, 10, 100)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "insufficient energy to discharge")

	// Headroom for charging grew by the same amount.
	assert.NoError(t, m.ValidateOrder(market.Buy, 50, 100))
}

func TestValidateOrderOpenOrderLimit(t *testing.T) {
	m := newTestManager()
	for i := 0; i < 4; i++ {
		_, err := m.ValidateAndReserve(market.Buy, 1, 100)
		require.NoError(t, err)
	}
	err := m.ValidateOrder(market.Buy, 1, 100)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "too many open orders")
}

func TestEfficiencySplit(t *testing.T) {
	// rte 0.81 splits into charge_eff = discharge_eff = 0.9.
	m := newTestManager()
	m.ReserveForOrder(market.Buy, 10)
	assert.InDelta(t, 0.59, m.SOC(), 1e-12, "BUY 10 MWh at 0.9 leg efficiency adds 9 MWh to a 100 MWh battery")

	m2 := newTestManager()
	m2.ReserveForOrder(market.Sell, 9)
	// SELL 9 MWh drains 9/0.9 = 10 MWh.
	assert.InDelta(t, 0.4, m2.SOC(), 1e-12)
}

func TestReservationRoundTrip(t *testing.T) {
	m := newTestManager()
	for _, volume := range []float64{0.5, 10, 44} {
		resID := m.ReserveForOrder(market.Buy, volume)
		require.NoError(t, m.ReleaseOrder(resID))
		assert.InDelta(t, 0.5, m.SOC(), 1e-9, "release must restore SOC for volume %.1f", volume)
		assert.EqualValues(t, 0, m.OpenOrders())
	}
}

func TestSOCBounded(t *testing.T) {
	m := newTestManager()
	for i := 0; i < 10; i++ {
		m.ReserveForOrder(market.Buy, 50)
		soc := m.SOC()
		assert.GreaterOrEqual(t, soc, 0.0)
		assert.LessOrEqual(t, soc, 1.0)
	}
	assert.InDelta(t, 1.0, m.SOC(), 1e-12)

	for i := 0; i < 10; i++ {
		m.ReserveForOrder(market.Sell, 50)
		soc := m.SOC()
		assert.GreaterOrEqual(t, soc, 0.0)
		assert.LessOrEqual(t, soc, 1.0)
	}
	assert.InDelta(t, 0.0, m.SOC(), 1e-12)
}

func TestReleaseUnknownReservation(t *testing.T) {
	m := newTestManager()
	resID := m.ReserveForOrder(market.Buy, 10)
	socAfterReserve := m.SOC()

	// Unknown id: checked error, counter and SOC untouched.
	err := m.ReleaseOrder("no-such-reservation")
	require.Error(t, err)
	assert.EqualValues(t, 1, m.OpenOrders())
	assert.InDelta(t, socAfterReserve, m.SOC(), 1e-12)

	require.NoError(t, m.ReleaseOrder(resID))
	assert.EqualValues(t, 0, m.OpenOrders())
}

func TestFillFinality(t *testing.T) {
	m := newTestManager()
	resID := m.ReserveForOrder(market.Buy, 10)
	socReserved := m.SOC()

	require.NoError(t, m.FinalizeReservation(resID))
	assert.InDelta(t, socReserved, m.SOC(), 1e-12, "finalize keeps the SOC delta")
	assert.EqualValues(t, 0, m.OpenOrders())

	// The reservation is gone: neither a release nor a second finalize may
	// move SOC or the counter.
	assert.Error(t, m.ReleaseOrder(resID))
	assert.Error(t, m.FinalizeReservation(resID))
	assert.InDelta(t, socReserved, m.SOC(), 1e-12)
	assert.EqualValues(t, 0, m.OpenOrders())
}

func TestValidateAndReserveAtomicRejection(t *testing.T) {
	m := newTestManager()
	resID, err := m.ValidateAndReserve(market.Buy, 51, 100)
	require.Error(t, err)
	assert.Empty(t, resID)
	assert.EqualValues(t, 0, m.OpenOrders())
	assert.InDelta(t, 0.5, m.SOC(), 1e-12)
}

func TestCommittedEnergy(t *testing.T) {
	m := newTestManager()
	assert.InDelta(t, 0.0, m.CommittedEnergyMWh(), 1e-12)

	m.ReserveForOrder(market.Buy, 10) // |delta| = 0.09 -> 9 MWh
	m.ReserveForOrder(market.Sell, 9) // |delta| = 0.10 -> 10 MWh
	assert.InDelta(t, 19.0, m.CommittedEnergyMWh(), 1e-9)
}
