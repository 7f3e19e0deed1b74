package profit

import (
	"math"
	"sync"

	"battery_dispatch_go/market"
)

// Trade represents a single fill, with everything needed for profit tracking.
type Trade struct {
	OrderID     string
	Market      string           // venue name, e.g. "PZU"
	Side        market.OrderSide // BUY charges, SELL discharges
	PriceEURMWh float64
	VolumeMWh   float64
	Timestamp   int64
}

// PositionState is the overall energy position of the battery's trading book.
type PositionState struct {
	TotalMWh          float64 // net bought energy; negative means net sold
	AverageCostEURMWh float64 // weighted average cost of the open position
	RealizedProfitEUR float64 // cumulative profit from closed round trips
	GrossRevenueEUR   float64 // cash received from all SELL fills
	GrossCostEUR      float64 // cash paid for all BUY fills
}

// Accountant tracks fills and computes realized profit using the weighted
// average cost method: energy bought at several prices carries one blended
// cost, and each discharge realizes the spread against it.
type Accountant struct {
	mu           sync.Mutex
	position     PositionState
	tradeHistory []Trade
}

// NewAccountant creates a new accounting core.
func NewAccountant() *Accountant {
	return &Accountant{
		tradeHistory: make([]Trade, 0),
	}
}

// RecordTrade records a fill and updates the position state.
func (a *Accountant) RecordTrade(trade Trade) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.tradeHistory = append(a.tradeHistory, trade)

	isBuy := trade.Side == market.Buy
	tradeMWh := trade.VolumeMWh
	currentPos := a.position.TotalMWh
	currentAvgCost := a.position.AverageCostEURMWh

	if isBuy {
		a.position.GrossCostEUR += trade.PriceEURMWh * tradeMWh
	} else {
		a.position.GrossRevenueEUR += trade.PriceEURMWh * tradeMWh
	}

	// A closing trade runs against the position direction.
	isClosingTrade := (currentPos > 0 && !isBuy) || (currentPos < 0 && isBuy)

	if isClosingTrade && currentPos != 0 {
		closedMWh := math.Min(math.Abs(currentPos), tradeMWh)
		var pnl float64
		if isBuy { // buying back a net-sold position
			pnl = (currentAvgCost - trade.PriceEURMWh) * closedMWh
		} else { // discharging a net-bought position
			pnl = (trade.PriceEURMWh - currentAvgCost) * closedMWh
		}
		a.position.RealizedProfitEUR += pnl
	}

	signedMWh := tradeMWh
	if !isBuy {
		signedMWh = -tradeMWh
	}

	if (currentPos >= 0 && isBuy) || (currentPos <= 0 && !isBuy) {
		// Same direction: blend the cost.
		oldValue := currentAvgCost * math.Abs(currentPos)
		newValue := oldValue + (trade.PriceEURMWh * tradeMWh)

		a.position.TotalMWh += signedMWh
		if a.position.TotalMWh != 0 {
			a.position.AverageCostEURMWh = newValue / math.Abs(a.position.TotalMWh)
		} else {
			a.position.AverageCostEURMWh = 0
		}
	} else {
		// Opposite direction: partial or full close, possibly a reversal.
		a.position.TotalMWh += signedMWh

		if currentPos*a.position.TotalMWh < 0 {
			// Direction flipped; the new position's cost is this trade's price.
			a.position.AverageCostEURMWh = trade.PriceEURMWh
		} else if a.position.TotalMWh == 0 {
			a.position.AverageCostEURMWh = 0
		}
		// A partial close without reversal leaves the average cost untouched.
	}
}

// GetPositionState returns a copy of the current position state.
func (a *Accountant) GetPositionState() PositionState {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.position
}

// GetRealizedPNL returns the cumulative realized profit in EUR.
func (a *Accountant) GetRealizedPNL() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.position.RealizedProfitEUR
}

// TradeCount returns the number of recorded fills.
func (a *Accountant) TradeCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.tradeHistory)
}
