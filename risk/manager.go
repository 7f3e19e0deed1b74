// risk/manager.go
package risk

import (
	"fmt"
	"math"
	"sync"

	"battery_dispatch_go/config"
	"battery_dispatch_go/logs"
	"battery_dispatch_go/market"
	"battery_dispatch_go/utils"

	"github.com/google/uuid"
)

// RejectError is returned when an order fails validation. The reason is
// surfaced verbatim in the submit response.
type RejectError struct {
	Reason string
}

func (e *RejectError) Error() string {
	return e.Reason
}

// Manager owns the battery configuration and the SOC reservation ledger.
//
// SOC tracks the fraction of capacity currently allocated, including
// unconfirmed reservations. Every live reservation holds a signed SOC delta
// (positive for BUY/charge, negative for SELL/discharge). One mutex guards
// the whole ledger, so validate-and-reserve is a single atomic step and two
// concurrent submissions cannot both claim the same headroom.
type Manager struct {
	mu      sync.Mutex
	battery *config.BatteryConfig
	limits  *config.RiskConfig

	soc          float64
	openOrders   uint32
	reservations map[string]float64
}

// NewManager creates a risk manager for one battery instance.
func NewManager(battery *config.BatteryConfig, limits *config.RiskConfig) *Manager {
	return &Manager{
		battery:      battery,
		limits:       limits,
		soc:          utils.Clamp01(battery.SOCInitial),
		reservations: make(map[string]float64),
	}
}

// AvailableEnergyMWh returns the dischargeable energy and the chargeable
// headroom under the current SOC.
func (m *Manager) AvailableEnergyMWh() (dischargeable, chargeable float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.availableEnergy_noLock()
}

func (m *Manager) availableEnergy_noLock() (dischargeable, chargeable float64) {
	dischargeable = m.soc * m.battery.CapacityMWh
	chargeable = (1.0 - m.soc) * m.battery.CapacityMWh
	return
}

// ValidateOrder checks an order against the configured limits and current
// headroom. It has no side effects; a failure is a terminal rejection.
func (m *Manager) ValidateOrder(side market.OrderSide, volumeMWh, price float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.validateOrder_noLock(side, volumeMWh, price)
}

func (m *Manager) validateOrder_noLock(side market.OrderSide, volumeMWh, price float64) error {
	if volumeMWh <= 0 {
		return &RejectError{Reason: "volume must be > 0"}
	}
	if volumeMWh > m.limits.MaxOrderMWh {
		return &RejectError{Reason: "volume exceeds per-order limit"}
	}
	if price < m.limits.MinPriceEURMWh || price > m.limits.MaxPriceEURMWh {
		return &RejectError{Reason: "price out of bounds"}
	}
	if m.openOrders >= m.limits.MaxOpenOrders {
		return &RejectError{Reason: "too many open orders"}
	}
	dischargeable, chargeable := m.availableEnergy_noLock()
	if side == market.Sell && volumeMWh > dischargeable {
		return &RejectError{Reason: "insufficient energy to discharge"}
	}
	if side == market.Buy && volumeMWh > chargeable {
		return &RejectError{Reason: "insufficient headroom to charge"}
	}
	return nil
}

// ReserveForOrder applies the efficiency-adjusted SOC delta for an order and
// records it in the ledger under a fresh reservation id. Callers must have
// validated the order first; this method does not re-validate.
//
// The round-trip loss is split symmetrically: both the charge and the
// discharge leg apply sqrt(round_trip_efficiency).
func (m *Manager) ReserveForOrder(side market.OrderSide, volumeMWh float64) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reserve_noLock(side, volumeMWh)
}

func (m *Manager) reserve_noLock(side market.OrderSide, volumeMWh float64) string {
	legEfficiency := math.Sqrt(m.battery.RoundTripEfficiency)

	var delta float64
	if side == market.Buy {
		// Charging: only legEfficiency of the bought energy lands in the battery.
		energyToBattery := volumeMWh * legEfficiency
		delta = energyToBattery / m.battery.CapacityMWh
	} else {
		// Discharging: delivering volumeMWh drains volume/legEfficiency from the battery.
		energyFromBattery := volumeMWh / legEfficiency
		delta = -(energyFromBattery / m.battery.CapacityMWh)
	}

	m.soc = utils.Clamp01(m.soc + delta)

	reservationID := uuid.NewString()
	m.reservations[reservationID] = delta
	m.openOrders++

	logs.Debugf("[Risk] Reserved %s %.4f MWh (delta %.6f), reservation %s, soc now %.6f, open orders %d",
		side, volumeMWh, delta, reservationID, m.soc, m.openOrders)
	return reservationID
}

// ValidateAndReserve composes validation and reservation under one lock,
// closing the check-then-act race between two concurrent submissions.
func (m *Manager) ValidateAndReserve(side market.OrderSide, volumeMWh, price float64) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.validateOrder_noLock(side, volumeMWh, price); err != nil {
		return "", err
	}
	return m.reserve_noLock(side, volumeMWh), nil
}

// ReleaseOrder reverses the SOC effect of a live reservation and removes it
// from the ledger. Releasing an unknown id is an error and leaves the ledger
// and the open-order counter untouched.
func (m *Manager) ReleaseOrder(reservationID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delta, ok := m.reservations[reservationID]
	if !ok {
		return fmt.Errorf("release of unknown reservation %s", reservationID)
	}

	m.soc = utils.Clamp01(m.soc - delta)
	delete(m.reservations, reservationID)
	m.openOrders--

	logs.Debugf("[Risk] Released reservation %s (delta %.6f), soc now %.6f, open orders %d",
		reservationID, delta, m.soc, m.openOrders)
	return nil
}

// FinalizeReservation removes a ledger entry WITHOUT reversing its SOC delta:
// the order filled and the provisional adjustment became reality. Finalizing
// an unknown id is an error and has no effect.
func (m *Manager) FinalizeReservation(reservationID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.reservations[reservationID]; !ok {
		return fmt.Errorf("finalize of unknown reservation %s", reservationID)
	}

	delete(m.reservations, reservationID)
	m.openOrders--

	logs.Debugf("[Risk] Finalized reservation %s, soc stays %.6f, open orders %d",
		reservationID, m.soc, m.openOrders)
	return nil
}

// SOC returns the current state of charge, including unconfirmed reservations.
func (m *Manager) SOC() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.soc
}

// OpenOrders returns the number of orders currently holding a reservation.
func (m *Manager) OpenOrders() uint32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.openOrders
}

// CommittedEnergyMWh returns the absolute energy committed by live
// reservations, used by the exposure manager against the position cap.
func (m *Manager) CommittedEnergyMWh() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	var total float64
	for _, delta := range m.reservations {
		total += math.Abs(delta) * m.battery.CapacityMWh
	}
	return total
}
