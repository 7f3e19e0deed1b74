// exposure/manager.go
package exposure

import (
	"battery_dispatch_go/logs"
)

// EnergySource reports the energy currently committed by live reservations.
// Satisfied by *risk.Manager; kept narrow for testing.
type EnergySource interface {
	CommittedEnergyMWh() float64
}

// Manager watches the committed energy against the configured position cap
// and halts new submissions while the cap is exceeded. The limits themselves
// live in the risk manager; this module only turns the cap into a halt flag
// the strategy loop can poll.
type Manager struct {
	source          EnergySource
	maxPositionMWh  float64
	isLimitExceeded bool
}

// NewManager creates an exposure manager. A non-positive limit disables it.
func NewManager(source EnergySource, maxPositionMWh float64) *Manager {
	return &Manager{
		source:         source,
		maxPositionMWh: maxPositionMWh,
	}
}

// CheckAndUpdate re-evaluates the committed energy and updates the halt flag.
func (m *Manager) CheckAndUpdate() {
	if m.maxPositionMWh <= 0 {
		if m.isLimitExceeded {
			m.isLimitExceeded = false
			logs.Infof("[Exposure] Position cap removed, resuming submissions.")
		}
		return
	}

	committed := m.source.CommittedEnergyMWh()

	if committed >= m.maxPositionMWh {
		if !m.isLimitExceeded {
			logs.Warnf("[Exposure] Committed energy %.2f MWh has reached the cap of %.2f MWh. New submissions halted.",
				committed, m.maxPositionMWh)
		}
		m.isLimitExceeded = true
	} else {
		if m.isLimitExceeded {
			logs.Infof("[Exposure] Committed energy %.2f MWh fell back below the cap of %.2f MWh. Resuming submissions.",
				committed, m.maxPositionMWh)
		}
		m.isLimitExceeded = false
	}
}

// IsTradingHalted returns whether new submissions should be paused.
func (m *Manager) IsTradingHalted() bool {
	return m.isLimitExceeded
}
