package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	cfg := NewConfig()
	cfg.AssetName = "bess-test"
	cfg.Battery = &BatteryConfig{CapacityMWh: 100, PowerMW: 25, SOCInitial: 0.5, RoundTripEfficiency: 0.9}
	cfg.Risk = &RiskConfig{MaxPositionMWh: 100, MaxOrderMWh: 25, MinPriceEURMWh: -500, MaxPriceEURMWh: 4000, MaxOpenOrders: 50}
	cfg.Strategy = &StrategyConfig{BlockHours: 2, OrderSpread: 5}
	cfg.Normal = &NormalConfig{
		HTTPTimeoutSeconds:       10,
		SubmitTimeoutSeconds:     5,
		StepIntervalSeconds:      1,
		StaleOrderMaxAgeHours:    48,
		HeartbeatIntervalMinutes: 60,
		LogDirectory:             "logs",
	}
	cfg.Logs = &LogConfig{LogLevel: "info", MaxSizeMB: 10, MaxBackups: 3, MaxAgeDays: 28}
	return cfg
}

func TestValidateAcceptsCompleteConfig(t *testing.T) {
	assert.NoError(t, validConfig().Validate())
}

func TestValidateRejectsIncompleteConfig(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantMsg string
	}{
		{"missing asset name", func(c *Config) { c.AssetName = "" }, "asset_name"},
		{"zero capacity", func(c *Config) { c.Battery.CapacityMWh = 0 }, "battery.capacity_mwh"},
		{"soc out of range", func(c *Config) { c.Battery.SOCInitial = 1.5 }, "soc_initial"},
		{"efficiency above one", func(c *Config) { c.Battery.RoundTripEfficiency = 1.1 }, "round_trip_efficiency"},
		{"zero max order", func(c *Config) { c.Risk.MaxOrderMWh = 0 }, "risk.max_order_mwh"},
		{"zero max position", func(c *Config) { c.Risk.MaxPositionMWh = 0 }, "risk.max_position_mwh"},
		{"inverted price band", func(c *Config) { c.Risk.MinPriceEURMWh = 100; c.Risk.MaxPriceEURMWh = 50 }, "max_price_eur_mwh"},
		{"zero open orders", func(c *Config) { c.Risk.MaxOpenOrders = 0 }, "risk.max_open_orders"},
		{"missing log level", func(c *Config) { c.Logs.LogLevel = "" }, "logs.log_level"},
		{"zero step interval", func(c *Config) { c.Normal.StepIntervalSeconds = 0 }, "step_interval_seconds"},
		{"zero block hours", func(c *Config) { c.Strategy.BlockHours = 0 }, "strategy.block_hours"},
		{"oversized block", func(c *Config) { c.Strategy.BlockHours = 13 }, "block_hours"},
		{"negative spread", func(c *Config) { c.Strategy.OrderSpread = -1 }, "order_spread"},
		{"simulation without csv", func(c *Config) { c.UseSimulation = true }, "simulation.price_csv"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantMsg)
		})
	}
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
asset_name: "bess-test"
use_simulation: true

battery:
  capacity_mwh: 100
  power_mw: 25
  soc_initial: 0.5
  round_trip_efficiency: 0.9

risk:
  max_position_mwh: 100
  max_order_mwh: 25
  min_price_eur_mwh: -500
  max_price_eur_mwh: 4000
  max_open_orders: 50

simulation:
  price_csv: "data/prices.csv"
  expiry_hours: 24

strategy:
  block_hours: 2
  order_spread_eur_mwh: 5

normal_config:
  http_timeout_seconds: 10
  submit_timeout_seconds: 5
  step_interval_seconds: 1
  stale_order_max_age_hours: 48
  heartbeat_interval_minutes: 60
  log_directory: "logs"

logs:
  log_level: "info"
  max_size_mb: 10
  max_backups: 3
  max_age_days: 28
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "bess-test", cfg.AssetName)
	assert.True(t, cfg.UseSimulation)
	assert.InDelta(t, 100.0, cfg.Battery.CapacityMWh, 1e-9)
	assert.InDelta(t, 0.9, cfg.Battery.RoundTripEfficiency, 1e-9)
	assert.EqualValues(t, 50, cfg.Risk.MaxOpenOrders)
	assert.Equal(t, "data/prices.csv", cfg.Simulation.PriceCSV)
	assert.Equal(t, 2, cfg.Strategy.BlockHours)
	assert.Equal(t, "logs", cfg.Normal.LogDirectory)
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}
