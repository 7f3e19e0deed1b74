// config/config.go
package config

import (
	"fmt"
	"io/ioutil"
	"os"

	"gopkg.in/yaml.v2"
)

// BatteryConfig holds the physical parameters of the battery asset.
// All fields are immutable after loading.
type BatteryConfig struct {
	CapacityMWh         float64 `yaml:"capacity_mwh"`
	PowerMW             float64 `yaml:"power_mw"`
	SOCInitial          float64 `yaml:"soc_initial"`
	RoundTripEfficiency float64 `yaml:"round_trip_efficiency"`
}

// RiskConfig holds the order and position limits enforced by the risk manager.
type RiskConfig struct {
	MaxPositionMWh float64 `yaml:"max_position_mwh"`
	MaxOrderMWh    float64 `yaml:"max_order_mwh"`
	MinPriceEURMWh float64 `yaml:"min_price_eur_mwh"`
	MaxPriceEURMWh float64 `yaml:"max_price_eur_mwh"`
	MaxOpenOrders  uint32  `yaml:"max_open_orders"`
}

// LogConfig holds the configuration for logging.
type LogConfig struct {
	LogLevel   string `yaml:"log_level"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

// NormalConfig holds general, non-strategy-specific configuration.
type NormalConfig struct {
	HTTPTimeoutSeconds       int    `yaml:"http_timeout_seconds"`
	SubmitTimeoutSeconds     int    `yaml:"submit_timeout_seconds"`
	StepIntervalSeconds      int    `yaml:"step_interval_seconds"`
	StaleOrderMaxAgeHours    int    `yaml:"stale_order_max_age_hours"`
	HeartbeatIntervalMinutes int    `yaml:"heartbeat_interval_minutes"`
	LogDirectory             string `yaml:"log_directory"`
}

// SimulationConfig holds the parameters of the backtest fill simulator.
type SimulationConfig struct {
	PriceCSV    string `yaml:"price_csv"`
	ExpiryHours int    `yaml:"expiry_hours"`
	StartDate   string `yaml:"start_date"` // YYYY-MM-DD, optional
	EndDate     string `yaml:"end_date"`   // YYYY-MM-DD, optional
}

// StrategyConfig holds the parameters of the two-hour cycle day-ahead strategy.
type StrategyConfig struct {
	BlockHours  int     `yaml:"block_hours"`
	OrderSpread float64 `yaml:"order_spread_eur_mwh"`
}

// Config is the top-level configuration structure.
type Config struct {
	AssetName     string            `yaml:"asset_name"`
	Battery       *BatteryConfig    `yaml:"battery"`
	Risk          *RiskConfig       `yaml:"risk"`
	UseSimulation bool              `yaml:"use_simulation"`
	Simulation    *SimulationConfig `yaml:"simulation"`
	Strategy      *StrategyConfig   `yaml:"strategy"`
	Normal        *NormalConfig     `yaml:"normal_config"`
	Logs          *LogConfig        `yaml:"logs"`
}

// NewConfig creates a new Config struct with allocations but no magic numbers.
// All critical parameters MUST be provided in the config.yaml file.
func NewConfig() *Config {
	return &Config{
		UseSimulation: false,
		// Allocate nested structs; their fields stay zero-valued until the
		// YAML file populates them. Validation catches anything missing.
		Battery:    &BatteryConfig{},
		Risk:       &RiskConfig{},
		Simulation: &SimulationConfig{},
		Strategy:   &StrategyConfig{},
		Normal:     &NormalConfig{},
		Logs:       &LogConfig{},
	}
}

// LoadConfig loads configuration from a given path and validates it.
func LoadConfig(path string) (*Config, error) {
	cfg := NewConfig()

	data, err := ioutil.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("Error: Config file config.yaml not found at %s. Program cannot run without a config file", path)
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal yaml: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks the logical consistency and completeness of the entire configuration.
func (c *Config) Validate() error {
	if c.AssetName == "" {
		return fmt.Errorf("Critical config missing: 'asset_name' must be explicitly specified in config.yaml")
	}

	// Battery validation
	if c.Battery == nil {
		return fmt.Errorf("Critical config missing: 'battery' configuration block must be provided in config.yaml")
	}
	if c.Battery.CapacityMWh <= 0 {
		return fmt.Errorf("Critical config missing: 'battery.capacity_mwh' must be explicitly specified in config.yaml and be positive")
	}
	if c.Battery.PowerMW < 0 {
		return fmt.Errorf("Config error: battery.power_mw cannot be negative")
	}
	if c.Battery.SOCInitial < 0 || c.Battery.SOCInitial > 1 {
		return fmt.Errorf("Config error: battery.soc_initial must be within [0, 1]")
	}
	if c.Battery.RoundTripEfficiency <= 0 || c.Battery.RoundTripEfficiency > 1 {
		return fmt.Errorf("Config error: battery.round_trip_efficiency must be within (0, 1]")
	}

	// Risk validation
	if c.Risk == nil {
		return fmt.Errorf("Critical config missing: 'risk' configuration block must be provided in config.yaml")
	}
	if c.Risk.MaxOrderMWh <= 0 {
		return fmt.Errorf("Critical config missing: 'risk.max_order_mwh' must be explicitly specified in config.yaml and be positive")
	}
	if c.Risk.MaxPositionMWh <= 0 {
		return fmt.Errorf("Critical config missing: 'risk.max_position_mwh' must be explicitly specified in config.yaml and be positive")
	}
	if c.Risk.MaxPriceEURMWh <= c.Risk.MinPriceEURMWh {
		return fmt.Errorf("Config error: risk.max_price_eur_mwh must be greater than risk.min_price_eur_mwh")
	}
	if c.Risk.MaxOpenOrders == 0 {
		return fmt.Errorf("Critical config missing: 'risk.max_open_orders' must be explicitly specified in config.yaml and be positive")
	}

	if c.Normal == nil {
		return fmt.Errorf("Critical config missing: 'normal_config' configuration block must be provided in config.yaml")
	}
	if c.Normal.HTTPTimeoutSeconds <= 0 {
		return fmt.Errorf("Critical config missing: 'normal_config.http_timeout_seconds' must be explicitly specified in config.yaml and be positive")
	}
	if c.Normal.SubmitTimeoutSeconds <= 0 {
		return fmt.Errorf("Critical config missing: 'normal_config.submit_timeout_seconds' must be explicitly specified in config.yaml and be positive")
	}
	if c.Normal.StepIntervalSeconds <= 0 {
		return fmt.Errorf("Critical config missing: 'normal_config.step_interval_seconds' must be explicitly specified in config.yaml and be positive")
	}
	if c.Normal.StaleOrderMaxAgeHours <= 0 {
		return fmt.Errorf("Critical config missing: 'normal_config.stale_order_max_age_hours' must be explicitly specified in config.yaml and be positive")
	}
	if c.Normal.HeartbeatIntervalMinutes <= 0 {
		return fmt.Errorf("Critical config missing: 'normal_config.heartbeat_interval_minutes' must be explicitly specified in config.yaml and be positive")
	}
	if c.Normal.LogDirectory == "" {
		return fmt.Errorf("Critical config missing: 'normal_config.log_directory' must be explicitly specified in config.yaml (e.g., 'logs')")
	}

	// Logs validation
	if c.Logs == nil {
		return fmt.Errorf("Critical config missing: 'logs' configuration block must be provided in config.yaml")
	}
	if c.Logs.LogLevel == "" {
		return fmt.Errorf("Critical config missing: 'logs.log_level' must be explicitly specified in config.yaml (e.g., 'info', 'debug', 'warn', 'error')")
	}
	if c.Logs.MaxSizeMB <= 0 {
		return fmt.Errorf("Critical config missing: 'logs.max_size_mb' must be explicitly specified in config.yaml and be positive")
	}
	if c.Logs.MaxBackups <= 0 {
		return fmt.Errorf("Critical config missing: 'logs.max_backups' must be explicitly specified in config.yaml and be positive")
	}
	if c.Logs.MaxAgeDays <= 0 {
		return fmt.Errorf("Critical config missing: 'logs.max_age_days' must be explicitly specified in config.yaml and be positive")
	}

	// Simulation validation (only when running against historical data)
	if c.UseSimulation {
		if c.Simulation == nil || c.Simulation.PriceCSV == "" {
			return fmt.Errorf("Critical config missing: 'simulation.price_csv' must be explicitly specified in config.yaml when use_simulation is true")
		}
		if c.Simulation.ExpiryHours <= 0 {
			return fmt.Errorf("Critical config missing: 'simulation.expiry_hours' must be explicitly specified in config.yaml and be positive")
		}
	}

	// Strategy validation
	if c.Strategy == nil {
		return fmt.Errorf("Critical config missing: 'strategy' configuration block must be provided in config.yaml")
	}
	if c.Strategy.BlockHours <= 0 {
		return fmt.Errorf("Critical config missing: 'strategy.block_hours' must be explicitly specified in config.yaml and be positive")
	}
	if c.Strategy.BlockHours > 12 {
		return fmt.Errorf("Config error: strategy.block_hours (%d) is too large, a charge and a discharge block must both fit in one day", c.Strategy.BlockHours)
	}
	if c.Strategy.OrderSpread < 0 {
		return fmt.Errorf("Config error: strategy.order_spread_eur_mwh cannot be negative")
	}

	return nil
}

// EnvConfig carries venue credentials read from the environment.
type EnvConfig struct {
	PZUBaseURL  string
	PZUUsername string
	PZUPassword string
	BMBaseURL   string
	BMUsername  string
	BMPassword  string
}

func LoadEnvConfig() *EnvConfig {
	return &EnvConfig{
		PZUBaseURL:  os.Getenv("PZU_BASE_URL"),
		PZUUsername: os.Getenv("PZU_USERNAME"),
		PZUPassword: os.Getenv("PZU_PASSWORD"),
		BMBaseURL:   os.Getenv("BM_BASE_URL"),
		BMUsername:  os.Getenv("BM_USERNAME"),
		BMPassword:  os.Getenv("BM_PASSWORD"),
	}
}
