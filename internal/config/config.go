package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata" // timezone database for minimal containers

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/jkaberg/dura-gas/internal/engine"
)

// Config holds all configuration options for the dura-gas application
type Config struct {
	// MQTT Configuration
	MQTTUrl         string `yaml:"mqtt_url" toml:"mqtt_url"`                 // MQTT URL (supports both WebSocket and standard MQTT)
	DiscoveryPrefix string `yaml:"discovery_prefix" toml:"discovery_prefix"` // Home Assistant discovery prefix

	// Device Configuration
	DeviceID string `yaml:"device_id" toml:"device_id"` // Unique device identifier

	// Application Configuration
	Verbose bool `yaml:"verbose" toml:"verbose"` // Enable verbose logging

	// Intervals
	PollInterval        time.Duration `yaml:"poll_interval" toml:"poll_interval"`
	MQTTInterval        time.Duration `yaml:"mqtt_interval" toml:"mqtt_interval"`
	ForceUpdateInterval time.Duration `yaml:"force_update_interval" toml:"force_update_interval"` // 0 = disabled

	// Storage & metrics
	StoragePath string `yaml:"storage_path" toml:"storage_path"` // *.db → SQLite, directory → JSON files, empty → memory
	StorageKey  string `yaml:"storage_key" toml:"storage_key"`
	MetricsAddr string `yaml:"metrics_addr" toml:"metrics_addr"` // empty = disabled

	// NotifyCommand is run with title and message arguments when an alert
	// turns on or off. Empty = disabled.
	NotifyCommand string `yaml:"notify_command" toml:"notify_command"`

	Tank Tank `yaml:"tank" toml:"tank"`
}

// Tank is the static tank configuration. Percentages are 0–100.
type Tank struct {
	Size                  string   `yaml:"tank_size" toml:"tank_size"`
	CustomCapacity        float64  `yaml:"tank_capacity_custom" toml:"tank_capacity_custom"`
	UsablePercentage      float64  `yaml:"usable_percentage" toml:"usable_percentage"`
	InitialLevel          float64  `yaml:"initial_level" toml:"initial_level"`
	PricePerLiter         float64  `yaml:"price_per_liter" toml:"price_per_liter"`
	HasSolar              bool     `yaml:"has_solar" toml:"has_solar"`
	SolarInstallationDate string   `yaml:"solar_installation_date" toml:"solar_installation_date"` // YYYY-MM-DD
	SolarInvestment       float64  `yaml:"solar_investment" toml:"solar_investment"`
	SolarEfficiency       float64  `yaml:"solar_efficiency" toml:"solar_efficiency"`
	HeatingMode           string   `yaml:"heating_mode" toml:"heating_mode"` // empty = hybrid with solar, gas_only without
	LowThreshold          float64  `yaml:"low_threshold" toml:"low_threshold"`
	RefillThreshold       float64  `yaml:"refill_threshold" toml:"refill_threshold"`
	RefillStrategy        string   `yaml:"refill_strategy" toml:"refill_strategy"`
	CustomStrategyAmount  *float64 `yaml:"custom_strategy_amount" toml:"custom_strategy_amount"`
	AverageRefillWindow   int      `yaml:"average_refill_window" toml:"average_refill_window"` // 0 = all history
	CylinderMonthlyCost   float64  `yaml:"cylinder_monthly_cost" toml:"cylinder_monthly_cost"`
	Timezone              string   `yaml:"timezone" toml:"timezone"`
}

// GetDefaultConfig returns a configuration with sensible defaults
func GetDefaultConfig() *Config {
	return &Config{
		DiscoveryPrefix: "homeassistant",
		DeviceID:        "dura_gas",
		PollInterval:    PollInterval,
		MQTTInterval:    MQTTTransmitInterval,
		StorageKey:      DefaultStorageKey,
		Tank: Tank{
			Size:             DefaultTankSize,
			UsablePercentage: DefaultUsablePercentage,
			PricePerLiter:    DefaultPricePerLiter,
			SolarInvestment:  DefaultSolarInvestment,
			SolarEfficiency:  DefaultSolarEfficiency,
			LowThreshold:     DefaultLowThreshold,
			RefillThreshold:  DefaultRefillThreshold,
			RefillStrategy:   engine.StrategyFillComplete,
			Timezone:         DefaultTimezone,
		},
	}
}

// Load reads the config file at path on top of the defaults, then applies
// environment variable overrides. A missing file is not an error. The
// format is picked by extension: .toml is TOML, anything else YAML.
func Load(path string) (*Config, error) {
	cfg := GetDefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if len(data) > 0 {
			if err := decode(path, data, cfg); err != nil {
				return nil, fmt.Errorf("parse config: %w", err)
			}
		}
	}

	applyEnv(cfg)
	return cfg, nil
}

func decode(path string, data []byte, cfg *Config) error {
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		_, err := toml.Decode(string(data), cfg)
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("DURA_GAS_TANK_SIZE"); v != "" {
		cfg.Tank.Size = v
	}
	if v := os.Getenv("DURA_GAS_TANK_CAPACITY"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Tank.CustomCapacity = f
		}
	}
	if v := os.Getenv("DURA_GAS_PRICE_PER_LITER"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Tank.PricePerLiter = f
		}
	}
	if v := os.Getenv("DURA_GAS_HAS_SOLAR"); v != "" {
		cfg.Tank.HasSolar = v == "true"
	}
	if v := os.Getenv("DURA_GAS_TIMEZONE"); v != "" {
		cfg.Tank.Timezone = v
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.DeviceID == "" {
		return fmt.Errorf("device ID is required")
	}

	// MQTT validation - support both WebSocket and standard MQTT protocols
	if c.MQTTUrl != "" {
		if !strings.HasPrefix(c.MQTTUrl, "ws://") &&
			!strings.HasPrefix(c.MQTTUrl, "wss://") &&
			!strings.HasPrefix(c.MQTTUrl, "mqtt://") &&
			!strings.HasPrefix(c.MQTTUrl, "mqtts://") {
			return fmt.Errorf("MQTT URL must use supported protocol (ws://, wss://, mqtt://, or mqtts://)")
		}
	}

	// Set defaults for invalid values
	if c.PollInterval <= 0 {
		c.PollInterval = PollInterval
	}
	if c.MQTTInterval <= 0 {
		c.MQTTInterval = MQTTTransmitInterval
	}
	if c.StorageKey == "" {
		c.StorageKey = DefaultStorageKey
	}

	if err := c.Tank.Validate(); err != nil {
		return fmt.Errorf("tank: %w", err)
	}
	return nil
}

// Validate applies the bounds of the setup form.
func (t *Tank) Validate() error {
	if _, err := t.Capacity(); err != nil {
		return err
	}
	switch {
	case t.UsablePercentage < 70 || t.UsablePercentage > 90:
		return fmt.Errorf("usable_percentage must be between 70 and 90")
	case t.InitialLevel < 0 || t.InitialLevel > 100:
		return fmt.Errorf("initial_level must be between 0 and 100")
	case t.PricePerLiter <= 0:
		return fmt.Errorf("price_per_liter must be positive")
	case t.SolarInvestment < 0 || t.SolarInvestment > 100000:
		return fmt.Errorf("solar_investment must be between 0 and 100000")
	case t.SolarEfficiency < 0 || t.SolarEfficiency > 100:
		return fmt.Errorf("solar_efficiency must be between 0 and 100")
	case t.LowThreshold < 10 || t.LowThreshold > 50:
		return fmt.Errorf("low_threshold must be between 10 and 50")
	case t.RefillThreshold < 10 || t.RefillThreshold > 50:
		return fmt.Errorf("refill_threshold must be between 10 and 50")
	case t.RefillThreshold < t.LowThreshold:
		return fmt.Errorf("refill_threshold must not be below low_threshold")
	case t.AverageRefillWindow < 0 || t.AverageRefillWindow > engine.MaxRefillHistory:
		return fmt.Errorf("average_refill_window must be between 1 and %d", engine.MaxRefillHistory)
	case t.CylinderMonthlyCost < 0:
		return fmt.Errorf("cylinder_monthly_cost must not be negative")
	}
	if t.RefillStrategy == engine.StrategyCustom && t.CustomStrategyAmount != nil {
		if a := *t.CustomStrategyAmount; a < 100 || a > 2000 {
			return fmt.Errorf("custom_strategy_amount must be between 100 and 2000")
		}
	}
	if _, err := t.Location(); err != nil {
		return err
	}
	if _, err := t.installedAt(); err != nil {
		return err
	}
	_, err := t.Engine()
	return err
}

// Capacity resolves the tank size preset to liters.
func (t *Tank) Capacity() (float64, error) {
	if t.Size == TankSizeCustom {
		if t.CustomCapacity < 50 || t.CustomCapacity > 5000 {
			return 0, fmt.Errorf("tank_capacity_custom must be between 50 and 5000")
		}
		return t.CustomCapacity, nil
	}
	c, ok := TankSizes[t.Size]
	if !ok {
		return 0, fmt.Errorf("unknown tank_size %q", t.Size)
	}
	return c, nil
}

// Location returns the timezone used for calendar months.
func (t *Tank) Location() (*time.Location, error) {
	if t.Timezone == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(t.Timezone)
	if err != nil {
		return nil, fmt.Errorf("timezone: %w", err)
	}
	return loc, nil
}

func (t *Tank) installedAt() (time.Time, error) {
	if t.SolarInstallationDate == "" {
		return time.Time{}, nil
	}
	ts, err := time.Parse("2006-01-02", t.SolarInstallationDate)
	if err != nil {
		return time.Time{}, fmt.Errorf("solar_installation_date: %w", err)
	}
	return ts, nil
}

// heatingMode returns the configured mode or the default for the solar flag.
func (t *Tank) heatingMode() engine.HeatingMode {
	if t.HeatingMode != "" {
		return engine.HeatingMode(t.HeatingMode)
	}
	if t.HasSolar {
		return engine.HeatingHybrid
	}
	return engine.HeatingGasOnly
}

func (t *Tank) strategy() engine.Strategy {
	s := engine.Strategy{Name: t.RefillStrategy}
	if t.RefillStrategy == engine.StrategyCustom && t.CustomStrategyAmount != nil {
		a := *t.CustomStrategyAmount
		s.CustomAmount = &a
	}
	return s
}

// Engine converts the tank configuration into the engine's fractions.
func (t *Tank) Engine() (engine.Config, error) {
	capacity, err := t.Capacity()
	if err != nil {
		return engine.Config{}, err
	}
	installed, err := t.installedAt()
	if err != nil {
		return engine.Config{}, err
	}
	cfg := engine.Config{
		Capacity:         capacity,
		UsableFraction:   t.UsablePercentage / 100,
		PricePerLiter:    t.PricePerLiter,
		HasSolar:         t.HasSolar,
		SolarInvestment:  t.SolarInvestment,
		SolarEfficiency:  t.SolarEfficiency / 100,
		SolarInstalledAt: installed,
		HeatingMode:      t.heatingMode(),
		Strategy:         t.strategy(),
		LowThreshold:     t.LowThreshold / 100,
		RefillThreshold:  t.RefillThreshold / 100,
		AverageWindow:    t.AverageRefillWindow,
		CylinderBaseline: t.CylinderMonthlyCost,
	}
	if err := cfg.Validate(); err != nil {
		return engine.Config{}, err
	}
	return cfg, nil
}

// InitialState is the tank state used the first time the service starts.
func (t *Tank) InitialState() engine.State {
	return engine.State{
		Level:         t.InitialLevel / 100,
		PricePerLiter: t.PricePerLiter,
		HeatingMode:   t.heatingMode(),
		Strategy:      t.strategy(),
	}
}

// HasMQTT returns true if MQTT is configured
func (c *Config) HasMQTT() bool {
	return c.MQTTUrl != ""
}

// HasNotifyCommand returns true if alert changes run an external command
func (c *Config) HasNotifyCommand() bool {
	return strings.TrimSpace(c.NotifyCommand) != ""
}

// HasMetrics returns true if the Prometheus endpoint is enabled
func (c *Config) HasMetrics() bool {
	return c.MetricsAddr != ""
}
