package config

import "time"

// Central place for all application-wide timing constants and other defaults.
// Changing a value here immediately affects all components that import
// github.com/jkaberg/dura-gas/internal/config.

const (
	// Evaluation / transmission intervals
	PollInterval         = 5 * time.Minute  // Re-evaluate the tank
	MQTTTransmitInterval = 60 * time.Second // Publish state to MQTT

	// Operation time-outs (to avoid blocking goroutines)
	MQTTTimeout    = 5 * time.Second  // MQTT publish
	StorageTimeout = 10 * time.Second // Load / save of tank state

	// Upper bound on retries of a single save
	StorageRetryMaxElapsed = 30 * time.Second

	// Key the tank state is stored under
	DefaultStorageKey = "dura_gas_data"
)

// Tank defaults, matching the Mexican LP gas market.
const (
	DefaultTankSize         = "120"
	DefaultUsablePercentage = 80.0
	DefaultPricePerLiter    = 10.88
	DefaultSolarInvestment  = 15000.0
	DefaultSolarEfficiency  = 70.0
	DefaultLowThreshold     = 20.0
	DefaultRefillThreshold  = 30.0
	DefaultTimezone         = "America/Mexico_City"
)

// TankSizes maps the preset names to their nominal capacity in liters.
// "custom" uses tank_capacity_custom instead.
var TankSizes = map[string]float64{
	"120":  120,
	"180":  180,
	"300":  300,
	"500":  500,
	"1000": 1000,
}

// TankSizeCustom selects tank_capacity_custom.
const TankSizeCustom = "custom"
