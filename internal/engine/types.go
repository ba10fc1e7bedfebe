package engine

import (
	"fmt"
	"math"
	"time"
)

// Physical and economic constants used by the calculations.
const (
	LPGasLitersPerKg     = 1.96  // LP gas density conversion (liters per kilogram)
	WaterHeatingFraction = 0.40  // share of gas going to hot water
	CylinderMonthlyCost  = 584.0 // baseline: 29 kg cylinder @ 20.15 MXN/kg
	DaysPerMonth         = 30
	MaxRefillHistory     = 50

	// Projections further out than this are reported without a date.
	maxProjectionDays = 36500
)

// HeatingMode describes how domestic hot water is produced.
type HeatingMode string

const (
	HeatingHybrid    HeatingMode = "solar_gas_hybrid"
	HeatingSolarOnly HeatingMode = "solar_only"
	HeatingGasOnly   HeatingMode = "gas_only"
	HeatingNone      HeatingMode = "none"
)

// HeatingModes lists every supported mode in display order.
func HeatingModes() []HeatingMode {
	return []HeatingMode{HeatingHybrid, HeatingSolarOnly, HeatingGasOnly, HeatingNone}
}

// Valid reports whether m is one of the known modes.
func (m HeatingMode) Valid() bool {
	for _, known := range HeatingModes() {
		if m == known {
			return true
		}
	}
	return false
}

// ParseHeatingMode converts a user supplied string into a HeatingMode.
func ParseHeatingMode(s string) (HeatingMode, error) {
	m := HeatingMode(s)
	if !m.Valid() {
		return "", &ValidationError{Field: "heating_mode", Reason: fmt.Sprintf("unknown mode %q", s)}
	}
	return m, nil
}

// solarCoverage is the fraction of hot-water gas replaced by solar.
func (m HeatingMode) solarCoverage(efficiency float64) float64 {
	switch m {
	case HeatingSolarOnly:
		return 1.0
	case HeatingHybrid:
		return efficiency
	default:
		return 0.0
	}
}

// Config is the immutable per-evaluation configuration. Fractions are in
// [0,1]; money is in the configured currency (MXN by default).
type Config struct {
	Capacity         float64     // nominal tank capacity in liters
	UsableFraction   float64     // safely fillable share of Capacity
	PricePerLiter    float64     // current gas price
	HasSolar         bool        // solar water heater installed
	SolarInvestment  float64     // up-front solar cost
	SolarEfficiency  float64     // share of hot water covered in hybrid mode
	SolarInstalledAt time.Time   // informational
	HeatingMode      HeatingMode // water heating mode
	Strategy         Strategy    // refill recommendation policy
	LowThreshold     float64     // level fraction below which the tank is "low"
	RefillThreshold  float64     // level fraction below which a refill is recommended
	AverageWindow    int         // refills averaged for refills_per_month (0 = all)
	CylinderBaseline float64     // monthly cost of the cylinder alternative (0 = default)
}

// UsableCapacity returns capacity × usable fraction in liters.
func (c Config) UsableCapacity() float64 {
	return c.Capacity * c.UsableFraction
}

func (c Config) cylinderBaseline() float64 {
	if c.CylinderBaseline > 0 {
		return c.CylinderBaseline
	}
	return CylinderMonthlyCost
}

func (c Config) averageWindow() int {
	if c.AverageWindow <= 0 || c.AverageWindow > MaxRefillHistory {
		return MaxRefillHistory
	}
	return c.AverageWindow
}

// Validate rejects configurations the engine cannot evaluate.
func (c Config) Validate() error {
	switch {
	case !finite(c.Capacity) || c.Capacity < 0:
		return &ValidationError{Field: "capacity", Reason: "must be a non-negative number of liters"}
	case !finite(c.UsableFraction) || c.UsableFraction <= 0 || c.UsableFraction > 1:
		return &ValidationError{Field: "usable_fraction", Reason: "must be in (0, 1]"}
	case !finite(c.PricePerLiter) || c.PricePerLiter <= 0:
		return &ValidationError{Field: "price_per_liter", Reason: "must be greater than zero"}
	case !finite(c.SolarInvestment) || c.SolarInvestment < 0:
		return &ValidationError{Field: "solar_investment", Reason: "must not be negative"}
	case !finite(c.SolarEfficiency) || c.SolarEfficiency < 0 || c.SolarEfficiency > 1:
		return &ValidationError{Field: "solar_efficiency", Reason: "must be in [0, 1]"}
	case !c.HeatingMode.Valid():
		return &ValidationError{Field: "heating_mode", Reason: fmt.Sprintf("unknown mode %q", c.HeatingMode)}
	case c.LowThreshold < 0 || c.LowThreshold > 1:
		return &ValidationError{Field: "low_threshold", Reason: "must be in [0, 1]"}
	case c.RefillThreshold < 0 || c.RefillThreshold > 1:
		return &ValidationError{Field: "refill_threshold", Reason: "must be in [0, 1]"}
	}
	return c.Strategy.Validate()
}

// RefillRecord is one entry of the refill log.
type RefillRecord struct {
	ID            string    `json:"id,omitempty"`
	Timestamp     time.Time `json:"date"`
	Liters        float64   `json:"liters"`
	PricePerLiter float64   `json:"price_per_liter"`
	TotalCost     float64   `json:"total_cost"`
	LevelBefore   float64   `json:"level_before"`
	LevelAfter    float64   `json:"level_after"`
}

// SolarLedger accumulates money saved by solar water heating.
type SolarLedger struct {
	InstalledAt *time.Time `json:"installed_at,omitempty"`
	Investment  float64    `json:"investment"`
	Accumulated float64    `json:"roi_accumulated"`
	LastUpdate  *time.Time `json:"last_update,omitempty"`
}

// Input is everything a single evaluation needs.
type Input struct {
	Config  Config
	History []RefillRecord
	Level   float64 // fraction of usable capacity
	Ledger  SolarLedger
	Now     time.Time
}

// Result is the output of Evaluate. Pointer-valued numbers are nil when the
// data needed to compute them is not available yet ("insufficient data"),
// which is distinct from a computed zero.
type Result struct {
	EvaluatedAt time.Time        `json:"evaluated_at"`
	Config      ConfigSummary    `json:"config"`
	Tank        TankState        `json:"tank"`
	Consumption Consumption      `json:"consumption"`
	Projection  Projection       `json:"projection"`
	LastRefill  LastRefill       `json:"last_refill"`
	Strategy    StrategyAnalysis `json:"strategy"`
	Solar       *Solar           `json:"solar"`
	Alerts      Alerts           `json:"alerts"`
	Anomalies   []Anomaly        `json:"anomalies,omitempty"`

	// Ledger is the solar ledger after this evaluation. LedgerChanged is
	// set when the caller has to persist it.
	Ledger        SolarLedger `json:"-"`
	LedgerChanged bool        `json:"-"`
}

// ConfigSummary echoes the settings the result was computed with.
type ConfigSummary struct {
	Capacity        float64     `json:"capacity"`
	UsableCapacity  float64     `json:"usable_capacity"`
	UsableFraction  float64     `json:"usable_fraction"`
	PricePerLiter   float64     `json:"price_per_liter"`
	HasSolar        bool        `json:"has_solar"`
	HeatingMode     HeatingMode `json:"heating_mode"`
	Strategy        string      `json:"refill_strategy"`
	LowThreshold    float64     `json:"low_threshold"`
	RefillThreshold float64     `json:"refill_threshold"`
}

// TankState is the physical content of the tank.
type TankState struct {
	Capacity       float64 `json:"capacity"`
	UsableCapacity float64 `json:"usable_capacity"`
	Level          float64 `json:"current_level"` // fraction of usable capacity
	Liters         float64 `json:"current_liters"`
	Kilograms      float64 `json:"current_kg"`
	Value          float64 `json:"current_value"`
}

// Consumption holds the consumption rates since the last refill.
type Consumption struct {
	Daily           *float64 `json:"daily"`
	Monthly         *float64 `json:"monthly"`
	DaysSinceRefill *float64 `json:"days_since_refill"`
	LitersConsumed  *float64 `json:"liters_consumed"`
}

// Projection is the forward-looking part of the result.
type Projection struct {
	DaysRemaining     *float64   `json:"days_remaining"`
	WeeksRemaining    *float64   `json:"weeks_remaining"`
	NextRefillDate    *time.Time `json:"next_refill_date"`
	RecommendedLiters *float64   `json:"recommended_liters"`
	RecommendedCost   *float64   `json:"recommended_cost"`
	ResultingLevel    *float64   `json:"resulting_level"` // fraction, clamped to 1
	Overfill          bool       `json:"overfill"`
}

// LastRefill describes the most recent refill by timestamp.
type LastRefill struct {
	Date          *time.Time `json:"date"`
	Liters        *float64   `json:"liters"`
	PricePerLiter *float64   `json:"price_per_liter"`
	TotalCost     *float64   `json:"total_cost"`
}

// StrategyAnalysis compares running costs.
type StrategyAnalysis struct {
	Current         string   `json:"current"`
	MonthlyCost     *float64 `json:"monthly_cost"`
	RefillsPerMonth *float64 `json:"refills_per_month"`
	AverageRefill   *float64 `json:"average_refill"`
	VsCylinders     *float64 `json:"vs_cylinders"`
}

// Solar is present only when solar heating is configured.
type Solar struct {
	HeatingMode     HeatingMode `json:"heating_mode"`
	EfficiencyReal  float64     `json:"efficiency_real"` // fraction
	Coverage        float64     `json:"coverage"`
	Active          bool        `json:"active"`
	HotWaterMonthly *float64    `json:"hot_water_monthly"`
	HotWaterDaily   *float64    `json:"hot_water_consumption"`
	LitersSaved     *float64    `json:"liters_saved"`
	SavingsMonthly  *float64    `json:"savings_monthly"`
	ROIAccumulated  float64     `json:"roi_accumulated"`
	ROIPercentage   *float64    `json:"roi_percentage"`
	MonthsToPayback *float64    `json:"months_to_payback"`
	PaidBack        bool        `json:"paid_back"`
}

// Alerts are the boolean conditions derived from the result.
type Alerts struct {
	LowLevel          bool `json:"low_level"`
	RefillRecommended bool `json:"refill_recommended"`
	SolarActive       bool `json:"solar_active"`
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
