package sensors

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/jkaberg/dura-gas/internal/engine"
	"github.com/jkaberg/dura-gas/internal/tank"
)

const currency = "MXN"

// pct converts an engine fraction into a percentage.
func pct(v *float64) interface{} {
	if v == nil {
		return nil
	}
	return round2(*v * 100)
}

func num(v *float64) interface{} {
	if v == nil {
		return nil
	}
	return *v
}

func ts(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.Format(time.RFC3339)
}

func onOff(b bool) string {
	if b {
		return "ON"
	}
	return "OFF"
}

func round2(v float64) float64 {
	return decimal.NewFromFloat(v).Round(2).InexactFloat64()
}

func solar(s *Snapshot) *engine.Solar {
	return s.Result.Solar
}

// AllEntities is the authoritative list of published entities. Edit this
// slice to add or remove entities; discovery, state and attributes are all
// derived from it.
var AllEntities = []EntityDefinition{
	// --- Tank ---
	{Key: "tank_level", Name: "Tank Level", Component: ComponentSensor, Unit: "%", StateClass: "measurement", Icon: "mdi:propane-tank", Precision: 1,
		Value: func(s *Snapshot) interface{} { return round2(s.Result.Tank.Level * 100) }},
	{Key: "tank_liters", Name: "Tank Liters", Component: ComponentSensor, DeviceClass: "volume_storage", Unit: "L", StateClass: "measurement", Icon: "mdi:propane-tank", Precision: 1,
		Value: func(s *Snapshot) interface{} { return s.Result.Tank.Liters }},
	{Key: "tank_kilograms", Name: "Tank Kilograms", Component: ComponentSensor, DeviceClass: "weight", Unit: "kg", StateClass: "measurement", Icon: "mdi:weight-kilogram", Precision: 1,
		Value: func(s *Snapshot) interface{} { return s.Result.Tank.Kilograms }},
	{Key: "tank_value", Name: "Tank Value", Component: ComponentSensor, DeviceClass: "monetary", Unit: currency, StateClass: "total", Icon: "mdi:cash", Precision: 2,
		Value: func(s *Snapshot) interface{} { return s.Result.Tank.Value }},

	// --- Consumption ---
	{Key: "daily_consumption", Name: "Daily Consumption", Component: ComponentSensor, Unit: "L/day", StateClass: "measurement", Icon: "mdi:fire", Precision: 2,
		Value: func(s *Snapshot) interface{} { return num(s.Result.Consumption.Daily) }},
	{Key: "monthly_consumption", Name: "Monthly Consumption", Component: ComponentSensor, Unit: "L/month", StateClass: "measurement", Icon: "mdi:calendar-month", Precision: 1,
		Value: func(s *Snapshot) interface{} { return num(s.Result.Consumption.Monthly) }},
	{Key: "days_since_refill", Name: "Days Since Refill", Component: ComponentSensor, Unit: "d", Icon: "mdi:calendar-clock", Precision: 0,
		Value: func(s *Snapshot) interface{} { return num(s.Result.Consumption.DaysSinceRefill) }},
	{Key: "liters_consumed", Name: "Liters Consumed", Component: ComponentSensor, Unit: "L", StateClass: "total_increasing", Icon: "mdi:counter", Precision: 1,
		Value: func(s *Snapshot) interface{} { return num(s.Result.Consumption.LitersConsumed) }},

	// --- Projection ---
	{Key: "days_remaining", Name: "Days Remaining", Component: ComponentSensor, Unit: "d", Icon: "mdi:calendar-arrow-right", Precision: 0,
		Value: func(s *Snapshot) interface{} { return num(s.Result.Projection.DaysRemaining) }},
	{Key: "weeks_remaining", Name: "Weeks Remaining", Component: ComponentSensor, Unit: "weeks", Icon: "mdi:calendar-week", Precision: 1,
		Value: func(s *Snapshot) interface{} { return num(s.Result.Projection.WeeksRemaining) }},
	{Key: "next_refill_date", Name: "Next Refill Date", Component: ComponentSensor, DeviceClass: "timestamp", Icon: "mdi:calendar-alert", Precision: -1,
		Value: func(s *Snapshot) interface{} { return ts(s.Result.Projection.NextRefillDate) }},
	{Key: "recommended_liters", Name: "Recommended Liters", Component: ComponentSensor, Unit: "L", Icon: "mdi:gas-station", Precision: 1,
		Value: func(s *Snapshot) interface{} { return num(s.Result.Projection.RecommendedLiters) },
		Attributes: func(s *Snapshot) map[string]interface{} {
			return map[string]interface{}{
				"strategy": s.Result.Strategy.Current,
				"overfill": s.Result.Projection.Overfill,
			}
		}},
	{Key: "recommended_cost", Name: "Recommended Cost", Component: ComponentSensor, DeviceClass: "monetary", Unit: currency, Icon: "mdi:cash-plus", Precision: 2,
		Value: func(s *Snapshot) interface{} { return num(s.Result.Projection.RecommendedCost) }},
	{Key: "resulting_level", Name: "Resulting Level", Component: ComponentSensor, Unit: "%", Icon: "mdi:propane-tank-outline", Precision: 1,
		Value: func(s *Snapshot) interface{} { return pct(s.Result.Projection.ResultingLevel) }},

	// --- Last refill ---
	{Key: "last_refill_date", Name: "Last Refill Date", Component: ComponentSensor, DeviceClass: "timestamp", Icon: "mdi:calendar-check", Precision: -1,
		Value: func(s *Snapshot) interface{} { return ts(s.Result.LastRefill.Date) }},
	{Key: "last_refill_liters", Name: "Last Refill Liters", Component: ComponentSensor, Unit: "L", Icon: "mdi:gas-station", Precision: 1,
		Value: func(s *Snapshot) interface{} { return num(s.Result.LastRefill.Liters) }},
	{Key: "last_refill_cost", Name: "Last Refill Cost", Component: ComponentSensor, DeviceClass: "monetary", Unit: currency, Icon: "mdi:cash", Precision: 2,
		Value: func(s *Snapshot) interface{} { return num(s.Result.LastRefill.TotalCost) },
		Attributes: func(s *Snapshot) map[string]interface{} {
			return map[string]interface{}{"price_per_liter": num(s.Result.LastRefill.PricePerLiter)}
		}},

	// --- Strategy ---
	{Key: "monthly_cost", Name: "Monthly Cost", Component: ComponentSensor, Unit: currency + "/month", StateClass: "measurement", Icon: "mdi:cash-multiple", Precision: 2,
		Value: func(s *Snapshot) interface{} { return num(s.Result.Strategy.MonthlyCost) }},
	{Key: "refills_per_month", Name: "Refills Per Month", Component: ComponentSensor, Unit: "refills/month", StateClass: "measurement", Icon: "mdi:counter", Precision: 2,
		Value: func(s *Snapshot) interface{} { return num(s.Result.Strategy.RefillsPerMonth) },
		Attributes: func(s *Snapshot) map[string]interface{} {
			return map[string]interface{}{"average_refill": num(s.Result.Strategy.AverageRefill)}
		}},
	{Key: "vs_cylinders", Name: "Savings vs Cylinders", Component: ComponentSensor, Unit: currency + "/month", StateClass: "measurement", Icon: "mdi:compare-horizontal", Precision: 2,
		Value: func(s *Snapshot) interface{} { return num(s.Result.Strategy.VsCylinders) },
		Attributes: func(s *Snapshot) map[string]interface{} {
			return map[string]interface{}{"description": "Positive means you save vs cylinders"}
		}},

	// --- Solar ---
	{Key: "solar_efficiency_real", Name: "Solar Efficiency", Component: ComponentSensor, Unit: "%", StateClass: "measurement", Icon: "mdi:solar-power", Precision: 0, SolarOnly: true,
		Value: func(s *Snapshot) interface{} {
			if solar(s) == nil {
				return nil
			}
			return round2(solar(s).Coverage * 100)
		}},
	{Key: "solar_savings_monthly", Name: "Solar Savings Monthly", Component: ComponentSensor, Unit: currency + "/month", StateClass: "measurement", Icon: "mdi:piggy-bank", Precision: 2, SolarOnly: true,
		Value: func(s *Snapshot) interface{} {
			if solar(s) == nil {
				return nil
			}
			return num(solar(s).SavingsMonthly)
		},
		Attributes: func(s *Snapshot) map[string]interface{} {
			if solar(s) == nil {
				return nil
			}
			return map[string]interface{}{"liters_saved": num(solar(s).LitersSaved)}
		}},
	{Key: "solar_roi_accumulated", Name: "Solar ROI Accumulated", Component: ComponentSensor, DeviceClass: "monetary", Unit: currency, StateClass: "total", Icon: "mdi:chart-line", Precision: 2, SolarOnly: true,
		Value: func(s *Snapshot) interface{} {
			if solar(s) == nil {
				return nil
			}
			return solar(s).ROIAccumulated
		},
		Attributes: func(s *Snapshot) map[string]interface{} {
			if solar(s) == nil {
				return nil
			}
			return map[string]interface{}{
				"percentage":        num(solar(s).ROIPercentage),
				"months_to_payback": num(solar(s).MonthsToPayback),
				"paid_back":         solar(s).PaidBack,
			}
		}},
	{Key: "hot_water_consumption", Name: "Hot Water Consumption", Component: ComponentSensor, Unit: "L/day", StateClass: "measurement", Icon: "mdi:water-thermometer", Precision: 2, SolarOnly: true,
		Value: func(s *Snapshot) interface{} {
			if solar(s) == nil {
				return nil
			}
			return num(solar(s).HotWaterDaily)
		},
		Attributes: func(s *Snapshot) map[string]interface{} {
			if solar(s) == nil {
				return nil
			}
			return map[string]interface{}{"monthly": num(solar(s).HotWaterMonthly)}
		}},

	// --- Diagnostics ---
	{Key: "price_per_liter_tracking", Name: "Price Per Liter", Component: ComponentSensor, Unit: currency + "/L", StateClass: "measurement", Icon: "mdi:chart-line-variant", Category: "diagnostic", Precision: 2,
		Value: func(s *Snapshot) interface{} { return s.Result.Config.PricePerLiter }},
	{Key: "anomalies", Name: "Anomalies", Component: ComponentSensor, Icon: "mdi:alert-circle-outline", Category: "diagnostic", Precision: 0,
		Value: func(s *Snapshot) interface{} { return len(s.Result.Anomalies) },
		Attributes: func(s *Snapshot) map[string]interface{} {
			codes := make([]string, 0, len(s.Result.Anomalies))
			for _, a := range s.Result.Anomalies {
				codes = append(codes, string(a.Code))
			}
			return map[string]interface{}{"codes": codes}
		}},

	// --- Alerts ---
	{Key: "low_level", Name: "Low Level", Component: ComponentBinarySensor, DeviceClass: "problem", Icon: "mdi:alert", Precision: -1,
		Value: func(s *Snapshot) interface{} { return onOff(s.Result.Alerts.LowLevel) },
		Attributes: func(s *Snapshot) map[string]interface{} {
			return map[string]interface{}{
				"current_level": round2(s.Result.Tank.Level * 100),
				"threshold":     round2(s.Result.Config.LowThreshold * 100),
			}
		}},
	{Key: "refill_recommended", Name: "Refill Recommended", Component: ComponentBinarySensor, DeviceClass: "problem", Icon: "mdi:gas-station", Precision: -1,
		Value: func(s *Snapshot) interface{} { return onOff(s.Result.Alerts.RefillRecommended) },
		Attributes: func(s *Snapshot) map[string]interface{} {
			return map[string]interface{}{
				"current_level":      round2(s.Result.Tank.Level * 100),
				"threshold":          round2(s.Result.Config.RefillThreshold * 100),
				"recommended_liters": num(s.Result.Projection.RecommendedLiters),
				"recommended_cost":   num(s.Result.Projection.RecommendedCost),
			}
		}},
	{Key: "solar_active", Name: "Solar Active", Component: ComponentBinarySensor, DeviceClass: "running", Icon: "mdi:solar-power-variant", Precision: -1, SolarOnly: true,
		Value: func(s *Snapshot) interface{} { return onOff(s.Result.Alerts.SolarActive) },
		Attributes: func(s *Snapshot) map[string]interface{} {
			if solar(s) == nil {
				return nil
			}
			return map[string]interface{}{
				"heating_mode":    solar(s).HeatingMode,
				"savings_monthly": num(solar(s).SavingsMonthly),
			}
		}},

	// --- Controls ---
	{Key: "tank_level_input", Name: "Set Tank Level", Component: ComponentNumber, Unit: "%", Icon: "mdi:propane-tank", Category: "config", Precision: -1,
		Command: tank.ServiceUpdateLevel, Min: 0, Max: 100, Step: 1, Mode: "slider",
		Value: func(s *Snapshot) interface{} { return round2(s.Result.Tank.Level * 100) }},
	{Key: "price_per_liter_input", Name: "Gas Price", Component: ComponentNumber, Unit: currency + "/L", Icon: "mdi:currency-usd", Category: "config", Precision: -1,
		Command: tank.ServiceUpdatePrice, Min: 8, Max: 20, Step: 0.01, Mode: "box",
		Value: func(s *Snapshot) interface{} { return s.Result.Config.PricePerLiter }},
	{Key: "refill_liters_input", Name: "Refill Liters", Component: ComponentNumber, Unit: "L", Icon: "mdi:gas-station", Precision: -1,
		Command: tank.ServiceSetRefillInput, Min: 10, Max: 200, Step: 1, Mode: "box",
		Value: func(s *Snapshot) interface{} { return num(s.RefillInput) }},
	{Key: "record_refill", Name: "Record Refill", Component: ComponentButton, Icon: "mdi:gas-station-outline", Precision: -1,
		Command: tank.ServiceRecordFromInput},
	{Key: "heating_mode", Name: "Heating Mode", Component: ComponentSelect, Icon: "mdi:water-boiler", Category: "config", Precision: -1,
		Command: tank.ServiceSetHeatingMode, Options: heatingModeOptions(),
		Value: func(s *Snapshot) interface{} { return string(s.Result.Config.HeatingMode) }},
	{Key: "refill_strategy", Name: "Refill Strategy", Component: ComponentSelect, Icon: "mdi:strategy", Category: "config", Precision: -1,
		Command: tank.ServiceSetStrategy, Options: engine.StrategyNames(),
		Value: func(s *Snapshot) interface{} { return s.Result.Strategy.Current }},
}

func heatingModeOptions() []string {
	modes := engine.HeatingModes()
	out := make([]string, 0, len(modes))
	for _, m := range modes {
		out = append(out, string(m))
	}
	return out
}

// Entities returns the definitions exposed for a tank with or without solar.
func Entities(hasSolar bool) []EntityDefinition {
	out := make([]EntityDefinition, 0, len(AllEntities))
	for _, d := range AllEntities {
		if d.SolarOnly && !hasSolar {
			continue
		}
		out = append(out, d)
	}
	return out
}

// GetEntityByKey returns an entity definition by its key
func GetEntityByKey(key string) *EntityDefinition {
	for i := range AllEntities {
		if AllEntities[i].Key == key {
			return &AllEntities[i]
		}
	}
	return nil
}
