package engine

import "math"

// levelTolerance absorbs floating point noise around a full tank.
const levelTolerance = 1e-9

// clampLevel forces a level fraction into [0,1]. Anything outside is
// reported as an anomaly; NaN is treated as an empty tank.
func clampLevel(level float64, log *anomalyLog) float64 {
	switch {
	case math.IsNaN(level):
		log.add(AnomalyLevelClamped, 0, 0, "level is not a number, using 0%%")
		return 0
	case level < 0:
		log.add(AnomalyLevelClamped, level, 0, "level %.1f%% below empty, clamped to 0%%", level*100)
		return 0
	case level > 1+levelTolerance:
		log.add(AnomalyLevelClamped, level, 1, "level %.1f%% above usable capacity, clamped to 100%%", level*100)
		return 1
	case level > 1:
		return 1
	}
	return level
}

// tankFigures are the unrounded tank values shared by later stages.
type tankFigures struct {
	usable float64
	level  float64
	liters float64
}

func calculateTank(cfg Config, level float64) (TankState, tankFigures) {
	usable := cfg.UsableCapacity()
	liters := usable * level

	state := TankState{
		Capacity:       cfg.Capacity,
		UsableCapacity: round(usable, 2),
		Level:          round(level, 4),
		Liters:         round(liters, 2),
		Kilograms:      round(liters/LPGasLitersPerKg, 2),
		Value:          round(liters*cfg.PricePerLiter, 2),
	}
	return state, tankFigures{usable: usable, level: level, liters: liters}
}
