package engine

import (
	"math"
	"time"
)

// consumptionFigures carries the unrounded daily rate to the projection.
type consumptionFigures struct {
	daily   float64
	monthly float64
	valid   bool
}

// calculateConsumption derives consumption from the level drop since the
// most recent refill. Rates stay unknown until at least one full day has
// passed; without any refill everything is unknown.
func calculateConsumption(ordered []RefillRecord, tank tankFigures, now time.Time, log *anomalyLog) (Consumption, consumptionFigures) {
	var out Consumption

	last, ok := lastRefill(ordered)
	if !ok {
		return out, consumptionFigures{}
	}

	days := now.Sub(last.Timestamp).Hours() / 24
	if days < 0 {
		log.add(AnomalyClockSkew, days, 0, "last refill is %.1f days in the future", -days)
		return out, consumptionFigures{}
	}
	out.DaysSinceRefill = known(math.Floor(days), 0)

	levelAfter := math.Min(math.Max(last.LevelAfter, 0), 1)
	consumed := tank.usable * (levelAfter - tank.level)
	if consumed < 0 {
		log.add(AnomalyNegativeConsumption, consumed, 0,
			"level rose from %.1f%% to %.1f%% without a recorded refill", levelAfter*100, tank.level*100)
		consumed = 0
	}
	out.LitersConsumed = known(consumed, 2)

	if days < 1 {
		return out, consumptionFigures{}
	}

	daily := consumed / days
	monthly := daily * DaysPerMonth
	out.Daily = known(daily, 2)
	out.Monthly = known(monthly, 2)

	return out, consumptionFigures{daily: daily, monthly: monthly, valid: true}
}
