package engine

import "time"

// calculateProjection estimates depletion and the next recommended refill.
// Nothing is projected before the first refill has been recorded.
func calculateProjection(cfg Config, tank tankFigures, cons consumptionFigures, hasHistory bool, now time.Time, log *anomalyLog) Projection {
	var p Projection
	if !hasHistory {
		return p
	}

	if cons.valid && cons.daily > 0 {
		days := tank.liters / cons.daily
		p.DaysRemaining = known(days, 1)
		p.WeeksRemaining = known(days/7, 1)
		if days <= maxProjectionDays {
			next := now.Add(time.Duration(days * float64(24*time.Hour)))
			p.NextRefillDate = &next
		}
	}

	liters := cfg.Strategy.RecommendedLiters(tank.usable, tank.liters, cfg.PricePerLiter)
	p.RecommendedLiters = known(liters, 2)
	p.RecommendedCost = known(liters*cfg.PricePerLiter, 2)

	if tank.usable > 0 {
		resulting := (tank.liters + liters) / tank.usable
		if resulting > 1+levelTolerance {
			p.Overfill = true
			log.add(AnomalyOverfill, resulting, 1,
				"%s recommendation of %.2f L would fill the tank to %.1f%%", cfg.Strategy.Name, liters, resulting*100)
			resulting = 1
		} else if resulting > 1 {
			resulting = 1
		}
		p.ResultingLevel = known(resulting, 4)
	}
	return p
}

// calculateStrategy compares the monthly running cost with cylinders.
func calculateStrategy(cfg Config, ordered []RefillRecord, cons consumptionFigures) StrategyAnalysis {
	s := StrategyAnalysis{Current: cfg.Strategy.Name}

	avg, ok := averageRefill(ordered, cfg.averageWindow())
	if ok {
		s.AverageRefill = known(avg, 2)
	}
	if !cons.valid {
		return s
	}

	cost := cons.monthly * cfg.PricePerLiter
	s.MonthlyCost = known(cost, 2)
	s.VsCylinders = known(cfg.cylinderBaseline()-cost, 2)
	if ok && avg > 0 {
		s.RefillsPerMonth = known(cons.monthly/avg, 2)
	}
	return s
}

func describeLastRefill(ordered []RefillRecord) LastRefill {
	last, ok := lastRefill(ordered)
	if !ok {
		return LastRefill{}
	}
	date := last.Timestamp
	return LastRefill{
		Date:          &date,
		Liters:        known(last.Liters, 2),
		PricePerLiter: known(last.PricePerLiter, 2),
		TotalCost:     known(last.TotalCost, 2),
	}
}
