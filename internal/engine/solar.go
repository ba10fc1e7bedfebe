package engine

import (
	"math"
	"time"
)

// monthIndex numbers calendar months so that differences count boundaries.
func monthIndex(t time.Time) int {
	return t.Year()*12 + int(t.Month()) - 1
}

// AccrueSolarSavings credits savingsMonthly once for every calendar-month
// boundary crossed between the ledger's last update and now. Months are
// taken in now's location. Evaluating again within the same month changes
// nothing, so repeated evaluations are idempotent. The first call only
// starts the ledger clock.
//
// While savings are unknown the clock is not advanced, so months crossed in
// that time are credited by the next evaluation that knows them.
func AccrueSolarSavings(ledger SolarLedger, savingsMonthly *float64, now time.Time) (SolarLedger, bool, *Anomaly) {
	if ledger.LastUpdate == nil {
		t := now
		ledger.LastUpdate = &t
		return ledger, true, nil
	}

	crossed := monthIndex(now) - monthIndex(ledger.LastUpdate.In(now.Location()))
	switch {
	case crossed < 0:
		return ledger, false, &Anomaly{
			Code:    AnomalyClockSkew,
			Message: "solar ledger was updated after the evaluation time, skipping accrual",
			Value:   float64(crossed),
		}
	case crossed == 0:
		return ledger, false, nil
	}

	if savingsMonthly == nil {
		return ledger, false, nil
	}
	if *savingsMonthly > 0 {
		ledger.Accumulated = round(ledger.Accumulated+*savingsMonthly*float64(crossed), 2)
	}
	t := now
	ledger.LastUpdate = &t
	return ledger, true, nil
}

// calculateSolar evaluates solar savings and advances the ROI ledger.
func calculateSolar(cfg Config, cons consumptionFigures, ledger SolarLedger, now time.Time, log *anomalyLog) (*Solar, SolarLedger, bool) {
	coverage := cfg.HeatingMode.solarCoverage(cfg.SolarEfficiency)
	s := &Solar{
		HeatingMode:    cfg.HeatingMode,
		EfficiencyReal: cfg.SolarEfficiency,
		Coverage:       coverage,
		Active:         cfg.HeatingMode == HeatingHybrid || cfg.HeatingMode == HeatingSolarOnly,
	}

	if cons.valid {
		hotWater := cons.monthly * WaterHeatingFraction
		saved := hotWater * coverage
		s.HotWaterMonthly = known(hotWater, 2)
		s.HotWaterDaily = known(hotWater/DaysPerMonth, 2)
		s.LitersSaved = known(saved, 2)
		s.SavingsMonthly = known(saved*cfg.PricePerLiter, 2)
	}

	changed := false
	if ledger.Investment != cfg.SolarInvestment {
		ledger.Investment = cfg.SolarInvestment
		changed = true
	}
	if ledger.InstalledAt == nil && !cfg.SolarInstalledAt.IsZero() {
		installed := cfg.SolarInstalledAt
		ledger.InstalledAt = &installed
		changed = true
	}

	ledger, accrued, skew := AccrueSolarSavings(ledger, s.SavingsMonthly, now)
	if skew != nil {
		*log = append(*log, *skew)
	}
	changed = changed || accrued

	investment := cfg.SolarInvestment
	accumulated := ledger.Accumulated
	s.ROIAccumulated = round(accumulated, 2)
	s.PaidBack = investment > 0 && accumulated >= investment

	if investment > 0 {
		s.ROIPercentage = known(100*accumulated/investment, 2)
	}
	if s.SavingsMonthly != nil && *s.SavingsMonthly > 0 {
		s.MonthsToPayback = known((investment-accumulated) / *s.SavingsMonthly, 1)
	} else if s.PaidBack {
		s.MonthsToPayback = known(math.Min(investment-accumulated, 0), 1)
	}
	return s, ledger, changed
}
