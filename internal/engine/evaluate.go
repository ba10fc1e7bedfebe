package engine

// Evaluate runs the full calculation pipeline for one observation. It is a
// pure function of its input: the only error is an invalid configuration.
// Implausible data never fails an evaluation; it is clamped and reported in
// Result.Anomalies.
func Evaluate(in Input) (*Result, error) {
	cfg := in.Config
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var log anomalyLog
	ordered := SortHistory(in.History)
	level := clampLevel(in.Level, &log)

	tank, tf := calculateTank(cfg, level)
	cons, cf := calculateConsumption(ordered, tf, in.Now, &log)

	res := &Result{
		EvaluatedAt: in.Now,
		Config: ConfigSummary{
			Capacity:        cfg.Capacity,
			UsableCapacity:  tank.UsableCapacity,
			UsableFraction:  cfg.UsableFraction,
			PricePerLiter:   cfg.PricePerLiter,
			HasSolar:        cfg.HasSolar,
			HeatingMode:     cfg.HeatingMode,
			Strategy:        cfg.Strategy.Name,
			LowThreshold:    cfg.LowThreshold,
			RefillThreshold: cfg.RefillThreshold,
		},
		Tank:        tank,
		Consumption: cons,
		Projection:  calculateProjection(cfg, tf, cf, len(ordered) > 0, in.Now, &log),
		LastRefill:  describeLastRefill(ordered),
		Strategy:    calculateStrategy(cfg, ordered, cf),
		Ledger:      in.Ledger,
	}

	if cfg.HasSolar {
		res.Solar, res.Ledger, res.LedgerChanged = calculateSolar(cfg, cf, in.Ledger, in.Now, &log)
	}

	res.Alerts = Alerts{
		LowLevel:          level < cfg.LowThreshold,
		RefillRecommended: level < cfg.RefillThreshold,
		SolarActive:       res.Solar != nil && res.Solar.Active,
	}
	res.Anomalies = log
	return res, nil
}
