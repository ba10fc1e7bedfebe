package engine

import (
	"fmt"
	"time"
)

// State is the persisted, mutable part of a monitored tank. Settings that
// the user can change at runtime overlay the static configuration.
type State struct {
	Level         float64        `json:"current_level"`
	History       []RefillRecord `json:"refill_history"`
	Ledger        SolarLedger    `json:"solar"`
	PricePerLiter float64        `json:"price_per_liter"`
	HeatingMode   HeatingMode    `json:"heating_mode"`
	Strategy      Strategy       `json:"refill_strategy"`
	RefillInput   *float64       `json:"input_refill_liters,omitempty"`
}

// Clone returns a deep copy of s.
func (s State) Clone() State {
	out := s
	out.History = append([]RefillRecord(nil), s.History...)
	if s.RefillInput != nil {
		v := *s.RefillInput
		out.RefillInput = &v
	}
	if s.Strategy.CustomAmount != nil {
		v := *s.Strategy.CustomAmount
		out.Strategy.CustomAmount = &v
	}
	if s.Ledger.InstalledAt != nil {
		t := *s.Ledger.InstalledAt
		out.Ledger.InstalledAt = &t
	}
	if s.Ledger.LastUpdate != nil {
		t := *s.Ledger.LastUpdate
		out.Ledger.LastUpdate = &t
	}
	return out
}

// Apply overlays the runtime settings of s onto cfg.
func (s State) Apply(cfg Config) Config {
	if s.PricePerLiter > 0 {
		cfg.PricePerLiter = s.PricePerLiter
	}
	if s.HeatingMode != "" {
		cfg.HeatingMode = s.HeatingMode
	}
	if s.Strategy.Name != "" {
		cfg.Strategy = s.Strategy
	}
	return cfg
}

// Input builds the evaluation input for s at now.
func (s State) Input(cfg Config, now time.Time) Input {
	return Input{
		Config:  s.Apply(cfg),
		History: s.History,
		Level:   s.Level,
		Ledger:  s.Ledger,
		Now:     now,
	}
}

// RefillRequest is a refill to be recorded. A nil Timestamp means now.
type RefillRequest struct {
	ID            string
	Liters        float64
	PricePerLiter float64
	Timestamp     *time.Time
}

// RecordRefill appends a refill and raises the current level accordingly.
// The level after the refill is clamped to a full tank and flagged when the
// liters would not have fit.
func RecordRefill(cfg Config, st State, req RefillRequest, now time.Time) (State, []Anomaly, error) {
	switch {
	case !finite(req.Liters) || req.Liters <= 0:
		return st, nil, &ValidationError{Field: "liters", Reason: "must be greater than zero"}
	case !finite(req.PricePerLiter) || req.PricePerLiter <= 0:
		return st, nil, &ValidationError{Field: "price_per_liter", Reason: "must be greater than zero"}
	case req.Timestamp != nil && req.Timestamp.After(now):
		return st, nil, &ValidationError{Field: "timestamp", Reason: "must not be in the future"}
	}
	usable := cfg.UsableCapacity()
	if usable <= 0 {
		return st, nil, &ValidationError{Field: "capacity", Reason: "usable capacity must be greater than zero"}
	}

	ts := now
	if req.Timestamp != nil {
		ts = *req.Timestamp
	}

	var log anomalyLog
	before := clampLevel(st.Level, &log)
	after := before + req.Liters/usable
	if after > 1+levelTolerance {
		log.add(AnomalyRefillOverflow, after, 1,
			"%.2f L do not fit into %.2f L of free space", req.Liters, usable*(1-before))
		after = 1
	} else if after > 1 {
		after = 1
	}

	out := st.Clone()
	out.History = InsertRefill(st.History, RefillRecord{
		ID:            req.ID,
		Timestamp:     ts,
		Liters:        round(req.Liters, 2),
		PricePerLiter: req.PricePerLiter,
		TotalCost:     round(req.Liters*req.PricePerLiter, 2),
		LevelBefore:   before,
		LevelAfter:    after,
	})
	out.Level = after
	return out, log, nil
}

// UpdateLevel overrides the current level without creating a refill.
func UpdateLevel(st State, level float64) (State, error) {
	if !finite(level) || level < 0 || level > 1 {
		return st, &ValidationError{Field: "level", Reason: fmt.Sprintf("%v is outside [0, 1]", level)}
	}
	out := st.Clone()
	out.Level = level
	return out, nil
}

// UpdatePrice sets the current price per liter.
func UpdatePrice(st State, price float64) (State, error) {
	if !finite(price) || price <= 0 {
		return st, &ValidationError{Field: "price_per_liter", Reason: "must be greater than zero"}
	}
	out := st.Clone()
	out.PricePerLiter = price
	return out, nil
}

// SetHeatingMode changes how hot water is produced.
func SetHeatingMode(st State, mode string) (State, error) {
	m, err := ParseHeatingMode(mode)
	if err != nil {
		return st, err
	}
	out := st.Clone()
	out.HeatingMode = m
	return out, nil
}

// SetStrategy selects a refill strategy. The custom strategy needs an amount.
func SetStrategy(st State, name string, customAmount *float64) (State, error) {
	s, err := ParseStrategy(name, customAmount)
	if err != nil {
		return st, err
	}
	out := st.Clone()
	out.Strategy = s
	return out, nil
}

// SetRefillInput stores the liters entered for the next button refill.
func SetRefillInput(st State, liters float64) (State, error) {
	if !finite(liters) || liters < 0 {
		return st, &ValidationError{Field: "refill_liters", Reason: "must not be negative"}
	}
	out := st.Clone()
	out.RefillInput = &liters
	return out, nil
}
