package engine

import (
	"fmt"
	"math"
)

// Refill strategy presets.
const (
	StrategyFillComplete = "fill_complete"
	StrategyFixed300     = "fixed_300"
	StrategyFixed400     = "fixed_400"
	StrategyFixed500     = "fixed_500"
	StrategyFixed600     = "fixed_600"
	StrategyLevel50      = "level_50"
	StrategyLevel60      = "level_60"
	StrategyLevel70      = "level_70"
	StrategyCustom       = "custom"
)

type strategyKind int

const (
	kindFillComplete strategyKind = iota
	kindFixedAmount
	kindLevelTarget
	kindCustomAmount
)

type strategyRule struct {
	kind  strategyKind
	value float64 // money for fixed amounts, fraction for level targets
}

// strategyTable maps preset names to their recommendation rule.
var strategyTable = map[string]strategyRule{
	StrategyFillComplete: {kind: kindFillComplete},
	StrategyFixed300:     {kind: kindFixedAmount, value: 300},
	StrategyFixed400:     {kind: kindFixedAmount, value: 400},
	StrategyFixed500:     {kind: kindFixedAmount, value: 500},
	StrategyFixed600:     {kind: kindFixedAmount, value: 600},
	StrategyLevel50:      {kind: kindLevelTarget, value: 0.50},
	StrategyLevel60:      {kind: kindLevelTarget, value: 0.60},
	StrategyLevel70:      {kind: kindLevelTarget, value: 0.70},
	StrategyCustom:       {kind: kindCustomAmount},
}

// StrategyNames lists the presets in display order.
func StrategyNames() []string {
	return []string{
		StrategyFillComplete,
		StrategyFixed300, StrategyFixed400, StrategyFixed500, StrategyFixed600,
		StrategyLevel50, StrategyLevel60, StrategyLevel70,
		StrategyCustom,
	}
}

// Strategy is a refill policy. CustomAmount is the spend per refill and is
// only meaningful (and then required) for the custom preset.
type Strategy struct {
	Name         string   `json:"name"`
	CustomAmount *float64 `json:"custom_amount,omitempty"`
}

// ParseStrategy validates a preset name and its optional custom amount.
func ParseStrategy(name string, customAmount *float64) (Strategy, error) {
	s := Strategy{Name: name}
	if name == StrategyCustom && customAmount != nil {
		amount := *customAmount
		s.CustomAmount = &amount
	}
	if err := s.Validate(); err != nil {
		return Strategy{}, err
	}
	return s, nil
}

// Validate checks that the strategy can produce a recommendation.
func (s Strategy) Validate() error {
	rule, ok := strategyTable[s.Name]
	if !ok {
		return &ValidationError{Field: "strategy", Reason: fmt.Sprintf("unknown strategy %q", s.Name)}
	}
	if rule.kind == kindCustomAmount {
		if s.CustomAmount == nil {
			return &ValidationError{Field: "custom_amount", Reason: "required for the custom strategy"}
		}
		if !finite(*s.CustomAmount) || *s.CustomAmount <= 0 {
			return &ValidationError{Field: "custom_amount", Reason: "must be greater than zero"}
		}
	}
	return nil
}

// RecommendedLiters applies the strategy table. The result is never
// negative. Fixed and custom spends may exceed the free space in the tank;
// callers flag that rather than truncate it.
func (s Strategy) RecommendedLiters(usableCapacity, currentLiters, pricePerLiter float64) float64 {
	rule, ok := strategyTable[s.Name]
	if !ok {
		rule = strategyTable[StrategyFillComplete]
	}

	var liters float64
	switch rule.kind {
	case kindFillComplete:
		liters = usableCapacity - currentLiters
	case kindFixedAmount:
		liters = rule.value / pricePerLiter
	case kindLevelTarget:
		liters = usableCapacity*rule.value - currentLiters
	case kindCustomAmount:
		if s.CustomAmount != nil {
			liters = *s.CustomAmount / pricePerLiter
		}
	}
	if !finite(liters) {
		return 0
	}
	return math.Max(liters, 0)
}
