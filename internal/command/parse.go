// Package command turns service payloads received over MQTT (or typed on the
// command line) into calls on a tank monitor.
package command

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jkaberg/dura-gas/internal/engine"
)

// Bounds applied to service calls before they reach the engine.
const (
	MaxRefillLiters = 200.0
	MinServicePrice = 8.0
	MaxServicePrice = 20.0
	MinCustomAmount = 100.0
	MaxCustomAmount = 2000.0
	MaxLevelPercent = 100.0
)

var refillDateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// RefillCommand is the payload of record_refill.
type RefillCommand struct {
	Liters        float64    `json:"liters"`
	PricePerLiter *float64   `json:"price_per_liter,omitempty"`
	RefillDate    *time.Time `json:"refill_date,omitempty"`
}

// StrategyCommand is the payload of set_strategy.
type StrategyCommand struct {
	Strategy     string   `json:"strategy"`
	CustomAmount *float64 `json:"custom_amount,omitempty"`
}

func invalid(field, format string, args ...interface{}) error {
	return &engine.ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

func isJSONObject(payload []byte) bool {
	return bytes.HasPrefix(bytes.TrimSpace(payload), []byte("{"))
}

// ParseNumber accepts a plain number ("12.5", as sent by Home Assistant
// number entities) or a JSON object holding field.
func ParseNumber(payload []byte, field string) (float64, error) {
	if isJSONObject(payload) {
		var doc map[string]json.RawMessage
		if err := json.Unmarshal(payload, &doc); err != nil {
			return 0, invalid(field, "malformed JSON: %v", err)
		}
		raw, ok := doc[field]
		if !ok {
			return 0, invalid(field, "missing")
		}
		return parseNumberValue(raw, field)
	}
	return parseNumberValue(payload, field)
}

func parseNumberValue(raw []byte, field string) (float64, error) {
	s := strings.Trim(strings.TrimSpace(string(raw)), `"`)
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, invalid(field, "%q is not a number", s)
	}
	return v, nil
}

// ParseString accepts a plain string or a JSON object holding field.
func ParseString(payload []byte, field string) (string, error) {
	if isJSONObject(payload) {
		var doc map[string]interface{}
		if err := json.Unmarshal(payload, &doc); err != nil {
			return "", invalid(field, "malformed JSON: %v", err)
		}
		s, ok := doc[field].(string)
		if !ok || s == "" {
			return "", invalid(field, "missing")
		}
		return s, nil
	}
	s := strings.Trim(strings.TrimSpace(string(payload)), `"`)
	if s == "" {
		return "", invalid(field, "missing")
	}
	return s, nil
}

// ParseRefill parses a record_refill payload: either a JSON object or a
// plain number of liters at the current price.
func ParseRefill(payload []byte) (RefillCommand, error) {
	if !isJSONObject(payload) {
		liters, err := ParseNumber(payload, "liters")
		if err != nil {
			return RefillCommand{}, err
		}
		cmd := RefillCommand{Liters: liters}
		return cmd, cmd.Validate()
	}

	var raw struct {
		Liters        json.RawMessage `json:"liters"`
		PricePerLiter json.RawMessage `json:"price_per_liter"`
		RefillDate    string          `json:"refill_date"`
	}
	if err := json.Unmarshal(payload, &raw); err != nil {
		return RefillCommand{}, invalid("liters", "malformed JSON: %v", err)
	}
	if len(raw.Liters) == 0 {
		return RefillCommand{}, invalid("liters", "missing")
	}

	var cmd RefillCommand
	var err error
	if cmd.Liters, err = parseNumberValue(raw.Liters, "liters"); err != nil {
		return RefillCommand{}, err
	}
	if len(raw.PricePerLiter) > 0 && string(raw.PricePerLiter) != "null" {
		price, err := parseNumberValue(raw.PricePerLiter, "price_per_liter")
		if err != nil {
			return RefillCommand{}, err
		}
		cmd.PricePerLiter = &price
	}
	if raw.RefillDate != "" {
		ts, err := ParseDate(raw.RefillDate)
		if err != nil {
			return RefillCommand{}, err
		}
		cmd.RefillDate = &ts
	}
	return cmd, cmd.Validate()
}

// ParseDate accepts RFC 3339 and the common Home Assistant date formats.
// Values without a zone are read as UTC.
func ParseDate(s string) (time.Time, error) {
	for _, layout := range refillDateLayouts {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts, nil
		}
	}
	return time.Time{}, invalid("refill_date", "unrecognised date %q", s)
}

// Validate applies the service bounds.
func (c RefillCommand) Validate() error {
	if c.Liters <= 0 || c.Liters > MaxRefillLiters {
		return invalid("liters", "%v is outside (0, %v]", c.Liters, MaxRefillLiters)
	}
	if c.PricePerLiter != nil {
		return ValidatePrice(*c.PricePerLiter)
	}
	return nil
}

// ValidatePrice applies the service price bounds.
func ValidatePrice(price float64) error {
	if price < MinServicePrice || price > MaxServicePrice {
		return invalid("price_per_liter", "%v is outside [%v, %v]", price, MinServicePrice, MaxServicePrice)
	}
	return nil
}

// LevelFraction converts a level percentage into an engine fraction.
func LevelFraction(percent float64) (float64, error) {
	if percent < 0 || percent > MaxLevelPercent {
		return 0, invalid("level_percent", "%v is outside [0, %v]", percent, MaxLevelPercent)
	}
	return percent / 100, nil
}

// ParseStrategy parses a set_strategy payload. A custom strategy without an
// amount falls back to defaultCustom when it is set.
func ParseStrategy(payload []byte, defaultCustom *float64) (StrategyCommand, error) {
	var cmd StrategyCommand
	if isJSONObject(payload) {
		if err := json.Unmarshal(payload, &cmd); err != nil {
			return StrategyCommand{}, invalid("strategy", "malformed JSON: %v", err)
		}
	} else {
		name, err := ParseString(payload, "strategy")
		if err != nil {
			return StrategyCommand{}, err
		}
		cmd.Strategy = name
	}
	if cmd.Strategy == "" {
		return StrategyCommand{}, invalid("strategy", "missing")
	}
	if cmd.Strategy == engine.StrategyCustom && cmd.CustomAmount == nil && defaultCustom != nil {
		v := *defaultCustom
		cmd.CustomAmount = &v
	}
	if cmd.CustomAmount != nil && cmd.Strategy == engine.StrategyCustom {
		if a := *cmd.CustomAmount; a < MinCustomAmount || a > MaxCustomAmount {
			return StrategyCommand{}, invalid("custom_amount", "%v is outside [%v, %v]", a, MinCustomAmount, MaxCustomAmount)
		}
	}
	return cmd, nil
}
