package sensors

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jkaberg/dura-gas/internal/engine"
)

var testNow = time.Date(2025, time.March, 10, 12, 0, 0, 0, time.UTC)

func baseConfig() engine.Config {
	return engine.Config{
		Capacity:        180,
		UsableFraction:  0.8,
		PricePerLiter:   10.88,
		HeatingMode:     engine.HeatingGasOnly,
		Strategy:        engine.Strategy{Name: engine.StrategyFillComplete},
		LowThreshold:    0.2,
		RefillThreshold: 0.3,
	}
}

func evaluate(t *testing.T, cfg engine.Config, history []engine.RefillRecord, level float64) *Snapshot {
	t.Helper()
	res, err := engine.Evaluate(engine.Input{Config: cfg, History: history, Level: level, Now: testNow})
	require.NoError(t, err)
	return &Snapshot{Timestamp: testNow, Result: res}
}

func decodeState(t *testing.T, s *Snapshot, entities []EntityDefinition) map[string]interface{} {
	t.Helper()
	raw, err := BuildState(s, entities)
	require.NoError(t, err)
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &out))
	return out
}

func TestEntityKeysUnique(t *testing.T) {
	seen := map[string]bool{}
	for _, d := range AllEntities {
		assert.False(t, seen[d.Key], "duplicate key %s", d.Key)
		seen[d.Key] = true
		assert.NotEmpty(t, d.Name, d.Key)
		if d.Component != ComponentButton {
			assert.NotNil(t, d.Value, d.Key)
		}
		if d.Component == ComponentNumber || d.Component == ComponentSelect || d.Component == ComponentButton {
			assert.True(t, d.IsControl(), d.Key)
		}
	}
}

func TestEntitiesSolarFilter(t *testing.T) {
	without := Entities(false)
	with := Entities(true)
	assert.Greater(t, len(with), len(without))

	for _, d := range without {
		assert.False(t, d.SolarOnly, d.Key)
	}
	assert.NotNil(t, GetEntityByKey("solar_roi_accumulated"))
	assert.Nil(t, GetEntityByKey("battery_voltage"))
}

func TestBuildStateWithoutHistory(t *testing.T) {
	state := decodeState(t, evaluate(t, baseConfig(), nil, 0.5), Entities(false))

	assert.Equal(t, 50.0, state["tank_level"])
	assert.Equal(t, 72.0, state["tank_liters"])
	assert.Equal(t, "OFF", state["low_level"])

	// insufficient data is published as null, not as zero
	for _, key := range []string{"daily_consumption", "days_remaining", "next_refill_date", "last_refill_date", "monthly_cost"} {
		v, ok := state[key]
		assert.True(t, ok, key)
		assert.Nil(t, v, key)
	}
	assert.Equal(t, "2025-03-10T12:00:00Z", state["last_update"])
}

func TestBuildStateWithHistory(t *testing.T) {
	history := []engine.RefillRecord{{
		ID:            "r1",
		Timestamp:     testNow.AddDate(0, 0, -7),
		Liters:        96,
		PricePerLiter: 10.88,
		TotalCost:     1044.48,
		LevelBefore:   0.2,
		LevelAfter:    0.8667,
	}}
	s := evaluate(t, baseConfig(), history, 0.2)
	state := decodeState(t, s, Entities(false))

	assert.Equal(t, 20.0, state["tank_level"])
	assert.Equal(t, "ON", state["refill_recommended"])
	assert.Equal(t, "OFF", state["low_level"])
	assert.Equal(t, 96.0, state["last_refill_liters"])
	assert.Equal(t, "2025-03-03T12:00:00Z", state["last_refill_date"])
	assert.NotNil(t, state["daily_consumption"])
	assert.Equal(t, "fill_complete", state["refill_strategy"])
	assert.Equal(t, "gas_only", state["heating_mode"])
	assert.NotContains(t, state, "solar_roi_accumulated")

	attrs := BuildAttributes(s, Entities(false))
	var refill map[string]interface{}
	require.NoError(t, json.Unmarshal(attrs["refill_recommended"], &refill))
	assert.Equal(t, 20.0, refill["current_level"])
	assert.Equal(t, 30.0, refill["threshold"])
	assert.NotNil(t, refill["recommended_liters"])
}

func TestBuildStateSolar(t *testing.T) {
	cfg := baseConfig()
	cfg.HasSolar = true
	cfg.HeatingMode = engine.HeatingHybrid
	cfg.SolarEfficiency = 0.7
	cfg.SolarInvestment = 15000

	s := evaluate(t, cfg, nil, 0.5)
	state := decodeState(t, s, Entities(true))
	assert.Equal(t, 70.0, state["solar_efficiency_real"])
	assert.Equal(t, "ON", state["solar_active"])
	assert.Equal(t, 0.0, state["solar_roi_accumulated"])

	attrs := BuildAttributes(s, Entities(true))
	var active map[string]interface{}
	require.NoError(t, json.Unmarshal(attrs["solar_active"], &active))
	assert.Equal(t, "solar_gas_hybrid", active["heating_mode"])
}

func TestRefillInputValue(t *testing.T) {
	s := evaluate(t, baseConfig(), nil, 0.5)
	state := decodeState(t, s, Entities(false))
	assert.Nil(t, state["refill_liters_input"])

	v := 40.0
	s.RefillInput = &v
	state = decodeState(t, s, Entities(false))
	assert.Equal(t, 40.0, state["refill_liters_input"])
}

func TestMonetaryEntitiesUseCurrencyUnit(t *testing.T) {
	for _, def := range AllEntities {
		if def.DeviceClass != "monetary" {
			continue
		}
		assert.Equal(t, currency, def.Unit, def.Key)
		assert.Contains(t, []string{"", "total"}, def.StateClass, def.Key)
	}
}
