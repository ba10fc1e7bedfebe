package engine

import (
	"errors"
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordRefill(t *testing.T) {
	st := State{Level: 0.20}
	got, anomalies, err := RecordRefill(testConfig(), st, RefillRequest{Liters: 96, PricePerLiter: 10.88}, testNow)
	require.NoError(t, err)
	assert.Empty(t, anomalies)

	require.Len(t, got.History, 1)
	rec := got.History[0]
	assert.Equal(t, testNow, rec.Timestamp)
	assert.Equal(t, 1044.48, rec.TotalCost)
	assert.InDelta(t, 0.2, rec.LevelBefore, 1e-9)
	assert.InDelta(t, 0.8667, rec.LevelAfter, 1e-4)
	assert.InDelta(t, 0.8667, got.Level, 1e-4)

	// input is untouched
	assert.Empty(t, st.History)
	assert.Equal(t, 0.20, st.Level)
}

func TestRecordRefillOverflow(t *testing.T) {
	got, anomalies, err := RecordRefill(testConfig(), State{Level: 0.9}, RefillRequest{Liters: 100, PricePerLiter: 10}, testNow)
	require.NoError(t, err)
	assert.Equal(t, 1.0, got.Level)
	assert.Equal(t, 1.0, got.History[0].LevelAfter)
	require.Len(t, anomalies, 1)
	assert.Equal(t, AnomalyRefillOverflow, anomalies[0].Code)
}

func TestRecordRefillValidation(t *testing.T) {
	future := testNow.Add(time.Hour)
	tests := []struct {
		name  string
		req   RefillRequest
		field string
	}{
		{"zero liters", RefillRequest{Liters: 0, PricePerLiter: 10}, "liters"},
		{"negative liters", RefillRequest{Liters: -5, PricePerLiter: 10}, "liters"},
		{"zero price", RefillRequest{Liters: 10, PricePerLiter: 0}, "price_per_liter"},
		{"future", RefillRequest{Liters: 10, PricePerLiter: 10, Timestamp: &future}, "timestamp"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := State{Level: 0.5}
			got, _, err := RecordRefill(testConfig(), st, tt.req, testNow)
			var verr *ValidationError
			require.True(t, errors.As(err, &verr))
			assert.Equal(t, tt.field, verr.Field)
			assert.Equal(t, st, got)
		})
	}
}

func TestHistoryOrderIndependentOfInsertion(t *testing.T) {
	var records []RefillRecord
	for i := 0; i < 70; i++ {
		records = append(records, RefillRecord{
			ID:        fmt.Sprintf("r%02d", i),
			Timestamp: testNow.AddDate(0, 0, -70+i),
			Liters:    float64(10 + i),
		})
	}

	var inOrder []RefillRecord
	for _, r := range records {
		inOrder = InsertRefill(inOrder, r)
	}

	shuffled := append([]RefillRecord(nil), records...)
	rand.New(rand.NewSource(7)).Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})
	var outOfOrder []RefillRecord
	for _, r := range shuffled {
		outOfOrder = InsertRefill(outOfOrder, r)
		assert.LessOrEqual(t, len(outOfOrder), MaxRefillHistory)
	}

	// Eviction is by timestamp: the result holds the 50 most recent.
	assert.Equal(t, records[20:], inOrder)
	assert.Equal(t, inOrder, outOfOrder)
}

func TestInsertRefillTieBreak(t *testing.T) {
	a := RefillRecord{ID: "a", Timestamp: testNow}
	b := RefillRecord{ID: "b", Timestamp: testNow}
	c := RefillRecord{ID: "c", Timestamp: testNow.Add(-time.Hour)}

	h := InsertRefill(nil, a)
	h = InsertRefill(h, b)
	h = InsertRefill(h, c)

	var ids []string
	for _, r := range h {
		ids = append(ids, r.ID)
	}
	assert.Equal(t, []string{"c", "a", "b"}, ids)
}

func TestUpdateLevel(t *testing.T) {
	st := State{Level: 0.5}
	got, err := UpdateLevel(st, 0.25)
	require.NoError(t, err)
	assert.Equal(t, 0.25, got.Level)
	assert.Empty(t, got.History)

	for _, bad := range []float64{-0.01, 1.01} {
		got, err = UpdateLevel(st, bad)
		var verr *ValidationError
		require.True(t, errors.As(err, &verr), "%v", bad)
		assert.Equal(t, st, got)
	}
}

func TestConfigMutators(t *testing.T) {
	st := State{PricePerLiter: 10.88, HeatingMode: HeatingGasOnly, Strategy: Strategy{Name: StrategyFillComplete}}

	got, err := UpdatePrice(st, 11.5)
	require.NoError(t, err)
	assert.Equal(t, 11.5, got.PricePerLiter)
	_, err = UpdatePrice(st, -1)
	assert.Error(t, err)

	got, err = SetHeatingMode(st, "solar_only")
	require.NoError(t, err)
	assert.Equal(t, HeatingSolarOnly, got.HeatingMode)
	_, err = SetHeatingMode(st, "wood")
	assert.Error(t, err)

	_, err = SetStrategy(st, StrategyCustom, nil)
	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "custom_amount", verr.Field)

	got, err = SetStrategy(st, StrategyCustom, ptr(450))
	require.NoError(t, err)
	assert.Equal(t, 450.0, *got.Strategy.CustomAmount)

	got, err = SetStrategy(got, StrategyLevel60, ptr(450))
	require.NoError(t, err)
	assert.Nil(t, got.Strategy.CustomAmount)
}

func TestStateApply(t *testing.T) {
	cfg := testConfig()
	st := State{PricePerLiter: 12, HeatingMode: HeatingNone, Strategy: Strategy{Name: StrategyFixed500}}
	got := st.Apply(cfg)
	assert.Equal(t, 12.0, got.PricePerLiter)
	assert.Equal(t, HeatingNone, got.HeatingMode)
	assert.Equal(t, StrategyFixed500, got.Strategy.Name)

	assert.Equal(t, cfg, State{}.Apply(cfg))
}
