package domain

import (
	"reflect"
	"time"

	"github.com/jkaberg/dura-gas/internal/engine"
	"github.com/jkaberg/dura-gas/internal/sensors"
)

// Changed returns true if *cur* differs from *prev* in anything Home
// Assistant would display. Evaluation timestamps are ignored, and the
// projected refill date only counts when it moves by a full hour, so a
// steady consumption rate does not trigger a transmit on every poll.
func Changed(prev, cur *sensors.Snapshot) bool {
	if prev == nil && cur == nil {
		return false
	}
	if prev == nil || cur == nil {
		return true
	}
	if (prev.Result == nil) != (cur.Result == nil) {
		return true
	}
	if !reflect.DeepEqual(prev.RefillInput, cur.RefillInput) {
		return true
	}
	if prev.Result == nil {
		return false
	}
	return !reflect.DeepEqual(normalize(*prev.Result), normalize(*cur.Result))
}

func normalize(r engine.Result) engine.Result {
	r.EvaluatedAt = time.Time{}
	r.Ledger = engine.SolarLedger{}
	r.LedgerChanged = false
	if d := r.Projection.NextRefillDate; d != nil {
		t := d.UTC().Truncate(time.Hour)
		r.Projection.NextRefillDate = &t
	}
	if d := r.LastRefill.Date; d != nil {
		t := d.UTC()
		r.LastRefill.Date = &t
	}
	return r
}
