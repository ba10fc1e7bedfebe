package engine

import "sort"

// SortHistory returns a copy of history ordered by timestamp ascending.
// Entries with equal timestamps keep their relative (insertion) order.
func SortHistory(history []RefillRecord) []RefillRecord {
	out := make([]RefillRecord, len(history))
	copy(out, history)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	return out
}

// InsertRefill adds rec to history, keeping it sorted by timestamp and
// capped at MaxRefillHistory. A new entry is placed after existing entries
// with the same timestamp; the oldest entries by timestamp are evicted.
// The input slice is not modified.
func InsertRefill(history []RefillRecord, rec RefillRecord) []RefillRecord {
	sorted := SortHistory(history)

	idx := sort.Search(len(sorted), func(i int) bool {
		return sorted[i].Timestamp.After(rec.Timestamp)
	})
	sorted = append(sorted, RefillRecord{})
	copy(sorted[idx+1:], sorted[idx:])
	sorted[idx] = rec

	if len(sorted) > MaxRefillHistory {
		sorted = sorted[len(sorted)-MaxRefillHistory:]
	}
	return sorted
}

// lastRefill returns the most recent record of an ordered history.
func lastRefill(ordered []RefillRecord) (RefillRecord, bool) {
	if len(ordered) == 0 {
		return RefillRecord{}, false
	}
	return ordered[len(ordered)-1], true
}

// averageRefill returns the mean liters of the last n refills.
func averageRefill(ordered []RefillRecord, n int) (float64, bool) {
	if len(ordered) == 0 {
		return 0, false
	}
	if n > len(ordered) {
		n = len(ordered)
	}
	var sum float64
	for _, r := range ordered[len(ordered)-n:] {
		sum += r.Liters
	}
	return sum / float64(n), true
}
