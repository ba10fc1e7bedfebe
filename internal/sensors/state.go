package sensors

import (
	"encoding/json"
	"time"
)

// BuildState returns the JSON state document shared by every entity. Keys
// match EntityDefinition.Key; unknown values are encoded as null.
func BuildState(s *Snapshot, entities []EntityDefinition) ([]byte, error) {
	state := make(map[string]interface{}, len(entities)+1)
	for _, d := range entities {
		if d.Value == nil {
			continue
		}
		state[d.Key] = d.Value(s)
	}
	state["last_update"] = s.Timestamp.UTC().Format(time.RFC3339)
	return json.Marshal(state)
}

// BuildAttributes returns the attribute document of every entity that has
// attributes for this snapshot, keyed by entity key.
func BuildAttributes(s *Snapshot, entities []EntityDefinition) map[string][]byte {
	out := make(map[string][]byte)
	for _, d := range entities {
		if d.Attributes == nil {
			continue
		}
		attrs := d.Attributes(s)
		if attrs == nil {
			attrs = map[string]interface{}{}
		}
		b, err := json.Marshal(attrs)
		if err != nil {
			continue
		}
		out[d.Key] = b
	}
	return out
}
