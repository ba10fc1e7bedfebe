package sensors

import (
	"time"

	"github.com/jkaberg/dura-gas/internal/engine"
)

// Home Assistant entity platforms.
const (
	ComponentSensor       = "sensor"
	ComponentBinarySensor = "binary_sensor"
	ComponentNumber       = "number"
	ComponentSelect       = "select"
	ComponentButton       = "button"
)

// Snapshot is one published view of the tank: the evaluation result plus
// the control values that live outside the engine.
type Snapshot struct {
	Timestamp   time.Time      `json:"timestamp"`
	Result      *engine.Result `json:"result"`
	RefillInput *float64       `json:"refill_input,omitempty"`
}

// EntityDefinition describes one Home Assistant entity. Value returns the
// state for a snapshot; a nil pointer (or nil interface) is published as
// JSON null, which Home Assistant shows as "unknown".
type EntityDefinition struct {
	Key         string
	Name        string
	Component   string
	DeviceClass string
	Unit        string
	StateClass  string
	Icon        string
	Category    string // "", "config" or "diagnostic"
	Precision   int    // suggested display precision, -1 = unset

	// SolarOnly entities are only exposed when solar heating is configured.
	SolarOnly bool

	Value      func(s *Snapshot) interface{}
	Attributes func(s *Snapshot) map[string]interface{}

	// Controls (number/select/button) name the service they call.
	Command string
	Min     float64
	Max     float64
	Step    float64
	Mode    string // number display mode: "box" or "slider"
	Options []string
}

// IsControl reports whether the entity accepts commands.
func (d EntityDefinition) IsControl() bool {
	return d.Command != ""
}
