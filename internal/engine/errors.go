package engine

import "fmt"

// ValidationError is returned when an input is out of range or malformed.
// The state passed to the failing operation is left untouched.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// AnomalyCode identifies a value that was derivable but physically
// implausible and had to be clamped.
type AnomalyCode string

const (
	AnomalyLevelClamped        AnomalyCode = "level_clamped"
	AnomalyNegativeConsumption AnomalyCode = "negative_consumption"
	AnomalyOverfill            AnomalyCode = "overfill"
	AnomalyRefillOverflow      AnomalyCode = "refill_overflow"
	AnomalyClockSkew           AnomalyCode = "clock_skew"
)

// Anomaly records a clamped value. Value is what the data implied, Clamped
// what the engine used instead.
type Anomaly struct {
	Code    AnomalyCode `json:"code"`
	Message string      `json:"message"`
	Value   float64     `json:"value"`
	Clamped float64     `json:"clamped"`
}

type anomalyLog []Anomaly

func (l *anomalyLog) add(code AnomalyCode, value, clamped float64, format string, args ...interface{}) {
	*l = append(*l, Anomaly{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Value:   value,
		Clamped: clamped,
	})
}
