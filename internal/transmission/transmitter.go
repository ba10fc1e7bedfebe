package transmission

import "github.com/jkaberg/dura-gas/internal/sensors"

// Transmitter defines the interface for transmitting tank snapshots
type Transmitter interface {
	Transmit(s *sensors.Snapshot) error
	IsConnected() bool
}

// Publisher is the subset of the MQTT client a transmitter needs.
type Publisher interface {
	Publish(topic string, payload []byte, retained bool) error
	IsConnected() bool
}
