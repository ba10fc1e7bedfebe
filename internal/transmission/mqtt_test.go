package transmission

import (
	"encoding/json"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jkaberg/dura-gas/internal/engine"
	"github.com/jkaberg/dura-gas/internal/mqtt"
	"github.com/jkaberg/dura-gas/internal/sensors"
)

type message struct {
	payload  []byte
	retained bool
}

type fakePublisher struct {
	mu        sync.Mutex
	connected bool
	failOn    string
	messages  map[string]message
	count     int
}

func newFakePublisher() *fakePublisher {
	return &fakePublisher{connected: true, messages: map[string]message{}}
}

func (f *fakePublisher) Publish(topic string, payload []byte, retained bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failOn != "" && strings.HasSuffix(topic, f.failOn) {
		return errors.New("broker unavailable")
	}
	f.messages[topic] = message{payload: payload, retained: retained}
	f.count++
	return nil
}

func (f *fakePublisher) IsConnected() bool { return f.connected }

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func snapshot(t *testing.T, hasSolar bool) *sensors.Snapshot {
	t.Helper()
	now := time.Date(2025, time.March, 10, 12, 0, 0, 0, time.UTC)
	cfg := engine.Config{
		Capacity:        180,
		UsableFraction:  0.8,
		PricePerLiter:   10.88,
		HeatingMode:     engine.HeatingGasOnly,
		Strategy:        engine.Strategy{Name: engine.StrategyFillComplete},
		LowThreshold:    0.2,
		RefillThreshold: 0.3,
	}
	if hasSolar {
		cfg.HasSolar = true
		cfg.HeatingMode = engine.HeatingHybrid
		cfg.SolarEfficiency = 0.7
	}
	res, err := engine.Evaluate(engine.Input{Config: cfg, Level: 0.15, Now: now})
	require.NoError(t, err)
	return &sensors.Snapshot{Timestamp: now, Result: res}
}

func TestTransmitPublishesDiscoveryStateAndAvailability(t *testing.T) {
	pub := newFakePublisher()
	tr := NewMQTTTransmitter(pub, mqtt.Topics{DeviceID: "casa"}, "homeassistant", false, "1.2.3", quietLogger())

	require.NoError(t, tr.Transmit(snapshot(t, false)))

	state, ok := pub.messages["dura_gas/casa/state"]
	require.True(t, ok)
	assert.True(t, state.retained)
	var doc map[string]interface{}
	require.NoError(t, json.Unmarshal(state.payload, &doc))
	assert.Equal(t, 15.0, doc["tank_level"])
	assert.Equal(t, "ON", doc["low_level"])

	assert.Equal(t, "online", string(pub.messages["dura_gas/casa/availability"].payload))

	cfgMsg, ok := pub.messages["homeassistant/sensor/dura_gas_casa/tank_level/config"]
	require.True(t, ok)
	var disc HADiscoveryConfig
	require.NoError(t, json.Unmarshal(cfgMsg.payload, &disc))
	assert.Equal(t, "casa_tank_level", disc.UniqueID)
	assert.Equal(t, "{{ value_json.tank_level }}", disc.ValueTemplate)
	assert.Equal(t, "dura_gas/casa/availability", disc.AvailabilityTopic)
	assert.Equal(t, "1.2.3", disc.Device.SWVersion)

	var low HADiscoveryConfig
	require.NoError(t, json.Unmarshal(pub.messages["homeassistant/binary_sensor/dura_gas_casa/low_level/config"].payload, &low))
	assert.Equal(t, "dura_gas/casa/low_level/attributes", low.JSONAttributesTopic)
	assert.Contains(t, pub.messages, "dura_gas/casa/low_level/attributes")

	// solar entities are cleared for a tank without solar
	removed, ok := pub.messages["homeassistant/sensor/dura_gas_casa/solar_roi_accumulated/config"]
	require.True(t, ok)
	assert.Empty(t, removed.payload)
}

func TestDiscoveryControls(t *testing.T) {
	pub := newFakePublisher()
	tr := NewMQTTTransmitter(pub, mqtt.Topics{DeviceID: "casa"}, "homeassistant", true, "dev", quietLogger())
	require.NoError(t, tr.Transmit(snapshot(t, true)))

	var num HADiscoveryConfig
	require.NoError(t, json.Unmarshal(pub.messages["homeassistant/number/dura_gas_casa/refill_liters_input/config"].payload, &num))
	assert.Equal(t, "dura_gas/casa/cmd/refill_liters", num.CommandTopic)
	require.NotNil(t, num.Min)
	assert.Equal(t, 10.0, *num.Min)
	assert.Equal(t, 200.0, *num.Max)

	var sel HADiscoveryConfig
	require.NoError(t, json.Unmarshal(pub.messages["homeassistant/select/dura_gas_casa/refill_strategy/config"].payload, &sel))
	assert.Equal(t, engine.StrategyNames(), sel.Options)

	var btn HADiscoveryConfig
	require.NoError(t, json.Unmarshal(pub.messages["homeassistant/button/dura_gas_casa/record_refill/config"].payload, &btn))
	assert.Equal(t, "dura_gas/casa/cmd/record_refill_button", btn.CommandTopic)
	assert.Empty(t, btn.StateTopic)

	var roi HADiscoveryConfig
	require.NoError(t, json.Unmarshal(pub.messages["homeassistant/sensor/dura_gas_casa/solar_roi_accumulated/config"].payload, &roi))
	assert.Equal(t, "monetary", roi.DeviceClass)
}

func TestDiscoveryPublishedOnce(t *testing.T) {
	pub := newFakePublisher()
	tr := NewMQTTTransmitter(pub, mqtt.Topics{DeviceID: "casa"}, "homeassistant", false, "dev", quietLogger())
	s := snapshot(t, false)

	require.NoError(t, tr.Transmit(s))
	first := pub.count
	require.NoError(t, tr.Transmit(s))
	second := pub.count - first
	assert.Less(t, second, first)

	tr.ResetDiscovery()
	require.NoError(t, tr.Transmit(s))
	assert.Equal(t, first, pub.count-first-second)
}

func TestTransmitErrors(t *testing.T) {
	pub := newFakePublisher()
	tr := NewMQTTTransmitter(pub, mqtt.Topics{DeviceID: "casa"}, "homeassistant", false, "dev", quietLogger())

	assert.Error(t, tr.Transmit(nil))

	pub.connected = false
	assert.Error(t, tr.Transmit(snapshot(t, false)))

	pub.connected = true
	pub.failOn = "/state"
	assert.Error(t, tr.Transmit(snapshot(t, false)))
}
