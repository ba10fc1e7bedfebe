package transmission

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/jkaberg/dura-gas/internal/mqtt"
	"github.com/jkaberg/dura-gas/internal/sensors"
)

// MQTTTransmitter publishes tank snapshots to Home Assistant via MQTT
// discovery.
type MQTTTransmitter struct {
	client          Publisher
	topics          mqtt.Topics
	discoveryPrefix string
	hasSolar        bool
	version         string
	logger          *logrus.Logger

	mu               sync.Mutex
	publishedConfigs map[string]bool // tracks published discovery configs
}

// HADiscoveryConfig represents Home Assistant MQTT discovery configuration
type HADiscoveryConfig struct {
	Name                string   `json:"name"`
	UniqueID            string   `json:"unique_id"`
	ObjectID            string   `json:"object_id,omitempty"`
	StateTopic          string   `json:"state_topic,omitempty"`
	ValueTemplate       string   `json:"value_template,omitempty"`
	JSONAttributesTopic string   `json:"json_attributes_topic,omitempty"`
	CommandTopic        string   `json:"command_topic,omitempty"`
	DeviceClass         string   `json:"device_class,omitempty"`
	UnitOfMeasurement   string   `json:"unit_of_measurement,omitempty"`
	Device              HADevice `json:"device"`
	AvailabilityTopic   string   `json:"availability_topic"`
	Icon                string   `json:"icon,omitempty"`
	StateClass          string   `json:"state_class,omitempty"`
	EntityCategory      string   `json:"entity_category,omitempty"`
	DisplayPrecision    *int     `json:"suggested_display_precision,omitempty"`

	// number
	Min  *float64 `json:"min,omitempty"`
	Max  *float64 `json:"max,omitempty"`
	Step *float64 `json:"step,omitempty"`
	Mode string   `json:"mode,omitempty"`

	// select
	Options []string `json:"options,omitempty"`

	// button
	PayloadPress string `json:"payload_press,omitempty"`
}

// HADevice represents the device information for Home Assistant
type HADevice struct {
	Identifiers  []string `json:"identifiers"`
	Name         string   `json:"name"`
	Model        string   `json:"model"`
	Manufacturer string   `json:"manufacturer"`
	SWVersion    string   `json:"sw_version,omitempty"`
}

// NewMQTTTransmitter creates a new MQTT transmitter
func NewMQTTTransmitter(client Publisher, topics mqtt.Topics, discoveryPrefix string, hasSolar bool, version string, logger *logrus.Logger) *MQTTTransmitter {
	return &MQTTTransmitter{
		client:           client,
		topics:           topics,
		discoveryPrefix:  discoveryPrefix,
		hasSolar:         hasSolar,
		version:          version,
		logger:           logger,
		publishedConfigs: make(map[string]bool),
	}
}

func (t *MQTTTransmitter) device() HADevice {
	return HADevice{
		Identifiers:  []string{fmt.Sprintf("dura_gas_%s", t.topics.DeviceID)},
		Name:         "DuraGas Tank",
		Model:        "LP Gas Tank",
		Manufacturer: "DuraGas",
		SWVersion:    t.version,
	}
}

// buildDiscoveryConfig maps an entity definition onto its discovery payload.
func (t *MQTTTransmitter) buildDiscoveryConfig(def sensors.EntityDefinition) HADiscoveryConfig {
	uniqueID := fmt.Sprintf("%s_%s", t.topics.DeviceID, def.Key)
	config := HADiscoveryConfig{
		Name:              def.Name,
		UniqueID:          uniqueID,
		ObjectID:          fmt.Sprintf("dura_gas_%s", def.Key),
		DeviceClass:       def.DeviceClass,
		UnitOfMeasurement: def.Unit,
		Icon:              def.Icon,
		StateClass:        def.StateClass,
		EntityCategory:    def.Category,
		AvailabilityTopic: t.topics.AvailabilityTopic(),
		Device:            t.device(),
	}
	if def.Value != nil {
		config.StateTopic = t.topics.StateTopic()
		// null renders as "None", which Home Assistant shows as unknown
		config.ValueTemplate = fmt.Sprintf("{{ value_json.%s }}", def.Key)
	}
	if def.Attributes != nil {
		config.JSONAttributesTopic = t.topics.AttributesTopic(def.Key)
	}
	if def.Precision >= 0 && def.Component == sensors.ComponentSensor && def.DeviceClass != "timestamp" {
		p := def.Precision
		config.DisplayPrecision = &p
	}
	if def.IsControl() {
		config.CommandTopic = t.topics.CommandTopic(def.Command)
	}

	switch def.Component {
	case sensors.ComponentNumber:
		lo, hi, step := def.Min, def.Max, def.Step
		config.Min, config.Max, config.Step = &lo, &hi, &step
		config.Mode = def.Mode
	case sensors.ComponentSelect:
		config.Options = def.Options
	case sensors.ComponentButton:
		config.PayloadPress = "PRESS"
	}
	return config
}

// publishDiscoveryForEntity publishes the discovery config for a single entity.
func (t *MQTTTransmitter) publishDiscoveryForEntity(def sensors.EntityDefinition) error {
	if t.publishedConfigs[def.Key] {
		return nil
	}

	topic := t.topics.DiscoveryTopic(t.discoveryPrefix, def.Component, def.Key)
	if err := t.publishConfigRaw(topic, t.buildDiscoveryConfig(def)); err != nil {
		return fmt.Errorf("failed to publish %s discovery config: %w", def.Name, err)
	}

	t.logger.WithFields(logrus.Fields{
		"entity_name": def.Name,
		"entity_id":   def.Key,
		"topic":       topic,
	}).Debug("Published entity discovery config")

	t.publishedConfigs[def.Key] = true
	return nil
}

// publishDiscoveryConfigs ensures every exposed entity has its discovery
// config published. Solar entities of a tank without solar are removed so
// a configuration change does not leave stale entities behind.
func (t *MQTTTransmitter) publishDiscoveryConfigs() {
	published := 0
	for _, def := range sensors.AllEntities {
		if def.SolarOnly && !t.hasSolar {
			if err := t.removeDiscoveryForEntity(def); err != nil {
				t.logger.WithError(err).WithField("entity", def.Key).Warn("Failed to remove discovery config")
			}
			continue
		}
		wasPublished := t.publishedConfigs[def.Key]
		if err := t.publishDiscoveryForEntity(def); err != nil {
			t.logger.WithError(err).WithField("entity", def.Name).Error("Failed to publish discovery config")
			continue
		}
		if !wasPublished {
			published++
		}
	}
	if published > 0 {
		t.logger.WithField("count", published).Info("Published Home Assistant discovery configs")
	}
}

func (t *MQTTTransmitter) removeDiscoveryForEntity(def sensors.EntityDefinition) error {
	key := "removed:" + def.Key
	if t.publishedConfigs[key] {
		return nil
	}
	topic := t.topics.DiscoveryTopic(t.discoveryPrefix, def.Component, def.Key)
	if err := t.client.Publish(topic, []byte{}, true); err != nil {
		return err
	}
	t.publishedConfigs[key] = true
	return nil
}

// ResetDiscovery forces discovery configs to be published again on the next
// transmit, e.g. after Home Assistant restarted.
func (t *MQTTTransmitter) ResetDiscovery() {
	t.mu.Lock()
	t.publishedConfigs = make(map[string]bool)
	t.mu.Unlock()
}

// publishConfigRaw publishes a raw configuration object
func (t *MQTTTransmitter) publishConfigRaw(topic string, config interface{}) error {
	payload, err := json.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to marshal discovery config: %w", err)
	}

	if err := t.client.Publish(topic, payload, true); err != nil {
		return fmt.Errorf("failed to publish discovery config to %s: %w", topic, err)
	}

	return nil
}

// Transmit sends a snapshot to MQTT
func (t *MQTTTransmitter) Transmit(s *sensors.Snapshot) error {
	if s == nil || s.Result == nil {
		return fmt.Errorf("empty snapshot")
	}
	if !t.client.IsConnected() {
		return fmt.Errorf("MQTT client not connected")
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.publishDiscoveryConfigs()

	entities := sensors.Entities(t.hasSolar)
	if err := t.publishState(s, entities); err != nil {
		return fmt.Errorf("failed to publish tank state: %w", err)
	}

	for key, payload := range sensors.BuildAttributes(s, entities) {
		if err := t.client.Publish(t.topics.AttributesTopic(key), payload, true); err != nil {
			// attributes are secondary; keep going
			t.logger.WithError(err).WithField("entity", key).Warn("Failed to publish attributes")
		}
	}

	if err := t.publishAvailability(true); err != nil {
		return fmt.Errorf("failed to publish availability: %w", err)
	}

	t.logger.Debug("Data transmitted successfully")
	return nil
}

// publishState publishes the main state payload
func (t *MQTTTransmitter) publishState(s *sensors.Snapshot, entities []sensors.EntityDefinition) error {
	payload, err := sensors.BuildState(s, entities)
	if err != nil {
		return fmt.Errorf("failed to build state payload: %w", err)
	}

	topic := t.topics.StateTopic()
	if err := t.client.Publish(topic, payload, true); err != nil {
		return fmt.Errorf("failed to publish state to %s: %w", topic, err)
	}

	t.logger.WithFields(logrus.Fields{
		"topic":   topic,
		"payload": string(payload),
	}).Info("Published tank state")

	return nil
}

// publishAvailability publishes the availability status
func (t *MQTTTransmitter) publishAvailability(online bool) error {
	payload := "online"
	if !online {
		payload = "offline"
	}

	topic := t.topics.AvailabilityTopic()
	if err := t.client.Publish(topic, []byte(payload), true); err != nil {
		return fmt.Errorf("failed to publish availability to %s: %w", topic, err)
	}
	return nil
}

// IsConnected checks if the MQTT client is connected
func (t *MQTTTransmitter) IsConnected() bool {
	return t.client.IsConnected()
}
