package mqtt

import (
	"fmt"
	"strings"
)

// Topics builds the topic layout for one device:
//
//	dura_gas/<device>/state
//	dura_gas/<device>/availability
//	dura_gas/<device>/<entity>/attributes
//	dura_gas/<device>/cmd/<service>
//	dura_gas/<device>/event
type Topics struct {
	DeviceID string
}

// BaseTopic returns the base topic for this device. The device id is
// cleaned so every derived topic and filter agree on one spelling.
func (t Topics) BaseTopic() string {
	return BuildCleanTopic("dura_gas", t.DeviceID)
}

// DiscoveryTopic returns the Home Assistant discovery topic
func (t Topics) DiscoveryTopic(prefix, component, entityID string) string {
	return fmt.Sprintf("%s/%s/dura_gas_%s/%s/config", prefix, component, t.DeviceID, entityID)
}

func (t Topics) StateTopic() string {
	return t.BaseTopic() + "/state"
}

func (t Topics) AvailabilityTopic() string {
	return t.BaseTopic() + "/availability"
}

// EventTopic carries alert transitions. Messages are not retained.
func (t Topics) EventTopic() string {
	return t.BaseTopic() + "/event"
}

func (t Topics) AttributesTopic(entityID string) string {
	return BuildCleanTopic(t.BaseTopic(), entityID, "attributes")
}

func (t Topics) CommandTopic(service string) string {
	return BuildCleanTopic(t.BaseTopic(), "cmd", service)
}

// CommandFilter matches every command topic of the device.
func (t Topics) CommandFilter() string {
	return t.BaseTopic() + "/cmd/+"
}

// ServiceFromTopic extracts the service name from a command topic.
func (t Topics) ServiceFromTopic(topic string) (string, bool) {
	prefix := t.BaseTopic() + "/cmd/"
	if !strings.HasPrefix(topic, prefix) {
		return "", false
	}
	service := strings.TrimPrefix(topic, prefix)
	if service == "" || strings.Contains(service, "/") {
		return "", false
	}
	return service, true
}

// BuildCleanTopic ensures topic follows MQTT standards
func BuildCleanTopic(parts ...string) string {
	var cleanParts []string
	for _, part := range parts {
		clean := strings.ReplaceAll(part, " ", "_")
		clean = strings.ReplaceAll(clean, "+", "plus")
		clean = strings.ReplaceAll(clean, "#", "hash")
		clean = strings.ToLower(clean)
		cleanParts = append(cleanParts, clean)
	}
	return strings.Join(cleanParts, "/")
}
