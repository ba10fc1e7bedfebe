package mqtt

import (
	"crypto/tls"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/sirupsen/logrus"
)

// MessageHandler receives inbound messages.
type MessageHandler func(topic string, payload []byte)

// Client wraps the paho client with the topic layout of one tank device.
type Client struct {
	Topics

	client mqtt.Client
	logger *logrus.Logger

	mu   sync.Mutex
	subs map[string]MessageHandler
}

// NewClient connects to the broker at mqttURL. Supported schemes are ws,
// wss, mqtt and mqtts. The availability topic is registered as last will so
// Home Assistant marks the entities unavailable when the process dies.
func NewClient(mqttURL, deviceID string, logger *logrus.Logger) (*Client, error) {
	parsedURL, err := url.Parse(mqttURL)
	if err != nil {
		return nil, fmt.Errorf("invalid MQTT URL: %w", err)
	}

	clientID := fmt.Sprintf("dura-gas-%s", deviceID)
	opts := mqtt.NewClientOptions()

	var brokerURL string
	switch parsedURL.Scheme {
	case "ws":
		brokerURL = mqttURL
		logger.Debug("Using WebSocket MQTT connection")
	case "wss":
		brokerURL = mqttURL
		logger.Debug("Using secure WebSocket MQTT connection")
		opts.SetTLSConfig(&tls.Config{InsecureSkipVerify: true})
	case "mqtt":
		brokerURL = strings.Replace(mqttURL, "mqtt://", "tcp://", 1)
		logger.Debug("Using standard MQTT connection (TCP)")
	case "mqtts":
		brokerURL = strings.Replace(mqttURL, "mqtts://", "ssl://", 1)
		logger.Debug("Using secure MQTT connection (SSL/TLS)")
		// self-signed brokers are common on home networks
		opts.SetTLSConfig(&tls.Config{InsecureSkipVerify: true})
	default:
		return nil, fmt.Errorf("unsupported protocol scheme: %s (supported: ws, wss, mqtt, mqtts)", parsedURL.Scheme)
	}

	c := &Client{
		Topics: Topics{DeviceID: deviceID},
		logger: logger,
		subs:   make(map[string]MessageHandler),
	}

	opts.AddBroker(brokerURL)
	opts.SetClientID(clientID)
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(1 * time.Second)
	opts.SetConnectTimeout(5 * time.Second)
	opts.SetMaxReconnectInterval(10 * time.Second)
	opts.SetWill(c.AvailabilityTopic(), "offline", 1, true)

	if parsedURL.User != nil {
		username := parsedURL.User.Username()
		password, _ := parsedURL.User.Password()
		opts.SetUsername(username)
		opts.SetPassword(password)
	}

	opts.SetConnectionLostHandler(func(client mqtt.Client, err error) {
		logger.WithError(err).Warn("MQTT connection lost")
	})

	opts.SetReconnectingHandler(func(client mqtt.Client, opts *mqtt.ClientOptions) {
		logger.Debug("MQTT reconnecting...")
	})

	firstConnect := true
	opts.SetOnConnectHandler(func(client mqtt.Client) {
		if firstConnect {
			logger.Debug("MQTT connected")
			firstConnect = false
			return
		}
		logger.Info("MQTT reconnected")
		// clean sessions drop subscriptions on reconnect
		go c.resubscribe()
	})

	c.client = mqtt.NewClient(opts)

	if token := c.client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker: %w", token.Error())
	}

	logger.WithFields(logrus.Fields{
		"broker":    cleanURL(mqttURL),
		"protocol":  parsedURL.Scheme,
		"client_id": clientID,
	}).Info("MQTT client connected")

	return c, nil
}

// Publish publishes a message with QoS 1.
func (c *Client) Publish(topic string, payload []byte, retained bool) error {
	token := c.client.Publish(topic, 1, retained, payload)

	// wait with a timeout; a lost connection must not block the caller forever
	const pubTimeout = 5 * time.Second
	if !token.WaitTimeout(pubTimeout) {
		return fmt.Errorf("publish to topic %s timed out after %s", topic, pubTimeout)
	}
	if token.Error() != nil {
		return fmt.Errorf("failed to publish to topic %s: %w", topic, token.Error())
	}

	c.logger.WithFields(logrus.Fields{
		"topic":    topic,
		"size":     len(payload),
		"retained": retained,
	}).Debug("Published MQTT message")

	return nil
}

// Subscribe subscribes to a topic filter. The subscription is restored
// after a reconnect.
func (c *Client) Subscribe(topic string, handler MessageHandler) error {
	c.mu.Lock()
	c.subs[topic] = handler
	c.mu.Unlock()
	return c.subscribe(topic, handler)
}

func (c *Client) subscribe(topic string, handler MessageHandler) error {
	token := c.client.Subscribe(topic, 1, func(_ mqtt.Client, msg mqtt.Message) {
		handler(msg.Topic(), msg.Payload())
	})

	const subTimeout = 5 * time.Second
	if !token.WaitTimeout(subTimeout) {
		return fmt.Errorf("subscribe to topic %s timed out after %s", topic, subTimeout)
	}
	if token.Error() != nil {
		return fmt.Errorf("failed to subscribe to topic %s: %w", topic, token.Error())
	}

	c.logger.WithField("topic", topic).Debug("Subscribed to MQTT topic")
	return nil
}

func (c *Client) resubscribe() {
	c.mu.Lock()
	subs := make(map[string]MessageHandler, len(c.subs))
	for t, h := range c.subs {
		subs[t] = h
	}
	c.mu.Unlock()

	for topic, handler := range subs {
		if err := c.subscribe(topic, handler); err != nil {
			c.logger.WithError(err).WithField("topic", topic).Warn("Failed to restore MQTT subscription")
		}
	}
}

// IsConnected returns true if the client is connected
func (c *Client) IsConnected() bool {
	return c.client.IsConnected()
}

// Disconnect disconnects the client
func (c *Client) Disconnect(quiesce uint) {
	c.client.Disconnect(quiesce)
	c.logger.Debug("MQTT client disconnected")
}

// PublishAvailability publishes device availability status
func (c *Client) PublishAvailability(online bool) error {
	status := "offline"
	if online {
		status = "online"
	}
	return c.Publish(c.AvailabilityTopic(), []byte(status), true)
}

// cleanURL removes credentials from URL for logging
func cleanURL(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}

	if parsed.User != nil {
		parsed.User = url.UserPassword("***", "***")
	}

	return parsed.String()
}
