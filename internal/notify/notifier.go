// Package notify raises notifications when a tank alert changes state.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"time"

	"github.com/sirupsen/logrus"
)

// Notifier delivers one notification.
type Notifier interface {
	Notify(ctx context.Context, ev Event) error
}

// CommandNotifier runs an external program (notify-send, termux-notification,
// a shell script, ...) with the title and message appended to its arguments.
//
// A small execution timeout keeps a hanging program from blocking the
// notification loop.
type CommandNotifier struct {
	path    string
	args    []string
	timeout time.Duration
	logger  *logrus.Logger
}

// NewCommandNotifier returns a notifier for path invoked as
// `path args... title message`.
func NewCommandNotifier(path string, args []string, logger *logrus.Logger) *CommandNotifier {
	return &CommandNotifier{
		path:    path,
		args:    args,
		timeout: 5 * time.Second,
		logger:  logger,
	}
}

// Notify runs the command.
func (n *CommandNotifier) Notify(ctx context.Context, ev Event) error {
	if ev.Title == "" {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()

	args := append(append([]string(nil), n.args...), ev.Title, ev.Message)
	if out, err := exec.CommandContext(ctx, n.path, args...).CombinedOutput(); err != nil {
		return fmt.Errorf("%s: %w (%s)", n.path, err, out)
	}
	n.logger.WithField("alert", ev.Alert).Debug("Notification command executed")
	return nil
}

// Publisher is the subset of the MQTT client needed for event messages.
type Publisher interface {
	Publish(topic string, payload []byte, retained bool) error
}

// MQTTNotifier publishes events as JSON, not retained, so automations can
// react to them.
type MQTTNotifier struct {
	client Publisher
	topic  string
}

// NewMQTTNotifier publishes on topic.
func NewMQTTNotifier(client Publisher, topic string) *MQTTNotifier {
	return &MQTTNotifier{client: client, topic: topic}
}

// Notify publishes the event.
func (n *MQTTNotifier) Notify(_ context.Context, ev Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return n.client.Publish(n.topic, payload, false)
}
