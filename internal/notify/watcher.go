package notify

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/jkaberg/dura-gas/internal/engine"
)

// Alert names, matching the binary sensor keys.
const (
	AlertLowLevel          = "low_level"
	AlertRefillRecommended = "refill_recommended"
)

// Event describes one alert transition.
type Event struct {
	Alert   string  `json:"alert"`
	Active  bool    `json:"active"`
	Title   string  `json:"title"`
	Message string  `json:"message"`
	Level   float64 `json:"level_percent"`
}

// Watcher turns consecutive results into alert transitions. The first
// result only sets the baseline, so a restart does not repeat alerts that
// were already raised.
type Watcher struct {
	notifiers []Notifier
	logger    *logrus.Logger

	seen bool
	last engine.Alerts
}

// NewWatcher creates a watcher that fans events out to notifiers.
func NewWatcher(logger *logrus.Logger, notifiers ...Notifier) *Watcher {
	return &Watcher{notifiers: notifiers, logger: logger}
}

// Observe records res and returns the transitions since the previous call.
func (w *Watcher) Observe(res *engine.Result) []Event {
	if res == nil {
		return nil
	}
	prev, seen := w.last, w.seen
	w.last, w.seen = res.Alerts, true
	if !seen {
		return nil
	}

	level := res.Tank.Level * 100
	var events []Event
	if res.Alerts.LowLevel != prev.LowLevel {
		ev := Event{Alert: AlertLowLevel, Active: res.Alerts.LowLevel, Level: level}
		if ev.Active {
			ev.Title = "Gas tank low"
			ev.Message = fmt.Sprintf("Tank at %.0f%% (threshold %.0f%%)", level, res.Config.LowThreshold*100)
		} else {
			ev.Title = "Gas tank level restored"
			ev.Message = fmt.Sprintf("Tank at %.0f%%", level)
		}
		events = append(events, ev)
	}
	if res.Alerts.RefillRecommended != prev.RefillRecommended {
		ev := Event{Alert: AlertRefillRecommended, Active: res.Alerts.RefillRecommended, Level: level}
		if ev.Active {
			ev.Title = "Gas refill recommended"
			ev.Message = fmt.Sprintf("Tank at %.0f%%", level)
			if l, c := res.Projection.RecommendedLiters, res.Projection.RecommendedCost; l != nil && c != nil {
				ev.Message += fmt.Sprintf(", order %.0f L for %.2f", *l, *c)
			}
		} else {
			ev.Title = "Gas refill no longer needed"
			ev.Message = fmt.Sprintf("Tank at %.0f%%", level)
		}
		events = append(events, ev)
	}
	return events
}

// Handle observes res and delivers its events. Delivery failures are logged
// and do not stop other notifiers.
func (w *Watcher) Handle(ctx context.Context, res *engine.Result) {
	for _, ev := range w.Observe(res) {
		w.logger.WithFields(logrus.Fields{
			"alert":  ev.Alert,
			"active": ev.Active,
		}).Info(ev.Title)
		for _, n := range w.notifiers {
			if err := n.Notify(ctx, ev); err != nil {
				w.logger.WithError(err).WithField("alert", ev.Alert).Warn("Notification failed")
			}
		}
	}
}
