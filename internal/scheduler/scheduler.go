// Package scheduler decides when the tank is evaluated.
package scheduler

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// Reason tells the evaluation worker why it was woken.
type Reason string

const (
	ReasonPoll    Reason = "poll"
	ReasonMonthly Reason = "month_start"
	ReasonStartup Reason = "startup"
)

// monthlySpec fires one minute into every month so the solar ledger credits
// the finished month without waiting for the next poll.
const monthlySpec = "1 0 1 * *"

// Scheduler emits evaluation triggers from cron entries.
type Scheduler struct {
	cron     *cron.Cron
	triggers chan Reason
	logger   *logrus.Logger
}

// New creates a scheduler whose calendar entries run in loc.
func New(poll time.Duration, loc *time.Location, logger *logrus.Logger) (*Scheduler, error) {
	if poll <= 0 {
		return nil, fmt.Errorf("poll interval must be positive, got %s", poll)
	}
	if loc == nil {
		loc = time.Local
	}
	s := &Scheduler{
		cron:     cron.New(cron.WithLocation(loc)),
		triggers: make(chan Reason, 1),
		logger:   logger,
	}

	if _, err := s.cron.AddFunc(fmt.Sprintf("@every %s", poll), func() { s.fire(ReasonPoll) }); err != nil {
		return nil, fmt.Errorf("register poll task: %w", err)
	}
	if _, err := s.cron.AddFunc(monthlySpec, func() { s.fire(ReasonMonthly) }); err != nil {
		return nil, fmt.Errorf("register monthly task: %w", err)
	}
	return s, nil
}

// Triggers returns the channel evaluation requests are delivered on.
func (s *Scheduler) Triggers() <-chan Reason {
	return s.triggers
}

// fire never blocks; a pending trigger already covers this one.
func (s *Scheduler) fire(r Reason) {
	select {
	case s.triggers <- r:
	default:
		s.logger.WithField("reason", r).Debug("Evaluation already pending, skipping trigger")
	}
}

// Start starts the cron scheduler and requests an immediate evaluation.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.fire(ReasonStartup)
	s.logger.Debug("Scheduler started")
}

// Stop stops the cron scheduler and waits for running jobs.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.logger.Debug("Scheduler stopped")
}

// Next returns the next time each entry fires, for diagnostics.
func (s *Scheduler) Next() []time.Time {
	entries := s.cron.Entries()
	out := make([]time.Time, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Next)
	}
	return out
}
