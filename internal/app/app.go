package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/jkaberg/dura-gas/internal/bus"
	"github.com/jkaberg/dura-gas/internal/config"
	"github.com/jkaberg/dura-gas/internal/domain"
	"github.com/jkaberg/dura-gas/internal/engine"
	"github.com/jkaberg/dura-gas/internal/metrics"
	"github.com/jkaberg/dura-gas/internal/scheduler"
	"github.com/jkaberg/dura-gas/internal/sensors"
	"github.com/jkaberg/dura-gas/internal/transmission"
)

// Evaluator is the part of the tank monitor the run loop drives.
type Evaluator interface {
	Evaluate(ctx context.Context) (*engine.Result, error)
	State() engine.State
}

// ResultHandler is called with every evaluation and command result.
type ResultHandler interface {
	Handle(ctx context.Context, res *engine.Result)
}

// App wires the scheduler, the tank monitor and the transmitters together.
type App struct {
	cfg            *config.Config
	monitor        Evaluator
	triggers       <-chan scheduler.Reason
	tx             transmission.Transmitter
	metricsHandler http.Handler
	handlers       []ResultHandler
	bus            *bus.Bus
	flush          chan struct{}
	tick           time.Duration
	now            func() time.Time
	logger         *logrus.Logger
}

// New creates the application. tx and metricsHandler may be nil.
func New(cfg *config.Config, monitor Evaluator, triggers <-chan scheduler.Reason, tx transmission.Transmitter, metricsHandler http.Handler, logger *logrus.Logger) *App {
	return &App{
		cfg:            cfg,
		monitor:        monitor,
		triggers:       triggers,
		tx:             tx,
		metricsHandler: metricsHandler,
		bus:            bus.New(),
		flush:          make(chan struct{}, 1),
		tick:           time.Second,
		now:            time.Now,
		logger:         logger,
	}
}

// OnResult registers h. It must be called before Run.
func (a *App) OnResult(h ResultHandler) {
	a.handlers = append(a.handlers, h)
}

func (a *App) publish(res *engine.Result) {
	st := a.monitor.State()
	a.bus.Publish(&sensors.Snapshot{
		Timestamp:   a.now(),
		Result:      res,
		RefillInput: st.RefillInput,
	})
}

// PublishResult pushes the result of a command to the transmitters without
// waiting for the transmit interval.
func (a *App) PublishResult(res *engine.Result) {
	if res == nil {
		return
	}
	a.publish(res)
	select {
	case a.flush <- struct{}{}:
	default:
	}
}

// Run blocks until ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	grp, ctx := errgroup.WithContext(ctx)

	// Subscribe before any producer starts so the first snapshot is seen.
	sub := a.bus.Subscribe()

	// One subscription per handler so a slow notifier cannot delay MQTT.
	for _, h := range a.handlers {
		h := h
		ch := a.bus.Subscribe()
		grp.Go(func() error {
			for snap := range ch {
				if snap.Result != nil {
					h.Handle(ctx, snap.Result)
				}
			}
			return nil
		})
	}

	// Evaluation worker ---------------------------------------------------
	grp.Go(func() error {
		defer a.bus.Close()
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case reason := <-a.triggers:
				evalCtx, cancel := context.WithTimeout(ctx, config.StorageTimeout)
				res, err := a.monitor.Evaluate(evalCtx)
				cancel()
				if err != nil {
					a.logger.WithError(err).WithField("reason", reason).Error("evaluation failed")
					continue
				}
				a.logger.WithFields(logrus.Fields{
					"reason": reason,
					"level":  res.Tank.Level,
				}).Debug("Evaluated tank")
				a.publish(res)
			}
		}
	})

	// Transmitter ---------------------------------------------------------
	if a.tx != nil {
		grp.Go(func() error {
			return a.transmitLoop(ctx, sub)
		})
	}

	// Metrics -------------------------------------------------------------
	if a.metricsHandler != nil && a.cfg.HasMetrics() {
		grp.Go(func() error {
			if err := metrics.Serve(ctx, a.cfg.MetricsAddr, a.metricsHandler, a.logger); err != nil {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
	}

	if err := grp.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// transmitLoop sends the latest snapshot when the interval has elapsed and
// the snapshot changed, or when the force-update interval has elapsed.
func (a *App) transmitLoop(ctx context.Context, sub <-chan *sensors.Snapshot) error {
	var (
		latest   *sensors.Snapshot
		lastSnap *sensors.Snapshot
		lastSent time.Time
		pending  bool
	)
	ticker := time.NewTicker(a.tick)
	defer ticker.Stop()

	send := func(now time.Time) {
		if err := a.tx.Transmit(latest); err != nil {
			a.logger.WithError(err).Warn("MQTT transmit failed")
			// retry on the next interval even if nothing changed
			lastSnap = nil
			lastSent = now
			return
		}
		lastSnap = latest
		lastSent = now
		pending = false
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case snap, ok := <-sub:
			if !ok {
				return nil
			}
			latest = snap
			pending = true
		case <-a.flush:
			// the snapshot is published before the flush signal
			select {
			case snap, ok := <-sub:
				if ok {
					latest = snap
					pending = true
				}
			default:
			}
			if latest != nil {
				send(a.now())
			}
		case <-ticker.C:
			if latest == nil {
				continue
			}
			now := a.now()
			if a.due(now, lastSent, lastSnap, latest, pending) {
				send(now)
			}
		}
	}
}

func (a *App) due(now, lastSent time.Time, lastSnap, latest *sensors.Snapshot, pending bool) bool {
	elapsed := now.Sub(lastSent)
	if f := a.cfg.ForceUpdateInterval; f > 0 && elapsed >= f {
		return true
	}
	if !pending && lastSnap != nil {
		return false
	}
	if elapsed < a.cfg.MQTTInterval {
		return false
	}
	return domain.Changed(lastSnap, latest)
}
