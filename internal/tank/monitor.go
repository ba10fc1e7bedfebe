// Package tank owns the persisted state of one monitored tank. It loads and
// saves that state through a store.Store, runs the calculation engine on it
// and serializes every mutation.
package tank

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/oklog/ulid/v2"
	"github.com/sirupsen/logrus"

	"github.com/jkaberg/dura-gas/internal/engine"
	"github.com/jkaberg/dura-gas/internal/store"
)

// Service names, shared with the command layer and metrics.
const (
	ServiceRecordRefill    = "record_refill"
	ServiceUpdateLevel     = "update_level"
	ServiceUpdatePrice     = "update_price"
	ServiceSetHeatingMode  = "set_heating_mode"
	ServiceSetStrategy     = "set_strategy"
	ServiceSetRefillInput  = "refill_liters"
	ServiceRecordFromInput = "record_refill_button"
)

const documentVersion = 1

// legacyCustomAmount is assumed for stored custom strategies saved without
// an amount.
const legacyCustomAmount = 400.0

type document struct {
	Version int          `json:"version"`
	State   engine.State `json:"state"`
}

// Options tune a Monitor. Zero values select defaults.
type Options struct {
	Now      func() time.Time
	Location *time.Location
	// RetryInitial is the first delay before a failed save is retried and
	// RetryMaxElapsed bounds how long it is retried in total.
	RetryInitial    time.Duration
	RetryMaxElapsed time.Duration
	Observer        Observer
}

// Monitor is the coordinator of a single tank.
type Monitor struct {
	cfg     engine.Config
	initial engine.State
	store   store.Store
	key     string
	logger  *logrus.Logger

	now        func() time.Time
	loc        *time.Location
	retryFirst time.Duration
	retryMax   time.Duration
	observer   Observer

	mu     sync.Mutex
	state  engine.State
	loaded bool
	last   *engine.Result
}

// NewMonitor creates a monitor for cfg. initial seeds the state the first
// time nothing is found under key.
func NewMonitor(cfg engine.Config, initial engine.State, st store.Store, key string, logger *logrus.Logger, opts Options) *Monitor {
	m := &Monitor{
		cfg:        cfg,
		initial:    initial,
		store:      st,
		key:        key,
		logger:     logger,
		now:        opts.Now,
		loc:        opts.Location,
		retryFirst: opts.RetryInitial,
		retryMax:   opts.RetryMaxElapsed,
		observer:   opts.Observer,
	}
	if m.now == nil {
		m.now = time.Now
	}
	if m.loc == nil {
		m.loc = time.Local
	}
	if m.retryFirst <= 0 {
		m.retryFirst = 200 * time.Millisecond
	}
	if m.retryMax <= 0 {
		m.retryMax = 30 * time.Second
	}
	if m.observer == nil {
		m.observer = NoopObserver{}
	}
	return m
}

// Load reads the persisted state, seeding and saving it on first start.
func (m *Monitor) Load(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.loadLocked(ctx)
}

func (m *Monitor) loadLocked(ctx context.Context) error {
	data, err := m.store.Load(ctx, m.key)
	if errors.Is(err, store.ErrNotFound) {
		seed := m.initial.Clone()
		if err := m.persist(ctx, seed); err != nil {
			return fmt.Errorf("seed state: %w", err)
		}
		m.state = seed
		m.loaded = true
		m.logger.WithFields(logrus.Fields{
			"key":   m.key,
			"level": seed.Level,
		}).Info("Initialized new tank state")
		return nil
	}
	if err != nil {
		return fmt.Errorf("load state: %w", err)
	}

	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("decode state: %w", err)
	}
	if doc.Version != documentVersion {
		return fmt.Errorf("unsupported state version %d", doc.Version)
	}

	st := doc.State
	if st.Strategy.Name == engine.StrategyCustom && st.Strategy.CustomAmount == nil {
		amount := legacyCustomAmount
		st.Strategy.CustomAmount = &amount
		m.logger.WithField("custom_amount", amount).Warn("Stored custom strategy has no amount, using default")
	}
	st.History = engine.SortHistory(st.History)

	m.state = st
	m.loaded = true
	m.logger.WithFields(logrus.Fields{
		"key":     m.key,
		"level":   st.Level,
		"refills": len(st.History),
	}).Debug("Loaded tank state")
	return nil
}

func (m *Monitor) ensureLoaded(ctx context.Context) error {
	if m.loaded {
		return nil
	}
	return m.loadLocked(ctx)
}

// persist saves st, retrying transient failures with exponential backoff.
func (m *Monitor) persist(ctx context.Context, st engine.State) error {
	data, err := json.Marshal(document{Version: documentVersion, State: st})
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = m.retryFirst
	b.MaxElapsedTime = m.retryMax

	attempt := 0
	return backoff.Retry(func() error {
		attempt++
		if err := m.store.Save(ctx, m.key, data); err != nil {
			m.logger.WithError(err).WithField("attempt", attempt).Warn("Failed to save tank state")
			return err
		}
		return nil
	}, backoff.WithContext(b, ctx))
}

// Config returns the configuration with the runtime settings applied.
func (m *Monitor) Config() engine.Config {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.Apply(m.cfg)
}

// State returns a copy of the current state.
func (m *Monitor) State() engine.State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.Clone()
}

// Last returns the most recent evaluation result, or nil.
func (m *Monitor) Last() *engine.Result {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.last
}

// Evaluate runs the engine on the current state.
func (m *Monitor) Evaluate(ctx context.Context) (*engine.Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.ensureLoaded(ctx); err != nil {
		return nil, err
	}
	return m.evaluateLocked(ctx)
}

func (m *Monitor) evaluateLocked(ctx context.Context) (*engine.Result, error) {
	now := m.now().In(m.loc)
	res, err := engine.Evaluate(m.state.Input(m.cfg, now))
	if err != nil {
		return nil, fmt.Errorf("evaluate: %w", err)
	}
	m.logAnomalies(res.Anomalies)

	if res.LedgerChanged {
		next := m.state.Clone()
		next.Ledger = res.Ledger
		if err := m.persist(ctx, next); err != nil {
			// The ledger is recomputed from the old state next time.
			m.logger.WithError(err).Error("Failed to save solar ledger")
		} else {
			m.state = next
			m.logger.WithFields(logrus.Fields{
				"roi_accumulated": res.Ledger.Accumulated,
			}).Debug("Solar ledger updated")
		}
	}

	m.last = res
	m.observer.Evaluated(res)
	return res, nil
}

func (m *Monitor) logAnomalies(anomalies []engine.Anomaly) {
	for _, a := range anomalies {
		m.logger.WithFields(logrus.Fields{
			"code":    a.Code,
			"value":   a.Value,
			"clamped": a.Clamped,
		}).Warn(a.Message)
	}
}

type mutation func(cfg engine.Config, st engine.State, now time.Time) (engine.State, []engine.Anomaly, error)

// mutate applies fn, persists the new state and re-evaluates. On any error
// the in-memory state is left as it was.
func (m *Monitor) mutate(ctx context.Context, service string, fn mutation) (*engine.Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	res, err := m.mutateLocked(ctx, fn)
	m.observer.Mutated(service, err)
	if err != nil {
		m.logger.WithError(err).WithField("service", service).Warn("Tank update rejected")
	}
	return res, err
}

func (m *Monitor) mutateLocked(ctx context.Context, fn mutation) (*engine.Result, error) {
	if err := m.ensureLoaded(ctx); err != nil {
		return nil, err
	}

	now := m.now().In(m.loc)
	next, anomalies, err := fn(m.state.Apply(m.cfg), m.state.Clone(), now)
	if err != nil {
		return nil, err
	}
	if err := m.persist(ctx, next); err != nil {
		return nil, fmt.Errorf("save state: %w", err)
	}
	m.state = next
	m.logAnomalies(anomalies)

	return m.evaluateLocked(ctx)
}

// RecordRefill records a refill of liters. A nil price uses the current
// price and a nil timestamp means now.
func (m *Monitor) RecordRefill(ctx context.Context, liters float64, price *float64, ts *time.Time) (*engine.Result, error) {
	return m.mutate(ctx, ServiceRecordRefill, func(cfg engine.Config, st engine.State, now time.Time) (engine.State, []engine.Anomaly, error) {
		return m.recordRefill(cfg, st, liters, price, ts, now)
	})
}

func (m *Monitor) recordRefill(cfg engine.Config, st engine.State, liters float64, price *float64, ts *time.Time, now time.Time) (engine.State, []engine.Anomaly, error) {
	req := engine.RefillRequest{
		Liters:        liters,
		PricePerLiter: cfg.PricePerLiter,
		Timestamp:     ts,
	}
	if price != nil {
		req.PricePerLiter = *price
	}
	at := now
	if ts != nil {
		at = *ts
	}
	id, err := ulid.New(ulid.Timestamp(at), ulid.DefaultEntropy())
	if err != nil {
		return st, nil, fmt.Errorf("refill id: %w", err)
	}
	req.ID = id.String()

	next, anomalies, err := engine.RecordRefill(cfg, st, req, now)
	if err != nil {
		return st, nil, err
	}
	var rec engine.RefillRecord
	for _, r := range next.History {
		if r.ID == req.ID {
			rec = r
		}
	}
	m.logger.WithFields(logrus.Fields{
		"id":           rec.ID,
		"liters":       rec.Liters,
		"price":        rec.PricePerLiter,
		"total_cost":   rec.TotalCost,
		"level_before": rec.LevelBefore,
		"level_after":  rec.LevelAfter,
	}).Info("Recorded refill")
	return next, anomalies, nil
}

// RecordRefillFromInput records the liters previously entered with
// SetRefillInput at the current price and clears the input.
func (m *Monitor) RecordRefillFromInput(ctx context.Context) (*engine.Result, error) {
	return m.mutate(ctx, ServiceRecordFromInput, func(cfg engine.Config, st engine.State, now time.Time) (engine.State, []engine.Anomaly, error) {
		if st.RefillInput == nil || *st.RefillInput <= 0 {
			return st, nil, &engine.ValidationError{Field: "refill_liters", Reason: "enter the liters to record first"}
		}
		next, anomalies, err := m.recordRefill(cfg, st, *st.RefillInput, nil, nil, now)
		if err != nil {
			return st, nil, err
		}
		// published as null; zero would fall below the entity minimum
		next.RefillInput = nil
		return next, anomalies, nil
	})
}

// UpdateLevel sets the current level fraction.
func (m *Monitor) UpdateLevel(ctx context.Context, level float64) (*engine.Result, error) {
	return m.mutate(ctx, ServiceUpdateLevel, func(_ engine.Config, st engine.State, _ time.Time) (engine.State, []engine.Anomaly, error) {
		next, err := engine.UpdateLevel(st, level)
		if err == nil {
			m.logger.WithField("level", level).Info("Updated tank level")
		}
		return next, nil, err
	})
}

// UpdatePrice sets the current gas price.
func (m *Monitor) UpdatePrice(ctx context.Context, price float64) (*engine.Result, error) {
	return m.mutate(ctx, ServiceUpdatePrice, func(_ engine.Config, st engine.State, _ time.Time) (engine.State, []engine.Anomaly, error) {
		next, err := engine.UpdatePrice(st, price)
		if err == nil {
			m.logger.WithField("price_per_liter", price).Info("Updated gas price")
		}
		return next, nil, err
	})
}

// SetHeatingMode changes the water heating mode.
func (m *Monitor) SetHeatingMode(ctx context.Context, mode string) (*engine.Result, error) {
	return m.mutate(ctx, ServiceSetHeatingMode, func(_ engine.Config, st engine.State, _ time.Time) (engine.State, []engine.Anomaly, error) {
		next, err := engine.SetHeatingMode(st, mode)
		if err == nil {
			m.logger.WithField("heating_mode", mode).Info("Updated heating mode")
		}
		return next, nil, err
	})
}

// SetStrategy changes the refill strategy.
func (m *Monitor) SetStrategy(ctx context.Context, name string, customAmount *float64) (*engine.Result, error) {
	return m.mutate(ctx, ServiceSetStrategy, func(_ engine.Config, st engine.State, _ time.Time) (engine.State, []engine.Anomaly, error) {
		next, err := engine.SetStrategy(st, name, customAmount)
		if err == nil {
			m.logger.WithField("strategy", name).Info("Updated refill strategy")
		}
		return next, nil, err
	})
}

// SetRefillInput stores liters for a later RecordRefillFromInput.
func (m *Monitor) SetRefillInput(ctx context.Context, liters float64) (*engine.Result, error) {
	return m.mutate(ctx, ServiceSetRefillInput, func(_ engine.Config, st engine.State, _ time.Time) (engine.State, []engine.Anomaly, error) {
		next, err := engine.SetRefillInput(st, liters)
		return next, nil, err
	})
}
