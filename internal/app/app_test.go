package app

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jkaberg/dura-gas/internal/config"
	"github.com/jkaberg/dura-gas/internal/engine"
	"github.com/jkaberg/dura-gas/internal/scheduler"
	"github.com/jkaberg/dura-gas/internal/sensors"
)

type fakeEvaluator struct {
	mu    sync.Mutex
	level float64
	err   error
	calls int
}

func (f *fakeEvaluator) Evaluate(context.Context) (*engine.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &engine.Result{Tank: engine.TankState{Level: f.level}}, nil
}

func (f *fakeEvaluator) State() engine.State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return engine.State{Level: f.level}
}

func (f *fakeEvaluator) setLevel(l float64) {
	f.mu.Lock()
	f.level = l
	f.mu.Unlock()
}

type fakeTransmitter struct {
	mu   sync.Mutex
	sent []*sensors.Snapshot
	err  error
}

func (f *fakeTransmitter) Transmit(s *sensors.Snapshot) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, s)
	return nil
}

func (f *fakeTransmitter) IsConnected() bool { return true }

func (f *fakeTransmitter) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

func newTestApp(cfg *config.Config, ev *fakeEvaluator, tx *fakeTransmitter) (*App, chan scheduler.Reason) {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	triggers := make(chan scheduler.Reason, 1)
	a := New(cfg, ev, triggers, tx, nil, logger)
	a.tick = 5 * time.Millisecond
	return a, triggers
}

func run(t *testing.T, a *App) (cancel func()) {
	t.Helper()
	ctx, stop := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()
	return func() {
		stop()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(2 * time.Second):
			t.Fatal("Run did not return")
		}
	}
}

func TestTriggerEvaluatesAndTransmits(t *testing.T) {
	cfg := config.GetDefaultConfig()
	cfg.MQTTInterval = 0

	ev := &fakeEvaluator{level: 0.5}
	tx := &fakeTransmitter{}
	a, triggers := newTestApp(cfg, ev, tx)
	stop := run(t, a)
	defer stop()

	triggers <- scheduler.ReasonStartup
	require.Eventually(t, func() bool { return tx.count() == 1 }, time.Second, 5*time.Millisecond)

	// unchanged result is not sent again
	triggers <- scheduler.ReasonPoll
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, tx.count())

	ev.setLevel(0.4)
	triggers <- scheduler.ReasonPoll
	require.Eventually(t, func() bool { return tx.count() == 2 }, time.Second, 5*time.Millisecond)
}

func TestIntervalGatesTransmission(t *testing.T) {
	cfg := config.GetDefaultConfig()
	cfg.MQTTInterval = time.Hour

	ev := &fakeEvaluator{level: 0.5}
	tx := &fakeTransmitter{}
	a, triggers := newTestApp(cfg, ev, tx)
	stop := run(t, a)
	defer stop()

	triggers <- scheduler.ReasonStartup
	require.Eventually(t, func() bool { return tx.count() == 1 }, time.Second, 5*time.Millisecond)

	ev.setLevel(0.3)
	triggers <- scheduler.ReasonPoll
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, tx.count())

	// command results bypass the interval
	a.PublishResult(&engine.Result{Tank: engine.TankState{Level: 0.9}})
	require.Eventually(t, func() bool { return tx.count() == 2 }, time.Second, 5*time.Millisecond)
	tx.mu.Lock()
	assert.Equal(t, 0.9, tx.sent[1].Result.Tank.Level)
	tx.mu.Unlock()
}

func TestEvaluationErrorKeepsRunning(t *testing.T) {
	cfg := config.GetDefaultConfig()
	cfg.MQTTInterval = 0

	ev := &fakeEvaluator{err: errors.New("store offline")}
	tx := &fakeTransmitter{}
	a, triggers := newTestApp(cfg, ev, tx)
	stop := run(t, a)
	defer stop()

	triggers <- scheduler.ReasonPoll
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, 0, tx.count())

	ev.mu.Lock()
	ev.err = nil
	ev.mu.Unlock()
	triggers <- scheduler.ReasonPoll
	require.Eventually(t, func() bool { return tx.count() == 1 }, time.Second, 5*time.Millisecond)
}

func TestDue(t *testing.T) {
	cfg := config.GetDefaultConfig()
	cfg.MQTTInterval = time.Minute
	cfg.ForceUpdateInterval = time.Hour
	a, _ := newTestApp(cfg, &fakeEvaluator{}, &fakeTransmitter{})

	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	s1 := &sensors.Snapshot{Result: &engine.Result{Tank: engine.TankState{Level: 0.5}}}
	s2 := &sensors.Snapshot{Result: &engine.Result{Tank: engine.TankState{Level: 0.4}}}

	assert.True(t, a.due(now, time.Time{}, nil, s1, true))
	assert.False(t, a.due(now, now.Add(-30*time.Second), s1, s2, true), "interval not elapsed")
	assert.True(t, a.due(now, now.Add(-2*time.Minute), s1, s2, true))
	assert.False(t, a.due(now, now.Add(-2*time.Minute), s1, s1, true), "unchanged")
	assert.True(t, a.due(now, now.Add(-2*time.Hour), s1, s1, false), "forced")
}

type recordingHandler struct {
	mu     sync.Mutex
	levels []float64
}

func (r *recordingHandler) Handle(_ context.Context, res *engine.Result) {
	r.mu.Lock()
	r.levels = append(r.levels, res.Tank.Level)
	r.mu.Unlock()
}

func (r *recordingHandler) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.levels)
}

func TestResultHandlersSeeEveryPublish(t *testing.T) {
	cfg := config.GetDefaultConfig()
	cfg.MQTTInterval = time.Hour

	ev := &fakeEvaluator{level: 0.5}
	h := &recordingHandler{}
	a, triggers := newTestApp(cfg, ev, &fakeTransmitter{})
	a.OnResult(h)
	stop := run(t, a)
	defer stop()

	triggers <- scheduler.ReasonStartup
	require.Eventually(t, func() bool { return h.count() == 1 }, time.Second, 5*time.Millisecond)

	// handlers are not gated by the transmit interval
	ev.setLevel(0.2)
	triggers <- scheduler.ReasonPoll
	require.Eventually(t, func() bool { return h.count() == 2 }, time.Second, 5*time.Millisecond)

	h.mu.Lock()
	assert.Equal(t, []float64{0.5, 0.2}, h.levels)
	h.mu.Unlock()
}
