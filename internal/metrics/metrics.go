// Package metrics exports tank evaluations to Prometheus.
package metrics

import (
	"math"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/jkaberg/dura-gas/internal/engine"
)

const namespace = "dura_gas"

// Metrics implements tank.Observer.
type Metrics struct {
	level          prometheus.Gauge
	liters         prometheus.Gauge
	value          prometheus.Gauge
	dailyLiters    prometheus.Gauge
	monthlyLiters  prometheus.Gauge
	daysRemaining  prometheus.Gauge
	recommended    prometheus.Gauge
	monthlyCost    prometheus.Gauge
	solarSavings   prometheus.Gauge
	solarROI       prometheus.Gauge
	alert          *prometheus.GaugeVec
	lastEvaluation prometheus.Gauge
	evaluations    prometheus.Counter
	anomalies      *prometheus.CounterVec
	mutations      *prometheus.CounterVec

	mu   sync.RWMutex
	last *engine.Result
}

// New registers the tank metrics with reg.
func New(reg prometheus.Registerer) *Metrics {
	gauge := func(name, help string) prometheus.Gauge {
		return prometheus.NewGauge(prometheus.GaugeOpts{Namespace: namespace, Name: name, Help: help})
	}
	m := &Metrics{
		level:          gauge("tank_level_percent", "Tank level as percentage of usable capacity"),
		liters:         gauge("tank_liters", "Gas currently in the tank"),
		value:          gauge("tank_value", "Value of the gas in the tank"),
		dailyLiters:    gauge("consumption_daily_liters", "Average daily consumption since the last refill"),
		monthlyLiters:  gauge("consumption_monthly_liters", "Projected monthly consumption"),
		daysRemaining:  gauge("days_remaining", "Days until the tank is empty"),
		recommended:    gauge("recommended_refill_liters", "Liters the refill strategy recommends"),
		monthlyCost:    gauge("monthly_cost", "Projected monthly gas cost"),
		solarSavings:   gauge("solar_savings_monthly", "Monthly savings from solar water heating"),
		solarROI:       gauge("solar_roi_accumulated", "Accumulated solar savings"),
		lastEvaluation: gauge("last_evaluation_timestamp_seconds", "Unix time of the last evaluation"),
		alert: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "alert",
			Help:      "Alert state (1 = on)",
		}, []string{"alert"}),
		evaluations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "evaluations_total",
			Help:      "Number of tank evaluations",
		}),
		anomalies: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "anomalies_total",
			Help:      "Implausible inputs clamped during evaluation",
		}, []string{"code"}),
		mutations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "mutations_total",
			Help:      "State mutations by service and result",
		}, []string{"service", "result"}),
	}

	reg.MustRegister(
		m.level, m.liters, m.value, m.dailyLiters, m.monthlyLiters,
		m.daysRemaining, m.recommended, m.monthlyCost, m.solarSavings,
		m.solarROI, m.lastEvaluation, m.alert, m.evaluations, m.anomalies,
		m.mutations,
	)
	return m
}

func opt(v *float64) float64 {
	if v == nil {
		return math.NaN()
	}
	return *v
}

func boolGauge(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// Evaluated records an evaluation result.
func (m *Metrics) Evaluated(res *engine.Result) {
	if res == nil {
		return
	}
	m.evaluations.Inc()
	for _, a := range res.Anomalies {
		m.anomalies.WithLabelValues(string(a.Code)).Inc()
	}

	m.level.Set(res.Tank.Level * 100)
	m.liters.Set(res.Tank.Liters)
	m.value.Set(res.Tank.Value)
	m.dailyLiters.Set(opt(res.Consumption.Daily))
	m.monthlyLiters.Set(opt(res.Consumption.Monthly))
	m.daysRemaining.Set(opt(res.Projection.DaysRemaining))
	m.recommended.Set(opt(res.Projection.RecommendedLiters))
	m.monthlyCost.Set(opt(res.Strategy.MonthlyCost))
	if res.Solar != nil {
		m.solarSavings.Set(opt(res.Solar.SavingsMonthly))
		m.solarROI.Set(res.Solar.ROIAccumulated)
	} else {
		m.solarSavings.Set(math.NaN())
		m.solarROI.Set(math.NaN())
	}
	m.alert.WithLabelValues("low_level").Set(boolGauge(res.Alerts.LowLevel))
	m.alert.WithLabelValues("refill_recommended").Set(boolGauge(res.Alerts.RefillRecommended))
	m.alert.WithLabelValues("solar_active").Set(boolGauge(res.Alerts.SolarActive))
	m.lastEvaluation.Set(float64(res.EvaluatedAt.Unix()))

	m.mu.Lock()
	m.last = res
	m.mu.Unlock()
}

// Mutated counts a mutation attempt.
func (m *Metrics) Mutated(service string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.mutations.WithLabelValues(service, result).Inc()
}

// Last returns the most recent evaluation seen.
func (m *Metrics) Last() *engine.Result {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.last
}

// Healthy reports whether an evaluation happened within maxAge of now.
func (m *Metrics) Healthy(now time.Time, maxAge time.Duration) bool {
	last := m.Last()
	return last != nil && now.Sub(last.EvaluatedAt) <= maxAge
}
