// Package metrics exports pipeline activity as Prometheus metrics.
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/goforbroke1006/stagechain"
)

// Collector records stage transitions, countdown ticks and completion publishes.
// It owns its own registry so several collectors can coexist in tests.
type Collector struct {
	registry *prometheus.Registry

	transitions *prometheus.CounterVec
	running     prometheus.Gauge
	duration    *prometheus.HistogramVec
	ticks       *prometheus.CounterVec
	remaining   *prometheus.GaugeVec
	publishes   *prometheus.CounterVec

	mu      sync.Mutex
	started map[string]time.Time
	now     func() time.Time
}

func NewCollector() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		transitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stagechain_stage_transitions_total",
				Help: "Stage lifecycle transitions by kind and target state",
			},
			[]string{"kind", "state"},
		),
		running: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "stagechain_stages_running",
			Help: "Stages currently running",
		}),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "stagechain_stage_duration_seconds",
				Help:    "Time from running to a terminal state",
				Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
			},
			[]string{"kind", "state"},
		),
		ticks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stagechain_countdown_ticks_total",
				Help: "Countdown status updates pushed to the notifier",
			},
			[]string{"channel_id"},
		),
		remaining: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "stagechain_countdown_remaining_ticks",
				Help: "Ticks left in the countdown of a channel",
			},
			[]string{"channel_id"},
		),
		publishes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stagechain_completion_publishes_total",
				Help: "Terminal values published to the completion registry",
			},
			[]string{"stream_key"},
		),
		started: map[string]time.Time{},
		now:     time.Now,
	}

	c.registry.MustRegister(c.transitions, c.running, c.duration, c.ticks, c.remaining, c.publishes)
	return c
}

// ObserveTransition is an OnChangedCb.
func (c *Collector) ObserveTransition(t stagechain.Transition) {
	kind := string(t.Kind)
	c.transitions.WithLabelValues(kind, string(t.State)).Inc()

	switch {
	case t.State == stagechain.Running:
		c.running.Inc()
		c.mu.Lock()
		c.started[t.StageID] = c.now()
		c.mu.Unlock()
	case t.State.IsFinished():
		c.mu.Lock()
		start, ok := c.started[t.StageID]
		delete(c.started, t.StageID)
		c.mu.Unlock()
		if ok {
			c.running.Dec()
			c.duration.WithLabelValues(kind, string(t.State)).Observe(c.now().Sub(start).Seconds())
		}
	}
}

func (c *Collector) ObserveTick(channelID string, st stagechain.CountdownState) {
	c.ticks.WithLabelValues(channelID).Inc()
	c.remaining.WithLabelValues(channelID).Set(float64(st.Remaining))
}

func (c *Collector) ObservePublish(key string) {
	c.publishes.WithLabelValues(key).Inc()
}

// Registry exposes the underlying registry so callers can register their own collectors.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the collected metrics in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}
