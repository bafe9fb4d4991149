// Package metrics exports assessment activity as Prometheus collectors fed
// from the event bus.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/kingrea/compass/internal/assessment"
)

const namespace = "compass"

// Metrics holds the assessment collectors.
type Metrics struct {
	events      *prometheus.CounterVec
	blocked     *prometheus.CounterVec
	errors      *prometheus.CounterVec
	currentStep prometheus.Gauge
	selected    prometheus.Gauge
	prioritized prometheus.Gauge
	reflections prometheus.Gauge
	lastSaved   prometheus.Gauge
}

var (
	defaultOnce sync.Once
	shared      *Metrics
)

// Default returns collectors registered with the global registry.
func Default() *Metrics {
	defaultOnce.Do(func() {
		shared = MustNew(prometheus.DefaultRegisterer)
	})
	return shared
}

// MustNew registers the collectors with reg and panics on conflicts. Tests
// pass a fresh prometheus.NewRegistry().
func MustNew(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "assessment",
			Name:      "events_total",
			Help:      "Assessment events published, by event name.",
		}, []string{"event"}),
		blocked: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "assessment",
			Name:      "navigation_blocked_total",
			Help:      "Forward navigation attempts refused by a step gate.",
		}, []string{"from_step"}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "assessment",
			Name:      "errors_total",
			Help:      "Recovered failures, by context.",
		}, []string{"context"}),
		currentStep: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "assessment",
			Name:      "current_step",
			Help:      "Step the wizard is on.",
		}),
		selected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "assessment",
			Name:      "selected_values",
			Help:      "Number of selected values.",
		}),
		prioritized: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "assessment",
			Name:      "prioritized_values",
			Help:      "Number of ranked values.",
		}),
		reflections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "assessment",
			Name:      "reflections",
			Help:      "Number of non-empty reflections.",
		}),
		lastSaved: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "assessment",
			Name:      "last_saved_timestamp_seconds",
			Help:      "Unix time of the last successful save.",
		}),
	}
	reg.MustRegister(m.events, m.blocked, m.errors, m.currentStep, m.selected, m.prioritized, m.reflections, m.lastSaved)
	return m
}

// Attach subscribes the collectors to bus. machine supplies the gauges'
// counts; it may be nil, in which case only event payloads are used.
func (m *Metrics) Attach(bus *assessment.Bus, machine *assessment.Machine) []assessment.Subscription {
	return bus.OnAll(func(event assessment.Event) {
		m.Observe(event)
		if machine != nil {
			m.sync(machine)
		}
	})
}

// Observe records one event.
func (m *Metrics) Observe(event assessment.Event) {
	m.events.WithLabelValues(string(event.Name())).Inc()
	switch e := event.(type) {
	case assessment.Initialized:
		m.currentStep.Set(float64(e.CurrentStep))
	case assessment.ProgressLoaded:
		m.currentStep.Set(float64(e.CurrentStep))
		m.selected.Set(float64(e.SelectedValues))
		m.prioritized.Set(float64(e.PrioritizedValues))
	case assessment.StepChanged:
		m.currentStep.Set(float64(e.Step))
	case assessment.NavigationBlocked:
		m.blocked.WithLabelValues(strconv.Itoa(int(e.CurrentStep))).Inc()
	case assessment.ValueToggled:
		m.selected.Set(float64(e.Count))
	case assessment.PrioritizationChanged:
		m.prioritized.Set(float64(len(e.PrioritizedValues)))
	case assessment.ErrorEvent:
		m.errors.WithLabelValues(e.Context).Inc()
	case assessment.ProgressSaved:
		m.lastSaved.SetToCurrentTime()
	case assessment.AssessmentReset:
		m.selected.Set(0)
		m.prioritized.Set(0)
		m.reflections.Set(0)
	}
}

func (m *Metrics) sync(machine *assessment.Machine) {
	m.reflections.Set(float64(machine.ReflectionCount()))
}

// Handler serves the gatherer in the Prometheus exposition format.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is done.
func Serve(ctx context.Context, addr string, gatherer prometheus.Gatherer, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler(gatherer))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("metrics listening", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()
	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		<-errCh
		return nil
	}
}
