package traffic

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// PromRecorder exporta os eventos como métricas Prometheus.
type PromRecorder struct {
	events   *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

func NewPromRecorder(reg prometheus.Registerer) (*PromRecorder, error) {
	events := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "novaeuropa_gateway_events_total",
		Help: "Gateway events by route, method, outcome and status",
	}, []string{"route", "method", "outcome", "status"})

	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "novaeuropa_gateway_upstream_duration_seconds",
		Help:    "Time spent waiting on the upstream, by route and outcome",
		Buckets: prometheus.DefBuckets,
	}, []string{"route", "outcome"})

	r := &PromRecorder{}
	var err error
	if r.events, err = register(reg, events); err != nil {
		return nil, err
	}
	if r.duration, err = register(reg, duration); err != nil {
		return nil, err
	}
	return r, nil
}

// register reaproveita o coletor se ele já foi registrado (ex.: dois handlers no mesmo processo).
func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		var zero C
		return zero, fmt.Errorf("register metric: %w", err)
	}
	return c, nil
}

func (r *PromRecorder) Record(_ context.Context, ev Event) error {
	status := ""
	if ev.Status > 0 {
		status = strconv.Itoa(ev.Status)
	}
	r.events.WithLabelValues(ev.Route, ev.Method, string(ev.Outcome), status).Inc()
	if ev.Duration > 0 {
		r.duration.WithLabelValues(ev.Route, string(ev.Outcome)).Observe(ev.Duration.Seconds())
	}
	return nil
}
