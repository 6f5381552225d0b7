// Package metrics provides Prometheus metrics for range-fetch clients.
//
// Collectors are registered on a caller-supplied Registerer rather than the
// global default. A nil *Recorder is valid and records nothing.
package metrics

import (
	stderrors "errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/input-output-hk/catalyst-forge-libs/rangefetch/errors"
)

// Transfer directions
const (
	DirectionDown = "down"
	DirectionUp   = "up"
)

// Recorder records request, retry, byte and client construction metrics.
type Recorder struct {
	requests    *prometheus.CounterVec
	retries     *prometheus.CounterVec
	bytes       *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	constructed *prometheus.CounterVec
}

// New registers the collectors on reg. Collectors already registered by an
// earlier Recorder on the same registry are shared. A nil reg yields nil.
func New(reg prometheus.Registerer) (*Recorder, error) {
	if reg == nil {
		return nil, nil
	}

	r := &Recorder{}
	var err error

	if r.requests, err = register(reg, prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rangefetch_requests_total",
			Help: "Total number of backend requests by outcome",
		},
		[]string{"backend", "op", "status"},
	)); err != nil {
		return nil, err
	}

	if r.retries, err = register(reg, prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rangefetch_retries_total",
			Help: "Total number of retried requests",
		},
		[]string{"backend"},
	)); err != nil {
		return nil, err
	}

	if r.bytes, err = register(reg, prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rangefetch_bytes_total",
			Help: "Total bytes transferred",
		},
		[]string{"backend", "direction"},
	)); err != nil {
		return nil, err
	}

	if r.duration, err = register(reg, prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "rangefetch_request_duration_seconds",
			Help:    "Backend request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"backend", "op"},
	)); err != nil {
		return nil, err
	}

	if r.constructed, err = register(reg, prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rangefetch_clients_constructed_total",
			Help: "Total number of backend clients constructed",
		},
		[]string{"backend"},
	)); err != nil {
		return nil, err
	}

	return r, nil
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if stderrors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

// Status maps a request error onto a low-cardinality label value.
func Status(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.IsApplication(err):
		return "application_error"
	case errors.Retryable(err):
		return "transport_error"
	default:
		return "invalid"
	}
}

// ObserveRequest records one finished request.
func (r *Recorder) ObserveRequest(backend, op string, started time.Time, err error) {
	if r == nil {
		return
	}
	r.requests.WithLabelValues(backend, op, Status(err)).Inc()
	r.duration.WithLabelValues(backend, op).Observe(time.Since(started).Seconds())
}

// Retry records one retried request.
func (r *Recorder) Retry(backend string) {
	if r == nil {
		return
	}
	r.retries.WithLabelValues(backend).Inc()
}

// Bytes records transferred bytes.
func (r *Recorder) Bytes(backend, direction string, n int) {
	if r == nil || n <= 0 {
		return
	}
	r.bytes.WithLabelValues(backend, direction).Add(float64(n))
}

// ClientConstructed records a new backend client.
func (r *Recorder) ClientConstructed(backend string) {
	if r == nil {
		return
	}
	r.constructed.WithLabelValues(backend).Inc()
}
