package jrpc

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics collects engine counters. A nil *Metrics records nothing, and one
// Metrics may be shared by every engine of a server.
type Metrics struct {
	framesIn          *prometheus.CounterVec
	framesOut         prometheus.Counter
	correlationMisses prometheus.Counter
	dispatchErrors    *prometheus.CounterVec
	handlerDuration   *prometheus.HistogramVec
	pendingCalls      prometheus.Gauge
}

// NewMetrics creates the engine metrics and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		framesIn: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "jrpc",
			Name:      "frames_in_total",
			Help:      "Inbound messages by classification.",
		}, []string{"kind"}),
		framesOut: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "jrpc",
			Name:      "frames_out_total",
			Help:      "Frames handed to the sink.",
		}),
		correlationMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "jrpc",
			Name:      "correlation_misses_total",
			Help:      "Responses and errors that matched no pending call.",
		}),
		dispatchErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "jrpc",
			Name:      "dispatch_errors_total",
			Help:      "Error replies produced by the dispatcher, by code.",
		}, []string{"code"}),
		handlerDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "jrpc",
			Name:      "handler_duration_seconds",
			Help:      "Handler latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
		pendingCalls: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "jrpc",
			Name:      "pending_calls",
			Help:      "Outbound calls awaiting a response.",
		}),
	}
	if reg != nil {
		reg.MustRegister(
			m.framesIn,
			m.framesOut,
			m.correlationMisses,
			m.dispatchErrors,
			m.handlerDuration,
			m.pendingCalls,
		)
	}
	return m
}

func (m *Metrics) frameIn(kind string) {
	if m == nil {
		return
	}
	m.framesIn.WithLabelValues(kind).Inc()
}

func (m *Metrics) frameOut() {
	if m == nil {
		return
	}
	m.framesOut.Inc()
}

func (m *Metrics) correlationMiss() {
	if m == nil {
		return
	}
	m.correlationMisses.Inc()
}

func (m *Metrics) dispatchError(code int) {
	if m == nil {
		return
	}
	m.dispatchErrors.WithLabelValues(strconv.Itoa(code)).Inc()
}

func (m *Metrics) observe(method string, d time.Duration) {
	if m == nil {
		return
	}
	m.handlerDuration.WithLabelValues(method).Observe(d.Seconds())
}

func (m *Metrics) pendingAdd(delta int) {
	if m == nil {
		return
	}
	m.pendingCalls.Add(float64(delta))
}
