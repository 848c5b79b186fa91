// ABOUTME: Prometheus metrics for agent turns, stream events and warehouse queries
// ABOUTME: A nil *Metrics is valid and records nothing

package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "cortex_chat"

// Metrics holds every collector the application records into.
type Metrics struct {
	// StreamEvents counts decoded stream events. Labels: event
	StreamEvents *prometheus.CounterVec

	// StreamDecodeErrors counts frames that failed to decode and were skipped.
	StreamDecodeErrors prometheus.Counter

	// Turns counts finished turns. Labels: outcome
	Turns *prometheus.CounterVec

	// AgentRequestDuration measures time from POST to response headers.
	// Labels: result (ok, error)
	AgentRequestDuration *prometheus.HistogramVec

	// WarehouseQueries counts direct SQL executions. Labels: result (ok, error)
	WarehouseQueries *prometheus.CounterVec

	gatherer prometheus.Gatherer
}

// New registers all collectors with reg. Pass a fresh prometheus.NewRegistry()
// in tests to keep them isolated.
func New(reg *prometheus.Registry) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		StreamEvents: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stream_events_total",
			Help:      "Stream events received from the agent, by event name",
		}, []string{"event"}),

		StreamDecodeErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stream_decode_errors_total",
			Help:      "Stream events skipped because they could not be decoded",
		}),

		Turns: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turns_total",
			Help:      "Chat turns by outcome",
		}, []string{"outcome"}),

		AgentRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "agent_request_duration_seconds",
			Help:      "Time until the agent answered a run request",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"result"}),

		WarehouseQueries: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "warehouse_queries_total",
			Help:      "Direct SQL executions by result",
		}, []string{"result"}),

		gatherer: reg,
	}
}

// StreamEvent records one decoded event.
func (m *Metrics) StreamEvent(name string) {
	if m == nil {
		return
	}
	m.StreamEvents.WithLabelValues(name).Inc()
}

// DecodeError records one skipped frame.
func (m *Metrics) DecodeError() {
	if m == nil {
		return
	}
	m.StreamDecodeErrors.Inc()
}

// Turn records a finished turn.
func (m *Metrics) Turn(outcome string) {
	if m == nil {
		return
	}
	m.Turns.WithLabelValues(outcome).Inc()
}

// AgentRequest records how long the run request took to be answered.
func (m *Metrics) AgentRequest(d time.Duration, err error) {
	if m == nil {
		return
	}
	m.AgentRequestDuration.WithLabelValues(result(err)).Observe(d.Seconds())
}

// WarehouseQuery records one SQL execution.
func (m *Metrics) WarehouseQuery(err error) {
	if m == nil {
		return
	}
	m.WarehouseQueries.WithLabelValues(result(err)).Inc()
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
