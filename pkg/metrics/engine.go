package metrics

import (
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "cartengine"

// Stock decrement outcomes.
const (
	OutcomeApplied      = "applied"
	OutcomeInsufficient = "insufficient"
	OutcomeError        = "error"
)

// EngineMetrics records stock ledger, order line and checkout activity.
type EngineMetrics struct {
	stockDecrements *prometheus.CounterVec
	stockIncrements prometheus.Counter
	conflictRetries *prometheus.CounterVec
	transitions     *prometheus.CounterVec
	checkouts       *prometheus.CounterVec
}

// NewEngineMetrics registers the engine metrics on the provided registerer.
// A nil registerer yields a no-op recorder.
func NewEngineMetrics(reg prometheus.Registerer) *EngineMetrics {
	if reg == nil {
		return &EngineMetrics{}
	}
	stockDecrements := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "stock_decrements_total",
		Help:      "Conditional stock decrements by outcome.",
	}, []string{"outcome"})
	stockIncrements := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "stock_increments_total",
		Help:      "Stock increments applied when paid lines are cancelled.",
	})
	conflictRetries := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "conflict_retries_total",
		Help:      "Units of work replayed after a storage conflict.",
	}, []string{"op"})
	transitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "order_line_transitions_total",
		Help:      "Order line status transitions by target status.",
	}, []string{"to"})
	checkouts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "checkouts_total",
		Help:      "Checkout attempts by kind and outcome.",
	}, []string{"kind", "outcome"})
	reg.MustRegister(stockDecrements, stockIncrements, conflictRetries, transitions, checkouts)
	return &EngineMetrics{
		stockDecrements: stockDecrements,
		stockIncrements: stockIncrements,
		conflictRetries: conflictRetries,
		transitions:     transitions,
		checkouts:       checkouts,
	}
}

func (m *EngineMetrics) IncStockDecrement(outcome string) {
	if m == nil || m.stockDecrements == nil {
		return
	}
	m.stockDecrements.WithLabelValues(normalizeLabel(outcome)).Inc()
}

func (m *EngineMetrics) IncStockIncrement() {
	if m == nil || m.stockIncrements == nil {
		return
	}
	m.stockIncrements.Inc()
}

func (m *EngineMetrics) IncConflictRetry(op string) {
	if m == nil || m.conflictRetries == nil {
		return
	}
	m.conflictRetries.WithLabelValues(normalizeLabel(op)).Inc()
}

func (m *EngineMetrics) IncTransition(to string) {
	if m == nil || m.transitions == nil {
		return
	}
	m.transitions.WithLabelValues(normalizeLabel(to)).Inc()
}

func (m *EngineMetrics) IncCheckout(kind string, success bool) {
	if m == nil || m.checkouts == nil {
		return
	}
	outcome := "success"
	if !success {
		outcome = "failure"
	}
	m.checkouts.WithLabelValues(normalizeLabel(kind), outcome).Inc()
}

// HTTPMetrics records request latency per route pattern.
type HTTPMetrics struct {
	duration *prometheus.HistogramVec
}

func NewHTTPMetrics(reg prometheus.Registerer) *HTTPMetrics {
	if reg == nil {
		return &HTTPMetrics{}
	}
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request latency by route, method and status class.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"route", "method", "status"})
	reg.MustRegister(duration)
	return &HTTPMetrics{duration: duration}
}

// Observe records one request. status is collapsed to its class (2xx, 4xx, ...).
func (m *HTTPMetrics) Observe(route, method string, status int, elapsed time.Duration) {
	if m == nil || m.duration == nil {
		return
	}
	m.duration.WithLabelValues(normalizeLabel(route), strings.ToUpper(method), statusClass(status)).Observe(elapsed.Seconds())
}

func statusClass(status int) string {
	if status < 100 || status > 599 {
		return "unknown"
	}
	return strconv.Itoa(status/100) + "xx"
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
