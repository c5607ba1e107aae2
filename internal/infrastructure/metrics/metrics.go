// Package metrics exposes checkout and HTTP counters through Prometheus.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/paysettle/paysettle/internal/application/checkout"
	ordervo "github.com/paysettle/paysettle/internal/domain/order/valueobjects"
)

const namespace = "paysettle"

// Recorder owns a registry and every collector the service exports.
type Recorder struct {
	registry *prometheus.Registry

	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	pollTicksTotal      *prometheus.CounterVec
	pollFailures        prometheus.Counter
	orderTransitions    *prometheus.CounterVec
	gatewayRequests     *prometheus.CounterVec
}

func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "endpoint", "status"},
		),
		httpRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "endpoint"},
		),
		pollTicksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "poll_ticks_total",
				Help:      "Poller ticks by outcome",
			},
			[]string{"result"},
		),
		pollFailures: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "poll_failures_surfaced_total",
				Help:      "Consecutive poll failure streaks that reached the alert threshold",
			},
		),
		orderTransitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "order_transitions_total",
				Help:      "Applied order status transitions by target status",
			},
			[]string{"to"},
		),
		gatewayRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "gateway_requests_total",
				Help:      "Payment gateway calls by provider, operation and result",
			},
			[]string{"provider", "op", "result"},
		),
	}

	r.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		r.httpRequestsTotal,
		r.httpRequestDuration,
		r.pollTicksTotal,
		r.pollFailures,
		r.orderTransitions,
		r.gatewayRequests,
	)
	return r
}

var _ checkout.Metrics = (*Recorder)(nil)

func (r *Recorder) PollTick(result string) {
	r.pollTicksTotal.WithLabelValues(result).Inc()
}

func (r *Recorder) PollFailureSurfaced() {
	r.pollFailures.Inc()
}

func (r *Recorder) OrderTransition(to ordervo.OrderStatus) {
	r.orderTransitions.WithLabelValues(to.String()).Inc()
}

// ObserveHTTP records one served request. endpoint should be the route
// template, not the raw path, to keep label cardinality bounded.
func (r *Recorder) ObserveHTTP(method, endpoint string, status int, elapsed time.Duration) {
	r.httpRequestsTotal.WithLabelValues(method, endpoint, strconv.Itoa(status)).Inc()
	r.httpRequestDuration.WithLabelValues(method, endpoint).Observe(elapsed.Seconds())
}

func (r *Recorder) GatewayRequest(provider, op, result string) {
	r.gatewayRequests.WithLabelValues(provider, op, result).Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

// Registry is exposed for tests and additional collectors.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}
