// Package metrics provides a single Prometheus registry for the Loom
// server process, with metric families for HTTP request handling,
// agent/LLM calls, weaver lifecycle transitions, flag evaluations, and
// webhook deliveries. The server records HTTP requests, weaver
// provisioning and transitions, and flag evaluations; RecordLLMRequest,
// SetWeaverActive and RecordWebhookDelivery have no caller. Nothing here
// serves the weaver audit sidecar's `:9090` container port. The registry
// shape (a private *prometheus.Registry, one handler mounted at /metrics)
// is grounded on AgenticGoKit's internal/mcp.MCPMetrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"net/http"
)

// defaultBuckets mirrors AgenticGoKit's MCPMetrics default histogram
// buckets: fine-grained below 1s, coarser above.
var defaultBuckets = []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0}

// Registry holds every metric Loom exports and the private
// *prometheus.Registry backing them, so multiple Registry instances in
// the same process (server vs. weaver sidecar) never collide on the
// default global registry.
type Registry struct {
	registry *prometheus.Registry

	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	llmRequestsTotal    *prometheus.CounterVec
	llmRequestDuration  *prometheus.HistogramVec
	llmTokensTotal      *prometheus.CounterVec

	weaverLifecycleTotal    *prometheus.CounterVec
	weaverActive            *prometheus.GaugeVec
	weaverProvisionDuration *prometheus.HistogramVec

	flagEvaluationsTotal *prometheus.CounterVec

	webhookDeliveriesTotal    *prometheus.CounterVec
	webhookDeliveryDuration   *prometheus.HistogramVec
}

// NewRegistry constructs and registers every metric.
func NewRegistry() *Registry {
	r := &Registry{registry: prometheus.NewRegistry()}
	r.init()
	return r
}

func (r *Registry) init() {
	r.httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "loom_http_requests_total",
			Help: "Total number of HTTP requests handled by the server.",
		},
		[]string{"method", "route", "status"},
	)
	r.httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "loom_http_request_duration_seconds",
			Help:    "Duration of HTTP requests handled by the server.",
			Buckets: defaultBuckets,
		},
		[]string{"method", "route"},
	)

	r.llmRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "loom_llm_requests_total",
			Help: "Total number of LLM proxy completion requests.",
		},
		[]string{"model", "status"},
	)
	r.llmRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "loom_llm_request_duration_seconds",
			Help:    "Duration of LLM proxy completion requests.",
			Buckets: defaultBuckets,
		},
		[]string{"model"},
	)
	r.llmTokensTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "loom_llm_tokens_total",
			Help: "Total tokens consumed by LLM proxy requests.",
		},
		[]string{"model", "kind"},
	)

	r.weaverLifecycleTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "loom_weaver_lifecycle_transitions_total",
			Help: "Total number of weaver lifecycle state transitions.",
		},
		[]string{"from_state", "to_state"},
	)
	r.weaverActive = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "loom_weaver_active",
			Help: "Number of currently active weaver sandboxes.",
		},
		[]string{"org_id"},
	)
	r.weaverProvisionDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "loom_weaver_provision_duration_seconds",
			Help:    "Duration from provision request to a weaver becoming ready.",
			Buckets: defaultBuckets,
		},
		[]string{"result"},
	)

	r.flagEvaluationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "loom_flag_evaluations_total",
			Help: "Total number of flag evaluations, by resulting variant.",
		},
		[]string{"flag_key", "variant"},
	)

	r.webhookDeliveriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "loom_webhook_deliveries_total",
			Help: "Total number of webhook delivery attempts, by outcome.",
		},
		[]string{"event", "outcome"},
	)
	r.webhookDeliveryDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "loom_webhook_delivery_duration_seconds",
			Help:    "Duration of webhook delivery HTTP attempts.",
			Buckets: defaultBuckets,
		},
		[]string{"event"},
	)

	r.registry.MustRegister(
		r.httpRequestsTotal,
		r.httpRequestDuration,
		r.llmRequestsTotal,
		r.llmRequestDuration,
		r.llmTokensTotal,
		r.weaverLifecycleTotal,
		r.weaverActive,
		r.weaverProvisionDuration,
		r.flagEvaluationsTotal,
		r.webhookDeliveriesTotal,
		r.webhookDeliveryDuration,
	)
}

// Handler returns the http.Handler to mount at /metrics.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// RecordHTTPRequest records one completed HTTP request.
func (r *Registry) RecordHTTPRequest(method, route, status string, duration time.Duration) {
	r.httpRequestsTotal.WithLabelValues(method, route, status).Inc()
	r.httpRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// RecordLLMRequest records one completed LLM proxy request.
func (r *Registry) RecordLLMRequest(model, status string, duration time.Duration, inputTokens, outputTokens int) {
	r.llmRequestsTotal.WithLabelValues(model, status).Inc()
	r.llmRequestDuration.WithLabelValues(model).Observe(duration.Seconds())
	if inputTokens > 0 {
		r.llmTokensTotal.WithLabelValues(model, "input").Add(float64(inputTokens))
	}
	if outputTokens > 0 {
		r.llmTokensTotal.WithLabelValues(model, "output").Add(float64(outputTokens))
	}
}

// RecordWeaverTransition records one weaver lifecycle state transition.
func (r *Registry) RecordWeaverTransition(fromState, toState string) {
	r.weaverLifecycleTotal.WithLabelValues(fromState, toState).Inc()
}

// SetWeaverActive sets the current active-weaver gauge for an org.
func (r *Registry) SetWeaverActive(orgID string, count int) {
	r.weaverActive.WithLabelValues(orgID).Set(float64(count))
}

// RecordWeaverProvision records one provisioning attempt's outcome and
// duration.
func (r *Registry) RecordWeaverProvision(result string, duration time.Duration) {
	r.weaverProvisionDuration.WithLabelValues(result).Observe(duration.Seconds())
}

// RecordFlagEvaluation records one flag evaluation result.
func (r *Registry) RecordFlagEvaluation(flagKey, variant string) {
	r.flagEvaluationsTotal.WithLabelValues(flagKey, variant).Inc()
}

// RecordWebhookDelivery records one webhook delivery attempt.
func (r *Registry) RecordWebhookDelivery(event, outcome string, duration time.Duration) {
	r.webhookDeliveriesTotal.WithLabelValues(event, outcome).Inc()
	r.webhookDeliveryDuration.WithLabelValues(event).Observe(duration.Seconds())
}
