// Package observability exposes Prometheus metrics and otel tracing for the
// assistant pipeline.
package observability

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/zhouzirui/lifeline/backend/internal/agent"
)

// Metrics holds every collector on a private registry so tests can build as
// many instances as they like.
type Metrics struct {
	registry *prometheus.Registry

	turns         *prometheus.CounterVec
	intents       *prometheus.CounterVec
	stageDuration *prometheus.HistogramVec
	llmCalls      *prometheus.CounterVec
	llmDuration   *prometheus.HistogramVec
	retrievals    *prometheus.CounterVec
	tools         *prometheus.CounterVec
	httpRequests  *prometheus.CounterVec
	httpDuration  *prometheus.HistogramVec
}

func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		turns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lifeline_turns_total",
			Help: "Total number of processed chat turns",
		}, []string{"success"}),
		intents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lifeline_intents_total",
			Help: "Classified intents per turn",
		}, []string{"intent"}),
		stageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "lifeline_stage_duration_seconds",
			Help:    "Duration of each pipeline stage in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"stage"}),
		llmCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lifeline_llm_calls_total",
			Help: "Language model calls by provider and outcome",
		}, []string{"provider", "outcome"}),
		llmDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "lifeline_llm_call_duration_seconds",
			Help:    "Language model call latency in seconds",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60},
		}, []string{"provider"}),
		retrievals: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lifeline_retrievals_total",
			Help: "Knowledge base searches by outcome",
		}, []string{"outcome"}),
		tools: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lifeline_tool_invocations_total",
			Help: "Domain tool invocations by tool and outcome",
		}, []string{"tool", "outcome"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lifeline_http_requests_total",
			Help: "HTTP requests by method, route and status",
		}, []string{"method", "route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "lifeline_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.turns, m.intents, m.stageDuration,
		m.llmCalls, m.llmDuration,
		m.retrievals, m.tools,
		m.httpRequests, m.httpDuration,
	)
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

func (m *Metrics) RecordLLMCall(provider, outcome string, elapsed time.Duration) {
	m.llmCalls.WithLabelValues(provider, outcome).Inc()
	m.llmDuration.WithLabelValues(provider).Observe(elapsed.Seconds())
}

func (m *Metrics) RecordRetrieval(outcome string) {
	m.retrievals.WithLabelValues(outcome).Inc()
}

func (m *Metrics) RecordTool(tool, outcome string) {
	m.tools.WithLabelValues(tool, outcome).Inc()
}

func (m *Metrics) RecordHTTP(method, route string, status int, elapsed time.Duration) {
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

// Metrics is also an agent.Observer.

func (m *Metrics) TurnStarted(ctx context.Context, _, _ string) context.Context { return ctx }

func (m *Metrics) StageCompleted(_ context.Context, ev agent.StageEvent) {
	m.stageDuration.WithLabelValues(ev.Stage.String()).Observe(ev.Elapsed.Seconds())
}

func (m *Metrics) TurnFinished(_ context.Context, res agent.Result, _ time.Duration) {
	m.turns.WithLabelValues(strconv.FormatBool(res.Success)).Inc()
	if res.Intent != "" {
		m.intents.WithLabelValues(string(res.Intent)).Inc()
	}
}
