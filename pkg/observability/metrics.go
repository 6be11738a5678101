// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the counters and histograms this engine exposes. A nil
// *Metrics is valid everywhere it's accepted — every recording method is a
// no-op on a nil receiver — so instrumentation is opt-in and never
// required for the executor or servers to function.
type Metrics struct {
	registry *prometheus.Registry

	stepsTotal    *prometheus.CounterVec
	stepDuration  *prometheus.HistogramVec
	toolCallsTotal *prometheus.CounterVec
	llmCallsTotal *prometheus.CounterVec
	llmLatency    *prometheus.HistogramVec
}

// NewMetrics builds a Metrics with its own registry, so multiple engines in
// one process (tests, or multiple agents) don't collide on Prometheus's
// default global registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		stepsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "wayflow",
			Name:      "steps_total",
			Help:      "Total number of flow step invocations, by step type and outcome.",
		}, []string{"step_type", "outcome"}),
		stepDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "wayflow",
			Name:      "step_duration_seconds",
			Help:      "Flow step invocation latency, by step type.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"step_type"}),
		toolCallsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "wayflow",
			Name:      "tool_calls_total",
			Help:      "Total number of tool invocations, by tool name and outcome.",
		}, []string{"tool_name", "outcome"}),
		llmCallsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "wayflow",
			Name:      "llm_calls_total",
			Help:      "Total number of LLM requests, by model and outcome.",
		}, []string{"model", "outcome"}),
		llmLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "wayflow",
			Name:      "llm_call_duration_seconds",
			Help:      "LLM request latency, by model.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"model"}),
	}
	reg.MustRegister(m.stepsTotal, m.stepDuration, m.toolCallsTotal, m.llmCallsTotal, m.llmLatency)
	return m
}

// Handler serves the registered metrics in Prometheus's text exposition
// format, mounted at /metrics by the A2A and Responses servers.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveStep records one step invocation's outcome and duration.
func (m *Metrics) ObserveStep(stepType, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.stepsTotal.WithLabelValues(stepType, outcome).Inc()
	m.stepDuration.WithLabelValues(stepType).Observe(d.Seconds())
}

// ObserveToolCall records one tool invocation's outcome.
func (m *Metrics) ObserveToolCall(toolName, outcome string) {
	if m == nil {
		return
	}
	m.toolCallsTotal.WithLabelValues(toolName, outcome).Inc()
}

// ObserveLLMCall records one LLM request's outcome and duration.
func (m *Metrics) ObserveLLMCall(model, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.llmCallsTotal.WithLabelValues(model, outcome).Inc()
	m.llmLatency.WithLabelValues(model).Observe(d.Seconds())
}
