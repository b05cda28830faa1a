// Package metrics exposes pipeline events as Prometheus metrics.
package metrics

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics implements pipeline.Recorder on top of Prometheus collectors.
type Metrics struct {
	namespace string

	stageRuns      *prometheus.CounterVec
	artifacts      *prometheus.CounterVec
	stagesInFlight *prometheus.GaugeVec
	pushMessages   *prometheus.CounterVec
	archives       *prometheus.CounterVec
}

// New registers the collectors with the default registry.
func New(namespace string) (*Metrics, error) {
	return NewWithRegisterer(namespace, prometheus.DefaultRegisterer)
}

// NewWithRegisterer registers the collectors with reg.
func NewWithRegisterer(namespace string, reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{namespace: namespace}

	m.stageRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: fmt.Sprintf("%s_stage_runs_total", namespace),
			Help: "Stage runs by stage and outcome",
		},
		[]string{"stage", "outcome"},
	)
	m.artifacts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: fmt.Sprintf("%s_artifacts_total", namespace),
			Help: "Generated artifacts that reached a terminal status",
		},
		[]string{"stage", "status"},
	)
	m.stagesInFlight = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: fmt.Sprintf("%s_stages_in_flight", namespace),
			Help: "Stage requests currently waiting on the remote service",
		},
		[]string{"stage"},
	)
	m.pushMessages = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: fmt.Sprintf("%s_push_messages_total", namespace),
			Help: "Push channel messages by result",
		},
		[]string{"result"},
	)
	m.archives = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: fmt.Sprintf("%s_archives_total", namespace),
			Help: "Archive tasks by outcome",
		},
		[]string{"outcome"},
	)

	for _, c := range []prometheus.Collector{m.stageRuns, m.artifacts, m.stagesInFlight, m.pushMessages, m.archives} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("register metrics: %w", err)
		}
	}
	return m, nil
}

// NewRegistry returns a registry preloaded with the Go runtime and process
// collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// Handler serves the metrics gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

func (m *Metrics) StageStarted(stage string) {
	m.stagesInFlight.WithLabelValues(stage).Inc()
}

// StageFinished is called once per StageStarted, when the stage request
// returns.
func (m *Metrics) StageFinished(stage, outcome string) {
	m.stageRuns.WithLabelValues(stage, outcome).Inc()
	m.stagesInFlight.WithLabelValues(stage).Dec()
}

func (m *Metrics) ArtifactFinished(stage, status string) {
	m.artifacts.WithLabelValues(stage, status).Inc()
}

func (m *Metrics) PushMerged() {
	m.pushMessages.WithLabelValues("merged").Inc()
}

func (m *Metrics) PushDropped(reason string) {
	m.pushMessages.WithLabelValues(reason).Inc()
}

// ArchiveFinished counts one archive task outcome.
func (m *Metrics) ArchiveFinished(outcome string) {
	m.archives.WithLabelValues(outcome).Inc()
}
