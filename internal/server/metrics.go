package server

import "github.com/prometheus/client_golang/prometheus"

type metrics struct {
	toolCalls       *prometheus.CounterVec
	backendDuration *prometheus.HistogramVec
}

func newMetrics(reg prometheus.Registerer) *metrics {
	m := &metrics{
		toolCalls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sourcegraph_mcp_tool_calls_total",
				Help: "Total number of tool invocations by outcome",
			},
			[]string{"tool", "outcome"},
		),
		backendDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "sourcegraph_mcp_backend_request_duration_seconds",
				Help: "Duration of Sourcegraph backend calls",
			},
			[]string{"operation"},
		),
	}
	reg.MustRegister(m.toolCalls, m.backendDuration)
	return m
}
