package telemetry

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	toolCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agenttools_tool_calls_total",
			Help: "Tool calls by tool name and outcome",
		},
		[]string{"tool", "status"},
	)

	toolDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "agenttools_tool_duration_seconds",
			Help:    "Wall-clock duration of tool calls",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 300, 900},
		},
		[]string{"tool"},
	)

	commandRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agenttools_command_runs_total",
			Help: "External program invocations by program and outcome",
		},
		[]string{"program", "outcome"},
	)

	advisorySteps = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agenttools_advisory_steps_total",
			Help: "Best-effort workflow steps by step name and status",
		},
		[]string{"step", "status"},
	)

	qaTimeouts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "agenttools_qa_timeouts_total",
			Help: "Development tool runs that hit their deadline",
		},
	)

	jiraAPIErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agenttools_jira_api_errors_total",
			Help: "Non-2xx responses from the Jira REST API",
		},
		[]string{"operation", "status_code"},
	)
)

func IncToolCall(toolName, status string) {
	toolCalls.WithLabelValues(toolName, status).Inc()
}

func ObserveToolDuration(toolName string, d time.Duration) {
	toolDuration.WithLabelValues(toolName).Observe(d.Seconds())
}

func IncCommand(program, outcome string) {
	commandRuns.WithLabelValues(program, outcome).Inc()
}

func IncAdvisoryStep(step, status string) {
	advisorySteps.WithLabelValues(step, status).Inc()
}

func IncQATimeout() {
	qaTimeouts.Inc()
}

func IncJiraAPIError(operation string, statusCode int) {
	jiraAPIErrors.WithLabelValues(operation, strconv.Itoa(statusCode)).Inc()
}

// Handler serves every registered metric in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.Handler()
}
