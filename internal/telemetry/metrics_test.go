package telemetry

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestToolCallCounters(t *testing.T) {
	before := testutil.ToFloat64(toolCalls.WithLabelValues("start_issue", "ok"))
	IncToolCall("start_issue", "ok")
	IncToolCall("start_issue", "ok")
	IncToolCall("start_issue", "error")

	if got := testutil.ToFloat64(toolCalls.WithLabelValues("start_issue", "ok")) - before; got != 2 {
		t.Fatalf("expected 2 ok calls, got %v", got)
	}
}

func TestAdvisoryAndCommandCounters(t *testing.T) {
	before := testutil.ToFloat64(advisorySteps.WithLabelValues("checks", "skipped"))
	IncAdvisoryStep("checks", "skipped")
	if got := testutil.ToFloat64(advisorySteps.WithLabelValues("checks", "skipped")) - before; got != 1 {
		t.Fatalf("expected one skipped advisory step, got %v", got)
	}

	before = testutil.ToFloat64(commandRuns.WithLabelValues("git", "nonzero"))
	IncCommand("git", "nonzero")
	if got := testutil.ToFloat64(commandRuns.WithLabelValues("git", "nonzero")) - before; got != 1 {
		t.Fatalf("expected one nonzero git run, got %v", got)
	}
}

func TestHandlerRendersMetrics(t *testing.T) {
	IncToolCall("change_summary", "ok")
	ObserveToolDuration("change_summary", 250*time.Millisecond)
	IncQATimeout()
	IncJiraAPIError("get_issue", http.StatusNotFound)

	srv := httptest.NewServer(Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("get metrics: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	out := string(body)

	for _, want := range []string{
		`agenttools_tool_calls_total{status="ok",tool="change_summary"}`,
		`agenttools_tool_duration_seconds_bucket{tool="change_summary",le="0.5"}`,
		`agenttools_qa_timeouts_total`,
		`agenttools_jira_api_errors_total{operation="get_issue",status_code="404"}`,
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("metrics output missing %s", want)
		}
	}
}
