package qa

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/toolhub/agenttools/internal/command"
)

type queuedInvoker struct {
	calls   [][]string
	results []command.Result
}

func (q *queuedInvoker) Invoke(_ context.Context, argv []string, _ string) (command.Result, error) {
	q.calls = append(q.calls, argv)
	if len(q.results) == 0 {
		return command.Result{}, nil
	}
	res := q.results[0]
	q.results = q.results[1:]
	return res, nil
}

func writeFile(t *testing.T, dir, name, body string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(filepath.Join(dir, name)), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o755); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
}

func TestRunnerTestCreatesVenvAndInstallsPytest(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "requirements.txt", "requests==2.32.0\n")
	inv := &queuedInvoker{results: []command.Result{
		{}, {}, {},
		{Stdout: "2 passed in 0.01s\n"},
	}}
	r := NewRunner(Config{WorkDir: dir, Timeout: 5 * time.Second}, inv, nil)

	report, err := r.Run(context.Background(), KindTest)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	py := filepath.Join(dir, ".venv", "bin", "python")
	want := [][]string{
		{"python3", "-m", "venv", ".venv"},
		{py, "-m", "pip", "install", "-r", "requirements.txt"},
		{py, "-m", "pip", "install", "pytest"},
		{py, "-m", "pytest"},
	}
	if diff := cmp.Diff(want, inv.calls); diff != "" {
		t.Fatalf("commands mismatch (-want +got):\n%s", diff)
	}
	if report.Status != StatusPassed || report.ExitCode != 0 || report.Output != "2 passed in 0.01s" {
		t.Fatalf("unexpected report %+v", report)
	}
	if len(report.Steps) != 4 {
		t.Fatalf("expected 4 steps, got %d", len(report.Steps))
	}
}

func TestRunnerTestSkipsExistingSetup(t *testing.T) {
	dir := t.TempDir()
	if err := os.Mkdir(filepath.Join(dir, ".venv"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	writeFile(t, dir, "requirements.txt", "pytest>=8\n")
	inv := &queuedInvoker{results: []command.Result{
		{},
		{Stdout: "1 failed", Stderr: "E assert 1 == 2", ExitCode: 1},
	}}
	r := NewRunner(Config{WorkDir: dir}, inv, nil)

	report, err := r.Run(context.Background(), KindTest)
	if err != nil {
		t.Fatalf("failing tests are a report, not an error: %v", err)
	}
	if len(inv.calls) != 2 {
		t.Fatalf("expected pip install -r and pytest only, got %q", inv.calls)
	}
	if report.Status != StatusFailed || report.ExitCode != 1 || report.Output != "1 failed\nE assert 1 == 2" {
		t.Fatalf("unexpected report %+v", report)
	}
}

func TestRunnerBuild(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "requirements.txt", "flask\n")
	inv := &queuedInvoker{}
	r := NewRunner(Config{WorkDir: dir, Python: "/usr/bin/python3.12"}, inv, nil)

	report, err := r.Run(context.Background(), KindBuild)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if report.Output != "Project built" || report.Status != StatusPassed {
		t.Fatalf("unexpected report %+v", report)
	}
	if inv.calls[0][0] != "/usr/bin/python3.12" || len(inv.calls) != 2 {
		t.Fatalf("unexpected commands %q", inv.calls)
	}
}

func TestRunnerBuildReportsFailedInstall(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "requirements.txt", "nosuchpkg\n")
	inv := &queuedInvoker{results: []command.Result{
		{},
		{Stderr: "ERROR: No matching distribution found for nosuchpkg", ExitCode: 1},
	}}
	r := NewRunner(Config{WorkDir: dir}, inv, nil)

	report, err := r.Run(context.Background(), KindBuild)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if report.Status != StatusFailed || report.ExitCode != 1 {
		t.Fatalf("unexpected report %+v", report)
	}
	if report.Output != "ERROR: No matching distribution found for nosuchpkg" {
		t.Fatalf("unexpected output %q", report.Output)
	}
}

func TestRunnerRejectsUnknownKindAndMissingDir(t *testing.T) {
	r := NewRunner(Config{WorkDir: t.TempDir()}, &queuedInvoker{}, nil)
	_, err := r.Run(context.Background(), Kind("development.lint"))
	var qe *QAError
	if !errors.As(err, &qe) || qe.ErrorCode() != "qa_tool_unsupported" {
		t.Fatalf("expected qa_tool_unsupported, got %v", err)
	}

	r = NewRunner(Config{WorkDir: filepath.Join(t.TempDir(), "missing")}, &queuedInvoker{}, nil)
	_, err = r.Run(context.Background(), KindTest)
	if !errors.As(err, &qe) || qe.ErrorCode() != "qa_workdir_invalid" {
		t.Fatalf("expected qa_workdir_invalid, got %v", err)
	}
}

func TestRunnerTimeout(t *testing.T) {
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
	dir := t.TempDir()
	slow := filepath.Join(t.TempDir(), "slow-python")
	writeFile(t, filepath.Dir(slow), filepath.Base(slow), "#!/bin/sh\nexec sleep 2\n")

	r := NewRunner(Config{WorkDir: dir, Python: slow, Timeout: 50 * time.Millisecond}, command.ExecInvoker{}, nil)
	report, err := r.Run(context.Background(), KindTest)
	var qe *QAError
	if !errors.As(err, &qe) || qe.ErrorCode() != "qa_timeout" {
		t.Fatalf("expected qa_timeout, got %v", err)
	}
	if report.ExitCode != -1 {
		t.Fatalf("expected timeout exit code -1, got %d", report.ExitCode)
	}
}

func TestRunnerLaunchFailure(t *testing.T) {
	dir := t.TempDir()
	r := NewRunner(Config{WorkDir: dir, Python: filepath.Join(dir, "no-such-python")}, command.ExecInvoker{}, nil)
	_, err := r.Run(context.Background(), KindBuild)
	var qe *QAError
	if !errors.As(err, &qe) || qe.ErrorCode() != "qa_execution_failed" {
		t.Fatalf("expected qa_execution_failed, got %v", err)
	}
}
