// Package qa prepares a Python virtualenv in the project and runs its test
// suite or installs its dependencies.
package qa

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/toolhub/agenttools/internal/command"
	"github.com/toolhub/agenttools/internal/telemetry"
)

type Kind string

const (
	KindTest  Kind = "development.test"
	KindBuild Kind = "development.build"
)

const (
	StatusPassed = "passed"
	StatusFailed = "failed"

	builtMessage = "Project built"
	venvDir      = ".venv"
	requirements = "requirements.txt"
)

type QAError struct {
	Code    string
	Message string
}

func (e *QAError) Error() string     { return e.Message }
func (e *QAError) ErrorCode() string { return e.Code }

type Config struct {
	WorkDir string
	// Python creates the virtualenv.
	Python  string
	Timeout time.Duration
}

// Step is one command of a run.
type Step struct {
	Command    string `json:"command"`
	ExitCode   int    `json:"exit_code"`
	DurationMS int64  `json:"duration_ms"`
}

type Report struct {
	Kind       Kind   `json:"kind"`
	WorkDir    string `json:"work_dir"`
	Status     string `json:"status"`
	ExitCode   int    `json:"exit_code"`
	DurationMS int64  `json:"duration_ms"`
	Steps      []Step `json:"steps"`
	Output     string `json:"output"`
}

type Runner struct {
	cfg    Config
	run    *command.Runner
	logger *slog.Logger
}

// NewRunner builds a runner over inv. Setup output is not part of the
// report; only the final command's output is.
func NewRunner(cfg Config, inv command.Invoker, logger *slog.Logger) *Runner {
	if cfg.WorkDir == "" {
		cfg.WorkDir = "."
	}
	if abs, err := filepath.Abs(cfg.WorkDir); err == nil {
		cfg.WorkDir = abs
	}
	if cfg.Python == "" {
		cfg.Python = "python3"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Minute
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Runner{cfg: cfg, run: command.NewRunner(cfg.WorkDir, inv), logger: logger}
}

func (r *Runner) Run(ctx context.Context, kind Kind) (Report, error) {
	if kind != KindTest && kind != KindBuild {
		return Report{}, &QAError{Code: "qa_tool_unsupported", Message: fmt.Sprintf("unsupported development tool: %s", kind)}
	}
	info, err := os.Stat(r.cfg.WorkDir)
	if err != nil || !info.IsDir() {
		return Report{}, &QAError{Code: "qa_workdir_invalid", Message: fmt.Sprintf("project directory %q is not a directory", r.cfg.WorkDir)}
	}

	execCtx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()

	report := Report{Kind: kind, WorkDir: r.cfg.WorkDir, Steps: []Step{}}
	start := time.Now()

	venvPython := filepath.Join(r.cfg.WorkDir, venvDir, "bin", "python")
	var last command.Output

	if !r.exists(venvDir) {
		if last, err = r.step(execCtx, &report, r.cfg.Python, "-m", "venv", venvDir); err != nil {
			return r.finish(execCtx, report, start, err)
		}
	}
	if r.exists(requirements) {
		if last, err = r.step(execCtx, &report, venvPython, "-m", "pip", "install", "-r", requirements); err != nil {
			return r.finish(execCtx, report, start, err)
		}
	}

	if kind == KindBuild {
		report.Status, report.ExitCode = summarize(report.Steps)
		if report.Status == StatusPassed {
			report.Output = builtMessage
		} else {
			report.Output = last.Text()
		}
		report.DurationMS = time.Since(start).Milliseconds()
		return report, nil
	}

	if !r.requirementsMention("pytest") {
		if _, err = r.step(execCtx, &report, venvPython, "-m", "pip", "install", "pytest"); err != nil {
			return r.finish(execCtx, report, start, err)
		}
	}
	last, err = r.step(execCtx, &report, venvPython, "-m", "pytest")
	if err != nil {
		return r.finish(execCtx, report, start, err)
	}
	report.ExitCode = last.ExitCode
	report.Status = StatusPassed
	if last.ExitCode != 0 {
		report.Status = StatusFailed
	}
	report.Output = last.Text()
	report.DurationMS = time.Since(start).Milliseconds()
	return report, nil
}

func (r *Runner) step(ctx context.Context, report *Report, argv ...string) (command.Output, error) {
	start := time.Now()
	out, err := r.run.Run(ctx, argv, false)
	report.Steps = append(report.Steps, Step{
		Command:    strings.Join(argv, " "),
		ExitCode:   out.ExitCode,
		DurationMS: time.Since(start).Milliseconds(),
	})
	if err == nil && out.ExitCode != 0 {
		r.logger.WarnContext(ctx, "development step failed", "command", strings.Join(argv, " "), "exit_code", out.ExitCode)
	}
	return out, err
}

func (r *Runner) finish(ctx context.Context, report Report, start time.Time, err error) (Report, error) {
	report.ExitCode = -1
	report.DurationMS = time.Since(start).Milliseconds()
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		telemetry.IncQATimeout()
		return report, &QAError{Code: "qa_timeout", Message: fmt.Sprintf("development tool timed out after %s", r.cfg.Timeout)}
	}
	return report, &QAError{Code: "qa_execution_failed", Message: err.Error()}
}

func (r *Runner) exists(rel string) bool {
	_, err := os.Stat(filepath.Join(r.cfg.WorkDir, rel))
	return err == nil
}

func (r *Runner) requirementsMention(pkg string) bool {
	data, err := os.ReadFile(filepath.Join(r.cfg.WorkDir, requirements))
	if err != nil {
		return false
	}
	return strings.Contains(strings.ToLower(string(data)), pkg)
}

func summarize(steps []Step) (string, int) {
	for _, s := range steps {
		if s.ExitCode != 0 {
			return StatusFailed, s.ExitCode
		}
	}
	return StatusPassed, 0
}
