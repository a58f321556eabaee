// Package command runs external programs in a fixed working directory and
// captures their output for tool results.
package command

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/chainguard-dev/clog"
	"github.com/toolhub/agenttools/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const tracerName = "github.com/toolhub/agenttools/internal/command"

const (
	// MaxOutputChars bounds the combined text returned by Output.Text,
	// marker included.
	MaxOutputChars = 50000

	// TruncationMarker terminates every truncated result.
	TruncationMarker = "... [output truncated]"
)

// Result is what one process invocation produced.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// Invoker launches a single program. A non-zero exit is reported through
// Result.ExitCode; the error is reserved for failures to launch or wait.
type Invoker interface {
	Invoke(ctx context.Context, argv []string, dir string) (Result, error)
}

// waitDelay bounds how long a cancelled command may keep its output pipes
// open through orphaned children.
const waitDelay = 5 * time.Second

// ExecInvoker runs programs with os/exec. Env entries are appended to the
// inherited environment.
type ExecInvoker struct {
	Env []string
}

func (e ExecInvoker) Invoke(ctx context.Context, argv []string, dir string) (Result, error) {
	if len(argv) == 0 {
		return Result{}, fmt.Errorf("empty command")
	}
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = dir
	cmd.WaitDelay = waitDelay
	if len(e.Env) > 0 {
		cmd.Env = append(os.Environ(), e.Env...)
	}
	var stdoutBuf bytes.Buffer
	var stderrBuf bytes.Buffer
	cmd.Stdout = &stdoutBuf
	cmd.Stderr = &stderrBuf

	runErr := cmd.Run()
	res := Result{Stdout: stdoutBuf.String(), Stderr: stderrBuf.String()}
	if runErr == nil {
		return res, nil
	}

	var exitErr *exec.ExitError
	if errors.As(runErr, &exitErr) && ctx.Err() == nil {
		res.ExitCode = exitErr.ExitCode()
		return res, nil
	}
	res.ExitCode = -1
	if ctxErr := ctx.Err(); ctxErr != nil {
		return res, ctxErr
	}
	return res, runErr
}

// Output is the captured, whitespace-trimmed output of one invocation.
type Output struct {
	Argv     []string
	Stdout   string
	Stderr   string
	ExitCode int
}

// Text joins stdout and stderr (stdout first) and bounds the result to
// MaxOutputChars.
func (o Output) Text() string {
	return Truncate(strings.TrimSpace(o.Stdout + "\n" + o.Stderr))
}

// CommandFailedError reports a non-zero exit that the caller did not tolerate.
type CommandFailedError struct {
	Argv     []string
	ExitCode int
	Stdout   string
	Stderr   string
}

func (e *CommandFailedError) Error() string {
	detail := e.Stderr
	if detail == "" {
		detail = e.Stdout
	}
	msg := fmt.Sprintf("%s failed with exit code %d", strings.Join(e.Argv, " "), e.ExitCode)
	if detail != "" {
		msg += ": " + Truncate(detail)
	}
	return msg
}

func (e *CommandFailedError) ErrorCode() string { return "command_failed" }

// Runner executes commands in one working directory. It never goes through
// a shell: argv elements reach the program verbatim.
// Runner logs through the clog logger carried by the call context, so a tool
// call's trace_id and tool_name land on every command record. Without one,
// clog falls back to the process default logger.
type Runner struct {
	dir string
	inv Invoker
}

// NewRunner binds a runner to dir. A nil invoker selects ExecInvoker.
func NewRunner(dir string, inv Invoker) *Runner {
	if inv == nil {
		inv = ExecInvoker{}
	}
	return &Runner{dir: dir, inv: inv}
}

// Dir is the working directory every command runs in.
func (r *Runner) Dir() string { return r.dir }

// Run executes argv. With check set, a non-zero exit becomes a
// *CommandFailedError; otherwise the output is returned regardless of the
// exit code.
func (r *Runner) Run(ctx context.Context, argv []string, check bool) (Output, error) {
	if len(argv) == 0 {
		return Output{}, fmt.Errorf("empty command")
	}
	cmdline := strings.Join(argv, " ")

	ctx, span := telemetry.Tracer(tracerName).Start(ctx, "command.run")
	defer span.End()
	span.SetAttributes(
		attribute.String("command.program", argv[0]),
		attribute.String("command.dir", r.dir),
	)

	log := clog.FromContext(ctx)
	log.InfoContext(ctx, "running command", "command", cmdline, "dir", r.dir)
	start := time.Now()
	res, err := r.inv.Invoke(ctx, argv, r.dir)
	duration := time.Since(start)
	if err != nil {
		telemetry.IncCommand(argv[0], "error")
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		log.ErrorContext(ctx, "command could not run", "command", cmdline, "err", err)
		return Output{Argv: argv, ExitCode: res.ExitCode}, fmt.Errorf("run %s: %w", argv[0], err)
	}

	out := Output{
		Argv:     argv,
		Stdout:   strings.TrimSpace(res.Stdout),
		Stderr:   strings.TrimSpace(res.Stderr),
		ExitCode: res.ExitCode,
	}
	span.SetAttributes(attribute.Int("command.exit_code", out.ExitCode))
	log.InfoContext(ctx, "command finished",
		"command", cmdline,
		"exit_code", out.ExitCode,
		"duration", fmt.Sprintf("%dms", duration.Milliseconds()),
		"stdout", Truncate(out.Stdout),
		"stderr", Truncate(out.Stderr),
	)

	if out.ExitCode != 0 {
		telemetry.IncCommand(argv[0], "nonzero")
		if check {
			span.SetStatus(codes.Error, "non-zero exit")
			log.ErrorContext(ctx, "command failed", "command", cmdline, "exit_code", out.ExitCode)
			return out, &CommandFailedError{
				Argv:     argv,
				ExitCode: out.ExitCode,
				Stdout:   out.Stdout,
				Stderr:   out.Stderr,
			}
		}
		return out, nil
	}
	telemetry.IncCommand(argv[0], "ok")
	return out, nil
}

// Truncate cuts s so that its length in characters, marker included, does
// not exceed MaxOutputChars.
func Truncate(s string) string {
	return TruncateTo(s, MaxOutputChars)
}

// TruncateTo is Truncate with an explicit character budget.
func TruncateTo(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	suffix := "\n" + TruncationMarker
	keep := limit - utf8.RuneCountInString(suffix)
	if keep <= 0 {
		return TruncationMarker
	}
	n := 0
	for i := range s {
		if n == keep {
			return s[:i] + suffix
		}
		n++
	}
	return s
}
