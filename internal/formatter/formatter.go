// Package formatter runs the black code formatter over the project.
package formatter

import (
	"context"
	"log/slog"
	"strings"

	"github.com/toolhub/agenttools/internal/command"
)

type Config struct {
	ProjectDir string
	// Python is the interpreter that has black installed.
	Python string
}

// Result mirrors one black run. Error is set only when black could not be
// started at all.
type Result struct {
	Stdout     string `json:"stdout"`
	Stderr     string `json:"stderr"`
	ReturnCode int    `json:"return_code"`
	Error      string `json:"error,omitempty"`
}

type Formatter struct {
	cfg    Config
	run    *command.Runner
	logger *slog.Logger
}

func New(cfg Config, inv command.Invoker, logger *slog.Logger) *Formatter {
	if strings.TrimSpace(cfg.Python) == "" {
		cfg.Python = "python3"
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Formatter{cfg: cfg, run: command.NewRunner(cfg.ProjectDir, inv), logger: logger}
}

// Black formats every Python file under the project directory in place.
func (f *Formatter) Black(ctx context.Context) Result {
	out, err := f.run.Run(ctx, []string{f.cfg.Python, "-m", "black", f.cfg.ProjectDir}, false)
	if err != nil {
		return Result{ReturnCode: -1, Error: err.Error()}
	}
	return Result{
		Stdout:     command.Truncate(out.Stdout),
		Stderr:     command.Truncate(out.Stderr),
		ReturnCode: out.ExitCode,
	}
}
