package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/chainguard-dev/clog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/toolhub/agenttools/internal/browse"
	"github.com/toolhub/agenttools/internal/command"
	"github.com/toolhub/agenttools/internal/config"
	"github.com/toolhub/agenttools/internal/core"
	"github.com/toolhub/agenttools/internal/formatter"
	httpsvr "github.com/toolhub/agenttools/internal/http"
	"github.com/toolhub/agenttools/internal/jira"
	mcpsvr "github.com/toolhub/agenttools/internal/mcp"
	"github.com/toolhub/agenttools/internal/qa"
	"github.com/toolhub/agenttools/internal/telemetry"
	"github.com/toolhub/agenttools/internal/workflow"
)

const (
	serverName      = "agenttools"
	shutdownTimeout = 15 * time.Second
)

func loadConfig(cmd *cobra.Command) (*config.Config, *core.Profile, error) {
	cfg, err := config.Load(cmd.Context(), config.LoadOptions{
		EnvFiles:    opts.envFiles,
		ProjectPath: opts.projectPath,
	})
	if err != nil {
		return nil, nil, err
	}
	if opts.profile != "" {
		cfg.Profile = opts.profile
	}
	if opts.listen != "" {
		cfg.HTTPListen = opts.listen
	}
	if opts.metricsListen != "" {
		cfg.MetricsListen = opts.metricsListen
	}
	profile, err := core.LoadProfile(cfg.Profile)
	if err != nil {
		return nil, nil, err
	}
	return cfg, profile, nil
}

// newLogger writes JSON to stderr; stdout belongs to the stdio transport.
func newLogger(level string) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid LOG_LEVEL %q: %w", level, err)
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})), nil
}

func run(cmd *cobra.Command, _ []string) error {
	if opts.transport != "stdio" && opts.transport != "http" {
		return fmt.Errorf("unknown transport %q (valid: stdio, http)", opts.transport)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, profile, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)
	ctx = clog.WithLogger(ctx, clog.NewLogger(logger))
	logger.Info("profile loaded", "profile", profile.Name, "transport", opts.transport)

	if err := cfg.Validate(profile.Groups); err != nil {
		logger.Error("configuration incomplete", "err", err)
		return err
	}

	shutdownTracing, err := telemetry.InitTracing(ctx, telemetry.TracingConfig{
		Enabled:     cfg.OTelEnabled,
		ServiceName: serverName,
		Version:     version,
		Writer:      os.Stderr,
	})
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := shutdownTracing(sctx); err != nil {
			logger.Warn("tracing shutdown failed", "err", err)
		}
	}()

	deps, err := buildDeps(ctx, cfg, profile, logger)
	if err != nil {
		logger.Error("startup check failed", "err", err)
		return err
	}

	srv, err := mcpsvr.NewServer(serverName, orUnknown(version), deps, profile, core.NewPolicy(cfg.ToolAllowlist), logger)
	if err != nil {
		return err
	}

	build := httpsvr.BuildInfo{Version: version, GitCommit: gitCommit, BuildTime: buildTime}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)

	switch opts.transport {
	case "stdio":
		g.Go(func() error {
			// A closed stdin ends the session and the process with it.
			defer cancel()
			err := srv.ServeStdio(gctx, os.Stdin, os.Stdout)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
	case "http":
		serveHTTP(g, gctx, httpsvr.NewServer(httpsvr.Options{
			Addr:  cfg.HTTPListen,
			Build: build,
			MCP:   srv.HTTPHandler(),
			Tools: srv.Tools,
		}, logger))
	}

	if cfg.MetricsListen != "" && !(opts.transport == "http" && cfg.MetricsListen == cfg.HTTPListen) {
		serveHTTP(g, gctx, httpsvr.NewServer(httpsvr.Options{
			Addr:  cfg.MetricsListen,
			Build: build,
			Tools: srv.Tools,
		}, logger))
	}

	err = g.Wait()
	logger.Info("agenttools stopped")
	return err
}

func serveHTTP(g *errgroup.Group, ctx context.Context, s *httpsvr.Server) {
	g.Go(s.ListenAndServe)
	g.Go(func() error {
		<-ctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return s.Shutdown(sctx)
	})
}

// buildDeps constructs the backend of every enabled group. Building the
// workflow runs the tracker preflight.
func buildDeps(ctx context.Context, cfg *config.Config, profile *core.Profile, logger *slog.Logger) (mcpsvr.Deps, error) {
	var deps mcpsvr.Deps

	if profile.Enables(core.GroupWorkflow) {
		wf, err := workflow.New(ctx, workflow.Config{
			WorkDir:    cfg.ProjectDir,
			Remote:     cfg.WorkflowRemote,
			BaseBranch: cfg.WorkflowBaseBranch,
		}, command.ExecInvoker{Env: cfg.TrackerEnv()}, logger.With("component", "workflow"))
		if err != nil {
			return deps, err
		}
		deps.Workflow = wf
	}
	if profile.Enables(core.GroupJira) {
		client := jira.NewClient(cfg.JiraURL, cfg.JiraUsername, cfg.JiraAPIToken, logger.With("component", "jira"))
		deps.Jira = jira.NewService(client, cfg.JiraBaseIssue, logger.With("component", "jira"))
	}
	if profile.Enables(core.GroupBrowse) {
		deps.Browse = browse.New(browse.Config{
			Binary:    cfg.BrowseBinary,
			SearchURL: cfg.BrowseSearchURL,
		}, nil, logger.With("component", "browse"))
	}
	if profile.Enables(core.GroupFormatter) {
		deps.Formatter = formatter.New(formatter.Config{
			ProjectDir: cfg.ProjectDir,
			Python:     cfg.FormatterPython,
		}, nil, logger.With("component", "formatter"))
	}
	if profile.Enables(core.GroupDevelopment) {
		deps.QA = qa.NewRunner(qa.Config{
			WorkDir: cfg.ProjectDir,
			Python:  cfg.QAPython,
			Timeout: cfg.QATimeout(),
		}, command.ExecInvoker{Env: []string{"PYTHONDONTWRITEBYTECODE=1"}}, logger.With("component", "qa"))
	}
	return deps, nil
}

func listTools(cmd *cobra.Command, _ []string) error {
	cfg, profile, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	policy := core.NewPolicy(cfg.ToolAllowlist)
	for _, def := range mcpsvr.ToolDefinitions() {
		if profile.Enables(def.Group) && policy.Allows(def.Tool.Name) {
			fmt.Fprintf(cmd.OutOrStdout(), "%-30s %s\n", def.Tool.Name, def.Group)
		}
	}
	return nil
}
