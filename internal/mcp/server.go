// Package mcp assembles the tool server: it registers the tools of every
// enabled group on an mcp-go server and wraps each call with tracing,
// metrics and the tool error envelope.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/chainguard-dev/clog"
	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/toolhub/agenttools/internal/browse"
	"github.com/toolhub/agenttools/internal/core"
	"github.com/toolhub/agenttools/internal/formatter"
	"github.com/toolhub/agenttools/internal/jira"
	"github.com/toolhub/agenttools/internal/qa"
	"github.com/toolhub/agenttools/internal/telemetry"
	"github.com/toolhub/agenttools/internal/workflow"
)

type WorkflowService interface {
	ListIssues(ctx context.Context) ([]workflow.Issue, error)
	StartIssue(ctx context.Context, number int) (*workflow.StartResult, error)
	ChangeSummary(ctx context.Context) (*workflow.Summary, error)
	CommitAndPush(ctx context.Context, message string) (*workflow.CommitResult, error)
	CompleteIssue(ctx context.Context) (*workflow.CompleteResult, error)
}

type JiraService interface {
	BaseIssue(ctx context.Context) (*jira.BaseIssue, error)
	CreateFromBase(ctx context.Context, title, description string) (*jira.CreateResult, error)
	EpicStories(ctx context.Context, epicKey string) *jira.EpicStoriesResult
	StoryContent(ctx context.Context, storyKey string) *jira.StoryContentResult
}

type Browser interface {
	Search(ctx context.Context, term string) (string, error)
	Fetch(ctx context.Context, rawURL string) (string, error)
}

type Formatter interface {
	Black(ctx context.Context) formatter.Result
}

type QARunner interface {
	Run(ctx context.Context, kind qa.Kind) (qa.Report, error)
}

var (
	_ WorkflowService = (*workflow.Workflow)(nil)
	_ JiraService     = (*jira.Service)(nil)
	_ Browser         = (*browse.Browser)(nil)
	_ Formatter       = (*formatter.Formatter)(nil)
	_ QARunner        = (*qa.Runner)(nil)
)

// Deps holds the backend of each tool group. Only the groups enabled by the
// profile need to be set.
type Deps struct {
	Workflow  WorkflowService
	Jira      JiraService
	Browse    Browser
	Formatter Formatter
	QA        QARunner
}

const tracerName = "github.com/toolhub/agenttools/internal/mcp"

const instructions = `Tools for working on a project's issues end to end.
Typical flow: list_issues, start_issue, edit files, change_summary, commit_and_push, complete_issue.
start_issue discards uncommitted work in the project directory.`

// toolFunc returns either a string, sent as text, or a value sent as JSON.
type toolFunc func(ctx context.Context, req mcp.CallToolRequest) (any, error)

type Server struct {
	mcp    *server.MCPServer
	deps   Deps
	logger *slog.Logger
	tools  []string
}

// NewServer registers every tool whose group the profile enables and the
// policy allows. It fails when an enabled group has no backend.
func NewServer(name, version string, deps Deps, profile *core.Profile, policy *core.Policy, logger *slog.Logger) (*Server, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if policy == nil {
		policy = core.NewPolicy("")
	}
	s := &Server{
		mcp: server.NewMCPServer(name, version,
			server.WithToolCapabilities(true),
			server.WithRecovery(),
			server.WithInstructions(instructions),
		),
		deps:   deps,
		logger: logger,
	}

	for _, g := range profile.Groups {
		if !s.hasBackend(g) {
			return nil, fmt.Errorf("tool group %s enabled without a backend", g)
		}
	}

	handlers := s.handlers()
	for _, def := range ToolDefinitions() {
		if !profile.Enables(def.Group) || !policy.Allows(def.Tool.Name) {
			continue
		}
		fn, ok := handlers[def.Tool.Name]
		if !ok {
			return nil, fmt.Errorf("no handler for tool %s", def.Tool.Name)
		}
		s.mcp.AddTool(def.Tool, s.wrap(def.Tool.Name, fn))
		s.tools = append(s.tools, def.Tool.Name)
	}
	logger.Info("tools registered", "profile", profile.Name, "count", len(s.tools))
	return s, nil
}

func (s *Server) hasBackend(g core.ToolGroup) bool {
	switch g {
	case core.GroupWorkflow:
		return s.deps.Workflow != nil
	case core.GroupJira:
		return s.deps.Jira != nil
	case core.GroupBrowse:
		return s.deps.Browse != nil
	case core.GroupFormatter:
		return s.deps.Formatter != nil
	case core.GroupDevelopment:
		return s.deps.QA != nil
	}
	return false
}

// Tools returns the registered tool names in catalogue order.
func (s *Server) Tools() []string { return s.tools }

func (s *Server) MCPServer() *server.MCPServer { return s.mcp }

// ServeStdio speaks MCP over in and out until ctx is done or in is closed.
func (s *Server) ServeStdio(ctx context.Context, in io.Reader, out io.Writer) error {
	stdio := server.NewStdioServer(s.mcp)
	stdio.SetErrorLogger(slog.NewLogLogger(s.logger.Handler(), slog.LevelError))
	return stdio.Listen(ctx, in, out)
}

// HTTPHandler serves the streamable HTTP transport.
func (s *Server) HTTPHandler() http.Handler {
	return server.NewStreamableHTTPServer(s.mcp)
}

func (s *Server) wrap(name string, fn toolFunc) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		traceID := uuid.NewString()
		log := clog.NewLogger(s.logger).With("trace_id", traceID, "tool_name", name)
		ctx = clog.WithLogger(ctx, log)

		ctx, span := telemetry.Tracer(tracerName).Start(ctx, "tool."+name, trace.WithAttributes(
			attribute.String("tool.name", name),
			attribute.String("tool.trace_id", traceID),
		))
		defer span.End()

		start := time.Now()
		out, err := fn(ctx, req)
		elapsed := time.Since(start)
		telemetry.ObserveToolDuration(name, elapsed)

		if err != nil {
			telemetry.IncToolCall(name, "error")
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			te := core.NewToolError(err, traceID)
			log.WarnContext(ctx, "tool call failed", "code", te.Code, "err", err, "duration", elapsed)
			data, _ := json.Marshal(te)
			return mcp.NewToolResultError(string(data)), nil
		}

		telemetry.IncToolCall(name, "ok")
		log.InfoContext(ctx, "tool call completed", "duration", elapsed)
		return toolResult(out)
	}
}

func toolResult(v any) (*mcp.CallToolResult, error) {
	if text, ok := v.(string); ok {
		return mcp.NewToolResultText(text), nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode tool result: %w", err)
	}
	return mcp.NewToolResultText(string(data)), nil
}
