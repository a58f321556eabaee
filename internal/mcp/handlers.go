package mcp

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/toolhub/agenttools/internal/qa"
)

type argumentError struct{ err error }

func (e *argumentError) Error() string     { return e.err.Error() }
func (e *argumentError) Unwrap() error     { return e.err }
func (e *argumentError) ErrorCode() string { return "invalid_arguments" }

func invalidArgument(format string, args ...any) error {
	return &argumentError{err: fmt.Errorf(format, args...)}
}

func (s *Server) handlers() map[string]toolFunc {
	return map[string]toolFunc{
		"list_issues":                  s.listIssues,
		"start_issue":                  s.startIssue,
		"change_summary":               s.changeSummary,
		"commit_and_push":              s.commitAndPush,
		"complete_issue":               s.completeIssue,
		"jira__get_base_issue":         s.jiraBaseIssue,
		"jira__create_issue_from_base": s.jiraCreateFromBase,
		"jira__get_epic_stories":       s.jiraEpicStories,
		"jira__get_story_content":      s.jiraStoryContent,
		"browse__search":               s.browseSearch,
		"browse__fetch":                s.browseFetch,
		"formatter__black":             s.formatterBlack,
		"development__test":            s.runQA(qa.KindTest),
		"development__build":           s.runQA(qa.KindBuild),
	}
}

func (s *Server) listIssues(ctx context.Context, _ mcp.CallToolRequest) (any, error) {
	return s.deps.Workflow.ListIssues(ctx)
}

func (s *Server) startIssue(ctx context.Context, req mcp.CallToolRequest) (any, error) {
	n, err := intArg(req, "issue_number")
	if err != nil {
		return nil, err
	}
	return s.deps.Workflow.StartIssue(ctx, n)
}

func (s *Server) changeSummary(ctx context.Context, _ mcp.CallToolRequest) (any, error) {
	return s.deps.Workflow.ChangeSummary(ctx)
}

func (s *Server) commitAndPush(ctx context.Context, req mcp.CallToolRequest) (any, error) {
	msg, err := stringArg(req, "commit_message", true)
	if err != nil {
		return nil, err
	}
	return s.deps.Workflow.CommitAndPush(ctx, msg)
}

func (s *Server) completeIssue(ctx context.Context, _ mcp.CallToolRequest) (any, error) {
	return s.deps.Workflow.CompleteIssue(ctx)
}

func (s *Server) jiraBaseIssue(ctx context.Context, _ mcp.CallToolRequest) (any, error) {
	return s.deps.Jira.BaseIssue(ctx)
}

func (s *Server) jiraCreateFromBase(ctx context.Context, req mcp.CallToolRequest) (any, error) {
	title, err := stringArg(req, "title", true)
	if err != nil {
		return nil, err
	}
	description, err := stringArg(req, "description", false)
	if err != nil {
		return nil, err
	}
	return s.deps.Jira.CreateFromBase(ctx, title, description)
}

func (s *Server) jiraEpicStories(ctx context.Context, req mcp.CallToolRequest) (any, error) {
	key, err := stringArg(req, "epic_key", true)
	if err != nil {
		return nil, err
	}
	return s.deps.Jira.EpicStories(ctx, strings.TrimSpace(key)), nil
}

func (s *Server) jiraStoryContent(ctx context.Context, req mcp.CallToolRequest) (any, error) {
	key, err := stringArg(req, "story_key", true)
	if err != nil {
		return nil, err
	}
	return s.deps.Jira.StoryContent(ctx, strings.TrimSpace(key)), nil
}

func (s *Server) browseSearch(ctx context.Context, req mcp.CallToolRequest) (any, error) {
	term, err := stringArg(req, "term", true)
	if err != nil {
		return nil, err
	}
	return s.deps.Browse.Search(ctx, term)
}

func (s *Server) browseFetch(ctx context.Context, req mcp.CallToolRequest) (any, error) {
	u, err := stringArg(req, "url", true)
	if err != nil {
		return nil, err
	}
	return s.deps.Browse.Fetch(ctx, strings.TrimSpace(u))
}

func (s *Server) formatterBlack(ctx context.Context, _ mcp.CallToolRequest) (any, error) {
	return s.deps.Formatter.Black(ctx), nil
}

func (s *Server) runQA(kind qa.Kind) toolFunc {
	return func(ctx context.Context, _ mcp.CallToolRequest) (any, error) {
		return s.deps.QA.Run(ctx, kind)
	}
}

// stringArg reads a string argument. nonEmpty rejects blank values.
func stringArg(req mcp.CallToolRequest, name string, nonEmpty bool) (string, error) {
	v, err := req.RequireString(name)
	if err != nil {
		return "", &argumentError{err: err}
	}
	if nonEmpty && strings.TrimSpace(v) == "" {
		return "", invalidArgument("argument %q must not be empty", name)
	}
	return v, nil
}

// intArg reads a JSON number that must hold an integer.
func intArg(req mcp.CallToolRequest, name string) (int, error) {
	v, err := req.RequireFloat(name)
	if err != nil {
		return 0, &argumentError{err: err}
	}
	if v != math.Trunc(v) || math.IsInf(v, 0) || v > math.MaxInt32 || v < math.MinInt32 {
		return 0, invalidArgument("argument %q must be an integer, got %v", name, v)
	}
	return int(v), nil
}
