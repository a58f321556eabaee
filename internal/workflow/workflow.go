// Package workflow drives the issue lifecycle of a repository: list open
// issues, branch from one, commit and push, then merge and return to the
// base branch. Every side effect goes through git or the gh CLI.
package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/toolhub/agenttools/internal/command"
	"github.com/toolhub/agenttools/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
)

const tracerName = "github.com/toolhub/agenttools/internal/workflow"

const (
	BranchTypeFeature = "feature"
	BranchTypeFix     = "fix"

	// UnknownIssue is reported when the current branch carries no issue number.
	UnknownIssue = "unknown"

	StatusCompleted = "completed"

	featurePrefix = "[feature]"
)

var (
	branchNameRe  = regexp.MustCompile(`^[A-Za-z0-9._/-]+$`)
	issueNumberRe = regexp.MustCompile(`issue-(\d+)`)
)

var (
	ErrTrackerUnavailable     = errors.New("issue tracker CLI not found on PATH")
	ErrTrackerUnauthenticated = errors.New("issue tracker CLI is not authenticated")
	ErrNoPullRequest          = errors.New("no pull request for current branch")
	ErrInvalidIssueNumber     = errors.New("issue number must be a positive integer")
	ErrEmptyCommitMessage     = errors.New("commit message is required")
)

type argumentError struct{ err error }

func (e *argumentError) Error() string     { return e.err.Error() }
func (e *argumentError) Unwrap() error     { return e.err }
func (e *argumentError) ErrorCode() string { return "invalid_arguments" }

type noPullRequestError struct{ cause error }

func (e *noPullRequestError) Error() string {
	if e.cause == nil {
		return ErrNoPullRequest.Error()
	}
	return fmt.Sprintf("%s: %v", ErrNoPullRequest, e.cause)
}
func (e *noPullRequestError) Is(target error) bool { return target == ErrNoPullRequest }
func (e *noPullRequestError) Unwrap() error        { return e.cause }
func (e *noPullRequestError) ErrorCode() string    { return "no_pull_request" }

type Config struct {
	WorkDir    string
	Remote     string
	BaseBranch string
	// Tracker is the issue tracker CLI, normally gh.
	Tracker string
	// LookPath resolves Tracker at construction. Defaults to exec.LookPath.
	LookPath func(string) (string, error)
}

type Workflow struct {
	cfg    Config
	run    *command.Runner
	logger *slog.Logger
}

// New binds a workflow to cfg.WorkDir and verifies that the tracker CLI is
// installed and authenticated. Either failure is fatal for the caller.
func New(ctx context.Context, cfg Config, inv command.Invoker, logger *slog.Logger) (*Workflow, error) {
	if strings.TrimSpace(cfg.WorkDir) == "" {
		cfg.WorkDir = "."
	}
	if strings.TrimSpace(cfg.Remote) == "" {
		cfg.Remote = "origin"
	}
	if strings.TrimSpace(cfg.BaseBranch) == "" {
		cfg.BaseBranch = "master"
	}
	if strings.TrimSpace(cfg.Tracker) == "" {
		cfg.Tracker = "gh"
	}
	if cfg.LookPath == nil {
		cfg.LookPath = exec.LookPath
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if err := validateBranch(cfg.BaseBranch); err != nil {
		return nil, fmt.Errorf("base branch: %w", err)
	}
	if err := validateBranch(cfg.Remote); err != nil {
		return nil, fmt.Errorf("remote: %w", err)
	}
	absWD, err := filepath.Abs(cfg.WorkDir)
	if err != nil {
		return nil, fmt.Errorf("resolve workdir: %w", err)
	}
	cfg.WorkDir = absWD

	w := &Workflow{
		cfg:    cfg,
		run:    command.NewRunner(absWD, inv),
		logger: logger,
	}
	if err := w.preflight(ctx); err != nil {
		return nil, err
	}
	return w, nil
}

func (w *Workflow) preflight(ctx context.Context) error {
	if _, err := w.cfg.LookPath(w.cfg.Tracker); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrTrackerUnavailable, w.cfg.Tracker, err)
	}
	if _, err := w.run.Run(ctx, []string{w.cfg.Tracker, "auth", "status"}, true); err != nil {
		return fmt.Errorf("%w: %v", ErrTrackerUnauthenticated, err)
	}
	return nil
}

// WorkDir is the repository every command runs in.
func (w *Workflow) WorkDir() string { return w.cfg.WorkDir }

type Label struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Color       string `json:"color,omitempty"`
}

type Issue struct {
	Number    int     `json:"number"`
	Title     string  `json:"title"`
	Body      string  `json:"body,omitempty"`
	Labels    []Label `json:"labels"`
	CreatedAt string  `json:"createdAt,omitempty"`
}

type StartResult struct {
	Issue
	Branch string `json:"branch"`
}

type Summary struct {
	Status   string `json:"status"`
	DiffStat string `json:"diff_stat"`
}

type CommitResult struct {
	Branch  string   `json:"branch"`
	Commit  string   `json:"commit"`
	Message string   `json:"message"`
	Checks  Advisory `json:"checks"`
}

type CompleteResult struct {
	Branch      string   `json:"branch"`
	IssueNumber string   `json:"issue_number"`
	Status      string   `json:"status"`
	PRNumber    int      `json:"pr_number"`
	Checks      Advisory `json:"checks"`
}

// ListIssues returns up to 100 open issues.
func (w *Workflow) ListIssues(ctx context.Context) ([]Issue, error) {
	out, err := w.run.Run(ctx, []string{
		w.cfg.Tracker, "issue", "list",
		"--state", "open",
		"--json", "number,title,labels,createdAt",
		"--limit", "100",
	}, true)
	if err != nil {
		return nil, err
	}
	var issues []Issue
	if err := decodeJSON(out, &issues); err != nil {
		return nil, err
	}
	if issues == nil {
		issues = []Issue{}
	}
	return issues, nil
}

// StartIssue resets the working tree to the remote base branch, then creates
// and publishes {type}/issue-{number}. Local uncommitted work and untracked
// files are discarded.
func (w *Workflow) StartIssue(ctx context.Context, number int) (*StartResult, error) {
	if number <= 0 {
		return nil, &argumentError{err: fmt.Errorf("%w: got %d", ErrInvalidIssueNumber, number)}
	}
	ctx, span := telemetry.Tracer(tracerName).Start(ctx, "workflow.start_issue")
	defer span.End()
	span.SetAttributes(attribute.Int("issue.number", number))

	out, err := w.run.Run(ctx, []string{
		w.cfg.Tracker, "issue", "view", strconv.Itoa(number),
		"--json", "number,title,body,labels",
	}, true)
	if err != nil {
		return nil, err
	}
	var issue Issue
	if err := decodeJSON(out, &issue); err != nil {
		return nil, err
	}
	if issue.Labels == nil {
		issue.Labels = []Label{}
	}

	branch := BranchName(BranchType(issue.Title), number)
	upstream := w.cfg.Remote + "/" + w.cfg.BaseBranch
	steps := [][]string{
		{"git", "fetch", w.cfg.Remote},
		{"git", "reset", "--hard", upstream},
		{"git", "clean", "-fd"},
		{"git", "checkout", "-b", branch},
		{"git", "push", "-u", w.cfg.Remote, branch},
	}
	for _, argv := range steps {
		if _, err := w.run.Run(ctx, argv, true); err != nil {
			return nil, err
		}
	}
	w.logger.InfoContext(ctx, "issue started", "issue_number", number, "branch", branch)
	return &StartResult{Issue: issue, Branch: branch}, nil
}

// ChangeSummary reports short status and diff statistics of the working tree.
func (w *Workflow) ChangeSummary(ctx context.Context) (*Summary, error) {
	status, err := w.run.Run(ctx, []string{"git", "status", "--short"}, true)
	if err != nil {
		return nil, err
	}
	stat, err := w.run.Run(ctx, []string{"git", "diff", "--stat"}, true)
	if err != nil {
		return nil, err
	}
	return &Summary{Status: status.Text(), DiffStat: stat.Text()}, nil
}

// CommitAndPush stages everything, commits with message and pushes the
// current branch. A commit that fails (nothing staged, hooks) is logged and
// the push still runs. Checks are watched only when a pull request exists.
func (w *Workflow) CommitAndPush(ctx context.Context, message string) (*CommitResult, error) {
	if strings.TrimSpace(message) == "" {
		return nil, &argumentError{err: ErrEmptyCommitMessage}
	}
	ctx, span := telemetry.Tracer(tracerName).Start(ctx, "workflow.commit_and_push")
	defer span.End()

	branch, err := w.currentBranch(ctx)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("git.branch", branch))

	if _, err := w.run.Run(ctx, []string{"git", "add", "."}, true); err != nil {
		return nil, err
	}
	commit, err := w.run.Run(ctx, []string{"git", "commit", "-m", message}, false)
	if err != nil {
		return nil, err
	}
	if commit.ExitCode != 0 {
		w.logger.WarnContext(ctx, "commit did not succeed, pushing anyway",
			"branch", branch, "exit_code", commit.ExitCode, "output", commit.Text())
	}
	if _, err := w.run.Run(ctx, []string{"git", "push", "-u", w.cfg.Remote, branch}, true); err != nil {
		return nil, err
	}

	checks := w.watchChecksIfPullRequest(ctx)

	last, err := w.run.Run(ctx, []string{"git", "log", "-1", "--pretty=format:%h %s"}, true)
	if err != nil {
		return nil, err
	}
	return &CommitResult{
		Branch:  branch,
		Commit:  last.Stdout,
		Message: message,
		Checks:  checks,
	}, nil
}

// CompleteIssue ensures a pull request exists for the current branch, waits
// for its checks, merges it with a merge commit and returns to an up to date
// base branch.
func (w *Workflow) CompleteIssue(ctx context.Context) (*CompleteResult, error) {
	ctx, span := telemetry.Tracer(tracerName).Start(ctx, "workflow.complete_issue")
	defer span.End()

	branch, err := w.currentBranch(ctx)
	if err != nil {
		return nil, err
	}
	issueNumber := IssueNumberFromBranch(branch)
	span.SetAttributes(attribute.String("git.branch", branch), attribute.String("issue.number", issueNumber))

	pr, err := w.pullRequestNumber(ctx)
	if errors.Is(err, ErrNoPullRequest) {
		w.logger.InfoContext(ctx, "no pull request found, creating one", "branch", branch, "reason", err)
		if _, err := w.run.Run(ctx, []string{
			w.cfg.Tracker, "pr", "create",
			"--title", "Fix #" + issueNumber,
			"--body", "Closes #" + issueNumber,
			"--head", branch,
		}, true); err != nil {
			return nil, err
		}
		pr, err = w.pullRequestNumber(ctx)
	}
	if err != nil {
		return nil, err
	}

	checks := w.watchChecks(ctx, pr)

	steps := [][]string{
		{w.cfg.Tracker, "pr", "merge", strconv.Itoa(pr), "--merge"},
		{"git", "checkout", w.cfg.BaseBranch},
		{"git", "pull"},
	}
	for _, argv := range steps {
		if _, err := w.run.Run(ctx, argv, true); err != nil {
			return nil, err
		}
	}
	w.logger.InfoContext(ctx, "issue completed", "branch", branch, "issue_number", issueNumber, "pr_number", pr)
	return &CompleteResult{
		Branch:      branch,
		IssueNumber: issueNumber,
		Status:      StatusCompleted,
		PRNumber:    pr,
		Checks:      checks,
	}, nil
}

func (w *Workflow) currentBranch(ctx context.Context) (string, error) {
	out, err := w.run.Run(ctx, []string{"git", "rev-parse", "--abbrev-ref", "HEAD"}, true)
	if err != nil {
		return "", err
	}
	// Any name git accepts is usable; it only travels as a single argv element.
	branch := out.Stdout
	if branch == "" {
		return "", fmt.Errorf("current branch: git reported no branch name")
	}
	return branch, nil
}

// pullRequestNumber reports the pull request of the current branch. Any
// failure to obtain a usable number is reported as ErrNoPullRequest.
func (w *Workflow) pullRequestNumber(ctx context.Context) (int, error) {
	out, err := w.run.Run(ctx, []string{w.cfg.Tracker, "pr", "view", "--json", "number"}, true)
	if err != nil {
		var failed *command.CommandFailedError
		if errors.As(err, &failed) {
			return 0, &noPullRequestError{cause: err}
		}
		return 0, err
	}
	var pr struct {
		Number int `json:"number"`
	}
	if err := decodeJSON(out, &pr); err != nil {
		return 0, &noPullRequestError{cause: err}
	}
	if pr.Number <= 0 {
		return 0, &noPullRequestError{}
	}
	return pr.Number, nil
}

func decodeJSON(out command.Output, v any) error {
	if err := json.Unmarshal([]byte(out.Stdout), v); err != nil {
		return fmt.Errorf("decode %s output: %w", strings.Join(out.Argv, " "), err)
	}
	return nil
}

func validateBranch(name string) error {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return fmt.Errorf("branch name is required")
	}
	if strings.HasPrefix(trimmed, "-") || strings.Contains(trimmed, "..") || strings.Contains(trimmed, " ") || !branchNameRe.MatchString(trimmed) {
		return fmt.Errorf("invalid branch name: %q", name)
	}
	return nil
}

// BranchType is feature when title starts with the literal "[feature]" and
// fix otherwise. The match is case-sensitive.
func BranchType(title string) string {
	if strings.HasPrefix(title, featurePrefix) {
		return BranchTypeFeature
	}
	return BranchTypeFix
}

func BranchName(branchType string, number int) string {
	return fmt.Sprintf("%s/issue-%d", branchType, number)
}

// IssueNumberFromBranch extracts the digits after the first "issue-" in
// branch, or UnknownIssue when there are none.
func IssueNumberFromBranch(branch string) string {
	m := issueNumberRe.FindStringSubmatch(branch)
	if m == nil {
		return UnknownIssue
	}
	return m[1]
}
