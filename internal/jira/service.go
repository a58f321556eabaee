// Package jira exposes the Jira operations offered as tools: reading the
// configured base issue, cloning it into new issues, and reading epics and
// stories.
package jira

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// Service implements the Jira tools on top of a Client and the base issue
// every new issue is modelled on.
type Service struct {
	client    *Client
	baseIssue string
	logger    *slog.Logger
}

func NewService(client *Client, baseIssue string, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Service{client: client, baseIssue: baseIssue, logger: logger}
}

type BaseIssue struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

type CreateResult struct {
	Success  bool   `json:"success"`
	IssueKey string `json:"issue_key,omitempty"`
	IssueID  string `json:"issue_id,omitempty"`
	Error    string `json:"error,omitempty"`
}

type Story struct {
	Key       string `json:"key"`
	Title     string `json:"title"`
	Status    string `json:"status"`
	IssueType string `json:"issue_type"`
}

type EpicStoriesResult struct {
	Success     bool    `json:"success"`
	EpicKey     string  `json:"epic_key,omitempty"`
	TotalIssues int     `json:"total_issues"`
	Stories     []Story `json:"stories"`
	Error       string  `json:"error,omitempty"`
}

type StoryComment struct {
	Author  string `json:"author"`
	Created string `json:"created"`
	Body    string `json:"body"`
}

type StoryContentResult struct {
	Success     bool           `json:"success"`
	Key         string         `json:"key,omitempty"`
	Title       string         `json:"title,omitempty"`
	Description string         `json:"description"`
	Status      string         `json:"status,omitempty"`
	IssueType   string         `json:"issue_type,omitempty"`
	Comments    []StoryComment `json:"comments"`
	Error       string         `json:"error,omitempty"`
}

// BaseIssue returns the title and description of the configured base issue.
func (s *Service) BaseIssue(ctx context.Context) (*BaseIssue, error) {
	issue, err := s.client.GetIssue(ctx, s.baseIssue)
	if err != nil {
		return nil, fmt.Errorf("get base issue %s: %w", s.baseIssue, err)
	}
	return &BaseIssue{Title: issue.Summary(), Description: issue.Description()}, nil
}

// CreateFromBase creates an issue in the base issue's project with its issue
// type, copying every field Jira requires that the base issue carries. A
// rejected create is reported in the result rather than as an error.
func (s *Service) CreateFromBase(ctx context.Context, title, description string) (*CreateResult, error) {
	base, err := s.client.GetIssue(ctx, s.baseIssue)
	if err != nil {
		return nil, fmt.Errorf("get base issue %s: %w", s.baseIssue, err)
	}
	projectKey := base.ProjectKey()
	issueTypeID := base.IssueTypeID()
	if projectKey == "" || issueTypeID == "" {
		return nil, fmt.Errorf("base issue %s has no project key or issue type", s.baseIssue)
	}

	required, err := s.client.RequiredFields(ctx, projectKey, issueTypeID)
	if err != nil {
		return nil, fmt.Errorf("required fields for %s/%s: %w", projectKey, issueTypeID, err)
	}

	fields := map[string]any{
		"project":     map[string]any{"key": projectKey},
		"issuetype":   map[string]any{"id": issueTypeID},
		"summary":     title,
		"description": description,
	}
	for _, id := range required {
		if _, set := fields[id]; set {
			continue
		}
		if v, ok := base.Fields[id]; ok {
			fields[id] = v
		}
	}

	created, err := s.client.CreateIssue(ctx, fields)
	if err != nil {
		s.logger.WarnContext(ctx, "jira create rejected", "project", projectKey, "err", err)
		return &CreateResult{Success: false, Error: "Failed to create issue: " + err.Error()}, nil
	}
	s.logger.InfoContext(ctx, "jira issue created", "issue_key", created.Key, "base_issue", s.baseIssue)
	return &CreateResult{Success: true, IssueKey: created.Key, IssueID: created.ID}, nil
}

// EpicStories lists the issues linked to epicKey.
func (s *Service) EpicStories(ctx context.Context, epicKey string) *EpicStoriesResult {
	jql := fmt.Sprintf(`"Epic Link" = %s`, quoteJQL(epicKey))
	issues, err := s.client.SearchIssues(ctx, jql)
	if err != nil {
		return &EpicStoriesResult{Success: false, Error: "Failed to retrieve epic stories: " + err.Error()}
	}
	stories := make([]Story, 0, len(issues))
	for i := range issues {
		issue := &issues[i]
		stories = append(stories, Story{
			Key:       issue.Key,
			Title:     issue.Summary(),
			Status:    issue.StatusName(),
			IssueType: issue.IssueTypeName(),
		})
	}
	return &EpicStoriesResult{
		Success:     true,
		EpicKey:     epicKey,
		TotalIssues: len(stories),
		Stories:     stories,
	}
}

// StoryContent returns a story with its comments. A failure to read the
// comments leaves the list empty.
func (s *Service) StoryContent(ctx context.Context, storyKey string) *StoryContentResult {
	issue, err := s.client.GetIssue(ctx, storyKey)
	if err != nil {
		return &StoryContentResult{Success: false, Error: "Failed to retrieve story content: " + err.Error()}
	}

	comments := []StoryComment{}
	raw, err := s.client.Comments(ctx, storyKey)
	if err != nil {
		s.logger.WarnContext(ctx, "could not read jira comments", "story_key", storyKey, "err", err)
	}
	for _, c := range raw {
		comments = append(comments, StoryComment{Author: c.Author.DisplayName, Created: c.Created, Body: c.Body})
	}

	return &StoryContentResult{
		Success:     true,
		Key:         storyKey,
		Title:       issue.Summary(),
		Description: issue.Description(),
		Status:      issue.StatusName(),
		IssueType:   issue.IssueTypeName(),
		Comments:    comments,
	}
}

// quoteJQL leaves plain issue keys untouched and quotes anything else.
func quoteJQL(v string) string {
	for _, r := range v {
		if !(r == '-' || r == '_' || (r >= 'A' && r <= 'Z') || (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9')) {
			return `"` + strings.ReplaceAll(strings.ReplaceAll(v, `\`, `\\`), `"`, `\"`) + `"`
		}
	}
	return v
}
