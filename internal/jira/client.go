package jira

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/toolhub/agenttools/internal/telemetry"
)

const (
	userAgent       = "agenttools-jira/1.0"
	retryMaxElapsed = 20 * time.Second
)

func newRetryBackoff() backoff.BackOff {
	// BackOff implementations are stateful; always return a fresh instance.
	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = retryMaxElapsed
	return bo
}

// Issue is a Jira issue with its fields kept generic, so arbitrary required
// fields can be copied into new issues.
type Issue struct {
	ID     string         `json:"id"`
	Key    string         `json:"key"`
	Self   string         `json:"self,omitempty"`
	Fields map[string]any `json:"fields"`
}

// Summary returns fields.summary.
func (i *Issue) Summary() string { return stringField(i.Fields, "summary") }

// Description returns fields.description, or "" when it is null.
func (i *Issue) Description() string { return stringField(i.Fields, "description") }

func (i *Issue) ProjectKey() string { return nestedString(i.Fields, "project", "key") }

func (i *Issue) IssueTypeID() string { return nestedString(i.Fields, "issuetype", "id") }

func (i *Issue) IssueTypeName() string { return nestedString(i.Fields, "issuetype", "name") }

func (i *Issue) StatusName() string { return nestedString(i.Fields, "status", "name") }

type Comment struct {
	ID      string `json:"id"`
	Author  User   `json:"author"`
	Created string `json:"created"`
	Body    string `json:"body"`
}

type User struct {
	Name         string `json:"name,omitempty"`
	DisplayName  string `json:"displayName"`
	EmailAddress string `json:"emailAddress,omitempty"`
}

// CreatedIssue is the body of a successful create.
type CreatedIssue struct {
	ID   string `json:"id"`
	Key  string `json:"key"`
	Self string `json:"self"`
}

// APIError is a non-2xx response from Jira.
type APIError struct {
	Operation  string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: jira API returned %d: %s", e.Operation, e.StatusCode, strings.TrimSpace(e.Body))
}

func (e *APIError) ErrorCode() string {
	switch e.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return "jira_auth_failed"
	case http.StatusNotFound:
		return "jira_not_found"
	default:
		return "jira_api_error"
	}
}

// Client provides HTTP access to the Jira REST API v2.
type Client struct {
	URL        string
	Username   string
	APIToken   string
	HTTPClient *http.Client
	logger     *slog.Logger
	newBackoff func() backoff.BackOff
}

// NewClient creates a client. Requests use Basic auth when username is set
// and a bearer personal access token otherwise.
func NewClient(baseURL, username, apiToken string, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Client{
		URL:      strings.TrimSuffix(baseURL, "/"),
		Username: username,
		APIToken: apiToken,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger:     logger,
		newBackoff: newRetryBackoff,
	}
}

// GetIssue fetches a single issue with all of its fields.
func (c *Client) GetIssue(ctx context.Context, key string) (*Issue, error) {
	apiURL := fmt.Sprintf("%s/rest/api/2/issue/%s", c.URL, url.PathEscape(key))
	body, err := c.doRequest(ctx, "get_issue", http.MethodGet, apiURL, nil)
	if err != nil {
		return nil, err
	}
	var issue Issue
	if err := json.Unmarshal(body, &issue); err != nil {
		return nil, fmt.Errorf("parse issue %s: %w", key, err)
	}
	if issue.Fields == nil {
		issue.Fields = map[string]any{}
	}
	return &issue, nil
}

// RequiredFields lists the field ids Jira requires when creating an issue of
// issueTypeID in projectKey.
func (c *Client) RequiredFields(ctx context.Context, projectKey, issueTypeID string) ([]string, error) {
	var required []string
	startAt := 0
	for {
		params := url.Values{
			"startAt":    {strconv.Itoa(startAt)},
			"maxResults": {"100"},
		}
		apiURL := fmt.Sprintf("%s/rest/api/2/issue/createmeta/%s/issuetypes/%s?%s",
			c.URL, url.PathEscape(projectKey), url.PathEscape(issueTypeID), params.Encode())
		body, err := c.doRequest(ctx, "create_meta", http.MethodGet, apiURL, nil)
		if err != nil {
			return nil, err
		}
		var page struct {
			StartAt int  `json:"startAt"`
			Total   int  `json:"total"`
			IsLast  bool `json:"isLast"`
			Values  []struct {
				FieldID  string `json:"fieldId"`
				Required bool   `json:"required"`
			} `json:"values"`
		}
		if err := json.Unmarshal(body, &page); err != nil {
			return nil, fmt.Errorf("parse create metadata: %w", err)
		}
		for _, f := range page.Values {
			if f.Required {
				required = append(required, f.FieldID)
			}
		}
		startAt += len(page.Values)
		if page.IsLast || len(page.Values) == 0 || startAt >= page.Total {
			break
		}
	}
	return required, nil
}

// CreateIssue posts fields as a new issue.
func (c *Client) CreateIssue(ctx context.Context, fields map[string]any) (*CreatedIssue, error) {
	data, err := json.Marshal(map[string]any{"fields": fields})
	if err != nil {
		return nil, fmt.Errorf("marshal create request: %w", err)
	}
	body, err := c.doRequest(ctx, "create_issue", http.MethodPost, c.URL+"/rest/api/2/issue", data)
	if err != nil {
		return nil, err
	}
	var created CreatedIssue
	if err := json.Unmarshal(body, &created); err != nil {
		return nil, fmt.Errorf("parse create response: %w", err)
	}
	return &created, nil
}

const searchFields = "summary,status,issuetype"

// SearchIssues runs jql and returns every matching issue across pages.
func (c *Client) SearchIssues(ctx context.Context, jql string) ([]Issue, error) {
	var all []Issue
	startAt := 0
	for {
		params := url.Values{
			"jql":        {jql},
			"fields":     {searchFields},
			"startAt":    {strconv.Itoa(startAt)},
			"maxResults": {"100"},
		}
		body, err := c.doRequest(ctx, "search", http.MethodGet, c.URL+"/rest/api/2/search?"+params.Encode(), nil)
		if err != nil {
			return nil, err
		}
		var page struct {
			StartAt int     `json:"startAt"`
			Total   int     `json:"total"`
			Issues  []Issue `json:"issues"`
		}
		if err := json.Unmarshal(body, &page); err != nil {
			return nil, fmt.Errorf("parse search response: %w", err)
		}
		all = append(all, page.Issues...)
		startAt += len(page.Issues)
		if len(page.Issues) == 0 || startAt >= page.Total {
			break
		}
	}
	return all, nil
}

// Comments returns the comments of key in creation order.
func (c *Client) Comments(ctx context.Context, key string) ([]Comment, error) {
	apiURL := fmt.Sprintf("%s/rest/api/2/issue/%s/comment", c.URL, url.PathEscape(key))
	body, err := c.doRequest(ctx, "comments", http.MethodGet, apiURL, nil)
	if err != nil {
		return nil, err
	}
	var result struct {
		Comments []Comment `json:"comments"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("parse comments of %s: %w", key, err)
	}
	return result.Comments, nil
}

// doRequest sends one API call. GETs are retried on rate limiting, server
// errors and transport failures; writes are sent once.
func (c *Client) doRequest(ctx context.Context, op, method, apiURL string, body []byte) ([]byte, error) {
	if c.URL == "" {
		return nil, fmt.Errorf("jira URL not configured")
	}
	if c.APIToken == "" {
		return nil, fmt.Errorf("jira API token not configured")
	}
	if method != http.MethodGet {
		return c.send(ctx, op, method, apiURL, body)
	}

	var out []byte
	attempt := 0
	err := backoff.Retry(func() error {
		attempt++
		respBody, err := c.send(ctx, op, method, apiURL, body)
		if err == nil {
			out = respBody
			return nil
		}
		if !retryable(err) {
			return backoff.Permanent(err)
		}
		c.logger.WarnContext(ctx, "jira request failed, retrying", "operation", op, "attempt", attempt, "err", err)
		return err
	}, backoff.WithContext(c.newBackoff(), ctx))
	return out, err
}

func retryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == http.StatusTooManyRequests || apiErr.StatusCode >= 500
	}
	return true
}

func (c *Client) send(ctx context.Context, op, method, apiURL string, body []byte) ([]byte, error) {
	var bodyReader io.Reader
	if body != nil {
		bodyReader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, apiURL, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	c.setAuth(req)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%s: read response: %w", op, err)
	}
	c.logger.InfoContext(ctx, "jira request", "operation", op, "method", method,
		"status", resp.StatusCode, "duration", fmt.Sprintf("%dms", time.Since(start).Milliseconds()))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		telemetry.IncJiraAPIError(op, resp.StatusCode)
		return nil, &APIError{Operation: op, StatusCode: resp.StatusCode, Body: string(respBody)}
	}
	return respBody, nil
}

func (c *Client) setAuth(req *http.Request) {
	if c.Username != "" {
		auth := base64.StdEncoding.EncodeToString([]byte(c.Username + ":" + c.APIToken))
		req.Header.Set("Authorization", "Basic "+auth)
		return
	}
	req.Header.Set("Authorization", "Bearer "+c.APIToken)
}

func stringField(fields map[string]any, name string) string {
	s, _ := fields[name].(string)
	return s
}

func nestedString(fields map[string]any, parent, name string) string {
	m, _ := fields[parent].(map[string]any)
	return stringField(m, name)
}
