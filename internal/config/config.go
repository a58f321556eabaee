// Package config loads process settings from the environment and optional
// dotenv files, and checks that every enabled tool group has what it needs.
package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sethvargo/go-envconfig"
	"github.com/toolhub/agenttools/internal/core"
)

var ErrConfigurationMissing = errors.New("configuration missing")

// MissingError lists every required variable that is unset.
type MissingError struct {
	Vars []string
}

func (e *MissingError) Error() string {
	return fmt.Sprintf("%s: %s", ErrConfigurationMissing, strings.Join(e.Vars, ", "))
}

func (e *MissingError) Is(target error) bool { return target == ErrConfigurationMissing }

func (e *MissingError) ErrorCode() string { return "configuration_missing" }

type Config struct {
	JiraURL       string `env:"JIRA_URL"`
	JiraUsername  string `env:"JIRA_USERNAME"`
	JiraAPIToken  string `env:"JIRA_API_TOKEN"`
	JiraIsCloud   bool   `env:"JIRA_IS_CLOUD, default=false"`
	JiraBaseIssue string `env:"JIRA_BASE_ISSUE"`

	GHToken    string `env:"GH_TOKEN"`
	ProjectDir string `env:"PROJECT_DIR"`

	Profile       string `env:"AGENTTOOLS_PROFILE, default=all"`
	ToolAllowlist string `env:"TOOL_ALLOWLIST"`

	WorkflowRemote     string `env:"WORKFLOW_REMOTE, default=origin"`
	WorkflowBaseBranch string `env:"WORKFLOW_BASE_BRANCH, default=master"`

	BrowseBinary    string `env:"BROWSE_BINARY, default=lynx"`
	BrowseSearchURL string `env:"BROWSE_SEARCH_URL, default=https://duckduckgo.com/html/?q="`

	QAPython         string `env:"QA_PYTHON, default=python3"`
	QATimeoutSeconds int    `env:"QA_TIMEOUT_SECONDS, default=600"`
	FormatterPython  string `env:"FORMATTER_PYTHON, default=python3"`

	LogLevel      string `env:"LOG_LEVEL, default=info"`
	OTelEnabled   bool   `env:"OTEL_ENABLED, default=false"`
	HTTPListen    string `env:"MCP_HTTP_LISTEN, default=127.0.0.1:8090"`
	MetricsListen string `env:"METRICS_LISTEN"`
}

type LoadOptions struct {
	// EnvFiles are read in order. Earlier files and the process environment
	// win over later files. When empty, ./.env is read if it exists.
	EnvFiles []string
	// ProjectPath overrides PROJECT_DIR.
	ProjectPath string
	// Lookuper replaces the process environment, mainly for tests.
	Lookuper envconfig.Lookuper
}

func Load(ctx context.Context, opts LoadOptions) (*Config, error) {
	fileValues, err := readEnvFiles(opts.EnvFiles)
	if err != nil {
		return nil, err
	}

	base := opts.Lookuper
	if base == nil {
		base = envconfig.OsLookuper()
	}
	lookuper := base
	if len(fileValues) > 0 {
		lookuper = envconfig.MultiLookuper(base, envconfig.MapLookuper(fileValues))
	}

	var cfg Config
	if err := envconfig.ProcessWith(ctx, &envconfig.Config{
		Target:   &cfg,
		Lookuper: lookuper,
	}); err != nil {
		return nil, fmt.Errorf("process environment: %w", err)
	}

	if strings.TrimSpace(opts.ProjectPath) != "" {
		cfg.ProjectDir = opts.ProjectPath
	}
	if cfg.ProjectDir != "" {
		abs, err := filepath.Abs(cfg.ProjectDir)
		if err != nil {
			return nil, fmt.Errorf("resolve project dir: %w", err)
		}
		cfg.ProjectDir = abs
	}
	cfg.JiraURL = strings.TrimRight(cfg.JiraURL, "/")
	return &cfg, nil
}

func readEnvFiles(files []string) (map[string]string, error) {
	if len(files) == 0 {
		if _, err := os.Stat(".env"); err != nil {
			return nil, nil
		}
		files = []string{".env"}
	}
	merged := make(map[string]string)
	for _, f := range files {
		values, err := godotenv.Read(f)
		if err != nil {
			return nil, fmt.Errorf("read env file %s: %w", f, err)
		}
		for k, v := range values {
			if _, seen := merged[k]; !seen {
				merged[k] = v
			}
		}
	}
	return merged, nil
}

// Validate reports every variable required by groups that is empty.
func (c *Config) Validate(groups []core.ToolGroup) error {
	missing := make(map[string]bool)
	require := func(name, value string) {
		if strings.TrimSpace(value) == "" {
			missing[name] = true
		}
	}
	for _, g := range groups {
		switch g {
		case core.GroupWorkflow:
			require("PROJECT_DIR", c.ProjectDir)
			require("GH_TOKEN", c.GHToken)
		case core.GroupJira:
			require("JIRA_URL", c.JiraURL)
			require("JIRA_API_TOKEN", c.JiraAPIToken)
			require("JIRA_BASE_ISSUE", c.JiraBaseIssue)
			// Jira Cloud rejects bearer tokens; it wants Basic email:token.
			if c.JiraIsCloud {
				require("JIRA_USERNAME", c.JiraUsername)
			}
		case core.GroupFormatter, core.GroupDevelopment:
			require("PROJECT_DIR", c.ProjectDir)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	vars := make([]string, 0, len(missing))
	for name := range missing {
		vars = append(vars, name)
	}
	sort.Strings(vars)
	return &MissingError{Vars: vars}
}

func (c *Config) QATimeout() time.Duration {
	return time.Duration(c.QATimeoutSeconds) * time.Second
}

// TrackerEnv is the environment the gh CLI needs to authenticate.
func (c *Config) TrackerEnv() []string {
	if c.GHToken == "" {
		return nil
	}
	return []string{"GH_TOKEN=" + c.GHToken}
}
