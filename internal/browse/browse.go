// Package browse renders web pages and search results as plain text with a
// text-mode browser.
package browse

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/toolhub/agenttools/internal/command"
)

const DefaultSearchURL = "https://duckduckgo.com/html/?q="

var (
	ErrEmptyTerm  = errors.New("search term is required")
	ErrInvalidURL = errors.New("url must be an absolute http or https URL")
)

type argumentError struct{ err error }

func (e *argumentError) Error() string     { return e.err.Error() }
func (e *argumentError) Unwrap() error     { return e.err }
func (e *argumentError) ErrorCode() string { return "invalid_arguments" }

type Config struct {
	// Binary is the text browser, lynx unless overridden.
	Binary string
	// SearchURL is prefixed to the escaped search term.
	SearchURL string
}

type Browser struct {
	cfg    Config
	run    *command.Runner
	logger *slog.Logger
}

func New(cfg Config, inv command.Invoker, logger *slog.Logger) *Browser {
	if strings.TrimSpace(cfg.Binary) == "" {
		cfg.Binary = "lynx"
	}
	if strings.TrimSpace(cfg.SearchURL) == "" {
		cfg.SearchURL = DefaultSearchURL
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Browser{cfg: cfg, run: command.NewRunner("", inv), logger: logger}
}

// Search dumps the search results page for term.
func (b *Browser) Search(ctx context.Context, term string) (string, error) {
	if strings.TrimSpace(term) == "" {
		return "", &argumentError{err: ErrEmptyTerm}
	}
	b.logger.InfoContext(ctx, "searching web", "term", term)
	return b.dump(ctx, b.cfg.SearchURL+url.QueryEscape(term)), nil
}

// Fetch dumps the page at rawURL.
func (b *Browser) Fetch(ctx context.Context, rawURL string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", &argumentError{err: fmt.Errorf("%w: %q", ErrInvalidURL, rawURL)}
	}
	b.logger.InfoContext(ctx, "browsing url", "url", u.String())
	return b.dump(ctx, u.String()), nil
}

// dump tolerates non-zero exits: lynx reports unreachable hosts on stderr
// and that text is still useful to the caller.
func (b *Browser) dump(ctx context.Context, target string) string {
	out, err := b.run.Run(ctx, []string{b.cfg.Binary, "-dump", "-nolist", target}, false)
	if err != nil {
		return "Error: " + err.Error()
	}
	return out.Text()
}
