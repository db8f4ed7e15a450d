// Package scrape fetches and sanitizes the pages behind search results.
package scrape

import (
	"context"
	"sync"
	"time"

	gmw "github.com/Laisky/gin-middlewares/v7"
	logSDK "github.com/Laisky/go-utils/v6/log"
	"github.com/Laisky/zap"

	"github.com/Laisky/searxng-mcp/library/fetch"
	"github.com/Laisky/searxng-mcp/library/log"
	"github.com/Laisky/searxng-mcp/library/sanitize"
	"github.com/Laisky/searxng-mcp/library/search"
)

// Status is the per-page outcome reported to callers.
type Status string

const (
	StatusOK      Status = "OK"
	StatusTimeout Status = "TIMEOUT"
	StatusError   Status = "ERROR"
)

// DefaultTitle is used when neither the backend nor the page supplies a title.
const DefaultTitle = "No title"

// PageResult is the processed form of one page.
type PageResult struct {
	URL         string `json:"url"`
	Title       string `json:"title"`
	Snippet     string `json:"snippet,omitempty"`
	Content     string `json:"content"`
	WordCount   int    `json:"word_count"`
	Status      Status `json:"status"`
	ErrorDetail string `json:"error_detail,omitempty"`
}

// Fetcher retrieves one page within timeout.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string, timeout time.Duration) fetch.Outcome
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger overrides the default logger used when no contextual logger is present.
func WithLogger(logger logSDK.Logger) Option {
	return func(o *Orchestrator) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// Orchestrator scrapes result pages concurrently.
type Orchestrator struct {
	fetcher   Fetcher
	timeout   time.Duration
	wordLimit int
	logger    logSDK.Logger
}

// New builds an Orchestrator that gives every page fetch timeout and keeps at
// most wordLimit words of content.
func New(fetcher Fetcher, timeout time.Duration, wordLimit int, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		fetcher:   fetcher,
		timeout:   timeout,
		wordLimit: wordLimit,
		logger:    log.Logger.Named("scrape"),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}
	return o
}

// Run scrapes every entry concurrently and returns one result per entry in
// the order given. A failing page never affects its siblings.
func (o *Orchestrator) Run(ctx context.Context, entries []search.SearchResultEntry) []PageResult {
	results := make([]PageResult, len(entries))

	var wg sync.WaitGroup
	for i, entry := range entries {
		wg.Go(func() {
			results[i] = o.Scrape(ctx, entry.URL, entry.Title, entry.Snippet)
		})
	}
	wg.Wait()

	return results
}

// Scrape fetches and sanitizes a single page. Failures are reported in the result.
func (o *Orchestrator) Scrape(ctx context.Context, rawURL, title, snippet string) PageResult {
	logger := o.logger
	if ctxLogger := gmw.GetLogger(ctx); ctxLogger != nil {
		logger = ctxLogger.Named("scrape")
	}

	result := PageResult{
		URL:     rawURL,
		Title:   sanitize.CleanLine(title),
		Snippet: sanitize.CleanLine(snippet),
	}

	startAt := time.Now()
	switch outcome := o.fetcher.Fetch(ctx, rawURL, o.timeout).(type) {
	case fetch.Success:
		page := sanitize.CleanPage(outcome.Body, outcome.ContentType, o.wordLimit)
		if result.Title == "" {
			result.Title = page.Title
		}
		result.Content = page.Content
		result.WordCount = page.WordCount
		result.Status = StatusOK
	case fetch.Timeout:
		result.Status = StatusTimeout
		result.ErrorDetail = "request timed out"
		if outcome.After > 0 {
			result.ErrorDetail += " after " + outcome.After.String()
		}
	case fetch.HTTPError:
		result.Status = StatusError
		result.ErrorDetail = outcome.String()
	case fetch.NetworkError:
		result.Status = StatusError
		result.ErrorDetail = outcome.Message
	default:
		result.Status = StatusError
		result.ErrorDetail = "unknown fetch outcome"
	}

	if result.Title == "" {
		result.Title = DefaultTitle
	}

	fields := []zap.Field{
		zap.String("url", rawURL),
		zap.String("status", string(result.Status)),
		zap.Int("word_count", result.WordCount),
		zap.Duration("cost", time.Since(startAt)),
	}
	if result.Status == StatusOK {
		logger.Debug("page scraped", fields...)
	} else {
		logger.Warn("page scrape failed", append(fields, zap.String("detail", result.ErrorDetail))...)
	}

	return result
}
