// Package mcp exposes the search bridge to MCP clients and to plain JSON callers.
package mcp

import (
	"context"
	"fmt"
	"time"

	"github.com/Laisky/errors/v2"
	gmw "github.com/Laisky/gin-middlewares/v7"
	logSDK "github.com/Laisky/go-utils/v6/log"
	"github.com/Laisky/zap"
	mcp "github.com/mark3labs/mcp-go/mcp"

	"github.com/Laisky/searxng-mcp/internal/mcp/tools"
	"github.com/Laisky/searxng-mcp/internal/scrape"
	"github.com/Laisky/searxng-mcp/library/log"
	"github.com/Laisky/searxng-mcp/library/search"
)

// ErrorCode classifies a ProtocolError.
type ErrorCode string

const (
	CodeUnknownTool      ErrorCode = "unknown_tool"
	CodeInvalidArguments ErrorCode = "invalid_arguments"
	CodeSearchFailed     ErrorCode = "search_failed"
)

// ToolCallRequest is a tool invocation in the plain JSON envelope.
type ToolCallRequest struct {
	Tool      string         `json:"tool"`
	Arguments map[string]any `json:"arguments"`
}

// ToolCallResponse is the successful reply to a ToolCallRequest.
type ToolCallResponse struct {
	Results []scrape.PageResult `json:"results"`
}

// ProtocolError is returned to the caller instead of results.
type ProtocolError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// ErrorResponse wraps a ProtocolError as {"error":{...}}.
type ErrorResponse struct {
	Error *ProtocolError `json:"error"`
}

// HealthStatus is the liveness payload.
type HealthStatus struct {
	Status     string `json:"status"`
	SearxngURL string `json:"searxng_url"`
}

// Scraper turns search entries and single URLs into page results.
type Scraper interface {
	Run(ctx context.Context, entries []search.SearchResultEntry) []scrape.PageResult
	Scrape(ctx context.Context, rawURL, title, snippet string) scrape.PageResult
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithDispatcherLogger overrides the dispatcher logger.
func WithDispatcherLogger(logger logSDK.Logger) DispatcherOption {
	return func(d *Dispatcher) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// Dispatcher routes tool calls to the search client and the scraper.
type Dispatcher struct {
	engine     search.Engine
	scraper    Scraper
	searxngURL string
	maxResults int
	logger     logSDK.Logger

	searchTool  *tools.SearchWebTool
	websiteTool *tools.GetWebsiteTool
}

// NewDispatcher builds a Dispatcher. searxngURL is reported by Health and
// maxResults is the default advertised for search_web.
func NewDispatcher(engine search.Engine, scraper Scraper, searxngURL string, maxResults int, opts ...DispatcherOption) (*Dispatcher, error) {
	if engine == nil {
		return nil, errors.New("search engine is required")
	}
	if scraper == nil {
		return nil, errors.New("scraper is required")
	}

	d := &Dispatcher{
		engine:     engine,
		scraper:    scraper,
		searxngURL: searxngURL,
		maxResults: maxResults,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(d)
		}
	}
	if d.logger == nil {
		d.logger = log.Logger.Named("dispatcher")
	}

	var err error
	if d.searchTool, err = tools.NewSearchWebTool(d, maxResults, d.logger.Named(tools.SearchWebName)); err != nil {
		return nil, errors.Wrap(err, "new search_web tool")
	}
	if d.websiteTool, err = tools.NewGetWebsiteTool(d, d.logger.Named(tools.GetWebsiteName)); err != nil {
		return nil, errors.Wrap(err, "new get_website tool")
	}

	return d, nil
}

// SearchWeb queries the backend and scrapes every ranked entry.
func (d *Dispatcher) SearchWeb(ctx context.Context, query string, maxResults int) ([]scrape.PageResult, error) {
	startAt := time.Now()
	entries, err := d.engine.Search(ctx, query, maxResults)
	if err != nil {
		return nil, errors.Wrapf(err, "search %q", query)
	}

	results := d.scraper.Run(ctx, entries)
	d.loggerFor(ctx).Info("search_web finished",
		zap.Int("query_len", len(query)),
		zap.Int("entries", len(entries)),
		zap.Duration("cost", time.Since(startAt)),
	)
	return results, nil
}

// GetWebsite scrapes one URL.
func (d *Dispatcher) GetWebsite(ctx context.Context, rawURL string) scrape.PageResult {
	return d.scraper.Scrape(ctx, rawURL, "", "")
}

// Dispatch validates and executes a tool call from the plain JSON envelope.
func (d *Dispatcher) Dispatch(ctx context.Context, req ToolCallRequest) (*ToolCallResponse, *ProtocolError) {
	logger := d.loggerFor(ctx)

	switch req.Tool {
	case tools.SearchWebName:
		args, err := tools.ParseSearchArgs(req.Arguments)
		if err != nil {
			return nil, &ProtocolError{Code: CodeInvalidArguments, Message: err.Error()}
		}

		results, err := d.SearchWeb(ctx, args.Query, args.MaxResults)
		if err != nil {
			logger.Error("search backend failed", zap.Error(err))
			return nil, &ProtocolError{Code: CodeSearchFailed, Message: err.Error()}
		}
		return &ToolCallResponse{Results: results}, nil
	case tools.GetWebsiteName:
		rawURL, err := tools.ParseWebsiteArgs(req.Arguments)
		if err != nil {
			return nil, &ProtocolError{Code: CodeInvalidArguments, Message: err.Error()}
		}
		return &ToolCallResponse{Results: []scrape.PageResult{d.GetWebsite(ctx, rawURL)}}, nil
	default:
		logger.Warn("unknown tool requested", zap.String("tool", req.Tool))
		return nil, &ProtocolError{
			Code:    CodeUnknownTool,
			Message: fmt.Sprintf("unknown tool %q", req.Tool),
		}
	}
}

// Tools returns the definitions of every tool, in registration order.
func (d *Dispatcher) Tools() []mcp.Tool {
	return []mcp.Tool{
		d.searchTool.Definition(),
		d.websiteTool.Definition(),
	}
}

// Health reports liveness without touching the backend.
func (d *Dispatcher) Health() HealthStatus {
	return HealthStatus{
		Status:     "ok",
		SearxngURL: d.searxngURL,
	}
}

func (d *Dispatcher) registered() []tools.Tool {
	return []tools.Tool{d.searchTool, d.websiteTool}
}

func (d *Dispatcher) loggerFor(ctx context.Context) logSDK.Logger {
	if ctxLogger := gmw.GetLogger(ctx); ctxLogger != nil {
		return ctxLogger.Named("dispatcher")
	}
	return d.logger
}
