package tools

import (
	"context"
	"fmt"
	"time"

	"github.com/Laisky/errors/v2"
	logSDK "github.com/Laisky/go-utils/v6/log"
	"github.com/Laisky/zap"
	mcp "github.com/mark3labs/mcp-go/mcp"
)

// SearchWebTool implements the search_web MCP tool.
type SearchWebTool struct {
	searcher   WebSearcher
	maxResults int
	logger     logSDK.Logger
}

// NewSearchWebTool constructs a SearchWebTool. maxResults is the advertised default.
func NewSearchWebTool(searcher WebSearcher, maxResults int, logger logSDK.Logger) (*SearchWebTool, error) {
	if searcher == nil {
		return nil, errors.New("web searcher is required")
	}
	if logger == nil {
		return nil, errors.New("logger is required")
	}

	return &SearchWebTool{
		searcher:   searcher,
		maxResults: maxResults,
		logger:     logger,
	}, nil
}

// Definition returns the MCP metadata describing the tool.
func (t *SearchWebTool) Definition() mcp.Tool {
	return mcp.NewTool(
		SearchWebName,
		mcp.WithDescription("Search the web through SearXNG, then fetch every result page and return its cleaned text in rank order."),
		mcp.WithString(
			"query",
			mcp.Required(),
			mcp.Description("Plain text search query."),
		),
		mcp.WithNumber(
			"max_results",
			mcp.Description(fmt.Sprintf("Number of results to fetch, at most %d.", t.maxResults)),
			mcp.DefaultNumber(float64(t.maxResults)),
			mcp.Min(1),
			mcp.Max(float64(t.maxResults)),
		),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithIdempotentHintAnnotation(true),
		mcp.WithOpenWorldHintAnnotation(true),
	)
}

// Handle executes the search_web tool logic using the configured dependencies.
func (t *SearchWebTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := ParseSearchArgs(req.GetArguments())
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	start := time.Now().UTC()
	t.logger.Debug("search_web started",
		zap.Int("query_len", len(args.Query)),
		zap.Int("max_results", args.MaxResults),
	)

	results, err := t.searcher.SearchWeb(ctx, args.Query, args.MaxResults)
	if err != nil {
		t.logger.Error("search_web failed", zap.Error(err), zap.Int("query_len", len(args.Query)))
		return mcp.NewToolResultError(fmt.Sprintf("search failed: %v", err)), nil
	}

	t.logger.Debug("search_web completed",
		zap.Int("query_len", len(args.Query)),
		zap.Int("results_count", len(results)),
		zap.Duration("duration", time.Since(start)),
	)

	toolResult, err := mcp.NewToolResultJSON(Results{Results: results})
	if err != nil {
		t.logger.Error("encode search_web result", zap.Error(err))
		return mcp.NewToolResultError("failed to encode search result"), nil
	}

	return toolResult, nil
}
