package tools

import (
	"context"

	"github.com/Laisky/errors/v2"
	logSDK "github.com/Laisky/go-utils/v6/log"
	"github.com/Laisky/zap"
	mcp "github.com/mark3labs/mcp-go/mcp"

	"github.com/Laisky/searxng-mcp/internal/scrape"
)

// GetWebsiteTool implements the get_website MCP tool.
type GetWebsiteTool struct {
	getter WebsiteGetter
	logger logSDK.Logger
}

// NewGetWebsiteTool constructs a GetWebsiteTool with the provided dependencies.
func NewGetWebsiteTool(getter WebsiteGetter, logger logSDK.Logger) (*GetWebsiteTool, error) {
	if getter == nil {
		return nil, errors.New("website getter is required")
	}
	if logger == nil {
		return nil, errors.New("logger is required")
	}

	return &GetWebsiteTool{
		getter: getter,
		logger: logger,
	}, nil
}

// Definition returns the MCP metadata describing the tool.
func (t *GetWebsiteTool) Definition() mcp.Tool {
	return mcp.NewTool(
		GetWebsiteName,
		mcp.WithDescription("Fetch one web page and return its cleaned text."),
		mcp.WithString(
			"url",
			mcp.Required(),
			mcp.Description("Absolute http or https URL to retrieve."),
		),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithIdempotentHintAnnotation(true),
		mcp.WithOpenWorldHintAnnotation(true),
	)
}

// Handle executes the get_website tool logic. Fetch failures are returned
// inside the single result, not as tool errors.
func (t *GetWebsiteTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	rawURL, err := ParseWebsiteArgs(req.GetArguments())
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	result := t.getter.GetWebsite(ctx, rawURL)
	t.logger.Debug("get_website completed",
		zap.String("url", rawURL),
		zap.String("status", string(result.Status)),
	)

	toolResult, err := mcp.NewToolResultJSON(Results{Results: []scrape.PageResult{result}})
	if err != nil {
		t.logger.Error("encode get_website result", zap.Error(err))
		return mcp.NewToolResultError("failed to encode get_website result"), nil
	}

	return toolResult, nil
}
