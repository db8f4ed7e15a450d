package tools

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/Laisky/searxng-mcp/internal/scrape"
)

const (
	// SearchWebName is the registered name of the search tool.
	SearchWebName = "search_web"
	// GetWebsiteName is the registered name of the single page tool.
	GetWebsiteName = "get_website"
)

// Tool exposes the capabilities required by the MCP server registration lifecycle.
type Tool interface {
	Definition() mcp.Tool
	Handle(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error)
}

// WebSearcher runs a search and scrapes every ranked result.
// The error is non-nil only when the ranked list itself could not be obtained.
type WebSearcher interface {
	SearchWeb(ctx context.Context, query string, maxResults int) ([]scrape.PageResult, error)
}

// WebsiteGetter scrapes a single page. Fetch failures are reported in the result.
type WebsiteGetter interface {
	GetWebsite(ctx context.Context, rawURL string) scrape.PageResult
}

// Results is the payload returned by both tools.
type Results struct {
	Results []scrape.PageResult `json:"results"`
}
