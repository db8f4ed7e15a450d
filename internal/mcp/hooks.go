package mcp

import (
	"context"
	"unicode/utf8"

	"github.com/Laisky/errors/v2"
	logSDK "github.com/Laisky/go-utils/v6/log"
	"github.com/Laisky/zap"
	mcp "github.com/mark3labs/mcp-go/mcp"
	srv "github.com/mark3labs/mcp-go/server"

	"github.com/Laisky/searxng-mcp/internal/mcp/tools"
	"github.com/Laisky/searxng-mcp/internal/scrape"
)

// newMCPHooks logs MCP traffic as summaries. Tool calls report a short
// description of their arguments and a tally of page outcomes, never the
// scraped content itself.
func newMCPHooks(logger logSDK.Logger) *srv.Hooks {
	hooks := &srv.Hooks{}

	hooks.AddAfterInitialize(func(ctx context.Context, id any, req *mcp.InitializeRequest, result *mcp.InitializeResult) {
		fields := requestFields(ctx, id)
		if req != nil {
			fields = append(fields,
				zap.String("client", req.Params.ClientInfo.Name),
				zap.String("client_version", req.Params.ClientInfo.Version),
			)
		}
		if result != nil {
			fields = append(fields, zap.String("protocol_version", result.ProtocolVersion))
		}
		logger.Info("mcp client initialized", fields...)
	})

	hooks.AddBeforeCallTool(func(ctx context.Context, id any, req *mcp.CallToolRequest) {
		logger.Debug("tool call received", toolCallFields(ctx, id, req)...)
	})

	hooks.AddAfterCallTool(func(ctx context.Context, id any, req *mcp.CallToolRequest, result any) {
		fields := toolCallFields(ctx, id, req)
		callResult, _ := result.(*mcp.CallToolResult)
		if callResult != nil && callResult.IsError {
			logger.Warn("tool call rejected", append(fields, zap.String("detail", resultText(callResult)))...)
			return
		}

		tally := tallyPages(callResult)
		logger.Info("tool call completed", append(fields,
			zap.Int("pages", tally.total()),
			zap.Int("ok", tally.ok),
			zap.Int("timeout", tally.timeout),
			zap.Int("error", tally.failed),
		)...)
	})

	hooks.AddOnError(func(ctx context.Context, id any, method mcp.MCPMethod, message any, err error) {
		fields := append(requestFields(ctx, id),
			zap.String("method", string(method)),
			zap.Error(err),
		)
		if isUnsupportedCapability(err) {
			logger.Debug("mcp capability not offered", fields...)
			return
		}
		logger.Error("mcp request failed", fields...)
	})

	hooks.AddOnRegisterSession(func(ctx context.Context, session srv.ClientSession) {
		logger.Debug("mcp session registered", zap.String("session_id", session.SessionID()))
	})
	hooks.AddOnUnregisterSession(func(ctx context.Context, session srv.ClientSession) {
		logger.Debug("mcp session unregistered", zap.String("session_id", session.SessionID()))
	})

	return hooks
}

// isUnsupportedCapability reports whether err comes from a client asking for a
// capability this server does not offer, such as resources or prompts.
func isUnsupportedCapability(err error) bool {
	return errors.Is(err, srv.ErrUnsupported)
}

func requestFields(ctx context.Context, id any) []zap.Field {
	fields := []zap.Field{zap.Any("request_id", id)}
	if session := srv.ClientSessionFromContext(ctx); session != nil {
		fields = append(fields, zap.String("session_id", session.SessionID()))
	}
	return fields
}

func toolCallFields(ctx context.Context, id any, req *mcp.CallToolRequest) []zap.Field {
	fields := requestFields(ctx, id)
	if req == nil {
		return fields
	}
	fields = append(fields, zap.String("tool", req.Params.Name))
	return append(fields, argumentSummary(req.GetArguments())...)
}

// argumentSummary describes tool arguments without copying the query text.
func argumentSummary(args map[string]any) []zap.Field {
	var fields []zap.Field
	if query, ok := args["query"].(string); ok {
		fields = append(fields, zap.Int("query_len", utf8.RuneCountInString(query)))
	}
	if target, ok := args["url"].(string); ok {
		fields = append(fields, zap.String("url", target))
	}
	if maxResults, ok := args["max_results"]; ok {
		fields = append(fields, zap.Any("max_results", maxResults))
	}
	return fields
}

type pageTally struct {
	ok, timeout, failed int
}

func (t pageTally) total() int {
	return t.ok + t.timeout + t.failed
}

// tallyPages counts page outcomes in a tool result built from tools.Results.
func tallyPages(result *mcp.CallToolResult) pageTally {
	var tally pageTally
	if result == nil {
		return tally
	}

	var pages []scrape.PageResult
	switch content := result.StructuredContent.(type) {
	case tools.Results:
		pages = content.Results
	case *tools.Results:
		if content != nil {
			pages = content.Results
		}
	}

	for _, page := range pages {
		switch page.Status {
		case scrape.StatusOK:
			tally.ok++
		case scrape.StatusTimeout:
			tally.timeout++
		default:
			tally.failed++
		}
	}
	return tally
}

// resultText returns the first text block of result, capped at detailLogLimit bytes.
func resultText(result *mcp.CallToolResult) string {
	for _, content := range result.Content {
		if text, ok := content.(mcp.TextContent); ok {
			if len(text.Text) > detailLogLimit {
				return text.Text[:detailLogLimit]
			}
			return text.Text
		}
	}
	return ""
}
