package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/Laisky/errors/v2"
	gmw "github.com/Laisky/gin-middlewares/v7"
	logSDK "github.com/Laisky/go-utils/v6/log"
	"github.com/Laisky/zap"
	mcp "github.com/mark3labs/mcp-go/mcp"
	srv "github.com/mark3labs/mcp-go/server"

	"github.com/Laisky/searxng-mcp/internal/mcp/tools"
	"github.com/Laisky/searxng-mcp/library/log"
)

const (
	// ServerName is announced to MCP clients during initialization.
	ServerName = "searxng-mcp"
	// ServerVersion is announced to MCP clients during initialization.
	ServerVersion = "1.0.0"

	// detailLogLimit caps tool error text copied into logs.
	detailLogLimit = 256
)

// Server wraps the MCP server state for the HTTP transports.
type Server struct {
	mcpServer  *srv.MCPServer
	handler    http.Handler
	dispatcher *Dispatcher
	logger     logSDK.Logger
}

// NewServer registers every dispatcher tool on a new MCP server.
func NewServer(dispatcher *Dispatcher, logger logSDK.Logger) (*Server, error) {
	if dispatcher == nil {
		return nil, errors.New("dispatcher is required")
	}
	if logger == nil {
		logger = log.Logger
	}

	hooks := newMCPHooks(logger.Named("mcp_hooks"))

	mcpServer := srv.NewMCPServer(
		ServerName,
		ServerVersion,
		srv.WithToolCapabilities(true),
		srv.WithInstructions("Use search_web to search the web through SearXNG and read the result pages. Use get_website to read a single page."),
		srv.WithRecovery(),
		srv.WithHooks(hooks),
	)

	s := &Server{
		mcpServer:  mcpServer,
		dispatcher: dispatcher,
		logger:     logger.Named("mcp"),
	}

	for _, tool := range dispatcher.registered() {
		mcpServer.AddTool(tool.Definition(), s.withToolLogging(tool))
	}

	streamable := srv.NewStreamableHTTPServer(
		mcpServer,
		srv.WithEndpointPath("/mcp"),
	)
	s.handler = withHTTPLogging(streamable, s.logger.Named("http"))

	return s, nil
}

// Handler returns the streamable HTTP handler that should be mounted to serve MCP traffic.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Dispatcher returns the dispatcher backing the registered tools.
func (s *Server) Dispatcher() *Dispatcher {
	return s.dispatcher
}

// emptyReply is written when a single message was a notification.
var emptyReply = map[string]any{}

// HandleJSONRPC processes a single JSON-RPC message or a batch without a
// streaming session. Notifications produce no reply entry. It returns an
// error only when body is not valid JSON-RPC framing. A batch always gets a
// list, empty when it held only notifications.
func (s *Server) HandleJSONRPC(ctx context.Context, body []byte) (any, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil, errors.New("empty request body")
	}

	if trimmed[0] != '[' {
		if !json.Valid(trimmed) {
			return nil, errors.New("request body is not valid json")
		}
		reply := s.mcpServer.HandleMessage(ctx, json.RawMessage(trimmed))
		if reply == nil {
			return emptyReply, nil
		}
		return reply, nil
	}

	var batch []json.RawMessage
	if err := json.Unmarshal(trimmed, &batch); err != nil {
		return nil, errors.Wrap(err, "unmarshal json-rpc batch")
	}

	replies := make([]mcp.JSONRPCMessage, 0, len(batch))
	for _, message := range batch {
		if reply := s.mcpServer.HandleMessage(ctx, message); reply != nil {
			replies = append(replies, reply)
		}
	}
	return replies, nil
}

// JSONRPCErrorResponse is a JSON-RPC error reply that is not tied to a request id.
type JSONRPCErrorResponse struct {
	JSONRPC string           `json:"jsonrpc"`
	ID      any              `json:"id"`
	Error   JSONRPCErrorBody `json:"error"`
}

// JSONRPCErrorBody is the error member of a JSON-RPC reply.
type JSONRPCErrorBody struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// NewInternalErrorResponse renders err as a JSON-RPC internal error.
func NewInternalErrorResponse(err error) JSONRPCErrorResponse {
	return JSONRPCErrorResponse{
		JSONRPC: mcp.JSONRPC_VERSION,
		Error: JSONRPCErrorBody{
			Code:    mcp.INTERNAL_ERROR,
			Message: err.Error(),
		},
	}
}

func (s *Server) withToolLogging(tool tools.Tool) srv.ToolHandlerFunc {
	name := tool.Definition().Name
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		logger := s.logger
		if ctxLogger := gmw.GetLogger(ctx); ctxLogger != nil {
			logger = ctxLogger.Named("mcp")
		}

		start := time.Now().UTC()
		result, err := tool.Handle(ctx, req)
		fields := []zap.Field{
			zap.String("tool", name),
			zap.Duration("cost", time.Since(start)),
		}
		switch {
		case err != nil:
			logger.Error("tool invocation failed", append(fields, zap.Error(err))...)
			return result, errors.WithStack(err)
		case result != nil && result.IsError:
			logger.Warn("tool returned error result", fields...)
		default:
			logger.Debug("tool invocation succeeded", fields...)
		}
		return result, nil
	}
}
