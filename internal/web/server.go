// Package web gin server
package web

import (
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	gmw "github.com/Laisky/gin-middlewares/v7"
	gconfig "github.com/Laisky/go-config/v2"
	"github.com/Laisky/zap"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/Laisky/searxng-mcp/internal/mcp"
	"github.com/Laisky/searxng-mcp/library/log"
)

const (
	maxRequestBodyBytes = 1 << 20
	ssePingInterval     = time.Second
)

// RunServer serves every route on addr until the listener fails.
func RunServer(addr string, mcpServer *mcp.Server) {
	if !gconfig.Shared.GetBool("debug") {
		gin.SetMode(gin.ReleaseMode)
	}

	server := NewRouter(mcpServer)
	if err := gmw.EnableMetric(server); err != nil {
		log.Logger.Panic("enable metric server", zap.Error(err))
	}

	log.Logger.Info("listening on http", zap.String("addr", addr))
	log.Logger.Panic("httpServer exit", zap.Error(server.Run(addr)))
}

// NewRouter builds the gin engine with middlewares and every route registered.
func NewRouter(mcpServer *mcp.Server) *gin.Engine {
	server := gin.New()
	server.ContextWithFallback = true
	server.Use(
		gin.Recovery(),
		gmw.NewLoggerMiddleware(
			gmw.WithLoggerMwColored(),
			gmw.WithLevel(log.Logger.Level().String()),
			gmw.WithLogger(log.Logger.Named("gin")),
		),
		allowCORS,
	)

	h := &handlers{
		mcp:        mcpServer,
		dispatcher: mcpServer.Dispatcher(),
	}

	server.POST("/", h.jsonRPC)
	server.GET("/", h.root)
	server.GET("/sse", h.sseNotSupported)
	server.GET("/health", h.health)
	server.GET("/tools", h.listTools)
	server.POST("/tools/call", h.callTool)
	server.Any("/mcp", gmw.FromStd(mcpServer.Handler().ServeHTTP))

	return server
}

type handlers struct {
	mcp        *mcp.Server
	dispatcher *mcp.Dispatcher
}

// jsonRPC answers MCP messages posted to the root path.
func (h *handlers) jsonRPC(ctx *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(ctx.Request.Body, maxRequestBodyBytes))
	if err != nil {
		ctx.JSON(http.StatusInternalServerError, mcp.NewInternalErrorResponse(err))
		return
	}

	reply, err := h.mcp.HandleJSONRPC(ctx, body)
	if err != nil {
		gmw.GetLogger(ctx).Warn("reject json-rpc request", zap.Error(err))
		ctx.JSON(http.StatusInternalServerError, mcp.NewInternalErrorResponse(err))
		return
	}

	ctx.JSON(http.StatusOK, reply)
}

// serverInfo is returned by GET / for clients that do not ask for an event stream.
type serverInfo struct {
	Name      string            `json:"name"`
	Version   string            `json:"version"`
	Protocol  string            `json:"protocol"`
	Endpoints map[string]string `json:"endpoints"`
}

func (h *handlers) root(ctx *gin.Context) {
	if strings.Contains(ctx.GetHeader("Accept"), "text/event-stream") {
		h.sseFallback(ctx)
		return
	}

	ctx.JSON(http.StatusOK, serverInfo{
		Name:     "SearXNG MCP Server",
		Version:  mcp.ServerVersion,
		Protocol: "MCP HTTP",
		Endpoints: map[string]string{
			"mcp":        "POST /",
			"streamable": "POST /mcp",
			"health":     "GET /health",
			"tools":      "GET /tools",
			"call":       "POST /tools/call",
		},
	})
}

// sseFallback keeps an event stream open for clients that open GET / first.
// It announces initialization once, then pings until the client leaves.
func (h *handlers) sseFallback(ctx *gin.Context) {
	streamID := uuid.NewString()
	logger := gmw.GetLogger(ctx).With(zap.String("stream_id", streamID))

	ctx.Header("Content-Type", "text/event-stream")
	ctx.Header("Cache-Control", "no-cache")
	ctx.Header("Connection", "keep-alive")
	ctx.Status(http.StatusOK)

	if !writeEvent(ctx, streamID, `{"jsonrpc":"2.0","method":"initialized","params":{}}`) {
		return
	}
	logger.Debug("sse fallback stream opened")

	ticker := time.NewTicker(ssePingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Request.Context().Done():
			logger.Debug("sse fallback stream closed")
			return
		case <-ticker.C:
			if !writeEvent(ctx, streamID, `{"type":"ping"}`) {
				return
			}
		}
	}
}

func writeEvent(ctx *gin.Context, id, data string) bool {
	if _, err := fmt.Fprintf(ctx.Writer, "id: %s\ndata: %s\n\n", id, data); err != nil {
		return false
	}
	ctx.Writer.Flush()
	return true
}

func (h *handlers) sseNotSupported(ctx *gin.Context) {
	ctx.JSON(http.StatusMethodNotAllowed, gin.H{"detail": "SSE not supported, use HTTP POST"})
}

func (h *handlers) health(ctx *gin.Context) {
	ctx.JSON(http.StatusOK, h.dispatcher.Health())
}

func (h *handlers) listTools(ctx *gin.Context) {
	ctx.JSON(http.StatusOK, gin.H{"tools": h.dispatcher.Tools()})
}

// callTool executes a tool from the plain {tool, arguments} envelope.
func (h *handlers) callTool(ctx *gin.Context) {
	var req mcp.ToolCallRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, mcp.ErrorResponse{Error: &mcp.ProtocolError{
			Code:    mcp.CodeInvalidArguments,
			Message: "request body must be {\"tool\": string, \"arguments\": object}",
		}})
		return
	}

	resp, perr := h.dispatcher.Dispatch(ctx, req)
	if perr != nil {
		ctx.JSON(statusForError(perr.Code), mcp.ErrorResponse{Error: perr})
		return
	}

	ctx.JSON(http.StatusOK, resp)
}

func statusForError(code mcp.ErrorCode) int {
	switch code {
	case mcp.CodeSearchFailed:
		return http.StatusBadGateway
	default:
		return http.StatusBadRequest
	}
}

// allowCORS lets any origin call the bridge; preflight requests end here.
func allowCORS(ctx *gin.Context) {
	ctx.Header("Access-Control-Allow-Origin", "*")
	ctx.Header("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
	ctx.Header("Access-Control-Allow-Headers", "*")
	ctx.Header("Access-Control-Expose-Headers", "Mcp-Session-Id")
	ctx.Header("Access-Control-Max-Age", "86400")

	if ctx.Request.Method == http.MethodOptions {
		ctx.AbortWithStatus(http.StatusNoContent)
		return
	}

	ctx.Next()
}
