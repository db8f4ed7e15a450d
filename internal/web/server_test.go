package web

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Laisky/searxng-mcp/internal/mcp"
	"github.com/Laisky/searxng-mcp/internal/scrape"
	"github.com/Laisky/searxng-mcp/library/fetch"
	"github.com/Laisky/searxng-mcp/library/search/searxng"
)

var (
	ginModeOnce sync.Once
)

func setupGinTestMode() {
	ginModeOnce.Do(func() {
		gin.SetMode(gin.TestMode)
	})
}

// newTestRouter wires a router against a SearXNG stub whose results point at
// pages served by the same test server.
func newTestRouter(t *testing.T, searxngURL string) *gin.Engine {
	t.Helper()
	setupGinTestMode()

	fetcher, err := fetch.New()
	require.NoError(t, err)

	client := searxng.New(searxngURL, searxng.WithMaxResults(5))
	dispatcher, err := mcp.NewDispatcher(client, scrape.New(fetcher, 2*time.Second, 50), searxngURL, 5)
	require.NoError(t, err)

	mcpServer, err := mcp.NewServer(dispatcher, nil)
	require.NoError(t, err)

	return NewRouter(mcpServer)
}

func newBackend(t *testing.T) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	mux.HandleFunc("/search", func(w http.ResponseWriter, r *http.Request) {
		items := make([]string, 0, 5)
		for i := range 5 {
			items = append(items, fmt.Sprintf(`{"url":"%s/page/%d","title":"cat page %d"}`, server.URL, i, i))
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = fmt.Fprintf(w, `{"results":[%s]}`, strings.Join(items, ","))
	})
	mux.HandleFunc("/page/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = fmt.Fprintf(w, "<html><body><h1>Cats</h1><p>%s</p></body></html>", r.URL.Path)
	})

	return server
}

func serve(router http.Handler, method, target, body string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var payload map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &payload), w.Body.String())
	return payload
}

func TestAllowCORS(t *testing.T) {
	setupGinTestMode()
	t.Parallel()

	tests := []struct {
		name           string
		method         string
		origin         string
		expectedStatus int
	}{
		{name: "no origin", method: http.MethodGet, expectedStatus: http.StatusOK},
		{name: "any origin GET", method: http.MethodGet, origin: "https://client.example", expectedStatus: http.StatusOK},
		{name: "any origin POST", method: http.MethodPost, origin: "http://localhost:1234", expectedStatus: http.StatusOK},
		{name: "preflight", method: http.MethodOptions, origin: "https://client.example", expectedStatus: http.StatusNoContent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			router := gin.New()
			router.Use(allowCORS)
			router.Any("/test", func(c *gin.Context) {
				c.String(http.StatusOK, "OK")
			})

			req := httptest.NewRequest(tt.method, "/test", nil)
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			assert.Equal(t, tt.expectedStatus, w.Code)
			assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
			assert.NotEmpty(t, w.Header().Get("Access-Control-Allow-Methods"))
		})
	}
}

func TestHealth(t *testing.T) {
	backend := newBackend(t)
	router := newTestRouter(t, backend.URL+"/search")

	w := serve(router, http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	payload := decodeBody(t, w)
	require.Equal(t, "ok", payload["status"])
	require.Equal(t, backend.URL+"/search", payload["searxng_url"])
}

func TestListTools(t *testing.T) {
	router := newTestRouter(t, newBackend(t).URL+"/search")

	w := serve(router, http.MethodGet, "/tools", "", nil)
	require.Equal(t, http.StatusOK, w.Code)

	tools := decodeBody(t, w)["tools"].([]any)
	require.Len(t, tools, 2)
	first := tools[0].(map[string]any)
	require.Equal(t, "search_web", first["name"])
	require.Contains(t, first, "inputSchema")
}

func TestCallTool(t *testing.T) {
	backend := newBackend(t)
	router := newTestRouter(t, backend.URL+"/search")

	tests := []struct {
		name         string
		body         string
		expectedCode int
		errorCode    string
		resultCount  int
	}{
		{
			name:         "search returns requested count",
			body:         `{"tool":"search_web","arguments":{"query":"cats","max_results":3}}`,
			expectedCode: http.StatusOK,
			resultCount:  3,
		},
		{
			name:         "get website",
			body:         fmt.Sprintf(`{"tool":"get_website","arguments":{"url":"%s/page/7"}}`, backend.URL),
			expectedCode: http.StatusOK,
			resultCount:  1,
		},
		{
			name:         "unknown tool",
			body:         `{"tool":"foo","arguments":{}}`,
			expectedCode: http.StatusBadRequest,
			errorCode:    "unknown_tool",
		},
		{
			name:         "missing query",
			body:         `{"tool":"search_web","arguments":{}}`,
			expectedCode: http.StatusBadRequest,
			errorCode:    "invalid_arguments",
		},
		{
			name:         "malformed envelope",
			body:         `{"tool":`,
			expectedCode: http.StatusBadRequest,
			errorCode:    "invalid_arguments",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := serve(router, http.MethodPost, "/tools/call", tt.body, nil)
			require.Equal(t, tt.expectedCode, w.Code, w.Body.String())

			payload := decodeBody(t, w)
			if tt.errorCode != "" {
				require.Equal(t, tt.errorCode, payload["error"].(map[string]any)["code"])
				return
			}

			results := payload["results"].([]any)
			require.Len(t, results, tt.resultCount)
			for _, result := range results {
				require.Equal(t, "OK", result.(map[string]any)["status"])
			}
		})
	}
}

func TestCallToolSearchFailed(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	router := newTestRouter(t, "http://"+addr+"/search")
	w := serve(router, http.MethodPost, "/tools/call", `{"tool":"search_web","arguments":{"query":"cats"}}`, nil)
	require.Equal(t, http.StatusBadGateway, w.Code)
	require.Equal(t, "search_failed", decodeBody(t, w)["error"].(map[string]any)["code"])
}

func TestRootJSONRPC(t *testing.T) {
	router := newTestRouter(t, newBackend(t).URL+"/search")

	w := serve(router, http.MethodPost, "/", `{"jsonrpc":"2.0","id":1,"method":"tools/list"}`, nil)
	require.Equal(t, http.StatusOK, w.Code)
	payload := decodeBody(t, w)
	require.EqualValues(t, 1, payload["id"])
	require.Contains(t, payload, "result")

	w = serve(router, http.MethodPost, "/", `{"jsonrpc":"2.0","method":"notifications/initialized"}`, nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.JSONEq(t, `{}`, w.Body.String())

	w = serve(router, http.MethodPost, "/", `[{"jsonrpc":"2.0","id":1,"method":"ping"},{"jsonrpc":"2.0","method":"notifications/initialized"}]`, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var batch []map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &batch))
	require.Len(t, batch, 1)

	w = serve(router, http.MethodPost, "/", `not json`, nil)
	require.Equal(t, http.StatusInternalServerError, w.Code)
	require.EqualValues(t, -32603, decodeBody(t, w)["error"].(map[string]any)["code"])
}

func TestRootServerInfo(t *testing.T) {
	router := newTestRouter(t, newBackend(t).URL+"/search")

	w := serve(router, http.MethodGet, "/", "", map[string]string{"Accept": "application/json"})
	require.Equal(t, http.StatusOK, w.Code)
	payload := decodeBody(t, w)
	require.Equal(t, "MCP HTTP", payload["protocol"])
	require.Equal(t, "POST /", payload["endpoints"].(map[string]any)["mcp"])
}

func TestSSENotSupported(t *testing.T) {
	router := newTestRouter(t, newBackend(t).URL+"/search")

	w := serve(router, http.MethodGet, "/sse", "", nil)
	require.Equal(t, http.StatusMethodNotAllowed, w.Code)
	require.Equal(t, "SSE not supported, use HTTP POST", decodeBody(t, w)["detail"])
}

func TestRootSSEFallback(t *testing.T) {
	server := httptest.NewServer(newTestRouter(t, newBackend(t).URL+"/search"))
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, server.URL+"/", nil)
	require.NoError(t, err)
	req.Header.Set("Accept", "text/event-stream")

	resp, err := server.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Contains(t, resp.Header.Get("Content-Type"), "text/event-stream")
	require.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))

	var data []string
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() && len(data) < 2 {
		if line := scanner.Text(); strings.HasPrefix(line, "data: ") {
			data = append(data, strings.TrimPrefix(line, "data: "))
		}
	}
	cancel()

	require.Len(t, data, 2)
	require.JSONEq(t, `{"jsonrpc":"2.0","method":"initialized","params":{}}`, data[0])
	require.JSONEq(t, `{"type":"ping"}`, data[1])
}

func TestStreamableMCPRoute(t *testing.T) {
	router := newTestRouter(t, newBackend(t).URL+"/search")

	w := serve(router, http.MethodPost, "/mcp", `{
		"jsonrpc":"2.0","id":1,"method":"initialize",
		"params":{"protocolVersion":"2025-03-26","capabilities":{},"clientInfo":{"name":"test","version":"0"}}
	}`, map[string]string{"Accept": "application/json, text/event-stream"})
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), mcp.ServerName)
}
