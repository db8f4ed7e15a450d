package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Laisky/searxng-mcp/internal/scrape"
	"github.com/Laisky/searxng-mcp/library/fetch"
	"github.com/Laisky/searxng-mcp/library/search"
	"github.com/Laisky/searxng-mcp/library/search/searxng"
)

// newPageServer serves /page/<n> as a small HTML page, /missing as 404.
func newPageServer(t *testing.T) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = fmt.Fprintf(w, "<html><head><title>Page %s</title></head><body><p>about cats %s</p></body></html>",
			strings.TrimPrefix(r.URL.Path, "/page/"), r.URL.Path)
	}))
	t.Cleanup(server.Close)
	return server
}

// newSearxngStub answers every search with the given result URLs.
func newSearxngStub(t *testing.T, urls ...string) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		items := make([]string, 0, len(urls))
		for i, u := range urls {
			items = append(items, fmt.Sprintf(`{"url":%q,"title":"result %d","content":"snippet %d"}`, u, i, i))
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = fmt.Fprintf(w, `{"query":%q,"results":[%s]}`, r.URL.Query().Get("q"), strings.Join(items, ","))
	}))
	t.Cleanup(server.Close)
	return server
}

func newTestDispatcher(t *testing.T, searxngURL string) *Dispatcher {
	t.Helper()

	fetcher, err := fetch.New()
	require.NoError(t, err)

	client := searxng.New(searxngURL, searxng.WithMaxResults(5))
	orchestrator := scrape.New(fetcher, 2*time.Second, 100)

	dispatcher, err := NewDispatcher(client, orchestrator, searxngURL, 5)
	require.NoError(t, err)
	return dispatcher
}

func TestNewDispatcherRequiresDependencies(t *testing.T) {
	_, err := NewDispatcher(nil, scrape.New(nil, time.Second, 1), "", 5)
	require.Error(t, err)

	_, err = NewDispatcher(searxng.New(""), nil, "", 5)
	require.Error(t, err)
}

func TestDispatchSearchWebReturnsRequestedCount(t *testing.T) {
	pages := newPageServer(t)
	urls := make([]string, 0, 5)
	for i := range 5 {
		urls = append(urls, fmt.Sprintf("%s/page/%d", pages.URL, i))
	}
	backend := newSearxngStub(t, urls...)
	dispatcher := newTestDispatcher(t, backend.URL)

	resp, perr := dispatcher.Dispatch(context.Background(), ToolCallRequest{
		Tool:      "search_web",
		Arguments: map[string]any{"query": "cats", "max_results": float64(3)},
	})
	require.Nil(t, perr)
	require.Len(t, resp.Results, 3)
	for i, result := range resp.Results {
		require.Equal(t, urls[i], result.URL)
		require.Equal(t, fmt.Sprintf("result %d", i), result.Title)
		require.Equal(t, scrape.StatusOK, result.Status)
		require.Contains(t, result.Content, "about cats")
		require.Positive(t, result.WordCount)
	}
}

func TestDispatchSearchWebDefaultsToCap(t *testing.T) {
	pages := newPageServer(t)
	urls := make([]string, 0, 7)
	for i := range 7 {
		urls = append(urls, fmt.Sprintf("%s/page/%d", pages.URL, i))
	}
	dispatcher := newTestDispatcher(t, newSearxngStub(t, urls...).URL)

	resp, perr := dispatcher.Dispatch(context.Background(), ToolCallRequest{
		Tool:      "search_web",
		Arguments: map[string]any{"query": "cats"},
	})
	require.Nil(t, perr)
	require.Len(t, resp.Results, 5)
}

func TestDispatchSearchWebClampsOversizedMaxResults(t *testing.T) {
	pages := newPageServer(t)
	urls := make([]string, 0, 7)
	for i := range 7 {
		urls = append(urls, fmt.Sprintf("%s/page/%d", pages.URL, i))
	}
	dispatcher := newTestDispatcher(t, newSearxngStub(t, urls...).URL)

	for _, maxResults := range []any{float64(1e20), json.Number("100000000000000000000"), "1e20"} {
		resp, perr := dispatcher.Dispatch(context.Background(), ToolCallRequest{
			Tool:      "search_web",
			Arguments: map[string]any{"query": "cats", "max_results": maxResults},
		})
		require.Nil(t, perr, "max_results %v", maxResults)
		require.Len(t, resp.Results, 5)
	}
}

func TestDispatchSearchWebPartialFailure(t *testing.T) {
	pages := newPageServer(t)
	backend := newSearxngStub(t, pages.URL+"/page/0", pages.URL+"/missing", pages.URL+"/page/2")
	dispatcher := newTestDispatcher(t, backend.URL)

	resp, perr := dispatcher.Dispatch(context.Background(), ToolCallRequest{
		Tool:      "search_web",
		Arguments: map[string]any{"query": "cats"},
	})
	require.Nil(t, perr)
	require.Len(t, resp.Results, 3)
	require.Equal(t, scrape.StatusOK, resp.Results[0].Status)
	require.Equal(t, scrape.StatusError, resp.Results[1].Status)
	require.Equal(t, "http status 404", resp.Results[1].ErrorDetail)
	require.Equal(t, scrape.StatusOK, resp.Results[2].Status)
}

func TestDispatchSearchWebEmptyBackend(t *testing.T) {
	dispatcher := newTestDispatcher(t, newSearxngStub(t).URL)

	resp, perr := dispatcher.Dispatch(context.Background(), ToolCallRequest{
		Tool:      "search_web",
		Arguments: map[string]any{"query": "nothing matches"},
	})
	require.Nil(t, perr)
	require.NotNil(t, resp.Results)
	require.Empty(t, resp.Results)
}

func TestDispatchSearchWebBackendDown(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	dispatcher := newTestDispatcher(t, "http://"+addr+"/search")
	resp, perr := dispatcher.Dispatch(context.Background(), ToolCallRequest{
		Tool:      "search_web",
		Arguments: map[string]any{"query": "cats"},
	})
	require.Nil(t, resp)
	require.NotNil(t, perr)
	require.Equal(t, CodeSearchFailed, perr.Code)
	require.NotEmpty(t, perr.Message)
}

func TestDispatchInvalidArguments(t *testing.T) {
	dispatcher := newTestDispatcher(t, newSearxngStub(t).URL)

	cases := []ToolCallRequest{
		{Tool: "search_web", Arguments: map[string]any{}},
		{Tool: "search_web", Arguments: map[string]any{"query": " "}},
		{Tool: "search_web", Arguments: map[string]any{"query": "cats", "max_results": "lots"}},
		{Tool: "search_web", Arguments: map[string]any{"query": "cats", "max_results": -3}},
		{Tool: "get_website", Arguments: map[string]any{}},
		{Tool: "get_website", Arguments: map[string]any{"url": 7}},
	}
	for _, req := range cases {
		resp, perr := dispatcher.Dispatch(context.Background(), req)
		require.Nil(t, resp, "request %+v", req)
		require.NotNil(t, perr, "request %+v", req)
		require.Equal(t, CodeInvalidArguments, perr.Code)
	}
}

func TestDispatchUnknownTool(t *testing.T) {
	dispatcher := newTestDispatcher(t, newSearxngStub(t).URL)

	resp, perr := dispatcher.Dispatch(context.Background(), ToolCallRequest{Tool: "foo"})
	require.Nil(t, resp)
	require.Equal(t, CodeUnknownTool, perr.Code)
	require.Contains(t, perr.Error(), "foo")
}

func TestDispatchGetWebsite(t *testing.T) {
	pages := newPageServer(t)
	dispatcher := newTestDispatcher(t, newSearxngStub(t).URL)

	resp, perr := dispatcher.Dispatch(context.Background(), ToolCallRequest{
		Tool:      "get_website",
		Arguments: map[string]any{"url": pages.URL + "/page/9"},
	})
	require.Nil(t, perr)
	require.Len(t, resp.Results, 1)
	require.Equal(t, scrape.StatusOK, resp.Results[0].Status)
	require.Equal(t, "Page 9", resp.Results[0].Title)
}

func TestDispatchGetWebsiteUnreachable(t *testing.T) {
	dispatcher := newTestDispatcher(t, newSearxngStub(t).URL)

	resp, perr := dispatcher.Dispatch(context.Background(), ToolCallRequest{
		Tool:      "get_website",
		Arguments: map[string]any{"url": "http://unreachable.invalid/"},
	})
	require.Nil(t, perr)
	require.Len(t, resp.Results, 1)
	require.Equal(t, scrape.StatusError, resp.Results[0].Status)
	require.NotEmpty(t, resp.Results[0].ErrorDetail)
}

func TestDispatcherToolsAndHealth(t *testing.T) {
	dispatcher := newTestDispatcher(t, "http://localhost:8080/search")

	defs := dispatcher.Tools()
	require.Len(t, defs, 2)
	require.Equal(t, "search_web", defs[0].Name)
	require.Equal(t, "get_website", defs[1].Name)

	require.Equal(t, HealthStatus{Status: "ok", SearxngURL: "http://localhost:8080/search"}, dispatcher.Health())
}

type failingEngine struct{}

func (failingEngine) Name() string { return "failing" }

func (failingEngine) Search(context.Context, string, int) ([]search.SearchResultEntry, error) {
	return nil, &search.BackendError{Engine: "failing", StatusCode: http.StatusBadGateway, Err: fmt.Errorf("bad gateway")}
}

func TestSearchWebWrapsBackendError(t *testing.T) {
	dispatcher, err := NewDispatcher(failingEngine{}, scrape.New(nil, time.Second, 1), "", 5)
	require.NoError(t, err)

	_, err = dispatcher.SearchWeb(context.Background(), "cats", 1)
	require.Error(t, err)
	require.Contains(t, err.Error(), "status 502")
}
