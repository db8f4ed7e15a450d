package tools

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Laisky/searxng-mcp/internal/scrape"
	"github.com/Laisky/searxng-mcp/library/log"
)

type stubGetter struct {
	result scrape.PageResult
	gotURL string
}

func (s *stubGetter) GetWebsite(_ context.Context, rawURL string) scrape.PageResult {
	s.gotURL = rawURL
	return s.result
}

func TestGetWebsiteHandle(t *testing.T) {
	getter := &stubGetter{result: scrape.PageResult{
		URL:         "https://unreachable.example",
		Title:       scrape.DefaultTitle,
		Status:      scrape.StatusError,
		ErrorDetail: "dial tcp: connection refused",
	}}
	tool, err := NewGetWebsiteTool(getter, log.Logger.Named("test_get_website"))
	require.NoError(t, err)
	require.Equal(t, GetWebsiteName, tool.Definition().Name)

	result, err := tool.Handle(context.Background(), callRequest(map[string]any{"url": " https://unreachable.example "}))
	require.NoError(t, err)
	require.False(t, result.IsError)
	require.Equal(t, "https://unreachable.example", getter.gotURL)

	var payload Results
	require.NoError(t, json.Unmarshal([]byte(resultText(t, result)), &payload))
	require.Len(t, payload.Results, 1)
	require.Equal(t, scrape.StatusError, payload.Results[0].Status)
}

func TestGetWebsiteHandleMissingURL(t *testing.T) {
	getter := &stubGetter{}
	tool, err := NewGetWebsiteTool(getter, log.Logger.Named("test_get_website"))
	require.NoError(t, err)

	result, err := tool.Handle(context.Background(), callRequest(map[string]any{"url": false}))
	require.NoError(t, err)
	require.True(t, result.IsError)
	require.Empty(t, getter.gotURL)
}
