package cmd

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// TestValidateStartupConfigWithGetterEmpty verifies empty configuration passes validation.
func TestValidateStartupConfigWithGetterEmpty(t *testing.T) {
	err := validateStartupConfigWithGetter(newMapConfigGetter(map[string]any{}))
	require.NoError(t, err)
}

func TestValidateStartupConfigWithGetterNil(t *testing.T) {
	require.Error(t, validateStartupConfigWithGetter(nil))
}

// TestValidateStartupConfigWithGetterValidConfig verifies valid explicit configuration passes validation.
func TestValidateStartupConfigWithGetterValidConfig(t *testing.T) {
	cfg := map[string]any{
		"settings": map[string]any{
			"searxng": map[string]any{
				"base_url": "http://localhost:8080/search",
				"engines":  []any{"duckduckgo", "bing"},
				"breaker": map[string]any{
					"max_failures": 0,
					"open_seconds": 12.5,
				},
			},
			"search": map[string]any{
				"max_results":     10,
				"word_limit":      "2000",
				"timeout_seconds": 7,
			},
			"server": map[string]any{"port": 8765},
			"proxy": map[string]any{
				"enabled": "yes",
				"address": "127.0.0.1:9050",
			},
		},
	}

	require.NoError(t, validateStartupConfigWithGetter(newMapConfigGetter(cfg)))
}

func TestValidateStartupConfigWithGetterInvalidValues(t *testing.T) {
	tests := []struct {
		name    string
		section string
		values  map[string]any
		wantKey string
	}{
		{name: "base url scheme", section: "searxng", values: map[string]any{"base_url": "ftp://localhost/search"}, wantKey: "settings.searxng.base_url"},
		{name: "relative base url", section: "searxng", values: map[string]any{"base_url": "/search"}, wantKey: "settings.searxng.base_url"},
		{name: "empty engines", section: "searxng", values: map[string]any{"engines": " , "}, wantKey: "settings.searxng.engines"},
		{name: "engines of numbers", section: "searxng", values: map[string]any{"engines": []any{1, 2}}, wantKey: "settings.searxng.engines"},
		{name: "max results zero", section: "search", values: map[string]any{"max_results": 0}, wantKey: "settings.search.max_results"},
		{name: "word limit text", section: "search", values: map[string]any{"word_limit": "lots"}, wantKey: "settings.search.word_limit"},
		{name: "negative timeout", section: "search", values: map[string]any{"timeout_seconds": -1}, wantKey: "settings.search.timeout_seconds"},
		{name: "port range", section: "server", values: map[string]any{"port": 70000}, wantKey: "settings.server.port"},
		{name: "proxy toggle", section: "proxy", values: map[string]any{"enabled": "sometimes"}, wantKey: "settings.proxy.enabled"},
		{name: "proxy without port", section: "proxy", values: map[string]any{"address": "127.0.0.1"}, wantKey: "settings.proxy.address"},
		{name: "proxy bad port", section: "proxy", values: map[string]any{"address": "127.0.0.1:0"}, wantKey: "settings.proxy.address"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := map[string]any{
				"settings": map[string]any{tt.section: tt.values},
			}

			err := validateStartupConfigWithGetter(newMapConfigGetter(cfg))
			require.Error(t, err)
			require.Contains(t, err.Error(), tt.wantKey)
		})
	}
}

// TestValidateStartupConfigWithGetterCollectsAll verifies every invalid key is reported at once.
func TestValidateStartupConfigWithGetterCollectsAll(t *testing.T) {
	cfg := map[string]any{
		"settings": map[string]any{
			"search": map[string]any{"max_results": -1},
			"server": map[string]any{"port": "http"},
		},
	}

	err := validateStartupConfigWithGetter(newMapConfigGetter(cfg))
	require.Error(t, err)
	require.True(t, strings.HasPrefix(err.Error(), "invalid configuration:"))
	require.Contains(t, err.Error(), "settings.search.max_results")
	require.Contains(t, err.Error(), "settings.server.port")
}

// newMapConfigGetter builds a config getter backed by nested maps.
func newMapConfigGetter(root map[string]any) configGetter {
	return func(key string) any {
		if key == "" {
			return nil
		}

		parts := strings.Split(key, ".")
		var current any = root
		for _, part := range parts {
			nextMap, ok := current.(map[string]any)
			if !ok {
				return nil
			}

			next, exists := nextMap[part]
			if !exists {
				return nil
			}
			current = next
		}

		return current
	}
}
