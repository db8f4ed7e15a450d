// Package config loads the service configuration and resolves it into an immutable Settings value.
package config

import (
	"strings"
	"time"

	gconfig "github.com/Laisky/go-config/v2"
	"github.com/spf13/cast"
)

const (
	DefaultBaseURL            = "http://localhost:8080/search"
	DefaultMaxResults         = 5
	DefaultWordLimit          = 5000
	DefaultTimeout            = 20 * time.Second
	DefaultPort               = 8765
	DefaultProxyAddress       = "127.0.0.1:9050"
	DefaultBreakerMaxFailures = 5
	DefaultBreakerOpenTimeout = 30 * time.Second
)

// DefaultEngines lists the SearXNG engines queried when none are configured.
var DefaultEngines = []string{"duckduckgo", "google", "bing", "brave"}

// Configuration keys.
const (
	KeyBaseURL            = "settings.searxng.base_url"
	KeyEngines            = "settings.searxng.engines"
	KeyBreakerMaxFailures = "settings.searxng.breaker.max_failures"
	KeyBreakerOpenSeconds = "settings.searxng.breaker.open_seconds"
	KeyMaxResults         = "settings.search.max_results"
	KeyWordLimit          = "settings.search.word_limit"
	KeyTimeoutSeconds     = "settings.search.timeout_seconds"
	KeyPort               = "settings.server.port"
	KeyProxyEnabled       = "settings.proxy.enabled"
	KeyProxyAddress       = "settings.proxy.address"
)

// Getter retrieves a raw configuration value by dotted key path, nil when unset.
type Getter func(key string) any

// Settings is the resolved configuration handed to every component at construction.
// It is passed by value and never mutated after Load returns.
type Settings struct {
	BaseURL    string
	Engines    []string
	MaxResults int
	WordLimit  int
	Timeout    time.Duration
	Port       int

	UseProxy     bool
	ProxyAddress string

	// BreakerMaxFailures is the number of consecutive backend failures that opens
	// the circuit, zero disables the breaker.
	BreakerMaxFailures uint32
	BreakerOpenTimeout time.Duration
}

// Default returns the built-in settings.
func Default() Settings {
	return Settings{
		BaseURL:            DefaultBaseURL,
		Engines:            append([]string(nil), DefaultEngines...),
		MaxResults:         DefaultMaxResults,
		WordLimit:          DefaultWordLimit,
		Timeout:            DefaultTimeout,
		Port:               DefaultPort,
		ProxyAddress:       DefaultProxyAddress,
		BreakerMaxFailures: DefaultBreakerMaxFailures,
		BreakerOpenTimeout: DefaultBreakerOpenTimeout,
	}
}

// Load resolves settings from the shared configuration.
func Load() Settings {
	return LoadWithGetter(func(key string) any {
		return gconfig.S.Get(key)
	})
}

// LoadWithGetter resolves settings through get, falling back to defaults for
// unset or unusable values. Strict validation happens at startup, not here.
func LoadWithGetter(get Getter) Settings {
	s := Default()
	if get == nil {
		return s
	}

	if v, ok := stringValue(get(KeyBaseURL)); ok {
		s.BaseURL = v
	}
	if engines := engineList(get(KeyEngines)); len(engines) != 0 {
		s.Engines = engines
	}
	if v, ok := positiveInt(get(KeyMaxResults)); ok {
		s.MaxResults = v
	}
	if v, ok := positiveInt(get(KeyWordLimit)); ok {
		s.WordLimit = v
	}
	if raw := get(KeyTimeoutSeconds); raw != nil {
		if secs, err := cast.ToFloat64E(raw); err == nil && secs > 0 {
			s.Timeout = time.Duration(secs * float64(time.Second))
		}
	}
	if v, ok := positiveInt(get(KeyPort)); ok {
		s.Port = v
	}
	if raw := get(KeyProxyEnabled); raw != nil {
		if v, err := cast.ToBoolE(raw); err == nil {
			s.UseProxy = v
		}
	}
	if v, ok := stringValue(get(KeyProxyAddress)); ok {
		s.ProxyAddress = v
	}
	if raw := get(KeyBreakerMaxFailures); raw != nil {
		if v, err := cast.ToUint32E(raw); err == nil {
			s.BreakerMaxFailures = v
		}
	}
	if raw := get(KeyBreakerOpenSeconds); raw != nil {
		if secs, err := cast.ToFloat64E(raw); err == nil && secs > 0 {
			s.BreakerOpenTimeout = time.Duration(secs * float64(time.Second))
		}
	}

	return s
}

func stringValue(raw any) (string, bool) {
	if raw == nil {
		return "", false
	}
	v, err := cast.ToStringE(raw)
	if err != nil {
		return "", false
	}
	v = strings.TrimSpace(v)
	return v, v != ""
}

func positiveInt(raw any) (int, bool) {
	if raw == nil {
		return 0, false
	}
	v, err := cast.ToIntE(raw)
	if err != nil || v <= 0 {
		return 0, false
	}
	return v, true
}

// engineList accepts either a comma separated string or a YAML list.
func engineList(raw any) []string {
	var items []string
	switch v := raw.(type) {
	case nil:
		return nil
	case string:
		items = strings.Split(v, ",")
	default:
		var err error
		if items, err = cast.ToStringSliceE(v); err != nil {
			return nil
		}
	}

	engines := make([]string, 0, len(items))
	for _, item := range items {
		if item = strings.TrimSpace(item); item != "" {
			engines = append(engines, item)
		}
	}
	return engines
}
