// Package searxng queries a SearXNG instance through its JSON API.
package searxng

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Laisky/errors/v2"
	gmw "github.com/Laisky/gin-middlewares/v7"
	gutils "github.com/Laisky/go-utils/v6"
	logSDK "github.com/Laisky/go-utils/v6/log"
	"github.com/Laisky/zap"
	"github.com/sony/gobreaker/v2"

	"github.com/Laisky/searxng-mcp/library/fetch"
	"github.com/Laisky/searxng-mcp/library/log"
	"github.com/Laisky/searxng-mcp/library/search"
)

const (
	defaultEndpoint    = "http://localhost:8080/search"
	defaultMaxResults  = 5
	httpRequestTimeout = 20 * time.Second
	// logBodyLimit caps the number of response bytes logged for debugging.
	logBodyLimit    = 4096
	maxBodyBytes    = 4 << 20
	searxngName     = "searxng"
	breakerInterval = 60 * time.Second
)

// Option configures the Client instance.
type Option func(*Client)

// WithHTTPClient overrides the HTTP client used to reach SearXNG.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.client = client
		}
	}
}

// WithLogger overrides the default logger used when no contextual logger is present.
func WithLogger(logger logSDK.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithEngines sets the SearXNG engines queried for every search.
func WithEngines(engines []string) Option {
	return func(c *Client) {
		cleaned := make([]string, 0, len(engines))
		for _, engine := range engines {
			if engine = strings.TrimSpace(engine); engine != "" {
				cleaned = append(cleaned, engine)
			}
		}
		c.engines = cleaned
	}
}

// WithMaxResults sets the cap applied to every search; requests above it are clamped.
func WithMaxResults(limit int) Option {
	return func(c *Client) {
		if limit > 0 {
			c.maxResults = limit
		}
	}
}

// WithCircuitBreaker fails searches fast after maxFailures consecutive backend
// failures, for openTimeout. A zero maxFailures leaves the breaker off.
func WithCircuitBreaker(maxFailures uint32, openTimeout time.Duration) Option {
	return func(c *Client) {
		c.breakerFailures = maxFailures
		c.breakerTimeout = openTimeout
	}
}

// Client queries SearXNG and converts its results into ranked entries.
type Client struct {
	endpoint   string
	client     *http.Client
	engines    []string
	maxResults int
	logger     logSDK.Logger

	breakerFailures uint32
	breakerTimeout  time.Duration
	breaker         *gobreaker.CircuitBreaker[[]search.SearchResultEntry]
}

// New constructs a SearXNG client for the search endpoint, for example
// http://localhost:8080/search. An empty endpoint selects that default.
func New(endpoint string, opts ...Option) *Client {
	c := &Client{
		endpoint:   strings.TrimSpace(endpoint),
		client:     &http.Client{Timeout: httpRequestTimeout},
		maxResults: defaultMaxResults,
		logger:     log.Logger.Named("searxng"),
	}
	if c.endpoint == "" {
		c.endpoint = defaultEndpoint
	}

	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}

	if c.breakerFailures > 0 {
		c.breaker = c.newBreaker()
	}

	return c
}

// Name returns the identifier used in logs and errors.
func (c *Client) Name() string {
	return searxngName
}

// Endpoint returns the configured search endpoint.
func (c *Client) Endpoint() string {
	return c.endpoint
}

// ClampMaxResults maps a requested result count onto [1, cap]; non-positive requests get the cap.
func (c *Client) ClampMaxResults(requested int) int {
	if requested <= 0 || requested > c.maxResults {
		return c.maxResults
	}
	return requested
}

// Search runs query against SearXNG and returns at most maxResults entries in
// backend order. Entries without a usable URL are skipped.
func (c *Client) Search(ctx context.Context, query string, maxResults int) ([]search.SearchResultEntry, error) {
	trimmedQuery := strings.TrimSpace(query)
	if trimmedQuery == "" {
		return nil, errors.New("search query cannot be empty")
	}
	limit := c.ClampMaxResults(maxResults)

	if c.breaker == nil {
		return c.search(ctx, trimmedQuery, limit)
	}

	entries, err := c.breaker.Execute(func() ([]search.SearchResultEntry, error) {
		return c.search(ctx, trimmedQuery, limit)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, &search.BackendError{Engine: searxngName, Err: errors.Wrap(err, "circuit breaker rejected request")}
	}
	return entries, err
}

func (c *Client) search(ctx context.Context, query string, limit int) ([]search.SearchResultEntry, error) {
	endpoint, err := url.Parse(c.endpoint)
	if err != nil {
		return nil, c.backendError(0, errors.Wrapf(err, "invalid searxng endpoint %q", c.endpoint))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return nil, c.backendError(0, errors.Wrap(err, "create searxng request"))
	}

	params := req.URL.Query()
	params.Set("q", query)
	params.Set("format", "json")
	if len(c.engines) != 0 {
		params.Set("engines", strings.Join(c.engines, ","))
	}
	req.URL.RawQuery = params.Encode()
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", fetch.BrowserUserAgent)

	logger := c.logger
	if ctxLogger := gmw.GetLogger(ctx); ctxLogger != nil {
		logger = ctxLogger.Named("searxng")
	}

	logger.Debug("outgoing http request",
		zap.String("method", req.Method),
		zap.String("url", req.URL.String()),
		zap.String("query", query),
	)

	startAt := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, c.backendError(0, errors.Wrap(err, "send searxng request"))
	}
	defer gutils.CloseWithLog(resp.Body, logger)

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, c.backendError(0, errors.Wrap(err, "read searxng response body"))
	}

	truncatedBody, truncated := truncateForLog(body, logBodyLimit)
	logger.Debug("incoming http response",
		zap.Int("status", resp.StatusCode),
		zap.String("body", truncatedBody),
		zap.Bool("body_truncated", truncated),
		zap.Duration("cost", time.Since(startAt)),
		zap.String("query", query),
	)

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, c.backendError(resp.StatusCode, errors.Errorf("unexpected response: %s", truncatedBody))
	}

	entries, err := parseResults(body, limit)
	if err != nil {
		return nil, c.backendError(0, err)
	}

	logger.Info("searxng search completed",
		zap.String("query", query),
		zap.Int("results", len(entries)),
	)
	return entries, nil
}

func (c *Client) backendError(status int, err error) *search.BackendError {
	return &search.BackendError{
		Engine:     searxngName,
		StatusCode: status,
		Err:        err,
	}
}

func (c *Client) newBreaker() *gobreaker.CircuitBreaker[[]search.SearchResultEntry] {
	maxFailures := c.breakerFailures
	logger := c.logger
	return gobreaker.NewCircuitBreaker[[]search.SearchResultEntry](gobreaker.Settings{
		Name:        searxngName,
		MaxRequests: 1,
		Interval:    breakerInterval,
		Timeout:     c.breakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state change",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})
}

type searxngResult struct {
	URL     json.RawMessage `json:"url"`
	Title   json.RawMessage `json:"title"`
	Content json.RawMessage `json:"content"`
}

// parseResults reads the top-level object and its results list. A missing
// results key is an empty search; a null or non-list value is malformed.
// Entries stay raw so one malformed entry cannot fail the whole list.
func parseResults(body []byte, limit int) ([]search.SearchResultEntry, error) {
	var payload map[string]json.RawMessage
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, errors.Wrap(err, "unmarshal searxng response")
	}
	if payload == nil {
		return nil, errors.New("searxng response is not a json object")
	}

	var results []json.RawMessage
	if rawResults, ok := payload["results"]; ok {
		if bytes.Equal(bytes.TrimSpace(rawResults), []byte("null")) {
			return nil, errors.New("searxng response has null results")
		}
		if err := json.Unmarshal(rawResults, &results); err != nil {
			return nil, errors.Wrap(err, "unmarshal searxng results")
		}
	}

	entries := make([]search.SearchResultEntry, 0, min(limit, len(results)))
	for _, raw := range results {
		if len(entries) >= limit {
			break
		}

		var result searxngResult
		if err := json.Unmarshal(raw, &result); err != nil {
			continue
		}

		link, ok := optionalString(result.URL)
		if !ok || !usableURL(link) {
			continue
		}
		title, _ := optionalString(result.Title)
		snippet, _ := optionalString(result.Content)

		entries = append(entries, search.SearchResultEntry{
			Rank:    len(entries),
			URL:     strings.TrimSpace(link),
			Title:   strings.TrimSpace(title),
			Snippet: strings.TrimSpace(snippet),
		})
	}

	return entries, nil
}

// optionalString decodes raw as a JSON string; absent or mistyped values report false.
func optionalString(raw json.RawMessage) (string, bool) {
	if len(raw) == 0 {
		return "", false
	}
	var value string
	if err := json.Unmarshal(raw, &value); err != nil {
		return "", false
	}
	return value, true
}

func usableURL(raw string) bool {
	parsed, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return false
	}
	scheme := strings.ToLower(parsed.Scheme)
	return (scheme == "http" || scheme == "https") && parsed.Hostname() != ""
}

// truncateForLog limits the payload logged for debugging and reports whether truncation occurred.
func truncateForLog(body []byte, limit int) (string, bool) {
	if len(body) <= limit {
		return string(body), false
	}
	return string(body[:limit]), true
}
