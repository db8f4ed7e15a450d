// Package fetch retrieves single web pages, optionally through a SOCKS5 proxy.
package fetch

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Laisky/errors/v2"
	gmw "github.com/Laisky/gin-middlewares/v7"
	gutils "github.com/Laisky/go-utils/v6"
	logSDK "github.com/Laisky/go-utils/v6/log"
	"github.com/Laisky/zap"
	"golang.org/x/net/proxy"

	"github.com/Laisky/searxng-mcp/library/log"
)

const (
	// BrowserUserAgent is sent with every page request to avoid trivial bot blocking.
	BrowserUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/58.0.3029.110 Safari/537.3"

	defaultMaxBodyBytes = 10 << 20
	dialTimeout         = 10 * time.Second
	tlsHandshakeTimeout = 10 * time.Second
)

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithProxy routes every connection through the SOCKS5 proxy at addr (host:port).
// An empty addr disables proxying.
func WithProxy(addr string) Option {
	return func(f *Fetcher) {
		f.proxyAddr = strings.TrimSpace(addr)
	}
}

// WithLogger overrides the default logger used when no contextual logger is present.
func WithLogger(logger logSDK.Logger) Option {
	return func(f *Fetcher) {
		if logger != nil {
			f.logger = logger
		}
	}
}

// WithUserAgent overrides BrowserUserAgent.
func WithUserAgent(ua string) Option {
	return func(f *Fetcher) {
		if ua = strings.TrimSpace(ua); ua != "" {
			f.userAgent = ua
		}
	}
}

// WithMaxBodyBytes caps how much of a response body is kept; the rest is dropped.
func WithMaxBodyBytes(n int64) Option {
	return func(f *Fetcher) {
		if n > 0 {
			f.maxBodyBytes = n
		}
	}
}

// Fetcher performs single-attempt page GETs.
type Fetcher struct {
	client       *http.Client
	proxyAddr    string
	userAgent    string
	maxBodyBytes int64
	logger       logSDK.Logger
}

// New builds a Fetcher. It fails only when the proxy address is malformed.
func New(opts ...Option) (*Fetcher, error) {
	f := &Fetcher{
		userAgent:    BrowserUserAgent,
		maxBodyBytes: defaultMaxBodyBytes,
		logger:       log.Logger.Named("fetch"),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(f)
		}
	}

	dialer := &net.Dialer{
		Timeout:   dialTimeout,
		KeepAlive: 30 * time.Second,
	}
	transport := &http.Transport{
		DialContext:         dialer.DialContext,
		ForceAttemptHTTP2:   true,
		MaxIdleConns:        100,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: tlsHandshakeTimeout,
	}

	if f.proxyAddr != "" {
		if _, _, err := net.SplitHostPort(f.proxyAddr); err != nil {
			return nil, errors.Wrapf(err, "invalid proxy address %q", f.proxyAddr)
		}

		socks, err := proxy.SOCKS5("tcp", f.proxyAddr, nil, proxyForward{dialer: dialer})
		if err != nil {
			return nil, errors.Wrap(err, "new socks5 dialer")
		}
		ctxDialer, ok := socks.(proxy.ContextDialer)
		if !ok {
			return nil, errors.New("socks5 dialer does not support context")
		}
		transport.DialContext = ctxDialer.DialContext
	}

	f.client = &http.Client{Transport: transport}
	return f, nil
}

// ProxyAddress returns the proxy in use, empty when connections are direct.
func (f *Fetcher) ProxyAddress() string {
	return f.proxyAddr
}

// Fetch GETs rawURL once. The whole exchange, body included, must finish
// within timeout; a non-positive timeout relies on ctx alone.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string, timeout time.Duration) Outcome {
	target, err := parseTarget(rawURL)
	if err != nil {
		return NetworkError{Message: err.Error()}
	}

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	logger := f.logger
	if ctxLogger := gmw.GetLogger(ctx); ctxLogger != nil {
		logger = ctxLogger.Named("fetch")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		return NetworkError{Message: errors.Wrap(err, "create request").Error()}
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	logger.Debug("outgoing http request",
		zap.String("url", req.URL.String()),
		zap.Bool("proxied", f.proxyAddr != ""),
		zap.Duration("timeout", timeout),
	)

	startAt := time.Now()
	resp, err := f.client.Do(req)
	if err != nil {
		return f.failure(ctx, timeout, err)
	}
	defer gutils.CloseWithLog(resp.Body, logger)

	logger.Debug("incoming http response",
		zap.String("url", req.URL.String()),
		zap.Int("status", resp.StatusCode),
		zap.String("content_type", resp.Header.Get("Content-Type")),
		zap.Duration("cost", time.Since(startAt)),
	)

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return HTTPError{StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBodyBytes))
	if err != nil {
		return f.failure(ctx, timeout, errors.Wrap(err, "read body"))
	}

	return Success{
		Body:        body,
		ContentType: resp.Header.Get("Content-Type"),
	}
}

// failure maps a transport error onto Timeout or NetworkError.
func (f *Fetcher) failure(ctx context.Context, timeout time.Duration, err error) Outcome {
	if ctx.Err() != nil || errors.Is(err, context.DeadlineExceeded) {
		return Timeout{After: timeout}
	}

	var unreachable *proxyUnreachableError
	if errors.As(err, &unreachable) {
		return NetworkError{
			Message:      unreachable.Error(),
			ProxyFailure: true,
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return Timeout{After: timeout}
	}

	return NetworkError{Message: err.Error()}
}

func parseTarget(rawURL string) (*url.URL, error) {
	trimmed := strings.TrimSpace(rawURL)
	if trimmed == "" {
		return nil, errors.New("url is empty")
	}

	target, err := url.Parse(trimmed)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid url %q", trimmed)
	}

	switch strings.ToLower(target.Scheme) {
	case "http", "https":
	default:
		return nil, errors.Errorf("invalid url %q: scheme must be http or https", trimmed)
	}
	if target.Hostname() == "" {
		return nil, errors.Errorf("invalid url %q: missing host", trimmed)
	}

	return target, nil
}

// proxyForward dials the proxy itself and tags failures so they can be told
// apart from the proxy failing to reach the target.
type proxyForward struct {
	dialer *net.Dialer
}

func (p proxyForward) Dial(network, addr string) (net.Conn, error) {
	return p.DialContext(context.Background(), network, addr)
}

func (p proxyForward) DialContext(ctx context.Context, network, addr string) (net.Conn, error) {
	conn, err := p.dialer.DialContext(ctx, network, addr)
	if err != nil {
		return nil, &proxyUnreachableError{addr: addr, err: err}
	}
	return conn, nil
}

type proxyUnreachableError struct {
	addr string
	err  error
}

func (e *proxyUnreachableError) Error() string {
	return fmt.Sprintf("proxy %s unreachable: %v", e.addr, e.err)
}

func (e *proxyUnreachableError) Unwrap() error {
	return e.err
}
