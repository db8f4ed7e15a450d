package mcp

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/Laisky/errors/v2"
	logSDK "github.com/Laisky/go-utils/v6/log"
	"github.com/Laisky/zap"
	srv "github.com/mark3labs/mcp-go/server"
)

// withHTTPLogging logs each streamable HTTP exchange with the JSON-RPC methods
// it carried, the response status and the number of bytes sent back.
func withHTTPLogging(next http.Handler, logger logSDK.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		startAt := time.Now()
		methods, err := peekRPCMethods(r)
		if err != nil {
			logger.Warn("read mcp request body", zap.Error(err))
		}

		rec := &statusRecorder{ResponseWriter: w}
		next.ServeHTTP(rec, r)

		logger.Debug("mcp http exchange",
			zap.String("http_method", r.Method),
			zap.Strings("rpc_methods", methods),
			zap.String("session_id", r.Header.Get(srv.HeaderKeySessionID)),
			zap.Int("status", rec.Status()),
			zap.Int("response_bytes", rec.written),
			zap.Bool("streamed", strings.HasPrefix(rec.Header().Get("Content-Type"), "text/event-stream")),
			zap.Duration("cost", time.Since(startAt)),
		)
	})
}

// peekRPCMethods returns the JSON-RPC method names in the body of r and puts
// the body back for the next handler. Bodies that are not JSON-RPC yield none.
func peekRPCMethods(r *http.Request) ([]string, error) {
	if r.Body == nil || r.Body == http.NoBody {
		return nil, nil
	}

	data, readErr := io.ReadAll(r.Body)
	closeErr := r.Body.Close()
	r.Body = io.NopCloser(bytes.NewReader(data))
	if readErr != nil {
		return nil, errors.Wrap(readErr, "read body")
	}
	if closeErr != nil {
		return nil, errors.Wrap(closeErr, "close body")
	}

	return rpcMethods(data), nil
}

type rpcEnvelope struct {
	Method string `json:"method"`
}

func rpcMethods(data []byte) []string {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil
	}

	var envelopes []rpcEnvelope
	if trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, &envelopes); err != nil {
			return nil
		}
	} else {
		var single rpcEnvelope
		if err := json.Unmarshal(trimmed, &single); err != nil {
			return nil
		}
		envelopes = []rpcEnvelope{single}
	}

	methods := make([]string, 0, len(envelopes))
	for _, envelope := range envelopes {
		if envelope.Method != "" {
			methods = append(methods, envelope.Method)
		}
	}
	return methods
}

// statusRecorder remembers the status code and counts body bytes.
type statusRecorder struct {
	http.ResponseWriter
	status  int
	written int
}

func (r *statusRecorder) WriteHeader(code int) {
	if r.status == 0 {
		r.status = code
	}
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	n, err := r.ResponseWriter.Write(b)
	r.written += n
	return n, err
}

// Status returns the response status, 200 when the handler never set one.
func (r *statusRecorder) Status() int {
	if r.status == 0 {
		return http.StatusOK
	}
	return r.status
}

// Flush lets server-sent event streams pass through the recorder.
func (r *statusRecorder) Flush() {
	if flusher, ok := r.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}
