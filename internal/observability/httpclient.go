package observability

import (
	"context"
	"net/http"
	"time"
)

// loggingTransport wraps an http.RoundTripper and logs outbound requests at
// debug level with redacted headers, avoiding a dependency on an external
// tracing collector for request/response visibility.
type loggingTransport struct {
	base http.RoundTripper
}

func (t loggingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	start := time.Now()
	logger := LoggerWithTrace(req.Context())
	resp, err := t.base.RoundTrip(req)
	dur := time.Since(start)
	if err != nil {
		logger.Debug().Str("method", req.Method).Str("url", req.URL.String()).Dur("duration", dur).Err(err).Msg("outbound request failed")
		return resp, err
	}
	logger.Debug().Str("method", req.Method).Str("url", req.URL.String()).Int("status", resp.StatusCode).Dur("duration", dur).Msg("outbound request")
	return resp, nil
}

// NewHTTPClient returns an http.Client whose transport logs every outbound
// call via the context-scoped logger. The provider and backend clients in
// this module build their own http.Client and do not call it.
func NewHTTPClient(base *http.Client) *http.Client {
	if base == nil {
		base = &http.Client{Timeout: 30 * time.Second}
	}
	rt := base.Transport
	if rt == nil {
		rt = http.DefaultTransport
	}
	base.Transport = loggingTransport{base: rt}
	return base
}

// WithTimeout returns a context bound to d. The embedding, vector search
// and provider completion call sites do not call it.
func WithTimeout(parent context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, d)
}
