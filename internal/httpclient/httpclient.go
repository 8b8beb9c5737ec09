package httpclient

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"time"
)

type Options struct {
	PreferIPv4 bool
	Timeout    time.Duration
	// Logger receives one debug record per request when set.
	Logger *slog.Logger
}

func New(opts Options) *http.Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 180 * time.Second
	}

	dialer := &net.Dialer{
		Timeout:   15 * time.Second,
		KeepAlive: 30 * time.Second,
	}

	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			if opts.PreferIPv4 {
				return dialer.DialContext(ctx, "tcp4", addr)
			}
			return dialer.DialContext(ctx, network, addr)
		},
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   20,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   15 * time.Second,
		ResponseHeaderTimeout: 120 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}

	var rt http.RoundTripper = transport
	if opts.Logger != nil {
		rt = &loggingTransport{next: transport, logger: opts.Logger}
	}

	return &http.Client{
		Timeout:   timeout,
		Transport: rt,
	}
}

type loggingTransport struct {
	next   http.RoundTripper
	logger *slog.Logger
}

// RoundTrip logs host and path only; query strings may carry credentials.
func (t *loggingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	start := time.Now()
	resp, err := t.next.RoundTrip(req)
	attrs := []any{
		"method", req.Method,
		"host", req.URL.Host,
		"path", req.URL.Path,
		"dur_ms", time.Since(start).Milliseconds(),
	}
	if err != nil {
		t.logger.Debug("http call failed", append(attrs, "err", err)...)
		return nil, err
	}
	t.logger.Debug("http call", append(attrs, "status", resp.StatusCode)...)
	return resp, nil
}
