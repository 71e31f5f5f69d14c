// Package httpclient is the single request/response primitive of §4.6: one
// Fetch function with timeouts, retry-free single-attempt semantics (the
// pipeline owns retry policy), header injection, and a per-host idle
// connection pool. Grounded on pkg/gohttp's Options-driven Request, but
// collapsed to Fetch plus Exists, the HEAD probe used by the generic
// dezoomer.
package httpclient

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"
)

// Options configures the client's transport-level behaviour (§6).
type Options struct {
	ConnectTimeout     time.Duration
	Timeout            time.Duration
	MaxIdlePerHost     int
	AcceptInvalidCerts bool
	UserAgent          string
}

// Client wraps an *http.Client configured per Options; safe for concurrent
// use, matching §5's "HTTP client's connection pool is shared and
// thread-safe" requirement.
type Client struct {
	http      *http.Client
	userAgent string
}

func New(opts Options) *Client {
	dialer := &net.Dialer{Timeout: opts.ConnectTimeout}
	transport := &http.Transport{
		DialContext:         dialer.DialContext,
		MaxIdleConnsPerHost: opts.MaxIdlePerHost,
		TLSClientConfig:     &tls.Config{InsecureSkipVerify: opts.AcceptInvalidCerts},
		Proxy:               http.ProxyFromEnvironment, // honours HTTP_PROXY/HTTPS_PROXY/NO_PROXY
	}
	return &Client{
		http:      &http.Client{Transport: transport, Timeout: opts.Timeout},
		userAgent: opts.UserAgent,
	}
}

// Fetch issues one GET with merged headers and returns the whole response
// body. It performs no retries; §4.4's retry/backoff loop lives in the
// download pipeline, one layer up, so the pipeline can log/count attempts.
func (c *Client) Fetch(ctx context.Context, url string, headers map[string]string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, classifyTransportError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &httpStatusError{status: resp.StatusCode}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return body, nil
}

// Exists issues a HEAD request and reports whether it returned a 2xx
// status. A transport error is treated the same as a missing resource: a
// generic tile URL that refuses to connect is just as absent as one
// answering 404.
func (c *Client) Exists(ctx context.Context, url string, headers map[string]string) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return false, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return false, nil
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	return resp.StatusCode >= 200 && resp.StatusCode < 300, nil
}
