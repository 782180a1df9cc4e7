package http

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	neturl "net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

const (
	// DefaultTimeout is the default HTTP request timeout
	DefaultTimeout = 30 * time.Second
	// DefaultMaxRedirects is the maximum number of redirects to follow
	DefaultMaxRedirects = 10
	// DefaultMaxIdleConns is the maximum number of idle connections in the pool
	DefaultMaxIdleConns = 100
	// DefaultMaxIdleConnsPerHost is the maximum number of idle connections per host
	DefaultMaxIdleConnsPerHost = 10
	// DefaultIdleConnTimeout is how long idle connections stay in the pool
	DefaultIdleConnTimeout = 90 * time.Second
)

// TransportError reports a failure to deliver a request or read its response.
type TransportError struct {
	Op  string
	URL string
	Err error
}

func (e *TransportError) Error() string {
	if e.URL == "" {
		return fmt.Sprintf("transport %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("transport %s %s: %v", e.Op, e.URL, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// Client sends rendered wire requests.
type Client struct {
	httpClient     *http.Client
	timeout        time.Duration
	followRedirect bool
	maxRedirects   int
	validateSSL    bool
	proxyURL       string
	scheme         string
	targetHost     string
	limiter        *rate.Limiter
	defaultHeaders map[string]string
}

type ClientOption func(*Client)

func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		timeout:        DefaultTimeout,
		followRedirect: true,
		maxRedirects:   DefaultMaxRedirects,
		validateSSL:    true,
		scheme:         "http",
		defaultHeaders: make(map[string]string),
	}

	for _, opt := range opts {
		opt(c)
	}

	transport := &http.Transport{
		MaxIdleConns:        DefaultMaxIdleConns,
		MaxIdleConnsPerHost: DefaultMaxIdleConnsPerHost,
		IdleConnTimeout:     DefaultIdleConnTimeout,
	}

	if !c.validateSSL {
		transport.TLSClientConfig = &tls.Config{
			InsecureSkipVerify: true,
		}
	}

	if c.proxyURL != "" {
		proxyURL, err := neturl.Parse(c.proxyURL)
		if err == nil {
			transport.Proxy = http.ProxyURL(proxyURL)
		}
	}

	redirectPolicy := func(req *http.Request, via []*http.Request) error {
		if !c.followRedirect {
			return http.ErrUseLastResponse
		}
		if len(via) >= c.maxRedirects {
			return http.ErrUseLastResponse
		}
		return nil
	}

	c.httpClient = &http.Client{
		Transport:     transport,
		Timeout:       c.timeout,
		CheckRedirect: redirectPolicy,
	}

	return c
}

func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		c.timeout = d
	}
}

func WithFollowRedirects(follow bool) ClientOption {
	return func(c *Client) {
		c.followRedirect = follow
	}
}

func WithMaxRedirects(max int) ClientOption {
	return func(c *Client) {
		if max > 0 {
			c.maxRedirects = max
		}
	}
}

// WithDefaultHeaders sets headers added to every request unless the rendered
// request already carries them.
func WithDefaultHeaders(headers map[string]string) ClientOption {
	return func(c *Client) {
		for k, v := range headers {
			c.defaultHeaders[k] = v
		}
	}
}

// WithValidateSSL enables or disables SSL certificate validation
func WithValidateSSL(validate bool) ClientOption {
	return func(c *Client) {
		c.validateSSL = validate
	}
}

// WithProxy sets the proxy URL for all requests
func WithProxy(proxyURL string) ClientOption {
	return func(c *Client) {
		c.proxyURL = proxyURL
	}
}

// WithTarget sends every request to the scheme and host of baseURL instead of
// the Host header of the rendered request.
func WithTarget(baseURL string) ClientOption {
	return func(c *Client) {
		if baseURL == "" {
			return
		}
		u, err := neturl.Parse(baseURL)
		if err != nil || u.Host == "" {
			return
		}
		c.scheme = u.Scheme
		c.targetHost = u.Host
	}
}

// WithTLS selects https when no explicit target is configured.
func WithTLS(useTLS bool) ClientOption {
	return func(c *Client) {
		if useTLS {
			c.scheme = "https"
		}
	}
}

// WithRateLimit throttles sends to rps requests per second. Zero disables it.
func WithRateLimit(rps float64, burst int) ClientOption {
	return func(c *Client) {
		if rps <= 0 {
			return
		}
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// Send delivers raw wire bytes and waits for the complete response.
func (c *Client) Send(ctx context.Context, raw []byte) (*Response, error) {
	wire, err := ParseWire(raw)
	if err != nil {
		return nil, &TransportError{Op: "parse", Err: err}
	}

	target, err := c.resolveURL(wire)
	if err != nil {
		return nil, &TransportError{Op: "resolve", Err: err}
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, &TransportError{Op: "throttle", URL: target, Err: err}
		}
	}

	resp, err := c.do(ctx, wire, target)
	if err != nil {
		return nil, &TransportError{Op: strings.ToLower(wire.Method), URL: target, Err: err}
	}
	return resp, nil
}

func (c *Client) resolveURL(wire *Wire) (string, error) {
	if strings.HasPrefix(wire.Target, "http://") || strings.HasPrefix(wire.Target, "https://") {
		return wire.Target, ValidateURL(wire.Target)
	}

	host := c.targetHost
	if host == "" {
		host = wire.Host
	}
	if host == "" {
		return "", fmt.Errorf("no target host: set a target or a Host header")
	}

	u := c.scheme + "://" + host + wire.Target
	return u, ValidateURL(u)
}

func (c *Client) do(ctx context.Context, wire *Wire, target string) (*Response, error) {
	var body io.Reader
	if len(wire.Body) > 0 {
		body = bytes.NewReader(wire.Body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, wire.Method, target, body)
	if err != nil {
		return nil, err
	}

	for k, v := range c.defaultHeaders {
		httpReq.Header.Set(k, v)
	}
	for k, values := range wire.Header {
		httpReq.Header.Del(k)
		for _, v := range values {
			httpReq.Header.Add(k, v)
		}
	}
	if wire.Host != "" && c.targetHost == "" {
		httpReq.Host = wire.Host
	}

	start := time.Now()
	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	duration := time.Since(start)
	if err != nil {
		return nil, err
	}

	headers := make(map[string]string)
	for k := range httpResp.Header {
		headers[k] = httpResp.Header.Get(k)
	}

	return &Response{
		StatusCode: httpResp.StatusCode,
		Status:     httpResp.Status,
		Headers:    headers,
		Body:       respBody,
		Duration:   duration,
	}, nil
}

// ValidateURL checks that a URL is well-formed and uses an allowed scheme
func ValidateURL(rawURL string) error {
	u, err := neturl.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL: %v", err)
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("unsupported URL scheme: %s (only http and https are allowed)", u.Scheme)
	}

	if u.Host == "" {
		return fmt.Errorf("URL must have a host")
	}

	return nil
}
