// Package httpclient provides the API client of the hosted search service:
// authentication headers, per-operation timeouts and failover across the
// read and write host lists.
package httpclient

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/sony/gobreaker/v2"

	"github.com/stacklok/search-mirror/pkg/searcherr"
	"github.com/stacklok/search-mirror/pkg/versions"
)

const (
	// DefaultConnectTimeout is the default time allowed to open a connection.
	DefaultConnectTimeout = 2 * time.Second
	// DefaultReadTimeout is the default time allowed for a non-search request.
	DefaultReadTimeout = 30 * time.Second
	// DefaultSearchTimeout is the default time allowed for a search request.
	DefaultSearchTimeout = 5 * time.Second
	// DefaultHostDownDelay is how long a failing host is skipped.
	DefaultHostDownDelay = 5 * time.Second

	// MaxResponseSize is the maximum allowed response size (100MB)
	MaxResponseSize = 100 * 1024 * 1024

	// maxAPIKeyLength is the longest key sent as a header; longer keys travel
	// in the body of POST requests.
	maxAPIKeyLength = 500

	libraryName = "search-mirror"
)

// LibraryVersion is one component of the User-Agent header.
type LibraryVersion struct {
	Name    string
	Version string
}

func (l LibraryVersion) String() string {
	return fmt.Sprintf("%s (%s)", l.Name, l.Version)
}

// Client talks to the search API. It is safe for concurrent use.
type Client struct {
	appID      string
	apiKey     string
	readHosts  []string
	writeHosts []string

	connectTimeout time.Duration
	readTimeout    time.Duration
	searchTimeout  time.Duration
	hostDownDelay  time.Duration
	maxTries       uint

	transport  http.RoundTripper
	httpClient *http.Client
	metrics    *Metrics

	mu        sync.RWMutex
	headers   map[string]string
	userAgent []LibraryVersion
	breakers  map[string]*gobreaker.CircuitBreaker[*rawResponse]
}

type rawResponse struct {
	status int
	body   []byte
}

// New creates a client for the given application. Without host options the
// service's default host lists for appID are used.
func New(appID, apiKey string, opts ...Option) (*Client, error) {
	if appID == "" {
		return nil, fmt.Errorf("application ID cannot be empty: %w", searcherr.ErrInvalidArgument)
	}
	if apiKey == "" {
		return nil, fmt.Errorf("API key cannot be empty: %w", searcherr.ErrInvalidArgument)
	}

	fallbacks := []string{
		appID + "-1.algolianet.com",
		appID + "-2.algolianet.com",
		appID + "-3.algolianet.com",
	}
	c := &Client{
		appID:          appID,
		apiKey:         apiKey,
		readHosts:      append([]string{appID + "-dsn.algolia.net"}, fallbacks...),
		writeHosts:     append([]string{appID + ".algolia.net"}, fallbacks...),
		connectTimeout: DefaultConnectTimeout,
		readTimeout:    DefaultReadTimeout,
		searchTimeout:  DefaultSearchTimeout,
		hostDownDelay:  DefaultHostDownDelay,
		headers:        make(map[string]string),
		userAgent:      []LibraryVersion{{Name: libraryName, Version: versions.Version}},
		breakers:       make(map[string]*gobreaker.CircuitBreaker[*rawResponse]),
	}

	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, fmt.Errorf("invalid client option: %w", err)
		}
	}

	transport := c.transport
	if transport == nil {
		base := http.DefaultTransport.(*http.Transport).Clone()
		base.DialContext = (&net.Dialer{Timeout: c.connectTimeout, KeepAlive: 30 * time.Second}).DialContext
		base.TLSHandshakeTimeout = c.connectTimeout
		base.DisableCompression = true
		transport = base
	}
	c.httpClient = &http.Client{Transport: transport}

	return c, nil
}

// AppID returns the application ID.
func (c *Client) AppID() string {
	return c.appID
}

// AddUserAgent appends a library to the User-Agent header, ignoring duplicates.
func (c *Client) AddUserAgent(lib LibraryVersion) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, existing := range c.userAgent {
		if existing == lib {
			return
		}
	}
	c.userAgent = append(c.userAgent, lib)
}

// UserAgent returns the User-Agent header value.
func (c *Client) UserAgent() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	parts := make([]string, 0, len(c.userAgent))
	for _, lib := range c.userAgent {
		parts = append(parts, lib.String())
	}
	return strings.Join(parts, "; ")
}

// SetHeader sets a header sent with every subsequent request. An empty value
// removes it.
func (c *Client) SetHeader(name, value string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if value == "" {
		delete(c.headers, http.CanonicalHeaderKey(name))
		return
	}
	c.headers[http.CanonicalHeaderKey(name)] = value
}

// Get performs a read request. search selects the search timeout instead of
// the read timeout.
func (c *Client) Get(ctx context.Context, path string, search bool) ([]byte, error) {
	timeout := c.readTimeout
	if search {
		timeout = c.searchTimeout
	}
	return c.request(ctx, http.MethodGet, path, nil, c.readHosts, timeout)
}

// Post performs a POST request with a JSON body. Read operations such as
// multi-queries go to the read hosts with the search timeout.
func (c *Client) Post(ctx context.Context, path string, body any, readOperation bool) ([]byte, error) {
	payload, err := c.encodeBody(body)
	if err != nil {
		return nil, err
	}
	if readOperation {
		return c.request(ctx, http.MethodPost, path, payload, c.readHosts, c.searchTimeout)
	}
	return c.request(ctx, http.MethodPost, path, payload, c.writeHosts, c.readTimeout)
}

func (c *Client) encodeBody(body any) ([]byte, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request body: %w", err)
	}
	if len(c.apiKey) <= maxAPIKeyLength {
		return payload, nil
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(payload, &fields); err != nil {
		return nil, fmt.Errorf("failed to patch request body with API key: %w", err)
	}
	key, _ := json.Marshal(c.apiKey)
	fields["apiKey"] = key
	return json.Marshal(fields)
}

func (c *Client) request(
	ctx context.Context, method, path string, body []byte, hosts []string, timeout time.Duration,
) ([]byte, error) {
	if c.maxTries <= 1 {
		return c.requestRound(ctx, method, path, body, hosts, timeout)
	}

	return backoff.Retry(ctx, func() ([]byte, error) {
		data, err := c.requestRound(ctx, method, path, body, hosts, timeout)
		if err != nil && !searcherr.IsTransient(err) {
			return nil, backoff.Permanent(err)
		}
		return data, err
	},
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxTries(c.maxTries),
		backoff.WithNotify(func(err error, next time.Duration) {
			slog.DebugContext(ctx, "Retrying request", "path", path, "error", err, "backoff", next)
		}),
	)
}

// requestRound tries every host that is up, in order. A 4xx answer is final;
// 5xx answers and transport failures move on to the next host.
func (c *Client) requestRound(
	ctx context.Context, method, path string, body []byte, hosts []string, timeout time.Duration,
) ([]byte, error) {
	var errs []error
	for _, host := range c.hostsThatAreUp(hosts) {
		resp, err := c.tryHost(ctx, host, method, path, body, timeout)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			c.metrics.recordRequest(host, "transport_error")
			slog.DebugContext(ctx, "Host failed", "host", host, "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", host, err))
			continue
		}

		switch resp.status / 100 {
		case 2:
			c.metrics.recordRequest(host, "success")
			return resp.body, nil
		case 4:
			c.metrics.recordRequest(host, "client_error")
			return nil, searcherr.NewServiceError(resp.status, errorMessage(resp.body))
		default:
			c.metrics.recordRequest(host, "server_error")
			errs = append(errs, fmt.Errorf("%s: %w", host,
				searcherr.NewServiceError(resp.status, errorMessage(resp.body))))
		}
	}
	return nil, searcherr.NewTransportError("All hosts failed", errors.Join(errs...))
}

func (c *Client) tryHost(
	ctx context.Context, host, method, path string, body []byte, timeout time.Duration,
) (*rawResponse, error) {
	breaker := c.breaker(host)
	call := func() (*rawResponse, error) {
		return c.do(ctx, host, method, path, body, timeout)
	}
	// Every host is down: try anyway, without waiting for the breaker.
	if breaker.State() == gobreaker.StateOpen {
		return call()
	}
	return breaker.Execute(call)
}

func (c *Client) do(
	ctx context.Context, host, method, path string, body []byte, timeout time.Duration,
) (*rawResponse, error) {
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(reqCtx, method, hostURL(host)+path, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	c.mu.RLock()
	for name, value := range c.headers {
		req.Header.Set(name, value)
	}
	c.mu.RUnlock()
	req.Header.Set("X-Algolia-Application-Id", c.appID)
	if len(c.apiKey) <= maxAPIKeyLength || body == nil {
		req.Header.Set("X-Algolia-API-Key", c.apiKey)
	}
	req.Header.Set("User-Agent", c.UserAgent())
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Accept-Encoding", "gzip")
	if body != nil {
		req.Header.Set("Content-Type", "application/json; charset=UTF-8")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.ContentLength > MaxResponseSize {
		return nil, fmt.Errorf("response size %d bytes exceeds maximum allowed size of %d bytes",
			resp.ContentLength, MaxResponseSize)
	}

	var stream io.Reader = resp.Body
	if strings.EqualFold(resp.Header.Get("Content-Encoding"), "gzip") {
		gz, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to decode gzip response: %w", err)
		}
		defer func() {
			_ = gz.Close()
		}()
		stream = gz
	}

	data, err := io.ReadAll(io.LimitReader(stream, MaxResponseSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	if int64(len(data)) > MaxResponseSize {
		return nil, fmt.Errorf("response size exceeds maximum allowed size of %d bytes", MaxResponseSize)
	}

	return &rawResponse{status: resp.StatusCode, body: data}, nil
}

func (c *Client) breaker(host string) *gobreaker.CircuitBreaker[*rawResponse] {
	c.mu.RLock()
	cb, ok := c.breakers[host]
	c.mu.RUnlock()
	if ok {
		return cb
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if cb, ok = c.breakers[host]; ok {
		return cb
	}
	cb = gobreaker.NewCircuitBreaker[*rawResponse](gobreaker.Settings{
		Name:        host,
		MaxRequests: 1,
		Timeout:     c.hostDownDelay,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 1
		},
		IsExcluded: func(err error) bool {
			return errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Debug("Host state changed", "host", name, "from", from.String(), "to", to.String())
			c.metrics.recordHostState(name, to)
		},
	})
	c.breakers[host] = cb
	return cb
}

// hostsThatAreUp filters out hosts marked down. When every host is down all
// of them are returned.
func (c *Client) hostsThatAreUp(hosts []string) []string {
	up := make([]string, 0, len(hosts))
	for _, host := range hosts {
		if c.breaker(host).State() != gobreaker.StateOpen {
			up = append(up, host)
		}
	}
	if len(up) == 0 {
		return hosts
	}
	return up
}

func hostURL(host string) string {
	if strings.HasPrefix(host, "http://") || strings.HasPrefix(host, "https://") {
		return strings.TrimSuffix(host, "/")
	}
	return "https://" + host
}

func errorMessage(body []byte) string {
	var payload struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && payload.Message != "" {
		return payload.Message
	}
	return strings.TrimSpace(string(body))
}
