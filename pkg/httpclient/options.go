package httpclient

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Option configures a Client.
type Option func(*Client) error

// WithReadHosts replaces the hosts used for read operations.
func WithReadHosts(hosts ...string) Option {
	return func(c *Client) error {
		if len(hosts) == 0 {
			return fmt.Errorf("read hosts cannot be empty")
		}
		c.readHosts = append([]string(nil), hosts...)
		return nil
	}
}

// WithWriteHosts replaces the hosts used for write operations.
func WithWriteHosts(hosts ...string) Option {
	return func(c *Client) error {
		if len(hosts) == 0 {
			return fmt.Errorf("write hosts cannot be empty")
		}
		c.writeHosts = append([]string(nil), hosts...)
		return nil
	}
}

// WithConnectTimeout sets the maximum time to establish a connection.
func WithConnectTimeout(d time.Duration) Option {
	return func(c *Client) error {
		if err := checkTimeout("connect", d); err != nil {
			return err
		}
		c.connectTimeout = d
		return nil
	}
}

// WithReadTimeout sets the default request timeout.
func WithReadTimeout(d time.Duration) Option {
	return func(c *Client) error {
		if err := checkTimeout("read", d); err != nil {
			return err
		}
		c.readTimeout = d
		return nil
	}
}

// WithSearchTimeout sets the request timeout for search operations.
func WithSearchTimeout(d time.Duration) Option {
	return func(c *Client) error {
		if err := checkTimeout("search", d); err != nil {
			return err
		}
		c.searchTimeout = d
		return nil
	}
}

// WithHostDownDelay sets how long a host that failed at transport level is
// skipped before being tried again.
func WithHostDownDelay(d time.Duration) Option {
	return func(c *Client) error {
		if err := checkTimeout("host down delay", d); err != nil {
			return err
		}
		c.hostDownDelay = d
		return nil
	}
}

// WithHeader adds a header sent with every request.
func WithHeader(name, value string) Option {
	return func(c *Client) error {
		c.headers[http.CanonicalHeaderKey(name)] = value
		return nil
	}
}

// WithUserAgent appends a library to the User-Agent header.
func WithUserAgent(name, version string) Option {
	return func(c *Client) error {
		c.AddUserAgent(LibraryVersion{Name: name, Version: version})
		return nil
	}
}

// WithRetry retries a whole round of hosts with exponential backoff when it
// fails with a transient error. maxTries includes the first attempt.
func WithRetry(maxTries uint) Option {
	return func(c *Client) error {
		c.maxTries = maxTries
		return nil
	}
}

// WithTransport overrides the HTTP transport, mostly for tests.
func WithTransport(rt http.RoundTripper) Option {
	return func(c *Client) error {
		c.transport = rt
		return nil
	}
}

// WithMetricsRegisterer exposes request and host state collectors on reg.
func WithMetricsRegisterer(reg prometheus.Registerer) Option {
	return func(c *Client) error {
		metrics, err := NewMetrics(reg)
		if err != nil {
			return err
		}
		c.metrics = metrics
		return nil
	}
}

func checkTimeout(name string, d time.Duration) error {
	if d <= 0 {
		return fmt.Errorf("%s timeout must be positive, got %s", name, d)
	}
	return nil
}
