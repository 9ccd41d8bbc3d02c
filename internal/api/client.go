package api

import (
	"log/slog"
	"net/http"
	"time"
)

// Client is a small JSON-over-HTTP client shared by the venue, reference and
// notifier integrations.
type Client struct {
	name       string
	baseURL    string
	apiKey     string
	keyHeader  string
	userAgent  string
	httpClient *http.Client
	logger     *slog.Logger

	maxRetries   int
	retryBackoff time.Duration
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// NewClient creates a new REST API client. The name labels errors and logs.
func NewClient(name, baseURL, apiKey string, opts ...ClientOption) *Client {
	c := &Client{
		name:    name,
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger:       slog.Default(),
		maxRetries:   3,
		retryBackoff: time.Second,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Name returns the client label.
func (c *Client) Name() string { return c.name }

// BaseURL returns the configured base URL.
func (c *Client) BaseURL() string { return c.baseURL }

// WithTimeout sets the HTTP client timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		c.httpClient.Timeout = d
	}
}

// WithRetries sets the retry configuration. max = 0 disables retries.
func WithRetries(max int, backoff time.Duration) ClientOption {
	return func(c *Client) {
		c.maxRetries = max
		c.retryBackoff = backoff
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithAPIKeyHeader sends the API key verbatim in the named header instead of
// as a bearer token.
func WithAPIKeyHeader(header string) ClientOption {
	return func(c *Client) {
		c.keyHeader = header
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) ClientOption {
	return func(c *Client) {
		c.userAgent = ua
	}
}
