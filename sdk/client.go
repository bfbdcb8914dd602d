package sdk

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"fleetcloud.sh/internal/logging"
	"fleetcloud.sh/internal/retry"
)

const (
	// DefaultBaseURL is the hosted platform API
	DefaultBaseURL = "https://api.fleetcloud.io"
	// DefaultDashboardURL is the hosted web dashboard
	DefaultDashboardURL = "https://dashboard.fleetcloud.io"

	apiVersion      = "v6"
	maxErrorBodyLen = 64 << 10
)

// Client is the platform API client. Service clients share its transport,
// credentials and retry policy.
type Client struct {
	// Service clients
	Devices      *DeviceClient
	Applications *ApplicationClient
	Releases     *ReleaseClient
	OS           *OSClient

	httpClient   *http.Client
	baseURL      string
	dashboardURL string
	token        string
	userAgent    string
	timeout      time.Duration
	retry        retry.Config
	log          *logging.Logger
}

// Options configures the client
type Options struct {
	// Token authenticates every request (required)
	Token string

	// HTTPClient to use for requests (optional)
	// Defaults to a client with an instrumented transport
	HTTPClient *http.Client

	// Timeout for a single request attempt (optional)
	// Default: 30 seconds
	Timeout time.Duration

	// UserAgent for requests (optional)
	UserAgent string

	// DashboardURL is the web dashboard used to build device links (optional)
	DashboardURL string

	// Retry policy for idempotent reads (optional)
	Retry *retry.Config

	// Logger receives one debug entry per request (optional)
	Logger *logging.Logger
}

// NewClient creates a new platform API client
func NewClient(baseURL string, opts Options) (*Client, error) {
	if err := CheckToken(opts.Token); err != nil {
		return nil, err
	}

	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("invalid API URL %q: %w", baseURL, err)
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)}
	}

	timeout := opts.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	dashboardURL := opts.DashboardURL
	if dashboardURL == "" {
		dashboardURL = DefaultDashboardURL
	}

	retryConfig := retry.APIConfig()
	if opts.Retry != nil {
		retryConfig = *opts.Retry
	}

	log := opts.Logger
	if log == nil {
		log = logging.Nop()
	}

	c := &Client{
		httpClient:   httpClient,
		baseURL:      strings.TrimRight(baseURL, "/"),
		dashboardURL: strings.TrimRight(dashboardURL, "/"),
		token:        opts.Token,
		userAgent:    opts.UserAgent,
		timeout:      timeout,
		retry:        retryConfig,
		log:          log,
	}

	c.Devices = &DeviceClient{client: c}
	c.Applications = &ApplicationClient{client: c}
	c.Releases = &ReleaseClient{client: c}
	c.OS = &OSClient{client: c}

	return c, nil
}

// BaseURL returns the API URL the client talks to
func (c *Client) BaseURL() string {
	return c.baseURL
}

// resourcePath returns the path of an API resource, optionally addressed by id
func resourcePath(resource string, id ...int64) string {
	if len(id) > 0 {
		return fmt.Sprintf("/%s/%s(%d)", apiVersion, resource, id[0])
	}
	return "/" + apiVersion + "/" + resource
}

// list fetches a resource collection into out, which must point to a slice
func (c *Client) list(ctx context.Context, path string, query url.Values, out any) error {
	var envelope struct {
		D json.RawMessage `json:"d"`
	}
	if err := c.do(ctx, http.MethodGet, path, query, nil, &envelope); err != nil {
		return err
	}
	if len(envelope.D) == 0 {
		return fmt.Errorf("GET %s: response has no data", path)
	}
	if err := json.Unmarshal(envelope.D, out); err != nil {
		return fmt.Errorf("GET %s: decoding response: %w", path, err)
	}
	return nil
}

// do performs a request. GET requests are retried according to the client's
// retry policy; everything else is attempted once.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%s %s: encoding request: %w", method, path, err)
		}
	}

	policy := retry.NoRetry()
	if method == http.MethodGet {
		policy = c.retry
	}

	return retry.DoWithRetryable(ctx, policy, isRetryable, func(ctx context.Context) error {
		return c.attempt(ctx, method, path, query, payload, out)
	})
}

func (c *Client) attempt(ctx context.Context, method, path string, query url.Values, payload []byte, out any) error {
	ctx, cancel := withTimeout(ctx, c.timeout)
	defer cancel()

	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	var bodyReader io.Reader
	if payload != nil {
		bodyReader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, bodyReader)
	if err != nil {
		return fmt.Errorf("%s %s: creating request: %w", method, path, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.log.WithError(err).Debug("request failed")
		return err
	}
	defer resp.Body.Close()

	c.log.WithHTTPRequest(method, path, resp.StatusCode, time.Since(start)).Debug("api request")

	if resp.StatusCode >= http.StatusBadRequest {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyLen))
		return &Error{
			StatusCode: resp.StatusCode,
			Method:     method,
			Path:       path,
			Message:    strings.TrimSpace(string(data)),
		}
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("%s %s: decoding response: %w", method, path, err)
	}
	return nil
}

// isRetryable retries server-side failures, throttling and transport timeouts
func isRetryable(err error) bool {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode >= http.StatusInternalServerError ||
			apiErr.StatusCode == http.StatusTooManyRequests
	}
	return retry.DefaultRetryable(err)
}

// withTimeout adds a timeout to a context if none is set
func withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, timeout)
}

// quote renders s as an OData string literal
func quote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
