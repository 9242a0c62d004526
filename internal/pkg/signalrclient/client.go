// Package signalrclient provides an Azure Resource Manager client for the
// upstream configuration of SignalR services. It implements upstream.Service
// and is used by the upstream CLI commands.
package signalrclient

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"golang.org/x/oauth2"

	"github.com/endorses/upstreamctl/internal/pkg/logger"
	"github.com/endorses/upstreamctl/internal/pkg/options"
	"github.com/endorses/upstreamctl/internal/pkg/upstream"
)

// Defaults for ClientConfig
const (
	DefaultEndpoint     = "https://management.azure.com"
	DefaultAPIVersion   = "2024-03-01"
	DefaultPollInterval = 2 * time.Second
)

const (
	headerClientRequestID = "x-ms-client-request-id"
	headerRequestID       = "x-ms-request-id"
	headerAsyncOperation  = "Azure-AsyncOperation"
	headerRetryAfter      = "Retry-After"
)

// ErrNoCredential is returned when the credential auth method is used
// without a token source
var ErrNoCredential = errors.New("no credential configured (set azure.access_token or AZURE_ACCESS_TOKEN, or use --auth-method none)")

// TokenSourceFunc returns the token source for a tenant ("" = default tenant)
type TokenSourceFunc func(tenant string) (oauth2.TokenSource, error)

// ClientConfig holds configuration for the SignalR client
type ClientConfig struct {
	// Endpoint of the management API (default: https://management.azure.com)
	Endpoint string

	// APIVersion of Microsoft.SignalRService (default: 2024-03-01)
	APIVersion string

	// TokenSource supplies bearer tokens for AuthMethodCredential
	TokenSource TokenSourceFunc

	// DefaultRetry is used when a call carries no retry policy
	DefaultRetry *options.RetryPolicy

	// PollInterval between async operation polls without Retry-After (default: 2s)
	PollInterval time.Duration

	// Transport is the base round tripper (default: http.DefaultTransport)
	Transport http.RoundTripper
}

// CallOptions are the per-call authentication and retry settings
type CallOptions struct {
	Tenant      string
	AuthMethod  options.AuthMethod
	RetryPolicy *options.RetryPolicy
}

// Client manages upstream configuration through the management API
type Client struct {
	endpoint     string
	apiVersion   string
	tokenSource  TokenSourceFunc
	retry        options.RetryPolicy
	pollInterval time.Duration
	transport    http.RoundTripper
	log          *slog.Logger
}

var _ upstream.Service = (*Client)(nil)

// New creates a new SignalR client
func New(config ClientConfig) (*Client, error) {
	endpoint := strings.TrimRight(config.Endpoint, "/")
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	if !strings.HasPrefix(endpoint, "https://") && !strings.HasPrefix(endpoint, "http://") {
		return nil, fmt.Errorf("invalid endpoint %q: must start with https:// or http://", config.Endpoint)
	}

	apiVersion := config.APIVersion
	if apiVersion == "" {
		apiVersion = DefaultAPIVersion
	}

	retry := options.DefaultRetryPolicy()
	if config.DefaultRetry != nil {
		if err := config.DefaultRetry.Validate(); err != nil {
			return nil, fmt.Errorf("invalid default retry policy: %w", err)
		}
		retry = *config.DefaultRetry
	}

	pollInterval := config.PollInterval
	if pollInterval <= 0 {
		pollInterval = DefaultPollInterval
	}

	transport := config.Transport
	if transport == nil {
		transport = http.DefaultTransport
	}

	return &Client{
		endpoint:     endpoint,
		apiVersion:   apiVersion,
		tokenSource:  config.TokenSource,
		retry:        retry,
		pollInterval: pollInterval,
		transport:    transport,
		log:          logger.With("component", "signalrclient"),
	}, nil
}

// Endpoint returns the management API endpoint
func (c *Client) Endpoint() string {
	return c.endpoint
}

// httpClient builds a retrying HTTP client for one call
func (c *Client) httpClient(opts CallOptions) (*retryablehttp.Client, error) {
	policy := c.retry
	if opts.RetryPolicy != nil {
		policy = *opts.RetryPolicy
	}

	transport := c.transport
	switch opts.AuthMethod {
	case options.AuthMethodNone:
	case "", options.AuthMethodCredential:
		if c.tokenSource == nil {
			return nil, ErrNoCredential
		}
		ts, err := c.tokenSource(opts.Tenant)
		if err != nil {
			return nil, fmt.Errorf("failed to get credential for tenant %q: %w", opts.Tenant, err)
		}
		transport = &oauth2.Transport{
			Source: oauth2.ReuseTokenSource(nil, ts),
			Base:   transport,
		}
	default:
		return nil, fmt.Errorf("unsupported auth method %q", opts.AuthMethod)
	}

	rc := retryablehttp.NewClient()
	rc.HTTPClient = &http.Client{
		Transport: transport,
		Timeout:   policy.NetworkTimeout,
	}
	rc.RetryMax = policy.MaxRetries
	rc.RetryWaitMin = policy.Delay
	rc.RetryWaitMax = policy.MaxDelay
	if rc.RetryWaitMax < rc.RetryWaitMin {
		rc.RetryWaitMax = rc.RetryWaitMin
	}
	rc.Backoff = backoff(policy.Mode)
	rc.ErrorHandler = retryablehttp.PassthroughErrorHandler
	rc.Logger = c.log
	rc.ResponseLogHook = func(_ retryablehttp.Logger, resp *http.Response) {
		c.log.Debug("Received response",
			"method", resp.Request.Method,
			"url", resp.Request.URL.String(),
			"status", resp.StatusCode,
			"request_id", resp.Request.Header.Get(headerClientRequestID))
	}
	return rc, nil
}

// backoff returns the wait strategy for mode. Both honor Retry-After on
// 429 and 503 responses.
func backoff(mode options.RetryMode) retryablehttp.Backoff {
	if mode == options.RetryModeFixed {
		return func(waitMin, _ time.Duration, attemptNum int, resp *http.Response) time.Duration {
			return retryablehttp.DefaultBackoff(waitMin, waitMin, attemptNum, resp)
		}
	}
	return retryablehttp.DefaultBackoff
}
