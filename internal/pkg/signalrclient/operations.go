package signalrclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-retryablehttp"

	"github.com/endorses/upstreamctl/internal/pkg/upstream"
	"github.com/endorses/upstreamctl/internal/pkg/version"
)

// Async operation states
const (
	operationSucceeded = "Succeeded"
	operationFailed    = "Failed"
	operationCanceled  = "Canceled"
)

// GetUpstreams retrieves the current upstream configuration of a service
func (c *Client) GetUpstreams(ctx context.Context, target upstream.Target, opts CallOptions) ([]upstream.Upstream, error) {
	if err := validateTarget(target); err != nil {
		return nil, err
	}

	hc, err := c.httpClient(opts)
	if err != nil {
		return nil, err
	}

	resource, err := c.getResource(ctx, hc, target)
	if err != nil {
		return nil, fmt.Errorf("failed to get upstreams: %w", err)
	}
	return resource.upstreams(), nil
}

// ReplaceUpstreams replaces the complete upstream configuration of a
// service and returns the configuration the service reports afterwards.
// Rules not present in req.Upstreams are removed.
func (c *Client) ReplaceUpstreams(ctx context.Context, req upstream.ReplaceRequest) ([]upstream.Upstream, error) {
	if err := validateTarget(req.Target); err != nil {
		return nil, err
	}

	hc, err := c.httpClient(CallOptions{
		Tenant:      req.Tenant,
		AuthMethod:  req.AuthMethod,
		RetryPolicy: req.RetryPolicy,
	})
	if err != nil {
		return nil, err
	}

	body, err := json.Marshal(newUpstreamPatch(req.Upstreams))
	if err != nil {
		return nil, fmt.Errorf("failed to encode upstreams: %w", err)
	}

	resp, err := c.do(ctx, hc, http.MethodPatch, c.resourceURL(req.Target), body)
	if err != nil {
		return nil, fmt.Errorf("failed to replace upstreams: %w", err)
	}

	switch resp.StatusCode {
	case http.StatusOK:
		var resource signalRResource
		if err := decodeBody(resp, &resource); err != nil {
			return nil, fmt.Errorf("failed to replace upstreams: %w", err)
		}
		return resource.upstreams(), nil
	case http.StatusCreated, http.StatusAccepted:
		if err := c.waitForOperation(ctx, hc, resp); err != nil {
			return nil, fmt.Errorf("failed to replace upstreams: %w", err)
		}
		resource, err := c.getResource(ctx, hc, req.Target)
		if err != nil {
			return nil, fmt.Errorf("failed to read upstreams after update: %w", err)
		}
		return resource.upstreams(), nil
	default:
		_ = resp.Body.Close()
		return nil, fmt.Errorf("failed to replace upstreams: unexpected status %d", resp.StatusCode)
	}
}

func (c *Client) getResource(ctx context.Context, hc *retryablehttp.Client, target upstream.Target) (*signalRResource, error) {
	resp, err := c.do(ctx, hc, http.MethodGet, c.resourceURL(target), nil)
	if err != nil {
		return nil, err
	}

	var resource signalRResource
	if err := decodeBody(resp, &resource); err != nil {
		return nil, err
	}
	return &resource, nil
}

// waitForOperation polls the Azure-AsyncOperation (or Location) URL of an
// accepted request until it reaches a terminal state.
func (c *Client) waitForOperation(ctx context.Context, hc *retryablehttp.Client, accepted *http.Response) error {
	_ = accepted.Body.Close()

	pollURL := accepted.Header.Get(headerAsyncOperation)
	useAsyncHeader := pollURL != ""
	if !useAsyncHeader {
		pollURL = accepted.Header.Get("Location")
	}
	if pollURL == "" {
		return nil
	}

	wait := c.retryAfter(accepted)
	for {
		c.log.Debug("Waiting for operation", "url", pollURL, "wait", wait)
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		resp, err := c.do(ctx, hc, http.MethodGet, pollURL, nil)
		if err != nil {
			return err
		}
		wait = c.retryAfter(resp)

		if !useAsyncHeader {
			_ = resp.Body.Close()
			if resp.StatusCode == http.StatusAccepted {
				continue
			}
			return nil
		}

		var op asyncOperation
		if err := decodeBody(resp, &op); err != nil {
			return err
		}
		switch {
		case strings.EqualFold(op.Status, operationSucceeded):
			return nil
		case strings.EqualFold(op.Status, operationFailed), strings.EqualFold(op.Status, operationCanceled):
			opErr := &OperationError{Status: op.Status}
			if op.Error != nil {
				opErr.Code = op.Error.Code
				opErr.Message = op.Error.Message
			}
			return opErr
		}
	}
}

// do sends one request through hc. Non-2xx responses become *APIError.
func (c *Client) do(ctx context.Context, hc *retryablehttp.Client, method, rawURL string, body []byte) (*http.Response, error) {
	var reqBody any
	if body != nil {
		reqBody = body
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, method, rawURL, reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	requestID := uuid.New().String()
	req.Header.Set(headerClientRequestID, requestID)
	req.Header.Set("User-Agent", version.UserAgent())
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := hc.Do(req)
	if resp == nil {
		if err == nil {
			err = errors.New("no response")
		}
		return nil, fmt.Errorf("%s %s: %w", method, redactURL(rawURL), err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, newAPIError(resp, requestID)
	}
	return resp, nil
}

func (c *Client) resourceURL(t upstream.Target) string {
	return fmt.Sprintf("%s/subscriptions/%s/resourceGroups/%s/providers/Microsoft.SignalRService/signalR/%s?api-version=%s",
		c.endpoint,
		url.PathEscape(t.Subscription),
		url.PathEscape(t.ResourceGroup),
		url.PathEscape(t.ServiceName),
		url.QueryEscape(c.apiVersion))
}

// retryAfter returns the Retry-After of resp in seconds, or the poll interval
func (c *Client) retryAfter(resp *http.Response) time.Duration {
	if s := resp.Header.Get(headerRetryAfter); s != "" {
		if secs, err := strconv.Atoi(s); err == nil && secs > 0 {
			return time.Duration(secs) * time.Second
		}
	}
	return c.pollInterval
}

func decodeBody(resp *http.Response, v any) error {
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func validateTarget(t upstream.Target) error {
	var missing []string
	if t.Subscription == "" {
		missing = append(missing, "subscription")
	}
	if t.ResourceGroup == "" {
		missing = append(missing, "resource group")
	}
	if t.ServiceName == "" {
		missing = append(missing, "service name")
	}
	if len(missing) > 0 {
		return fmt.Errorf("target is missing %s", strings.Join(missing, ", "))
	}
	return nil
}

// redactURL drops the query string, which may carry signatures on poll URLs
func redactURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	u.RawQuery = ""
	return u.String()
}
