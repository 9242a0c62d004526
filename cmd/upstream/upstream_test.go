package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/endorses/upstreamctl/internal/pkg/options"
	"github.com/endorses/upstreamctl/internal/pkg/signalrclient"
	up "github.com/endorses/upstreamctl/internal/pkg/upstream"
)

// fakeService records calls and returns canned results
type fakeService struct {
	upstreams []up.Upstream
	err       error

	replaced  *up.ReplaceRequest
	target    *up.Target
	callOpts  signalrclient.CallOptions
	callCount int
}

func (f *fakeService) ReplaceUpstreams(_ context.Context, req up.ReplaceRequest) ([]up.Upstream, error) {
	f.callCount++
	f.replaced = &req
	if f.err != nil {
		return nil, f.err
	}
	if f.upstreams != nil {
		return f.upstreams, nil
	}
	return req.Upstreams, nil
}

func (f *fakeService) GetUpstreams(_ context.Context, target up.Target, opts signalrclient.CallOptions) ([]up.Upstream, error) {
	f.callCount++
	f.target = &target
	f.callOpts = opts
	return f.upstreams, f.err
}

func resetFlags(cmds ...*cobra.Command) {
	reset := func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	}
	for _, c := range cmds {
		c.Flags().VisitAll(reset)
		c.PersistentFlags().VisitAll(reset)
	}
}

type result struct {
	stdout string
	stderr string
	err    error
}

func (r result) response(t *testing.T) Response {
	t.Helper()
	data := r.stdout
	if r.err != nil {
		data = r.stderr
	}
	var resp Response
	require.NoError(t, json.Unmarshal([]byte(data), &resp), "output: %q", data)
	return resp
}

func (r result) exitCode() int {
	var exitErr *ExitError
	if errors.As(r.err, &exitErr) {
		return exitErr.Code
	}
	if r.err != nil {
		return ExitGeneralError
	}
	return ExitSuccess
}

// runUpstream executes the upstream command tree with svc as the service
func runUpstream(t *testing.T, svc service, args ...string) result {
	t.Helper()
	return runUpstreamWithConfig(t, svc, nil, args...)
}

// runUpstreamWithConfig is runUpstream with viper values set after the reset
func runUpstreamWithConfig(t *testing.T, svc service, config map[string]any, args ...string) result {
	t.Helper()
	return execUpstream(t, func() (service, error) { return svc, nil }, config, args...)
}

func execUpstream(t *testing.T, factory func() (service, error), config map[string]any, args ...string) result {
	t.Helper()

	resetFlags(UpstreamCmd, UpdateCmd, ShowCmd)
	viper.Reset()
	for k, v := range config {
		viper.Set(k, v)
	}
	prev := newService
	newService = factory
	t.Cleanup(func() {
		newService = prev
		viper.Reset()
	})

	var stdout, stderr bytes.Buffer
	UpstreamCmd.SetOut(&stdout)
	UpstreamCmd.SetErr(&stderr)
	UpstreamCmd.SetArgs(args)

	err := UpstreamCmd.ExecuteContext(context.Background())
	return result{stdout: stdout.String(), stderr: stderr.String(), err: err}
}

func TestMapError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected int
	}{
		{name: "nil", err: nil, expected: ExitSuccess},
		{name: "validation", err: &up.ValidationError{Missing: []string{"templates"}}, expected: ExitValidationError},
		{name: "no credential", err: fmt.Errorf("wrapped: %w", signalrclient.ErrNoCredential), expected: ExitAuthError},
		{name: "unauthorized", err: &signalrclient.APIError{StatusCode: http.StatusUnauthorized}, expected: ExitAuthError},
		{name: "forbidden", err: &signalrclient.APIError{StatusCode: http.StatusForbidden}, expected: ExitAuthError},
		{name: "not found", err: &up.ApplyError{Err: &signalrclient.APIError{StatusCode: http.StatusNotFound}}, expected: ExitNotFoundError},
		{name: "bad request", err: &signalrclient.APIError{StatusCode: http.StatusBadRequest}, expected: ExitValidationError},
		{name: "conflict", err: &signalrclient.APIError{StatusCode: http.StatusConflict}, expected: ExitValidationError},
		{name: "throttled", err: &signalrclient.APIError{StatusCode: http.StatusTooManyRequests}, expected: ExitConnectionError},
		{name: "unavailable", err: &signalrclient.APIError{StatusCode: http.StatusServiceUnavailable}, expected: ExitConnectionError},
		{name: "network", err: &url.Error{Op: "Patch", URL: "https://x", Err: errors.New("connection refused")}, expected: ExitConnectionError},
		{name: "deadline", err: fmt.Errorf("poll: %w", context.DeadlineExceeded), expected: ExitConnectionError},
		{name: "operation failed", err: &signalrclient.OperationError{Status: "Failed"}, expected: ExitGeneralError},
		{name: "other", err: errors.New("boom"), expected: ExitGeneralError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, MapError(tt.err))
		})
	}
}

func TestGlobalOptions(t *testing.T) {
	t.Run("config values apply when flags are unset", func(t *testing.T) {
		svc := &fakeService{}
		r := runUpstreamWithConfig(t, svc, map[string]any{
			"azure.subscription":   "sub-cfg",
			"azure.resource_group": "rg-cfg",
			"azure.tenant":         "tenant-cfg",
		}, "update", "-n", "sig", "-t", "url-template=http://a.com")
		require.NoError(t, r.err)
		require.NotNil(t, svc.replaced)
		assert.Equal(t, "sub-cfg", svc.replaced.Subscription)
		assert.Equal(t, "rg-cfg", svc.replaced.ResourceGroup)
		assert.Equal(t, "tenant-cfg", svc.replaced.Tenant)
	})

	t.Run("flags take precedence", func(t *testing.T) {
		svc := &fakeService{}
		r := runUpstreamWithConfig(t, svc, map[string]any{
			"azure.subscription":   "sub-cfg",
			"azure.resource_group": "rg-cfg",
		}, "update", "--subscription", "sub-flag", "-g", "rg-flag", "-n", "sig", "-t", "url-template=http://a.com")
		require.NoError(t, r.err)
		assert.Equal(t, "sub-flag", svc.replaced.Subscription)
		assert.Equal(t, "rg-flag", svc.replaced.ResourceGroup)
	})

	t.Run("no retry options leaves policy unset", func(t *testing.T) {
		svc := &fakeService{}
		r := runUpstream(t, svc, "update", "--subscription", "s", "-g", "rg", "-n", "sig", "-t", "url-template=http://a.com")
		require.NoError(t, r.err)
		assert.Nil(t, svc.replaced.RetryPolicy)
	})

	t.Run("retry flags build a policy", func(t *testing.T) {
		svc := &fakeService{}
		r := runUpstream(t, svc, "update", "--subscription", "s", "-g", "rg", "-n", "sig", "-t", "url-template=http://a.com",
			"--retry-max-retries", "5", "--retry-mode", "FIXED")
		require.NoError(t, r.err)
		require.NotNil(t, svc.replaced.RetryPolicy)
		assert.Equal(t, 5, svc.replaced.RetryPolicy.MaxRetries)
		assert.Equal(t, options.RetryModeFixed, svc.replaced.RetryPolicy.Mode)
		assert.Equal(t, options.DefaultRetryPolicy().Delay, svc.replaced.RetryPolicy.Delay)
	})

	t.Run("retry config builds a policy", func(t *testing.T) {
		svc := &fakeService{}
		r := runUpstreamWithConfig(t, svc, map[string]any{
			"retry.max_retries": 7,
			"retry.delay":       "2s",
			"retry.max_delay":   "10s",
		}, "update", "--subscription", "s", "-g", "rg", "-n", "sig", "-t", "url-template=http://a.com")
		require.NoError(t, r.err)
		require.NotNil(t, svc.replaced.RetryPolicy)
		assert.Equal(t, 7, svc.replaced.RetryPolicy.MaxRetries)
		assert.Equal(t, "2s", svc.replaced.RetryPolicy.Delay.String())
		assert.Equal(t, options.RetryModeExponential, svc.replaced.RetryPolicy.Mode)
	})

	t.Run("invalid retry mode is a validation failure", func(t *testing.T) {
		svc := &fakeService{}
		r := runUpstream(t, svc, "update", "--subscription", "s", "-g", "rg", "-n", "sig", "-t", "url-template=http://a.com",
			"--retry-mode", "linear")
		assert.Equal(t, ExitValidationError, r.exitCode())
		assert.Equal(t, 0, svc.callCount)
		assert.Contains(t, r.response(t).Message, "unknown retry mode")
	})
}

func TestTokenSource(t *testing.T) {
	t.Cleanup(viper.Reset)

	t.Run("no token", func(t *testing.T) {
		viper.Reset()
		_, err := tokenSource("")
		assert.ErrorIs(t, err, signalrclient.ErrNoCredential)
	})

	t.Run("default token", func(t *testing.T) {
		viper.Reset()
		viper.Set("azure.access_token", "default-token")
		ts, err := tokenSource("tenant-1")
		require.NoError(t, err)
		tok, err := ts.Token()
		require.NoError(t, err)
		assert.Equal(t, "default-token", tok.AccessToken)
	})

	t.Run("tenant token wins", func(t *testing.T) {
		viper.Reset()
		viper.Set("azure.access_token", "default-token")
		viper.Set("azure.tenants.tenant-1.access_token", "tenant-token")
		ts, err := tokenSource("tenant-1")
		require.NoError(t, err)
		tok, err := ts.Token()
		require.NoError(t, err)
		assert.Equal(t, "tenant-token", tok.AccessToken)
	})
}

func TestClientConfig(t *testing.T) {
	t.Cleanup(viper.Reset)
	viper.Reset()
	endpoint = ""
	viper.Set("azure.endpoint", "http://localhost:9999")
	viper.Set("azure.api_version", "2023-02-01")

	cfg := clientConfig()
	assert.Equal(t, "http://localhost:9999", cfg.Endpoint)
	assert.Equal(t, "2023-02-01", cfg.APIVersion)
	assert.NotNil(t, cfg.TokenSource)
}

func TestInvalidOutputFormat(t *testing.T) {
	svc := &fakeService{}
	r := runUpstream(t, svc, "update", "--subscription", "s", "-g", "rg", "-n", "sig", "-t", "url-template=http://a.com", "-o", "xml")
	assert.Equal(t, ExitValidationError, r.exitCode())
	assert.Equal(t, 0, svc.callCount)

	resp := r.response(t)
	assert.Equal(t, http.StatusBadRequest, resp.Status)
	assert.Equal(t, "INVALID_ARGUMENT", resp.Code)
	assert.Contains(t, resp.Message, "unknown output format")
}
