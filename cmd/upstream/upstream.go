// Package upstream provides CLI commands for managing the upstream rules of
// Azure SignalR services. Commands use the signalrclient package to talk to
// the Azure Resource Manager API.
package upstream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"golang.org/x/oauth2"

	"github.com/endorses/upstreamctl/internal/pkg/cmdutil"
	"github.com/endorses/upstreamctl/internal/pkg/options"
	"github.com/endorses/upstreamctl/internal/pkg/output"
	"github.com/endorses/upstreamctl/internal/pkg/signalrclient"
	up "github.com/endorses/upstreamctl/internal/pkg/upstream"
)

// Exit codes for CLI commands
const (
	ExitSuccess         = 0
	ExitGeneralError    = 1
	ExitConnectionError = 2
	ExitValidationError = 3
	ExitNotFoundError   = 4
	ExitAuthError       = 5
)

// Flags shared by all upstream commands
var (
	subscription        string
	resourceGroup       string
	tenant              string
	authMethod          string
	endpoint            string
	outputFormat        string
	retryMaxRetries     int
	retryDelay          = options.DefaultRetryPolicy().Delay
	retryMaxDelay       = options.DefaultRetryPolicy().MaxDelay
	retryMode           string
	retryNetworkTimeout = options.DefaultRetryPolicy().NetworkTimeout
)

var (
	retryFlags = []string{"retry-max-retries", "retry-delay", "retry-max-delay", "retry-mode", "retry-network-timeout"}
	retryKeys  = []string{"retry.max_retries", "retry.delay", "retry.max_delay", "retry.mode", "retry.network_timeout"}
)

// UpstreamCmd is the base command for upstream management
var UpstreamCmd = &cobra.Command{
	Use:   "upstream",
	Short: "Manage upstream rules of a SignalR service",
	Long: `Manage the upstream (webhook) rules of an Azure SignalR service.

Subcommands:
  update  - Replace the upstream configuration
  show    - Show the upstream configuration

Examples:
  upstreamctl upstream update --subscription <id> -g my-rg -n my-signalr \
    --templates "url-template=https://example.com/{hub}/{event},hub-pattern=chat"
  upstreamctl upstream show -g my-rg -n my-signalr --format templates`,
	SilenceUsage:  true,
	SilenceErrors: true,
	// No Run function - requires a subcommand
}

func init() {
	AddAzureFlags(UpstreamCmd)
	UpstreamCmd.AddCommand(UpdateCmd)
	UpstreamCmd.AddCommand(ShowCmd)
}

// AddAzureFlags adds the subscription, authentication, retry and output
// flags inherited by every upstream subcommand.
func AddAzureFlags(cmd *cobra.Command) {
	defaults := options.DefaultRetryPolicy()

	flags := cmd.PersistentFlags()
	flags.StringVar(&subscription, "subscription", "", "Subscription ID (env: AZURE_SUBSCRIPTION_ID)")
	flags.StringVarP(&resourceGroup, "resource-group", "g", "", "Resource group of the SignalR service")
	flags.StringVar(&tenant, "tenant", "", "Tenant ID used to select the access token (env: AZURE_TENANT_ID)")
	flags.StringVar(&authMethod, "auth-method", "", "Authentication method: credential or none (default credential)")
	flags.StringVar(&endpoint, "endpoint", "", "Management API endpoint (default "+signalrclient.DefaultEndpoint+")")
	flags.StringVarP(&outputFormat, "output", "o", "", "Output format: json or yaml (default json)")
	flags.IntVar(&retryMaxRetries, "retry-max-retries", defaults.MaxRetries, "Maximum number of retries")
	flags.DurationVar(&retryDelay, "retry-delay", defaults.Delay, "Delay between retries (base delay in exponential mode)")
	flags.DurationVar(&retryMaxDelay, "retry-max-delay", defaults.MaxDelay, "Maximum delay between retries")
	flags.StringVar(&retryMode, "retry-mode", "", "Retry mode: fixed or exponential (default exponential)")
	flags.DurationVar(&retryNetworkTimeout, "retry-network-timeout", defaults.NetworkTimeout, "Timeout of a single request")
}

// globalOptions resolves the inherited options, flags taking precedence over
// config file and environment values.
func globalOptions(cmd *cobra.Command) options.Global {
	return options.Global{
		Subscription: cmdutil.GetStringConfig("azure.subscription", subscription),
		Tenant:       cmdutil.GetStringConfig("azure.tenant", tenant),
		AuthMethod:   cmdutil.GetStringConfig("azure.auth_method", authMethod),
		RetryPolicy:  retryPolicy(cmd.Flags()),
	}
}

// retryPolicy returns nil when no retry option was given, leaving the
// client's default policy in effect.
func retryPolicy(flags *pflag.FlagSet) *options.RetryPolicy {
	if !cmdutil.AnyChanged(flags, retryFlags...) && !cmdutil.AnySet(retryKeys...) {
		return nil
	}

	mode := cmdutil.GetStringConfig("retry.mode", retryMode)
	policy := &options.RetryPolicy{
		MaxRetries:     cmdutil.GetIntConfig(flags, "retry-max-retries", "retry.max_retries", retryMaxRetries),
		Delay:          cmdutil.GetDurationConfig(flags, "retry-delay", "retry.delay", retryDelay),
		MaxDelay:       cmdutil.GetDurationConfig(flags, "retry-max-delay", "retry.max_delay", retryMaxDelay),
		Mode:           options.RetryMode(mode),
		NetworkTimeout: cmdutil.GetDurationConfig(flags, "retry-network-timeout", "retry.network_timeout", retryNetworkTimeout),
	}
	// Unknown modes are kept as given and rejected by Validate
	if parsed, err := options.ParseRetryMode(mode); err == nil {
		policy.Mode = parsed
	}
	return policy
}

func resolvedResourceGroup() string {
	return cmdutil.GetStringConfig("azure.resource_group", resourceGroup)
}

// service is what the commands need from the management API
type service interface {
	up.Service
	GetUpstreams(ctx context.Context, target up.Target, opts signalrclient.CallOptions) ([]up.Upstream, error)
}

// newService creates the management API client. Replaced in tests.
var newService = func() (service, error) {
	client, err := signalrclient.New(clientConfig())
	if err != nil {
		return nil, err
	}
	return client, nil
}

func clientConfig() signalrclient.ClientConfig {
	return signalrclient.ClientConfig{
		Endpoint:     cmdutil.GetStringConfig("azure.endpoint", endpoint),
		APIVersion:   viper.GetString("azure.api_version"),
		PollInterval: viper.GetDuration("azure.poll_interval"),
		TokenSource:  tokenSource,
	}
}

// tokenSource returns the configured access token for tenant, falling back to
// azure.access_token when the tenant has none.
func tokenSource(tenant string) (oauth2.TokenSource, error) {
	var token string
	if tenant != "" {
		token = viper.GetString("azure.tenants." + tenant + ".access_token")
	}
	if token == "" {
		token = viper.GetString("azure.access_token")
	}
	if token == "" {
		return nil, signalrclient.ErrNoCredential
	}
	return oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token, TokenType: "Bearer"}), nil
}

// Response is the envelope written for every command outcome
type Response struct {
	Status  int        `json:"status" yaml:"status"`
	Message string     `json:"message" yaml:"message"`
	Code    string     `json:"code,omitempty" yaml:"code,omitempty"`
	Results *up.Result `json:"results,omitempty" yaml:"results,omitempty"`
}

// ExitError carries the process exit code of a failed command. The response
// has already been written when it is returned.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	return e.Err.Error()
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// resolvedOutputFormat returns the output format, falling back to JSON when
// the configured value is invalid so that the error itself can be rendered.
func resolvedOutputFormat() (string, error) {
	format, err := output.ParseFormat(cmdutil.GetStringConfig("output", outputFormat))
	if err != nil {
		return output.FormatJSON, &up.ValidationError{Err: err}
	}
	return format, nil
}

// succeed writes a success response to stdout
func succeed(cmd *cobra.Command, format, message string, result *up.Result) error {
	resp := Response{
		Status:  http.StatusOK,
		Message: message,
		Results: result,
	}
	if err := output.Write(cmd.OutOrStdout(), format, resp); err != nil {
		return fail(cmd, output.FormatJSON, err)
	}
	return nil
}

// fail writes an error response to stderr and returns the matching ExitError
func fail(cmd *cobra.Command, format string, err error) error {
	code := MapError(err)
	writeError(cmd.ErrOrStderr(), format, err, code)
	return &ExitError{Code: code, Err: err}
}

func writeError(w io.Writer, format string, err error, exitCode int) {
	resp := Response{
		Status:  responseStatus(err, exitCode),
		Message: err.Error(),
		Code:    mapExitCodeToString(exitCode),
	}

	var apiErr *signalrclient.APIError
	if errors.As(err, &apiErr) && apiErr.Code != "" {
		resp.Code = apiErr.Code
	}
	var opErr *signalrclient.OperationError
	if errors.As(err, &opErr) && opErr.Code != "" {
		resp.Code = opErr.Code
	}

	if werr := output.Write(w, format, resp); werr != nil {
		fmt.Fprintln(w, err)
	}
}

// MapError maps an error to an appropriate exit code
func MapError(err error) int {
	switch {
	case err == nil:
		return ExitSuccess
	case up.IsValidationError(err):
		return ExitValidationError
	case errors.Is(err, signalrclient.ErrNoCredential), signalrclient.IsAuth(err):
		return ExitAuthError
	case signalrclient.IsNotFound(err):
		return ExitNotFoundError
	}

	switch status := signalrclient.StatusCode(err); {
	case status == http.StatusBadRequest, status == http.StatusConflict, status == http.StatusUnprocessableEntity:
		return ExitValidationError
	case status == http.StatusTooManyRequests, status >= http.StatusInternalServerError:
		return ExitConnectionError
	case status == 0 && isConnectionError(err):
		return ExitConnectionError
	}
	return ExitGeneralError
}

func isConnectionError(err error) bool {
	var urlErr *url.Error
	var netErr net.Error
	return errors.As(err, &urlErr) ||
		errors.As(err, &netErr) ||
		errors.Is(err, context.DeadlineExceeded)
}

func responseStatus(err error, exitCode int) int {
	if status := signalrclient.StatusCode(err); status != 0 {
		return status
	}
	switch exitCode {
	case ExitValidationError:
		return http.StatusBadRequest
	case ExitAuthError:
		return http.StatusUnauthorized
	case ExitNotFoundError:
		return http.StatusNotFound
	case ExitConnectionError:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func mapExitCodeToString(code int) string {
	switch code {
	case ExitSuccess:
		return "OK"
	case ExitConnectionError:
		return "UNAVAILABLE"
	case ExitValidationError:
		return "INVALID_ARGUMENT"
	case ExitNotFoundError:
		return "NOT_FOUND"
	case ExitAuthError:
		return "UNAUTHENTICATED"
	default:
		return "UNKNOWN"
	}
}
