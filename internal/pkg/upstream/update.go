package upstream

//go:generate mockgen -source=update.go -destination=mocks/mock_service.go -package=mocks

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/endorses/upstreamctl/internal/pkg/logger"
	"github.com/endorses/upstreamctl/internal/pkg/options"
)

// OperationUpdate is the operation name used in logs and responses
const OperationUpdate = "upstream update"

// Target identifies the SignalR service whose upstreams are managed
type Target struct {
	Subscription  string
	ResourceGroup string
	ServiceName   string
}

// ReplaceRequest is a full replacement of a service's upstream configuration.
// Rules absent from Upstreams are removed by the service.
type ReplaceRequest struct {
	Target
	Upstreams   []Upstream
	Tenant      string
	AuthMethod  options.AuthMethod
	RetryPolicy *options.RetryPolicy
}

// Service replaces the upstream configuration of a remote SignalR service
type Service interface {
	ReplaceUpstreams(ctx context.Context, req ReplaceRequest) ([]Upstream, error)
}

// UpdateOptions are the bound options of an update invocation
type UpdateOptions struct {
	options.Global
	ResourceGroup string
	ServiceName   string
	Templates     string
}

// LogValue implements slog.LogValuer
func (o UpdateOptions) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Any("global", o.Global),
		slog.String("resource_group", o.ResourceGroup),
		slog.String("signalr_name", o.ServiceName),
		slog.String("templates", o.Templates),
	)
}

// Result is the payload of a successful update
type Result struct {
	Upstreams []Upstream `json:"upstreams" yaml:"upstreams"`
}

// ValidationError reports missing or invalid options. Nothing was parsed or
// sent when it is returned.
type ValidationError struct {
	Missing []string
	Err     error
}

func (e *ValidationError) Error() string {
	var parts []string
	if len(e.Missing) > 0 {
		parts = append(parts, "missing required options: "+strings.Join(e.Missing, ", "))
	}
	if e.Err != nil {
		parts = append(parts, e.Err.Error())
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// ApplyError reports a failure of the remote replace operation
type ApplyError struct {
	Target Target
	Err    error
}

func (e *ApplyError) Error() string {
	return fmt.Sprintf("failed to replace upstreams of %s/%s: %v", e.Target.ResourceGroup, e.Target.ServiceName, e.Err)
}

func (e *ApplyError) Unwrap() error {
	return e.Err
}

// IsValidationError returns true if err is or wraps a ValidationError
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// Validate checks required options, the auth method and the retry policy
func (o UpdateOptions) Validate() error {
	return validate(o.Global, requiredOption{"resource-group", o.ResourceGroup},
		requiredOption{"signalr-name", o.ServiceName}, requiredOption{"templates", o.Templates})
}

// ValidateTarget checks the options identifying a service, the auth method
// and the retry policy.
func ValidateTarget(g options.Global, resourceGroup, serviceName string) error {
	return validate(g, requiredOption{"resource-group", resourceGroup},
		requiredOption{"signalr-name", serviceName})
}

type requiredOption struct {
	name  string
	value string
}

func validate(g options.Global, required ...requiredOption) error {
	var missing []string
	required = append([]requiredOption{{"subscription", g.Subscription}}, required...)
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			missing = append(missing, r.name)
		}
	}

	var errs []error
	if _, err := options.ParseAuthMethod(g.AuthMethod); err != nil {
		errs = append(errs, err)
	}
	if g.RetryPolicy != nil {
		if err := g.RetryPolicy.Validate(); err != nil {
			errs = append(errs, err)
		}
	}

	if len(missing) == 0 && len(errs) == 0 {
		return nil
	}
	return &ValidationError{Missing: missing, Err: errors.Join(errs...)}
}

// Target returns the service the options address
func (o UpdateOptions) Target() Target {
	return Target{
		Subscription:  strings.TrimSpace(o.Subscription),
		ResourceGroup: strings.TrimSpace(o.ResourceGroup),
		ServiceName:   strings.TrimSpace(o.ServiceName),
	}
}

// Preview validates the options and returns the parsed upstreams without
// contacting the service.
func Preview(opts UpdateOptions) ([]Upstream, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	return ParseTemplates(opts.Templates), nil
}

// Execute validates opts, parses the templates and replaces the service's
// upstream configuration with the parsed set. A nil Result with a nil error
// means the service reported zero rules after the update.
func Execute(ctx context.Context, svc Service, opts UpdateOptions) (*Result, error) {
	result, err := execute(ctx, svc, opts)
	if err != nil {
		logger.ErrorContext(ctx, "Error in operation",
			"operation", OperationUpdate,
			"options", opts,
			"error", err)
		return nil, err
	}
	return result, nil
}

func execute(ctx context.Context, svc Service, opts UpdateOptions) (*Result, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	// Validate already accepted the value
	authMethod, _ := options.ParseAuthMethod(opts.AuthMethod)

	upstreams := ParseTemplates(opts.Templates)
	target := opts.Target()

	logger.DebugContext(ctx, "Replacing upstream configuration",
		"resource_group", target.ResourceGroup,
		"signalr_name", target.ServiceName,
		"count", len(upstreams))

	results, err := svc.ReplaceUpstreams(ctx, ReplaceRequest{
		Target:      target,
		Upstreams:   upstreams,
		Tenant:      strings.TrimSpace(opts.Tenant),
		AuthMethod:  authMethod,
		RetryPolicy: opts.RetryPolicy,
	})
	if err != nil {
		return nil, &ApplyError{Target: target, Err: err}
	}

	if len(results) == 0 {
		return nil, nil
	}
	return &Result{Upstreams: results}, nil
}
