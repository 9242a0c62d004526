package upstream

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/endorses/upstreamctl/internal/pkg/logger"
	up "github.com/endorses/upstreamctl/internal/pkg/upstream"
)

var (
	updateServiceName string
	updateTemplates   string
	updateDryRun      bool
)

// UpdateCmd replaces the upstream configuration of a SignalR service
var UpdateCmd = &cobra.Command{
	Use:   "update",
	Short: "Replace the upstream configuration",
	Long: `Replace the complete upstream configuration of a SignalR service.

Every existing rule is replaced by the rules parsed from --templates.
Templates are separated by ';' and the settings of a template by ','.
Each setting is key=value, split on the first '='.

Keys:
  url-template      - Upstream URL, may contain {hub}, {category} and {event} (required)
  hub-pattern       - Hubs the rule applies to
  event-pattern     - Events the rule applies to
  category-pattern  - Categories the rule applies to
  managed-identity  - Managed identity resource; an empty value disables auth

Templates without a url-template and unknown keys are ignored.

Examples:
  # Route chat hub events with managed identity auth
  upstreamctl upstream update --subscription <id> -g my-rg -n my-signalr \
    -t "url-template=https://example.com/{hub}/{event},hub-pattern=chat,managed-identity=api://app"

  # Two rules
  upstreamctl upstream update -g my-rg -n my-signalr \
    -t "url-template=https://a.example.com;url-template=https://b.example.com,event-pattern=connect"

  # Show the parsed rules without applying them
  upstreamctl upstream update -g my-rg -n my-signalr -t "url-template=https://a.example.com" --dry-run`,
	Args: cobra.NoArgs,
	RunE: runUpdate,
}

func init() {
	UpdateCmd.Flags().StringVarP(&updateServiceName, "signalr-name", "n", "", "Name of the SignalR service (required)")
	UpdateCmd.Flags().StringVarP(&updateTemplates, "templates", "t", "", "Upstream templates (required)")
	UpdateCmd.Flags().BoolVar(&updateDryRun, "dry-run", false, "Parse and print the templates without applying them")
}

func runUpdate(cmd *cobra.Command, args []string) error {
	format, err := resolvedOutputFormat()
	if err != nil {
		return fail(cmd, format, err)
	}

	opts := up.UpdateOptions{
		Global:        globalOptions(cmd),
		ResourceGroup: resolvedResourceGroup(),
		ServiceName:   updateServiceName,
		Templates:     updateTemplates,
	}

	if updateDryRun {
		upstreams, err := up.Preview(opts)
		if err != nil {
			return fail(cmd, format, err)
		}
		var result *up.Result
		if len(upstreams) > 0 {
			result = &up.Result{Upstreams: upstreams}
		}
		return succeed(cmd, format, fmt.Sprintf("Dry run: %d upstream rule(s) parsed, nothing applied", len(upstreams)), result)
	}

	if err := opts.Validate(); err != nil {
		return updateFailed(cmd, format, opts, err)
	}
	svc, err := newService()
	if err != nil {
		return updateFailed(cmd, format, opts, &up.ValidationError{Err: err})
	}

	result, err := up.Execute(cmd.Context(), svc, opts)
	if err != nil {
		return fail(cmd, format, err)
	}

	if result == nil {
		return succeed(cmd, format, "Upstream configuration updated: no rules configured", nil)
	}
	return succeed(cmd, format, fmt.Sprintf("Upstream configuration updated: %d rule(s) configured", len(result.Upstreams)), result)
}

func updateFailed(cmd *cobra.Command, format string, opts up.UpdateOptions, err error) error {
	logger.ErrorContext(cmd.Context(), "Error in operation",
		"operation", up.OperationUpdate,
		"options", opts,
		"error", err)
	return fail(cmd, format, err)
}
