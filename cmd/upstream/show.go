package upstream

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/endorses/upstreamctl/internal/pkg/logger"
	"github.com/endorses/upstreamctl/internal/pkg/options"
	"github.com/endorses/upstreamctl/internal/pkg/signalrclient"
	up "github.com/endorses/upstreamctl/internal/pkg/upstream"
)

const operationShow = "upstream show"

// formatTemplates prints the configuration in --templates syntax
const formatTemplates = "templates"

var (
	showServiceName string
	showFormat      string
)

// ShowCmd displays the upstream configuration of a SignalR service
var ShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the upstream configuration",
	Long: `Show the upstream configuration of a SignalR service.

With --format templates the rules are printed in the syntax accepted by
'upstream update --templates', so a configuration can be edited and applied
again.

Examples:
  upstreamctl upstream show -g my-rg -n my-signalr
  upstreamctl upstream show -g my-rg -n my-signalr -o yaml
  upstreamctl upstream show -g my-rg -n my-signalr --format templates`,
	Args: cobra.NoArgs,
	RunE: runShow,
}

func init() {
	ShowCmd.Flags().StringVarP(&showServiceName, "signalr-name", "n", "", "Name of the SignalR service (required)")
	ShowCmd.Flags().StringVar(&showFormat, "format", "", "Print format: templates (default: response envelope)")
}

func runShow(cmd *cobra.Command, args []string) error {
	format, err := resolvedOutputFormat()
	if err != nil {
		return fail(cmd, format, err)
	}

	global := globalOptions(cmd)
	group := resolvedResourceGroup()

	if err := up.ValidateTarget(global, group, showServiceName); err != nil {
		return showFailed(cmd, format, global, err)
	}
	if showFormat != "" && showFormat != formatTemplates {
		err := &up.ValidationError{Err: fmt.Errorf("unknown format %q (valid: %s)", showFormat, formatTemplates)}
		return showFailed(cmd, format, global, err)
	}

	svc, err := newService()
	if err != nil {
		return showFailed(cmd, format, global, &up.ValidationError{Err: err})
	}

	// ValidateTarget already accepted the value
	method, _ := options.ParseAuthMethod(global.AuthMethod)
	target := up.UpdateOptions{Global: global, ResourceGroup: group, ServiceName: showServiceName}.Target()

	upstreams, err := svc.GetUpstreams(cmd.Context(), target, signalrclient.CallOptions{
		Tenant:      global.Tenant,
		AuthMethod:  method,
		RetryPolicy: global.RetryPolicy,
	})
	if err != nil {
		return showFailed(cmd, format, global, err)
	}

	if showFormat == formatTemplates {
		fmt.Fprintln(cmd.OutOrStdout(), up.FormatTemplates(upstreams))
		return nil
	}

	if len(upstreams) == 0 {
		return succeed(cmd, format, "No upstream rules configured", nil)
	}
	return succeed(cmd, format, fmt.Sprintf("%d upstream rule(s) configured", len(upstreams)), &up.Result{Upstreams: upstreams})
}

func showFailed(cmd *cobra.Command, format string, global options.Global, err error) error {
	logger.ErrorContext(cmd.Context(), "Error in operation",
		"operation", operationShow,
		"options", global,
		"signalr_name", showServiceName,
		"error", err)
	return fail(cmd, format, err)
}
