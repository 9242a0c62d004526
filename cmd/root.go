package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/endorses/upstreamctl/cmd/upstream"
	"github.com/endorses/upstreamctl/internal/pkg/logger"
	"github.com/endorses/upstreamctl/internal/pkg/signals"
	"github.com/endorses/upstreamctl/internal/pkg/version"
)

var (
	cfgFile   string
	envFile   string
	logLevel  string
	logFormat string

	// configErr is reported once logging is configured
	configErr error
)

var rootCmd = &cobra.Command{
	Use:               "upstreamctl",
	Short:             "upstreamctl manages SignalR upstreams",
	Long:              fmt.Sprintf("upstreamctl %s - Manage upstream rules of Azure SignalR services", version.GetVersion()),
	Version:           version.GetFullVersion(),
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: configureLogging,
}

// Execute runs the root command and exits with the command's exit code
func Execute() {
	ctx, stop := signals.Context(context.Background())
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(exitCode(rootCmd.ErrOrStderr(), err))
	}
}

// exitCode returns the exit code for err. Errors without a written response
// (flag parsing, config) are printed to w.
func exitCode(w io.Writer, err error) int {
	var exitErr *upstream.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	fmt.Fprintln(w, "Error:", err)
	return upstream.ExitGeneralError
}

func addSubCommandPalattes() {
	rootCmd.AddCommand(upstream.UpstreamCmd)
}

func init() {
	cobra.OnInitialize(initConfig)

	// Initialize structured logging
	logger.Initialize()

	addSubCommandPalattes()

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.config/upstreamctl/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", "", "dotenv file loaded before the config file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn or error (default warn)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "log format: text or json (default text)")
}

func initConfig() {
	configErr = nil

	if envFile != "" {
		// Existing environment variables take precedence over the file
		if err := godotenv.Load(envFile); err != nil {
			configErr = fmt.Errorf("failed to load env file: %w", err)
			return
		}
	}

	viper.SetEnvPrefix("UPSTREAMCTL")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
	_ = viper.BindEnv("azure.subscription", "AZURE_SUBSCRIPTION_ID", "UPSTREAMCTL_AZURE_SUBSCRIPTION")
	_ = viper.BindEnv("azure.tenant", "AZURE_TENANT_ID", "UPSTREAMCTL_AZURE_TENANT")
	_ = viper.BindEnv("azure.access_token", "AZURE_ACCESS_TOKEN", "UPSTREAMCTL_AZURE_ACCESS_TOKEN")

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
		if err := viper.ReadInConfig(); err != nil {
			configErr = fmt.Errorf("failed to read config file: %w", err)
		}
		return
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return
	}

	// Priority order for config files:
	// 1. ~/.config/upstreamctl/config.yaml
	// 2. ~/.config/upstreamctl.yaml
	viper.AddConfigPath(home + "/.config/upstreamctl")
	viper.SetConfigType("yaml")
	viper.SetConfigName("config")
	err = viper.ReadInConfig()
	var notFound viper.ConfigFileNotFoundError
	if errors.As(err, &notFound) {
		// Fall back to ~/.config/upstreamctl.yaml
		viper.AddConfigPath(home + "/.config")
		viper.SetConfigName("upstreamctl")
		err = viper.ReadInConfig()
	}
	if err != nil && !errors.As(err, &notFound) {
		configErr = fmt.Errorf("failed to read config file: %w", err)
	}
}

// configureLogging applies --log-level and --log-format (or log.level and
// log.format from the config) to the default logger.
func configureLogging(cmd *cobra.Command, args []string) error {
	if configErr != nil {
		return configErr
	}

	level, err := logger.ParseLevel(firstNonEmpty(logLevel, viper.GetString("log.level")))
	if err != nil {
		return err
	}
	format, err := logger.ParseFormat(firstNonEmpty(logFormat, viper.GetString("log.format")))
	if err != nil {
		return err
	}

	logger.Configure(logger.Config{
		Output: cmd.ErrOrStderr(),
		Level:  level,
		Format: format,
	})

	if f := viper.ConfigFileUsed(); f != "" {
		logger.Debug("Using config file", "path", f)
	}
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
