// Package cmdutil provides shared utilities for CLI command implementations.
package cmdutil

import (
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// GetStringConfig returns flagValue if it is not empty, otherwise the config value for key.
// Flag values take precedence over config file and environment values.
func GetStringConfig(key, flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	return viper.GetString(key)
}

// GetIntConfig returns flagValue if the flag was set on the command line,
// otherwise the config value for key when present, otherwise flagValue.
func GetIntConfig(flags *pflag.FlagSet, name, key string, flagValue int) int {
	if flagChanged(flags, name) || !viper.IsSet(key) {
		return flagValue
	}
	return viper.GetInt(key)
}

// GetDurationConfig is GetIntConfig for durations ("800ms", "1m")
func GetDurationConfig(flags *pflag.FlagSet, name, key string, flagValue time.Duration) time.Duration {
	if flagChanged(flags, name) || !viper.IsSet(key) {
		return flagValue
	}
	return viper.GetDuration(key)
}

// AnyChanged reports whether any of the named flags was set on the command line
func AnyChanged(flags *pflag.FlagSet, names ...string) bool {
	for _, name := range names {
		if flagChanged(flags, name) {
			return true
		}
	}
	return false
}

// AnySet reports whether any of the config keys has a value
func AnySet(keys ...string) bool {
	for _, key := range keys {
		if viper.IsSet(key) {
			return true
		}
	}
	return false
}

func flagChanged(flags *pflag.FlagSet, name string) bool {
	if flags == nil {
		return false
	}
	f := flags.Lookup(name)
	return f != nil && f.Changed
}
